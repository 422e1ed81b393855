package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"docflow/internal/apperrors"
	"docflow/internal/models"
	"docflow/internal/repository"
	"docflow/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func extractionCfg() config.ExtractionConfig {
	return config.ExtractionConfig{
		Timeout:          5 * time.Second,
		SplitConcurrency: 2,
		AnalyzeBatchSize: 3,
	}
}

type lifecycleFixture struct {
	svc       *LifecycleService
	docs      *memDocumentStore
	batches   *memBatchStore
	extractor *fakeExtractor
	pdfOps    *fakePDFOps
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	docs := newMemDocumentStore()
	batches := newMemBatchStore()
	extractor := newFakeExtractor()
	pdfOps := newFakePDFOps()
	cfg := extractionCfg()
	splitter := NewSplitterService(docs, extractor, pdfOps, cfg, zap.NewNop())
	svc := NewLifecycleService(docs, batches, extractor, splitter, pdfOps, cfg, zap.NewNop())
	return &lifecycleFixture{svc: svc, docs: docs, batches: batches, extractor: extractor, pdfOps: pdfOps}
}

func TestUploadCreatesIntakeDocument(t *testing.T) {
	f := newLifecycleFixture(t)

	doc, err := f.svc.Upload(context.Background(), "factura.pdf", "application/pdf", []byte("pdf"), "factura", uuid.New())
	require.NoError(t, err)
	require.Equal(t, models.StateIntake, doc.State)
	require.Equal(t, models.DocumentTypeInvoice, doc.Type)
	require.Equal(t, int64(3), doc.FileSize)
}

func TestUploadRejectsBadInput(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, "a.pdf", "application/pdf", nil, "", uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = f.svc.Upload(ctx, "a.txt", "text/plain", []byte("x"), "", uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindValidation))

	_, err = f.svc.Upload(ctx, "a.pdf", "application/pdf", []byte("x"), "recibo", uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindValidation))
}

func TestValidateIllegiblePDFGoesToReview(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Upload(ctx, "roto.pdf", "application/pdf", []byte("broken"), "", uuid.New())
	require.NoError(t, err)

	f.pdfOps.countErr = errors.New("malformed xref")

	validated, err := f.svc.Validate(ctx, doc.ID)
	require.NoError(t, err, "validation failures must not propagate")
	require.Equal(t, models.StateNeedsReview, validated.State)
	require.NotNil(t, validated.LastError)
}

func TestProcessSinglePagePDFExtracts(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	payload := []byte("onepage")
	f.extractor.results[string(payload)] = &ExtractionResult{
		Fields: fieldsFor("comprobante_egreso", "$8.500.000,00 COP", "Global Consulting Group SAS", "900.123.456", "CE-2025-999"),
	}

	doc, err := f.svc.Upload(ctx, "ce.pdf", "application/pdf", payload, "", uuid.New())
	require.NoError(t, err)

	processed, err := f.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, models.StateExtracted, processed.State)
	require.Equal(t, models.DocumentTypeExpenseVoucher, processed.Type)
	require.InDelta(t, 8500000.0, *processed.Amount, 0.001)
	require.Equal(t, "GLOBAL CONSULTING GROUP SAS", *processed.Counterparty)
	require.Equal(t, "900123456", *processed.TaxID)
	require.Equal(t, "2025-03-10", *processed.Date)
}

func TestExtractUnstructuredResponseGoesToReview(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	payload := []byte("blurry")
	// fakeExtractor default: RawText only, no Fields.

	doc, err := f.svc.Upload(ctx, "borroso.pdf", "application/pdf", payload, "", uuid.New())
	require.NoError(t, err)

	processed, err := f.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, models.StateNeedsReview, processed.State)
	require.NotNil(t, processed.LastError)
}

func TestExtractFailureGoesToReviewNotError(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	payload := []byte("timeout")
	f.extractor.errs[string(payload)] = errors.New("model timeout")

	doc, err := f.svc.Upload(ctx, "lento.pdf", "application/pdf", payload, "", uuid.New())
	require.NoError(t, err)

	processed, err := f.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, models.StateNeedsReview, processed.State)
}

func TestOperatorTypeWinsOverModel(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	payload := []byte("typed")
	f.extractor.results[string(payload)] = &ExtractionResult{
		Fields: fieldsFor("factura", "1000", "PROVEEDOR SA", "", ""),
	}

	doc, err := f.svc.Upload(ctx, "sp.pdf", "application/pdf", payload, "soporte_pago", uuid.New())
	require.NoError(t, err)

	processed, err := f.svc.Process(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, models.DocumentTypePaymentProof, processed.Type)
}

func TestAnalyzeAllBoundsTheBatch(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		payload := []byte{byte('a' + i)}
		f.extractor.results[string(payload)] = &ExtractionResult{
			Fields: fieldsFor("factura", "100", "ACME SA", "", ""),
		}
		_, err := f.svc.Upload(ctx, "f.pdf", "application/pdf", payload, "", uuid.New())
		require.NoError(t, err)
	}

	summary, err := f.svc.AnalyzeAll(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Processed, 3)
	require.Equal(t, 2, summary.Remaining)
	for _, outcome := range summary.Processed {
		require.Equal(t, models.StateExtracted, outcome.State)
		require.Empty(t, outcome.Error)
	}
}

func TestReplaceResetsDocumentAndFlagsBatch(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	payload := []byte("v1")
	f.extractor.results[string(payload)] = &ExtractionResult{
		Fields: fieldsFor("factura", "500", "ACME SA", "", ""),
	}
	doc, err := f.svc.Upload(ctx, "v1.pdf", "application/pdf", payload, "", uuid.New())
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, doc.ID)
	require.NoError(t, err)

	// Link to a consolidated batch.
	batchID := uuid.New()
	require.NoError(t, f.batches.Create(ctx, &models.Batch{
		ID:          batchID,
		State:       models.BatchStateConsolidated,
		DocumentIDs: []uuid.UUID{doc.ID},
	}))
	linked, err := f.docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	linked.BatchID = &batchID
	require.NoError(t, f.docs.Update(ctx, linked))

	replaced, err := f.svc.Replace(ctx, doc.ID, "v2.pdf", "application/pdf", []byte("v2"))
	require.NoError(t, err)
	require.Equal(t, models.StateIntake, replaced.State)
	require.Nil(t, replaced.Amount)
	require.Nil(t, replaced.Counterparty)
	require.Equal(t, "v2.pdf", replaced.Filename)
	require.Equal(t, &batchID, replaced.BatchID, "batch membership survives replacement")

	batch, err := f.batches.GetByID(ctx, batchID)
	require.NoError(t, err)
	require.True(t, batch.NeedsRegeneration)
}

func TestReplaceConsolidatedMemberResetsAndFlagsBatch(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Upload(ctx, "ce.pdf", "application/pdf", []byte("ce"), "", uuid.New())
	require.NoError(t, err)

	batchID := uuid.New()
	require.NoError(t, f.batches.Create(ctx, &models.Batch{
		ID:          batchID,
		State:       models.BatchStateConsolidated,
		DocumentIDs: []uuid.UUID{doc.ID},
	}))
	member, err := f.docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	member.BatchID = &batchID
	member.State = models.StateConsolidated
	require.NoError(t, f.docs.Update(ctx, member))

	replaced, err := f.svc.Replace(ctx, doc.ID, "ce_v2.pdf", "application/pdf", []byte("ce v2"))
	require.NoError(t, err)
	require.Equal(t, models.StateIntake, replaced.State)
	require.Equal(t, &batchID, replaced.BatchID)

	batch, err := f.batches.GetByID(ctx, batchID)
	require.NoError(t, err)
	require.True(t, batch.NeedsRegeneration)
}

func TestDeleteBatchedDocumentConflicts(t *testing.T) {
	f := newLifecycleFixture(t)
	ctx := context.Background()

	doc, err := f.svc.Upload(ctx, "a.pdf", "application/pdf", []byte("a"), "", uuid.New())
	require.NoError(t, err)

	batchID := uuid.New()
	linked, err := f.docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	linked.BatchID = &batchID
	require.NoError(t, f.docs.Update(ctx, linked))

	err = f.svc.Delete(ctx, doc.ID)
	require.True(t, apperrors.Is(err, apperrors.KindConflict))

	// Unlink, then delete succeeds.
	linked.BatchID = nil
	require.NoError(t, f.docs.Update(ctx, linked))
	require.NoError(t, f.svc.Delete(ctx, doc.ID))

	_, err = f.docs.GetByID(ctx, doc.ID)
	require.Equal(t, repository.ErrNotFound, err)
}

func TestDeleteMissingDocumentIsNotFound(t *testing.T) {
	f := newLifecycleFixture(t)
	err := f.svc.Delete(context.Background(), uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindNotFound))
}
