package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"docflow/internal/apperrors"
	"docflow/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func batchedDoc(docType models.DocumentType, payload string, batchID uuid.UUID) *models.Document {
	return &models.Document{
		ID:       uuid.New(),
		Filename: "doc.pdf",
		Type:     docType,
		State:    models.StateExtracted,
		MimeType: "application/pdf",
		RawBytes: []byte(payload),
		BatchID:  &batchID,
	}
}

func newConsolidationFixture(t *testing.T) (*ConsolidationService, *memDocumentStore, *memBatchStore, *memArtifactStore) {
	t.Helper()
	docs := newMemDocumentStore()
	batches := newMemBatchStore()
	artifacts := newMemArtifactStore()
	svc := NewConsolidationService(docs, batches, artifacts, newFakePDFOps(), zap.NewNop())
	return svc, docs, batches, artifacts
}

func TestSanitizeFilenamePart(t *testing.T) {
	require.Equal(t, "AVIANCA_CE_19521", SanitizeFilenamePart(`AVIANCA/CE:19521`))
	require.Equal(t, "GLOBAL_CONSULTING_GROUP_SAS", SanitizeFilenamePart("GLOBAL CONSULTING GROUP SAS"))
	require.Equal(t, "A_B", SanitizeFilenamePart(`A <>?* B`))
	require.Equal(t, "SIN_NOMBRE", SanitizeFilenamePart(`  <>:"/\|?*  `))
}

func TestCanonicalOrderIsStable(t *testing.T) {
	batchID := uuid.New()
	invoice := batchedDoc(models.DocumentTypeInvoice, "f", batchID)
	proof := batchedDoc(models.DocumentTypePaymentProof, "s", batchID)
	voucherA := batchedDoc(models.DocumentTypeExpenseVoucher, "c1", batchID)
	voucherB := batchedDoc(models.DocumentTypeExpenseVoucher, "c2", batchID)
	payable := batchedDoc(models.DocumentTypePayableAccount, "p", batchID)
	untyped := batchedDoc("", "x", batchID)

	ordered := CanonicalOrder([]*models.Document{untyped, invoice, proof, voucherA, voucherB, payable})

	require.Equal(t, voucherA.ID, ordered[0].ID)
	require.Equal(t, voucherB.ID, ordered[1].ID, "same-type documents keep input order")
	require.Equal(t, payable.ID, ordered[2].ID)
	require.Equal(t, proof.ID, ordered[3].ID)
	require.Equal(t, invoice.ID, ordered[4].ID)
	require.Equal(t, untyped.ID, ordered[5].ID)
}

func TestGenerateNamesArtifactFromExpenseVoucher(t *testing.T) {
	svc, docs, batches, _ := newConsolidationFixture(t)
	ctx := context.Background()
	batchID := uuid.New()

	voucher := batchedDoc(models.DocumentTypeExpenseVoucher, "voucher", batchID)
	voucher.DocumentNumber = strPtr("CE-2025-999")
	voucher.Counterparty = strPtr("GLOBAL CONSULTING GROUP SAS")
	proof := batchedDoc(models.DocumentTypePaymentProof, "proof", batchID)

	require.NoError(t, docs.Create(ctx, voucher))
	require.NoError(t, docs.Create(ctx, proof))
	require.NoError(t, batches.Create(ctx, &models.Batch{
		ID:          batchID,
		State:       models.BatchStateBuilding,
		DocumentIDs: []uuid.UUID{proof.ID, voucher.ID},
	}))

	artifact, err := svc.Generate(ctx, batchID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, "CE-2025-999_GLOBAL_CONSULTING_GROUP_SAS.pdf", artifact.Filename)

	// Voucher precedes proof in the merged payload regardless of the
	// batch input order.
	require.Equal(t, "voucherproof", string(artifact.Payload))

	batch, err := batches.GetByID(ctx, batchID)
	require.NoError(t, err)
	require.Equal(t, models.BatchStateConsolidated, batch.State)
	require.Equal(t, artifact.ID, *batch.ArtifactID)
	require.False(t, batch.NeedsRegeneration)

	for _, id := range []uuid.UUID{voucher.ID, proof.ID} {
		doc, err := docs.GetByID(ctx, id)
		require.NoError(t, err)
		require.Equal(t, models.StateConsolidated, doc.State)
	}
}

func TestGenerateFallbackNameWithoutVoucher(t *testing.T) {
	svc, docs, batches, artifacts := newConsolidationFixture(t)
	ctx := context.Background()

	// Pre-existing artifact advances the sequence.
	require.NoError(t, artifacts.Create(ctx, &models.ConsolidatedArtifact{
		ID: uuid.New(), BatchID: uuid.New(), Filename: "previous.pdf",
	}))

	batchID := uuid.New()
	invoice := batchedDoc(models.DocumentTypeInvoice, "f", batchID)
	proof := batchedDoc(models.DocumentTypePaymentProof, "s", batchID)
	require.NoError(t, docs.Create(ctx, invoice))
	require.NoError(t, docs.Create(ctx, proof))
	require.NoError(t, batches.Create(ctx, &models.Batch{
		ID:          batchID,
		State:       models.BatchStateBuilding,
		DocumentIDs: []uuid.UUID{invoice.ID, proof.ID},
	}))

	artifact, err := svc.Generate(ctx, batchID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("Documentos_Consolidados_%d-0002.pdf", time.Now().Year()), artifact.Filename)
}

func TestGenerateRejectsAlreadyConsolidated(t *testing.T) {
	svc, docs, batches, _ := newConsolidationFixture(t)
	ctx := context.Background()
	batchID := uuid.New()

	doc := batchedDoc(models.DocumentTypeInvoice, "f", batchID)
	require.NoError(t, docs.Create(ctx, doc))
	require.NoError(t, batches.Create(ctx, &models.Batch{
		ID:          batchID,
		State:       models.BatchStateBuilding,
		DocumentIDs: []uuid.UUID{doc.ID},
	}))

	_, err := svc.Generate(ctx, batchID, uuid.New())
	require.NoError(t, err)

	_, err = svc.Generate(ctx, batchID, uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestRegenerateReplacesArtifact(t *testing.T) {
	svc, docs, batches, artifacts := newConsolidationFixture(t)
	ctx := context.Background()
	batchID := uuid.New()

	doc := batchedDoc(models.DocumentTypeInvoice, "original", batchID)
	require.NoError(t, docs.Create(ctx, doc))
	require.NoError(t, batches.Create(ctx, &models.Batch{
		ID:          batchID,
		State:       models.BatchStateBuilding,
		DocumentIDs: []uuid.UUID{doc.ID},
	}))

	first, err := svc.Generate(ctx, batchID, uuid.New())
	require.NoError(t, err)

	// Simulate a replaced member flagging the batch.
	batch, err := batches.GetByID(ctx, batchID)
	require.NoError(t, err)
	batch.NeedsRegeneration = true
	require.NoError(t, batches.Update(ctx, batch))

	updated, err := docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	updated.RawBytes = []byte("replacement")
	require.NoError(t, docs.Update(ctx, updated))

	second, err := svc.Regenerate(ctx, batchID, uuid.New())
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, "replacement", string(second.Payload))

	// Old artifact is gone; batch points at the new one.
	_, err = artifacts.GetByID(ctx, first.ID)
	require.Error(t, err)

	batch, err = batches.GetByID(ctx, batchID)
	require.NoError(t, err)
	require.Equal(t, second.ID, *batch.ArtifactID)
	require.False(t, batch.NeedsRegeneration)
}

func TestRegenerateKeepsFallbackSequence(t *testing.T) {
	svc, docs, batches, _ := newConsolidationFixture(t)
	ctx := context.Background()
	batchID := uuid.New()

	doc := batchedDoc(models.DocumentTypeInvoice, "f", batchID)
	require.NoError(t, docs.Create(ctx, doc))
	require.NoError(t, batches.Create(ctx, &models.Batch{
		ID:          batchID,
		State:       models.BatchStateBuilding,
		DocumentIDs: []uuid.UUID{doc.ID},
	}))

	first, err := svc.Generate(ctx, batchID, uuid.New())
	require.NoError(t, err)
	wantName := fmt.Sprintf("Documentos_Consolidados_%d-0001.pdf", time.Now().Year())
	require.Equal(t, wantName, first.Filename)

	batch, err := batches.GetByID(ctx, batchID)
	require.NoError(t, err)
	batch.NeedsRegeneration = true
	require.NoError(t, batches.Update(ctx, batch))

	// The predecessor is deleted before naming, so the sequence
	// does not skip a number.
	second, err := svc.Regenerate(ctx, batchID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, wantName, second.Filename)
}

func TestRegenerateRequiresConsolidatedBatch(t *testing.T) {
	svc, docs, batches, _ := newConsolidationFixture(t)
	ctx := context.Background()
	batchID := uuid.New()

	doc := batchedDoc(models.DocumentTypeInvoice, "f", batchID)
	require.NoError(t, docs.Create(ctx, doc))
	require.NoError(t, batches.Create(ctx, &models.Batch{
		ID:          batchID,
		State:       models.BatchStateBuilding,
		DocumentIDs: []uuid.UUID{doc.ID},
	}))

	_, err := svc.Regenerate(ctx, batchID, uuid.New())
	require.True(t, apperrors.Is(err, apperrors.KindConflict))
}

func TestGenerateConvertsImagesToPDF(t *testing.T) {
	svc, docs, batches, _ := newConsolidationFixture(t)
	ctx := context.Background()
	batchID := uuid.New()

	image := batchedDoc(models.DocumentTypePaymentProof, "imgdata", batchID)
	image.MimeType = "image/png"
	require.NoError(t, docs.Create(ctx, image))
	require.NoError(t, batches.Create(ctx, &models.Batch{
		ID:          batchID,
		State:       models.BatchStateBuilding,
		DocumentIDs: []uuid.UUID{image.ID},
	}))

	artifact, err := svc.Generate(ctx, batchID, uuid.New())
	require.NoError(t, err)
	require.Equal(t, "pdf:imgdata", string(artifact.Payload))
}
