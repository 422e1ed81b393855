package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"docflow/internal/apperrors"
	"docflow/internal/models"
	"docflow/internal/pdf"
	"docflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// typeRank orders document types inside a consolidated PDF: expense
// voucher first, then payable account, payment proof, invoice.
// Documents without a recognized type go last.
func typeRank(t models.DocumentType) int {
	switch t {
	case models.DocumentTypeExpenseVoucher:
		return 0
	case models.DocumentTypePayableAccount:
		return 1
	case models.DocumentTypePaymentProof:
		return 2
	case models.DocumentTypeInvoice:
		return 3
	}
	return 4
}

// CanonicalOrder stable-sorts documents into consolidation order.
// Documents of the same type keep their relative input order.
func CanonicalOrder(docs []*models.Document) []*models.Document {
	ordered := make([]*models.Document, len(docs))
	copy(ordered, docs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return typeRank(ordered[i].Type) < typeRank(ordered[j].Type)
	})
	return ordered
}

// ConsolidationService assembles a batch's documents into a single
// named PDF artifact.
type ConsolidationService struct {
	documents DocumentStore
	batches   BatchStore
	artifacts ArtifactStore
	pdfOps    pdf.Ops
	logger    *zap.Logger
}

func NewConsolidationService(
	documents DocumentStore,
	batches BatchStore,
	artifacts ArtifactStore,
	pdfOps pdf.Ops,
	logger *zap.Logger,
) *ConsolidationService {
	return &ConsolidationService{
		documents: documents,
		batches:   batches,
		artifacts: artifacts,
		pdfOps:    pdfOps,
		logger:    logger,
	}
}

// Generate consolidates the batch into one PDF. Unconvertible members
// are skipped with a log entry; the call fails only when nothing at
// all could be converted. On success every member moves to
// consolidated and the batch closes.
func (s *ConsolidationService) Generate(ctx context.Context, batchID, actor uuid.UUID) (*models.ConsolidatedArtifact, error) {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.State == models.BatchStateConsolidated && !batch.NeedsRegeneration {
		return nil, apperrors.Conflict("batch is already consolidated")
	}
	return s.consolidate(ctx, batch, actor)
}

// Regenerate rebuilds a consolidated batch's artifact, replacing the
// previous one. Intended for batches flagged after a member was
// replaced or removed.
func (s *ConsolidationService) Regenerate(ctx context.Context, batchID, actor uuid.UUID) (*models.ConsolidatedArtifact, error) {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.State != models.BatchStateConsolidated {
		return nil, apperrors.Conflict("batch has not been consolidated yet")
	}
	return s.consolidate(ctx, batch, actor)
}

func (s *ConsolidationService) consolidate(ctx context.Context, batch *models.Batch, actor uuid.UUID) (*models.ConsolidatedArtifact, error) {
	members, err := s.documents.ListByIDs(ctx, batch.DocumentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch documents: %w", err)
	}
	if len(members) == 0 {
		return nil, apperrors.Conflict("batch has no documents")
	}

	ordered := CanonicalOrder(members)

	parts := make([][]byte, 0, len(ordered))
	for _, doc := range ordered {
		part, perr := s.toPDFPart(doc)
		if perr != nil {
			s.logger.Warn("skipping document during consolidation",
				zap.String("batch_id", batch.ID.String()),
				zap.String("document_id", doc.ID.String()),
				zap.Error(perr),
			)
			continue
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return nil, apperrors.Extraction("no document in the batch could be converted to PDF", nil)
	}

	merged, err := s.pdfOps.MergePages(parts)
	if err != nil {
		return nil, apperrors.Extraction("failed to merge batch documents", err)
	}

	// The superseded artifact goes first so the fallback-name
	// sequence never counts it.
	if batch.ArtifactID != nil {
		if derr := s.artifacts.Delete(ctx, *batch.ArtifactID); derr != nil {
			s.logger.Error("failed to delete superseded artifact",
				zap.String("artifact_id", batch.ArtifactID.String()),
				zap.Error(derr),
			)
		}
		batch.ArtifactID = nil
	}

	filename, err := s.artifactName(ctx, members)
	if err != nil {
		return nil, err
	}

	artifact := &models.ConsolidatedArtifact{
		ID:        uuid.New(),
		BatchID:   batch.ID,
		Filename:  filename,
		CreatedBy: actor,
		CreatedAt: time.Now(),
		FileSize:  int64(len(merged)),
		Payload:   merged,
	}
	if err := s.artifacts.Create(ctx, artifact); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	batch.State = models.BatchStateConsolidated
	batch.ArtifactID = &artifact.ID
	batch.NeedsRegeneration = false
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to update batch: %w", err)
	}

	for _, doc := range members {
		if doc.State == models.StateConsolidated {
			continue
		}
		doc.State = models.StateConsolidated
		if uerr := s.documents.Update(ctx, doc); uerr != nil {
			s.logger.Error("failed to mark document consolidated",
				zap.String("document_id", doc.ID.String()),
				zap.Error(uerr),
			)
		}
	}

	s.logger.Info("batch consolidated",
		zap.String("batch_id", batch.ID.String()),
		zap.String("filename", filename),
		zap.Int("documents", len(parts)),
	)
	return artifact, nil
}

func (s *ConsolidationService) toPDFPart(doc *models.Document) ([]byte, error) {
	if doc.MimeType == "application/pdf" {
		return doc.RawBytes, nil
	}
	return s.pdfOps.ImageToPDFPage(doc.RawBytes, doc.MimeType)
}

// artifactName derives the file name from the first expense voucher in
// batch input order carrying both a document number and a
// counterparty. Without one the name falls back to a dated sequence.
func (s *ConsolidationService) artifactName(ctx context.Context, members []*models.Document) (string, error) {
	for _, doc := range members {
		if doc.Type != models.DocumentTypeExpenseVoucher {
			continue
		}
		if doc.DocumentNumber == nil || doc.Counterparty == nil {
			continue
		}
		num := SanitizeFilenamePart(*doc.DocumentNumber)
		name := SanitizeFilenamePart(*doc.Counterparty)
		return fmt.Sprintf("%s_%s.pdf", num, name), nil
	}

	count, err := s.artifacts.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to count artifacts: %w", err)
	}
	return fmt.Sprintf("Documentos_Consolidados_%d-%04d.pdf", time.Now().Year(), count+1), nil
}

// SanitizeFilenamePart makes a field safe for use in a file name:
// forbidden characters and whitespace become underscores, runs
// collapse, and an empty result becomes a placeholder.
func SanitizeFilenamePart(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), unicode.IsSpace(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")
	if s == "" {
		return "SIN_NOMBRE"
	}
	return s
}

func (s *ConsolidationService) getBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("batch not found")
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, nil
}

// GetArtifact returns a stored consolidated PDF with its payload.
func (s *ConsolidationService) GetArtifact(ctx context.Context, id uuid.UUID) (*models.ConsolidatedArtifact, error) {
	artifact, err := s.artifacts.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("artifact not found")
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return artifact, nil
}

// ListArtifacts returns artifact metadata without payloads.
func (s *ConsolidationService) ListArtifacts(ctx context.Context) ([]*models.ConsolidatedArtifact, error) {
	artifacts, err := s.artifacts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return artifacts, nil
}
