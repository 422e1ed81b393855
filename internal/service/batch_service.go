package service

import (
	"context"
	"fmt"
	"time"

	"docflow/internal/apperrors"
	"docflow/internal/models"
	"docflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BatchService maintains batch membership. It is the only writer of
// Document.BatchID, so the pair of records stays consistent.
type BatchService struct {
	documents DocumentStore
	batches   BatchStore
	logger    *zap.Logger
}

func NewBatchService(documents DocumentStore, batches BatchStore, logger *zap.Logger) *BatchService {
	return &BatchService{documents: documents, batches: batches, logger: logger}
}

// Create builds a batch from extracted, unbatched documents. Duplicate
// ids are collapsed; input order is preserved.
func (s *BatchService) Create(ctx context.Context, documentIDs []uuid.UUID, createdBy uuid.UUID) (*models.Batch, error) {
	ids := dedupeIDs(documentIDs)
	if len(ids) == 0 {
		return nil, apperrors.Validation("batch needs at least one document", nil)
	}

	docs, err := s.loadMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		if err := s.eligible(doc); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	batch := &models.Batch{
		ID:          uuid.New(),
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
		State:       models.BatchStateBuilding,
		DocumentIDs: ids,
	}
	if err := s.batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	for i, doc := range docs {
		doc.BatchID = &batch.ID
		if err := s.documents.Update(ctx, doc); err != nil {
			// Partial membership write. Keep the batch consistent with
			// what actually got linked and surface the failure.
			batch.DocumentIDs = ids[:i]
			if uerr := s.batches.Update(ctx, batch); uerr != nil {
				s.logger.Error("failed to shrink batch after partial link",
					zap.String("batch_id", batch.ID.String()),
					zap.Error(uerr),
				)
			}
			return nil, fmt.Errorf("failed to link document %s to batch: %w", doc.ID, err)
		}
	}

	s.logger.Info("batch created",
		zap.String("batch_id", batch.ID.String()),
		zap.Int("documents", len(ids)),
	)
	return batch, nil
}

// AddMember appends one extracted, unbatched document to a building
// batch. Adding to a consolidated batch flags it for regeneration.
func (s *BatchService) AddMember(ctx context.Context, batchID, documentID uuid.UUID) (*models.Batch, error) {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	for _, id := range batch.DocumentIDs {
		if id == documentID {
			return nil, apperrors.Conflict("document is already in the batch")
		}
	}

	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.eligible(doc); err != nil {
		return nil, err
	}

	batch.DocumentIDs = append(batch.DocumentIDs, documentID)
	if batch.State == models.BatchStateConsolidated {
		batch.NeedsRegeneration = true
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to update batch: %w", err)
	}

	doc.BatchID = &batch.ID
	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to link document to batch: %w", err)
	}
	return batch, nil
}

// RemoveMember takes one document out of a batch and returns it to the
// extracted pool. The last member cannot be removed; delete the batch
// case is not supported, consolidated history must stay traceable.
func (s *BatchService) RemoveMember(ctx context.Context, batchID, documentID uuid.UUID) (*models.Batch, error) {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, id := range batch.DocumentIDs {
		if id == documentID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil, apperrors.NotFound("document is not in the batch")
	}
	if len(batch.DocumentIDs) == 1 {
		return nil, apperrors.Conflict("cannot remove the last document from a batch")
	}

	doc, err := s.getDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	batch.DocumentIDs = append(batch.DocumentIDs[:idx], batch.DocumentIDs[idx+1:]...)
	if batch.State == models.BatchStateConsolidated {
		batch.NeedsRegeneration = true
	}
	if err := s.batches.Update(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to update batch: %w", err)
	}

	doc.BatchID = nil
	if doc.State == models.StateConsolidated {
		doc.State = models.StateExtracted
	}
	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to unlink document from batch: %w", err)
	}
	return batch, nil
}

func (s *BatchService) Get(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	return s.getBatch(ctx, id)
}

func (s *BatchService) List(ctx context.Context) ([]*models.Batch, error) {
	batches, err := s.batches.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

func (s *BatchService) eligible(doc *models.Document) error {
	if doc.State != models.StateExtracted {
		return apperrors.Conflict(fmt.Sprintf("document %s is in state %q, only extracted documents can be batched", doc.ID, doc.State))
	}
	if doc.BatchID != nil {
		return apperrors.Conflict(fmt.Sprintf("document %s already belongs to a batch", doc.ID))
	}
	return nil
}

func (s *BatchService) loadMembers(ctx context.Context, ids []uuid.UUID) ([]*models.Document, error) {
	docs, err := s.documents.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	if len(docs) != len(ids) {
		return nil, apperrors.NotFound("one or more documents not found")
	}
	return docs, nil
}

func (s *BatchService) getBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	batch, err := s.batches.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("batch not found")
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return batch, nil
}

func (s *BatchService) getDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("document not found")
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
