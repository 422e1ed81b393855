package service

import (
	"context"
	"fmt"

	"docflow/internal/models"
	"docflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Correlator proposes groupings over document projections.
type Correlator interface {
	Suggest(ctx context.Context, docs []models.DocumentProjection) ([]models.CorrelationSuggestion, error)
}

// CorrelationService suggests batches over extracted, unbatched
// documents. The AI correlator runs first; any failure falls back to
// the deterministic heuristic silently (the operator only sees
// suggestions, never which engine produced them beyond the
// correlation_type field).
type CorrelationService struct {
	documents DocumentStore
	primary   Correlator
	fallback  Correlator
	logger    *zap.Logger
}

func NewCorrelationService(documents DocumentStore, primary, fallback Correlator, logger *zap.Logger) *CorrelationService {
	return &CorrelationService{
		documents: documents,
		primary:   primary,
		fallback:  fallback,
		logger:    logger,
	}
}

// SuggestBatches returns proposed groupings of the current extracted
// and unbatched documents. Suggestions are ephemeral; nothing is
// written.
func (s *CorrelationService) SuggestBatches(ctx context.Context) ([]models.CorrelationSuggestion, error) {
	docs, err := s.documents.List(ctx, repository.DocumentFilters{
		State:     models.StateExtracted,
		Unbatched: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) < 2 {
		return []models.CorrelationSuggestion{}, nil
	}

	projections := make([]models.DocumentProjection, 0, len(docs))
	known := make(map[uuid.UUID]bool, len(docs))
	for _, doc := range docs {
		projections = append(projections, models.ProjectDocument(doc))
		known[doc.ID] = true
	}

	suggestions, err := s.primary.Suggest(ctx, projections)
	if err != nil {
		s.logger.Warn("AI correlation failed, using heuristic fallback", zap.Error(err))
		suggestions, err = s.fallback.Suggest(ctx, projections)
		if err != nil {
			return nil, fmt.Errorf("correlation failed: %w", err)
		}
	}

	return enforceExclusivity(suggestions, known), nil
}

// enforceExclusivity drops unknown document ids and keeps each
// document in at most one suggestion (first mention wins). Suggestions
// left with fewer than two members are removed.
func enforceExclusivity(suggestions []models.CorrelationSuggestion, known map[uuid.UUID]bool) []models.CorrelationSuggestion {
	claimed := make(map[uuid.UUID]bool)
	out := make([]models.CorrelationSuggestion, 0, len(suggestions))

	for _, sug := range suggestions {
		members := make([]uuid.UUID, 0, len(sug.DocumentIDs))
		for _, id := range sug.DocumentIDs {
			if !known[id] || claimed[id] {
				continue
			}
			claimed[id] = true
			members = append(members, id)
		}
		if len(members) < 2 {
			for _, id := range members {
				delete(claimed, id)
			}
			continue
		}
		sug.DocumentIDs = members
		out = append(out, sug)
	}
	return out
}
