package service

import (
	"context"
	"fmt"

	"docflow/internal/models"
)

// DashboardStats summarizes the pipeline for the admin dashboard.
type DashboardStats struct {
	DocumentsByState map[models.DocumentState]int64 `json:"documentsByState"`
	TotalDocuments   int64                          `json:"totalDocuments"`
	TotalBatches     int64                          `json:"totalBatches"`
	TotalArtifacts   int64                          `json:"totalArtifacts"`
}

type StatsService struct {
	documents DocumentStore
	batches   BatchStore
	artifacts ArtifactStore
}

func NewStatsService(documents DocumentStore, batches BatchStore, artifacts ArtifactStore) *StatsService {
	return &StatsService{documents: documents, batches: batches, artifacts: artifacts}
}

func (s *StatsService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	byState, err := s.documents.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	var total int64
	for _, n := range byState {
		total += n
	}

	batches, err := s.batches.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count batches: %w", err)
	}
	artifacts, err := s.artifacts.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", err)
	}

	return &DashboardStats{
		DocumentsByState: byState,
		TotalDocuments:   total,
		TotalBatches:     batches,
		TotalArtifacts:   artifacts,
	}, nil
}
