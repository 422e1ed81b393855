package service

import (
	"context"

	"docflow/internal/models"
	"docflow/internal/repository"

	"github.com/google/uuid"
)

// Store interfaces consumed by the services. Implemented by the pgx
// repositories; faked in tests.

type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	Update(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filters repository.DocumentFilters) ([]*models.Document, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Document, error)
	CountByState(ctx context.Context) (map[models.DocumentState]int64, error)
}

type BatchStore interface {
	Create(ctx context.Context, batch *models.Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	Update(ctx context.Context, batch *models.Batch) error
	List(ctx context.Context) ([]*models.Batch, error)
	Count(ctx context.Context) (int64, error)
}

type ArtifactStore interface {
	Create(ctx context.Context, artifact *models.ConsolidatedArtifact) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConsolidatedArtifact, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*models.ConsolidatedArtifact, error)
	Count(ctx context.Context) (int64, error)
}

type AuditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListRecent(ctx context.Context, limit int) ([]*models.AuditLog, error)
}

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context) ([]*models.User, error)
}
