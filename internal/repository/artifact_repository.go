package repository

import (
	"context"
	"errors"

	"docflow/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type ArtifactRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewArtifactRepository(db *pgxpool.Pool, logger *zap.Logger) *ArtifactRepository {
	return &ArtifactRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ArtifactRepository) Create(ctx context.Context, artifact *models.ConsolidatedArtifact) error {
	query := squirrel.Insert("consolidated_artifacts").
		Columns("id", "batch_id", "filename", "created_by", "created_at", "file_size", "payload").
		Values(artifact.ID, artifact.BatchID, artifact.Filename, artifact.CreatedBy,
			artifact.CreatedAt, artifact.FileSize, artifact.Payload).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *ArtifactRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ConsolidatedArtifact, error) {
	query := squirrel.Select("id", "batch_id", "filename", "created_by", "created_at", "file_size", "payload").
		From("consolidated_artifacts").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var a models.ConsolidatedArtifact
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&a.ID, &a.BatchID, &a.Filename, &a.CreatedBy, &a.CreatedAt, &a.FileSize, &a.Payload,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *ArtifactRepository) Delete(ctx context.Context, id uuid.UUID) error {
	sql, args, err := squirrel.Delete("consolidated_artifacts").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns artifact metadata without payloads.
func (r *ArtifactRepository) List(ctx context.Context) ([]*models.ConsolidatedArtifact, error) {
	query := squirrel.Select("id", "batch_id", "filename", "created_by", "created_at", "file_size").
		From("consolidated_artifacts").
		OrderBy("created_at DESC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*models.ConsolidatedArtifact
	for rows.Next() {
		var a models.ConsolidatedArtifact
		if err := rows.Scan(&a.ID, &a.BatchID, &a.Filename, &a.CreatedBy, &a.CreatedAt, &a.FileSize); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

// Count returns the number of live artifacts; regeneration deletes
// predecessors, so superseded ones are not counted. Feeds the
// fallback-name sequence; concurrent generations may observe the same
// count, which is an accepted weak-consistency hazard.
func (r *ArtifactRepository) Count(ctx context.Context) (int64, error) {
	sql, args, err := squirrel.Select("COUNT(*)").From("consolidated_artifacts").
		PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	err = r.db.QueryRow(ctx, sql, args...).Scan(&count)
	return count, err
}
