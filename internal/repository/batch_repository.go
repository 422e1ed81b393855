package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"docflow/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type BatchRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewBatchRepository(db *pgxpool.Pool, logger *zap.Logger) *BatchRepository {
	return &BatchRepository{
		db:     db,
		logger: logger,
	}
}

var batchColumns = []string{
	"id", "created_by", "created_at", "updated_at", "state",
	"document_ids", "artifact_id", "needs_regeneration",
}

func (r *BatchRepository) Create(ctx context.Context, batch *models.Batch) error {
	docIDs, err := json.Marshal(batch.DocumentIDs)
	if err != nil {
		return err
	}

	query := squirrel.Insert("batches").
		Columns(batchColumns...).
		Values(batch.ID, batch.CreatedBy, batch.CreatedAt, batch.UpdatedAt, batch.State,
			docIDs, batch.ArtifactID, batch.NeedsRegeneration).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *BatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	query := squirrel.Select(batchColumns...).
		From("batches").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	batch, err := scanBatch(r.db.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return batch, nil
}

func (r *BatchRepository) Update(ctx context.Context, batch *models.Batch) error {
	docIDs, err := json.Marshal(batch.DocumentIDs)
	if err != nil {
		return err
	}

	query := squirrel.Update("batches").
		Set("updated_at", squirrel.Expr("NOW()")).
		Set("state", batch.State).
		Set("document_ids", docIDs).
		Set("artifact_id", batch.ArtifactID).
		Set("needs_regeneration", batch.NeedsRegeneration).
		Where(squirrel.Eq{"id": batch.ID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
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

func (r *BatchRepository) List(ctx context.Context) ([]*models.Batch, error) {
	query := squirrel.Select(batchColumns...).
		From("batches").
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

	var batches []*models.Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

func (r *BatchRepository) Count(ctx context.Context) (int64, error) {
	sql, args, err := squirrel.Select("COUNT(*)").From("batches").
		PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return 0, err
	}

	var count int64
	err = r.db.QueryRow(ctx, sql, args...).Scan(&count)
	return count, err
}

func scanBatch(row rowScanner) (*models.Batch, error) {
	var batch models.Batch
	var docIDs []byte

	if err := row.Scan(
		&batch.ID, &batch.CreatedBy, &batch.CreatedAt, &batch.UpdatedAt, &batch.State,
		&docIDs, &batch.ArtifactID, &batch.NeedsRegeneration,
	); err != nil {
		return nil, err
	}

	if len(docIDs) > 0 {
		if err := json.Unmarshal(docIDs, &batch.DocumentIDs); err != nil {
			return nil, fmt.Errorf("corrupt document_ids for batch %s: %w", batch.ID, err)
		}
	}
	return &batch, nil
}
