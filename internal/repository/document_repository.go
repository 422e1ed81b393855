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

var ErrNotFound = errors.New("record not found")

// documentColumns excludes raw_bytes; payloads are only read through
// GetByID and ListByIDs.
var documentColumns = []string{
	"id", "filename", "type", "state", "mime_type", "file_size",
	"uploaded_by", "uploaded_at", "updated_at",
	"parent_id", "page_number", "split_into", "batch_id",
	"amount", "date", "concept", "counterparty", "tax_id",
	"bank_reference", "bank_name", "document_number",
	"raw_extraction", "last_error",
}

type DocumentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDocumentRepository(db *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// DocumentFilters narrows List results. Zero values are ignored.
type DocumentFilters struct {
	State     models.DocumentState
	BatchID   *uuid.UUID
	ParentID  *uuid.UUID
	Unbatched bool
}

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	splitInto, err := json.Marshal(doc.SplitInto)
	if err != nil {
		return err
	}

	query := squirrel.Insert("documents").
		Columns("id", "filename", "type", "state", "mime_type", "file_size", "raw_bytes",
			"uploaded_by", "uploaded_at", "updated_at",
			"parent_id", "page_number", "split_into", "batch_id",
			"amount", "date", "concept", "counterparty", "tax_id",
			"bank_reference", "bank_name", "document_number", "raw_extraction", "last_error").
		Values(doc.ID, doc.Filename, doc.Type, doc.State, doc.MimeType, doc.FileSize, doc.RawBytes,
			doc.UploadedBy, doc.UploadedAt, doc.UpdatedAt,
			doc.ParentID, doc.PageNumber, splitInto, doc.BatchID,
			doc.Amount, doc.Date, doc.Concept, doc.Counterparty, doc.TaxID,
			doc.BankReference, doc.BankName, doc.DocumentNumber, doc.RawExtraction, doc.LastError).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	cols := append([]string{}, documentColumns...)
	cols = append(cols, "raw_bytes")
	query := squirrel.Select(cols...).
		From("documents").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx, sql, args...)
	doc, err := scanDocument(row, true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// Update persists every mutable field of the document. raw_bytes is
// written too, so callers replacing payloads use the same path.
func (r *DocumentRepository) Update(ctx context.Context, doc *models.Document) error {
	splitInto, err := json.Marshal(doc.SplitInto)
	if err != nil {
		return err
	}

	query := squirrel.Update("documents").
		Set("filename", doc.Filename).
		Set("type", doc.Type).
		Set("state", doc.State).
		Set("mime_type", doc.MimeType).
		Set("file_size", doc.FileSize).
		Set("raw_bytes", doc.RawBytes).
		Set("updated_at", squirrel.Expr("NOW()")).
		Set("parent_id", doc.ParentID).
		Set("page_number", doc.PageNumber).
		Set("split_into", splitInto).
		Set("batch_id", doc.BatchID).
		Set("amount", doc.Amount).
		Set("date", doc.Date).
		Set("concept", doc.Concept).
		Set("counterparty", doc.Counterparty).
		Set("tax_id", doc.TaxID).
		Set("bank_reference", doc.BankReference).
		Set("bank_name", doc.BankName).
		Set("document_number", doc.DocumentNumber).
		Set("raw_extraction", doc.RawExtraction).
		Set("last_error", doc.LastError).
		Where(squirrel.Eq{"id": doc.ID}).
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

func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := squirrel.Delete("documents").
		Where(squirrel.Eq{"id": id}).
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

func (r *DocumentRepository) List(ctx context.Context, filters DocumentFilters) ([]*models.Document, error) {
	query := squirrel.Select(documentColumns...).
		From("documents").
		OrderBy("uploaded_at ASC").
		PlaceholderFormat(squirrel.Dollar)

	if filters.State != "" {
		query = query.Where(squirrel.Eq{"state": filters.State})
	}
	if filters.BatchID != nil {
		query = query.Where(squirrel.Eq{"batch_id": *filters.BatchID})
	}
	if filters.ParentID != nil {
		query = query.Where(squirrel.Eq{"parent_id": *filters.ParentID})
	}
	if filters.Unbatched {
		query = query.Where(squirrel.Eq{"batch_id": nil})
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows, false)
		if err != nil {
			return nil, err
		}
		documents = append(documents, doc)
	}
	return documents, rows.Err()
}

// ListByIDs returns documents in the order of the given ids, skipping
// missing ones. Payloads are included.
func (r *DocumentRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cols := append([]string{}, documentColumns...)
	cols = append(cols, "raw_bytes")
	query := squirrel.Select(cols...).
		From("documents").
		Where(squirrel.Eq{"id": ids}).
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

	byID := make(map[uuid.UUID]*models.Document, len(ids))
	for rows.Next() {
		doc, err := scanDocument(rows, true)
		if err != nil {
			return nil, err
		}
		byID[doc.ID] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := byID[id]; ok {
			ordered = append(ordered, doc)
		}
	}
	return ordered, nil
}

// CountByState returns document counts grouped by lifecycle state.
func (r *DocumentRepository) CountByState(ctx context.Context) (map[models.DocumentState]int64, error) {
	query := squirrel.Select("state", "COUNT(*)").
		From("documents").
		GroupBy("state").
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

	counts := make(map[models.DocumentState]int64)
	for rows.Next() {
		var state models.DocumentState
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		counts[state] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner, withBytes bool) (*models.Document, error) {
	var doc models.Document
	var splitInto []byte

	dest := []any{
		&doc.ID, &doc.Filename, &doc.Type, &doc.State, &doc.MimeType, &doc.FileSize,
		&doc.UploadedBy, &doc.UploadedAt, &doc.UpdatedAt,
		&doc.ParentID, &doc.PageNumber, &splitInto, &doc.BatchID,
		&doc.Amount, &doc.Date, &doc.Concept, &doc.Counterparty, &doc.TaxID,
		&doc.BankReference, &doc.BankName, &doc.DocumentNumber,
		&doc.RawExtraction, &doc.LastError,
	}
	if withBytes {
		dest = append(dest, &doc.RawBytes)
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if len(splitInto) > 0 {
		if err := json.Unmarshal(splitInto, &doc.SplitInto); err != nil {
			return nil, fmt.Errorf("corrupt split_into for document %s: %w", doc.ID, err)
		}
	}
	return &doc, nil
}
