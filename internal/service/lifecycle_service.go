package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docflow/internal/apperrors"
	"docflow/internal/models"
	"docflow/internal/pdf"
	"docflow/internal/repository"
	"docflow/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/jpg":       true,
}

// DocumentOutcome reports what happened to one document during a bulk
// operation.
type DocumentOutcome struct {
	DocumentID uuid.UUID            `json:"documentId"`
	Filename   string               `json:"filename"`
	State      models.DocumentState `json:"state"`
	Error      string               `json:"error,omitempty"`
}

// BulkSummary is returned by AnalyzeAll.
type BulkSummary struct {
	Processed []DocumentOutcome `json:"processed"`
	Remaining int               `json:"remaining"`
}

// LifecycleService moves documents through upload, validation and
// extraction. Splitting of multipage PDFs is delegated to the
// SplitterService.
type LifecycleService struct {
	documents DocumentStore
	batches   BatchStore
	extractor Extractor
	splitter  *SplitterService
	pdfOps    pdf.Ops
	cfg       config.ExtractionConfig
	logger    *zap.Logger
}

func NewLifecycleService(
	documents DocumentStore,
	batches BatchStore,
	extractor Extractor,
	splitter *SplitterService,
	pdfOps pdf.Ops,
	cfg config.ExtractionConfig,
	logger *zap.Logger,
) *LifecycleService {
	return &LifecycleService{
		documents: documents,
		batches:   batches,
		extractor: extractor,
		splitter:  splitter,
		pdfOps:    pdfOps,
		cfg:       cfg,
		logger:    logger,
	}
}

// Upload stores a new document in the intake state. Type is optional;
// extraction fills it in later when the operator left it empty.
func (s *LifecycleService) Upload(ctx context.Context, filename, mimeType string, data []byte, docType string, uploadedBy uuid.UUID) (*models.Document, error) {
	if len(data) == 0 {
		return nil, apperrors.Validation("document payload is empty", nil)
	}
	if !allowedMimeTypes[strings.ToLower(mimeType)] {
		return nil, apperrors.Validation(fmt.Sprintf("unsupported file type %q", mimeType), nil)
	}

	var parsedType models.DocumentType
	if docType != "" {
		t, ok := models.ParseDocumentType(docType)
		if !ok {
			return nil, apperrors.Validation(fmt.Sprintf("unknown document type %q", docType), nil)
		}
		parsedType = t
	}

	now := time.Now()
	doc := &models.Document{
		ID:         uuid.New(),
		Filename:   filename,
		Type:       parsedType,
		State:      models.StateIntake,
		MimeType:   strings.ToLower(mimeType),
		FileSize:   int64(len(data)),
		RawBytes:   data,
		UploadedBy: uploadedBy,
		UploadedAt: now,
		UpdatedAt:  now,
	}

	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	s.logger.Info("document uploaded",
		zap.String("document_id", doc.ID.String()),
		zap.String("filename", filename),
		zap.Int64("size", doc.FileSize),
	)
	return doc, nil
}

// Process pushes a document through validation, splitting and
// extraction in one call. A multipage PDF that has not been split yet
// gets split; everything else goes validate-then-extract.
func (s *LifecycleService) Process(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	if doc.State == models.StateIntake && s.shouldSplit(doc) {
		return s.splitter.Split(ctx, doc)
	}

	if doc.State == models.StateIntake || doc.State == models.StateNeedsReview {
		doc, err = s.Validate(ctx, doc.ID)
		if err != nil {
			return nil, err
		}
		if doc.State != models.StateValidated {
			return doc, nil
		}
	}

	if doc.State == models.StateValidated {
		return s.Extract(ctx, doc.ID)
	}
	return doc, nil
}

// shouldSplit is true for a multipage PDF that is not itself a split
// child and has no children yet.
func (s *LifecycleService) shouldSplit(doc *models.Document) bool {
	if doc.MimeType != "application/pdf" || doc.IsSplitChild() || len(doc.SplitInto) > 0 {
		return false
	}
	count, err := s.pdfOps.PageCount(doc.RawBytes)
	if err != nil {
		return false
	}
	return count > 1
}

// Validate checks that the stored payload is structurally sound.
// Failures land the document in needs_review with the reason recorded;
// the error itself is never propagated to the caller.
func (s *LifecycleService) Validate(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.State != models.StateIntake && doc.State != models.StateNeedsReview {
		return nil, apperrors.Conflict(fmt.Sprintf("document in state %q cannot be validated", doc.State))
	}

	doc.State = models.StateValidating
	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	if verr := s.checkPayload(doc); verr != nil {
		msg := verr.Error()
		doc.State = models.StateNeedsReview
		doc.LastError = &msg
		s.logger.Warn("document failed validation",
			zap.String("document_id", doc.ID.String()),
			zap.String("reason", msg),
		)
	} else {
		doc.State = models.StateValidated
		doc.LastError = nil
	}

	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}
	return doc, nil
}

func (s *LifecycleService) checkPayload(doc *models.Document) error {
	switch doc.MimeType {
	case "application/pdf":
		count, err := s.pdfOps.PageCount(doc.RawBytes)
		if err != nil {
			return fmt.Errorf("unreadable PDF: %w", err)
		}
		if count == 0 {
			return fmt.Errorf("PDF has no pages")
		}
	default:
		if err := pdf.DecodableImage(doc.RawBytes); err != nil {
			return fmt.Errorf("unreadable image: %w", err)
		}
	}
	return nil
}

// Extract runs the AI extraction on a validated document and writes
// the normalized fields back. Unstructured or failed extractions move
// the document to needs_review instead of failing the call.
func (s *LifecycleService) Extract(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.State != models.StateValidated && doc.State != models.StateNeedsReview {
		return nil, apperrors.Conflict(fmt.Sprintf("document in state %q cannot be extracted", doc.State))
	}

	doc.State = models.StateExtracting
	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	result, err := s.extractor.Extract(extractCtx, doc.RawBytes, doc.MimeType, false)
	if err != nil {
		msg := err.Error()
		doc.State = models.StateNeedsReview
		doc.LastError = &msg
		s.logger.Warn("extraction failed",
			zap.String("document_id", doc.ID.String()),
			zap.Error(err),
		)
		if uerr := s.documents.Update(ctx, doc); uerr != nil {
			return nil, fmt.Errorf("failed to update document: %w", uerr)
		}
		return doc, nil
	}

	if result.Fields == nil {
		msg := "extraction returned unstructured response"
		doc.State = models.StateNeedsReview
		doc.LastError = &msg
		doc.RawExtraction = result.Raw
	} else {
		ApplyExtractedFields(doc, result.Fields, s.logger)
		doc.State = models.StateExtracted
		doc.LastError = nil
		doc.RawExtraction = result.Raw
	}

	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	s.logger.Info("document extracted",
		zap.String("document_id", doc.ID.String()),
		zap.String("state", string(doc.State)),
	)
	return doc, nil
}

// ApplyExtractedFields normalizes AI output onto a document. The
// operator-chosen type wins over the model's classification.
func ApplyExtractedFields(doc *models.Document, fields *ExtractedFields, logger *zap.Logger) {
	if doc.Type == "" {
		if t, ok := models.ParseDocumentType(fields.DocumentType.String()); ok {
			doc.Type = t
		}
	}
	if raw := fields.Amount.String(); raw != "" {
		if amount, err := NormalizeAmount(raw); err == nil {
			doc.Amount = &amount
		} else {
			logger.Warn("unparsable amount in extraction",
				zap.String("document_id", doc.ID.String()),
				zap.String("raw", raw),
			)
		}
	}
	if raw := fields.Date.String(); raw != "" {
		date := NormalizeDate(raw)
		doc.Date = &date
	}
	if raw := strings.TrimSpace(fields.Concept.String()); raw != "" {
		doc.Concept = &raw
	}
	if raw := fields.Counterparty.String(); raw != "" {
		cp := NormalizeCounterparty(raw)
		doc.Counterparty = &cp
	}
	if raw := fields.TaxID.String(); raw != "" {
		taxID := NormalizeTaxID(raw)
		doc.TaxID = &taxID
	}
	if raw := strings.TrimSpace(fields.BankReference.String()); raw != "" {
		doc.BankReference = &raw
	}
	if raw := strings.TrimSpace(fields.BankName.String()); raw != "" {
		doc.BankName = &raw
	}
	if raw := strings.TrimSpace(fields.DocumentNumber.String()); raw != "" {
		doc.DocumentNumber = &raw
	}
}

// AnalyzeAll processes a bounded slice of pending documents and
// reports how many remain. Pending means intake or validated and not a
// split parent.
func (s *LifecycleService) AnalyzeAll(ctx context.Context) (*BulkSummary, error) {
	pending, err := s.listPending(ctx)
	if err != nil {
		return nil, err
	}

	batch := pending
	if len(batch) > s.cfg.AnalyzeBatchSize {
		batch = batch[:s.cfg.AnalyzeBatchSize]
	}

	summary := &BulkSummary{
		Processed: make([]DocumentOutcome, 0, len(batch)),
		Remaining: len(pending) - len(batch),
	}

	for _, doc := range batch {
		processed, perr := s.Process(ctx, doc.ID)
		outcome := DocumentOutcome{DocumentID: doc.ID, Filename: doc.Filename}
		if perr != nil {
			outcome.State = doc.State
			outcome.Error = perr.Error()
		} else {
			outcome.State = processed.State
		}
		summary.Processed = append(summary.Processed, outcome)
	}
	return summary, nil
}

func (s *LifecycleService) listPending(ctx context.Context) ([]*models.Document, error) {
	var pending []*models.Document
	for _, state := range []models.DocumentState{models.StateIntake, models.StateValidated} {
		docs, err := s.documents.List(ctx, repository.DocumentFilters{State: state})
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		for _, doc := range docs {
			if len(doc.SplitInto) > 0 {
				continue
			}
			pending = append(pending, doc)
		}
	}
	return pending, nil
}

// Replace swaps the stored payload and resets the document to intake,
// dropping everything extracted from the old bytes. A batched
// document's batch is flagged for regeneration.
func (s *LifecycleService) Replace(ctx context.Context, id uuid.UUID, filename, mimeType string, data []byte) (*models.Document, error) {
	if len(data) == 0 {
		return nil, apperrors.Validation("document payload is empty", nil)
	}
	if !allowedMimeTypes[strings.ToLower(mimeType)] {
		return nil, apperrors.Validation(fmt.Sprintf("unsupported file type %q", mimeType), nil)
	}

	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return nil, err
	}

	doc.Filename = filename
	doc.MimeType = strings.ToLower(mimeType)
	doc.FileSize = int64(len(data))
	doc.RawBytes = data
	doc.State = models.StateIntake
	doc.SplitInto = nil
	doc.ClearExtraction()

	if err := s.documents.Update(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	if doc.BatchID != nil {
		if err := s.flagBatchRegeneration(ctx, *doc.BatchID); err != nil {
			s.logger.Error("failed to flag batch for regeneration",
				zap.String("batch_id", doc.BatchID.String()),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("document replaced",
		zap.String("document_id", doc.ID.String()),
		zap.String("filename", filename),
	)
	return doc, nil
}

func (s *LifecycleService) flagBatchRegeneration(ctx context.Context, batchID uuid.UUID) error {
	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	batch.NeedsRegeneration = true
	return s.batches.Update(ctx, batch)
}

// Delete removes an unbatched document. Batched documents must leave
// their batch first.
func (s *LifecycleService) Delete(ctx context.Context, id uuid.UUID) error {
	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return err
	}
	if doc.BatchID != nil {
		return apperrors.Conflict("document belongs to a batch, remove it from the batch first")
	}

	if err := s.documents.Delete(ctx, id); err != nil {
		if err == repository.ErrNotFound {
			return apperrors.NotFound("document not found")
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}

	s.logger.Info("document deleted", zap.String("document_id", id.String()))
	return nil
}

// Get returns one document with its payload.
func (s *LifecycleService) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return s.getDocument(ctx, id)
}

// List returns documents without payloads, oldest first.
func (s *LifecycleService) List(ctx context.Context, filters repository.DocumentFilters) ([]*models.Document, error) {
	docs, err := s.documents.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

func (s *LifecycleService) getDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.documents.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperrors.NotFound("document not found")
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}
