package service

import (
	"context"
	"fmt"
	"time"

	"docflow/internal/apperrors"
	"docflow/internal/models"
	"docflow/internal/pdf"
	"docflow/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SplitterService decomposes a multipage PDF into one document per
// usable page. Each page is classified by the AI; pages it rejects
// (blank pages, separators, cover sheets) are discarded.
type SplitterService struct {
	documents DocumentStore
	extractor Extractor
	pdfOps    pdf.Ops
	cfg       config.ExtractionConfig
	logger    *zap.Logger
}

func NewSplitterService(
	documents DocumentStore,
	extractor Extractor,
	pdfOps pdf.Ops,
	cfg config.ExtractionConfig,
	logger *zap.Logger,
) *SplitterService {
	return &SplitterService{
		documents: documents,
		extractor: extractor,
		pdfOps:    pdfOps,
		cfg:       cfg,
		logger:    logger,
	}
}

type pageResult struct {
	payload []byte
	result  *ExtractionResult
	err     error
}

// Split fans the pages out to the AI with bounded concurrency, keeps
// the pages classified as valid documents, and records the children on
// the parent in original page order. Split children are created
// already extracted.
func (s *SplitterService) Split(ctx context.Context, parent *models.Document) (*models.Document, error) {
	if parent.IsSplitChild() {
		return nil, apperrors.Conflict("split children cannot be split again")
	}
	if len(parent.SplitInto) > 0 {
		return nil, apperrors.Conflict("document has already been split")
	}
	if parent.MimeType != "application/pdf" {
		return nil, apperrors.Validation("only PDF documents can be split", nil)
	}

	pages, err := s.pdfOps.SplitToPages(parent.RawBytes)
	if err != nil {
		return nil, apperrors.Extraction("failed to split PDF into pages", err)
	}
	if len(pages) < 2 {
		return nil, apperrors.Validation("document has a single page, nothing to split", nil)
	}

	results := make([]pageResult, len(pages))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.SplitConcurrency)
	for i, payload := range pages {
		eg.Go(func() error {
			pageCtx, cancel := context.WithTimeout(egCtx, s.cfg.Timeout)
			defer cancel()

			result, err := s.extractor.Extract(pageCtx, payload, "application/pdf", true)
			results[i] = pageResult{payload: payload, result: result, err: err}
			return nil
		})
	}
	// Per-page errors are recorded in results; the group never fails.
	_ = eg.Wait()

	now := time.Now()
	children := make([]uuid.UUID, 0, len(pages))
	discarded := 0

	for i, pr := range results {
		pageNum := i + 1
		if pr.err != nil {
			discarded++
			s.logger.Warn("page classification failed, discarding page",
				zap.String("parent_id", parent.ID.String()),
				zap.Int("page", pageNum),
				zap.Error(pr.err),
			)
			continue
		}
		if !s.keepPage(pr.result) {
			discarded++
			s.logger.Info("page discarded",
				zap.String("parent_id", parent.ID.String()),
				zap.Int("page", pageNum),
				zap.String("description", pr.result.PageDescription),
			)
			continue
		}

		page := pageNum
		child := &models.Document{
			ID:            uuid.New(),
			Filename:      fmt.Sprintf("%s_p%d.pdf", trimPDFExt(parent.Filename), pageNum),
			State:         models.StateExtracted,
			MimeType:      "application/pdf",
			FileSize:      int64(len(pr.payload)),
			RawBytes:      pr.payload,
			UploadedBy:    parent.UploadedBy,
			UploadedAt:    now,
			UpdatedAt:     now,
			ParentID:      &parent.ID,
			PageNumber:    &page,
			RawExtraction: pr.result.Raw,
		}
		ApplyExtractedFields(child, pr.result.Fields, s.logger)

		if err := s.documents.Create(ctx, child); err != nil {
			return nil, fmt.Errorf("failed to store split page %d: %w", pageNum, err)
		}
		children = append(children, child.ID)
	}

	parent.State = models.StateSplit
	parent.SplitInto = children
	if err := s.documents.Update(ctx, parent); err != nil {
		return nil, fmt.Errorf("failed to update parent document: %w", err)
	}

	s.logger.Info("document split",
		zap.String("parent_id", parent.ID.String()),
		zap.Int("pages", len(pages)),
		zap.Int("children", len(children)),
		zap.Int("discarded", discarded),
	)
	return parent, nil
}

// keepPage decides whether a classified page becomes a document: the
// model must call it valid and the page must carry at least a
// counterparty or an amount.
func (s *SplitterService) keepPage(result *ExtractionResult) bool {
	if result == nil || result.Fields == nil || !result.IsValidDocument {
		return false
	}
	return result.Fields.Counterparty.String() != "" || result.Fields.Amount.String() != ""
}

func trimPDFExt(name string) string {
	if len(name) > 4 && (name[len(name)-4:] == ".pdf" || name[len(name)-4:] == ".PDF") {
		return name[:len(name)-4]
	}
	return name
}
