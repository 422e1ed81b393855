package service

import (
	"context"
	"fmt"
	"sync"

	"docflow/internal/models"
	"docflow/internal/repository"

	"github.com/google/uuid"
)

// memDocumentStore is an in-memory DocumentStore for tests.
type memDocumentStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*models.Document
	// creation order, so List mimics uploaded_at ASC
	order []uuid.UUID

	failUpdateFor map[uuid.UUID]bool
}

func newMemDocumentStore() *memDocumentStore {
	return &memDocumentStore{
		docs:          make(map[uuid.UUID]*models.Document),
		failUpdateFor: make(map[uuid.UUID]bool),
	}
}

func copyDoc(d *models.Document) *models.Document {
	c := *d
	return &c
}

func (s *memDocumentStore) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = copyDoc(doc)
	s.order = append(s.order, doc.ID)
	return nil
}

func (s *memDocumentStore) GetByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *memDocumentStore) Update(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdateFor[doc.ID] {
		return fmt.Errorf("forced update failure")
	}
	if _, ok := s.docs[doc.ID]; !ok {
		return repository.ErrNotFound
	}
	s.docs[doc.ID] = copyDoc(doc)
	return nil
}

func (s *memDocumentStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.docs, id)
	return nil
}

func (s *memDocumentStore) List(_ context.Context, filters repository.DocumentFilters) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Document
	for _, id := range s.order {
		doc, ok := s.docs[id]
		if !ok {
			continue
		}
		if filters.State != "" && doc.State != filters.State {
			continue
		}
		if filters.Unbatched && doc.BatchID != nil {
			continue
		}
		if filters.BatchID != nil && (doc.BatchID == nil || *doc.BatchID != *filters.BatchID) {
			continue
		}
		if filters.ParentID != nil && (doc.ParentID == nil || *doc.ParentID != *filters.ParentID) {
			continue
		}
		out = append(out, copyDoc(doc))
	}
	return out, nil
}

func (s *memDocumentStore) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Document
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok {
			out = append(out, copyDoc(doc))
		}
	}
	return out, nil
}

func (s *memDocumentStore) CountByState(_ context.Context) (map[models.DocumentState]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[models.DocumentState]int64)
	for _, doc := range s.docs {
		counts[doc.State]++
	}
	return counts, nil
}

// memBatchStore is an in-memory BatchStore.
type memBatchStore struct {
	mu      sync.Mutex
	batches map[uuid.UUID]*models.Batch
	order   []uuid.UUID
}

func newMemBatchStore() *memBatchStore {
	return &memBatchStore{batches: make(map[uuid.UUID]*models.Batch)}
}

func copyBatch(b *models.Batch) *models.Batch {
	c := *b
	c.DocumentIDs = append([]uuid.UUID(nil), b.DocumentIDs...)
	return &c
}

func (s *memBatchStore) Create(_ context.Context, batch *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = copyBatch(batch)
	s.order = append(s.order, batch.ID)
	return nil
}

func (s *memBatchStore) GetByID(_ context.Context, id uuid.UUID) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch, ok := s.batches[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyBatch(batch), nil
}

func (s *memBatchStore) Update(_ context.Context, batch *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batch.ID]; !ok {
		return repository.ErrNotFound
	}
	s.batches[batch.ID] = copyBatch(batch)
	return nil
}

func (s *memBatchStore) List(_ context.Context) ([]*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Batch, 0, len(s.order))
	for _, id := range s.order {
		if b, ok := s.batches[id]; ok {
			out = append(out, copyBatch(b))
		}
	}
	return out, nil
}

func (s *memBatchStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.batches)), nil
}

// memArtifactStore is an in-memory ArtifactStore.
type memArtifactStore struct {
	mu        sync.Mutex
	artifacts map[uuid.UUID]*models.ConsolidatedArtifact
	order     []uuid.UUID
	created   int64
}

func newMemArtifactStore() *memArtifactStore {
	return &memArtifactStore{artifacts: make(map[uuid.UUID]*models.ConsolidatedArtifact)}
}

func (s *memArtifactStore) Create(_ context.Context, artifact *models.ConsolidatedArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *artifact
	s.artifacts[artifact.ID] = &c
	s.order = append(s.order, artifact.ID)
	s.created++
	return nil
}

func (s *memArtifactStore) GetByID(_ context.Context, id uuid.UUID) (*models.ConsolidatedArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	artifact, ok := s.artifacts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *artifact
	return &c, nil
}

func (s *memArtifactStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.artifacts, id)
	return nil
}

func (s *memArtifactStore) List(_ context.Context) ([]*models.ConsolidatedArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.ConsolidatedArtifact, 0, len(s.order))
	for _, id := range s.order {
		if a, ok := s.artifacts[id]; ok {
			c := *a
			out = append(out, &c)
		}
	}
	return out, nil
}

// Count mirrors the SQL repository: it reflects artifacts currently
// stored, so the fallback sequence uses the live count.
func (s *memArtifactStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.artifacts)), nil
}

// fakeExtractor returns canned extraction results keyed by payload
// content.
type fakeExtractor struct {
	mu      sync.Mutex
	results map[string]*ExtractionResult
	errs    map[string]error
	calls   int
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{
		results: make(map[string]*ExtractionResult),
		errs:    make(map[string]error),
	}
}

func (f *fakeExtractor) Extract(_ context.Context, data []byte, _ string, _ bool) (*ExtractionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	key := string(data)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	if result, ok := f.results[key]; ok {
		return result, nil
	}
	return &ExtractionResult{RawText: "sin datos"}, nil
}

// fakePDFOps avoids real PDF parsing in service tests. Page payloads
// are the page markers embedded in the fake multi-page payload.
type fakePDFOps struct {
	pageCounts map[string]int
	pages      map[string][][]byte
	countErr   error
}

func newFakePDFOps() *fakePDFOps {
	return &fakePDFOps{
		pageCounts: make(map[string]int),
		pages:      make(map[string][][]byte),
	}
}

func (f *fakePDFOps) PageCount(data []byte) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	if n, ok := f.pageCounts[string(data)]; ok {
		return n, nil
	}
	return 1, nil
}

func (f *fakePDFOps) SplitToPages(data []byte) ([][]byte, error) {
	if pages, ok := f.pages[string(data)]; ok {
		return pages, nil
	}
	return [][]byte{data}, nil
}

func (f *fakePDFOps) MergePages(pages [][]byte) ([]byte, error) {
	var merged []byte
	for _, p := range pages {
		merged = append(merged, p...)
	}
	return merged, nil
}

func (f *fakePDFOps) ImageToPDFPage(data []byte, _ string) ([]byte, error) {
	return append([]byte("pdf:"), data...), nil
}

// fakeCorrelator returns fixed suggestions or an error.
type fakeCorrelator struct {
	suggestions []models.CorrelationSuggestion
	err         error
	calls       int
}

func (f *fakeCorrelator) Suggest(_ context.Context, _ []models.DocumentProjection) ([]models.CorrelationSuggestion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.suggestions, nil
}

func fieldsFor(docType, amount, counterparty, taxID, docNumber string) *ExtractedFields {
	return &ExtractedFields{
		DocumentType:   flexString(docType),
		Amount:         flexString(amount),
		Counterparty:   flexString(counterparty),
		TaxID:          flexString(taxID),
		DocumentNumber: flexString(docNumber),
		Date:           flexString("2025-03-10"),
	}
}
