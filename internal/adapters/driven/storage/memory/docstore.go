package memory

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
// It backs dry runs and tests.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
	}
}

// UpsertDocument stores or fully replaces a document.
func (s *DocumentStore) UpsertDocument(_ context.Context, doc domain.Document) (domain.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsert(doc)
}

// UpsertDocuments stores a batch; each document succeeds or fails alone.
func (s *DocumentStore) UpsertDocuments(ctx context.Context, docs []domain.Document) ([]domain.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]domain.UpsertResult, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome, err := s.upsert(doc)
		results = append(results, domain.UpsertResult{UUID: doc.UUID, Outcome: outcome, Err: err})
	}
	return results, nil
}

// upsert requires the write lock.
func (s *DocumentStore) upsert(doc domain.Document) (domain.UpsertOutcome, error) {
	if doc.UUID == "" {
		return "", fmt.Errorf("%w: %w: document without uuid", domain.ErrPersistence, domain.ErrInvalidInput)
	}

	doc = clone(doc)
	existing, ok := s.documents[doc.UUID]
	switch {
	case !ok:
		s.documents[doc.UUID] = doc
		return domain.UpsertCreated, nil
	case reflect.DeepEqual(existing, doc):
		return domain.UpsertUnchanged, nil
	default:
		s.documents[doc.UUID] = doc
		return domain.UpsertUpdated, nil
	}
}

// GetDocument retrieves a document by uuid.
func (s *DocumentStore) GetDocument(_ context.Context, uuid string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[uuid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc = clone(doc)
	return &doc, nil
}

// CountDocuments returns the number of stored documents.
func (s *DocumentStore) CountDocuments(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

// clone copies the slices a caller could mutate after the fact.
func clone(doc domain.Document) domain.Document {
	if doc.Lines != nil {
		lines := make([]domain.LineItem, len(doc.Lines))
		for i, line := range doc.Lines {
			line.Taxes = append([]domain.TaxItem(nil), line.Taxes...)
			lines[i] = line
		}
		doc.Lines = lines
	}
	if doc.TaxTotals != nil {
		doc.TaxTotals = append([]domain.TaxTotal(nil), doc.TaxTotals...)
	}
	return doc
}
