package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
	"github.com/custodia-labs/etasync/internal/core/ports/driving"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService provides read access to persisted invoices.
type DocumentService struct {
	docStore driven.DocumentStore
}

// NewDocumentService creates a new document service.
func NewDocumentService(docStore driven.DocumentStore) *DocumentService {
	return &DocumentService{docStore: docStore}
}

// Get retrieves a document with its line items.
func (s *DocumentService) Get(ctx context.Context, uuid string) (*domain.Document, error) {
	uuid = strings.TrimSpace(uuid)
	if uuid == "" {
		return nil, fmt.Errorf("%w: document uuid is required", domain.ErrInvalidInput)
	}
	return s.docStore.GetDocument(ctx, uuid)
}

// Count returns the number of persisted documents.
func (s *DocumentService) Count(ctx context.Context) (int, error) {
	return s.docStore.CountDocuments(ctx)
}
