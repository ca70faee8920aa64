package driven

import (
	"context"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// DocumentStore persists invoices and their line items.
type DocumentStore interface {
	// UpsertDocument inserts or fully replaces a document and its entire line
	// set in one transaction. A failed upsert leaves the prior state untouched.
	UpsertDocument(ctx context.Context, doc domain.Document) (domain.UpsertOutcome, error)

	// UpsertDocuments writes a bounded batch. Each document is atomic on its own:
	// a failing document is reported in its UpsertResult and does not affect the
	// others. The returned error is non-nil only if the batch as a whole could
	// not run (for example domain.ErrStoreUnavailable).
	UpsertDocuments(ctx context.Context, docs []domain.Document) ([]domain.UpsertResult, error)

	// GetDocument retrieves a document with its lines.
	// Returns domain.ErrNotFound if the uuid is unknown.
	GetDocument(ctx context.Context, uuid string) (*domain.Document, error)

	// CountDocuments returns the number of stored documents.
	CountDocuments(ctx context.Context) (int, error)
}
