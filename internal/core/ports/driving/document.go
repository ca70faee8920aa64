package driving

import (
	"context"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// DocumentService provides read access to synced invoices.
type DocumentService interface {
	// Get retrieves a document with its line items.
	Get(ctx context.Context, uuid string) (*domain.Document, error)

	// Count returns the number of synced documents.
	Count(ctx context.Context) (int, error)
}
