package driven

import (
	"context"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// DocumentAPI is the typed façade over the remote tax-authority API.
type DocumentAPI interface {
	// Search returns one page of document summaries.
	// The caller decides whether query.Window is set on continuation pages.
	Search(ctx context.Context, query domain.SearchQuery) (*domain.SearchPage, error)

	// FetchDetail returns enrichment data for one document.
	// Fails with domain.ErrNotFound or a *domain.TransportError.
	FetchDetail(ctx context.Context, uuid string) (*domain.DocumentDetail, error)
}
