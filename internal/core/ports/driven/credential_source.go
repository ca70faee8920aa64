package driven

import (
	"context"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// CredentialSource provides bearer credentials for the remote API.
// Implementations refresh transparently and must be safe for concurrent use.
type CredentialSource interface {
	// GetValidCredential returns a credential that is not about to expire.
	// Fails with *domain.AuthError if no credential can be issued.
	GetValidCredential(ctx context.Context) (domain.Credential, error)

	// Invalidate discards the cached credential so the next call refreshes.
	Invalidate()
}
