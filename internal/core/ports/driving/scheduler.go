package driving

import (
	"context"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// Scheduler triggers sync cycles on an interval and records their outcome.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler, waiting for a cycle in flight.
	Stop() error

	// RunNow executes the sync task immediately and records its result.
	// Fails with domain.ErrSyncInProgress if a cycle is already running.
	RunNow(ctx context.Context) (*domain.SyncReport, error)

	// History returns recent task results, most recent first.
	History(ctx context.Context, limit int) ([]domain.TaskResult, error)
}
