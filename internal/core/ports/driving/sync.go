package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// SyncOrchestrator drives one incremental sync cycle at a time.
type SyncOrchestrator interface {
	// Run executes one complete sync cycle.
	// The report is non-nil whenever the cycle got past reading the cursor.
	Run(ctx context.Context) (*domain.SyncReport, error)

	// Status returns progress of the cycle in flight, if any.
	Status() SyncStatus

	// Cursor returns the persisted watermark.
	Cursor(ctx context.Context) (time.Time, error)

	// ResetCursor rewinds or moves the watermark unconditionally.
	ResetCursor(ctx context.Context, ts time.Time) error
}

// SyncStatus represents the current state of a sync cycle.
type SyncStatus struct {
	// RunID identifies the cycle in flight.
	RunID string

	// Running indicates if a cycle is currently in progress.
	Running bool

	// Phase is the state machine position of the cycle.
	Phase domain.SyncPhase

	// Page is the 1-based page being processed.
	Page int

	// DocumentsProcessed is the count of documents persisted so far.
	DocumentsProcessed int

	// ErrorCount is the number of per-document errors encountered.
	ErrorCount int
}
