package driven

import (
	"context"
	"time"
)

// CursorStore persists the single sync watermark.
type CursorStore interface {
	// GetCursor returns the last fully processed instant.
	// When no cursor exists it returns now minus domain.DefaultCursorLookback.
	GetCursor(ctx context.Context) (time.Time, error)

	// SetCursor advances the cursor. A value earlier than the stored one is ignored.
	SetCursor(ctx context.Context, ts time.Time) error

	// ResetCursor overwrites the cursor unconditionally. Operator use only.
	ResetCursor(ctx context.Context, ts time.Time) error
}
