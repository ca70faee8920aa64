package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
)

// cursorStore implements driven.CursorStore over the single sync_cursor row.
type cursorStore struct {
	store *Store
}

var _ driven.CursorStore = (*cursorStore)(nil)

// GetCursor returns the stored watermark, or now minus the default lookback
// when no cycle has completed yet.
func (s *cursorStore) GetCursor(ctx context.Context) (time.Time, error) {
	var nanos int64
	err := s.store.db.QueryRowContext(ctx, "SELECT last_synced_at FROM sync_cursor WHERE id = 1").Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return s.store.now().Add(-domain.DefaultCursorLookback).UTC(), nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: reading cursor: %w", domain.ErrStoreUnavailable, err)
	}
	return time.Unix(0, nanos).UTC(), nil
}

// SetCursor stores ts unless the stored cursor is already later.
func (s *cursorStore) SetCursor(ctx context.Context, ts time.Time) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_cursor (id, last_synced_at, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at
		WHERE excluded.last_synced_at > sync_cursor.last_synced_at
	`, ts.UnixNano(), formatTime(s.store.now()))
	if err != nil {
		return fmt.Errorf("%w: writing cursor: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// ResetCursor overwrites the cursor, allowing an operator to rewind it.
func (s *cursorStore) ResetCursor(ctx context.Context, ts time.Time) error {
	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_cursor (id, last_synced_at, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at
	`, ts.UnixNano(), formatTime(s.store.now()))
	if err != nil {
		return fmt.Errorf("%w: resetting cursor: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}
