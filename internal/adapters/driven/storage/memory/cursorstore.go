package memory

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
)

// Ensure CursorStore implements the interface.
var _ driven.CursorStore = (*CursorStore)(nil)

// CursorStore is an in-memory implementation of driven.CursorStore.
type CursorStore struct {
	mu     sync.RWMutex
	cursor time.Time
	now    func() time.Time
}

// NewCursorStore creates a cursor store with no cursor set.
func NewCursorStore() *CursorStore {
	return &CursorStore{now: time.Now}
}

// NewCursorStoreAt creates a cursor store already holding ts.
func NewCursorStoreAt(ts time.Time) *CursorStore {
	return &CursorStore{cursor: ts, now: time.Now}
}

// GetCursor returns the cursor, or now minus the default lookback if unset.
func (s *CursorStore) GetCursor(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cursor.IsZero() {
		return s.now().Add(-domain.DefaultCursorLookback).UTC(), nil
	}
	return s.cursor, nil
}

// SetCursor stores ts unless the current cursor is later.
func (s *CursorStore) SetCursor(_ context.Context, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ts.After(s.cursor) {
		s.cursor = ts
	}
	return nil
}

// ResetCursor overwrites the cursor.
func (s *CursorStore) ResetCursor(_ context.Context, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = ts
	return nil
}
