package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter admits at most Requests calls in any window of Interval.
// One Limiter is shared by every call site of a process.
//
// The token bucket spaces admissions Interval/Requests apart. Because a
// waiter can return from the bucket late, the limiter also keeps the times
// of the last Requests admissions and holds the next caller until the
// oldest of them is a full Interval old. Admissions are serialized.
type Limiter struct {
	bucket   *rate.Limiter
	interval time.Duration

	now   func() time.Time
	sleep SleepFunc

	// turn serializes the admission step; a buffered channel so that
	// waiting for it honours ctx.
	turn   chan struct{}
	recent []time.Time // ring of the last len(recent) admissions
	next   int

	// admitted, when set, observes each dispatch time.
	admitted func(time.Time)

	mu          sync.Mutex
	pausedUntil time.Time
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// NewLimiter creates a limiter for requests per interval.
func NewLimiter(requests int, interval time.Duration) *Limiter {
	return NewLimiterWithClock(requests, interval, time.Now, Sleep)
}

// NewLimiterWithClock creates a limiter whose window and pauses use the
// given clock.
func NewLimiterWithClock(requests int, interval time.Duration, now func() time.Time, sleep SleepFunc) *Limiter {
	if requests <= 0 {
		requests = 1
	}
	if interval < 0 {
		interval = 0
	}
	spacing := interval / time.Duration(requests)
	return &Limiter{
		bucket:   rate.NewLimiter(rate.Every(spacing), 1),
		interval: interval,
		now:      now,
		sleep:    sleep,
		turn:     make(chan struct{}, 1),
		recent:   make([]time.Time, requests),
	}
}

// Wait blocks until a request may be dispatched.
// It also honours any pause set by PauseFor.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	pausedUntil := l.pausedUntil
	l.mu.Unlock()

	if d := pausedUntil.Sub(l.now()); d > 0 {
		if err := l.sleep(ctx, d); err != nil {
			return err
		}
	}
	if err := l.bucket.Wait(ctx); err != nil {
		return err
	}
	return l.admit(ctx)
}

// admit records the dispatch time, first waiting out the window of the
// admission Requests places back.
func (l *Limiter) admit(ctx context.Context) error {
	select {
	case l.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.turn }()

	now := l.now()
	if oldest := l.recent[l.next]; !oldest.IsZero() {
		if d := oldest.Add(l.interval).Sub(now); d > 0 {
			if err := l.sleep(ctx, d); err != nil {
				return err
			}
			now = l.now()
		}
	}

	l.recent[l.next] = now
	l.next = (l.next + 1) % len(l.recent)
	if l.admitted != nil {
		l.admitted(now)
	}
	return nil
}

// PauseFor holds back every caller for d.
// Called when the server asks clients to slow down.
func (l *Limiter) PauseFor(d time.Duration) {
	if d <= 0 {
		return
	}
	until := l.now().Add(d)

	l.mu.Lock()
	defer l.mu.Unlock()
	if until.After(l.pausedUntil) {
		l.pausedUntil = until
	}
}

// PausedUntil returns the end of the current pause, zero if none was set.
func (l *Limiter) PausedUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pausedUntil
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
