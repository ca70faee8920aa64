package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// mockCredentials hands out tok-1, tok-2, ... one per call.
type mockCredentials struct {
	calls       int32
	invalidated int32
	err         error
}

func (m *mockCredentials) GetValidCredential(_ context.Context) (domain.Credential, error) {
	if m.err != nil {
		return domain.Credential{}, m.err
	}
	n := atomic.AddInt32(&m.calls, 1)
	return domain.Credential{Token: fmt.Sprintf("tok-%d", n), ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *mockCredentials) Invalidate() {
	atomic.AddInt32(&m.invalidated, 1)
}

// testClock advances on Sleep and records every requested delay.
type testClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *testClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func newTestTransport(t *testing.T, creds *mockCredentials, opts Options) (*Transport, *testClock) {
	t.Helper()
	clock := newTestClock()
	limiter := NewLimiterWithClock(1000, time.Second, clock.Now, clock.Sleep)
	opts.Sleep = clock.Sleep
	return New(&http.Client{Timeout: 5 * time.Second}, creds, limiter, opts), clock
}

// scriptedServer replies with the given statuses in order, then 200.
func scriptedServer(t *testing.T, statuses []int, header http.Header) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(atomic.AddInt32(&hits, 1))
		if n <= len(statuses) {
			for k, vs := range header {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			w.WriteHeader(statuses[n-1])
			fmt.Fprint(w, `{"error":"scripted"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestTransport_InjectsBearerAndAccept(t *testing.T) {
	var gotAuth, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	tr, _ := newTestTransport(t, &mockCredentials{}, Options{})
	resp, err := tr.Get(context.Background(), server.URL+"/documents/search")

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "{}", string(resp.Body))
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "application/json", gotAccept)
}

func TestTransport_RetryAfterSeconds(t *testing.T) {
	server, hits := scriptedServer(t, []int{http.StatusTooManyRequests}, http.Header{"Retry-After": {"2"}})
	creds := &mockCredentials{}
	tr, clock := newTestTransport(t, creds, Options{})

	resp, err := tr.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
	assert.Equal(t, []time.Duration{2 * time.Second}, clock.Sleeps())
	// The retry asked for a credential again.
	assert.Equal(t, int32(2), atomic.LoadInt32(&creds.calls))
}

func TestTransport_RetryAfterBeyondLimitFailsFast(t *testing.T) {
	server, hits := scriptedServer(t, []int{http.StatusTooManyRequests}, http.Header{"Retry-After": {"86400"}})
	tr, clock := newTestTransport(t, &mockCredentials{}, Options{MaxRetryAfter: time.Minute})

	_, err := tr.Get(context.Background(), server.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Empty(t, clock.Sleeps())
	assert.True(t, tr.limiter.PausedUntil().IsZero(), "other callers are not held back")
}

func TestTransport_RetryAfterAtLimitIsHonoured(t *testing.T) {
	server, hits := scriptedServer(t, []int{http.StatusServiceUnavailable}, http.Header{"Retry-After": {"60"}})
	tr, clock := newTestTransport(t, &mockCredentials{}, Options{MaxRetryAfter: time.Minute})

	_, err := tr.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
	assert.Equal(t, []time.Duration{time.Minute}, clock.Sleeps())
}

func TestNew_DefaultMaxRetryAfter(t *testing.T) {
	tr := New(nil, &mockCredentials{}, NewLimiter(1, time.Second), Options{})
	assert.Equal(t, DefaultMaxRetryAfter, tr.maxRetryAfter)
}

func TestTransport_ThrottleExhaustsRetries(t *testing.T) {
	statuses := []int{429, 429, 429, 429, 429}
	server, hits := scriptedServer(t, statuses, nil)
	tr, clock := newTestTransport(t, &mockCredentials{}, Options{})

	_, err := tr.Get(context.Background(), server.URL)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	var tErr *domain.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, domain.TransportRateLimited, tErr.Kind)
	assert.Equal(t, 4, tErr.Attempts)
	assert.Contains(t, tErr.Body, "scripted")
	assert.Equal(t, int32(4), atomic.LoadInt32(hits))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.Sleeps())
}

func TestTransport_ServiceUnavailableRetriedForPost(t *testing.T) {
	server, hits := scriptedServer(t, []int{http.StatusServiceUnavailable}, nil)
	tr, _ := newTestTransport(t, &mockCredentials{}, Options{})

	_, err := tr.Do(context.Background(), &Request{Method: http.MethodPost, URL: server.URL, Body: []byte(`{}`)})

	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestTransport_ServerErrorRetriedForGet(t *testing.T) {
	server, hits := scriptedServer(t, []int{http.StatusInternalServerError, http.StatusBadGateway}, nil)
	tr, clock := newTestTransport(t, &mockCredentials{}, Options{})

	_, err := tr.Get(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(hits))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
}

func TestTransport_ServerErrorNotRetriedForPost(t *testing.T) {
	server, hits := scriptedServer(t, []int{http.StatusInternalServerError}, nil)
	tr, _ := newTestTransport(t, &mockCredentials{}, Options{})

	_, err := tr.Do(context.Background(), &Request{Method: http.MethodPost, URL: server.URL})

	assert.True(t, domain.IsTransportKind(err, domain.TransportHTTP5xx))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestTransport_ClientErrorNotRetried(t *testing.T) {
	server, hits := scriptedServer(t, []int{http.StatusBadRequest}, nil)
	tr, clock := newTestTransport(t, &mockCredentials{}, Options{})

	_, err := tr.Get(context.Background(), server.URL)

	var tErr *domain.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, domain.TransportHTTP4xx, tErr.Kind)
	assert.Equal(t, http.StatusBadRequest, tErr.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
	assert.Empty(t, clock.Sleeps())
}

func TestTransport_NotFound(t *testing.T) {
	server, _ := scriptedServer(t, []int{http.StatusNotFound}, nil)
	tr, _ := newTestTransport(t, &mockCredentials{}, Options{})

	_, err := tr.Get(context.Background(), server.URL)

	assert.True(t, domain.IsNotFound(err))
}

func TestTransport_UnauthorizedInvalidatesCredential(t *testing.T) {
	server, hits := scriptedServer(t, []int{http.StatusUnauthorized}, nil)
	creds := &mockCredentials{}
	tr, _ := newTestTransport(t, creds, Options{})

	_, err := tr.Get(context.Background(), server.URL)

	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&creds.invalidated))
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestTransport_CredentialFailureStopsRequest(t *testing.T) {
	server, hits := scriptedServer(t, nil, nil)
	creds := &mockCredentials{err: &domain.AuthError{Err: errors.New("identity down")}}
	tr, _ := newTestTransport(t, creds, Options{})

	_, err := tr.Get(context.Background(), server.URL)

	assert.ErrorIs(t, err, domain.ErrTokenRefreshFailed)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}

func TestTransport_NetworkErrorRetriedThenFails(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	tr, clock := newTestTransport(t, &mockCredentials{}, Options{})
	_, err := tr.Get(context.Background(), url)

	var tErr *domain.TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, domain.TransportNetwork, tErr.Kind)
	assert.Equal(t, 4, tErr.Attempts)
	assert.Len(t, clock.Sleeps(), 3)
}

func TestTransport_TimeoutIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	clock := newTestClock()
	limiter := NewLimiterWithClock(1000, time.Second, clock.Now, clock.Sleep)
	tr := New(&http.Client{Timeout: 20 * time.Millisecond}, &mockCredentials{}, limiter,
		Options{MaxRetries: -1, Sleep: clock.Sleep})

	_, err := tr.Get(context.Background(), server.URL)

	assert.True(t, domain.IsTransportKind(err, domain.TransportNetwork))
}

func TestTransport_ContextCancelled(t *testing.T) {
	server, _ := scriptedServer(t, nil, nil)
	tr, _ := newTestTransport(t, &mockCredentials{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Get(ctx, server.URL)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value string
		want  time.Duration
		ok    bool
	}{
		{name: "empty", value: "", ok: false},
		{name: "seconds", value: "2", want: 2 * time.Second, ok: true},
		{name: "zero", value: "0", want: 0, ok: true},
		{name: "negative", value: "-5", ok: false},
		{name: "http date", value: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second, ok: true},
		{name: "past date", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0, ok: true},
		{name: "garbage", value: "soon", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tt.value, now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
