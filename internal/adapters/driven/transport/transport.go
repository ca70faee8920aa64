// Package transport performs authenticated, rate-limited HTTP calls to the
// tax-authority API and applies the retry policy.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
	"github.com/custodia-labs/etasync/internal/logger"
)

const (
	// HeaderRetryAfter is the retry-after header (seconds or HTTP-date).
	HeaderRetryAfter = "Retry-After"

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultInitialBackoff is the first backoff delay; it doubles per retry.
	DefaultInitialBackoff = time.Second

	// DefaultMaxRetryAfter is the longest throttle pause honoured.
	DefaultMaxRetryAfter = 2 * time.Minute

	// maxBodySize bounds how much of a response body is read.
	maxBodySize = 32 << 20

	// logBodySize bounds how much of a failed response body is logged.
	logBodySize = 512
)

// Request is a single call to the remote API.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a successful (2xx) reply with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Options tune the retry policy. Zero values select the defaults;
// a negative MaxRetries disables retries.
type Options struct {
	MaxRetries     int
	InitialBackoff time.Duration

	// MaxRetryAfter caps the pause a throttled response may impose on the
	// shared limiter. A longer request fails the call as rate limited.
	MaxRetryAfter time.Duration

	// Sleep is used for backoff between retries. Defaults to a timer.
	Sleep SleepFunc
}

// Transport sends requests through a shared Limiter with a fresh bearer
// credential on every attempt.
type Transport struct {
	client      *http.Client
	credentials driven.CredentialSource
	limiter     *Limiter

	maxRetries     int
	initialBackoff time.Duration
	maxRetryAfter  time.Duration
	sleep          SleepFunc
}

// New creates a Transport. client carries the per-request timeout.
func New(client *http.Client, credentials driven.CredentialSource, limiter *Limiter, opts Options) *Transport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxRetryAfter <= 0 {
		opts.MaxRetryAfter = DefaultMaxRetryAfter
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	return &Transport{
		client:         client,
		credentials:    credentials,
		limiter:        limiter,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		maxRetryAfter:  opts.MaxRetryAfter,
		sleep:          opts.Sleep,
	}
}

// Get is shorthand for a GET request to url.
func (t *Transport) Get(ctx context.Context, url string) (*Response, error) {
	return t.Do(ctx, &Request{Method: http.MethodGet, URL: url})
}

// Do sends req and returns the 2xx response.
//
// 429 and 503 are retried after Retry-After (or exponential backoff) for
// any method. Network failures and other 5xx are retried only for
// idempotent methods. Other 4xx are returned at once. A 401 drops the
// cached credential and is reported as a *domain.AuthError. A requested
// pause longer than MaxRetryAfter is not waited out.
func (t *Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	attempt := 0
	for {
		attempt++

		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		cred, err := t.credentials.GetValidCredential(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := t.send(ctx, req, cred)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isIdempotent(req.Method) && attempt <= t.maxRetries {
				delay := t.backoff(attempt)
				logger.Warn("request failed, retrying",
					"method", req.Method, "url", req.URL, "attempt", attempt, "delay", delay, "err", err)
				if err := t.sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, t.fail(&domain.TransportError{
				Kind: domain.TransportNetwork, Method: req.Method, URL: req.URL, Attempts: attempt, Err: err,
			})
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		tErr := &domain.TransportError{
			Kind:     classify(resp.StatusCode),
			Status:   resp.StatusCode,
			Method:   req.Method,
			URL:      req.URL,
			Body:     truncate(resp.Body),
			Attempts: attempt,
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			t.credentials.Invalidate()
			t.fail(tErr)
			return nil, &domain.AuthError{Status: resp.StatusCode, Err: tErr}

		case isThrottle(resp.StatusCode):
			if attempt > t.maxRetries {
				return nil, t.fail(tErr)
			}
			delay, ok := parseRetryAfter(resp.Header.Get(HeaderRetryAfter), time.Now())
			if !ok {
				delay = t.backoff(attempt)
			}
			if delay > t.maxRetryAfter {
				logger.Warn("server asked for a pause beyond the limit, giving up",
					"url", req.URL, "status", resp.StatusCode, "delay", delay, "limit", t.maxRetryAfter)
				return nil, t.fail(tErr)
			}
			logger.Warn("server throttled request, retrying",
				"url", req.URL, "status", resp.StatusCode, "attempt", attempt, "delay", delay)
			// Other callers hold back too; this request waits out the pause in limiter.Wait.
			t.limiter.PauseFor(delay)
			continue

		case resp.StatusCode >= 500 && isIdempotent(req.Method) && attempt <= t.maxRetries:
			delay := t.backoff(attempt)
			logger.Warn("server error, retrying",
				"url", req.URL, "status", resp.StatusCode, "attempt", attempt, "delay", delay)
			if err := t.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		return nil, t.fail(tErr)
	}
}

func (t *Transport) send(ctx context.Context, req *Request, cred domain.Credential) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+cred.Token)

	logger.Debug("http request", "method", req.Method, "url", req.URL)

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// backoff returns the delay before retry number attempt (1-based): 1s, 2s, 4s...
func (t *Transport) backoff(attempt int) time.Duration {
	return t.initialBackoff << (attempt - 1)
}

func (t *Transport) fail(err *domain.TransportError) error {
	logger.Error("request failed",
		"method", err.Method,
		"url", err.URL,
		"status", err.Status,
		"kind", string(err.Kind),
		"attempts", err.Attempts,
		"body", err.Body,
		"err", err.Err)
	return err
}

func classify(status int) domain.TransportErrorKind {
	switch {
	case isThrottle(status):
		return domain.TransportRateLimited
	case status >= 500:
		return domain.TransportHTTP5xx
	default:
		return domain.TransportHTTP4xx
	}
}

func isThrottle(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete, http.MethodTrace:
		return true
	}
	return false
}

// parseRetryAfter reads a Retry-After value given as delta-seconds or an HTTP-date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func truncate(body []byte) string {
	if len(body) <= logBodySize {
		return string(body)
	}
	return string(body[:logBodySize]) + "..."
}
