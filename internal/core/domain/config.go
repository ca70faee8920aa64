package domain

import (
	"fmt"
	"net/url"
	"time"
)

// IsValid returns true if the detail source is recognised.
func (s DetailSource) IsValid() bool {
	switch s {
	case DetailSourceDetails, DetailSourceRaw:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s DetailSource) String() string {
	return string(s)
}

// APISettings holds the remote tax-authority endpoints and client credentials.
type APISettings struct {
	// ClientID and ClientSecret are exchanged for a bearer credential.
	ClientID     string
	ClientSecret string

	// IdentityURL is the identity server root; /connect/token is appended.
	IdentityURL string

	// BaseURL is the API root; PathPrefix is inserted before /documents.
	BaseURL    string
	PathPrefix string

	// Timeout bounds every outbound HTTP call.
	Timeout time.Duration

	// DetailSource selects the details or raw endpoint.
	DetailSource DetailSource
}

// RateLimitSettings bounds outbound request rate across all call sites.
type RateLimitSettings struct {
	// Requests is the maximum number of requests dispatched per Interval.
	Requests int

	// Interval is the fixed window the budget applies to.
	Interval time.Duration

	// MaxRetries caps retries of a single request.
	MaxRetries int

	// InitialBackoff is the first retry delay when no Retry-After is supplied.
	InitialBackoff time.Duration

	// MaxRetryAfter is the longest server-requested pause honoured. A longer
	// Retry-After ends the request as rate limited.
	MaxRetryAfter time.Duration
}

// SyncSettings controls the shape of a sync cycle.
type SyncSettings struct {
	PageSize          int
	DetailConcurrency int
	BatchSize         int

	// RepeatWindowOnContinuation sends the date filters on continuation pages too.
	// Some API generations require it, others reject it.
	RepeatWindowOnContinuation bool

	// AdvanceOnPartialFailure advances the cursor even if some documents failed.
	AdvanceOnPartialFailure bool

	// Interval is how often the worker triggers a cycle.
	Interval time.Duration
}

// StorageSettings locates the local database.
type StorageSettings struct {
	// DBPath is the SQLite database file.
	DBPath string
}

// Config is the complete set of values the engine consumes.
type Config struct {
	API       APISettings
	RateLimit RateLimitSettings
	Sync      SyncSettings
	Storage   StorageSettings
}

// DefaultConfig returns settings with sensible defaults.
// Credentials and URLs have no defaults and must be supplied.
func DefaultConfig() Config {
	return Config{
		API: APISettings{
			PathPrefix:   "/api/v1.0",
			Timeout:      30 * time.Second,
			DetailSource: DetailSourceDetails,
		},
		RateLimit: RateLimitSettings{
			Requests:       2,
			Interval:       time.Second,
			MaxRetries:     3,
			InitialBackoff: time.Second,
			MaxRetryAfter:  2 * time.Minute,
		},
		Sync: SyncSettings{
			PageSize:                100,
			DetailConcurrency:       4,
			BatchSize:               50,
			AdvanceOnPartialFailure: true,
			Interval:                time.Hour,
		},
	}
}

// Validate checks that the configuration can drive a sync cycle.
func (c Config) Validate() error {
	if c.API.ClientID == "" || c.API.ClientSecret == "" {
		return fmt.Errorf("%w: client id and secret are required", ErrInvalidConfig)
	}
	if err := validateURL("identity url", c.API.IdentityURL); err != nil {
		return err
	}
	if err := validateURL("api base url", c.API.BaseURL); err != nil {
		return err
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("%w: http timeout must be positive", ErrInvalidConfig)
	}
	if !c.API.DetailSource.IsValid() {
		return fmt.Errorf("%w: unknown detail source %q", ErrInvalidConfig, c.API.DetailSource)
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Interval <= 0 {
		return fmt.Errorf("%w: rate limit must allow at least one request per positive interval", ErrInvalidConfig)
	}
	if c.RateLimit.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	if c.RateLimit.MaxRetryAfter < 0 {
		return fmt.Errorf("%w: max retry-after cannot be negative", ErrInvalidConfig)
	}
	if c.Sync.PageSize <= 0 || c.Sync.BatchSize <= 0 || c.Sync.DetailConcurrency <= 0 {
		return fmt.Errorf("%w: page size, batch size and detail concurrency must be positive", ErrInvalidConfig)
	}
	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, name)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %s %q is not an absolute URL", ErrInvalidConfig, name, raw)
	}
	return nil
}
