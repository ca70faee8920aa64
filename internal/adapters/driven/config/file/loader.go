package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// appName names the XDG subdirectories.
const appName = "etasync"

// Environment variables read by the loader. They override the file.
const (
	EnvClientID          = "ETA_CLIENT_ID"
	EnvClientSecret      = "ETA_CLIENT_SECRET"
	EnvIdentityURL       = "ETA_IDENTITY_SERVER_URL"
	EnvBaseURL           = "ETA_API_BASE_URL"
	EnvPathPrefix        = "ETA_API_PREFIX"
	EnvDBPath            = "ETASYNC_DB_PATH"
	EnvPageSize          = "ETASYNC_PAGE_SIZE"
	EnvRateLimitRequests = "ETASYNC_RATE_LIMIT_REQUESTS"
	EnvRateLimitInterval = "ETASYNC_RATE_LIMIT_INTERVAL"
	EnvMaxRetries        = "ETASYNC_MAX_RETRIES"
	EnvMaxRetryAfter     = "ETASYNC_MAX_RETRY_AFTER"
	EnvHTTPTimeout       = "ETASYNC_HTTP_TIMEOUT"
	EnvDetailConcurrency = "ETASYNC_DETAIL_CONCURRENCY"
	EnvBatchSize         = "ETASYNC_BATCH_SIZE"
	EnvDetailSource      = "ETASYNC_DETAIL_SOURCE"
	EnvRepeatWindow      = "ETASYNC_REPEAT_WINDOW"
	EnvAdvanceOnPartial  = "ETASYNC_ADVANCE_ON_PARTIAL_FAILURE"
	EnvSyncInterval      = "ETASYNC_SYNC_INTERVAL"
)

// DefaultConfigPath returns $XDG_CONFIG_HOME/etasync/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// DefaultDBPath returns $XDG_DATA_HOME/etasync/invoices.db.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, appName, "invoices.db")
}

// Loader builds a domain.Config from, in increasing precedence: defaults,
// the TOML file, a .env file, and the process environment.
type Loader struct {
	path    string
	envFile string
	lookup  func(string) (string, bool)
}

// NewLoader creates a loader for the TOML file at path.
// If path is empty, DefaultConfigPath is used.
func NewLoader(path string) *Loader {
	if path == "" {
		path = DefaultConfigPath()
	}
	return &Loader{
		path:    path,
		envFile: ".env",
		lookup:  os.LookupEnv,
	}
}

// WithEnvFile sets the .env file to read. An empty name disables it.
func (l *Loader) WithEnvFile(name string) *Loader {
	l.envFile = name
	return l
}

// WithLookup replaces the process environment lookup.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookup = lookup
	return l
}

// Path returns the configuration file path.
func (l *Loader) Path() string {
	return l.path
}

// Load assembles the configuration. It does not validate it; callers that
// need credentials call Config.Validate.
func (l *Loader) Load() (domain.Config, error) {
	fc := fromDomain(domain.DefaultConfig())
	fc.Storage.DBPath = DefaultDBPath()

	data, err := os.ReadFile(l.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// No config file yet; defaults and environment only.
	case err != nil:
		return domain.Config{}, fmt.Errorf("reading config %s: %w", l.path, err)
	default:
		if err := toml.Unmarshal(data, &fc); err != nil {
			return domain.Config{}, fmt.Errorf("%w: parsing %s: %w", domain.ErrInvalidConfig, l.path, err)
		}
	}

	dotenv := map[string]string{}
	if l.envFile != "" {
		dotenv, err = godotenv.Read(l.envFile)
		if errors.Is(err, fs.ErrNotExist) {
			dotenv = map[string]string{}
		} else if err != nil {
			return domain.Config{}, fmt.Errorf("reading %s: %w", l.envFile, err)
		}
	}

	env := &envReader{lookup: l.lookup, dotenv: dotenv}
	env.setString(EnvClientID, &fc.API.ClientID)
	env.setString(EnvClientSecret, &fc.API.ClientSecret)
	env.setString(EnvIdentityURL, &fc.API.IdentityURL)
	env.setString(EnvBaseURL, &fc.API.BaseURL)
	env.setString(EnvPathPrefix, &fc.API.PathPrefix)
	env.setDuration(EnvHTTPTimeout, &fc.API.Timeout)
	env.setString(EnvDetailSource, &fc.API.DetailSource)
	env.setInt(EnvRateLimitRequests, &fc.RateLimit.Requests)
	env.setDuration(EnvRateLimitInterval, &fc.RateLimit.Interval)
	env.setInt(EnvMaxRetries, &fc.RateLimit.MaxRetries)
	env.setDuration(EnvMaxRetryAfter, &fc.RateLimit.MaxRetryAfter)
	env.setInt(EnvPageSize, &fc.Sync.PageSize)
	env.setInt(EnvDetailConcurrency, &fc.Sync.DetailConcurrency)
	env.setInt(EnvBatchSize, &fc.Sync.BatchSize)
	env.setBool(EnvRepeatWindow, &fc.Sync.RepeatWindowOnContinuation)
	env.setBool(EnvAdvanceOnPartial, &fc.Sync.AdvanceOnPartialFailure)
	env.setDuration(EnvSyncInterval, &fc.Sync.Interval)
	env.setString(EnvDBPath, &fc.Storage.DBPath)
	if env.err != nil {
		return domain.Config{}, env.err
	}

	return fc.toDomain(), nil
}

// envReader overlays environment values, keeping the first parse error.
type envReader struct {
	lookup func(string) (string, bool)
	dotenv map[string]string
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	if v, ok := e.lookup(key); ok && v != "" {
		return v, true
	}
	v, ok := e.dotenv[key]
	return v, ok && v != ""
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s=%q: %v", domain.ErrInvalidConfig, key, value, err)
	}
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) setBool(key string, dst *bool) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

// setDuration accepts Go durations ("1s", "500ms") or bare milliseconds.
func (e *envReader) setDuration(key string, dst *Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	var d Duration
	if err := d.UnmarshalText([]byte(v)); err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}

// Duration is a time.Duration written as text in TOML ("30s", "1h").
// A bare integer is read as milliseconds.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
