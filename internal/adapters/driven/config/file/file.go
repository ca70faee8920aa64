package file

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// fileConfig is the on-disk TOML layout.
type fileConfig struct {
	API       apiSection       `toml:"api"`
	RateLimit rateLimitSection `toml:"rate_limit"`
	Sync      syncSection      `toml:"sync"`
	Storage   storageSection   `toml:"storage"`
}

type apiSection struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	IdentityURL  string   `toml:"identity_url"`
	BaseURL      string   `toml:"base_url"`
	PathPrefix   string   `toml:"path_prefix"`
	Timeout      Duration `toml:"timeout"`
	DetailSource string   `toml:"detail_source"`
}

type rateLimitSection struct {
	Requests       int      `toml:"requests"`
	Interval       Duration `toml:"interval"`
	MaxRetries     int      `toml:"max_retries"`
	InitialBackoff Duration `toml:"initial_backoff"`
	MaxRetryAfter  Duration `toml:"max_retry_after"`
}

type syncSection struct {
	PageSize                   int      `toml:"page_size"`
	DetailConcurrency          int      `toml:"detail_concurrency"`
	BatchSize                  int      `toml:"batch_size"`
	RepeatWindowOnContinuation bool     `toml:"repeat_window_on_continuation"`
	AdvanceOnPartialFailure    bool     `toml:"advance_on_partial_failure"`
	Interval                   Duration `toml:"interval"`
}

type storageSection struct {
	DBPath string `toml:"db_path"`
}

func fromDomain(c domain.Config) fileConfig {
	return fileConfig{
		API: apiSection{
			ClientID:     c.API.ClientID,
			ClientSecret: c.API.ClientSecret,
			IdentityURL:  c.API.IdentityURL,
			BaseURL:      c.API.BaseURL,
			PathPrefix:   c.API.PathPrefix,
			Timeout:      Duration(c.API.Timeout),
			DetailSource: c.API.DetailSource.String(),
		},
		RateLimit: rateLimitSection{
			Requests:       c.RateLimit.Requests,
			Interval:       Duration(c.RateLimit.Interval),
			MaxRetries:     c.RateLimit.MaxRetries,
			InitialBackoff: Duration(c.RateLimit.InitialBackoff),
			MaxRetryAfter:  Duration(c.RateLimit.MaxRetryAfter),
		},
		Sync: syncSection{
			PageSize:                   c.Sync.PageSize,
			DetailConcurrency:          c.Sync.DetailConcurrency,
			BatchSize:                  c.Sync.BatchSize,
			RepeatWindowOnContinuation: c.Sync.RepeatWindowOnContinuation,
			AdvanceOnPartialFailure:    c.Sync.AdvanceOnPartialFailure,
			Interval:                   Duration(c.Sync.Interval),
		},
		Storage: storageSection{DBPath: c.Storage.DBPath},
	}
}

func (f fileConfig) toDomain() domain.Config {
	return domain.Config{
		API: domain.APISettings{
			ClientID:     f.API.ClientID,
			ClientSecret: f.API.ClientSecret,
			IdentityURL:  f.API.IdentityURL,
			BaseURL:      f.API.BaseURL,
			PathPrefix:   f.API.PathPrefix,
			Timeout:      time.Duration(f.API.Timeout),
			DetailSource: domain.DetailSource(f.API.DetailSource),
		},
		RateLimit: domain.RateLimitSettings{
			Requests:       f.RateLimit.Requests,
			Interval:       time.Duration(f.RateLimit.Interval),
			MaxRetries:     f.RateLimit.MaxRetries,
			InitialBackoff: time.Duration(f.RateLimit.InitialBackoff),
			MaxRetryAfter:  time.Duration(f.RateLimit.MaxRetryAfter),
		},
		Sync: domain.SyncSettings{
			PageSize:                   f.Sync.PageSize,
			DetailConcurrency:          f.Sync.DetailConcurrency,
			BatchSize:                  f.Sync.BatchSize,
			RepeatWindowOnContinuation: f.Sync.RepeatWindowOnContinuation,
			AdvanceOnPartialFailure:    f.Sync.AdvanceOnPartialFailure,
			Interval:                   time.Duration(f.Sync.Interval),
		},
		Storage: domain.StorageSettings{DBPath: f.Storage.DBPath},
	}
}

// Marshal renders cfg as TOML.
func Marshal(cfg domain.Config) ([]byte, error) {
	return toml.Marshal(fromDomain(cfg))
}

// WriteConfig writes cfg to path, creating parent directories.
// The file holds the client secret and is readable by the owner only.
func WriteConfig(path string, cfg domain.Config) error {
	data, err := Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
