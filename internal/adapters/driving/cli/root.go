// Package cli implements the etasync command line.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driving"
	"github.com/custodia-labs/etasync/internal/logger"
)

// version is set at build time.
var version = "dev"

// Persistent flags.
var (
	configPath string
	verbose    bool
	jsonLogs   bool
)

// Services is the set of core services a command runs against.
type Services struct {
	Sync      driving.SyncOrchestrator
	Scheduler driving.Scheduler
	Documents driving.DocumentService

	// Close releases the underlying stores.
	Close func() error
}

// ServiceOptions tunes how services are built for one command.
type ServiceOptions struct {
	// DryRun keeps all writes in memory.
	DryRun bool
}

// ConfigLoader reads configuration from path, or the default location when
// path is empty. It returns the resolved path alongside the config.
type ConfigLoader func(path string) (domain.Config, string, error)

// ServiceFactory builds services from a validated configuration.
type ServiceFactory func(ctx context.Context, cfg domain.Config, opts ServiceOptions) (*Services, error)

var (
	configLoader   ConfigLoader
	serviceFactory ServiceFactory
)

var rootCmd = &cobra.Command{
	Use:   "etasync",
	Short: "Incremental sync of e-invoices from the tax authority API",
	Long: `etasync mirrors invoices issued on the tax authority e-invoicing API into a
local SQLite database. Each cycle searches documents issued since the last
successful sync, fetches their details and advances the sync cursor.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
		logger.SetJSON(jsonLogs)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "log-json", false, "Emit logs as JSON")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// SetConfigLoader sets how commands read configuration.
func SetConfigLoader(loader ConfigLoader) {
	configLoader = loader
}

// SetServiceFactory sets how commands build services.
func SetServiceFactory(factory ServiceFactory) {
	serviceFactory = factory
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads configuration using the --config flag.
func loadConfig() (domain.Config, string, error) {
	if configLoader == nil {
		return domain.Config{}, "", errors.New("config loader not configured")
	}
	return configLoader(configPath)
}

// openServices loads and validates configuration and builds services.
// The caller must call Close on the result.
func openServices(ctx context.Context, opts ServiceOptions) (*Services, error) {
	if serviceFactory == nil {
		return nil, errors.New("services not configured")
	}
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	svc, err := serviceFactory(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}
	if svc.Close == nil {
		svc.Close = func() error { return nil }
	}
	return svc, nil
}
