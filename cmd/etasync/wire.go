package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/custodia-labs/etasync/internal/adapters/driven/auth"
	"github.com/custodia-labs/etasync/internal/adapters/driven/config/file"
	"github.com/custodia-labs/etasync/internal/adapters/driven/eta"
	"github.com/custodia-labs/etasync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/etasync/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/etasync/internal/adapters/driven/transport"
	"github.com/custodia-labs/etasync/internal/adapters/driving/cli"
	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
	"github.com/custodia-labs/etasync/internal/core/services"
	"github.com/custodia-labs/etasync/internal/logger"
)

func loadConfig(path string) (domain.Config, string, error) {
	loader := file.NewLoader(path)
	cfg, err := loader.Load()
	return cfg, loader.Path(), err
}

// stores groups the persistence ports a process runs against.
type stores struct {
	docs      driven.DocumentStore
	cursors   driven.CursorStore
	scheduler driven.SchedulerStore
	close     func() error
}

func openStores(ctx context.Context, cfg domain.Config, dryRun bool) (*stores, error) {
	if dryRun {
		return &stores{
			docs:      memory.NewDocumentStore(),
			cursors:   memory.NewCursorStore(),
			scheduler: memory.NewSchedulerStore(),
			close:     func() error { return nil },
		}, nil
	}

	store, err := sqlite.NewStore(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Ping(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("open database: %w", err), store.Close())
	}
	logger.Debug("database opened", "path", store.Path())
	return &stores{
		docs:      store.DocumentStore(),
		cursors:   store.CursorStore(),
		scheduler: store.SchedulerStore(),
		close:     store.Close,
	}, nil
}

// buildServices wires the adapters into the core services.
func buildServices(ctx context.Context, cfg domain.Config, opts cli.ServiceOptions) (*cli.Services, error) {
	st, err := openStores(ctx, cfg, opts.DryRun)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.API.Timeout}
	credentials := auth.NewCache(cfg.API, httpClient)
	limiter := transport.NewLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Interval)

	// Zero in the config means no retries; zero in Options means the default.
	maxRetries := cfg.RateLimit.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1
	}
	tr := transport.New(httpClient, credentials, limiter, transport.Options{
		MaxRetries:     maxRetries,
		InitialBackoff: cfg.RateLimit.InitialBackoff,
		MaxRetryAfter:  cfg.RateLimit.MaxRetryAfter,
	})

	client := eta.NewClient(tr, cfg.API)
	orch := services.NewSyncOrchestrator(client, st.docs, st.cursors, cfg.Sync)
	scheduler := services.NewScheduler(cfg.Sync.Interval, st.scheduler, orch)

	return &cli.Services{
		Sync:      orch,
		Scheduler: scheduler,
		Documents: services.NewDocumentService(st.docs),
		Close:     st.close,
	}, nil
}
