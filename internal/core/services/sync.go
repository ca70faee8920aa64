package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
	"github.com/custodia-labs/etasync/internal/core/ports/driving"
	"github.com/custodia-labs/etasync/internal/logger"
)

// Ensure SyncOrchestrator implements the interface.
var _ driving.SyncOrchestrator = (*SyncOrchestrator)(nil)

// SyncOrchestrator runs incremental sync cycles: it searches the remote API
// for documents issued since the cursor, enriches each with its detail,
// persists them and advances the cursor.
type SyncOrchestrator struct {
	api      driven.DocumentAPI
	docStore driven.DocumentStore
	cursors  driven.CursorStore
	settings domain.SyncSettings

	now      func() time.Time
	newRunID func() string

	running atomic.Bool

	// Status tracking
	mu     sync.RWMutex
	status driving.SyncStatus
}

// NewSyncOrchestrator creates a new sync orchestrator.
// Non-positive page, batch and concurrency settings fall back to defaults.
func NewSyncOrchestrator(
	api driven.DocumentAPI,
	docStore driven.DocumentStore,
	cursors driven.CursorStore,
	settings domain.SyncSettings,
) *SyncOrchestrator {
	defaults := domain.DefaultConfig().Sync
	if settings.PageSize <= 0 {
		settings.PageSize = defaults.PageSize
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = defaults.BatchSize
	}
	if settings.DetailConcurrency <= 0 {
		settings.DetailConcurrency = defaults.DetailConcurrency
	}
	return &SyncOrchestrator{
		api:      api,
		docStore: docStore,
		cursors:  cursors,
		settings: settings,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// SetClock replaces the time source.
func (o *SyncOrchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Run executes one complete sync cycle.
func (o *SyncOrchestrator) Run(ctx context.Context) (*domain.SyncReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, domain.ErrSyncInProgress
	}
	defer o.running.Store(false)

	startedAt := o.now()
	now := startedAt.UTC()
	runID := o.newRunID()
	log := logger.With("run_id", runID)

	o.setStatus(driving.SyncStatus{RunID: runID, Running: true, Phase: domain.PhaseStart})
	defer o.setStatus(driving.SyncStatus{})

	o.setPhase(domain.PhaseFetchCursor)
	from, err := o.cursors.GetCursor(ctx)
	if err != nil {
		return nil, o.fail(log, fmt.Errorf("read cursor: %w", err))
	}

	report := &domain.SyncReport{
		RunID:     runID,
		Window:    domain.Window{From: from.UTC(), To: now},
		StartedAt: startedAt,
	}
	defer func() { report.Duration = o.now().Sub(startedAt) }()

	log.Info("sync started",
		"from", report.Window.From.Format(time.RFC3339),
		"to", report.Window.To.Format(time.RFC3339))

	if report.Window.Empty() {
		log.Warn("cursor is not before now, nothing to sync", "cursor", from.Format(time.RFC3339))
		o.setPhase(domain.PhaseDone)
		return report, nil
	}

	if err := o.paginate(ctx, log, report); err != nil {
		return report, o.fail(log, err)
	}

	o.setPhase(domain.PhaseAdvanceCursor)
	if report.Failures() > 0 && !o.settings.AdvanceOnPartialFailure {
		log.Warn("cursor held back after document failures", "failures", report.Failures())
	} else {
		if err := o.cursors.SetCursor(ctx, now); err != nil {
			return report, o.fail(log, fmt.Errorf("advance cursor: %w", err))
		}
		report.CursorAdvanced = true
		report.CursorAdvancedTo = now
	}

	o.setPhase(domain.PhaseDone)
	log.Info("sync complete",
		"pages", report.Pages,
		"seen", report.DocumentsSeen,
		"created", report.Created,
		"updated", report.Updated,
		"unchanged", report.Unchanged,
		"detail_failures", report.DetailFailures,
		"persist_failures", report.PersistFailures,
		"cursor_advanced", report.CursorAdvanced)
	return report, nil
}

// paginate walks the search result pages of the report's window.
func (o *SyncOrchestrator) paginate(ctx context.Context, log *slog.Logger, report *domain.SyncReport) error {
	token := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		query := domain.SearchQuery{PageSize: o.settings.PageSize, ContinuationToken: token}
		if token == "" || o.settings.RepeatWindowOnContinuation {
			window := report.Window
			query.Window = &window
		}

		o.setPhase(domain.PhaseSearch)
		o.updateStatus(func(s *driving.SyncStatus) { s.Page = report.Pages + 1 })
		page, err := o.api.Search(ctx, query)
		if err != nil {
			return fmt.Errorf("search page %d: %w", report.Pages+1, err)
		}
		report.Pages++

		if len(page.Documents) == 0 {
			log.Debug("empty page ends pagination", "page", report.Pages)
			return nil
		}
		report.DocumentsSeen += len(page.Documents)
		log.Debug("page received", "page", report.Pages, "documents", len(page.Documents))

		docs, err := o.enrich(ctx, log, page.Documents, report)
		if err != nil {
			return err
		}
		if err := o.persist(ctx, log, docs, report); err != nil {
			return err
		}

		if !page.HasNext() {
			return nil
		}
		token = page.NextPage
	}
}

// enrich fetches details for a page of summaries with bounded concurrency.
// A failed detail fetch degrades that document to its summary.
func (o *SyncOrchestrator) enrich(
	ctx context.Context,
	log *slog.Logger,
	summaries []domain.DocumentSummary,
	report *domain.SyncReport,
) ([]domain.Document, error) {
	o.setPhase(domain.PhaseFanOutDetail)

	docs := make([]domain.Document, len(summaries))
	var failures atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.settings.DetailConcurrency)
	for i, summary := range summaries {
		g.Go(func() error {
			detail, err := o.api.FetchDetail(gctx, summary.UUID)
			if err != nil {
				if !keepsSummary(gctx, err) {
					return err
				}
				failures.Add(1)
				o.updateStatus(func(s *driving.SyncStatus) { s.ErrorCount++ })
				log.Warn("detail fetch failed, keeping summary",
					"uuid", summary.UUID,
					"not_found", domain.IsNotFound(err),
					"err", err)
				docs[i] = domain.MergeDocument(summary, nil)
				return nil
			}
			docs[i] = domain.MergeDocument(summary, detail)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch details: %w", err)
	}

	report.DetailFailures += int(failures.Load())
	return docs, nil
}

// persist writes documents in bounded batches. Only a store-level failure
// stops the cycle; a rejected document is counted and skipped.
func (o *SyncOrchestrator) persist(
	ctx context.Context,
	log *slog.Logger,
	docs []domain.Document,
	report *domain.SyncReport,
) error {
	o.setPhase(domain.PhasePersist)

	for start := 0; start < len(docs); start += o.settings.BatchSize {
		end := min(start+o.settings.BatchSize, len(docs))
		results, err := o.docStore.UpsertDocuments(ctx, docs[start:end])
		if err != nil {
			return fmt.Errorf("persist batch: %w", err)
		}

		for _, res := range results {
			if res.Err != nil {
				if errors.Is(res.Err, domain.ErrStoreUnavailable) {
					return fmt.Errorf("persist %s: %w", res.UUID, res.Err)
				}
				report.PersistFailures++
				o.updateStatus(func(s *driving.SyncStatus) { s.ErrorCount++ })
				log.Error("document not persisted", "uuid", res.UUID, "err", res.Err)
				continue
			}
			switch res.Outcome {
			case domain.UpsertCreated:
				report.Created++
			case domain.UpsertUpdated:
				report.Updated++
			case domain.UpsertUnchanged:
				report.Unchanged++
			}
			o.updateStatus(func(s *driving.SyncStatus) { s.DocumentsProcessed++ })
		}
	}
	return nil
}

// keepsSummary reports whether a failed detail fetch may fall back to the
// summary. Once the group is cancelled, sibling failures are only echoes of
// the error that stopped it.
func keepsSummary(gctx context.Context, err error) bool {
	return gctx.Err() == nil && !domain.IsFatalToCycle(err)
}

func (o *SyncOrchestrator) fail(log *slog.Logger, err error) error {
	o.setPhase(domain.PhaseFailed)
	log.Error("sync failed", "err", err)
	return err
}

// Status returns progress of the cycle in flight.
func (o *SyncOrchestrator) Status() driving.SyncStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// Cursor returns the persisted watermark.
func (o *SyncOrchestrator) Cursor(ctx context.Context) (time.Time, error) {
	return o.cursors.GetCursor(ctx)
}

// ResetCursor moves the watermark unconditionally.
// It refuses while a cycle is running.
func (o *SyncOrchestrator) ResetCursor(ctx context.Context, ts time.Time) error {
	if !o.running.CompareAndSwap(false, true) {
		return domain.ErrSyncInProgress
	}
	defer o.running.Store(false)

	if err := o.cursors.ResetCursor(ctx, ts.UTC()); err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}
	logger.Warn("cursor reset", "to", ts.UTC().Format(time.RFC3339))
	return nil
}

func (o *SyncOrchestrator) setStatus(status driving.SyncStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = status
}

func (o *SyncOrchestrator) setPhase(phase domain.SyncPhase) {
	o.updateStatus(func(s *driving.SyncStatus) { s.Phase = phase })
}

func (o *SyncOrchestrator) updateStatus(fn func(*driving.SyncStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.status)
}
