package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/etasync/internal/core/domain"
	"github.com/custodia-labs/etasync/internal/core/ports/driven"
	"github.com/custodia-labs/etasync/internal/core/ports/driving"
	"github.com/custodia-labs/etasync/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// defaultTick is how often the loop checks whether the sync task is due.
const defaultTick = time.Minute

// Scheduler triggers the invoice sync task on an interval. Runs never
// overlap: a due check while a cycle is in flight is skipped.
type Scheduler struct {
	interval time.Duration
	tick     time.Duration
	store    driven.SchedulerStore
	syncOrch driving.SyncOrchestrator
	now      func() time.Time

	mu       sync.Mutex
	running  bool
	inFlight bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler that runs a sync every interval.
func NewScheduler(
	interval time.Duration,
	store driven.SchedulerStore,
	syncOrch driving.SyncOrchestrator,
) *Scheduler {
	tick := defaultTick
	if interval > 0 && interval < tick {
		tick = interval
	}
	return &Scheduler{
		interval: interval,
		tick:     tick,
		store:    store,
		syncOrch: syncOrch,
		now:      time.Now,
	}
}

// SetTick overrides how often due tasks are checked.
func (s *Scheduler) SetTick(d time.Duration) {
	s.tick = d
}

// SetClock replaces the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or ctx is cancelled. A task that is overdue at startup runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	if _, err := s.ensureTask(ctx); err != nil {
		logger.Error("scheduler: failed to initialise task", "task", domain.TaskIDInvoiceSync, "err", err)
	}

	logger.Info("scheduler started", "interval", s.interval.String())
	return s.run(ctx, stopCh)
}

// Stop gracefully shuts down the scheduler, waiting for a cycle in flight.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("scheduler stopped")
	return nil
}

// ensureTask creates the sync task if missing and reconciles its interval.
func (s *Scheduler) ensureTask(ctx context.Context) (*domain.ScheduledTask, error) {
	task, err := s.store.GetTask(ctx, domain.TaskIDInvoiceSync)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if task == nil {
		// First start: run straight away.
		task = &domain.ScheduledTask{
			ID:       domain.TaskIDInvoiceSync,
			Name:     "Invoice Sync",
			Interval: s.interval,
			Enabled:  true,
			NextRun:  now,
		}
	} else if task.Interval != s.interval {
		// A task that never ran stays due.
		task.Interval = s.interval
		task.NextRun = task.LastRun.Add(s.interval)
	}
	task.Enabled = s.interval > 0

	if err := s.store.SaveTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) error {
	s.checkAndRunDue(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDue(ctx)
		}
	}
}

// checkAndRunDue starts the sync task in the background if it is due and
// no cycle is in flight.
func (s *Scheduler) checkAndRunDue(ctx context.Context) {
	task, err := s.store.GetTask(ctx, domain.TaskIDInvoiceSync)
	if err != nil {
		logger.Error("scheduler: failed to load task", "task", domain.TaskIDInvoiceSync, "err", err)
		return
	}
	if task == nil || !task.IsDue(s.now()) {
		return
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		logger.Debug("scheduler: previous cycle still running, skipping")
		return
	}
	s.inFlight = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.inFlight = false
			s.mu.Unlock()
		}()
		_, _ = s.execute(ctx, task)
	}()
}

// RunNow executes the sync task immediately and records its result.
func (s *Scheduler) RunNow(ctx context.Context) (*domain.SyncReport, error) {
	task, err := s.store.GetTask(ctx, domain.TaskIDInvoiceSync)
	if err != nil {
		return nil, err
	}
	if task == nil {
		task = &domain.ScheduledTask{
			ID:       domain.TaskIDInvoiceSync,
			Name:     "Invoice Sync",
			Interval: s.interval,
			Enabled:  s.interval > 0,
		}
	}
	return s.execute(ctx, task)
}

// execute runs one cycle and updates task state and history.
func (s *Scheduler) execute(ctx context.Context, task *domain.ScheduledTask) (*domain.SyncReport, error) {
	startedAt := s.now()
	report, err := s.syncOrch.Run(ctx)
	if errors.Is(err, domain.ErrSyncInProgress) {
		return nil, err
	}
	endedAt := s.now()

	result := domain.NewTaskResult(task.ID, startedAt, endedAt, report, err)
	if result.ID == "" {
		result.ID = uuid.NewString()
	}

	task.LastRun = startedAt
	task.NextRun = endedAt.Add(task.Interval)
	if err != nil {
		task.LastError = err.Error()
	} else {
		task.LastError = ""
		task.LastSuccess = endedAt
	}

	// Bookkeeping survives shutdown so an interrupted cycle is still recorded.
	bookCtx := context.WithoutCancel(ctx)
	if saveErr := s.store.SaveTask(bookCtx, task); saveErr != nil {
		logger.Error("scheduler: failed to save task", "task", task.ID, "err", saveErr)
	}
	if recordErr := s.store.RecordResult(bookCtx, result); recordErr != nil {
		logger.Error("scheduler: failed to record result", "task", task.ID, "err", recordErr)
	}
	if pruneErr := s.store.PruneHistory(bookCtx, domain.HistoryRetention); pruneErr != nil {
		logger.Warn("scheduler: failed to prune history", "err", pruneErr)
	}

	return report, err
}

// History returns recent sync results, most recent first.
func (s *Scheduler) History(ctx context.Context, limit int) ([]domain.TaskResult, error) {
	return s.store.GetTaskHistory(ctx, domain.TaskIDInvoiceSync, limit)
}
