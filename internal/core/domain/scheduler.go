package domain

import "time"

// ScheduledTask is the persisted state of a recurring job. Zero times mean
// "never".
type ScheduledTask struct {
	ID       string
	Name     string
	Interval time.Duration
	Enabled  bool

	LastRun     time.Time
	LastSuccess time.Time
	NextRun     time.Time
	LastError   string // empty after a successful run
}

// IsDue reports whether an enabled task's next run is at or before now.
func (t *ScheduledTask) IsDue(now time.Time) bool {
	return t.Enabled && !t.NextRun.After(now)
}

// TaskResult is one entry of a task's run history.
type TaskResult struct {
	ID        string // sync run ID
	TaskID    string
	StartedAt time.Time
	EndedAt   time.Time
	Success   bool
	Error     string

	ItemsProcessed int  // documents created, updated or unchanged
	ItemsFailed    int  // detail and persist failures
	CursorAdvanced bool // whether the cycle moved the watermark
}

// NewTaskResult builds a history record from a sync report and its error.
// report may be nil when the cycle failed before producing one.
func NewTaskResult(taskID string, startedAt, endedAt time.Time, report *SyncReport, err error) *TaskResult {
	result := &TaskResult{
		TaskID:    taskID,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Success:   err == nil,
	}
	if err != nil {
		result.Error = err.Error()
	}
	if report != nil {
		result.ID = report.RunID
		result.ItemsProcessed = report.Persisted()
		result.ItemsFailed = report.Failures()
		result.CursorAdvanced = report.CursorAdvanced
	}
	return result
}

const (
	// TaskIDInvoiceSync identifies the incremental invoice sync job.
	TaskIDInvoiceSync = "invoice-sync"

	// HistoryRetention is how many results per task are kept.
	HistoryRetention = 100
)
