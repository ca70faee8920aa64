package driven

import (
	"context"

	"github.com/custodia-labs/etasync/internal/core/domain"
)

// SchedulerStore persists the sync task's schedule and a bounded history
// of cycle outcomes, so a restarted worker resumes on time.
type SchedulerStore interface {
	// GetTask returns nil and no error if the task does not exist.
	GetTask(ctx context.Context, taskID string) (*domain.ScheduledTask, error)

	ListTasks(ctx context.Context) ([]domain.ScheduledTask, error)

	// SaveTask creates or replaces the task with the same ID.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error

	DeleteTask(ctx context.Context, taskID string) error

	// RecordResult appends one cycle outcome. result.ID carries the cycle's run ID.
	RecordResult(ctx context.Context, result *domain.TaskResult) error

	// GetTaskHistory returns up to limit results, most recent first.
	GetTaskHistory(ctx context.Context, taskID string, limit int) ([]domain.TaskResult, error)

	// PruneHistory keeps the most recent keep results per task.
	PruneHistory(ctx context.Context, keep int) error
}
