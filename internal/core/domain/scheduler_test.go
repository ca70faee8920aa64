package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduledTask_IsDue(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, (&ScheduledTask{Enabled: true, NextRun: now}).IsDue(now))
	assert.True(t, (&ScheduledTask{Enabled: true}).IsDue(now), "never scheduled")
	assert.False(t, (&ScheduledTask{Enabled: true, NextRun: now.Add(time.Second)}).IsDue(now))
	assert.False(t, (&ScheduledTask{NextRun: now}).IsDue(now), "disabled")
}

func TestNewTaskResult(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Second)

	t.Run("success", func(t *testing.T) {
		report := &SyncReport{RunID: "run-1", Created: 4, Updated: 1, Unchanged: 2, DetailFailures: 1, PersistFailures: 1, CursorAdvanced: true}

		result := NewTaskResult(TaskIDInvoiceSync, start, end, report, nil)

		assert.Equal(t, "run-1", result.ID)
		assert.Equal(t, TaskIDInvoiceSync, result.TaskID)
		assert.True(t, result.Success)
		assert.Empty(t, result.Error)
		assert.Equal(t, 7, result.ItemsProcessed)
		assert.Equal(t, 2, result.ItemsFailed)
		assert.True(t, result.CursorAdvanced)
	})

	t.Run("failure without report", func(t *testing.T) {
		result := NewTaskResult(TaskIDInvoiceSync, start, end, nil, errors.New("cursor unreadable"))

		assert.False(t, result.Success)
		assert.Equal(t, "cursor unreadable", result.Error)
		assert.Empty(t, result.ID)
		assert.Equal(t, end, result.EndedAt)
	})
}
