package tasks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTask_ElapsedAndAttrs(t *testing.T) {
	task := NewTask(TaskTypeRefreshAll, "all")
	assert.NotEmpty(t, task.ID)
	assert.Zero(t, task.Elapsed())

	task.Start()
	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, task.Elapsed(), time.Duration(0))

	attrs := task.LogAttrs("sources", 3)
	assert.Equal(t, []any{"type", "refresh_all", "id", task.ID, "sources", 3}, attrs)
}
