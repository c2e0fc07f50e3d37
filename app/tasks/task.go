package tasks

import (
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeRefreshSource     TaskType = "refresh_source"
	TaskTypeRefreshAll        TaskType = "refresh_all"
	TaskTypeSyncSubscriptions TaskType = "sync_subscriptions"
)

// Task carries the identity and timing shared by every unit of background work.
type Task struct {
	ID        string
	Type      TaskType
	Name      string
	StartedAt time.Time
}

func NewTask(taskType TaskType, name string) Task {
	return Task{
		ID:   uuid.NewString(),
		Type: taskType,
		Name: name,
	}
}

func (t *Task) Start() {
	t.StartedAt = time.Now()
}

// Elapsed is zero until Start has been called.
func (t *Task) Elapsed() time.Duration {
	if t.StartedAt.IsZero() {
		return 0
	}
	return time.Since(t.StartedAt)
}

// LogAttrs returns the key/value pairs every task log line starts with.
func (t *Task) LogAttrs(extra ...any) []any {
	attrs := []any{"type", string(t.Type), "id", t.ID}
	return append(attrs, extra...)
}
