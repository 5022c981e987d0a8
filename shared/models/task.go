package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Lifecycle is the visibility state of a task. Deleted tasks keep their row
// but are hidden from every read and mutation.
type Lifecycle int

const (
	LifecycleActive Lifecycle = iota
	LifecycleDeleted
)

func (l Lifecycle) String() string {
	if l == LifecycleDeleted {
		return "deleted"
	}
	return "active"
}

// MaxTitleLength is counted in code points, not bytes.
const MaxTitleLength = 255

type Task struct {
	ID          int64      `json:"id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      TaskStatus `json:"status"`
	Tags        []string   `json:"tags"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Lifecycle   Lifecycle  `json:"-"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Completed is derived from Status; there is no separate stored flag.
func (t *Task) Completed() bool {
	return t.Status == TaskStatusCompleted
}

func (t *Task) Deleted() bool {
	return t.Lifecycle == LifecycleDeleted
}

// Clone returns a deep copy so callers can merge into it without touching the original.
func (t *Task) Clone() *Task {
	c := *t
	if t.Tags != nil {
		c.Tags = append([]string(nil), t.Tags...)
	}
	if t.DueDate != nil {
		due := *t.DueDate
		c.DueDate = &due
	}
	if t.DeletedAt != nil {
		deleted := *t.DeletedAt
		c.DeletedAt = &deleted
	}
	return &c
}

func (t Task) MarshalJSON() ([]byte, error) {
	type plain Task
	return json.Marshal(struct {
		plain
		Completed bool `json:"completed"`
	}{plain(t), t.Completed()})
}

// TaskDraft holds the caller-supplied fields of a new task. Zero values mean
// "not supplied" and get defaults.
type TaskDraft struct {
	Title       string
	Description string
	Priority    Priority
	Status      TaskStatus
	Tags        []string
	DueDate     *time.Time
	Completed   *bool
}

// TaskPatch is a merge patch: nil fields keep their current value.
// Identity, owner and creation time are deliberately absent.
type TaskPatch struct {
	Title        *string
	Description  *string
	Priority     *Priority
	Status       *TaskStatus
	Tags         *[]string
	DueDate      *time.Time
	ClearDueDate bool
	Completed    *bool
}
