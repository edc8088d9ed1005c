package models

import "time"

// TaskStatus represents the current state of a plan task.
type TaskStatus string

const (
	// TaskStatusNotStarted indicates no work has happened on the task yet.
	TaskStatusNotStarted TaskStatus = "not_started"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusBlocked indicates the task cannot proceed.
	TaskStatusBlocked TaskStatus = "blocked"
	// TaskStatusCompleted indicates the task is finished.
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusNotStarted, TaskStatusInProgress, TaskStatusBlocked, TaskStatusCompleted:
		return true
	default:
		return false
	}
}

// TaskPriority ranks how urgent a task is.
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// Valid returns true if the priority is a known value.
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityCritical:
		return true
	default:
		return false
	}
}

// Prerequisite is a named condition a task needs before it can finish.
type Prerequisite struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Task represents a unit of work in an agent plan.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// ParentID is the ID of the owning task, empty for top-level tasks.
	ParentID string `json:"parent_id,omitempty"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority defaults to medium.
	Priority TaskPriority `json:"priority"`
	// ProgressPercentage is kept in [0,100]; 100 iff Status is completed.
	ProgressPercentage int `json:"progress_percentage"`
	// Prerequisites are ordered conditions attached to the task.
	Prerequisites []Prerequisite `json:"prerequisites,omitempty"`
	// DependsOn is the ID of another task in the same graph, if any.
	DependsOn string `json:"depends_on,omitempty"`
	// SubtaskIDs lists the children of this task in order.
	SubtaskIDs []string `json:"subtask_ids,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task was completed, if applicable.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsCompleted reports whether the task itself is completed.
func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}
