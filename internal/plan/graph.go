// Package plan provides the TaskGraph, the hierarchical task plan an agent
// session maintains. Tasks live in an arena keyed by ID; parent and
// dependency links are stored as IDs, never as pointers.
package plan

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// DefaultBlankReason is used when BlankTask is called without a reason.
const DefaultBlankReason = "Task deemed unnecessary"

var (
	// ErrNotFound indicates the referenced task or prerequisite does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidIndex indicates an insertion index outside [0, len].
	ErrInvalidIndex = errors.New("invalid index")
	// ErrInvalidProgress indicates a progress value outside [0, 100].
	ErrInvalidProgress = errors.New("progress percentage must be between 0 and 100")
	// ErrInvalidValue indicates an unknown status or priority.
	ErrInvalidValue = errors.New("invalid value")
	// ErrSelfDependency indicates a task was made to depend on itself.
	ErrSelfDependency = errors.New("task cannot depend on itself")
)

// GraphError describes a failed TaskGraph operation.
type GraphError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *GraphError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *GraphError) Unwrap() error { return e.Err }

// TaskGraph is an ordered list of top-level tasks, each owning an ordered
// list of subtasks. It is safe for concurrent use; every mutation emits an
// event to the configured sink.
type TaskGraph struct {
	mu sync.RWMutex
	// tasks maps task ID to the task record, for top-level tasks and subtasks.
	tasks map[string]*models.Task
	// roots holds top-level task IDs in plan order.
	roots []string

	sink events.Sink
	now  func() time.Time
}

// Option configures a TaskGraph.
type Option func(*TaskGraph)

// WithSink sets the sink that receives mutation events.
func WithSink(sink events.Sink) Option {
	return func(g *TaskGraph) {
		if sink != nil {
			g.sink = sink
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *TaskGraph) {
		if now != nil {
			g.now = now
		}
	}
}

// New creates a new empty TaskGraph.
func New(opts ...Option) *TaskGraph {
	g := &TaskGraph{
		tasks: make(map[string]*models.Task),
		sink:  events.Discard,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *TaskGraph) newTask(title, description, parentID string) *models.Task {
	t := &models.Task{
		ID:          uuid.New().String(),
		ParentID:    parentID,
		Title:       title,
		Description: description,
		Status:      models.TaskStatusNotStarted,
		Priority:    models.TaskPriorityMedium,
		CreatedAt:   g.now(),
	}
	g.tasks[t.ID] = t
	return t
}

func (g *TaskGraph) emit(typ events.Type, t *models.Task, msg string) {
	g.sink.Emit(events.Event{
		Type:      typ,
		TaskID:    t.ID,
		TaskTitle: t.Title,
		ParentID:  t.ParentID,
		Message:   msg,
		Timestamp: g.now(),
	})
}

// AddTask appends a new top-level task.
func (g *TaskGraph) AddTask(title, description string) models.Task {
	g.mu.Lock()
	t := g.newTask(title, description, "")
	g.roots = append(g.roots, t.ID)
	out := cloneTask(t)
	g.mu.Unlock()

	g.emit(events.TaskAdded, &out, "added task")
	return out
}

// AddTaskAfter inserts a new top-level task directly after afterID.
func (g *TaskGraph) AddTaskAfter(afterID, title, description string) (models.Task, error) {
	g.mu.Lock()
	idx := slices.Index(g.roots, afterID)
	if idx < 0 {
		g.mu.Unlock()
		return models.Task{}, &GraphError{Op: "add_task_after", TaskID: afterID, Err: ErrNotFound}
	}
	t := g.newTask(title, description, "")
	g.roots = slices.Insert(g.roots, idx+1, t.ID)
	out := cloneTask(t)
	g.mu.Unlock()

	g.emit(events.TaskAdded, &out, "added task after "+afterID)
	return out, nil
}

// AddTaskAtIndex inserts a new top-level task at index, which must be in
// [0, len(top-level tasks)].
func (g *TaskGraph) AddTaskAtIndex(index int, title, description string) (models.Task, error) {
	g.mu.Lock()
	if index < 0 || index > len(g.roots) {
		n := len(g.roots)
		g.mu.Unlock()
		return models.Task{}, &GraphError{
			Op:  "add_task_at_index",
			Err: fmt.Errorf("%w: %d, valid range is 0 to %d", ErrInvalidIndex, index, n),
		}
	}
	t := g.newTask(title, description, "")
	g.roots = slices.Insert(g.roots, index, t.ID)
	out := cloneTask(t)
	g.mu.Unlock()

	g.emit(events.TaskAdded, &out, fmt.Sprintf("added task at index %d", index))
	return out, nil
}

// CreateSubtask appends a new subtask to parentID.
func (g *TaskGraph) CreateSubtask(parentID, title, description string) (models.Task, error) {
	g.mu.Lock()
	parent, ok := g.tasks[parentID]
	if !ok {
		g.mu.Unlock()
		return models.Task{}, &GraphError{Op: "create_subtask", TaskID: parentID, Err: ErrNotFound}
	}
	t := g.newTask(title, description, parentID)
	parent.SubtaskIDs = append(parent.SubtaskIDs, t.ID)
	out := cloneTask(t)
	g.mu.Unlock()

	g.emit(events.TaskAdded, &out, "added subtask")
	return out, nil
}

// RemoveTask removes a task and all of its subtasks from the graph.
func (g *TaskGraph) RemoveTask(id string) error {
	g.mu.Lock()
	t, ok := g.tasks[id]
	if !ok {
		g.mu.Unlock()
		return &GraphError{Op: "remove_task", TaskID: id, Err: ErrNotFound}
	}
	if t.ParentID == "" {
		g.roots = slices.DeleteFunc(g.roots, func(r string) bool { return r == id })
	} else if parent, ok := g.tasks[t.ParentID]; ok {
		parent.SubtaskIDs = slices.DeleteFunc(parent.SubtaskIDs, func(s string) bool { return s == id })
	}
	g.deleteSubtreeLocked(id)
	out := cloneTask(t)
	g.mu.Unlock()

	g.emit(events.TaskRemoved, &out, "removed task")
	return nil
}

func (g *TaskGraph) deleteSubtreeLocked(id string) {
	t, ok := g.tasks[id]
	if !ok {
		return
	}
	for _, sub := range t.SubtaskIDs {
		g.deleteSubtreeLocked(sub)
	}
	delete(g.tasks, id)
}

// GetTaskByID returns the task with id, searching top-level tasks and subtasks.
func (g *TaskGraph) GetTaskByID(id string) (models.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return cloneTask(t), true
}

// GetAllTasks returns a copy of the top-level tasks in order.
func (g *TaskGraph) GetAllTasks() []models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.Task, 0, len(g.roots))
	for _, id := range g.roots {
		out = append(out, cloneTask(g.tasks[id]))
	}
	return out
}

// Subtasks returns a copy of the subtasks of id in order.
func (g *TaskGraph) Subtasks(id string) ([]models.Task, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return nil, &GraphError{Op: "subtasks", TaskID: id, Err: ErrNotFound}
	}
	out := make([]models.Task, 0, len(t.SubtaskIDs))
	for _, sub := range t.SubtaskIDs {
		out = append(out, cloneTask(g.tasks[sub]))
	}
	return out, nil
}

// Len returns the number of tasks in the graph, subtasks included.
func (g *TaskGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// mutate applies fn to the task with id under the write lock and emits an
// event describing the change.
func (g *TaskGraph) mutate(op, id string, fn func(t *models.Task) (events.Type, string, error)) error {
	g.mu.Lock()
	t, ok := g.tasks[id]
	if !ok {
		g.mu.Unlock()
		return &GraphError{Op: op, TaskID: id, Err: ErrNotFound}
	}
	typ, msg, err := fn(t)
	if err != nil {
		g.mu.Unlock()
		return &GraphError{Op: op, TaskID: id, Err: err}
	}
	out := cloneTask(t)
	g.mu.Unlock()

	g.emit(typ, &out, msg)
	return nil
}

// MarkAsCompleted sets the task's status to completed and progress to 100.
func (g *TaskGraph) MarkAsCompleted(id string) error {
	return g.mutate("mark_as_completed", id, func(t *models.Task) (events.Type, string, error) {
		g.setStatus(t, models.TaskStatusCompleted)
		return events.TaskCompleted, "marked as completed", nil
	})
}

// MarkAsStarted sets the task's status to in_progress.
func (g *TaskGraph) MarkAsStarted(id string) error {
	return g.mutate("mark_as_started", id, func(t *models.Task) (events.Type, string, error) {
		g.setStatus(t, models.TaskStatusInProgress)
		return events.TaskUpdated, "marked as started", nil
	})
}

// BlankTask completes a task that turned out to be unnecessary, prefixing its
// title and description with [BLANKED] and recording the reason.
func (g *TaskGraph) BlankTask(id, reason string) error {
	if reason == "" {
		reason = DefaultBlankReason
	}
	return g.mutate("blank_task", id, func(t *models.Task) (events.Type, string, error) {
		g.setStatus(t, models.TaskStatusCompleted)
		t.Description = fmt.Sprintf("[BLANKED] %s\n\nReason: %s", t.Description, reason)
		t.Title = "[BLANKED] " + t.Title
		return events.TaskCompleted, "blanked: " + reason, nil
	})
}

// UpdateStatus sets the task's status, keeping progress consistent with it.
func (g *TaskGraph) UpdateStatus(id string, status models.TaskStatus) error {
	return g.mutate("update_status", id, func(t *models.Task) (events.Type, string, error) {
		if !status.Valid() {
			return "", "", fmt.Errorf("%w: status %q", ErrInvalidValue, status)
		}
		old := t.Status
		g.setStatus(t, status)
		typ := events.TaskUpdated
		if status == models.TaskStatusCompleted {
			typ = events.TaskCompleted
		}
		return typ, fmt.Sprintf("status %s -> %s", old, status), nil
	})
}

// UpdateProgress sets the task's progress percentage. Reaching 100 completes
// the task; any progress on a not-started task moves it to in_progress.
func (g *TaskGraph) UpdateProgress(id string, percentage int) error {
	return g.mutate("update_progress", id, func(t *models.Task) (events.Type, string, error) {
		if percentage < 0 || percentage > 100 {
			return "", "", fmt.Errorf("%w: %d", ErrInvalidProgress, percentage)
		}
		if percentage == 100 {
			g.setStatus(t, models.TaskStatusCompleted)
			return events.TaskCompleted, "progress 100%", nil
		}
		t.ProgressPercentage = percentage
		switch {
		case t.Status == models.TaskStatusCompleted:
			t.Status = models.TaskStatusInProgress
			t.CompletedAt = nil
		case percentage > 0 && t.Status == models.TaskStatusNotStarted:
			t.Status = models.TaskStatusInProgress
		}
		return events.TaskUpdated, fmt.Sprintf("progress %d%%", percentage), nil
	})
}

// UpdatePriority sets the task's priority.
func (g *TaskGraph) UpdatePriority(id string, priority models.TaskPriority) error {
	return g.mutate("update_priority", id, func(t *models.Task) (events.Type, string, error) {
		if !priority.Valid() {
			return "", "", fmt.Errorf("%w: priority %q", ErrInvalidValue, priority)
		}
		t.Priority = priority
		return events.TaskUpdated, "priority " + string(priority), nil
	})
}

// UpdateTitle renames the task.
func (g *TaskGraph) UpdateTitle(id, title string) error {
	return g.mutate("update_title", id, func(t *models.Task) (events.Type, string, error) {
		t.Title = title
		return events.TaskUpdated, "renamed", nil
	})
}

// UpdateDescription replaces the task's description.
func (g *TaskGraph) UpdateDescription(id, description string) error {
	return g.mutate("update_description", id, func(t *models.Task) (events.Type, string, error) {
		t.Description = description
		return events.TaskUpdated, "updated description", nil
	})
}

// AddPrerequisite appends a prerequisite to the task.
func (g *TaskGraph) AddPrerequisite(id, name, description string) (models.Prerequisite, error) {
	p := models.Prerequisite{ID: uuid.New().String(), Name: name, Description: description}
	err := g.mutate("add_prerequisite", id, func(t *models.Task) (events.Type, string, error) {
		t.Prerequisites = append(t.Prerequisites, p)
		return events.TaskUpdated, "added prerequisite " + name, nil
	})
	if err != nil {
		return models.Prerequisite{}, err
	}
	return p, nil
}

// RemovePrerequisite removes the prerequisite with prereqID from the task.
func (g *TaskGraph) RemovePrerequisite(id, prereqID string) error {
	return g.mutate("remove_prerequisite", id, func(t *models.Task) (events.Type, string, error) {
		idx := slices.IndexFunc(t.Prerequisites, func(p models.Prerequisite) bool { return p.ID == prereqID })
		if idx < 0 {
			return "", "", fmt.Errorf("prerequisite %s: %w", prereqID, ErrNotFound)
		}
		name := t.Prerequisites[idx].Name
		t.Prerequisites = slices.Delete(t.Prerequisites, idx, idx+1)
		return events.TaskUpdated, "removed prerequisite " + name, nil
	})
}

// DependsOnTask records that id depends on depID. depID must exist when the
// dependency is declared; it may be removed later, which Validate reports.
func (g *TaskGraph) DependsOnTask(id, depID string) error {
	if id == depID {
		return &GraphError{Op: "depends_on_task", TaskID: id, Err: ErrSelfDependency}
	}
	return g.mutate("depends_on_task", id, func(t *models.Task) (events.Type, string, error) {
		dep, ok := g.tasks[depID]
		if !ok {
			return "", "", fmt.Errorf("dependency %s: %w", depID, ErrNotFound)
		}
		t.DependsOn = depID
		return events.TaskUpdated, "depends on " + dep.Title, nil
	})
}

// setStatus applies a status change and keeps progress in sync: completed
// implies 100, not_started implies 0, and leaving completed drops progress
// below 100.
func (g *TaskGraph) setStatus(t *models.Task, status models.TaskStatus) {
	t.Status = status
	switch status {
	case models.TaskStatusCompleted:
		t.ProgressPercentage = 100
		if t.CompletedAt == nil {
			now := g.now()
			t.CompletedAt = &now
		}
		return
	case models.TaskStatusNotStarted:
		t.ProgressPercentage = 0
	default:
		if t.ProgressPercentage == 100 {
			t.ProgressPercentage = 99
		}
	}
	t.CompletedAt = nil
}

// AllCompleted reports whether every task, subtasks included, is completed.
// An empty graph is not considered complete.
func (g *TaskGraph) AllCompleted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.tasks) == 0 {
		return false
	}
	for _, t := range g.tasks {
		if t.Status != models.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// CompleteAll marks every task, subtasks included, as completed.
func (g *TaskGraph) CompleteAll() {
	g.mu.Lock()
	var changed []models.Task
	g.walkLocked(func(t *models.Task) {
		if t.Status != models.TaskStatusCompleted {
			g.setStatus(t, models.TaskStatusCompleted)
			changed = append(changed, cloneTask(t))
		}
	})
	g.mu.Unlock()

	for i := range changed {
		g.emit(events.TaskCompleted, &changed[i], "completed by agent loop")
	}
}

// walkLocked visits every task depth-first in plan order.
func (g *TaskGraph) walkLocked(fn func(t *models.Task)) {
	var visit func(id string)
	visit = func(id string) {
		t, ok := g.tasks[id]
		if !ok {
			return
		}
		fn(t)
		for _, sub := range t.SubtaskIDs {
			visit(sub)
		}
	}
	for _, id := range g.roots {
		visit(id)
	}
}

func cloneTask(t *models.Task) models.Task {
	out := *t
	out.Prerequisites = slices.Clone(t.Prerequisites)
	out.SubtaskIDs = slices.Clone(t.SubtaskIDs)
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		out.CompletedAt = &c
	}
	return out
}
