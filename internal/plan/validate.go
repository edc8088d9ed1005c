package plan

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/ShayCichocki/wayfinder/pkg/models"
)

// Validation is the result of Validate.
type Validation struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// Validate checks the plan for structural problems: an empty plan,
// dependencies on tasks that are not in the plan, and circular dependencies.
// At most one cycle is reported.
func (g *TaskGraph) Validate() Validation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	issues := []string{}
	if len(g.roots) == 0 {
		issues = append(issues, "Plan has no tasks")
	}

	var ordered []*models.Task
	g.walkLocked(func(t *models.Task) { ordered = append(ordered, t) })

	for _, t := range ordered {
		if t.DependsOn == "" {
			continue
		}
		if _, ok := g.tasks[t.DependsOn]; !ok {
			issues = append(issues, fmt.Sprintf("Task %q depends on a task that is not in the plan", t.Title))
		}
	}

	if t := g.findCycleLocked(ordered); t != nil {
		issues = append(issues, fmt.Sprintf("Circular dependency detected involving task %q", t.Title))
	}

	return Validation{Valid: len(issues) == 0, Issues: issues}
}

// findCycleLocked returns the first task, in plan order, from which a
// dependency cycle is reachable. Uses depth-first search with coloring to
// detect back edges.
func (g *TaskGraph) findCycleLocked(ordered []*models.Task) *models.Task {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.tasks))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		if t, ok := g.tasks[id]; ok && t.DependsOn != "" {
			if _, exists := g.tasks[t.DependsOn]; exists {
				switch colors[t.DependsOn] {
				case 1:
					return true
				case 0:
					if visit(t.DependsOn) {
						return true
					}
				}
			}
		}

		colors[id] = 2
		return false
	}

	for _, t := range ordered {
		if colors[t.ID] == 0 && visit(t.ID) {
			return t
		}
	}
	return nil
}

// Stats summarises the top-level tasks of a plan.
type Stats struct {
	TotalTasks              int `json:"total_tasks"`
	CompletedTasks          int `json:"completed_tasks"`
	InProgressTasks         int `json:"in_progress_tasks"`
	BlockedTasks            int `json:"blocked_tasks"`
	NotStartedTasks         int `json:"not_started_tasks"`
	TotalProgressPercentage int `json:"total_progress_percentage"`
}

// Stats counts top-level tasks by status and reports their mean progress,
// rounded to the nearest integer.
func (g *TaskGraph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var s Stats
	total := 0
	for _, id := range g.roots {
		t := g.tasks[id]
		s.TotalTasks++
		total += t.ProgressPercentage
		switch t.Status {
		case models.TaskStatusCompleted:
			s.CompletedTasks++
		case models.TaskStatusInProgress:
			s.InProgressTasks++
		case models.TaskStatusBlocked:
			s.BlockedTasks++
		case models.TaskStatusNotStarted:
			s.NotStartedTasks++
		}
	}
	if s.TotalTasks > 0 {
		s.TotalProgressPercentage = int(math.Round(float64(total) / float64(s.TotalTasks)))
	}
	return s
}

// TaskNode is the nested, serializable form of a task.
type TaskNode struct {
	ID                 string                `json:"id"`
	Title              string                `json:"title"`
	Description        string                `json:"description,omitempty"`
	Status             models.TaskStatus     `json:"status"`
	Priority           models.TaskPriority   `json:"priority"`
	ProgressPercentage int                   `json:"progress_percentage"`
	Prerequisites      []models.Prerequisite `json:"prerequisites,omitempty"`
	DependsOn          string                `json:"depends_on,omitempty"`
	ParentID           string                `json:"parent_id,omitempty"`
	Subtasks           []TaskNode            `json:"subtasks,omitempty"`
}

// Snapshot is a point-in-time copy of a plan.
type Snapshot struct {
	Tasks      []TaskNode `json:"tasks"`
	Stats      Stats      `json:"stats"`
	Validation Validation `json:"validation"`
}

// Snapshot returns a nested copy of the plan with stats and validation.
func (g *TaskGraph) Snapshot() Snapshot {
	g.mu.RLock()
	var build func(id string) TaskNode
	build = func(id string) TaskNode {
		t := g.tasks[id]
		n := TaskNode{
			ID:                 t.ID,
			Title:              t.Title,
			Description:        t.Description,
			Status:             t.Status,
			Priority:           t.Priority,
			ProgressPercentage: t.ProgressPercentage,
			Prerequisites:      cloneTask(t).Prerequisites,
			DependsOn:          t.DependsOn,
			ParentID:           t.ParentID,
		}
		for _, sub := range t.SubtaskIDs {
			n.Subtasks = append(n.Subtasks, build(sub))
		}
		return n
	}
	tasks := make([]TaskNode, 0, len(g.roots))
	for _, id := range g.roots {
		tasks = append(tasks, build(id))
	}
	g.mu.RUnlock()

	return Snapshot{Tasks: tasks, Stats: g.Stats(), Validation: g.Validate()}
}

// Serialize renders the plan as indented JSON for prompts and storage.
func (g *TaskGraph) Serialize() string {
	data, err := json.MarshalIndent(g.Snapshot(), "", "  ")
	if err != nil {
		// Snapshot holds only strings and numbers.
		return "{}"
	}
	return string(data)
}
