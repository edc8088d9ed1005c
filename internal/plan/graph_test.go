package plan

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ShayCichocki/wayfinder/internal/events"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func titles(tasks []models.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Title
	}
	return out
}

func TestAddTask_Ordering(t *testing.T) {
	g := New()
	a := g.AddTask("A", "")
	c := g.AddTask("C", "")

	if _, err := g.AddTaskAfter(a.ID, "B", ""); err != nil {
		t.Fatalf("AddTaskAfter() error = %v", err)
	}
	if _, err := g.AddTaskAtIndex(0, "Start", ""); err != nil {
		t.Fatalf("AddTaskAtIndex(0) error = %v", err)
	}
	if _, err := g.AddTaskAtIndex(4, "End", ""); err != nil {
		t.Fatalf("AddTaskAtIndex(len) error = %v", err)
	}

	got := strings.Join(titles(g.GetAllTasks()), ",")
	if got != "Start,A,B,C,End" {
		t.Errorf("order = %s, want Start,A,B,C,End", got)
	}

	if _, ok := g.GetTaskByID(c.ID); !ok {
		t.Error("GetTaskByID(C) not found")
	}
}

func TestAddTaskAtIndex_OutOfRange(t *testing.T) {
	g := New()
	g.AddTask("A", "")

	for _, idx := range []int{-1, 2} {
		_, err := g.AddTaskAtIndex(idx, "X", "")
		if !errors.Is(err, ErrInvalidIndex) {
			t.Errorf("AddTaskAtIndex(%d) error = %v, want ErrInvalidIndex", idx, err)
		}
	}
	if len(g.GetAllTasks()) != 1 {
		t.Error("failed insert changed the graph")
	}
}

func TestNotFound(t *testing.T) {
	g := New()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"remove_task", func() error { return g.RemoveTask("missing") }},
		{"add_task_after", func() error { _, err := g.AddTaskAfter("missing", "x", ""); return err }},
		{"create_subtask", func() error { _, err := g.CreateSubtask("missing", "x", ""); return err }},
		{"mark_as_completed", func() error { return g.MarkAsCompleted("missing") }},
		{"blank_task", func() error { return g.BlankTask("missing", "") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("error = %v, want ErrNotFound", err)
			}
			var ge *GraphError
			if !errors.As(err, &ge) || ge.Op != tt.name {
				t.Errorf("GraphError op = %v, want %s", ge, tt.name)
			}
		})
	}
}

func TestSubtasks(t *testing.T) {
	g := New()
	parent := g.AddTask("Parent", "")
	sub, err := g.CreateSubtask(parent.ID, "Child", "")
	if err != nil {
		t.Fatalf("CreateSubtask() error = %v", err)
	}
	grand, err := g.CreateSubtask(sub.ID, "Grandchild", "")
	if err != nil {
		t.Fatalf("CreateSubtask(nested) error = %v", err)
	}

	if got := len(g.GetAllTasks()); got != 1 {
		t.Errorf("GetAllTasks() len = %d, want 1 (top-level only)", got)
	}
	found, ok := g.GetTaskByID(sub.ID)
	if !ok || found.ParentID != parent.ID {
		t.Errorf("GetTaskByID(sub) = %+v, %v", found, ok)
	}

	if err := g.RemoveTask(parent.ID); err != nil {
		t.Fatalf("RemoveTask() error = %v", err)
	}
	if _, ok := g.GetTaskByID(grand.ID); ok {
		t.Error("grandchild survived removal of its ancestor")
	}
	if g.Len() != 0 {
		t.Errorf("Len() = %d, want 0", g.Len())
	}
}

func TestRemoveTask_LastTask(t *testing.T) {
	g := New()
	task := g.AddTask("Open notes app", "")

	if err := g.RemoveTask(task.ID); err != nil {
		t.Fatalf("RemoveTask() error = %v", err)
	}
	got := g.GetAllTasks()
	if got == nil || len(got) != 0 {
		t.Errorf("GetAllTasks() = %#v, want empty slice", got)
	}
	if _, ok := g.GetTaskByID(task.ID); ok {
		t.Error("removed task still found by id")
	}
}

func TestRemoveSubtask(t *testing.T) {
	g := New()
	parent := g.AddTask("Parent", "")
	sub, _ := g.CreateSubtask(parent.ID, "Child", "")

	if err := g.RemoveTask(sub.ID); err != nil {
		t.Fatalf("RemoveTask(sub) error = %v", err)
	}
	subs, err := g.Subtasks(parent.ID)
	if err != nil || len(subs) != 0 {
		t.Errorf("Subtasks() = %v, %v; want empty", subs, err)
	}
}

func TestProgressStatusSync(t *testing.T) {
	g := New()
	task := g.AddTask("A", "")

	get := func() models.Task {
		got, _ := g.GetTaskByID(task.ID)
		return got
	}

	if err := g.UpdateProgress(task.ID, 40); err != nil {
		t.Fatalf("UpdateProgress(40) error = %v", err)
	}
	if got := get(); got.Status != models.TaskStatusInProgress {
		t.Errorf("status after progress 40 = %s, want in_progress", got.Status)
	}

	if err := g.UpdateProgress(task.ID, 100); err != nil {
		t.Fatalf("UpdateProgress(100) error = %v", err)
	}
	if got := get(); got.Status != models.TaskStatusCompleted || got.CompletedAt == nil {
		t.Errorf("after progress 100: status = %s, completed_at = %v", got.Status, got.CompletedAt)
	}

	if err := g.UpdateStatus(task.ID, models.TaskStatusBlocked); err != nil {
		t.Fatalf("UpdateStatus(blocked) error = %v", err)
	}
	if got := get(); got.ProgressPercentage == 100 {
		t.Error("progress stayed 100 after leaving completed")
	}

	if err := g.UpdateStatus(task.ID, models.TaskStatusNotStarted); err != nil {
		t.Fatalf("UpdateStatus(not_started) error = %v", err)
	}
	if got := get(); got.ProgressPercentage != 0 {
		t.Errorf("progress after not_started = %d, want 0", got.ProgressPercentage)
	}

	if err := g.MarkAsCompleted(task.ID); err != nil {
		t.Fatalf("MarkAsCompleted() error = %v", err)
	}
	if got := get(); got.ProgressPercentage != 100 {
		t.Errorf("progress after complete = %d, want 100", got.ProgressPercentage)
	}

	for _, bad := range []int{-1, 101} {
		if err := g.UpdateProgress(task.ID, bad); !errors.Is(err, ErrInvalidProgress) {
			t.Errorf("UpdateProgress(%d) error = %v, want ErrInvalidProgress", bad, err)
		}
	}
}

func TestBlankTask(t *testing.T) {
	g := New()
	task := g.AddTask("Buy milk", "From the store")

	if err := g.BlankTask(task.ID, ""); err != nil {
		t.Fatalf("BlankTask() error = %v", err)
	}
	got, _ := g.GetTaskByID(task.ID)
	if got.Title != "[BLANKED] Buy milk" {
		t.Errorf("Title = %q", got.Title)
	}
	want := "[BLANKED] From the store\n\nReason: " + DefaultBlankReason
	if got.Description != want {
		t.Errorf("Description = %q, want %q", got.Description, want)
	}
	if got.Status != models.TaskStatusCompleted || got.ProgressPercentage != 100 {
		t.Errorf("status/progress = %s/%d, want completed/100", got.Status, got.ProgressPercentage)
	}
}

func TestPrerequisites(t *testing.T) {
	g := New()
	task := g.AddTask("A", "")

	p, err := g.AddPrerequisite(task.ID, "Login", "User must be signed in")
	if err != nil {
		t.Fatalf("AddPrerequisite() error = %v", err)
	}
	if err := g.RemovePrerequisite(task.ID, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("RemovePrerequisite(unknown) error = %v, want ErrNotFound", err)
	}
	if err := g.RemovePrerequisite(task.ID, p.ID); err != nil {
		t.Fatalf("RemovePrerequisite() error = %v", err)
	}
	got, _ := g.GetTaskByID(task.ID)
	if len(got.Prerequisites) != 0 {
		t.Errorf("Prerequisites = %v, want empty", got.Prerequisites)
	}
}

func TestValidate(t *testing.T) {
	t.Run("empty plan", func(t *testing.T) {
		v := New().Validate()
		if v.Valid || len(v.Issues) != 1 || v.Issues[0] != "Plan has no tasks" {
			t.Errorf("Validate() = %+v", v)
		}
	})

	t.Run("valid chain", func(t *testing.T) {
		g := New()
		a := g.AddTask("A", "")
		b := g.AddTask("B", "")
		if err := g.DependsOnTask(b.ID, a.ID); err != nil {
			t.Fatal(err)
		}
		if v := g.Validate(); !v.Valid {
			t.Errorf("Validate() = %+v, want valid", v)
		}
	})

	t.Run("dangling dependency", func(t *testing.T) {
		g := New()
		a := g.AddTask("A", "")
		b := g.AddTask("B", "")
		_ = g.DependsOnTask(b.ID, a.ID)
		_ = g.RemoveTask(a.ID)

		v := g.Validate()
		if v.Valid || len(v.Issues) != 1 || !strings.Contains(v.Issues[0], "not in the plan") {
			t.Errorf("Validate() = %+v", v)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		g := New()
		a := g.AddTask("A", "")
		b := g.AddTask("B", "")
		c := g.AddTask("C", "")
		_ = g.DependsOnTask(a.ID, b.ID)
		_ = g.DependsOnTask(b.ID, c.ID)
		_ = g.DependsOnTask(c.ID, a.ID)

		v := g.Validate()
		if v.Valid || len(v.Issues) != 1 {
			t.Fatalf("Validate() = %+v, want exactly one cycle issue", v)
		}
		if !strings.Contains(v.Issues[0], `"A"`) {
			t.Errorf("issue = %q, want it to name task A", v.Issues[0])
		}
	})

	t.Run("self dependency rejected", func(t *testing.T) {
		g := New()
		a := g.AddTask("A", "")
		if err := g.DependsOnTask(a.ID, a.ID); !errors.Is(err, ErrSelfDependency) {
			t.Errorf("DependsOnTask(self) error = %v", err)
		}
	})
}

func TestStats(t *testing.T) {
	g := New()
	if s := g.Stats(); s != (Stats{}) {
		t.Errorf("Stats() on empty = %+v, want zero", s)
	}

	a := g.AddTask("A", "")
	b := g.AddTask("B", "")
	g.AddTask("C", "")
	_ = g.MarkAsCompleted(a.ID)
	_ = g.UpdateProgress(b.ID, 50)

	want := Stats{
		TotalTasks:              3,
		CompletedTasks:          1,
		InProgressTasks:         1,
		NotStartedTasks:         1,
		TotalProgressPercentage: 50,
	}
	if got := g.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
	if got := g.Stats(); got != want {
		t.Errorf("Stats() not idempotent: %+v", got)
	}
}

func TestAllCompletedAndCompleteAll(t *testing.T) {
	g := New()
	if g.AllCompleted() {
		t.Error("empty plan reported complete")
	}

	a := g.AddTask("A", "")
	sub, _ := g.CreateSubtask(a.ID, "A.1", "")
	_ = g.MarkAsCompleted(a.ID)
	if g.AllCompleted() {
		t.Error("plan with incomplete subtask reported complete")
	}

	_ = g.BlankTask(sub.ID, "not needed")
	if !g.AllCompleted() {
		t.Error("blanked subtask should count as completed")
	}

	g.AddTask("B", "")
	g.CompleteAll()
	if !g.AllCompleted() {
		t.Error("CompleteAll() left tasks incomplete")
	}
}

func TestMutationsEmitEvents(t *testing.T) {
	sink := &recordingSink{}
	g := New(WithSink(sink))

	a := g.AddTask("A", "")
	sub, _ := g.CreateSubtask(a.ID, "A.1", "")
	_ = g.UpdateDescription(a.ID, "new")
	_ = g.MarkAsCompleted(sub.ID)
	_ = g.RemoveTask(a.ID)
	_ = g.RemoveTask(a.ID) // not found: no event

	want := []events.Type{events.TaskAdded, events.TaskAdded, events.TaskUpdated, events.TaskCompleted, events.TaskRemoved}
	got := sink.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSnapshot(t *testing.T) {
	g := New()
	a := g.AddTask("A", "")
	_, _ = g.CreateSubtask(a.ID, "A.1", "")

	s := g.Snapshot()
	if len(s.Tasks) != 1 || len(s.Tasks[0].Subtasks) != 1 {
		t.Fatalf("Snapshot() = %+v", s)
	}
	if !s.Validation.Valid || s.Stats.TotalTasks != 1 {
		t.Errorf("Snapshot stats/validation = %+v / %+v", s.Stats, s.Validation)
	}
	if !strings.Contains(g.Serialize(), `"title": "A.1"`) {
		t.Error("Serialize() missing subtask")
	}
}
