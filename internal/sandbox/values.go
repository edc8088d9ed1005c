package sandbox

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/ShayCichocki/wayfinder/internal/plan"
	"github.com/ShayCichocki/wayfinder/pkg/models"
)

var taskStatusModule = &starlarkstruct.Module{
	Name: "TaskStatus",
	Members: starlark.StringDict{
		"NOT_STARTED": starlark.String(models.TaskStatusNotStarted),
		"IN_PROGRESS": starlark.String(models.TaskStatusInProgress),
		"BLOCKED":     starlark.String(models.TaskStatusBlocked),
		"COMPLETED":   starlark.String(models.TaskStatusCompleted),
	},
}

var taskPriorityModule = &starlarkstruct.Module{
	Name: "TaskPriority",
	Members: starlark.StringDict{
		"LOW":      starlark.String(models.TaskPriorityLow),
		"MEDIUM":   starlark.String(models.TaskPriorityMedium),
		"HIGH":     starlark.String(models.TaskPriorityHigh),
		"CRITICAL": starlark.String(models.TaskPriorityCritical),
	},
}

type builtinFn func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// graphValue exposes a TaskGraph to Starlark.
type graphValue struct {
	g *plan.TaskGraph
}

var (
	_ starlark.HasAttrs = (*graphValue)(nil)
	_ starlark.HasAttrs = (*taskValue)(nil)
	_ starlark.HasAttrs = (*prereqValue)(nil)
)

func (v *graphValue) String() string        { return fmt.Sprintf("TaskGraph(%d tasks)", v.g.Len()) }
func (v *graphValue) Type() string          { return "TaskGraph" }
func (v *graphValue) Freeze()               {}
func (v *graphValue) Truth() starlark.Bool  { return starlark.True }
func (v *graphValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: TaskGraph") }

func (v *graphValue) methods() map[string]builtinFn {
	g := v.g
	return map[string]builtinFn{
		"add_task": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			title, desc, err := unpackSpec(b.Name(), args, kwargs)
			if err != nil {
				return nil, err
			}
			return newTask(g, g.AddTask(title, desc).ID), nil
		},
		"add_task_after": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			after, rest, err := leadingTask(b.Name(), args)
			if err != nil {
				return nil, err
			}
			title, desc, err := unpackSpec(b.Name(), rest, kwargs)
			if err != nil {
				return nil, err
			}
			t, err := g.AddTaskAfter(after, title, desc)
			if err != nil {
				return nil, err
			}
			return newTask(g, t.ID), nil
		},
		"add_task_at_index": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("%s: missing index argument", b.Name())
			}
			var index int
			if err := starlark.AsInt(args[0], &index); err != nil {
				return nil, fmt.Errorf("%s: index: %w", b.Name(), err)
			}
			title, desc, err := unpackSpec(b.Name(), args[1:], kwargs)
			if err != nil {
				return nil, err
			}
			t, err := g.AddTaskAtIndex(index, title, desc)
			if err != nil {
				return nil, err
			}
			return newTask(g, t.ID), nil
		},
		"create_subtask": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			parent, rest, err := leadingTask(b.Name(), args)
			if err != nil {
				return nil, err
			}
			title, desc, err := unpackSpec(b.Name(), rest, kwargs)
			if err != nil {
				return nil, err
			}
			t, err := g.CreateSubtask(parent, title, desc)
			if err != nil {
				return nil, err
			}
			return newTask(g, t.ID), nil
		},
		"remove_task":       taskOp(g.RemoveTask),
		"mark_as_completed": taskOp(g.MarkAsCompleted),
		"mark_as_started":   taskOp(g.MarkAsStarted),
		"blank_task": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var task starlark.Value
			reason := plan.DefaultBlankReason
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "task", &task, "reason?", &reason); err != nil {
				return nil, err
			}
			id, err := taskRef(task)
			if err != nil {
				return nil, err
			}
			return starlark.None, g.BlankTask(id, reason)
		},
		"update_description": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var task starlark.Value
			var desc string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "task", &task, "description", &desc); err != nil {
				return nil, err
			}
			id, err := taskRef(task)
			if err != nil {
				return nil, err
			}
			return starlark.None, g.UpdateDescription(id, desc)
		},
		"get_task_by_id": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var id string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id); err != nil {
				return nil, err
			}
			if _, ok := g.GetTaskByID(id); !ok {
				return starlark.None, nil
			}
			return newTask(g, id), nil
		},
		"get_all_tasks": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return taskList(g, g.GetAllTasks()), nil
		},
		"validate": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			res := g.Validate()
			issues := make([]starlark.Value, len(res.Issues))
			for i, issue := range res.Issues {
				issues[i] = starlark.String(issue)
			}
			d := starlark.NewDict(2)
			_ = d.SetKey(starlark.String("valid"), starlark.Bool(res.Valid))
			_ = d.SetKey(starlark.String("issues"), starlark.NewList(issues))
			return d, nil
		},
		"get_plan_stats": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			s := g.Stats()
			d := starlark.NewDict(6)
			_ = d.SetKey(starlark.String("total_tasks"), starlark.MakeInt(s.TotalTasks))
			_ = d.SetKey(starlark.String("completed_tasks"), starlark.MakeInt(s.CompletedTasks))
			_ = d.SetKey(starlark.String("in_progress_tasks"), starlark.MakeInt(s.InProgressTasks))
			_ = d.SetKey(starlark.String("blocked_tasks"), starlark.MakeInt(s.BlockedTasks))
			_ = d.SetKey(starlark.String("not_started_tasks"), starlark.MakeInt(s.NotStartedTasks))
			_ = d.SetKey(starlark.String("total_progress_percentage"), starlark.MakeInt(s.TotalProgressPercentage))
			return d, nil
		},
	}
}

func (v *graphValue) Attr(name string) (starlark.Value, error) {
	fn, ok := v.methods()[name]
	if !ok {
		return nil, nil
	}
	return starlark.NewBuiltin(name, fn), nil
}

func (v *graphValue) AttrNames() []string {
	return sortedKeys(v.methods())
}

// taskValue is a handle to a task in a graph. Attributes read the live task.
type taskValue struct {
	g  *plan.TaskGraph
	id string
}

func newTask(g *plan.TaskGraph, id string) *taskValue {
	return &taskValue{g: g, id: id}
}

func (v *taskValue) String() string {
	t, ok := v.g.GetTaskByID(v.id)
	if !ok {
		return fmt.Sprintf("Task(%s, removed)", v.id)
	}
	return fmt.Sprintf("Task(%q)", t.Title)
}
func (v *taskValue) Type() string          { return "Task" }
func (v *taskValue) Freeze()               {}
func (v *taskValue) Truth() starlark.Bool  { return starlark.True }
func (v *taskValue) Hash() (uint32, error) { return starlark.String(v.id).Hash() }

var taskFields = []string{
	"id", "title", "description", "status", "priority", "progress_percentage",
	"subtasks", "prerequisites", "parent", "depends_on",
}

func (v *taskValue) methods() map[string]builtinFn {
	g, id := v.g, v.id
	str := func(fn func(id, s string) error, param string) builtinFn {
		return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var s string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, param, &s); err != nil {
				return nil, err
			}
			return starlark.None, fn(id, s)
		}
	}
	return map[string]builtinFn{
		"add_prerequisite": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name, desc string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "description?", &desc); err != nil {
				return nil, err
			}
			p, err := g.AddPrerequisite(id, name, desc)
			if err != nil {
				return nil, err
			}
			return &prereqValue{p: p}, nil
		},
		"remove_prerequisite": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var p starlark.Value
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "prerequisite", &p); err != nil {
				return nil, err
			}
			var pid string
			switch p := p.(type) {
			case *prereqValue:
				pid = p.p.ID
			case starlark.String:
				pid = string(p)
			default:
				return nil, fmt.Errorf("%s: want Prerequisite or id string, got %s", b.Name(), p.Type())
			}
			return starlark.None, g.RemovePrerequisite(id, pid)
		},
		"depends_on_task": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var dep starlark.Value
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "task", &dep); err != nil {
				return nil, err
			}
			depID, err := taskRef(dep)
			if err != nil {
				return nil, err
			}
			return starlark.None, g.DependsOnTask(id, depID)
		},
		"update_status": str(func(id, s string) error {
			return g.UpdateStatus(id, models.TaskStatus(s))
		}, "status"),
		"update_priority": str(func(id, s string) error {
			return g.UpdatePriority(id, models.TaskPriority(s))
		}, "priority"),
		"update_progress": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var pct int
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "percentage", &pct); err != nil {
				return nil, err
			}
			return starlark.None, g.UpdateProgress(id, pct)
		},
		"update_description": str(g.UpdateDescription, "description"),
		"update_title":       str(g.UpdateTitle, "title"),
		"mark_as_completed": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			return starlark.None, g.MarkAsCompleted(id)
		},
		"blank_task": func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			reason := plan.DefaultBlankReason
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "reason?", &reason); err != nil {
				return nil, err
			}
			return starlark.None, g.BlankTask(id, reason)
		},
	}
}

func (v *taskValue) Attr(name string) (starlark.Value, error) {
	if fn, ok := v.methods()[name]; ok {
		return starlark.NewBuiltin(name, fn), nil
	}

	t, ok := v.g.GetTaskByID(v.id)
	if !ok {
		return nil, fmt.Errorf("task %s is no longer in the plan", v.id)
	}
	switch name {
	case "id":
		return starlark.String(t.ID), nil
	case "title":
		return starlark.String(t.Title), nil
	case "description":
		return starlark.String(t.Description), nil
	case "status":
		return starlark.String(t.Status), nil
	case "priority":
		return starlark.String(t.Priority), nil
	case "progress_percentage":
		return starlark.MakeInt(t.ProgressPercentage), nil
	case "is_done":
		return starlark.Bool(t.IsCompleted()), nil
	case "subtasks":
		subs, err := v.g.Subtasks(v.id)
		if err != nil {
			return nil, err
		}
		return taskList(v.g, subs), nil
	case "prerequisites":
		out := make([]starlark.Value, len(t.Prerequisites))
		for i, p := range t.Prerequisites {
			out[i] = &prereqValue{p: p}
		}
		return starlark.NewList(out), nil
	case "parent":
		if t.ParentID == "" {
			return starlark.None, nil
		}
		return newTask(v.g, t.ParentID), nil
	case "depends_on":
		if t.DependsOn == "" {
			return starlark.None, nil
		}
		return newTask(v.g, t.DependsOn), nil
	}
	return nil, nil
}

func (v *taskValue) AttrNames() []string {
	names := append(sortedKeys(v.methods()), taskFields...)
	names = append(names, "is_done")
	sort.Strings(names)
	return names
}

// prereqValue is an immutable prerequisite record.
type prereqValue struct {
	p models.Prerequisite
}

func (v *prereqValue) String() string        { return fmt.Sprintf("Prerequisite(%q)", v.p.Name) }
func (v *prereqValue) Type() string          { return "Prerequisite" }
func (v *prereqValue) Freeze()               {}
func (v *prereqValue) Truth() starlark.Bool  { return starlark.True }
func (v *prereqValue) Hash() (uint32, error) { return starlark.String(v.p.ID).Hash() }

func (v *prereqValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "id":
		return starlark.String(v.p.ID), nil
	case "name":
		return starlark.String(v.p.Name), nil
	case "description":
		return starlark.String(v.p.Description), nil
	}
	return nil, nil
}

func (v *prereqValue) AttrNames() []string { return []string{"description", "id", "name"} }

// taskOp adapts a graph operation on one task to a builtin.
func taskOp(op func(id string) error) builtinFn {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var task starlark.Value
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "task", &task); err != nil {
			return nil, err
		}
		id, err := taskRef(task)
		if err != nil {
			return nil, err
		}
		return starlark.None, op(id)
	}
}

// taskRef accepts a Task value or a task ID string.
func taskRef(v starlark.Value) (string, error) {
	switch v := v.(type) {
	case *taskValue:
		return v.id, nil
	case starlark.String:
		return string(v), nil
	default:
		return "", fmt.Errorf("want Task or id string, got %s", v.Type())
	}
}

func leadingTask(fnname string, args starlark.Tuple) (string, starlark.Tuple, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("%s: missing task argument", fnname)
	}
	id, err := taskRef(args[0])
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", fnname, err)
	}
	return id, args[1:], nil
}

// unpackSpec reads a task title and description given either as arguments
// or as a single dict with "title" and "description" keys.
func unpackSpec(fnname string, args starlark.Tuple, kwargs []starlark.Tuple) (title, desc string, err error) {
	if len(args) == 1 && len(kwargs) == 0 {
		if d, ok := args[0].(*starlark.Dict); ok {
			return specFromDict(fnname, d)
		}
	}
	err = starlark.UnpackArgs(fnname, args, kwargs, "title", &title, "description?", &desc)
	return title, desc, err
}

func specFromDict(fnname string, d *starlark.Dict) (string, string, error) {
	get := func(key string) (string, error) {
		v, found, err := d.Get(starlark.String(key))
		if err != nil || !found {
			return "", err
		}
		s, ok := starlark.AsString(v)
		if !ok {
			return "", fmt.Errorf("%s: %s must be a string, got %s", fnname, key, v.Type())
		}
		return s, nil
	}
	title, err := get("title")
	if err != nil {
		return "", "", err
	}
	if title == "" {
		return "", "", fmt.Errorf("%s: missing title", fnname)
	}
	desc, err := get("description")
	return title, desc, err
}

func taskList(g *plan.TaskGraph, tasks []models.Task) *starlark.List {
	out := make([]starlark.Value, len(tasks))
	for i, t := range tasks {
		out[i] = newTask(g, t.ID)
	}
	return starlark.NewList(out)
}

func sortedKeys(m map[string]builtinFn) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
