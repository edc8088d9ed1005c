package synth

// additiveSystem is the system message for additive synthesis.
const additiveSystem = `You are an expert planner and coder. You break a user's goal into concise, relevant tasks. When updating an existing plan you output ONLY the new code that replaces the insertion marker, never the whole program.`

// subtractiveSystem is the system message for subtractive synthesis.
const subtractiveSystem = `You are an expert coder who tracks task progress. You mark tasks completed only when there is clear evidence in the context.`

// repairSystem is the system message for self-repair.
const repairSystem = `You are an expert Starlark programmer. You fix plan programs and reply with only the fixed program.`

// contextPrompt renders the shared context block. Args: event history,
// serialized open views, current program.
const contextPrompt = `Recent events:

` + "```" + `
%s
` + "```" + `

<currently_opened_views>
%s
</currently_opened_views>

The plan is a Starlark program. Here is the current program:

` + "```python" + `
%s
` + "```" + `
`

// additivePrompt is appended after the context for additive synthesis.
// Arg: "IMPROVE the existing plan" or "create a new plan".
const additivePrompt = `Your task is to %s by writing code that replaces the line "# generate new code here".

You may ONLY:
1. Add top-level tasks with plan.add_task(title, description), plan.add_task_after(task, title, description) or plan.add_task_at_index(index, title, description)
2. Add subtasks with plan.create_subtask(parent_task, title, description)
3. Add prerequisites with task.add_prerequisite(name, description)
4. Update titles and descriptions with task.update_title(title) and task.update_description(description)
5. Declare dependencies with task.depends_on_task(other_task)

You may NOT mark tasks completed, remove tasks, or blank tasks.

Rules you MUST follow:
1. NEVER write "def create_plan", "return plan" or "plan = create_plan()".
2. End your code with the line "# generate new code here".
3. Do not repeat code that already exists. Look existing tasks up with plan.get_all_tasks() or plan.get_task_by_id(id).
4. Output only the code, no explanations.

Planning guidelines:
- Break the user's goal into several top-level tasks; use subtasks only for complex tasks.
- Every task must directly serve what the user asked for. Do not extrapolate follow-up goals.
- Events of type user_query are requests still to be done, not things already done.
- Keep the plan minimal: no duplicate or overlapping tasks, no coordination tasks.
- Make dependencies explicit when one task needs another.
- Add a short, friendly "# " comment before each step explaining it in plain language.

Available API:
- TaskGraph: add_task, add_task_after, add_task_at_index, create_subtask, get_task_by_id, get_all_tasks
- Task attributes: id, title, description, status, priority, progress_percentage, subtasks, prerequisites
- Task methods: add_prerequisite(name, description), depends_on_task(task), update_title(title), update_description(description), update_priority(TaskPriority.HIGH)
`

// subtractivePrompt is appended after the context for subtractive synthesis.
const subtractivePrompt = `Your task is to update the plan by writing code that replaces the line "# generate new code here".

You may ONLY:
1. Mark tasks completed with plan.mark_as_completed(task) or task.mark_as_completed()
2. Remove tasks with plan.remove_task(task)
3. Blank tasks that cannot or need not be done with plan.blank_task(task, reason) or task.blank_task(reason)

You may NOT add tasks, subtasks, prerequisites or dependencies, and may NOT change titles or descriptions.

Rules you MUST follow:
1. NEVER write "def create_plan", "return plan" or "plan = create_plan()".
2. End your code with the line "# generate new code here".
3. Look tasks up with plan.get_all_tasks() or plan.get_task_by_id(id).
4. Output only the code, no explanations.

Mark a task completed ONLY when the events and open views give clear evidence it is fully done. Remove tasks that are redundant or beyond the user's request. If nothing should change, output only the marker line.
`

// repairPrompt asks the oracle to fix a program. Args: error, backtrace, program.
const repairPrompt = `The plan program below fails when executed. Fix it.

ERROR:
%s

BACKTRACE:
%s

PROGRAM:
` + "```python" + `
%s
` + "```" + `

Reply with ONLY the complete fixed program. Requirements:
1. It must be valid Starlark and bind the global "plan" to a TaskGraph.
2. Keep the line "# generate new code here".
3. No explanations.
`
