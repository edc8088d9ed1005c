package executor

const fieldsSystem = `You are a helpful assistant that generates tool calls with appropriate parameters. You reply with a single JSON object.`

// fieldsPrompt args: history, plan, tool definition JSON, action name.
const fieldsPrompt = `You are an agent navigating a virtual computer to fulfill user demands.

You need to execute an action by generating a tool call with appropriate parameters.

<events_stream>
%s
</events_stream>

<current_execution_plan>
%s
</current_execution_plan>

<tool_definition>
%s
</tool_definition>

You need to execute the action %q.
Based on the context and the tool definition above, generate appropriate values for each parameter.
Your response must be a valid JSON object with parameter names as keys and values that match the schema.`
