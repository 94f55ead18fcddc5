package participant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/a2aeval/evaluator/internal/benchmark"
	"github.com/a2aeval/evaluator/internal/toolserver"
)

// ToolServerConnection describes where a participant reaches the Tool
// Server for the task it is about to run.
type ToolServerConnection struct {
	Transport string
	URL       string
	SessionID string
}

// TaskDetailsInput carries everything BuildTaskDetails needs to render a
// deterministic document. A consumer relying only on this text, with no
// structured DataPart, must be able to drive the task end to end.
type TaskDetailsInput struct {
	TaskID       string
	Benchmark    string
	Profile      benchmark.Profile
	MaxToolCalls int
	Connection   ToolServerConnection
	Tools        []toolserver.Descriptor
	Goal         string
}

// BuildTaskDetails renders the plain-text task-assignment document. The
// output is deterministic for a given input: tool descriptors are sorted by
// name before being written.
func BuildTaskDetails(in TaskDetailsInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task: %s\n", in.TaskID)
	fmt.Fprintf(&b, "Benchmark: %s\n\n", in.Benchmark)

	b.WriteString("Profile:\n")
	fmt.Fprintf(&b, "  token_limit: %d\n", in.Profile.TokenLimit)
	fmt.Fprintf(&b, "  observation_mode: %s\n\n", in.Profile.ObservationMode)

	b.WriteString("Instructions:\n")
	fmt.Fprintf(&b, "  You may invoke at most %d tool calls for this task.\n", in.MaxToolCalls)
	b.WriteString("  Drive the browser using the tools listed below; call send_msg_to_user when done.\n\n")

	b.WriteString("Tool server:\n")
	fmt.Fprintf(&b, "  transport: %s\n", in.Connection.Transport)
	fmt.Fprintf(&b, "  url: %s\n", in.Connection.URL)
	if in.Connection.SessionID != "" {
		fmt.Fprintf(&b, "  session_id: %s\n", in.Connection.SessionID)
	}
	b.WriteString("\n")

	tools := make([]toolserver.Descriptor, len(in.Tools))
	copy(tools, in.Tools)
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })

	b.WriteString("Tools:\n")
	for _, t := range tools {
		fmt.Fprintf(&b, "  - %s: %s\n", t.Name, t.Description)
		writeSchemaParams(&b, t.InputSchema)
	}
	b.WriteString("\n")

	if in.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", in.Goal)
	}

	return b.String()
}

func writeSchemaParams(b *strings.Builder, schema map[string]any) {
	if schema == nil {
		return
	}
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return
	}
	required := map[string]bool{}
	if reqList, ok := schema["required"].([]any); ok {
		for _, r := range reqList {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		typ := "any"
		if m, ok := props[name].(map[string]any); ok {
			if t, ok := m["type"].(string); ok {
				typ = t
			}
		}
		req := ""
		if required[name] {
			req = ", required"
		}
		fmt.Fprintf(b, "      %s: %s%s\n", name, typ, req)
	}
}
