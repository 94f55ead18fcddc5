// Package controlagent handles inbound A2A messages on the Evaluator
// endpoint by forwarding them to an LLM with exactly three assessment-control
// tools bound: start_assessment, get_assessment_status, get_assessment_result.
// The agent never drives, polls, or retries an assessment itself; that is the
// orchestrator's job.
package controlagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/a2aeval/evaluator/internal/a2a"
	"github.com/a2aeval/evaluator/internal/assessment"
	"github.com/a2aeval/evaluator/internal/llm"
	"github.com/a2aeval/evaluator/internal/telemetry"
)

const systemPrompt = `You are the control agent for a web-automation evaluation harness. You have three tools:
start_assessment starts the evaluation run bound to the current conversation, get_assessment_status reports its progress, and get_assessment_result reports its outcome once available.
Call start_assessment the first time a caller asks you to begin an assessment. Use get_assessment_status or get_assessment_result for follow-up questions about a run already underway. Never call a tool that is not one of the three listed.`

// Orchestrator is the subset of *orchestrator.Orchestrator the agent drives.
// Defined here, narrowed to what this package calls, so tests can supply a
// fake instead of a real background state machine.
type Orchestrator interface {
	Start(ctx context.Context, cfg assessment.AssessmentConfig) *assessment.Assessment
	Status() assessment.Progress
	Result() (*assessment.Result, bool)
}

// contextState is the per-conversation state the agent tracks: the
// assessment configuration parsed from an early message, and the
// orchestrator instance bound to it once start_assessment has fired.
type contextState struct {
	cfg  *assessment.AssessmentConfig
	orch Orchestrator
}

// Agent routes inbound A2A messages to a bound LLM client and dispatches its
// tool calls against a per-context orchestrator.
type Agent struct {
	llm         llm.Client
	history     HistoryStore
	newOrch     func() Orchestrator
	logger      telemetry.Logger
	maxToolTurn int

	mu       sync.Mutex
	contexts map[string]*contextState
}

// New builds an Agent. newOrch constructs a fresh orchestrator bound to
// shared evaluator resources; it is called once per context, the first time
// start_assessment runs for a context that has a parsed AssessmentConfig.
func New(client llm.Client, history HistoryStore, newOrch func() Orchestrator, logger telemetry.Logger) *Agent {
	return &Agent{
		llm:         client,
		history:     history,
		newOrch:     newOrch,
		logger:      logger,
		maxToolTurn: 4,
		contexts:    make(map[string]*contextState),
	}
}

func (a *Agent) stateFor(contextID string) *contextState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.contexts[contextID]
	if !ok {
		st = &contextState{}
		a.contexts[contextID] = st
	}
	return st
}

// HandleMessage implements the message routing policy: parse a candidate
// AssessmentConfig out of the inbound text if the context does not have one
// yet, forward the text to the LLM with the three control tools bound, and
// return the LLM's final output as the outbound message's TextPart.
func (a *Agent) HandleMessage(ctx context.Context, msg a2a.Message) (a2a.Message, error) {
	if err := msg.Validate(); err != nil {
		return a2a.Message{}, err
	}
	contextID := msg.ContextID
	if contextID == "" {
		contextID = a2a.NewContextID()
	}

	st := a.stateFor(contextID)

	text, _ := msg.TextPart()
	if st.cfg == nil {
		if cfg, ok := parseAssessmentConfig(text.Text); ok {
			st.cfg = &cfg
		}
	}

	history, _, err := a.history.Load(ctx, contextID)
	if err != nil {
		return a2a.Message{}, fmt.Errorf("controlagent: load history: %w", err)
	}
	history = append(history, llm.Message{Role: llm.RoleUser, Text: text.Text})

	reply, err := a.converse(ctx, st, &history)
	if err != nil {
		return a2a.Message{}, err
	}

	if err := a.history.Save(ctx, contextID, history); err != nil {
		a.logger.Warn(ctx, "controlagent: save history failed", "err", err)
	}

	return a2a.Message{
		Kind:      "message",
		Role:      a2a.RoleAgent,
		Parts:     []a2a.Part{a2a.NewTextPart(reply)},
		MessageID: a2a.NewMessageID(),
		ContextID: contextID,
	}, nil
}

// converse runs the bounded tool-call loop: ask the LLM, execute any tool
// calls it requests against st, feed the results back, and repeat until it
// answers with plain text. history is mutated in place with every turn so
// the caller can persist the full transcript afterward.
func (a *Agent) converse(ctx context.Context, st *contextState, history *[]llm.Message) (string, error) {
	tools := toolDefinitions()
	for turn := 0; turn < a.maxToolTurn; turn++ {
		resp, err := a.llm.Complete(ctx, llm.Request{
			System:   systemPrompt,
			Messages: *history,
			Tools:    tools,
		})
		if err != nil {
			return "", fmt.Errorf("controlagent: llm complete: %w", err)
		}
		if len(resp.ToolCalls) == 0 {
			*history = append(*history, llm.Message{Role: llm.RoleAssistant, Text: resp.Text})
			return resp.Text, nil
		}

		*history = append(*history, llm.Message{Role: llm.RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls})

		results := make([]llm.ToolResult, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			content, isErr := a.dispatch(ctx, st, tc)
			results = append(results, llm.ToolResult{ToolCallID: tc.ID, Content: content, IsError: isErr})
		}
		*history = append(*history, llm.Message{Role: llm.RoleUser, ToolResults: results})
	}
	return "", fmt.Errorf("controlagent: exceeded %d tool-call turns without a final answer", a.maxToolTurn)
}

func (a *Agent) dispatch(ctx context.Context, st *contextState, tc llm.ToolCall) (string, bool) {
	switch tc.Name {
	case "start_assessment":
		return a.startAssessment(ctx, st)
	case "get_assessment_status":
		return a.assessmentStatus(st)
	case "get_assessment_result":
		return a.assessmentResult(st)
	default:
		return fmt.Sprintf("unknown tool %q", tc.Name), true
	}
}

func (a *Agent) startAssessment(ctx context.Context, st *contextState) (string, bool) {
	if st.cfg == nil {
		return "no assessment configuration has been supplied for this conversation yet", true
	}
	if st.orch == nil {
		st.orch = a.newOrch()
	}
	run := st.orch.Start(ctx, *st.cfg)
	snap := run.Snapshot()
	return fmt.Sprintf(
		"assessment started: %d task(s) across benchmarks [%s], first task %s",
		snap.TotalTasks, strings.Join(st.cfg.Benchmarks, ", "), firstTaskID(run),
	), false
}

func (a *Agent) assessmentStatus(st *contextState) (string, bool) {
	if st.orch == nil {
		return "not started", false
	}
	snap := st.orch.Status()
	return summarizeProgress(snap), false
}

func (a *Agent) assessmentResult(st *contextState) (string, bool) {
	if st.orch == nil {
		return "not started", false
	}
	snap := st.orch.Status()
	if snap.Status != assessment.StatusComplete {
		return summarizeProgress(snap), false
	}
	result, ok := st.orch.Result()
	if !ok {
		return summarizeProgress(snap), false
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("result available but could not be serialized: %v", err), true
	}
	return string(raw), false
}

func firstTaskID(run *assessment.Assessment) string {
	if len(run.Tasks) == 0 {
		return ""
	}
	return run.Tasks[0].TaskID
}

func summarizeProgress(p assessment.Progress) string {
	return fmt.Sprintf(
		"status=%s current=%d/%d completed=%d passed=%d success_rate=%.2f %s",
		p.Status, p.CurrentIndex, p.TotalTasks, p.CompletedCount, p.PassedCount, p.SuccessRate, p.Summary,
	)
}

// parseAssessmentConfig attempts to decode text as a JSON-encoded
// AssessmentConfig. A failure to parse is not an error condition: most
// inbound text is ordinary conversation, not a new assessment request.
func parseAssessmentConfig(text string) (assessment.AssessmentConfig, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return assessment.AssessmentConfig{}, false
	}
	var cfg assessment.AssessmentConfig
	if err := json.Unmarshal([]byte(trimmed), &cfg); err != nil {
		return assessment.AssessmentConfig{}, false
	}
	if len(cfg.Benchmarks) == 0 || cfg.SessionID == "" {
		return assessment.AssessmentConfig{}, false
	}
	return cfg, true
}

func toolDefinitions() []llm.ToolDefinition {
	empty := json.RawMessage(`{"type":"object","properties":{}}`)
	return []llm.ToolDefinition{
		{
			Name:        "start_assessment",
			Description: "Start the orchestrator on the assessment bound to this conversation. No-op if already running or complete.",
			InputSchema: empty,
		},
		{
			Name:        "get_assessment_status",
			Description: "Return the current orchestrator snapshot: status, current index, completed count, passed count, success rate.",
			InputSchema: empty,
		},
		{
			Name:        "get_assessment_result",
			Description: "Return the assessment's terminal result if complete, otherwise its current progress.",
			InputSchema: empty,
		},
	}
}
