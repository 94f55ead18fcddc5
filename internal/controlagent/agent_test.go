package controlagent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2aeval/evaluator/internal/a2a"
	"github.com/a2aeval/evaluator/internal/assessment"
	"github.com/a2aeval/evaluator/internal/llm"
	"github.com/a2aeval/evaluator/internal/telemetry"
)

// scriptedLLM replays one response per Complete call, in order.
type scriptedLLM struct {
	responses []llm.Response
	calls     int
}

func (s *scriptedLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if s.calls >= len(s.responses) {
		return &llm.Response{Text: "no more scripted responses"}, nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return &resp, nil
}

type fakeOrchestrator struct {
	started bool
	status  assessment.Progress
	result  *assessment.Result
	cfg     assessment.AssessmentConfig
}

func (f *fakeOrchestrator) Start(ctx context.Context, cfg assessment.AssessmentConfig) *assessment.Assessment {
	f.started = true
	f.cfg = cfg
	return &assessment.Assessment{Config: cfg, Tasks: cfg.FlatTasks(), Status: assessment.StatusRunning}
}

func (f *fakeOrchestrator) Status() assessment.Progress { return f.status }

func (f *fakeOrchestrator) Result() (*assessment.Result, bool) {
	if f.result == nil {
		return nil, false
	}
	return f.result, true
}

func configMessage(t *testing.T, contextID string) a2a.Message {
	t.Helper()
	cfg := assessment.AssessmentConfig{
		RunID:            "run-1",
		Benchmarks:       []string{"miniwob"},
		TasksByBenchmark: map[string][]string{"miniwob": {"click-test"}},
		SessionID:        "sess-1",
		PrimaryRole:      "participant",
	}
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	return a2a.Message{
		Role:      a2a.RoleUser,
		Parts:     []a2a.Part{a2a.NewTextPart(string(raw))},
		MessageID: a2a.NewMessageID(),
		ContextID: contextID,
	}
}

func TestHandleMessageStartsAssessmentOnFirstToolCall(t *testing.T) {
	orch := &fakeOrchestrator{}
	script := &scriptedLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "start_assessment", Input: json.RawMessage(`{}`)}}},
		{Text: "Started your assessment."},
	}}

	agent := New(script, NewMemoryHistoryStore(), func() Orchestrator { return orch }, telemetry.NewNoopLogger())

	msg := configMessage(t, "ctx-1")
	reply, err := agent.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, orch.started)
	tp, ok := reply.TextPart()
	require.True(t, ok)
	assert.Equal(t, "Started your assessment.", tp.Text)
	assert.Equal(t, "ctx-1", reply.ContextID)
}

func TestHandleMessageRejectsInvalidMessage(t *testing.T) {
	agent := New(&scriptedLLM{}, NewMemoryHistoryStore(), func() Orchestrator { return &fakeOrchestrator{} }, telemetry.NewNoopLogger())
	_, err := agent.HandleMessage(context.Background(), a2a.Message{Role: a2a.RoleUser})
	assert.Error(t, err)
}

func TestHandleMessageReturnsStatusWithoutStarting(t *testing.T) {
	orch := &fakeOrchestrator{status: assessment.Progress{Status: assessment.StatusRunning, TotalTasks: 3, CompletedCount: 1}}
	script := &scriptedLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_assessment_status", Input: json.RawMessage(`{}`)}}},
		{Text: "One of three tasks done."},
	}}

	agent := New(script, NewMemoryHistoryStore(), func() Orchestrator { return orch }, telemetry.NewNoopLogger())
	st := agent.stateFor("ctx-2")
	st.orch = orch

	msg := a2a.Message{
		Role:      a2a.RoleUser,
		Parts:     []a2a.Part{a2a.NewTextPart("how's it going?")},
		MessageID: a2a.NewMessageID(),
		ContextID: "ctx-2",
	}
	reply, err := agent.HandleMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, orch.started)
	tp, _ := reply.TextPart()
	assert.Equal(t, "One of three tasks done.", tp.Text)
}

func TestHandleMessageUnboundedToolLoopErrors(t *testing.T) {
	orch := &fakeOrchestrator{}
	loopCall := llm.Response{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_assessment_status", Input: json.RawMessage(`{}`)}}}
	script := &scriptedLLM{responses: []llm.Response{loopCall, loopCall, loopCall, loopCall, loopCall}}

	agent := New(script, NewMemoryHistoryStore(), func() Orchestrator { return orch }, telemetry.NewNoopLogger())
	msg := a2a.Message{
		Role:      a2a.RoleUser,
		Parts:     []a2a.Part{a2a.NewTextPart("status please")},
		MessageID: a2a.NewMessageID(),
		ContextID: "ctx-3",
	}
	_, err := agent.HandleMessage(context.Background(), msg)
	assert.Error(t, err)
}
