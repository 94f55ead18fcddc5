package toolserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2aeval/evaluator/internal/benchmark"
	"github.com/a2aeval/evaluator/internal/browser"
	"github.com/a2aeval/evaluator/internal/observation"
	"github.com/a2aeval/evaluator/internal/state"
)

// fakeDriver is a scripted sessionDriver for exercising Server logic without
// a real browser.
type fakeDriver struct {
	steps    []browser.StepResult
	stepErrs []error
	call     int
}

func (f *fakeDriver) Step(context.Context, *browser.Session, browser.Action) (browser.StepResult, error) {
	i := f.call
	f.call++
	var err error
	if i < len(f.stepErrs) {
		err = f.stepErrs[i]
	}
	if i < len(f.steps) {
		return f.steps[i], err
	}
	return browser.StepResult{}, err
}

func (f *fakeDriver) Observe(context.Context, *browser.Session) (observation.Raw, error) {
	return observation.Raw{URL: "https://example.com"}, nil
}

type charCounter struct{}

func (charCounter) Count(text string) (int, error) { return len(text), nil }

func newTestServer(driver sessionDriver, store *state.Store) *Server {
	filter := observation.NewFilter(charCounter{})
	return New(nil, driver, store, filter)
}

func testProfile() benchmark.Profile {
	return benchmark.Profile{
		ID:              "miniwob",
		TokenLimit:      2000,
		ObservationMode: benchmark.ModeAxtreeCompact,
	}
}

func marshalParams(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

func noopHandler(context.Context, json.RawMessage) (any, error) { return nil, nil }

func TestExecuteActionsStopsEarlyOnDone(t *testing.T) {
	store := state.New()
	store.Initialize("sess-1", "miniwob", 10)

	driver := &fakeDriver{steps: []browser.StepResult{
		{Done: false, Reward: 0},
		{Done: true, Reward: 1},
	}}
	s := newTestServer(driver, store)
	s.BindSession(&browser.Session{ID: "sess-1", State: browser.SessionActive}, testProfile(), observation.TruncationPolicy{})

	actions := []browser.Action{
		{Action: browser.ActionClick, Bid: "1"},
		{Action: browser.ActionSendMsgToUser, Text: "done"},
		{Action: browser.ActionClick, Bid: "3"},
	}
	paramsJSON, err := marshalParams(ExecuteActionsParams{Actions: actions})
	require.NoError(t, err)

	res, rpcErr := s.handleExecuteActions(context.Background(), paramsJSON)
	require.Nil(t, rpcErr)
	result := res.(ExecuteActionsResult)
	assert.True(t, result.EarlyTermination)
	assert.True(t, result.TaskCompleted)
	assert.Equal(t, 1.0, result.FinalReward)
	assert.Len(t, result.Results, 2)

	snap, err := store.Read("sess-1")
	require.NoError(t, err)
	assert.True(t, snap.TaskCompleted)
	assert.Equal(t, 2, snap.ActionCount)
}

func TestExecuteActionsEnforcesToolCeilingBeforeExecution(t *testing.T) {
	store := state.New()
	store.Initialize("sess-2", "miniwob", 0) // ceiling already exhausted

	driver := &fakeDriver{}
	s := newTestServer(driver, store)
	s.BindSession(&browser.Session{ID: "sess-2", State: browser.SessionActive}, testProfile(), observation.TruncationPolicy{})

	paramsJSON, err := marshalParams(ExecuteActionsParams{Actions: []browser.Action{{Action: browser.ActionClick, Bid: "1"}}})
	require.NoError(t, err)

	res, rpcErr := s.handleExecuteActions(context.Background(), paramsJSON)
	require.Nil(t, rpcErr)
	result := res.(ExecuteActionsResult)
	assert.True(t, result.EarlyTermination)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 0, driver.call) // no browser mutation on the breaching call
}

func TestExecuteActionsRejectsOversizedBatchBeforeExecution(t *testing.T) {
	store := state.New()
	store.Initialize("sess-3", "miniwob", 100)

	driver := &fakeDriver{}
	s := newTestServer(driver, store)
	s.BindSession(&browser.Session{ID: "sess-3", State: browser.SessionActive}, testProfile(), observation.TruncationPolicy{})

	actions := make([]browser.Action, 51)
	for i := range actions {
		actions[i] = browser.Action{Action: browser.ActionClick, Bid: "1"}
	}
	paramsJSON, err := marshalParams(ExecuteActionsParams{Actions: actions})
	require.NoError(t, err)

	_, err = s.handleExecuteActions(context.Background(), paramsJSON)
	require.Error(t, err)
	rpcErr, ok := err.(*rpcError)
	require.True(t, ok)
	assert.Equal(t, codeInvalidParams, rpcErr.Code)
	assert.Equal(t, 0, driver.call)
}

func TestGetObservationDefaultsToProfileMode(t *testing.T) {
	store := state.New()
	store.Initialize("sess-4", "miniwob", 10)

	driver := &fakeDriver{}
	s := newTestServer(driver, store)
	s.BindSession(&browser.Session{ID: "sess-4", State: browser.SessionActive}, testProfile(), observation.TruncationPolicy{})

	res, rpcErr := s.handleGetObservation(context.Background(), nil)
	require.Nil(t, rpcErr)
	filtered := res.(observation.Filtered)
	assert.Equal(t, string(benchmark.ModeAxtreeCompact), filtered.ObservationMode)
}

func TestRegistryBaseOperationsAlwaysPresent(t *testing.T) {
	store := state.New()
	s := newTestServer(&fakeDriver{}, store)
	names := map[string]bool{}
	for _, d := range s.Registry().List() {
		names[d.Name] = true
	}
	assert.True(t, names["execute_actions"])
	assert.True(t, names["get_observation"])
}

func TestRegisterBenchmarkToolsIsIdempotentAndSwapsOnNewBenchmark(t *testing.T) {
	r := NewRegistry()
	profileA := benchmark.Profile{ID: "a", ExtraTools: []benchmark.ExtraTool{{Name: "tool_a"}}}
	profileB := benchmark.Profile{ID: "b", ExtraTools: []benchmark.ExtraTool{{Name: "tool_b"}}}

	handlersA := map[string]ToolHandler{"tool_a": noopHandler}
	require.NoError(t, r.RegisterBenchmarkTools(profileA, handlersA))
	require.NoError(t, r.RegisterBenchmarkTools(profileA, handlersA))
	_, ok := r.Lookup("tool_a")
	assert.True(t, ok)

	handlersB := map[string]ToolHandler{"tool_b": noopHandler}
	require.NoError(t, r.RegisterBenchmarkTools(profileB, handlersB))
	_, ok = r.Lookup("tool_a")
	assert.False(t, ok)
	_, ok = r.Lookup("tool_b")
	assert.True(t, ok)

	r.DeregisterBenchmarkTools()
	_, ok = r.Lookup("tool_b")
	assert.False(t, ok)
}
