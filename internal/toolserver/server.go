package toolserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/a2aeval/evaluator/internal/benchmark"
	"github.com/a2aeval/evaluator/internal/browser"
	"github.com/a2aeval/evaluator/internal/observation"
	"github.com/a2aeval/evaluator/internal/state"
	"github.com/a2aeval/evaluator/internal/telemetry"
)

// binding is the Server's view of the task currently in flight. It is
// replaced wholesale by BindSession/Unbind at task boundaries, under mu.
type binding struct {
	session    *browser.Session
	sessionID  string
	profile    benchmark.Profile
	mode       benchmark.ObservationMode
	truncation observation.TruncationPolicy
}

// sessionDriver is the subset of *browser.Manager the Tool Server needs.
// Narrowing to an interface lets tests exercise execute_actions/
// get_observation logic against a fake driver instead of a real browser.
type sessionDriver interface {
	Step(ctx context.Context, sess *browser.Session, action browser.Action) (browser.StepResult, error)
	Observe(ctx context.Context, sess *browser.Session) (observation.Raw, error)
}

// Server is the Tool Server: it owns the dynamic tool Registry and routes
// JSON-RPC invocations to the Browser-Session Manager, Observation Filter,
// and Shared State Store.
type Server struct {
	logger   telemetry.Logger
	manager  sessionDriver
	store    *state.Store
	filter   *observation.Filter
	registry *Registry

	mu      sync.RWMutex
	current *binding
}

// New constructs a Server and registers its base operations.
func New(logger telemetry.Logger, manager sessionDriver, store *state.Store, filter *observation.Filter) *Server {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	s := &Server{
		logger:   logger,
		manager:  manager,
		store:    store,
		filter:   filter,
		registry: NewRegistry(),
	}
	s.registry.RegisterBase(Descriptor{
		Name:        "execute_actions",
		Description: "Execute a batch of browser actions sequentially, stopping early on completion or error.",
	}, s.handleExecuteActions)
	s.registry.RegisterBase(Descriptor{
		Name:        "get_observation",
		Description: "Return the current filtered observation, optionally in a specific mode.",
	}, s.handleGetObservation)
	return s
}

// BindSession attaches sess as the active session for tool invocations,
// using profile's token limit, default observation mode, and filter
// strategy until the next BindSession/Unbind call.
func (s *Server) BindSession(sess *browser.Session, profile benchmark.Profile, truncation observation.TruncationPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &binding{
		session:    sess,
		sessionID:  sess.ID,
		profile:    profile,
		mode:       profile.ObservationMode,
		truncation: truncation,
	}
}

// Unbind clears the active session. Subsequent invocations fail with
// ErrNoActiveSession until the next BindSession.
func (s *Server) Unbind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}

func (s *Server) binding() (*binding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, ErrNoActiveSession
	}
	return s.current, nil
}

// ErrNoActiveSession is returned by any tool invocation made while no
// session is bound.
var ErrNoActiveSession = fmt.Errorf("tool server: no active session")

// RegisterBenchmarkTools registers profile's extra tools against handlers
// supplied by the caller; an extra tool with no entry in handlers is not
// registered. Idempotent.
func (s *Server) RegisterBenchmarkTools(profile benchmark.Profile, handlers map[string]ToolHandler) error {
	return s.registry.RegisterBenchmarkTools(profile, handlers)
}

// DeregisterBenchmarkTools removes the current benchmark's extras.
func (s *Server) DeregisterBenchmarkTools() {
	s.registry.DeregisterBenchmarkTools()
}

// Registry exposes the Server's tool table for discovery (tools/list).
func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) handleExecuteActions(ctx context.Context, raw json.RawMessage) (any, error) {
	var params ExecuteActionsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}
	if err := browser.ValidateBatch(params.Actions); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
	}

	b, err := s.binding()
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}

	if n, err := s.store.RecordToolInvocation(b.sessionID, "execute_actions"); err != nil {
		if err == state.ToolLimitSentinel {
			// Ceiling breaches are reported through ToolInvocationCount, not
			// the generic error field: awaitCompletion checks the tool-limit
			// predicate independently of, and ahead of, SharedState.error so
			// this terminates as ToolLimitExceeded rather than a generic
			// ToolServerError.
			return ExecuteActionsResult{
				BatchID:          uuid.NewString(),
				EarlyTermination: true,
				Error:            fmt.Sprintf("tool invocation ceiling exceeded at call %d", n),
			}, nil
		}
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}

	start := time.Now()
	batchID := uuid.NewString()
	results := make([]StepResultWire, 0, len(params.Actions))
	earlyTermination := false
	taskCompleted := false
	finalReward := 0.0

	for i, action := range params.Actions {
		stepStart := time.Now()
		res, stepErr := s.manager.Step(ctx, b.session, action)
		stepLatency := time.Since(stepStart).Milliseconds()
		_ = s.store.RecordActionBatch(b.sessionID, 1, stepLatency)

		wire := StepResultWire{ActionIndex: i}
		if stepErr != nil {
			wire.Error = stepErr.Error()
			results = append(results, wire)
			earlyTermination = true
			_ = s.store.MarkError(b.sessionID, stepErr.Error())
			break
		}

		filtered, ferr := s.filter.Apply(res.Observation, b.mode, b.profile.TokenLimit, b.profile.Filter, b.truncation)
		if ferr != nil {
			wire.Error = ferr.Error()
			results = append(results, wire)
			earlyTermination = true
			_ = s.store.MarkError(b.sessionID, ferr.Error())
			break
		}
		_ = s.store.RecordObservation(b.sessionID, filtered.TokenEstimate)

		wire.Observation = filtered
		wire.Reward = res.Reward
		wire.Done = res.Done
		wire.Truncated = res.Truncated
		results = append(results, wire)

		if res.Done || res.Truncated {
			taskCompleted = true
			finalReward = res.Reward
			earlyTermination = true
			_ = s.store.Finalize(b.sessionID, res.Done, res.Truncated, b.profile.SuccessPredicate(res.Reward, nil), res.Reward)
			break
		}
	}

	return ExecuteActionsResult{
		Results:          results,
		BatchID:          batchID,
		LatencyMs:        time.Since(start).Milliseconds(),
		EarlyTermination: earlyTermination,
		TaskCompleted:    taskCompleted,
		FinalReward:      finalReward,
	}, nil
}

func (s *Server) handleGetObservation(ctx context.Context, raw json.RawMessage) (any, error) {
	var params GetObservationParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
	}

	b, err := s.binding()
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}

	if _, err := s.store.RecordToolInvocation(b.sessionID, "get_observation"); err != nil {
		if err == state.ToolLimitSentinel {
			return nil, &rpcError{Code: codeInternalError, Message: "tool invocation ceiling exceeded"}
		}
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}

	mode := b.mode
	if params.Mode != "" {
		mode = benchmark.ObservationMode(params.Mode)
	}

	raw2, err := s.manager.Observe(ctx, b.session)
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}
	filtered, err := s.filter.Apply(raw2, mode, b.profile.TokenLimit, b.profile.Filter, b.truncation)
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}
	_ = s.store.RecordObservation(b.sessionID, filtered.TokenEstimate)
	return filtered, nil
}
