// Package orchestrator drives an Assessment's multi-task, multi-benchmark
// plan through its state machine: preparing a browser environment per task,
// registering benchmark-specific tools, handing the task to the participant,
// polling shared state for completion, and tearing down before the next
// task. It runs as a single background goroutine per Assessment, independent
// of inbound requests.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/a2aeval/evaluator/internal/a2a"
	"github.com/a2aeval/evaluator/internal/assessment"
	"github.com/a2aeval/evaluator/internal/benchmark"
	"github.com/a2aeval/evaluator/internal/browser"
	"github.com/a2aeval/evaluator/internal/observation"
	"github.com/a2aeval/evaluator/internal/participant"
	"github.com/a2aeval/evaluator/internal/state"
	"github.com/a2aeval/evaluator/internal/telemetry"
	"github.com/a2aeval/evaluator/internal/toolserver"
)

// envManager is the subset of *browser.Manager the orchestrator drives.
// Narrowed to an interface so tests can substitute a fake instead of a real
// browser.
type envManager interface {
	CreateSession(ctx context.Context, cfg browser.Config) (*browser.Session, error)
	Cleanup(ctx context.Context, sess *browser.Session) (browser.CleanupReport, error)
}

// toolBinder is the subset of *toolserver.Server the orchestrator drives.
type toolBinder interface {
	BindSession(sess *browser.Session, profile benchmark.Profile, truncation observation.TruncationPolicy)
	Unbind()
	RegisterBenchmarkTools(profile benchmark.Profile, handlers map[string]toolserver.ToolHandler) error
	DeregisterBenchmarkTools()
	Registry() *toolserver.Registry
}

// taskSender is the subset of *participant.Client the orchestrator drives.
type taskSender interface {
	SendTask(ctx context.Context, msg a2a.Message) (a2a.Task, error)
}

// Deps bundles the components the orchestrator coordinates. NewSender,
// PollInterval and SendTimeout are defaulted by New when unset.
type Deps struct {
	Logger     telemetry.Logger
	Metrics    telemetry.Metrics
	Manager    envManager
	Store      *state.Store
	ToolServer toolBinder
	Profiles   *benchmark.Registry

	// DatasetRoot is the filesystem root C1's dataset resolution searches
	// under for local-dataset benchmarks.
	DatasetRoot string
	// Headless selects headless browser launches.
	Headless bool

	// ToolServerURL is the URL the participant is told to call back on.
	ToolServerURL string

	// NewSender builds the per-task A2A client bound to a participant
	// endpoint. Defaults to wrapping participant.New.
	NewSender func(endpoint string) taskSender

	// PollInterval bounds AwaitCompletion's polling cadence. Defaults to 3s
	// when zero.
	PollInterval time.Duration
	// SendTimeout bounds a single SendTask call. Defaults to 30s when zero.
	SendTimeout time.Duration

	LambdaC float64
	LambdaL float64
}

// Orchestrator drives a single Assessment's background task. The first Start
// call creates the Assessment; later Start calls return that same Assessment.
type Orchestrator struct {
	deps Deps

	mu     sync.Mutex
	run    *assessment.Assessment
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs an Orchestrator from deps, filling unset timing defaults.
func New(deps Deps) *Orchestrator {
	if deps.PollInterval <= 0 {
		deps.PollInterval = 3 * time.Second
	}
	if deps.SendTimeout <= 0 {
		deps.SendTimeout = 30 * time.Second
	}
	if deps.NewSender == nil {
		deps.NewSender = func(endpoint string) taskSender { return participant.New(endpoint) }
	}
	return &Orchestrator{deps: deps}
}

// Start begins driving cfg's plan in the background. If an Assessment is
// already Running, Complete or Error, Start is a no-op and returns the existing
// Assessment; the orchestrator never accepts a second concurrent run and is
// never restarted once Complete or Error.
func (o *Orchestrator) Start(ctx context.Context, cfg assessment.AssessmentConfig) *assessment.Assessment {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.run != nil && (o.run.Status == assessment.StatusRunning || o.run.Status == assessment.StatusComplete || o.run.Status == assessment.StatusError) {
		return o.run
	}

	a := assessment.New(cfg, o.deps.Store)
	a.Status = assessment.StatusRunning
	o.run = a

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})

	go func() {
		defer close(o.done)
		o.drive(runCtx, a)
	}()

	return a
}

// Status returns the current Assessment's progress snapshot, or a zero-value
// "not started" snapshot if Start has never been called.
func (o *Orchestrator) Status() assessment.Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return assessment.Progress{Status: assessment.StatusIdle, Summary: "not started"}
	}
	return o.run.Snapshot()
}

// Result returns the terminal result artifact if the Assessment is Complete.
func (o *Orchestrator) Result() (*assessment.Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil || o.run.Status != assessment.StatusComplete {
		return nil, false
	}
	return o.run.Result, true
}

// Cancel aborts the in-flight task, if any. The orchestrator still performs
// Cleanup for that task before stopping.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) drive(ctx context.Context, a *assessment.Assessment) {
	var prevBenchmark string
	for i := range a.Tasks {
		if ctx.Err() != nil {
			a.Status = assessment.StatusError
			a.Error = "canceled"
			o.deps.Logger.Warn(ctx, "orchestrator canceled before task start", "task_id", a.Tasks[i].TaskID)
			return
		}
		a.CurrentIndex = i
		entry := &a.Tasks[i]
		if err := o.runTask(ctx, a, entry, prevBenchmark); err != nil {
			a.Status = assessment.StatusError
			a.Error = err.Error()
			o.deps.Logger.Error(ctx, "orchestrator task failed", "task_id", entry.TaskID, "err", err)
			return
		}
		if ctx.Err() != nil {
			a.Status = assessment.StatusError
			a.Error = "canceled"
			return
		}
		prevBenchmark = entry.Benchmark
	}
	a.Result = buildResult(a)
	a.Status = assessment.StatusComplete
}

// runTask advances one TaskEntry through PrepareEnvironment, RegisterTools,
// SendTask, AwaitCompletion, CollectResult/DetectX, and Cleanup.
func (o *Orchestrator) runTask(ctx context.Context, a *assessment.Assessment, entry *assessment.TaskEntry, prevBenchmark string) error {
	entry.StartedAt = o.now()

	profile, err := o.deps.Profiles.ForTask(entry.TaskID)
	if err != nil {
		entry.Status = assessment.TaskFailed
		entry.Error = err.Error()
		return err
	}

	sess, err := o.prepareEnvironment(ctx, a, entry, profile, prevBenchmark)
	if err != nil {
		entry.Status = assessment.TaskFailed
		entry.Error = err.Error()
		return err
	}

	o.registerTools(profile)

	sendErr := o.sendTask(ctx, a, entry, sess, profile)
	if sendErr != nil {
		entry.Status = assessment.TaskSendTimeout
		entry.Error = sendErr.Error()
		o.cleanup(ctx, sess, a.Config.SessionID)
		entry.EndedAt = o.now()
		return nil
	}

	o.awaitCompletion(ctx, a, entry)
	if entry.Status == assessment.TaskCompleted {
		o.collectResult(a, entry, profile)
	}
	o.cleanup(ctx, sess, a.Config.SessionID)
	entry.EndedAt = o.now()
	entry.CompletionSeconds = entry.EndedAt.Sub(entry.StartedAt).Seconds()
	return nil
}

func (o *Orchestrator) now() time.Time { return time.Now() }

func (o *Orchestrator) prepareEnvironment(ctx context.Context, a *assessment.Assessment, entry *assessment.TaskEntry, profile benchmark.Profile, prevBenchmark string) (*browser.Session, error) {
	if prevBenchmark != "" && prevBenchmark != entry.Benchmark {
		o.deps.Store.Destroy(a.Config.SessionID)
	}

	cfg := browser.Config{
		SessionID:   a.Config.SessionID,
		TaskID:      entry.TaskID,
		BenchmarkID: entry.Benchmark,
		Headless:    o.deps.Headless,
	}
	if profile.DatasetEnvVar != "" {
		url, err := browser.ResolveDatasetURL(o.deps.DatasetRoot, []string{entry.Benchmark, profile.ID})
		if err == nil {
			cfg.DatasetEnvVar = profile.DatasetEnvVar
			cfg.DatasetFileURL = url
		}
	}

	sess, err := o.deps.Manager.CreateSession(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("prepare environment: %w", err)
	}

	o.deps.Store.Initialize(a.Config.SessionID, entry.Benchmark, a.Config.Limits.MaxToolCalls)
	return sess, nil
}

func (o *Orchestrator) registerTools(profile benchmark.Profile) {
	_ = o.deps.ToolServer.RegisterBenchmarkTools(profile, map[string]toolserver.ToolHandler{})
}

func (o *Orchestrator) sendTask(ctx context.Context, a *assessment.Assessment, entry *assessment.TaskEntry, sess *browser.Session, profile benchmark.Profile) error {
	snap, err := o.deps.Store.Read(a.Config.SessionID)
	if err == nil {
		entry.StartSnapshot = snap
	}

	o.deps.ToolServer.BindSession(sess, profile, observation.TruncationPolicy{})

	primary, ok := a.Config.Primary()
	if !ok {
		return fmt.Errorf("no primary participant configured")
	}
	client := o.deps.NewSender(primary.Endpoint)

	details := participant.BuildTaskDetails(participant.TaskDetailsInput{
		TaskID:       entry.TaskID,
		Benchmark:    entry.Benchmark,
		Profile:      profile,
		MaxToolCalls: a.Config.Limits.MaxToolCalls,
		Connection: participant.ToolServerConnection{
			Transport: "http",
			URL:       o.deps.ToolServerURL,
			SessionID: a.Config.SessionID,
		},
		Tools: o.deps.ToolServer.Registry().List(),
	})
	msg := participant.BuildTaskMessage(participant.TaskContext{
		TaskID:    entry.TaskID,
		Benchmark: entry.Benchmark,
		SessionID: a.Config.SessionID,
	}, details)

	sendCtx, cancel := context.WithTimeout(ctx, o.deps.SendTimeout)
	defer cancel()

	entry.Status = assessment.TaskSent
	if _, err := client.SendTask(sendCtx, msg); err != nil {
		return err
	}
	entry.Status = assessment.TaskRunning
	return nil
}

// awaitCompletion polls shared state at PollInterval until a terminal
// predicate fires, ordered error > tool-limit > completion > timeout.
func (o *Orchestrator) awaitCompletion(ctx context.Context, a *assessment.Assessment, entry *assessment.TaskEntry) {
	ticker := time.NewTicker(o.deps.PollInterval)
	defer ticker.Stop()

	deadline := entry.StartedAt.Add(time.Duration(a.Config.Limits.TimeoutSeconds) * time.Second)

	for {
		snap, err := o.deps.Store.Read(a.Config.SessionID)
		if err == nil {
			if snap.Error != "" {
				entry.Status = assessment.TaskFailed
				entry.Error = snap.Error
				return
			}
			if snap.ToolInvocationCount > a.Config.Limits.MaxToolCalls {
				entry.Status = assessment.TaskToolLimit
				return
			}
			if snap.CleanupCalled || (snap.TaskCompleted && snap.Done) {
				entry.Status = assessment.TaskCompleted
				return
			}
		}
		if time.Now().After(deadline) {
			entry.Status = assessment.TaskTimeout
			return
		}

		select {
		case <-ctx.Done():
			entry.Status = assessment.TaskFailed
			entry.Error = "canceled"
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) collectResult(a *assessment.Assessment, entry *assessment.TaskEntry, profile benchmark.Profile) {
	snap, err := o.deps.Store.Read(a.Config.SessionID)
	if err != nil {
		return
	}

	entry.Done = snap.Done
	entry.Truncated = snap.Truncated
	entry.FinalReward = snap.FinalReward
	entry.Metrics = delta(entry.StartSnapshot, snap)

	var explicit *bool
	if snap.TaskSuccess {
		t := true
		explicit = &t
	}
	entry.Success = profile.SuccessPredicate(snap.FinalReward, explicit)

	lambdaC := o.deps.LambdaC
	lambdaL := o.deps.LambdaL
	tokens := float64(entry.Metrics.Tokens)
	latencySeconds := float64(entry.Metrics.LatencyMs) / 1000.0
	e := 1 - lambdaC*math.Log(math.Max(tokens, 1)) - lambdaL*latencySeconds
	e = math.Max(0, math.Min(1, e))
	if !entry.Success {
		e = 0
	}
	entry.FinalScore = e
}

func (o *Orchestrator) cleanup(ctx context.Context, sess *browser.Session, sessionID string) {
	if sess != nil {
		if _, err := o.deps.Manager.Cleanup(context.WithoutCancel(ctx), sess); err != nil {
			o.deps.Logger.Warn(ctx, "cleanup failed", "err", err)
		}
	}
	o.deps.ToolServer.DeregisterBenchmarkTools()
	o.deps.ToolServer.Unbind()
	_ = o.deps.Store.MarkCleanup(sessionID)
	o.deps.Store.Destroy(sessionID)
}

func delta(start, end state.Snapshot) assessment.MetricsSnapshot {
	return assessment.MetricsSnapshot{
		Tokens:       end.TotalTokens - start.TotalTokens,
		LatencyMs:    end.TotalLatencyMs - start.TotalLatencyMs,
		Actions:      end.ActionCount - start.ActionCount,
		Observations: end.ObservationCount - start.ObservationCount,
		ToolCalls:    end.ToolInvocationCount - start.ToolInvocationCount,
	}
}

func buildResult(a *assessment.Assessment) *assessment.Result {
	perBenchmark := make(map[string]assessment.BenchmarkBreakdown)
	passed := 0
	for _, t := range a.Tasks {
		b := perBenchmark[t.Benchmark]
		b.TotalTasks++
		if t.Success {
			b.PassedTasks++
			passed++
		}
		perBenchmark[t.Benchmark] = b
	}
	for k, b := range perBenchmark {
		if b.TotalTasks > 0 {
			b.SuccessRate = float64(b.PassedTasks) / float64(b.TotalTasks)
		}
		perBenchmark[k] = b
	}

	total := len(a.Tasks)
	rate := 0.0
	if total > 0 {
		rate = float64(passed) / float64(total)
	}

	return &assessment.Result{
		RunID:        a.Config.RunID,
		PassedTasks:  passed,
		TotalTasks:   total,
		SuccessRate:  rate,
		PerBenchmark: perBenchmark,
		Tasks:        a.Tasks,
	}
}
