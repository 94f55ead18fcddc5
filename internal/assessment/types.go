// Package assessment defines the multi-task, multi-benchmark plan the
// orchestrator drives: AssessmentConfig describes the plan, Assessment
// tracks its live progress, and TaskEntry records one task's outcome.
package assessment

import (
	"fmt"
	"time"

	"github.com/a2aeval/evaluator/internal/state"
)

// TaskStatus is one TaskEntry's lifecycle position.
type TaskStatus string

const (
	TaskPending     TaskStatus = "Pending"
	TaskSent        TaskStatus = "Sent"
	TaskRunning     TaskStatus = "Running"
	TaskCompleted   TaskStatus = "Completed"
	TaskTimeout     TaskStatus = "Timeout"
	TaskFailed      TaskStatus = "Failed"
	TaskSendTimeout TaskStatus = "SendTimeout"
	TaskToolLimit   TaskStatus = "ToolLimit"
)

// Terminal reports whether status ends the task's lifecycle.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskTimeout, TaskFailed, TaskSendTimeout, TaskToolLimit:
		return true
	default:
		return false
	}
}

// MetricsSnapshot is the subset of SharedState counters surfaced on a
// TaskEntry.
type MetricsSnapshot struct {
	Tokens       int
	LatencyMs    int64
	Actions      int
	Observations int
	ToolCalls    int
}

// TaskEntry is one task's plan slot and, once run, its recorded outcome.
type TaskEntry struct {
	TaskID    string
	Benchmark string
	Index     int

	Status      TaskStatus
	Success     bool
	FinalReward float64
	Done        bool
	Truncated   bool
	FinalScore  float64
	Metrics     MetricsSnapshot

	StartedAt         time.Time
	EndedAt           time.Time
	CompletionSeconds float64

	Error string

	// StartSnapshot is a copy of SharedState at task start, used to compute
	// this task's metrics as a delta against the cumulative counters.
	StartSnapshot state.Snapshot
}

// ParticipantEndpoint identifies one participant's A2A connection point.
type ParticipantEndpoint struct {
	Role     string
	Endpoint string
	ID       string
}

// Limits bounds resource consumption for every task in a plan.
type Limits struct {
	MaxSteps       int
	MaxToolCalls   int
	TimeoutSeconds int
}

// AssessmentConfig is the immutable plan description supplied when an
// assessment is created.
type AssessmentConfig struct {
	RunID            string
	Benchmarks       []string
	TasksByBenchmark map[string][]string
	SessionID        string
	Limits           Limits
	Participants     []ParticipantEndpoint
	PrimaryRole      string
}

// FlatTasks returns the plan's tasks in a single ordered list, one TaskEntry
// per (benchmark, task) pair in the order benchmarks and tasks were listed.
func (c AssessmentConfig) FlatTasks() []TaskEntry {
	var out []TaskEntry
	idx := 0
	for _, b := range c.Benchmarks {
		for _, taskName := range c.TasksByBenchmark[b] {
			out = append(out, TaskEntry{
				TaskID:    b + "." + taskName,
				Benchmark: b,
				Index:     idx,
				Status:    TaskPending,
			})
			idx++
		}
	}
	return out
}

// Primary returns the config's primary participant endpoint.
func (c AssessmentConfig) Primary() (ParticipantEndpoint, bool) {
	for _, p := range c.Participants {
		if p.Role == c.PrimaryRole {
			return p, true
		}
	}
	return ParticipantEndpoint{}, false
}

// OrchestratorStatus is the orchestrator's top-level state.
type OrchestratorStatus string

const (
	StatusIdle     OrchestratorStatus = "Idle"
	StatusRunning  OrchestratorStatus = "Running"
	StatusComplete OrchestratorStatus = "Complete"
	StatusError    OrchestratorStatus = "Error"
)

// BenchmarkBreakdown summarizes one benchmark's contribution to a result
// artifact.
type BenchmarkBreakdown struct {
	TotalTasks  int
	PassedTasks int
	SuccessRate float64
}

// Result is the terminal artifact content built once every task has run.
type Result struct {
	RunID        string
	PassedTasks  int
	TotalTasks   int
	SuccessRate  float64
	PerBenchmark map[string]BenchmarkBreakdown
	Tasks        []TaskEntry
}

// Assessment tracks one plan's live progress.
type Assessment struct {
	Config AssessmentConfig
	Tasks  []TaskEntry

	CurrentIndex int
	Status       OrchestratorStatus
	Error        string
	Result       *Result

	Store *state.Store
}

// New constructs an Assessment from cfg, in the Idle state with its flat
// task list derived and every task Pending.
func New(cfg AssessmentConfig, store *state.Store) *Assessment {
	return &Assessment{
		Config: cfg,
		Tasks:  cfg.FlatTasks(),
		Status: StatusIdle,
		Store:  store,
	}
}

// Progress summarizes the assessment's current state for status queries.
type Progress struct {
	Status         OrchestratorStatus
	CurrentIndex   int
	TotalTasks     int
	CompletedCount int
	PassedCount    int
	SuccessRate    float64
	Summary        string
}

// Snapshot returns a read-only progress summary.
func (a *Assessment) Snapshot() Progress {
	completed, passed := 0, 0
	for _, t := range a.Tasks {
		if t.Status.Terminal() {
			completed++
			if t.Success {
				passed++
			}
		}
	}
	rate := 0.0
	if completed > 0 {
		rate = float64(passed) / float64(completed)
	}
	return Progress{
		Status:         a.Status,
		CurrentIndex:   a.CurrentIndex,
		TotalTasks:     len(a.Tasks),
		CompletedCount: completed,
		PassedCount:    passed,
		SuccessRate:    rate,
		Summary:        summarize(a.Status, completed, len(a.Tasks), passed),
	}
}

func summarize(status OrchestratorStatus, completed, total, passed int) string {
	switch status {
	case StatusIdle:
		return "not started"
	case StatusRunning:
		return progressString(completed, total, passed)
	case StatusComplete:
		return "complete: " + progressString(completed, total, passed)
	case StatusError:
		return "error after " + progressString(completed, total, passed)
	default:
		return ""
	}
}

func progressString(completed, total, passed int) string {
	return fmt.Sprintf("%d/%d tasks completed, %d passed", completed, total, passed)
}
