package browser

import (
	"time"

	"github.com/a2aeval/evaluator/internal/observation"
)

// SessionState is a Session's lifecycle position.
type SessionState string

const (
	SessionActive           SessionState = "Active"
	SessionCleanupRequested SessionState = "CleanupRequested"
	SessionCleaned          SessionState = "Cleaned"
)

// ActionRecord is one entry in a Session's action history.
type ActionRecord struct {
	Action    Action
	Timestamp time.Time
	Error     string
}

// Session is a single per-task browser context. Its browser handle is
// owned exclusively by the Manager and is non-nil iff State == Active.
type Session struct {
	ID                 string
	TaskID             string
	BenchmarkID        string
	InitialObservation observation.Raw
	ActionHistory      []ActionRecord
	ProcessIDs         []int
	State              SessionState

	handle *browserHandle // owned exclusively by the Manager's dedicated goroutine
}

// Config configures a new Session.
type Config struct {
	SessionID   string
	TaskID      string
	BenchmarkID string
	StartURL    string
	Headless    bool
	// DatasetEnvVar/DatasetFileURL, when both set, are exported into the
	// browser process environment before reset, per the dataset-resolution
	// design.
	DatasetEnvVar  string
	DatasetFileURL string
}

// StepResult is the outcome of one C1.Step call.
type StepResult struct {
	Observation observation.Raw
	Reward      float64
	Done        bool
	Truncated   bool
	Info        map[string]any
}

// CleanupStatus reports the outcome of a Cleanup call.
type CleanupStatus string

const (
	CleanupSuccess         CleanupStatus = "success"
	CleanupFallbackSuccess CleanupStatus = "fallback_success"
	CleanupFailed          CleanupStatus = "failed"
)

// CleanupReport is the outcome of C1.Cleanup.
type CleanupReport struct {
	Status           CleanupStatus
	KilledProcessIDs []int
	OrphanedCount    int
}

// EnvironmentError wraps a browser/environment creation, reset, or step
// failure.
type EnvironmentError struct {
	Op     string
	Reason string
}

func (e *EnvironmentError) Error() string {
	return "environment error during " + e.Op + ": " + e.Reason
}

// ActionError wraps an invalid action shape or a library-level step failure.
type ActionError struct {
	ReasonCode string
	Reason     string
}

func (e *ActionError) Error() string {
	return "action error (" + e.ReasonCode + "): " + e.Reason
}
