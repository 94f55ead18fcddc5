package toolserver

import (
	"github.com/a2aeval/evaluator/internal/browser"
	"github.com/a2aeval/evaluator/internal/observation"
)

// ExecuteActionsParams is the wire shape of execute_actions' input.
type ExecuteActionsParams struct {
	Actions []browser.Action `json:"actions"`
}

// StepResultWire is one entry of execute_actions' results array.
type StepResultWire struct {
	Observation observation.Filtered `json:"observation"`
	Reward      float64              `json:"reward"`
	Done        bool                 `json:"done"`
	Truncated   bool                 `json:"truncated"`
	Error       string               `json:"error,omitempty"`
	ActionIndex int                  `json:"action_index"`
}

// ExecuteActionsResult is the wire shape of execute_actions' output.
type ExecuteActionsResult struct {
	Results          []StepResultWire `json:"results"`
	BatchID          string           `json:"batch_id"`
	LatencyMs        int64            `json:"latency_ms"`
	EarlyTermination bool             `json:"early_termination"`
	TaskCompleted    bool             `json:"task_completed"`
	FinalReward      float64          `json:"final_reward"`
	Message          string           `json:"message,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// GetObservationParams is the wire shape of get_observation's input. Mode is
// optional; empty means "use the active benchmark's default mode".
type GetObservationParams struct {
	Mode string `json:"mode,omitempty"`
}
