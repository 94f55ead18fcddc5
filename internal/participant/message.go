package participant

import (
	"github.com/a2aeval/evaluator/internal/a2a"
)

// TaskContext is the structured payload carried in the task-assignment
// message's DataPart.
type TaskContext struct {
	TaskID    string `json:"task_id"`
	Benchmark string `json:"benchmark"`
	SessionID string `json:"session_id"`
	ContextID string `json:"context_id"`
}

// BuildTaskMessage assembles the task-assignment Message: a DataPart
// carrying taskCtx for machine consumers and a TextPart carrying the
// deterministic task-details document for text-only consumers.
func BuildTaskMessage(taskCtx TaskContext, details string) a2a.Message {
	return a2a.Message{
		Kind:      "message",
		Role:      a2a.RoleAgent,
		MessageID: a2a.NewMessageID(),
		ContextID: taskCtx.ContextID,
		Parts: []a2a.Part{
			a2a.NewDataPart(taskCtx),
			a2a.NewTextPart(details),
		},
	}
}
