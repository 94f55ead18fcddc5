// Package a2a implements the agent-to-agent message model: messages, parts,
// tasks, artifacts, and the streaming lifecycle event shapes exchanged
// between the evaluator and a participant.
package a2a

import "time"

// Role identifies the author of a Message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TaskState is a position in the task state machine.
//
//	submitted -> working -> (input-required <-> working)* -> {completed | failed | canceled}
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
)

// Terminal reports whether s is a terminal task state. Terminal states
// reject further status updates.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	default:
		return false
	}
}

// PartKind tags which of the three Part variants a Part carries.
type PartKind string

const (
	PartKindText PartKind = "text"
	PartKindData PartKind = "data"
	PartKindFile PartKind = "file"
)

// Part is exactly one of TextPart, DataPart, or FilePart, discriminated by
// Kind. Structured payloads (assessment config, tool-server coordinates)
// MUST travel as DataPart: encoding JSON inside a TextPart is a bug, because
// receivers extract by part kind, not by sniffing text content.
type Part struct {
	Kind PartKind `json:"kind"`

	// Text is set when Kind == PartKindText.
	Text string `json:"text,omitempty"`

	// Data is set when Kind == PartKindData. It carries an arbitrary
	// structured value, typically a map[string]any decoded from JSON.
	Data any `json:"data,omitempty"`

	// FileURI and FileName are set when Kind == PartKindFile.
	FileURI  string `json:"uri,omitempty"`
	FileName string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// NewTextPart constructs a human-readable Part.
func NewTextPart(text string) Part {
	return Part{Kind: PartKindText, Text: text}
}

// NewDataPart constructs a machine-readable Part carrying a structured value.
func NewDataPart(data any) Part {
	return Part{Kind: PartKindData, Data: data}
}

// Message is a single turn in the A2A conversation.
type Message struct {
	Kind      string `json:"kind"`
	Role      Role   `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId"`
	ContextID string `json:"contextId,omitempty"`
}

// Validate enforces the message-layer invariants: a Message has a role in
// {user, agent} and at least one part.
func (m Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAgent {
		return &ValidationError{Field: "role", Reason: "must be user or agent"}
	}
	if len(m.Parts) == 0 {
		return &ValidationError{Field: "parts", Reason: "message must carry at least one part"}
	}
	return nil
}

// DataPart returns the first DataPart on the message, if any.
func (m Message) DataPart() (Part, bool) {
	for _, p := range m.Parts {
		if p.Kind == PartKindData {
			return p, true
		}
	}
	return Part{}, false
}

// TextPart returns the first TextPart on the message, if any.
func (m Message) TextPart() (Part, bool) {
	for _, p := range m.Parts {
		if p.Kind == PartKindText {
			return p, true
		}
	}
	return Part{}, false
}

// TaskStatus carries a task's current state plus an optional explanatory
// message and the timestamp of the transition.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is the unit of work tracked across a Message exchange.
type Task struct {
	Kind      string     `json:"kind"`
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Artifact is the terminal, named, ordered-parts record attached to a
// completed task or assessment.
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name"`
	Parts       []Part         `json:"parts"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TaskStatusUpdateEvent is one SSE lifecycle frame reporting a task status
// transition. The stream for a given task ends after the event with
// Final == true.
type TaskStatusUpdateEvent struct {
	Kind      string     `json:"kind"`
	TaskID    string     `json:"taskId"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Final     bool       `json:"final"`
}

// TaskArtifactUpdateEvent is one SSE lifecycle frame reporting a new or
// appended artifact.
type TaskArtifactUpdateEvent struct {
	Kind      string   `json:"kind"`
	TaskID    string   `json:"taskId"`
	ContextID string   `json:"contextId"`
	Artifact  Artifact `json:"artifact"`
	Append    bool     `json:"append"`
	LastChunk bool     `json:"lastChunk"`
}

// Skill describes one capability advertised on an AgentCard.
type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

// Provider identifies the organization publishing an AgentCard.
type Provider struct {
	Organization string `json:"organization,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Capabilities advertises optional protocol features.
type Capabilities struct {
	Streaming              bool `json:"streaming"`
	PushNotifications      bool `json:"pushNotifications"`
	StateTransitionHistory bool `json:"stateTransitionHistory"`
}

// AgentCard is the discovery document served at the well-known paths.
type AgentCard struct {
	ProtocolVersion    string       `json:"protocolVersion"`
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	Provider           *Provider    `json:"provider,omitempty"`
	Capabilities       Capabilities `json:"capabilities"`
	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Skills             []Skill      `json:"skills"`
	Extended           *Extended    `json:"extended,omitempty"`
}

// Extended carries evaluator-specific metadata surfaced only to authenticated
// callers: per-benchmark profile summaries and the scoring formula constants.
type Extended struct {
	Benchmarks         map[string]BenchmarkCardEntry `json:"benchmarks,omitempty"`
	EfficiencyMandates map[string]any                `json:"efficiency_mandates,omitempty"`
	ScoringFormula     ScoringFormula                `json:"scoring_formula"`
}

// BenchmarkCardEntry summarizes one benchmark profile for the extended card.
type BenchmarkCardEntry struct {
	DisplayName     string   `json:"display_name"`
	TokenLimit      int      `json:"token_limit"`
	ObservationMode string   `json:"observation_mode"`
	ExtraTools      []string `json:"extra_tools"`
}

// ScoringFormula documents the efficiency/score computation.
type ScoringFormula struct {
	Formula string  `json:"formula"`
	LambdaC float64 `json:"lambda_c"`
	LambdaL float64 `json:"lambda_l"`
}

const ProtocolVersion = "0.3.0"
