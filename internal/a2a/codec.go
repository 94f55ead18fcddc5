package a2a

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// JSONCodec converts between a typed value and its JSON wire form. It lets
// DataPart payloads round-trip through a concrete Go type instead of bare
// map[string]any at every call site.
type JSONCodec[T any] struct {
	ToJSON   func(T) ([]byte, error)
	FromJSON func([]byte) (T, error)
}

// NewJSONCodec builds the standard encoding/json-backed codec for T.
func NewJSONCodec[T any]() JSONCodec[T] {
	return JSONCodec[T]{
		ToJSON: func(v T) ([]byte, error) { return json.Marshal(v) },
		FromJSON: func(b []byte) (T, error) {
			var v T
			err := json.Unmarshal(b, &v)
			return v, err
		},
	}
}

// NewMessageID returns a fresh, unique message id.
func NewMessageID() string { return "msg-" + uuid.NewString() }

// NewContextID returns a fresh, unique context id.
func NewContextID() string { return "ctx-" + uuid.NewString() }

// NewTaskID returns a fresh, unique task id.
func NewTaskID() string { return "task-" + uuid.NewString() }

// NewArtifactID returns a fresh, unique artifact id.
func NewArtifactID() string { return "artifact-" + uuid.NewString() }

// DecodeDataPart extracts and JSON-decodes the first DataPart on m into v.
// v must be a pointer. Returns a ValidationError if no DataPart is present.
func DecodeDataPart(m Message, v any) error {
	part, ok := m.DataPart()
	if !ok {
		return &ValidationError{Field: "parts", Reason: "no data part present"}
	}
	raw, err := json.Marshal(part.Data)
	if err != nil {
		return fmt.Errorf("re-encode data part: %w", err)
	}
	return json.Unmarshal(raw, v)
}
