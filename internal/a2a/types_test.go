package a2a

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	cases := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"valid user text", Message{Role: RoleUser, Parts: []Part{NewTextPart("hi")}}, false},
		{"valid agent data", Message{Role: RoleAgent, Parts: []Part{NewDataPart(map[string]any{"a": 1})}}, false},
		{"bad role", Message{Role: "system", Parts: []Part{NewTextPart("hi")}}, true},
		{"no parts", Message{Role: RoleUser}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr {
				require.Error(t, err)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestTaskStateTerminal(t *testing.T) {
	assert.False(t, TaskStateSubmitted.Terminal())
	assert.False(t, TaskStateWorking.Terminal())
	assert.False(t, TaskStateInputRequired.Terminal())
	assert.True(t, TaskStateCompleted.Terminal())
	assert.True(t, TaskStateFailed.Terminal())
	assert.True(t, TaskStateCanceled.Terminal())
}

func TestDataPartRoundTrip(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	original := payload{Name: "task-1", N: 42}
	msg := Message{
		Role:  RoleUser,
		Parts: []Part{NewDataPart(map[string]any{"name": original.Name, "n": float64(original.N)})},
	}

	var decoded payload
	require.NoError(t, DecodeDataPart(msg, &decoded))
	assert.Equal(t, original, decoded)
}

func TestMessageTextAndDataPartLookup(t *testing.T) {
	msg := Message{
		Role: RoleAgent,
		Parts: []Part{
			NewTextPart("human readable"),
			NewDataPart(map[string]any{"k": "v"}),
		},
	}
	text, ok := msg.TextPart()
	require.True(t, ok)
	assert.Equal(t, "human readable", text.Text)

	data, ok := msg.DataPart()
	require.True(t, ok)
	assert.Equal(t, map[string]any{"k": "v"}, data.Data)
}
