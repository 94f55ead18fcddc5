package participant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2aeval/evaluator/internal/a2a"
)

func TestDiscoverAgentCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/.well-known/agent-card.json", r.URL.Path)
		_ = json.NewEncoder(w).Encode(a2a.AgentCard{ProtocolVersion: a2a.ProtocolVersion, Name: "participant"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	card, err := c.DiscoverAgentCard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "participant", card.Name)
}

func TestSendTaskReturnsTerminalTaskImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "message/send", req.Method)
		task := a2a.Task{ID: "t1", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}}
		raw, _ := json.Marshal(task)
		_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", Result: raw, ID: req.ID})
	}))
	defer srv.Close()

	c := New(srv.URL)
	msg := a2a.Message{Role: a2a.RoleAgent, Parts: []a2a.Part{a2a.NewTextPart("hi")}}
	task, err := c.AwaitTerminal(context.Background(), msg, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
}

func TestAwaitTerminalPollsUntilTerminal(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		var task a2a.Task
		switch req.Method {
		case "message/send":
			task = a2a.Task{ID: "t2", Status: a2a.TaskStatus{State: a2a.TaskStateWorking}}
		case "tasks/get":
			calls++
			state := a2a.TaskStateWorking
			if calls >= 2 {
				state = a2a.TaskStateCompleted
			}
			task = a2a.Task{ID: "t2", Status: a2a.TaskStatus{State: state}}
		}
		raw, _ := json.Marshal(task)
		_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", Result: raw, ID: req.ID})
	}))
	defer srv.Close()

	c := New(srv.URL)
	msg := a2a.Message{Role: a2a.RoleAgent, Parts: []a2a.Part{a2a.NewTextPart("hi")}}
	task, err := c.AwaitTerminal(context.Background(), msg, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, a2a.TaskStateCompleted, task.Status.State)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestCallPropagatesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "bad params"}, ID: req.ID})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.SendTask(context.Background(), a2a.Message{Role: a2a.RoleAgent, Parts: []a2a.Part{a2a.NewTextPart("hi")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad params")
}
