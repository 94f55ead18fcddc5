// Package server implements the Evaluator's A2A surface: agent-card
// discovery, the inbound message endpoint, health checks, and an SSE
// lifecycle stream.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/a2aeval/evaluator/internal/a2a"
	"github.com/a2aeval/evaluator/internal/telemetry"
)

// messageHandler is the subset of *controlagent.Agent the server calls.
type messageHandler interface {
	HandleMessage(ctx context.Context, msg a2a.Message) (a2a.Message, error)
}

// Server wires the control agent into an http.Handler exposing the
// endpoints documented for the Streaming Surface + A2A Server.
type Server struct {
	agent    messageHandler
	broker   *Broker
	logger   telemetry.Logger
	card     a2a.AgentCard
	extended a2a.AgentCard
}

// New builds a Server. card is served at the well-known paths to anonymous
// callers; extended is served to callers presenting any non-empty
// Authorization header (its value is not checked).
func New(agent messageHandler, broker *Broker, logger telemetry.Logger, card, extended a2a.AgentCard) *Server {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Server{agent: agent, broker: broker, logger: logger, card: card, extended: extended}
}

// Router builds the http.Handler mounting every endpoint.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/agent-card.json", s.handleAgentCard)
	mux.HandleFunc("/.well-known/agent.json", s.handleAgentCard)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/live", s.handleHealth)
	mux.HandleFunc("/health/ready", s.handleHealth)
	mux.HandleFunc("/evaluate", s.handleEvaluate)
	mux.HandleFunc("/stream/", s.handleStream)
	mux.HandleFunc("/", s.handleMessage)
	return mux
}

func (s *Server) cardFor(r *http.Request) a2a.AgentCard {
	if r.Header.Get("Authorization") != "" {
		return s.extended
	}
	return s.card
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.cardFor(r))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *a2a.RPCError   `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// handleMessage serves the A2A message endpoint: a JSON-RPC "message/send"
// call carrying a Message in params, answered with the resulting Task.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, nil, &a2a.RPCError{Code: a2a.JSONRPCParseError, Message: err.Error()})
		return
	}
	if req.Method != "message/send" {
		s.writeError(w, req.ID, &a2a.RPCError{Code: a2a.JSONRPCMethodNotFound, Message: "unknown method: " + req.Method})
		return
	}
	var msg a2a.Message
	if err := json.Unmarshal(req.Params, &msg); err != nil {
		s.writeError(w, req.ID, &a2a.RPCError{Code: a2a.JSONRPCInvalidParams, Message: err.Error()})
		return
	}
	if err := msg.Validate(); err != nil {
		s.writeError(w, req.ID, a2a.ErrorResponse(err))
		return
	}

	reply, err := s.agent.HandleMessage(r.Context(), msg)
	if err != nil {
		s.writeError(w, req.ID, a2a.ErrorResponse(err))
		return
	}

	task := a2a.Task{
		Kind:      "task",
		ID:        a2a.NewTaskID(),
		ContextID: reply.ContextID,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateCompleted,
			Message:   &reply,
			Timestamp: time.Now(),
		},
	}
	s.broker.Publish(reply.ContextID, event{name: "status-update", payload: mustJSON(a2a.TaskStatusUpdateEvent{
		Kind:      "status-update",
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Status:    task.Status,
		Final:     true,
	})})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", Result: task, ID: req.ID})
}

// handleEvaluate accepts a Message body directly (no JSON-RPC envelope) as a
// convenience entry point for callers that do not speak the A2A wire
// protocol. It responds with the agent's reply Message as the bare JSON body
// (no Task, no JSON-RPC envelope), reports failures as plain HTTP 400/500
// errors, and publishes no event to the broker.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var msg a2a.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := msg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reply, err := s.agent.HandleMessage(r.Context(), msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

// handleStream serves GET /stream/{interaction_id} as an SSE feed of
// lifecycle events published for that interaction.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	interactionID := strings.TrimPrefix(r.URL.Path, "/stream/")
	if interactionID == "" {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broker.Subscribe(interactionID)
	defer s.broker.Unsubscribe(interactionID, ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("event: " + evt.name + "\ndata: " + string(evt.payload) + "\n\n"))
			flusher.Flush()
			if evt.name == "status-update" {
				var status struct {
					Final bool `json:"final"`
				}
				if json.Unmarshal(evt.payload, &status) == nil && status.Final {
					return
				}
			}
		}
	}
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, rpcErr *a2a.RPCError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", Error: rpcErr, ID: id})
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return raw
}
