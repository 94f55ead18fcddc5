package toolserver

import (
	"context"
	"encoding/json"
	"net/http"
)

// HTTPHandler adapts a Server to net/http, speaking the same JSON-RPC
// envelope the Participant's HTTP caller expects: a POST body carrying
// {jsonrpc, method, id, params}, answered with {jsonrpc, result|error, id}.
type HTTPHandler struct {
	server *Server
}

// NewHTTPHandler wraps server for mounting under an http.ServeMux.
func NewHTTPHandler(server *Server) *HTTPHandler {
	return &HTTPHandler{server: server}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPCError(w, nil, &rpcError{Code: codeParseError, Message: err.Error()})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeRPCError(w, req.ID, &rpcError{Code: codeInvalidRequest, Message: "malformed request envelope"})
		return
	}

	result, rpcErr := h.dispatch(r.Context(), req.Method, req.Params)
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	writeRPCResult(w, req.ID, result)
}

func (h *HTTPHandler) dispatch(ctx context.Context, method string, params json.RawMessage) (any, *rpcError) {
	switch method {
	case "initialize":
		var p initializeParams
		_ = json.Unmarshal(params, &p)
		return initializeResult{
			ProtocolVersion: DefaultProtocolVersion,
			ServerInfo:      map[string]any{"name": "a2a-eval-tool-server", "version": "dev"},
		}, nil
	case "tools/list":
		return toolsListResult{Tools: h.server.Registry().List()}, nil
	case "tools/call":
		var p toolsCallParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: err.Error()}
		}
		handler, ok := h.server.Registry().Lookup(p.Name)
		if !ok {
			return nil, &rpcError{Code: codeMethodNotFound, Message: "unregistered tool: " + p.Name}
		}
		result, err := handler(ctx, p.Arguments)
		if err != nil {
			if re, ok := err.(*rpcError); ok {
				return nil, re
			}
			return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
		}
		return result, nil
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "unknown method: " + method}
	}
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", Result: result, ID: id})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, rpcErr *rpcError) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", Error: rpcErr, ID: id})
}
