package toolserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a2aeval/evaluator/internal/browser"
	"github.com/a2aeval/evaluator/internal/observation"
	"github.com/a2aeval/evaluator/internal/state"
)

func TestHTTPHandlerInitializeAndToolsList(t *testing.T) {
	store := state.New()
	s := newTestServer(&fakeDriver{}, store)
	h := NewHTTPHandler(s)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := postRPC(t, srv.URL, "initialize", nil)
	var initRes initializeResult
	decodeResult(t, resp, &initRes)
	assert.Equal(t, DefaultProtocolVersion, initRes.ProtocolVersion)

	resp = postRPC(t, srv.URL, "tools/list", nil)
	var listRes toolsListResult
	decodeResult(t, resp, &listRes)
	names := map[string]bool{}
	for _, d := range listRes.Tools {
		names[d.Name] = true
	}
	assert.True(t, names["execute_actions"])
}

func TestHTTPHandlerUnknownMethod(t *testing.T) {
	store := state.New()
	s := newTestServer(&fakeDriver{}, store)
	h := NewHTTPHandler(s)
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := postRPC(t, srv.URL, "not_a_method", nil)
	var env rpcResponse
	require.NoError(t, json.Unmarshal(resp, &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, codeMethodNotFound, env.Error.Code)
}

func TestHTTPHandlerToolsCallRoutesToExecuteActions(t *testing.T) {
	store := state.New()
	store.Initialize("sess-http-1", "miniwob", 10)
	driver := &fakeDriver{steps: []browser.StepResult{{Done: true, Reward: 1}}}
	s := newTestServer(driver, store)
	s.BindSession(&browser.Session{ID: "sess-http-1", State: browser.SessionActive}, testProfile(), observation.TruncationPolicy{})
	h := NewHTTPHandler(s)
	srv := httptest.NewServer(h)
	defer srv.Close()

	args, err := json.Marshal(ExecuteActionsParams{Actions: []browser.Action{{Action: browser.ActionSendMsgToUser, Text: "done"}}})
	require.NoError(t, err)
	params, err := json.Marshal(toolsCallParams{Name: "execute_actions", Arguments: args})
	require.NoError(t, err)

	resp := postRPC(t, srv.URL, "tools/call", params)
	var result ExecuteActionsResult
	decodeResult(t, resp, &result)
	assert.True(t, result.TaskCompleted)
}

func TestHTTPHandlerToolsCallUnregisteredTool(t *testing.T) {
	store := state.New()
	s := newTestServer(&fakeDriver{}, store)
	h := NewHTTPHandler(s)
	srv := httptest.NewServer(h)
	defer srv.Close()

	params, err := json.Marshal(toolsCallParams{Name: "no_such_tool"})
	require.NoError(t, err)
	resp := postRPC(t, srv.URL, "tools/call", params)
	var env rpcResponse
	require.NoError(t, json.Unmarshal(resp, &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, codeMethodNotFound, env.Error.Code)
}

func postRPC(t *testing.T, url, method string, params json.RawMessage) []byte {
	t.Helper()
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, ID: json.RawMessage("1"), Params: params})
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return buf.Bytes()
}

func decodeResult(t *testing.T, raw []byte, v any) {
	t.Helper()
	var env struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	require.Nil(t, env.Error)
	require.NoError(t, json.Unmarshal(env.Result, v))
}
