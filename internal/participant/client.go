// Package participant implements the Participant Client: it discovers a
// participant's agent card, sends task-assignment messages, and monitors
// the returned Task to a terminal state.
package participant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/a2aeval/evaluator/internal/a2a"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithHeader adds a static header to every outgoing request.
func WithHeader(name, value string) Option {
	return func(cl *Client) { cl.headers.Add(name, value) }
}

// Client sends task-assignment messages to one participant endpoint and
// polls for task completion.
type Client struct {
	endpoint string
	http     *http.Client
	headers  http.Header
	id       uint64
}

// New constructs a Client bound to endpoint, the participant's A2A message
// URL.
func New(endpoint string, opts ...Option) *Client {
	cl := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		headers:  make(http.Header),
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("participant rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) nextID() uint64 {
	return atomic.AddUint64(&c.id, 1)
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, ID: c.nextID(), Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("participant http status %d", resp.StatusCode)
	}
	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return err
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil && rpcResp.Result != nil {
		return json.Unmarshal(rpcResp.Result, result)
	}
	return nil
}

// DiscoverAgentCard fetches the participant's agent card at its well-known
// discovery path.
func (c *Client) DiscoverAgentCard(ctx context.Context) (a2a.AgentCard, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/.well-known/agent-card.json", nil)
	if err != nil {
		return a2a.AgentCard{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return a2a.AgentCard{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return a2a.AgentCard{}, fmt.Errorf("agent card discovery: http status %d", resp.StatusCode)
	}
	var card a2a.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return a2a.AgentCard{}, err
	}
	return card, nil
}

// SendTask sends msg as a "message/send" JSON-RPC call and returns the
// resulting Task.
func (c *Client) SendTask(ctx context.Context, msg a2a.Message) (a2a.Task, error) {
	var task a2a.Task
	if err := c.call(ctx, "message/send", map[string]any{"message": msg}, &task); err != nil {
		return a2a.Task{}, err
	}
	return task, nil
}

// GetTask polls the participant for the current state of taskID via
// "tasks/get".
func (c *Client) GetTask(ctx context.Context, taskID string) (a2a.Task, error) {
	var task a2a.Task
	if err := c.call(ctx, "tasks/get", map[string]any{"id": taskID}, &task); err != nil {
		return a2a.Task{}, err
	}
	return task, nil
}

// AwaitTerminal sends msg, then polls GetTask at pollInterval until the task
// reaches a terminal state, ctx is canceled, or the initial send already
// returned a terminal task.
func (c *Client) AwaitTerminal(ctx context.Context, msg a2a.Message, pollInterval time.Duration) (a2a.Task, error) {
	task, err := c.SendTask(ctx, msg)
	if err != nil {
		return a2a.Task{}, err
	}
	if task.Status.State.Terminal() {
		return task, nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return task, ctx.Err()
		case <-ticker.C:
			task, err = c.GetTask(ctx, task.ID)
			if err != nil {
				return a2a.Task{}, err
			}
			if task.Status.State.Terminal() {
				return task, nil
			}
		}
	}
}
