// Package openai adapts llm.Client onto OpenAI's Chat Completions API using
// github.com/openai/openai-go. No adapter for this client shipped with the
// reference material this module was built from; the shape mirrors the
// sibling anthropic adapter (narrow Client interface, New/NewFromAPIKey,
// Complete) rather than any example of openai-go usage.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/a2aeval/evaluator/internal/llm"
)

// ChatClient captures the subset of the OpenAI SDK used here. It is
// satisfied by the client's Chat.Completions service, so tests can
// substitute a fake.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client implements llm.Client on top of OpenAI Chat Completions.
type Client struct {
	chat      ChatClient
	model     string
	maxTokens int
}

// New builds a Client from an already-configured chat completions client.
func New(chat ChatClient, model string, maxTokens int) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	if model == "" {
		return nil, errors.New("model identifier is required")
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{chat: chat, model: model, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a Client using the default OpenAI HTTP client,
// authenticated with apiKey.
func NewFromAPIKey(apiKey, model string, maxTokens int) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return New(c.Chat.Completions, model, maxTokens)
}

// Complete issues one Chat.Completions.New call and translates the reply
// into an llm.Response.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	messages, err := encodeMessages(req.System, req.Messages)
	if err != nil {
		return nil, err
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := openai.ChatCompletionNewParams{
		Model:     shared.ChatModel(c.model),
		Messages:  messages,
		MaxTokens: openai.Int(int64(maxTokens)),
	}
	if tools := encodeTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}
	completion, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat.completions.new: %w", err)
	}
	return translateResponse(completion)
}

func encodeMessages(system string, msgs []llm.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleUser:
			if len(m.ToolResults) > 0 {
				for _, tr := range m.ToolResults {
					out = append(out, openai.ToolMessage(tr.Content, tr.ToolCallID))
				}
				continue
			}
			out = append(out, openai.UserMessage(m.Text))
		case llm.RoleAssistant:
			msg := openai.ChatCompletionAssistantMessageParam{}
			if m.Text != "" {
				msg.Content.OfString = openai.String(m.Text)
			}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &msg})
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("openai: at least one message is required")
	}
	return out, nil
}

func encodeTools(defs []llm.ToolDefinition) []openai.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			continue
		}
		var schema map[string]any
		if len(def.InputSchema) > 0 {
			_ = json.Unmarshal(def.InputSchema, &schema)
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  shared.FunctionParameters(schema),
			},
		})
	}
	return out
}

func translateResponse(completion *openai.ChatCompletion) (*llm.Response, error) {
	if len(completion.Choices) == 0 {
		return nil, errors.New("openai: completion returned no choices")
	}
	choice := completion.Choices[0]
	resp := &llm.Response{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	resp.Usage = llm.TokenUsage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:  int(completion.Usage.TotalTokens),
	}
	return resp, nil
}
