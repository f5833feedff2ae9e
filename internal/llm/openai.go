package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"valet/internal/httpkit"
)

// OpenAIClient speaks the OpenAI-compatible chat completions API. The
// default base URL targets OpenRouter, but any compatible endpoint
// (OpenAI itself, a local proxy) works.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
}

// NewOpenAIClient creates a chat completions client. baseURL must be
// the API root without a trailing slash (e.g.,
// "https://openrouter.ai/api/v1").
func NewOpenAIClient(baseURL, apiKey, model string, temperature float64) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenAIClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		httpClient: httpkit.NewClient(
			// Tool-heavy completions can take a while.
			httpkit.WithTimeout(2 * time.Minute),
		),
	}
}

// Wire types. The chat completions format differs from our internal
// types in two ways: tool call arguments travel as a JSON string, and
// content may be a string or a fragment list.

type wireRequest struct {
	Model       string           `json:"model"`
	Messages    []wireMessage    `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	Temperature float64          `json:"temperature,omitempty"`
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      wireMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat sends a non-streaming chat completion request.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := wireRequest{
		Model:       c.model,
		Messages:    toWire(messages),
		Tools:       tools,
		Temperature: c.temperature,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("chat completion HTTP %d: %s", resp.StatusCode, body)
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if wr.Error != nil {
		return nil, fmt.Errorf("provider error: %s", wr.Error.Message)
	}
	if len(wr.Choices) == 0 {
		return nil, fmt.Errorf("response contains no choices")
	}

	msg, err := fromWire(wr.Choices[0].Message)
	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		Model:        wr.Model,
		Message:      msg,
		InputTokens:  wr.Usage.PromptTokens,
		OutputTokens: wr.Usage.CompletionTokens,
	}, nil
}

// Ping verifies the endpoint and credentials via the models listing.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping HTTP %d", resp.StatusCode)
	}
	return nil
}

// toWire converts internal messages to the chat completions format.
func toWire(messages []Message) []wireMessage {
	out := make([]wireMessage, len(messages))
	for i, m := range messages {
		wm := wireMessage{
			Role:       m.Role,
			ToolCallID: m.ToolCallID,
		}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			content, _ := json.Marshal(m.Content)
			wm.Content = content
		}
		for _, tc := range m.ToolCalls {
			var wtc wireToolCall
			wtc.ID = tc.ID
			wtc.Type = "function"
			wtc.Function.Name = tc.Name
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out[i] = wm
	}
	return out
}

// fromWire converts a wire message to the internal form, decoding the
// argument JSON strings and flattening fragment-list content.
func fromWire(wm wireMessage) (Message, error) {
	msg := Message{
		Role:       wm.Role,
		ToolCallID: wm.ToolCallID,
	}

	if len(wm.Content) > 0 {
		var content any
		if err := json.Unmarshal(wm.Content, &content); err != nil {
			return msg, fmt.Errorf("decode content: %w", err)
		}
		msg.Content = FlattenContent(content)
	}

	for _, wtc := range wm.ToolCalls {
		tc := ToolCall{
			ID:   wtc.ID,
			Name: wtc.Function.Name,
		}
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		if wtc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(wtc.Function.Arguments), &tc.Arguments); err != nil {
				// Malformed arguments are the model's fault; pass the
				// raw string through so the tool layer can report it.
				tc.Arguments = map[string]any{"_raw": wtc.Function.Arguments}
			}
		}
		msg.ToolCalls = append(msg.ToolCalls, tc)
	}

	return msg, nil
}
