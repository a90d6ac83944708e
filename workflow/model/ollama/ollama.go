// Package ollama provides a ChatModel adapter for a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dshills/codecrew/workflow/model"
)

// DefaultBaseURL is where a stock Ollama install listens.
const DefaultBaseURL = "http://localhost:11434"

// ChatModel implements model.ChatModel against Ollama's /api/chat endpoint
// with streaming disabled.
type ChatModel struct {
	baseURL   string
	modelName string
	options   map[string]interface{}
	client    *http.Client
}

// Option configures a ChatModel.
type Option func(*ChatModel)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *ChatModel) { m.client = c }
}

// WithTemperature sets the sampling temperature sent in request options.
func WithTemperature(t float64) Option {
	return func(m *ChatModel) {
		if m.options == nil {
			m.options = map[string]interface{}{}
		}
		m.options["temperature"] = t
	}
}

// NewChatModel creates a ChatModel. Empty baseURL and modelName default to
// DefaultBaseURL and "llama3.1".
func NewChatModel(baseURL, modelName string, opts ...Option) *ChatModel {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if modelName == "" {
		modelName = "llama3.1"
	}
	m := &ChatModel{
		baseURL:   baseURL,
		modelName: modelName,
		client:    &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []chatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type chatResponse struct {
	Model           string      `json:"model"`
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

// StatusError reports a non-200 response from the server.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama api returned status %d: %s", e.StatusCode, e.Body)
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	req := chatRequest{
		Model:    m.modelName,
		Messages: make([]chatMessage, 0, len(messages)),
		Stream:   false,
		Options:  m.options,
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("failed to create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("ollama api call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return model.ChatOut{}, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.ChatOut{}, fmt.Errorf("failed to decode ollama response: %w", err)
	}

	name := out.Model
	if name == "" {
		name = m.modelName
	}
	return model.ChatOut{
		Text:  out.Message.Content,
		Model: name,
		Usage: model.Usage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
		},
	}, nil
}
