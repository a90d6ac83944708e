// Package openai provides a ChatModel adapter for OpenAI and OpenAI-compatible
// chat completion endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/codecrew/workflow/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// GeminiBaseURL is Google's OpenAI-compatible endpoint. Pair it with a Gemini
// API key and a model such as "gemini-2.5-flash-lite".
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// ChatModel implements model.ChatModel for OpenAI's Chat Completions API.
//
// Any server speaking the same protocol works when a base URL is set, which
// is how the hosted Gemini binding is configured:
//
//	m := openai.NewChatModel(os.Getenv("GEMINI_API_KEY"), "gemini-2.5-flash-lite",
//	    openai.WithBaseURL(openai.GeminiBaseURL))
//
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleUser, Content: "What is the capital of France?"},
//	})
type ChatModel struct {
	modelName string
	client    openaiClient
}

// openaiClient defines the interface for OpenAI API operations.
// This allows for easy mocking in tests.
type openaiClient interface {
	createChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

// Option configures the underlying SDK client.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL    string
	maxRetries int
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithMaxRetries sets the SDK's own transport retries. The default is 0
// because the workflow coordinator owns turn retries.
func WithMaxRetries(n int) Option {
	return func(c *clientConfig) { c.maxRetries = n }
}

// NewChatModel creates a new OpenAI ChatModel.
//
// An empty modelName uses "gpt-4o-mini".
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	cfg := clientConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &ChatModel{
		modelName: modelName,
		client:    newDefaultClient(apiKey, cfg),
	}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	completion, err := m.client.createChatCompletion(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	})
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("openai chat completion: %w", err)
	}

	return convertResponse(completion, m.modelName)
}

// convertMessages maps workflow messages onto SDK message params.
func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func convertResponse(completion *openai.ChatCompletion, fallbackModel string) (model.ChatOut, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return model.ChatOut{}, errors.New("openai chat completion: no choices returned")
	}

	name := completion.Model
	if name == "" {
		name = fallbackModel
	}

	return model.ChatOut{
		Text:  completion.Choices[0].Message.Content,
		Model: name,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

// defaultClient wraps the official openai-go SDK client.
type defaultClient struct {
	client *openai.Client
}

func newDefaultClient(apiKey string, cfg clientConfig) *defaultClient {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.baseURL))
	}
	client := openai.NewClient(opts...)
	return &defaultClient{client: &client}
}

func (c *defaultClient) createChatCompletion(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
	return c.client.Chat.Completions.New(ctx, params)
}
