// Package anthropic provides a ChatModel adapter for Anthropic's Claude API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/dshills/codecrew/workflow/model"
)

// DefaultMaxTokens caps the length of a single reply.
const DefaultMaxTokens = 4096

// ChatModel implements model.ChatModel for Anthropic's Claude API.
//
// Anthropic takes the system prompt as a separate parameter and requires
// alternating user/assistant turns, so consecutive messages from the same
// side of the conversation are merged before sending.
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "claude-3-5-haiku-latest")
//	out, err := m.Chat(ctx, messages)
type ChatModel struct {
	modelName string
	maxTokens int64
	client    anthropicClient
}

// anthropicClient defines the interface for Anthropic API operations.
// This allows for easy mocking in tests.
type anthropicClient interface {
	createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// NewChatModel creates a new Anthropic ChatModel.
// An empty modelName uses "claude-3-5-haiku-latest".
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = "claude-3-5-haiku-latest"
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))
	return &ChatModel{
		modelName: modelName,
		maxTokens: DefaultMaxTokens,
		client:    &defaultClient{client: &client},
	}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	systemPrompt, rest := model.SystemPrompt(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  convertMessages(rest),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	msg, err := m.client.createMessage(ctx, params)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("anthropic messages: %w", err)
	}
	return convertResponse(msg, m.modelName)
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	merged := model.MergeConsecutive(messages)
	out := make([]anthropic.MessageParam, 0, len(merged))
	for _, msg := range merged {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

func convertResponse(msg *anthropic.Message, fallbackModel string) (model.ChatOut, error) {
	if msg == nil {
		return model.ChatOut{}, errors.New("anthropic messages: nil response")
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	name := string(msg.Model)
	if name == "" {
		name = fallbackModel
	}

	return model.ChatOut{
		Text:  sb.String(),
		Model: name,
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// defaultClient wraps the official anthropic-sdk-go client.
type defaultClient struct {
	client *anthropic.Client
}

func (c *defaultClient) createMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return c.client.Messages.New(ctx, params)
}
