// Package google provides ChatModel adapter for Google Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/codecrew/workflow/model"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// The role prompt is sent as the model's SystemInstruction and the rest of
// the conversation as chat history. Blocked content surfaces as a
// *SafetyFilterError:
//
//	out, err := m.Chat(ctx, messages)
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("Content blocked: %s", safetyErr.Category())
//	}
type ChatModel struct {
	apiKey    string
	modelName string
	client    googleClient
}

// googleClient defines the interface for Google Gemini API operations.
// This allows for easy mocking in tests.
type googleClient interface {
	generateContent(ctx context.Context, system string, history []*genai.Content) (*genai.GenerateContentResponse, error)
}

// NewChatModel creates a new Google ChatModel.
// An empty modelName uses "gemini-2.5-flash-lite".
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = "gemini-2.5-flash-lite"
	}

	return &ChatModel{
		apiKey:    apiKey,
		modelName: modelName,
		client:    &defaultClient{apiKey: apiKey, modelName: modelName},
	}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	system, rest := model.SystemPrompt(messages)
	contents := convertMessages(rest)
	if len(contents) == 0 {
		return model.ChatOut{}, errors.New("google: no conversation content to send")
	}

	resp, err := m.client.generateContent(ctx, system, contents)
	if err != nil {
		var safetyErr *SafetyFilterError
		if errors.As(err, &safetyErr) {
			return model.ChatOut{}, safetyErr
		}
		return model.ChatOut{}, fmt.Errorf("google API error: %w", err)
	}

	out, err := convertResponse(resp)
	if err != nil {
		return model.ChatOut{}, err
	}
	out.Model = m.modelName
	return out, nil
}

// convertMessages maps workflow messages to Gemini contents. Gemini calls the
// assistant side "model".
func convertMessages(messages []model.Message) []*genai.Content {
	merged := model.MergeConsecutive(messages)
	out := make([]*genai.Content, 0, len(merged))
	for _, msg := range merged {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return out
}

// convertResponse converts Google's response to our ChatOut format.
func convertResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	out := model.ChatOut{}
	if resp == nil {
		return out, errors.New("google: nil response")
	}

	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	if len(resp.Candidates) == 0 {
		return out, nil
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return out, safetyErrorFromRatings(candidate.SafetyRatings)
	}
	if candidate.Content == nil {
		return out, nil
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(string(text))
		}
	}
	out.Text = sb.String()
	return out, nil
}

func safetyErrorFromRatings(ratings []*genai.SafetyRating) *SafetyFilterError {
	for _, r := range ratings {
		if r != nil && r.Blocked {
			return &SafetyFilterError{reason: "SAFETY", category: r.Category.String()}
		}
	}
	return &SafetyFilterError{reason: "SAFETY", category: "unspecified"}
}

// defaultClient wraps the official Google Gemini SDK client.
type defaultClient struct {
	apiKey    string
	modelName string
}

func (c *defaultClient) generateContent(ctx context.Context, system string, history []*genai.Content) (*genai.GenerateContentResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(c.modelName)
	if system != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := genModel.StartChat()
	session.History = history[:len(history)-1]
	last := history[len(history)-1]

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			if blocked.Candidate != nil {
				return nil, safetyErrorFromRatings(blocked.Candidate.SafetyRatings)
			}
			return nil, &SafetyFilterError{reason: "PROMPT_BLOCKED", category: "prompt"}
		}
		return nil, err
	}
	return resp, nil
}

// SafetyFilterError represents a Google safety filter block.
//
// Use errors.As to check for this error type:
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("Content blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	reason   string
	category string
}

// Error implements the error interface.
func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category returns the safety category that triggered the block.
func (e *SafetyFilterError) Category() string {
	return e.category
}

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string {
	return e.reason
}
