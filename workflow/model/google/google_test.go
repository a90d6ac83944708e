package google

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/codecrew/workflow/model"
	"github.com/google/generative-ai-go/genai"
)

type mockGoogleClient struct {
	resp        *genai.GenerateContentResponse
	err         error
	callCount   int
	lastSystem  string
	lastHistory []*genai.Content
}

func (m *mockGoogleClient) generateContent(_ context.Context, system string, history []*genai.Content) (*genai.GenerateContentResponse, error) {
	m.callCount++
	m.lastSystem = system
	m.lastHistory = history
	return m.resp, m.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(text)}}},
		},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 30, CandidatesTokenCount: 12},
	}
}

func TestGoogleChatModel_Construction(t *testing.T) {
	m := NewChatModel("test-api-key", "")
	if m.modelName != "gemini-2.5-flash-lite" {
		t.Errorf("expected default model, got %q", m.modelName)
	}
}

func TestGoogleChatModel_Chat(t *testing.T) {
	t.Run("sends system instruction and history", func(t *testing.T) {
		client := &mockGoogleClient{resp: textResponse("Hello from Gemini")}
		m := &ChatModel{client: client, modelName: "gemini-2.5-flash-lite"}

		out, err := m.Chat(context.Background(), []model.Message{
			{Role: model.RoleSystem, Content: "You write documentation."},
			{Role: model.RoleUser, Content: "Document this."},
			{Role: model.RoleAssistant, Content: "Draft."},
			{Role: model.RoleUser, Content: "Expand it."},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Text != "Hello from Gemini" {
			t.Errorf("unexpected text %q", out.Text)
		}
		if out.Usage.InputTokens != 30 || out.Usage.OutputTokens != 12 {
			t.Errorf("unexpected usage %+v", out.Usage)
		}
		if client.lastSystem != "You write documentation." {
			t.Errorf("expected system instruction, got %q", client.lastSystem)
		}
		if len(client.lastHistory) != 3 {
			t.Fatalf("expected 3 contents, got %d", len(client.lastHistory))
		}
		if client.lastHistory[1].Role != "model" {
			t.Errorf("expected assistant mapped to model, got %q", client.lastHistory[1].Role)
		}
	})

	t.Run("rejects empty conversation", func(t *testing.T) {
		client := &mockGoogleClient{resp: textResponse("unused")}
		m := &ChatModel{client: client, modelName: "gemini"}

		if _, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleSystem, Content: "x"}}); err == nil {
			t.Error("expected error for empty conversation")
		}
		if client.callCount != 0 {
			t.Errorf("expected no API call, got %d", client.callCount)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		m := &ChatModel{client: &mockGoogleClient{}, modelName: "gemini"}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := m.Chat(ctx, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestGoogleChatModel_SafetyFilters(t *testing.T) {
	t.Run("passes safety errors through unwrapped", func(t *testing.T) {
		client := &mockGoogleClient{err: &SafetyFilterError{reason: "SAFETY", category: "HARM_CATEGORY_HATE_SPEECH"}}
		m := &ChatModel{client: client, modelName: "gemini"}

		_, err := m.Chat(context.Background(), []model.Message{{Role: model.RoleUser, Content: "x"}})
		var safetyErr *SafetyFilterError
		if !errors.As(err, &safetyErr) {
			t.Fatalf("expected SafetyFilterError, got %T", err)
		}
		if safetyErr.Category() != "HARM_CATEGORY_HATE_SPEECH" {
			t.Errorf("expected preserved category, got %q", safetyErr.Category())
		}
	})

	t.Run("finish reason safety becomes an error", func(t *testing.T) {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				FinishReason: genai.FinishReasonSafety,
				SafetyRatings: []*genai.SafetyRating{
					{Category: genai.HarmCategoryDangerousContent, Blocked: true},
				},
			}},
		}

		_, err := convertResponse(resp)
		var safetyErr *SafetyFilterError
		if !errors.As(err, &safetyErr) {
			t.Fatalf("expected SafetyFilterError, got %v", err)
		}
		if safetyErr.Reason() != "SAFETY" {
			t.Errorf("expected SAFETY reason, got %q", safetyErr.Reason())
		}
	})
}

func TestConvertResponse_JoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text("a"), genai.Text("b")}},
		}},
	}

	out, err := convertResponse(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Text != "a\nb" {
		t.Errorf("expected joined text, got %q", out.Text)
	}
}
