package model

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMockChatModel_SingleResponse(t *testing.T) {
	t.Run("returns configured response", func(t *testing.T) {
		mock := &MockChatModel{
			Responses: []ChatOut{{Text: "Hello, world!"}},
		}

		out, err := mock.Chat(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Text != "Hello, world!" {
			t.Errorf("expected Text = 'Hello, world!', got %q", out.Text)
		}
	})

	t.Run("repeats last response when exhausted", func(t *testing.T) {
		mock := &MockChatModel{
			Responses: []ChatOut{{Text: "Only response"}},
		}
		messages := []Message{{Role: RoleUser, Content: "Test"}}

		out1, err := mock.Chat(context.Background(), messages)
		if err != nil {
			t.Fatalf("first call failed: %v", err)
		}
		out2, err := mock.Chat(context.Background(), messages)
		if err != nil {
			t.Fatalf("second call failed: %v", err)
		}
		if out1.Text != out2.Text {
			t.Errorf("expected same response, got %q and %q", out1.Text, out2.Text)
		}
	})

	t.Run("returns empty response when no responses configured", func(t *testing.T) {
		mock := &MockChatModel{}

		out, err := mock.Chat(context.Background(), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Text != "" {
			t.Errorf("expected empty Text, got %q", out.Text)
		}
	})
}

func TestMockChatModel_ErrorInjection(t *testing.T) {
	want := errors.New("API error")
	mock := &MockChatModel{
		Responses: []ChatOut{{Text: "ignored"}},
		Err:       want,
	}

	_, err := mock.Chat(context.Background(), nil)
	if !errors.Is(err, want) {
		t.Errorf("expected injected error, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected failed call to be recorded, got %d calls", mock.CallCount())
	}
}

func TestMockChatModel_Reset(t *testing.T) {
	mock := &MockChatModel{
		Responses: []ChatOut{{Text: "first"}, {Text: "second"}},
	}
	_, _ = mock.Chat(context.Background(), nil)
	mock.Reset()

	if mock.CallCount() != 0 {
		t.Errorf("expected 0 calls after reset, got %d", mock.CallCount())
	}
	out, _ := mock.Chat(context.Background(), nil)
	if out.Text != "first" {
		t.Errorf("expected response index reset, got %q", out.Text)
	}
}

func TestMockChatModel_Concurrency(t *testing.T) {
	mock := &MockChatModel{Responses: []ChatOut{{Text: "ok"}}}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mock.Chat(context.Background(), nil)
		}()
	}
	wg.Wait()

	if mock.CallCount() != 20 {
		t.Errorf("expected 20 calls, got %d", mock.CallCount())
	}
}

func TestScriptedChatModel(t *testing.T) {
	t.Run("pops responses in order then fails", func(t *testing.T) {
		s := NewScriptedChatModel("one", "two")

		for _, want := range []string{"one", "two"} {
			out, err := s.Chat(context.Background(), nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if out.Text != want {
				t.Errorf("expected %q, got %q", want, out.Text)
			}
		}

		if _, err := s.Chat(context.Background(), nil); !errors.Is(err, ErrScriptExhausted) {
			t.Errorf("expected ErrScriptExhausted, got %v", err)
		}
		if len(s.Calls()) != 3 {
			t.Errorf("expected 3 recorded calls, got %d", len(s.Calls()))
		}
	})

	t.Run("scripted errors", func(t *testing.T) {
		boom := errors.New("provider down")
		s := NewScriptedChatModel()
		s.Push(ScriptStep{Err: boom}, ScriptStep{Out: ChatOut{Text: "recovered"}})

		if _, err := s.Chat(context.Background(), nil); !errors.Is(err, boom) {
			t.Errorf("expected scripted error, got %v", err)
		}
		out, err := s.Chat(context.Background(), nil)
		if err != nil || out.Text != "recovered" {
			t.Errorf("expected recovered reply, got %q / %v", out.Text, err)
		}
		if s.Remaining() != 0 {
			t.Errorf("expected script consumed, %d left", s.Remaining())
		}
	})

	t.Run("records a copy of messages", func(t *testing.T) {
		s := NewScriptedChatModel("x")
		msgs := []Message{{Role: RoleUser, Content: "original"}}
		_, _ = s.Chat(context.Background(), msgs)
		msgs[0].Content = "mutated"

		if got := s.Calls()[0][0].Content; got != "original" {
			t.Errorf("expected recorded copy, got %q", got)
		}
	})
}
