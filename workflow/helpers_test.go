package workflow

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/dshills/codecrew/workflow/model"
)

// newCoordinator is New with logging discarded. Options given by the test
// still override the logger.
func newCoordinator(registry *Registry, invoker Invoker, opts ...Option) (*Coordinator, error) {
	return New(registry, invoker, append([]Option{WithLogger(discardLogger())}, opts...)...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeInvoker answers with reply(role, n) where n counts that role's calls
// from zero. It records every call in order.
type fakeInvoker struct {
	mu        sync.Mutex
	reply     func(role string, n int) (string, error)
	perRole   map[string]int
	calls     []string
	histories [][]Message
}

func newFakeInvoker(reply func(role string, n int) (string, error)) *fakeInvoker {
	return &fakeInvoker{reply: reply, perRole: make(map[string]int)}
}

func (f *fakeInvoker) Invoke(ctx context.Context, role Role, history []Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}
	f.mu.Lock()
	n := f.perRole[role.Name]
	f.perRole[role.Name]++
	f.calls = append(f.calls, role.Name)
	f.histories = append(f.histories, history)
	f.mu.Unlock()

	text, err := f.reply(role.Name, n)
	if err != nil {
		return model.ChatOut{}, err
	}
	return model.ChatOut{Text: text, Model: "gpt-4o-mini", Usage: model.Usage{InputTokens: 100, OutputTokens: 50}}, nil
}

func (f *fakeInvoker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// completingReply approves everything and has the UI role finish the run.
func completingReply(role string, _ int) (string, error) {
	switch role {
	case RoleCodeReview:
		return "APPROVED: the code is correct.", nil
	case RoleUIGeneration:
		return "UI ready.\n" + DefaultCompletionToken, nil
	default:
		return role + " output", nil
	}
}

// neverCompletingReply approves everything but never emits the token.
func neverCompletingReply(role string, _ int) (string, error) {
	if role == RoleCodeReview {
		return "APPROVED", nil
	}
	return role + " output", nil
}

func canonicalPass() []string {
	return CanonicalRoleNames()
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
