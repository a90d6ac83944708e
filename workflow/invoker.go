package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/codecrew/workflow/model"
)

// Invoker produces a role's reply to the conversation so far. It may fail
// with a provider error, a timeout or a *MalformedOutputError.
// Implementations must not retain or modify history.
type Invoker interface {
	Invoke(ctx context.Context, role Role, history []Message) (model.ChatOut, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, role Role, history []Message) (model.ChatOut, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, role Role, history []Message) (model.ChatOut, error) {
	return f(ctx, role, history)
}

// ModelInvoker invokes roles through a chat model. The role's system prompt
// leads the request; the role's own earlier messages are sent as assistant
// turns and everything else as user turns tagged with its source.
type ModelInvoker struct {
	Model model.ChatModel
}

// NewModelInvoker returns an Invoker backed by m.
func NewModelInvoker(m model.ChatModel) *ModelInvoker {
	return &ModelInvoker{Model: m}
}

// Invoke implements Invoker.
func (mi *ModelInvoker) Invoke(ctx context.Context, role Role, history []Message) (model.ChatOut, error) {
	out, err := mi.Model.Chat(ctx, BuildPrompt(role, history))
	if err != nil {
		return model.ChatOut{}, err
	}
	if strings.TrimSpace(out.Text) == "" {
		return model.ChatOut{}, &MalformedOutputError{Role: role.Name, Reason: "empty completion"}
	}
	return out, nil
}

// BuildPrompt renders history as chat messages from role's point of view.
func BuildPrompt(role Role, history []Message) []model.Message {
	msgs := make([]model.Message, 0, len(history)+1)
	if role.SystemPrompt != "" {
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Content: role.SystemPrompt})
	}
	for _, m := range history {
		switch m.Source {
		case role.Name:
			msgs = append(msgs, model.Message{Role: model.RoleAssistant, Content: m.Content})
		case SourceUser:
			msgs = append(msgs, model.Message{Role: model.RoleUser, Content: m.Content})
		default:
			msgs = append(msgs, model.Message{
				Role:    model.RoleUser,
				Content: fmt.Sprintf("[%s]: %s", m.Source, m.Content),
			})
		}
	}
	return msgs
}

// PerRoleInvoker routes each role to its own invoker, falling back to
// Default. Routes are usually set up before the first run.
type PerRoleInvoker struct {
	Default Invoker

	mu     sync.RWMutex
	routes map[string]Invoker
}

// NewPerRoleInvoker returns a router with the given fallback invoker.
func NewPerRoleInvoker(def Invoker) *PerRoleInvoker {
	return &PerRoleInvoker{Default: def, routes: make(map[string]Invoker)}
}

// Route sends invocations of the named role to inv.
func (p *PerRoleInvoker) Route(name string, inv Invoker) *PerRoleInvoker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.routes == nil {
		p.routes = make(map[string]Invoker)
	}
	p.routes[name] = inv
	return p
}

// Invoke implements Invoker.
func (p *PerRoleInvoker) Invoke(ctx context.Context, role Role, history []Message) (model.ChatOut, error) {
	p.mu.RLock()
	inv, ok := p.routes[role.Name]
	p.mu.RUnlock()
	if !ok {
		inv = p.Default
	}
	if inv == nil {
		return model.ChatOut{}, fmt.Errorf("%w: no route for %s", ErrNilInvoker, role.Name)
	}
	return inv.Invoke(ctx, role, history)
}
