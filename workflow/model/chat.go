// Package model provides LLM integration adapters.
package model

import "context"

// ChatModel defines the interface for LLM chat providers.
//
// This interface abstracts the differences between the hosted and local
// providers a workflow can be bound to (OpenAI-compatible endpoints,
// Anthropic, Google, Ollama), providing a unified API for chat-based turns.
//
// Implementations should:
//   - Handle provider-specific authentication.
//   - Convert the standard Message format to the provider format.
//   - Parse provider responses back to the standard ChatOut format.
//   - Respect context cancellation and timeouts.
//
// Retries are not the adapter's job: the workflow coordinator applies its
// own RetryPolicy around every turn.
//
// Example usage:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o-mini")
//	out, err := m.Chat(ctx, []model.Message{
//	    {Role: model.RoleSystem, Content: "You are a code reviewer."},
//	    {Role: model.RoleUser, Content: "Review this function."},
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(out.Text)
type ChatModel interface {
	// Chat sends messages to the LLM and returns the response.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control.
	//   - messages: Conversation history (system, user, assistant messages).
	//
	// Returns:
	//   - ChatOut: LLM response text plus token usage when the provider reports it.
	//   - error: Provider errors, network errors, or context cancellation.
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
//
// Typical conversation structure for a workflow turn:
//   - System message: the role's prompt.
//   - User messages: the requirement and other roles' output.
//   - Assistant messages: the role's own earlier output.
type Message struct {
	// Role identifies the message sender.
	// Use the Role* constants for consistency.
	Role string

	// Content contains the message text.
	Content string
}

// Standard role constants for LLM conversations.
const (
	// RoleSystem indicates a system message that sets context or instructions.
	RoleSystem = "system"

	// RoleUser indicates a message from the human user or another participant.
	RoleUser = "user"

	// RoleAssistant indicates a response from the LLM.
	RoleAssistant = "assistant"
)

// ChatOut represents the output from an LLM chat completion.
type ChatOut struct {
	// Text contains the LLM's generated response.
	Text string

	// Model is the provider model name that produced the response.
	// Empty when the adapter does not know it.
	Model string

	// Usage reports token consumption for the call. Zero when the
	// provider does not report usage.
	Usage Usage
}

// Usage holds token counts reported by a provider.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns the sum of input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// SystemPrompt returns the content of the first system message, and the
// remaining messages without any system entries. Adapters whose APIs take
// the system prompt out of band (Anthropic, Gemini) use it.
func SystemPrompt(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system == "" {
				system = m.Content
			} else {
				system += "\n\n" + m.Content
			}
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// MergeConsecutive joins adjacent messages that share a role. Providers that
// require strictly alternating user/assistant turns reject histories where two
// participants other than the current role spoke back to back.
func MergeConsecutive(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
