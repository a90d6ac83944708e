package model

import (
	"context"
	"errors"
	"sync"
)

// ErrScriptExhausted is returned by ScriptedChatModel once every scripted
// step has been consumed.
var ErrScriptExhausted = errors.New("scripted model: no responses left")

// MockChatModel is a test implementation of ChatModel.
//
// Use MockChatModel in tests to verify workflow behavior without
// making actual LLM API calls. It provides:
//   - Configurable responses
//   - Call history tracking
//   - Error injection
//   - Thread-safe operation
//
// Example usage:
//
//	mock := &MockChatModel{
//	    Responses: []ChatOut{
//	        {Text: "First response"},
//	        {Text: "Second response"},
//	    },
//	}
//	out, err := mock.Chat(ctx, messages)
//	// Returns "First response", then "Second response" on subsequent calls
type MockChatModel struct {
	// Responses contains the sequence of responses to return.
	// Each call to Chat() returns the next response in order.
	// If all responses are consumed, the last response repeats.
	Responses []ChatOut

	// Err, if set, will be returned by Chat() instead of a response.
	Err error

	// Calls tracks the history of all Chat() invocations.
	Calls []MockChatCall

	mu        sync.Mutex // Protects concurrent access to Calls and response index
	callIndex int        // Tracks which response to return next
}

// MockChatCall records a single invocation of Chat().
type MockChatCall struct {
	Messages []Message
}

// Chat implements the ChatModel interface.
//
// Always records the call in Calls history regardless of success/failure.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if ctx.Err() != nil {
		return ChatOut{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockChatCall{Messages: messages})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}

	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1 // Repeat last response
	} else {
		m.callIndex++
	}

	return m.Responses[idx], nil
}

// Reset clears the call history and resets the response index.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of times Chat() has been called.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}

// ScriptStep is one scripted reply. A non-nil Err is returned instead of Out.
type ScriptStep struct {
	Out ChatOut
	Err error
}

// ScriptedChatModel pops steps in order and fails with ErrScriptExhausted
// when none remain. Unlike MockChatModel it never repeats, which makes an
// unexpected extra turn visible in tests.
type ScriptedChatModel struct {
	mu    sync.Mutex
	steps []ScriptStep
	calls [][]Message
}

// NewScriptedChatModel returns a model that answers with texts in order.
func NewScriptedChatModel(texts ...string) *ScriptedChatModel {
	s := &ScriptedChatModel{}
	for _, t := range texts {
		s.steps = append(s.steps, ScriptStep{Out: ChatOut{Text: t}})
	}
	return s
}

// Push appends steps to the script.
func (s *ScriptedChatModel) Push(steps ...ScriptStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

// Chat implements ChatModel.
func (s *ScriptedChatModel) Chat(ctx context.Context, messages []Message) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, append([]Message(nil), messages...))
	if len(s.steps) == 0 {
		return ChatOut{}, ErrScriptExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.Out, step.Err
}

// Calls returns a copy of every message list the model was called with.
func (s *ScriptedChatModel) Calls() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Message(nil), s.calls...)
}

// Remaining reports how many scripted steps are unconsumed.
func (s *ScriptedChatModel) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}
