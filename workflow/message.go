package workflow

import (
	"time"

	"github.com/dshills/codecrew/workflow/model"
)

// Message is one entry of a conversation. Messages are values and are never
// modified after the coordinator creates them.
type Message struct {
	// Seq is the 1-based position in the conversation.
	Seq int
	// Source is a role name or SourceUser.
	Source  string
	Content string
	// Usage is the token usage of the turn that produced the message.
	Usage     model.Usage
	CreatedAt time.Time
}

// Conversation is an append-only message log owned by one run.
type Conversation struct {
	messages []Message
}

// append assigns the next sequence number and adds m.
func (c *Conversation) append(m Message) Message {
	m.Seq = len(c.messages) + 1
	c.messages = append(c.messages, m)
	return m
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}
