// Package schema holds the shared types and service contracts used across
// pearlgull: conversation messages, the context-window/budget model, memory
// tier entries, and the turn event stream.
package schema

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the prompt sent to the model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Messages is the ordered message list for one model call.
// It owns typed append methods so callers never build raw maps.
type Messages struct {
	Messages []Message
}

// NewMessages returns a Messages initialised with the given messages.
func NewMessages(msgs ...Message) Messages {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return Messages{Messages: out}
}

// AddSystem appends a system message.
func (m *Messages) AddSystem(content string) {
	m.Messages = append(m.Messages, Message{Role: RoleSystem, Content: content})
}

// AddUser appends a user message.
func (m *Messages) AddUser(content string) {
	m.Messages = append(m.Messages, Message{Role: RoleUser, Content: content})
}

// AddAssistant appends an assistant message.
func (m *Messages) AddAssistant(content string) {
	m.Messages = append(m.Messages, Message{Role: RoleAssistant, Content: content})
}

// Clone returns a deep copy of the message list.
func (m Messages) Clone() Messages {
	out := make([]Message, len(m.Messages))
	copy(out, m.Messages)
	return Messages{Messages: out}
}

// Len returns the number of messages.
func (m Messages) Len() int { return len(m.Messages) }

// StoredMessage is a persisted thread message with identity and ordering.
type StoredMessage struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Seq       int64     `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
