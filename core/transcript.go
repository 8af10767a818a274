package core

import "fmt"

// Transcript is the ordered, append-only record of one run's conversation.
// Past messages are never mutated; Messages returns a copy.
//
// Appending a tool message requires a previously appended, still unanswered
// ToolCall with the same correlation id, so every ToolCall gets at most one
// ToolResult.
type Transcript struct {
	messages []Message
	pending  map[string]string // call id -> tool name
	answered map[string]bool
}

// NewTranscript creates a transcript seeded with the given messages.
func NewTranscript(seed ...Message) (*Transcript, error) {
	t := &Transcript{pending: map[string]string{}, answered: map[string]bool{}}
	if err := t.Append(seed...); err != nil {
		return nil, err
	}
	return t, nil
}

// Append adds messages in order. It stops at the first message that violates
// the tool-result correlation invariant.
func (t *Transcript) Append(msgs ...Message) error {
	if t.pending == nil {
		t.pending = map[string]string{}
		t.answered = map[string]bool{}
	}
	for _, m := range msgs {
		switch m.Role {
		case RoleAssistant:
			for _, c := range m.ToolCalls {
				if c.ID == "" {
					return fmt.Errorf("tool call %q has no correlation id", c.Name)
				}
				if _, dup := t.pending[c.ID]; dup || t.answered[c.ID] {
					return fmt.Errorf("duplicate tool call id %q", c.ID)
				}
			}
			for _, c := range m.ToolCalls {
				t.pending[c.ID] = c.Name
			}
		case RoleTool:
			if m.ToolResult == nil {
				return fmt.Errorf("tool message without result")
			}
			id := m.ToolResult.CallID
			if t.answered[id] {
				return fmt.Errorf("tool call %q already has a result", id)
			}
			if _, ok := t.pending[id]; !ok {
				return fmt.Errorf("tool result %q has no matching call", id)
			}
			delete(t.pending, id)
			t.answered[id] = true
		}
		t.messages = append(t.messages, m)
	}
	return nil
}

// Messages returns a copy of the transcript in causal order.
func (t *Transcript) Messages() []Message {
	if t == nil {
		return nil
	}
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	if t == nil {
		return 0
	}
	return len(t.messages)
}

// Pending returns the ids of tool calls still waiting for a result.
func (t *Transcript) Pending() []string {
	ids := make([]string, 0, len(t.pending))
	for _, m := range t.messages {
		for _, c := range m.ToolCalls {
			if _, ok := t.pending[c.ID]; ok {
				ids = append(ids, c.ID)
			}
		}
	}
	return ids
}

// LastAssistantText returns the content of the most recent assistant message
// with non-empty text, or "".
func (t *Transcript) LastAssistantText() string {
	if t == nil {
		return ""
	}
	for i := len(t.messages) - 1; i >= 0; i-- {
		m := t.messages[i]
		if m.Role == RoleAssistant && m.Content != "" {
			return m.Content
		}
	}
	return ""
}

// Clone returns a copy that can be appended to independently of t.
func (t *Transcript) Clone() *Transcript {
	c := &Transcript{
		messages: t.Messages(),
		pending:  make(map[string]string, len(t.pending)),
		answered: make(map[string]bool, len(t.answered)),
	}
	for k, v := range t.pending {
		c.pending[k] = v
	}
	for k, v := range t.answered {
		c.answered[k] = v
	}
	return c
}
