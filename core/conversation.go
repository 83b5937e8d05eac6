package core

import "sync"

// Conversation is an ordered, append-only message history. It is exclusively
// owned by one agent instance: only the loop controller mutates it, and it is
// append-only for the duration of a run. Reset clears it atomically.
//
// The store itself is safe for concurrent access, but two chat runs must not
// share one Conversation; callers serialize runs or use separate agents.
type Conversation struct {
	mu       sync.RWMutex
	messages []Message
}

// NewConversation constructs an empty conversation.
func NewConversation() *Conversation { return &Conversation{} }

// Append adds messages to the end of the history preserving argument order.
func (c *Conversation) Append(msgs ...Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// Messages returns a snapshot copy of the history. Mutating the returned
// slice does not affect the conversation.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make([]Message, len(c.messages))
	copy(snapshot, c.messages)
	return snapshot
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last returns the most recent message, if any.
func (c *Conversation) Last() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Reset atomically clears the history. A subsequent run behaves identically
// to one on a freshly constructed conversation.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}
