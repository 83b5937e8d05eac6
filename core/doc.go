// Package core defines the shared value types of the agent loop: conversation
// roles, messages, tool call requests and results, and the append-only
// Conversation history store that one agent instance exclusively owns.
package core
