package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/core"
)

// Turn is one scripted assistant response of a ScriptedModel.
type Turn struct {
	Text      string
	ToolCalls []core.ToolCallRequest
	Err       error // if set, the turn fails as a transport error
}

// ScriptedModel is an in-memory Model that replays a fixed sequence of turns.
// It records every request it receives, which makes loop behavior (ordering,
// iteration counting, history contents) easy to assert in tests. Turns are
// consumed in order; generating past the end of the script is a transport
// error.
type ScriptedModel struct {
	mu       sync.Mutex
	turns    []Turn
	next     int
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel replaying the given turns.
func NewScriptedModel(turns ...Turn) *ScriptedModel {
	return &ScriptedModel{turns: turns}
}

// Requests returns a snapshot of all requests seen so far, in order.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := make([]Request, len(m.requests))
	copy(reqs, m.requests)
	return reqs
}

// CallCount returns the number of Generate invocations so far.
func (m *ScriptedModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model. In streaming mode the turn's text is emitted as
// per-rune partial deltas before the final chunk; tool calls only ever appear
// on the final chunk.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	reqNum := len(m.requests)
	var turn Turn
	exhausted := m.next >= len(m.turns)
	if !exhausted {
		turn = m.turns[m.next]
		m.next++
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if exhausted {
			errCh <- fmt.Errorf("scripted model: no turn left for request %d", reqNum)
			return
		}
		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		if req.Stream {
			for _, r := range turn.Text {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Delta: string(r)}:
				}
			}
		}

		finishReason := "stop"
		if len(turn.ToolCalls) > 0 {
			finishReason = "tool_calls"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{
			Message:      core.NewAssistantMessage(turn.Text, turn.ToolCalls...),
			FinishReason: finishReason,
		}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *ScriptedModel) Info() Info {
	return Info{Name: "scripted", Provider: "scripted", SupportsTools: true}
}
