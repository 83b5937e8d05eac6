package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
)

// Loop phases. A run moves DECIDE -> EXECUTE_TOOLS -> DECIDE until the model
// answers without tool calls (DONE) or the iteration cap is hit (ABORTED).
type phase string

const (
	phaseDecide       phase = "decide"
	phaseExecuteTools phase = "execute_tools"
	phaseDone         phase = "done"
	phaseAborted      phase = "aborted"
)

// run drives one full loop execution for a single user message. sink is
// non-nil in streaming mode and receives the terminal turn's text increments;
// every non-terminal turn is fully buffered internally so no ultimately
// discarded tool call payload ever reaches the caller.
func (a *Agent) run(ctx context.Context, text string, sink *Stream) (string, error) {
	a.conv.Append(core.NewUserMessage(text))

	iterations := 0
	for {
		a.opts.Logger.Debug("agent.loop.phase", "phase", phaseDecide, "iteration", iterations)

		assistant, deltas, err := a.decide(ctx, sink != nil)
		if err != nil {
			// Transport faults propagate to the caller, never retried here.
			a.opts.Logger.Error("agent.loop.model_error", "error", err.Error())
			return "", err
		}

		// The assistant message, pending requests included, enters history
		// before any tool runs.
		a.conv.Append(assistant)

		if !assistant.HasToolCalls() {
			a.opts.Logger.Debug("agent.loop.phase", "phase", phaseDone, "iterations", iterations)
			if sink != nil {
				if err := deliver(ctx, sink, deltas, assistant.Content); err != nil {
					return assistant.Content, err
				}
			}
			return assistant.Content, nil
		}

		if iterations >= a.opts.MaxIterations {
			a.opts.Logger.Warn(
				"agent.loop.phase",
				"phase", phaseAborted,
				"iterations", iterations,
				"max_iterations", a.opts.MaxIterations,
			)
			return "", &MaxIterationsError{Limit: a.opts.MaxIterations}
		}
		iterations++

		a.opts.Logger.Debug(
			"agent.loop.phase",
			"phase", phaseExecuteTools,
			"iteration", iterations,
			"pending_calls", len(assistant.ToolCalls),
		)

		// All results are appended, in request order, before the next decide.
		results := a.invoker.invokeAll(ctx, assistant.ToolCalls)
		for _, result := range results {
			a.conv.Append(core.NewToolMessage(result))
		}

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
}

// decide performs one model turn: it sends the full history plus tool schemas
// and buffers the complete output. The returned deltas preserve the model's
// chunking for later replay in streaming mode.
func (a *Agent) decide(ctx context.Context, streaming bool) (core.Message, []string, error) {
	req := model.Request{
		System:   a.opts.SystemPrompt,
		Messages: a.conv.Messages(),
		Tools:    a.registry.Definitions(),
		Stream:   streaming,
	}

	start := time.Now()
	respCh, errCh := a.llm.Generate(ctx, req)

	var (
		deltas []string
		final  *core.Message
		finish string
	)

	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				if resp.Delta != "" {
					deltas = append(deltas, resp.Delta)
				}
				continue
			}
			msg := resp.Message
			final = &msg
			finish = resp.FinishReason
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return core.Message{}, nil, fmt.Errorf("model invocation failed: %w", err)
			}
		case <-ctx.Done():
			return core.Message{}, nil, ctx.Err()
		}
	}

	if final == nil {
		return core.Message{}, nil, errors.New("model produced no final response")
	}

	// Providers occasionally omit call ids; results must stay correlated.
	for i := range final.ToolCalls {
		if final.ToolCalls[i].ID == "" {
			final.ToolCalls[i].ID = core.NewID()
		}
	}

	a.opts.Logger.Debug(
		"agent.model.turn",
		"model", a.llm.Info().Name,
		"finish_reason", finish,
		"tool_calls", len(final.ToolCalls),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return *final, deltas, nil
}

// deliver replays the terminal turn's increments into the stream. If the
// model produced no deltas (a non-streaming transport), the complete text is
// delivered as a single increment. A consumer that closed the stream stops
// delivery without failing the run.
func deliver(ctx context.Context, sink *Stream, deltas []string, fullText string) error {
	if len(deltas) == 0 && fullText != "" {
		deltas = []string{fullText}
	}
	for _, delta := range deltas {
		if err := sink.push(ctx, delta); err != nil {
			if errors.Is(err, errStreamClosed) {
				return nil
			}
			return err
		}
	}
	return nil
}
