package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/schema"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/tool"
)

// ToolObservation is reported through the optional observer side channel for
// every tool call of an execute phase. It is independent of the run's
// returned value.
type ToolObservation struct {
	Tool       string
	ToolCallID string
	Arguments  string
	Result     core.ToolResult
	Duration   time.Duration
}

// toolInvoker turns a batch of pending call requests into exactly one
// ToolResult each. Calls may be dispatched concurrently up to maxParallel,
// but results always come back in original request order so transcripts stay
// deterministic. Every fault (unknown tool, malformed or invalid arguments,
// execution error, panic) is contained as a failed ToolResult and never
// escapes the loop.
type toolInvoker struct {
	registry    *tool.Registry
	maxParallel int
	logger      logging.Logger
	observe     func(ToolObservation)
}

// invokeAll executes one EXECUTE_TOOLS phase. Each request is executed at
// most once; a request whose ID repeats an earlier one in the same batch is a
// validation fault and is never dispatched.
func (inv *toolInvoker) invokeAll(ctx context.Context, calls []core.ToolCallRequest) []core.ToolResult {
	n := len(calls)
	results := make([]core.ToolResult, n)

	duplicate := make([]bool, n)
	seen := make(map[string]bool, n)
	for i, call := range calls {
		if call.ID != "" && seen[call.ID] {
			duplicate[i] = true
			continue
		}
		seen[call.ID] = true
	}

	// Fast path: single call, execute inline.
	if n == 1 && !duplicate[0] {
		results[0] = inv.invokeOne(ctx, calls[0])
		return results
	}

	maxPar := inv.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	sem := make(chan struct{}, maxPar)
	var wg sync.WaitGroup

	batchStart := time.Now()
	for i := range calls {
		if duplicate[i] {
			results[i] = inv.record(calls[i], core.ToolResult{
				ToolCallID: calls[i].ID,
				Err:        fmt.Sprintf("duplicate tool_call_id %q in turn", calls[i].ID),
			}, 0)
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.ToolCallRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			// Each goroutine owns its slot, preserving request order.
			results[idx] = inv.invokeOne(ctx, call)
		}(i, calls[i])
	}
	wg.Wait()

	inv.logger.Debug(
		"agent.tools.batch.complete",
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

// invokeOne executes a single call and records its outcome.
func (inv *toolInvoker) invokeOne(ctx context.Context, call core.ToolCallRequest) core.ToolResult {
	start := time.Now()
	result := inv.execute(ctx, call)
	return inv.record(call, result, time.Since(start))
}

// record logs the outcome and notifies the observer side channel.
func (inv *toolInvoker) record(call core.ToolCallRequest, result core.ToolResult, dur time.Duration) core.ToolResult {
	inv.logger.Info(
		"agent.tool.executed",
		"tool", call.Name,
		"tool_call_id", call.ID,
		"duration_ms", dur.Milliseconds(),
		"error", !result.Succeeded,
	)
	if inv.observe != nil {
		inv.observe(ToolObservation{
			Tool:       call.Name,
			ToolCallID: call.ID,
			Arguments:  call.Arguments,
			Result:     result,
			Duration:   dur,
		})
	}
	return result
}

// execute performs lookup, argument parsing, schema validation and the call
// itself, converting every failure mode into a failed ToolResult.
func (inv *toolInvoker) execute(ctx context.Context, call core.ToolCallRequest) (res core.ToolResult) {
	res = core.ToolResult{ToolCallID: call.ID}

	impl, err := inv.registry.Lookup(call.Name)
	if err != nil {
		res.Err = err.Error()
		return
	}

	args, err := parseArguments(call.Arguments)
	if err != nil {
		res.Err = err.Error()
		return
	}

	if err := schema.Validate(args, impl.Parameters()); err != nil {
		res.Err = err.Error()
		return
	}

	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error("agent.tool.panic", "tool", call.Name, "recover", r)
			res = core.ToolResult{
				ToolCallID: call.ID,
				Err:        tool.NewToolError(call.Name, fmt.Sprintf("panic: %v", r), tool.CodePanic).Error(),
			}
		}
	}()

	out, err := impl.Call(ctx, args)
	if err != nil {
		res.Err = err.Error()
		return
	}

	content, err := serializeResult(out)
	if err != nil {
		res.Err = err.Error()
		return
	}

	res.Content = content
	res.Succeeded = true
	return
}

// parseArguments decodes the model's raw argument text. An empty payload is
// an empty object.
func parseArguments(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// serializeResult converts a successful tool output into transcript text.
func serializeResult(out any) (string, error) {
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to serialize tool result: %w", err)
		}
		return string(b), nil
	}
}
