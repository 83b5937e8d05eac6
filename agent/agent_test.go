package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberSchema(fields ...string) map[string]any {
	props := map[string]any{}
	for _, f := range fields {
		props[f] = map[string]any{"type": "number"}
	}
	return map[string]any{"type": "object", "properties": props, "required": fields}
}

func multiplyTool(calls *atomic.Int32) tool.Tool {
	return tool.NewFunctionTool("multiply", "Multiply two numbers", numberSchema("a", "b"),
		func(_ context.Context, args map[string]any) (any, error) {
			if calls != nil {
				calls.Add(1)
			}
			return args["a"].(float64) * args["b"].(float64), nil
		})
}

func addTool(calls *atomic.Int32) tool.Tool {
	return tool.NewFunctionTool("add", "Add two numbers", numberSchema("a", "b"),
		func(_ context.Context, args map[string]any) (any, error) {
			if calls != nil {
				calls.Add(1)
			}
			return args["a"].(float64) + args["b"].(float64), nil
		})
}

func TestChatMultiplyThenAdd(t *testing.T) {
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCallRequest{
			{ID: "call-1", Name: "multiply", Arguments: `{"a":121,"b":3}`},
		}},
		model.Turn{ToolCalls: []core.ToolCallRequest{
			{ID: "call-2", Name: "add", Arguments: `{"a":363,"b":42}`},
		}},
		model.Turn{Text: "The answer is 405."},
	)

	a, err := FromTools([]tool.Tool{multiplyTool(nil), addTool(nil)}, m)
	require.NoError(t, err)

	answer, err := a.Chat(context.Background(), "What is (121*3)+42?")
	require.NoError(t, err)
	assert.Contains(t, answer, "405")

	history := a.History()
	require.Len(t, history, 6) // user, assistant+call, tool, assistant+call, tool, assistant
	assert.Equal(t, core.RoleUser, history[0].Role)
	assert.Equal(t, core.RoleAssistant, history[1].Role)
	assert.Equal(t, core.RoleTool, history[2].Role)
	assert.Equal(t, "call-1", history[2].ToolCallID)
	assert.Equal(t, "363", history[2].Content)
	assert.Equal(t, "call-2", history[4].ToolCallID)
	assert.Equal(t, "405", history[4].Content)
	assert.Equal(t, core.RoleAssistant, history[5].Role)

	// Every turn saw the tool schemas.
	for _, req := range m.Requests() {
		assert.Len(t, req.Tools, 2)
	}
}

func TestChatWithoutToolUse(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Text: "Just an answer."})

	a, err := FromTools([]tool.Tool{multiplyTool(nil)}, m)
	require.NoError(t, err)

	answer, err := a.Chat(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "Just an answer.", answer)

	// Single decide, no tool messages at all.
	assert.Equal(t, 1, m.CallCount())
	for _, msg := range a.History() {
		assert.NotEqual(t, core.RoleTool, msg.Role)
	}
}

func TestResultOrderMatchesRequestOrder(t *testing.T) {
	delays := map[string]time.Duration{"slow": 60 * time.Millisecond, "mid": 20 * time.Millisecond, "fast": 0}
	var completion []string
	done := make(chan string, 3)

	mkTool := func(name string) tool.Tool {
		return tool.NewFunctionTool(name, name, map[string]any{"type": "object"},
			func(_ context.Context, _ map[string]any) (any, error) {
				time.Sleep(delays[name])
				done <- name
				return name + " done", nil
			})
	}

	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCallRequest{
			{ID: "c1", Name: "slow"},
			{ID: "c2", Name: "mid"},
			{ID: "c3", Name: "fast"},
		}},
		model.Turn{Text: "done"},
	)

	a, err := FromTools([]tool.Tool{mkTool("slow"), mkTool("mid"), mkTool("fast")}, m)
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "go")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		completion = append(completion, <-done)
	}
	// Completion order is by delay, not request order.
	assert.Equal(t, []string{"fast", "mid", "slow"}, completion)

	history := a.History()
	require.Len(t, history, 6) // user, assistant, 3 tools, assistant
	assert.Equal(t, "c1", history[2].ToolCallID)
	assert.Equal(t, "c2", history[3].ToolCallID)
	assert.Equal(t, "c3", history[4].ToolCallID)

	// Every result references a request of the immediately preceding
	// assistant message.
	pending := map[string]bool{}
	for _, call := range history[1].ToolCalls {
		pending[call.ID] = true
	}
	for _, msg := range history[2:5] {
		assert.True(t, pending[msg.ToolCallID])
	}
}

func TestSequentialDispatch(t *testing.T) {
	var order []string
	mkTool := func(name string, delay time.Duration) tool.Tool {
		return tool.NewFunctionTool(name, name, map[string]any{"type": "object"},
			func(_ context.Context, _ map[string]any) (any, error) {
				time.Sleep(delay)
				order = append(order, name) // safe: sequential dispatch
				return name, nil
			})
	}

	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCallRequest{
			{ID: "c1", Name: "first"},
			{ID: "c2", Name: "second"},
		}},
		model.Turn{Text: "done"},
	)

	a, err := FromTools([]tool.Tool{mkTool("first", 30*time.Millisecond), mkTool("second", 0)}, m,
		func(o *Options) { o.MaxParallelTools = 1 })
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestIterationLimitExceeded(t *testing.T) {
	var turns []model.Turn
	for i := 0; i < 6; i++ {
		turns = append(turns, model.Turn{ToolCalls: []core.ToolCallRequest{
			{ID: core.NewID(), Name: "multiply", Arguments: `{"a":1,"b":1}`},
		}})
	}

	var toolCalls atomic.Int32
	m := model.NewScriptedModel(turns...)
	a, err := FromTools([]tool.Tool{multiplyTool(&toolCalls)}, m,
		func(o *Options) { o.MaxIterations = 5 })
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "loop forever")
	var limitErr *MaxIterationsError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 5, limitErr.Limit)

	// Five execute phases ran; the sixth decide aborted instead.
	assert.Equal(t, 6, m.CallCount())
	assert.Equal(t, int32(5), toolCalls.Load())
}

func TestValidationFailureSkipsToolAndContinues(t *testing.T) {
	var toolCalls atomic.Int32
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCallRequest{
			{ID: "c1", Name: "multiply", Arguments: `{"a":121}`}, // missing b
		}},
		model.Turn{Text: "I sent bad arguments, let me retry without tools."},
	)

	a, err := FromTools([]tool.Tool{multiplyTool(&toolCalls)}, m)
	require.NoError(t, err)

	answer, err := a.Chat(context.Background(), "multiply")
	require.NoError(t, err)
	assert.NotEmpty(t, answer)
	assert.Equal(t, int32(0), toolCalls.Load(), "callable must not run")

	history := a.History()
	require.Len(t, history, 4)
	require.NotNil(t, history[2].Result)
	assert.False(t, history[2].Result.Succeeded)
	assert.Contains(t, history[2].Result.Err, "required field is missing")

	// The validation report went back to the model on the second turn.
	second := m.Requests()[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Contains(t, last.Content, "error:")
}

func TestUnknownToolProducesFailedResult(t *testing.T) {
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCallRequest{{ID: "c1", Name: "divide", Arguments: `{}`}}},
		model.Turn{Text: "No such tool, answering directly."},
	)

	a, err := FromTools([]tool.Tool{multiplyTool(nil)}, m)
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "divide")
	require.NoError(t, err)

	history := a.History()
	require.NotNil(t, history[2].Result)
	assert.False(t, history[2].Result.Succeeded)
	assert.Contains(t, history[2].Result.Err, "tool not found")
}

func TestMalformedArgumentsProduceFailedResult(t *testing.T) {
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCallRequest{{ID: "c1", Name: "multiply", Arguments: `{"a":`}}},
		model.Turn{Text: "ok"},
	)

	a, err := FromTools([]tool.Tool{multiplyTool(nil)}, m)
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "go")
	require.NoError(t, err)

	result := a.History()[2].Result
	require.NotNil(t, result)
	assert.False(t, result.Succeeded)
	assert.Contains(t, result.Err, "unmarshal")
}

func TestPanickingToolIsContained(t *testing.T) {
	panicky := tool.NewFunctionTool("panic", "always panics", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (any, error) { panic("boom") })

	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCallRequest{{ID: "c1", Name: "panic"}}},
		model.Turn{Text: "recovered"},
	)

	a, err := FromTools([]tool.Tool{panicky}, m)
	require.NoError(t, err)

	answer, err := a.Chat(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)

	result := a.History()[2].Result
	require.NotNil(t, result)
	assert.Contains(t, result.Err, "panic")
}

func TestDuplicateCallIDIsValidationFault(t *testing.T) {
	var toolCalls atomic.Int32
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCallRequest{
			{ID: "same", Name: "multiply", Arguments: `{"a":2,"b":3}`},
			{ID: "same", Name: "multiply", Arguments: `{"a":4,"b":5}`},
		}},
		model.Turn{Text: "done"},
	)

	a, err := FromTools([]tool.Tool{multiplyTool(&toolCalls)}, m)
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "go")
	require.NoError(t, err)

	// First occurrence executed, second rejected without dispatch.
	assert.Equal(t, int32(1), toolCalls.Load())

	history := a.History()
	require.Len(t, history, 5)
	assert.True(t, history[2].Result.Succeeded)
	assert.False(t, history[3].Result.Succeeded)
	assert.Contains(t, history[3].Result.Err, "duplicate")
}

func TestResetBehavesLikeFreshAgent(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Text: "first"}, model.Turn{Text: "second"})

	a, err := FromTools(nil, m)
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, 2, len(a.History()))

	a.Reset()
	assert.Empty(t, a.History())

	_, err = a.Chat(context.Background(), "two")
	require.NoError(t, err)

	// The post-reset request carried only the new user message.
	second := m.Requests()[1]
	require.Len(t, second.Messages, 1)
	assert.Equal(t, core.RoleUser, second.Messages[0].Role)
	assert.Equal(t, "two", second.Messages[0].Content)
}

func TestModelErrorPropagates(t *testing.T) {
	transportErr := errors.New("provider unavailable")
	m := model.NewScriptedModel(model.Turn{Err: transportErr})

	a, err := FromTools(nil, m)
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, transportErr)
}

func TestChatAsync(t *testing.T) {
	m := model.NewScriptedModel(model.Turn{Text: "async answer"})

	a, err := FromTools(nil, m)
	require.NoError(t, err)

	result := <-a.ChatAsync(context.Background(), "hello")
	require.NoError(t, result.Err)
	assert.Equal(t, "async answer", result.Text)
}

func TestObserverSideChannel(t *testing.T) {
	var observations []ToolObservation
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCallRequest{
			{ID: "c1", Name: "multiply", Arguments: `{"a":2,"b":3}`},
			{ID: "c2", Name: "missing", Arguments: `{}`},
		}},
		model.Turn{Text: "done"},
	)

	a, err := FromTools([]tool.Tool{multiplyTool(nil)}, m, func(o *Options) {
		o.Observer = func(obs ToolObservation) { observations = append(observations, obs) }
		o.MaxParallelTools = 1
	})
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "go")
	require.NoError(t, err)

	require.Len(t, observations, 2)
	assert.Equal(t, "multiply", observations[0].Tool)
	assert.Equal(t, `{"a":2,"b":3}`, observations[0].Arguments)
	assert.True(t, observations[0].Result.Succeeded)
	assert.False(t, observations[1].Result.Succeeded)
}

func TestFromToolsRejectsDuplicates(t *testing.T) {
	m := model.NewScriptedModel()
	_, err := FromTools([]tool.Tool{multiplyTool(nil), multiplyTool(nil)}, m)
	assert.ErrorIs(t, err, tool.ErrDuplicateTool)
}

func TestMissingCallIDsAreAssigned(t *testing.T) {
	m := model.NewScriptedModel(
		model.Turn{ToolCalls: []core.ToolCallRequest{{Name: "multiply", Arguments: `{"a":2,"b":3}`}}},
		model.Turn{Text: "done"},
	)

	a, err := FromTools([]tool.Tool{multiplyTool(nil)}, m)
	require.NoError(t, err)

	_, err = a.Chat(context.Background(), "go")
	require.NoError(t, err)

	history := a.History()
	assert.NotEmpty(t, history[1].ToolCalls[0].ID)
	assert.Equal(t, history[1].ToolCalls[0].ID, history[2].ToolCallID)
}
