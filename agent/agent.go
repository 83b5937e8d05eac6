package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/model"
	"github.com/hupe1980/agentloop/tool"
)

// DefaultMaxIterations caps the decide/execute cycles of one run when no
// explicit limit is configured.
const DefaultMaxIterations = 10

// Options configures an Agent. Use functional options with FromTools to
// override defaults.
type Options struct {
	// SystemPrompt is sent as the system instruction on every model turn.
	SystemPrompt string

	// MaxIterations bounds the number of execute-tools phases per run.
	MaxIterations int

	// MaxParallelTools limits concurrent tool dispatch within one execute
	// phase. 0 means no explicit limit; 1 forces sequential execution.
	MaxParallelTools int

	// Logger receives structured loop and tool telemetry. Defaults to NoOp.
	Logger logging.Logger

	// Verbose switches the default logger to a debug text logger on stderr.
	// Ignored when a Logger is supplied explicitly.
	Verbose bool

	// Observer, if set, is called for every tool call of an execute phase
	// with the tool name, raw arguments and result.
	Observer func(ToolObservation)
}

// Agent binds a language model to a registry of tools and drives the
// multi-turn decide / execute-tools conversation loop over a conversation it
// exclusively owns.
//
// An Agent is not safe for concurrent runs: callers must serialize
// Chat/ChatAsync/StreamChat invocations on one instance or use separate
// instances.
type Agent struct {
	llm      model.Model
	registry *tool.Registry
	conv     *core.Conversation
	invoker  *toolInvoker
	opts     Options
}

// FromTools constructs an Agent from a tool set and a model binding. The tool
// registry is built once here and is immutable afterwards; duplicate tool
// names fail construction.
//
// Example:
//
//	a, err := agent.FromTools([]tool.Tool{multiply, add}, llm, func(o *agent.Options) {
//	  o.SystemPrompt = "You are a terse math assistant."
//	  o.MaxIterations = 5
//	})
func FromTools(tools []tool.Tool, llm model.Model, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		MaxIterations: DefaultMaxIterations,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Verbose {
		if _, isNoOp := opts.Logger.(logging.NoOpLogger); isNoOp {
			opts.Logger = logging.NewDebugLogger(nil)
		}
	}

	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	return &Agent{
		llm:      llm,
		registry: registry,
		conv:     core.NewConversation(),
		invoker: &toolInvoker{
			registry:    registry,
			maxParallel: opts.MaxParallelTools,
			logger:      opts.Logger,
			observe:     opts.Observer,
		},
		opts: opts,
	}, nil
}

// Chat runs the full loop for one user message and blocks until the model
// produces a final answer. Tool faults are contained and fed back to the
// model; only iteration-limit and transport faults surface here.
func (a *Agent) Chat(ctx context.Context, text string) (string, error) {
	return a.run(ctx, text, nil)
}

// ChatResult is the outcome of an asynchronous run.
type ChatResult struct {
	Text string
	Err  error
}

// ChatAsync starts a run and returns a single-element channel that yields the
// final answer when the loop completes.
func (a *Agent) ChatAsync(ctx context.Context, text string) <-chan ChatResult {
	ch := make(chan ChatResult, 1)
	go func() {
		defer close(ch)
		answer, err := a.run(ctx, text, nil)
		ch <- ChatResult{Text: answer, Err: err}
	}()
	return ch
}

// StreamChat starts a run and returns a single-consumption stream of the
// terminal turn's text increments. Intermediate tool-calling turns are fully
// buffered internally and never surface. Terminal errors, including model
// transport failures and the iteration limit, are reported through
// Stream.Recv.
func (a *Agent) StreamChat(ctx context.Context, text string) *Stream {
	s := newStream()
	go func() {
		finalText, err := a.run(ctx, text, s)
		s.finish(finalText, err)
	}()
	return s
}

// Reset atomically clears the conversation. A following chat behaves
// identically to one on a freshly constructed agent.
func (a *Agent) Reset() { a.conv.Reset() }

// History returns a snapshot of the conversation transcript.
func (a *Agent) History() []core.Message { return a.conv.Messages() }

// Tools returns the registered tool names in registration order.
func (a *Agent) Tools() []string { return a.registry.Names() }

// Model returns metadata about the bound model.
func (a *Agent) Model() model.Info { return a.llm.Info() }
