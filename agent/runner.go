// Package agent drives tool-augmented conversations: the model is told which
// tools exist, replies with a JSON tool_calls object, the tools run, their
// results are appended to the transcript, and the loop repeats until the model
// answers in plain text or the iteration cap is reached.
package agent

import (
	"context"
	"errors"
	"fmt"

	ctxpkg "github.com/aschepis/backscratcher/bridge/context"
	"github.com/aschepis/backscratcher/bridge/llm"
	"github.com/aschepis/backscratcher/bridge/tools"
	"github.com/rs/zerolog"
)

// DefaultMaxIterations bounds the tool loop when max_tool_iterations is unset.
const DefaultMaxIterations = 5

// ErrToolIterationLimit marks a run that used every iteration without the
// model producing a final answer. It is reported in RunResult.Err.
var ErrToolIterationLimit = errors.New("tool_iteration_limit_reached")

// Chatter sends one chat turn. The Manager binds it to a resolved provider.
type Chatter func(ctx context.Context, messages []llm.Message, opts llm.CallOptions) (llm.RawResponse, error)

// ToolSource is the registry view the runner needs. *tools.Registry satisfies it.
type ToolSource interface {
	Len() int
	Specs() []llm.ToolSpec
	Get(name string) (tools.Tool, bool)
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}

// State is the terminal state of a run.
type State string

const (
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// RunResult is the outcome of a tool-augmented chat. A Failed run still
// carries the calls that were executed before the cap was hit.
type RunResult struct {
	State      State                `json:"state"`
	Final      llm.RawResponse      `json:"final,omitempty"`
	Text       string               `json:"text,omitempty"`
	ToolCalls  []llm.ToolCallResult `json:"tool_calls"`
	Iterations int                  `json:"iterations"`
	Messages   []llm.Message        `json:"-"`
	Err        error                `json:"-"`
}

// Succeeded reports whether the model produced a final answer.
func (r *RunResult) Succeeded() bool {
	return r.State == StateSucceeded
}

// Runner executes the tool loop against one chat function.
type Runner struct {
	chat   Chatter
	tools  ToolSource
	logger zerolog.Logger
}

// NewRunner creates a runner. registry may be nil, which behaves like an empty one.
func NewRunner(chat Chatter, registry ToolSource, logger zerolog.Logger) *Runner {
	return &Runner{
		chat:   chat,
		tools:  registry,
		logger: logger.With().Str("component", "toolRunner").Logger(),
	}
}

// runState lives for one Run call.
type runState struct {
	messages   []llm.Message
	calls      []llm.ToolCallResult
	iterations int
	max        int
	final      llm.RawResponse
	text       string
	done       bool
}

// Run drives the loop. Only errors from the chat function are returned;
// tool failures and non-convergence are reported in the result.
func (r *Runner) Run(ctx context.Context, messages []llm.Message, opts llm.CallOptions) (*RunResult, error) {
	if r.chat == nil {
		return nil, fmt.Errorf("runner has no chat function")
	}

	if r.tools == nil || r.tools.Len() == 0 {
		raw, err := r.chat(ctx, messages, opts)
		if err != nil {
			return nil, err
		}
		return &RunResult{
			State:     StateSucceeded,
			Final:     raw,
			Text:      llm.NormalizeChat(raw).Text,
			ToolCalls: []llm.ToolCallResult{},
			Messages:  messages,
		}, nil
	}

	state := &runState{
		messages: InjectToolInstruction(messages, r.tools.Specs()),
		calls:    []llm.ToolCallResult{},
		max:      maxIterations(opts),
	}
	r.logger.Debug().Int("max_iterations", state.max).Int("tools", r.tools.Len()).Msg("Starting tool loop")

	for !state.done && state.iterations < state.max {
		if err := r.iterate(ctx, state, opts); err != nil {
			return nil, err
		}
	}

	result := &RunResult{
		ToolCalls:  state.calls,
		Iterations: state.iterations,
		Messages:   state.messages,
	}
	if !state.done {
		r.logger.Warn().Int("iterations", state.iterations).Int("tool_calls", len(state.calls)).Msg("Tool loop hit the iteration limit")
		result.State = StateFailed
		result.Err = ErrToolIterationLimit
		return result, nil
	}
	result.State = StateSucceeded
	result.Final = state.final
	result.Text = state.text
	return result, nil
}

func (r *Runner) iterate(ctx context.Context, state *runState, opts llm.CallOptions) error {
	state.iterations++
	raw, err := r.chat(ctx, state.messages, opts)
	if err != nil {
		return err
	}

	text, ok := llm.ExtractAssistantText(raw)
	if !ok {
		r.finish(state, raw, "")
		return nil
	}
	calls := ParseToolCalls(text)
	if len(calls) == 0 {
		calls = llm.NormalizeChat(raw).ToolCalls
	}
	if len(calls) == 0 {
		r.finish(state, raw, text)
		return nil
	}

	r.logger.Debug().Int("iteration", state.iterations).Int("calls", len(calls)).Msg("Model requested tools")
	ctxpkg.Progress(ctx, "iteration %d: %d tool call(s)", state.iterations, len(calls))
	for _, call := range calls {
		executed, ok := r.execute(ctx, call)
		if !ok {
			continue
		}
		state.calls = append(state.calls, executed)
		state.messages = append(state.messages, llm.NewToolMessage(executed.Name, executed.Result))
	}
	state.messages = append(state.messages, llm.NewTextMessage(llm.RoleUser, ContinueNudge))
	return nil
}

func (r *Runner) finish(state *runState, raw llm.RawResponse, text string) {
	state.final = raw
	state.text = text
	state.done = true
}

// execute runs one call. Unknown tools report false and are dropped.
// Errors and panics become the textual result.
func (r *Runner) execute(ctx context.Context, call llm.ToolCall) (result llm.ToolCallResult, ok bool) {
	if call.Name == "" {
		return llm.ToolCallResult{}, false
	}
	if _, found := r.tools.Get(call.Name); !found {
		r.logger.Warn().Str("tool", call.Name).Msg("Dropping call to unregistered tool")
		return llm.ToolCallResult{}, false
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	result = llm.ToolCallResult{Name: call.Name, Arguments: args}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Str("tool", call.Name).Interface("panic", p).Msg("Tool panicked")
			result.Result = toolErrorText(fmt.Errorf("%v", p))
			ok = true
		}
	}()

	ctxpkg.Progress(ctx, "tool %s", call.Name)
	out, err := r.tools.Execute(ctx, call.Name, args)
	if err != nil {
		ctxpkg.Progress(ctx, "tool %s failed: %v", call.Name, err)
		out = toolErrorText(err)
	}
	result.Result = out
	return result, true
}

func toolErrorText(err error) string {
	return "Tool execution error: " + err.Error()
}

func maxIterations(opts llm.CallOptions) int {
	if v, ok := opts.Int(llm.OptMaxToolIterations); ok && v > 0 {
		return v
	}
	return DefaultMaxIterations
}
