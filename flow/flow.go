// Package flow runs a single agent turn: it assembles the model request,
// drives the bounded tool-calling loop and retries provider overload with
// exponential backoff.
//
// The request is built by an ordered chain of RequestProcessors (system
// instructions, conversation contents, tool declarations). Tool calls are
// executed sequentially in the order the model requested them; tool failures
// are handed back to the model as text while configuration errors abort the
// turn.
package flow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/tool"
)

const (
	// DefaultMaxSteps bounds the model calls of one turn.
	DefaultMaxSteps = 6
	// DefaultMaxPromptChars is the system prompt ceiling. Longer prompts are cut.
	DefaultMaxPromptChars = 12000
)

// TurnInput is everything a turn needs besides the RunContext.
type TurnInput struct {
	Message      string
	History      []core.ServerMessage
	Tools        *tool.Set
	SystemPrompt string
	Model        model.Model
}

// TurnResult is the outcome of a turn.
type TurnResult struct {
	Text string
	// History is the input history plus the user message and the reply.
	History    []core.ServerMessage
	PromptUsed string
	Steps      int
	ToolCalls  int
	Usage      model.TokenUsage
}

// RequestProcessor contributes to the model request before the first step.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the request.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, in *TurnInput) error
}

// Options configure an Executor.
type Options struct {
	MaxSteps       int
	MaxPromptChars int
	Retry          RetryPolicy
	Tracer         trace.Tracer
}

// Executor runs agent turns. It is stateless and safe for concurrent use.
type Executor struct {
	opts       Options
	processors []RequestProcessor
}

// New creates an Executor with the default processor chain.
func New(optFns ...func(o *Options)) *Executor {
	opts := Options{
		MaxSteps:       DefaultMaxSteps,
		MaxPromptChars: DefaultMaxPromptChars,
		Retry:          DefaultRetryPolicy(),
		Tracer:         otel.Tracer("github.com/hupe1980/teammesh/flow"),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Executor{
		opts: opts,
		processors: []RequestProcessor{
			NewInstructionsProcessor(opts.MaxPromptChars),
			NewContentsProcessor(),
			NewToolsProcessor(),
		},
	}
}

// AddRequestProcessor appends a processor; registration order is execution order.
func (e *Executor) AddRequestProcessor(p RequestProcessor) {
	e.processors = append(e.processors, p)
}

// MaxSteps returns the per-turn step budget.
func (e *Executor) MaxSteps() int { return e.opts.MaxSteps }

// RunTurn executes one turn of runCtx.Agent.
func (e *Executor) RunTurn(runCtx *core.RunContext, in TurnInput) (*TurnResult, error) {
	if runCtx.Agent == nil {
		return nil, errors.New("flow: run context has no agent")
	}
	if in.Model == nil {
		return nil, fmt.Errorf("flow: no model for agent %q", runCtx.Agent.Name)
	}

	ctx, span := e.opts.Tracer.Start(runCtx.Context, "flow.turn", trace.WithAttributes(
		attribute.String("agent", runCtx.Agent.Name),
		attribute.String("model", in.Model.Info().Name),
		attribute.Int("level", runCtx.Conversation.Level()),
	))
	defer span.End()

	runCtx = runCtx.WithContext(ctx)
	message := in.Message

	req := new(model.Request)
	for _, p := range e.processors {
		if err := p.ProcessRequest(runCtx, req, &in); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("request processor %s failed: %w", p.Name(), err)
		}
	}

	result := &TurnResult{PromptUsed: in.SystemPrompt}

	limiter := runCtx.Limiter
	if limiter == nil || limiter.Remaining() < 0 {
		limiter = core.NewStepLimiter(e.opts.MaxSteps)
	}

	var texts []string

	for {
		if err := limiter.Increment(); err != nil {
			runCtx.LogWarn("turn.steps.exhausted", "agent", runCtx.Agent.Name, "steps", result.Steps)
			break
		}
		result.Steps++

		runCtx.LogDebug("turn.step.start", "agent", runCtx.Agent.Name, "step", result.Steps)

		resp, err := e.generate(runCtx, in.Model, *req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		if resp.Usage != nil {
			result.Usage.PromptTokens += resp.Usage.PromptTokens
			result.Usage.CompletionTokens += resp.Usage.CompletionTokens
			result.Usage.TotalTokens += resp.Usage.TotalTokens
		}

		if text := strings.TrimSpace(resp.Content.Text()); text != "" {
			texts = append(texts, text)
		}

		calls := resp.Content.FunctionCalls()
		if len(calls) == 0 {
			break
		}

		resp.Content.Role = "assistant"
		req.Contents = append(req.Contents, resp.Content)

		responses, err := executeCalls(runCtx, in.Tools, calls)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		result.ToolCalls += len(calls)

		parts := make([]core.Part, len(responses))
		for i, r := range responses {
			parts[i] = core.FunctionResponsePart{FunctionResponse: r}
		}
		req.Contents = append(req.Contents, core.Content{Role: "tool", Parts: parts})
	}

	if len(texts) > 0 {
		result.Text = texts[len(texts)-1]
	}

	level := runCtx.Conversation.Level()
	result.History = append(append([]core.ServerMessage(nil), in.History...),
		core.ServerMessage{Role: core.RoleUser, Content: message, ConversationLevel: level},
		core.ServerMessage{Role: core.RoleAssistant, Content: result.Text, AgentName: runCtx.Agent.Name, ConversationLevel: level},
	)

	span.SetAttributes(attribute.Int("steps", result.Steps), attribute.Int("tool_calls", result.ToolCalls))

	runCtx.LogInfo("turn.complete",
		"agent", runCtx.Agent.Name,
		"steps", result.Steps,
		"tool_calls", result.ToolCalls,
		"chars", len(result.Text),
	)

	return result, nil
}

// generate wraps one model call in the overload retry and a span.
func (e *Executor) generate(runCtx *core.RunContext, m model.Model, req model.Request) (*model.Response, error) {
	ctx, span := e.opts.Tracer.Start(runCtx.Context, "flow.model.generate", trace.WithAttributes(
		attribute.String("provider", m.Info().Provider),
	))
	defer span.End()

	resp, err := e.opts.Retry.Do(ctx, func() (*model.Response, error) {
		return m.Generate(ctx, req)
	}, func(err error, wait time.Duration) {
		runCtx.LogWarn("turn.model.overloaded", "agent", runCtx.AgentName(), "retry_in_ms", wait.Milliseconds(), "error", err)
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("model %s/%s: %w", m.Info().Provider, m.Info().Name, err)
	}

	return resp, nil
}
