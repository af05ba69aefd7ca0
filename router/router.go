// Package router is the entry point of a routed request. It resolves the
// addressed agent, lets the pre-analysis rewrite the message, dispatches the
// agent's turn and drives the bounded post-analysis loop before the result
// goes back to the caller.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/teammesh/contextset"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/evaluation"
	"github.com/hupe1980/teammesh/flow"
	"github.com/hupe1980/teammesh/logging"
	"github.com/hupe1980/teammesh/prompt"
)

// DefaultMaxIterations caps the post-analysis loop.
const DefaultMaxIterations = 5

// Dispatcher runs one agent turn. *a2a.Channel satisfies it.
type Dispatcher interface {
	Dispatch(runCtx *core.RunContext, agent *core.Agent, message string, history []core.ServerMessage, state *core.ConversationState) (*flow.TurnResult, error)
}

// Rewriter prepares an inbound message. *evaluation.PreAnalyzer satisfies it.
type Rewriter interface {
	Rewrite(ctx context.Context, agent *core.Agent, message string, history []core.ServerMessage) (string, error)
}

// Request is one routed user message.
type Request struct {
	Message     string
	History     []core.ServerMessage
	Team        *core.Team
	Session     *core.SessionState
	ContextSets []core.ContextContainer
	// RunID identifies the run for Cancel. Generated when empty.
	RunID string
}

// Options configure a Router.
type Options struct {
	Pre Rewriter
	// Post reviews responses. Nil skips the analysis loop.
	Post          evaluation.Evaluator
	MaxIterations int
	MaxDepth      int
	Services      core.Services
	Logger        logging.Logger
	Tracer        trace.Tracer
}

// Router routes addressed messages. Safe for concurrent use.
type Router struct {
	dispatcher Dispatcher
	opts       Options

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

// New creates a Router on top of d.
func New(d Dispatcher, optFns ...func(o *Options)) *Router {
	opts := Options{
		MaxIterations: DefaultMaxIterations,
		MaxDepth:      core.DefaultMaxDepth,
		Logger:        logging.NoOpLogger{},
		Tracer:        otel.Tracer("github.com/hupe1980/teammesh/router"),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}

	return &Router{
		dispatcher: d,
		opts:       opts,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// Route handles req. It returns nil, nil when the message is not addressed to
// an agent and a response carrying ValidationError when the body is too short.
// Configuration errors such as an unknown agent are returned as errors.
func (r *Router) Route(ctx context.Context, req Request) (*core.AgentUserResponse, error) {
	addr, err := ParseAddress(req.Message)
	if addr == nil {
		return nil, nil
	}
	if errors.Is(err, ErrBodyTooShort) {
		r.opts.Logger.Info("router.validation.failed", "agent", addr.Agent, "error", err)
		return &core.AgentUserResponse{
			AgentName:       addr.Agent,
			ValidationError: fmt.Sprintf("message for %s must be at least %d characters", addr.Agent, MinBodyChars),
		}, nil
	}

	if req.Team == nil {
		return nil, fmt.Errorf("%w: no team", core.ErrInvalidTeam)
	}
	if err := req.Team.Validate(); err != nil {
		return nil, err
	}

	agent, ok := req.Team.FindAgent(addr.Agent)
	if !ok {
		return nil, core.UnknownAgentError(addr.Agent)
	}

	runID := req.RunID
	if runID == "" {
		runID = core.NewID()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.activeRuns[runID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.activeRuns, runID)
		r.mu.Unlock()
	}()

	ctx, span := r.opts.Tracer.Start(ctx, "router.route", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("team", req.Team.Name),
		attribute.String("agent", agent.Name),
	))
	defer span.End()

	resp, err := r.route(ctx, runID, agent, addr.Body, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("flag", string(resp.Flag)))

	return resp, nil
}

func (r *Router) route(ctx context.Context, runID string, agent *core.Agent, body string, req Request) (*core.AgentUserResponse, error) {
	root := core.NewRunContext(ctx, req.Team, req.Session, func(o *core.RunOptions) {
		o.RunID = runID
		o.ContextSets = req.ContextSets
		o.MaxDepth = r.opts.MaxDepth
		o.Services = r.opts.Services
		o.Logger = r.opts.Logger
	})

	root.LogInfo("router.route.start", "run_id", runID, "team", req.Team.Name, "agent", agent.Name)

	message := body
	if r.opts.Pre != nil {
		rewritten, err := r.opts.Pre.Rewrite(ctx, agent, body, req.History)
		switch {
		case err == nil:
			if rewritten != body {
				root.LogDebug("router.message.rewritten", "agent", agent.Name)
			}
			message = rewritten
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			root.LogWarn("router.pre_analysis.failed", "agent", agent.Name, "error", err)
		}
	}

	root.ChatLog.Append(core.RoleUser, agent.Name, message)

	res, err := r.dispatcher.Dispatch(root, agent, message, req.History, root.Conversation)
	if err != nil {
		return nil, err
	}

	resp := &core.AgentUserResponse{
		AgentName: agent.Name,
		Response:  res.Text,
		History:   res.History,
		Flag:      core.FlagAnalysis,
	}

	switch {
	case root.Conversation.AuthURL() != "":
		authorize(resp, root.Conversation.AuthURL())
	case agent.Training || r.opts.Post == nil:
		if sig, ok := prompt.DetectSignal(res.Text); ok {
			resp.Flag, resp.Reason = sig.Flag, sig.Reason
		} else {
			resp.Flag = core.FlagComplete
		}
	default:
		if err := r.analyze(root, agent, message, resp); err != nil {
			return nil, err
		}
	}

	resp.ContextSets = root.Board.Snapshot()
	resp.ChatLog = root.ChatLog.Entries()

	root.LogInfo("router.route.complete",
		"run_id", runID,
		"agent", agent.Name,
		"flag", string(resp.Flag),
		"chars", len(resp.Response),
	)

	return resp, nil
}

// analyze drives the post-analysis state machine on resp. Each pass may
// share discovered context, replace the response text or send the agent a
// follow-up. A loop that does not reach a terminal flag within MaxIterations
// passes ends in FAIL.
func (r *Router) analyze(root *core.RunContext, agent *core.Agent, message string, resp *core.AgentUserResponse) error {
	task := message

	for i := 0; ; i++ {
		if i >= r.opts.MaxIterations {
			root.LogWarn("router.analysis.forced_fail", "agent", agent.Name, "iterations", i)
			resp.Flag = core.FlagFail
			if resp.Reason == "" {
				resp.Reason = fmt.Sprintf("analysis did not converge after %d passes", i)
			}
			return nil
		}

		result, err := r.opts.Post.Evaluate(root.Context, evaluation.Invocation{
			Agent:       agent,
			Message:     task,
			Response:    resp.Response,
			History:     resp.History,
			ContextSets: root.Board.Snapshot(),
			Iteration:   i,
		})
		if err != nil {
			return fmt.Errorf("post-analysis: %w", err)
		}

		root.LogDebug("router.analysis.iteration", "agent", agent.Name, "iteration", i, "flag", string(result.Flag))

		if result.Context != nil {
			r.share(root, agent, result.Context)
		}
		if result.Message != "" {
			resp.Response = result.Message
		}
		resp.Flag, resp.Reason = result.Flag, result.Reason

		if resp.Flag.Terminal() {
			return nil
		}

		if strings.TrimSpace(result.FollowUp) == "" {
			continue
		}

		root.ChatLog.Append(core.RoleSystem, agent.Name, "follow-up: "+result.FollowUp)

		res, err := r.dispatcher.Dispatch(root, agent, result.FollowUp, resp.History, root.Conversation)
		if err != nil {
			return err
		}
		resp.Response = res.Text
		resp.History = res.History

		if url := root.Conversation.AuthURL(); url != "" {
			authorize(resp, url)
			return nil
		}
	}
}

// share upserts discovered context, visible to the whole team.
func (r *Router) share(root *core.RunContext, agent *core.Agent, d *evaluation.Discovery) {
	all := root.AllAgentNames()
	root.Board.Update(func(sets []core.ContextContainer) ([]core.ContextContainer, bool) {
		return contextset.Add(sets, agent.Name, all, d.Title, d.Text, all...), true
	})
	root.LogInfo("router.context.shared", "agent", agent.Name, "set", d.Title)
}

func authorize(resp *core.AgentUserResponse, url string) {
	resp.Flag = core.FlagAuthURL
	resp.AuthURL = url
	resp.Reason = "authorization required"
}

// Cancel aborts an in-flight run.
func (r *Router) Cancel(runID string) error {
	r.mu.Lock()
	cancel, ok := r.activeRuns[runID]
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}

	cancel()

	return nil
}

// ActiveRuns returns the number of in-flight runs.
func (r *Router) ActiveRuns() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.activeRuns)
}
