package evaluation

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/teammesh/contextset"
	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/flow"
	"github.com/hupe1980/teammesh/internal/util"
	"github.com/hupe1980/teammesh/model"
	"github.com/hupe1980/teammesh/prompt"
)

var postTmpl = util.MustParse("post-analysis", `You review the work of {{.Agent}}{{with .Role}} ({{.}}){{end}}.
Decide whether the response below fully and truthfully handles the request.

Answer with one JSON object and nothing else:
{"flag": "...", "reason": "...", "message": "...", "follow_up": "...", "context": {"title": "...", "text": "..."}}

flag is one of:
- COMPLETE: the request is handled.
- PASS: the agent did its part; another agent or the user must continue.
- FAIL: the request cannot be handled.
- INFO_REQUEST: the user must provide more information. Put the question in message.
- ANALYSIS: the work is unfinished. Put the instruction for the agent in follow_up.
message optionally replaces the response shown to the user.
context is optional: facts worth keeping for the whole team.
This is review pass {{.Iteration}}.
{{- with .Signal}}
The agent signalled {{.}}.
{{- end}}
{{- with .Context}}

# Shared context
{{.}}
{{- end}}

# Request
{{.Message}}

# Response
{{.Response}}`)

// PostOptions configure a PostAnalyzer.
type PostOptions struct {
	MaxChars int
	Retry    flow.RetryPolicy
}

// PostAnalyzer asks a model to grade an agent response. When the model's
// answer cannot be parsed, the agent's own completion signal decides.
type PostAnalyzer struct {
	model    model.Model
	fallback SignalEvaluator
	opts     PostOptions
}

// NewPostAnalyzer creates a PostAnalyzer backed by m.
func NewPostAnalyzer(m model.Model, optFns ...func(o *PostOptions)) *PostAnalyzer {
	opts := PostOptions{
		MaxChars: 6000,
		Retry:    flow.DefaultRetryPolicy(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &PostAnalyzer{model: m, opts: opts}
}

type verdict struct {
	Flag     string     `json:"flag"`
	Reason   string     `json:"reason"`
	Message  string     `json:"message"`
	FollowUp string     `json:"follow_up"`
	Context  *Discovery `json:"context"`
}

// Evaluate implements Evaluator.
func (p *PostAnalyzer) Evaluate(ctx context.Context, inv Invocation) (*Result, error) {
	var signal string
	if sig, ok := prompt.DetectSignal(inv.Response); ok {
		signal = string(sig.Flag)
	}

	if inv.Agent == nil {
		return nil, fmt.Errorf("post-analysis: invocation has no agent")
	}

	visible := contextset.VisibleTo(inv.ContextSets, inv.Agent.Name)

	var buf bytes.Buffer
	if err := postTmpl.Execute(&buf, map[string]any{
		"Agent":     inv.Agent.Name,
		"Role":      inv.Agent.RoleDescription,
		"Iteration": inv.Iteration + 1,
		"Signal":    signal,
		"Context":   util.Truncate(contextset.Render(visible), p.opts.MaxChars),
		"Message":   inv.Message,
		"Response":  util.Truncate(inv.Response, p.opts.MaxChars),
	}); err != nil {
		return nil, fmt.Errorf("render post-analysis prompt: %w", err)
	}

	resp, err := p.opts.Retry.Do(ctx, func() (*model.Response, error) {
		return p.model.Generate(ctx, model.Request{
			Contents: []core.Content{core.NewTextContent("user", buf.String())},
		})
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("post-analysis: %w", err)
	}

	var v verdict
	if err := decodeObject(resp.Content.Text(), &v); err != nil || strings.TrimSpace(v.Flag) == "" {
		return p.fallback.Evaluate(ctx, inv)
	}

	res := &Result{
		Flag:     core.ParseNextFlag(v.Flag),
		Reason:   strings.TrimSpace(v.Reason),
		Message:  strings.TrimSpace(v.Message),
		FollowUp: strings.TrimSpace(v.FollowUp),
	}
	if v.Context != nil && strings.TrimSpace(v.Context.Title) != "" && strings.TrimSpace(v.Context.Text) != "" {
		res.Context = v.Context
	}

	return res, nil
}

// DefaultFollowUp nudges an agent that ended without a completion token.
const DefaultFollowUp = "Finish the request. End your reply with COMPLETE, PASS:(reason) or FAIL:(reason)."

// SignalEvaluator grades a response by its completion token alone. It needs
// no model.
type SignalEvaluator struct {
	// FollowUp is sent when no token was found. Empty uses DefaultFollowUp.
	FollowUp string
}

// Evaluate implements Evaluator.
func (s SignalEvaluator) Evaluate(_ context.Context, inv Invocation) (*Result, error) {
	sig, ok := prompt.DetectSignal(inv.Response)
	if !ok {
		followUp := s.FollowUp
		if followUp == "" {
			followUp = DefaultFollowUp
		}
		return &Result{Flag: core.FlagAnalysis, FollowUp: followUp}, nil
	}

	return &Result{
		Flag:    sig.Flag,
		Reason:  sig.Reason,
		Message: prompt.StripSignals(inv.Response),
	}, nil
}
