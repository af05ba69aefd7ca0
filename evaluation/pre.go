package evaluation

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/flow"
	"github.com/hupe1980/teammesh/internal/util"
	"github.com/hupe1980/teammesh/model"
)

// KeepOriginal is the answer with which the pre-analysis leaves a message as is.
const KeepOriginal = "original"

var preTmpl = util.MustParse("pre-analysis", `You prepare requests for {{.Agent}}{{with .Role}} ({{.}}){{end}}.
Rewrite the request below so that it is self-contained and retrieves well from
memory and search: resolve pronouns from the recent conversation, name the
entities involved and keep every constraint the user gave.
If the request is already clear, answer with the single word {{.Keep}}.
Answer with the rewritten request only.
{{- with .History}}

# Recent conversation
{{range .}}{{.Role}}{{with .AgentName}} ({{.}}){{end}}: {{.Content}}
{{end}}
{{- end}}

# Request
{{.Message}}`)

// PreOptions configure a PreAnalyzer.
type PreOptions struct {
	// HistoryWindow is the number of recent messages shown to the model.
	HistoryWindow int
	// MaxChars bounds each history message in the prompt.
	MaxChars int
	Retry    flow.RetryPolicy
}

// PreAnalyzer rewrites inbound messages with a single model call.
type PreAnalyzer struct {
	model model.Model
	opts  PreOptions
}

// NewPreAnalyzer creates a PreAnalyzer backed by m.
func NewPreAnalyzer(m model.Model, optFns ...func(o *PreOptions)) *PreAnalyzer {
	opts := PreOptions{
		HistoryWindow: 6,
		MaxChars:      500,
		Retry:         flow.DefaultRetryPolicy(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &PreAnalyzer{model: m, opts: opts}
}

// Rewrite returns the message to dispatch to agent. The input comes back
// unchanged when the model answers KeepOriginal or nothing at all.
func (p *PreAnalyzer) Rewrite(ctx context.Context, agent *core.Agent, message string, history []core.ServerMessage) (string, error) {
	if strings.TrimSpace(message) == "" {
		return message, nil
	}

	if len(history) > p.opts.HistoryWindow {
		history = history[len(history)-p.opts.HistoryWindow:]
	}
	shown := make([]core.ServerMessage, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		m.Content = util.Truncate(strings.Join(strings.Fields(m.Content), " "), p.opts.MaxChars)
		shown = append(shown, m)
	}

	var buf bytes.Buffer
	if err := preTmpl.Execute(&buf, map[string]any{
		"Agent":   agent.Name,
		"Role":    agent.RoleDescription,
		"Keep":    KeepOriginal,
		"History": shown,
		"Message": message,
	}); err != nil {
		return message, fmt.Errorf("render pre-analysis prompt: %w", err)
	}

	resp, err := p.opts.Retry.Do(ctx, func() (*model.Response, error) {
		return p.model.Generate(ctx, model.Request{
			Contents: []core.Content{core.NewTextContent("user", buf.String())},
		})
	}, nil)
	if err != nil {
		return message, fmt.Errorf("pre-analysis: %w", err)
	}

	out := strings.TrimSpace(resp.Content.Text())
	out = strings.Trim(out, "\"'`")
	if out == "" || strings.EqualFold(out, KeepOriginal) {
		return message, nil
	}

	return out, nil
}
