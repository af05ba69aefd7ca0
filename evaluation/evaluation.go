// Package evaluation reviews agent exchanges around a routed request.
//
// PreAnalyzer rewrites an inbound message for retrieval before dispatch.
// Evaluators run after the agent answered and move the post-analysis state
// machine from core.FlagAnalysis towards a terminal flag.
package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/hupe1980/teammesh/core"
)

// Invocation is one agent exchange under review.
type Invocation struct {
	Agent       *core.Agent
	Message     string
	Response    string
	History     []core.ServerMessage
	ContextSets []core.ContextContainer
	// Iteration counts analysis passes, starting at 0.
	Iteration int
}

// Discovery is context the analysis found worth sharing with the team.
type Discovery struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Result is the verdict of one analysis pass.
type Result struct {
	Flag   core.NextFlag
	Reason string
	// Message replaces the agent's response when set.
	Message string
	// FollowUp is sent back to the agent while the flag is still ANALYSIS.
	FollowUp string
	Context  *Discovery
}

// Evaluator reviews an invocation.
type Evaluator interface {
	Evaluate(ctx context.Context, inv Invocation) (*Result, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, inv Invocation) (*Result, error)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(ctx context.Context, inv Invocation) (*Result, error) {
	return f(ctx, inv)
}

var errNoJSON = errors.New("no JSON object in analysis output")

// decodeObject unmarshals the outermost JSON object found in text. Models
// like to wrap JSON in prose or code fences.
func decodeObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return errNoJSON
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}
