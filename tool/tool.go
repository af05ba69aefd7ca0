// Package tool defines the tool abstraction agents call during a turn, the
// built-in tool catalogue and the Loader that assembles an agent's toolset
// from its type, its declared tool ids and its custom tool references.
package tool

import (
	"fmt"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/util"
)

// Tool is a callable capability exposed to a model via function calling.
type Tool interface {
	// Name returns the unique identifier used in function call declarations.
	Name() string

	// Description is shown to the model to decide when to call the tool.
	Description() string

	// Parameters returns the JSON schema of the accepted arguments.
	Parameters() map[string]any

	// Call executes the tool. args are decoded from the model's JSON.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Tool error codes.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeExecution     = "EXECUTION_ERROR"
	CodeAlreadyCalled = "ALREADY_CALLED"
	CodeNotConfigured = "NOT_CONFIGURED"
	CodeNotFound      = "NOT_FOUND"
	CodeNotAllowed    = "NOT_ALLOWED"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`

	// Err is the underlying cause, kept for errors.Is checks.
	Err error `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ToolError) Unwrap() error { return e.Err }

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Set is an insertion-ordered collection of tools keyed by name. The first
// tool added under a name wins; later duplicates are ignored.
//
// Tools the agent asked for in its configuration are marked declared, as
// opposed to the implicit families every agent of an archetype receives.
type Set struct {
	order    []string
	tools    map[string]Tool
	declared map[string]bool
}

// NewSet returns a set seeded with tools.
func NewSet(tools ...Tool) *Set {
	s := &Set{tools: make(map[string]Tool, len(tools)), declared: map[string]bool{}}
	for _, t := range tools {
		s.Add(t)
	}
	return s
}

// Add inserts t unless a tool with the same name is present. It reports
// whether t was added.
func (s *Set) Add(t Tool) bool {
	if t == nil {
		return false
	}
	if _, ok := s.tools[t.Name()]; ok {
		return false
	}
	s.tools[t.Name()] = t
	s.order = append(s.order, t.Name())
	return true
}

// Get returns the tool registered under name.
func (s *Set) Get(name string) (Tool, bool) {
	t, ok := s.tools[name]
	return t, ok
}

// Remove deletes the tool registered under name.
func (s *Set) Remove(name string) {
	if _, ok := s.tools[name]; !ok {
		return
	}
	delete(s.tools, name)
	delete(s.declared, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Names returns tool names in insertion order.
func (s *Set) Names() []string {
	return append([]string(nil), s.order...)
}

// Tools returns tools in insertion order.
func (s *Set) Tools() []Tool {
	out := make([]Tool, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.tools[n])
	}
	return out
}

// MarkDeclared flags the tool registered under name as declared.
func (s *Set) MarkDeclared(name string) {
	if _, ok := s.tools[name]; ok {
		s.declared[name] = true
	}
}

// Declared returns the declared tools in insertion order.
func (s *Set) Declared() []Tool {
	var out []Tool
	for _, n := range s.order {
		if s.declared[n] {
			out = append(out, s.tools[n])
		}
	}
	return out
}

// Len returns the number of tools.
func (s *Set) Len() int { return len(s.order) }
