package core

import "strings"

// Part represents a polymorphic segment of role-based content. Concrete part
// types implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text string
}

func (TextPart) isPart() {}

// FunctionCall describes a tool invocation requested by the model.
type FunctionCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // JSON object
}

// FunctionCallPart wraps a FunctionCall as a content part.
type FunctionCallPart struct {
	FunctionCall FunctionCall
}

func (FunctionCallPart) isPart() {}

// FunctionResponse carries a tool result back to the model. Response is
// always a string: tool failures are reported in-band so the model can recover.
type FunctionResponse struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Response string `json:"response"`
}

// FunctionResponsePart wraps a FunctionResponse as a content part.
type FunctionResponsePart struct {
	FunctionResponse FunctionResponse
}

func (FunctionResponsePart) isPart() {}

// Content holds role + ordered parts. Roles are "system", "user",
// "assistant" and "tool".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// NewTextContent builds a single text part content.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates the text parts.
func (c Content) Text() string {
	var sb strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// FunctionCalls returns the function calls in order.
func (c Content) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range c.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}
