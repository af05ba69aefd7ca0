package router

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Delimiter separates the addressed agent from the message body.
const Delimiter = ":::"

// MinBodyChars is the shortest body the router dispatches.
const MinBodyChars = 2

// ErrBodyTooShort reports an addressed message without a usable body.
var ErrBodyTooShort = errors.New("message body too short")

// Address is a parsed "<AgentName>:::<body>" message.
type Address struct {
	Agent string
	Body  string
}

// ParseAddress splits msg at the first Delimiter. It returns nil, nil when msg
// is not addressed and ErrBodyTooShort when the trimmed body has fewer than
// MinBodyChars characters. The agent name is not resolved here.
func ParseAddress(msg string) (*Address, error) {
	name, body, ok := strings.Cut(msg, Delimiter)
	if !ok {
		return nil, nil
	}

	addr := &Address{
		Agent: strings.TrimSpace(name),
		Body:  strings.TrimSpace(body),
	}

	if utf8.RuneCountInString(addr.Body) < MinBodyChars {
		return addr, ErrBodyTooShort
	}

	return addr, nil
}

// String formats the address in wire form.
func (a Address) String() string { return a.Agent + Delimiter + a.Body }
