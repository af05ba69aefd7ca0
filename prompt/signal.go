package prompt

import (
	"regexp"
	"strings"

	"github.com/hupe1980/teammesh/core"
)

// Completion tokens agents use to signal the state of their work. The
// post-response analysis depends on them.
const (
	TokenComplete = "COMPLETE"
	TokenPass     = "PASS"
	TokenFail     = "FAIL"
)

var (
	verdictRe  = regexp.MustCompile(`\b(PASS|FAIL)\s*:\s*\(?([^)\n]*)\)?`)
	completeRe = regexp.MustCompile(`\bCOMPLETE\b`)
)

// Signal is a completion token found in an agent response.
type Signal struct {
	Flag   core.NextFlag
	Reason string
}

// DetectSignal returns the last completion token in text. Tokens are
// case-sensitive so ordinary prose ("complete the form") does not match.
func DetectSignal(text string) (Signal, bool) {
	best := -1
	var sig Signal

	for _, m := range verdictRe.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > best {
			best = m[0]
			sig = Signal{
				Flag:   core.NextFlag(text[m[2]:m[3]]),
				Reason: strings.TrimSpace(text[m[4]:m[5]]),
			}
		}
	}

	for _, m := range completeRe.FindAllStringIndex(text, -1) {
		if m[0] > best {
			best = m[0]
			sig = Signal{Flag: core.FlagComplete}
		}
	}

	return sig, best >= 0
}

// StripSignals removes completion tokens from text for display.
func StripSignals(text string) string {
	text = verdictRe.ReplaceAllString(text, "")
	text = completeRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
