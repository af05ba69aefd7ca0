package core

import (
	"strings"

	"golang.org/x/text/cases"
)

// NameKey normalizes an agent or context-set name for comparison: surrounding
// space is trimmed and the rest is Unicode case folded.
func NameKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// SameName reports whether a and b name the same agent or set.
func SameName(a, b string) bool {
	return NameKey(a) == NameKey(b)
}
