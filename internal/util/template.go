package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

var templateFuncs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"bullets": func(items []string) string {
		var sb strings.Builder
		for _, it := range items {
			fmt.Fprintf(&sb, "- %s\n", it)
		}
		return sb.String()
	},
	"trim": strings.TrimSpace,
}

// RenderTemplate renders text as a text/template against data. Prompts are not
// HTML, so no escaping is applied.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("prompt").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// MustParse compiles a named template with the shared helper funcs. It panics
// on error and is meant for package-level template constants.
func MustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(templateFuncs).Parse(text))
}

// Truncate cuts s to at most max runes. max <= 0 disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	if len(s) <= max {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
