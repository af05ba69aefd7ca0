package tool

import (
	"errors"

	"github.com/hupe1980/teammesh/code"
	"github.com/hupe1980/teammesh/core"
)

// NewScriptTool returns the run_script tool which evaluates an expression in
// the expr-lang sandbox. The expression sees its variables under "vars".
func NewScriptTool(executor code.Executor) Tool {
	const name = "run_script"

	return NewFunctionTool(
		name,
		`Evaluate a sandboxed expression, e.g. "sum(vars.prices) * 1.19" or "filter(vars.items, .qty > 0)". No I/O is available.`,
		objectSchema(map[string]any{
			"expression": prop("string", "expr-lang expression"),
			"vars":       prop("object", "Variables available as vars.<name>"),
		}, "expression"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			if executor == nil {
				return nil, NewToolError(name, "script execution is not configured", CodeNotConfigured)
			}

			vars, _ := args["vars"].(map[string]any)
			if vars == nil {
				vars = map[string]any{}
			}

			out, err := executor.Execute(tc.Context(), stringArg(args, "expression"), map[string]any{"vars": vars})
			if errors.Is(err, code.ErrTimeout) {
				return nil, NewToolError(name, "script timed out", CodeExecution)
			}

			return out, err
		},
	)
}
