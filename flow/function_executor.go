package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/util"
	"github.com/hupe1980/teammesh/tool"
)

// maxLoggedResult bounds tool output copied into the chat log.
const maxLoggedResult = 500

// executeCalls runs fnCalls sequentially in request order and returns one
// response per call. Tool failures and panics become error strings for the
// model; configuration errors abort the turn.
func executeCalls(runCtx *core.RunContext, set *tool.Set, fnCalls []core.FunctionCall) ([]core.FunctionResponse, error) {
	responses := make([]core.FunctionResponse, 0, len(fnCalls))

	for i, fc := range fnCalls {
		if err := runCtx.Err(); err != nil {
			return nil, err
		}

		if fc.ID == "" {
			fc.ID = fmt.Sprintf("call_%d", i)
		}

		toolCtx := core.NewToolContext(runCtx, fc.ID)
		runCtx.LogDebug("turn.tool.start", "agent", runCtx.AgentName(), "tool", fc.Name, "function_call_id", fc.ID)

		start := time.Now()

		var (
			result any
			err    error
		)

		func() {
			defer func() {
				if r := recover(); r != nil {
					err = panicError(r)
					runCtx.LogError("turn.tool.panic", "agent", runCtx.AgentName(), "tool", fc.Name, "recover", r)
				}
			}()
			result, err = executeTool(set, toolCtx, fc.Name, fc.Arguments)
		}()

		runCtx.LogInfo("turn.tool.executed",
			"agent", runCtx.AgentName(),
			"tool", fc.Name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err != nil,
		)

		if err != nil && core.IsConfigError(err) {
			runCtx.LogError("turn.tool.config_error", "agent", runCtx.AgentName(), "tool", fc.Name, "error", err)
			return nil, fmt.Errorf("tool %s: %w", fc.Name, err)
		}

		text := resultText(result, err)
		runCtx.ChatLog.Append(core.RoleSystem, runCtx.AgentName(),
			fmt.Sprintf("%s(%s) -> %s", fc.Name, fc.Arguments, util.Truncate(text, maxLoggedResult)))

		responses = append(responses, core.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: text})
	}

	return responses, nil
}

// executeTool centralizes tool lookup and argument decoding.
func executeTool(set *tool.Set, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	var impl tool.Tool
	if set != nil {
		impl, _ = set.Get(toolName)
	}
	if impl == nil {
		return nil, tool.NewToolError(toolName, fmt.Sprintf("tool %s not found", toolName), tool.CodeNotFound)
	}

	argMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return nil, tool.NewToolError(toolName, fmt.Sprintf("arguments are not a JSON object: %v", err), tool.CodeValidation)
		}
	}

	return impl.Call(toolCtx, argMap)
}

// resultText renders a tool outcome for the model.
func resultText(result any, err error) string {
	if err != nil {
		var toolErr *tool.ToolError
		if errors.As(err, &toolErr) {
			return fmt.Sprintf("Error [%s]: %s", toolErr.Code, toolErr.Message)
		}
		return "Error: " + err.Error()
	}

	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}

	b, jerr := json.Marshal(result)
	if jerr != nil {
		return fmt.Sprintf("%v", result)
	}

	return string(b)
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("tool panicked: %v", p.val) }
