package tool

import "github.com/hupe1980/teammesh/core"

// AlreadyCalledMessage is returned to the model when a once-per-turn tool is
// called a second time in the same turn.
const AlreadyCalledMessage = "This tool was already used in this turn. Do not call it again; continue with your answer."

type onceTool struct {
	Tool
}

// OncePerTurn wraps t so that it executes at most once per agent turn. The
// claim is stored in the turn's core.TurnState. A call that fails releases its
// claim so the model may retry with corrected arguments.
func OncePerTurn(t Tool) Tool {
	return &onceTool{Tool: t}
}

func (o *onceTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	key := "once:" + o.Name()

	if !toolCtx.Claim(key) {
		toolCtx.LogDebug("tool.call.repeat_blocked", "tool", o.Name(), "agent", toolCtx.AgentName())
		return AlreadyCalledMessage, nil
	}

	out, err := o.Tool.Call(toolCtx, args)
	if err != nil {
		toolCtx.Release(key)
	}

	return out, err
}
