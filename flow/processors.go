package flow

import (
	"strings"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/internal/util"
	"github.com/hupe1980/teammesh/model"
)

// InstructionsProcessor truncates the system prompt and, for reasoning
// models, folds it into the user message.
type InstructionsProcessor struct {
	maxChars int
}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor(maxChars int) *InstructionsProcessor {
	return &InstructionsProcessor{maxChars: maxChars}
}

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest implements RequestProcessor.
func (p *InstructionsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, in *TurnInput) error {
	prompt := strings.TrimSpace(in.SystemPrompt)
	if truncated := util.Truncate(prompt, p.maxChars); len(truncated) < len(prompt) {
		runCtx.LogWarn("turn.prompt.truncated", "agent", runCtx.AgentName(), "chars", len(prompt), "max", p.maxChars)
		prompt = truncated
	}
	in.SystemPrompt = prompt

	if prompt == "" {
		return nil
	}

	if in.Model.Info().Reasoning {
		in.Message = foldInstructions(prompt, in.Message)
		runCtx.LogDebug("turn.prompt.folded", "agent", runCtx.AgentName())
		return nil
	}

	req.Contents = append(req.Contents, core.NewTextContent("system", prompt))

	return nil
}

func foldInstructions(prompt, message string) string {
	var sb strings.Builder
	sb.WriteString("Instructions:\n")
	sb.WriteString(prompt)
	sb.WriteString("\n\nRequest:\n")
	sb.WriteString(message)
	return sb.String()
}

// ContentsProcessor appends the conversation history and the user message.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest implements RequestProcessor.
func (p *ContentsProcessor) ProcessRequest(_ *core.RunContext, req *model.Request, in *TurnInput) error {
	for _, m := range in.History {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := "user"
		if m.Role == core.RoleAssistant {
			role = "assistant"
		}
		req.Contents = append(req.Contents, core.NewTextContent(role, m.Content))
	}

	req.Contents = append(req.Contents, core.NewTextContent("user", in.Message))

	return nil
}

// ToolsProcessor declares the loaded tools to the model.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest implements RequestProcessor.
func (p *ToolsProcessor) ProcessRequest(runCtx *core.RunContext, req *model.Request, in *TurnInput) error {
	if in.Tools == nil || in.Tools.Len() == 0 {
		return nil
	}

	if !in.Model.Info().SupportsTools {
		runCtx.LogWarn("turn.tools.unsupported", "agent", runCtx.AgentName(), "tools", in.Tools.Len())
		return nil
	}

	for _, t := range in.Tools.Tools() {
		req.Tools = append(req.Tools, model.NewFunctionDefinition(t.Name(), t.Description(), t.Parameters()))
	}

	return nil
}
