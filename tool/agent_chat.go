package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/teammesh/core"
)

// AgentMessenger delivers a message from the calling agent to a peer and
// returns the peer's reply.
type AgentMessenger interface {
	MessageAgent(toolCtx *core.ToolContext, to, message string) (string, error)
}

// AgentChatTool is the name of the peer messaging tool.
const AgentChatTool = "message_agent"

// NewAgentChatTool returns the message_agent tool. Unknown recipients abort
// the turn; a depth limit is reported back to the model.
func NewAgentChatTool(messenger AgentMessenger) Tool {
	return NewFunctionTool(
		AgentChatTool,
		"Send a message to another agent on your team and wait for its reply.",
		objectSchema(map[string]any{
			"agent_name": prop("string", "Name of the agent to contact"),
			"message":    prop("string", "What you need from the agent"),
		}, "agent_name", "message"),
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			if messenger == nil {
				return nil, NewToolError(AgentChatTool, "agent messaging is not configured", CodeNotConfigured)
			}

			to := stringArg(args, "agent_name")
			msg := stringArg(args, "message")
			if msg == "" {
				return nil, NewToolError(AgentChatTool, "message must not be empty", CodeValidation)
			}

			if team := tc.Team(); team != nil {
				if _, ok := team.FindAgent(to); !ok {
					return nil, core.UnknownAgentError(to)
				}
			}

			if a := tc.Agent(); a != nil && !a.CanContact(to) {
				return nil, NewToolError(AgentChatTool, fmt.Sprintf("you are not allowed to contact %q", to), CodeNotAllowed)
			}

			reply, err := messenger.MessageAgent(tc, to, msg)
			if errors.Is(err, core.ErrMaxDepth) {
				return nil, &ToolError{
					Tool:    AgentChatTool,
					Message: "conversation depth limit reached; answer with what you have",
					Code:    CodeExecution,
					Err:     err,
				}
			}

			return reply, err
		},
	)
}
