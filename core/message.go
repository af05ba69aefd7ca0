package core

import (
	"encoding/json"
	"strings"
)

// Role is the speaker of a ServerMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ServerMessage is one entry of a conversation history. Messages are immutable
// once appended; histories are append-only slices owned by the turn's caller.
type ServerMessage struct {
	Role              Role            `json:"role"`
	Content           string          `json:"content"`
	AgentName         string          `json:"agentName,omitempty"`
	ConversationLevel int             `json:"conversationLevel,omitempty"`
	SubMessages       []ServerMessage `json:"subMessages,omitempty"`
	CurrentState      json.RawMessage `json:"currentState,omitempty"`
}

// NextFlag is the state of the post-response analysis machine.
type NextFlag string

const (
	FlagAnalysis    NextFlag = "ANALYSIS"
	FlagPass        NextFlag = "PASS"
	FlagFail        NextFlag = "FAIL"
	FlagComplete    NextFlag = "COMPLETE"
	FlagInfoRequest NextFlag = "INFO_REQUEST"
	FlagAuthURL     NextFlag = "AUTH_URL"
)

// Terminal reports whether the analysis loop stops at this flag.
func (f NextFlag) Terminal() bool {
	switch f {
	case FlagPass, FlagFail, FlagComplete, FlagInfoRequest, FlagAuthURL:
		return true
	default:
		return false
	}
}

// ParseNextFlag maps a token to a NextFlag. Unrecognized tokens map to FlagAnalysis.
func ParseNextFlag(s string) NextFlag {
	f := NextFlag(strings.ToUpper(strings.TrimSpace(s)))
	if f.Terminal() {
		return f
	}
	return FlagAnalysis
}

// AgentUserResponse is what the router hands back to the caller.
type AgentUserResponse struct {
	AgentName       string             `json:"agentName,omitempty"`
	Response        string             `json:"response"`
	History         []ServerMessage    `json:"history,omitempty"`
	ContextSets     []ContextContainer `json:"contextSets,omitempty"`
	Flag            NextFlag           `json:"flag,omitempty"`
	Reason          string             `json:"reason,omitempty"`
	AuthURL         string             `json:"authUrl,omitempty"`
	ChatLog         []ChatEntry        `json:"chatLog,omitempty"`
	ValidationError string             `json:"validationError,omitempty"`
}
