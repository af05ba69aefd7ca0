package core

// SessionState is the caller's session snapshot. The orchestration core treats
// it as opaque: it reads the user identity and the current roster and never
// writes back; callers apply returned deltas themselves.
type SessionState struct {
	UserID          string            `json:"userId"`
	CurrentAgents   []Agent           `json:"currentAgents,omitempty"`
	Rules           []string          `json:"rules,omitempty"`
	CustomRequests  []string          `json:"customRequests,omitempty"`
	ModelSelections map[string]string `json:"modelSelections,omitempty"`
	GenericData     map[string]any    `json:"genericData,omitempty"`
}

// UserName returns genericData.userName when present.
func (s *SessionState) UserName() string {
	if s == nil || s.GenericData == nil {
		return ""
	}
	name, _ := s.GenericData["userName"].(string)
	return name
}
