package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/teammesh/core"
	"github.com/hupe1980/teammesh/router"
	"github.com/hupe1980/teammesh/session"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// RouteRequest is the body of POST /v1/route.
type RouteRequest struct {
	Team    string `json:"team"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
	// SessionID continues a stored conversation and is created when unknown.
	SessionID   string                  `json:"sessionId,omitempty"`
	RunID       string                  `json:"runId,omitempty"`
	Session     *core.SessionState      `json:"session,omitempty"`
	History     []core.ServerMessage    `json:"history,omitempty"`
	ContextSets []core.ContextContainer `json:"contextSets,omitempty"`
}

// RouteResponse is the body answering POST /v1/route.
type RouteResponse struct {
	*core.AgentUserResponse
	RunID     string `json:"runId"`
	SessionID string `json:"sessionId,omitempty"`
}

// CredentialRequest is the body of POST /v1/credentials.
type CredentialRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Value  string `json:"value"`
}

// TeamSummary describes a team in GET /v1/teams.
type TeamSummary struct {
	Name   string   `json:"name"`
	Mode   string   `json:"mode"`
	Agents []string `json:"agents"`
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.Team) == "" {
		respondError(w, http.StatusBadRequest, "team and message are required")
		return
	}

	team, ok := s.teams.Get(req.Team)
	if !ok {
		respondError(w, http.StatusNotFound, "unknown team "+req.Team)
		return
	}

	state := req.Session
	if state == nil {
		state = &core.SessionState{UserID: req.UserID}
	} else if state.UserID == "" {
		state.UserID = req.UserID
	}

	ctx := r.Context()
	if s.opts.RouteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RouteTimeout)
		defer cancel()
	}

	var conv *session.Conversation
	if req.SessionID != "" && s.opts.Sessions != nil {
		c, found, err := s.opts.Sessions.Get(ctx, req.SessionID)
		if err != nil {
			s.opts.Logger.Error("server.session.load_failed", "session_id", req.SessionID, "error", err)
			respondError(w, http.StatusInternalServerError, "load session")
			return
		}
		if !found {
			c = &session.Conversation{ID: req.SessionID, UserID: state.UserID, Team: team.Name}
		}
		if c.UserID != state.UserID || !strings.EqualFold(c.Team, team.Name) {
			respondError(w, http.StatusConflict, "session belongs to another user or team")
			return
		}
		if req.History == nil {
			req.History = c.History
		}
		if req.ContextSets == nil {
			req.ContextSets = c.ContextSets
		}
		conv = c
	}

	runID := req.RunID
	if runID == "" {
		runID = core.NewID()
	}

	resp, err := s.mesh.Route(ctx, router.Request{
		Message:     req.Message,
		History:     req.History,
		Team:        team,
		Session:     state,
		ContextSets: req.ContextSets,
		RunID:       runID,
	})
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			s.opts.Logger.Error("server.route.failed", "run_id", runID, "error", err)
		}
		respondError(w, status, err.Error())
		return
	}

	if resp == nil {
		respondError(w, http.StatusUnprocessableEntity, "message is not addressed to an agent; use Name"+router.Delimiter+"message")
		return
	}

	if resp.ValidationError != "" {
		respondJSON(w, http.StatusUnprocessableEntity, RouteResponse{AgentUserResponse: resp, RunID: runID})
		return
	}

	if conv != nil {
		conv.Apply(resp, s.opts.MaxHistory)
		if err := s.opts.Sessions.Save(ctx, conv); err != nil {
			s.opts.Logger.Warn("server.session.save_failed", "session_id", conv.ID, "error", err)
		}
	}

	out := RouteResponse{AgentUserResponse: resp, RunID: runID}
	if conv != nil {
		out.SessionID = conv.ID
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	if err := s.mesh.Cancel(chi.URLParam(r, "runID")); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTeams(w http.ResponseWriter, _ *http.Request) {
	teams := s.teams.List()

	out := make([]TeamSummary, 0, len(teams))
	for _, t := range teams {
		out = append(out, TeamSummary{Name: t.Name, Mode: t.Mode.String(), Agents: t.AgentNames()})
	}

	respondJSON(w, http.StatusOK, out)
}

func (s *Server) getTeam(w http.ResponseWriter, r *http.Request) {
	team, ok := s.teams.Get(chi.URLParam(r, "team"))
	if !ok {
		respondError(w, http.StatusNotFound, "unknown team")
		return
	}
	respondJSON(w, http.StatusOK, team)
}

func (s *Server) putCredential(w http.ResponseWriter, r *http.Request) {
	if s.opts.Credentials == nil {
		respondError(w, http.StatusNotImplemented, "credential vault is not configured")
		return
	}

	var req CredentialRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.UserID == "" || req.Name == "" || req.Value == "" {
		respondError(w, http.StatusBadRequest, "userId, name and value are required")
		return
	}

	if err := s.opts.Credentials.Put(r.Context(), req.UserID, req.Name, req.Value); err != nil {
		s.opts.Logger.Error("server.credential.put_failed", "user_id", req.UserID, "name", req.Name, "error", err)
		respondError(w, http.StatusInternalServerError, "store credential")
		return
	}

	s.opts.Logger.Info("server.credential.stored", "user_id", req.UserID, "name", req.Name)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownAgent):
		return http.StatusNotFound
	case core.IsConfigError(err), errors.Is(err, core.ErrMaxDepth):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
