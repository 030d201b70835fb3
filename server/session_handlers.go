package server

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dreamlog/go-approval-server/approval"
	"github.com/dreamlog/go-approval-server/internal/utils"
)

const contentTypeJSON = "application/json; charset=utf-8"

// One message for both the not-found and forbidden outcomes; status codes
// differ but the body never tells a prober which case it hit.
const invalidSessionMessage = "invalid or expired session"

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Exists    bool   `json:"exists"`
	Approved  *bool  `json:"approved,omitempty"`
	ExpiresIn *int64 `json:"expires_in,omitempty"`
}

type startLoginResponse struct {
	SessionID string `json:"session_id"`
	ExpiresAt int64  `json:"expires_at"`
}

type approveResponse struct {
	Token          string `json:"token"`
	TokenExpiresAt int64  `json:"token_expires_at"`
}

type denyResponse struct {
	Denied bool `json:"denied"`
}

// HealthzHandler is a liveness probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// SessionStatusHandler reports whether a session is still pending. Status is
// a query, not a resource fetch: an unknown or expired session is a normal
// 200 response with exists=false, never an HTTP 404.
func (s *Server) SessionStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			writeJSONError(w, http.StatusBadRequest, "session_id is required")
			return
		}

		status := s.approvals.Status(sessionID)
		if !status.Exists {
			writeJSON(w, http.StatusOK, statusResponse{Exists: false})
			return
		}

		writeJSON(w, http.StatusOK, statusResponse{
			Exists:    true,
			Approved:  utils.Ptr(status.Approved),
			ExpiresIn: utils.Ptr(int64(status.ExpiresIn.Seconds())),
		})
	}
}

// SessionActionHandler dispatches the tagged session actions: start_login,
// approve and deny.
func (s *Server) SessionActionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req actionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		requesterID, profile, err := s.requester(req)
		if err != nil {
			if errors.Is(err, errIdentityRejected) {
				writeJSONError(w, http.StatusUnauthorized, "authentication failed")
				return
			}
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		action, err := buildAction(req, requesterID, profile)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		switch a := action.(type) {
		case startLoginAction:
			s.handleStartLogin(w, a)
		case approveAction:
			s.handleApprove(w, a)
		case denyAction:
			s.handleDeny(w, a)
		default:
			// Unreachable as long as buildAction stays in sync with the
			// sessionAction variants.
			writeJSONError(w, http.StatusBadRequest, "unsupported action")
		}
	}
}

func (s *Server) handleStartLogin(w http.ResponseWriter, a startLoginAction) {
	started, err := s.approvals.StartLogin(a.OwnerID, a.Profile)
	if err != nil {
		log.Error().Err(err).Int64("owner_id", a.OwnerID).Msg("start login failed")
		writeJSONError(w, http.StatusInternalServerError, "could not create session")
		return
	}

	writeJSON(w, http.StatusOK, startLoginResponse{
		SessionID: started.SessionID,
		ExpiresAt: started.ExpiresAt.Unix(),
	})
}

func (s *Server) handleApprove(w http.ResponseWriter, a approveAction) {
	grant, err := s.approvals.Approve(a.SessionID, a.RequesterID)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, invalidSessionMessage)
	case errors.Is(err, approval.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, invalidSessionMessage)
	case err != nil:
		log.Error().Err(err).Str("session_id", a.SessionID).Msg("token issuance failed")
		writeJSONError(w, http.StatusInternalServerError, "could not issue token")
	default:
		writeJSON(w, http.StatusOK, approveResponse{
			Token:          grant.Token,
			TokenExpiresAt: grant.TokenExpiresAt.Unix(),
		})
	}
}

func (s *Server) handleDeny(w http.ResponseWriter, a denyAction) {
	err := s.approvals.Deny(a.SessionID, a.RequesterID)
	switch {
	case errors.Is(err, approval.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, invalidSessionMessage)
	case errors.Is(err, approval.ErrForbidden):
		writeJSONError(w, http.StatusForbidden, invalidSessionMessage)
	case err != nil:
		log.Error().Err(err).Str("session_id", a.SessionID).Msg("deny failed")
		writeJSONError(w, http.StatusInternalServerError, "could not deny session")
	default:
		writeJSON(w, http.StatusOK, denyResponse{Denied: true})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
