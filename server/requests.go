package server

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/dreamlog/go-approval-server/token"
)

// actionRequest is the raw wire form of a POST /auth/session body. The
// identity fields are only honoured when no init-data validator is
// configured; otherwise identity comes from the verified init data.
type actionRequest struct {
	Action    string `json:"action"`
	SessionID string `json:"session_id"`
	InitData  string `json:"init_data"`
	UserID    int64  `json:"user_id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// sessionAction is the closed set of operations a session POST can request.
// Dispatch switches over these types exhaustively, so adding an action is a
// compile-time-checked change rather than a stringly-typed one.
type sessionAction interface {
	isSessionAction()
}

type startLoginAction struct {
	OwnerID int64
	Profile token.Profile
}

type approveAction struct {
	SessionID   string
	RequesterID int64
}

type denyAction struct {
	SessionID   string
	RequesterID int64
}

func (startLoginAction) isSessionAction() {}
func (approveAction) isSessionAction()    {}
func (denyAction) isSessionAction()       {}

// errIdentityRejected marks an authentication failure (bad init data), as
// opposed to a merely malformed request.
var errIdentityRejected = errors.New("identity rejected")

// requester resolves who is acting. With a validator configured the request
// must carry init data signed by Telegram; without one (dev mode) the body's
// identity fields are trusted as-is.
func (s *Server) requester(req actionRequest) (int64, token.Profile, error) {
	if s.webApp != nil {
		if req.InitData == "" {
			return 0, token.Profile{}, errors.Wrap(errIdentityRejected, "init_data is required")
		}
		user, err := s.webApp.Validate(req.InitData)
		if err != nil {
			return 0, token.Profile{}, errors.Wrap(errIdentityRejected, err.Error())
		}
		return user.ID, token.Profile{
			Username:  user.Username,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		}, nil
	}

	if req.UserID == 0 {
		return 0, token.Profile{}, fmt.Errorf("user_id is required")
	}
	return req.UserID, token.Profile{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}, nil
}

// buildAction turns a decoded body plus a resolved requester into one of the
// closed action variants.
func buildAction(req actionRequest, requesterID int64, profile token.Profile) (sessionAction, error) {
	switch req.Action {
	case "start_login":
		return startLoginAction{OwnerID: requesterID, Profile: profile}, nil
	case "approve":
		if req.SessionID == "" {
			return nil, fmt.Errorf("session_id is required")
		}
		return approveAction{SessionID: req.SessionID, RequesterID: requesterID}, nil
	case "deny":
		if req.SessionID == "" {
			return nil, fmt.Errorf("session_id is required")
		}
		return denyAction{SessionID: req.SessionID, RequesterID: requesterID}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
}
