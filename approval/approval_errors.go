package approval

import (
	"errors"

	"github.com/dreamlog/go-approval-server/approval/sessions"
)

var (
	// ErrNotFound is returned when a session is absent or expired. The two
	// cases are deliberately merged; see sessions.ErrNotFound.
	ErrNotFound = sessions.ErrNotFound

	// ErrForbidden is returned when the requester is not the session owner.
	ErrForbidden = sessions.ErrForbidden

	// ErrIssuanceFailed means the token codec could not mint a token. Unlike
	// the conditions above it is not a per-request outcome but a server
	// configuration failure, and transports surface it as a 5xx.
	ErrIssuanceFailed = errors.New("token issuance failed")
)
