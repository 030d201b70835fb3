package sessions

import (
	"time"

	"github.com/dreamlog/go-approval-server/token"
)

// Session is one pending out-of-band login approval request.
type Session struct {
	ID        string        // Unguessable lookup key, doubles as the status-polling capability
	OwnerID   int64         // Only this user may approve or deny the session
	Profile   token.Profile // Display data captured at creation, embedded into the issued token
	CreatedAt time.Time
	ExpiresAt time.Time
	Approved  bool
}

// Repo defines storage for pending approval sessions.
// A session's observable lifecycle is pending -> gone: Approve and Deny both
// consume the record, and an expired record is reported as not found.
type Repo interface {
	// Create inserts a new pending session for the owner
	Create(ownerID int64, profile token.Profile) (*Session, error)

	// Get retrieves a live session by ID; expired sessions are removed and
	// reported as not found
	Get(sessionID string) (*Session, error)

	// Approve consumes a pending session on behalf of the requester and
	// returns it with Approved set. The existence, ownership and delete
	// steps are one atomic operation so a session is approved at most once
	Approve(sessionID string, requesterID int64) (*Session, error)

	// Deny consumes a pending session without approving it
	Deny(sessionID string, requesterID int64) error

	// DeleteExpiredSessions removes every session past its expiry and
	// reports how many were removed
	DeleteExpiredSessions(now time.Time) int
}
