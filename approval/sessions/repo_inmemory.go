package sessions

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamlog/go-approval-server/token"
)

// DefaultSessionTTL is how long a pending session stays approvable.
const DefaultSessionTTL = 5 * time.Minute

// InMemoryRepo is an in-memory implementation of Repo. All mutation happens
// under one mutex, which is what makes Approve's check-and-delete atomic.
type InMemoryRepo struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	sessionTTL time.Duration
	nowFunc    func() time.Time
}

var _ Repo = &InMemoryRepo{}

// InMemoryRepoOption defines a function type to modify an InMemoryRepo.
type InMemoryRepoOption func(*InMemoryRepo)

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(ttl time.Duration) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.sessionTTL = ttl
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) InMemoryRepoOption {
	return func(r *InMemoryRepo) {
		r.nowFunc = now
	}
}

// NewInMemoryRepo creates a new in-memory session repository.
func NewInMemoryRepo(options ...InMemoryRepoOption) *InMemoryRepo {
	r := &InMemoryRepo{
		sessions:   make(map[string]*Session),
		sessionTTL: DefaultSessionTTL,
		nowFunc:    time.Now,
	}

	for _, opt := range options {
		opt(r)
	}

	return r
}

// Create inserts a new pending session and returns a copy of it. Session IDs
// are v4 UUIDs, 122 bits of crypto/rand entropy, and are never reused: a
// consumed or expired ID simply stops resolving.
func (r *InMemoryRepo) Create(ownerID int64, profile token.Profile) (*Session, error) {
	if ownerID == 0 {
		return nil, fmt.Errorf("ownerID is required")
	}

	now := r.nowFunc()
	session := &Session{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Profile:   profile,
		CreatedAt: now,
		ExpiresAt: now.Add(r.sessionTTL),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[session.ID] = session

	out := *session
	return &out, nil
}

// Get retrieves a live session. A hit on an expired record deletes it before
// reporting ErrNotFound, so reads never resurrect stale state.
func (r *InMemoryRepo) Get(sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.expired(session) {
		delete(r.sessions, sessionID)
		return nil, ErrNotFound
	}

	out := *session
	return &out, nil
}

// Approve consumes the session and returns it flagged as approved. Existence,
// expiry, ownership and deletion are all checked under the same lock hold, so
// concurrent approvals of one session have at most one winner.
func (r *InMemoryRepo) Approve(sessionID string, requesterID int64) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if r.expired(session) {
		delete(r.sessions, sessionID)
		return nil, ErrNotFound
	}
	if session.OwnerID != requesterID {
		// A forbidden attempt must not consume the session; the owner can
		// still act on it afterwards.
		return nil, ErrForbidden
	}

	delete(r.sessions, sessionID)

	out := *session
	out.Approved = true
	return &out, nil
}

// Deny consumes the session without approving it. Denying an absent or
// expired session reports ErrNotFound.
func (r *InMemoryRepo) Deny(sessionID string, requesterID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if r.expired(session) {
		delete(r.sessions, sessionID)
		return ErrNotFound
	}
	if session.OwnerID != requesterID {
		return ErrForbidden
	}

	delete(r.sessions, sessionID)
	return nil
}

// DeleteExpiredSessions removes every session past its expiry so abandoned
// logins that are never polled cannot grow the table without bound.
func (r *InMemoryRepo) DeleteExpiredSessions(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, session := range r.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, live or expired.
func (r *InMemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *InMemoryRepo) expired(session *Session) bool {
	return !r.nowFunc().Before(session.ExpiresAt)
}
