// Package approval implements the out-of-band login approval flow: a user on
// an authenticated Telegram device approves or denies a web login request,
// and approval mints a signed bearer token for the web client.
package approval

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dreamlog/go-approval-server/approval/sessions"
	"github.com/dreamlog/go-approval-server/token"
)

// TokenIssuer mints bearer tokens for approved logins. *token.Codec is the
// production implementation.
type TokenIssuer interface {
	Issue(subjectID int64, profile token.Profile) (*token.Issued, error)
}

// Service drives the session state machine. Every session is pending until
// exactly one of approve, deny or expiry consumes it; terminal sessions are
// not retained, so to callers they are simply gone.
type Service struct {
	sessions sessions.Repo
	issuer   TokenIssuer
	nowFunc  func() time.Time
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowFunc = nowFunc
	}
}

// NewService initializes a new approval Service with required dependencies.
func NewService(sessionRepo sessions.Repo, issuer TokenIssuer, options ...ServiceOption) (*Service, error) {
	if sessionRepo == nil {
		return nil, errors.New("[NewService] sessions repo is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewService] token issuer is required")
	}

	service := &Service{
		sessions: sessionRepo,
		issuer:   issuer,
		nowFunc:  time.Now,
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

// StartedSession is what a login intent gets back: the capability to poll for
// status and the deadline by which the owner must act.
type StartedSession struct {
	SessionID string
	ExpiresAt time.Time
}

// Grant is the result of a successful approval. It is handed out exactly
// once, in the synchronous return of Approve.
type Grant struct {
	Token          string
	TokenExpiresAt time.Time
}

// Status is a point-in-time view of a session for polling transports. It
// never carries the token itself.
type Status struct {
	Exists    bool
	Approved  bool
	ExpiresIn time.Duration
}

// StartLogin creates a pending session for the owner. No token exists yet.
func (s *Service) StartLogin(ownerID int64, profile token.Profile) (*StartedSession, error) {
	session, err := s.sessions.Create(ownerID, profile)
	if err != nil {
		return nil, errors.Wrap(err, "[Service.StartLogin] sessions.Create")
	}

	return &StartedSession{
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Approve consumes the session on behalf of the requester and mints a token
// for the session owner. The session is deleted before issuance begins, so a
// concurrent second approval can never observe it pending and obtain a second
// token; it gets ErrNotFound instead.
func (s *Service) Approve(sessionID string, requesterID int64) (*Grant, error) {
	session, err := s.sessions.Approve(sessionID, requesterID)
	if err != nil {
		return nil, err
	}

	issued, err := s.issuer.Issue(session.OwnerID, session.Profile)
	if err != nil {
		return nil, errors.Wrapf(ErrIssuanceFailed, "[Service.Approve] %s", err)
	}

	return &Grant{
		Token:          issued.Token,
		TokenExpiresAt: issued.ExpiresAt,
	}, nil
}

// Deny consumes the session without issuing anything.
func (s *Service) Deny(sessionID string, requesterID int64) error {
	return s.sessions.Deny(sessionID, requesterID)
}

// Status reports whether a session is still pending. Absent, consumed and
// expired sessions all read as not existing.
func (s *Service) Status(sessionID string) Status {
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return Status{}
	}

	return Status{
		Exists:    true,
		Approved:  session.Approved,
		ExpiresIn: session.ExpiresAt.Sub(s.nowFunc()),
	}
}

// RunSweeper removes expired sessions on a fixed interval until the context
// is cancelled. The sweep only ever deletes, so the worst race with a
// concurrent approve is both concluding the session is gone.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.sessions.DeleteExpiredSessions(s.nowFunc()); removed > 0 {
				log.Debug().Int("removed", removed).Msg("swept expired login sessions")
			}
		}
	}
}
