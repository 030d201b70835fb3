package sessions

import "errors"

var (
	// ErrNotFound covers both a session that never existed and one that has
	// expired. Callers cannot tell the two apart, which keeps attacker
	// probes indistinguishable from ordinary expiry.
	ErrNotFound = errors.New("session not found")

	// ErrForbidden means the session exists but the requester is not its owner.
	ErrForbidden = errors.New("requester does not own session")
)
