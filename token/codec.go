package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Verification failure reasons.
const (
	ReasonMalformed    = "malformed"
	ReasonBadSignature = "bad_signature"
	ReasonExpired      = "expired"
)

// Profile carries the display fields captured when a login session was
// created. They are embedded into the issued token payload so resource
// servers can render a user without a lookup.
type Profile struct {
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// payload is the signed part of a token.
type payload struct {
	Subject int64 `json:"sub"`
	Profile
	IssuedAt  int64 `json:"iat"`
	ExpiresAt int64 `json:"exp"`
}

// envelope is the wire form of a token before base64 encoding. Payload holds
// the exact bytes the signature was computed over, so verification never
// depends on re-serialization being canonical.
type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	Signature []byte          `json:"signature"`
}

// Issued is a freshly minted token together with its expiry.
type Issued struct {
	Token     string
	ExpiresAt time.Time
}

// Verification is the typed result of Verify. All failure modes are values,
// never panics, because Verify sits on the request-authentication hot path
// and runs on attacker-supplied input.
type Verification struct {
	Valid     bool
	Reason    string
	SubjectID int64
	Profile   Profile
	ExpiresAt time.Time
}

// Codec mints and verifies self-contained bearer tokens. Tokens are an
// HMAC-SHA256 signed JSON payload wrapped in base64; the server keeps no
// record of them after issuance, so validity is purely time-bounded.
type Codec struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

// CodecOption defines a function type to modify a Codec.
type CodecOption func(*Codec)

// WithTokenTTL overrides the default token lifetime.
func WithTokenTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		c.ttl = ttl
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

// NewCodec creates a Codec with the given signing secret. A missing secret is
// a configuration error: the server cannot satisfy its contract without one.
func NewCodec(secret string, options ...CodecOption) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("[NewCodec] signing secret is required")
	}

	c := &Codec{
		secret:  []byte(secret),
		ttl:     DefaultTokenTTL,
		nowFunc: time.Now,
	}

	for _, opt := range options {
		opt(c)
	}

	return c, nil
}

// Issue builds a token for the given subject. It is a pure function of its
// inputs, the secret and the clock.
func (c *Codec) Issue(subjectID int64, profile Profile) (*Issued, error) {
	now := c.nowFunc()
	expiresAt := now.Add(c.ttl)

	body, err := json.Marshal(payload{
		Subject:   subjectID,
		Profile:   profile,
		IssuedAt:  now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Codec.Issue] marshal payload")
	}

	env, err := json.Marshal(envelope{
		Payload:   body,
		Signature: c.sign(body),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Codec.Issue] marshal envelope")
	}

	return &Issued{
		Token:     base64.StdEncoding.EncodeToString(env),
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks a raw token and reports the outcome as a typed result.
// The signature is checked before the payload is trusted for anything,
// including its expiry claim.
func (c *Codec) Verify(raw string) Verification {
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Verification{Reason: ReasonMalformed}
	}

	var env envelope
	if err := json.Unmarshal(decoded, &env); err != nil {
		return Verification{Reason: ReasonMalformed}
	}
	if len(env.Payload) == 0 {
		return Verification{Reason: ReasonMalformed}
	}

	if !hmac.Equal(c.sign(env.Payload), env.Signature) {
		return Verification{Reason: ReasonBadSignature}
	}

	var p payload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return Verification{Reason: ReasonMalformed}
	}

	expiresAt := time.Unix(p.ExpiresAt, 0)
	if !c.nowFunc().Before(expiresAt) {
		return Verification{Reason: ReasonExpired, ExpiresAt: expiresAt}
	}

	return Verification{
		Valid:     true,
		SubjectID: p.Subject,
		Profile:   p.Profile,
		ExpiresAt: expiresAt,
	}
}

func (c *Codec) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	return mac.Sum(nil)
}
