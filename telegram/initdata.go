// Package telegram verifies Telegram Web-App init data, the signed blob a
// mini-app hands to its backend to prove which Telegram user opened it.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultInitDataMaxAge bounds how old a signed init data blob may be.
const DefaultInitDataMaxAge = 24 * time.Hour

var (
	ErrMalformedInitData    = errors.New("malformed init data")
	ErrBadInitDataSignature = errors.New("init data signature mismatch")
	ErrStaleInitData        = errors.New("init data too old")
)

// User is the authenticated Web-App user embedded in init data.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Validator checks init data signatures. The signing key is derived from the
// bot token the way Telegram specifies: HMAC-SHA256 keyed by the literal
// string "WebAppData" over the token.
type Validator struct {
	secret  []byte
	maxAge  time.Duration
	nowFunc func() time.Time
}

// ValidatorOption defines a function type to modify a Validator.
type ValidatorOption func(*Validator)

// WithMaxAge overrides how old init data may be before it is rejected.
func WithMaxAge(maxAge time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.maxAge = maxAge
	}
}

// WithNowFunc sets the now time function (primarily for testing).
func WithNowFunc(now func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.nowFunc = now
	}
}

// NewValidator creates a Validator for the given bot token.
func NewValidator(botToken string, options ...ValidatorOption) (*Validator, error) {
	if botToken == "" {
		return nil, errors.New("[NewValidator] bot token is required")
	}

	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))

	v := &Validator{
		secret:  mac.Sum(nil),
		maxAge:  DefaultInitDataMaxAge,
		nowFunc: time.Now,
	}

	for _, opt := range options {
		opt(v)
	}

	return v, nil
}

// Validate checks the hash and freshness of raw init data and returns the
// embedded user. All failures are sentinel errors so transports can translate
// them without string matching.
func (v *Validator) Validate(initData string) (*User, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, ErrMalformedInitData
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, ErrMalformedInitData
	}
	values.Del("hash")

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(dataCheckString(values)))
	wantHash := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(wantHash), []byte(gotHash)) {
		return nil, ErrBadInitDataSignature
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, ErrMalformedInitData
	}
	if v.nowFunc().Sub(time.Unix(authDate, 0)) > v.maxAge {
		return nil, ErrStaleInitData
	}

	var user User
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil {
		return nil, ErrMalformedInitData
	}
	if user.ID == 0 {
		return nil, ErrMalformedInitData
	}

	return &user, nil
}

// dataCheckString is the canonical form Telegram signs: every key=value pair
// except hash, sorted by key, joined with newlines.
func dataCheckString(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	return strings.Join(pairs, "\n")
}
