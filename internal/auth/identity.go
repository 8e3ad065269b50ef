package auth

import (
	"errors"
	"time"
)

// Identity is who a request or connection belongs to once its credential
// checks out. It does not change for the lifetime of a connection.
type Identity struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

// AuthError kinds. Every one of them ends the attempt: HTTP replies 401,
// a websocket gets auth_failed and is closed.
var (
	ErrMalformed   = errors.New("malformed credential")
	ErrUnknownUser = errors.New("unknown user")
	ErrNotAllowed  = errors.New("credential not allowed")
	ErrExpired     = errors.New("credential expired")
	ErrRevoked     = errors.New("credential revoked")
)

// IsAuthError reports whether err is one of the credential failures above,
// as opposed to a backend failure during validation.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrUnknownUser) ||
		errors.Is(err, ErrNotAllowed) ||
		errors.Is(err, ErrExpired) ||
		errors.Is(err, ErrRevoked)
}

// Credential is what a Codec recovers from a bearer token.
type Credential struct {
	Username string
	// Secret is the password component of reversible credentials. Empty
	// for signed ones.
	Secret string
	// Signed is true when the codec already verified the token's integrity,
	// so the secret does not have to be checked against the allowlist.
	Signed bool
	// ExpiresAt is zero for credentials that never expire.
	ExpiresAt time.Time
}

// Codec turns identities into bearer tokens and back.
type Codec interface {
	Issue(id Identity, secret string) (string, error)
	Decode(token string) (Credential, error)
}
