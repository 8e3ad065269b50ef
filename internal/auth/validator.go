package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/duochat/internal/models"
	"github.com/lalith-99/duochat/internal/repository"
)

// UserLookup is the slice of the user repository the validator needs.
type UserLookup interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// Validator is the single answer to "who is this" for both the HTTP
// middleware and the websocket handshake.
type Validator struct {
	codec    Codec
	allow    *Allowlist
	users    UserLookup
	denylist repository.TokenDenylist
	now      func() time.Time
}

// NewValidator wires a codec to the allowlist and user store. denylist may
// be nil, which disables revocation.
func NewValidator(codec Codec, allow *Allowlist, users UserLookup, denylist repository.TokenDenylist) *Validator {
	return &Validator{
		codec:    codec,
		allow:    allow,
		users:    users,
		denylist: denylist,
		now:      time.Now,
	}
}

// Allowlist exposes the login policy so the login handler checks passwords
// against the same rules the validator enforces.
func (v *Validator) Allowlist() *Allowlist {
	return v.allow
}

// Issue returns a bearer token for an identity that just proved its secret.
func (v *Validator) Issue(id Identity, secret string) (string, error) {
	return v.codec.Issue(id, secret)
}

// Validate decodes the token, checks it against the allowlist and
// denylist, and resolves the stored user. It never writes anything.
func (v *Validator) Validate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	cred, err := v.codec.Decode(token)
	if err != nil {
		return Identity{}, err
	}

	// Reversible credentials carry the password; it has to match the
	// allowlist every time, not only at login.
	if !cred.Signed {
		if _, ok := v.allow.Permits(cred.Username, cred.Secret); !ok {
			return Identity{}, ErrNotAllowed
		}
	}

	if v.denylist != nil {
		revoked, err := v.denylist.IsRevoked(ctx, token)
		if err != nil {
			return Identity{}, fmt.Errorf("check denylist: %w", err)
		}
		if revoked {
			return Identity{}, ErrRevoked
		}
	}

	user, err := v.users.GetByUsername(ctx, cred.Username)
	if err != nil {
		return Identity{}, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return Identity{}, ErrUnknownUser
	}

	return Identity{Username: user.Username, IsAdmin: user.IsAdmin}, nil
}

// Revoke puts an expiring token on the denylist for the rest of its life.
// Tokens without an expiry are left alone: a reversible credential is the
// same string on every login, so denylisting it would lock the user out
// for good. Without a denylist Revoke is a no-op.
func (v *Validator) Revoke(ctx context.Context, token string) error {
	if v.denylist == nil {
		return nil
	}
	cred, err := v.codec.Decode(token)
	if err != nil {
		return err
	}
	if cred.ExpiresAt.IsZero() {
		return nil
	}
	ttl := cred.ExpiresAt.Sub(v.now())
	if ttl <= 0 {
		return nil
	}
	return v.denylist.Revoke(ctx, token, ttl)
}
