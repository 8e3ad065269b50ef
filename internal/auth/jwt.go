package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "duochat"

// Claims is the payload of a signed session token. Subject carries the
// username and ID a per-login token id, so one login can be revoked
// without touching the others.
type Claims struct {
	Admin bool `json:"adm"`
	jwt.RegisteredClaims
}

// JWTCodec issues HS256 tokens that expire after ttl.
type JWTCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTCodec(secret string, ttl time.Duration) *JWTCodec {
	return &JWTCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for id. The login secret is not embedded; the
// signature stands in for it.
func (c *JWTCodec) Issue(id Identity, _ string) (string, error) {
	now := c.now()

	claims := Claims{
		Admin: id.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Username,
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies signature, algorithm, issuer and expiry.
func (c *JWTCodec) Decode(tokenString string) (Credential, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (any, error) {
			// Reject "none" and asymmetric algorithms before the
			// signature is checked.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return c.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Credential{}, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return Credential{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Credential{}, fmt.Errorf("%w: invalid token claims", ErrMalformed)
	}

	return Credential{
		Username:  claims.Subject,
		Signed:    true,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
