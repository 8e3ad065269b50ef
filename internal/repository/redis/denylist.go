// Package redis keeps logged-out credentials until they would have expired
// anyway.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/lalith-99/duochat/internal/repository"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "duochat:revoked:"

type TokenDenylist struct {
	client goredis.UniversalClient
}

var _ repository.TokenDenylist = (*TokenDenylist)(nil)

// Connect parses a redis:// URL, pings the server and returns a denylist
// bound to it. The caller owns the returned client and must Close it.
func Connect(ctx context.Context, redisURL string) (*TokenDenylist, *goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewTokenDenylist(client), client, nil
}

func NewTokenDenylist(client goredis.UniversalClient) *TokenDenylist {
	return &TokenDenylist{client: client}
}

// Keys hold a digest of the token so raw credentials never sit in Redis.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Revoke stores the token for ttl. A non-positive ttl means the token never
// expires on its own, so the entry is kept without expiry.
func (d *TokenDenylist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := d.client.Set(ctx, tokenKey(token), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (d *TokenDenylist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := d.client.Exists(ctx, tokenKey(token)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}
