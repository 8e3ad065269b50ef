package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lalith-99/duochat/internal/repository/memory"
)

func newTestAllowlist() *Allowlist {
	return NewAllowlist("2025", "adu", "1995")
}

func TestAllowlistPermits(t *testing.T) {
	a := newTestAllowlist()

	tests := []struct {
		name      string
		username  string
		secret    string
		wantOK    bool
		wantAdmin bool
	}{
		{"shared password", "alice", "2025", true, false},
		{"wrong password", "alice", "2024", false, false},
		{"admin password", "adu", "1995", true, true},
		{"admin with shared password", "adu", "2025", false, true},
		{"admin password for non-admin", "alice", "1995", false, false},
		{"empty username", "", "2025", false, false},
		{"empty secret", "alice", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isAdmin, ok := a.Permits(tt.username, tt.secret)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && isAdmin != tt.wantAdmin {
				t.Errorf("isAdmin = %v, want %v", isAdmin, tt.wantAdmin)
			}
		})
	}
}

func TestBasicCodecRoundTrip(t *testing.T) {
	var c BasicCodec

	token, err := c.Issue(Identity{Username: "alice"}, "20:25")
	if err != nil {
		t.Fatal(err)
	}
	cred, err := c.Decode(token)
	if err != nil {
		t.Fatal(err)
	}
	if cred.Username != "alice" || cred.Secret != "20:25" || cred.Signed {
		t.Errorf("unexpected credential %+v", cred)
	}
	if !cred.ExpiresAt.IsZero() {
		t.Error("basic credentials never expire")
	}
}

func TestBasicCodecRejectsGarbage(t *testing.T) {
	var c BasicCodec
	for _, token := range []string{"%%%", "bm9jb2xvbg==", "OnNlY3JldA=="} { // "nocolon", ":secret"
		if _, err := c.Decode(token); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q) err = %v, want ErrMalformed", token, err)
		}
	}
	if _, err := c.Issue(Identity{Username: "a:b"}, "x"); err == nil {
		t.Error("expected error for username containing ':'")
	}
}

func TestJWTCodec(t *testing.T) {
	c := NewJWTCodec("test-secret", time.Hour)

	token, err := c.Issue(Identity{Username: "bob", IsAdmin: true}, "")
	if err != nil {
		t.Fatal(err)
	}
	cred, err := c.Decode(token)
	if err != nil {
		t.Fatal(err)
	}
	if cred.Username != "bob" || !cred.Signed || cred.ExpiresAt.IsZero() {
		t.Errorf("unexpected credential %+v", cred)
	}

	other := NewJWTCodec("other-secret", time.Hour)
	if _, err := other.Decode(token); !errors.Is(err, ErrMalformed) {
		t.Errorf("wrong secret: err = %v, want ErrMalformed", err)
	}

	if _, err := c.Decode(token[:len(token)-2]); !errors.Is(err, ErrMalformed) {
		t.Errorf("truncated token: err = %v, want ErrMalformed", err)
	}
}

func TestJWTCodecExpiry(t *testing.T) {
	c := NewJWTCodec("test-secret", time.Minute)
	issued := time.Now()
	c.now = func() time.Time { return issued }

	token, err := c.Issue(Identity{Username: "bob"}, "")
	if err != nil {
		t.Fatal(err)
	}

	c.now = func() time.Time { return issued.Add(2 * time.Minute) }
	if _, err := c.Decode(token); !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

type fakeDenylist struct {
	revoked map[string]time.Duration
}

func (f *fakeDenylist) Revoke(_ context.Context, token string, ttl time.Duration) error {
	f.revoked[token] = ttl
	return nil
}

func (f *fakeDenylist) IsRevoked(_ context.Context, token string) (bool, error) {
	_, ok := f.revoked[token]
	return ok, nil
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.NewStore()
	if _, err := s.Create(context.Background(), "alice", "hash", false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(context.Background(), "adu", "hash", true); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestValidatorBasicScheme(t *testing.T) {
	ctx := context.Background()
	v := NewValidator(BasicCodec{}, newTestAllowlist(), seededStore(t), nil)

	tok := func(user, secret string) string {
		token, err := BasicCodec{}.Issue(Identity{Username: user}, secret)
		if err != nil {
			t.Fatal(err)
		}
		return token
	}

	id, err := v.Validate(ctx, tok("alice", "2025"))
	if err != nil {
		t.Fatal(err)
	}
	if id != (Identity{Username: "alice"}) {
		t.Errorf("identity = %+v", id)
	}

	id, err = v.Validate(ctx, tok("adu", "1995"))
	if err != nil || !id.IsAdmin {
		t.Errorf("admin identity = %+v, err = %v", id, err)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMalformed},
		{"not base64", "!!!", ErrMalformed},
		{"wrong secret", tok("alice", "nope"), ErrNotAllowed},
		{"unknown user", tok("mallory", "2025"), ErrUnknownUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(ctx, tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if !IsAuthError(err) {
				t.Errorf("IsAuthError(%v) = false", err)
			}
		})
	}
}

func TestValidatorRevocation(t *testing.T) {
	ctx := context.Background()
	deny := &fakeDenylist{revoked: map[string]time.Duration{}}
	codec := NewJWTCodec("secret", time.Hour)
	v := NewValidator(codec, newTestAllowlist(), seededStore(t), deny)

	token, err := v.Issue(Identity{Username: "alice"}, "2025")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Validate(ctx, token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	if err := v.Revoke(ctx, token); err != nil {
		t.Fatal(err)
	}
	if ttl := deny.revoked[token]; ttl <= 0 || ttl > time.Hour {
		t.Errorf("revocation ttl = %v, want (0, 1h]", ttl)
	}
	if _, err := v.Validate(ctx, token); !errors.Is(err, ErrRevoked) {
		t.Errorf("err = %v, want ErrRevoked", err)
	}

	second, _ := v.Issue(Identity{Username: "alice"}, "2025")
	if _, err := v.Validate(ctx, second); err != nil {
		t.Errorf("a new login must not be affected by an old logout: %v", err)
	}
}

func TestValidatorDoesNotRevokeBasicTokens(t *testing.T) {
	ctx := context.Background()
	deny := &fakeDenylist{revoked: map[string]time.Duration{}}
	v := NewValidator(BasicCodec{}, newTestAllowlist(), seededStore(t), deny)

	token, _ := v.Issue(Identity{Username: "alice"}, "2025")
	if err := v.Revoke(ctx, token); err != nil {
		t.Fatal(err)
	}
	if len(deny.revoked) != 0 {
		t.Errorf("basic token was denylisted: %v", deny.revoked)
	}
}

func TestIsAuthErrorIgnoresBackendErrors(t *testing.T) {
	if IsAuthError(errors.New("connection refused")) {
		t.Error("backend errors are not auth errors")
	}
	if !IsAuthError(errors.Join(ErrExpired, errors.New("ctx"))) {
		t.Error("wrapped ErrExpired should count")
	}
}
