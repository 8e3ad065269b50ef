package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// BasicCodec is the reversible base64("username:secret") scheme. Anyone
// holding the token holds the password, tokens never expire and cannot be
// told apart across logins. It exists for compatibility with existing
// clients; JWTCodec is the replacement.
type BasicCodec struct{}

func (BasicCodec) Issue(id Identity, secret string) (string, error) {
	if strings.Contains(id.Username, ":") {
		return "", fmt.Errorf("username %q contains ':'", id.Username)
	}
	return base64.StdEncoding.EncodeToString([]byte(id.Username + ":" + secret)), nil
}

// Decode splits on the first colon, so secrets may contain colons but
// usernames may not.
func (BasicCodec) Decode(token string) (Credential, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	username, secret, found := strings.Cut(string(raw), ":")
	if !found || username == "" || secret == "" {
		return Credential{}, fmt.Errorf("%w: expected username:secret", ErrMalformed)
	}
	return Credential{Username: username, Secret: secret}, nil
}
