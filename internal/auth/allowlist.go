package auth

import "crypto/subtle"

// Allowlist is the set of credentials the chat accepts: any username with
// the shared password, and the admin username with the admin password.
//
// The admin username is reserved. Logging in as the admin with the shared
// password is refused, otherwise anyone knowing the shared password could
// pick up the admin flag.
type Allowlist struct {
	sharedPassword string
	adminUsername  string
	adminPassword  string
}

func NewAllowlist(sharedPassword, adminUsername, adminPassword string) *Allowlist {
	return &Allowlist{
		sharedPassword: sharedPassword,
		adminUsername:  adminUsername,
		adminPassword:  adminPassword,
	}
}

// Permits checks a username/secret pair and reports the admin flag the
// pair grants.
func (a *Allowlist) Permits(username, secret string) (isAdmin, ok bool) {
	if username == "" || secret == "" {
		return false, false
	}
	if a.adminUsername != "" && username == a.adminUsername {
		return true, a.adminPassword != "" && equal(secret, a.adminPassword)
	}
	return false, a.sharedPassword != "" && equal(secret, a.sharedPassword)
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
