package auth

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Verifier checks presented admin keys against the configured one. The
// configured key may be a bcrypt hash (recommended) or a plaintext
// value, which is compared in constant time.
type Verifier struct {
	key      string
	isBcrypt bool
}

// NewVerifier creates a Verifier for the configured admin key. An
// empty key disables authentication entirely; callers should treat
// that as "auth off" and skip the middleware.
func NewVerifier(key string) *Verifier {
	return &Verifier{
		key:      key,
		isBcrypt: isBcryptHash(key),
	}
}

// Enabled reports whether an admin key is configured.
func (v *Verifier) Enabled() bool {
	return v.key != ""
}

// Verify reports whether the presented key matches the configured one.
func (v *Verifier) Verify(presented string) bool {
	if v.key == "" || presented == "" {
		return false
	}
	if v.isBcrypt {
		return bcrypt.CompareHashAndPassword([]byte(v.key), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(v.key), []byte(presented)) == 1
}

// isBcryptHash recognizes the standard bcrypt prefixes.
func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") ||
		strings.HasPrefix(s, "$2b$") ||
		strings.HasPrefix(s, "$2y$")
}
