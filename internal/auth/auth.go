// Package auth implements the static-credential authenticator named by the
// rucat config schema's optional auth_provider section. Absent
// configuration disables authentication entirely.
package auth

import (
	"crypto/subtle"

	"github.com/HaoYang670/rucat/internal/apperrors"
)

// Provider authenticates a bearer token extracted from a request.
type Provider interface {
	Authenticate(token string) error
}

// Static is the only provider kind the rucat config schema defines: a
// single shared token compared in constant time.
type Static struct {
	token string
}

// NewStatic builds a Static provider for the configured token.
func NewStatic(token string) *Static {
	return &Static{token: token}
}

// Authenticate reports an AuthError if token does not match the configured
// credential.
func (s *Static) Authenticate(token string) error {
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		return apperrors.Auth("invalid credentials")
	}
	return nil
}

// Disabled is the no-op provider used when auth_provider is absent from
// configuration: every request is authenticated.
type Disabled struct{}

// Authenticate always succeeds.
func (Disabled) Authenticate(string) error {
	return nil
}
