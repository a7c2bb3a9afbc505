// Package auth defines the token-verification capability. A verifier turns
// a bearer credential presented by a client into a stable user identity.
//
// Verification failure is never fatal for joining a room — callers downgrade
// the member to unauthenticated instead.
package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned when the credential cannot be verified.
var ErrInvalidToken = errors.New("auth: invalid token")

// Identity is the verified identity behind a bearer token.
type Identity struct {
	// UserID is the stable user id. Never empty on success.
	UserID string

	// PhotoURL is the user's avatar, when the identity provider has one.
	PhotoURL string
}

// Verifier validates bearer credentials.
type Verifier interface {
	// Verify checks token and returns the identity it belongs to, or
	// [ErrInvalidToken] (possibly wrapped) when it does not verify.
	Verify(ctx context.Context, token string) (Identity, error)
}
