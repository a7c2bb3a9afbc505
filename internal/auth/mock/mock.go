// Package mock provides a configurable auth.Verifier for tests.
package mock

import (
	"context"

	"github.com/pshemk/tunehunt/internal/auth"
)

// Compile-time assertion.
var _ auth.Verifier = (*Verifier)(nil)

// Verifier maps token strings to identities. Unknown tokens fail with
// auth.ErrInvalidToken.
type Verifier struct {
	// Identities maps token → identity.
	Identities map[string]auth.Identity

	// Calls records every verified token.
	Calls []string
}

// Verify implements auth.Verifier.
func (v *Verifier) Verify(_ context.Context, token string) (auth.Identity, error) {
	v.Calls = append(v.Calls, token)
	if id, ok := v.Identities[token]; ok {
		return id, nil
	}
	return auth.Identity{}, auth.ErrInvalidToken
}
