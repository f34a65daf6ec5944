package auth

import "context"

// Principal is the authenticated actor performing an operation.
type Principal struct {
	ID    string
	Email string
}

// Authenticated reports whether the principal carries an identity.
func (p Principal) Authenticated() bool {
	return p.ID != ""
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or the zero
// (unauthenticated) principal.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}
