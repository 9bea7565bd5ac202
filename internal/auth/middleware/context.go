package auth

import (
	"context"

	"github.com/mind-engage/mindengage-testprep/internal/rbac"
)

// Identity is the caller as established by a verified token.
type Identity struct {
	Subject string
	Role    string
}

type identityKey struct{}

// WithIdentity stores the caller and exposes its role to rbac checks.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey{}, id)
	return rbac.WithRole(ctx, id.Role)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// SubjectFromContext is the caller's user id, or "" when unauthenticated.
func SubjectFromContext(ctx context.Context) string {
	id, _ := IdentityFromContext(ctx)
	return id.Subject
}
