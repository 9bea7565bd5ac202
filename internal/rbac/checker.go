package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Checker answers whether a role holds a permission. Exact grants are kept in
// a set per role; prefix patterns ("attempt:*", "*") are matched in order.
type Checker struct {
	exact    map[string]map[string]bool
	patterns map[string][]string
}

// NewChecker compiles a role policy. A nil policy means RolePermissions.
// Grants naming no known permission are rejected so a typo cannot silently
// lock a role out.
func NewChecker(rp map[string][]string) (*Checker, error) {
	if rp == nil {
		rp = RolePermissions
	}
	c := &Checker{
		exact:    make(map[string]map[string]bool, len(rp)),
		patterns: make(map[string][]string),
	}
	for role, perms := range rp {
		set := make(map[string]bool, len(perms))
		for _, p := range perms {
			if !known(p) {
				return nil, fmt.Errorf("rbac: role %s grants unknown permission %q", role, p)
			}
			if strings.HasSuffix(p, "*") {
				c.patterns[role] = append(c.patterns[role], strings.TrimSuffix(p, "*"))
				continue
			}
			set[p] = true
		}
		c.exact[role] = set
	}
	return c, nil
}

// MustChecker is NewChecker for static policies.
func MustChecker(rp map[string][]string) *Checker {
	c, err := NewChecker(rp)
	if err != nil {
		panic(err)
	}
	return c
}

func known(grant string) bool {
	prefix, wildcard := strings.CutSuffix(grant, "*")
	for _, p := range Permissions {
		if p == grant || (wildcard && strings.HasPrefix(p, prefix)) {
			return true
		}
	}
	return false
}

func (c *Checker) Has(role, perm string) bool {
	if c.exact[role][perm] {
		return true
	}
	for _, prefix := range c.patterns[role] {
		if strings.HasPrefix(perm, prefix) {
			return true
		}
	}
	return false
}

func (c *Checker) Any(role string, perms ...string) bool {
	for _, p := range perms {
		if c.Has(role, p) {
			return true
		}
	}
	return false
}

type ctxKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, ctxKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(ctxKey{}).(string)
	return role
}

// Allowed reports whether the role in ctx holds perm under the default policy.
func Allowed(ctx context.Context, perm string) bool {
	role := RoleFromContext(ctx)
	return role != "" && defaultChecker.Has(role, perm)
}
