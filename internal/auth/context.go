package auth

import (
	"context"
	"strings"
)

// Well-known role names.
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Identity is the authenticated subject of a single request.
type Identity struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the identity carries role (case-insensitive).
func (i Identity) HasRole(role string) bool {
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	id.Subject = strings.TrimSpace(id.Subject)
	if id.Subject == "" {
		return ctx
	}
	id.Roles = normalizeRoles(id.Roles)
	return context.WithValue(ctx, identityContextKey{}, &id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	v, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || v == nil {
		return Identity{}, false
	}
	out := Identity{Subject: v.Subject}
	if len(v.Roles) > 0 {
		out.Roles = append([]string(nil), v.Roles...)
	}
	return out, true
}

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return "", false
	}
	return id.Subject, true
}
