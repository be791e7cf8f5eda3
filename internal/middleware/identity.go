package middleware

import (
	"context"
	"net/http"
	"strings"
)

// Identity headers set by the upstream gateway after authentication.
const (
	HeaderUserID       = "X-User-ID"
	HeaderUserName     = "X-User-Name"
	HeaderUserLanguage = "X-User-Language"
)

const anonymousUser = "anonymous"

// Identity describes the caller.
type Identity struct {
	UserID   string
	Name     string
	Language string
}

type identityKey struct{}

// UserIdentity stores the caller identity in the request context.
func UserIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := Identity{
			UserID:   strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Name:     strings.TrimSpace(r.Header.Get(HeaderUserName)),
			Language: strings.TrimSpace(r.Header.Get(HeaderUserLanguage)),
		}
		if identity.UserID == "" {
			identity.UserID = anonymousUser
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the caller identity, falling back to an anonymous caller.
func IdentityFrom(ctx context.Context) Identity {
	if identity, ok := ctx.Value(identityKey{}).(Identity); ok {
		return identity
	}
	return Identity{UserID: anonymousUser}
}
