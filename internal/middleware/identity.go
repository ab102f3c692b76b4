package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Adjeiq/Hearth/pkg/rest"
)

const (
	// Headers asserted by the gateway after it has verified the bearer token.
	// Interior services trust them unconditionally; their absence means no
	// identity was asserted, not an anonymous role.
	UserEmailHeader = "X-User-Email"
	UserRolesHeader = "X-User-Roles"
)

const identityContextKey contextKey = "identity"

// Identity is the upstream-asserted caller identity.
type Identity struct {
	Email string
	Roles []string
}

func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// GatewayIdentity lifts the forwarded identity headers into the context.
func GatewayIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.Header.Get(UserEmailHeader)
		if email == "" {
			next.ServeHTTP(w, r)
			return
		}

		identity := &Identity{Email: email}
		if roles := r.Header.Get(UserRolesHeader); roles != "" {
			identity.Roles = strings.Split(roles, ",")
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity returns the asserted identity, or nil for anonymous requests.
func GetIdentity(ctx context.Context) *Identity {
	if identity, ok := ctx.Value(identityContextKey).(*Identity); ok {
		return identity
	}
	return nil
}

// RequireIdentity rejects requests that carry no asserted identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetIdentity(r.Context()) == nil {
			rest.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects requests whose asserted identity lacks the role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if identity == nil {
				rest.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !identity.HasRole(role) {
				rest.Error(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
