package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Adjeiq/Hearth/internal/middleware"
	"github.com/Adjeiq/Hearth/internal/token"
)

// Verifier validates an access token. Satisfied by *token.Service.
type Verifier interface {
	Verify(tokenString string) (*token.Identity, error)
}

// claimsResolver verifies bearer tokens and caches the resulting identity
// keyed by the raw token. The cache TTL must stay well under the token TTL
// so a cached entry never outlives its token by much.
type claimsResolver struct {
	verifier Verifier
	cache    *expirable.LRU[string, *token.Identity]
}

func newClaimsResolver(verifier Verifier, size int, ttl time.Duration) *claimsResolver {
	return &claimsResolver{
		verifier: verifier,
		cache:    expirable.NewLRU[string, *token.Identity](size, nil, ttl),
	}
}

// resolve extracts and verifies the bearer token. A missing header yields
// (nil, nil): the request is anonymous, not invalid.
func (c *claimsResolver) resolve(r *http.Request) (*token.Identity, error) {
	raw := bearerToken(r)
	if raw == "" {
		return nil, nil
	}

	if identity, ok := c.cache.Get(raw); ok {
		return identity, nil
	}

	identity, err := c.verifier.Verify(raw)
	if err != nil {
		return nil, err
	}
	c.cache.Add(raw, identity)
	return identity, nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// propagateClaims rewrites the identity headers on the outbound request.
// Inbound values are always stripped so a client cannot smuggle an identity
// past the gateway.
func propagateClaims(r *http.Request, identity *token.Identity) {
	r.Header.Del(middleware.UserEmailHeader)
	r.Header.Del(middleware.UserRolesHeader)
	if identity == nil {
		return
	}
	r.Header.Set(middleware.UserEmailHeader, identity.Subject)
	if len(identity.Roles) > 0 {
		r.Header.Set(middleware.UserRolesHeader, strings.Join(identity.Roles, ","))
	}
}
