package gateway

import (
	"strings"

	"github.com/Adjeiq/Hearth/internal/config"
)

// Route maps path patterns to a backend service. A pattern ending in "/**"
// matches the prefix and everything under it; any other pattern matches
// exactly. An empty method list matches every method. The first matching
// route wins.
type Route struct {
	Name     string
	Patterns []string
	Methods  []string
	Backend  string
	Fallback string
}

// Routes builds the static route table for the platform's services.
func Routes(cfg *config.GatewayConfig) []Route {
	return []Route{
		{
			Name:     "auth",
			Patterns: []string{"/api/auth/**", "/auth/**"},
			Backend:  cfg.UserServiceURL,
			Fallback: "Auth Service is currently unavailable. Please try again later.",
		},
		{
			Name:     "contact",
			Patterns: []string{"/api/contacts/**", "/contacts/**", "/api/newsletter/**", "/newsletter/**"},
			Backend:  cfg.ContactServiceURL,
			Fallback: "Contact Service is currently unavailable. Please try again later.",
		},
		{
			Name:     "property",
			Patterns: []string{"/api/properties/**"},
			Backend:  cfg.PropertyServiceURL,
			Fallback: "Property Service is currently unavailable. Please try again later.",
		},
		{
			Name:     "user",
			Patterns: []string{"/api/users/**", "/api/account/**"},
			Backend:  cfg.UserServiceURL,
			Fallback: "User Service is currently unavailable. Please try again later.",
		},
		{
			Name:     "analytics",
			Patterns: []string{"/api/analytics/**"},
			Backend:  cfg.AnalyticsURL,
			Fallback: "Analytics Service is currently unavailable. Please try again later.",
		},
		{
			Name:     "transaction",
			Patterns: []string{"/api/transactions/**", "/api/documents/**", "/api/v1/payments/**", "/api/v1/refunds/**", "/api/v1/webhook/**"},
			Backend:  cfg.TransactionURL,
			Fallback: "Transaction Service is currently unavailable. Please try again later.",
		},
	}
}

// Match returns the first route matching the method and path.
func Match(routes []Route, method, path string) (*Route, bool) {
	for i := range routes {
		r := &routes[i]
		if !methodAllowed(r.Methods, method) {
			continue
		}
		for _, pattern := range r.Patterns {
			if matchPattern(pattern, path) {
				return r, true
			}
		}
	}
	return nil, false
}

func methodAllowed(methods []string, method string) bool {
	if len(methods) == 0 {
		return true
	}
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/**"); ok {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	return path == pattern
}
