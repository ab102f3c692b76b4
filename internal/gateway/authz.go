package gateway

import "net/http"

// Decision is what the authorization rules demand for a request.
type Decision struct {
	Kind DecisionKind
	Role string
}

type DecisionKind int

const (
	Permit DecisionKind = iota
	RequireAuth
	RequireRole
)

// authzRule pairs path patterns (and an optional method list) with a
// decision. Rules are evaluated in order, first match wins.
type authzRule struct {
	Methods  []string
	Patterns []string
	Decision Decision
}

// defaultRules is the platform's authorization policy. CORS preflight is
// always allowed. The processor webhook carries no bearer token, the
// downstream service verifies its signature instead. Property listing and
// search are public for reads only,
// writes fall through to the authenticated default. Everything not named
// requires authentication.
var defaultRules = []authzRule{
	{
		Patterns: []string{
			"/",
			"/api-docs",
			"/api/public/**",
			"/api/docs/**",
			"/api/auth/**",
			"/api/contacts/**",
			"/api/newsletter/**",
			"/api/account/verify/**",
			"/api/v1/webhook/**",
			"/fallback/**",
		},
		Decision: Decision{Kind: Permit},
	},
	{
		Methods:  []string{http.MethodGet},
		Patterns: []string{"/api/properties", "/api/properties/search"},
		Decision: Decision{Kind: Permit},
	},
	{
		Patterns: []string{"/admin/**", "/api/admin/**"},
		Decision: Decision{Kind: RequireRole, Role: "ADMIN"},
	},
}

// Authorize resolves the decision for a request.
func Authorize(method, path string) Decision {
	if method == http.MethodOptions {
		return Decision{Kind: Permit}
	}
	for _, rule := range defaultRules {
		if !methodAllowed(rule.Methods, method) {
			continue
		}
		for _, pattern := range rule.Patterns {
			if matchPattern(pattern, path) {
				return rule.Decision
			}
		}
	}
	return Decision{Kind: RequireAuth}
}
