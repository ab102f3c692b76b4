package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adjeiq/Hearth/internal/config"
	"github.com/Adjeiq/Hearth/internal/middleware"
	"github.com/Adjeiq/Hearth/internal/token"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/api/auth/**", "/api/auth/login", true},
		{"/api/auth/**", "/api/auth", true},
		{"/api/auth/**", "/api/authx", false},
		{"/api/auth/**", "/api/auth/refresh/extra", true},
		{"/api/properties", "/api/properties", true},
		{"/api/properties", "/api/properties/42", false},
		{"/", "/", true},
		{"/", "/anything", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchPattern(tt.pattern, tt.path), "pattern %q path %q", tt.pattern, tt.path)
	}
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   DecisionKind
		role   string
	}{
		{http.MethodOptions, "/api/users/me", Permit, ""},
		{http.MethodPost, "/api/auth/login", Permit, ""},
		{http.MethodGet, "/api/properties", Permit, ""},
		{http.MethodGet, "/api/properties/search", Permit, ""},
		{http.MethodPost, "/api/properties", RequireAuth, ""},
		{http.MethodPost, "/api/properties/search", RequireAuth, ""},
		{http.MethodGet, "/api/properties/42", RequireAuth, ""},
		{http.MethodPost, "/api/contacts/new", Permit, ""},
		{http.MethodGet, "/api/account/verify/abc123", Permit, ""},
		{http.MethodGet, "/api/transactions", RequireAuth, ""},
		{http.MethodPost, "/api/v1/webhook/stripe", Permit, ""},
		{http.MethodGet, "/admin/metrics", RequireRole, "ADMIN"},
		{http.MethodGet, "/api/admin/users", RequireRole, "ADMIN"},
		{http.MethodGet, "/", Permit, ""},
	}
	for _, tt := range tests {
		decision := Authorize(tt.method, tt.path)
		assert.Equal(t, tt.want, decision.Kind, "%s %s", tt.method, tt.path)
		if tt.role != "" {
			assert.Equal(t, tt.role, decision.Role, "%s %s", tt.method, tt.path)
		}
	}
}

// fakeVerifier accepts a fixed set of tokens.
type fakeVerifier struct {
	identities map[string]*token.Identity
	calls      int
}

func (f *fakeVerifier) Verify(tokenString string) (*token.Identity, error) {
	f.calls++
	if identity, ok := f.identities[tokenString]; ok {
		return identity, nil
	}
	return nil, token.ErrUnauthenticated
}

type capturedRequest struct {
	path      string
	userEmail string
	userRoles string
}

func newTestGateway(t *testing.T) (*Gateway, *fakeVerifier, *capturedRequest, *httptest.Server) {
	t.Helper()

	var captured capturedRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = capturedRequest{
			path:      r.URL.Path,
			userEmail: r.Header.Get(middleware.UserEmailHeader),
			userRoles: r.Header.Get(middleware.UserRolesHeader),
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("upstream ok"))
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.GatewayConfig{
		Port:               "0",
		PropertyServiceURL: upstream.URL,
		UserServiceURL:     upstream.URL,
		ContactServiceURL:  upstream.URL,
		AnalyticsURL:       upstream.URL,
		TransactionURL:     upstream.URL,
		RateLimit:          100,
		RateWindow:         time.Minute,
		ClaimsCacheSize:    16,
		ClaimsCacheTTL:     time.Minute,
	}
	verifier := &fakeVerifier{identities: map[string]*token.Identity{
		"buyer-token": {Subject: "buyer@example.com", Roles: []string{"USER"}},
		"admin-token": {Subject: "admin@example.com", Roles: []string{"USER", "ADMIN"}},
	}}

	g, err := New(cfg, verifier, nil, zerolog.Nop())
	require.NoError(t, err)
	return g, verifier, &captured, upstream
}

func doRequest(g *Gateway, method, path, bearer string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	return rec
}

func TestGatewayPublicPathAnonymous(t *testing.T) {
	g, _, captured, _ := newTestGateway(t)

	rec := doRequest(g, http.MethodGet, "/api/properties", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "upstream ok", rec.Body.String())
	assert.Empty(t, captured.userEmail)
	assert.Empty(t, captured.userRoles)
}

func TestGatewayStripsSmuggledIdentityHeaders(t *testing.T) {
	g, _, captured, _ := newTestGateway(t)

	rec := doRequest(g, http.MethodGet, "/api/properties", "", map[string]string{
		middleware.UserEmailHeader: "attacker@example.com",
		middleware.UserRolesHeader: "ADMIN",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, captured.userEmail, "inbound identity headers must be stripped")
	assert.Empty(t, captured.userRoles)
}

func TestGatewayProtectedPathRequiresAuth(t *testing.T) {
	g, _, _, _ := newTestGateway(t)

	rec := doRequest(g, http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(g, http.MethodGet, "/api/users/me", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGatewayPropagatesClaims(t *testing.T) {
	g, _, captured, _ := newTestGateway(t)

	rec := doRequest(g, http.MethodGet, "/api/users/me", "buyer-token", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "buyer@example.com", captured.userEmail)
	assert.Equal(t, "USER", captured.userRoles)
}

func TestGatewayClaimsCaching(t *testing.T) {
	g, verifier, _, _ := newTestGateway(t)

	for i := 0; i < 5; i++ {
		rec := doRequest(g, http.MethodGet, "/api/users/me", "buyer-token", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, verifier.calls, "repeated tokens must hit the cache")
}

func TestGatewayAdminRole(t *testing.T) {
	g, _, _, _ := newTestGateway(t)

	rec := doRequest(g, http.MethodGet, "/api/admin/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(g, http.MethodGet, "/api/admin/users", "buyer-token", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// /api/admin/** has no route in the table, authorization passes but
	// dispatch has nowhere to go.
	rec = doRequest(g, http.MethodGet, "/api/admin/users", "admin-token", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatewayOptionsPreflight(t *testing.T) {
	g, _, _, _ := newTestGateway(t)

	rec := doRequest(g, http.MethodOptions, "/api/transactions", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGatewayUnknownRoute(t *testing.T) {
	g, _, _, _ := newTestGateway(t)

	rec := doRequest(g, http.MethodGet, "/api/public/unrouted", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatewayFallbackWhenUpstreamDown(t *testing.T) {
	g, _, _, upstream := newTestGateway(t)
	upstream.Close()

	rec := doRequest(g, http.MethodGet, "/api/properties", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "Property Service is currently unavailable. Please try again later.", string(body))
}

func TestGatewayBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g, _, _, upstream := newTestGateway(t)
	upstream.Close()

	for i := 0; i < 6; i++ {
		rec := doRequest(g, http.MethodGet, "/api/properties", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// The property breaker is open now; the other routes are unaffected.
	var propertyBackend *backend
	for _, b := range g.backends {
		if b.route.Name == "property" {
			propertyBackend = b
		}
	}
	require.NotNil(t, propertyBackend)
	_, err := propertyBackend.breaker.Execute(func() (any, error) { return nil, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
