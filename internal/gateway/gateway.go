package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Adjeiq/Hearth/internal/config"
	"github.com/Adjeiq/Hearth/internal/redis"
	"github.com/Adjeiq/Hearth/internal/token"
	"github.com/Adjeiq/Hearth/pkg/rest"
)

// RateLimiter is satisfied by *redis.Client. A nil limiter disables rate
// limiting.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int64, window time.Duration) (*redis.RateLimitResult, error)
}

// Gateway is the platform's edge: it authenticates, authorizes, rate limits
// and proxies every request to the backend services.
type Gateway struct {
	cfg      *config.GatewayConfig
	log      zerolog.Logger
	limiter  RateLimiter
	resolver *claimsResolver
	backends []*backend
}

func New(cfg *config.GatewayConfig, verifier Verifier, limiter RateLimiter, log zerolog.Logger) (*Gateway, error) {
	var backends []*backend
	for _, route := range Routes(cfg) {
		b, err := newBackend(route, log)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return &Gateway{
		cfg:      cfg,
		log:      log,
		limiter:  limiter,
		resolver: newClaimsResolver(verifier, cfg.ClaimsCacheSize, cfg.ClaimsCacheTTL),
		backends: backends,
	}, nil
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeSecurityHeaders(w)

	if r.Method == http.MethodOptions {
		writeCORSHeaders(w)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeCORSHeaders(w)

	if r.URL.Path == "/healthz" {
		rest.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	identity, err := g.resolver.resolve(r)
	if err != nil {
		rest.Error(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	if !g.allowRate(w, r, identityKey(r, identity)) {
		return
	}

	decision := Authorize(r.Method, r.URL.Path)
	switch decision.Kind {
	case Permit:
	case RequireAuth:
		if identity == nil {
			rest.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
	case RequireRole:
		if identity == nil {
			rest.Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !hasRole(identity.Roles, decision.Role) {
			rest.Error(w, http.StatusForbidden, "insufficient role")
			return
		}
	}

	route, ok := g.match(r)
	if !ok {
		rest.Error(w, http.StatusNotFound, "no route for "+r.URL.Path)
		return
	}

	propagateClaims(r, identity)
	route.serve(w, r)
}

func (g *Gateway) match(r *http.Request) (*backend, bool) {
	for _, b := range g.backends {
		if !methodAllowed(b.route.Methods, r.Method) {
			continue
		}
		for _, pattern := range b.route.Patterns {
			if matchPattern(pattern, r.URL.Path) {
				return b, true
			}
		}
	}
	return nil, false
}

// allowRate applies the sliding window limiter. Redis being down fails open,
// the edge degrades to unlimited rather than rejecting everything.
func (g *Gateway) allowRate(w http.ResponseWriter, r *http.Request, key string) bool {
	if g.limiter == nil {
		return true
	}
	result, err := g.limiter.CheckRateLimit(r.Context(), key, g.cfg.RateLimit, g.cfg.RateWindow)
	if err != nil {
		g.log.Error().Err(err).Msg("rate limit check failed")
		return true
	}
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(g.cfg.RateLimit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(result.ResetAt).Seconds())+1, 10))
		rest.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

// identityKey buckets rate limiting by authenticated subject, or by client
// IP for anonymous traffic.
func identityKey(r *http.Request, identity *token.Identity) string {
	if identity != nil {
		return "user:" + identity.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func hasRole(roles []string, want string) bool {
	for _, role := range roles {
		if role == want {
			return true
		}
	}
	return false
}

func writeSecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	h.Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'")
}

func writeCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Idempotency-Key")
	h.Set("Access-Control-Max-Age", "86400")
}

// Serve runs the gateway's HTTP server until the context is cancelled.
func Serve(ctx context.Context, g *Gateway) error {
	srv := &http.Server{
		Addr:         ":" + g.cfg.Port,
		Handler:      g,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.log.Info().Str("port", g.cfg.Port).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
