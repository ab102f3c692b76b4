package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

type proxyErrKeyType struct{}

var proxyErrKey proxyErrKeyType

// backend is a route plus its reverse proxy and circuit breaker. When the
// breaker is open or the upstream cannot be reached, the route's fallback
// notice is served instead of an error.
type backend struct {
	route   Route
	proxy   *httputil.ReverseProxy
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func newBackend(route Route, log zerolog.Logger) (*backend, error) {
	target, err := url.Parse(route.Backend)
	if err != nil {
		return nil, fmt.Errorf("route %s: invalid backend url %q: %w", route.Name, route.Backend, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if holder, ok := r.Context().Value(proxyErrKey).(*error); ok {
			*holder = err
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    route.Name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("route", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})

	return &backend{route: route, proxy: proxy, breaker: breaker, log: log}, nil
}

func (b *backend) serve(w http.ResponseWriter, r *http.Request) {
	_, err := b.breaker.Execute(func() (any, error) {
		var proxyErr error
		ctx := context.WithValue(r.Context(), proxyErrKey, &proxyErr)
		b.proxy.ServeHTTP(w, r.WithContext(ctx))
		return nil, proxyErr
	})
	if err != nil {
		b.log.Error().Err(err).
			Str("route", b.route.Name).
			Str("path", r.URL.Path).
			Msg("upstream unavailable, serving fallback")
		b.fallback(w)
	}
}

// fallback mirrors the platform's legacy behavior: a 200 with a static
// notice, not an error status.
func (b *backend) fallback(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(b.route.Fallback))
}
