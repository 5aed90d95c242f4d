// Package api exposes the lookup service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qabilityp/namechecker/internal/resilience"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CircuitReporter snapshots upstream circuit breaker states.
type CircuitReporter interface {
	States() map[string]resilience.CircuitState
}

// Deps are the services the router dispatches to.
type Deps struct {
	Resolver    Resolver
	Ranker      Ranker
	Accounts    Accounts
	Store       Pinger
	Circuits    CircuitReporter
	Gatherer    prometheus.Gatherer
	CORSOrigins []string
}

// NewRouter wires all public endpoints.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	NewNamesHandler(d.Resolver, d.Ranker).Register(r)
	NewAuthHandler(d.Accounts).Register(r)

	r.Get("/health", healthHandler(d.Store, d.Circuits))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

type healthResponse struct {
	Status   string            `json:"status"`
	Circuits map[string]string `json:"circuits,omitempty"`
}

// healthHandler pings the store and reports circuit states. An open circuit
// does not fail the check; it only degrades the affected lookups.
func healthHandler(store Pinger, circuits CircuitReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		if circuits != nil {
			resp.Circuits = make(map[string]string)
			for service, state := range circuits.States() {
				resp.Circuits[service] = state.String()
				if state != resilience.CircuitClosed {
					zap.L().Warn("api: circuit not closed",
						zap.String("service", service),
						zap.Stringer("state", state),
					)
				}
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			zap.L().Warn("api: health check failed", zap.Error(err))
			resp.Status = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
