package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// NewRouter builds the HTTP router. wsHandler is optional; when non-nil it is
// mounted at /ws.
func NewRouter(srv *Server, wsHandler http.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/health", srv.GetHealth)

	if wsHandler != nil {
		r.Handle("/ws", wsHandler)
	}

	// API routes share a request throttle
	r.Group(func(apiRouter chi.Router) {
		apiRouter.Use(rateLimitMiddleware(srv.config.RatePerSecond))

		apiRouter.Get("/api/status", srv.GetStatus)
		apiRouter.Get("/api/chain", srv.GetChain)
		apiRouter.Get("/api/chain/expiries", srv.GetExpiries)
		apiRouter.Get("/api/chain/latest", srv.GetLatest)
		apiRouter.Get("/api/chain/summary", srv.GetSummary)
		apiRouter.Get("/api/chain/oi-series", srv.GetOISeries)
		apiRouter.Get("/api/chain/change-series", srv.GetChangeSeries)
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitMiddleware(ratePerSec int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
