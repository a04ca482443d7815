package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"go.uber.org/zap"

	"github.com/LeventeLantos/sos-dispatch/internal/metrics"
)

const UserIDHeader = "X-User-ID"

type ctxKey struct{}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// RequireUser rejects requests without a caller identity. Identity is
// issued upstream; this service only reads the header.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(UserIDHeader)
		if id == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing " + UserIDHeader})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// RateLimit throttles per caller identity, falling back to the client IP.
func RateLimit(l *limiter.Limiter) mux.MiddlewareFunc {
	mw := stdlib.NewMiddleware(l, stdlib.WithKeyGetter(func(r *http.Request) string {
		if id := r.Header.Get(UserIDHeader); id != "" {
			return "user:" + id
		}
		return "ip:" + l.GetIPKey(r)
	}))
	return mw.Handler
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Observe logs every request and records its latency by route template.
func Observe(log *zap.Logger, m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			took := time.Since(start)
			m.HTTPRequest(r.Method, route, rec.status, took)
			log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", rec.status),
				zap.Duration("took", took),
			)
		})
	}
}
