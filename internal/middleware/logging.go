// Package middleware holds the HTTP middleware shared by all listeners.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"velox-proxy/internal/common/logging"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestID assigns each request a fresh id and stores it in the request
// context where the context-aware logger picks it up. An incoming
// X-Request-ID header is honored so ids survive chained proxies.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), "request_id", id)
		ctx = context.WithValue(ctx, "host", r.Host)
		w.Header().Set("X-Request-ID", id)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging logs every request with method, path, status, and duration. The
// severity follows the response class: 5xx logs as error, 4xx as warn.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		fields := []logging.Field{
			{Key: "method", Value: r.Method},
			{Key: "host", Value: r.Host},
			{Key: "path", Value: r.URL.Path},
			{Key: "status", Value: wrapped.statusCode},
			{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
			{Key: "remote_addr", Value: r.RemoteAddr},
		}

		logger := logging.GetGlobalLogger().WithContext(r.Context())
		switch {
		case wrapped.statusCode >= 500:
			logger.Error("request completed", nil, fields...)
		case wrapped.statusCode >= 400:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	})
}
