package main

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// loggerKey is the context key under which the per-request logger is
// stored, following patrickwarner-openadserve's trace-logger middleware
// shape: a request-scoped logger enriched with a correlation id, retrieved
// downstream via loggerFromContext instead of threading it through every
// function signature.
type loggerKey struct{}

// withRequestLogger returns middleware that tags every request with a
// fresh request id and stores a logger carrying it in the request context.
func withRequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := uuid.New().String()
			logger := base.With(zap.String("request_id", requestID))
			ctx := context.WithValue(r.Context(), loggerKey{}, logger)
			logger.Info("request received", zap.String("path", r.URL.Path), zap.String("remote_addr", r.RemoteAddr))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// loggerFromContext retrieves the request-scoped logger, falling back to
// fallback if the request was not routed through withRequestLogger.
func loggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return fallback
}
