// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// OperatorKey is the context key for the acting operator
	OperatorKey contextKey = "operator"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = newLogger.WithRequestID(requestID)
	}

	if operator, ok := ctx.Value(OperatorKey).(string); ok && operator != "" {
		newLogger = &Logger{
			Logger: newLogger.With(slog.String("operator", operator)),
		}
	}

	return newLogger
}

// WithRequestID returns a logger with request ID
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("request_id", requestID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DispatchResult logs the outcome of a funnel message dispatch.
func (l *Logger) DispatchResult(funnelID, orderID, messageType string, success bool, reason string) {
	if success {
		l.Info("funnel_dispatch",
			slog.String("funnel_id", funnelID),
			slog.String("order_id", orderID),
			slog.String("message_type", messageType),
			slog.Bool("success", true),
		)
		return
	}
	l.Warn("funnel_dispatch",
		slog.String("funnel_id", funnelID),
		slog.String("order_id", orderID),
		slog.String("message_type", messageType),
		slog.Bool("success", false),
		slog.String("reason", reason),
	)
}

// Transition logs a funnel lifecycle transition.
func (l *Logger) Transition(funnelID, from, to string, manual bool) {
	l.Info("funnel_transition",
		slog.String("funnel_id", funnelID),
		slog.String("from", from),
		slog.String("to", to),
		slog.Bool("manual", manual),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
