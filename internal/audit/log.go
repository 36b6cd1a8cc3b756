// Package audit writes security-relevant events to the structured log.
package audit

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"filmbase.org/internal/auth"
	"filmbase.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry to the shared logger.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	return LogEventTo(ctx, obs.Logger(), event, fields)
}

// LogEventTo writes an audit entry enriched with the request id and the
// authenticated subject. Fields are emitted in key order.
func LogEventTo(ctx context.Context, logger log.Logger, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	keyvals := []interface{}{"type", "audit", "event", event}
	if rid := RequestIDFromContext(ctx); rid != "" {
		keyvals = append(keyvals, "request_id", rid)
	}
	if subject, ok := auth.SubjectFromContext(ctx); ok {
		keyvals = append(keyvals, "subject", subject)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		keyvals = append(keyvals, k, fields[k])
	}
	return level.Info(logger).Log(keyvals...)
}
