package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	if id := IntentIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("intent.id", id))
	}
	if actor := ActorFromContext(ctx); actor != "" {
		fields = append(fields, zap.String("actor", actor))
	}
	return fields
}

type requestCtxKey struct{}
type intentCtxKey struct{}
type actorCtxKey struct{}

const maxIDLen = 128

// idPattern allows alphanumeric, hyphen, underscore, dot and colon.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// ValidID reports whether id is safe to attach to log lines. IDs arrive from
// HTTP headers and operator input, so they are checked rather than trusted.
func ValidID(id string) bool {
	return id != "" && len(id) <= maxIDLen && idPattern.MatchString(id)
}

func withID(ctx context.Context, key any, id string) context.Context {
	if !ValidID(id) {
		return ctx
	}
	return context.WithValue(ctx, key, id)
}

func idFrom(ctx context.Context, key any) string {
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// WithRequestID adds request ID to context. Invalid IDs are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withID(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	return idFrom(ctx, requestCtxKey{})
}

// WithIntentID adds the pending intent ID being acted on. Invalid IDs are
// ignored.
func WithIntentID(ctx context.Context, intentID string) context.Context {
	return withID(ctx, intentCtxKey{}, intentID)
}

// IntentIDFromContext extracts the intent ID from context.
func IntentIDFromContext(ctx context.Context) string {
	return idFrom(ctx, intentCtxKey{})
}

// WithActor records who initiated the work, e.g. an operator name or "auto".
func WithActor(ctx context.Context, actor string) context.Context {
	return withID(ctx, actorCtxKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) string {
	return idFrom(ctx, actorCtxKey{})
}

type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
