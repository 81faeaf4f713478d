package ousia

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/TheOusia/ousia/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrNilParentContext indicates that a nil parent context was provided.
var ErrNilParentContext = errors.New("cannot create context from nil parent")

type customContextKey string

// CustomContextKey is the context key used to store CustomContextKeyValue.
var CustomContextKey = customContextKey("custom_context")

// CustomContextKeyValue holds all request-scoped facilities attached to a context.
type CustomContextKeyValue struct {
	HeaderID string
	Tracer   trace.Tracer
	Logger   log.Logger
}

// ---- Logger helpers ----

// NewLoggerFromContext extracts the Logger attached to ctx, or a NopLogger
// when none was injected.
//
//nolint:ireturn
func NewLoggerFromContext(ctx context.Context) log.Logger {
	if customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok &&
		customContext.Logger != nil {
		return customContext.Logger
	}

	return &log.NopLogger{}
}

// ContextWithLogger returns a context carrying the given Logger.
func ContextWithLogger(ctx context.Context, logger log.Logger) context.Context {
	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if values == nil {
		values = &CustomContextKeyValue{}
	}

	values.Logger = logger

	return context.WithValue(ctx, CustomContextKey, values)
}

// ---- Tracer helpers ----

// NewTracerFromContext extracts the trace.Tracer attached to ctx, falling
// back to the global otel tracer so spans are never silently lost.
//
//nolint:ireturn
func NewTracerFromContext(ctx context.Context) trace.Tracer {
	if customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok &&
		customContext.Tracer != nil {
		return customContext.Tracer
	}

	return otel.Tracer("ousia.default")
}

// ContextWithTracer returns a context carrying the given trace.Tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if values == nil {
		values = &CustomContextKeyValue{}
	}

	values.Tracer = tracer

	return context.WithValue(ctx, CustomContextKey, values)
}

// ---- Correlation / HeaderID helpers ----

// ContextWithHeaderID returns a context carrying a correlation ID.
func ContextWithHeaderID(ctx context.Context, headerID string) context.Context {
	values, _ := ctx.Value(CustomContextKey).(*CustomContextKeyValue)
	if values == nil {
		values = &CustomContextKeyValue{}
	}

	values.HeaderID = headerID

	return context.WithValue(ctx, CustomContextKey, values)
}

// NewHeaderIDFromContext extracts the correlation ID attached to ctx,
// generating a fresh UUID when none is present so every unit of work stays
// traceable.
func NewHeaderIDFromContext(ctx context.Context) string {
	if customContext, ok := ctx.Value(CustomContextKey).(*CustomContextKeyValue); ok {
		if trimmed := strings.TrimSpace(customContext.HeaderID); trimmed != "" {
			return trimmed
		}
	}

	return uuid.New().String()
}

// ---- Deadline Management ----

// WithTimeoutSafe creates a context with the specified timeout, but respects
// any existing deadline in the parent context. Returns an error if parent is nil.
//
// When the parent's deadline is shorter than the requested timeout, the
// returned context inherits the parent's deadline rather than creating a
// new one.
func WithTimeoutSafe(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if parent == nil {
		return nil, nil, ErrNilParentContext
	}

	if deadline, ok := parent.Deadline(); ok {
		timeUntilDeadline := time.Until(deadline)

		if timeUntilDeadline < timeout {
			ctx, cancel := context.WithCancel(parent)
			return ctx, cancel, nil
		}
	}

	ctx, cancel := context.WithTimeout(parent, timeout)

	return ctx, cancel, nil
}
