package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "immersive-server"

var globalTracer trace.Tracer

// InitGlobalTracer initializes the global tracer for the application.
func InitGlobalTracer() {
	globalTracer = otel.Tracer(tracerName)
}

// GetGlobalTracer returns the global tracer instance for the application.
func GetGlobalTracer() trace.Tracer {
	if globalTracer == nil {
		globalTracer = otel.Tracer(tracerName)
	}
	return globalTracer
}

// TraceFunction starts a new span named "<service>.<function>".
func TraceFunction(ctx context.Context, serviceName, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("%s.%s", serviceName, functionName)
	return GetGlobalTracer().Start(ctx, spanName, trace.WithAttributes(attributes...))
}

// TraceAIFunction starts a new span for a model provider call.
func TraceAIFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "ai", functionName, attributes...)
}

// TraceQuizFunction starts a new span for the quiz pipeline.
func TraceQuizFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "quiz", functionName, attributes...)
}

// TraceQuotaFunction starts a new span for the quota ledger.
func TraceQuotaFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "quota", functionName, attributes...)
}

// TraceAuthFunction starts a new span for identity resolution.
func TraceAuthFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "auth", functionName, attributes...)
}

// TraceHandlerFunction starts a new span for a handler function.
func TraceHandlerFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "handler", functionName, attributes...)
}

// TraceDatabaseFunction starts a new span for a database function.
func TraceDatabaseFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "database", functionName, attributes...)
}

// TraceExternalFunction starts a new span for a call to a third-party API (DeepL, webhook, page fetch).
func TraceExternalFunction(ctx context.Context, functionName string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	return TraceFunction(ctx, "external", functionName, attributes...)
}

// AttributeIdentity returns a tracing attribute for the caller identity.
func AttributeIdentity(identity string) attribute.KeyValue {
	return attribute.String("user.identity", identity)
}

// AttributeQuizID returns a tracing attribute for a quiz ID.
func AttributeQuizID(id int64) attribute.KeyValue {
	return attribute.Int64("quiz.id", id)
}

// AttributeSourceKey returns a tracing attribute for a quiz source key.
func AttributeSourceKey(key string) attribute.KeyValue {
	return attribute.String("quiz.source_key", key)
}

// AttributeOperationKind returns a tracing attribute for a metered operation kind.
func AttributeOperationKind(kind string) attribute.KeyValue {
	return attribute.String("quota.kind", kind)
}

// AttributeLevel returns a tracing attribute for a language level.
func AttributeLevel(level string) attribute.KeyValue {
	return attribute.String("level", level)
}
