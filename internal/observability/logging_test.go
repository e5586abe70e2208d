package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/EliSopMes/immersive-server/internal/config"
	contextutils "github.com/EliSopMes/immersive-server/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{Logger: zap.New(core)}, logs
}

func TestLogWithContextAddsTraceInfo(t *testing.T) {
	tp := trace.NewTracerProvider()
	tracer := tp.Tracer("test-tracer")
	logger, observedLogs := newObservedLogger(zap.InfoLevel)

	ctx, span := tracer.Start(context.Background(), "test-span")
	defer span.End()

	logger.Info(ctx, "test message", nil)

	entries := observedLogs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}

func TestLogWithContextNoSpan(t *testing.T) {
	logger, observedLogs := newObservedLogger(zap.InfoLevel)

	logger.Info(context.Background(), "test message", nil)

	entries := observedLogs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.NotContains(t, fields, "trace_id")
	assert.NotContains(t, fields, "span_id")
}

func TestLogWithContextAddsRequestCorrelation(t *testing.T) {
	logger, observedLogs := newObservedLogger(zap.InfoLevel)
	ctx := contextutils.WithRequestID(contextutils.WithIdentity(context.Background(), "u1"), "req-42")

	logger.Warn(ctx, "quota nearly exhausted", map[string]interface{}{"kind": "quiz"})

	fields := observedLogs.All()[0].ContextMap()
	assert.Equal(t, "u1", fields["identity"])
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "quiz", fields["kind"])
}

func TestErrorIncludesCode(t *testing.T) {
	logger, observedLogs := newObservedLogger(zap.InfoLevel)

	logger.Error(context.Background(), "generation failed", contextutils.ErrGenerationUnavailable, nil)
	logger.Error(context.Background(), "plain failure", errors.New("boom"))

	entries := observedLogs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "GENERATION_UNAVAILABLE", entries[0].ContextMap()["error_code"])
	assert.NotContains(t, entries[1].ContextMap(), "error_code")
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestMergeFieldsDoesNotMutateInput(t *testing.T) {
	logger, _ := newObservedLogger(zap.InfoLevel)
	in := map[string]interface{}{"a": 1}

	logger.Error(context.Background(), "x", errors.New("y"), in)

	assert.Equal(t, map[string]interface{}{"a": 1}, in)
}

func TestNewLoggerDisabledIsNop(t *testing.T) {
	logger := NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	require.NotNil(t, logger)
	logger.Info(context.Background(), "dropped")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zap.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zap.InfoLevel, ParseLevel("nonsense"))
}

func TestSetupObservability_NoneEnabled(t *testing.T) {
	cfg := &config.OpenTelemetryConfig{ServiceName: "test-service", Protocol: "grpc"}

	tp, mp, logger, err := SetupObservability(cfg, "immersive-test", zap.InfoLevel)

	require.NoError(t, err)
	assert.Nil(t, tp)
	assert.Nil(t, mp)
	require.NotNil(t, logger)
	assert.Equal(t, "immersive-test", cfg.ServiceName)
}

func TestInitStandardTracing_UnsupportedProtocol(t *testing.T) {
	_, err := InitStandardTracing(&config.OpenTelemetryConfig{Protocol: "carrier-pigeon", SamplingRate: 1})
	require.Error(t, err)
}
