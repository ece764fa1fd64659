package tracing

import (
	"context"
	"strings"
	"testing"
	"time"

	"msgrelay/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGenerateRequestID_Unique(t *testing.T) {
	a := GenerateRequestID()
	b := GenerateRequestID()

	assert.True(t, strings.HasPrefix(a, "req_"))
	assert.NotEqual(t, a, b)
}

func TestContextRoundTrip(t *testing.T) {
	start := time.Now().Add(-time.Second)
	ctx := WithRequestID(context.Background(), "req_1")
	ctx = WithStartTime(ctx, start)
	ctx = WithUserID(ctx, "user-42")

	info := GetRequestInfo(ctx)

	assert.Equal(t, "req_1", info.RequestID)
	assert.Equal(t, start, info.StartTime)
	assert.Equal(t, "user-42", GetUserID(ctx))
	assert.GreaterOrEqual(t, Duration(ctx), time.Second)
}

func TestEmptyContext(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetUserID(ctx))
	assert.Empty(t, GetOtelTraceID(ctx))
	assert.Zero(t, Duration(ctx))
}

func TestTracingManager_DisabledIsNoop(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	tm := NewTracingManager(models.TracingConfig{Enabled: false}, logger)

	require.NoError(t, tm.Initialize(context.Background()))
	require.NoError(t, tm.Shutdown(context.Background()))
	assert.Equal(t, "msgrelay", tm.config.ServiceName)
}

func TestStartSpan_RecordsErrorOnRecorder(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(previous)

	ctx, span := StartSpan(context.Background(), "queue.drain")
	RecordError(ctx, assert.AnError)
	assert.NotEmpty(t, GetOtelTraceID(ctx))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "queue.drain", spans[0].Name())
	assert.Len(t, spans[0].Events(), 1)
}
