package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestCtxAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "reservation-service", "debug")
	defer Init("test", "info")

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	Ctx(ctx).Info().Str("order_id", "o-1").Msg("reserved")
	span.End()

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "reservation-service", line["service"])
	assert.Equal(t, "o-1", line["order_id"])
	assert.Equal(t, span.SpanContext().TraceID().String(), line["trace_id"])
}

func TestLevelFilteringAndFallback(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "svc", "warn")
	L().Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	InitWithWriter(&buf, "svc", "nonsense")
	Ctx(context.Background()).Info().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
	Init("test", "info")
}
