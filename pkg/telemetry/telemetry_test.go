package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpanAttributesMerge(t *testing.T) {
	base := NewSpanAttributes(Fuzzing).WithBenchmark("rhino")
	base.Merge(EmptySpanAttributes().
		WithBenchmark("ant").
		WithTechnique("zest").
		WithExtraAttribute("k", 3))

	attrs := attribute.NewSet(base.Attributes()...)
	v, ok := attrs.Value("eval.benchmark")
	require.True(t, ok)
	assert.Equal(t, "rhino", v.AsString(), "set values are not overwritten")
	v, ok = attrs.Value("eval.technique")
	require.True(t, ok)
	assert.Equal(t, "zest", v.AsString())
	v, ok = attrs.Value("k")
	require.True(t, ok)
	assert.Equal(t, int64(3), v.AsInt64())
	v, ok = attrs.Value("eval.action.category")
	require.True(t, ok)
	assert.Equal(t, "fuzzing", v.AsString())
}

func TestFactoryWithoutTelemetry(t *testing.T) {
	factory := NewTracerFactory(TracerFactoryParams{})
	tracer := factory.NewTracer(context.Background(), "span")
	assert.IsType(t, &DummyTracer{}, tracer)
	assert.Empty(t, tracer.Export())
	assert.IsType(t, &DummyTracer{}, FromContext(context.Background()))
}

func TestTelemetryTracerRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	root := NewTelemetryTracer(context.Background(), provider.Tracer("test"), "trial")
	root.WithAttributes(NewSpanAttributes(Fuzzing).WithCampaignID("rhino-zest-results-0"))
	root.Start()
	child := root.Spawn("analyze")
	child.Start()
	child.AddEvent("first_failure", NewEventAttributes(map[string]string{"file": "id_000000"}))
	child.End()
	root.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "analyze", ended[0].Name())
	assert.Equal(t, "trial", ended[1].Name())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
	require.Len(t, ended[0].Events(), 1)
}
