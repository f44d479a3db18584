package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer()
	assert.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test")
	assert.NotNil(t, span)
	span.End()
}

func TestNoopInstruments(t *testing.T) {
	inst := NoopInstruments()
	assert.NotNil(t, inst)
	assert.NotNil(t, inst.QueryCount)
	assert.NotNil(t, inst.QueryDuration)
	assert.NotNil(t, inst.QueryErrors)
	assert.NotNil(t, inst.ToolDuration)
	assert.NotNil(t, inst.DiffDuration)
	assert.NotNil(t, inst.ExplanationsFound)

	// Should not panic.
	inst.IncrementQueryCount(context.Background())
	inst.RecordDiffDuration(context.Background(), 100.0)
	inst.RecordExplanations(context.Background(), 2)
}

func TestProvider_Nil(t *testing.T) {
	var p *Provider
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Instruments())
}

func TestProvider_FromSDK(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	p := &Provider{
		tp: sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter)),
		mp: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}

	ctx := context.Background()
	_, span := p.Tracer().Start(ctx, "diff.score")
	span.End()
	p.Instruments().RecordToolDuration(ctx, 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	assert.Equal(t, meterName, rm.ScopeMetrics[0].Scope.Name)
	require.Len(t, exporter.GetSpans(), 1)
	assert.Equal(t, tracerName, exporter.GetSpans()[0].InstrumentationScope.Name)

	assert.NoError(t, p.Shutdown(ctx))
}

func TestSpanRecording(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := tp.Tracer("test")

	ctx := context.Background()
	_, span := tracer.Start(ctx, "DiffService.Diff")
	span.SetAttributes(attribute.String("diff.stage", "score"))
	span.End()

	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "DiffService.Diff", spans[0].Name)
}

func TestInstruments_RecordDiff(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst := NewInstrumentsFromMeter(mp.Meter("test"))

	ctx := context.Background()
	inst.RecordDiffDuration(ctx, 12.5)
	inst.RecordExplanations(ctx, 2)
	inst.IncrementQueryCount(ctx)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := make(map[string]bool)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}
	assert.True(t, names["whydiff.diff.duration"])
	assert.True(t, names["whydiff.diff.explanations"])
	assert.True(t, names["whydiff.query.count"])
}
