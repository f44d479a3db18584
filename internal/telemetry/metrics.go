package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/whydiff"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	QueryCount        metric.Int64Counter
	QueryDuration     metric.Float64Histogram
	QueryErrors       metric.Int64Counter
	ToolDuration      metric.Float64Histogram
	DiffDuration      metric.Float64Histogram
	ExplanationsFound metric.Int64Histogram
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	return NewInstrumentsFromMeter(noop.NewMeterProvider().Meter(meterName))
}

// NewInstrumentsFromMeter creates the instruments on a specific meter.
func NewInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	queryCount, _ := meter.Int64Counter("whydiff.query.count",
		metric.WithDescription("Total number of generated SQL statements executed"),
	)
	queryDuration, _ := meter.Float64Histogram("whydiff.query.duration",
		metric.WithDescription("SQL statement execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("whydiff.query.errors",
		metric.WithDescription("Total number of failed SQL statements"),
	)
	toolDuration, _ := meter.Float64Histogram("whydiff.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	diffDuration, _ := meter.Float64Histogram("whydiff.diff.duration",
		metric.WithDescription("End-to-end explanation run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	explanations, _ := meter.Int64Histogram("whydiff.diff.explanations",
		metric.WithDescription("Number of explanations returned per run"),
	)

	return &Instruments{
		QueryCount:        queryCount,
		QueryDuration:     queryDuration,
		QueryErrors:       queryErrors,
		ToolDuration:      toolDuration,
		DiffDuration:      diffDuration,
		ExplanationsFound: explanations,
	}
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}

func (i *Instruments) RecordDiffDuration(ctx context.Context, ms float64) {
	i.DiffDuration.Record(ctx, ms)
}

func (i *Instruments) RecordExplanations(ctx context.Context, n int) {
	i.ExplanationsFound.Record(ctx, int64(n))
}
