package obs

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Skryldev/findmybuddy/db"
)

const instrumentationName = "github.com/Skryldev/findmybuddy/db"

// DBTracer implements db.Tracer with one client span per statement.
type DBTracer struct {
	tracer trace.Tracer
	system string
}

// NewDBTracer returns a tracer bound to the global provider. system is the
// db.system attribute, e.g. "mysql".
func NewDBTracer(system string) *DBTracer {
	return &DBTracer{tracer: otel.Tracer(instrumentationName), system: system}
}

func (t *DBTracer) TraceQuery(ctx context.Context, query string, start time.Time, err error) {
	_, span := t.tracer.Start(ctx, operation(query),
		trace.WithTimestamp(start),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", t.system),
			attribute.String("db.statement", query),
		),
	)
	if err != nil && !db.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// DBMetrics implements db.MetricsCollector with a duration histogram and an
// error counter.
type DBMetrics struct {
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewDBMetrics registers the store instruments on mp, or on the global meter
// provider when mp is nil.
func NewDBMetrics(mp metric.MeterProvider) (*DBMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)
	duration, err := meter.Float64Histogram("db.query.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Statement latency including pool wait"),
	)
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("db.query.errors",
		metric.WithDescription("Statements that returned an error other than no rows"),
	)
	if err != nil {
		return nil, err
	}
	return &DBMetrics{duration: duration, errors: errs}, nil
}

func (m *DBMetrics) RecordQuery(ctx context.Context, query string, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("db.operation", operation(query)))
	m.duration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
	if err != nil && !db.IsNotFound(err) {
		m.errors.Add(ctx, 1, attrs)
	}
}

// operation returns the leading SQL keyword, e.g. "SELECT".
func operation(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "SQL"
	}
	return strings.ToUpper(fields[0])
}

var (
	_ db.Tracer           = (*DBTracer)(nil)
	_ db.MetricsCollector = (*DBMetrics)(nil)
)
