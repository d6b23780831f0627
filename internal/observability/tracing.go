package observability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/goldengai/venuesync/observability"

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{
		attribute.String("service.component", service),
		attribute.String("service.operation", operation),
	}
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append(base, attrs...)...),
	)
}

// StartClientSpan starts a span for an outbound remote call
func StartClientSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "remote."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// TraceDB wraps sql.DB with a span per statement
type TraceDB struct {
	db *sql.DB
}

// NewTraceDB creates a traced database wrapper
func NewTraceDB(db *sql.DB) *TraceDB {
	return &TraceDB{db: db}
}

func (t *TraceDB) start(ctx context.Context, name, query string) (context.Context, trace.Span) {
	return StartSpan(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "sqlite"),
			attribute.String("db.statement", truncateQuery(query)),
		),
	)
}

// QueryContext executes a query with tracing
func (t *TraceDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	ctx, span := t.start(ctx, "DB Query", query)
	defer span.End()

	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	span.SetAttributes(attribute.Int64("db.query_duration_ms", time.Since(start).Milliseconds()))

	if err != nil {
		RecordError(span, err)
	} else {
		SetSuccess(span)
	}
	return rows, err
}

// ExecContext executes a statement with tracing
func (t *TraceDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := t.start(ctx, "DB Exec", query)
	defer span.End()

	start := time.Now()
	result, err := t.db.ExecContext(ctx, query, args...)
	span.SetAttributes(attribute.Int64("db.query_duration_ms", time.Since(start).Milliseconds()))

	if err != nil {
		RecordError(span, err)
		return result, err
	}
	SetSuccess(span)
	if n, raErr := result.RowsAffected(); raErr == nil {
		span.SetAttributes(attribute.Int64("db.rows_affected", n))
	}
	return result, nil
}

// QueryRowContext executes a single-row query with tracing.
// The span ends before the row is scanned.
func (t *TraceDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	ctx, span := t.start(ctx, "DB QueryRow", query)
	defer span.End()
	return t.db.QueryRowContext(ctx, query, args...)
}

// DB returns the underlying database connection
func (t *TraceDB) DB() *sql.DB {
	return t.db
}

func truncateQuery(query string) string {
	if len(query) > 500 {
		return query[:500] + "..."
	}
	return query
}

// SyncMetrics holds the sync engine instruments
type SyncMetrics struct {
	runs          metric.Int64Counter
	phaseDuration metric.Float64Histogram
	phaseItems    metric.Int64Counter
	mediaUploads  metric.Int64Counter
	mediaBytes    metric.Int64Counter
}

// NewSyncMetrics creates sync metric instruments on the global meter
func NewSyncMetrics() (*SyncMetrics, error) {
	meter := otel.Meter(instrumentationName)

	runs, err := meter.Int64Counter(
		"venuesync.sync.runs",
		metric.WithDescription("Sync runs by mode and result"),
		metric.WithUnit("{runs}"),
	)
	if err != nil {
		return nil, err
	}

	phaseDuration, err := meter.Float64Histogram(
		"venuesync.sync.phase.duration",
		metric.WithDescription("Sync phase duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	phaseItems, err := meter.Int64Counter(
		"venuesync.sync.phase.items",
		metric.WithDescription("Items handled per sync phase by outcome"),
		metric.WithUnit("{items}"),
	)
	if err != nil {
		return nil, err
	}

	mediaUploads, err := meter.Int64Counter(
		"venuesync.media.uploads",
		metric.WithDescription("Photo uploads to the remote store"),
		metric.WithUnit("{uploads}"),
	)
	if err != nil {
		return nil, err
	}

	mediaBytes, err := meter.Int64Counter(
		"venuesync.media.bytes",
		metric.WithDescription("Encoded photo bytes stored locally"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		runs:          runs,
		phaseDuration: phaseDuration,
		phaseItems:    phaseItems,
		mediaUploads:  mediaUploads,
		mediaBytes:    mediaBytes,
	}, nil
}

// RecordRun counts a finished sync run; result is "ok", "partial" or "failed"
func (m *SyncMetrics) RecordRun(ctx context.Context, mode, result string) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sync_mode", mode),
		attribute.String("result", result),
	))
}

// RecordPhase records the duration and item counts of a phase
func (m *SyncMetrics) RecordPhase(ctx context.Context, phase string, d time.Duration, successful, failed int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("sync_phase", phase))
	m.phaseDuration.Record(ctx, float64(d.Milliseconds()), attrs)
	m.phaseItems.Add(ctx, int64(successful), metric.WithAttributes(
		attribute.String("sync_phase", phase), attribute.String("outcome", "successful")))
	m.phaseItems.Add(ctx, int64(failed), metric.WithAttributes(
		attribute.String("sync_phase", phase), attribute.String("outcome", "failed")))
}

// RecordUpload records a media upload attempt
func (m *SyncMetrics) RecordUpload(ctx context.Context, size int64, uploaded bool) {
	if m == nil {
		return
	}
	m.mediaUploads.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", uploaded)))
	m.mediaBytes.Add(ctx, size)
}
