// Package metrics instruments queryset backends with Prometheus counters
// and histograms.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/querykit/internal/queryir"
	"github.com/roach88/querykit/internal/queryset"
)

// Collector holds the querykit metric vectors of one registry.
type Collector struct {
	// OperationsTotal counts backend calls by entity, operation and status.
	OperationsTotal *prometheus.CounterVec
	// OperationDuration is the latency of backend execution calls.
	OperationDuration *prometheus.HistogramVec
	// RecordsTotal counts records returned, counted or deleted.
	RecordsTotal *prometheus.CounterVec
	// CompileErrorsTotal counts rejected fetches by error code.
	CompileErrorsTotal *prometheus.CounterVec
}

// NewCollector registers the metric vectors with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_backend_operations_total",
				Help: "Total number of backend operations",
			},
			[]string{"entity", "operation", "status"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "querykit_backend_operation_duration_seconds",
				Help:    "Backend operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RecordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_records_total",
				Help: "Records returned, counted or deleted",
			},
			[]string{"entity", "operation"},
		),
		CompileErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querykit_compile_errors_total",
				Help: "Fetches rejected while compiling",
			},
			[]string{"code"},
		),
	}
}

// Backend decorates a queryset.Backend with metrics.
type Backend[T any] struct {
	next queryset.Backend[T]
	c    *Collector
}

var _ queryset.Backend[struct{}] = (*Backend[struct{}])(nil)

// Instrument wraps next.
func Instrument[T any](next queryset.Backend[T], c *Collector) *Backend[T] {
	return &Backend[T]{next: next, c: c}
}

// Unwrap returns the decorated backend.
func (b *Backend[T]) Unwrap() queryset.Backend[T] { return b.next }

func (b *Backend[T]) Compile(desc queryir.Descriptor, fetch queryir.Fetch) (queryset.FetchSpec, error) {
	spec, err := b.next.Compile(desc, fetch)
	if err != nil {
		code := "unknown"
		var qe *queryset.QueryError
		if errors.As(err, &qe) {
			code = string(qe.Code)
		}
		b.c.CompileErrorsTotal.WithLabelValues(code).Inc()
		return nil, err
	}
	return spec, nil
}

func (b *Backend[T]) Decompose(spec queryset.FetchSpec) (queryir.Descriptor, queryir.Fetch, error) {
	return b.next.Decompose(spec)
}

func (b *Backend[T]) ResolveFieldPath(desc queryir.Descriptor, path queryir.Path) (queryir.FieldRef, error) {
	return b.next.ResolveFieldPath(desc, path)
}

func (b *Backend[T]) Identify(record T) string {
	return b.next.Identify(record)
}

// observe records one execution call.
func (b *Backend[T]) observe(spec queryset.FetchSpec, op string, start time.Time, n int, err error) {
	entity := "unknown"
	if desc, _, derr := b.next.Decompose(spec); derr == nil {
		entity = desc.Entity
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	b.c.OperationsTotal.WithLabelValues(entity, op, status).Inc()
	b.c.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		b.c.RecordsTotal.WithLabelValues(entity, op).Add(float64(n))
	}
}

func (b *Backend[T]) Execute(ctx context.Context, spec queryset.FetchSpec) ([]T, error) {
	start := time.Now()
	records, err := b.next.Execute(ctx, spec)
	b.observe(spec, "execute", start, len(records), err)
	return records, err
}

func (b *Backend[T]) ExecuteCount(ctx context.Context, spec queryset.FetchSpec) (int, error) {
	start := time.Now()
	n, err := b.next.ExecuteCount(ctx, spec)
	b.observe(spec, "count", start, n, err)
	return n, err
}

func (b *Backend[T]) ExecuteDelete(ctx context.Context, spec queryset.FetchSpec) (int, error) {
	start := time.Now()
	n, err := b.next.ExecuteDelete(ctx, spec)
	b.observe(spec, "delete", start, n, err)
	return n, err
}
