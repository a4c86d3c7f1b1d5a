package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/attribute"
	"github.com/roach88/querykit/internal/ir"
	"github.com/roach88/querykit/internal/memstore"
	"github.com/roach88/querykit/internal/queryset"
	"github.com/roach88/querykit/internal/testutil"
)

func instrumented(c *Collector) testutil.Factory {
	return func(t *testing.T, ds testutil.Dataset) queryset.Backend[ir.IRObject] {
		s := memstore.New()
		require.NoError(t, s.Define(ds.Schema))
		s.Insert(ds.Schema.Entity, ds.Records...)
		return Instrument[ir.IRObject](s, c)
	}
}

func TestConformance(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	testutil.RunBackendConformance(t, instrumented(c))
}

func TestBackend_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	c := NewCollector(prometheus.NewRegistry())
	ds := testutil.People()
	b := instrumented(c)(t, ds)
	qs := queryset.New(b, ds.Descriptor())
	team := attribute.New("team")

	records, err := qs.Filter(team.EqualTo(ir.IRString("red"))).All(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	_, err = qs.Count(ctx)
	require.NoError(t, err)

	n, err := qs.Filter(team.EqualTo(ir.IRString("green"))).Delete(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = qs.Filter(attribute.New("nope").IsNull()).All(ctx)
	require.Error(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(c.OperationsTotal.WithLabelValues("Person", "execute", "ok")))
	assert.Equal(t, 2.0, promtest.ToFloat64(c.RecordsTotal.WithLabelValues("Person", "execute")))
	assert.Equal(t, 5.0, promtest.ToFloat64(c.RecordsTotal.WithLabelValues("Person", "count")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.RecordsTotal.WithLabelValues("Person", "delete")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.CompileErrorsTotal.WithLabelValues(string(queryset.ErrCodeUnknownField))))
	assert.Equal(t, 3, promtest.CollectAndCount(c.OperationDuration))
}

func TestBackend_Unwrap(t *testing.T) {
	s := memstore.New()
	b := Instrument[ir.IRObject](s, NewCollector(prometheus.NewRegistry()))
	assert.Same(t, s, b.Unwrap())
}
