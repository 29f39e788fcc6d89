package report

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/market"
)

func TestReporterSameBinUpdatesBuffer(t *testing.T) {
	r := NewReporter(100)
	r.Insert(150, 10.0)
	r.Insert(180, 15.0)

	// Second value in the same bin only replaces the buffer.
	assert.Empty(t, r.Records())

	r.End()
	records := r.Records()
	require.Len(t, records, 1)
	assert.Equal(t, Record{Ts: 200, Value: 15.0}, records[0])
}

func TestReporterCarriesValueAcrossBins(t *testing.T) {
	r := NewReporter(100)
	r.Insert(150, 10.0)
	r.Insert(450, 30.0)

	records := r.Records()
	require.Len(t, records, 3)
	assert.Equal(t, Record{Ts: 200, Value: 10.0}, records[0])
	assert.Equal(t, Record{Ts: 300, Value: 10.0}, records[1])
	assert.Equal(t, Record{Ts: 400, Value: 10.0}, records[2])

	r.End()
	assert.Equal(t, Record{Ts: 500, Value: 30.0}, r.Records()[3])
}

func TestReporterEndIsIdempotent(t *testing.T) {
	r := NewReporter(100)
	r.Insert(150, 10.0)
	r.End()
	r.End()

	records := r.Records()
	require.Len(t, records, 1)
	assert.Equal(t, Record{Ts: 200, Value: 10.0}, records[0])

	v, ok := r.LastValue()
	assert.True(t, ok)
	assert.Equal(t, 10.0, v)
}

func TestReporterSharpeRatio(t *testing.T) {
	r := NewReporter(100)
	r.Insert(50, 100.0)
	r.Insert(150, 110.0)
	r.Insert(250, 99.0)
	r.Insert(350, 120.0)
	r.End()

	sharpe := r.SharpeRatio()
	assert.False(t, math.IsNaN(sharpe))

	// Too few records yields NaN rather than a misleading number.
	short := NewReporter(100)
	short.Insert(50, 100.0)
	short.End()
	assert.True(t, math.IsNaN(short.SharpeRatio()))
}

func TestReporterWriteCSV(t *testing.T) {
	r := NewReporter(100)
	r.Insert(50, 100.0)
	r.Insert(150, 101.5)
	r.End()

	var sb strings.Builder
	require.NoError(t, r.WriteCSV(&sb))

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ts,value", lines[0])
	assert.Equal(t, "100,100", lines[1])
	assert.Equal(t, "200,101.5", lines[2])
}

func TestReporterRealizedTrace(t *testing.T) {
	r := NewReporter(100)
	r.Realize(market.Fill{OrderID: 1, Ts: 10, Price: 100, Size: 2})
	r.Realize(market.Fill{OrderID: 2, Ts: 20, Price: 99, Size: 1})

	trace := r.Realized()
	require.Len(t, trace, 2)
	assert.Equal(t, int64(10), trace[0].Ts)
	assert.Equal(t, uint64(2), trace[1].Fill.OrderID)
}
