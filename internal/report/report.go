// Package report accumulates the end-of-run artifacts of a simulated run:
// a time-binned equity curve and the realized fill trace.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"

	"main/internal/market"
)

// Record is one equity sample on the bin grid.
type Record struct {
	Ts    int64
	Value float64
}

// RealizedEvent is one realized execution, in delivery order.
type RealizedEvent struct {
	Ts   int64
	Fill market.Fill
}

// Reporter bins portfolio values onto a fixed time grid, carrying the last
// observed value forward across empty bins.
type Reporter struct {
	history []Record
	binMs   int64

	// lastBin is the left edge of the bin the buffered value belongs to.
	lastBin     int64
	buf         float64
	initialized bool
	ended       bool

	realized []RealizedEvent
}

// NewReporter creates a reporter with the given bin width in milliseconds.
func NewReporter(binMs int64) *Reporter {
	if binMs <= 0 {
		binMs = 1
	}
	return &Reporter{binMs: binMs}
}

// Insert records a portfolio value observation at ts.
func (r *Reporter) Insert(ts int64, value float64) {
	if !r.initialized {
		r.lastBin = ts / r.binMs * r.binMs
		r.buf = value
		r.initialized = true
		return
	}
	if ts > r.lastBin+r.binMs {
		for r.lastBin+r.binMs < ts {
			r.publishBuf()
		}
	}
	r.buf = value
}

// Realize appends a fill to the realized trace.
func (r *Reporter) Realize(f market.Fill) {
	r.realized = append(r.realized, RealizedEvent{Ts: f.Ts, Fill: f})
}

// End flushes the buffered value. Ending an empty reporter or ending twice
// is a no-op.
func (r *Reporter) End() {
	if r.ended || !r.initialized {
		return
	}
	r.ended = true
	r.publishBuf()
}

func (r *Reporter) publishBuf() {
	bin := r.lastBin + r.binMs
	r.history = append(r.history, Record{Ts: bin, Value: r.buf})
	r.lastBin = bin
}

// Records returns the equity curve accumulated so far.
func (r *Reporter) Records() []Record { return r.history }

// Realized returns the realized fill trace in delivery order.
func (r *Reporter) Realized() []RealizedEvent { return r.realized }

// LastValue returns the most recent binned value.
func (r *Reporter) LastValue() (float64, bool) {
	if len(r.history) == 0 {
		return 0, false
	}
	return r.history[len(r.history)-1].Value, true
}

// SharpeRatio computes mean/stddev over bin-to-bin returns. It returns NaN
// with fewer than three records.
func (r *Reporter) SharpeRatio() float64 {
	if len(r.history) < 3 {
		return math.NaN()
	}
	returns := make([]float64, 0, len(r.history)-1)
	for i := 1; i < len(r.history); i++ {
		prev := r.history[i-1].Value
		if prev == 0 {
			return math.NaN()
		}
		returns = append(returns, (r.history[i].Value-prev)/prev)
	}

	var mean float64
	for _, v := range returns {
		mean += v
	}
	mean /= float64(len(returns))

	var variance float64
	for _, v := range returns {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return math.NaN()
	}
	return mean / std
}

// WriteCSV serializes the equity curve as ts,value rows.
func (r *Reporter) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ts", "value"}); err != nil {
		return err
	}
	for _, rec := range r.history {
		row := []string{
			fmt.Sprintf("%d", rec.Ts),
			fmt.Sprintf("%g", rec.Value),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
