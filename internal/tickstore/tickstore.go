// Package tickstore reads persisted historical market data. The simulator
// only depends on the Cursor contract; the storage schema behind it belongs
// to the ingestion pipeline.
package tickstore

import (
	"context"
	"fmt"
	"io"

	"main/internal/market"
)

// Cursor yields Quote/Trade events in non-decreasing timestamp order for one
// instrument. Next returns io.EOF when the range is exhausted.
type Cursor interface {
	Next(ctx context.Context) (market.Event, error)
}

// MemoryCursor serves ticks from a slice. It backs tests and small replays
// loaded up front from the store.
type MemoryCursor struct {
	events []market.Event
	pos    int
	lastTs int64
}

// NewMemoryCursor wraps already time-ordered events. Ordering is checked on
// read, not here.
func NewMemoryCursor(events []market.Event) *MemoryCursor {
	return &MemoryCursor{events: events}
}

// Next returns the next tick, or io.EOF. A timestamp going backwards means
// the persisted data is malformed and is reported as an error.
func (c *MemoryCursor) Next(_ context.Context) (market.Event, error) {
	if c.pos >= len(c.events) {
		return nil, io.EOF
	}
	e := c.events[c.pos]
	c.pos++
	if e.Time() < c.lastTs {
		return nil, fmt.Errorf("tickstore: non-monotonic timestamp %d after %d", e.Time(), c.lastTs)
	}
	c.lastTs = e.Time()
	return e, nil
}
