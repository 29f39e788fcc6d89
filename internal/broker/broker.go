// Package broker defines the contract shared by the historical-replay
// simulator and the live exchange relay, plus the order lifecycle table both
// maintain. The engine is identical regardless of which variant is plugged
// in.
package broker

import (
	"context"
	"errors"
	"fmt"

	"main/internal/market"
)

// ErrStreamClosed reports normal end of the event stream: historical replay
// is complete, or the live connection was permanently closed.
var ErrStreamClosed = errors.New("broker: event stream closed")

// Broker emits a time-ordered sequence of market events and accepts order
// requests. Submit acceptance says nothing about the order's outcome;
// terminal outcomes arrive asynchronously through NextEvent. Any error from
// Submit is fatal to the run; per-order failures are delivered as Reject
// events instead.
type Broker interface {
	// NextEvent blocks until the next event is available. It returns
	// ErrStreamClosed once the stream is exhausted.
	NextEvent(ctx context.Context) (market.Event, error)

	// Submit enqueues an order operation for processing.
	Submit(ctx context.Context, req market.OrderRequest) error

	// OpenOrders snapshots the non-terminal orders, for end-of-run
	// reconciliation.
	OpenOrders() []Order

	// Close releases the event source. NextEvent returns ErrStreamClosed
	// after the buffered events drain.
	Close() error
}

// FatalError marks a broker failure that must stop the engine run, carrying
// the component and order/event context for reconciliation.
type FatalError struct {
	Component string
	OrderID   uint64
	Err       error
}

func (e *FatalError) Error() string {
	if e.OrderID != 0 {
		return fmt.Sprintf("%s: order %d: %v", e.Component, e.OrderID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }
