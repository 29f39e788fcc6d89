package broker

import (
	"errors"

	"main/internal/market"
)

var (
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill size")
)

// OrderStatus tracks the lifecycle of an order.
type OrderStatus uint16

const (
	StatusUnknown OrderStatus = iota
	// StatusPending: submitted, no acknowledgment yet.
	StatusPending
	// StatusOpen: acknowledged and resting.
	StatusOpen
	StatusPartFilled
	StatusFilled
	StatusCancelled
	StatusRejected
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Order is the broker's view of one in-flight order. It is never handed to
// the strategy directly; state changes reach the client as events.
type Order struct {
	ID         uint64
	Instrument market.Instrument
	Side       market.Side
	Type       market.OrderType
	Price      float64
	Size       float64
	Remaining  float64
	Status     OrderStatus
	// AcceptedTs is the broker timestamp at acceptance. The simulator uses
	// it to forbid look-ahead fills.
	AcceptedTs int64
}

// Table owns the in-flight order set for one broker instance. Transitions
// are driven exclusively by broker-internal logic.
type Table struct {
	orders map[uint64]*Order
}

// NewTable creates an empty order table.
func NewTable() *Table {
	return &Table{orders: make(map[uint64]*Order)}
}

// Get returns the current order state.
func (t *Table) Get(id uint64) (*Order, bool) {
	o, ok := t.orders[id]
	return o, ok
}

// Add registers a new order in Pending state.
func (t *Table) Add(p market.Place, ts int64) (*Order, error) {
	if p.OrderID == 0 {
		return nil, ErrUnknownOrder
	}
	if _, ok := t.orders[p.OrderID]; ok {
		return nil, ErrDuplicateOrder
	}
	o := &Order{
		ID:         p.OrderID,
		Instrument: p.Instrument,
		Side:       p.Side,
		Type:       p.Type,
		Price:      p.Price,
		Size:       p.Size,
		Remaining:  p.Size,
		Status:     StatusPending,
		AcceptedTs: ts,
	}
	t.orders[o.ID] = o
	return o, nil
}

// MarkOpen transitions a pending order to Open on acknowledgment.
func (t *Table) MarkOpen(id uint64) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.Status != StatusPending {
		return o, ErrInvalidTransition
	}
	o.Status = StatusOpen
	return o, nil
}

// ApplyFill reduces the remaining size and moves the order to PartFilled or
// Filled.
func (t *Table) ApplyFill(id uint64, size float64) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.Status.Terminal() {
		return o, ErrInvalidTransition
	}
	if size <= 0 || size > o.Remaining {
		return o, ErrInvalidFill
	}
	o.Remaining -= size
	if o.Remaining <= 0 {
		o.Remaining = 0
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartFilled
	}
	return o, nil
}

// Amend replaces price and remaining size of a resting order.
func (t *Table) Amend(id uint64, price, size float64) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.Status.Terminal() {
		return o, ErrInvalidTransition
	}
	if price > 0 {
		o.Price = price
	}
	if size > 0 {
		o.Size = size
		o.Remaining = size
	}
	return o, nil
}

// MarkCancelled transitions a non-terminal order to Cancelled.
func (t *Table) MarkCancelled(id uint64) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.Status.Terminal() {
		return o, ErrInvalidTransition
	}
	o.Status = StatusCancelled
	return o, nil
}

// MarkRejected transitions a non-terminal order to Rejected.
func (t *Table) MarkRejected(id uint64) (*Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if o.Status.Terminal() {
		return o, ErrInvalidTransition
	}
	o.Status = StatusRejected
	return o, nil
}

// Open returns copies of all non-terminal orders.
func (t *Table) Open() []Order {
	out := make([]Order, 0, len(t.orders))
	for _, o := range t.orders {
		if !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out
}
