package market

import "fmt"

// OrderType describes how an order prices itself.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

// RequestKind tags the concrete type of an order request.
type RequestKind uint16

const (
	RequestUnknown RequestKind = iota
	RequestPlace
	RequestCancel
	RequestModify
)

// OrderRequest is a client-to-broker order operation. Outcomes arrive
// asynchronously as events; Submit only reports acceptance for processing.
type OrderRequest interface {
	Request() RequestKind
}

// Place submits a new order. OrderID is caller-assigned and must be unique
// among the caller's in-flight orders; brokers key idempotent submission and
// all order-state events off it.
type Place struct {
	OrderID    uint64
	Instrument Instrument
	Side       Side
	Type       OrderType
	// Price is ignored for market orders.
	Price float64
	Size  float64
}

func (p Place) Request() RequestKind { return RequestPlace }

// Validate rejects orders that no venue would accept.
func (p Place) Validate() error {
	if p.OrderID == 0 {
		return fmt.Errorf("order id is zero")
	}
	if p.Instrument == "" {
		return fmt.Errorf("instrument is empty")
	}
	if p.Side != SideBuy && p.Side != SideSell {
		return fmt.Errorf("order side is unknown")
	}
	if p.Size <= 0 {
		return fmt.Errorf("order size must be > 0")
	}
	switch p.Type {
	case OrderTypeLimit:
		if p.Price <= 0 {
			return fmt.Errorf("limit price must be > 0")
		}
	case OrderTypeMarket:
	default:
		return fmt.Errorf("order type is unknown")
	}
	return nil
}

// Cancel removes a resting order.
type Cancel struct {
	OrderID uint64
}

func (c Cancel) Request() RequestKind { return RequestCancel }

// Modify changes the price and size of a resting order. Matching is
// re-evaluated from the new values.
type Modify struct {
	OrderID  uint64
	NewPrice float64
	NewSize  float64
}

func (m Modify) Request() RequestKind { return RequestModify }
