package market

// Instrument identifies a tradable symbol, e.g. "ETH-USDT-SWAP".
type Instrument string

// Side describes trade or order direction.
type Side uint16

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// ExecType distinguishes maker and taker executions.
type ExecType uint16

const (
	ExecUnknown ExecType = iota
	ExecMaker
	ExecTaker
)

// EventKind tags the concrete type of a broker event.
type EventKind uint16

const (
	EventUnknown EventKind = iota
	EventQuote
	EventTrade
	EventOrderAck
	EventFill
	EventReject
	EventCancelAck
)

// Event is a broker-to-client message. Timestamps are Unix milliseconds.
// A broker delivers events with non-decreasing timestamps; at equal
// timestamps market data sorts before order-state events.
type Event interface {
	Kind() EventKind
	Time() int64
}

// Quote is a best-bid/offer update for one instrument.
type Quote struct {
	Instrument Instrument
	Ts         int64
	BidPrice   float64
	BidSize    float64
	AskPrice   float64
	AskSize    float64
}

func (q Quote) Kind() EventKind { return EventQuote }
func (q Quote) Time() int64     { return q.Ts }

// Mid returns the size-weighted unbiased price.
func (q Quote) Mid() float64 {
	total := q.BidSize + q.AskSize
	if total == 0 {
		return (q.BidPrice + q.AskPrice) / 2
	}
	return (q.BidPrice*q.AskSize + q.AskPrice*q.BidSize) / total
}

// Spread returns the bid/ask spread.
func (q Quote) Spread() float64 { return q.AskPrice - q.BidPrice }

// Trade is a public trade print for one instrument.
type Trade struct {
	Instrument Instrument
	Ts         int64
	Price      float64
	Size       float64
	Side       Side
	TradeID    string
}

func (t Trade) Kind() EventKind { return EventTrade }
func (t Trade) Time() int64     { return t.Ts }

// OrderAck confirms a Place was accepted and is resting.
type OrderAck struct {
	OrderID uint64
	Ts      int64
}

func (a OrderAck) Kind() EventKind { return EventOrderAck }
func (a OrderAck) Time() int64     { return a.Ts }

// Fill is a partial or full execution of a resting order.
type Fill struct {
	OrderID    uint64
	Instrument Instrument
	Ts         int64
	Price      float64
	Size       float64
	// Remaining is the unfilled size after this execution. Zero means the
	// order is now terminal.
	Remaining float64
	Side      Side
	Exec      ExecType
}

func (f Fill) Kind() EventKind { return EventFill }
func (f Fill) Time() int64     { return f.Ts }

// Full reports whether this fill completed the order.
func (f Fill) Full() bool { return f.Remaining == 0 }

// Reject reports a per-order failure. It is recoverable: the run continues.
type Reject struct {
	OrderID uint64
	Ts      int64
	Reason  string
}

func (r Reject) Kind() EventKind { return EventReject }
func (r Reject) Time() int64     { return r.Ts }

// CancelAck confirms a Cancel removed a resting order.
type CancelAck struct {
	OrderID uint64
	Ts      int64
}

func (c CancelAck) Kind() EventKind { return EventCancelAck }
func (c CancelAck) Time() int64     { return c.Ts }

// precedence orders event kinds at equal timestamps: book updates first, so
// order-state notifications they caused are observed after them.
func precedence(k EventKind) int {
	switch k {
	case EventQuote, EventTrade:
		return 0
	default:
		return 1
	}
}

// EventInstrument returns the instrument for market-data events, empty for
// order-state events.
func EventInstrument(e Event) Instrument {
	switch v := e.(type) {
	case Quote:
		return v.Instrument
	case Trade:
		return v.Instrument
	case Fill:
		return v.Instrument
	default:
		return ""
	}
}

// Less defines the total order on events: timestamp, then kind precedence,
// then instrument id for a stable merge.
func Less(a, b Event) bool {
	if a.Time() != b.Time() {
		return a.Time() < b.Time()
	}
	pa, pb := precedence(a.Kind()), precedence(b.Kind())
	if pa != pb {
		return pa < pb
	}
	return EventInstrument(a) < EventInstrument(b)
}
