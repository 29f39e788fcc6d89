package strategy

import (
	"math"

	"main/internal/market"
)

// LimitExecutorConfig parameterizes a NaiveLimitExecutor.
type LimitExecutorConfig struct {
	Instrument market.Instrument
	// Notional is the target position value; entry size is Notional over
	// the touch price.
	Notional    float64
	SizeDigits  int
	PriceDigits int
	// PriceOffset shifts the quote price toward the aggressive side.
	PriceOffset float64
	// HoldingMs is how long a position survives after its signal fades
	// before the executor flattens it.
	HoldingMs int64
	// EventIntervalMs throttles order flow: no requests within this many
	// milliseconds of the previous batch.
	EventIntervalMs int64
	// OrderIDOffset uniquely tags this executor instance in the low 16
	// bits of every order id it generates. Must be nonzero and below 2^16.
	OrderIDOffset uint64
}

// workingOrder is the executor's view of its single outstanding limit order.
type workingOrder struct {
	id     uint64
	side   market.Side
	price  float64
	size   float64
	filled float64
}

func (w *workingOrder) unfilled() float64 { return w.size - w.filled }

// NaiveLimitExecutor maintains at most one working limit order. On each
// signal it computes the target position, diffs it against the actual
// position, and places, amends, or cancels to close the gap. A long entry
// rests at the bid plus the offset, a short at the ask minus it; positions
// whose signal has faded are flattened after the holding window.
type NaiveLimitExecutor struct {
	cfg               LimitExecutorConfig
	sizeEps           float64
	notionalThreshold float64

	book     market.Quote
	haveBook bool

	lastSignal   Signal
	lastSignalTs int64
	lastEventTs  int64

	position float64
	placed   *workingOrder

	nextOrderBody uint64
}

// NewNaiveLimitExecutor builds an executor; the notional threshold below
// which no order is worth placing is 5% of the target notional.
func NewNaiveLimitExecutor(cfg LimitExecutorConfig) *NaiveLimitExecutor {
	if cfg.OrderIDOffset == 0 || cfg.OrderIDOffset >= 1<<16 {
		cfg.OrderIDOffset = 1
	}
	return &NaiveLimitExecutor{
		cfg:               cfg,
		sizeEps:           math.Pow(10, -float64(cfg.SizeDigits)),
		notionalThreshold: 0.05 * cfg.Notional,
	}
}

// Position returns the current signed position.
func (e *NaiveLimitExecutor) Position() float64 { return e.position }

// Update tracks the book, the position, and the working order's fate.
func (e *NaiveLimitExecutor) Update(ev market.Event) {
	switch v := ev.(type) {
	case market.Quote:
		if v.Instrument == e.cfg.Instrument {
			e.book = v
			e.haveBook = true
		}
	case market.Fill:
		if v.Side == market.SideBuy {
			e.position += v.Size
		} else {
			e.position -= v.Size
		}
		if e.placed != nil && e.placed.id == v.OrderID {
			e.placed.filled += v.Size
			if v.Full() {
				e.placed = nil
			}
		}
	case market.Reject:
		if e.placed != nil && e.placed.id == v.OrderID {
			e.placed = nil
		}
	case market.CancelAck:
		if e.placed != nil && e.placed.id == v.OrderID {
			e.placed = nil
		}
	}
}

// OnSignal diffs the target position against the current one and emits the
// order flow that closes the gap.
func (e *NaiveLimitExecutor) OnSignal(s Signal) []market.OrderRequest {
	if !e.haveBook {
		return nil
	}
	if e.book.Ts-e.lastEventTs < e.cfg.EventIntervalMs {
		return nil
	}

	target := e.idealPosition(s)
	rawSize := target - e.position
	price := e.quotePrice(rawSize)
	reqs := e.diffWorkingOrder(rawSize, price)

	e.lastSignal = s
	if s != SignalNone {
		e.lastSignalTs = e.book.Ts
	}
	if len(reqs) > 0 {
		e.lastEventTs = e.book.Ts
	}
	return reqs
}

func (e *NaiveLimitExecutor) idealPosition(s Signal) float64 {
	switch s {
	case SignalLong:
		return truncF(e.cfg.Notional/e.book.BidPrice, e.cfg.SizeDigits)
	case SignalShort:
		return -truncF(e.cfg.Notional/e.book.AskPrice, e.cfg.SizeDigits)
	default:
		if math.Abs(e.position) < e.sizeEps {
			return e.position
		}
		if e.book.Ts-e.lastSignalTs >= e.cfg.HoldingMs {
			return 0
		}
		return e.position
	}
}

func (e *NaiveLimitExecutor) quotePrice(rawSize float64) float64 {
	var price float64
	if rawSize > 0 {
		price = e.book.BidPrice + e.cfg.PriceOffset
	} else {
		price = e.book.AskPrice - e.cfg.PriceOffset
	}
	return roundF(price, e.cfg.PriceDigits)
}

// diffWorkingOrder compares the wanted order against the outstanding one and
// keeps, amends, cancels, or replaces it.
func (e *NaiveLimitExecutor) diffWorkingOrder(rawSize, price float64) []market.OrderRequest {
	if e.placed == nil {
		o := e.genOrder(rawSize, price)
		if o == nil {
			return nil
		}
		e.placed = o
		return []market.OrderRequest{e.placeRequest(o)}
	}

	if math.Abs(rawSize) < e.sizeEps {
		id := e.placed.id
		e.placed = nil
		return []market.OrderRequest{market.Cancel{OrderID: id}}
	}

	newSide, newSize := sideSize(rawSize)
	if newSide == e.placed.side {
		if math.Abs(e.placed.unfilled()-newSize) >= e.sizeEps || e.placed.price != price {
			e.placed.size = e.placed.filled + newSize
			e.placed.price = price
			return []market.OrderRequest{market.Modify{
				OrderID:  e.placed.id,
				NewPrice: price,
				NewSize:  newSize,
			}}
		}
		// Keep the original resting order until the signal flips.
		return nil
	}

	reqs := []market.OrderRequest{market.Cancel{OrderID: e.placed.id}}
	o := e.genOrder(rawSize, price)
	e.placed = o
	if o != nil {
		reqs = append(reqs, e.placeRequest(o))
	}
	return reqs
}

func (e *NaiveLimitExecutor) genOrder(rawSize, price float64) *workingOrder {
	if math.Abs(rawSize) < e.sizeEps {
		return nil
	}
	if math.Abs(rawSize)*price < e.notionalThreshold {
		return nil
	}
	side, size := sideSize(rawSize)
	return &workingOrder{
		id:    e.nextOrderID(),
		side:  side,
		price: price,
		size:  size,
	}
}

func (e *NaiveLimitExecutor) placeRequest(o *workingOrder) market.Place {
	return market.Place{
		OrderID:    o.id,
		Instrument: e.cfg.Instrument,
		Side:       o.side,
		Type:       market.OrderTypeLimit,
		Price:      o.price,
		Size:       o.size,
	}
}

// nextOrderID packs a per-executor counter above the instance tag, keeping
// ids unique across concurrently running executors.
func (e *NaiveLimitExecutor) nextOrderID() uint64 {
	body := e.nextOrderBody
	e.nextOrderBody++
	return body<<16 | e.cfg.OrderIDOffset
}

func sideSize(rawSize float64) (market.Side, float64) {
	if rawSize >= 0 {
		return market.SideBuy, rawSize
	}
	return market.SideSell, -rawSize
}

// truncF cuts x to the given number of decimal digits, toward zero.
func truncF(x float64, digits int) float64 {
	factor := math.Pow(10, float64(digits))
	return math.Trunc(x*factor) / factor
}

// roundF rounds x to the given number of decimal digits.
func roundF(x float64, digits int) float64 {
	factor := math.Pow(10, float64(digits))
	return math.Round(x*factor) / factor
}
