// Package sim replays historical ticks through a deterministic matching
// broker. Given the same tick stream and the same submitted requests it
// produces byte-identical event sequences, fills, and equity curves, so a
// strategy debugged here behaves the same against the live relay.
package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"main/internal/broker"
	"main/internal/market"
	"main/internal/report"
	"main/internal/tickstore"
)

// Config parameterizes one replay run.
type Config struct {
	// Cash is the starting balance.
	Cash  float64
	Costs CostModel
	// Policy bounds per-tick fill sizes; FillDisplayedSize unless set.
	Policy FillPolicy
	// LatencyMs delays order eligibility: a request submitted while the
	// replay clock reads t can only match ticks stamped t+LatencyMs or
	// later.
	LatencyMs int64
	// ReportBinMs is the equity curve bin width; 1000 unless set.
	ReportBinMs int64
}

// Broker is the historical-replay implementation of broker.Broker. It is
// single-threaded by design: all matching happens inside NextEvent and
// Submit on the caller's goroutine.
type Broker struct {
	cfg    Config
	cursor tickstore.Cursor
	table  *broker.Table
	acct   *Account
	rep    *report.Reporter

	// queue holds events synthesized but not yet delivered. A tick is
	// enqueued before the fills it causes.
	queue []market.Event
	books map[market.Instrument]market.Quote
	// resting keeps candidate order ids in submission order so matching is
	// deterministic.
	resting []uint64
	now     int64
	closed  bool
}

// New builds a replay broker over a tick cursor.
func New(cursor tickstore.Cursor, cfg Config) *Broker {
	if cfg.ReportBinMs <= 0 {
		cfg.ReportBinMs = 1000
	}
	return &Broker{
		cfg:    cfg,
		cursor: cursor,
		table:  broker.NewTable(),
		acct:   NewAccount(cfg.Cash),
		rep:    report.NewReporter(cfg.ReportBinMs),
		books:  make(map[market.Instrument]market.Quote),
	}
}

// Account exposes the simulated account for end-of-run inspection.
func (b *Broker) Account() *Account { return b.acct }

// Report exposes the equity curve and realized fill trace.
func (b *Broker) Report() *report.Reporter { return b.rep }

// NextEvent delivers the buffered event if any, otherwise advances the
// cursor by one tick, matches resting orders against it, and delivers the
// tick. Fills caused by a tick always arrive after the tick itself.
func (b *Broker) NextEvent(ctx context.Context) (market.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue = b.queue[1:]
			return ev, nil
		}
		if b.closed {
			return nil, broker.ErrStreamClosed
		}

		tick, err := b.cursor.Next(ctx)
		if errors.Is(err, io.EOF) {
			b.finish()
			continue
		}
		if err != nil {
			return nil, &broker.FatalError{Component: "sim", Err: err}
		}
		if tick.Time() < b.now {
			return nil, &broker.FatalError{
				Component: "sim",
				Err:       fmt.Errorf("tick time went backwards: %d after %d", tick.Time(), b.now),
			}
		}
		b.now = tick.Time()
		b.queue = append(b.queue, tick)

		switch v := tick.(type) {
		case market.Quote:
			b.books[v.Instrument] = v
			b.matchQuote(v)
			b.rep.Insert(b.now, b.acct.Equity(b.books))
		case market.Trade:
			b.matchTrade(v)
		}
	}
}

// Submit processes the request synchronously against the current replay
// clock. Per-order failures become Reject events; Submit itself only fails
// on broker-level faults.
func (b *Broker) Submit(_ context.Context, req market.OrderRequest) error {
	if b.closed {
		return &broker.FatalError{Component: "sim", Err: broker.ErrStreamClosed}
	}
	switch r := req.(type) {
	case market.Place:
		b.place(r)
	case market.Cancel:
		b.cancelOrder(r)
	case market.Modify:
		b.modify(r)
	default:
		return &broker.FatalError{
			Component: "sim",
			Err:       fmt.Errorf("unsupported request kind %d", req.Request()),
		}
	}
	return nil
}

// OpenOrders snapshots non-terminal orders, sorted by id.
func (b *Broker) OpenOrders() []broker.Order {
	out := b.table.Open()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close stops the replay. Already-buffered events still drain through
// NextEvent.
func (b *Broker) Close() error {
	b.finish()
	return nil
}

func (b *Broker) finish() {
	if b.closed {
		return
	}
	b.closed = true
	b.rep.End()
}

func (b *Broker) place(p market.Place) {
	if err := p.Validate(); err != nil {
		b.reject(p.OrderID, err.Error())
		return
	}
	o, err := b.table.Add(p, b.now+b.cfg.LatencyMs)
	if err != nil {
		b.reject(p.OrderID, err.Error())
		return
	}
	if _, err := b.table.MarkOpen(o.ID); err != nil {
		b.reject(o.ID, err.Error())
		return
	}
	b.queue = append(b.queue, market.OrderAck{OrderID: o.ID, Ts: b.now})

	if p.Type == market.OrderTypeMarket && b.cfg.LatencyMs == 0 {
		if !b.fillMarketOrder(o) {
			b.table.MarkRejected(o.ID)
			b.reject(o.ID, "no opposing quote")
		}
		return
	}
	b.resting = append(b.resting, o.ID)
}

func (b *Broker) cancelOrder(c market.Cancel) {
	o, ok := b.table.Get(c.OrderID)
	if !ok || o.Status.Terminal() {
		b.reject(c.OrderID, "cancel rejected: order not open")
		return
	}
	if _, err := b.table.MarkCancelled(c.OrderID); err != nil {
		b.reject(c.OrderID, err.Error())
		return
	}
	b.queue = append(b.queue, market.CancelAck{OrderID: c.OrderID, Ts: b.now})
}

func (b *Broker) modify(m market.Modify) {
	o, ok := b.table.Get(m.OrderID)
	if !ok || o.Status.Terminal() {
		b.reject(m.OrderID, "modify rejected: order not open")
		return
	}
	if o.Type != market.OrderTypeLimit {
		b.reject(m.OrderID, "modify rejected: not a limit order")
		return
	}
	if _, err := b.table.Amend(m.OrderID, m.NewPrice, m.NewSize); err != nil {
		b.reject(m.OrderID, err.Error())
		return
	}
	// An amend re-enters the queue: eligibility restarts from now.
	o.AcceptedTs = b.now + b.cfg.LatencyMs
	b.queue = append(b.queue, market.OrderAck{OrderID: o.ID, Ts: b.now})
}

func (b *Broker) reject(id uint64, reason string) {
	b.queue = append(b.queue, market.Reject{OrderID: id, Ts: b.now, Reason: reason})
}

// liveOrders returns the ids eligible to match the given tick, compacting
// terminal orders out of the resting list as a side effect.
func (b *Broker) liveOrders(inst market.Instrument, ts int64) []uint64 {
	keep := b.resting[:0]
	var out []uint64
	for _, id := range b.resting {
		o, ok := b.table.Get(id)
		if !ok || o.Status.Terminal() {
			continue
		}
		keep = append(keep, id)
		if o.Instrument != inst || ts < o.AcceptedTs {
			continue
		}
		out = append(out, id)
	}
	b.resting = keep
	return out
}

func (b *Broker) matchQuote(q market.Quote) {
	for _, id := range b.liveOrders(q.Instrument, q.Ts) {
		o, _ := b.table.Get(id)
		if o.Type == market.OrderTypeMarket {
			b.fillMarketOrder(o)
			continue
		}
		price, size := makerFill(o, q, b.cfg.Policy)
		b.execute(o, price, size, market.ExecMaker)
	}
}

func (b *Broker) matchTrade(t market.Trade) {
	for _, id := range b.liveOrders(t.Instrument, t.Ts) {
		o, _ := b.table.Get(id)
		if o.Type == market.OrderTypeMarket {
			b.fillMarketOrder(o)
			continue
		}
		price, size := tradeFill(o, t, b.cfg.Policy)
		b.execute(o, price, size, market.ExecMaker)
	}
}

// fillMarketOrder crosses the whole remaining size against the stored book.
// It reports false when no opposing quote exists yet.
func (b *Broker) fillMarketOrder(o *broker.Order) bool {
	q, ok := b.books[o.Instrument]
	if !ok {
		return false
	}
	price := q.AskPrice
	if o.Side == market.SideSell {
		price = q.BidPrice
	}
	if price <= 0 {
		return false
	}
	b.execute(o, price, o.Remaining, market.ExecTaker)
	return true
}

func (b *Broker) execute(o *broker.Order, price, size float64, exec market.ExecType) {
	if size <= 0 {
		return
	}
	if _, err := b.table.ApplyFill(o.ID, size); err != nil {
		return
	}
	b.acct.Apply(o.Instrument, o.Side, size, b.cfg.Costs.CashDelta(o.Side, exec, price, size))
	f := market.Fill{
		OrderID:    o.ID,
		Instrument: o.Instrument,
		Ts:         b.now,
		Price:      price,
		Size:       size,
		Remaining:  o.Remaining,
		Side:       o.Side,
		Exec:       exec,
	}
	b.rep.Realize(f)
	b.rep.Insert(b.now, b.acct.Equity(b.books))
	b.queue = append(b.queue, f)
}
