package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/broker"
	"main/internal/broker/sim"
	"main/internal/market"
	"main/internal/obs"
	"main/internal/tickstore"
)

// scriptedBroker replays a fixed event list and records submissions.
type scriptedBroker struct {
	events    []market.Event
	submitted []market.OrderRequest
	submitErr error
	open      []broker.Order
}

func (b *scriptedBroker) NextEvent(context.Context) (market.Event, error) {
	if len(b.events) == 0 {
		return nil, broker.ErrStreamClosed
	}
	ev := b.events[0]
	b.events = b.events[1:]
	return ev, nil
}

func (b *scriptedBroker) Submit(_ context.Context, req market.OrderRequest) error {
	if b.submitErr != nil {
		return b.submitErr
	}
	b.submitted = append(b.submitted, req)
	return nil
}

func (b *scriptedBroker) OpenOrders() []broker.Order { return b.open }
func (b *scriptedBroker) Close() error               { return nil }

// funcStrategy adapts a closure to the Strategy interface.
type funcStrategy func(ev market.Event) []market.OrderRequest

func (f funcStrategy) OnEvent(ev market.Event) []market.OrderRequest { return f(ev) }

func q(ts int64) market.Quote {
	return market.Quote{
		Instrument: "ETH-USDT-SWAP",
		Ts:         ts,
		BidPrice:   100, BidSize: 10,
		AskPrice: 101, AskSize: 10,
	}
}

func TestRunDeliversEventsAndSubmitsRequests(t *testing.T) {
	b := &scriptedBroker{events: []market.Event{q(1), q(2), q(3)}}
	var seen []int64
	strat := funcStrategy(func(ev market.Event) []market.OrderRequest {
		seen = append(seen, ev.Time())
		if ev.Time() == 2 {
			return []market.OrderRequest{market.Cancel{OrderID: 7}}
		}
		return nil
	})

	m := obs.NewMetrics()
	report, err := New(b, strat, m).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, seen)
	assert.Equal(t, 3, report.Events)
	assert.Equal(t, int64(3), report.LastEventTs)
	require.Len(t, b.submitted, 1)
	assert.Equal(t, market.Cancel{OrderID: 7}, b.submitted[0])
	assert.Equal(t, uint64(3), m.Snapshot().EventCounts[market.EventQuote])
}

func TestRunEmptyStreamIsClean(t *testing.T) {
	b := &scriptedBroker{}
	report, err := New(b, funcStrategy(func(market.Event) []market.OrderRequest { return nil }), nil).
		Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Events)
	assert.Zero(t, report.LastEventTs)
}

func TestRunReportsLeftoverOpenOrders(t *testing.T) {
	b := &scriptedBroker{open: []broker.Order{{ID: 5, Status: broker.StatusOpen}}}
	report, err := New(b, funcStrategy(func(market.Event) []market.OrderRequest { return nil }), nil).
		Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.OpenOrders, 1)
	assert.Equal(t, uint64(5), report.OpenOrders[0].ID)
}

func TestRunConvertsStrategyPanicToFatal(t *testing.T) {
	b := &scriptedBroker{events: []market.Event{q(1), q(2)}}
	strat := funcStrategy(func(ev market.Event) []market.OrderRequest {
		if ev.Time() == 2 {
			panic("nil indicator")
		}
		return nil
	})

	report, err := New(b, strat, nil).Run(context.Background())
	require.Error(t, err)

	var fatal *broker.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "strategy", fatal.Component)
	assert.Contains(t, fatal.Error(), "nil indicator")
	assert.Equal(t, 2, report.Events)
}

func TestRunStopsOnSubmitFailure(t *testing.T) {
	b := &scriptedBroker{
		events:    []market.Event{q(1)},
		submitErr: &broker.FatalError{Component: "live", Err: context.DeadlineExceeded},
	}
	strat := funcStrategy(func(market.Event) []market.OrderRequest {
		return []market.OrderRequest{market.Cancel{OrderID: 1}}
	})

	_, err := New(b, strat, nil).Run(context.Background())
	require.Error(t, err)
	var fatal *broker.FatalError
	assert.ErrorAs(t, err, &fatal)
}

func TestRunEndToEndBacktest(t *testing.T) {
	const inst = market.Instrument("ETH-USDT-SWAP")
	cursor := tickstore.NewMemoryCursor([]market.Event{
		market.Quote{Instrument: inst, Ts: 1, BidPrice: 100, BidSize: 10, AskPrice: 101, AskSize: 10},
		market.Trade{Instrument: inst, Ts: 2, Price: 100.5, Size: 5, Side: market.SideSell, TradeID: "t1"},
		market.Quote{Instrument: inst, Ts: 3, BidPrice: 100, BidSize: 10, AskPrice: 101, AskSize: 10},
	})
	b := sim.New(cursor, sim.Config{Cash: 10_000})

	var placed bool
	var fills []market.Fill
	strat := funcStrategy(func(ev market.Event) []market.OrderRequest {
		if f, ok := ev.(market.Fill); ok {
			fills = append(fills, f)
		}
		if !placed {
			placed = true
			return []market.OrderRequest{market.Place{
				OrderID:    1,
				Instrument: inst,
				Side:       market.SideBuy,
				Type:       market.OrderTypeLimit,
				Price:      100.8,
				Size:       5,
			}}
		}
		return nil
	})

	report, err := New(b, strat, nil).Run(context.Background())
	require.NoError(t, err)

	// Quote, OrderAck, Trade, Fill, Quote.
	assert.Equal(t, 5, report.Events)
	assert.Empty(t, report.OpenOrders)
	require.Len(t, fills, 1)
	assert.Equal(t, 100.5, fills[0].Price)
	assert.Equal(t, 5.0, fills[0].Size)
	assert.True(t, fills[0].Full())
}
