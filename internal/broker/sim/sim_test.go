package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/broker"
	"main/internal/market"
	"main/internal/tickstore"
)

func quoteAt(ts int64, bid, bidSz, ask, askSz float64) market.Quote {
	return market.Quote{
		Instrument: "ETH-USDT-SWAP",
		Ts:         ts,
		BidPrice:   bid, BidSize: bidSz,
		AskPrice: ask, AskSize: askSz,
	}
}

func tradeAt(ts int64, price, size float64) market.Trade {
	return market.Trade{Instrument: "ETH-USDT-SWAP", Ts: ts, Price: price, Size: size, Side: market.SideSell}
}

func buyLimit(id uint64, price, size float64) market.Place {
	return market.Place{
		OrderID:    id,
		Instrument: "ETH-USDT-SWAP",
		Side:       market.SideBuy,
		Type:       market.OrderTypeLimit,
		Price:      price,
		Size:       size,
	}
}

func next(t *testing.T, b *Broker) market.Event {
	t.Helper()
	ev, err := b.NextEvent(t.Context())
	require.NoError(t, err)
	return ev
}

func drain(t *testing.T, b *Broker) []market.Event {
	t.Helper()
	var out []market.Event
	for {
		ev, err := b.NextEvent(t.Context())
		if err != nil {
			require.ErrorIs(t, err, broker.ErrStreamClosed)
			return out
		}
		out = append(out, ev)
	}
}

func TestAckThenFillFromTradePrint(t *testing.T) {
	cur := tickstore.NewMemoryCursor([]market.Event{
		quoteAt(1, 100, 10, 101, 10),
		tradeAt(2, 100.5, 5),
		quoteAt(3, 100, 10, 101, 10),
	})
	b := New(cur, Config{Cash: 10_000})

	ev := next(t, b)
	require.Equal(t, market.EventQuote, ev.Kind())

	require.NoError(t, b.Submit(t.Context(), buyLimit(7, 100.8, 5)))

	ack := next(t, b)
	require.Equal(t, market.EventOrderAck, ack.Kind())
	assert.Equal(t, uint64(7), ack.(market.OrderAck).OrderID)

	// The print is delivered before the fill it caused.
	ev = next(t, b)
	require.Equal(t, market.EventTrade, ev.Kind())

	fill, ok := next(t, b).(market.Fill)
	require.True(t, ok)
	assert.Equal(t, uint64(7), fill.OrderID)
	assert.Equal(t, 100.5, fill.Price)
	assert.Equal(t, 5.0, fill.Size)
	assert.True(t, fill.Full())
	assert.Equal(t, int64(2), fill.Ts)
	assert.Equal(t, market.ExecMaker, fill.Exec)

	rest := drain(t, b)
	require.Len(t, rest, 1)
	assert.Equal(t, market.EventQuote, rest[0].Kind())

	assert.Equal(t, 5.0, b.Account().Position("ETH-USDT-SWAP"))
	assert.InDelta(t, 10_000-100.5*5, b.Account().Cash(), 1e-9)
	assert.Empty(t, b.OpenOrders())
}

func TestLatencyForbidsLookAheadFills(t *testing.T) {
	cur := tickstore.NewMemoryCursor([]market.Event{
		quoteAt(1, 100, 10, 101, 10),
		tradeAt(5, 100, 1),
		quoteAt(20, 100, 10, 100.5, 2),
	})
	b := New(cur, Config{Cash: 10_000, LatencyMs: 10})

	next(t, b) // quote t=1
	require.NoError(t, b.Submit(t.Context(), buyLimit(1, 101, 1)))
	next(t, b) // ack

	// The crossing trade at t=5 precedes acceptance at t=11 and must not
	// fill.
	events := drain(t, b)
	var fills []market.Fill
	for _, ev := range events {
		if f, ok := ev.(market.Fill); ok {
			fills = append(fills, f)
		}
	}
	require.Len(t, fills, 1)
	assert.Equal(t, int64(20), fills[0].Ts)
	// Book updates fill the order at its own price.
	assert.Equal(t, 101.0, fills[0].Price)
}

func TestDisplayedSizeCapsPartialFills(t *testing.T) {
	cur := tickstore.NewMemoryCursor([]market.Event{
		quoteAt(1, 98, 10, 101, 10),
		quoteAt(2, 99, 10, 99.5, 3),
		quoteAt(3, 99, 10, 99.5, 10),
	})
	b := New(cur, Config{Cash: 10_000})

	next(t, b)
	require.NoError(t, b.Submit(t.Context(), buyLimit(1, 100, 5)))

	var fills []market.Fill
	for _, ev := range drain(t, b) {
		if f, ok := ev.(market.Fill); ok {
			fills = append(fills, f)
		}
	}
	require.Len(t, fills, 2)
	assert.Equal(t, 3.0, fills[0].Size)
	assert.Equal(t, 2.0, fills[0].Remaining)
	assert.Equal(t, 2.0, fills[1].Size)
	assert.True(t, fills[1].Full())
	assert.Equal(t, 100.0, fills[0].Price)
	assert.Empty(t, b.OpenOrders())
}

func TestFullSizePolicyFillsAtOnce(t *testing.T) {
	cur := tickstore.NewMemoryCursor([]market.Event{
		quoteAt(1, 98, 10, 101, 10),
		quoteAt(2, 99, 10, 99.5, 3),
	})
	b := New(cur, Config{Cash: 10_000, Policy: FillFullSize})

	next(t, b)
	require.NoError(t, b.Submit(t.Context(), buyLimit(1, 100, 5)))

	var fills []market.Fill
	for _, ev := range drain(t, b) {
		if f, ok := ev.(market.Fill); ok {
			fills = append(fills, f)
		}
	}
	require.Len(t, fills, 1)
	assert.Equal(t, 5.0, fills[0].Size)
	assert.True(t, fills[0].Full())
}

func TestCancelLifecycle(t *testing.T) {
	cur := tickstore.NewMemoryCursor([]market.Event{
		quoteAt(1, 100, 10, 101, 10),
		quoteAt(2, 100, 10, 101, 10),
	})
	b := New(cur, Config{Cash: 10_000})
	next(t, b)

	// Unknown order id is a per-order failure, not a run failure.
	require.NoError(t, b.Submit(t.Context(), market.Cancel{OrderID: 42}))
	rej, ok := next(t, b).(market.Reject)
	require.True(t, ok)
	assert.Equal(t, uint64(42), rej.OrderID)

	require.NoError(t, b.Submit(t.Context(), buyLimit(1, 99, 1)))
	next(t, b) // ack
	require.Len(t, b.OpenOrders(), 1)

	require.NoError(t, b.Submit(t.Context(), market.Cancel{OrderID: 1}))
	ca, ok := next(t, b).(market.CancelAck)
	require.True(t, ok)
	assert.Equal(t, uint64(1), ca.OrderID)
	assert.Empty(t, b.OpenOrders())

	// Cancelling a terminal order is rejected, never an error.
	require.NoError(t, b.Submit(t.Context(), market.Cancel{OrderID: 1}))
	_, ok = next(t, b).(market.Reject)
	assert.True(t, ok)
}

func TestMarketOrderTakesOpposingQuote(t *testing.T) {
	cur := tickstore.NewMemoryCursor([]market.Event{
		quoteAt(1, 100, 10, 101, 10),
	})
	b := New(cur, Config{Cash: 10_000, Costs: OKXCosts(0.0001)})
	next(t, b)

	require.NoError(t, b.Submit(t.Context(), market.Place{
		OrderID:    1,
		Instrument: "ETH-USDT-SWAP",
		Side:       market.SideBuy,
		Type:       market.OrderTypeMarket,
		Size:       2,
	}))

	next(t, b) // ack
	fill, ok := next(t, b).(market.Fill)
	require.True(t, ok)
	assert.Equal(t, 101.0, fill.Price)
	assert.Equal(t, 2.0, fill.Size)
	assert.Equal(t, market.ExecTaker, fill.Exec)

	want := 10_000 - 101*(1+0.0001)*2*(1+0.0005)
	assert.InDelta(t, want, b.Account().Cash(), 1e-9)
}

func TestMarketOrderWithoutBookIsRejected(t *testing.T) {
	cur := tickstore.NewMemoryCursor(nil)
	b := New(cur, Config{Cash: 10_000})

	require.NoError(t, b.Submit(t.Context(), market.Place{
		OrderID:    1,
		Instrument: "ETH-USDT-SWAP",
		Side:       market.SideSell,
		Type:       market.OrderTypeMarket,
		Size:       1,
	}))

	ack := next(t, b)
	assert.Equal(t, market.EventOrderAck, ack.Kind())
	rej, ok := next(t, b).(market.Reject)
	require.True(t, ok)
	assert.Contains(t, rej.Reason, "no opposing quote")
	assert.Empty(t, b.OpenOrders())
}

func TestDuplicateAndInvalidPlacesAreRejected(t *testing.T) {
	cur := tickstore.NewMemoryCursor([]market.Event{
		quoteAt(1, 100, 10, 101, 10),
	})
	b := New(cur, Config{Cash: 10_000})
	next(t, b)

	require.NoError(t, b.Submit(t.Context(), buyLimit(1, 99, 1)))
	next(t, b) // ack

	require.NoError(t, b.Submit(t.Context(), buyLimit(1, 98, 1)))
	rej, ok := next(t, b).(market.Reject)
	require.True(t, ok)
	assert.Contains(t, rej.Reason, "already exists")

	require.NoError(t, b.Submit(t.Context(), buyLimit(2, 99, 0)))
	rej, ok = next(t, b).(market.Reject)
	require.True(t, ok)
	assert.Contains(t, rej.Reason, "size")
	require.Len(t, b.OpenOrders(), 1)
}

func TestModifyReevaluatesFromNewPrice(t *testing.T) {
	cur := tickstore.NewMemoryCursor([]market.Event{
		quoteAt(1, 98, 10, 101, 10),
		quoteAt(2, 99, 10, 100.5, 10),
	})
	b := New(cur, Config{Cash: 10_000})
	next(t, b)

	// Resting away from the market.
	require.NoError(t, b.Submit(t.Context(), buyLimit(1, 99, 1)))
	next(t, b) // ack

	require.NoError(t, b.Submit(t.Context(), market.Modify{OrderID: 1, NewPrice: 100.5, NewSize: 2}))
	next(t, b) // re-ack

	fillSeen := false
	for _, ev := range drain(t, b) {
		if f, ok := ev.(market.Fill); ok {
			fillSeen = true
			assert.Equal(t, 100.5, f.Price)
			assert.Equal(t, 2.0, f.Size)
		}
	}
	assert.True(t, fillSeen)
}

func TestMalformedHistoryIsFatal(t *testing.T) {
	cur := tickstore.NewMemoryCursor([]market.Event{
		quoteAt(10, 100, 10, 101, 10),
		quoteAt(5, 100, 10, 101, 10),
	})
	b := New(cur, Config{Cash: 10_000})

	next(t, b)
	_, err := b.NextEvent(t.Context())
	require.Error(t, err)
	var fatal *broker.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "sim", fatal.Component)
}

func runScripted(t *testing.T) ([]market.Event, []float64) {
	t.Helper()
	cur := tickstore.NewMemoryCursor([]market.Event{
		quoteAt(1, 100, 10, 101, 10),
		tradeAt(2, 100.5, 3),
		quoteAt(3, 100, 4, 100.8, 2),
		tradeAt(4, 99.9, 10),
		quoteAt(5, 100, 1, 101, 1),
	})
	b := New(cur, Config{Cash: 10_000, Costs: OKXCosts(0)})

	var out []market.Event
	for {
		ev, err := b.NextEvent(t.Context())
		if err != nil {
			require.ErrorIs(t, err, broker.ErrStreamClosed)
			break
		}
		out = append(out, ev)
		switch v := ev.(type) {
		case market.Quote:
			if v.Ts == 1 {
				require.NoError(t, b.Submit(t.Context(), buyLimit(1, 100.6, 5)))
				require.NoError(t, b.Submit(t.Context(), market.Place{
					OrderID:    2,
					Instrument: "ETH-USDT-SWAP",
					Side:       market.SideSell,
					Type:       market.OrderTypeLimit,
					Price:      102,
					Size:       1,
				}))
			}
		case market.Fill:
			if v.Full() {
				require.NoError(t, b.Submit(t.Context(), market.Cancel{OrderID: 2}))
			}
		}
	}

	var curve []float64
	for _, rec := range b.Report().Records() {
		curve = append(curve, rec.Value)
	}
	return out, curve
}

func TestReplayIsDeterministic(t *testing.T) {
	ev1, curve1 := runScripted(t)
	ev2, curve2 := runScripted(t)

	assert.Equal(t, ev1, ev2)
	assert.Equal(t, curve1, curve2)

	for i := 1; i < len(ev1); i++ {
		assert.LessOrEqual(t, ev1[i-1].Time(), ev1[i].Time())
	}
}

func TestMergeInterleavesInstrumentsStably(t *testing.T) {
	a := tickstore.NewMemoryCursor([]market.Event{
		market.Quote{Instrument: "A", Ts: 1},
		market.Quote{Instrument: "A", Ts: 3},
	})
	b := tickstore.NewMemoryCursor([]market.Event{
		market.Quote{Instrument: "B", Ts: 1},
		market.Quote{Instrument: "B", Ts: 2},
	})

	m := Merge(b, a)
	var got []market.Event
	for {
		ev, err := m.Next(t.Context())
		if err != nil {
			break
		}
		got = append(got, ev)
	}

	require.Len(t, got, 4)
	// Equal timestamps order by instrument id regardless of cursor order.
	assert.Equal(t, market.Instrument("A"), got[0].(market.Quote).Instrument)
	assert.Equal(t, market.Instrument("B"), got[1].(market.Quote).Instrument)
	assert.Equal(t, int64(2), got[2].Time())
	assert.Equal(t, int64(3), got[3].Time())
}
