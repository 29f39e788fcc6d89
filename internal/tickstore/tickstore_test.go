package tickstore

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/market"
)

func TestMemoryCursorDrains(t *testing.T) {
	events := []market.Event{
		market.Quote{Instrument: "ETH-USDT-SWAP", Ts: 1, BidPrice: 100, AskPrice: 101},
		market.Trade{Instrument: "ETH-USDT-SWAP", Ts: 2, Price: 100.5, Size: 5},
	}
	c := NewMemoryCursor(events)

	e, err := c.Next(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Time())

	e, err = c.Next(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Time())

	_, err = c.Next(t.Context())
	assert.ErrorIs(t, err, io.EOF)
	// EOF is sticky.
	_, err = c.Next(t.Context())
	assert.ErrorIs(t, err, io.EOF)
}

func TestMemoryCursorRejectsBackwardsTime(t *testing.T) {
	c := NewMemoryCursor([]market.Event{
		market.Quote{Instrument: "X", Ts: 10},
		market.Quote{Instrument: "X", Ts: 9},
	})

	_, err := c.Next(t.Context())
	require.NoError(t, err)
	_, err = c.Next(t.Context())
	assert.ErrorContains(t, err, "non-monotonic")
}

func TestInterleaveQuotesFirstOnTies(t *testing.T) {
	bbos := []BboRow{
		{Instrument: "X", Ts: 1, BidPrice: 100, AskPrice: 101},
		{Instrument: "X", Ts: 3, BidPrice: 99, AskPrice: 100},
	}
	trades := []TradeRow{
		{Instrument: "X", Ts: 1, Price: 100.5, Size: 2},
		{Instrument: "X", Ts: 2, Price: 100.4, Size: 1},
	}

	events := interleave(bbos, trades)
	require.Len(t, events, 4)
	assert.Equal(t, market.EventQuote, events[0].Kind())
	assert.Equal(t, market.EventTrade, events[1].Kind())
	assert.Equal(t, int64(2), events[2].Time())
	assert.Equal(t, market.EventQuote, events[3].Kind())

	for i := 1; i < len(events); i++ {
		assert.LessOrEqual(t, events[i-1].Time(), events[i].Time())
	}
}
