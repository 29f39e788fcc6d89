package sim

import (
	"main/internal/broker"
	"main/internal/market"
)

// FillPolicy bounds how much of the displayed liquidity a resting order may
// take from a single tick.
type FillPolicy uint16

const (
	// FillDisplayedSize caps each execution at the displayed or printed
	// size. This is the conservative default: the replay never assumes
	// liquidity it did not observe.
	FillDisplayedSize FillPolicy = iota
	// FillFullSize assumes unlimited depth at the touch and fills the whole
	// remaining size at once.
	FillFullSize
)

func capSize(remaining, displayed float64, policy FillPolicy) float64 {
	if policy == FillFullSize {
		return remaining
	}
	if displayed <= 0 {
		return 0
	}
	if displayed < remaining {
		return displayed
	}
	return remaining
}

// makerFill matches a resting limit order against a book update. The order
// keeps its own price: a buy executes when the ask trades down through it, a
// sell when the bid trades up through it. Zero size means no fill.
func makerFill(o *broker.Order, q market.Quote, policy FillPolicy) (price, size float64) {
	switch o.Side {
	case market.SideBuy:
		if q.AskPrice > 0 && q.AskPrice <= o.Price {
			return o.Price, capSize(o.Remaining, q.AskSize, policy)
		}
	case market.SideSell:
		if q.BidPrice > 0 && q.BidPrice >= o.Price {
			return o.Price, capSize(o.Remaining, q.BidSize, policy)
		}
	}
	return 0, 0
}

// tradeFill matches a resting limit order against a public print. The print
// proves liquidity at its price, so the execution happens there.
func tradeFill(o *broker.Order, t market.Trade, policy FillPolicy) (price, size float64) {
	switch o.Side {
	case market.SideBuy:
		if t.Price > 0 && t.Price <= o.Price {
			return t.Price, capSize(o.Remaining, t.Size, policy)
		}
	case market.SideSell:
		if t.Price >= o.Price {
			return t.Price, capSize(o.Remaining, t.Size, policy)
		}
	}
	return 0, 0
}
