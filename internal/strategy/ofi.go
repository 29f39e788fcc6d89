package strategy

import (
	"math"

	"main/internal/market"
)

// OfiMomentumConfig parameterizes an OfiMomentum signaler. Windows are in
// milliseconds; Theta is the z-score threshold that triggers an entry.
type OfiMomentumConfig struct {
	Instrument  market.Instrument
	WindowOfiMs float64
	WindowEmaMs float64
	Theta       float64
}

// OfiMomentum signals on smoothed order-flow imbalance. Each book update
// contributes an imbalance segment, an average over WindowOfiMs smooths the
// segments into a flow estimate, and a slower average over WindowEmaMs
// provides the baseline and variance the estimate is z-scored against.
type OfiMomentum struct {
	cfg OfiMomentumConfig

	ofi  *Ema
	base *Emav

	prev     market.Quote
	havePrev bool

	startTs  int64
	warmupMs int64
}

// NewOfiMomentum builds the signaler. It stays silent for three times the
// longer window while the averages converge.
func NewOfiMomentum(cfg OfiMomentumConfig) *OfiMomentum {
	return &OfiMomentum{
		cfg:      cfg,
		ofi:      NewEma(cfg.WindowOfiMs),
		base:     NewEmav(cfg.WindowEmaMs),
		warmupMs: int64(3 * math.Max(cfg.WindowOfiMs, cfg.WindowEmaMs)),
	}
}

func (o *OfiMomentum) OnQuote(q market.Quote) Signal {
	if q.Instrument != o.cfg.Instrument {
		return SignalNone
	}
	if !o.havePrev {
		o.prev = q
		o.havePrev = true
		o.startTs = q.Ts
		return SignalNone
	}

	seg := ofiSegment(o.prev, q)
	dt := float64(q.Ts - o.prev.Ts)
	o.prev = q
	if dt <= 0 {
		dt = 1
	}

	flow := o.ofi.Update(seg, dt)
	mean, variance := o.base.Update(flow, dt)

	if q.Ts-o.startTs < o.warmupMs {
		return SignalNone
	}
	if variance <= 0 {
		return SignalNone
	}

	z := (flow - mean) / math.Sqrt(variance)
	switch {
	case z > o.cfg.Theta:
		return SignalLong
	case z < -o.cfg.Theta:
		return SignalShort
	default:
		return SignalNone
	}
}

// ofiSegment is the order-flow imbalance contribution of one book update:
// size arriving at or above the old bid is buying pressure, size arriving at
// or below the old ask is selling pressure.
func ofiSegment(old, q market.Quote) float64 {
	var seg float64
	if q.BidPrice >= old.BidPrice {
		seg += q.BidSize
	}
	if q.BidPrice <= old.BidPrice {
		seg -= old.BidSize
	}
	if q.AskPrice <= old.AskPrice {
		seg -= q.AskSize
	}
	if q.AskPrice >= old.AskPrice {
		seg += old.AskSize
	}
	return seg
}
