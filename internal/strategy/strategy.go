// Package strategy contains the decision layer: signalers derive directional
// intent from market data, executors turn intent into order flow. A strategy
// never talks to a broker directly; it returns order requests and the engine
// submits them.
package strategy

import "main/internal/market"

// Strategy consumes broker events and emits order requests.
type Strategy interface {
	OnEvent(ev market.Event) []market.OrderRequest
}

// Signal is a directional entry intent.
type Signal uint16

const (
	SignalNone Signal = iota
	SignalLong
	SignalShort
)

// Signaler derives a signal from book updates.
type Signaler interface {
	OnQuote(q market.Quote) Signal
}

// Executor tracks fills and turns signals into order flow.
type Executor interface {
	// Update feeds every broker event through, keeping the executor's view
	// of book, position, and working order current.
	Update(ev market.Event)

	// OnSignal emits the order requests needed to move toward the signal's
	// target position.
	OnSignal(s Signal) []market.OrderRequest
}

// SignalStrategy wires a signaler to an executor: the signaler reads quotes,
// the executor acts on the resulting signal.
type SignalStrategy struct {
	signaler Signaler
	executor Executor
}

// NewSignalStrategy composes a signaler with an executor.
func NewSignalStrategy(s Signaler, e Executor) *SignalStrategy {
	return &SignalStrategy{signaler: s, executor: e}
}

func (st *SignalStrategy) OnEvent(ev market.Event) []market.OrderRequest {
	st.executor.Update(ev)
	if q, ok := ev.(market.Quote); ok {
		return st.executor.OnSignal(st.signaler.OnQuote(q))
	}
	return nil
}
