package sim

import (
	"sort"

	"main/internal/market"
)

// Account tracks cash and signed per-instrument positions over a replay.
type Account struct {
	cash      float64
	positions map[market.Instrument]float64
}

// NewAccount starts an account with the given cash balance.
func NewAccount(cash float64) *Account {
	return &Account{cash: cash, positions: make(map[market.Instrument]float64)}
}

// Apply books one execution. cashDelta must already include fees and
// slippage.
func (a *Account) Apply(inst market.Instrument, side market.Side, size, cashDelta float64) {
	a.cash += cashDelta
	if side == market.SideSell {
		size = -size
	}
	a.positions[inst] += size
}

// Cash returns the current cash balance.
func (a *Account) Cash() float64 { return a.cash }

// Position returns the signed position for one instrument.
func (a *Account) Position(inst market.Instrument) float64 {
	return a.positions[inst]
}

// Equity marks open positions at the unbiased mid of the latest book.
// Instruments are summed in sorted order so the result is reproducible
// across runs.
func (a *Account) Equity(books map[market.Instrument]market.Quote) float64 {
	insts := make([]market.Instrument, 0, len(a.positions))
	for inst := range a.positions {
		insts = append(insts, inst)
	}
	sort.Slice(insts, func(i, j int) bool { return insts[i] < insts[j] })

	eq := a.cash
	for _, inst := range insts {
		pos := a.positions[inst]
		if pos == 0 {
			continue
		}
		if q, ok := books[inst]; ok {
			eq += pos * q.Mid()
		}
	}
	return eq
}
