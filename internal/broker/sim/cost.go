package sim

import "main/internal/market"

// CostModel folds exchange fees and taker slippage into each execution.
// Fees and slippage are fractions of notional.
type CostModel struct {
	MakerFee float64
	TakerFee float64
	// Slippage worsens the execution price of taker fills only.
	Slippage float64
}

// OKXCosts is the swap fee schedule the live venue charges: 2 bps maker,
// 5 bps taker.
func OKXCosts(slippage float64) CostModel {
	return CostModel{MakerFee: 0.0002, TakerFee: 0.0005, Slippage: slippage}
}

// CashDelta returns the signed cash change from executing size at price.
// Buys pay cash, sells receive it.
func (m CostModel) CashDelta(side market.Side, exec market.ExecType, price, size float64) float64 {
	fee, slip := m.MakerFee, 0.0
	if exec == market.ExecTaker {
		fee, slip = m.TakerFee, m.Slippage
	}
	switch side {
	case market.SideBuy:
		return -price * (1 + slip) * size * (1 + fee)
	case market.SideSell:
		return price * (1 - slip) * size * (1 - fee)
	default:
		return 0
	}
}
