package state

import (
	"PerpCore/internal/numeric"
)

// VolatilityTable maps base-asset symbol classes to margin multipliers.
// Symbols absent from the table use 1x.
type VolatilityTable map[string]int64

// DefaultVolatilityTable doubles margin for the SOL class.
func DefaultVolatilityTable() VolatilityTable {
	return VolatilityTable{
		"SOL": 2,
	}
}

// Multiplier returns the margin multiplier for a symbol, defaulting to 1.
func (t VolatilityTable) Multiplier(symbol string) int64 {
	if m, ok := t[symbol]; ok && m > 0 {
		return m
	}
	return 1
}

// MarginEvaluator computes net equity and the maintenance requirement for a
// position at a given mark price. Pure: no side effects, callers use the
// result to gate mutations.
type MarginEvaluator struct {
	volatility VolatilityTable
}

func NewMarginEvaluator(vt VolatilityTable) *MarginEvaluator {
	if vt == nil {
		vt = DefaultVolatilityTable()
	}
	return &MarginEvaluator{volatility: vt}
}

// Evaluate returns (healthy, netEquity). A flat position is always healthy.
//
// The margin requirement widens with position size (base + size/10 bps) and
// is scaled by the symbol's volatility multiplier. The requirement is a
// fraction of the position's own collateral, not of its notional exposure.
func (e *MarginEvaluator) Evaluate(pos *Position, mkt *Market, markPrice int64) (bool, int64, error) {
	unrealized, err := PnL(pos.Side, pos.Size, pos.EntryPrice, markPrice)
	if err != nil {
		return false, 0, err
	}

	netEquity, err := numeric.CheckedAdd(pos.Collateral, unrealized)
	if err != nil {
		return false, 0, err
	}

	dynamicBps, err := numeric.CheckedAdd(mkt.BaseMarginRatioBps, pos.Size/10)
	if err != nil {
		return false, 0, err
	}
	finalBps, err := numeric.CheckedMul(dynamicBps, e.volatility.Multiplier(mkt.BaseSymbol))
	if err != nil {
		return false, 0, err
	}

	required, err := numeric.MulBps(pos.Collateral, finalBps)
	if err != nil {
		return false, 0, err
	}

	return netEquity >= required, netEquity, nil
}

// PnL computes size * (markPrice - entryPrice) * directionSign with checked
// arithmetic. Used for both unrealized and realized legs.
func PnL(side Side, size, entryPrice, markPrice int64) (int64, error) {
	diff, err := numeric.CheckedSub(markPrice, entryPrice)
	if err != nil {
		return 0, err
	}
	raw, err := numeric.CheckedMul(size, diff)
	if err != nil {
		return 0, err
	}
	return numeric.CheckedMul(raw, side.Sign())
}
