package state

import (
	"PerpCore/internal/numeric"
)

// LiquidatorRewardBps is the liquidator's share of the auction discount,
// with the venue's 1000-denominator convention (100/1000 = 10%).
const LiquidatorRewardBps = 100

// LiquidationOutcome is the computed result of one liquidation slice.
// Nothing is mutated until the caller commits it.
type LiquidationOutcome struct {
	PartialPnL            int64
	PreDiscountCollateral int64
	DiscountAmount        int64
	FinalCollateral       int64
	LiquidatorReward      int64
}

// ComputeLiquidation prices a liquidation slice of liqSize at markPrice
// under the market's current Dutch auction discount.
//
// When the position's equity is already non-positive there is nothing to
// discount: the slice wipes the collateral and the liquidator's reward is
// zero. For positive equity, reward + final collateral never exceeds the
// pre-discount collateral.
func ComputeLiquidation(pos *Position, mkt *Market, liqSize, markPrice int64) (LiquidationOutcome, error) {
	partialPnL, err := PnL(pos.Side, liqSize, pos.EntryPrice, markPrice)
	if err != nil {
		return LiquidationOutcome{}, err
	}

	preDiscount, err := numeric.CheckedAdd(pos.Collateral, partialPnL)
	if err != nil {
		return LiquidationOutcome{}, err
	}

	out := LiquidationOutcome{
		PartialPnL:            partialPnL,
		PreDiscountCollateral: preDiscount,
	}

	if preDiscount <= 0 {
		return out, nil
	}

	discount, err := numeric.MulBps(preDiscount, mkt.AuctionDiscountBps)
	if err != nil {
		return LiquidationOutcome{}, err
	}
	reward, err := numeric.MulBps(discount, LiquidatorRewardBps)
	if err != nil {
		return LiquidationOutcome{}, err
	}

	out.DiscountAmount = discount
	out.FinalCollateral = numeric.ClampNonNegative(preDiscount - discount)
	out.LiquidatorReward = reward
	return out, nil
}
