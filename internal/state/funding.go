package state

import (
	"PerpCore/internal/numeric"
)

// oiFactorBand bounds the open-interest skew contribution to the funding
// rate, preventing runaway funding under extreme imbalance.
const oiFactorBand = 1000

// NextFundingRate derives the market's new funding rate from price
// deviation and open-interest skew:
//
//	base_rate = floor((mark - index) / 10) * time_diff
//	oi_factor = clamp(floor((oi_long - oi_short) / 100), -1000, 1000)
//
// Returns (rate, false) without recomputation when no time has elapsed
// since the last update; the operation is idempotent at time_diff == 0.
// The signed rate credits settled positions when positive and debits
// them when negative.
func NextFundingRate(m *Market, markPrice, now int64) (int64, bool, error) {
	timeDiff := now - m.LastFundingTime
	if timeDiff <= 0 {
		return m.FundingRate, false, nil
	}

	priceDiff, err := numeric.CheckedSub(markPrice, m.IndexPrice)
	if err != nil {
		return 0, false, err
	}

	baseRate, err := numeric.CheckedMul(priceDiff/10, timeDiff)
	if err != nil {
		return 0, false, err
	}

	oiDiff, err := numeric.CheckedSub(m.OpenInterestLong, m.OpenInterestShort)
	if err != nil {
		return 0, false, err
	}
	oiFactor := numeric.Clamp(oiDiff/100, -oiFactorBand, oiFactorBand)

	rate, err := numeric.CheckedAdd(baseRate, oiFactor)
	if err != nil {
		return 0, false, err
	}
	return rate, true, nil
}

// FundingPayment computes the settlement amount for a position. The rate is
// applied directly per unit of size, not as a fraction of notional, and the
// signed rate itself carries the flow direction.
func FundingPayment(pos *Position, fundingRate int64) (int64, error) {
	return numeric.CheckedMul(pos.Size, fundingRate)
}
