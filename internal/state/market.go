package state

import (
	"github.com/google/uuid"

	"PerpCore/internal/numeric"
)

const (
	// MaxAuctionDiscountBps caps the market-wide Dutch auction discount.
	MaxAuctionDiscountBps = 1000

	// AuctionDiscountStepBps is added to the market discount after every
	// liquidation slice, making unattended distress progressively cheaper
	// for the next liquidator.
	AuctionDiscountStepBps = 50
)

// Market is the per-symbol record: funding state, open-interest aggregates,
// and risk parameters shared by every position in the market.
type Market struct {
	MarketID   string
	BaseSymbol string
	QuoteAsset string
	Authority  uuid.UUID

	// Vault references are opaque to the core; custody owns them.
	FeeVault       string
	InsuranceVault string

	MaintenanceMarginRatioBps int64
	BaseMarginRatioBps        int64
	AutoDeleverageEnabled     bool
	AuctionDiscountBps        int64

	FundingRate     int64
	LastFundingTime int64 // unix seconds; only advances forward
	IndexPrice      int64

	OpenInterestLong  int64
	OpenInterestShort int64

	Version int64 // optimistic concurrency control
}

// AddOpenInterest grows the aggregate for the traded direction.
func (m *Market) AddOpenInterest(side Side, size int64) error {
	switch side {
	case SideLong:
		oi, err := numeric.CheckedAdd(m.OpenInterestLong, size)
		if err != nil {
			return err
		}
		m.OpenInterestLong = oi
	case SideShort:
		oi, err := numeric.CheckedAdd(m.OpenInterestShort, size)
		if err != nil {
			return err
		}
		m.OpenInterestShort = oi
	}
	return nil
}

// ReduceOpenInterest shrinks the aggregate for the held direction,
// saturating at zero so the invariant "OI never negative" holds even if a
// stale caller over-reduces.
func (m *Market) ReduceOpenInterest(side Side, size int64) {
	switch side {
	case SideLong:
		m.OpenInterestLong = numeric.ClampNonNegative(m.OpenInterestLong - size)
	case SideShort:
		m.OpenInterestShort = numeric.ClampNonNegative(m.OpenInterestShort - size)
	}
}

// EscalateAuctionDiscount raises the market-wide liquidation discount one
// step, saturating at the cap. The discount never resets downward here;
// only an explicit operator parameter update can lower it.
func (m *Market) EscalateAuctionDiscount() {
	m.AuctionDiscountBps += AuctionDiscountStepBps
	if m.AuctionDiscountBps > MaxAuctionDiscountBps {
		m.AuctionDiscountBps = MaxAuctionDiscountBps
	}
}
