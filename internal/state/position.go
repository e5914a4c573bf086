package state

import "github.com/google/uuid"

// Side represents position direction.
type Side int32

const (
	SideFlat Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "Long"
	case SideShort:
		return "Short"
	default:
		return "Flat"
	}
}

// Sign returns +1 for long, -1 for short, 0 for flat.
func (s Side) Sign() int64 {
	switch s {
	case SideLong:
		return 1
	case SideShort:
		return -1
	default:
		return 0
	}
}

// Opposite returns the other traded direction.
func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideFlat
	}
}

// Position is the per-(trader, market) record. Collateral is the venue's
// internal ledger balance for the position, distinct from any external
// custody balance; it is clamped at zero on the low end, so equity shortfall
// beyond collateral is absorbed rather than carried forward as debt.
type Position struct {
	Owner    uuid.UUID
	MarketID string

	Collateral    int64
	Size          int64
	Side          Side
	EntryPrice    int64
	UnrealizedPnL int64 // advisory, last computed

	Version int64
}

// IsFlat reports whether the position has no exposure.
func (p *Position) IsFlat() bool {
	return p.Size == 0
}

// Reset zeroes the exposure fields, preserving collateral.
// Invariant: size == 0 implies entry price, unrealized PnL, and direction
// are all at their defaults.
func (p *Position) Reset() {
	p.Size = 0
	p.EntryPrice = 0
	p.Side = SideFlat
	p.UnrealizedPnL = 0
}

// BracketOrder is an OCO (stop-loss / take-profit) attachment. Size and
// Side are snapshots taken at placement; the order is armed while Size > 0
// and inert once zeroed.
type BracketOrder struct {
	Owner    uuid.UUID
	MarketID string

	StopLossPrice   int64
	TakeProfitPrice int64
	Size            int64
	Side            Side

	Version int64
}

// Armed reports whether the bracket is still evaluable.
func (b *BracketOrder) Armed() bool {
	return b.Size > 0
}

// StopOrder is the single-trigger sibling of BracketOrder: one threshold,
// flagged as either take-profit or stop-loss. Same armed/inert lifecycle.
type StopOrder struct {
	Owner    uuid.UUID
	MarketID string

	TriggerPrice int64
	IsTakeProfit bool
	Size         int64
	Side         Side

	Version int64
}

// Armed reports whether the stop order is still evaluable.
func (s *StopOrder) Armed() bool {
	return s.Size > 0
}
