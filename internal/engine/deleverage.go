package engine

import (
	"sort"

	"PerpCore/internal/event"
	"PerpCore/internal/numeric"
	"PerpCore/internal/state"
)

// DeleveragePolicy force-reduces positions on the opposite side of a
// liquidated slice to keep the book balanced. closedSide and closedSize
// describe the slice just liquidated; the policy runs inside the same
// transaction and reports total size reduced.
type DeleveragePolicy interface {
	Deleverage(tx Tx, m *state.Market, closedSide state.Side, closedSize, markPrice int64, emit func(event.Event) error) (int64, error)
}

// LargestProfitFirst reduces the most profitable opposing positions
// first, the conventional ADL ranking: winners absorb the imbalance.
type LargestProfitFirst struct{}

type adlCandidate struct {
	pos *state.Position
	pnl int64
}

func (LargestProfitFirst) Deleverage(tx Tx, m *state.Market, closedSide state.Side, closedSize, markPrice int64, emit func(event.Event) error) (int64, error) {
	opposing, err := tx.OpposingPositions(m.MarketID, closedSide.Opposite())
	if err != nil {
		return 0, err
	}

	candidates := make([]adlCandidate, 0, len(opposing))
	for _, pos := range opposing {
		if pos.IsFlat() {
			continue
		}
		pnl, err := state.PnL(pos.Side, pos.Size, pos.EntryPrice, markPrice)
		if err != nil {
			return 0, err
		}
		if pnl <= 0 {
			continue
		}
		candidates = append(candidates, adlCandidate{pos: pos, pnl: pnl})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].pnl > candidates[j].pnl
	})

	remaining := closedSize
	var reduced int64
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		slice := c.pos.Size
		if slice > remaining {
			slice = remaining
		}

		realized, err := state.PnL(c.pos.Side, slice, c.pos.EntryPrice, markPrice)
		if err != nil {
			return reduced, err
		}
		settled, err := numeric.CheckedAdd(c.pos.Collateral, realized)
		if err != nil {
			return reduced, err
		}
		c.pos.Collateral = numeric.ClampNonNegative(settled)

		side := c.pos.Side
		c.pos.Size -= slice
		if c.pos.Size == 0 {
			c.pos.Reset()
		}
		m.ReduceOpenInterest(side, slice)

		if err := tx.SavePosition(c.pos); err != nil {
			return reduced, err
		}
		if err := emit(&event.PositionDeleveraged{
			Owner:       c.pos.Owner,
			Market:      m.MarketID,
			ReducedSize: slice,
			RealizedPnL: realized,
		}); err != nil {
			return reduced, err
		}

		remaining -= slice
		reduced += slice
	}

	if reduced > 0 {
		if err := tx.SaveMarket(m); err != nil {
			return reduced, err
		}
	}
	return reduced, nil
}
