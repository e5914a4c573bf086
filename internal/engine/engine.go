// Package engine implements the risk-and-settlement operations of the
// venue: collateral ledger, position lifecycle, margin gating, funding,
// Dutch-auction liquidation, and bracket/stop triggers. Every operation
// runs in one store transaction; events are recorded in the same
// transaction and published to the sink only after commit.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpCore/internal/custody"
	"PerpCore/internal/event"
	"PerpCore/internal/numeric"
	"PerpCore/internal/observability"
	"PerpCore/internal/oracle"
	"PerpCore/internal/state"
)

const (
	// maxLeverage caps notional cost at 10x a position's collateral.
	maxLeverage = 10

	// DefaultMaxStaleness is the oracle quote acceptance window.
	DefaultMaxStaleness = 60 * time.Second

	defaultMaintenanceMarginBps = 50
	defaultBaseMarginBps        = 50
	defaultIndexPrice           = 1000
)

// Config wires the engine's collaborators. Store, Oracle, and Custody are
// required; the rest default to no-ops or sane fallbacks.
type Config struct {
	Store      Store
	Oracle     oracle.PriceOracle
	Custody    custody.Custody
	Sink       EventSink
	Deleverage DeleveragePolicy
	Volatility state.VolatilityTable
	Metrics    *observability.Metrics
	Logger     zerolog.Logger

	// MaxStaleness overrides the oracle acceptance window; zero means
	// DefaultMaxStaleness.
	MaxStaleness time.Duration

	// Now overrides the clock, for deterministic tests.
	Now func() time.Time
}

// Engine is the venue's risk core. Safe for concurrent use; serialization
// of conflicting operations is delegated to the Store's transaction
// implementation.
type Engine struct {
	store     Store
	oracle    oracle.PriceOracle
	custody   custody.Custody
	sink      EventSink
	adl       DeleveragePolicy
	evaluator *state.MarginEvaluator
	metrics   *observability.Metrics
	log       zerolog.Logger
	now       func() time.Time
	maxStale  time.Duration
}

func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: Store is required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("engine: Oracle is required")
	}
	if cfg.Custody == nil {
		return nil, errors.New("engine: Custody is required")
	}
	e := &Engine{
		store:     cfg.Store,
		oracle:    cfg.Oracle,
		custody:   cfg.Custody,
		sink:      cfg.Sink,
		adl:       cfg.Deleverage,
		evaluator: state.NewMarginEvaluator(cfg.Volatility),
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		now:       cfg.Now,
		maxStale:  cfg.MaxStaleness,
	}
	if e.sink == nil {
		e.sink = NopSink{}
	}
	if e.adl == nil {
		e.adl = LargestProfitFirst{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.maxStale <= 0 {
		e.maxStale = DefaultMaxStaleness
	}
	return e, nil
}

// run executes fn in one store transaction, records metrics, and publishes
// events emitted via the passed callback after a successful commit.
func (e *Engine) run(ctx context.Context, op string, fn func(tx Tx, emit func(event.Event) error) error) error {
	start := e.now()
	var emitted []event.Event

	err := e.store.InTx(ctx, func(tx Tx) error {
		emit := func(evt event.Event) error {
			if err := tx.AppendEvent(evt); err != nil {
				return err
			}
			emitted = append(emitted, evt)
			return nil
		}
		return fn(tx, emit)
	})

	e.metrics.ObserveOp(op, e.now().Sub(start), err)
	if err != nil {
		e.log.Debug().Str("op", op).Err(err).Msg("operation rejected")
		return err
	}

	for _, evt := range emitted {
		perr := e.sink.Publish(ctx, evt)
		e.metrics.ObservePublish(evt.EventType().String(), perr)
		if perr != nil {
			// The ledger already committed; the durable event_log row is
			// the source of truth for replay.
			e.log.Error().
				Str("op", op).
				Str("event_type", evt.EventType().String()).
				Err(perr).
				Msg("event publish failed after commit")
		}
	}
	return nil
}

// markPrice fetches and validates the oracle quote for a market.
func (e *Engine) markPrice(ctx context.Context, marketID string) (int64, error) {
	q, err := e.oracle.GetPrice(ctx, marketID)
	if err != nil {
		return 0, fmt.Errorf("oracle price for %s: %w", marketID, err)
	}
	if age := e.now().Sub(q.AsOf); age > e.maxStale {
		e.metrics.ObserveStaleReject(marketID)
		return 0, fmt.Errorf("quote age %s exceeds %s: %w", age, e.maxStale, ErrStalePrice)
	}
	if q.Price <= 0 {
		return 0, fmt.Errorf("quote price %d: %w", q.Price, ErrInvalidAmount)
	}
	e.metrics.ObserveOracle(marketID, q.Price)
	return q.Price, nil
}

// InitializeMarketParams names a new market and its custody anchors.
type InitializeMarketParams struct {
	MarketID       string
	BaseSymbol     string
	QuoteAsset     string
	Authority      uuid.UUID
	FeeVault       string
	InsuranceVault string
}

// InitializeMarket creates a market record with the venue's default risk
// parameters: 50 bps maintenance and base margin ratios, auto-deleverage
// enabled, zero auction discount, index price seeded at 1000.
func (e *Engine) InitializeMarket(ctx context.Context, p InitializeMarketParams) error {
	if p.MarketID == "" || p.BaseSymbol == "" || p.QuoteAsset == "" {
		return fmt.Errorf("market identifiers must be non-empty: %w", ErrInvalidAmount)
	}
	return e.run(ctx, "initialize_market", func(tx Tx, emit func(event.Event) error) error {
		if _, err := tx.Market(p.MarketID); err == nil {
			return fmt.Errorf("market %s: %w", p.MarketID, ErrMarketExists)
		} else if !errors.Is(err, ErrMarketNotFound) {
			return err
		}

		m := &state.Market{
			MarketID:                  p.MarketID,
			BaseSymbol:                p.BaseSymbol,
			QuoteAsset:                p.QuoteAsset,
			Authority:                 p.Authority,
			FeeVault:                  p.FeeVault,
			InsuranceVault:            p.InsuranceVault,
			MaintenanceMarginRatioBps: defaultMaintenanceMarginBps,
			BaseMarginRatioBps:        defaultBaseMarginBps,
			AutoDeleverageEnabled:     true,
			AuctionDiscountBps:        0,
			IndexPrice:                defaultIndexPrice,
			LastFundingTime:           e.now().Unix(),
		}
		if err := tx.CreateMarket(m); err != nil {
			return err
		}
		return emit(&event.MarketInitialized{
			Market:     p.MarketID,
			BaseSymbol: p.BaseSymbol,
			QuoteAsset: p.QuoteAsset,
			Authority:  p.Authority,
		})
	})
}

// DepositCollateral pulls amount of asset into custody and credits the
// position's collateral balance.
func (e *Engine) DepositCollateral(ctx context.Context, owner uuid.UUID, marketID, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount %d: %w", amount, ErrInvalidAmount)
	}
	return e.run(ctx, "deposit_collateral", func(tx Tx, emit func(event.Event) error) error {
		m, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		if asset != m.QuoteAsset {
			return fmt.Errorf("deposit asset %s, market quotes %s: %w", asset, m.QuoteAsset, ErrAssetMismatch)
		}
		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		newCollateral, err := numeric.CheckedAdd(pos.Collateral, amount)
		if err != nil {
			return err
		}
		if err := e.custody.TransferIn(ctx, owner, asset, amount); err != nil {
			return fmt.Errorf("custody transfer in: %w", err)
		}
		pos.Collateral = newCollateral
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
		return emit(&event.CollateralDeposited{
			Owner:  owner,
			Market: marketID,
			Asset:  asset,
			Amount: amount,
		})
	})
}

// WithdrawCollateral pays collateral back out of custody. The position
// must hold the amount and must be margin-healthy at the current mark
// before the withdrawal is applied.
func (e *Engine) WithdrawCollateral(ctx context.Context, owner uuid.UUID, marketID, asset string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdraw amount %d: %w", amount, ErrInvalidAmount)
	}
	return e.run(ctx, "withdraw_collateral", func(tx Tx, emit func(event.Event) error) error {
		m, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		if asset != m.QuoteAsset {
			return fmt.Errorf("withdraw asset %s, market quotes %s: %w", asset, m.QuoteAsset, ErrAssetMismatch)
		}
		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		if amount > pos.Collateral {
			return fmt.Errorf("withdraw %d exceeds collateral %d: %w", amount, pos.Collateral, ErrInsufficientCollateral)
		}
		if !pos.IsFlat() {
			mark, err := e.markPrice(ctx, marketID)
			if err != nil {
				return err
			}
			healthy, _, err := e.evaluator.Evaluate(pos, m, mark)
			if err != nil {
				return err
			}
			if !healthy {
				return fmt.Errorf("withdraw while unhealthy: %w", ErrInsufficientMargin)
			}
		}
		if err := e.custody.TransferOut(ctx, owner, asset, amount); err != nil {
			return fmt.Errorf("custody transfer out: %w", err)
		}
		pos.Collateral -= amount
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
		return emit(&event.CollateralWithdrawn{
			Owner:  owner,
			Market: marketID,
			Asset:  asset,
			Amount: amount,
		})
	})
}

// OpenPosition adds size to the owner's position at the market's posted
// index price. A flat position takes the index price as entry; a same-side
// add blends the entry via size-weighted average. Opening against an
// existing opposite-side position is rejected. The trade must respect the
// 10x leverage cap and leave the position margin-healthy at the live mark.
func (e *Engine) OpenPosition(ctx context.Context, owner uuid.UUID, marketID string, size int64, isLong bool) error {
	if size <= 0 {
		return fmt.Errorf("position size %d: %w", size, ErrInvalidAmount)
	}
	side := state.SideShort
	if isLong {
		side = state.SideLong
	}
	mark, err := e.markPrice(ctx, marketID)
	if err != nil {
		return err
	}
	return e.run(ctx, "open_position", func(tx Tx, emit func(event.Event) error) error {
		m, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		if !pos.IsFlat() && pos.Side != side {
			return ErrOppositePositionNotSupported
		}

		cost, err := numeric.CheckedMul(size, mark)
		if err != nil {
			return err
		}
		buyingPower, err := numeric.CheckedMul(pos.Collateral, maxLeverage)
		if err != nil {
			return err
		}
		if cost > buyingPower {
			return fmt.Errorf("cost %d exceeds %dx collateral %d: %w", cost, maxLeverage, pos.Collateral, ErrInsufficientMargin)
		}

		if pos.IsFlat() {
			pos.EntryPrice = m.IndexPrice
		} else {
			entry, err := numeric.WeightedAveragePrice(pos.EntryPrice, pos.Size, m.IndexPrice, size)
			if err != nil {
				return err
			}
			pos.EntryPrice = entry
		}
		newSize, err := numeric.CheckedAdd(pos.Size, size)
		if err != nil {
			return err
		}
		pos.Size = newSize
		pos.Side = side

		if err := m.AddOpenInterest(side, size); err != nil {
			return err
		}

		healthy, _, err := e.evaluator.Evaluate(pos, m, mark)
		if err != nil {
			return err
		}
		if !healthy {
			return fmt.Errorf("post-trade margin check: %w", ErrInsufficientMargin)
		}

		if err := tx.SaveMarket(m); err != nil {
			return err
		}
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
		return emit(&event.PositionOpened{
			Owner:  owner,
			Market: marketID,
			Size:   pos.Size,
			IsLong: isLong,
		})
	})
}

// ClosePosition realizes the full position at the live mark price. PnL is
// settled into collateral, clamped at zero on the low end; open interest
// is released and the exposure fields reset.
func (e *Engine) ClosePosition(ctx context.Context, owner uuid.UUID, marketID string) error {
	mark, err := e.markPrice(ctx, marketID)
	if err != nil {
		return err
	}
	return e.run(ctx, "close_position", func(tx Tx, emit func(event.Event) error) error {
		m, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		if pos.IsFlat() {
			return ErrNoOpenPosition
		}

		realized, err := e.closeAtMark(pos, m, mark)
		if err != nil {
			return err
		}

		if err := tx.SaveMarket(m); err != nil {
			return err
		}
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
		return emit(&event.PositionClosed{
			Owner:       owner,
			Market:      marketID,
			RealizedPnL: realized,
		})
	})
}

// closeAtMark settles the whole position at mark and releases open
// interest. Mutates pos and m in place; caller saves.
func (e *Engine) closeAtMark(pos *state.Position, m *state.Market, mark int64) (int64, error) {
	realized, err := state.PnL(pos.Side, pos.Size, pos.EntryPrice, mark)
	if err != nil {
		return 0, err
	}
	settled, err := numeric.CheckedAdd(pos.Collateral, realized)
	if err != nil {
		return 0, err
	}
	pos.Collateral = numeric.ClampNonNegative(settled)
	m.ReduceOpenInterest(pos.Side, pos.Size)
	pos.Reset()
	return realized, nil
}

// SettleFunding applies the market's current funding rate to one position:
// payment = size * rate, added to collateral and clamped at zero on the
// low end. A negative rate debits the position.
func (e *Engine) SettleFunding(ctx context.Context, owner uuid.UUID, marketID string) error {
	return e.run(ctx, "settle_funding", func(tx Tx, emit func(event.Event) error) error {
		m, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		if pos.IsFlat() {
			return ErrNoOpenPosition
		}
		payment, err := state.FundingPayment(pos, m.FundingRate)
		if err != nil {
			return err
		}
		settled, err := numeric.CheckedAdd(pos.Collateral, payment)
		if err != nil {
			return err
		}
		pos.Collateral = numeric.ClampNonNegative(settled)
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
		e.metrics.ObserveFundingSettled(marketID)
		return emit(&event.FundingSettled{
			Owner:          owner,
			Market:         marketID,
			FundingPayment: payment,
		})
	})
}

// UpdateFundingRate recomputes the market's funding rate from the live
// mark price and open-interest skew. Only the market authority may call
// it. The index price is a stable reference and is never rewritten here.
// Calling twice in the same second is a no-op: the rate and last funding
// time are left untouched and no event is emitted.
func (e *Engine) UpdateFundingRate(ctx context.Context, authority uuid.UUID, marketID string) error {
	mark, err := e.markPrice(ctx, marketID)
	if err != nil {
		return err
	}
	now := e.now().Unix()
	return e.run(ctx, "update_funding_rate", func(tx Tx, emit func(event.Event) error) error {
		m, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		if authority != m.Authority {
			return fmt.Errorf("funding update by non-authority: %w", ErrUnauthorized)
		}
		rate, changed, err := state.NextFundingRate(m, mark, now)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		m.FundingRate = rate
		m.LastFundingTime = now
		if err := tx.SaveMarket(m); err != nil {
			return err
		}
		e.metrics.ObserveFundingRate(marketID, rate)
		return emit(&event.FundingRateUpdated{
			Market:         marketID,
			NewFundingRate: rate,
			UpdatedAt:      now,
		})
	})
}

// LiquidatePosition executes one Dutch-auction liquidation slice of
// liqSize against an unhealthy position. The slice realizes PnL, takes
// the market's current discount from the remaining equity, pays the
// liquidator 10% of the discount, escalates the discount for the next
// slice, and runs the auto-deleverage hook when enabled.
func (e *Engine) LiquidatePosition(ctx context.Context, liquidator, owner uuid.UUID, marketID string, liqSize int64) error {
	if liqSize <= 0 {
		return fmt.Errorf("liquidation size %d: %w", liqSize, ErrInvalidAmount)
	}
	mark, err := e.markPrice(ctx, marketID)
	if err != nil {
		return err
	}
	return e.run(ctx, "liquidate_position", func(tx Tx, emit func(event.Event) error) error {
		m, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		if pos.IsFlat() {
			return ErrNoOpenPosition
		}
		if liqSize > pos.Size {
			return fmt.Errorf("liquidation size %d exceeds position size %d: %w", liqSize, pos.Size, ErrInvalidAmount)
		}

		healthy, _, err := e.evaluator.Evaluate(pos, m, mark)
		if err != nil {
			return err
		}
		if healthy {
			return ErrPositionNotLiquidatable
		}

		out, err := state.ComputeLiquidation(pos, m, liqSize, mark)
		if err != nil {
			return err
		}

		closedSide := pos.Side
		pos.Collateral = out.FinalCollateral
		pos.Size -= liqSize
		if pos.Size == 0 {
			pos.Reset()
		}
		m.ReduceOpenInterest(closedSide, liqSize)
		m.EscalateAuctionDiscount()

		if out.LiquidatorReward > 0 {
			if err := e.custody.TransferOut(ctx, liquidator, m.QuoteAsset, out.LiquidatorReward); err != nil {
				return fmt.Errorf("liquidator reward payout: %w", err)
			}
		}

		if err := tx.SaveMarket(m); err != nil {
			return err
		}
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
		if err := emit(&event.PositionLiquidated{
			Owner:           owner,
			Liquidator:      liquidator,
			Market:          marketID,
			Penalty:         out.DiscountAmount,
			Reward:          out.LiquidatorReward,
			LiquidationSize: liqSize,
		}); err != nil {
			return err
		}

		e.metrics.ObserveLiquidation(marketID, out.LiquidatorReward, m.AuctionDiscountBps)

		if m.AutoDeleverageEnabled {
			reduced, err := e.adl.Deleverage(tx, m, closedSide, liqSize, mark, emit)
			if err != nil {
				return fmt.Errorf("auto-deleverage: %w", err)
			}
			if reduced > 0 {
				e.metrics.ObserveDeleverage(marketID, reduced)
			}
		}
		return nil
	})
}

// PlaceBracketOrder attaches an OCO stop-loss/take-profit pair to the
// owner's open position, snapshotting its current size and side. For a
// long the stop-loss must sit below the take-profit; mirrored for shorts.
// Placing again overwrites any existing bracket.
func (e *Engine) PlaceBracketOrder(ctx context.Context, owner uuid.UUID, marketID string, stopLoss, takeProfit int64) error {
	if stopLoss <= 0 || takeProfit <= 0 {
		return fmt.Errorf("bracket prices sl=%d tp=%d: %w", stopLoss, takeProfit, ErrInvalidAmount)
	}
	return e.run(ctx, "place_bracket_order", func(tx Tx, emit func(event.Event) error) error {
		if _, err := tx.Market(marketID); err != nil {
			return err
		}
		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		if pos.IsFlat() {
			return ErrNoOpenPosition
		}
		switch pos.Side {
		case state.SideLong:
			if stopLoss >= takeProfit {
				return fmt.Errorf("long bracket needs sl < tp: %w", ErrInvalidAmount)
			}
		case state.SideShort:
			if stopLoss <= takeProfit {
				return fmt.Errorf("short bracket needs sl > tp: %w", ErrInvalidAmount)
			}
		}

		b, err := tx.Bracket(owner, marketID)
		if err != nil {
			return err
		}
		b.StopLossPrice = stopLoss
		b.TakeProfitPrice = takeProfit
		b.Size = pos.Size
		b.Side = pos.Side
		if err := tx.SaveBracket(b); err != nil {
			return err
		}
		return emit(&event.BracketOrderPlaced{
			Owner:           owner,
			Market:          marketID,
			StopLossPrice:   stopLoss,
			TakeProfitPrice: takeProfit,
			Size:            pos.Size,
			IsLong:          pos.Side == state.SideLong,
		})
	})
}

// TriggerBracketOrder fires an armed bracket when the live mark crosses
// either leg: for a long, mark <= stop-loss or mark >= take-profit;
// mirrored for shorts. Anyone may call it. The fill closes the live
// position in full, not the placement snapshot, and disarms the bracket.
// A mark inside the band returns ErrTriggerConditionNotMet with no state
// change.
func (e *Engine) TriggerBracketOrder(ctx context.Context, owner uuid.UUID, marketID string) error {
	mark, err := e.markPrice(ctx, marketID)
	if err != nil {
		return err
	}
	return e.run(ctx, "trigger_bracket_order", func(tx Tx, emit func(event.Event) error) error {
		m, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		b, err := tx.Bracket(owner, marketID)
		if err != nil {
			return err
		}
		if !b.Armed() {
			return ErrNoActiveOrder
		}

		var stopLossLeg bool
		switch b.Side {
		case state.SideLong:
			switch {
			case mark <= b.StopLossPrice:
				stopLossLeg = true
			case mark >= b.TakeProfitPrice:
				stopLossLeg = false
			default:
				return ErrTriggerConditionNotMet
			}
		case state.SideShort:
			switch {
			case mark >= b.StopLossPrice:
				stopLossLeg = true
			case mark <= b.TakeProfitPrice:
				stopLossLeg = false
			default:
				return ErrTriggerConditionNotMet
			}
		default:
			return ErrNoActiveOrder
		}

		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		if pos.IsFlat() {
			return ErrNoOpenPosition
		}

		realized, err := e.closeAtMark(pos, m, mark)
		if err != nil {
			return err
		}
		b.Size = 0

		if err := tx.SaveMarket(m); err != nil {
			return err
		}
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
		if err := tx.SaveBracket(b); err != nil {
			return err
		}
		return emit(&event.BracketOrderTriggered{
			Owner:        owner,
			Market:       marketID,
			TriggerPrice: mark,
			RealizedPnL:  realized,
			StopLoss:     stopLossLeg,
		})
	})
}

// CancelBracketOrder disarms the owner's bracket without touching the
// position.
func (e *Engine) CancelBracketOrder(ctx context.Context, owner uuid.UUID, marketID string) error {
	return e.run(ctx, "cancel_bracket_order", func(tx Tx, emit func(event.Event) error) error {
		if _, err := tx.Market(marketID); err != nil {
			return err
		}
		b, err := tx.Bracket(owner, marketID)
		if err != nil {
			return err
		}
		if !b.Armed() {
			return ErrNoActiveOrder
		}
		b.Size = 0
		if err := tx.SaveBracket(b); err != nil {
			return err
		}
		return emit(&event.BracketOrderCancelled{
			Owner:  owner,
			Market: marketID,
		})
	})
}

// PlaceStopOrder attaches a single-trigger order (stop-loss or
// take-profit) to the owner's open position.
func (e *Engine) PlaceStopOrder(ctx context.Context, owner uuid.UUID, marketID string, triggerPrice int64, isTakeProfit bool) error {
	if triggerPrice <= 0 {
		return fmt.Errorf("trigger price %d: %w", triggerPrice, ErrInvalidAmount)
	}
	return e.run(ctx, "place_stop_order", func(tx Tx, emit func(event.Event) error) error {
		if _, err := tx.Market(marketID); err != nil {
			return err
		}
		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		if pos.IsFlat() {
			return ErrNoOpenPosition
		}
		s, err := tx.Stop(owner, marketID)
		if err != nil {
			return err
		}
		s.TriggerPrice = triggerPrice
		s.IsTakeProfit = isTakeProfit
		s.Size = pos.Size
		s.Side = pos.Side
		if err := tx.SaveStop(s); err != nil {
			return err
		}
		return emit(&event.StopOrderPlaced{
			Owner:        owner,
			Market:       marketID,
			TriggerPrice: triggerPrice,
			IsTakeProfit: isTakeProfit,
		})
	})
}

// TriggerStopOrder fires an armed stop order when the live mark crosses
// its threshold in the profitable direction for a take-profit, or the
// adverse direction for a stop-loss. The fill closes the live position
// and disarms the order.
func (e *Engine) TriggerStopOrder(ctx context.Context, owner uuid.UUID, marketID string) error {
	mark, err := e.markPrice(ctx, marketID)
	if err != nil {
		return err
	}
	return e.run(ctx, "trigger_stop_order", func(tx Tx, emit func(event.Event) error) error {
		m, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		s, err := tx.Stop(owner, marketID)
		if err != nil {
			return err
		}
		if !s.Armed() {
			return ErrNoActiveOrder
		}

		long := s.Side == state.SideLong
		var crossed bool
		if s.IsTakeProfit {
			crossed = (long && mark >= s.TriggerPrice) || (!long && mark <= s.TriggerPrice)
		} else {
			crossed = (long && mark <= s.TriggerPrice) || (!long && mark >= s.TriggerPrice)
		}
		if !crossed {
			return ErrTriggerConditionNotMet
		}

		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		if pos.IsFlat() {
			return ErrNoOpenPosition
		}

		realized, err := e.closeAtMark(pos, m, mark)
		if err != nil {
			return err
		}
		s.Size = 0

		if err := tx.SaveMarket(m); err != nil {
			return err
		}
		if err := tx.SavePosition(pos); err != nil {
			return err
		}
		if err := tx.SaveStop(s); err != nil {
			return err
		}
		return emit(&event.StopOrderTriggered{
			Owner:       owner,
			Market:      marketID,
			RealizedPnL: realized,
		})
	})
}

// GetMarket returns a copy of the market record.
func (e *Engine) GetMarket(ctx context.Context, marketID string) (*state.Market, error) {
	var m *state.Market
	err := e.store.InTx(ctx, func(tx Tx) error {
		got, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		m = got
		return nil
	})
	return m, err
}

// GetPosition returns a copy of the owner's position record.
func (e *Engine) GetPosition(ctx context.Context, owner uuid.UUID, marketID string) (*state.Position, error) {
	var p *state.Position
	err := e.store.InTx(ctx, func(tx Tx) error {
		got, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		p = got
		return nil
	})
	return p, err
}

// GetBracket returns a copy of the owner's bracket order record.
func (e *Engine) GetBracket(ctx context.Context, owner uuid.UUID, marketID string) (*state.BracketOrder, error) {
	var b *state.BracketOrder
	err := e.store.InTx(ctx, func(tx Tx) error {
		got, err := tx.Bracket(owner, marketID)
		if err != nil {
			return err
		}
		b = got
		return nil
	})
	return b, err
}

// MarginStatus reports whether the position is healthy at the live mark,
// with its net equity. Read-only; used by the keeper to scan candidates.
func (e *Engine) MarginStatus(ctx context.Context, owner uuid.UUID, marketID string) (bool, int64, error) {
	mark, err := e.markPrice(ctx, marketID)
	if err != nil {
		return false, 0, err
	}
	var (
		healthy bool
		equity  int64
	)
	err = e.store.InTx(ctx, func(tx Tx) error {
		m, err := tx.Market(marketID)
		if err != nil {
			return err
		}
		pos, err := tx.Position(owner, marketID)
		if err != nil {
			return err
		}
		healthy, equity, err = e.evaluator.Evaluate(pos, m, mark)
		return err
	})
	return healthy, equity, err
}
