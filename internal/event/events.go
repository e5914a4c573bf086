package event

import "github.com/google/uuid"

// MarketInitialized is emitted once when a market record is created.
type MarketInitialized struct {
	Market     string    `json:"market"`
	BaseSymbol string    `json:"base_symbol"`
	QuoteAsset string    `json:"quote_asset"`
	Authority  uuid.UUID `json:"authority"`
}

func (e *MarketInitialized) EventType() EventType { return EventTypeMarketInitialized }
func (e *MarketInitialized) MarketID() string     { return e.Market }

type CollateralDeposited struct {
	Owner  uuid.UUID `json:"owner"`
	Market string    `json:"market"`
	Asset  string    `json:"asset"`
	Amount int64     `json:"amount"`
}

func (e *CollateralDeposited) EventType() EventType { return EventTypeCollateralDeposited }
func (e *CollateralDeposited) MarketID() string     { return e.Market }

type CollateralWithdrawn struct {
	Owner  uuid.UUID `json:"owner"`
	Market string    `json:"market"`
	Asset  string    `json:"asset"`
	Amount int64     `json:"amount"`
}

func (e *CollateralWithdrawn) EventType() EventType { return EventTypeCollateralWithdrawn }
func (e *CollateralWithdrawn) MarketID() string     { return e.Market }

// PositionOpened carries the post-trade size, not the added leg.
type PositionOpened struct {
	Owner  uuid.UUID `json:"owner"`
	Market string    `json:"market"`
	Size   int64     `json:"size"`
	IsLong bool      `json:"is_long"`
}

func (e *PositionOpened) EventType() EventType { return EventTypePositionOpened }
func (e *PositionOpened) MarketID() string     { return e.Market }

type PositionClosed struct {
	Owner       uuid.UUID `json:"owner"`
	Market      string    `json:"market"`
	RealizedPnL int64     `json:"realized_pnl"`
}

func (e *PositionClosed) EventType() EventType { return EventTypePositionClosed }
func (e *PositionClosed) MarketID() string     { return e.Market }

// PositionLiquidated reports one liquidation slice. Penalty is the Dutch
// auction discount taken from the position's equity; Reward is the
// liquidator's logical entitlement (custody settles the transfer).
type PositionLiquidated struct {
	Owner           uuid.UUID `json:"owner"`
	Liquidator      uuid.UUID `json:"liquidator"`
	Market          string    `json:"market"`
	Penalty         int64     `json:"penalty"`
	Reward          int64     `json:"reward"`
	LiquidationSize int64     `json:"liquidation_size"`
}

func (e *PositionLiquidated) EventType() EventType { return EventTypePositionLiquidated }
func (e *PositionLiquidated) MarketID() string     { return e.Market }

// PositionDeleveraged is emitted for each opposing position reduced by the
// auto-deleverage hook after a liquidation.
type PositionDeleveraged struct {
	Owner       uuid.UUID `json:"owner"`
	Market      string    `json:"market"`
	ReducedSize int64     `json:"reduced_size"`
	RealizedPnL int64     `json:"realized_pnl"`
}

func (e *PositionDeleveraged) EventType() EventType { return EventTypePositionDeleveraged }
func (e *PositionDeleveraged) MarketID() string     { return e.Market }

type FundingRateUpdated struct {
	Market         string `json:"market"`
	NewFundingRate int64  `json:"new_funding_rate"`
	UpdatedAt      int64  `json:"updated_at"`
}

func (e *FundingRateUpdated) EventType() EventType { return EventTypeFundingRateUpdated }
func (e *FundingRateUpdated) MarketID() string     { return e.Market }

type FundingSettled struct {
	Owner          uuid.UUID `json:"owner"`
	Market         string    `json:"market"`
	FundingPayment int64     `json:"funding_payment"`
}

func (e *FundingSettled) EventType() EventType { return EventTypeFundingSettled }
func (e *FundingSettled) MarketID() string     { return e.Market }

type BracketOrderPlaced struct {
	Owner           uuid.UUID `json:"owner"`
	Market          string    `json:"market"`
	StopLossPrice   int64     `json:"stop_loss_price"`
	TakeProfitPrice int64     `json:"take_profit_price"`
	Size            int64     `json:"size"`
	IsLong          bool      `json:"is_long"`
}

func (e *BracketOrderPlaced) EventType() EventType { return EventTypeBracketOrderPlaced }
func (e *BracketOrderPlaced) MarketID() string     { return e.Market }

type BracketOrderTriggered struct {
	Owner        uuid.UUID `json:"owner"`
	Market       string    `json:"market"`
	TriggerPrice int64     `json:"trigger_price"`
	RealizedPnL  int64     `json:"realized_pnl"`
	StopLoss     bool      `json:"stop_loss"` // false: take-profit leg fired
}

func (e *BracketOrderTriggered) EventType() EventType { return EventTypeBracketOrderTriggered }
func (e *BracketOrderTriggered) MarketID() string     { return e.Market }

type BracketOrderCancelled struct {
	Owner  uuid.UUID `json:"owner"`
	Market string    `json:"market"`
}

func (e *BracketOrderCancelled) EventType() EventType { return EventTypeBracketOrderCancelled }
func (e *BracketOrderCancelled) MarketID() string     { return e.Market }

type StopOrderPlaced struct {
	Owner        uuid.UUID `json:"owner"`
	Market       string    `json:"market"`
	TriggerPrice int64     `json:"trigger_price"`
	IsTakeProfit bool      `json:"is_take_profit"`
}

func (e *StopOrderPlaced) EventType() EventType { return EventTypeStopOrderPlaced }
func (e *StopOrderPlaced) MarketID() string     { return e.Market }

type StopOrderTriggered struct {
	Owner       uuid.UUID `json:"owner"`
	Market      string    `json:"market"`
	RealizedPnL int64     `json:"realized_pnl"`
}

func (e *StopOrderTriggered) EventType() EventType { return EventTypeStopOrderTriggered }
func (e *StopOrderTriggered) MarketID() string     { return e.Market }
