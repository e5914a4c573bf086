package event

// EventType discriminator for event payloads.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeMarketInitialized
	EventTypeCollateralDeposited
	EventTypeCollateralWithdrawn
	EventTypePositionOpened
	EventTypePositionClosed
	EventTypePositionLiquidated
	EventTypePositionDeleveraged
	EventTypeFundingRateUpdated
	EventTypeFundingSettled
	EventTypeBracketOrderPlaced
	EventTypeBracketOrderTriggered
	EventTypeBracketOrderCancelled
	EventTypeStopOrderPlaced
	EventTypeStopOrderTriggered
)

// Event is the interface all outbound event payloads implement.
type Event interface {
	// EventType returns the discriminator.
	EventType() EventType

	// MarketID returns the market context.
	MarketID() string
}

func (et EventType) String() string {
	switch et {
	case EventTypeMarketInitialized:
		return "MarketInitialized"
	case EventTypeCollateralDeposited:
		return "CollateralDeposited"
	case EventTypeCollateralWithdrawn:
		return "CollateralWithdrawn"
	case EventTypePositionOpened:
		return "PositionOpened"
	case EventTypePositionClosed:
		return "PositionClosed"
	case EventTypePositionLiquidated:
		return "PositionLiquidated"
	case EventTypePositionDeleveraged:
		return "PositionDeleveraged"
	case EventTypeFundingRateUpdated:
		return "FundingRateUpdated"
	case EventTypeFundingSettled:
		return "FundingSettled"
	case EventTypeBracketOrderPlaced:
		return "BracketOrderPlaced"
	case EventTypeBracketOrderTriggered:
		return "BracketOrderTriggered"
	case EventTypeBracketOrderCancelled:
		return "BracketOrderCancelled"
	case EventTypeStopOrderPlaced:
		return "StopOrderPlaced"
	case EventTypeStopOrderTriggered:
		return "StopOrderTriggered"
	default:
		return "Unknown"
	}
}
