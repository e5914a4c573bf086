package engine

import "errors"

// Operation error kinds. Every error aborts the whole operation before any
// state mutation is committed; callers match with errors.Is.
var (
	ErrInvalidAmount                = errors.New("invalid amount")
	ErrUnauthorized                 = errors.New("unauthorized")
	ErrInsufficientMargin           = errors.New("insufficient margin")
	ErrInsufficientCollateral       = errors.New("insufficient collateral")
	ErrNoOpenPosition               = errors.New("no open position")
	ErrNoActiveOrder                = errors.New("no active order")
	ErrPositionNotLiquidatable      = errors.New("position not liquidatable")
	ErrOppositePositionNotSupported = errors.New("cannot open position in opposite direction")
	ErrTriggerConditionNotMet       = errors.New("trigger condition not met")
	ErrAssetMismatch                = errors.New("asset does not match market quote asset")
	ErrStalePrice                   = errors.New("oracle price is stale")
	ErrMarketNotFound               = errors.New("market not found")
	ErrMarketExists                 = errors.New("market already exists")
)
