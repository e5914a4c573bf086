// Package oracle provides mark-price retrieval. The core treats prices as
// external input: a quote carries its own timestamp and callers enforce a
// maximum staleness window.
package oracle

import (
	"context"
	"errors"
	"time"
)

// ErrNoQuote is returned when no price is available for a market.
var ErrNoQuote = errors.New("no price quote available")

// Quote is one oracle price observation.
type Quote struct {
	Price int64
	AsOf  time.Time
}

// PriceOracle retrieves the current mark price for a market.
type PriceOracle interface {
	GetPrice(ctx context.Context, marketID string) (Quote, error)
}
