// Package keeper runs the venue's unattended duties: liquidating
// unhealthy positions, firing armed bracket and stop orders, updating
// funding rates, and relaying oracle prices from NATS into the price
// cache. A worker pool drains candidates so one slow market cannot stall
// the rest.
package keeper

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"PerpCore/internal/engine"
	"PerpCore/internal/oracle"
)

// PriceSubject is the NATS subject carrying oracle price updates, one
// token per market: perp.prices.<market>.
const PriceSubject = "perp.prices.*"

// CandidateSource lists the records the keeper must look at, outside any
// operation transaction. Both store implementations satisfy it.
type CandidateSource interface {
	MarketIDs(ctx context.Context) ([]string, error)
	OpenPositionOwners(ctx context.Context, marketID string) ([]uuid.UUID, error)
	ArmedBracketOwners(ctx context.Context, marketID string) ([]uuid.UUID, error)
}

// PriceWriter accepts relayed oracle quotes.
type PriceWriter interface {
	SetPrice(ctx context.Context, marketID string, q oracle.Quote) error
}

type Config struct {
	Engine *engine.Engine
	Source CandidateSource
	Prices PriceWriter
	Logger zerolog.Logger

	// Authority signs funding-rate updates.
	Authority uuid.UUID

	// LiquidatorID identifies this keeper in liquidation events.
	LiquidatorID uuid.UUID

	ScanInterval    time.Duration
	FundingInterval time.Duration
	Workers         int
}

type Keeper struct {
	engine  *engine.Engine
	source  CandidateSource
	prices  PriceWriter
	log     zerolog.Logger
	auth    uuid.UUID
	liqID   uuid.UUID
	scanInt time.Duration
	fundInt time.Duration
	workers int
}

func New(cfg Config) *Keeper {
	k := &Keeper{
		engine:  cfg.Engine,
		source:  cfg.Source,
		prices:  cfg.Prices,
		log:     cfg.Logger,
		auth:    cfg.Authority,
		liqID:   cfg.LiquidatorID,
		scanInt: cfg.ScanInterval,
		fundInt: cfg.FundingInterval,
		workers: cfg.Workers,
	}
	if k.scanInt <= 0 {
		k.scanInt = 2 * time.Second
	}
	if k.fundInt <= 0 {
		k.fundInt = time.Minute
	}
	if k.workers <= 0 {
		k.workers = 4
	}
	return k
}

// Run blocks until ctx is cancelled, driving the scan and funding loops.
func (k *Keeper) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		k.scanLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		k.fundingLoop(ctx)
	}()
	wg.Wait()
}

// SubscribePrices relays NATS price updates into the price cache. The
// returned subscription must be unsubscribed by the caller on shutdown.
func (k *Keeper) SubscribePrices(ctx context.Context, nc *nats.Conn) (*nats.Subscription, error) {
	type priceUpdate struct {
		MarketID string `json:"market_id"`
		Price    int64  `json:"price"`
		AsOf     int64  `json:"as_of"`
	}
	return nc.Subscribe(PriceSubject, func(msg *nats.Msg) {
		var pu priceUpdate
		if err := json.Unmarshal(msg.Data, &pu); err != nil {
			k.log.Warn().Str("subject", msg.Subject).Err(err).Msg("malformed price update")
			return
		}
		q := oracle.Quote{Price: pu.Price, AsOf: time.Unix(pu.AsOf, 0)}
		if err := k.prices.SetPrice(ctx, pu.MarketID, q); err != nil {
			k.log.Error().Str("market_id", pu.MarketID).Err(err).Msg("price cache write failed")
		}
	})
}

func (k *Keeper) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(k.scanInt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.ScanOnce(ctx)
		}
	}
}

type candidate struct {
	owner    uuid.UUID
	marketID string
	bracket  bool
}

// ScanOnce runs one pass over every market: unhealthy positions are
// liquidated, armed brackets evaluated. Called by the scan loop and
// usable directly for a one-shot sweep.
func (k *Keeper) ScanOnce(ctx context.Context) {
	markets, err := k.source.MarketIDs(ctx)
	if err != nil {
		k.log.Error().Err(err).Msg("list markets")
		return
	}

	candidates := make(chan candidate, 256)
	var wg sync.WaitGroup
	for i := 0; i < k.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range candidates {
				if c.bracket {
					k.tryBracket(ctx, c)
				} else {
					k.tryLiquidate(ctx, c)
				}
			}
		}()
	}

	for _, marketID := range markets {
		owners, err := k.source.OpenPositionOwners(ctx, marketID)
		if err != nil {
			k.log.Error().Str("market_id", marketID).Err(err).Msg("list open positions")
			continue
		}
		for _, owner := range owners {
			candidates <- candidate{owner: owner, marketID: marketID}
		}

		bracketed, err := k.source.ArmedBracketOwners(ctx, marketID)
		if err != nil {
			k.log.Error().Str("market_id", marketID).Err(err).Msg("list armed brackets")
			continue
		}
		for _, owner := range bracketed {
			candidates <- candidate{owner: owner, marketID: marketID, bracket: true}
		}
	}
	close(candidates)
	wg.Wait()
}

func (k *Keeper) tryLiquidate(ctx context.Context, c candidate) {
	healthy, _, err := k.engine.MarginStatus(ctx, c.owner, c.marketID)
	if err != nil {
		if !errors.Is(err, engine.ErrStalePrice) && !errors.Is(err, oracle.ErrNoQuote) {
			k.log.Error().Str("market_id", c.marketID).Err(err).Msg("margin scan")
		}
		return
	}
	if healthy {
		return
	}

	pos, err := k.engine.GetPosition(ctx, c.owner, c.marketID)
	if err != nil || pos.IsFlat() {
		return
	}
	err = k.engine.LiquidatePosition(ctx, k.liqID, c.owner, c.marketID, pos.Size)
	switch {
	case err == nil:
		k.log.Info().
			Str("market_id", c.marketID).
			Str("owner", c.owner.String()).
			Int64("size", pos.Size).
			Msg("liquidated position")
	case errors.Is(err, engine.ErrPositionNotLiquidatable),
		errors.Is(err, engine.ErrNoOpenPosition),
		errors.Is(err, engine.ErrInvalidAmount):
		// Lost the race to another liquidator or the position recovered.
	default:
		k.log.Error().Str("market_id", c.marketID).Err(err).Msg("liquidation failed")
	}
}

func (k *Keeper) tryBracket(ctx context.Context, c candidate) {
	err := k.engine.TriggerBracketOrder(ctx, c.owner, c.marketID)
	switch {
	case err == nil:
		k.log.Info().
			Str("market_id", c.marketID).
			Str("owner", c.owner.String()).
			Msg("bracket order triggered")
	case errors.Is(err, engine.ErrTriggerConditionNotMet),
		errors.Is(err, engine.ErrNoActiveOrder),
		errors.Is(err, engine.ErrNoOpenPosition),
		errors.Is(err, engine.ErrStalePrice),
		errors.Is(err, oracle.ErrNoQuote):
		// Not actionable this tick.
	default:
		k.log.Error().Str("market_id", c.marketID).Err(err).Msg("bracket trigger failed")
	}
}

func (k *Keeper) fundingLoop(ctx context.Context) {
	ticker := time.NewTicker(k.fundInt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.UpdateFundingOnce(ctx)
		}
	}
}

// UpdateFundingOnce recomputes the funding rate for every market.
func (k *Keeper) UpdateFundingOnce(ctx context.Context) {
	markets, err := k.source.MarketIDs(ctx)
	if err != nil {
		k.log.Error().Err(err).Msg("list markets")
		return
	}
	for _, marketID := range markets {
		err := k.engine.UpdateFundingRate(ctx, k.auth, marketID)
		switch {
		case err == nil:
		case errors.Is(err, engine.ErrStalePrice), errors.Is(err, oracle.ErrNoQuote):
			k.log.Warn().Str("market_id", marketID).Msg("funding update skipped, no fresh quote")
		default:
			k.log.Error().Str("market_id", marketID).Err(err).Msg("funding update failed")
		}
	}
}
