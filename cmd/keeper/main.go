package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"PerpCore/internal/config"
	"PerpCore/internal/custody"
	"PerpCore/internal/engine"
	"PerpCore/internal/keeper"
	"PerpCore/internal/observability"
	"PerpCore/internal/oracle"
	"PerpCore/internal/persistence"
	"PerpCore/internal/publisher"
)

func main() {
	cfg := config.MustLoad()
	log := observability.NewLogger("keeper")
	log.Info().Str("env", cfg.Env).Msg("keeper starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authority, err := uuid.Parse(cfg.Keeper.Authority)
	if err != nil {
		log.Fatal().Err(err).Msg("PERP_KEEPER_AUTHORITY must be a UUID")
	}
	liquidatorID, err := uuid.Parse(cfg.Keeper.LiquidatorID)
	if err != nil {
		log.Fatal().Err(err).Msg("PERP_KEEPER_LIQUIDATOR_ID must be a UUID")
	}

	db, err := persistence.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	nc, err := nats.Connect(cfg.NATS.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect failed")
	}
	defer nc.Drain()

	sink, err := publisher.New(nc, observability.NewLogger("publisher"))
	if err != nil {
		log.Fatal().Err(err).Msg("publisher init failed")
	}

	store := persistence.NewPostgresStore(db)
	priceCache := oracle.NewRedisOracle(rdb)

	eng, err := engine.New(engine.Config{
		Store:        store,
		Oracle:       priceCache,
		Custody:      custody.NewVaultRecorder(),
		Sink:         sink,
		Metrics:      observability.NewMetrics(),
		Logger:       observability.NewLogger("engine"),
		MaxStaleness: cfg.Risk.MaxQuoteStaleness,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}

	k := keeper.New(keeper.Config{
		Engine:          eng,
		Source:          store,
		Prices:          priceCache,
		Logger:          log,
		Authority:       authority,
		LiquidatorID:    liquidatorID,
		ScanInterval:    cfg.Keeper.ScanInterval,
		FundingInterval: cfg.Keeper.FundingInterval,
		Workers:         cfg.Keeper.Workers,
	})

	sub, err := k.SubscribePrices(ctx, nc)
	if err != nil {
		log.Fatal().Err(err).Msg("price subscribe failed")
	}
	defer sub.Unsubscribe()

	k.Run(ctx)
	log.Info().Msg("keeper stopped")
}
