package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"PerpCore/internal/config"
	"PerpCore/internal/custody"
	"PerpCore/internal/engine"
	"PerpCore/internal/observability"
	"PerpCore/internal/oracle"
	"PerpCore/internal/persistence"
	"PerpCore/internal/publisher"
	"PerpCore/internal/server"
)

func main() {
	cfg := config.MustLoad()
	log := observability.NewLogger("perpcore")
	log.Info().Str("env", cfg.Env).Msg("perpcore starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := persistence.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer db.Close()

	migrator := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir, log)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}

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
	if err := sink.EnsureStream(ctx); err != nil {
		log.Fatal().Err(err).Msg("event stream init failed")
	}

	eng, err := engine.New(engine.Config{
		Store:        persistence.NewPostgresStore(db),
		Oracle:       oracle.NewRedisOracle(rdb),
		Custody:      custody.NewVaultRecorder(),
		Sink:         sink,
		Metrics:      observability.NewMetrics(),
		Logger:       observability.NewLogger("engine"),
		MaxStaleness: cfg.Risk.MaxQuoteStaleness,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}

	ready := func() bool {
		pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return db.PingContext(pingCtx) == nil && nc.Status() == nats.CONNECTED
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      server.New(eng, observability.NewLogger("http"), ready).Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
		os.Exit(1)
	}
	log.Info().Msg("perpcore stopped")
}
