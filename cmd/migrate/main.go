package main

import (
	"context"
	"flag"

	"PerpCore/internal/config"
	"PerpCore/internal/observability"
	"PerpCore/internal/persistence"
)

func main() {
	cfg := config.MustLoad()
	log := observability.NewLogger("migrate")

	direction := "up"
	if flag.NArg() > 0 {
		direction = flag.Arg(0)
	}

	ctx := context.Background()
	db, err := persistence.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer db.Close()

	m := persistence.NewMigrator(db, cfg.Postgres.MigrationsDir, log)
	switch direction {
	case "up":
		err = m.Up(ctx)
	case "down":
		err = m.Down(ctx)
	default:
		log.Fatal().Str("direction", direction).Msg("usage: migrate [up|down]")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Str("direction", direction).Msg("migration complete")
}
