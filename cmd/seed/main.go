package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/db"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/geocoder89/userhub/internal/repo/postgres"
	"github.com/geocoder89/userhub/internal/seed"
)

// One-shot import of the country/state/city hierarchy. Re-running it
// replaces the reference data wholesale.
func main() {
	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)

	if err := db.RunMigrations(cfg.DBURL, cfg.MigrationsPath); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	pool, err := db.NewPool(cfg.DBURL)

	if err != nil {
		log.Error("db connection failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo := postgres.NewLocationsRepo(pool, nil)
	client := seed.NewClient(10 * time.Second)
	importer := seed.NewImporter(client, repo, log)

	start := time.Now()

	totals, err := importer.Run(ctx)

	if err != nil {
		log.Error("import failed", "err", err)
		os.Exit(1)
	}

	log.Info("import complete",
		"countries", totals.Countries,
		"states", totals.States,
		"cities", totals.Cities,
		"failed_city_rows", totals.Failed,
		"elapsed", time.Since(start).Round(time.Second).String(),
	)
}
