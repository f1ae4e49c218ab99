// Command associate links every active criterion to every existing
// evaluation and recalculates scores. Run it after bulk imports or
// after seeding the criteria catalog.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	_ "github.com/lib/pq"

	"amparo/internal/criteria"
	"amparo/internal/evaluation"
	evaluationmetrics "amparo/internal/evaluation/metrics"
	"amparo/internal/household"
	"amparo/internal/platform/config"
	"amparo/internal/platform/logger"
	"amparo/pkg/platform/tx"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "overall run deadline")
	flag.Parse()

	cfg := config.FromEnv()
	log := logger.New()

	if cfg.PostgresDSN == "" {
		log.Error("AMPARO_POSTGRES_DSN is required")
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Error("open postgres", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Error("ping postgres", "error", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	evaluationStore := evaluation.NewPostgres(db)
	associator := evaluation.NewAssociator(
		evaluationStore,
		criteria.NewPostgres(db),
		household.NewPostgres(db),
		tx.NewDBRunner(db),
		evaluationmetrics.New(),
		log,
	)

	evaluations, err := evaluationStore.List(ctx)
	if err != nil {
		log.Error("list evaluations", "error", err.Error())
		os.Exit(1)
	}
	log.Info("bulk association started", "evaluations", len(evaluations))

	linked := 0
	rescored := 0
	for _, e := range evaluations {
		created, err := associator.Associate(ctx, e)
		if err != nil {
			log.Error("associate failed", "evaluation_id", e.ID.String(), "error", err.Error())
			os.Exit(1)
		}
		linked += created
		if created == 0 {
			continue
		}
		if _, err := associator.Rescore(ctx, e.ID); err != nil {
			log.Error("rescore failed", "evaluation_id", e.ID.String(), "error", err.Error())
			os.Exit(1)
		}
		rescored++
	}

	log.Info("bulk association finished",
		"evaluations", len(evaluations),
		"links_created", linked,
		"rescored", rescored)
}
