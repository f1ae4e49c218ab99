package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"amparo/internal/criteria"
	criteriahandler "amparo/internal/criteria/handler"
	criteriametrics "amparo/internal/criteria/metrics"
	"amparo/internal/evaluation"
	evaluationhandler "amparo/internal/evaluation/handler"
	evaluationmetrics "amparo/internal/evaluation/metrics"
	"amparo/internal/household"
	householdhandler "amparo/internal/household/handler"
	"amparo/internal/jwttoken"
	"amparo/internal/platform/config"
	"amparo/internal/platform/httpserver"
	"amparo/internal/platform/logger"
	"amparo/internal/platform/metrics"
	platformredis "amparo/internal/platform/redis"
	"amparo/internal/settings"
	settingshandler "amparo/internal/settings/handler"
	"amparo/internal/stats"
	statshandler "amparo/internal/stats/handler"
	httptransport "amparo/internal/transport/http"
	"amparo/pkg/platform/tx"
)

// main wires stores, services and the HTTP surface. Business logic lives
// in the internal packages; this file only assembles them.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	var (
		householdStore  household.Store
		criteriaStore   criteria.Store
		evaluationStore evaluation.Store
		settingsStore   settings.Store
		runner          tx.Runner
	)

	if cfg.PostgresDSN != "" {
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
		householdStore = household.NewPostgres(db)
		criteriaStore = criteria.NewPostgres(db)
		evaluationStore = evaluation.NewPostgres(db)
		settingsStore = settings.NewPostgres(db)
		runner = tx.NewDBRunner(db)
		log.Info("using postgres stores")
	} else {
		householdStore = household.NewMemoryStore()
		criteriaStore = criteria.NewMemoryStore()
		evaluationStore = evaluation.NewMemoryStore()
		settingsStore = settings.NewMemory()
		runner = tx.NewSerialRunner()
		log.Warn("no postgres DSN configured, using in-memory stores")
	}

	evalMetrics := evaluationmetrics.New()
	critMetrics := criteriametrics.New()
	httpMetrics := metrics.New()

	associator := evaluation.NewAssociator(evaluationStore, criteriaStore, householdStore, runner, evalMetrics, log)
	evaluationService := evaluation.NewService(evaluationStore, criteriaStore, associator, runner, cfg.LockTimeout, evalMetrics, log)
	householdService := household.NewService(householdStore, evaluationService, log)
	criteriaService := criteria.NewService(criteriaStore, associator, critMetrics, log)
	settingsService := settings.NewService(settingsStore, evaluationService, runner, log)

	var statsCache stats.Cache
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err.Error())
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		statsCache = stats.NewRedisCache(redisClient)
		log.Info("stats cache enabled", "ttl", config.StatsCacheTTL.String())
	}
	statsService := stats.NewService(householdStore, evaluationStore, statsCache, config.StatsCacheTTL, log)

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "amparo", "amparo-reviewers")

	router := httptransport.NewRouter(httptransport.Handlers{
		Households:  householdhandler.New(householdService, log),
		Criteria:    criteriahandler.New(criteriaService, log),
		Evaluations: evaluationhandler.New(evaluationService, settingsService, log),
		Settings:    settingshandler.New(settingsService, log),
		Stats:       statshandler.New(statsService),
	}, tokens, httpMetrics, log)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
		os.Exit(1)
	}
	log.Info("server stopped")
}
