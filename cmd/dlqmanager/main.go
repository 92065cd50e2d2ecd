package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/useractivity/internal/config"
	"example.com/useractivity/internal/logger"
	"example.com/useractivity/internal/outbox"
	httptransport "example.com/useractivity/internal/transport/http"
)

const (
	defaultDLQBatchSize = 50
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("user-activity-dlq", "info")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New("user-activity-dlq", cfg.LogLevel)
	if cfg.StoreDriver != config.DriverPostgres {
		log.Fatal().Str("driver", cfg.StoreDriver).Msg("dlq manager requires the postgres store")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)

	go func() {
		if err := httptransport.Run(ctx, httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler(), log); err != nil {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", cfg.DLQPollInterval).Int("max_retries", cfg.DLQMaxRetries).Msg("dlq manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("dlq manager received shutdown signal")
			return
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			if err != nil {
				log.Error().Err(err).Msg("dlq manager error")
			} else if processed > 0 {
				log.Info().Int("processed", processed).Msg("dlq entries handled")
			}
		}
	}
}
