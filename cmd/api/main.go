package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/useractivity/internal/api"
	"example.com/useractivity/internal/auth"
	"example.com/useractivity/internal/catalog"
	"example.com/useractivity/internal/config"
	"example.com/useractivity/internal/domain"
	"example.com/useractivity/internal/logger"
	"example.com/useractivity/internal/outbox"
	"example.com/useractivity/internal/persistence/factory"
	httptransport "example.com/useractivity/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("user-activity-api", "info")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New("user-activity-api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, err := factory.NewStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open activity store")
	}
	defer storage.Close()

	loc, err := cfg.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid reference time zone")
	}
	service := domain.NewService(
		storage.Repository,
		catalog.NewResolver(cfg.CatalogURL, cfg.CatalogTimeout, cfg.CatalogOpen),
		domain.WithLocation(loc),
		domain.WithEnrichConcurrency(cfg.EnrichConcurrency),
	)
	if cfg.CatalogURL == "" {
		log.Warn().Bool("open", cfg.CatalogOpen).Msg("CATALOG_URL not set, targets resolve against the local catalog only")
	}

	var dispatcher *outbox.Dispatcher
	if storage.Pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(storage.Pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, log)
		go dispatcher.Start(ctx)
	}

	router := api.NewHandler(service, log).Routes()
	router.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	log.Info().
		Str("driver", storage.Driver).
		Str("timezone", loc.String()).
		Bool("outbox", dispatcher != nil).
		Msg("user activity api starting")

	if err := httptransport.Run(ctx, httptransport.DefaultServerConfig(cfg.HTTPAddress), authMiddleware.Wrap(router), log); err != nil {
		log.Error().Err(err).Msg("server error")
	}
	stop()

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
