package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"example.com/useractivity/internal/catalog"
	"example.com/useractivity/internal/config"
	"example.com/useractivity/internal/consumer"
	"example.com/useractivity/internal/domain"
	"example.com/useractivity/internal/logger"
	"example.com/useractivity/internal/persistence/factory"
	httptransport "example.com/useractivity/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("user-activity-consumer", "info")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New("user-activity-consumer", cfg.LogLevel)

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
	)
	handler := consumer.NewRecordingHandler(service, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httptransport.Run(ctx, httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler(), log); err != nil {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	for _, topic := range cfg.ConsumerTopics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			consumeTopic(ctx, cfg, topic, handler, log.With().Str("topic", topic).Logger())
		}(topic)
	}

	<-ctx.Done()
	log.Info().Msg("consumer shutdown requested")
	wg.Wait()
}

const (
	minRestartDelay = time.Second
	maxRestartDelay = time.Minute
)

// consumeTopic runs a processor for topic until ctx is cancelled. When a message
// exhausts its retries the reader is closed without committing it and a new reader
// rejoins the group, so the message is redelivered rather than skipped.
func consumeTopic(ctx context.Context, cfg config.Config, topic string, handler consumer.Handler, log zerolog.Logger) {
	delay := minRestartDelay
	for {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		log.Info().Str("group", cfg.ConsumerGroupID).Msg("consumer started")
		err := consumer.NewProcessor(reader, handler, consumer.WithLogger(log)).Run(ctx)
		if closeErr := reader.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("reader close failed")
		}

		var handlerErr *consumer.HandlerError
		switch {
		case ctx.Err() != nil:
			return
		case errors.As(err, &handlerErr):
			log.Warn().Err(err).Dur("restart_in", delay).Msg("restarting consumer to redeliver message")
		default:
			log.Error().Err(err).Dur("restart_in", delay).Msg("consumer stopped with error")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, maxRestartDelay)
	}
}
