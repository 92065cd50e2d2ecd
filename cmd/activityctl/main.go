package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/useractivity/internal/catalog"
	"example.com/useractivity/internal/config"
	"example.com/useractivity/internal/domain"
	"example.com/useractivity/internal/persistence/factory"
)

var (
	driverFlag string
	rootCmd    = &cobra.Command{
		Use:          "activityctl",
		Short:        "Operator CLI for the user activity store",
		SilenceUsage: true,
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&driverFlag, "driver", "d", "", "Store driver override (postgres, sqlite, memory)")

	rootCmd.AddCommand(newPageCmd(), newPruneCmd(), newPruneAllCmd(), newDLQCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// session bundles what every subcommand needs to talk to the store.
type session struct {
	cfg     config.Config
	storage *factory.Storage
	service *domain.Service
}

func (s *session) Close() {
	s.storage.Close()
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if driverFlag != "" {
		cfg.StoreDriver = driverFlag
	}

	storage, err := factory.NewStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		storage.Close()
		return nil, err
	}

	service := domain.NewService(
		storage.Repository,
		catalog.NewResolver(cfg.CatalogURL, cfg.CatalogTimeout, cfg.CatalogOpen),
		domain.WithLocation(loc),
		domain.WithEnrichConcurrency(cfg.EnrichConcurrency),
	)
	return &session{cfg: cfg, storage: storage, service: service}, nil
}
