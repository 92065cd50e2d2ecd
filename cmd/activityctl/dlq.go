package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/useractivity/internal/outbox"
)

func newDLQCmd() *cobra.Command {
	var batch int
	var statsOnly bool
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Replay due dead-lettered outbox events once and print the backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if s.storage.Pool == nil {
				return errors.New("dlq requires STORE_DRIVER=postgres")
			}

			manager := outbox.NewDLQManager(s.storage.Pool, s.cfg.DLQMaxRetries, s.cfg.DLQBaseDelay)
			if !statsOnly {
				processed, err := manager.RunOnce(cmd.Context(), batch)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(os.Stdout, "processed %d entries\n", processed)
			}

			stats, err := manager.Stats(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(os.Stdout, "pending=%d due=%d quarantined=%d\n", stats.Pending, stats.Due, stats.Quarantined)
			return nil
		},
	}
	cmd.Flags().IntVarP(&batch, "batch", "b", 50, "Maximum entries to replay")
	cmd.Flags().BoolVar(&statsOnly, "stats", false, "Only print the backlog")
	return cmd
}
