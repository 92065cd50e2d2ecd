package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"example.com/useractivity/internal/api"
	"example.com/useractivity/internal/domain"
)

func newPageCmd() *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "page USER_ID TYPE",
		Short: "Print one day of a user's activity as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			return runPage(cmd.Context(), s.service, args[0], args[1], page, os.Stdout)
		},
	}
	cmd.Flags().IntVarP(&page, "page", "p", 0, "Day index, 0 is the most recent day")
	return cmd
}

func newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune USER_ID TYPE ACTIVITY_ID",
		Short: "Remove one activity owned by the user",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			return runPrune(cmd.Context(), s.service, args[0], args[1], args[2], os.Stdout)
		},
	}
}

func newPruneAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune-all USER_ID TYPE",
		Short: "Remove every activity of a type for the user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			return runPruneAll(cmd.Context(), s.service, args[0], args[1], os.Stdout)
		},
	}
}

func runPage(ctx context.Context, service *domain.Service, userID, rawType string, page int, out io.Writer) error {
	activityType, err := domain.ParseActivityType(rawType)
	if err != nil {
		return err
	}
	result, err := service.GetActivityPage(ctx, userID, activityType, page)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(api.NewPageResponse(result))
}

func runPrune(ctx context.Context, service *domain.Service, userID, rawType, activityID string, out io.Writer) error {
	activityType, err := domain.ParseActivityType(rawType)
	if err != nil {
		return err
	}
	if err := service.RemoveOwnedActivity(ctx, userID, activityID, activityType); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "removed %s (if present)\n", activityID)
	return nil
}

func runPruneAll(ctx context.Context, service *domain.Service, userID, rawType string, out io.Writer) error {
	activityType, err := domain.ParseActivityType(rawType)
	if err != nil {
		return err
	}
	removed, err := service.RemoveAllActivitiesOfType(ctx, userID, activityType)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "removed %d %s activities for %s\n", removed, activityType, userID)
	return nil
}
