package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/wire"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Manage grade passback reports",
}

var reportRetryCmd = &cobra.Command{
	Use:   "retry <batchKey> [reviewerID]",
	Short: "Redelivers undelivered reports of a batch, or of one reviewer",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()
		defer app.Close()

		batchKey := args[0]
		var reviewers []string
		if len(args) == 2 {
			reviewers = []string{args[1]}
		} else {
			reviewers, err = app.Reporter.Sweep(ctx, batchKey)
			if err != nil {
				return fmt.Errorf("failed to find undelivered reports: %w", err)
			}
		}
		if len(reviewers) == 0 {
			dimColor.Println("Nothing to retry.")
			return nil
		}

		var failed int
		for _, reviewer := range reviewers {
			err := app.Reporter.Report(ctx, reviewer, batchKey)
			switch {
			case err == nil:
				successColor.Printf("delivered  %s\n", reviewer)
			case errors.Is(err, core.ErrAlreadyReported):
				dimColor.Printf("skipped    %s (already reported)\n", reviewer)
			default:
				failed++
				errorColor.Printf("failed     %s: %v\n", reviewer, err)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d reports failed", failed, len(reviewers))
		}
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	reportCmd.AddCommand(reportRetryCmd)
	rootCmd.AddCommand(reportCmd)
}
