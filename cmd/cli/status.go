package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sevigo/peer-warden/internal/wire"
)

var outputJSON bool

var batchStatusCmd = &cobra.Command{
	Use:   "status <batchKey>",
	Short: "Shows review progress and report delivery for every author of a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()
		defer app.Close()

		ov, err := app.Batches.Overview(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load batch %s: %w", args[0], err)
		}

		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(ov)
		}
		return printOverview(ov)
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	batchStatusCmd.Flags().BoolVar(&outputJSON, "json", false, "Output status as JSON")
}
