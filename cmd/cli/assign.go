package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sevigo/peer-warden/internal/assign"
	"github.com/sevigo/peer-warden/internal/batch"
	"github.com/sevigo/peer-warden/internal/registry"
)

var previewOpts struct {
	roster  string
	reviews int
	seed    uint64
}

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Inspect reviewer assignments without touching the database",
}

var assignPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Prints the reviewer plan a roster would produce",
	RunE: func(_ *cobra.Command, _ []string) error {
		roster, err := registry.LoadRoster(previewOpts.roster)
		if err != nil {
			return err
		}
		ordered, plan, err := batch.Plan(roster.Submissions, previewOpts.reviews, previewOpts.seed)
		if err != nil {
			return err
		}

		titleColor.Printf("%s:%s, %d submissions, %d reviews each (seed %d)\n",
			roster.CourseID, roster.ActivityID, len(ordered), plan.ReviewNum, previewOpts.seed)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "PAPER\tAUTHOR\tREVIEWERS")
		for _, e := range plan.Entries {
			fmt.Fprintf(w, "%s\t%s\t%s\n", e.PaperID, e.AuthorID, strings.Join(e.Reviewers, ", "))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		loads := assign.Loads(plan)
		for _, sub := range ordered {
			if loads[sub.AuthorID] != plan.ReviewNum {
				errorColor.Printf("reviewer %s has %d reviews\n", sub.AuthorID, loads[sub.AuthorID])
			}
		}
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	assignPreviewCmd.Flags().StringVar(&previewOpts.roster, "roster", "", "YAML roster file")
	assignPreviewCmd.Flags().IntVarP(&previewOpts.reviews, "reviews", "k", 3, "Reviews per author")
	assignPreviewCmd.Flags().Uint64Var(&previewOpts.seed, "seed", 1, "Shuffle seed")
	_ = assignPreviewCmd.MarkFlagRequired("roster")

	assignCmd.AddCommand(assignPreviewCmd)
	rootCmd.AddCommand(assignCmd)
}
