package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sevigo/peer-warden/internal/batch"
	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/wire"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Create and inspect peer-review batches",
}

var createOpts struct {
	courseID   string
	activityID string
	reviews    int
	seed       uint64
}

var batchCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Import submissions and assign reviewers for a course activity",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := context.Background()

		app, cleanup, err := wire.InitializeApp(ctx)
		if err != nil {
			return fmt.Errorf("failed to initialize app services: %w", err)
		}
		defer cleanup()
		defer app.Close()

		req := batch.CreateRequest{
			CourseID:   createOpts.courseID,
			ActivityID: createOpts.activityID,
			ReviewNum:  createOpts.reviews,
		}
		if cmd.Flags().Changed("seed") {
			req.Seed = &createOpts.seed
		}

		res, err := app.Batches.CreateBatch(ctx, req)
		if err != nil {
			return fmt.Errorf("failed to create batch: %w", err)
		}

		titleColor.Printf("Batch %s\n", res.Batch.Key)
		fmt.Printf("  submissions: %d\n", len(res.Batch.Submissions))
		fmt.Printf("  reviews per author: %d\n", res.Plan.ReviewNum)
		fmt.Printf("  assignments: %d\n", len(res.Assignments))
		dimColor.Printf("  seed: %d\n", res.Seed)
		for _, f := range res.Failed {
			warnColor.Printf("  author %s of paper %s not resolved: %s\n", f.AuthorID, f.PaperID, f.Error)
		}
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	batchCreateCmd.Flags().StringVar(&createOpts.courseID, "course", "", "Course id")
	batchCreateCmd.Flags().StringVar(&createOpts.activityID, "activity", "", "Activity (assignment) id")
	batchCreateCmd.Flags().IntVarP(&createOpts.reviews, "reviews", "k", 3, "Reviews per author")
	batchCreateCmd.Flags().Uint64Var(&createOpts.seed, "seed", 0, "Shuffle seed (random when omitted)")
	batchCreateCmd.Flags().String("roster", "", "YAML roster used instead of Canvas")
	_ = batchCreateCmd.MarkFlagRequired("course")
	_ = batchCreateCmd.MarkFlagRequired("activity")
	bindFlag("canvas.roster_file", batchCreateCmd.Flags().Lookup("roster"))

	batchCmd.AddCommand(batchCreateCmd, batchStatusCmd)
	rootCmd.AddCommand(batchCmd)
}

func printOverview(ov *batch.Overview) error {
	titleColor.Printf("Batch %s (%d reviews per author)\n", ov.Batch.Key, ov.Batch.ReviewNum)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "AUTHOR\tNAME\tPAPER\tDONE\tREPORT")
	for _, a := range ov.Authors {
		done := fmt.Sprintf("%d/%d", a.Assigned-a.Incomplete, a.Assigned)
		if a.Incomplete == 0 {
			done = successColor.Sprint(done)
		} else {
			done = warnColor.Sprint(done)
		}
		report := string(a.Report)
		switch a.Report {
		case "":
			report = dimColor.Sprint("-")
		case core.ReportDelivered:
			report = successColor.Sprint(report)
		case core.ReportFailed:
			report = errorColor.Sprint(report)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.AuthorID, a.AuthorName, a.PaperID, done, report)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d complete, %d pending\n", ov.Complete, ov.Incomplete)
	return nil
}
