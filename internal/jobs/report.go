package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sevigo/peer-warden/internal/core"
)

// Reporter is the delivery step run by ReportJob.
type Reporter interface {
	Report(ctx context.Context, reviewerID, batchKey string) error
}

// ReportJob retries delivery of one reviewer's report.
type ReportJob struct {
	reporter Reporter
	logger   *slog.Logger
}

// NewReportJob creates a new ReportJob.
func NewReportJob(reporter Reporter, logger *slog.Logger) core.Job {
	if reporter == nil {
		panic("reporter cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &ReportJob{reporter: reporter, logger: logger}
}

// Run delivers the report. A report that someone else already delivered is not an error.
func (j *ReportJob) Run(ctx context.Context, req *core.ReportRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	err := j.reporter.Report(ctx, req.ReviewerID, req.BatchKey)
	switch {
	case err == nil:
		j.logger.Info("report retry delivered", "batch", req.BatchKey, "reviewer", req.ReviewerID)
		return nil
	case errors.Is(err, core.ErrAlreadyReported):
		j.logger.Info("report already delivered or in flight", "batch", req.BatchKey, "reviewer", req.ReviewerID)
		return nil
	default:
		return fmt.Errorf("report retry failed: %w", err)
	}
}

func validateRequest(req *core.ReportRequest) error {
	if req == nil {
		return fmt.Errorf("%w: report request is nil", core.ErrParameter)
	}
	if strings.TrimSpace(req.BatchKey) == "" || strings.TrimSpace(req.ReviewerID) == "" {
		return fmt.Errorf("%w: batch key and reviewer id are required", core.ErrParameter)
	}
	return nil
}
