// Package report renders a reviewer's completed reviews and delivers them to
// the gradebook exactly once per batch.
package report

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/sevigo/peer-warden/internal/config"
	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/events"
	"github.com/sevigo/peer-warden/internal/metrics"
	"github.com/sevigo/peer-warden/internal/retry"
	"github.com/sevigo/peer-warden/internal/storage"
)

//go:embed templates/report.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(template.ParseFS(templateFS, "templates/report.tmpl"))

// Block is one completed review inside a report.
type Block struct {
	Author string
	Review string
}

// Reporter builds and delivers reviewer reports.
type Reporter struct {
	store     storage.Store
	channel   core.PassbackChannel
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	score   *float64
	lease   time.Duration
	timeout time.Duration
	policy  retry.Policy
}

// New creates a Reporter. The retry policy, score and claim lease come from cfg.
func New(
	store storage.Store,
	channel core.PassbackChannel,
	publisher events.Publisher,
	m *metrics.Metrics,
	cfg *config.PassbackConfig,
	logger *slog.Logger,
) *Reporter {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Reporter{
		store:     store,
		channel:   channel,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		score:     cfg.Score(),
		lease:     cfg.ClaimLease,
		timeout:   cfg.Timeout,
		policy: retry.Policy{
			MaxAttempts: maxAttempts,
			BaseDelay:   cfg.BaseDelay,
			MaxDelay:    cfg.MaxDelay,
			Retryable: func(err error) bool {
				return !errors.Is(err, context.Canceled)
			},
		},
	}
}

// Report delivers the reviewer's report for a batch. It returns
// core.ErrAlreadyReported when another caller holds or completed the delivery
// and core.ErrPassback when the gradebook could not be updated. Review records
// are never modified.
func (r *Reporter) Report(ctx context.Context, reviewerID, batchKey string) error {
	assignments, err := r.store.GetAssignmentsForReviewer(ctx, batchKey, reviewerID)
	if err != nil {
		return err
	}
	if len(assignments) == 0 {
		return fmt.Errorf("%w: no assignments for %s in %s", core.ErrNotFound, reviewerID, batchKey)
	}
	if !core.AllComplete(assignments) {
		return fmt.Errorf("%w: %s in %s", core.ErrIncomplete, reviewerID, batchKey)
	}

	attempt, claimed, err := r.store.ClaimReport(ctx, batchKey, reviewerID, r.lease)
	if err != nil {
		return err
	}
	if !claimed {
		r.metrics.Report(metrics.ResultAlreadyReported)
		return fmt.Errorf("%w: %s in %s", core.ErrAlreadyReported, reviewerID, batchKey)
	}

	logger := r.logger.With("batch", batchKey, "reviewer", reviewerID, "attempt", attempt)

	// Delivery must end before the claim can be taken over.
	deliverCtx := ctx
	if r.lease > 0 {
		var cancel context.CancelFunc
		deliverCtx, cancel = context.WithTimeout(ctx, r.lease)
		defer cancel()
	}
	deliverErr := r.deliver(deliverCtx, batchKey, reviewerID, assignments)

	// The outcome is recorded even when the caller went away.
	finishCtx := context.WithoutCancel(ctx)
	if err := r.store.FinishReport(finishCtx, batchKey, reviewerID, attempt, deliverErr); err != nil {
		if errors.Is(err, core.ErrAlreadyReported) {
			r.metrics.Report(metrics.ResultAlreadyReported)
			logger.Warn("report claim was taken over before delivery finished", "delivery_error", deliverErr)
			return err
		}
		logger.Error("failed to record report outcome", "error", err, "delivery_error", deliverErr)
		if deliverErr == nil {
			return err
		}
	}

	if deliverErr != nil {
		r.metrics.Report(metrics.ResultFailed)
		logger.Warn("report delivery failed, left for operator retry", "error", deliverErr)
		if errors.Is(deliverErr, core.ErrPassback) {
			return deliverErr
		}
		return fmt.Errorf("%w: %w", core.ErrPassback, deliverErr)
	}

	r.metrics.Report(metrics.ResultDelivered)
	logger.Info("report delivered", "reviews", len(assignments))

	event := &core.ReviewerCompletedEvent{
		BatchKey:    batchKey,
		ReviewerID:  reviewerID,
		Reviews:     len(assignments),
		DeliveredAt: time.Now().UTC(),
	}
	if err := r.publisher.PublishReviewerCompleted(finishCtx, event); err != nil {
		logger.Warn("failed to publish reviewer completed event", "error", err)
	}
	return nil
}

func (r *Reporter) deliver(ctx context.Context, batchKey, reviewerID string, assignments []core.ReviewAssignment) error {
	text, err := r.render(ctx, batchKey, assignments)
	if err != nil {
		return err
	}
	target, err := r.store.GetPassbackTarget(ctx, batchKey, reviewerID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w: no passback target for %s", core.ErrPassback, reviewerID)
		}
		return err
	}

	start := time.Now()
	attempt := 0
	err = retry.Do(ctx, r.policy, func(ctx context.Context) error {
		attempt++
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}
		err := r.channel.ReplaceResult(ctx, target, r.score, text)
		if err != nil {
			r.logger.Debug("passback attempt failed", "batch", batchKey, "reviewer", reviewerID, "attempt", attempt, "error", err)
		}
		return err
	})
	r.metrics.PassbackDuration(time.Since(start))
	return err
}

// Render returns the report text without delivering it. It only needs the
// reviewer's completed assignments; pending ones are skipped.
func (r *Reporter) Render(ctx context.Context, reviewerID, batchKey string) (string, error) {
	assignments, err := r.store.GetAssignmentsForReviewer(ctx, batchKey, reviewerID)
	if err != nil {
		return "", err
	}
	if len(assignments) == 0 {
		return "", fmt.Errorf("%w: no assignments for %s in %s", core.ErrNotFound, reviewerID, batchKey)
	}
	return r.render(ctx, batchKey, assignments)
}

func (r *Reporter) render(ctx context.Context, batchKey string, assignments []core.ReviewAssignment) (string, error) {
	batch, err := r.store.GetBatch(ctx, batchKey)
	if err != nil {
		return "", err
	}
	names := make(map[string]string, len(batch.Submissions))
	for _, s := range batch.Submissions {
		names[s.AuthorID] = s.AuthorName
	}

	blocks := make([]Block, 0, len(assignments))
	for _, a := range assignments {
		if !a.IsComplete() {
			continue
		}
		author := names[a.AuthorID]
		if author == "" {
			author = a.AuthorID
		}
		blocks = append(blocks, Block{Author: author, Review: payloadText(a.Payload)})
	}
	return RenderBlocks(blocks)
}

// RenderBlocks formats blocks in the given order.
func RenderBlocks(blocks []Block) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, blocks); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

// payloadText unwraps JSON strings and keeps any other JSON value verbatim.
func payloadText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Sweep lists reviewers of a batch who finished every assignment but whose
// report is not delivered: never claimed, failed, or stuck past the claim lease.
func (r *Reporter) Sweep(ctx context.Context, batchKey string) ([]string, error) {
	assignments, err := r.store.GetAssignmentsForBatch(ctx, batchKey)
	if err != nil {
		return nil, err
	}
	reports, err := r.store.ListReports(ctx, batchKey)
	if err != nil {
		return nil, err
	}
	byReviewer := make(map[string]core.ReportRecord, len(reports))
	for _, rec := range reports {
		byReviewer[rec.ReviewerID] = rec
	}

	var order []string
	grouped := make(map[string][]core.ReviewAssignment)
	for _, a := range assignments {
		if _, seen := grouped[a.ReviewerID]; !seen {
			order = append(order, a.ReviewerID)
		}
		grouped[a.ReviewerID] = append(grouped[a.ReviewerID], a)
	}

	now := time.Now()
	var pending []string
	for _, reviewer := range order {
		if !core.AllComplete(grouped[reviewer]) {
			continue
		}
		rec, ok := byReviewer[reviewer]
		switch {
		case !ok:
			pending = append(pending, reviewer)
		case rec.State == core.ReportFailed:
			pending = append(pending, reviewer)
		case rec.State == core.ReportDelivering && now.Sub(rec.ClaimedAt) > r.lease:
			pending = append(pending, reviewer)
		}
	}
	return pending, nil
}
