// Package tracker advances review assignments to complete and triggers the
// reviewer's report on full completion.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/metrics"
	"github.com/sevigo/peer-warden/internal/retry"
	"github.com/sevigo/peer-warden/internal/storage"
)

// Reporter delivers a reviewer's report. Implementations must gate delivery
// with a single-delivery flag and return core.ErrAlreadyReported to losers.
type Reporter interface {
	Report(ctx context.Context, reviewerID, batchKey string) error
}

// Outcome describes what a completion event changed.
type Outcome struct {
	// Transitioned is true for the one call that moved the record to complete.
	Transitioned bool `json:"transitioned"`
	// FullyComplete is true when that transition finished the reviewer's work.
	FullyComplete bool `json:"fully_complete"`
	// Reported is true when this call delivered the report.
	Reported bool `json:"reported"`
}

// Tracker is the completion state machine.
type Tracker struct {
	store    storage.Store
	reporter Reporter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	policy   retry.Policy
}

// New creates a Tracker. Store reads and writes that fail with
// core.ErrPersistence are retried with bounded backoff.
func New(store storage.Store, reporter Reporter, m *metrics.Metrics, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:    store,
		reporter: reporter,
		metrics:  m,
		logger:   logger,
		policy: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   50 * time.Millisecond,
			MaxDelay:    time.Second,
			Retryable: func(err error) bool {
				return errors.Is(err, core.ErrPersistence)
			},
		},
	}
}

// OnAssignmentCompleted records a reviewer's feedback for one assignment.
// Repeated calls for a completed record only refresh its payload. When the
// call completes the reviewer's last pending assignment the report is sent;
// a failed delivery returns core.ErrPassback next to the outcome and leaves
// every record complete.
func (t *Tracker) OnAssignmentCompleted(ctx context.Context, c core.Completion) (*Outcome, error) {
	var assignment *core.ReviewAssignment
	err := retry.Do(ctx, t.policy, func(ctx context.Context) error {
		var err error
		assignment, err = t.store.GetAssignment(ctx, c.AssignmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if assignment.BatchKey != c.BatchKey {
		return nil, fmt.Errorf("%w: assignment %s in batch %s", core.ErrNotFound, c.AssignmentID, c.BatchKey)
	}
	if assignment.ReviewerID != c.ReviewerID {
		return nil, fmt.Errorf("%w: %s", core.ErrNotReviewer, c.AssignmentID)
	}

	var transitioned bool
	err = retry.Do(ctx, t.policy, func(ctx context.Context) error {
		var err error
		transitioned, err = t.store.UpdateStatus(ctx, c.AssignmentID, core.StatusComplete, c.Payload)
		return err
	})
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Transitioned: transitioned}
	if !transitioned {
		t.metrics.Completion(metrics.ResultDuplicate)
		return outcome, nil
	}
	t.metrics.Completion(metrics.ResultTransitioned)

	var assignments []core.ReviewAssignment
	err = retry.Do(ctx, t.policy, func(ctx context.Context) error {
		var err error
		assignments, err = t.store.GetAssignmentsForReviewer(ctx, c.BatchKey, c.ReviewerID)
		return err
	})
	if err != nil {
		return outcome, err
	}
	if !core.AllComplete(assignments) {
		return outcome, nil
	}
	outcome.FullyComplete = true

	logger := t.logger.With("batch", c.BatchKey, "reviewer", c.ReviewerID)
	logger.Info("reviewer completed all assignments", "reviews", len(assignments))

	err = t.reporter.Report(ctx, c.ReviewerID, c.BatchKey)
	switch {
	case err == nil:
		outcome.Reported = true
	case errors.Is(err, core.ErrAlreadyReported):
		logger.Debug("report already claimed by a concurrent completion")
	default:
		return outcome, err
	}
	return outcome, nil
}
