// Package storage persists batches, review assignments and report delivery state.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sevigo/peer-warden/internal/core"
)

// Store defines the interface for all database operations. Every method is
// atomic with respect to the records it touches; UpdateStatus and ClaimReport
// are compare-and-set operations and are the only synchronization points of
// the completion workflow.
type Store interface {
	// SaveBatch persists the batch, its submissions and every planned
	// assignment in one transaction. It fails with core.ErrBatchExists when
	// the batch key is already taken.
	SaveBatch(ctx context.Context, batch *core.Batch, plan *core.Plan) ([]core.ReviewAssignment, error)
	GetBatch(ctx context.Context, batchKey string) (*core.Batch, error)

	CreateAssignment(ctx context.Context, batchKey, paperID, authorID, reviewerID string) (string, error)
	GetAssignment(ctx context.Context, id string) (*core.ReviewAssignment, error)
	GetAssignmentsForReviewer(ctx context.Context, batchKey, reviewerID string) ([]core.ReviewAssignment, error)
	GetAssignmentsForPaper(ctx context.Context, batchKey, paperID string) ([]core.ReviewAssignment, error)
	GetAssignmentsForBatch(ctx context.Context, batchKey string) ([]core.ReviewAssignment, error)

	// UpdateStatus reports whether this call moved the record from pending to
	// complete. An already complete record is left complete; a non-empty
	// payload still replaces the stored one.
	UpdateStatus(ctx context.Context, id string, status core.Status, payload json.RawMessage) (bool, error)

	// ClaimReport sets the single-delivery flag for a reviewer. It succeeds
	// when no report exists, when the last delivery failed, or when a
	// delivering claim is older than lease. A successful claim returns its
	// attempt number, which FinishReport needs to prove it still holds it.
	ClaimReport(ctx context.Context, batchKey, reviewerID string, lease time.Duration) (attempt int, claimed bool, err error)
	// FinishReport records the outcome of the claim taken with attempt. A nil
	// deliveryErr marks the report delivered. A claim that was taken over in
	// the meantime is left alone and core.ErrAlreadyReported is returned.
	FinishReport(ctx context.Context, batchKey, reviewerID string, attempt int, deliveryErr error) error
	GetReport(ctx context.Context, batchKey, reviewerID string) (*core.ReportRecord, error)
	ListReports(ctx context.Context, batchKey string) ([]core.ReportRecord, error)

	SavePassbackTarget(ctx context.Context, target *core.PassbackTarget) error
	GetPassbackTarget(ctx context.Context, batchKey, reviewerID string) (*core.PassbackTarget, error)
}
