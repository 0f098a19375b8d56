package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sevigo/peer-warden/internal/core"
)

type sqlStore struct {
	db *sqlx.DB
}

// NewStore creates a Store over postgres or sqlite. Queries are written with
// '?' placeholders and rebound for the connection's driver.
func NewStore(db *sqlx.DB) Store {
	return &sqlStore{db: db}
}

type assignmentRow struct {
	Seq         int64          `db:"seq"`
	ID          string         `db:"id"`
	BatchKey    string         `db:"batch_key"`
	PaperID     string         `db:"paper_id"`
	AuthorID    string         `db:"author_id"`
	ReviewerID  string         `db:"reviewer_id"`
	Status      string         `db:"status"`
	Payload     sql.NullString `db:"payload"`
	CreatedAt   time.Time      `db:"created_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

func (r assignmentRow) toCore() core.ReviewAssignment {
	a := core.ReviewAssignment{
		ID:         r.ID,
		Seq:        r.Seq,
		BatchKey:   r.BatchKey,
		PaperID:    r.PaperID,
		AuthorID:   r.AuthorID,
		ReviewerID: r.ReviewerID,
		Status:     core.Status(r.Status),
		CreatedAt:  r.CreatedAt,
	}
	if r.Payload.Valid {
		a.Payload = json.RawMessage(r.Payload.String)
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		a.CompletedAt = &t
	}
	return a
}

type reportRow struct {
	BatchKey    string       `db:"batch_key"`
	ReviewerID  string       `db:"reviewer_id"`
	State       string       `db:"state"`
	Attempts    int          `db:"attempts"`
	LastError   string       `db:"last_error"`
	ClaimedAt   time.Time    `db:"claimed_at"`
	DeliveredAt sql.NullTime `db:"delivered_at"`
}

func (r reportRow) toCore() core.ReportRecord {
	rec := core.ReportRecord{
		BatchKey:   r.BatchKey,
		ReviewerID: r.ReviewerID,
		State:      core.ReportState(r.State),
		Attempts:   r.Attempts,
		LastError:  r.LastError,
		ClaimedAt:  r.ClaimedAt,
	}
	if r.DeliveredAt.Valid {
		t := r.DeliveredAt.Time
		rec.DeliveredAt = &t
	}
	return rec
}

const assignmentColumns = `seq, id, batch_key, paper_id, author_id, reviewer_id, status, payload, created_at, completed_at`

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", core.ErrPersistence, op, err)
}

func payloadArg(payload json.RawMessage) any {
	if len(payload) == 0 {
		return nil
	}
	return string(payload)
}

func now() time.Time {
	return time.Now().UTC()
}

// SaveBatch inserts the batch, submissions and assignments atomically.
func (s *sqlStore) SaveBatch(ctx context.Context, batch *core.Batch, plan *core.Plan) ([]core.ReviewAssignment, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, persistenceErr("begin batch transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := batch.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO batches (batch_key, course_id, activity_id, review_num, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (batch_key) DO NOTHING`),
		batch.Key, batch.CourseID, batch.ActivityID, plan.ReviewNum, createdAt)
	if err != nil {
		return nil, persistenceErr("insert batch", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, persistenceErr("insert batch", err)
	} else if n == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrBatchExists, batch.Key)
	}

	insertSubmission := tx.Rebind(`
		INSERT INTO submissions (batch_key, position, paper_id, author_id, author_name, attachment_ref)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for i, sub := range batch.Submissions {
		if _, err := tx.ExecContext(ctx, insertSubmission,
			batch.Key, i, sub.PaperID, sub.AuthorID, sub.AuthorName, sub.AttachmentRef); err != nil {
			return nil, persistenceErr("insert submission", err)
		}
	}

	insertAssignment := tx.Rebind(`
		INSERT INTO review_assignments (id, batch_key, paper_id, author_id, reviewer_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	assignments := make([]core.ReviewAssignment, 0, plan.Pairs())
	for _, entry := range plan.Entries {
		for _, reviewer := range entry.Reviewers {
			a := core.ReviewAssignment{
				ID:         uuid.NewString(),
				BatchKey:   batch.Key,
				PaperID:    entry.PaperID,
				AuthorID:   entry.AuthorID,
				ReviewerID: reviewer,
				Status:     core.StatusPending,
				CreatedAt:  createdAt,
			}
			if _, err := tx.ExecContext(ctx, insertAssignment,
				a.ID, a.BatchKey, a.PaperID, a.AuthorID, a.ReviewerID, string(a.Status), a.CreatedAt); err != nil {
				return nil, persistenceErr("insert assignment", err)
			}
			assignments = append(assignments, a)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, persistenceErr("commit batch", err)
	}
	batch.ReviewNum = plan.ReviewNum
	batch.CreatedAt = createdAt
	return assignments, nil
}

// GetBatch loads a batch with its submissions in batch order.
func (s *sqlStore) GetBatch(ctx context.Context, batchKey string) (*core.Batch, error) {
	var b core.Batch
	err := s.db.GetContext(ctx, &b, s.db.Rebind(`
		SELECT batch_key, course_id, activity_id, review_num, created_at
		FROM batches WHERE batch_key = ?`), batchKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: batch %s", core.ErrNotFound, batchKey)
		}
		return nil, persistenceErr("get batch", err)
	}

	err = s.db.SelectContext(ctx, &b.Submissions, s.db.Rebind(`
		SELECT paper_id, author_id, author_name, attachment_ref
		FROM submissions WHERE batch_key = ? ORDER BY position`), batchKey)
	if err != nil {
		return nil, persistenceErr("list submissions", err)
	}
	return &b, nil
}

// CreateAssignment inserts a single pending assignment and returns its id.
func (s *sqlStore) CreateAssignment(ctx context.Context, batchKey, paperID, authorID, reviewerID string) (string, error) {
	if authorID == reviewerID {
		return "", fmt.Errorf("%w: author %s cannot review their own paper", core.ErrParameter, authorID)
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO review_assignments (id, batch_key, paper_id, author_id, reviewer_id, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		id, batchKey, paperID, authorID, reviewerID, string(core.StatusPending), now())
	if err != nil {
		return "", persistenceErr("create assignment", err)
	}
	return id, nil
}

// GetAssignment retrieves a single assignment by id.
func (s *sqlStore) GetAssignment(ctx context.Context, id string) (*core.ReviewAssignment, error) {
	var row assignmentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+assignmentColumns+` FROM review_assignments WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: assignment %s", core.ErrNotFound, id)
		}
		return nil, persistenceErr("get assignment", err)
	}
	a := row.toCore()
	return &a, nil
}

func (s *sqlStore) selectAssignments(ctx context.Context, op, where string, args ...any) ([]core.ReviewAssignment, error) {
	var rows []assignmentRow
	query := s.db.Rebind(`SELECT ` + assignmentColumns + ` FROM review_assignments WHERE ` + where + ` ORDER BY seq`)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, persistenceErr(op, err)
	}
	out := make([]core.ReviewAssignment, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

// GetAssignmentsForReviewer lists a reviewer's assignments in creation order.
func (s *sqlStore) GetAssignmentsForReviewer(ctx context.Context, batchKey, reviewerID string) ([]core.ReviewAssignment, error) {
	return s.selectAssignments(ctx, "list reviewer assignments", `batch_key = ? AND reviewer_id = ?`, batchKey, reviewerID)
}

// GetAssignmentsForPaper lists the reviews of one paper in creation order.
func (s *sqlStore) GetAssignmentsForPaper(ctx context.Context, batchKey, paperID string) ([]core.ReviewAssignment, error) {
	return s.selectAssignments(ctx, "list paper assignments", `batch_key = ? AND paper_id = ?`, batchKey, paperID)
}

// GetAssignmentsForBatch lists every assignment of a batch in creation order.
func (s *sqlStore) GetAssignmentsForBatch(ctx context.Context, batchKey string) ([]core.ReviewAssignment, error) {
	return s.selectAssignments(ctx, "list batch assignments", `batch_key = ?`, batchKey)
}

// UpdateStatus performs the pending -> complete transition as a conditional update.
func (s *sqlStore) UpdateStatus(ctx context.Context, id string, status core.Status, payload json.RawMessage) (bool, error) {
	if status != core.StatusComplete {
		return false, fmt.Errorf("%w: status can only move to %s, got %q", core.ErrParameter, core.StatusComplete, status)
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE review_assignments
		SET status = ?, payload = ?, completed_at = ?
		WHERE id = ? AND status = ?`),
		string(core.StatusComplete), payloadArg(payload), now(), id, string(core.StatusPending))
	if err != nil {
		return false, persistenceErr("complete assignment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistenceErr("complete assignment", err)
	}
	if n == 1 {
		return true, nil
	}

	// Already complete, or missing.
	if len(payload) > 0 {
		res, err = s.db.ExecContext(ctx, s.db.Rebind(`UPDATE review_assignments SET payload = ? WHERE id = ?`), string(payload), id)
		if err != nil {
			return false, persistenceErr("update payload", err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return false, persistenceErr("update payload", err)
		}
		if n == 0 {
			return false, fmt.Errorf("%w: assignment %s", core.ErrNotFound, id)
		}
		return false, nil
	}
	if _, err := s.GetAssignment(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// ClaimReport inserts or reclaims the delivery flag for a reviewer.
func (s *sqlStore) ClaimReport(ctx context.Context, batchKey, reviewerID string, lease time.Duration) (int, bool, error) {
	claimedAt := now()
	var attempt int
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO reviewer_reports (batch_key, reviewer_id, state, attempts, last_error, claimed_at)
		VALUES (?, ?, ?, 1, '', ?)
		ON CONFLICT (batch_key, reviewer_id) DO NOTHING
		RETURNING attempts`),
		batchKey, reviewerID, string(core.ReportDelivering), claimedAt).Scan(&attempt)
	switch {
	case err == nil:
		return attempt, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, persistenceErr("claim report", err)
	}

	err = s.db.QueryRowxContext(ctx, s.db.Rebind(`
		UPDATE reviewer_reports
		SET state = ?, attempts = attempts + 1, claimed_at = ?
		WHERE batch_key = ? AND reviewer_id = ?
		  AND (state = ? OR (state = ? AND claimed_at < ?))
		RETURNING attempts`),
		string(core.ReportDelivering), claimedAt, batchKey, reviewerID,
		string(core.ReportFailed), string(core.ReportDelivering), claimedAt.Add(-lease)).Scan(&attempt)
	switch {
	case err == nil:
		return attempt, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, persistenceErr("reclaim report", err)
	}
}

// FinishReport moves a delivering report to delivered or failed, provided the
// claim identified by attempt is still the current one.
func (s *sqlStore) FinishReport(ctx context.Context, batchKey, reviewerID string, attempt int, deliveryErr error) error {
	var (
		res sql.Result
		err error
	)
	if deliveryErr == nil {
		res, err = s.db.ExecContext(ctx, s.db.Rebind(`
			UPDATE reviewer_reports SET state = ?, last_error = '', delivered_at = ?
			WHERE batch_key = ? AND reviewer_id = ? AND state = ? AND attempts = ?`),
			string(core.ReportDelivered), now(), batchKey, reviewerID, string(core.ReportDelivering), attempt)
	} else {
		res, err = s.db.ExecContext(ctx, s.db.Rebind(`
			UPDATE reviewer_reports SET state = ?, last_error = ?
			WHERE batch_key = ? AND reviewer_id = ? AND state = ? AND attempts = ?`),
			string(core.ReportFailed), deliveryErr.Error(), batchKey, reviewerID, string(core.ReportDelivering), attempt)
	}
	if err != nil {
		return persistenceErr("finish report", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistenceErr("finish report", err)
	}
	if n == 0 {
		if _, err := s.GetReport(ctx, batchKey, reviewerID); err != nil {
			return err
		}
		return fmt.Errorf("%w: claim %d for %s in %s is no longer held", core.ErrAlreadyReported, attempt, reviewerID, batchKey)
	}
	return nil
}

const reportColumns = `batch_key, reviewer_id, state, attempts, last_error, claimed_at, delivered_at`

// GetReport returns the delivery state of one reviewer's report.
func (s *sqlStore) GetReport(ctx context.Context, batchKey, reviewerID string) (*core.ReportRecord, error) {
	var row reportRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+reportColumns+` FROM reviewer_reports WHERE batch_key = ? AND reviewer_id = ?`),
		batchKey, reviewerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: report for %s in %s", core.ErrNotFound, reviewerID, batchKey)
		}
		return nil, persistenceErr("get report", err)
	}
	rec := row.toCore()
	return &rec, nil
}

// ListReports returns every report record of a batch.
func (s *sqlStore) ListReports(ctx context.Context, batchKey string) ([]core.ReportRecord, error) {
	var rows []reportRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT `+reportColumns+` FROM reviewer_reports WHERE batch_key = ? ORDER BY reviewer_id`), batchKey)
	if err != nil {
		return nil, persistenceErr("list reports", err)
	}
	out := make([]core.ReportRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out, nil
}

// SavePassbackTarget upserts where a reviewer's outcome is delivered.
func (s *sqlStore) SavePassbackTarget(ctx context.Context, target *core.PassbackTarget) error {
	target.UpdatedAt = now()
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO passback_targets (batch_key, reviewer_id, service_url, user_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (batch_key, reviewer_id)
		DO UPDATE SET service_url = excluded.service_url, user_id = excluded.user_id, updated_at = excluded.updated_at`),
		target.BatchKey, target.ReviewerID, target.ServiceURL, target.UserID, target.UpdatedAt)
	if err != nil {
		return persistenceErr("save passback target", err)
	}
	return nil
}

// GetPassbackTarget returns the stored passback address of a reviewer.
func (s *sqlStore) GetPassbackTarget(ctx context.Context, batchKey, reviewerID string) (*core.PassbackTarget, error) {
	var t core.PassbackTarget
	err := s.db.GetContext(ctx, &t, s.db.Rebind(`
		SELECT batch_key, reviewer_id, service_url, user_id, updated_at
		FROM passback_targets WHERE batch_key = ? AND reviewer_id = ?`), batchKey, reviewerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: passback target for %s in %s", core.ErrNotFound, reviewerID, batchKey)
		}
		return nil, persistenceErr("get passback target", err)
	}
	return &t, nil
}
