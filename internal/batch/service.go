// Package batch imports an activity's submissions, computes the review plan
// and persists it as one batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/peer-warden/internal/assign"
	"github.com/sevigo/peer-warden/internal/config"
	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/metrics"
	"github.com/sevigo/peer-warden/internal/storage"
)

// CreateRequest describes a batch to create. A nil Seed picks a random one.
type CreateRequest struct {
	CourseID   string  `json:"course_id"`
	ActivityID string  `json:"activity_id"`
	ReviewNum  int     `json:"review_num"`
	Seed       *uint64 `json:"seed,omitempty"`
}

// ImportFailure is a submission whose author could not be resolved. The
// submission is still assigned, with the author id as display name.
type ImportFailure struct {
	PaperID  string `json:"paper_id"`
	AuthorID string `json:"author_id"`
	Error    string `json:"error"`
}

// ImportResult is the outcome of CreateBatch.
type ImportResult struct {
	Batch       *core.Batch             `json:"batch"`
	Plan        *core.Plan              `json:"plan"`
	Assignments []core.ReviewAssignment `json:"assignments"`
	Failed      []ImportFailure         `json:"failed,omitempty"`
	Seed        uint64                  `json:"seed"`
}

// Service creates batches.
type Service struct {
	store       storage.Store
	registry    core.SubmissionRegistry
	metrics     *metrics.Metrics
	logger      *slog.Logger
	concurrency int
}

// NewService creates a Service. Author lookups run at most cfg.Concurrency at a time.
func NewService(store storage.Store, registry core.SubmissionRegistry, m *metrics.Metrics, cfg *config.CanvasConfig, logger *slog.Logger) *Service {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		store:       store,
		registry:    registry,
		metrics:     m,
		logger:      logger,
		concurrency: concurrency,
	}
}

// CreateBatch imports, assigns and stores a batch. Nothing is persisted when
// assignment fails, and a batch key can only be created once.
func (s *Service) CreateBatch(ctx context.Context, req CreateRequest) (*ImportResult, error) {
	key, err := core.NewBatchKey(req.CourseID, req.ActivityID)
	if err != nil {
		return nil, err
	}
	if req.ReviewNum < 1 {
		return nil, fmt.Errorf("%w: review count must be at least 1, got %d", core.ErrParameter, req.ReviewNum)
	}
	logger := s.logger.With("batch", key)

	submissions, err := s.registry.ListSubmissions(ctx, req.CourseID, req.ActivityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	logger.Info("importing submissions", "count", len(submissions))

	failed, err := s.resolveAuthors(ctx, submissions)
	if err != nil {
		return nil, err
	}
	for _, f := range failed {
		logger.Warn("could not resolve author", "author", f.AuthorID, "paper", f.PaperID, "error", f.Error)
	}

	seed := rand.Uint64()
	if req.Seed != nil {
		seed = *req.Seed
	}
	ordered, plan, err := Plan(submissions, req.ReviewNum, seed)
	if err != nil {
		return nil, err
	}

	batch := &core.Batch{
		Key:         key,
		CourseID:    req.CourseID,
		ActivityID:  req.ActivityID,
		Submissions: ordered,
	}
	assignments, err := s.store.SaveBatch(ctx, batch, plan)
	if err != nil {
		return nil, err
	}

	s.metrics.BatchCreated(len(assignments), len(failed))
	logger.Info("batch created", "authors", len(ordered), "reviews_per_author", plan.ReviewNum, "assignments", len(assignments))
	return &ImportResult{Batch: batch, Plan: plan, Assignments: assignments, Failed: failed, Seed: seed}, nil
}

// resolveAuthors fills AuthorName in place. Lookups that fail are reported
// and do not abort the import; only context cancellation does.
func (s *Service) resolveAuthors(ctx context.Context, submissions []core.Submission) ([]ImportFailure, error) {
	var (
		mu     sync.Mutex
		failed []ImportFailure
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range submissions {
		sub := &submissions[i]
		if sub.AuthorName != "" {
			continue
		}
		g.Go(func() error {
			name, err := s.registry.ResolveAuthor(ctx, sub.AuthorID)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				sub.AuthorName = sub.AuthorID
				mu.Lock()
				failed = append(failed, ImportFailure{PaperID: sub.PaperID, AuthorID: sub.AuthorID, Error: err.Error()})
				mu.Unlock()
				return nil
			}
			sub.AuthorName = name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("author lookup interrupted: %w", err)
	}
	return failed, nil
}

// Plan shuffles submissions with seed and assigns k reviewers per paper. It
// returns the submissions in the author order the plan was built from.
func Plan(submissions []core.Submission, k int, seed uint64) ([]core.Submission, *core.Plan, error) {
	byPaper := make(map[string]core.Submission, len(submissions))
	papers := make([]core.Paper, 0, len(submissions))
	for _, sub := range submissions {
		byPaper[sub.PaperID] = sub
		papers = append(papers, sub.Paper())
	}

	papers = assign.Shuffle(papers, assign.NewRand(seed))
	plan, err := assign.Assign(papers, k)
	if err != nil {
		return nil, nil, err
	}

	ordered := make([]core.Submission, 0, len(papers))
	for _, p := range papers {
		ordered = append(ordered, byPaper[p.PaperID])
	}
	return ordered, plan, nil
}
