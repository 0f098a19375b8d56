package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/peer-warden/internal/batch"
	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/storage"
	"github.com/sevigo/peer-warden/internal/tracker"
)

// BatchService creates and summarises batches.
type BatchService interface {
	CreateBatch(ctx context.Context, req batch.CreateRequest) (*batch.ImportResult, error)
	Overview(ctx context.Context, batchKey string) (*batch.Overview, error)
}

// CompletionTracker records completed reviews.
type CompletionTracker interface {
	OnAssignmentCompleted(ctx context.Context, c core.Completion) (*tracker.Outcome, error)
}

// ReportService delivers and sweeps reviewer reports.
type ReportService interface {
	Report(ctx context.Context, reviewerID, batchKey string) error
	Sweep(ctx context.Context, batchKey string) ([]string, error)
}

// API serves the batch, assignment and report endpoints.
type API struct {
	batches    BatchService
	tracker    CompletionTracker
	reports    ReportService
	store      storage.Store
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

func NewAPI(
	batches BatchService,
	tracker CompletionTracker,
	reports ReportService,
	store storage.Store,
	dispatcher core.JobDispatcher,
	logger *slog.Logger,
) *API {
	return &API{
		batches:    batches,
		tracker:    tracker,
		reports:    reports,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Register mounts the API routes on r.
func (a *API) Register(r chi.Router) {
	r.Post("/batches", a.CreateBatch)
	r.Route("/batches/{batchKey}", func(r chi.Router) {
		r.Get("/", a.GetBatch)
		r.Get("/reviewers/{reviewerID}/assignments", a.ReviewerAssignments)
		r.Get("/papers/{paperID}/assignments", a.PaperAssignments)
		r.Post("/assignments/{assignmentID}/complete", a.CompleteAssignment)
		r.Put("/reviewers/{reviewerID}/passback-target", a.PutPassbackTarget)
		r.Post("/reviewers/{reviewerID}/report", a.Report)
		r.Post("/reports/retry", a.RetryReports)
	})
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		a.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

// CreateBatch imports and assigns a course activity.
func (a *API) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batch.CreateRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.batches.CreateBatch(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GetBatch returns the instructor overview of a batch.
func (a *API) GetBatch(w http.ResponseWriter, r *http.Request) {
	ov, err := a.batches.Overview(r.Context(), param(r, "batchKey"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

type assignmentList struct {
	Assignments   []core.ReviewAssignment `json:"assignments"`
	FullyComplete bool                    `json:"fully_complete"`
}

// ReviewerAssignments lists the papers a reviewer has to review.
func (a *API) ReviewerAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.GetAssignmentsForReviewer(r.Context(), param(r, "batchKey"), param(r, "reviewerID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assignmentList{Assignments: list, FullyComplete: core.AllComplete(list)})
}

// PaperAssignments lists the reviews of one paper.
func (a *API) PaperAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := a.store.GetAssignmentsForPaper(r.Context(), param(r, "batchKey"), param(r, "paperID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assignmentList{Assignments: list, FullyComplete: core.AllComplete(list)})
}

type completeRequest struct {
	ReviewerID string          `json:"reviewer_id"`
	Payload    json.RawMessage `json:"payload"`
}

type completeResponse struct {
	*tracker.Outcome
	ReviewerComplete bool   `json:"reviewer_complete"`
	PassbackError    string `json:"passback_error,omitempty"`
}

// CompleteAssignment stores a review. It answers 200 once the reviewer has
// finished every assignment and 202 while work remains.
func (a *API) CompleteAssignment(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.ReviewerID) == "" {
		a.fail(w, r, errors.Join(core.ErrParameter, errors.New("reviewer_id is required")))
		return
	}

	c := core.Completion{
		BatchKey:     param(r, "batchKey"),
		ReviewerID:   req.ReviewerID,
		AssignmentID: param(r, "assignmentID"),
		Payload:      req.Payload,
	}
	outcome, err := a.tracker.OnAssignmentCompleted(r.Context(), c)
	resp := completeResponse{Outcome: outcome}
	if err != nil {
		if outcome == nil || !errors.Is(err, core.ErrPassback) {
			a.fail(w, r, err)
			return
		}
		a.logger.Warn("review stored but report delivery failed", "batch", c.BatchKey, "reviewer", c.ReviewerID, "error", err)
		resp.PassbackError = err.Error()
	}

	resp.ReviewerComplete = outcome.FullyComplete
	if !resp.ReviewerComplete {
		list, err := a.store.GetAssignmentsForReviewer(r.Context(), c.BatchKey, c.ReviewerID)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		resp.ReviewerComplete = core.AllComplete(list)
	}

	status := http.StatusAccepted
	if resp.ReviewerComplete {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

type passbackTargetRequest struct {
	ServiceURL string `json:"service_url"`
	UserID     string `json:"user_id"`
}

// PutPassbackTarget stores where the reviewer's report is delivered.
func (a *API) PutPassbackTarget(w http.ResponseWriter, r *http.Request) {
	var req passbackTargetRequest
	if err := decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.ServiceURL == "" || req.UserID == "" {
		a.fail(w, r, errors.Join(core.ErrParameter, errors.New("service_url and user_id are required")))
		return
	}
	target := &core.PassbackTarget{
		BatchKey:   param(r, "batchKey"),
		ReviewerID: param(r, "reviewerID"),
		ServiceURL: req.ServiceURL,
		UserID:     req.UserID,
	}
	if err := a.store.SavePassbackTarget(r.Context(), target); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, target)
}

type reportResponse struct {
	Delivered     bool   `json:"delivered"`
	PassbackError string `json:"passback_error,omitempty"`
}

// Report delivers a reviewer's report synchronously.
func (a *API) Report(w http.ResponseWriter, r *http.Request) {
	err := a.reports.Report(r.Context(), param(r, "reviewerID"), param(r, "batchKey"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reportResponse{Delivered: true})
	case errors.Is(err, core.ErrPassback):
		writeJSON(w, http.StatusOK, reportResponse{PassbackError: err.Error()})
	default:
		a.fail(w, r, err)
	}
}

type retryResponse struct {
	Queued   []string `json:"queued"`
	Rejected []string `json:"rejected,omitempty"`
}

// RetryReports queues every undelivered report of a batch on the worker pool.
func (a *API) RetryReports(w http.ResponseWriter, r *http.Request) {
	batchKey := param(r, "batchKey")
	reviewers, err := a.reports.Sweep(r.Context(), batchKey)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	resp := retryResponse{Queued: []string{}}
	for _, reviewer := range reviewers {
		if err := a.dispatcher.Dispatch(r.Context(), &core.ReportRequest{BatchKey: batchKey, ReviewerID: reviewer}); err != nil {
			a.logger.Warn("could not queue report retry", "batch", batchKey, "reviewer", reviewer, "error", err)
			resp.Rejected = append(resp.Rejected, reviewer)
			continue
		}
		resp.Queued = append(resp.Queued, reviewer)
	}
	writeJSON(w, http.StatusAccepted, resp)
}
