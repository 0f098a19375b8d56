package core

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a single review assignment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusComplete
}

// ReviewAssignment is one reviewer's obligation to review one paper within a batch.
// Status only ever moves from pending to complete.
type ReviewAssignment struct {
	ID          string          `json:"id" db:"id"`
	Seq         int64           `json:"-" db:"seq"`
	BatchKey    string          `json:"batch_key" db:"batch_key"`
	PaperID     string          `json:"paper_id" db:"paper_id"`
	AuthorID    string          `json:"author_id" db:"author_id"`
	ReviewerID  string          `json:"reviewer_id" db:"reviewer_id"`
	Status      Status          `json:"status" db:"status"`
	Payload     json.RawMessage `json:"payload,omitempty" db:"payload"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// IsComplete reports whether the assignment reached its terminal state.
func (a *ReviewAssignment) IsComplete() bool {
	return a.Status == StatusComplete
}

// AllComplete reports whether every assignment in the slice is complete.
// An empty slice is never complete.
func AllComplete(assignments []ReviewAssignment) bool {
	if len(assignments) == 0 {
		return false
	}
	for i := range assignments {
		if !assignments[i].IsComplete() {
			return false
		}
	}
	return true
}

// Completion is a reviewer's submission of feedback for one assignment.
type Completion struct {
	BatchKey     string          `json:"batch_key"`
	ReviewerID   string          `json:"reviewer_id"`
	AssignmentID string          `json:"assignment_id"`
	Payload      json.RawMessage `json:"payload"`
}

// PlanEntry lists the reviewers chosen for one paper.
type PlanEntry struct {
	PaperID   string   `json:"paper_id"`
	AuthorID  string   `json:"author_id"`
	Reviewers []string `json:"reviewers"`
}

// Plan is the assignment engine output. Entries keep the engine's author ordering,
// which makes iteration order part of the contract.
type Plan struct {
	ReviewNum int         `json:"review_num"`
	Entries   []PlanEntry `json:"entries"`
}

// Pairs returns the number of (paper, reviewer) assignments in the plan.
func (p *Plan) Pairs() int {
	n := 0
	for _, e := range p.Entries {
		n += len(e.Reviewers)
	}
	return n
}
