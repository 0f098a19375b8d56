package core

import (
	"context"
	"time"
)

// ReportState tracks the single-delivery flag of a reviewer's report.
type ReportState string

const (
	ReportDelivering ReportState = "delivering"
	ReportDelivered  ReportState = "delivered"
	ReportFailed     ReportState = "failed"
)

// ReportRecord is the persisted delivery state for one (batch, reviewer) pair.
type ReportRecord struct {
	BatchKey    string      `json:"batch_key" db:"batch_key"`
	ReviewerID  string      `json:"reviewer_id" db:"reviewer_id"`
	State       ReportState `json:"state" db:"state"`
	Attempts    int         `json:"attempts" db:"attempts"`
	LastError   string      `json:"last_error,omitempty" db:"last_error"`
	ClaimedAt   time.Time   `json:"claimed_at" db:"claimed_at"`
	DeliveredAt *time.Time  `json:"delivered_at,omitempty" db:"delivered_at"`
}

// PassbackTarget is where a reviewer's outcome is sent in the LMS gradebook.
// It is captured at launch time by the request layer and stored per batch.
type PassbackTarget struct {
	BatchKey   string    `json:"batch_key" db:"batch_key"`
	ReviewerID string    `json:"reviewer_id" db:"reviewer_id"`
	ServiceURL string    `json:"service_url" db:"service_url"`
	UserID     string    `json:"user_id" db:"user_id"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// PassbackChannel delivers a report to the external gradebook.
//
//go:generate mockgen -destination=../../mocks/mock_passback_channel.go -package=mocks . PassbackChannel
type PassbackChannel interface {
	// ReplaceResult overwrites the reviewer's result. A nil score leaves the
	// grade unset and only attaches the report text.
	ReplaceResult(ctx context.Context, target *PassbackTarget, score *float64, reportText string) error
}
