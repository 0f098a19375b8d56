package core

import "context"

// SubmissionRegistry supplies the submissions of an activity, each owned by one author.
//
//go:generate mockgen -destination=../../mocks/mock_submission_registry.go -package=mocks . SubmissionRegistry
type SubmissionRegistry interface {
	ListSubmissions(ctx context.Context, courseID, activityID string) ([]Submission, error)
	// ResolveAuthor returns the display name of an author.
	ResolveAuthor(ctx context.Context, authorID string) (string, error)
}
