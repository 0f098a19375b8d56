// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import (
	"fmt"
	"strings"
	"time"
)

// Paper is the minimal input of the assignment engine: one paper per author.
type Paper struct {
	PaperID  string `json:"paper_id" yaml:"paper_id"`
	AuthorID string `json:"author_id" yaml:"author_id"`
}

// Submission is a student's submitted work for an activity, as supplied by the
// submission registry. It is immutable once imported into a batch.
type Submission struct {
	PaperID       string `json:"paper_id" db:"paper_id" yaml:"paper_id"`
	AuthorID      string `json:"author_id" db:"author_id" yaml:"author_id"`
	AuthorName    string `json:"author_name" db:"author_name" yaml:"author_name"`
	AttachmentRef string `json:"attachment_ref" db:"attachment_ref" yaml:"attachment_ref"`
}

// Paper returns the engine view of the submission.
func (s Submission) Paper() Paper {
	return Paper{PaperID: s.PaperID, AuthorID: s.AuthorID}
}

// Batch is one course activity's submissions plus its target review count.
// It is created once and is read-only afterwards.
type Batch struct {
	Key         string       `json:"key" db:"batch_key"`
	CourseID    string       `json:"course_id" db:"course_id"`
	ActivityID  string       `json:"activity_id" db:"activity_id"`
	ReviewNum   int          `json:"review_num" db:"review_num"`
	Submissions []Submission `json:"submissions"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// Papers returns the batch submissions in batch order as engine input.
func (b *Batch) Papers() []Paper {
	papers := make([]Paper, 0, len(b.Submissions))
	for _, s := range b.Submissions {
		papers = append(papers, s.Paper())
	}
	return papers
}

const batchKeySeparator = ":"

// NewBatchKey builds the batch identity from the course and activity identifiers.
func NewBatchKey(courseID, activityID string) (string, error) {
	courseID = strings.TrimSpace(courseID)
	activityID = strings.TrimSpace(activityID)
	if courseID == "" || activityID == "" {
		return "", fmt.Errorf("%w: course and activity ids are required", ErrParameter)
	}
	if strings.Contains(courseID, batchKeySeparator) || strings.Contains(activityID, batchKeySeparator) {
		return "", fmt.Errorf("%w: ids must not contain %q", ErrParameter, batchKeySeparator)
	}
	return courseID + batchKeySeparator + activityID, nil
}

// SplitBatchKey is the inverse of NewBatchKey.
func SplitBatchKey(key string) (courseID, activityID string, err error) {
	courseID, activityID, ok := strings.Cut(key, batchKeySeparator)
	if !ok || courseID == "" || activityID == "" {
		return "", "", fmt.Errorf("%w: malformed batch key %q", ErrParameter, key)
	}
	return courseID, activityID, nil
}
