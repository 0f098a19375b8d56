package batch

import (
	"context"
	"errors"

	"github.com/sevigo/peer-warden/internal/core"
)

// AuthorStatus is one participant's progress as a reviewer.
type AuthorStatus struct {
	AuthorID   string           `json:"author_id"`
	AuthorName string           `json:"author_name"`
	PaperID    string           `json:"paper_id"`
	Assigned   int              `json:"assigned"`
	Incomplete int              `json:"incomplete"`
	Report     core.ReportState `json:"report,omitempty"`
}

// Overview summarises a batch for the instructor.
type Overview struct {
	Batch      *core.Batch    `json:"batch"`
	Authors    []AuthorStatus `json:"authors"`
	Complete   int            `json:"complete"`
	Incomplete int            `json:"incomplete"`
}

// Overview returns per-author review progress in batch order.
func (s *Service) Overview(ctx context.Context, batchKey string) (*Overview, error) {
	batch, err := s.store.GetBatch(ctx, batchKey)
	if err != nil {
		return nil, err
	}
	assignments, err := s.store.GetAssignmentsForBatch(ctx, batchKey)
	if err != nil {
		return nil, err
	}
	reports, err := s.store.ListReports(ctx, batchKey)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	index := make(map[string]int, len(batch.Submissions))
	ov := &Overview{Batch: batch, Authors: make([]AuthorStatus, 0, len(batch.Submissions))}
	for i, sub := range batch.Submissions {
		index[sub.AuthorID] = i
		ov.Authors = append(ov.Authors, AuthorStatus{AuthorID: sub.AuthorID, AuthorName: sub.AuthorName, PaperID: sub.PaperID})
	}
	for _, a := range assignments {
		i, ok := index[a.ReviewerID]
		if !ok {
			continue
		}
		ov.Authors[i].Assigned++
		if a.IsComplete() {
			ov.Complete++
		} else {
			ov.Authors[i].Incomplete++
			ov.Incomplete++
		}
	}
	for _, rec := range reports {
		if i, ok := index[rec.ReviewerID]; ok {
			ov.Authors[i].Report = rec.State
		}
	}
	return ov, nil
}
