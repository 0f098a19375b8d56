package core

import "context"

// ReportRequest identifies a reviewer report that should be (re)delivered.
type ReportRequest struct {
	BatchKey   string
	ReviewerID string
}

// JobDispatcher defines the contract for a system that can accept and queue
// background jobs for asynchronous processing. It decouples the operator
// trigger (HTTP or CLI) from the delivery mechanism.
type JobDispatcher interface {
	// Dispatch queues a report request. It returns an error if the queue is
	// full, providing a mechanism for backpressure.
	Dispatch(ctx context.Context, req *ReportRequest) error
	// Stop waits for queued jobs to finish.
	Stop()
}

// Job is a single, executable unit of work processed by the dispatcher.
type Job interface {
	Run(ctx context.Context, req *ReportRequest) error
}
