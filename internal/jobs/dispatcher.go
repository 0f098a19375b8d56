// Package jobs runs background report deliveries on a bounded worker pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/metrics"
)

// ErrQueueFull is returned by Dispatch when no queue slot is free.
var ErrQueueFull = errors.New("job queue is full")

// ErrStopped is returned by Dispatch after Stop.
var ErrStopped = errors.New("dispatcher is stopped")

// dispatcher implements core.JobDispatcher and manages a pool of worker goroutines
// for processing report requests.
type dispatcher struct {
	reportJob  core.Job                 // Job implementation executed by each worker.
	jobQueue   chan *core.ReportRequest // Queue of pending report requests.
	maxWorkers int                      // Number of concurrent workers.
	wg         sync.WaitGroup           // Tracks active workers for graceful shutdown.
	mu         sync.RWMutex             // Guards stopped against concurrent Dispatch.
	stopped    bool
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewDispatcher initializes a dispatcher with a worker pool.
// If maxWorkers or queueSize is 0 or negative, it defaults to 1 and 100.
func NewDispatcher(reportJob core.Job, maxWorkers, queueSize int, m *metrics.Metrics, logger *slog.Logger) core.JobDispatcher {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	d := &dispatcher{
		reportJob:  reportJob,
		maxWorkers: maxWorkers,
		jobQueue:   make(chan *core.ReportRequest, queueSize),
		metrics:    m,
		logger:     logger,
	}
	d.startWorkers()
	return d
}

// startWorkers launches maxWorkers goroutines to process jobs from the queue.
func (d *dispatcher) startWorkers() {
	for i := range d.maxWorkers {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

// startWorker processes requests from the queue until it's closed.
func (d *dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Debug("starting report worker", "id", workerID)

	for req := range d.jobQueue {
		d.metrics.QueueDepth(len(d.jobQueue))
		d.process(workerID, req)
	}

	d.logger.Debug("shutting down report worker", "id", workerID)
}

func (d *dispatcher) process(workerID int, req *core.ReportRequest) {
	d.logger.Info("worker processing report job",
		"worker_id", workerID,
		"batch", req.BatchKey,
		"reviewer", req.ReviewerID,
	)

	if err := d.reportJob.Run(context.Background(), req); err != nil {
		d.logger.Error("report job failed",
			"batch", req.BatchKey,
			"reviewer", req.ReviewerID,
			"error", err,
		)
	}
}

// Dispatch queues a report request for processing by a worker.
func (d *dispatcher) Dispatch(_ context.Context, req *core.ReportRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}

	select {
	case d.jobQueue <- req:
		d.metrics.QueueDepth(len(d.jobQueue))
		d.logger.Debug("queued report job", "batch", req.BatchKey, "reviewer", req.ReviewerID)
		return nil
	default:
		return fmt.Errorf("%w: cannot accept report for %s", ErrQueueFull, req.ReviewerID)
	}
}

// Stop gracefully shuts down the dispatcher, waiting for all workers to finish.
func (d *dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.jobQueue)
	d.mu.Unlock()

	d.logger.Info("stopping dispatcher and waiting for jobs to finish")
	d.wg.Wait()
	d.logger.Info("all report jobs have finished")
}
