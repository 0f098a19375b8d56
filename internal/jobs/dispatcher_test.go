package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/logger"
)

type fakeReporter struct {
	mu    sync.Mutex
	calls []string
	err   error
	block chan struct{}
}

func (f *fakeReporter) Report(_ context.Context, reviewerID, batchKey string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, batchKey+"/"+reviewerID)
	return f.err
}

func TestDispatcher_RunsQueuedJobs(t *testing.T) {
	rep := &fakeReporter{}
	d := NewDispatcher(NewReportJob(rep, logger.Nop()), 2, 10, nil, logger.Nop())

	for _, r := range []string{"A", "B", "C"} {
		require.NoError(t, d.Dispatch(context.Background(), &core.ReportRequest{BatchKey: "c:a", ReviewerID: r}))
	}
	d.Stop()

	assert.ElementsMatch(t, []string{"c:a/A", "c:a/B", "c:a/C"}, rep.calls)

	err := d.Dispatch(context.Background(), &core.ReportRequest{BatchKey: "c:a", ReviewerID: "D"})
	assert.ErrorIs(t, err, ErrStopped)
	d.Stop()
}

func TestDispatcher_Backpressure(t *testing.T) {
	rep := &fakeReporter{block: make(chan struct{})}
	d := NewDispatcher(NewReportJob(rep, logger.Nop()), 1, 1, nil, logger.Nop())

	var queued, full int
	for i := 0; i < 5; i++ {
		err := d.Dispatch(context.Background(), &core.ReportRequest{BatchKey: "c:a", ReviewerID: "R"})
		switch {
		case err == nil:
			queued++
		case errors.Is(err, ErrQueueFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	close(rep.block)
	d.Stop()

	assert.LessOrEqual(t, queued, 2)
	assert.Equal(t, 5, queued+full)
	assert.Len(t, rep.calls, queued)
}

func TestDispatcher_RejectsInvalidRequest(t *testing.T) {
	d := NewDispatcher(NewReportJob(&fakeReporter{}, logger.Nop()), 1, 1, nil, logger.Nop())
	defer d.Stop()

	assert.ErrorIs(t, d.Dispatch(context.Background(), nil), core.ErrParameter)
	assert.ErrorIs(t, d.Dispatch(context.Background(), &core.ReportRequest{BatchKey: "c:a"}), core.ErrParameter)
}

func TestReportJob_Run(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"delivered", nil, nil},
		{"already reported", core.ErrAlreadyReported, nil},
		{"passback failure", core.ErrPassback, core.ErrPassback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewReportJob(&fakeReporter{err: tt.err}, logger.Nop())
			err := job.Run(context.Background(), &core.ReportRequest{BatchKey: "c:a", ReviewerID: "B"})
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestNewReportJob_PanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewReportJob(nil, logger.Nop()) })
	assert.Panics(t, func() { NewReportJob(&fakeReporter{}, nil) })
}
