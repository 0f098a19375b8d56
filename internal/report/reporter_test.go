package report

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/peer-warden/internal/assign"
	"github.com/sevigo/peer-warden/internal/config"
	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/logger"
	"github.com/sevigo/peer-warden/internal/storage"
	"github.com/sevigo/peer-warden/internal/storage/storagetest"
	"github.com/sevigo/peer-warden/mocks"
)

const batchKey = "course:essay"

var testCfg = &config.PassbackConfig{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, ClaimLease: time.Minute}

// seed stores a batch ordered C, D, B, A with k=2, so B reviews C then D.
func seed(t *testing.T, store storage.Store) {
	t.Helper()
	batch := &core.Batch{Key: batchKey, CourseID: "course", ActivityID: "essay"}
	for _, a := range []string{"C", "D", "B", "A"} {
		batch.Submissions = append(batch.Submissions, core.Submission{PaperID: "p-" + a, AuthorID: a, AuthorName: "Author " + a})
	}
	plan, err := assign.Assign(batch.Papers(), 2)
	require.NoError(t, err)
	_, err = store.SaveBatch(context.Background(), batch, plan)
	require.NoError(t, err)
	require.NoError(t, store.SavePassbackTarget(context.Background(), &core.PassbackTarget{
		BatchKey: batchKey, ReviewerID: "B", ServiceURL: "https://lms.example/lineitems/7", UserID: "lti-b",
	}))
}

func completeAll(t *testing.T, store storage.Store, reviewer string) []core.ReviewAssignment {
	t.Helper()
	ctx := context.Background()
	assignments, err := store.GetAssignmentsForReviewer(ctx, batchKey, reviewer)
	require.NoError(t, err)
	for _, a := range assignments {
		payload, _ := json.Marshal("feedback on " + a.AuthorID)
		_, err := store.UpdateStatus(ctx, a.ID, core.StatusComplete, payload)
		require.NoError(t, err)
	}
	return assignments
}

func TestReport_DeliversOnce(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := storagetest.NewStore(t)
	seed(t, store)
	completeAll(t, store, "B")

	channel := mocks.NewMockPassbackChannel(ctrl)
	publisher := mocks.NewMockPublisher(ctrl)

	want := "<p><b>Review of Author C</b><br/>feedback on C</p><p><b>Review of Author D</b><br/>feedback on D</p>"
	channel.EXPECT().
		ReplaceResult(gomock.Any(), gomock.Any(), gomock.Nil(), want).
		DoAndReturn(func(_ context.Context, target *core.PassbackTarget, _ *float64, _ string) error {
			assert.Equal(t, "lti-b", target.UserID)
			return nil
		}).Times(1)
	publisher.EXPECT().
		PublishReviewerCompleted(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev *core.ReviewerCompletedEvent) error {
			assert.Equal(t, "B", ev.ReviewerID)
			assert.Equal(t, 2, ev.Reviews)
			return nil
		}).Times(1)

	r := New(store, channel, publisher, nil, testCfg, logger.Nop())
	require.NoError(t, r.Report(ctx, "B", batchKey))

	err := r.Report(ctx, "B", batchKey)
	assert.ErrorIs(t, err, core.ErrAlreadyReported)

	rec, err := store.GetReport(ctx, batchKey, "B")
	require.NoError(t, err)
	assert.Equal(t, core.ReportDelivered, rec.State)
}

func TestReport_PassbackFailureThenRetry(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := storagetest.NewStore(t)
	seed(t, store)
	completeAll(t, store, "B")

	channel := mocks.NewMockPassbackChannel(ctrl)
	gradebookDown := errors.New("503 from gradebook")
	first := channel.EXPECT().ReplaceResult(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(gradebookDown).Times(testCfg.MaxAttempts)
	channel.EXPECT().ReplaceResult(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil).After(first)

	r := New(store, channel, nil, nil, testCfg, logger.Nop())

	err := r.Report(ctx, "B", batchKey)
	require.ErrorIs(t, err, core.ErrPassback)
	assert.ErrorIs(t, err, gradebookDown)

	assignments, err := store.GetAssignmentsForReviewer(ctx, batchKey, "B")
	require.NoError(t, err)
	assert.True(t, core.AllComplete(assignments))

	rec, err := store.GetReport(ctx, batchKey, "B")
	require.NoError(t, err)
	assert.Equal(t, core.ReportFailed, rec.State)
	assert.Contains(t, rec.LastError, "503")

	swept, err := r.Sweep(ctx, batchKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, swept)

	require.NoError(t, r.Report(ctx, "B", batchKey))

	after, err := store.GetAssignmentsForReviewer(ctx, batchKey, "B")
	require.NoError(t, err)
	assert.Equal(t, assignments, after)

	swept, err = r.Sweep(ctx, batchKey)
	require.NoError(t, err)
	assert.Empty(t, swept)
}

func TestReport_Preconditions(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := storagetest.NewStore(t)
	seed(t, store)
	channel := mocks.NewMockPassbackChannel(ctrl)
	r := New(store, channel, nil, nil, testCfg, logger.Nop())

	err := r.Report(ctx, "B", batchKey)
	assert.ErrorIs(t, err, core.ErrIncomplete)

	err = r.Report(ctx, "Z", batchKey)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// A has no passback target.
	completeAll(t, store, "A")
	err = r.Report(ctx, "A", batchKey)
	assert.ErrorIs(t, err, core.ErrPassback)

	rec, err := store.GetReport(ctx, batchKey, "A")
	require.NoError(t, err)
	assert.Equal(t, core.ReportFailed, rec.State)
}

func TestReport_SendsScore(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	store := storagetest.NewStore(t)
	seed(t, store)
	completeAll(t, store, "B")

	cfg := *testCfg
	cfg.SendScore = true
	cfg.CompletionScore = 1

	channel := mocks.NewMockPassbackChannel(ctrl)
	channel.EXPECT().ReplaceResult(gomock.Any(), gomock.Any(), gomock.Not(gomock.Nil()), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *core.PassbackTarget, score *float64, _ string) error {
			assert.InDelta(t, 1.0, *score, 1e-9)
			return nil
		})

	r := New(store, channel, nil, nil, &cfg, logger.Nop())
	require.NoError(t, r.Report(ctx, "B", batchKey))
}

// slowGradebook takes delay to answer the first call, honoring cancellation
// unless ignoreCancel is set. Later calls answer at once.
type slowGradebook struct {
	delay        time.Duration
	ignoreCancel bool

	calls     atomic.Int32
	delivered atomic.Int32

	mu        sync.Mutex
	deadlines []time.Duration
}

func (g *slowGradebook) ReplaceResult(ctx context.Context, _ *core.PassbackTarget, _ *float64, _ string) error {
	if deadline, ok := ctx.Deadline(); ok {
		g.mu.Lock()
		g.deadlines = append(g.deadlines, time.Until(deadline))
		g.mu.Unlock()
	}
	if g.calls.Add(1) == 1 {
		if g.ignoreCancel {
			time.Sleep(g.delay)
		} else {
			select {
			case <-time.After(g.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	g.delivered.Add(1)
	return nil
}

func shortLeaseReporter(t *testing.T, gradebook core.PassbackChannel, lease time.Duration) (*Reporter, storage.Store) {
	t.Helper()
	store := storagetest.NewStore(t)
	seed(t, store)
	completeAll(t, store, "B")

	cfg := *testCfg
	cfg.MaxAttempts = 1
	cfg.ClaimLease = lease
	return New(store, gradebook, nil, nil, &cfg, logger.Nop()), store
}

func TestReport_DeliveryEndsWithinClaimLease(t *testing.T) {
	ctx := context.Background()
	lease := 100 * time.Millisecond
	gradebook := &slowGradebook{delay: 300 * time.Millisecond}
	r, store := shortLeaseReporter(t, gradebook, lease)

	firstErr := make(chan error, 1)
	go func() { firstErr <- r.Report(ctx, "B", batchKey) }()

	// Start a second delivery once the first claim's lease has run out.
	time.Sleep(150 * time.Millisecond)
	secondErr := r.Report(ctx, "B", batchKey)

	err := <-firstErr
	assert.ErrorIs(t, err, core.ErrPassback)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, secondErr)

	assert.Equal(t, int32(1), gradebook.delivered.Load())
	gradebook.mu.Lock()
	for _, d := range gradebook.deadlines {
		assert.LessOrEqual(t, d, lease)
	}
	gradebook.mu.Unlock()

	rec, err := store.GetReport(ctx, batchKey, "B")
	require.NoError(t, err)
	assert.Equal(t, core.ReportDelivered, rec.State)
	assert.Equal(t, 2, rec.Attempts)
}

func TestReport_SupersededClaimLeavesOutcomeAlone(t *testing.T) {
	ctx := context.Background()
	gradebook := &slowGradebook{delay: 300 * time.Millisecond, ignoreCancel: true}
	r, store := shortLeaseReporter(t, gradebook, 50*time.Millisecond)

	firstErr := make(chan error, 1)
	go func() { firstErr <- r.Report(ctx, "B", batchKey) }()

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, r.Report(ctx, "B", batchKey))

	// The stale holder learns it lost the claim instead of overwriting it.
	assert.ErrorIs(t, <-firstErr, core.ErrAlreadyReported)

	rec, err := store.GetReport(ctx, batchKey, "B")
	require.NoError(t, err)
	assert.Equal(t, core.ReportDelivered, rec.State)
	assert.Equal(t, 2, rec.Attempts)
}

func TestRender(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)
	seed(t, store)

	assignments, err := store.GetAssignmentsForReviewer(ctx, batchKey, "B")
	require.NoError(t, err)
	_, err = store.UpdateStatus(ctx, assignments[0].ID, core.StatusComplete, json.RawMessage(`"<script>x</script>"`))
	require.NoError(t, err)

	r := New(store, nil, nil, nil, testCfg, logger.Nop())
	text, err := r.Render(ctx, "B", batchKey)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(text, "<p>"))
	assert.Contains(t, text, "Review of Author C")
	assert.NotContains(t, text, "<script>")
	assert.Contains(t, text, "&lt;script&gt;")
}

func TestRenderBlocks(t *testing.T) {
	text, err := RenderBlocks(nil)
	require.NoError(t, err)
	assert.Empty(t, text)

	text, err = RenderBlocks([]Block{{Author: "Ada", Review: "solid"}})
	require.NoError(t, err)
	assert.Equal(t, "<p><b>Review of Ada</b><br/>solid</p>", text)
}

func TestPayloadText(t *testing.T) {
	assert.Equal(t, "", payloadText(nil))
	assert.Equal(t, "plain", payloadText(json.RawMessage(`"plain"`)))
	assert.Equal(t, `{"score":3}`, payloadText(json.RawMessage(`{"score":3}`)))
}
