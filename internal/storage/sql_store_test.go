package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/peer-warden/internal/assign"
	"github.com/sevigo/peer-warden/internal/core"
	"github.com/sevigo/peer-warden/internal/storage"
	"github.com/sevigo/peer-warden/internal/storage/storagetest"
)

const batchKey = "c1:a1"

func seedBatch(t *testing.T, store storage.Store, k int, authors ...string) []core.ReviewAssignment {
	t.Helper()
	batch := &core.Batch{Key: batchKey, CourseID: "c1", ActivityID: "a1"}
	for _, a := range authors {
		batch.Submissions = append(batch.Submissions, core.Submission{PaperID: "p-" + a, AuthorID: a, AuthorName: "Student " + a})
	}
	plan, err := assign.Assign(batch.Papers(), k)
	require.NoError(t, err)
	assignments, err := store.SaveBatch(context.Background(), batch, plan)
	require.NoError(t, err)
	return assignments
}

func TestSaveBatch(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	assignments := seedBatch(t, store, 2, "A", "B", "C", "D")
	require.Len(t, assignments, 8)

	batch, err := store.GetBatch(ctx, batchKey)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.ReviewNum)
	require.Len(t, batch.Submissions, 4)
	assert.Equal(t, "A", batch.Submissions[0].AuthorID)
	assert.Equal(t, "Student D", batch.Submissions[3].AuthorName)

	forB, err := store.GetAssignmentsForReviewer(ctx, batchKey, "B")
	require.NoError(t, err)
	require.Len(t, forB, 2)
	assert.Equal(t, "A", forB[0].AuthorID)
	assert.Equal(t, "D", forB[1].AuthorID)
	assert.Less(t, forB[0].Seq, forB[1].Seq)

	forPaper, err := store.GetAssignmentsForPaper(ctx, batchKey, "p-A")
	require.NoError(t, err)
	require.Len(t, forPaper, 2)
	assert.Equal(t, "B", forPaper[0].ReviewerID)
	assert.Equal(t, "C", forPaper[1].ReviewerID)

	all, err := store.GetAssignmentsForBatch(ctx, batchKey)
	require.NoError(t, err)
	assert.Len(t, all, 8)
	for _, a := range all {
		assert.Equal(t, core.StatusPending, a.Status)
		assert.NotEqual(t, a.AuthorID, a.ReviewerID)
	}
}

func TestSaveBatch_Exists(t *testing.T) {
	store := storagetest.NewStore(t)
	seedBatch(t, store, 1, "A", "B")

	batch := &core.Batch{Key: batchKey, CourseID: "c1", ActivityID: "a1",
		Submissions: []core.Submission{{PaperID: "p-X", AuthorID: "X"}, {PaperID: "p-Y", AuthorID: "Y"}}}
	plan, err := assign.Assign(batch.Papers(), 1)
	require.NoError(t, err)

	_, err = store.SaveBatch(context.Background(), batch, plan)
	assert.ErrorIs(t, err, core.ErrBatchExists)

	got, err := store.GetBatch(context.Background(), batchKey)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Submissions[0].AuthorID)
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	_, err := store.GetBatch(ctx, "nope:nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.GetAssignment(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.GetReport(ctx, batchKey, "A")
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.GetPassbackTarget(ctx, batchKey, "A")
	assert.ErrorIs(t, err, core.ErrNotFound)

	list, err := store.GetAssignmentsForReviewer(ctx, batchKey, "A")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreateAssignment(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)
	seedBatch(t, store, 1, "A", "B", "C")

	_, err := store.CreateAssignment(ctx, batchKey, "p-A", "A", "A")
	assert.ErrorIs(t, err, core.ErrParameter)

	id, err := store.CreateAssignment(ctx, batchKey, "p-A", "A", "C")
	require.NoError(t, err)

	got, err := store.GetAssignment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "C", got.ReviewerID)
	assert.Equal(t, core.StatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)

	// Same paper and reviewer twice violates the pair uniqueness.
	_, err = store.CreateAssignment(ctx, batchKey, "p-A", "A", "C")
	assert.ErrorIs(t, err, core.ErrPersistence)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)
	assignments := seedBatch(t, store, 1, "A", "B")
	id := assignments[0].ID

	_, err := store.UpdateStatus(ctx, id, core.StatusPending, nil)
	assert.ErrorIs(t, err, core.ErrParameter)

	changed, err := store.UpdateStatus(ctx, id, core.StatusComplete, json.RawMessage(`"first"`))
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := store.GetAssignment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusComplete, got.Status)
	assert.JSONEq(t, `"first"`, string(got.Payload))
	require.NotNil(t, got.CompletedAt)

	changed, err = store.UpdateStatus(ctx, id, core.StatusComplete, json.RawMessage(`"second"`))
	require.NoError(t, err)
	assert.False(t, changed)

	got, err = store.GetAssignment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusComplete, got.Status)
	assert.JSONEq(t, `"second"`, string(got.Payload))

	changed, err = store.UpdateStatus(ctx, id, core.StatusComplete, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.UpdateStatus(ctx, "missing", core.StatusComplete, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.UpdateStatus(ctx, "missing", core.StatusComplete, json.RawMessage(`1`))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateStatus_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)
	id := seedBatch(t, store, 1, "A", "B")[0].ID

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := store.UpdateStatus(ctx, id, core.StatusComplete, json.RawMessage(`{}`))
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestClaimReport(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	attempt, ok, err := store.ClaimReport(ctx, batchKey, "B", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, attempt)

	// In flight within the lease.
	_, ok, err = store.ClaimReport(ctx, batchKey, "B", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.FinishReport(ctx, batchKey, "B", attempt, errors.New("gradebook down")))
	rec, err := store.GetReport(ctx, batchKey, "B")
	require.NoError(t, err)
	assert.Equal(t, core.ReportFailed, rec.State)
	assert.Equal(t, "gradebook down", rec.LastError)
	assert.Equal(t, 1, rec.Attempts)

	// Failed reports can be claimed again.
	attempt, ok, err = store.ClaimReport(ctx, batchKey, "B", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, attempt)
	require.NoError(t, store.FinishReport(ctx, batchKey, "B", attempt, nil))

	rec, err = store.GetReport(ctx, batchKey, "B")
	require.NoError(t, err)
	assert.Equal(t, core.ReportDelivered, rec.State)
	assert.Equal(t, 2, rec.Attempts)
	assert.Empty(t, rec.LastError)
	assert.NotNil(t, rec.DeliveredAt)

	// Delivered is terminal.
	_, ok, err = store.ClaimReport(ctx, batchKey, "B", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	err = store.FinishReport(ctx, batchKey, "B", attempt, nil)
	assert.ErrorIs(t, err, core.ErrAlreadyReported)

	err = store.FinishReport(ctx, batchKey, "Z", 1, nil)
	assert.ErrorIs(t, err, core.ErrNotFound)

	reports, err := store.ListReports(ctx, batchKey)
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestClaimReport_ExpiredLease(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	_, ok, err := store.ClaimReport(ctx, batchKey, "C", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	attempt, ok, err := store.ClaimReport(ctx, batchKey, "C", time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, attempt)
}

func TestFinishReport_StaleClaimCannotOverwrite(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	stale, ok, err := store.ClaimReport(ctx, batchKey, "C", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	current, ok, err := store.ClaimReport(ctx, batchKey, "C", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, stale, current)

	// The superseded holder finishes first and must not touch the new claim.
	err = store.FinishReport(ctx, batchKey, "C", stale, nil)
	assert.ErrorIs(t, err, core.ErrAlreadyReported)

	rec, err := store.GetReport(ctx, batchKey, "C")
	require.NoError(t, err)
	assert.Equal(t, core.ReportDelivering, rec.State)
	assert.Nil(t, rec.DeliveredAt)

	require.NoError(t, store.FinishReport(ctx, batchKey, "C", current, nil))
	rec, err = store.GetReport(ctx, batchKey, "C")
	require.NoError(t, err)
	assert.Equal(t, core.ReportDelivered, rec.State)
}

func TestClaimReport_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := store.ClaimReport(ctx, batchKey, "D", time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPassbackTarget(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewStore(t)

	target := &core.PassbackTarget{BatchKey: batchKey, ReviewerID: "B", ServiceURL: "https://lms/lineitems/1", UserID: "u-1"}
	require.NoError(t, store.SavePassbackTarget(ctx, target))

	target.ServiceURL = "https://lms/lineitems/2"
	require.NoError(t, store.SavePassbackTarget(ctx, target))

	got, err := store.GetPassbackTarget(ctx, batchKey, "B")
	require.NoError(t, err)
	assert.Equal(t, "https://lms/lineitems/2", got.ServiceURL)
	assert.Equal(t, "u-1", got.UserID)
	assert.False(t, got.UpdatedAt.IsZero())
}
