package jobQueue

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu         sync.Mutex
	jobs       map[string]model.Job
	runningErr error
	finishErr  error
}

func newFakeRepo(jobs ...model.Job) *fakeRepo {
	f := &fakeRepo{jobs: map[string]model.Job{}}
	for _, j := range jobs {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeRepo) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job.Status = model.JobPending
	job.CreatedAt = time.Now()
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeRepo) GetJob(ctx context.Context, jobID string) (model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return model.Job{}, repository.ErrNotFound
	}
	return job, nil
}

func (f *fakeRepo) ListJobs(ctx context.Context, jobType *model.JobType, limit int) ([]model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []model.Job
	for _, j := range f.jobs {
		if jobType == nil || j.Type == *jobType {
			res = append(res, j)
		}
	}
	return res, nil
}

func (f *fakeRepo) HasActiveJob(ctx context.Context, jobType model.JobType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Type == jobType && (j.Status == model.JobPending || j.Status == model.JobRunning) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) MarkJobRunning(ctx context.Context, jobID string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runningErr != nil {
		return f.runningErr
	}
	j := f.jobs[jobID]
	j.Status = model.JobRunning
	j.Attempts++
	j.StartedAt = &startedAt
	f.jobs[jobID] = j
	return nil
}

func (f *fakeRepo) FinishJob(ctx context.Context, job model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finishErr != nil {
		return f.finishErr
	}
	j := f.jobs[job.ID]
	j.Status = job.Status
	j.Processed = job.Processed
	j.Succeeded = job.Succeeded
	j.Failed = job.Failed
	j.FailedItems = job.FailedItems
	j.Error = job.Error
	j.CompletedAt = job.CompletedAt
	f.jobs[job.ID] = j
	return nil
}

func (f *fakeRepo) RequeueJob(ctx context.Context, jobID, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[jobID]
	j.Status = model.JobPending
	j.Error = lastError
	f.jobs[jobID] = j
	return nil
}

func (f *fakeRepo) ListUnfinishedJobs(ctx context.Context) ([]model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []model.Job
	for _, j := range f.jobs {
		if j.Status == model.JobPending || j.Status == model.JobRunning {
			res = append(res, j)
		}
	}
	return res, nil
}

func (f *fakeRepo) job(id string) model.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id]
}

func waitForStatus(t *testing.T, repo *fakeRepo, id string, status model.JobStatus) model.Job {
	t.Helper()
	require.Eventually(t, func() bool {
		return repo.job(id).Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return repo.job(id)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

func startQueue(t *testing.T, q *Queue) {
	t.Helper()
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(q.Stop)
}

func TestEnqueueRunsHandler(t *testing.T) {
	repo := newFakeRepo()
	q := New(repo, 2, 8, 3)
	q.Register(model.JobRefreshPrices, func(ctx context.Context, progress *model.JobProgress) error {
		progress.Success()
		progress.Failure("GONE")
		return nil
	})
	startQueue(t, q)

	job, err := q.Enqueue(context.Background(), model.JobRefreshPrices)
	require.NoError(t, err)
	assert.Equal(t, 3, job.MaxAttempts)

	done := waitForStatus(t, repo, job.ID, model.JobCompleted)
	assert.Equal(t, 1, done.Attempts)
	assert.Equal(t, 2, done.Processed)
	assert.Equal(t, []string{"GONE"}, done.FailedItems)
	assert.NotNil(t, done.CompletedAt)
}

func TestEnqueueDeclinesActiveType(t *testing.T) {
	repo := newFakeRepo(model.Job{ID: "old", Type: model.JobRefreshPrices, Status: model.JobRunning})
	q := New(repo, 1, 8, 3)
	q.Register(model.JobRefreshPrices, func(ctx context.Context, progress *model.JobProgress) error { return nil })

	_, err := q.Enqueue(context.Background(), model.JobRefreshPrices)
	assert.ErrorIs(t, err, ErrJobAlreadyActive)
}

func TestEnqueueUnknownType(t *testing.T) {
	q := New(newFakeRepo(), 1, 8, 3)

	_, err := q.Enqueue(context.Background(), model.JobType("nope"))
	assert.ErrorIs(t, err, ErrUnknownJobType)
}

func TestFailedJobIsRetriedUntilMaxAttempts(t *testing.T) {
	repo := newFakeRepo()
	q := New(repo, 1, 8, 3)

	var calls atomic.Int32
	q.Register(model.JobRefreshDividends, func(ctx context.Context, progress *model.JobProgress) error {
		calls.Add(1)
		return errors.New("upstream down")
	})
	startQueue(t, q)

	job, err := q.Enqueue(context.Background(), model.JobRefreshDividends)
	require.NoError(t, err)

	done := waitForStatus(t, repo, job.ID, model.JobFailed)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, done.Attempts)
	assert.Equal(t, "upstream down", done.Error)
}

func TestRetrySucceeds(t *testing.T) {
	repo := newFakeRepo()
	q := New(repo, 1, 8, 3)

	var calls atomic.Int32
	q.Register(model.JobPortfolioSnapshot, func(ctx context.Context, progress *model.JobProgress) error {
		if calls.Add(1) == 1 {
			return errors.New("flaky")
		}
		return nil
	})
	startQueue(t, q)

	job, err := q.Enqueue(context.Background(), model.JobPortfolioSnapshot)
	require.NoError(t, err)

	done := waitForStatus(t, repo, job.ID, model.JobCompleted)
	assert.Equal(t, 2, done.Attempts)
	assert.Empty(t, done.Error)
}

func TestPanicMarksJobFailed(t *testing.T) {
	repo := newFakeRepo()
	q := New(repo, 1, 8, 1)
	q.Register(model.JobDividendAlerts, func(ctx context.Context, progress *model.JobProgress) error {
		panic("boom")
	})
	startQueue(t, q)

	job, err := q.Enqueue(context.Background(), model.JobDividendAlerts)
	require.NoError(t, err)

	done := waitForStatus(t, repo, job.ID, model.JobFailed)
	assert.Contains(t, done.Error, "boom")
}

func TestStartRequeuesUnfinishedJobs(t *testing.T) {
	repo := newFakeRepo(
		model.Job{ID: "a", Type: model.JobCleanupReports, Status: model.JobPending, MaxAttempts: 3},
		model.Job{ID: "b", Type: model.JobCleanupReports, Status: model.JobRunning, Attempts: 1, MaxAttempts: 3},
		model.Job{ID: "c", Type: model.JobCleanupReports, Status: model.JobCompleted, MaxAttempts: 3},
	)
	q := New(repo, 2, 8, 3)

	var calls atomic.Int32
	q.Register(model.JobCleanupReports, func(ctx context.Context, progress *model.JobProgress) error {
		calls.Add(1)
		return nil
	})
	startQueue(t, q)

	waitForStatus(t, repo, "a", model.JobCompleted)
	b := waitForStatus(t, repo, "b", model.JobCompleted)
	assert.Equal(t, 2, b.Attempts)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetMapsNotFound(t *testing.T) {
	q := New(newFakeRepo(), 1, 8, 3)

	_, err := q.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestMarkRunningFailureIsLoggedAndHandlerSkipped(t *testing.T) {
	logs := captureLogs(t)
	repo := newFakeRepo()
	repo.runningErr = errors.New("db gone")
	q := New(repo, 1, 8, 3)

	var calls atomic.Int32
	q.Register(model.JobRefreshPrices, func(ctx context.Context, progress *model.JobProgress) error {
		calls.Add(1)
		return nil
	})
	startQueue(t, q)

	job, err := q.Enqueue(context.Background(), model.JobRefreshPrices)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "failed to mark job running")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, logs.String(), "db gone")
	assert.Contains(t, logs.String(), job.ID)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, model.JobPending, repo.job(job.ID).Status)
}

func TestFinishFailureIsLogged(t *testing.T) {
	logs := captureLogs(t)
	repo := newFakeRepo()
	repo.finishErr = errors.New("write timeout")
	q := New(repo, 1, 8, 1)
	q.Register(model.JobCleanupReports, func(ctx context.Context, progress *model.JobProgress) error { return nil })
	startQueue(t, q)

	job, err := q.Enqueue(context.Background(), model.JobCleanupReports)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "failed to record job result")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, logs.String(), "write timeout")
	assert.Contains(t, logs.String(), job.ID)
	assert.NotContains(t, logs.String(), "job finished")
}
