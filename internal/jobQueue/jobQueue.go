package jobQueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/KotFed0t/dividend_tracker/data/repository"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/service"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/google/uuid"
)

var (
	ErrJobAlreadyActive = errors.New("job of this type is already pending or running")
	ErrUnknownJobType   = errors.New("unknown job type")
	ErrQueueStopped     = errors.New("job queue is stopped")
)

// Handler does the work of one job type and reports progress as it goes.
type Handler func(ctx context.Context, progress *model.JobProgress) error

type Repository interface {
	CreateJob(ctx context.Context, job model.Job) (model.Job, error)
	GetJob(ctx context.Context, jobID string) (model.Job, error)
	ListJobs(ctx context.Context, jobType *model.JobType, limit int) ([]model.Job, error)
	HasActiveJob(ctx context.Context, jobType model.JobType) (bool, error)
	MarkJobRunning(ctx context.Context, jobID string, startedAt time.Time) error
	FinishJob(ctx context.Context, job model.Job) error
	RequeueJob(ctx context.Context, jobID, lastError string) error
	ListUnfinishedJobs(ctx context.Context) ([]model.Job, error)
}

type Queue struct {
	repo        Repository
	handlers    map[model.JobType]Handler
	jobs        chan model.Job
	workers     int
	maxAttempts int
	enqueueMu   sync.Mutex
	wg          sync.WaitGroup
	done        chan struct{}
	cancel      context.CancelFunc
	now         func() time.Time
}

func New(repo Repository, workers, size, maxAttempts int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Queue{
		repo:        repo,
		handlers:    make(map[model.JobType]Handler),
		jobs:        make(chan model.Job, size),
		workers:     workers,
		maxAttempts: maxAttempts,
		done:        make(chan struct{}),
		now:         time.Now,
	}
}

// Register must be called before Start.
func (q *Queue) Register(jobType model.JobType, handler Handler) {
	q.handlers[jobType] = handler
}

func (q *Queue) Registered(jobType model.JobType) bool {
	_, ok := q.handlers[jobType]
	return ok
}

// Enqueue persists a pending job and hands it to the workers.
func (q *Queue) Enqueue(ctx context.Context, jobType model.JobType) (job model.Job, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Queue.Enqueue"

	if !q.Registered(jobType) {
		return model.Job{}, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	active, err := q.repo.HasActiveJob(ctx, jobType)
	if err != nil {
		return model.Job{}, err
	}
	if active {
		return model.Job{}, ErrJobAlreadyActive
	}

	job, err = q.repo.CreateJob(ctx, model.Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		MaxAttempts: q.maxAttempts,
	})
	if err != nil {
		return model.Job{}, err
	}

	slog.Info("job enqueued", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("type", string(jobType)))

	if err = q.push(ctx, job); err != nil {
		// the pending row is picked up again on the next Start
		slog.Warn("job persisted but not queued", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("err", err.Error()))
	}

	return job, nil
}

func (q *Queue) Get(ctx context.Context, jobID string) (model.Job, error) {
	job, err := q.repo.GetJob(ctx, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Job{}, service.ErrNotFound
	}
	return job, err
}

func (q *Queue) List(ctx context.Context, jobType *model.JobType, limit int) ([]model.Job, error) {
	return q.repo.ListJobs(ctx, jobType, limit)
}

// Start runs the workers and re-queues jobs a previous process left unfinished.
func (q *Queue) Start(ctx context.Context) error {
	ctx, q.cancel = context.WithCancel(ctx)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}

	unfinished, err := q.repo.ListUnfinishedJobs(ctx)
	if err != nil {
		return err
	}

	if len(unfinished) > 0 {
		slog.Info("re-queueing unfinished jobs", slog.Int("count", len(unfinished)))
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for _, job := range unfinished {
				if err := q.push(ctx, job); err != nil {
					return
				}
			}
		}()
	}

	return nil
}

// Stop cancels running handlers and waits for the workers to exit.
func (q *Queue) Stop() {
	select {
	case <-q.done:
		return
	default:
	}
	close(q.done)
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
	slog.Info("job queue stopped")
}

func (q *Queue) push(ctx context.Context, job model.Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrQueueStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.run(ctx, job)
		}
	}
}

func (q *Queue) run(ctx context.Context, job model.Job) {
	ctx = utils.CtxWithRqID(ctx, "")
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Queue.run"

	handler, ok := q.handlers[job.Type]
	if !ok {
		slog.Error("no handler for job", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("type", string(job.Type)))
		q.finish(ctx, job, q.now(), &model.JobProgress{}, ErrUnknownJobType)
		return
	}

	startedAt := q.now()
	if err := q.repo.MarkJobRunning(ctx, job.ID, startedAt); err != nil {
		slog.Error("failed to mark job running", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("err", err.Error()))
		return
	}
	job.Attempts++

	slog.Info("job started", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("type", string(job.Type)), slog.Int("attempt", job.Attempts))

	progress := &model.JobProgress{}
	err := safeRun(ctx, handler, progress)

	if ctx.Err() != nil {
		// shutdown: leave the job for the next process
		if rqErr := q.repo.RequeueJob(context.WithoutCancel(ctx), job.ID, "interrupted by shutdown"); rqErr != nil {
			slog.Error("failed to requeue interrupted job", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("err", rqErr.Error()))
		}
		return
	}

	if err != nil && job.Attempts < job.MaxAttempts {
		slog.Warn("job failed, retrying", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.Int("attempt", job.Attempts), slog.String("err", err.Error()))
		if rqErr := q.repo.RequeueJob(ctx, job.ID, err.Error()); rqErr != nil {
			slog.Error("failed to requeue job, marking it failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("err", rqErr.Error()))
			q.finish(ctx, job, startedAt, progress, err)
			return
		}
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			if pushErr := q.push(ctx, job); pushErr != nil {
				slog.Warn("retry not pushed, job stays pending", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("err", pushErr.Error()))
			}
		}()
		return
	}

	q.finish(ctx, job, startedAt, progress, err)
}

func (q *Queue) finish(ctx context.Context, job model.Job, startedAt time.Time, progress *model.JobProgress, runErr error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Queue.finish"
	completedAt := q.now()

	job.Status = model.JobCompleted
	job.Error = ""
	if runErr != nil {
		job.Status = model.JobFailed
		job.Error = runErr.Error()
	}
	job.Processed = progress.Processed
	job.Succeeded = progress.Succeeded
	job.Failed = progress.Failed
	job.FailedItems = progress.FailedItems
	job.CompletedAt = &completedAt
	job.DurationMS = completedAt.Sub(startedAt).Milliseconds()

	if err := q.repo.FinishJob(ctx, job); err != nil {
		slog.Error("failed to record job result", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("status", string(job.Status)), slog.String("err", err.Error()))
		return
	}

	slog.Info(
		"job finished",
		slog.String("rqID", rqID),
		slog.String("jobID", job.ID),
		slog.String("type", string(job.Type)),
		slog.String("status", string(job.Status)),
		slog.Int("processed", job.Processed),
		slog.Int("failed", job.Failed),
		slog.Int64("durationMS", job.DurationMS),
	)
}

func safeRun(ctx context.Context, handler Handler, progress *model.JobProgress) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(
				"job handler panicked",
				slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, progress)
}
