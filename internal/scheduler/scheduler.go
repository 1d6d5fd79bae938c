package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"

	"github.com/KotFed0t/dividend_tracker/internal/jobQueue"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/utils"
	"github.com/go-co-op/gocron/v2"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, jobType model.JobType) (model.Job, error)
}

// Scheduler only enqueues jobs on their crontab, the queue does the work.
type Scheduler struct {
	scheduler gocron.Scheduler
	queue     Enqueuer
}

func New(queue Enqueuer) *Scheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		panic(err.Error())
	}
	return &Scheduler{scheduler: scheduler, queue: queue}
}

func (s *Scheduler) Start() {
	s.scheduler.Start()
}

func (s *Scheduler) Stop() {
	_ = s.scheduler.Shutdown()
}

// NewCrontabJob enqueues jobType on a five-field crontab. An empty crontab
// leaves the job unscheduled.
func (s *Scheduler) NewCrontabJob(jobType model.JobType, crontab string) {
	if crontab == "" {
		slog.Info("job not scheduled", slog.String("jobType", string(jobType)))
		return
	}

	_, err := s.scheduler.NewJob(
		gocron.CronJob(crontab, false),
		gocron.NewTask(s.enqueueWithRecover(jobType)),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(string(jobType)),
	)

	if err != nil {
		slog.Error("Scheduler creating job error", slog.String("jobType", string(jobType)), slog.String("crontab", crontab))
		panic(err.Error())
	}
}

func (s *Scheduler) enqueueWithRecover(jobType model.JobType) func(ctx context.Context) {
	return func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error(
					"Panic recovered in scheduler job",
					slog.String("jobType", string(jobType)),
					slog.Any("panic", r),
					slog.String("stacktrace", string(debug.Stack())),
				)
			}
		}()

		ctx = utils.CtxWithRqID(ctx, "")

		job, err := s.queue.Enqueue(ctx, jobType)
		switch {
		case errors.Is(err, jobQueue.ErrJobAlreadyActive):
			slog.Info("job skipped, previous run still active", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("jobType", string(jobType)))
		case err != nil:
			slog.Error("enqueue failed", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("jobType", string(jobType)), slog.Any("error", err))
		default:
			slog.Info("job scheduled", slog.String("rqID", utils.GetRequestIDFromCtx(ctx)), slog.String("jobType", string(jobType)), slog.String("jobID", job.ID))
		}
	}
}
