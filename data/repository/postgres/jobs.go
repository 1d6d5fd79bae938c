package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/KotFed0t/dividend_tracker/internal/converter/dbConverter"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/internal/model/dbModel"
	"github.com/KotFed0t/dividend_tracker/utils"
)

const jobColumns = `
	id, job_type, status, attempts, max_attempts, processed, succeeded, failed,
	failed_items, error, created_at, started_at, completed_at, duration_ms`

func (r *Postgres) CreateJob(ctx context.Context, job model.Job) (created model.Job, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.CreateJob"
	query := `
		INSERT INTO job_status (id, job_type, status, max_attempts)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + jobColumns

	slog.Debug("CreateJob start", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("type", string(job.Type)))
	defer func() {
		if err != nil {
			slog.Error("CreateJob failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreateJob completed", slog.String("rqID", rqID), slog.String("op", op))
		}
	}()

	var row dbModel.Job
	err = r.txOrDb(ctx).GetContext(ctx, &row, query, job.ID, string(job.Type), string(model.JobPending), job.MaxAttempts)
	if err != nil {
		return model.Job{}, mapErr(err)
	}
	return dbConverter.ConvertJob(row), nil
}

func (r *Postgres) GetJob(ctx context.Context, jobID string) (job model.Job, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.GetJob"
	query := `SELECT ` + jobColumns + ` FROM job_status WHERE id = $1`

	defer func() {
		if err != nil {
			slog.Error("GetJob failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	var row dbModel.Job
	if err = r.txOrDb(ctx).GetContext(ctx, &row, query, jobID); err != nil {
		return model.Job{}, mapErr(err)
	}
	return dbConverter.ConvertJob(row), nil
}

// ListJobs returns the newest jobs first, optionally of one type.
func (r *Postgres) ListJobs(ctx context.Context, jobType *model.JobType, limit int) (jobs []model.Job, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListJobs"
	query := `
		SELECT ` + jobColumns + ` FROM job_status
		WHERE ($1::TEXT IS NULL OR job_type = $1)
		ORDER BY created_at DESC
		LIMIT $2
		`

	defer func() {
		if err != nil {
			slog.Error("ListJobs failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListJobs completed", slog.String("rqID", rqID), slog.String("op", op), slog.Int("count", len(jobs)))
		}
	}()

	var typeArg *string
	if jobType != nil {
		t := string(*jobType)
		typeArg = &t
	}

	var rows []dbModel.Job
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, typeArg, limit); err != nil {
		return nil, err
	}

	jobs = make([]model.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, dbConverter.ConvertJob(row))
	}
	return jobs, nil
}

// HasActiveJob reports whether a pending or running job of jobType exists.
func (r *Postgres) HasActiveJob(ctx context.Context, jobType model.JobType) (active bool, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.HasActiveJob"
	query := `SELECT EXISTS (SELECT 1 FROM job_status WHERE job_type = $1 AND status IN ('pending', 'running'))`

	defer func() {
		if err != nil {
			slog.Error("HasActiveJob failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	err = r.txOrDb(ctx).GetContext(ctx, &active, query, string(jobType))
	return active, err
}

func (r *Postgres) MarkJobRunning(ctx context.Context, jobID string, startedAt time.Time) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.MarkJobRunning"
	query := `
		UPDATE job_status SET status = 'running', attempts = attempts + 1, started_at = $1
		WHERE id = $2
		`

	slog.Debug("MarkJobRunning start", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", jobID))
	defer func() {
		if err != nil {
			slog.Error("MarkJobRunning failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, startedAt, jobID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// FinishJob stores the final status and progress of a job run.
func (r *Postgres) FinishJob(ctx context.Context, job model.Job) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.FinishJob"
	query := `
		UPDATE job_status SET
			status = $1,
			processed = $2,
			succeeded = $3,
			failed = $4,
			failed_items = $5,
			error = $6,
			completed_at = $7,
			duration_ms = $8
		WHERE id = $9
		`

	slog.Debug("FinishJob start", slog.String("rqID", rqID), slog.String("op", op), slog.String("jobID", job.ID), slog.String("status", string(job.Status)))
	defer func() {
		if err != nil {
			slog.Error("FinishJob failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	failedItems := job.FailedItems
	if failedItems == nil {
		failedItems = []string{}
	}
	items, err := json.Marshal(failedItems)
	if err != nil {
		return err
	}

	res, err := r.txOrDb(ctx).ExecContext(ctx, query,
		string(job.Status),
		job.Processed,
		job.Succeeded,
		job.Failed,
		items,
		job.Error,
		job.CompletedAt,
		job.DurationMS,
		job.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// RequeueJob puts a job back to pending, keeping its attempt count.
func (r *Postgres) RequeueJob(ctx context.Context, jobID, lastError string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.RequeueJob"
	query := `UPDATE job_status SET status = 'pending', error = $1 WHERE id = $2`

	defer func() {
		if err != nil {
			slog.Error("RequeueJob failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, lastError, jobID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListUnfinishedJobs returns pending and running jobs oldest first.
func (r *Postgres) ListUnfinishedJobs(ctx context.Context) (jobs []model.Job, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "Postgres.ListUnfinishedJobs"
	query := `SELECT ` + jobColumns + ` FROM job_status WHERE status IN ('pending', 'running') ORDER BY created_at`

	defer func() {
		if err != nil {
			slog.Error("ListUnfinishedJobs failed", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	var rows []dbModel.Job
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	jobs = make([]model.Job, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, dbConverter.ConvertJob(row))
	}
	return jobs, nil
}
