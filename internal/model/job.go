package model

import "time"

type JobType string

const (
	JobRefreshPrices     JobType = "refresh_prices"
	JobRefreshDividends  JobType = "refresh_dividends"
	JobPortfolioSnapshot JobType = "portfolio_snapshot"
	JobDividendAlerts    JobType = "dividend_alerts"
	JobCleanupReports    JobType = "cleanup_reports"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is one unit of background work and its visible status.
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	Processed   int        `json:"processed"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	FailedItems []string   `json:"failed_items"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
}

// JobProgress is filled in by a job handler while it runs.
type JobProgress struct {
	Processed   int
	Succeeded   int
	Failed      int
	FailedItems []string
}

func (p *JobProgress) Success() {
	p.Processed++
	p.Succeeded++
}

func (p *JobProgress) Failure(item string) {
	p.Processed++
	p.Failed++
	p.FailedItems = append(p.FailedItems, item)
}
