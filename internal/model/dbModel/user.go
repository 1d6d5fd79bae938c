package dbModel

import (
	"database/sql"
	"time"
)

type User struct {
	ID             int64         `db:"id"`
	Username       string        `db:"username"`
	Email          string        `db:"email"`
	IsAdmin        bool          `db:"is_admin"`
	TelegramChatID sql.NullInt64 `db:"telegram_chat_id"`
	CreatedAt      time.Time     `db:"created_at"`
}

type Job struct {
	ID          string       `db:"id"`
	Type        string       `db:"job_type"`
	Status      string       `db:"status"`
	Attempts    int          `db:"attempts"`
	MaxAttempts int          `db:"max_attempts"`
	Processed   int          `db:"processed"`
	Succeeded   int          `db:"succeeded"`
	Failed      int          `db:"failed"`
	FailedItems []byte       `db:"failed_items"`
	Error       string       `db:"error"`
	CreatedAt   time.Time    `db:"created_at"`
	StartedAt   sql.NullTime `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
	DurationMS  int64        `db:"duration_ms"`
}
