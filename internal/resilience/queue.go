package resilience

import (
	"time"
)

// QueueStatus is the lifecycle state of a verification retry entry.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	// QueueFailed marks an entry that exhausted its attempts and will not
	// be retried again.
	QueueFailed QueueStatus = "failed"
)

// QueueEntry is one email-verification call that failed and is waiting for
// a backoff-scheduled retry. Entries that exhaust MaxAttempts are marked
// permanently failed rather than retried forever.
type QueueEntry struct {
	ID           string      `json:"id"`
	LeadID       string      `json:"lead_id"`
	Email        string      `json:"email"`
	Error        string      `json:"error"`
	ErrorType    string      `json:"error_type"` // "transient" or "permanent"
	Status       QueueStatus `json:"status"`
	RetryCount   int         `json:"retry_count"`
	MaxAttempts  int         `json:"max_attempts"`
	NextRetryAt  time.Time   `json:"next_retry_at"`
	CreatedAt    time.Time   `json:"created_at"`
	LastFailedAt time.Time   `json:"last_failed_at"`
}

// QueueFilter selects due entries.
type QueueFilter struct {
	ErrorType string `json:"error_type,omitempty"` // "transient", "permanent", or "" for all
	Limit     int    `json:"limit,omitempty"`
}

// CanRetry reports whether the entry has attempts remaining.
func (e *QueueEntry) CanRetry() bool {
	return e.Status == QueuePending && e.RetryCount < e.MaxAttempts
}

// ClassifyError categorizes an error as "transient" or "permanent".
func ClassifyError(err error) string {
	if IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
