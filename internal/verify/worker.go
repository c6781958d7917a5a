package verify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/model"
	"github.com/leadgrid/lead-engine/internal/resilience"
)

// QueueStore is the persistence surface the retry worker needs.
type QueueStore interface {
	EnqueueVerification(ctx context.Context, entry resilience.QueueEntry) error
	DueVerifications(ctx context.Context, filter resilience.QueueFilter) ([]resilience.QueueEntry, error)
	IncrementVerificationRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	MarkVerificationFailed(ctx context.Context, id string) error
	RemoveVerification(ctx context.Context, id string) error
	UpdateVerificationStatus(ctx context.Context, leadID string, status model.VerificationStatus) error
}

// Worker drains the verification retry queue. Entries that exhaust their
// attempt budget are marked permanently failed; the lead keeps whatever
// verification status it had.
type Worker struct {
	store       QueueStore
	verifier    Verifier
	maxAttempts int
	backoff     resilience.RetryConfig
	nowFunc     func() time.Time
}

// NewWorker creates a retry worker. maxAttempts defaults to 3.
func NewWorker(store QueueStore, verifier Verifier, maxAttempts int, backoff resilience.RetryConfig) *Worker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Worker{
		store:       store,
		verifier:    verifier,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		nowFunc:     time.Now,
	}
}

// Enqueue records a failed verification attempt for later retry. The first
// retry is scheduled one backoff step out.
func (w *Worker) Enqueue(ctx context.Context, leadID, email string, cause error) error {
	now := w.nowFunc().UTC()
	entry := resilience.QueueEntry{
		LeadID:       leadID,
		Email:        email,
		Error:        cause.Error(),
		ErrorType:    resilience.ClassifyError(cause),
		Status:       resilience.QueuePending,
		MaxAttempts:  w.maxAttempts,
		NextRetryAt:  now.Add(resilience.Backoff(0, w.backoff)),
		CreatedAt:    now,
		LastFailedAt: now,
	}
	return eris.Wrap(w.store.EnqueueVerification(ctx, entry), "verify: enqueue retry")
}

// DrainStats summarizes one pass over the retry queue.
type DrainStats struct {
	Processed int
	Verified  int
	Retried   int
	Failed    int
}

// ProcessDue fetches due queue entries and re-attempts verification for
// each. A success writes the lead's verification status and removes the
// entry. A failure either reschedules with exponential backoff or, once the
// attempt budget is spent, marks the entry permanently failed.
func (w *Worker) ProcessDue(ctx context.Context, limit int) (*DrainStats, error) {
	entries, err := w.store.DueVerifications(ctx, resilience.QueueFilter{Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "verify: fetch due entries")
	}

	stats := &DrainStats{}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return stats, eris.Wrap(ctx.Err(), "verify: drain interrupted")
		}
		stats.Processed++

		status, verr := w.verifier.Verify(ctx, entry.Email)
		if verr == nil {
			if err := w.store.UpdateVerificationStatus(ctx, entry.LeadID, status); err != nil {
				zap.L().Warn("verify: status write failed, entry stays queued",
					zap.String("lead_id", entry.LeadID),
					zap.Error(err),
				)
				continue
			}
			if err := w.store.RemoveVerification(ctx, entry.ID); err != nil {
				zap.L().Warn("verify: queue cleanup failed",
					zap.String("entry_id", entry.ID),
					zap.Error(err),
				)
			}
			stats.Verified++
			continue
		}

		attempts := entry.RetryCount + 1
		if attempts >= entry.MaxAttempts {
			if err := w.store.MarkVerificationFailed(ctx, entry.ID); err != nil {
				zap.L().Warn("verify: mark failed errored",
					zap.String("entry_id", entry.ID),
					zap.Error(err),
				)
				continue
			}
			zap.L().Info("verify: entry exhausted retries",
				zap.String("lead_id", entry.LeadID),
				zap.Int("attempts", attempts),
				zap.Error(verr),
			)
			stats.Failed++
			continue
		}

		nextRetry := w.nowFunc().UTC().Add(resilience.Backoff(attempts, w.backoff))
		if err := w.store.IncrementVerificationRetry(ctx, entry.ID, nextRetry, verr.Error()); err != nil {
			zap.L().Warn("verify: reschedule failed",
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
			continue
		}
		stats.Retried++
	}
	return stats, nil
}
