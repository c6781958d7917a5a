// Package store persists leads, targeting profiles, assignments, and run
// audit records. Two backends exist: Postgres for production and SQLite for
// local development and tests.
package store

import (
	"context"
	"time"

	"github.com/leadgrid/lead-engine/internal/model"
	"github.com/leadgrid/lead-engine/internal/resilience"
)

// AssignmentFilter specifies criteria for listing assignments.
type AssignmentFilter struct {
	SubscriberID string                 `json:"subscriber_id,omitempty"`
	LeadID       string                 `json:"lead_id,omitempty"`
	Source       model.AssignmentSource `json:"source,omitempty"`
	Limit        int                    `json:"limit,omitempty"`
	Offset       int                    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the lead engine.
type Store interface {
	// Leads. CreateLead reports whether a row was actually inserted; a
	// false return with nil error means another row already holds the
	// fingerprint.
	CreateLead(ctx context.Context, lead *model.CanonicalLead) (bool, error)
	GetLead(ctx context.Context, id string) (*model.CanonicalLead, error)
	GetLeadByFingerprint(ctx context.Context, fingerprint string) (*model.CanonicalLead, error)
	GetLeadsByFingerprints(ctx context.Context, fingerprints []string) ([]model.CanonicalLead, error)
	UpdateLeadContact(ctx context.Context, lead *model.CanonicalLead) error
	UpdateLeadScores(ctx context.Context, leadID string, intent int, freshness, price float64) error
	UpdateVerificationStatus(ctx context.Context, leadID string, status model.VerificationStatus) error

	// Targeting profiles
	UpsertProfile(ctx context.Context, p *model.TargetingProfile) error
	ListActiveProfiles(ctx context.Context) ([]model.TargetingProfile, error)
	UpdateProfileCounters(ctx context.Context, deltas []model.CapCounters) error

	// Assignments. CreateAssignment reports whether a row was inserted;
	// a duplicate (lead, subscriber) pair is a no-op, not an error.
	CreateAssignment(ctx context.Context, a *model.Assignment) (bool, error)
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error)

	// Rejections
	SaveRejections(ctx context.Context, runID string, rejections []model.RejectionRecord) error
	ListRejections(ctx context.Context, runID string) ([]model.RejectionRecord, error)

	// Runs and phases
	CreateIngestRun(ctx context.Context, source string) (*model.IngestRun, error)
	UpdateIngestRunStatus(ctx context.Context, runID string, status model.IngestRunStatus) error
	UpdateIngestRunResult(ctx context.Context, runID string, status model.IngestRunStatus, result *model.IngestRunResult) error
	GetIngestRun(ctx context.Context, runID string) (*model.IngestRun, error)
	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error

	// Verification retry queue
	EnqueueVerification(ctx context.Context, entry resilience.QueueEntry) error
	DueVerifications(ctx context.Context, filter resilience.QueueFilter) ([]resilience.QueueEntry, error)
	IncrementVerificationRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error
	MarkVerificationFailed(ctx context.Context, id string) error
	RemoveVerification(ctx context.Context, id string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
