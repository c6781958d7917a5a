package model

import "time"

// IngestRunStatus represents the current state of an ingest/routing run.
type IngestRunStatus string

const (
	RunStatusQueued    IngestRunStatus = "queued"
	RunStatusResolving IngestRunStatus = "resolving"
	RunStatusScoring   IngestRunStatus = "scoring"
	RunStatusRouting   IngestRunStatus = "routing"
	RunStatusNotifying IngestRunStatus = "notifying"
	RunStatusComplete  IngestRunStatus = "complete"
	RunStatusFailed    IngestRunStatus = "failed"
)

// IngestRun is the audit record for one batch run through the pipeline.
type IngestRun struct {
	ID        string           `json:"id"`
	Source    string           `json:"source"` // e.g. "csv_upload", "webhook"
	Status    IngestRunStatus  `json:"status"`
	Result    *IngestRunResult `json:"result,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// IngestRunResult summarizes a completed run.
type IngestRunResult struct {
	Processed   int           `json:"processed"`
	Created     int           `json:"created"`
	Merged      int           `json:"merged"`
	Rejected    int           `json:"rejected"`
	Skipped     int           `json:"skipped"` // infrastructure failures, re-runnable
	Assignments int           `json:"assignments"`
	Notified    int           `json:"notified"`
	Phases      []PhaseResult `json:"phases"`
	Report      string        `json:"report,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// PhaseStatus represents the state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// RunPhase represents one phase row within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
