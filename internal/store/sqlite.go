package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/leadgrid/lead-engine/internal/model"
	"github.com/leadgrid/lead-engine/internal/resilience"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                  TEXT PRIMARY KEY,
	fingerprint         TEXT NOT NULL UNIQUE,
	owning_partner_id   TEXT,
	source_workspace_id TEXT,
	email               TEXT NOT NULL,
	phone               TEXT NOT NULL DEFAULT '',
	first_name          TEXT NOT NULL DEFAULT '',
	last_name           TEXT NOT NULL DEFAULT '',
	title               TEXT NOT NULL DEFAULT '',
	seniority           TEXT NOT NULL DEFAULT '',
	company_name        TEXT NOT NULL DEFAULT '',
	company_domain      TEXT NOT NULL DEFAULT '',
	industry            TEXT NOT NULL DEFAULT '',
	employee_count      INTEGER NOT NULL DEFAULT 0,
	size_bracket        TEXT NOT NULL DEFAULT '',
	city                TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL DEFAULT '',
	postal_code         TEXT NOT NULL DEFAULT '',
	linkedin_url        TEXT NOT NULL DEFAULT '',
	verification_status TEXT NOT NULL DEFAULT 'unknown',
	intent_score        INTEGER NOT NULL DEFAULT 0,
	freshness_score     REAL NOT NULL DEFAULT 0,
	price               REAL NOT NULL DEFAULT 0,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_leads_state ON leads(state);
CREATE INDEX IF NOT EXISTS idx_leads_industry ON leads(industry);

CREATE TABLE IF NOT EXISTS targeting_profiles (
	id            TEXT PRIMARY KEY,
	subscriber_id TEXT NOT NULL,
	workspace_id  TEXT NOT NULL,
	industries    TEXT NOT NULL DEFAULT '[]',
	states        TEXT NOT NULL DEFAULT '[]',
	cities        TEXT NOT NULL DEFAULT '[]',
	postal_codes  TEXT NOT NULL DEFAULT '[]',
	daily_cap     INTEGER NOT NULL DEFAULT 0,
	weekly_cap    INTEGER NOT NULL DEFAULT 0,
	monthly_cap   INTEGER NOT NULL DEFAULT 0,
	daily_count   INTEGER NOT NULL DEFAULT 0,
	weekly_count  INTEGER NOT NULL DEFAULT 0,
	monthly_count INTEGER NOT NULL DEFAULT 0,
	notify        INTEGER NOT NULL DEFAULT 1,
	active        INTEGER NOT NULL DEFAULT 1,
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (subscriber_id, workspace_id)
);

CREATE TABLE IF NOT EXISTS assignments (
	id               TEXT PRIMARY KEY,
	lead_id          TEXT NOT NULL REFERENCES leads(id),
	subscriber_id    TEXT NOT NULL,
	workspace_id     TEXT NOT NULL,
	matched_industry TEXT NOT NULL DEFAULT '',
	matched_geo      TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT 'routing',
	status           TEXT NOT NULL DEFAULT 'new',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (lead_id, subscriber_id)
);

CREATE INDEX IF NOT EXISTS idx_assignments_subscriber ON assignments(subscriber_id);

CREATE TABLE IF NOT EXISTS rejections (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	row_num    INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	field      TEXT NOT NULL DEFAULT '',
	value      TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_rejections_run_id ON rejections(run_id);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES ingest_runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);

CREATE TABLE IF NOT EXISTS verification_queue (
	id             TEXT PRIMARY KEY,
	lead_id        TEXT NOT NULL,
	email          TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	status         TEXT NOT NULL DEFAULT 'pending',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_attempts   INTEGER NOT NULL DEFAULT 3,
	next_retry_at  DATETIME NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	last_failed_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_verification_queue_next_retry ON verification_queue(next_retry_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Leads

const sqliteLeadColumns = `id, fingerprint, owning_partner_id, source_workspace_id,
	email, phone, first_name, last_name, title, seniority,
	company_name, company_domain, industry, employee_count, size_bracket,
	city, state, postal_code, linkedin_url,
	verification_status, intent_score, freshness_score, price, created_at`

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *model.CanonicalLead) (bool, error) {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	if lead.VerificationStatus == "" {
		lead.VerificationStatus = model.VerificationUnknown
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO leads (`+sqliteLeadColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Fingerprint, lead.OwningPartnerID, lead.SourceWorkspaceID,
		lead.Email, lead.Phone, lead.FirstName, lead.LastName, lead.Title, lead.Seniority,
		lead.CompanyName, lead.CompanyDomain, lead.Industry, lead.EmployeeCount, lead.SizeBracket,
		lead.City, lead.State, lead.PostalCode, lead.LinkedInURL,
		string(lead.VerificationStatus), lead.IntentScore, lead.FreshnessScore, lead.Price, lead.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert lead")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func scanLeadSQLite(row scannable) (*model.CanonicalLead, error) {
	var l model.CanonicalLead
	err := row.Scan(
		&l.ID, &l.Fingerprint, &l.OwningPartnerID, &l.SourceWorkspaceID,
		&l.Email, &l.Phone, &l.FirstName, &l.LastName, &l.Title, &l.Seniority,
		&l.CompanyName, &l.CompanyDomain, &l.Industry, &l.EmployeeCount, &l.SizeBracket,
		&l.City, &l.State, &l.PostalCode, &l.LinkedInURL,
		&l.VerificationStatus, &l.IntentScore, &l.FreshnessScore, &l.Price, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.CanonicalLead, error) {
	lead, err := scanLeadSQLite(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return lead, nil
}

func (s *SQLiteStore) GetLeadByFingerprint(ctx context.Context, fingerprint string) (*model.CanonicalLead, error) {
	lead, err := scanLeadSQLite(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE fingerprint = ?`, fingerprint,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get lead by fingerprint")
	}
	return lead, nil
}

func (s *SQLiteStore) GetLeadsByFingerprints(ctx context.Context, fingerprints []string) ([]model.CanonicalLead, error) {
	if len(fingerprints) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(fingerprints))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(fingerprints))
	for i, fp := range fingerprints {
		args[i] = fp
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteLeadColumns+` FROM leads WHERE fingerprint IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get leads by fingerprints")
	}
	defer rows.Close()

	var leads []model.CanonicalLead
	for rows.Next() {
		lead, err := scanLeadSQLite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: get leads iterate")
}

func (s *SQLiteStore) UpdateLeadContact(ctx context.Context, lead *model.CanonicalLead) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET
			phone = ?, first_name = ?, last_name = ?, title = ?, seniority = ?,
			company_name = ?, company_domain = ?, industry = ?, employee_count = ?,
			size_bracket = ?, city = ?, state = ?, postal_code = ?, linkedin_url = ?
		 WHERE id = ?`,
		lead.Phone, lead.FirstName, lead.LastName, lead.Title, lead.Seniority,
		lead.CompanyName, lead.CompanyDomain, lead.Industry, lead.EmployeeCount,
		lead.SizeBracket, lead.City, lead.State, lead.PostalCode, lead.LinkedInURL,
		lead.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead contact %s", lead.ID)
	}
	return checkRowsAffected(res, "lead", lead.ID)
}

func (s *SQLiteStore) UpdateLeadScores(ctx context.Context, leadID string, intent int, freshness, price float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET intent_score = ?, freshness_score = ?, price = ? WHERE id = ?`,
		intent, freshness, price, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead scores %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

func (s *SQLiteStore) UpdateVerificationStatus(ctx context.Context, leadID string, status model.VerificationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET verification_status = ? WHERE id = ?`,
		string(status), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update verification status %s", leadID)
	}
	return checkRowsAffected(res, "lead", leadID)
}

// Targeting profiles

func (s *SQLiteStore) UpsertProfile(ctx context.Context, p *model.TargetingProfile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	industries, states, cities, postals, err := marshalProfileFilters(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile filters")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO targeting_profiles
		 (id, subscriber_id, workspace_id, industries, states, cities, postal_codes,
		  daily_cap, weekly_cap, monthly_cap, daily_count, weekly_count, monthly_count,
		  notify, active, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (subscriber_id, workspace_id) DO UPDATE SET
		   industries = excluded.industries, states = excluded.states,
		   cities = excluded.cities, postal_codes = excluded.postal_codes,
		   daily_cap = excluded.daily_cap, weekly_cap = excluded.weekly_cap,
		   monthly_cap = excluded.monthly_cap,
		   notify = excluded.notify, active = excluded.active, updated_at = datetime('now')`,
		p.ID, p.SubscriberID, p.WorkspaceID,
		string(industries), string(states), string(cities), string(postals),
		p.DailyCap, p.WeeklyCap, p.MonthlyCap, p.DailyCount, p.WeeklyCount, p.MonthlyCount,
		p.Notify, p.Active,
	)
	return eris.Wrap(err, "sqlite: upsert profile")
}

func (s *SQLiteStore) ListActiveProfiles(ctx context.Context) ([]model.TargetingProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subscriber_id, workspace_id, industries, states, cities, postal_codes,
		        daily_cap, weekly_cap, monthly_cap, daily_count, weekly_count, monthly_count,
		        notify, active, updated_at
		 FROM targeting_profiles WHERE active = 1 ORDER BY subscriber_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active profiles")
	}
	defer rows.Close()

	var profiles []model.TargetingProfile
	for rows.Next() {
		var p model.TargetingProfile
		var industries, states, cities, postals string
		if err := rows.Scan(&p.ID, &p.SubscriberID, &p.WorkspaceID,
			&industries, &states, &cities, &postals,
			&p.DailyCap, &p.WeeklyCap, &p.MonthlyCap,
			&p.DailyCount, &p.WeeklyCount, &p.MonthlyCount,
			&p.Notify, &p.Active, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan profile")
		}
		if err := unmarshalProfileFilters(&p, []byte(industries), []byte(states), []byte(cities), []byte(postals)); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal profile filters")
		}
		profiles = append(profiles, p)
	}
	return profiles, eris.Wrap(rows.Err(), "sqlite: list profiles iterate")
}

func (s *SQLiteStore) UpdateProfileCounters(ctx context.Context, deltas []model.CapCounters) error {
	for _, d := range deltas {
		_, err := s.db.ExecContext(ctx,
			`UPDATE targeting_profiles
			 SET daily_count = ?, weekly_count = ?, monthly_count = ?, updated_at = datetime('now')
			 WHERE subscriber_id = ? AND workspace_id = ?`,
			d.DailyCount, d.WeeklyCount, d.MonthlyCount, d.SubscriberID, d.WorkspaceID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update counters for subscriber %s", d.SubscriberID)
		}
	}
	return nil
}

// Assignments

func (s *SQLiteStore) CreateAssignment(ctx context.Context, a *model.Assignment) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = model.AssignmentNew
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments
		 (id, lead_id, subscriber_id, workspace_id, matched_industry, matched_geo, source, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.LeadID, a.SubscriberID, a.WorkspaceID,
		a.MatchedIndustry, a.MatchedGeo, string(a.Source), string(a.Status), a.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return false, nil
		}
		return false, eris.Wrap(err, "sqlite: insert assignment")
	}
	return true, nil
}

func (s *SQLiteStore) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error) {
	query := `SELECT id, lead_id, subscriber_id, workspace_id, matched_industry, matched_geo, source, status, created_at
	          FROM assignments WHERE 1=1`
	var args []any

	if filter.SubscriberID != "" {
		query += ` AND subscriber_id = ?`
		args = append(args, filter.SubscriberID)
	}
	if filter.LeadID != "" {
		query += ` AND lead_id = ?`
		args = append(args, filter.LeadID)
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assignments")
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.LeadID, &a.SubscriberID, &a.WorkspaceID,
			&a.MatchedIndustry, &a.MatchedGeo, &a.Source, &a.Status, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assignment")
		}
		assignments = append(assignments, a)
	}
	return assignments, eris.Wrap(rows.Err(), "sqlite: list assignments iterate")
}

// Rejections

func (s *SQLiteStore) SaveRejections(ctx context.Context, runID string, rejections []model.RejectionRecord) error {
	if len(rejections) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin rejections tx")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, r := range rejections {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rejections (id, run_id, row_num, reason, field, value, message, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), runID, r.Row, string(r.Reason), r.Field, r.Value, r.Message, now,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert rejection")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit rejections")
}

func (s *SQLiteStore) ListRejections(ctx context.Context, runID string) ([]model.RejectionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT row_num, reason, field, value, message FROM rejections WHERE run_id = ? ORDER BY row_num`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rejections")
	}
	defer rows.Close()

	var rejections []model.RejectionRecord
	for rows.Next() {
		var r model.RejectionRecord
		if err := rows.Scan(&r.Row, &r.Reason, &r.Field, &r.Value, &r.Message); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rejection")
		}
		rejections = append(rejections, r)
	}
	return rejections, eris.Wrap(rows.Err(), "sqlite: list rejections iterate")
}

// Runs and phases

func (s *SQLiteStore) CreateIngestRun(ctx context.Context, source string) (*model.IngestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, source, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, source, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.IngestRun{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateIngestRunStatus(ctx context.Context, runID string, status model.IngestRunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateIngestRunResult(ctx context.Context, runID string, status model.IngestRunStatus, result *model.IngestRunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run result %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetIngestRun(ctx context.Context, runID string) (*model.IngestRun, error) {
	var r model.IngestRun
	var resultJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, result, created_at, updated_at FROM ingest_runs WHERE id = ?`,
		runID,
	).Scan(&r.ID, &r.Source, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}

	if resultJSON.Valid {
		r.Result = &model.IngestRunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}

func (s *SQLiteStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, runID, name, string(model.PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert phase for run %s", runID)
	}

	return &model.RunPhase{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *SQLiteStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal phase result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_phases SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete phase %s", phaseID)
	}
	return checkRowsAffected(res, "phase", phaseID)
}

// Verification retry queue

func (s *SQLiteStore) EnqueueVerification(ctx context.Context, entry resilience.QueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = resilience.QueuePending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO verification_queue
		 (id, lead_id, email, error, error_type, status, retry_count, max_attempts, next_retry_at, created_at, last_failed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   error = excluded.error, error_type = excluded.error_type, status = excluded.status,
		   retry_count = excluded.retry_count, next_retry_at = excluded.next_retry_at,
		   last_failed_at = excluded.last_failed_at`,
		entry.ID, entry.LeadID, entry.Email, entry.Error, entry.ErrorType,
		string(entry.Status), entry.RetryCount, entry.MaxAttempts,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "sqlite: enqueue verification")
}

func (s *SQLiteStore) DueVerifications(ctx context.Context, filter resilience.QueueFilter) ([]resilience.QueueEntry, error) {
	query := `SELECT id, lead_id, email, error, error_type, status, retry_count, max_attempts, next_retry_at, created_at, last_failed_at
	          FROM verification_queue
	          WHERE status = 'pending' AND next_retry_at <= datetime('now') AND retry_count < max_attempts`
	var args []any

	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: due verifications")
	}
	defer rows.Close()

	var entries []resilience.QueueEntry
	for rows.Next() {
		var e resilience.QueueEntry
		if err := rows.Scan(&e.ID, &e.LeadID, &e.Email, &e.Error, &e.ErrorType,
			&e.Status, &e.RetryCount, &e.MaxAttempts,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan verification entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: due verifications iterate")
}

func (s *SQLiteStore) IncrementVerificationRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE verification_queue
		 SET retry_count = retry_count + 1, next_retry_at = ?, error = ?, last_failed_at = datetime('now')
		 WHERE id = ?`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment verification retry %s", id)
	}
	return checkRowsAffected(res, "verification entry", id)
}

func (s *SQLiteStore) MarkVerificationFailed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE verification_queue SET status = 'failed', last_failed_at = datetime('now') WHERE id = ?`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark verification failed %s", id)
	}
	return checkRowsAffected(res, "verification entry", id)
}

func (s *SQLiteStore) RemoveVerification(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM verification_queue WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: remove verification")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}
