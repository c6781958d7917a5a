package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/leadgrid/lead-engine/internal/db"
	"github.com/leadgrid/lead-engine/internal/model"
	"github.com/leadgrid/lead-engine/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const uniqueViolation = "23505"

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation. CreateLead and CreateAssignment lean on this to make inserts
// race-safe without a read-then-write.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const leadColumns = `id, fingerprint, owning_partner_id, source_workspace_id,
	email, phone, first_name, last_name, title, seniority,
	company_name, company_domain, industry, employee_count, size_bracket,
	city, state, postal_code, linkedin_url,
	verification_status, intent_score, freshness_score, price, created_at`

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_lead_by_fp": `SELECT ` + leadColumns + ` FROM leads WHERE fingerprint = $1`,
	"insert_assignment": `INSERT INTO assignments
		(id, lead_id, subscriber_id, workspace_id, matched_industry, matched_geo, source, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"update_counters": `UPDATE targeting_profiles
		SET daily_count = $1, weekly_count = $2, monthly_count = $3, updated_at = now()
		WHERE subscriber_id = $4 AND workspace_id = $5`,
	"insert_run":        `INSERT INTO ingest_runs (id, source, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status": `UPDATE ingest_runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"insert_phase":      `INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
	"complete_phase":    `UPDATE run_phases SET status = $1, result = $2 WHERE id = $3`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access (e.g., bulk rejection export).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS leads (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	freshness_score     DOUBLE PRECISION NOT NULL DEFAULT 0,
	price               DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_state ON leads(state);
CREATE INDEX IF NOT EXISTS idx_leads_industry ON leads(industry);
CREATE INDEX IF NOT EXISTS idx_leads_owning_partner ON leads(owning_partner_id);

CREATE TABLE IF NOT EXISTS targeting_profiles (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subscriber_id TEXT NOT NULL,
	workspace_id  TEXT NOT NULL,
	industries    JSONB NOT NULL DEFAULT '[]',
	states        JSONB NOT NULL DEFAULT '[]',
	cities        JSONB NOT NULL DEFAULT '[]',
	postal_codes  JSONB NOT NULL DEFAULT '[]',
	daily_cap     INTEGER NOT NULL DEFAULT 0,
	weekly_cap    INTEGER NOT NULL DEFAULT 0,
	monthly_cap   INTEGER NOT NULL DEFAULT 0,
	daily_count   INTEGER NOT NULL DEFAULT 0,
	weekly_count  INTEGER NOT NULL DEFAULT 0,
	monthly_count INTEGER NOT NULL DEFAULT 0,
	notify        BOOLEAN NOT NULL DEFAULT true,
	active        BOOLEAN NOT NULL DEFAULT true,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (subscriber_id, workspace_id)
);

CREATE INDEX IF NOT EXISTS idx_profiles_active ON targeting_profiles(active);

CREATE TABLE IF NOT EXISTS assignments (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id          TEXT NOT NULL REFERENCES leads(id),
	subscriber_id    TEXT NOT NULL,
	workspace_id     TEXT NOT NULL,
	matched_industry TEXT NOT NULL DEFAULT '',
	matched_geo      TEXT NOT NULL DEFAULT '',
	source           TEXT NOT NULL DEFAULT 'routing',
	status           TEXT NOT NULL DEFAULT 'new',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (lead_id, subscriber_id)
);

CREATE INDEX IF NOT EXISTS idx_assignments_subscriber ON assignments(subscriber_id);
CREATE INDEX IF NOT EXISTS idx_assignments_lead ON assignments(lead_id);

CREATE TABLE IF NOT EXISTS rejections (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL,
	row_num    INTEGER NOT NULL,
	reason     TEXT NOT NULL,
	field      TEXT NOT NULL DEFAULT '',
	value      TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_rejections_run_id ON rejections(run_id);

CREATE TABLE IF NOT EXISTS ingest_runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ingest_runs_status ON ingest_runs(status);

CREATE TABLE IF NOT EXISTS run_phases (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id     TEXT NOT NULL REFERENCES ingest_runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_run_phases_run_id ON run_phases(run_id);

CREATE TABLE IF NOT EXISTS verification_queue (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	lead_id        TEXT NOT NULL,
	email          TEXT NOT NULL,
	error          TEXT NOT NULL,
	error_type     TEXT NOT NULL DEFAULT 'transient',
	status         TEXT NOT NULL DEFAULT 'pending',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_attempts   INTEGER NOT NULL DEFAULT 3,
	next_retry_at  TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_failed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_verification_queue_next_retry ON verification_queue(next_retry_at);
CREATE INDEX IF NOT EXISTS idx_verification_queue_status ON verification_queue(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Leads

func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.CanonicalLead) (bool, error) {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	if lead.VerificationStatus == "" {
		lead.VerificationStatus = model.VerificationUnknown
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO leads (`+leadColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		 ON CONFLICT (fingerprint) DO NOTHING`,
		lead.ID, lead.Fingerprint, lead.OwningPartnerID, lead.SourceWorkspaceID,
		lead.Email, lead.Phone, lead.FirstName, lead.LastName, lead.Title, lead.Seniority,
		lead.CompanyName, lead.CompanyDomain, lead.Industry, lead.EmployeeCount, lead.SizeBracket,
		lead.City, lead.State, lead.PostalCode, lead.LinkedInURL,
		string(lead.VerificationStatus), lead.IntentScore, lead.FreshnessScore, lead.Price, lead.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert lead")
	}
	return tag.RowsAffected() == 1, nil
}

func scanLead(row pgx.Row) (*model.CanonicalLead, error) {
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

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.CanonicalLead, error) {
	lead, err := scanLead(s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return lead, nil
}

func (s *PostgresStore) GetLeadByFingerprint(ctx context.Context, fingerprint string) (*model.CanonicalLead, error) {
	lead, err := scanLead(s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE fingerprint = $1`, fingerprint,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get lead by fingerprint")
	}
	return lead, nil
}

func (s *PostgresStore) GetLeadsByFingerprints(ctx context.Context, fingerprints []string) ([]model.CanonicalLead, error) {
	if len(fingerprints) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE fingerprint = ANY($1)`,
		fingerprints,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get leads by fingerprints")
	}
	defer rows.Close()

	var leads []model.CanonicalLead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *lead)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: get leads iterate")
}

func (s *PostgresStore) UpdateLeadContact(ctx context.Context, lead *model.CanonicalLead) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET
			phone = $1, first_name = $2, last_name = $3, title = $4, seniority = $5,
			company_name = $6, company_domain = $7, industry = $8, employee_count = $9,
			size_bracket = $10, city = $11, state = $12, postal_code = $13, linkedin_url = $14
		 WHERE id = $15`,
		lead.Phone, lead.FirstName, lead.LastName, lead.Title, lead.Seniority,
		lead.CompanyName, lead.CompanyDomain, lead.Industry, lead.EmployeeCount,
		lead.SizeBracket, lead.City, lead.State, lead.PostalCode, lead.LinkedInURL,
		lead.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead contact %s", lead.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", lead.ID)
	}
	return nil
}

func (s *PostgresStore) UpdateLeadScores(ctx context.Context, leadID string, intent int, freshness, price float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET intent_score = $1, freshness_score = $2, price = $3 WHERE id = $4`,
		intent, freshness, price, leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead scores %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

func (s *PostgresStore) UpdateVerificationStatus(ctx context.Context, leadID string, status model.VerificationStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET verification_status = $1 WHERE id = $2`,
		string(status), leadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update verification status %s", leadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lead not found: %s", leadID)
	}
	return nil
}

// Targeting profiles

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *model.TargetingProfile) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	industries, states, cities, postals, err := marshalProfileFilters(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile filters")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO targeting_profiles
		 (id, subscriber_id, workspace_id, industries, states, cities, postal_codes,
		  daily_cap, weekly_cap, monthly_cap, daily_count, weekly_count, monthly_count,
		  notify, active, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		 ON CONFLICT (subscriber_id, workspace_id) DO UPDATE SET
		   industries = $4, states = $5, cities = $6, postal_codes = $7,
		   daily_cap = $8, weekly_cap = $9, monthly_cap = $10,
		   notify = $14, active = $15, updated_at = now()`,
		p.ID, p.SubscriberID, p.WorkspaceID, industries, states, cities, postals,
		p.DailyCap, p.WeeklyCap, p.MonthlyCap, p.DailyCount, p.WeeklyCount, p.MonthlyCount,
		p.Notify, p.Active,
	)
	return eris.Wrap(err, "postgres: upsert profile")
}

func (s *PostgresStore) ListActiveProfiles(ctx context.Context) ([]model.TargetingProfile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subscriber_id, workspace_id, industries, states, cities, postal_codes,
		        daily_cap, weekly_cap, monthly_cap, daily_count, weekly_count, monthly_count,
		        notify, active, updated_at
		 FROM targeting_profiles WHERE active ORDER BY subscriber_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active profiles")
	}
	defer rows.Close()

	var profiles []model.TargetingProfile
	for rows.Next() {
		var p model.TargetingProfile
		var industries, states, cities, postals []byte
		if err := rows.Scan(&p.ID, &p.SubscriberID, &p.WorkspaceID,
			&industries, &states, &cities, &postals,
			&p.DailyCap, &p.WeeklyCap, &p.MonthlyCap,
			&p.DailyCount, &p.WeeklyCount, &p.MonthlyCount,
			&p.Notify, &p.Active, &p.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan profile")
		}
		if err := unmarshalProfileFilters(&p, industries, states, cities, postals); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal profile filters")
		}
		profiles = append(profiles, p)
	}
	return profiles, eris.Wrap(rows.Err(), "postgres: list profiles iterate")
}

func (s *PostgresStore) UpdateProfileCounters(ctx context.Context, deltas []model.CapCounters) error {
	for _, d := range deltas {
		_, err := s.pool.Exec(ctx,
			`UPDATE targeting_profiles
			 SET daily_count = $1, weekly_count = $2, monthly_count = $3, updated_at = now()
			 WHERE subscriber_id = $4 AND workspace_id = $5`,
			d.DailyCount, d.WeeklyCount, d.MonthlyCount, d.SubscriberID, d.WorkspaceID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: update counters for subscriber %s", d.SubscriberID)
		}
	}
	return nil
}

// Assignments

func (s *PostgresStore) CreateAssignment(ctx context.Context, a *model.Assignment) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = model.AssignmentNew
	}

	// Optimistic insert: the (lead_id, subscriber_id) unique constraint is
	// the dedup authority. A violation means the subscriber already has
	// this lead, which is a no-op, not an error.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assignments
		 (id, lead_id, subscriber_id, workspace_id, matched_industry, matched_geo, source, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.LeadID, a.SubscriberID, a.WorkspaceID,
		a.MatchedIndustry, a.MatchedGeo, string(a.Source), string(a.Status), a.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, eris.Wrap(err, "postgres: insert assignment")
	}
	return true, nil
}

func (s *PostgresStore) ListAssignments(ctx context.Context, filter AssignmentFilter) ([]model.Assignment, error) {
	query := `SELECT id, lead_id, subscriber_id, workspace_id, matched_industry, matched_geo, source, status, created_at
	          FROM assignments WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SubscriberID != "" {
		query += fmt.Sprintf(` AND subscriber_id = $%d`, argIdx)
		args = append(args, filter.SubscriberID)
		argIdx++
	}
	if filter.LeadID != "" {
		query += fmt.Sprintf(` AND lead_id = $%d`, argIdx)
		args = append(args, filter.LeadID)
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, string(filter.Source))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assignments")
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		var a model.Assignment
		if err := rows.Scan(&a.ID, &a.LeadID, &a.SubscriberID, &a.WorkspaceID,
			&a.MatchedIndustry, &a.MatchedGeo, &a.Source, &a.Status, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assignment")
		}
		assignments = append(assignments, a)
	}
	return assignments, eris.Wrap(rows.Err(), "postgres: list assignments iterate")
}

// Rejections

func (s *PostgresStore) SaveRejections(ctx context.Context, runID string, rejections []model.RejectionRecord) error {
	if len(rejections) == 0 {
		return nil
	}

	now := time.Now().UTC()
	copyRows := make([][]any, 0, len(rejections))
	for _, r := range rejections {
		copyRows = append(copyRows, []any{
			uuid.New().String(), runID, r.Row, string(r.Reason), r.Field, r.Value, r.Message, now,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "rejections",
		[]string{"id", "run_id", "row_num", "reason", "field", "value", "message", "created_at"},
		copyRows,
	)
	return eris.Wrap(err, "postgres: save rejections")
}

func (s *PostgresStore) ListRejections(ctx context.Context, runID string) ([]model.RejectionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT row_num, reason, field, value, message FROM rejections WHERE run_id = $1 ORDER BY row_num`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rejections")
	}
	defer rows.Close()

	var rejections []model.RejectionRecord
	for rows.Next() {
		var r model.RejectionRecord
		if err := rows.Scan(&r.Row, &r.Reason, &r.Field, &r.Value, &r.Message); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rejection")
		}
		rejections = append(rejections, r)
	}
	return rejections, eris.Wrap(rows.Err(), "postgres: list rejections iterate")
}

// Runs and phases

func (s *PostgresStore) CreateIngestRun(ctx context.Context, source string) (*model.IngestRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingest_runs (id, source, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, source, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.IngestRun{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateIngestRunStatus(ctx context.Context, runID string, status model.IngestRunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateIngestRunResult(ctx context.Context, runID string, status model.IngestRunStatus, result *model.IngestRunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
		resultJSON, string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run result %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetIngestRun(ctx context.Context, runID string) (*model.IngestRun, error) {
	var r model.IngestRun
	var resultNull *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, source, status, result, created_at, updated_at FROM ingest_runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Source, &r.Status, &resultNull, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if resultNull != nil {
		r.Result = &model.IngestRunResult{}
		if err := json.Unmarshal(*resultNull, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_phases (id, run_id, name, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, runID, name, string(model.PhaseStatusRunning), now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert phase for run %s", runID)
	}

	return &model.RunPhase{
		ID:        id,
		RunID:     runID,
		Name:      name,
		Status:    model.PhaseStatusRunning,
		StartedAt: now,
	}, nil
}

func (s *PostgresStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal phase result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE run_phases SET status = $1, result = $2 WHERE id = $3`,
		string(result.Status), resultJSON, phaseID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete phase %s", phaseID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("phase not found: %s", phaseID)
	}
	return nil
}

// Verification retry queue

func (s *PostgresStore) EnqueueVerification(ctx context.Context, entry resilience.QueueEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = resilience.QueuePending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO verification_queue
		 (id, lead_id, email, error, error_type, status, retry_count, max_attempts, next_retry_at, created_at, last_failed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   error = $4, error_type = $5, status = $6, retry_count = $7,
		   next_retry_at = $9, last_failed_at = $11`,
		entry.ID, entry.LeadID, entry.Email, entry.Error, entry.ErrorType,
		string(entry.Status), entry.RetryCount, entry.MaxAttempts,
		entry.NextRetryAt, entry.CreatedAt, entry.LastFailedAt,
	)
	return eris.Wrap(err, "postgres: enqueue verification")
}

func (s *PostgresStore) DueVerifications(ctx context.Context, filter resilience.QueueFilter) ([]resilience.QueueEntry, error) {
	query := `SELECT id, lead_id, email, error, error_type, status, retry_count, max_attempts, next_retry_at, created_at, last_failed_at
	          FROM verification_queue
	          WHERE status = 'pending' AND next_retry_at <= now() AND retry_count < max_attempts`
	args := []any{}
	argIdx := 1

	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}

	query += ` ORDER BY next_retry_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due verifications")
	}
	defer rows.Close()

	var entries []resilience.QueueEntry
	for rows.Next() {
		var e resilience.QueueEntry
		if err := rows.Scan(&e.ID, &e.LeadID, &e.Email, &e.Error, &e.ErrorType,
			&e.Status, &e.RetryCount, &e.MaxAttempts,
			&e.NextRetryAt, &e.CreatedAt, &e.LastFailedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan verification entry")
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: due verifications iterate")
}

func (s *PostgresStore) IncrementVerificationRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE verification_queue
		 SET retry_count = retry_count + 1, next_retry_at = $1, error = $2, last_failed_at = now()
		 WHERE id = $3`,
		nextRetryAt, lastErr, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment verification retry %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("verification entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkVerificationFailed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE verification_queue SET status = 'failed', last_failed_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark verification failed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("verification entry not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) RemoveVerification(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM verification_queue WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: remove verification")
}

// helpers shared by both backends

func marshalProfileFilters(p *model.TargetingProfile) (industries, states, cities, postals []byte, err error) {
	if industries, err = json.Marshal(emptyIfNil(p.Industries)); err != nil {
		return nil, nil, nil, nil, err
	}
	if states, err = json.Marshal(emptyIfNil(p.States)); err != nil {
		return nil, nil, nil, nil, err
	}
	if cities, err = json.Marshal(emptyIfNil(p.Cities)); err != nil {
		return nil, nil, nil, nil, err
	}
	if postals, err = json.Marshal(emptyIfNil(p.PostalCodes)); err != nil {
		return nil, nil, nil, nil, err
	}
	return industries, states, cities, postals, nil
}

func unmarshalProfileFilters(p *model.TargetingProfile, industries, states, cities, postals []byte) error {
	if err := json.Unmarshal(industries, &p.Industries); err != nil {
		return err
	}
	if err := json.Unmarshal(states, &p.States); err != nil {
		return err
	}
	if err := json.Unmarshal(cities, &p.Cities); err != nil {
		return err
	}
	return json.Unmarshal(postals, &p.PostalCodes)
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
