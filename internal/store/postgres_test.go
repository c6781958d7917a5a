package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/lead-engine/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func leadArgs() []any {
	args := make([]any, 24)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_CreateLead_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO leads .* ON CONFLICT \(fingerprint\) DO NOTHING`).
		WithArgs(leadArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	lead := &model.CanonicalLead{Fingerprint: "fp-1", Email: "jane@acme.com"}
	created, err := s.CreateLead(context.Background(), lead)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, lead.ID)
	assert.Equal(t, model.VerificationUnknown, lead.VerificationStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateLead_DuplicateFingerprint(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// ON CONFLICT DO NOTHING reports zero rows affected for duplicates.
	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(leadArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	created, err := s.CreateLead(context.Background(), &model.CanonicalLead{Fingerprint: "fp-1", Email: "jane@acme.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM leads WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	lead, err := s.GetLead(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, lead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLeadByFingerprint_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM leads WHERE fingerprint = \$1`).
		WithArgs("fp-ghost").
		WillReturnError(pgx.ErrNoRows)

	lead, err := s.GetLeadByFingerprint(context.Background(), "fp-ghost")
	require.NoError(t, err)
	assert.Nil(t, lead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLeadsByFingerprints_EmptyInput(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	leads, err := s.GetLeadsByFingerprints(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, leads)
}

func TestPostgresStore_CreateAssignment_Inserted(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO assignments`).
		WithArgs(pgxmock.AnyArg(), "lead-1", "sub-1", "ws-1",
			"software", "state:TX", "routing", "new", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	a := &model.Assignment{
		LeadID: "lead-1", SubscriberID: "sub-1", WorkspaceID: "ws-1",
		MatchedIndustry: "software", MatchedGeo: "state:TX",
		Source: model.SourceRouting,
	}
	created, err := s.CreateAssignment(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.AssignmentNew, a.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAssignment_UniqueViolationIsNoop(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO assignments`).
		WithArgs(pgxmock.AnyArg(), "lead-1", "sub-1", "ws-1", "", "", "routing", "new", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "assignments_lead_id_subscriber_id_key"})

	a := &model.Assignment{LeadID: "lead-1", SubscriberID: "sub-1", WorkspaceID: "ws-1", Source: model.SourceRouting}
	created, err := s.CreateAssignment(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateAssignment_OtherErrorPropagates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO assignments`).
		WithArgs(pgxmock.AnyArg(), "lead-1", "sub-1", "ws-1", "", "", "routing", "new", pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	a := &model.Assignment{LeadID: "lead-1", SubscriberID: "sub-1", WorkspaceID: "ws-1", Source: model.SourceRouting}
	_, err := s.CreateAssignment(context.Background(), a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert assignment")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProfileCounters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE targeting_profiles`).
		WithArgs(4, 6, 9, "sub-1", "ws-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE targeting_profiles`).
		WithArgs(1, 1, 1, "sub-2", "ws-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateProfileCounters(context.Background(), []model.CapCounters{
		{SubscriberID: "sub-1", WorkspaceID: "ws-1", DailyCount: 4, WeeklyCount: 6, MonthlyCount: 9},
		{SubscriberID: "sub-2", WorkspaceID: "ws-2", DailyCount: 1, WeeklyCount: 1, MonthlyCount: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRejections_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"rejections"},
		[]string{"id", "run_id", "row_num", "reason", "field", "value", "message", "created_at"}).
		WillReturnResult(2)

	err := s.SaveRejections(context.Background(), "run-1", []model.RejectionRecord{
		{Row: 1, Reason: model.ReasonInvalidEmail, Field: "email", Message: "bad"},
		{Row: 2, Reason: model.ReasonInvalidState, Field: "state", Message: "bad"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveRejections_EmptyIsNoop(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	require.NoError(t, s.SaveRejections(context.Background(), "run-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateIngestRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO ingest_runs`).
		WithArgs(pgxmock.AnyArg(), "csv_upload", "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run, err := s.CreateIngestRun(context.Background(), "csv_upload")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateIngestRunStatus_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE ingest_runs SET status`).
		WithArgs("scoring", pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateIngestRunStatus(context.Background(), "ghost", model.RunStatusScoring)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetIngestRun_WithResult(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	resultJSON := []byte(`{"processed":10,"created":7}`)

	mock.ExpectQuery(`SELECT id, source, status, result, created_at, updated_at FROM ingest_runs`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "status", "result", "created_at", "updated_at"}).
			AddRow("run-1", "webhook", "complete", &resultJSON, now, now))

	run, err := s.GetIngestRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, 7, run.Result.Created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateVerificationStatus(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET verification_status`).
		WithArgs("valid", "lead-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateVerificationStatus(context.Background(), "lead-1", model.VerificationValid)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
