package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/lead-engine/internal/identity"
	"github.com/leadgrid/lead-engine/internal/model"
	"github.com/leadgrid/lead-engine/internal/notify"
	"github.com/leadgrid/lead-engine/internal/resilience"
	"github.com/leadgrid/lead-engine/internal/routing"
	"github.com/leadgrid/lead-engine/internal/scoring"
	"github.com/leadgrid/lead-engine/internal/store"
	"github.com/leadgrid/lead-engine/internal/verify"
)

// memStore is an in-memory store.Store for pipeline tests. It enforces the
// same uniqueness rules as the real backends.
type memStore struct {
	mu           sync.Mutex
	leads        map[string]*model.CanonicalLead // by fingerprint
	profiles     []model.TargetingProfile
	assignments  []model.Assignment
	rejections   map[string][]model.RejectionRecord
	runs         map[string]*model.IngestRun
	queue        map[string]resilience.QueueEntry
	counters     []model.CapCounters
	nextID       int
	lookupErr    error
	createErr    error
	contactSaves int
}

func newMemStore() *memStore {
	return &memStore{
		leads:      map[string]*model.CanonicalLead{},
		rejections: map[string][]model.RejectionRecord{},
		runs:       map[string]*model.IngestRun{},
		queue:      map[string]resilience.QueueEntry{},
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return prefix + "-" + string(rune('0'+m.nextID))
}

func (m *memStore) CreateLead(ctx context.Context, lead *model.CanonicalLead) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return false, m.createErr
	}
	if _, ok := m.leads[lead.Fingerprint]; ok {
		return false, nil
	}
	if lead.ID == "" {
		lead.ID = m.id("lead")
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}
	clone := *lead
	m.leads[lead.Fingerprint] = &clone
	return true, nil
}

func (m *memStore) GetLead(ctx context.Context, id string) (*model.CanonicalLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetLeadByFingerprint(ctx context.Context, fp string) (*model.CanonicalLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leads[fp], nil
}

func (m *memStore) GetLeadsByFingerprints(ctx context.Context, fps []string) ([]model.CanonicalLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	var out []model.CanonicalLead
	for _, fp := range fps {
		if l, ok := m.leads[fp]; ok {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memStore) UpdateLeadContact(ctx context.Context, lead *model.CanonicalLead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contactSaves++
	clone := *lead
	m.leads[lead.Fingerprint] = &clone
	return nil
}

func (m *memStore) UpdateLeadScores(ctx context.Context, leadID string, intent int, freshness, price float64) error {
	return nil
}

func (m *memStore) UpdateVerificationStatus(ctx context.Context, leadID string, status model.VerificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leads {
		if l.ID == leadID {
			l.VerificationStatus = status
		}
	}
	return nil
}

func (m *memStore) UpsertProfile(ctx context.Context, p *model.TargetingProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = append(m.profiles, *p)
	return nil
}

func (m *memStore) ListActiveProfiles(ctx context.Context) ([]model.TargetingProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.TargetingProfile(nil), m.profiles...), nil
}

func (m *memStore) UpdateProfileCounters(ctx context.Context, deltas []model.CapCounters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, deltas...)
	return nil
}

func (m *memStore) CreateAssignment(ctx context.Context, a *model.Assignment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.assignments {
		if existing.LeadID == a.LeadID && existing.SubscriberID == a.SubscriberID {
			return false, nil
		}
	}
	if a.ID == "" {
		a.ID = m.id("assign")
	}
	m.assignments = append(m.assignments, *a)
	return true, nil
}

func (m *memStore) ListAssignments(ctx context.Context, f store.AssignmentFilter) ([]model.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Assignment(nil), m.assignments...), nil
}

func (m *memStore) SaveRejections(ctx context.Context, runID string, rejections []model.RejectionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[runID] = append(m.rejections[runID], rejections...)
	return nil
}

func (m *memStore) ListRejections(ctx context.Context, runID string) ([]model.RejectionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejections[runID], nil
}

func (m *memStore) CreateIngestRun(ctx context.Context, source string) (*model.IngestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &model.IngestRun{
		ID:     m.id("run"),
		Source: source,
		Status: model.RunStatusQueued,
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *memStore) UpdateIngestRunStatus(ctx context.Context, runID string, status model.IngestRunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[runID]; ok {
		run.Status = status
	}
	return nil
}

func (m *memStore) UpdateIngestRunResult(ctx context.Context, runID string, status model.IngestRunStatus, result *model.IngestRunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run, ok := m.runs[runID]; ok {
		run.Status = status
		run.Result = result
	}
	return nil
}

func (m *memStore) GetIngestRun(ctx context.Context, runID string) (*model.IngestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[runID], nil
}

func (m *memStore) CreatePhase(ctx context.Context, runID, name string) (*model.RunPhase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &model.RunPhase{ID: m.id("phase"), RunID: runID, Name: name, Status: model.PhaseStatusRunning}, nil
}

func (m *memStore) CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error {
	return nil
}

func (m *memStore) EnqueueVerification(ctx context.Context, entry resilience.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = m.id("vq")
	}
	m.queue[entry.ID] = entry
	return nil
}

func (m *memStore) DueVerifications(ctx context.Context, filter resilience.QueueFilter) ([]resilience.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []resilience.QueueEntry
	for _, e := range m.queue {
		if e.Status == resilience.QueuePending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) IncrementVerificationRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.queue[id]
	e.RetryCount++
	e.NextRetryAt = nextRetryAt
	m.queue[id] = e
	return nil
}

func (m *memStore) MarkVerificationFailed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.queue[id]
	e.Status = resilience.QueueFailed
	m.queue[id] = e
	return nil
}

func (m *memStore) RemoveVerification(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queue, id)
	return nil
}

func (m *memStore) Ping(ctx context.Context) error    { return nil }
func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Close() error                      { return nil }

var _ store.Store = (*memStore)(nil)

// fixedVerifier returns a constant status or a constant error.
type fixedVerifier struct {
	status model.VerificationStatus
	err    error
}

func (f fixedVerifier) Verify(ctx context.Context, email string) (model.VerificationStatus, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.status, nil
}

func newTestPipeline(st *memStore, opts ...Option) *Pipeline {
	return New(
		st,
		identity.NewValidator(nil),
		identity.NewResolver(st),
		scoring.NewEngine(scoring.Config{}),
		routing.NewMatcher(st),
		notify.NewDispatcher(notify.NopTransport{}),
		opts...,
	)
}

func record(row int, email, partner, workspace string) model.RawContactRecord {
	return model.RawContactRecord{
		Row:         row,
		Email:       email,
		Industry:    "software",
		State:       "TX",
		PartnerID:   partner,
		WorkspaceID: workspace,
	}
}

func TestPipeline_Run_CreatesAndRoutes(t *testing.T) {
	st := newMemStore()
	require.NoError(t, st.UpsertProfile(context.Background(), &model.TargetingProfile{
		SubscriberID: "sub-1", WorkspaceID: "ws-sub",
		States: []string{"TX"}, Notify: true, Active: true,
	}))

	p := newTestPipeline(st)
	result, err := p.Run(context.Background(), "csv_upload", []model.RawContactRecord{
		record(1, "jane@acme.com", "partner-1", "ws-1"),
		record(2, "john@other.com", "partner-1", "ws-1"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Created)
	assert.Zero(t, result.Rejected)
	assert.Equal(t, 2, result.Assignments)
	assert.Len(t, result.Phases, 4)
	assert.NotEmpty(t, result.Report)

	// Leads were scored before persisting.
	for _, lead := range st.leads {
		assert.NotZero(t, lead.IntentScore)
		assert.NotZero(t, lead.Price)
	}

	// Cap counters were flushed once for the matched subscriber.
	require.Len(t, st.counters, 1)
	assert.Equal(t, 2, st.counters[0].DailyCount)

	// The run record carries the final result.
	for _, run := range st.runs {
		assert.Equal(t, model.RunStatusComplete, run.Status)
		require.NotNil(t, run.Result)
	}
}

func TestPipeline_Run_ValidationRejections(t *testing.T) {
	st := newMemStore()
	p := newTestPipeline(st)

	result, err := p.Run(context.Background(), "csv_upload", []model.RawContactRecord{
		record(1, "jane@acme.com", "partner-1", "ws-1"),
		record(2, "not-an-email", "partner-1", "ws-1"),
		{Row: 3, Email: "no-workspace@acme.com", PartnerID: "partner-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Rejected)

	var saved []model.RejectionRecord
	for _, r := range st.rejections {
		saved = append(saved, r...)
	}
	require.Len(t, saved, 2)
	reasons := map[model.ReasonCode]bool{}
	for _, r := range saved {
		reasons[r.Reason] = true
	}
	assert.True(t, reasons[model.ReasonInvalidEmail])
	assert.True(t, reasons[model.ReasonNoMatchingWorkspace])
}

func TestPipeline_Run_DuplicateHandling(t *testing.T) {
	st := newMemStore()
	p := newTestPipeline(st)
	ctx := context.Background()

	// Seed the store through a first run.
	_, err := p.Run(ctx, "csv_upload", []model.RawContactRecord{
		record(1, "jane@acme.com", "partner-1", "ws-1"),
	})
	require.NoError(t, err)

	// Second run: same-owner dup (merged), cross-owner dup (rejected).
	result, err := p.Run(ctx, "csv_upload", []model.RawContactRecord{
		{Row: 1, Email: "jane@acme.com", Title: "CEO", PartnerID: "partner-1", WorkspaceID: "ws-1"},
		record(2, "jane@acme.com", "partner-2", "ws-2"),
	})
	require.NoError(t, err)

	assert.Zero(t, result.Created)
	assert.Equal(t, 1, result.Merged)
	assert.Equal(t, 1, result.Rejected)

	// The same-owner merge filled the empty title.
	lead, err := st.GetLeadByFingerprint(ctx, identity.Fingerprint("jane@acme.com", "", ""))
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, "CEO", lead.Title)

	// Same-owner dups surface in the export with their own reason code.
	var reasons []model.ReasonCode
	for _, recs := range st.rejections {
		for _, r := range recs {
			reasons = append(reasons, r.Reason)
		}
	}
	assert.Contains(t, reasons, model.ReasonDuplicateSamePartner)
	assert.Contains(t, reasons, model.ReasonDuplicateCrossPartner)
}

func TestPipeline_Run_PlatformOwnedRejected(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	house := &model.CanonicalLead{
		Fingerprint: identity.Fingerprint("house@acme.com", "", ""),
		Email:       "house@acme.com",
	}
	_, err := st.CreateLead(ctx, house)
	require.NoError(t, err)

	p := newTestPipeline(st)
	result, err := p.Run(ctx, "csv_upload", []model.RawContactRecord{
		record(1, "house@acme.com", "partner-1", "ws-1"),
	})
	require.NoError(t, err)

	assert.Zero(t, result.Created)
	assert.Equal(t, 1, result.Rejected)
	for _, recs := range st.rejections {
		assert.Equal(t, model.ReasonPlatformOwnedLead, recs[0].Reason)
	}
}

func TestPipeline_Run_Rerunnable(t *testing.T) {
	st := newMemStore()
	p := newTestPipeline(st)
	ctx := context.Background()
	batch := []model.RawContactRecord{record(1, "jane@acme.com", "partner-1", "ws-1")}

	first, err := p.Run(ctx, "csv_upload", batch)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := p.Run(ctx, "csv_upload", batch)
	require.NoError(t, err)
	assert.Zero(t, second.Created)
	assert.Equal(t, 1, second.Merged)
	assert.Len(t, st.leads, 1)
}

func TestPipeline_Run_LookupFailureSkipsNotRejects(t *testing.T) {
	st := newMemStore()
	st.lookupErr = errors.New("connection refused")
	p := newTestPipeline(st)

	result, err := p.Run(context.Background(), "csv_upload", []model.RawContactRecord{
		record(1, "jane@acme.com", "partner-1", "ws-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Created)
	assert.Zero(t, result.Rejected)
}

func TestPipeline_Run_InsertFailureSkips(t *testing.T) {
	st := newMemStore()
	st.createErr = errors.New("disk full")
	p := newTestPipeline(st)

	result, err := p.Run(context.Background(), "csv_upload", []model.RawContactRecord{
		record(1, "jane@acme.com", "partner-1", "ws-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Created)
}

func TestPipeline_Run_VerificationFeedsPrice(t *testing.T) {
	stValid := newMemStore()
	pValid := newTestPipeline(stValid, WithVerification(fixedVerifier{status: model.VerificationValid}, nil))
	_, err := pValid.Run(context.Background(), "csv_upload", []model.RawContactRecord{
		record(1, "jane@acme.com", "partner-1", "ws-1"),
	})
	require.NoError(t, err)

	stUnknown := newMemStore()
	pUnknown := newTestPipeline(stUnknown)
	_, err = pUnknown.Run(context.Background(), "csv_upload", []model.RawContactRecord{
		record(1, "jane@acme.com", "partner-1", "ws-1"),
	})
	require.NoError(t, err)

	var verified, unverified *model.CanonicalLead
	for _, l := range stValid.leads {
		verified = l
	}
	for _, l := range stUnknown.leads {
		unverified = l
	}
	require.NotNil(t, verified)
	require.NotNil(t, unverified)
	assert.Equal(t, model.VerificationValid, verified.VerificationStatus)
	assert.Equal(t, model.VerificationUnknown, unverified.VerificationStatus)
	assert.Greater(t, verified.Price, unverified.Price)
}

func TestPipeline_Run_VerificationOutageQueuesRetry(t *testing.T) {
	st := newMemStore()
	worker := verify.NewWorker(st, fixedVerifier{status: model.VerificationValid}, 3, resilience.RetryConfig{})
	p := newTestPipeline(st, WithVerification(fixedVerifier{err: errors.New("read tcp: i/o timeout")}, worker))

	result, err := p.Run(context.Background(), "csv_upload", []model.RawContactRecord{
		record(1, "jane@acme.com", "partner-1", "ws-1"),
	})
	require.NoError(t, err)

	// The batch still creates the lead with status unknown.
	assert.Equal(t, 1, result.Created)
	require.Len(t, st.queue, 1)
	for _, e := range st.queue {
		assert.Equal(t, "transient", e.ErrorType)
		assert.NotEmpty(t, e.LeadID)
	}

	// Draining the queue once the service recovers writes the status back.
	stats, err := worker.ProcessDue(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Verified)
	for _, l := range st.leads {
		assert.Equal(t, model.VerificationValid, l.VerificationStatus)
	}
	assert.Empty(t, st.queue)
}

func TestPipeline_Run_EmptyBatch(t *testing.T) {
	st := newMemStore()
	p := newTestPipeline(st)

	result, err := p.Run(context.Background(), "webhook", nil)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Zero(t, result.Created)
	assert.Len(t, result.Phases, 4)
	// Notify phase reports skipped when nothing matched.
	assert.Equal(t, model.PhaseStatusSkipped, result.Phases[3].Status)
}

func TestFormatReport_ContainsOutcomeCounts(t *testing.T) {
	result := &model.IngestRunResult{
		Processed: 10, Created: 6, Merged: 2, Rejected: 2,
		Assignments: 4, Notified: 3,
		Phases: []model.PhaseResult{
			{Name: "1_resolve", Status: model.PhaseStatusComplete, Duration: 12},
		},
	}
	report := FormatReport("run-1", "csv_upload", result)
	assert.Contains(t, report, "run-1")
	assert.Contains(t, report, "csv_upload")
	assert.Contains(t, report, "1_resolve")
}
