// Package pipeline orchestrates a batch run: validation, identity
// resolution, scoring, routing, and notification, with per-phase audit
// records.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/identity"
	"github.com/leadgrid/lead-engine/internal/model"
	"github.com/leadgrid/lead-engine/internal/notify"
	"github.com/leadgrid/lead-engine/internal/routing"
	"github.com/leadgrid/lead-engine/internal/scoring"
	"github.com/leadgrid/lead-engine/internal/store"
	"github.com/leadgrid/lead-engine/internal/verify"
)

// Pipeline runs uploaded contact batches end to end.
type Pipeline struct {
	store      store.Store
	validator  *identity.Validator
	resolver   *identity.Resolver
	engine     *scoring.Engine
	matcher    *routing.Matcher
	dispatcher *notify.Dispatcher

	// Optional. When set, new leads are verified inline; verification
	// failures land in the store-backed retry queue instead of blocking
	// the batch.
	verifier     verify.Verifier
	verifyWorker *verify.Worker

	// Optional negative fingerprint cache, invalidated on lead creation.
	cache *identity.FingerprintCache

	nowFunc func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithVerification enables inline email verification with queue fallback.
func WithVerification(v verify.Verifier, w *verify.Worker) Option {
	return func(p *Pipeline) {
		p.verifier = v
		p.verifyWorker = w
	}
}

// WithFingerprintCache attaches the negative cache invalidated on creates.
func WithFingerprintCache(c *identity.FingerprintCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// New creates a Pipeline with all dependencies.
func New(
	st store.Store,
	validator *identity.Validator,
	resolver *identity.Resolver,
	engine *scoring.Engine,
	matcher *routing.Matcher,
	dispatcher *notify.Dispatcher,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		store:      st,
		validator:  validator,
		resolver:   resolver,
		engine:     engine,
		matcher:    matcher,
		dispatcher: dispatcher,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the full pipeline for one uploaded batch. Individual bad
// records become rejections; infrastructure failures on individual records
// make them skipped and re-runnable. Only batch-level failures (e.g. the
// run record itself cannot be written) return an error.
func (p *Pipeline) Run(ctx context.Context, source string, records []model.RawContactRecord) (*model.IngestRunResult, error) {
	log := zap.L().With(zap.String("source", source), zap.Int("records", len(records)))
	log.Info("pipeline: starting batch run")

	result := &model.IngestRunResult{Processed: len(records)}

	run, err := p.store.CreateIngestRun(ctx, source)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	setStatus := func(status model.IngestRunStatus) {
		if statusErr := p.store.UpdateIngestRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) *model.PhaseResult {
		phase, phaseErr := p.store.CreatePhase(ctx, run.ID, name)
		if phaseErr != nil {
			log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(phaseErr))
		}

		start := time.Now()
		phaseResult, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{Name: name}
		}
		phaseResult.Name = name
		phaseResult.Duration = duration

		if fnErr != nil {
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else if phaseResult.Status == "" {
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}

		if phase != nil {
			_ = p.store.CompletePhase(ctx, phase.ID, phaseResult)
		}
		result.Phases = append(result.Phases, *phaseResult)
		return phaseResult
	}

	// ===== Phase 1: Validate + Resolve =====
	setStatus(model.RunStatusResolving)

	var rejections []model.RejectionRecord
	var newLeads []*model.CanonicalLead

	trackPhase("1_resolve", func() (*model.PhaseResult, error) {
		var valid []model.RawContactRecord
		for _, rec := range records {
			if rej := p.validator.Validate(rec); rej != nil {
				rejections = append(rejections, *rej)
				continue
			}
			valid = append(valid, rec)
		}

		resolutions := p.resolver.ResolveBatch(ctx, valid)
		for i := range resolutions {
			res := &resolutions[i]
			switch {
			case res.Err != nil:
				result.Skipped++
			case res.Class == identity.ClassNew:
				newLeads = append(newLeads, leadFromResolution(res))
			case res.Class == identity.ClassSameOwner:
				p.mergeDuplicate(ctx, res)
				result.Merged++
				rejections = append(rejections, model.NewRejection(
					res.Record.Row, model.ReasonDuplicateSamePartner,
					"email", res.Normalized.Email,
					"already supplied by this partner; missing fields merged",
				))
			case res.Class == identity.ClassCrossOwner:
				rejections = append(rejections, model.NewRejection(
					res.Record.Row, model.ReasonDuplicateCrossPartner,
					"email", res.Normalized.Email,
					"lead already supplied by another partner",
				))
			case res.Class == identity.ClassPlatformOwned:
				rejections = append(rejections, model.NewRejection(
					res.Record.Row, model.ReasonPlatformOwnedLead,
					"email", res.Normalized.Email,
					"lead already exists as platform inventory",
				))
			}
		}
		return &model.PhaseResult{
			Metadata: map[string]any{
				"valid":      len(valid),
				"new":        len(newLeads),
				"merged":     result.Merged,
				"rejections": len(rejections),
			},
		}, nil
	})

	// ===== Phase 2: Score + Persist =====
	setStatus(model.RunStatusScoring)

	var createdLeads []*model.CanonicalLead

	trackPhase("2_score", func() (*model.PhaseResult, error) {
		now := p.nowFunc().UTC()
		for _, lead := range newLeads {
			verifyErr := p.verifyInline(ctx, lead)
			p.engine.ScoreLead(lead, now)

			created, createErr := p.store.CreateLead(ctx, lead)
			if createErr != nil {
				log.Warn("pipeline: lead insert failed, record is re-runnable",
					zap.String("fingerprint", lead.Fingerprint),
					zap.Error(createErr),
				)
				result.Skipped++
				continue
			}
			if !created {
				// Lost a race with a concurrent upload; the fingerprint
				// is now owned by whoever won.
				result.Skipped++
				continue
			}
			if p.cache != nil {
				p.cache.Invalidate(ctx, lead.Fingerprint)
			}
			if verifyErr != nil {
				p.enqueueFailedVerification(ctx, lead, verifyErr)
			}
			createdLeads = append(createdLeads, lead)
			result.Created++
		}
		return &model.PhaseResult{
			Metadata: map[string]any{"created": result.Created},
		}, nil
	})

	// ===== Phase 3: Route =====
	setStatus(model.RunStatusRouting)

	var routeResult *routing.RouteResult

	trackPhase("3_route", func() (*model.PhaseResult, error) {
		profiles, profErr := p.store.ListActiveProfiles(ctx)
		if profErr != nil {
			return nil, profErr
		}
		rr, routeErr := p.matcher.Route(ctx, createdLeads, profiles)
		routeResult = rr
		if rr != nil {
			result.Assignments = rr.Assignments
		}
		if routeErr != nil {
			return nil, routeErr
		}
		return &model.PhaseResult{
			Metadata: map[string]any{
				"profiles":      len(profiles),
				"assignments":   rr.Assignments,
				"duplicates":    rr.Duplicates,
				"notifications": len(rr.Notifications),
			},
		}, nil
	})

	// ===== Phase 4: Notify =====
	setStatus(model.RunStatusNotifying)

	trackPhase("4_notify", func() (*model.PhaseResult, error) {
		if routeResult == nil || len(routeResult.Notifications) == 0 {
			return &model.PhaseResult{
				Status:   model.PhaseStatusSkipped,
				Metadata: map[string]any{"reason": "no notifications"},
			}, nil
		}
		settled, failed := p.dispatcher.Dispatch(ctx, routeResult.Notifications)
		result.Notified = settled - failed
		return &model.PhaseResult{
			Metadata: map[string]any{"settled": settled, "failed": failed},
		}, nil
	})

	// Persist rejections for export and dashboards.
	result.Rejected = len(rejections) - result.Merged
	if len(rejections) > 0 {
		if saveErr := p.store.SaveRejections(ctx, run.ID, rejections); saveErr != nil {
			log.Warn("pipeline: failed to save rejections", zap.Error(saveErr))
		}
	}

	result.Report = FormatReport(run.ID, source, result)

	if saveErr := p.store.UpdateIngestRunResult(ctx, run.ID, model.RunStatusComplete, result); saveErr != nil {
		log.Warn("pipeline: failed to save run result", zap.Error(saveErr))
	}

	log.Info("pipeline: batch run complete",
		zap.String("run_id", run.ID),
		zap.Int("created", result.Created),
		zap.Int("merged", result.Merged),
		zap.Int("rejected", result.Rejected),
		zap.Int("skipped", result.Skipped),
		zap.Int("assignments", result.Assignments),
		zap.Int("notified", result.Notified),
	)

	return result, nil
}

// leadFromResolution builds the canonical lead for a new record, with
// normalized identity fields and partner attribution.
func leadFromResolution(res *identity.Resolution) *model.CanonicalLead {
	rec := res.Record
	partnerID := rec.PartnerID
	workspaceID := rec.WorkspaceID

	lead := &model.CanonicalLead{
		Fingerprint:       res.Fingerprint,
		SourceWorkspaceID: &workspaceID,
		Email:             res.Normalized.Email,
		Phone:             res.Normalized.Phone,
		FirstName:         rec.FirstName,
		LastName:          rec.LastName,
		Title:             rec.Title,
		Seniority:         rec.Seniority,
		CompanyName:       rec.CompanyName,
		CompanyDomain:     res.Normalized.Domain,
		Industry:          rec.Industry,
		EmployeeCount:     rec.EmployeeCount,
		SizeBracket:       rec.SizeBracket,
		City:              rec.City,
		State:             rec.State,
		PostalCode:        rec.PostalCode,
		LinkedInURL:       rec.LinkedInURL,
	}
	if partnerID != "" {
		lead.OwningPartnerID = &partnerID
	}
	return lead
}

// mergeDuplicate fills stored-empty fields on a same-owner duplicate.
// Merge write failures are logged, not fatal: the stored lead is intact
// either way.
func (p *Pipeline) mergeDuplicate(ctx context.Context, res *identity.Resolution) {
	if res.Existing == nil {
		// Intra-batch duplicate of a lead created later in this run;
		// nothing stored to merge into yet.
		return
	}
	if !identity.MergeMissing(res.Existing, res.Record) {
		return
	}
	if err := p.store.UpdateLeadContact(ctx, res.Existing); err != nil {
		zap.L().Warn("pipeline: duplicate merge write failed",
			zap.String("lead_id", res.Existing.ID),
			zap.Error(err),
		)
	}
}

// verifyInline attempts inline verification before scoring, since the
// verified bonus feeds the price. A failure leaves the status unknown and
// is returned so the lead can be queued for retry once it has an ID.
func (p *Pipeline) verifyInline(ctx context.Context, lead *model.CanonicalLead) error {
	if p.verifier == nil {
		lead.VerificationStatus = model.VerificationUnknown
		return nil
	}
	status, err := p.verifier.Verify(ctx, lead.Email)
	if err != nil {
		lead.VerificationStatus = model.VerificationUnknown
		return err
	}
	lead.VerificationStatus = status
	return nil
}

func (p *Pipeline) enqueueFailedVerification(ctx context.Context, lead *model.CanonicalLead, cause error) {
	if p.verifyWorker == nil {
		return
	}
	if err := p.verifyWorker.Enqueue(ctx, lead.ID, lead.Email, cause); err != nil {
		zap.L().Warn("pipeline: verification enqueue failed",
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
	}
}
