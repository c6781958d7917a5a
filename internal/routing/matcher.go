package routing

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/identity"
	"github.com/leadgrid/lead-engine/internal/model"
)

// AssignmentStore is the persistence surface the matcher needs.
type AssignmentStore interface {
	CreateAssignment(ctx context.Context, a *model.Assignment) (bool, error)
	UpdateProfileCounters(ctx context.Context, deltas []model.CapCounters) error
}

// Matcher routes scored leads to subscriber targeting profiles.
type Matcher struct {
	store AssignmentStore

	// Notification fan-out limits. Routing itself is unbounded; these only
	// throttle how many "new lead" notifications a run produces.
	notifyPerTenant int
	notifyPerRun    int
}

// MatcherOption configures a Matcher.
type MatcherOption func(*Matcher)

// WithNotifyLimits overrides the per-workspace and per-run notification
// caps. Zero values keep the defaults.
func WithNotifyLimits(perTenant, perRun int) MatcherOption {
	return func(m *Matcher) {
		if perTenant > 0 {
			m.notifyPerTenant = perTenant
		}
		if perRun > 0 {
			m.notifyPerRun = perRun
		}
	}
}

// NewMatcher creates a matcher. Notification fan-out defaults to 5 per
// workspace and 20 per run.
func NewMatcher(store AssignmentStore, opts ...MatcherOption) *Matcher {
	m := &Matcher{store: store, notifyPerTenant: 5, notifyPerRun: 20}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RouteResult summarizes one routing pass over a batch of leads.
type RouteResult struct {
	Assignments   int
	Duplicates    int
	Notifications []model.NotificationRequest
}

// Route matches every lead against every active profile, inserting an
// assignment for each qualifying pair. Cap counters live in an in-memory
// tracker for the duration of the run and are flushed to the store once at
// the end, touching only subscribers that consumed cap.
//
// Insert failures on individual assignments are logged and skipped; a
// duplicate (lead, subscriber) pair is a silent no-op that consumes no cap.
func (m *Matcher) Route(ctx context.Context, leads []*model.CanonicalLead, profiles []model.TargetingProfile) (*RouteResult, error) {
	result := &RouteResult{}
	tracker := NewCapTracker(profiles)
	notifyByWorkspace := make(map[string]int)

	for _, lead := range leads {
		for i := range profiles {
			p := &profiles[i]
			match, ok := matchProfile(lead, p)
			if !ok {
				continue
			}
			if !tracker.Allow(p.SubscriberID) {
				continue
			}

			a := &model.Assignment{
				LeadID:          lead.ID,
				SubscriberID:    p.SubscriberID,
				WorkspaceID:     p.WorkspaceID,
				MatchedIndustry: match.industry,
				MatchedGeo:      match.geo,
				Source:          model.SourceRouting,
			}
			created, err := m.store.CreateAssignment(ctx, a)
			if err != nil {
				zap.L().Warn("routing: assignment insert failed, skipping",
					zap.String("lead_id", lead.ID),
					zap.String("subscriber_id", p.SubscriberID),
					zap.Error(err),
				)
				continue
			}
			if !created {
				result.Duplicates++
				continue
			}

			tracker.Record(p.SubscriberID)
			result.Assignments++

			if p.Notify && notifyByWorkspace[p.WorkspaceID] < m.notifyPerTenant && len(result.Notifications) < m.notifyPerRun {
				notifyByWorkspace[p.WorkspaceID]++
				result.Notifications = append(result.Notifications, model.NotificationRequest{
					LeadID:       lead.ID,
					SubscriberID: p.SubscriberID,
					WorkspaceID:  p.WorkspaceID,
					LeadEmail:    lead.Email,
					CompanyName:  lead.CompanyName,
					Price:        lead.Price,
				})
			}
		}
	}

	if deltas := tracker.Deltas(); len(deltas) > 0 {
		if err := m.store.UpdateProfileCounters(ctx, deltas); err != nil {
			return result, eris.Wrap(err, "routing: flush cap counters")
		}
	}
	return result, nil
}

type matchDetail struct {
	industry string
	geo      string
}

// matchProfile applies the profile's declared criteria to the lead. A
// profile with no criteria at all never matches: an empty profile is a
// misconfiguration, not a match-everything wildcard.
func matchProfile(lead *model.CanonicalLead, p *model.TargetingProfile) (matchDetail, bool) {
	if !p.HasGeoFilter() && !p.HasIndustryFilter() {
		return matchDetail{}, false
	}

	var detail matchDetail
	if p.HasGeoFilter() {
		geo, ok := matchGeo(lead, p)
		if !ok {
			return matchDetail{}, false
		}
		detail.geo = geo
	}
	if p.HasIndustryFilter() {
		industry, ok := matchIndustry(lead, p)
		if !ok {
			return matchDetail{}, false
		}
		detail.industry = industry
	}
	return detail, true
}

// matchGeo checks the lead's location against the profile's declared
// geographies. Any single criterion qualifying is a match; the returned
// string records which one, for the assignment audit trail.
func matchGeo(lead *model.CanonicalLead, p *model.TargetingProfile) (string, bool) {
	state := strings.ToUpper(strings.TrimSpace(lead.State))
	for _, s := range p.States {
		if state != "" && state == strings.ToUpper(strings.TrimSpace(s)) {
			return "state:" + state, true
		}
	}

	city := identity.Fold(lead.City)
	for _, c := range p.Cities {
		if city != "" && city == identity.Fold(c) {
			return "city:" + city, true
		}
	}

	postal := strings.TrimSpace(lead.PostalCode)
	for _, pc := range p.PostalCodes {
		if postal != "" && postal == strings.TrimSpace(pc) {
			return "postal:" + postal, true
		}
	}
	return "", false
}

func matchIndustry(lead *model.CanonicalLead, p *model.TargetingProfile) (string, bool) {
	industry := identity.Fold(lead.Industry)
	for _, i := range p.Industries {
		if industry != "" && industry == identity.Fold(i) {
			return lead.Industry, true
		}
	}
	return "", false
}
