package scoring

import (
	"strings"
	"time"

	"github.com/leadgrid/lead-engine/internal/identity"
	"github.com/leadgrid/lead-engine/internal/model"
)

// Engine computes lead scores. It holds tunables and the seniority rule
// table; all methods are pure.
type Engine struct {
	cfg   Config
	rules []seniorityRule
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSeniorityRules replaces the built-in rule table.
func WithSeniorityRules(rules []seniorityRule) EngineOption {
	return func(e *Engine) {
		if len(rules) > 0 {
			e.rules = rules
		}
	}
}

// NewEngine creates a scoring engine with the given tunables; zero values
// fall back to the defaults.
func NewEngine(cfg Config, opts ...EngineOption) *Engine {
	e := &Engine{cfg: cfg.withDefaults(), rules: defaultSeniorityRules}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScoreLead fills the lead's intent, freshness, and price in place.
func (e *Engine) ScoreLead(lead *model.CanonicalLead, now time.Time) {
	lead.IntentScore = e.IntentScore(lead)
	lead.FreshnessScore = e.FreshnessScore(lead.AgeDays(now))
	lead.Price = e.Price(lead)
}

var seniorityPoints = map[Seniority]int{
	SeniorityCSuite:   25,
	SeniorityVP:       20,
	SeniorityDirector: 15,
	SeniorityManager:  10,
	SeniorityIC:       5,
	SeniorityUnknown:  5,
}

// genericInboxes are local parts that indicate a shared mailbox rather than
// a person.
var genericInboxes = map[string]bool{
	"info": true, "support": true, "sales": true, "admin": true,
	"contact": true, "hello": true, "office": true, "team": true,
	"marketing": true, "hr": true, "billing": true, "help": true,
	"noreply": true, "no-reply": true,
}

// personalDomains are consumer email providers; mail there carries no
// company signal.
var personalDomains = map[string]bool{
	"gmail.com": true, "googlemail.com": true, "yahoo.com": true,
	"hotmail.com": true, "outlook.com": true, "aol.com": true,
	"icloud.com": true, "me.com": true, "live.com": true,
	"protonmail.com": true, "proton.me": true, "msn.com": true,
}

// IntentScore sums the five factor scores and clamps to [1, 100].
func (e *Engine) IntentScore(lead *model.CanonicalLead) int {
	score := e.senioritySignal(lead) +
		companySizeSignal(lead) +
		emailQualitySignal(lead) +
		phoneSignal(lead) +
		completenessSignal(lead)

	if score < 1 {
		return 1
	}
	if score > 100 {
		return 100
	}
	return score
}

// senioritySignal: 0-25. An explicit seniority value wins; otherwise the
// bucket is inferred from the title through the ordered rule table.
func (e *Engine) senioritySignal(lead *model.CanonicalLead) int {
	s := ParseSeniority(lead.Seniority)
	if s == SeniorityUnknown {
		s = inferWithRules(lead.Title, e.rules)
	}
	return seniorityPoints[s]
}

// companySizeSignal: 0-25 from an explicit bracket or the employee count;
// 10 when nothing is known.
func companySizeSignal(lead *model.CanonicalLead) int {
	if lead.EmployeeCount > 0 {
		switch {
		case lead.EmployeeCount > 500:
			return 25
		case lead.EmployeeCount > 200:
			return 20
		case lead.EmployeeCount > 50:
			return 15
		case lead.EmployeeCount > 10:
			return 10
		default:
			return 5
		}
	}
	switch strings.TrimSpace(lead.SizeBracket) {
	case "500+", "501-1000", "1000+", "1001+":
		return 25
	case "201-500":
		return 20
	case "51-200":
		return 15
	case "11-50":
		return 10
	case "1-10":
		return 5
	default:
		return 10
	}
}

// emailQualitySignal: -10 to +15.
func emailQualitySignal(lead *model.CanonicalLead) int {
	email := identity.NormalizeEmail(lead.Email)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return -10
	}
	local, domain := email[:at], email[at+1:]

	if genericInboxes[local] {
		return -5
	}
	if personalDomains[domain] {
		return 0
	}
	if lead.CompanyDomain != "" && domain == identity.NormalizeDomain(lead.CompanyDomain, "") {
		return 15
	}
	return 10
}

// phoneSignal: flat 20 when any phone digits are present.
func phoneSignal(lead *model.CanonicalLead) int {
	if identity.NormalizePhone(lead.Phone) != "" {
		return 20
	}
	return 0
}

// completenessSignal: 0-15, proportional to how many enrichment fields are
// populated.
func completenessSignal(lead *model.CanonicalLead) int {
	fields := []string{lead.Title, lead.City, lead.State, lead.CompanyDomain, lead.LinkedInURL}
	present := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			present++
		}
	}
	return present * 15 / len(fields)
}
