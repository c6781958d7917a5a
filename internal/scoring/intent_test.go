package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leadgrid/lead-engine/internal/model"
)

func TestIntentScore_MaximalLead(t *testing.T) {
	e := NewEngine(Config{})
	lead := &model.CanonicalLead{
		Email:         "jane@acme.com",
		Phone:         "5551234567",
		Title:         "Chief Revenue Officer",
		CompanyDomain: "acme.com",
		City:          "Austin",
		State:         "TX",
		LinkedInURL:   "https://linkedin.com/in/jane",
		EmployeeCount: 1200,
	}
	// 25 seniority + 25 size + 15 email + 20 phone + 15 completeness = 100.
	assert.Equal(t, 100, e.IntentScore(lead))
}

func TestIntentScore_ClampsToFloor(t *testing.T) {
	e := NewEngine(Config{})
	// Generic inbox (-5), unknown seniority (5), default size (10),
	// no phone, no enrichment: stays well above 1. Force the floor with
	// a malformed email (-10) and minimal everything else is still >= 1.
	lead := &model.CanonicalLead{Email: "no-at-sign"}
	score := e.IntentScore(lead)
	assert.GreaterOrEqual(t, score, 1)
	assert.LessOrEqual(t, score, 100)
}

func TestIntentScore_SenioritySignal(t *testing.T) {
	e := NewEngine(Config{})
	base := model.CanonicalLead{Email: "jane@acme.com"}

	ceo := base
	ceo.Title = "CEO"
	ic := base
	ic.Title = "Software Engineer"

	assert.Equal(t, 20, e.IntentScore(&ceo)-e.IntentScore(&ic))

	// An explicit seniority field overrides title inference.
	labeled := base
	labeled.Title = "Software Engineer"
	labeled.Seniority = "vp"
	assert.Equal(t, 15, e.IntentScore(&labeled)-e.IntentScore(&ic))
}

func TestIntentScore_CompanySizeBrackets(t *testing.T) {
	tests := []struct {
		bracket string
		count   int
		want    int
	}{
		{"", 1200, 25},
		{"", 300, 20},
		{"", 100, 15},
		{"", 25, 10},
		{"", 5, 5},
		{"500+", 0, 25},
		{"201-500", 0, 20},
		{"51-200", 0, 15},
		{"11-50", 0, 10},
		{"1-10", 0, 5},
		{"", 0, 10},
	}
	for _, tt := range tests {
		lead := &model.CanonicalLead{Email: "jane@acme.com", SizeBracket: tt.bracket, EmployeeCount: tt.count}
		assert.Equal(t, tt.want, companySizeSignal(lead), "bracket=%q count=%d", tt.bracket, tt.count)
	}
}

func TestIntentScore_EmailQuality(t *testing.T) {
	tests := []struct {
		name string
		lead model.CanonicalLead
		want int
	}{
		{"matches company domain", model.CanonicalLead{Email: "jane@acme.com", CompanyDomain: "acme.com"}, 15},
		{"business domain without company match", model.CanonicalLead{Email: "jane@other.com", CompanyDomain: "acme.com"}, 10},
		{"no company domain on record", model.CanonicalLead{Email: "jane@acme.com"}, 10},
		{"personal provider", model.CanonicalLead{Email: "jane@gmail.com"}, 0},
		{"generic inbox", model.CanonicalLead{Email: "info@acme.com"}, -5},
		{"malformed", model.CanonicalLead{Email: "garbage"}, -10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, emailQualitySignal(&tt.lead))
		})
	}
}

func TestIntentScore_PhoneSignal(t *testing.T) {
	with := &model.CanonicalLead{Email: "jane@acme.com", Phone: "(555) 123-4567"}
	without := &model.CanonicalLead{Email: "jane@acme.com", Phone: "n/a"}
	assert.Equal(t, 20, phoneSignal(with))
	assert.Equal(t, 0, phoneSignal(without))
}

func TestIntentScore_Completeness(t *testing.T) {
	empty := &model.CanonicalLead{Email: "jane@acme.com"}
	assert.Equal(t, 0, completenessSignal(empty))

	full := &model.CanonicalLead{
		Email: "jane@acme.com", Title: "CEO", City: "Austin", State: "TX",
		CompanyDomain: "acme.com", LinkedInURL: "https://linkedin.com/in/jane",
	}
	assert.Equal(t, 15, completenessSignal(full))

	partial := &model.CanonicalLead{Email: "jane@acme.com", Title: "CEO", City: "Austin"}
	assert.Equal(t, 6, completenessSignal(partial))
}

func TestScoreLead_FillsAllScores(t *testing.T) {
	e := NewEngine(Config{})
	lead := &model.CanonicalLead{Email: "jane@acme.com", Phone: "5551234567"}
	e.ScoreLead(lead, lead.CreatedAt.AddDate(0, 0, 1))

	assert.NotZero(t, lead.IntentScore)
	assert.NotZero(t, lead.FreshnessScore)
	assert.NotZero(t, lead.Price)
}
