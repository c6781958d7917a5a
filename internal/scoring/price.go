package scoring

import (
	"math"

	"github.com/leadgrid/lead-engine/internal/identity"
	"github.com/leadgrid/lead-engine/internal/model"
)

// Price derives the marketplace price from the lead's already-computed
// intent and freshness scores:
//
//	base × intent multiplier × freshness multiplier + phone bonus + verified bonus
//
// Only a verification status of exactly "valid" earns the verified bonus;
// catch_all and risky are listable but neither bonused nor penalized.
// The result is rounded to 4 decimal places and is never negative.
func (e *Engine) Price(lead *model.CanonicalLead) float64 {
	price := e.cfg.BasePrice

	switch {
	case lead.IntentScore >= 67:
		price *= 2.5
	case lead.IntentScore >= 34:
		price *= 1.5
	}

	switch {
	case lead.FreshnessScore >= 80:
		price *= 1.5
	case lead.FreshnessScore < 30:
		price *= 0.5
	}

	if identity.NormalizePhone(lead.Phone) != "" {
		price += e.cfg.PhoneBonus
	}
	if lead.VerificationStatus == model.VerificationValid {
		price += e.cfg.VerifiedBonus
	}

	price = math.Round(price*10000) / 10000
	if price < 0 {
		return 0
	}
	return price
}
