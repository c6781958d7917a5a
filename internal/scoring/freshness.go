package scoring

import "math"

// FreshnessScore maps lead age to a 0-100 decay score using a sigmoid:
//
//	score = 100 / (1 + e^(k*(age_days - midpoint)))
//
// floored so a lead never decays to worthless. With the default parameters
// a day-old lead scores ~99, a month-old lead 50, a year-old lead the floor.
// The curve is monotonically non-increasing in age for fixed parameters.
func (e *Engine) FreshnessScore(ageDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	p := e.cfg.Freshness
	score := 100 / (1 + math.Exp(p.K*(ageDays-p.MidpointDays)))
	if score < p.Floor {
		return p.Floor
	}
	return score
}
