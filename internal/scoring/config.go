package scoring

import (
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// FreshnessParams controls the sigmoid time-decay curve.
type FreshnessParams struct {
	K            float64 `yaml:"k" mapstructure:"k"`
	MidpointDays float64 `yaml:"midpoint_days" mapstructure:"midpoint_days"`
	Floor        float64 `yaml:"floor" mapstructure:"floor"`
}

// Config holds the scoring and pricing tunables.
type Config struct {
	BasePrice     float64         `yaml:"base_price" mapstructure:"base_price"`
	PhoneBonus    float64         `yaml:"phone_bonus" mapstructure:"phone_bonus"`
	VerifiedBonus float64         `yaml:"verified_bonus" mapstructure:"verified_bonus"`
	Freshness     FreshnessParams `yaml:"freshness" mapstructure:"freshness"`
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		BasePrice:     2.50,
		PhoneBonus:    0.75,
		VerifiedBonus: 0.25,
		Freshness: FreshnessParams{
			K:            0.15,
			MidpointDays: 30,
			Floor:        15,
		},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BasePrice <= 0 {
		c.BasePrice = d.BasePrice
	}
	if c.PhoneBonus < 0 {
		c.PhoneBonus = d.PhoneBonus
	}
	if c.VerifiedBonus < 0 {
		c.VerifiedBonus = d.VerifiedBonus
	}
	if c.Freshness.K <= 0 {
		c.Freshness.K = d.Freshness.K
	}
	if c.Freshness.MidpointDays <= 0 {
		c.Freshness.MidpointDays = d.Freshness.MidpointDays
	}
	if c.Freshness.Floor <= 0 {
		c.Freshness.Floor = d.Freshness.Floor
	}
	return c
}

// ruleSpec is the YAML shape of one seniority rule override.
type ruleSpec struct {
	Level   string `yaml:"level"`
	Pattern string `yaml:"pattern"`
}

// LoadSeniorityRules parses an ordered rule table from YAML, e.g.:
//
//   - level: c_suite
//     pattern: '\b(chief|ceo|founder)\b'
//   - level: vp
//     pattern: '\b(vp|vice president)\b'
func LoadSeniorityRules(data []byte) ([]seniorityRule, error) {
	var specs []ruleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, eris.Wrap(err, "scoring: parse rule table")
	}

	rules := make([]seniorityRule, 0, len(specs))
	for i, spec := range specs {
		level := ParseSeniority(spec.Level)
		if level == SeniorityUnknown {
			return nil, eris.Errorf("scoring: rule %d: unknown level %q", i, spec.Level)
		}
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "scoring: rule %d: compile pattern", i)
		}
		rules = append(rules, seniorityRule{Level: level, Pattern: re})
	}
	return rules, nil
}
