// Package scoring computes intent, freshness, and marketplace price for
// canonical leads. Everything in this package is pure and safe to call from
// any number of concurrent workers.
package scoring

import (
	"regexp"
	"strings"

	"github.com/leadgrid/lead-engine/internal/identity"
)

// Seniority buckets ordered from lowest to highest signal.
type Seniority int

const (
	SeniorityUnknown Seniority = iota
	SeniorityIC
	SeniorityManager
	SeniorityDirector
	SeniorityVP
	SeniorityCSuite
)

func (s Seniority) String() string {
	switch s {
	case SeniorityIC:
		return "ic"
	case SeniorityManager:
		return "manager"
	case SeniorityDirector:
		return "director"
	case SeniorityVP:
		return "vp"
	case SeniorityCSuite:
		return "c_suite"
	default:
		return "unknown"
	}
}

// seniorityRule maps a title keyword pattern to a bucket. The table is
// ordered: the first matching rule wins, so c-suite outranks "head of
// engineering" containing "engineering manager" fragments.
type seniorityRule struct {
	Level   Seniority
	Pattern *regexp.Regexp
}

var defaultSeniorityRules = []seniorityRule{
	{SeniorityCSuite, regexp.MustCompile(`\b(chief|ceo|cto|cfo|coo|cmo|cro|cio|ciso|president|founder|co-founder|owner)\b`)},
	{SeniorityVP, regexp.MustCompile(`\b(vp|svp|evp|vice president)\b`)},
	{SeniorityDirector, regexp.MustCompile(`\b(director|head of)\b`)},
	{SeniorityManager, regexp.MustCompile(`\b(manager|lead|supervisor)\b`)},
}

// ParseSeniority maps an explicit seniority value to a bucket.
func ParseSeniority(s string) Seniority {
	switch identity.Fold(s) {
	case "c_suite", "c-suite", "csuite", "executive":
		return SeniorityCSuite
	case "vp", "vice_president", "vice president":
		return SeniorityVP
	case "director":
		return SeniorityDirector
	case "manager":
		return SeniorityManager
	case "ic", "individual_contributor", "individual contributor":
		return SeniorityIC
	default:
		return SeniorityUnknown
	}
}

// InferSeniority derives a bucket from a free-text title via the built-in
// ordered rule table. Titles matching no rule are individual contributors.
func InferSeniority(title string) Seniority {
	return inferWithRules(title, defaultSeniorityRules)
}

func inferWithRules(title string, rules []seniorityRule) Seniority {
	t := identity.Fold(title)
	if strings.TrimSpace(t) == "" {
		return SeniorityUnknown
	}
	for _, rule := range rules {
		if rule.Pattern.MatchString(t) {
			return rule.Level
		}
	}
	return SeniorityIC
}
