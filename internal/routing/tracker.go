// Package routing matches scored leads to subscriber targeting profiles,
// enforces consumption caps, and records assignments.
package routing

import (
	"github.com/leadgrid/lead-engine/internal/model"
)

type capCounts struct {
	workspaceID string

	dailyCap, weeklyCap, monthlyCap       int
	dailyCount, weeklyCount, monthlyCount int

	dirty bool
}

// CapTracker holds per-subscriber consumption counters for the duration of
// one routing run. Counters are incremented in memory as assignments are
// created and flushed back to the store once at the end of the run, so a
// subscriber cannot exceed a cap within a single batch regardless of how
// many leads match.
type CapTracker struct {
	counts map[string]*capCounts
}

// NewCapTracker seeds a tracker from the profiles' stored counters.
func NewCapTracker(profiles []model.TargetingProfile) *CapTracker {
	t := &CapTracker{counts: make(map[string]*capCounts, len(profiles))}
	for _, p := range profiles {
		t.counts[p.SubscriberID] = &capCounts{
			workspaceID:  p.WorkspaceID,
			dailyCap:     p.DailyCap,
			weeklyCap:    p.WeeklyCap,
			monthlyCap:   p.MonthlyCap,
			dailyCount:   p.DailyCount,
			weeklyCount:  p.WeeklyCount,
			monthlyCount: p.MonthlyCount,
		}
	}
	return t
}

// Allow reports whether the subscriber has headroom under every declared
// cap. A zero cap means uncapped for that period.
func (t *CapTracker) Allow(subscriberID string) bool {
	c, ok := t.counts[subscriberID]
	if !ok {
		return false
	}
	if c.dailyCap > 0 && c.dailyCount >= c.dailyCap {
		return false
	}
	if c.weeklyCap > 0 && c.weeklyCount >= c.weeklyCap {
		return false
	}
	if c.monthlyCap > 0 && c.monthlyCount >= c.monthlyCap {
		return false
	}
	return true
}

// Record increments all period counters for the subscriber. Called only
// after an assignment row was actually inserted; duplicate no-ops do not
// consume cap.
func (t *CapTracker) Record(subscriberID string) {
	c, ok := t.counts[subscriberID]
	if !ok {
		return
	}
	c.dailyCount++
	c.weeklyCount++
	c.monthlyCount++
	c.dirty = true
}

// Deltas returns the counter snapshots for subscribers that consumed cap
// during this run. Subscribers with no new assignments are omitted so the
// flush touches only rows that changed.
func (t *CapTracker) Deltas() []model.CapCounters {
	var deltas []model.CapCounters
	for subscriberID, c := range t.counts {
		if !c.dirty {
			continue
		}
		deltas = append(deltas, model.CapCounters{
			SubscriberID: subscriberID,
			WorkspaceID:  c.workspaceID,
			DailyCount:   c.dailyCount,
			WeeklyCount:  c.weeklyCount,
			MonthlyCount: c.monthlyCount,
		})
	}
	return deltas
}
