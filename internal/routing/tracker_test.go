package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadgrid/lead-engine/internal/model"
)

func TestCapTracker_UncappedAllowsAlways(t *testing.T) {
	tr := NewCapTracker([]model.TargetingProfile{
		{SubscriberID: "sub-1", WorkspaceID: "ws-1"},
	})
	for range 100 {
		require.True(t, tr.Allow("sub-1"))
		tr.Record("sub-1")
	}
}

func TestCapTracker_DailyCapBlocks(t *testing.T) {
	tr := NewCapTracker([]model.TargetingProfile{
		{SubscriberID: "sub-1", DailyCap: 2},
	})

	assert.True(t, tr.Allow("sub-1"))
	tr.Record("sub-1")
	assert.True(t, tr.Allow("sub-1"))
	tr.Record("sub-1")
	assert.False(t, tr.Allow("sub-1"))
}

func TestCapTracker_StoredCountersSeedTheRun(t *testing.T) {
	tr := NewCapTracker([]model.TargetingProfile{
		{SubscriberID: "sub-1", WeeklyCap: 10, WeeklyCount: 9},
	})

	assert.True(t, tr.Allow("sub-1"))
	tr.Record("sub-1")
	assert.False(t, tr.Allow("sub-1"))
}

func TestCapTracker_TightestPeriodWins(t *testing.T) {
	tr := NewCapTracker([]model.TargetingProfile{
		{SubscriberID: "sub-1", DailyCap: 100, MonthlyCap: 1},
	})
	tr.Record("sub-1")
	assert.False(t, tr.Allow("sub-1"))
}

func TestCapTracker_UnknownSubscriberDenied(t *testing.T) {
	tr := NewCapTracker(nil)
	assert.False(t, tr.Allow("ghost"))
	tr.Record("ghost") // no panic, no effect
	assert.Empty(t, tr.Deltas())
}

func TestCapTracker_DeltasOnlyDirty(t *testing.T) {
	tr := NewCapTracker([]model.TargetingProfile{
		{SubscriberID: "sub-1", WorkspaceID: "ws-1", DailyCount: 3, WeeklyCount: 5, MonthlyCount: 8},
		{SubscriberID: "sub-2", WorkspaceID: "ws-2"},
	})
	tr.Record("sub-1")

	deltas := tr.Deltas()
	require.Len(t, deltas, 1)
	assert.Equal(t, "sub-1", deltas[0].SubscriberID)
	assert.Equal(t, "ws-1", deltas[0].WorkspaceID)
	assert.Equal(t, 4, deltas[0].DailyCount)
	assert.Equal(t, 6, deltas[0].WeeklyCount)
	assert.Equal(t, 9, deltas[0].MonthlyCount)
}
