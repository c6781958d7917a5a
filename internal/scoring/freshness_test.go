package scoring

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestFreshnessScore_Curve(t *testing.T) {
	e := NewEngine(Config{})

	// Midpoint of the sigmoid sits exactly at 50.
	assert.InDelta(t, 50, e.FreshnessScore(30), 0.0001)

	// A day-old lead is near the top of the curve.
	assert.Greater(t, e.FreshnessScore(1), 98.0)

	// A year-old lead has decayed to the floor.
	assert.Equal(t, 15.0, e.FreshnessScore(365))
}

func TestFreshnessScore_NegativeAgeClamped(t *testing.T) {
	e := NewEngine(Config{})
	assert.Equal(t, e.FreshnessScore(0), e.FreshnessScore(-5))
}

func TestFreshnessScore_FloorApplies(t *testing.T) {
	e := NewEngine(Config{Freshness: FreshnessParams{K: 0.15, MidpointDays: 30, Floor: 20}})
	assert.Equal(t, 20.0, e.FreshnessScore(1000))
}

func TestFreshnessScore_Monotonic(t *testing.T) {
	e := NewEngine(Config{})
	properties := gopter.NewProperties(nil)

	properties.Property("older leads never score higher", prop.ForAll(
		func(age, delta float64) bool {
			return e.FreshnessScore(age+delta) <= e.FreshnessScore(age)
		},
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
	))

	properties.Property("score stays within [floor, 100]", prop.ForAll(
		func(age float64) bool {
			s := e.FreshnessScore(age)
			return s >= 15 && s <= 100
		},
		gen.Float64Range(-100, 10000),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
