package model

import "time"

// TargetingProfile is a subscriber's declared match criteria plus consumption
// caps. One profile exists per (subscriber, workspace) pair. Period counters
// are reset by an external scheduler; during a routing run they are mutated
// only through the matcher's in-memory tracker and flushed once at the end.
type TargetingProfile struct {
	ID           string `json:"id"`
	SubscriberID string `json:"subscriber_id"`
	WorkspaceID  string `json:"workspace_id"`

	Industries  []string `json:"industries,omitempty"`
	States      []string `json:"states,omitempty"`
	Cities      []string `json:"cities,omitempty"`
	PostalCodes []string `json:"postal_codes,omitempty"`

	// Caps; zero means uncapped.
	DailyCap   int `json:"daily_cap"`
	WeeklyCap  int `json:"weekly_cap"`
	MonthlyCap int `json:"monthly_cap"`

	// Current period counters.
	DailyCount   int `json:"daily_count"`
	WeeklyCount  int `json:"weekly_count"`
	MonthlyCount int `json:"monthly_count"`

	Notify bool `json:"notify"`
	Active bool `json:"active"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasGeoFilter reports whether any geography criteria are declared.
func (p *TargetingProfile) HasGeoFilter() bool {
	return len(p.States) > 0 || len(p.Cities) > 0 || len(p.PostalCodes) > 0
}

// HasIndustryFilter reports whether an industry allow-list is declared.
func (p *TargetingProfile) HasIndustryFilter() bool {
	return len(p.Industries) > 0
}

// CapCounters is a counter snapshot flushed back to the store for one
// subscriber at the end of a routing run.
type CapCounters struct {
	SubscriberID string `json:"subscriber_id"`
	WorkspaceID  string `json:"workspace_id"`
	DailyCount   int    `json:"daily_count"`
	WeeklyCount  int    `json:"weekly_count"`
	MonthlyCount int    `json:"monthly_count"`
}
