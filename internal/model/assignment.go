package model

import "time"

// AssignmentSource identifies how a lead reached a subscriber.
type AssignmentSource string

const (
	SourceRouting     AssignmentSource = "routing"
	SourceMarketplace AssignmentSource = "marketplace"
)

// AssignmentStatus tracks the subscriber-facing lifecycle of an assignment.
type AssignmentStatus string

const (
	AssignmentNew AssignmentStatus = "new"
)

// Assignment records a lead delivered to a subscriber. The
// (lead_id, subscriber_id) pair is unique in the store; inserting a
// duplicate is treated as a no-op, which makes routing runs re-runnable.
type Assignment struct {
	ID              string           `json:"id"`
	LeadID          string           `json:"lead_id"`
	SubscriberID    string           `json:"subscriber_id"`
	WorkspaceID     string           `json:"workspace_id"`
	MatchedIndustry string           `json:"matched_industry,omitempty"`
	MatchedGeo      string           `json:"matched_geo,omitempty"`
	Source          AssignmentSource `json:"source"`
	Status          AssignmentStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
}

// NotificationRequest is a best-effort delivery request handed to the
// dispatcher after a routing run. It carries no delivery guarantee.
type NotificationRequest struct {
	LeadID       string  `json:"lead_id"`
	SubscriberID string  `json:"subscriber_id"`
	WorkspaceID  string  `json:"workspace_id"`
	LeadEmail    string  `json:"lead_email,omitempty"`
	CompanyName  string  `json:"company_name,omitempty"`
	Price        float64 `json:"price,omitempty"`
}
