package model

import (
	"time"
)

// VerificationStatus is the email deliverability status written by the
// external verification subsystem.
type VerificationStatus string

const (
	VerificationValid    VerificationStatus = "valid"
	VerificationCatchAll VerificationStatus = "catch_all"
	VerificationInvalid  VerificationStatus = "invalid"
	VerificationUnknown  VerificationStatus = "unknown"
	VerificationRisky    VerificationStatus = "risky"
)

// RawContactRecord is a single uploaded contact before identity resolution.
// It is transient: it either becomes a CanonicalLead or a RejectionRecord.
type RawContactRecord struct {
	Row           int    `json:"row"` // 1-based position in the uploaded batch
	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Title         string `json:"title,omitempty"`
	Seniority     string `json:"seniority,omitempty"` // explicit override; inferred from title when empty
	CompanyName   string `json:"company_name,omitempty"`
	CompanyDomain string `json:"company_domain,omitempty"`
	Industry      string `json:"industry,omitempty"`
	EmployeeCount int    `json:"employee_count,omitempty"`
	SizeBracket   string `json:"size_bracket,omitempty"` // e.g. "51-200"; used when employee_count is absent
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	LinkedInURL   string `json:"linkedin_url,omitempty"`
	PartnerID     string `json:"partner_id"`
	WorkspaceID   string `json:"workspace_id"`
}

// CanonicalLead is the stored, deduplicated lead entity. Exactly one row
// exists per fingerprint; the store enforces this with a unique constraint.
type CanonicalLead struct {
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`

	// OwningPartnerID is nil for platform-owned (house inventory) leads.
	OwningPartnerID *string `json:"owning_partner_id,omitempty"`
	// SourceWorkspaceID is the workspace of the uploading partner. Nil for
	// platform inventory. Used by the same-tenant acquisition guard.
	SourceWorkspaceID *string `json:"source_workspace_id,omitempty"`

	Email         string `json:"email"`
	Phone         string `json:"phone,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Title         string `json:"title,omitempty"`
	Seniority     string `json:"seniority,omitempty"`
	CompanyName   string `json:"company_name,omitempty"`
	CompanyDomain string `json:"company_domain,omitempty"`
	Industry      string `json:"industry,omitempty"`
	EmployeeCount int    `json:"employee_count,omitempty"`
	SizeBracket   string `json:"size_bracket,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	LinkedInURL   string `json:"linkedin_url,omitempty"`

	VerificationStatus VerificationStatus `json:"verification_status"`

	IntentScore    int     `json:"intent_score"`
	FreshnessScore float64 `json:"freshness_score"`
	Price          float64 `json:"price"`

	CreatedAt time.Time `json:"created_at"`
}

// AgeDays returns the lead's age in days at the given instant, never negative.
func (l *CanonicalLead) AgeDays(now time.Time) float64 {
	days := now.Sub(l.CreatedAt).Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

// PlatformOwned reports whether the lead is house inventory with no
// attributed partner.
func (l *CanonicalLead) PlatformOwned() bool {
	return l.OwningPartnerID == nil || *l.OwningPartnerID == ""
}
