package model

// ReasonCode is the closed enumeration of rejection reasons. Dashboards and
// the export format depend on these exact values.
type ReasonCode string

const (
	ReasonInvalidEmail          ReasonCode = "INVALID_EMAIL"
	ReasonInvalidState          ReasonCode = "INVALID_STATE"
	ReasonInvalidIndustry       ReasonCode = "INVALID_INDUSTRY"
	ReasonMissingRequiredField  ReasonCode = "MISSING_REQUIRED_FIELD"
	ReasonDuplicateSamePartner  ReasonCode = "DUPLICATE_SAME_PARTNER"
	ReasonDuplicateCrossPartner ReasonCode = "DUPLICATE_CROSS_PARTNER"
	ReasonPlatformOwnedLead     ReasonCode = "PLATFORM_OWNED_LEAD"
	ReasonNoMatchingWorkspace   ReasonCode = "NO_MATCHING_WORKSPACE"
	ReasonValidationError       ReasonCode = "VALIDATION_ERROR"
	ReasonUnknownError          ReasonCode = "UNKNOWN_ERROR"
)

// RejectionRecord explains why a raw record did not become a CanonicalLead
// (or, for same-owner duplicates, why no new lead was created). Collected per
// batch and exportable as a flat table.
type RejectionRecord struct {
	Row     int        `json:"row"`
	Reason  ReasonCode `json:"reason"`
	Field   string     `json:"field,omitempty"`
	Value   string     `json:"value,omitempty"`
	Message string     `json:"message"`
}

// NewRejection builds a rejection for one offending field of a raw record.
func NewRejection(row int, reason ReasonCode, field, value, message string) RejectionRecord {
	return RejectionRecord{Row: row, Reason: reason, Field: field, Value: value, Message: message}
}
