package identity

import (
	"regexp"
	"strings"

	"github.com/leadgrid/lead-engine/internal/model"
)

// emailPattern is a permissive sanity check; full deliverability is decided
// by the external verification subsystem.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// usStates holds the two-letter USPS codes accepted in the state field.
var usStates = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true, "PR": true,
}

// Validator performs pre-classification field validation on raw records.
// A non-empty Industries set restricts the industry field to the platform
// taxonomy; an empty set accepts any non-blank value.
type Validator struct {
	Industries map[string]bool
}

// NewValidator builds a validator with an optional industry taxonomy.
func NewValidator(industries []string) *Validator {
	v := &Validator{}
	if len(industries) > 0 {
		v.Industries = make(map[string]bool, len(industries))
		for _, ind := range industries {
			v.Industries[Fold(ind)] = true
		}
	}
	return v
}

// Validate returns a rejection for the first failing field, or nil when the
// record is acceptable. Validation outcomes are data, not errors.
func (v *Validator) Validate(rec model.RawContactRecord) *model.RejectionRecord {
	if strings.TrimSpace(rec.Email) == "" {
		r := model.NewRejection(rec.Row, model.ReasonMissingRequiredField, "email", "", "email is required")
		return &r
	}
	if !emailPattern.MatchString(strings.TrimSpace(rec.Email)) {
		r := model.NewRejection(rec.Row, model.ReasonInvalidEmail, "email", rec.Email, "email is not a valid address")
		return &r
	}
	if rec.WorkspaceID == "" {
		r := model.NewRejection(rec.Row, model.ReasonNoMatchingWorkspace, "workspace_id", "", "uploader workspace is required")
		return &r
	}
	if st := strings.ToUpper(strings.TrimSpace(rec.State)); st != "" && !usStates[st] {
		r := model.NewRejection(rec.Row, model.ReasonInvalidState, "state", rec.State, "state is not a recognized two-letter code")
		return &r
	}
	if ind := strings.TrimSpace(rec.Industry); ind != "" && v.Industries != nil && !v.Industries[Fold(ind)] {
		r := model.NewRejection(rec.Row, model.ReasonInvalidIndustry, "industry", rec.Industry, "industry is not in the platform taxonomy")
		return &r
	}
	return nil
}
