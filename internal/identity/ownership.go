package identity

import "github.com/leadgrid/lead-engine/internal/model"

// CanAcquire decides whether a subscriber in buyerWorkspaceID may acquire
// the lead. Platform-owned leads are always acquirable. A partner-owned lead
// is blocked when its source workspace equals the buyer's workspace — a
// subscriber must not buy back inventory their own tenant supplied.
func CanAcquire(lead *model.CanonicalLead, buyerWorkspaceID string) bool {
	if lead.PlatformOwned() {
		return true
	}
	if lead.SourceWorkspaceID != nil && *lead.SourceWorkspaceID == buyerWorkspaceID {
		return false
	}
	return true
}
