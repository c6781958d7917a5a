package routing

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/leadgrid/lead-engine/internal/identity"
	"github.com/leadgrid/lead-engine/internal/model"
)

// ErrLeadNotFound is returned when an acquisition names an unknown lead.
var ErrLeadNotFound = eris.New("routing: lead not found")

// ErrSameTenantPurchase is returned when a subscriber tries to acquire a
// lead that their own workspace supplied.
var ErrSameTenantPurchase = eris.New("routing: lead was sourced by the buyer's own workspace")

// AcquireStore is the persistence surface marketplace acquisition needs.
type AcquireStore interface {
	GetLead(ctx context.Context, id string) (*model.CanonicalLead, error)
	CreateAssignment(ctx context.Context, a *model.Assignment) (bool, error)
}

// AcquireLead records a direct marketplace purchase of a lead by a
// subscriber, bypassing targeting profiles and caps. The same-tenant guard
// blocks a workspace from buying back leads it uploaded. Re-acquiring an
// already-held lead returns created=false with no error.
func AcquireLead(ctx context.Context, store AcquireStore, leadID, subscriberID, workspaceID string) (*model.Assignment, bool, error) {
	lead, err := store.GetLead(ctx, leadID)
	if err != nil {
		return nil, false, eris.Wrap(err, "routing: acquire lead lookup")
	}
	if lead == nil {
		return nil, false, ErrLeadNotFound
	}
	if !identity.CanAcquire(lead, workspaceID) {
		return nil, false, ErrSameTenantPurchase
	}

	a := &model.Assignment{
		LeadID:       lead.ID,
		SubscriberID: subscriberID,
		WorkspaceID:  workspaceID,
		Source:       model.SourceMarketplace,
	}
	created, err := store.CreateAssignment(ctx, a)
	if err != nil {
		return nil, false, eris.Wrap(err, "routing: acquire lead")
	}
	if !created {
		zap.L().Debug("routing: subscriber already holds lead",
			zap.String("lead_id", leadID),
			zap.String("subscriber_id", subscriberID),
		)
	}
	return a, created, nil
}
