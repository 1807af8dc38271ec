package ports

import (
	"context"

	"tcr/internal/registry/models"
	id "tcr/pkg/domain"
)

//go:generate mockgen -source=arbitrator.go -destination=mocks/mocks.go -package=mocks

// DisputeRequest is what the registry hands the arbitrator when a request is
// challenged. Fee is the cost quoted for ExtraData and already collected from
// the challenger.
type DisputeRequest struct {
	Key          id.ItemKey
	Kind         models.RequestKind
	ExtraData    string
	MetaEvidence string
	// Evidence is the challenger's submission.
	Evidence string
	Fee      models.Amount
}

// Arbitrator is the registry's view of the external dispute resolver. The
// service depends on this interface; the in-process arbitrator and the HTTP
// client implement it.
type Arbitrator interface {
	// QuoteCost returns the current fee for raising a dispute with extraData.
	QuoteCost(ctx context.Context, extraData string) (models.Amount, error)

	// OpenDispute raises a dispute and returns the arbitrator's identifier for
	// it. Identifiers are unique for the arbitrator's lifetime.
	OpenDispute(ctx context.Context, req DisputeRequest) (id.DisputeID, error)
}

// RulingSink receives final rulings. The registry service implements it; an
// arbitrator delivers each ruling exactly once per dispute, but sinks must
// tolerate replays.
type RulingSink interface {
	OnRuling(ctx context.Context, disputeID id.DisputeID, ruling models.Ruling) error
}
