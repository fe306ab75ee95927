package order

import (
	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/gate"
)

// party identifies which side of the order may drive a transition.
type party int

const (
	partyClient party = iota
	partyFreelancer
	partyEither
)

type fundAction int

const (
	fundNone fundAction = iota
	fundCaptureRequired // transition legal only once escrow is captured
	fundRefund          // transition returns the full hold to the client
)

// rule is one edge of the status machine.
type rule struct {
	who   party
	gated gate.Action // empty = not gated
	fund  fundAction
	stamp string // stage timestamp column set by this transition
}

// transitions is the closed legal-transition table. Release is not an edge
// here: it is the two-step Completed -> Processing -> Paid flow owned by
// Service.performRelease. Disputed is reachable from any non-terminal state
// and is handled by ruleFor.
var transitions = map[models.OrderStatus]map[models.OrderStatus]rule{
	models.OrderStatusPending: {
		models.OrderStatusAccepted: {who: partyClient, gated: gate.ActionAcceptJob, fund: fundCaptureRequired, stamp: "started_at"},
		// The client may fund the hold before accepting, so rejection must
		// return it. The refund is skipped when nothing was captured.
		models.OrderStatusRejected: {who: partyClient, fund: fundRefund},
	},
	models.OrderStatusAccepted: {
		models.OrderStatusSubmitted: {who: partyFreelancer, stamp: "submitted_at"},
		models.OrderStatusRejected:  {who: partyClient, fund: fundRefund},
	},
	models.OrderStatusSubmitted: {
		models.OrderStatusCompleted:         {who: partyClient, gated: gate.ActionApprove, stamp: "completed_at"},
		models.OrderStatusRevisionRequested: {who: partyClient},
		models.OrderStatusRejected:          {who: partyClient, fund: fundRefund},
	},
	models.OrderStatusRevisionRequested: {
		models.OrderStatusSubmitted: {who: partyFreelancer, stamp: "submitted_at"},
	},
}

// ruleFor validates an edge against the table. Illegal edges reject and
// leave state unchanged.
func ruleFor(from, to models.OrderStatus) (rule, error) {
	if !to.Valid() {
		return rule{}, apperr.Validationf("unknown status %q", to)
	}
	if to == models.OrderStatusDisputed {
		if from.Terminal() || from == models.OrderStatusDisputed {
			return rule{}, &apperr.TransitionError{From: string(from), To: string(to)}
		}
		return rule{who: partyEither}, nil
	}
	r, ok := transitions[from][to]
	if !ok {
		return rule{}, &apperr.TransitionError{From: string(from), To: string(to)}
	}
	return r, nil
}

// allowed reports whether actor may drive this edge.
func (r rule) allowed(o *models.Order, actorID string) bool {
	isClient := o.ClientID.String() == actorID
	isFreelancer := o.FreelancerID.String() == actorID
	switch r.who {
	case partyClient:
		return isClient
	case partyFreelancer:
		return isFreelancer
	case partyEither:
		return isClient || isFreelancer
	}
	return false
}
