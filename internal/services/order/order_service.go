package order

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
	"github.com/juniorlance/juniorlance_be/internal/services/escrow"
	"github.com/juniorlance/juniorlance_be/internal/services/gate"
	"github.com/juniorlance/juniorlance_be/internal/services/interlock"
)

// Store is the order persistence the service needs. CASStatus is the
// optimistic-concurrency write: it fails with ConcurrencyConflict when the
// persisted status changed since the read, and the caller must refetch
// before resubmitting; it is never retried blindly.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	CreateOrder(ctx context.Context, o *models.Order) error
	CASStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, updates map[string]any) error
	ListReviewExpired(ctx context.Context, before time.Time) ([]uuid.UUID, error)
	SetRating(ctx context.Context, id uuid.UUID, rating int, comment string) error
}

// UserGetter resolves actors.
type UserGetter interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// Engine is the slice of the escrow payment engine invoked by legal
// transitions.
type Engine interface {
	Captured(ctx context.Context, orderID uuid.UUID) (bool, error)
	Release(ctx context.Context, o *models.Order, freelancer *models.User) (*escrow.ReleaseResult, error)
	Refund(ctx context.Context, o *models.Order) (*escrow.RefundResult, error)
	MarkForReconciliation(ctx context.Context, o *models.Order, reason string)
}

// Notifier receives fire-and-forget status events; the core never waits on
// delivery.
type Notifier interface {
	OrderStatusChanged(o *models.Order, previous models.OrderStatus)
}

type Service struct {
	store  Store
	users  UserGetter
	engine Engine
	audit  audit.Recorder
	notify Notifier
}

func NewService(store Store, users UserGetter, engine Engine, rec audit.Recorder, notify Notifier) *Service {
	return &Service{store: store, users: users, engine: engine, audit: rec, notify: notify}
}

// CreateParams is a freelancer's proposal against a posted job.
type CreateParams struct {
	FreelancerID  uuid.UUID
	JobID         uuid.UUID
	BidAmount     int64
	Title         string
	Description   string
	RevisionCount int
}

// Create opens a pending order. apply_paid is gated on identity_verified.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Order, error) {
	if p.BidAmount <= 0 {
		return nil, apperr.Validationf("bid amount must be positive")
	}
	if p.Title == "" {
		return nil, apperr.Validationf("title is required")
	}

	freelancer, err := s.actor(ctx, p.FreelancerID)
	if err != nil {
		return nil, err
	}
	if err := gate.Check(freelancer, gate.ActionApplyPaid); err != nil {
		return nil, err
	}
	if err := interlock.Check(freelancer, gate.ActionApplyPaid); err != nil {
		return nil, err
	}

	job, err := s.store.GetJob(ctx, p.JobID)
	if err != nil {
		return nil, err
	}

	o := &models.Order{
		JobID:         job.ID,
		ClientID:      job.ClientID,
		FreelancerID:  freelancer.ID,
		BidAmount:     p.BidAmount,
		Title:         p.Title,
		Description:   p.Description,
		RevisionCount: p.RevisionCount,
		Status:        models.OrderStatusPending,
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  freelancer.ID,
		Action:   audit.ActionOrderTransition,
		TargetID: o.ID.String(),
		Detail:   map[string]any{"next_status": string(models.OrderStatusPending), "bid_amount": p.BidAmount},
	})
	return o, nil
}

// TransitionOpts carries the extra writes a few edges make.
type TransitionOpts struct {
	DeliveryLink  string
	DeliveryFiles []byte // JSON array of opaque storage paths
	Reason        string
}

// Transition applies one edge of the status machine: gate, interlock,
// legal-transition validation against the persisted status, conditional
// write, fund movement, audit, notification. Release is not driven through
// here; see Release.
func (s *Service) Transition(ctx context.Context, actorID, orderID uuid.UUID, to models.OrderStatus, opts TransitionOpts) (*models.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	r, err := ruleFor(o.Status, to)
	if err != nil {
		return nil, err
	}

	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if !r.allowed(o, actorID.String()) {
		return nil, apperr.Validationf("actor may not drive %s -> %s on this order", o.Status, to)
	}
	if r.gated != "" {
		if err := gate.Check(actor, r.gated); err != nil {
			return nil, err
		}
		if err := interlock.Check(actor, r.gated); err != nil {
			return nil, err
		}
	}

	if r.fund == fundCaptureRequired {
		captured, err := s.engine.Captured(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if !captured {
			return nil, apperr.Validationf("escrow not captured for order %s", o.OrderCode)
		}
	}

	updates := map[string]any{}
	if r.stamp != "" {
		now := time.Now()
		updates[r.stamp] = &now
	}
	if to == models.OrderStatusSubmitted {
		if opts.DeliveryLink != "" {
			updates["delivery_link"] = opts.DeliveryLink
		}
		if len(opts.DeliveryFiles) > 0 {
			updates["delivery_files"] = opts.DeliveryFiles
		}
	}
	if to == models.OrderStatusRevisionRequested {
		if o.UsedRevisionCount >= o.RevisionCount {
			return nil, apperr.Validationf("revision limit reached for order %s", o.OrderCode)
		}
		updates["used_revision_count"] = o.UsedRevisionCount + 1
	}

	previous := o.Status
	if err := s.store.CASStatus(ctx, o.ID, previous, to, updates); err != nil {
		return nil, err
	}

	if r.fund == fundRefund {
		if captured, cerr := s.engine.Captured(ctx, o.ID); cerr == nil && captured {
			if _, rerr := s.engine.Refund(ctx, o); rerr != nil {
				s.engine.MarkForReconciliation(ctx, o, "refund on reject failed: "+rerr.Error())
				s.audit.Record(ctx, audit.Entry{
					ActorID:  actorID,
					Action:   audit.ActionEscrowError,
					TargetID: o.ID.String(),
					Detail:   map[string]any{"reason": rerr.Error()},
				})
				return nil, rerr
			}
		}
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  actorID,
		Action:   audit.ActionOrderTransition,
		TargetID: o.ID.String(),
		Detail:   map[string]any{"previous_status": string(previous), "next_status": string(to), "reason": opts.Reason},
	})

	updated, err := s.store.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.notify.OrderStatusChanged(updated, previous)
	return updated, nil
}

// Release is the client-driven Completed -> Processing -> Paid flow. The
// payout lands exactly once; a replay returns the first result.
func (s *Service) Release(ctx context.Context, actorID, orderID uuid.UUID) (*models.Order, *escrow.ReleaseResult, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if o.ClientID != actorID {
		return nil, nil, apperr.Validationf("only the client may release escrow")
	}

	actor, err := s.actor(ctx, actorID)
	if err != nil {
		return nil, nil, err
	}
	if err := gate.Check(actor, gate.ActionReleaseEscrow); err != nil {
		return nil, nil, err
	}
	if err := interlock.Check(actor, gate.ActionReleaseEscrow); err != nil {
		return nil, nil, err
	}

	return s.performRelease(ctx, o, false)
}

// performRelease runs the two-step payout. The Completed -> Processing CAS is
// the single-winner claim; the Processing -> Paid CAS lands only after the
// gateway confirms the payout. A gateway failure leaves the order in
// Processing with the escrow marked reconcile_pending.
func (s *Service) performRelease(ctx context.Context, o *models.Order, auto bool) (*models.Order, *escrow.ReleaseResult, error) {
	// A release on a disputed or unfinished order is an illegal edge, not a
	// stale read; only a race on a genuinely Completed order is a conflict.
	if o.Status != models.OrderStatusCompleted {
		return nil, nil, &apperr.TransitionError{From: string(o.Status), To: string(models.OrderStatusProcessing)}
	}

	freelancer, err := s.users.GetUser(ctx, o.FreelancerID)
	if err != nil {
		return nil, nil, err
	}
	// Fail closed before any state moves.
	if !freelancer.BankLinked || freelancer.PayoutAccountRef == "" {
		return nil, nil, escrow.ErrBankNotLinked
	}

	if err := s.store.CASStatus(ctx, o.ID, models.OrderStatusCompleted, models.OrderStatusProcessing, nil); err != nil {
		return nil, nil, err
	}

	res, err := s.engine.Release(ctx, o, freelancer)
	if err != nil {
		// Escrow engine already degraded gateway exhaustion to
		// reconcile_pending; the order stays in Processing for admin review.
		s.audit.Record(ctx, audit.Entry{
			ActorID:  o.ClientID,
			Action:   audit.ActionEscrowError,
			TargetID: o.ID.String(),
			Detail:   map[string]any{"reason": err.Error(), "auto": auto},
		})
		return nil, nil, err
	}

	now := time.Now()
	if err := s.store.CASStatus(ctx, o.ID, models.OrderStatusProcessing, models.OrderStatusPaid,
		map[string]any{"paid_at": &now}); err != nil {
		return nil, nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  o.ClientID,
		Action:   audit.ActionOrderTransition,
		TargetID: o.ID.String(),
		Detail: map[string]any{
			"previous_status": string(models.OrderStatusCompleted),
			"next_status":     string(models.OrderStatusPaid),
			"fee_amount":      res.FeeAmount,
			"net_amount":      res.NetAmount,
			"auto":            auto,
		},
	})

	updated, err := s.store.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, res, err
	}
	s.notify.OrderStatusChanged(updated, models.OrderStatusCompleted)
	return updated, res, nil
}

// Rate attaches the optional post-completion rating. Client-only, paid
// orders only, once.
func (s *Service) Rate(ctx context.Context, actorID, orderID uuid.UUID, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return apperr.Validationf("rating must be between 1 and 5")
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if o.ClientID != actorID {
		return apperr.Validationf("only the client may rate the order")
	}
	if o.Status != models.OrderStatusPaid {
		return apperr.Validationf("only paid orders can be rated")
	}
	if o.Rating != nil {
		return apperr.Validationf("order already rated")
	}
	return s.store.SetRating(ctx, o.ID, rating, comment)
}

func (s *Service) actor(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, apperr.Validationf("account is suspended")
	}
	return u, nil
}
