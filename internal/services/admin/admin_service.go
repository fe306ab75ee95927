package admin

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
	"github.com/juniorlance/juniorlance_be/internal/services/escrow"
)

// Store is the persistence the override service needs. ForceStatus writes
// the order status unconditionally: overrides bypass the transition table,
// including from Disputed.
type Store interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ForceStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus, updates map[string]any) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	DeactivateUser(ctx context.Context, id uuid.UUID) error
	GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error)
	CloseReport(ctx context.Context, id uuid.UUID, status models.ReportStatus, outcome string, adminID uuid.UUID) error
	ListReconcilePending(ctx context.Context) ([]models.EscrowTransaction, error)
	ListWithdrawReconcile(ctx context.Context) ([]models.Withdrawal, error)
	RecentMessages(ctx context.Context, userA, userB uuid.UUID, limit int) ([]models.Message, error)
}

// Engine is the escrow slice overrides drive. The engine itself still
// refuses terminal transactions, so a ForceRefund on an already-released
// escrow is rejected outright.
type Engine interface {
	Release(ctx context.Context, o *models.Order, freelancer *models.User) (*escrow.ReleaseResult, error)
	Refund(ctx context.Context, o *models.Order) (*escrow.RefundResult, error)
}

type Service struct {
	store  Store
	engine Engine
	audit  audit.Recorder
}

func NewService(store Store, engine Engine, rec audit.Recorder) *Service {
	return &Service{store: store, engine: engine, audit: rec}
}

// ForceRelease pays the freelancer out of a dispute, bypassing normal
// transition guards. Requires explicit confirmation and a reason; always
// audit-logged with the admin as actor.
func (s *Service) ForceRelease(ctx context.Context, adminID, orderID uuid.UUID, reason string, confirm bool) (*escrow.ReleaseResult, error) {
	if !confirm {
		return nil, apperr.Validationf("force release requires explicit confirmation")
	}
	if reason == "" {
		return nil, apperr.Validationf("force release requires a reason")
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	freelancer, err := s.store.GetUser(ctx, o.FreelancerID)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Release(ctx, o, freelancer)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.store.ForceStatus(ctx, o.ID, models.OrderStatusPaid, map[string]any{"paid_at": &now}); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  adminID,
		Action:   audit.ActionAdminForceRelease,
		TargetID: o.ID.String(),
		Detail: map[string]any{
			"reason":          reason,
			"previous_status": string(o.Status),
			"fee_amount":      res.FeeAmount,
			"net_amount":      res.NetAmount,
		},
	})
	return res, nil
}

// ForceRefund returns the full bid amount to the client and rejects the
// order. Rejected outright when the escrow is already released.
func (s *Service) ForceRefund(ctx context.Context, adminID, orderID uuid.UUID, reason string, confirm bool) (*escrow.RefundResult, error) {
	if !confirm {
		return nil, apperr.Validationf("force refund requires explicit confirmation")
	}
	if reason == "" {
		return nil, apperr.Validationf("force refund requires a reason")
	}

	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Refund(ctx, o)
	if err != nil {
		return nil, err
	}

	if err := s.store.ForceStatus(ctx, o.ID, models.OrderStatusRejected, nil); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  adminID,
		Action:   audit.ActionAdminForceRefund,
		TargetID: o.ID.String(),
		Detail: map[string]any{
			"reason":          reason,
			"previous_status": string(o.Status),
			"amount":          res.Amount,
		},
	})
	return res, nil
}

// BanUser freezes all of the user's pending gated actions and auto-resolves
// the dispute it was invoked from, if any.
func (s *Service) BanUser(ctx context.Context, adminID, userID uuid.UUID, reason string, fromReportID *uuid.UUID) error {
	if reason == "" {
		return apperr.Validationf("ban requires a reason")
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeactivateUser(ctx, userID); err != nil {
		return err
	}

	if fromReportID != nil {
		if err := s.store.CloseReport(ctx, *fromReportID, models.ReportStatusResolved,
			"user banned: "+reason, adminID); err != nil {
			return err
		}
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  adminID,
		Action:   audit.ActionAdminBanUser,
		TargetID: userID.String(),
		Detail:   map[string]any{"reason": reason},
	})
	return nil
}

// ResolveReport moves a dispute case to a terminal state. Resolved and
// dismissed cases are immutable afterwards.
func (s *Service) ResolveReport(ctx context.Context, adminID, reportID uuid.UUID, dismiss bool, outcome string) error {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	if report.Status != models.ReportStatusPending {
		return &apperr.TransitionError{From: string(report.Status), To: string(models.ReportStatusResolved)}
	}

	status := models.ReportStatusResolved
	if dismiss {
		status = models.ReportStatusDismissed
	}
	if err := s.store.CloseReport(ctx, reportID, status, outcome, adminID); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  adminID,
		Action:   audit.ActionAdminResolveReport,
		TargetID: reportID.String(),
		Detail:   map[string]any{"status": string(status), "outcome": outcome},
	})
	return nil
}

// ReconciliationReport is everything parked for manual review after gateway
// failures with an unknown outcome.
type ReconciliationReport struct {
	Escrows     []models.EscrowTransaction `json:"escrows"`
	Withdrawals []models.Withdrawal        `json:"withdrawals"`
}

// Reconciliation lists escrows and withdrawals degraded to manual review.
func (s *Service) Reconciliation(ctx context.Context) (*ReconciliationReport, error) {
	escrows, err := s.store.ListReconcilePending(ctx)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.store.ListWithdrawReconcile(ctx)
	if err != nil {
		return nil, err
	}
	return &ReconciliationReport{Escrows: escrows, Withdrawals: withdrawals}, nil
}

// Evidence returns the recent messages between the order's two parties for
// dispute review. Read-only; chat transport is external.
func (s *Service) Evidence(ctx context.Context, orderID uuid.UUID, limit int) (*models.Order, []models.Message, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	msgs, err := s.store.RecentMessages(ctx, o.ClientID, o.FreelancerID, limit)
	if err != nil {
		return nil, nil, err
	}
	return o, msgs, nil
}
