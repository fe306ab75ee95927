package interlock

import (
	"context"

	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
	"github.com/juniorlance/juniorlance_be/internal/services/gate"
)

// Lock sources. A policy trip is a fail-safe: it cannot be cleared from the
// same session, only by explicit owner action (password re-entry) or admin
// review.
const (
	SourceOwner  = "owner"
	SourcePolicy = "policy"
	SourceAdmin  = "admin"
)

// Blocks reports whether guardian mode refuses the action. The blocked set is
// fixed: approve, pay, release_escrow.
func Blocks(a gate.Action) bool {
	switch a {
	case gate.ActionApprove, gate.ActionPay, gate.ActionReleaseEscrow:
		return true
	}
	return false
}

// Check is a pure read against the server-authoritative flag. Client state
// claiming the lock is off is never trusted.
func Check(user *models.User, a gate.Action) error {
	if user.GuardianLocked && Blocks(a) {
		return &apperr.InterlockBlocked{UserID: user.ID.String()}
	}
	return nil
}

// UserStore is the persistence the toggle path needs.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetGuardianLock(ctx context.Context, id uuid.UUID, locked bool, source string) error
}

type Service struct {
	users UserStore
	audit audit.Recorder
}

func NewService(users UserStore, rec audit.Recorder) *Service {
	return &Service{users: users, audit: rec}
}

// SetByOwner engages guardian mode at the account owner's request.
func (s *Service) SetByOwner(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.SetGuardianLock(ctx, userID, true, SourceOwner); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:  userID,
		Action:   audit.ActionInterlockSet,
		TargetID: userID.String(),
		Detail:   map[string]any{"source": SourceOwner},
	})
	return nil
}

// ClearByOwner lifts the lock. The handler requires password re-entry before
// calling this, so a policy trip cannot be undone by the session that caused
// it.
func (s *Service) ClearByOwner(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.SetGuardianLock(ctx, userID, false, SourceOwner); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:  userID,
		Action:   audit.ActionInterlockClear,
		TargetID: userID.String(),
		Detail:   map[string]any{"source": SourceOwner},
	})
	return nil
}

// TripForPolicy engages the lock when a disallowed pattern is detected, e.g.
// a minor attempting to route around a guardian requirement.
func (s *Service) TripForPolicy(ctx context.Context, userID uuid.UUID, reason string) error {
	if err := s.users.SetGuardianLock(ctx, userID, true, SourcePolicy); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:  userID,
		Action:   audit.ActionInterlockTrip,
		TargetID: userID.String(),
		Detail:   map[string]any{"source": SourcePolicy, "reason": reason},
	})
	return nil
}
