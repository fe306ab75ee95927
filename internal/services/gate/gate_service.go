package gate

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
)

// Action is the closed set of gated action kinds. Dispatch is by exhaustive
// switch so a new or misspelled kind cannot silently no-op.
type Action string

const (
	ActionPostJob       Action = "post_job"
	ActionApplyPaid     Action = "apply_paid"
	ActionAcceptJob     Action = "accept_job"
	ActionApprove       Action = "approve"
	ActionPay           Action = "pay"
	ActionReleaseEscrow Action = "release_escrow"
	ActionWithdrawFunds Action = "withdraw_funds"
)

// RequiredLevel returns the minimum verification level for an action. Unknown
// actions are an error, never an implicit allow.
func RequiredLevel(a Action) (models.VerificationLevel, error) {
	switch a {
	case ActionPostJob, ActionApplyPaid:
		return models.LevelIdentityVerified, nil
	case ActionAcceptJob, ActionPay, ActionReleaseEscrow:
		return models.LevelIdentityVerified, nil
	case ActionWithdrawFunds:
		return models.LevelApproved, nil
	case ActionApprove:
		return models.LevelUnverified, nil
	}
	return "", fmt.Errorf("gate: unknown action %q", a)
}

// Check is a pure, side-effect-free read: allow, or deny with the specific
// next remediation step.
func Check(user *models.User, a Action) error {
	required, err := RequiredLevel(a)
	if err != nil {
		return err
	}
	if user.VerificationLevel.AtLeast(required) {
		return nil
	}
	return &apperr.GateDenied{Action: string(a), Hint: nextStep(user.VerificationLevel, required)}
}

func nextStep(current, required models.VerificationLevel) apperr.Hint {
	if required == models.LevelApproved && current.AtLeast(models.LevelIdentityVerified) {
		return apperr.HintLinkBank
	}
	if current == models.LevelUnverified {
		return apperr.HintVerifyAge
	}
	return apperr.HintVerifyIdentity
}

// ProviderResult is the authenticated callback payload from the external
// identity provider: a verified boolean per attribute, never raw documents.
type ProviderResult struct {
	UserID           uuid.UUID
	AgeVerified      bool
	IdentityVerified bool
	BankLinked       bool
	PayoutAccountRef string
}

// TargetLevel maps verified attributes onto the ladder.
func (r ProviderResult) TargetLevel() models.VerificationLevel {
	switch {
	case r.BankLinked && r.IdentityVerified:
		return models.LevelApproved
	case r.IdentityVerified:
		return models.LevelIdentityVerified
	case r.AgeVerified:
		return models.LevelAgeVerified
	}
	return models.LevelUnverified
}

// UserStore is the persistence the promotion path needs.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	// PromoteLevel conditionally moves a user from one level to another,
	// failing with ConcurrencyConflict when the stored level changed.
	PromoteLevel(ctx context.Context, id uuid.UUID, from, to models.VerificationLevel, bankLinked bool, payoutRef string) error
}

// Service applies provider callbacks. The gate never self-promotes a level;
// this is the only write path and it is always audit-logged.
type Service struct {
	users UserStore
	audit audit.Recorder
}

func NewService(users UserStore, rec audit.Recorder) *Service {
	return &Service{users: users, audit: rec}
}

// ApplyProviderResult promotes the user to the level the provider attests.
// Promotion is monotonic: a callback carrying a level at or below the stored
// one is a no-op, never a downgrade.
func (s *Service) ApplyProviderResult(ctx context.Context, res ProviderResult) error {
	user, err := s.users.GetUser(ctx, res.UserID)
	if err != nil {
		return err
	}

	target := res.TargetLevel()
	if !target.Above(user.VerificationLevel) {
		return nil
	}

	if err := s.users.PromoteLevel(ctx, user.ID, user.VerificationLevel, target, res.BankLinked, res.PayoutAccountRef); err != nil {
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  user.ID,
		Action:   audit.ActionGatePromote,
		TargetID: user.ID.String(),
		Detail: map[string]any{
			"previous_level": string(user.VerificationLevel),
			"new_level":      string(target),
			"bank_linked":    res.BankLinked,
		},
	})
	return nil
}
