package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
)

func userAt(level models.VerificationLevel) *models.User {
	return &models.User{ID: uuid.New(), VerificationLevel: level}
}

func TestCheckDeniesBelowRequiredLevel(t *testing.T) {
	cases := []struct {
		level  models.VerificationLevel
		action Action
		hint   apperr.Hint
	}{
		{models.LevelUnverified, ActionApplyPaid, apperr.HintVerifyAge},
		{models.LevelAgeVerified, ActionApplyPaid, apperr.HintVerifyIdentity},
		{models.LevelAgeVerified, ActionPay, apperr.HintVerifyIdentity},
		{models.LevelUnverified, ActionPostJob, apperr.HintVerifyAge},
		{models.LevelIdentityVerified, ActionWithdrawFunds, apperr.HintLinkBank},
	}
	for _, tc := range cases {
		err := Check(userAt(tc.level), tc.action)
		var gd *apperr.GateDenied
		if !errors.As(err, &gd) {
			t.Errorf("Check(%s, %s): want GateDenied, got %v", tc.level, tc.action, err)
			continue
		}
		if gd.Hint != tc.hint {
			t.Errorf("Check(%s, %s): want hint %s, got %s", tc.level, tc.action, tc.hint, gd.Hint)
		}
	}
}

func TestCheckAllowsAtOrAboveLevel(t *testing.T) {
	cases := []struct {
		level  models.VerificationLevel
		action Action
	}{
		{models.LevelIdentityVerified, ActionApplyPaid},
		{models.LevelIdentityVerified, ActionPay},
		{models.LevelIdentityVerified, ActionReleaseEscrow},
		{models.LevelApproved, ActionWithdrawFunds},
		{models.LevelApproved, ActionApplyPaid},
		{models.LevelUnverified, ActionApprove},
	}
	for _, tc := range cases {
		if err := Check(userAt(tc.level), tc.action); err != nil {
			t.Errorf("Check(%s, %s): unexpected %v", tc.level, tc.action, err)
		}
	}
}

func TestCheckUnknownActionFailsLoud(t *testing.T) {
	if err := Check(userAt(models.LevelApproved), Action("frobnicate")); err == nil {
		t.Fatal("unknown action must error, not silently pass")
	}
}

type fakeUserStore struct {
	users    map[uuid.UUID]*models.User
	promoted []models.VerificationLevel
}

func (s *fakeUserStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, &apperr.NotFound{Entity: "user"}
	}
	return u, nil
}

func (s *fakeUserStore) PromoteLevel(ctx context.Context, id uuid.UUID, from, to models.VerificationLevel, bankLinked bool, payoutRef string) error {
	u := s.users[id]
	if u.VerificationLevel != from {
		return &apperr.ConcurrencyConflict{Entity: "verification level"}
	}
	u.VerificationLevel = to
	u.BankLinked = bankLinked
	u.PayoutAccountRef = payoutRef
	s.promoted = append(s.promoted, to)
	return nil
}

type fakeRecorder struct {
	entries []audit.Entry
}

func (r *fakeRecorder) Record(ctx context.Context, e audit.Entry) {
	r.entries = append(r.entries, e)
}

func TestApplyProviderResultPromotes(t *testing.T) {
	u := userAt(models.LevelAgeVerified)
	store := &fakeUserStore{users: map[uuid.UUID]*models.User{u.ID: u}}
	rec := &fakeRecorder{}
	svc := NewService(store, rec)

	err := svc.ApplyProviderResult(context.Background(), ProviderResult{
		UserID:           u.ID,
		AgeVerified:      true,
		IdentityVerified: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.VerificationLevel != models.LevelIdentityVerified {
		t.Errorf("want identity_verified, got %s", u.VerificationLevel)
	}
	if len(rec.entries) == 0 || rec.entries[0].Action != audit.ActionGatePromote {
		t.Error("promotion must be audit-logged")
	}
}

func TestApplyProviderResultIsMonotonic(t *testing.T) {
	u := userAt(models.LevelIdentityVerified)
	store := &fakeUserStore{users: map[uuid.UUID]*models.User{u.ID: u}}
	svc := NewService(store, &fakeRecorder{})

	// A stale callback carrying only age verification never demotes.
	err := svc.ApplyProviderResult(context.Background(), ProviderResult{
		UserID:      u.ID,
		AgeVerified: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.VerificationLevel != models.LevelIdentityVerified {
		t.Errorf("level must never go down, got %s", u.VerificationLevel)
	}
	if len(store.promoted) != 0 {
		t.Error("no write expected for a non-promotion")
	}
}

func TestApplyProviderResultBankLink(t *testing.T) {
	u := userAt(models.LevelIdentityVerified)
	store := &fakeUserStore{users: map[uuid.UUID]*models.User{u.ID: u}}
	svc := NewService(store, &fakeRecorder{})

	err := svc.ApplyProviderResult(context.Background(), ProviderResult{
		UserID:           u.ID,
		AgeVerified:      true,
		IdentityVerified: true,
		BankLinked:       true,
		PayoutAccountRef: "acct-7",
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.VerificationLevel != models.LevelApproved {
		t.Errorf("want approved, got %s", u.VerificationLevel)
	}
	if !u.BankLinked || u.PayoutAccountRef != "acct-7" {
		t.Error("bank link must be stored with the promotion")
	}
}
