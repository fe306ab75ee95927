package interlock

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
	"github.com/juniorlance/juniorlance_be/internal/services/gate"
)

func TestBlocksFixedSet(t *testing.T) {
	for _, a := range []gate.Action{gate.ActionApprove, gate.ActionPay, gate.ActionReleaseEscrow} {
		if !Blocks(a) {
			t.Errorf("guardian mode must block %s", a)
		}
	}
	for _, a := range []gate.Action{gate.ActionPostJob, gate.ActionApplyPaid, gate.ActionAcceptJob, gate.ActionWithdrawFunds} {
		if Blocks(a) {
			t.Errorf("guardian mode must not block %s", a)
		}
	}
}

func TestCheckLockedUser(t *testing.T) {
	locked := &models.User{ID: uuid.New(), GuardianLocked: true}

	err := Check(locked, gate.ActionPay)
	var ib *apperr.InterlockBlocked
	if !errors.As(err, &ib) {
		t.Fatalf("want InterlockBlocked, got %v", err)
	}

	// Non-financial actions pass even while locked.
	if err := Check(locked, gate.ActionApplyPaid); err != nil {
		t.Errorf("apply_paid should pass under lock, got %v", err)
	}

	unlocked := &models.User{ID: uuid.New()}
	if err := Check(unlocked, gate.ActionPay); err != nil {
		t.Errorf("unlocked user should pass, got %v", err)
	}
}

type fakeUserStore struct {
	users   map[uuid.UUID]*models.User
	sources []string
}

func (s *fakeUserStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, &apperr.NotFound{Entity: "user"}
	}
	return u, nil
}

func (s *fakeUserStore) SetGuardianLock(ctx context.Context, id uuid.UUID, locked bool, source string) error {
	u, ok := s.users[id]
	if !ok {
		return &apperr.NotFound{Entity: "user"}
	}
	u.GuardianLocked = locked
	u.GuardianLockSrc = source
	s.sources = append(s.sources, source)
	return nil
}

type fakeRecorder struct {
	actions []string
}

func (r *fakeRecorder) Record(ctx context.Context, e audit.Entry) {
	r.actions = append(r.actions, e.Action)
}

func TestToggleIsAudited(t *testing.T) {
	u := &models.User{ID: uuid.New()}
	store := &fakeUserStore{users: map[uuid.UUID]*models.User{u.ID: u}}
	rec := &fakeRecorder{}
	svc := NewService(store, rec)

	if err := svc.SetByOwner(context.Background(), u.ID); err != nil {
		t.Fatal(err)
	}
	if !u.GuardianLocked || u.GuardianLockSrc != SourceOwner {
		t.Error("owner set should lock with owner source")
	}

	if err := svc.TripForPolicy(context.Background(), u.ID, "payout pattern"); err != nil {
		t.Fatal(err)
	}
	if u.GuardianLockSrc != SourcePolicy {
		t.Error("policy trip should overwrite the source")
	}

	if err := svc.ClearByOwner(context.Background(), u.ID); err != nil {
		t.Fatal(err)
	}
	if u.GuardianLocked {
		t.Error("clear should unlock")
	}

	want := []string{audit.ActionInterlockSet, audit.ActionInterlockTrip, audit.ActionInterlockClear}
	if len(rec.actions) != len(want) {
		t.Fatalf("want %d audit entries, got %d", len(want), len(rec.actions))
	}
	for i := range want {
		if rec.actions[i] != want[i] {
			t.Errorf("audit entry %d: want %s, got %s", i, want[i], rec.actions[i])
		}
	}
}
