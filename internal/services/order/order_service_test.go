package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
	"github.com/juniorlance/juniorlance_be/internal/services/escrow"
)

type fakeStore struct {
	orders map[uuid.UUID]*models.Order
	jobs   map[uuid.UUID]*models.Job

	// beforeCAS mutates state between the read and the conditional write,
	// simulating a concurrent transition.
	beforeCAS func()

	ratings map[uuid.UUID]int
	expired []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:  map[uuid.UUID]*models.Order{},
		jobs:    map[uuid.UUID]*models.Job{},
		ratings: map[uuid.UUID]int{},
	}
}

func (s *fakeStore) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, &apperr.NotFound{Entity: "order"}
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, &apperr.NotFound{Entity: "job"}
	}
	return j, nil
}

func (s *fakeStore) CreateOrder(ctx context.Context, o *models.Order) error {
	o.ID = uuid.New()
	o.OrderCode = models.GenerateOrderCode()
	s.orders[o.ID] = o
	return nil
}

func (s *fakeStore) CASStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, updates map[string]any) error {
	if s.beforeCAS != nil {
		s.beforeCAS()
		s.beforeCAS = nil
	}
	o, ok := s.orders[id]
	if !ok {
		return &apperr.NotFound{Entity: "order"}
	}
	if o.Status != from {
		return &apperr.ConcurrencyConflict{Entity: "order status"}
	}
	o.Status = to
	if v, ok := updates["used_revision_count"]; ok {
		o.UsedRevisionCount = v.(int)
	}
	return nil
}

func (s *fakeStore) ListReviewExpired(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	return s.expired, nil
}

func (s *fakeStore) SetRating(ctx context.Context, id uuid.UUID, rating int, comment string) error {
	s.ratings[id] = rating
	if o, ok := s.orders[id]; ok {
		o.Rating = &rating
	}
	return nil
}

type fakeUsers struct {
	users map[uuid.UUID]*models.User
}

func (u *fakeUsers) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	usr, ok := u.users[id]
	if !ok {
		return nil, &apperr.NotFound{Entity: "user"}
	}
	return usr, nil
}

type fakeEngine struct {
	captured bool

	releaseErr error
	releases   int
	refunds    int
	reconciled []string
}

func (e *fakeEngine) Captured(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return e.captured, nil
}

func (e *fakeEngine) Release(ctx context.Context, o *models.Order, freelancer *models.User) (*escrow.ReleaseResult, error) {
	if e.releaseErr != nil {
		return nil, e.releaseErr
	}
	e.releases++
	fee := o.BidAmount * 5 / 100
	return &escrow.ReleaseResult{FeeAmount: fee, NetAmount: o.BidAmount - fee, PayoutRef: "payout-1"}, nil
}

func (e *fakeEngine) Refund(ctx context.Context, o *models.Order) (*escrow.RefundResult, error) {
	e.refunds++
	return &escrow.RefundResult{Amount: o.BidAmount}, nil
}

func (e *fakeEngine) MarkForReconciliation(ctx context.Context, o *models.Order, reason string) {
	e.reconciled = append(e.reconciled, reason)
}

type fakeRecorder struct {
	entries []audit.Entry
}

func (r *fakeRecorder) Record(ctx context.Context, e audit.Entry) {
	r.entries = append(r.entries, e)
}

func (r *fakeRecorder) has(action string) bool {
	for _, e := range r.entries {
		if e.Action == action {
			return true
		}
	}
	return false
}

type fakeNotifier struct {
	events int
	last   models.OrderStatus
}

func (n *fakeNotifier) OrderStatusChanged(o *models.Order, previous models.OrderStatus) {
	n.events++
	n.last = o.Status
}

type fixture struct {
	svc    *Service
	store  *fakeStore
	users  *fakeUsers
	engine *fakeEngine
	rec    *fakeRecorder
	notify *fakeNotifier

	client     *models.User
	freelancer *models.User
}

func newFixture() *fixture {
	store := newFakeStore()
	client := &models.User{
		ID:                uuid.New(),
		Role:              models.RoleClient,
		IsActive:          true,
		VerificationLevel: models.LevelIdentityVerified,
	}
	freelancer := &models.User{
		ID:                uuid.New(),
		Role:              models.RoleFreelancer,
		IsActive:          true,
		VerificationLevel: models.LevelIdentityVerified,
		BankLinked:        true,
		PayoutAccountRef:  "acct-1",
	}
	users := &fakeUsers{users: map[uuid.UUID]*models.User{
		client.ID:     client,
		freelancer.ID: freelancer,
	}}
	engine := &fakeEngine{captured: true}
	rec := &fakeRecorder{}
	notify := &fakeNotifier{}

	return &fixture{
		svc:        NewService(store, users, engine, rec, notify),
		store:      store,
		users:      users,
		engine:     engine,
		rec:        rec,
		notify:     notify,
		client:     client,
		freelancer: freelancer,
	}
}

func (f *fixture) order(status models.OrderStatus) *models.Order {
	o := &models.Order{
		ID:            uuid.New(),
		OrderCode:     "JL-TEST01",
		ClientID:      f.client.ID,
		FreelancerID:  f.freelancer.ID,
		BidAmount:     1000,
		RevisionCount: 1,
		Status:        status,
	}
	f.store.orders[o.ID] = o
	return o
}

func TestCreateRequiresIdentityVerified(t *testing.T) {
	f := newFixture()
	f.freelancer.VerificationLevel = models.LevelAgeVerified
	job := &models.Job{ID: uuid.New(), ClientID: f.client.ID}
	f.store.jobs[job.ID] = job

	_, err := f.svc.Create(context.Background(), CreateParams{
		FreelancerID: f.freelancer.ID,
		JobID:        job.ID,
		BidAmount:    500,
		Title:        "Logo design",
	})
	var gd *apperr.GateDenied
	if !errors.As(err, &gd) {
		t.Fatalf("want GateDenied, got %v", err)
	}
	if gd.Hint != apperr.HintVerifyIdentity {
		t.Errorf("want verify_identity hint, got %s", gd.Hint)
	}
}

func TestCreateOpensPendingOrder(t *testing.T) {
	f := newFixture()
	job := &models.Job{ID: uuid.New(), ClientID: f.client.ID}
	f.store.jobs[job.ID] = job

	o, err := f.svc.Create(context.Background(), CreateParams{
		FreelancerID: f.freelancer.ID,
		JobID:        job.ID,
		BidAmount:    500,
		Title:        "Logo design",
	})
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != models.OrderStatusPending {
		t.Errorf("want pending, got %s", o.Status)
	}
	if o.ClientID != f.client.ID {
		t.Error("client must come from the job, not the request")
	}
	if !f.rec.has(audit.ActionOrderTransition) {
		t.Error("creation should be audit-logged")
	}
}

func TestAcceptRequiresCapturedEscrow(t *testing.T) {
	f := newFixture()
	f.engine.captured = false
	o := f.order(models.OrderStatusPending)

	_, err := f.svc.Transition(context.Background(), f.client.ID, o.ID, models.OrderStatusAccepted, TransitionOpts{})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if f.store.orders[o.ID].Status != models.OrderStatusPending {
		t.Error("order must stay pending when escrow is not captured")
	}
}

func TestTransitionWrongActorRejected(t *testing.T) {
	f := newFixture()
	o := f.order(models.OrderStatusPending)

	_, err := f.svc.Transition(context.Background(), f.freelancer.ID, o.ID, models.OrderStatusAccepted, TransitionOpts{})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("freelancer accepting own proposal: want ValidationError, got %v", err)
	}
}

func TestTransitionConcurrentWriterLosesCAS(t *testing.T) {
	f := newFixture()
	o := f.order(models.OrderStatusSubmitted)
	f.store.beforeCAS = func() {
		f.store.orders[o.ID].Status = models.OrderStatusDisputed
	}

	_, err := f.svc.Transition(context.Background(), f.client.ID, o.ID, models.OrderStatusCompleted, TransitionOpts{})
	var cc *apperr.ConcurrencyConflict
	if !errors.As(err, &cc) {
		t.Fatalf("want ConcurrencyConflict, got %v", err)
	}
	if f.store.orders[o.ID].Status != models.OrderStatusDisputed {
		t.Error("losing writer must not clobber the winning transition")
	}
}

func TestRejectAfterCaptureRefunds(t *testing.T) {
	f := newFixture()
	o := f.order(models.OrderStatusAccepted)

	updated, err := f.svc.Transition(context.Background(), f.client.ID, o.ID, models.OrderStatusRejected, TransitionOpts{Reason: "scope changed"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.OrderStatusRejected {
		t.Errorf("want rejected, got %s", updated.Status)
	}
	if f.engine.refunds != 1 {
		t.Errorf("want exactly one refund, got %d", f.engine.refunds)
	}
}

func TestRejectFundedPendingOrderRefunds(t *testing.T) {
	f := newFixture()
	o := f.order(models.OrderStatusPending) // hold captured before acceptance

	updated, err := f.svc.Transition(context.Background(), f.client.ID, o.ID, models.OrderStatusRejected, TransitionOpts{Reason: "chose another proposal"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.OrderStatusRejected {
		t.Errorf("want rejected, got %s", updated.Status)
	}
	if f.engine.refunds != 1 {
		t.Errorf("captured escrow must be refunded on pending reject, got %d refunds", f.engine.refunds)
	}
}

func TestRejectUnfundedPendingOrderSkipsRefund(t *testing.T) {
	f := newFixture()
	f.engine.captured = false
	o := f.order(models.OrderStatusPending)

	if _, err := f.svc.Transition(context.Background(), f.client.ID, o.ID, models.OrderStatusRejected, TransitionOpts{}); err != nil {
		t.Fatal(err)
	}
	if f.engine.refunds != 0 {
		t.Errorf("nothing captured, nothing to refund, got %d refunds", f.engine.refunds)
	}
}

func TestRevisionLimitEnforced(t *testing.T) {
	f := newFixture()
	o := f.order(models.OrderStatusSubmitted)
	f.store.orders[o.ID].UsedRevisionCount = 1 // limit is 1

	_, err := f.svc.Transition(context.Background(), f.client.ID, o.ID, models.OrderStatusRevisionRequested, TransitionOpts{})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError on exhausted revisions, got %v", err)
	}
}

func TestGuardianLockBlocksApprove(t *testing.T) {
	f := newFixture()
	f.client.GuardianLocked = true
	o := f.order(models.OrderStatusSubmitted)

	_, err := f.svc.Transition(context.Background(), f.client.ID, o.ID, models.OrderStatusCompleted, TransitionOpts{})
	var ib *apperr.InterlockBlocked
	if !errors.As(err, &ib) {
		t.Fatalf("want InterlockBlocked, got %v", err)
	}
}

func TestSuspendedActorRejected(t *testing.T) {
	f := newFixture()
	f.client.IsActive = false
	o := f.order(models.OrderStatusPending)

	_, err := f.svc.Transition(context.Background(), f.client.ID, o.ID, models.OrderStatusAccepted, TransitionOpts{})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError for suspended actor, got %v", err)
	}
}

func TestReleaseHappyPath(t *testing.T) {
	f := newFixture()
	o := f.order(models.OrderStatusCompleted)

	updated, res, err := f.svc.Release(context.Background(), f.client.ID, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.OrderStatusPaid {
		t.Errorf("want paid, got %s", updated.Status)
	}
	if res.FeeAmount != 50 || res.NetAmount != 950 {
		t.Errorf("want 50/950 split of 1000, got %d/%d", res.FeeAmount, res.NetAmount)
	}
	if f.notify.events == 0 || f.notify.last != models.OrderStatusPaid {
		t.Error("release should notify both parties of the paid status")
	}
}

func TestReleaseOnlyClient(t *testing.T) {
	f := newFixture()
	o := f.order(models.OrderStatusCompleted)

	_, _, err := f.svc.Release(context.Background(), f.freelancer.ID, o.ID)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestReleaseBankNotLinkedFailsClosed(t *testing.T) {
	f := newFixture()
	f.freelancer.BankLinked = false
	o := f.order(models.OrderStatusCompleted)

	_, _, err := f.svc.Release(context.Background(), f.client.ID, o.ID)
	if !errors.Is(err, escrow.ErrBankNotLinked) {
		t.Fatalf("want ErrBankNotLinked, got %v", err)
	}
	if f.store.orders[o.ID].Status != models.OrderStatusCompleted {
		t.Error("order must not move when the payout account is missing")
	}
	if f.engine.releases != 0 {
		t.Error("no payout may be attempted without a linked account")
	}
}

func TestReleaseOnDisputedOrderIsTransitionError(t *testing.T) {
	f := newFixture()
	o := f.order(models.OrderStatusDisputed)

	_, _, err := f.svc.Release(context.Background(), f.client.ID, o.ID)
	var te *apperr.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("release on a frozen order: want TransitionError, got %v", err)
	}
	if f.engine.releases != 0 {
		t.Error("no payout may be attempted on a disputed order")
	}
	if f.store.orders[o.ID].Status != models.OrderStatusDisputed {
		t.Error("disputed order must not move")
	}
}

func TestReleaseGatewayFailureParksInProcessing(t *testing.T) {
	f := newFixture()
	f.engine.releaseErr = &apperr.GatewayError{Kind: apperr.GatewayTimeout, Err: errors.New("deadline exceeded")}
	o := f.order(models.OrderStatusCompleted)

	_, _, err := f.svc.Release(context.Background(), f.client.ID, o.ID)
	if err == nil {
		t.Fatal("want error")
	}
	if f.store.orders[o.ID].Status != models.OrderStatusProcessing {
		t.Errorf("order should be parked in processing, got %s", f.store.orders[o.ID].Status)
	}
	if !f.rec.has(audit.ActionEscrowError) {
		t.Error("gateway failure should be audit-logged")
	}
}

func TestRateRules(t *testing.T) {
	f := newFixture()
	o := f.order(models.OrderStatusCompleted)

	if err := f.svc.Rate(context.Background(), f.client.ID, o.ID, 5, "great"); err == nil {
		t.Error("rating an unpaid order must fail")
	}

	f.store.orders[o.ID].Status = models.OrderStatusPaid
	if err := f.svc.Rate(context.Background(), f.freelancer.ID, o.ID, 5, ""); err == nil {
		t.Error("only the client may rate")
	}
	if err := f.svc.Rate(context.Background(), f.client.ID, o.ID, 6, ""); err == nil {
		t.Error("rating above 5 must fail")
	}
	if err := f.svc.Rate(context.Background(), f.client.ID, o.ID, 4, "good"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Rate(context.Background(), f.client.ID, o.ID, 5, "again"); err == nil {
		t.Error("a second rating must fail")
	}
}
