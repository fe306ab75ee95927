package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
	"github.com/juniorlance/juniorlance_be/internal/services/gateway"
)

type opKey struct {
	order uuid.UUID
	op    models.EscrowOpType
}

type fakeStore struct {
	txns map[uuid.UUID]*models.EscrowTransaction
	ops  map[opKey][]byte

	releases   int
	refunds    int
	reconciled []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		txns: map[uuid.UUID]*models.EscrowTransaction{},
		ops:  map[opKey][]byte{},
	}
}

func (s *fakeStore) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowTransaction, error) {
	txn, ok := s.txns[orderID]
	if !ok {
		return nil, &apperr.NotFound{Entity: "escrow transaction"}
	}
	return txn, nil
}

func (s *fakeStore) Create(ctx context.Context, txn *models.EscrowTransaction) error {
	s.txns[txn.OrderID] = txn
	return nil
}

func (s *fakeStore) CASState(ctx context.Context, orderID uuid.UUID, from, to models.EscrowState, updates map[string]any) error {
	txn, ok := s.txns[orderID]
	if !ok {
		return &apperr.NotFound{Entity: "escrow transaction"}
	}
	if txn.State != from {
		return &apperr.ConcurrencyConflict{Entity: "escrow state"}
	}
	txn.State = to
	return nil
}

func (s *fakeStore) MarkReconcile(ctx context.Context, orderID uuid.UUID, reason string) error {
	s.reconciled = append(s.reconciled, reason)
	return nil
}

func (s *fakeStore) ReserveOperation(ctx context.Context, orderID uuid.UUID, op models.EscrowOpType) ([]byte, bool, error) {
	k := opKey{orderID, op}
	if result, ok := s.ops[k]; ok && len(result) > 0 {
		return result, true, nil
	}
	s.ops[k] = nil
	return nil, false, nil
}

func (s *fakeStore) StoreOperationResult(ctx context.Context, orderID uuid.UUID, op models.EscrowOpType, result []byte) error {
	s.ops[opKey{orderID, op}] = result
	return nil
}

func (s *fakeStore) ReleaseFunds(ctx context.Context, orderID, freelancerID uuid.UUID, fee, net int64, payoutRef, description string) error {
	if err := s.CASState(ctx, orderID, models.EscrowStateCaptured, models.EscrowStateReleased, nil); err != nil {
		return err
	}
	s.releases++
	return nil
}

func (s *fakeStore) RefundFunds(ctx context.Context, orderID, clientID uuid.UUID, amount int64, description string) error {
	if err := s.CASState(ctx, orderID, models.EscrowStateCaptured, models.EscrowStateRefunded, nil); err != nil {
		return err
	}
	s.refunds++
	return nil
}

type fakeGateway struct {
	sessions int
	statuses []gateway.Status

	payouts    int
	payoutErrs []error
	lastRef    string
}

func (g *fakeGateway) CreateSession(ctx context.Context, merchantRef string, amount int64, customerName, customerEmail, itemName, returnURL string) (*gateway.Session, error) {
	g.sessions++
	return &gateway.Session{Reference: "GW-REF-1", CheckoutURL: "https://gw.example/pay/GW-REF-1"}, nil
}

func (g *fakeGateway) GetStatus(ctx context.Context, externalRef string) (gateway.Status, error) {
	if len(g.statuses) == 0 {
		return gateway.StatusUnpaid, nil
	}
	st := g.statuses[0]
	g.statuses = g.statuses[1:]
	return st, nil
}

func (g *fakeGateway) Payout(ctx context.Context, accountRef string, amount int64, reference string) (string, error) {
	g.lastRef = reference
	if len(g.payoutErrs) > 0 {
		err := g.payoutErrs[0]
		g.payoutErrs = g.payoutErrs[1:]
		if err != nil {
			return "", err
		}
	}
	g.payouts++
	return "DISB-1", nil
}

type fakeRecorder struct {
	entries []audit.Entry
}

func (r *fakeRecorder) Record(ctx context.Context, e audit.Entry) {
	r.entries = append(r.entries, e)
}

func newTestService(store *fakeStore, gw *fakeGateway) (*Service, *fakeRecorder) {
	rec := &fakeRecorder{}
	svc := NewService(store, gw, rec, 5)
	svc.Backoff = time.Millisecond
	return svc, rec
}

func testOrder() *models.Order {
	return &models.Order{
		ID:        uuid.New(),
		OrderCode: "JL-ESC001",
		ClientID:  uuid.New(),
		BidAmount: 1000,
	}
}

func testFreelancer() *models.User {
	return &models.User{
		ID:               uuid.New(),
		BankLinked:       true,
		PayoutAccountRef: "acct-9",
	}
}

func capturedTxn(store *fakeStore, o *models.Order) *models.EscrowTransaction {
	txn := &models.EscrowTransaction{
		OrderID:        o.ID,
		ExternalRef:    "GW-REF-1",
		CapturedAmount: o.BidAmount,
		State:          models.EscrowStateCaptured,
	}
	store.txns[o.ID] = txn
	return txn
}

func TestCreateHoldReentrant(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)
	o := testOrder()
	payer := &models.User{ID: o.ClientID, Name: "Client", Email: "c@example.com"}

	first, err := svc.CreateHold(context.Background(), o, payer, "https://app/return")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.CreateHold(context.Background(), o, payer, "https://app/return")
	if err != nil {
		t.Fatal(err)
	}
	if gw.sessions != 1 {
		t.Errorf("want one gateway session, got %d", gw.sessions)
	}
	if first.ExternalRef != second.ExternalRef {
		t.Error("repeat call must return the same pending session")
	}
}

func TestConfirmHoldRequeriesGateway(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{statuses: []gateway.Status{gateway.StatusUnpaid, gateway.StatusPaid}}
	svc, _ := newTestService(store, gw)
	o := testOrder()
	store.txns[o.ID] = &models.EscrowTransaction{
		OrderID:        o.ID,
		ExternalRef:    "GW-REF-1",
		CapturedAmount: o.BidAmount,
		State:          models.EscrowStateCreated,
	}

	captured, err := svc.ConfirmHold(context.Background(), o, "GW-REF-1")
	if err != nil {
		t.Fatal(err)
	}
	if captured {
		t.Error("unpaid gateway status must not capture")
	}
	if store.txns[o.ID].State != models.EscrowStateCreated {
		t.Error("state must not move on an unpaid status")
	}

	captured, err = svc.ConfirmHold(context.Background(), o, "GW-REF-1")
	if err != nil {
		t.Fatal(err)
	}
	if !captured || store.txns[o.ID].State != models.EscrowStateCaptured {
		t.Error("paid gateway status should capture")
	}

	// Replay after capture is a cheap idempotent yes.
	captured, err = svc.ConfirmHold(context.Background(), o, "GW-REF-1")
	if err != nil || !captured {
		t.Errorf("replay should confirm without error, got %v", err)
	}
}

func TestConfirmHoldRefMismatch(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeGateway{})
	o := testOrder()
	store.txns[o.ID] = &models.EscrowTransaction{OrderID: o.ID, ExternalRef: "GW-REF-1", State: models.EscrowStateCreated}

	_, err := svc.ConfirmHold(context.Background(), o, "GW-REF-FORGED")
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError on ref mismatch, got %v", err)
	}
}

func TestReleaseFeeSplit(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)
	o := testOrder()
	capturedTxn(store, o)

	res, err := svc.Release(context.Background(), o, testFreelancer())
	if err != nil {
		t.Fatal(err)
	}
	if res.FeeAmount != 50 || res.NetAmount != 950 {
		t.Errorf("want 50/950 from 1000 at 5%%, got %d/%d", res.FeeAmount, res.NetAmount)
	}
	if res.FeeAmount+res.NetAmount != o.BidAmount {
		t.Error("fee plus net must equal the captured amount")
	}
	if store.txns[o.ID].State != models.EscrowStateReleased {
		t.Errorf("want released, got %s", store.txns[o.ID].State)
	}
	if gw.lastRef != "PAYOUT-JL-ESC001" {
		t.Errorf("payout reference must be derived from the order code, got %s", gw.lastRef)
	}
}

func TestReleaseReplayReturnsFirstResult(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{}
	svc, _ := newTestService(store, gw)
	o := testOrder()
	capturedTxn(store, o)

	first, err := svc.Release(context.Background(), o, testFreelancer())
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Release(context.Background(), o, testFreelancer())
	if err != nil {
		t.Fatal(err)
	}
	if gw.payouts != 1 {
		t.Errorf("want exactly one payout, got %d", gw.payouts)
	}
	if store.releases != 1 {
		t.Errorf("want exactly one fund movement, got %d", store.releases)
	}
	if *first != *second {
		t.Errorf("replay must return the recorded result: %+v vs %+v", first, second)
	}
}

func TestReleaseBankNotLinked(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeGateway{})
	o := testOrder()
	capturedTxn(store, o)

	_, err := svc.Release(context.Background(), o, &models.User{ID: uuid.New()})
	if !errors.Is(err, ErrBankNotLinked) {
		t.Fatalf("want ErrBankNotLinked, got %v", err)
	}
	if store.txns[o.ID].State != models.EscrowStateCaptured {
		t.Error("funds must stay captured")
	}
}

func TestReleaseRequiresCapturedState(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeGateway{})
	o := testOrder()
	store.txns[o.ID] = &models.EscrowTransaction{OrderID: o.ID, State: models.EscrowStateCreated, CapturedAmount: o.BidAmount}

	_, err := svc.Release(context.Background(), o, testFreelancer())
	var te *apperr.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("want TransitionError, got %v", err)
	}
}

func TestReleaseRetriesTimeouts(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{payoutErrs: []error{
		&apperr.GatewayError{Kind: apperr.GatewayTimeout, Err: errors.New("deadline")},
		&apperr.GatewayError{Kind: apperr.GatewayTimeout, Err: errors.New("deadline")},
		nil,
	}}
	svc, _ := newTestService(store, gw)
	o := testOrder()
	capturedTxn(store, o)

	res, err := svc.Release(context.Background(), o, testFreelancer())
	if err != nil {
		t.Fatal(err)
	}
	if res.NetAmount != 950 {
		t.Errorf("want 950 after retries, got %d", res.NetAmount)
	}
	if gw.payouts != 1 {
		t.Errorf("want one successful payout, got %d", gw.payouts)
	}
}

func TestReleaseDeclinedDoesNotRetry(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{payoutErrs: []error{
		&apperr.GatewayError{Kind: apperr.GatewayDeclined, Err: errors.New("account closed")},
		nil,
	}}
	svc, _ := newTestService(store, gw)
	o := testOrder()
	capturedTxn(store, o)

	_, err := svc.Release(context.Background(), o, testFreelancer())
	var ge *apperr.GatewayError
	if !errors.As(err, &ge) || ge.Kind != apperr.GatewayDeclined {
		t.Fatalf("want declined gateway error, got %v", err)
	}
	if gw.payouts != 0 {
		t.Error("a decline must not be retried")
	}
}

func TestReleaseExhaustionDegradesToReconcile(t *testing.T) {
	store := newFakeStore()
	timeout := func() error {
		return &apperr.GatewayError{Kind: apperr.GatewayTimeout, Err: errors.New("deadline")}
	}
	gw := &fakeGateway{payoutErrs: []error{timeout(), timeout(), timeout()}}
	svc, rec := newTestService(store, gw)
	o := testOrder()
	capturedTxn(store, o)

	_, err := svc.Release(context.Background(), o, testFreelancer())
	if err == nil {
		t.Fatal("want error after exhausted retries")
	}
	if len(store.reconciled) == 0 {
		t.Error("exhaustion must park the escrow for reconciliation")
	}
	found := false
	for _, e := range rec.entries {
		if e.Action == audit.ActionEscrowError {
			found = true
		}
	}
	if !found {
		t.Error("degradation must be audit-logged")
	}
	if store.txns[o.ID].State != models.EscrowStateCaptured {
		t.Error("funds must stay captured while parked")
	}
}

func TestRefundFullAmount(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeGateway{})
	o := testOrder()
	capturedTxn(store, o)

	res, err := svc.Refund(context.Background(), o)
	if err != nil {
		t.Fatal(err)
	}
	if res.Amount != 1000 {
		t.Errorf("refund is always the full hold, got %d", res.Amount)
	}
	if store.txns[o.ID].State != models.EscrowStateRefunded {
		t.Errorf("want refunded, got %s", store.txns[o.ID].State)
	}
}

func TestRefundOnlyFromCaptured(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeGateway{})
	o := testOrder()
	store.txns[o.ID] = &models.EscrowTransaction{OrderID: o.ID, State: models.EscrowStateReleased, CapturedAmount: o.BidAmount}

	_, err := svc.Refund(context.Background(), o)
	var te *apperr.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("released funds can never be refunded, got %v", err)
	}
}

func TestRefundReplay(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeGateway{})
	o := testOrder()
	capturedTxn(store, o)

	if _, err := svc.Refund(context.Background(), o); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Refund(context.Background(), o)
	if err != nil {
		t.Fatal(err)
	}
	if store.refunds != 1 {
		t.Errorf("want exactly one fund movement, got %d", store.refunds)
	}
	if res.Amount != 1000 {
		t.Errorf("replay must return the recorded amount, got %d", res.Amount)
	}
}

func TestCapturedProbe(t *testing.T) {
	store := newFakeStore()
	svc, _ := newTestService(store, &fakeGateway{})
	o := testOrder()

	ok, err := svc.Captured(context.Background(), o.ID)
	if err != nil || ok {
		t.Errorf("no transaction means not captured, got %v %v", ok, err)
	}

	capturedTxn(store, o)
	ok, err = svc.Captured(context.Background(), o.ID)
	if err != nil || !ok {
		t.Errorf("captured transaction should report true, got %v %v", ok, err)
	}
}
