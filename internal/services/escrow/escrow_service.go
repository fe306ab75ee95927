package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
	"github.com/juniorlance/juniorlance_be/internal/services/gateway"
)

// ErrBankNotLinked is returned by Release when the freelancer has no linked
// payout account. Release fails closed; nothing moves.
var ErrBankNotLinked = errors.New("escrow: freelancer bank account not linked")

// Gateway is the slice of the payment gateway the engine needs.
type Gateway interface {
	CreateSession(ctx context.Context, merchantRef string, amount int64, customerName, customerEmail, itemName, returnURL string) (*gateway.Session, error)
	GetStatus(ctx context.Context, externalRef string) (gateway.Status, error)
	Payout(ctx context.Context, accountRef string, amount int64, reference string) (string, error)
}

// Store is the persistence the engine needs. ReleaseFunds and RefundFunds
// move escrow state and the wallet ledger in one DB transaction.
type Store interface {
	GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowTransaction, error)
	Create(ctx context.Context, txn *models.EscrowTransaction) error
	CASState(ctx context.Context, orderID uuid.UUID, from, to models.EscrowState, updates map[string]any) error
	MarkReconcile(ctx context.Context, orderID uuid.UUID, reason string) error
	// ReserveOperation claims (orderID, op). When a finished result already
	// exists it is returned with done=true and the caller must replay it
	// instead of acting again.
	ReserveOperation(ctx context.Context, orderID uuid.UUID, op models.EscrowOpType) (result []byte, done bool, err error)
	StoreOperationResult(ctx context.Context, orderID uuid.UUID, op models.EscrowOpType, result []byte) error
	ReleaseFunds(ctx context.Context, orderID, freelancerID uuid.UUID, fee, net int64, payoutRef, description string) error
	RefundFunds(ctx context.Context, orderID, clientID uuid.UUID, amount int64, description string) error
}

type Service struct {
	store Store
	gw    Gateway
	audit audit.Recorder

	FeePercent  int
	MaxAttempts int
	Backoff     time.Duration

	// Serializes Release/Refund per order id: at most one payout writer even
	// under concurrent requests.
	group singleflight.Group
}

func NewService(store Store, gw Gateway, rec audit.Recorder, feePercent int) *Service {
	return &Service{
		store:       store,
		gw:          gw,
		audit:       rec,
		FeePercent:  feePercent,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
	}
}

// CreateHold opens (or re-returns) the gateway hold session for an order.
// Re-entrant: a repeated call before confirmation returns the existing
// pending session instead of opening a second one.
func (s *Service) CreateHold(ctx context.Context, order *models.Order, payer *models.User, returnURL string) (*models.EscrowTransaction, error) {
	existing, err := s.store.GetByOrder(ctx, order.ID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if existing != nil {
		if existing.State != models.EscrowStateCreated {
			return nil, apperr.Validationf("escrow for order %s already %s", order.OrderCode, existing.State)
		}
		return existing, nil
	}

	merchantRef := "INV-" + order.OrderCode
	var sess *gateway.Session
	err = s.withRetry(ctx, func() error {
		var gerr error
		sess, gerr = s.gw.CreateSession(ctx, merchantRef, order.BidAmount, payer.Name, payer.Email, order.Title, returnURL)
		return gerr
	})
	if err != nil {
		return nil, err
	}

	txn := &models.EscrowTransaction{
		OrderID:        order.ID,
		ExternalRef:    sess.Reference,
		CheckoutURL:    sess.CheckoutURL,
		PayerRef:       payer.ID.String(),
		CapturedAmount: order.BidAmount,
		State:          models.EscrowStateCreated,
	}
	if err := s.store.Create(ctx, txn); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  payer.ID,
		Action:   audit.ActionEscrowHold,
		TargetID: order.ID.String(),
		Detail:   map[string]any{"external_ref": sess.Reference, "amount": order.BidAmount},
	})
	return txn, nil
}

// ConfirmHold commits the capture only after independently querying the
// gateway's own status. The callback payload that triggered this is never
// trusted as a success signal.
func (s *Service) ConfirmHold(ctx context.Context, order *models.Order, externalRef string) (bool, error) {
	txn, err := s.store.GetByOrder(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if txn.ExternalRef != externalRef {
		return false, apperr.Validationf("external ref mismatch for order %s", order.OrderCode)
	}
	if txn.State != models.EscrowStateCreated {
		// Already captured (or terminal): idempotent replay of the callback.
		return txn.State == models.EscrowStateCaptured, nil
	}

	var status gateway.Status
	err = s.withRetry(ctx, func() error {
		var gerr error
		status, gerr = s.gw.GetStatus(ctx, externalRef)
		return gerr
	})
	if err != nil {
		return false, err
	}
	if status != gateway.StatusPaid {
		return false, nil
	}

	now := time.Now()
	if err := s.store.CASState(ctx, order.ID, models.EscrowStateCreated, models.EscrowStateCaptured,
		map[string]any{"captured_at": &now}); err != nil {
		return false, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  order.ClientID,
		Action:   audit.ActionEscrowCapture,
		TargetID: order.ID.String(),
		Detail:   map[string]any{"external_ref": externalRef, "amount": txn.CapturedAmount},
	})
	return true, nil
}

// ReleaseResult is what Release returns; replays return the first result
// verbatim with no second fund movement.
type ReleaseResult struct {
	FeeAmount int64  `json:"fee_amount"`
	NetAmount int64  `json:"net_amount"`
	PayoutRef string `json:"payout_ref"`
}

// Release pays the freelancer net of the platform fee. Idempotent keyed by
// (orderID, release) and serialized per order.
func (s *Service) Release(ctx context.Context, order *models.Order, freelancer *models.User) (*ReleaseResult, error) {
	v, err, _ := s.group.Do("release:"+order.ID.String(), func() (any, error) {
		return s.release(ctx, order, freelancer)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReleaseResult), nil
}

func (s *Service) release(ctx context.Context, order *models.Order, freelancer *models.User) (*ReleaseResult, error) {
	if !freelancer.BankLinked || freelancer.PayoutAccountRef == "" {
		return nil, ErrBankNotLinked
	}

	prior, done, err := s.store.ReserveOperation(ctx, order.ID, models.EscrowOpRelease)
	if err != nil {
		return nil, err
	}
	if done {
		var res ReleaseResult
		if err := json.Unmarshal(prior, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}

	txn, err := s.store.GetByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if txn.State != models.EscrowStateCaptured {
		return nil, &apperr.TransitionError{From: string(txn.State), To: string(models.EscrowStateReleased)}
	}

	fee := order.BidAmount * int64(s.FeePercent) / 100
	net := order.BidAmount - fee

	// The payout reference doubles as the gateway-side idempotency key.
	var payoutRef string
	err = s.withRetry(ctx, func() error {
		var gerr error
		payoutRef, gerr = s.gw.Payout(ctx, freelancer.PayoutAccountRef, net, "PAYOUT-"+order.OrderCode)
		return gerr
	})
	if err != nil {
		s.degrade(ctx, order, "payout failed: "+err.Error())
		return nil, err
	}

	if err := s.store.ReleaseFunds(ctx, order.ID, freelancer.ID, fee, net, payoutRef,
		"Escrow release for order #"+order.OrderCode); err != nil {
		return nil, err
	}

	result := &ReleaseResult{FeeAmount: fee, NetAmount: net, PayoutRef: payoutRef}
	raw, _ := json.Marshal(result)
	if err := s.store.StoreOperationResult(ctx, order.ID, models.EscrowOpRelease, raw); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  order.ClientID,
		Action:   audit.ActionEscrowRelease,
		TargetID: order.ID.String(),
		Detail:   map[string]any{"fee_amount": fee, "net_amount": net, "payout_ref": payoutRef},
	})
	return result, nil
}

// RefundResult mirrors ReleaseResult for the refund path.
type RefundResult struct {
	Amount int64 `json:"amount"`
}

// Refund returns the full held amount to the client. Only legal while the
// transaction is captured.
func (s *Service) Refund(ctx context.Context, order *models.Order) (*RefundResult, error) {
	v, err, _ := s.group.Do("refund:"+order.ID.String(), func() (any, error) {
		return s.refund(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	return v.(*RefundResult), nil
}

func (s *Service) refund(ctx context.Context, order *models.Order) (*RefundResult, error) {
	prior, done, err := s.store.ReserveOperation(ctx, order.ID, models.EscrowOpRefund)
	if err != nil {
		return nil, err
	}
	if done {
		var res RefundResult
		if err := json.Unmarshal(prior, &res); err != nil {
			return nil, err
		}
		return &res, nil
	}

	txn, err := s.store.GetByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if txn.State != models.EscrowStateCaptured {
		return nil, &apperr.TransitionError{From: string(txn.State), To: string(models.EscrowStateRefunded)}
	}

	if err := s.store.RefundFunds(ctx, order.ID, order.ClientID, txn.CapturedAmount,
		"Refund for cancelled order #"+order.OrderCode); err != nil {
		return nil, err
	}

	result := &RefundResult{Amount: txn.CapturedAmount}
	raw, _ := json.Marshal(result)
	if err := s.store.StoreOperationResult(ctx, order.ID, models.EscrowOpRefund, raw); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:  order.ClientID,
		Action:   audit.ActionEscrowRefund,
		TargetID: order.ID.String(),
		Detail:   map[string]any{"amount": txn.CapturedAmount},
	})
	return result, nil
}

// Captured reports whether the order's funds are held by the platform.
func (s *Service) Captured(ctx context.Context, orderID uuid.UUID) (bool, error) {
	txn, err := s.store.GetByOrder(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return txn.State == models.EscrowStateCaptured, nil
}

// MarkForReconciliation degrades the order's escrow to manual reconciliation,
// surfaced only to admin override.
func (s *Service) MarkForReconciliation(ctx context.Context, order *models.Order, reason string) {
	s.degrade(ctx, order, reason)
}

// withRetry retries gateway timeouts and unreachables with bounded backoff.
// Declines are final. After exhaustion the caller degrades the order to
// manual reconciliation rather than leaving the outcome ambiguous.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := s.Backoff
	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		var ge *apperr.GatewayError
		if !errors.As(lastErr, &ge) || ge.Kind == apperr.GatewayDeclined {
			return lastErr
		}
		if attempt == s.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func (s *Service) degrade(ctx context.Context, order *models.Order, reason string) {
	if err := s.store.MarkReconcile(ctx, order.ID, reason); err != nil {
		s.audit.Record(ctx, audit.Entry{
			Action:   audit.ActionEscrowError,
			TargetID: order.ID.String(),
			Detail:   map[string]any{"reason": "mark reconcile failed: " + err.Error()},
		})
		return
	}
	s.audit.Record(ctx, audit.Entry{
		Action:   audit.ActionEscrowError,
		TargetID: order.ID.String(),
		Detail:   map[string]any{"reason": reason, "reconcile_pending": true},
	})
}

func isNotFound(err error) bool {
	var nf *apperr.NotFound
	return errors.As(err, &nf)
}
