package wallet

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/audit"
)

// PayoutGateway is the slice of the payment gateway withdrawals drive.
type PayoutGateway interface {
	Payout(ctx context.Context, accountRef string, amount int64, reference string) (string, error)
}

// WithdrawStore persists withdrawal attempts. Reserve records the attempt and
// debits the balance in one transaction; a duplicate request key returns the
// stored attempt instead of acting again.
type WithdrawStore interface {
	Reserve(ctx context.Context, w *models.Withdrawal) (*models.Withdrawal, error)
	MarkSent(ctx context.Context, id uuid.UUID, payoutRef string) error
	MarkReconcile(ctx context.Context, id uuid.UUID, reason string) error
	Reverse(ctx context.Context, w *models.Withdrawal, reason string) error
}

// WithdrawService runs the payout flow debit-first: the balance comes off
// before the gateway is asked to pay, and a definite decline puts it back.
// An unknown gateway outcome keeps the debit and parks the withdrawal for
// admin reconciliation rather than risking a double payout.
type WithdrawService struct {
	store   WithdrawStore
	gateway PayoutGateway
	audit   audit.Recorder
}

func NewWithdrawService(store WithdrawStore, gw PayoutGateway, rec audit.Recorder) *WithdrawService {
	return &WithdrawService{store: store, gateway: gw, audit: rec}
}

func (s *WithdrawService) Withdraw(ctx context.Context, user *models.User, amount int64, requestKey string) (*models.Withdrawal, error) {
	if amount <= 0 {
		return nil, apperr.Validationf("amount must be positive")
	}
	if requestKey == "" {
		return nil, apperr.Validationf("request_id is required")
	}

	w := &models.Withdrawal{
		ID:         uuid.New(),
		UserID:     user.ID,
		Amount:     amount,
		RequestKey: requestKey,
		Status:     models.WithdrawalPending,
	}
	prior, err := s.store.Reserve(ctx, w)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		// Retry of a request already processed: report the first attempt,
		// never a second debit or payout.
		return prior, nil
	}

	payoutRef, err := s.gateway.Payout(ctx, user.PayoutAccountRef, amount, "WD-"+w.ID.String())
	if err != nil {
		var ge *apperr.GatewayError
		if errors.As(err, &ge) && ge.Kind == apperr.GatewayDeclined {
			// Definite failure: the money never left, put the debit back.
			if rerr := s.store.Reverse(ctx, w, err.Error()); rerr != nil {
				s.degrade(ctx, w, "reverse after decline failed: "+rerr.Error())
				return nil, rerr
			}
			return nil, err
		}
		// Timeout or unreachable: the payout may have landed. Keep the
		// debit and surface the attempt to reconciliation.
		s.degrade(ctx, w, err.Error())
		return nil, err
	}

	if err := s.store.MarkSent(ctx, w.ID, payoutRef); err != nil {
		return nil, err
	}
	w.Status = models.WithdrawalSent
	w.PayoutRef = payoutRef

	s.audit.Record(ctx, audit.Entry{
		ActorID:  user.ID,
		Action:   audit.ActionWalletWithdraw,
		TargetID: w.ID.String(),
		Detail:   map[string]any{"amount": amount, "payout_ref": payoutRef},
	})
	return w, nil
}

func (s *WithdrawService) degrade(ctx context.Context, w *models.Withdrawal, reason string) {
	if err := s.store.MarkReconcile(ctx, w.ID, reason); err != nil {
		reason = reason + "; mark reconcile failed: " + err.Error()
	}
	s.audit.Record(ctx, audit.Entry{
		ActorID:  w.UserID,
		Action:   audit.ActionWalletError,
		TargetID: w.ID.String(),
		Detail:   map[string]any{"reason": reason, "amount": w.Amount},
	})
}

// GormWithdrawStore is the gorm-backed WithdrawStore.
type GormWithdrawStore struct {
	DB     *gorm.DB
	Wallet *WalletService
}

func NewWithdrawStore(db *gorm.DB, w *WalletService) *GormWithdrawStore {
	return &GormWithdrawStore{DB: db, Wallet: w}
}

func (s *GormWithdrawStore) Reserve(ctx context.Context, w *models.Withdrawal) (*models.Withdrawal, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(w).Error; err != nil {
			return err
		}
		return s.Wallet.DebitUser(tx, w.UserID, w.Amount, w.ID, "Withdrawal WD-"+w.ID.String())
	})
	if err == nil {
		return nil, nil
	}
	if isDuplicateKey(err) {
		var prior models.Withdrawal
		if ferr := s.DB.WithContext(ctx).
			First(&prior, "user_id = ? AND request_key = ?", w.UserID, w.RequestKey).Error; ferr != nil {
			return nil, ferr
		}
		return &prior, nil
	}
	return nil, err
}

func (s *GormWithdrawStore) MarkSent(ctx context.Context, id uuid.UUID, payoutRef string) error {
	res := s.DB.WithContext(ctx).Model(&models.Withdrawal{}).
		Where("id = ? AND status = ?", id, models.WithdrawalPending).
		Updates(map[string]any{"status": models.WithdrawalSent, "payout_ref": payoutRef})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &apperr.ConcurrencyConflict{Entity: "withdrawal status"}
	}
	return nil
}

func (s *GormWithdrawStore) MarkReconcile(ctx context.Context, id uuid.UUID, reason string) error {
	return s.DB.WithContext(ctx).Model(&models.Withdrawal{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": models.WithdrawalReconcilePending, "fail_reason": reason}).Error
}

// Reverse undoes the debit of a declined payout: the withdrawal is closed as
// failed and the amount goes back on the balance, in one transaction.
func (s *GormWithdrawStore) Reverse(ctx context.Context, w *models.Withdrawal, reason string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Withdrawal{}).
			Where("id = ? AND status = ?", w.ID, models.WithdrawalPending).
			Updates(map[string]any{"status": models.WithdrawalFailed, "fail_reason": reason})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &apperr.ConcurrencyConflict{Entity: "withdrawal status"}
		}
		return s.Wallet.credit(tx, w.UserID, w.Amount, models.WalletTrxRefund, w.ID,
			"Withdrawal WD-"+w.ID.String()+" declined, funds returned")
	})
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint")
}
