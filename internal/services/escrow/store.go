package escrow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
	"github.com/juniorlance/juniorlance_be/internal/services/wallet"
)

// GormStore is the gorm-backed Store.
type GormStore struct {
	DB     *gorm.DB
	Wallet *wallet.WalletService
}

func NewStore(db *gorm.DB, w *wallet.WalletService) *GormStore {
	return &GormStore{DB: db, Wallet: w}
}

func (s *GormStore) GetByOrder(ctx context.Context, orderID uuid.UUID) (*models.EscrowTransaction, error) {
	var txn models.EscrowTransaction
	if err := s.DB.WithContext(ctx).First(&txn, "order_id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperr.NotFound{Entity: "escrow transaction"}
		}
		return nil, err
	}
	return &txn, nil
}

func (s *GormStore) Create(ctx context.Context, txn *models.EscrowTransaction) error {
	return s.DB.WithContext(ctx).Create(txn).Error
}

// CASState conditionally moves the transaction state. RowsAffected == 0 means
// another writer landed first.
func (s *GormStore) CASState(ctx context.Context, orderID uuid.UUID, from, to models.EscrowState, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["state"] = to

	res := s.DB.WithContext(ctx).Model(&models.EscrowTransaction{}).
		Where("order_id = ? AND state = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &apperr.ConcurrencyConflict{Entity: "escrow transaction"}
	}
	return nil
}

func (s *GormStore) MarkReconcile(ctx context.Context, orderID uuid.UUID, reason string) error {
	return s.DB.WithContext(ctx).Model(&models.EscrowTransaction{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{"reconcile_pending": true, "reconcile_reason": reason}).Error
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "unique constraint")
}

func (s *GormStore) ReserveOperation(ctx context.Context, orderID uuid.UUID, op models.EscrowOpType) ([]byte, bool, error) {
	row := models.EscrowOperation{OrderID: orderID, OpType: op}
	err := s.DB.WithContext(ctx).Create(&row).Error
	if err == nil {
		return nil, false, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}

	// Key already claimed. A stored result means the operation finished and
	// must be replayed; an empty one means a prior attempt died before the
	// gateway call completed, so the caller may act again.
	var existing models.EscrowOperation
	if err := s.DB.WithContext(ctx).
		First(&existing, "order_id = ? AND op_type = ?", orderID, op).Error; err != nil {
		return nil, false, err
	}
	if len(existing.Result) > 0 {
		return []byte(existing.Result), true, nil
	}
	return nil, false, nil
}

func (s *GormStore) StoreOperationResult(ctx context.Context, orderID uuid.UUID, op models.EscrowOpType, result []byte) error {
	return s.DB.WithContext(ctx).Model(&models.EscrowOperation{}).
		Where("order_id = ? AND op_type = ?", orderID, op).
		Update("result", datatypes.JSON(result)).Error
}

// ReleaseFunds moves captured -> released and credits the freelancer's wallet
// ledger in one DB transaction.
func (s *GormStore) ReleaseFunds(ctx context.Context, orderID, freelancerID uuid.UUID, fee, net int64, payoutRef, description string) error {
	now := time.Now()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.EscrowTransaction{}).
			Where("order_id = ? AND state = ?", orderID, models.EscrowStateCaptured).
			Updates(map[string]any{
				"state":      models.EscrowStateReleased,
				"fee_amount": fee,
				"net_amount": net,
				"payout_ref": payoutRef,
				"closed_at":  &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &apperr.ConcurrencyConflict{Entity: "escrow transaction"}
		}
		return s.Wallet.CreditFreelancer(tx, freelancerID, net, orderID, description)
	})
}

// RefundFunds moves captured -> refunded and credits the client's wallet
// ledger in one DB transaction.
func (s *GormStore) RefundFunds(ctx context.Context, orderID, clientID uuid.UUID, amount int64, description string) error {
	now := time.Now()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.EscrowTransaction{}).
			Where("order_id = ? AND state = ?", orderID, models.EscrowStateCaptured).
			Updates(map[string]any{
				"state":     models.EscrowStateRefunded,
				"closed_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &apperr.ConcurrencyConflict{Entity: "escrow transaction"}
		}
		return s.Wallet.CreditClient(tx, clientID, amount, orderID, description)
	})
}

// ListReconcilePending returns transactions awaiting manual reconciliation,
// surfaced only to admin override.
func (s *GormStore) ListReconcilePending(ctx context.Context) ([]models.EscrowTransaction, error) {
	var txns []models.EscrowTransaction
	err := s.DB.WithContext(ctx).
		Where("reconcile_pending = ?", true).
		Order("updated_at ASC").
		Find(&txns).Error
	return txns, err
}
