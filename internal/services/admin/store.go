package admin

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
)

type GormStore struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := s.DB.WithContext(ctx).First(&o, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperr.NotFound{Entity: "order"}
		}
		return nil, err
	}
	return &o, nil
}

// ForceStatus writes the status unconditionally. Only the override service
// uses this; normal transitions go through the CAS write.
func (s *GormStore) ForceStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	res := s.DB.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &apperr.NotFound{Entity: "order"}
	}
	return nil
}

func (s *GormStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	if err := s.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperr.NotFound{Entity: "user"}
		}
		return nil, err
	}
	return &u, nil
}

func (s *GormStore) DeactivateUser(ctx context.Context, id uuid.UUID) error {
	res := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &apperr.NotFound{Entity: "user"}
	}
	return nil
}

func (s *GormStore) GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	var r models.Report
	if err := s.DB.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperr.NotFound{Entity: "report"}
		}
		return nil, err
	}
	return &r, nil
}

// CloseReport is conditioned on pending so a terminal case can never be
// rewritten.
func (s *GormStore) CloseReport(ctx context.Context, id uuid.UUID, status models.ReportStatus, outcome string, adminID uuid.UUID) error {
	now := time.Now()
	res := s.DB.WithContext(ctx).Model(&models.Report{}).
		Where("id = ? AND status = ?", id, models.ReportStatusPending).
		Updates(map[string]any{
			"status":      status,
			"outcome":     outcome,
			"resolved_by": adminID,
			"resolved_at": &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &apperr.ConcurrencyConflict{Entity: "report status"}
	}
	return nil
}

func (s *GormStore) ListReconcilePending(ctx context.Context) ([]models.EscrowTransaction, error) {
	var txns []models.EscrowTransaction
	err := s.DB.WithContext(ctx).
		Where("reconcile_pending = ?", true).
		Order("updated_at ASC").
		Find(&txns).Error
	return txns, err
}

func (s *GormStore) ListWithdrawReconcile(ctx context.Context) ([]models.Withdrawal, error) {
	var rows []models.Withdrawal
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.WithdrawalReconcilePending).
		Order("updated_at ASC").
		Find(&rows).Error
	return rows, err
}

func (s *GormStore) RecentMessages(ctx context.Context, userA, userB uuid.UUID, limit int) ([]models.Message, error) {
	var conv models.Conversation
	err := s.DB.WithContext(ctx).
		Where("(client_id = ? AND freelancer_id = ?) OR (client_id = ? AND freelancer_id = ?)",
			userA, userB, userB, userA).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var msgs []models.Message
	err = s.DB.WithContext(ctx).
		Where("conversation_id = ?", conv.ID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}
