package order

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
)

// GormStore is the gorm-backed Store.
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

func (s *GormStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	if err := s.DB.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperr.NotFound{Entity: "job"}
		}
		return nil, err
	}
	return &j, nil
}

func (s *GormStore) CreateOrder(ctx context.Context, o *models.Order) error {
	for i := 0; i < 5; i++ {
		o.OrderCode = models.GenerateOrderCode()
		err := s.DB.WithContext(ctx).Create(o).Error
		if err == nil {
			return nil
		}
		if !strings.Contains(strings.ToLower(err.Error()), "order_code") {
			return err
		}
	}
	return errors.New("order: could not allocate unique order code")
}

// CASStatus is the write conditioned on "status unchanged since read".
// RowsAffected == 0 means another transition already landed.
func (s *GormStore) CASStatus(ctx context.Context, id uuid.UUID, from, to models.OrderStatus, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	res := s.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &apperr.ConcurrencyConflict{Entity: "order status"}
	}
	return nil
}

func (s *GormStore) ListReviewExpired(ctx context.Context, before time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.DB.WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND completed_at <= ?", models.OrderStatusCompleted, before).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *GormStore) SetRating(ctx context.Context, id uuid.UUID, rating int, comment string) error {
	return s.DB.WithContext(ctx).Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{"rating": rating, "rating_comment": comment}).Error
}
