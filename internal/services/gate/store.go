package gate

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/apperr"
	"github.com/juniorlance/juniorlance_be/internal/models"
)

// Store is the gorm-backed UserStore.
type Store struct {
	DB *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &apperr.NotFound{Entity: "user"}
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) PromoteLevel(ctx context.Context, id uuid.UUID, from, to models.VerificationLevel, bankLinked bool, payoutRef string) error {
	updates := map[string]any{"verification_level": to}
	if bankLinked {
		updates["bank_linked"] = true
		updates["payout_account_ref"] = payoutRef
	}

	res := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND verification_level = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &apperr.ConcurrencyConflict{Entity: "user verification level"}
	}
	return nil
}
