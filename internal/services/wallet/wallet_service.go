package wallet

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/models"
)

// ErrInsufficientBalance is returned when a debit would take the balance
// negative. The conditional update makes this race-safe.
var ErrInsufficientBalance = errors.New("insufficient balance")

type WalletService struct {
	DB *gorm.DB
}

func NewWalletService(db *gorm.DB) *WalletService {
	return &WalletService{DB: db}
}

// credit adds funds to the balance and writes the matching ledger row. Must
// be called within a DB transaction.
func (s *WalletService) credit(tx *gorm.DB, userID uuid.UUID, amount int64, trxType models.WalletTrxType, referenceID uuid.UUID, description string) error {
	if amount <= 0 {
		return errors.New("amount to credit must be greater than zero")
	}

	result := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("user not found for credit")
	}

	ledger := models.WalletTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Type:        trxType,
		Description: description,
		ReferenceID: &referenceID,
	}
	return tx.Create(&ledger).Error
}

// CreditFreelancer adds released escrow funds to the freelancer's balance.
func (s *WalletService) CreditFreelancer(tx *gorm.DB, userID uuid.UUID, amount int64, referenceID uuid.UUID, description string) error {
	return s.credit(tx, userID, amount, models.WalletTrxCredit, referenceID, description)
}

// CreditClient returns refunded funds to the client's balance.
func (s *WalletService) CreditClient(tx *gorm.DB, userID uuid.UUID, amount int64, referenceID uuid.UUID, description string) error {
	return s.credit(tx, userID, amount, models.WalletTrxRefund, referenceID, description)
}

// DebitUser deducts funds (withdrawal) and creates a ledger entry. The
// conditional update keeps the balance from going negative under races.
func (s *WalletService) DebitUser(tx *gorm.DB, userID uuid.UUID, amount int64, referenceID uuid.UUID, description string) error {
	if amount <= 0 {
		return errors.New("amount to debit must be greater than zero")
	}

	result := tx.Model(&models.User{}).
		Where("id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientBalance
	}

	ledger := models.WalletTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Type:        models.WalletTrxDebit,
		Description: description,
		ReferenceID: &referenceID,
	}
	return tx.Create(&ledger).Error
}
