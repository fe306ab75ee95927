package models

import (
	"time"

	"github.com/google/uuid"
)

type WalletTrxType string

const (
	WalletTrxCredit WalletTrxType = "credit" // escrow release to freelancer
	WalletTrxDebit  WalletTrxType = "debit"  // withdrawal
	WalletTrxRefund WalletTrxType = "refund" // escrow refund to client
)

type WalletTransaction struct {
	ID          uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID      uuid.UUID     `gorm:"type:uuid;index;not null" json:"user_id"`
	Amount      int64         `gorm:"not null" json:"amount"`
	Type        WalletTrxType `gorm:"type:varchar(20);not null" json:"type"`
	Description string        `gorm:"type:text" json:"description"`
	ReferenceID *uuid.UUID    `gorm:"type:uuid;index" json:"reference_id,omitempty"` // order or withdrawal id
	CreatedAt   time.Time     `json:"created_at"`

	// Relation
	User *User `gorm:"foreignKey:UserID" json:"-"`
}
