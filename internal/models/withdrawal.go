package models

import (
	"time"

	"github.com/google/uuid"
)

type WithdrawalStatus string

const (
	WithdrawalPending          WithdrawalStatus = "pending"
	WithdrawalSent             WithdrawalStatus = "sent"
	WithdrawalFailed           WithdrawalStatus = "failed" // gateway declined, debit reversed
	WithdrawalReconcilePending WithdrawalStatus = "reconcile_pending"
)

// Withdrawal is one payout attempt from a user's balance. The (user_id,
// request_key) unique index makes a client retry replay the first attempt
// instead of debiting and paying out twice.
type Withdrawal struct {
	ID         uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID        `gorm:"type:uuid;uniqueIndex:idx_withdrawal_req;not null" json:"user_id"`
	RequestKey string           `gorm:"type:varchar(80);uniqueIndex:idx_withdrawal_req;not null" json:"request_key"`
	Amount     int64            `gorm:"not null" json:"amount"`
	PayoutRef  string           `gorm:"type:varchar(80)" json:"payout_ref"`
	Status     WithdrawalStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	FailReason string           `gorm:"type:text" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
