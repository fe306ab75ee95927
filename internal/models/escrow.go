package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EscrowState string

const (
	EscrowStateCreated  EscrowState = "created"  // gateway session opened, nothing captured yet
	EscrowStateCaptured EscrowState = "captured" // funds held by the platform
	EscrowStateReleased EscrowState = "released" // net paid out to the freelancer, terminal
	EscrowStateRefunded EscrowState = "refunded" // full amount returned to the client, terminal
)

// Terminal reports whether the transaction can never move again.
func (s EscrowState) Terminal() bool {
	return s == EscrowStateReleased || s == EscrowStateRefunded
}

// EscrowTransaction is the platform-owned hold record for one order.
// Invariant once released: NetAmount + FeeAmount == CapturedAmount.
type EscrowTransaction struct {
	ID      uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"order_id"`

	// Gateway references.
	ExternalRef string `gorm:"type:varchar(80);uniqueIndex" json:"external_ref"`
	CheckoutURL string `gorm:"type:text" json:"checkout_url"`
	PayerRef    string `gorm:"type:varchar(120)" json:"-"`
	PayoutRef   string `gorm:"type:varchar(80)" json:"payout_ref"`

	CapturedAmount int64 `json:"captured_amount"`
	FeeAmount      int64 `json:"fee_amount"`
	NetAmount      int64 `json:"net_amount"`

	State EscrowState `gorm:"type:varchar(20);not null;default:'created';index" json:"state"`

	// Set when gateway retries were exhausted and the outcome is unknown.
	// Visible only to admin reconciliation.
	ReconcilePending bool   `gorm:"default:false;index" json:"reconcile_pending"`
	ReconcileReason  string `gorm:"type:text" json:"-"`

	CapturedAt *time.Time `json:"captured_at"`
	ClosedAt   *time.Time `json:"closed_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (t *EscrowTransaction) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

type EscrowOpType string

const (
	EscrowOpCreateHold  EscrowOpType = "create_hold"
	EscrowOpConfirmHold EscrowOpType = "confirm_hold"
	EscrowOpRelease     EscrowOpType = "release"
	EscrowOpRefund      EscrowOpType = "refund"
)

// EscrowOperation reserves (order_id, op_type) so retries of a fund movement
// never double-act. The first completed call stores its result here; replays
// read it back instead of touching the gateway again.
type EscrowOperation struct {
	ID      uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID uuid.UUID      `gorm:"type:uuid;uniqueIndex:idx_escrow_op;not null" json:"order_id"`
	OpType  EscrowOpType   `gorm:"type:varchar(20);uniqueIndex:idx_escrow_op;not null" json:"op_type"`
	Result  datatypes.JSON `json:"result"`

	CreatedAt time.Time `json:"created_at"`
}
