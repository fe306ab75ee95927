package models

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	OrderStatusPending           OrderStatus = "pending"            // awaiting client acceptance + escrow capture
	OrderStatusAccepted          OrderStatus = "accepted"           // funds held, freelancer working
	OrderStatusSubmitted         OrderStatus = "submitted"          // work delivered, awaiting client review
	OrderStatusRevisionRequested OrderStatus = "revision_requested" // client asked for changes
	OrderStatusCompleted         OrderStatus = "completed"          // client approved, escrow still held
	OrderStatusProcessing        OrderStatus = "processing"         // payout in flight
	OrderStatusPaid              OrderStatus = "paid"               // payout confirmed
	OrderStatusRejected          OrderStatus = "rejected"           // cancelled, refunded if captured
	OrderStatusDisputed          OrderStatus = "disputed"           // frozen pending admin review
)

// Terminal reports whether no further transitions are allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusPaid || s == OrderStatusRejected
}

// Valid reports whether s is a member of the status enum.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusAccepted, OrderStatusSubmitted,
		OrderStatusRevisionRequested, OrderStatusCompleted, OrderStatusProcessing,
		OrderStatusPaid, OrderStatusRejected, OrderStatusDisputed:
		return true
	}
	return false
}

// Order is one client-freelancer contract for a single job. Status is the
// single source of truth for progress; the stage timestamps are set only by
// the transition that reaches them.
type Order struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderCode    string    `gorm:"unique;size:10" json:"order_code"`
	JobID        uuid.UUID `gorm:"type:uuid;index" json:"job_id"`
	ClientID     uuid.UUID `gorm:"type:uuid;index" json:"client_id"`
	FreelancerID uuid.UUID `gorm:"type:uuid;index" json:"freelancer_id"`

	// Immutable once the order leaves pending.
	BidAmount int64 `gorm:"not null" json:"bid_amount"`

	Title         string `gorm:"type:varchar(200)" json:"title"`
	Description   string `gorm:"type:text" json:"description"`
	RevisionCount int    `gorm:"default:0" json:"revision_count"`

	Status OrderStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`

	// Stage timestamps.
	StartedAt   *time.Time `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	CompletedAt *time.Time `json:"completed_at"`
	PaidAt      *time.Time `json:"paid_at"`

	// External references.
	EscrowRef  string `gorm:"type:varchar(80);index" json:"escrow_ref"`
	InvoiceRef string `gorm:"type:varchar(80)" json:"invoice_ref"`

	// Delivered work, uploaded to object storage and referenced by opaque path.
	DeliveryLink      string         `gorm:"type:text" json:"delivery_link"`
	DeliveryFiles     datatypes.JSON `json:"delivery_files"`
	UsedRevisionCount int            `gorm:"default:0" json:"used_revision_count"`

	// Optional post-completion rating by the client.
	Rating        *int   `json:"rating,omitempty"`
	RatingComment string `gorm:"type:text" json:"rating_comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Job        *Job  `gorm:"foreignKey:JobID" json:"job,omitempty"`
	Client     *User `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Freelancer *User `gorm:"foreignKey:FreelancerID" json:"freelancer,omitempty"`
}

// GenerateOrderCode generates a random alphanumeric code
func GenerateOrderCode() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
