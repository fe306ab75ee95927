package audit

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/juniorlance/juniorlance_be/internal/models"
)

// Normalized action names. Every sensitive action writes exactly one entry.
const (
	ActionOrderTransition    = "order.transition"
	ActionEscrowHold         = "escrow.hold"
	ActionEscrowCapture      = "escrow.capture"
	ActionEscrowRelease      = "escrow.release"
	ActionEscrowRefund       = "escrow.refund"
	ActionEscrowError        = "escrow.error"
	ActionGatePromote        = "gate.promote"
	ActionWalletWithdraw     = "wallet.withdraw"
	ActionWalletError        = "wallet.error"
	ActionInterlockSet       = "interlock.set"
	ActionInterlockClear     = "interlock.clear"
	ActionInterlockTrip      = "interlock.trip"
	ActionAdminForceRelease  = "admin.force_release"
	ActionAdminForceRefund   = "admin.force_refund"
	ActionAdminBanUser       = "admin.ban_user"
	ActionAdminResolveReport = "admin.resolve_report"
)

// Entry is one audit fact before persistence.
type Entry struct {
	ActorID  uuid.UUID
	Action   string
	TargetID string
	Detail   map[string]any
}

// Recorder is what the other services depend on. Record never returns an
// error: a failed audit write must not roll back a successful financial
// operation, but it is never silent either.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

type Service struct {
	DB *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, e Entry) {
	detail, err := json.Marshal(e.Detail)
	if err != nil {
		log.Printf("[AUDIT-ALERT] marshal detail for %s on %s: %v", e.Action, e.TargetID, err)
		detail = []byte(`{}`)
	}

	row := models.AuditEntry{
		ActorID:  e.ActorID,
		Action:   e.Action,
		TargetID: e.TargetID,
		Detail:   datatypes.JSON(detail),
	}

	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		// Alert marker is scraped by monitoring; logging failure is never
		// silent and never blocking.
		log.Printf("[AUDIT-ALERT] append failed for %s on %s: %v", e.Action, e.TargetID, err)
	}
}
