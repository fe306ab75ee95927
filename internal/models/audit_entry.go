package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditEntry is an append-only record of a sensitive action. Rows are never
// updated or deleted; there is deliberately no UpdatedAt column.
type AuditEntry struct {
	ID       uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ActorID  uuid.UUID      `gorm:"type:uuid;index" json:"actor_id"`
	Action   string         `gorm:"type:varchar(60);index;not null" json:"action"`
	TargetID string         `gorm:"type:varchar(80);index" json:"target_id"`
	Detail   datatypes.JSON `json:"detail"`

	CreatedAt time.Time `json:"created_at"`
}
