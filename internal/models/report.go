package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ReportStatus string

const (
	ReportStatusPending   ReportStatus = "pending"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

type ReportTargetType string

const (
	ReportTargetOrder ReportTargetType = "order"
	ReportTargetUser  ReportTargetType = "user"
)

// Report is a dispute case filed by either party. Resolved only by admin;
// never reopened once resolved or dismissed.
type Report struct {
	ID         uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ReporterID uuid.UUID        `gorm:"type:uuid;index;not null" json:"reporter_id"`
	TargetType ReportTargetType `gorm:"type:varchar(20);not null" json:"target_type"`
	TargetID   uuid.UUID        `gorm:"type:uuid;index;not null" json:"target_id"`

	Reason   string         `gorm:"type:text;not null" json:"reason"`
	Evidence datatypes.JSON `json:"evidence"`

	Status     ReportStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Outcome    string       `gorm:"type:text" json:"outcome"`
	ResolvedBy *uuid.UUID   `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	Reporter *User `gorm:"foreignKey:ReporterID" json:"reporter,omitempty"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}
