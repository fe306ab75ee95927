package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

type VerificationLevel string

const (
	LevelUnverified       VerificationLevel = "unverified"
	LevelAgeVerified      VerificationLevel = "age_verified"
	LevelIdentityVerified VerificationLevel = "identity_verified"
	LevelApproved         VerificationLevel = "approved"
)

// rank orders the verification ladder. approved implies identity_verified
// implies age_verified.
var levelRank = map[VerificationLevel]int{
	LevelUnverified:       0,
	LevelAgeVerified:      1,
	LevelIdentityVerified: 2,
	LevelApproved:         3,
}

// AtLeast reports whether l satisfies the required level.
func (l VerificationLevel) AtLeast(required VerificationLevel) bool {
	return levelRank[l] >= levelRank[required]
}

// Above reports whether l is a strict promotion over other. Promotions are
// monotonic; a callback carrying a lower level is ignored.
func (l VerificationLevel) Above(other VerificationLevel) bool {
	return levelRank[l] > levelRank[other]
}

type User struct {
	ID    uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name  string    `gorm:"not null" json:"name"`
	Email string    `gorm:"uniqueIndex;not null" json:"email"`
	Phone string    `gorm:"type:varchar(30);uniqueIndex" json:"phone"`

	Password string `gorm:"not null" json:"-"`
	Role     Role   `gorm:"type:varchar(20);not null;index" json:"role"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	// Trust ladder. Promoted only by the identity-provider callback or an
	// explicit admin action, never by the user.
	VerificationLevel VerificationLevel `gorm:"type:varchar(30);not null;default:'unverified'" json:"verification_level"`

	// Payout destination, set once the provider links a bank account.
	BankLinked       bool   `gorm:"default:false" json:"bank_linked"`
	PayoutAccountRef string `gorm:"type:varchar(120)" json:"-"`

	// Guardian-mode interlock. Server-authoritative; financial actions are
	// refused while set regardless of any other state.
	GuardianLocked  bool   `gorm:"default:false" json:"guardian_locked"`
	GuardianLockSrc string `gorm:"type:varchar(20)" json:"-"` // owner | policy | admin

	Balance int64 `gorm:"default:0" json:"balance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
