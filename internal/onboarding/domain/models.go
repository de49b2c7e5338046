// Package domain contains the onboarding-entry model: a provisional or
// permanent grant of signup rights to one email for one organization.
package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	// StatusPending means the slot is open to be claimed.
	StatusPending = "pending"
	// StatusReserved means a signup attempt holds the slot while its
	// account is being created.
	StatusReserved = "reserved"
	// StatusApproved is terminal; no transition leaves it.
	StatusApproved = "approved"
	// StatusRevoked means the grant was withdrawn, by a manager or by
	// the reconciliation sweep.
	StatusRevoked = "revoked"
)

// KindApproval marks entries created by a manager approval.
const KindApproval = "approval"

// PendingSlotConstraint is the partial unique index that admits at
// most one pending entry per (organization, email, kind, role) slot.
// It is the mutual-exclusion primitive for the whole saga.
const PendingSlotConstraint = "ux_onboarding_entries_pending_slot"

// OnboardingEntry rows are never hard-deleted in production; only
// seed and test tooling removes them.
type OnboardingEntry struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID  `gorm:"column:organization_id;not null;index" json:"organization_id"`
	Email           string        `gorm:"type:text;not null" json:"email"`
	Kind            string        `gorm:"type:text;not null;default:'approval'" json:"kind"`
	Role            string        `gorm:"type:text;not null" json:"role"`
	Status          string        `gorm:"type:text;not null;default:'pending'" json:"status"`
	ReservedAt      *time.Time    `json:"reserved_at,omitempty"`
	RevokedAt       *time.Time    `json:"revoked_at,omitempty"`
	RevokedByUserID *snowflake.ID `gorm:"column:revoked_by_user_id" json:"revoked_by_user_id,omitempty"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (OnboardingEntry) TableName() string { return "onboarding_entries" }

// NormalizeEmail lowers and trims an address so slot matching is
// case- and whitespace-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
