// Package domain contains persistence models for the organization service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Organization represents a tenant. OwnerUserID stays NULL between
// speculative provisioning and owner finalization; the reconciliation
// sweep removes organizations stuck in that window with no references.
type Organization struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	Name         string        `gorm:"type:text;not null" json:"name"`
	Slug         string        `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	JoinCodeHash string        `gorm:"type:text;not null;column:join_code_hash;index" json:"-"`
	OwnerUserID  *snowflake.ID `gorm:"column:owner_user_id" json:"owner_user_id,omitempty"`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Organization) TableName() string { return "organizations" }
