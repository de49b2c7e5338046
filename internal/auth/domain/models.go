// Package domain contains the account model and the account-creation
// boundary used by signup.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is the account row created by the account-creation hook.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"column:organization_id;not null;index" json:"organization_id"`
	Email        string       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	Name         string       `gorm:"type:text" json:"name"`
	Role         string       `gorm:"type:text;not null" json:"role"`
	PasswordHash string       `gorm:"type:text;not null" json:"-"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string { return "users" }
