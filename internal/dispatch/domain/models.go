// Package domain contains persistence models for the dispatch surface.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DispatchSettings stores per-organization dispatch defaults,
// provisioned together with the organization.
type DispatchSettings struct {
	OrgID                    snowflake.ID `gorm:"primaryKey;column:organization_id" json:"organization_id"`
	MaxActiveRoutesPerDriver int          `gorm:"not null;default:1" json:"max_active_routes_per_driver"`
	BidWindowSeconds         int          `gorm:"not null;default:120" json:"bid_window_seconds"`
	AutoAssign               bool         `gorm:"not null;default:false" json:"auto_assign"`
	CreatedAt                time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt                time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (DispatchSettings) TableName() string { return "dispatch_settings" }

// DefaultDispatchSettings returns the defaults written when an
// organization is provisioned.
func DefaultDispatchSettings(orgID snowflake.ID, now time.Time) DispatchSettings {
	return DispatchSettings{
		OrgID:                    orgID,
		MaxActiveRoutesPerDriver: 1,
		BidWindowSeconds:         120,
		AutoAssign:               false,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

// Warehouse is a pickup location belonging to an organization.
type Warehouse struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"column:organization_id;not null;index" json:"organization_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Address   string       `gorm:"type:text" json:"address"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Warehouse) TableName() string { return "warehouses" }

// Driver is a delivery driver profile linked to a user account.
type Driver struct {
	ID        snowflake.ID      `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID      `gorm:"column:organization_id;not null;index" json:"organization_id"`
	UserID    snowflake.ID      `gorm:"not null;index" json:"user_id"`
	Status    string            `gorm:"type:text;not null;default:'inactive'" json:"status"`
	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Driver) TableName() string { return "drivers" }

// Route is a delivery run dispatched out of a warehouse.
type Route struct {
	ID          snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID  `gorm:"column:organization_id;not null;index" json:"organization_id"`
	WarehouseID snowflake.ID  `gorm:"not null;index" json:"warehouse_id"`
	DriverID    *snowflake.ID `gorm:"index" json:"driver_id,omitempty"`
	Status      string        `gorm:"type:text;not null;default:'open'" json:"status"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Route) TableName() string { return "routes" }
