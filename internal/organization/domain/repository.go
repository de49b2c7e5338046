package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, org Organization) error
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	GetByJoinCodeHash(ctx context.Context, hash string) (*Organization, error)

	// ClaimOwner sets owner_user_id only while it is still NULL.
	// Returns false when the organization is missing or already owned.
	ClaimOwner(ctx context.Context, orgID, userID snowflake.ID, now time.Time) (bool, error)

	// ListUnowned returns unowned organizations whose updated_at
	// predates olderThan, candidates for the reconciliation sweep.
	ListUnowned(ctx context.Context, olderThan time.Time, limit int) ([]Organization, error)

	// DeleteIfOrphan deletes the organization only if it is still
	// unowned, stale, and has zero referencing users, warehouses, and
	// onboarding entries. Orphan status is re-checked inside the
	// DELETE itself, not at selection time.
	DeleteIfOrphan(ctx context.Context, orgID snowflake.ID, olderThan time.Time) (bool, error)
}
