package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository exposes the conditional-update primitives over
// onboarding entries. Every Mark* method returns whether the expected
// prior state held; zero rows affected is a clean false, never an
// error.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, entry OnboardingEntry) error
	GetByID(ctx context.Context, id snowflake.ID) (*OnboardingEntry, error)

	// FindPendingSlot locates the pending entry for (org, email, kind).
	// Returns nil without error when no such entry exists.
	FindPendingSlot(ctx context.Context, orgID snowflake.ID, email, kind string) (*OnboardingEntry, error)

	// MarkReserved: pending → reserved.
	MarkReserved(ctx context.Context, id snowflake.ID, now time.Time) (bool, error)
	// MarkApproved: reserved → approved. approved is terminal.
	MarkApproved(ctx context.Context, id snowflake.ID, now time.Time) (bool, error)
	// MarkPending: reserved → pending. May return a *db.UniqueViolation
	// wrapped error when another pending entry has taken the slot.
	MarkPending(ctx context.Context, id snowflake.ID, now time.Time) (bool, error)
	// MarkRevoked: reserved → revoked. A nil revokedBy means
	// system-initiated.
	MarkRevoked(ctx context.Context, id snowflake.ID, revokedBy *snowflake.ID, now time.Time) (bool, error)
	// RevokePending: pending → revoked, manager-initiated.
	RevokePending(ctx context.Context, id snowflake.ID, revokedBy snowflake.ID, now time.Time) (bool, error)

	// ListStaleReserved returns reserved entries whose updated_at
	// predates olderThan, oldest first.
	ListStaleReserved(ctx context.Context, olderThan time.Time, limit int) ([]OnboardingEntry, error)
}
