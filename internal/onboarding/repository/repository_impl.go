package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetline/dispatchboard/internal/onboarding/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry domain.OnboardingEntry) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO onboarding_entries
		 (id, organization_id, email, kind, role, status, reserved_at, revoked_at, revoked_by_user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OrgID,
		entry.Email,
		entry.Kind,
		entry.Role,
		entry.Status,
		entry.ReservedAt,
		entry.RevokedAt,
		entry.RevokedByUserID,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.OnboardingEntry, error) {
	var entry domain.OnboardingEntry
	err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindPendingSlot(ctx context.Context, orgID snowflake.ID, email, kind string) (*domain.OnboardingEntry, error) {
	var entry domain.OnboardingEntry
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND email = ? AND kind = ? AND status = ?",
			orgID, domain.NormalizeEmail(email), kind, domain.StatusPending).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) MarkReserved(ctx context.Context, id snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE onboarding_entries
		 SET status = ?, reserved_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusReserved, now, now, id, domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkApproved(ctx context.Context, id snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE onboarding_entries
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusApproved, now, id, domain.StatusReserved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkPending(ctx context.Context, id snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE onboarding_entries
		 SET status = ?, reserved_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusPending, now, id, domain.StatusReserved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkRevoked(ctx context.Context, id snowflake.ID, revokedBy *snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE onboarding_entries
		 SET status = ?, revoked_at = ?, revoked_by_user_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusRevoked, now, revokedBy, now, id, domain.StatusReserved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RevokePending(ctx context.Context, id snowflake.ID, revokedBy snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE onboarding_entries
		 SET status = ?, revoked_at = ?, revoked_by_user_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusRevoked, now, revokedBy, now, id, domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListStaleReserved(ctx context.Context, olderThan time.Time, limit int) ([]domain.OnboardingEntry, error) {
	var entries []domain.OnboardingEntry
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusReserved, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
