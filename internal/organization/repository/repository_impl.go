package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetline/dispatchboard/internal/organization/domain"
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

func (r *repository) Create(ctx context.Context, org domain.Organization) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, join_code_hash, owner_user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		org.ID,
		org.Name,
		org.Slug,
		org.JoinCodeHash,
		org.OwnerUserID,
		org.CreatedAt,
		org.UpdatedAt,
	).Error
}

func (r *repository) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) GetByJoinCodeHash(ctx context.Context, hash string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).First(&org, "join_code_hash = ?", hash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *repository) ClaimOwner(ctx context.Context, orgID, userID snowflake.ID, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET owner_user_id = ?, updated_at = ?
		 WHERE id = ? AND owner_user_id IS NULL`,
		userID,
		now,
		orgID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListUnowned(ctx context.Context, olderThan time.Time, limit int) ([]domain.Organization, error) {
	var orgs []domain.Organization
	err := r.db.WithContext(ctx).
		Where("owner_user_id IS NULL AND updated_at < ?", olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orgs).Error
	if err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *repository) DeleteIfOrphan(ctx context.Context, orgID snowflake.ID, olderThan time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`DELETE FROM organizations
		 WHERE id = ?
		   AND owner_user_id IS NULL
		   AND updated_at < ?
		   AND NOT EXISTS (SELECT 1 FROM users WHERE users.organization_id = organizations.id)
		   AND NOT EXISTS (SELECT 1 FROM warehouses WHERE warehouses.organization_id = organizations.id)
		   AND NOT EXISTS (SELECT 1 FROM onboarding_entries WHERE onboarding_entries.organization_id = organizations.id)`,
		orgID,
		olderThan,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
