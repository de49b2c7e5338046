package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestAsUniqueViolationNil(t *testing.T) {
	uv, ok := AsUniqueViolation(nil)
	assert.False(t, ok)
	assert.Nil(t, uv)
}

func TestAsUniqueViolationPostgres(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "ux_onboarding_entries_pending_slot",
	}
	wrapped := fmt.Errorf("insert: %w", pgErr)

	uv, ok := AsUniqueViolation(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "ux_onboarding_entries_pending_slot", uv.Constraint)
}

func TestAsUniqueViolationOtherPostgresCode(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23503", ConstraintName: "fk_users_org"}

	_, ok := AsUniqueViolation(pgErr)
	assert.False(t, ok)
}

func TestAsUniqueViolationGormTranslated(t *testing.T) {
	uv, ok := AsUniqueViolation(gorm.ErrDuplicatedKey)
	assert.True(t, ok)
	assert.Empty(t, uv.Constraint)
}

func TestAsUniqueViolationSQLiteMessage(t *testing.T) {
	err := errors.New("UNIQUE constraint failed: onboarding_entries.organization_id, onboarding_entries.email")

	_, ok := AsUniqueViolation(err)
	assert.True(t, ok)
}

func TestAsUniqueViolationPassthrough(t *testing.T) {
	original := &UniqueViolation{Constraint: "ux_organizations_slug"}
	wrapped := fmt.Errorf("create org: %w", original)

	uv, ok := AsUniqueViolation(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "ux_organizations_slug", uv.Constraint)
}

func TestAsUniqueViolationUnrelated(t *testing.T) {
	_, ok := AsUniqueViolation(errors.New("connection refused"))
	assert.False(t, ok)
}
