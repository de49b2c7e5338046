package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolationCode = "23505"

// UniqueViolation is the normalized form of a database uniqueness
// conflict. Service code branches on this type instead of parsing
// driver error strings.
type UniqueViolation struct {
	Constraint string
	cause      error
}

func (e *UniqueViolation) Error() string {
	if e.Constraint == "" {
		return "unique constraint violation"
	}
	return "unique constraint violation: " + e.Constraint
}

func (e *UniqueViolation) Unwrap() error { return e.cause }

// AsUniqueViolation reports whether err is a uniqueness conflict and,
// when the driver exposes it, which constraint was hit.
func AsUniqueViolation(err error) (*UniqueViolation, bool) {
	if err == nil {
		return nil, false
	}

	var uv *UniqueViolation
	if errors.As(err, &uv) {
		return uv, true
	}

	// PostgreSQL via pgx: error code 23505 carries the constraint name.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode {
		return &UniqueViolation{Constraint: pgErr.ConstraintName, cause: err}, true
	}

	// GORM translates driver duplicates when TranslateError is on.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &UniqueViolation{cause: err}, true
	}

	// SQLite (tests) does not expose a structured constraint name.
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &UniqueViolation{cause: err}, true
	}

	// MySQL duplicate entry (error 1062).
	if strings.Contains(err.Error(), "Error 1062") {
		return &UniqueViolation{cause: err}, true
	}

	return nil, false
}
