package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleOwner      = "OWNER"
	RoleDispatcher = "DISPATCHER"
	RoleDriver     = "DRIVER"
)

// Provisioned describes a freshly created organization. JoinCode is
// returned exactly once; only its hash is stored.
type Provisioned struct {
	OrgID    snowflake.ID
	Slug     string
	JoinCode string
}

type Service interface {
	// Provision creates an unowned organization plus its default
	// dispatch settings. Ownership is claimed later, after the
	// owning account exists.
	Provision(ctx context.Context, name string) (*Provisioned, error)

	// ResolveJoinCode maps a join code to its organization.
	ResolveJoinCode(ctx context.Context, code string) (*Organization, error)

	// AssignOwner claims ownership for userID; false means the
	// organization is gone or already owned.
	AssignOwner(ctx context.Context, orgID, userID snowflake.ID) (bool, error)

	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)
}

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidJoinCode = errors.New("invalid_join_code")
	ErrNotFound        = errors.New("organization_not_found")
)
