package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateUserRequest struct {
	Email    string
	Name     string
	Password string
	OrgID    snowflake.ID
	Role     string
}

// Service creates and removes accounts. Credential verification and
// session issuance live in the authentication framework, not here.
type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	DeleteUser(ctx context.Context, userID snowflake.ID) error
}

var (
	ErrUserExists     = errors.New("user_exists")
	ErrInvalidAccount = errors.New("invalid_account")
)
