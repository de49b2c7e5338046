package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// NewAccount is what the saga hands the account-creation hook. The
// org and role come from the validated assignment context, never from
// the raw request.
type NewAccount struct {
	Email    string
	Name     string
	Password string
	OrgID    snowflake.ID
	Role     string
}

// AccountOutcome is the hook's verdict. Payload is the raw response
// body the client ultimately receives on success; the saga treats it
// as opaque except for extracting the created user.
type AccountOutcome struct {
	OK      bool
	Payload []byte
}

// AccountHook is the external account-creation boundary. CreateAccount
// failures are ordinary outcomes (OK=false); errors mean the hook
// itself could not run.
type AccountHook interface {
	CreateAccount(ctx context.Context, account NewAccount) (AccountOutcome, error)
	DeleteAccount(ctx context.Context, userID snowflake.ID) error
}

// CreatedUser is the minimal shape the saga needs back from a
// successful hook payload.
type CreatedUser struct {
	ID    snowflake.ID
	Email string
}

type createdUserEnvelope struct {
	User *struct {
		ID    snowflake.ID `json:"id"`
		Email string       `json:"email"`
	} `json:"user"`
}

// ParseCreatedUser extracts {user:{id,email}} from a hook payload.
// Anything short of that exact shape is an error; callers decide
// whether a malformed payload releases or strands the reservation.
func ParseCreatedUser(payload []byte) (*CreatedUser, error) {
	var envelope createdUserEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("account payload: %w", err)
	}
	if envelope.User == nil {
		return nil, fmt.Errorf("account payload: missing user object")
	}
	if envelope.User.ID == 0 {
		return nil, fmt.Errorf("account payload: missing user id")
	}
	if envelope.User.Email == "" {
		return nil, fmt.Errorf("account payload: missing user email")
	}
	return &CreatedUser{ID: envelope.User.ID, Email: envelope.User.Email}, nil
}
