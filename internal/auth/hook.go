package auth

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/fleetline/dispatchboard/internal/auth/domain"
	signupdomain "github.com/fleetline/dispatchboard/internal/signup/domain"
	"go.uber.org/zap"
)

// HookAdapter exposes the account service through the signup saga's
// hook boundary. The saga never sees the account implementation, only
// the outcome payload.
type HookAdapter struct {
	accounts authdomain.Service
	log      *zap.Logger
}

func NewHookAdapter(accounts authdomain.Service, log *zap.Logger) signupdomain.AccountHook {
	return &HookAdapter{
		accounts: accounts,
		log:      log.Named("auth.hook"),
	}
}

func (h *HookAdapter) CreateAccount(ctx context.Context, account signupdomain.NewAccount) (signupdomain.AccountOutcome, error) {
	user, err := h.accounts.CreateUser(ctx, authdomain.CreateUserRequest{
		Email:    account.Email,
		Name:     account.Name,
		Password: account.Password,
		OrgID:    account.OrgID,
		Role:     account.Role,
	})
	if err != nil {
		// Duplicate or malformed accounts are ordinary refusals, not
		// hook failures.
		if errors.Is(err, authdomain.ErrUserExists) || errors.Is(err, authdomain.ErrInvalidAccount) {
			h.log.Info("account creation refused", zap.Error(err))
			return signupdomain.AccountOutcome{OK: false}, nil
		}
		return signupdomain.AccountOutcome{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
		},
	})
	if err != nil {
		return signupdomain.AccountOutcome{}, err
	}
	return signupdomain.AccountOutcome{OK: true, Payload: payload}, nil
}

func (h *HookAdapter) DeleteAccount(ctx context.Context, userID snowflake.ID) error {
	return h.accounts.DeleteUser(ctx, userID)
}
