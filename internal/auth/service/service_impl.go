package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetline/dispatchboard/internal/auth/domain"
	"github.com/fleetline/dispatchboard/internal/auth/password"
	"github.com/fleetline/dispatchboard/pkg/db"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewService(conn *gorm.DB, genID *snowflake.Node) domain.Service {
	return &service{db: conn, genID: genID}
}

func (s *service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.OrgID == 0 || strings.TrimSpace(req.Role) == "" {
		return nil, domain.ErrInvalidAccount
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, domain.ErrInvalidAccount
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           s.genID.Generate(),
		OrgID:        req.OrgID,
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Role:         req.Role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if _, ok := db.AsUniqueViolation(err); ok {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}

	return &user, nil
}

func (s *service) DeleteUser(ctx context.Context, userID snowflake.ID) error {
	if userID == 0 {
		return domain.ErrInvalidAccount
	}
	return s.db.WithContext(ctx).Exec(`DELETE FROM users WHERE id = ?`, userID).Error
}
