package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	dispatchdomain "github.com/fleetline/dispatchboard/internal/dispatch/domain"
	"github.com/fleetline/dispatchboard/internal/organization/domain"
	"github.com/fleetline/dispatchboard/pkg/db"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db    *gorm.DB
	repo  domain.Repository
	genID *snowflake.Node
	log   *zap.Logger
}

func NewService(conn *gorm.DB, repo domain.Repository, genID *snowflake.Node, log *zap.Logger) domain.Service {
	return &service{
		db:    conn,
		repo:  repo,
		genID: genID,
		log:   log.Named("organization"),
	}
}

func (s *service) Provision(ctx context.Context, name string) (*domain.Provisioned, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	orgID := s.genID.Generate()
	joinCode := ulid.Make().String()

	org := domain.Organization{
		ID:           orgID,
		Name:         name,
		Slug:         slug.Make(name),
		JoinCodeHash: HashJoinCode(joinCode),
		OwnerUserID:  nil,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var taken int64
	if err := s.db.WithContext(ctx).Table("organizations").Where("slug = ?", org.Slug).Count(&taken).Error; err != nil {
		return nil, err
	}
	if taken > 0 {
		org.Slug = fmt.Sprintf("%s-%s", org.Slug, orgID.String())
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, org); err != nil {
			// A concurrent signup can still win the slug between the
			// pre-check and the insert.
			if _, ok := db.AsUniqueViolation(err); ok {
				return domain.ErrInvalidName
			}
			return err
		}

		settings := dispatchdomain.DefaultDispatchSettings(orgID, now)
		return tx.WithContext(ctx).Create(&settings).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization provisioned",
		zap.String("organization_id", orgID.String()),
		zap.String("slug", org.Slug),
	)

	return &domain.Provisioned{
		OrgID:    orgID,
		Slug:     org.Slug,
		JoinCode: joinCode,
	}, nil
}

func (s *service) ResolveJoinCode(ctx context.Context, code string) (*domain.Organization, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrInvalidJoinCode
	}
	org, err := s.repo.GetByJoinCodeHash(ctx, HashJoinCode(code))
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, domain.ErrInvalidJoinCode
		}
		return nil, err
	}
	return org, nil
}

func (s *service) AssignOwner(ctx context.Context, orgID, userID snowflake.ID) (bool, error) {
	if orgID == 0 || userID == 0 {
		return false, domain.ErrNotFound
	}
	return s.repo.ClaimOwner(ctx, orgID, userID, time.Now().UTC())
}

func (s *service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	return s.repo.GetByID(ctx, id)
}

// HashJoinCode hashes a join code for storage and lookup. The hash is
// deterministic so the code can be resolved with an index scan.
func HashJoinCode(code string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
	return hex.EncodeToString(sum[:])
}
