// Package seed loads demo data for local development. It never runs
// in production and is the only code besides tests that removes
// onboarding rows.
package seed

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/fleetline/dispatchboard/internal/auth/domain"
	"github.com/fleetline/dispatchboard/internal/clock"
	"github.com/fleetline/dispatchboard/internal/config"
	onbdomain "github.com/fleetline/dispatchboard/internal/onboarding/domain"
	orgdomain "github.com/fleetline/dispatchboard/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	demoOrgName    = "Demo Fleet"
	demoOwnerEmail = "owner@demo.dispatchboard.dev"
	demoDriver     = "driver@demo.dispatchboard.dev"
)

var Module = fx.Module("seed",
	fx.Invoke(Run),
)

func Run(
	cfg config.Config,
	conn *gorm.DB,
	orgs orgdomain.Service,
	accounts authdomain.Service,
	entries onbdomain.Repository,
	clk clock.Clock,
	genID *snowflake.Node,
	log *zap.Logger,
) error {
	if !cfg.SeedDemoData || cfg.IsProduction() {
		return nil
	}
	logger := log.Named("seed")
	ctx := context.Background()

	var existing orgdomain.Organization
	err := conn.First(&existing, "slug = ?", "demo-fleet").Error
	if err == nil {
		logger.Info("demo data already present, skipping")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	provisioned, err := orgs.Provision(ctx, demoOrgName)
	if err != nil {
		return err
	}

	owner, err := accounts.CreateUser(ctx, authdomain.CreateUserRequest{
		Email:    demoOwnerEmail,
		Name:     "Demo Owner",
		Password: "demo-password",
		OrgID:    provisioned.OrgID,
		Role:     orgdomain.RoleOwner,
	})
	if err != nil {
		return err
	}
	if _, err := orgs.AssignOwner(ctx, provisioned.OrgID, owner.ID); err != nil {
		return err
	}

	now := clk.Now()
	if err := entries.Create(ctx, onbdomain.OnboardingEntry{
		ID:        genID.Generate(),
		OrgID:     provisioned.OrgID,
		Email:     onbdomain.NormalizeEmail(demoDriver),
		Kind:      onbdomain.KindApproval,
		Role:      orgdomain.RoleDriver,
		Status:    onbdomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return err
	}

	logger.Info("demo data seeded",
		zap.String("organization_id", provisioned.OrgID.String()),
		zap.String("join_code", provisioned.JoinCode),
		zap.String("approved_email", demoDriver),
	)
	return nil
}
