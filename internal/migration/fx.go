// Package migration applies the schema at startup. Postgres runs the
// embedded SQL migrations; sqlite (dev and tests) auto-migrates the
// models and creates the partial unique index by hand.
package migration

import (
	"embed"
	"errors"
	"fmt"

	authdomain "github.com/fleetline/dispatchboard/internal/auth/domain"
	"github.com/fleetline/dispatchboard/internal/config"
	dispatchdomain "github.com/fleetline/dispatchboard/internal/dispatch/domain"
	onbdomain "github.com/fleetline/dispatchboard/internal/onboarding/domain"
	orgdomain "github.com/fleetline/dispatchboard/internal/organization/domain"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed sql/*.sql
var migrations embed.FS

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

func Run(cfg config.Config, conn *gorm.DB, log *zap.Logger) error {
	logger := log.Named("migration")

	switch cfg.DBType {
	case "postgres":
		if err := runPostgres(cfg, conn); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	case "sqlite":
		if err := runAutoMigrate(conn); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	default:
		return fmt.Errorf("migrations not supported for database type %q", cfg.DBType)
	}

	logger.Info("schema up to date", zap.String("database_type", cfg.DBType))
	return nil
}

func runPostgres(cfg config.Config, conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return err
	}
	source, err := iofs.New(migrations, "sql")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, cfg.DBName, driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func runAutoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&orgdomain.Organization{},
		&authdomain.User{},
		&onbdomain.OnboardingEntry{},
		&dispatchdomain.DispatchSettings{},
		&dispatchdomain.Warehouse{},
		&dispatchdomain.Driver{},
		&dispatchdomain.Route{},
	); err != nil {
		return err
	}
	return conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_onboarding_entries_pending_slot
		 ON onboarding_entries (organization_id, email, kind, role)
		 WHERE status = 'pending'`,
	).Error
}
