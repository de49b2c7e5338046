package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetline/dispatchboard/internal/auth"
	"github.com/fleetline/dispatchboard/internal/clock"
	"github.com/fleetline/dispatchboard/internal/config"
	"github.com/fleetline/dispatchboard/internal/migration"
	"github.com/fleetline/dispatchboard/internal/notification"
	"github.com/fleetline/dispatchboard/internal/observability"
	"github.com/fleetline/dispatchboard/internal/onboarding"
	"github.com/fleetline/dispatchboard/internal/organization"
	"github.com/fleetline/dispatchboard/internal/reconcile"
	"github.com/fleetline/dispatchboard/internal/seed"
	"github.com/fleetline/dispatchboard/internal/server"
	"github.com/fleetline/dispatchboard/internal/signup"
	"github.com/fleetline/dispatchboard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(newSnowflakeNode),
		db.Module,
		migration.Module,
		organization.Module,
		onboarding.Module,
		auth.Module,
		notification.Module,
		signup.Module,
		reconcile.Module,
		seed.Module,
		server.Module,
	).Run()
}

func newSnowflakeNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	return snowflake.NewNode(nodeID)
}
