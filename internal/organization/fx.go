package organization

import (
	"github.com/fleetline/dispatchboard/internal/organization/repository"
	"github.com/fleetline/dispatchboard/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
