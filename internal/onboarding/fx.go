package onboarding

import (
	"github.com/fleetline/dispatchboard/internal/onboarding/repository"
	"github.com/fleetline/dispatchboard/internal/onboarding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("onboarding.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
