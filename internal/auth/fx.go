package auth

import (
	"github.com/fleetline/dispatchboard/internal/auth/service"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(service.NewService),
	fx.Provide(NewHookAdapter),
)
