// Package server wires the HTTP surface: the public signup endpoint,
// the admin surface, and the operational endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fleetline/dispatchboard/internal/config"
	"github.com/fleetline/dispatchboard/internal/observability"
	"github.com/fleetline/dispatchboard/internal/observability/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("server",
	fx.Provide(NewSignupHandler),
	fx.Provide(NewAdminHandler),
	fx.Provide(NewRouter),
	fx.Invoke(Run),
)

func NewRouter(
	obsCfg observability.Config,
	signupHandler *SignupHandler,
	adminHandler *AdminHandler,
) *gin.Engine {
	if obsCfg.Debug() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: ClassifyForLogs,
	}))
	engine.Use(ErrorHandlingMiddleware())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	signupHandler.Register(engine)
	adminHandler.Register(engine)

	return engine
}

func Run(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverLog := log.Named("server")

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				serverLog.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverLog.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
