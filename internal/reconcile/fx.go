package reconcile

import (
	"context"
	"time"

	"github.com/fleetline/dispatchboard/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("reconcile",
	fx.Provide(NewSweeper),
	fx.Invoke(registerRunner),
)

// registerRunner re-runs the sweep on an interval for the lifetime of
// the server process. The CLI in apps/sweeper drives the same Run for
// one-shot and dry-run use.
func registerRunner(lc fx.Lifecycle, sweeper *Sweeper, cfg config.Config, log *zap.Logger) {
	interval, err := time.ParseDuration(cfg.SweepInterval)
	if err != nil || interval <= 0 {
		interval = 5 * time.Minute
	}

	opts := Options{
		ReservationStale:  time.Duration(cfg.SweepReservationMinutes) * time.Minute,
		OrganizationStale: time.Duration(cfg.SweepOrganizationMinutes) * time.Minute,
		Limit:             cfg.SweepLimit,
		Apply:             true,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	logger := log.Named("reconcile.runner")

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-runCtx.Done():
						return
					case <-ticker.C:
						if _, err := sweeper.Run(runCtx, opts); err != nil {
							logger.Error("sweep run failed", zap.Error(err))
						}
					}
				}
			}()
			logger.Info("reconciliation runner started", zap.Duration("interval", interval))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		},
	})
}
