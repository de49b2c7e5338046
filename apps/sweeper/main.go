// Command sweeper runs one reconciliation pass against the shared
// database and prints what it found and repaired. Without --apply it
// is a dry run.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fleetline/dispatchboard/internal/clock"
	"github.com/fleetline/dispatchboard/internal/config"
	"github.com/fleetline/dispatchboard/internal/observability"
	onbrepo "github.com/fleetline/dispatchboard/internal/onboarding/repository"
	orgrepo "github.com/fleetline/dispatchboard/internal/organization/repository"
	"github.com/fleetline/dispatchboard/internal/reconcile"
	"github.com/fleetline/dispatchboard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	apply := flag.Bool("apply", false, "repair what the pass finds instead of only reporting")
	reservationMinutes := flag.Int("reservation-minutes", 10, "reservations older than this are stale")
	organizationMinutes := flag.Int("organization-minutes", 30, "unowned organizations older than this are orphan candidates")
	limit := flag.Int("limit", 200, "maximum rows per category in one pass")
	flag.Parse()

	var sweeper *reconcile.Sweeper
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		clock.Module,
		db.Module,
		fx.Provide(onbrepo.NewRepository),
		fx.Provide(orgrepo.NewRepository),
		fx.Provide(reconcile.NewSweeper),
		fx.Populate(&sweeper),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintln(os.Stderr, "sweeper:", err)
		os.Exit(1)
	}

	report, err := sweeper.Run(context.Background(), reconcile.Options{
		ReservationStale:  time.Duration(*reservationMinutes) * time.Minute,
		OrganizationStale: time.Duration(*organizationMinutes) * time.Minute,
		Limit:             *limit,
		Apply:             *apply,
	})

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	stopErr := app.Stop(stopCtx)

	if err != nil {
		fmt.Fprintln(os.Stderr, "sweeper:", err)
		os.Exit(1)
	}

	mode := "dry-run"
	if *apply {
		mode = "apply"
	}
	fmt.Printf("mode:               %s\n", mode)
	fmt.Printf("stale reservations: %d\n", report.StaleReservations)
	fmt.Printf("released:           %d\n", report.Released)
	fmt.Printf("revoked:            %d\n", report.Revoked)
	fmt.Printf("orphan candidates:  %d\n", report.OrphanCandidates)
	fmt.Printf("orphans deleted:    %d\n", report.OrphansDeleted)
	fmt.Printf("failures:           %d\n", report.Failures)

	if stopErr != nil {
		fmt.Fprintln(os.Stderr, "sweeper:", stopErr)
		os.Exit(1)
	}
}
