// Package reconcile repairs signup sagas that lost their process:
// reservations nobody will finalize and organizations nobody owns.
package reconcile

import (
	"context"
	"time"

	"github.com/fleetline/dispatchboard/internal/clock"
	"github.com/fleetline/dispatchboard/internal/observability/metrics"
	onbdomain "github.com/fleetline/dispatchboard/internal/onboarding/domain"
	orgdomain "github.com/fleetline/dispatchboard/internal/organization/domain"
	"github.com/fleetline/dispatchboard/pkg/db"
	"go.uber.org/zap"
)

const (
	DefaultReservationStale  = 10 * time.Minute
	DefaultOrganizationStale = 30 * time.Minute
	DefaultLimit             = 200
)

// Options parameterize one sweep pass. Zero values fall back to the
// defaults above. Apply false is a dry run: report, mutate nothing.
type Options struct {
	ReservationStale  time.Duration
	OrganizationStale time.Duration
	Limit             int
	Apply             bool
}

func (o Options) withDefaults() Options {
	if o.ReservationStale <= 0 {
		o.ReservationStale = DefaultReservationStale
	}
	if o.OrganizationStale <= 0 {
		o.OrganizationStale = DefaultOrganizationStale
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	return o
}

// Report counts what one pass saw and, in apply mode, repaired.
type Report struct {
	StaleReservations int
	Released          int
	Revoked           int
	OrphanCandidates  int
	OrphansDeleted    int
	Failures          int
}

// Sweeper is idempotent: every repair is a conditional update, so a
// pass racing a live request (or another sweeper) loses cleanly.
type Sweeper struct {
	entries onbdomain.Repository
	orgs    orgdomain.Repository
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewSweeper(
	entries onbdomain.Repository,
	orgs orgdomain.Repository,
	clk clock.Clock,
	m *metrics.Metrics,
	log *zap.Logger,
) *Sweeper {
	return &Sweeper{
		entries: entries,
		orgs:    orgs,
		clock:   clk,
		metrics: m,
		log:     log.Named("reconcile"),
	}
}

// Run executes one pass. List failures abort the run; per-row repair
// failures are logged and counted, and the pass continues.
func (s *Sweeper) Run(ctx context.Context, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	now := s.clock.Now()
	report := &Report{}

	stale, err := s.entries.ListStaleReserved(ctx, now.Add(-opts.ReservationStale), opts.Limit)
	if err != nil {
		return nil, err
	}
	report.StaleReservations = len(stale)

	for _, entry := range stale {
		if !opts.Apply {
			continue
		}
		if err := s.repairReservation(ctx, entry, now, report); err != nil {
			report.Failures++
			s.log.Error("stale reservation repair failed",
				zap.String("entry_id", entry.ID.String()),
				zap.Error(err),
			)
		}
	}

	orphans, err := s.orgs.ListUnowned(ctx, now.Add(-opts.OrganizationStale), opts.Limit)
	if err != nil {
		return nil, err
	}
	report.OrphanCandidates = len(orphans)

	for _, org := range orphans {
		if !opts.Apply {
			continue
		}
		deleted, err := s.orgs.DeleteIfOrphan(ctx, org.ID, now.Add(-opts.OrganizationStale))
		if err != nil {
			report.Failures++
			s.log.Error("orphan organization delete failed",
				zap.String("organization_id", org.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if deleted {
			report.OrphansDeleted++
			s.metrics.IncSweepRepair(ctx, "organization_deleted")
			s.log.Info("orphan organization deleted",
				zap.String("organization_id", org.ID.String()),
			)
		}
	}

	s.log.Info("sweep complete",
		zap.Bool("apply", opts.Apply),
		zap.Int("stale_reservations", report.StaleReservations),
		zap.Int("released", report.Released),
		zap.Int("revoked", report.Revoked),
		zap.Int("orphan_candidates", report.OrphanCandidates),
		zap.Int("orphans_deleted", report.OrphansDeleted),
		zap.Int("failures", report.Failures),
	)
	return report, nil
}

func (s *Sweeper) repairReservation(ctx context.Context, entry onbdomain.OnboardingEntry, now time.Time, report *Report) error {
	ok, err := s.entries.MarkPending(ctx, entry.ID, now)
	if err != nil {
		// The slot was re-granted while this entry sat reserved; the
		// stale grant is spent, not restorable.
		if _, isDup := db.AsUniqueViolation(err); isDup {
			revoked, rerr := s.entries.MarkRevoked(ctx, entry.ID, nil, now)
			if rerr != nil {
				return rerr
			}
			if revoked {
				report.Revoked++
				s.metrics.IncSweepRepair(ctx, "reservation_revoked")
				s.log.Warn("stale reservation revoked on slot conflict",
					zap.String("entry_id", entry.ID.String()),
				)
			}
			return nil
		}
		return err
	}
	if ok {
		report.Released++
		s.metrics.IncSweepRepair(ctx, "reservation_released")
	}
	return nil
}
