package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetline/dispatchboard/internal/clock"
	"github.com/fleetline/dispatchboard/internal/observability/metrics"
	"github.com/fleetline/dispatchboard/internal/onboarding/domain"
	orgdomain "github.com/fleetline/dispatchboard/internal/organization/domain"
	"github.com/fleetline/dispatchboard/pkg/db"
	"go.uber.org/zap"
)

type service struct {
	repo    domain.Repository
	orgs    orgdomain.Service
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewService(
	repo domain.Repository,
	orgs orgdomain.Service,
	clk clock.Clock,
	m *metrics.Metrics,
	log *zap.Logger,
) domain.Service {
	return &service{
		repo:    repo,
		orgs:    orgs,
		clock:   clk,
		metrics: m,
		log:     log.Named("onboarding"),
	}
}

func (s *service) Reserve(ctx context.Context, selector domain.OrganizationSelector, email string) (domain.Decision, error) {
	org, err := s.orgs.ResolveJoinCode(ctx, selector.JoinCode)
	if err != nil {
		if errors.Is(err, orgdomain.ErrInvalidJoinCode) {
			return domain.Decision{Allowed: false, Reason: domain.ReasonInvalidOrgCode}, nil
		}
		return domain.Decision{}, err
	}

	email = domain.NormalizeEmail(email)

	// A lost race on the conditional update means someone else reserved
	// the slot between the read and the write; re-read in case a fresh
	// pending entry appeared (e.g. a release landed in between).
	for attempt := 0; attempt < 2; attempt++ {
		entry, err := s.repo.FindPendingSlot(ctx, org.ID, email, domain.KindApproval)
		if err != nil {
			return domain.Decision{}, err
		}
		if entry == nil {
			return domain.Decision{Allowed: false, Reason: domain.ReasonApprovalNotFound}, nil
		}

		ok, err := s.repo.MarkReserved(ctx, entry.ID, s.clock.Now())
		if err != nil {
			return domain.Decision{}, err
		}
		if ok {
			return domain.Decision{
				Allowed:       true,
				ReservationID: entry.ID,
				OrgID:         org.ID,
				Role:          entry.Role,
			}, nil
		}

		s.metrics.IncReservationConflict(ctx)
		s.log.Debug("reservation lost race, retrying",
			zap.String("entry_id", entry.ID.String()),
			zap.String("organization_id", org.ID.String()),
		)
	}

	return domain.Decision{Allowed: false, Reason: domain.ReasonApprovalNotFound}, nil
}

func (s *service) Finalize(ctx context.Context, reservationID, userID snowflake.ID) (bool, error) {
	ok, err := s.repo.MarkApproved(ctx, reservationID, s.clock.Now())
	if err != nil {
		return false, err
	}
	if !ok {
		s.log.Warn("finalize lost reservation",
			zap.String("reservation_id", reservationID.String()),
			zap.String("user_id", userID.String()),
		)
	}
	return ok, nil
}

func (s *service) Release(ctx context.Context, reservationID snowflake.ID) (bool, error) {
	now := s.clock.Now()

	ok, err := s.repo.MarkPending(ctx, reservationID, now)
	if err != nil {
		// The slot can be occupied again: a manager may have issued a
		// fresh pending approval while this one was reserved. The grant
		// was consumed either way, so convert it to revoked.
		if _, isDup := db.AsUniqueViolation(err); isDup {
			revoked, rerr := s.repo.MarkRevoked(ctx, reservationID, nil, now)
			if rerr != nil {
				return false, rerr
			}
			if revoked {
				s.log.Warn("released reservation revoked due to slot conflict",
					zap.String("reservation_id", reservationID.String()),
				)
			}
			return false, nil
		}
		return false, err
	}
	if !ok {
		s.log.Warn("release found reservation not in reserved state",
			zap.String("reservation_id", reservationID.String()),
		)
	}
	return ok, nil
}
