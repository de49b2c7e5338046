// Package signup sequences the signup saga: resolve an organization
// assignment, create the account through an external hook, then
// finalize or compensate.
package signup

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	onbdomain "github.com/fleetline/dispatchboard/internal/onboarding/domain"
	orgdomain "github.com/fleetline/dispatchboard/internal/organization/domain"
	"github.com/fleetline/dispatchboard/internal/signup/domain"
	"go.uber.org/zap"
)

// Orchestrator resolves a signup request into an assignment context:
// which organization, which role, and under which grant.
type Orchestrator struct {
	orgs         orgdomain.Service
	reservations onbdomain.Service
	log          *zap.Logger
}

func NewOrchestrator(orgs orgdomain.Service, reservations onbdomain.Service, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		orgs:         orgs,
		reservations: reservations,
		log:          log.Named("signup.orchestrator"),
	}
}

// PrepareJoin reserves the approval slot for email in the organization
// the join code names. On success the returned context holds the
// reservation; refusals map to the saga's rejection errors.
func (o *Orchestrator) PrepareJoin(ctx context.Context, joinCode, email string) (*domain.AssignmentContext, error) {
	decision, err := o.reservations.Reserve(ctx,
		onbdomain.OrganizationSelector{JoinCode: joinCode}, email)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		if decision.Reason == onbdomain.ReasonInvalidOrgCode {
			return nil, domain.ErrInvalidOrgCode
		}
		return nil, domain.ErrSignupBlocked
	}
	return &domain.AssignmentContext{
		Kind:           domain.AssignmentJoinReservation,
		OrganizationID: decision.OrgID,
		Role:           decision.Role,
		ReservationID:  decision.ReservationID,
	}, nil
}

// PrepareCreate provisions a new organization with default dispatch
// settings and assigns the owner role. Idempotent within a request: a
// valid create_provision context that already exists is returned as
// is, so a retried phase never provisions twice.
func (o *Orchestrator) PrepareCreate(ctx context.Context, existing *domain.AssignmentContext, orgName string) (*domain.AssignmentContext, error) {
	if existing != nil && existing.Kind == domain.AssignmentCreateProvision {
		if err := existing.Validate(); err == nil {
			return existing, nil
		}
	}

	orgName = strings.TrimSpace(orgName)
	if orgName == "" {
		return nil, domain.ErrSignupRestricted
	}

	provisioned, err := o.orgs.Provision(ctx, orgName)
	if err != nil {
		if errors.Is(err, orgdomain.ErrInvalidName) {
			return nil, domain.ErrSignupRestricted
		}
		return nil, err
	}

	o.log.Info("organization provisioned for signup",
		zap.String("organization_id", provisioned.OrgID.String()),
	)

	return &domain.AssignmentContext{
		Kind:           domain.AssignmentCreateProvision,
		OrganizationID: provisioned.OrgID,
		Role:           orgdomain.RoleOwner,
	}, nil
}

// ExplicitAssignment builds the operator-supplied variant. The
// organization must exist; the caller's word alone is not enough to
// attach accounts to arbitrary ids.
func (o *Orchestrator) ExplicitAssignment(ctx context.Context, orgID snowflake.ID, role string) (*domain.AssignmentContext, error) {
	if _, err := o.orgs.GetByID(ctx, orgID); err != nil {
		return nil, err
	}
	assignment := &domain.AssignmentContext{
		Kind:           domain.AssignmentExplicit,
		OrganizationID: orgID,
		Role:           role,
	}
	if err := assignment.Validate(); err != nil {
		return nil, err
	}
	return assignment, nil
}
