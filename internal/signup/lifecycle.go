package signup

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetline/dispatchboard/internal/config"
	"github.com/fleetline/dispatchboard/internal/notification"
	"github.com/fleetline/dispatchboard/internal/observability/metrics"
	onbdomain "github.com/fleetline/dispatchboard/internal/onboarding/domain"
	orgdomain "github.com/fleetline/dispatchboard/internal/organization/domain"
	"github.com/fleetline/dispatchboard/internal/signup/domain"
	"go.uber.org/zap"
)

// Controller drives a signup attempt through its phases. The phases
// share no state except the serialized assignment context, which is
// re-validated on every read.
type Controller struct {
	orchestrator *Orchestrator
	reservations onbdomain.Service
	orgs         orgdomain.Service
	hook         domain.AccountHook
	policy       *config.SignupPolicyHolder
	metrics      *metrics.Metrics
	notifier     notification.Notifier
	log          *zap.Logger
}

func NewController(
	orchestrator *Orchestrator,
	reservations onbdomain.Service,
	orgs orgdomain.Service,
	hook domain.AccountHook,
	policy *config.SignupPolicyHolder,
	m *metrics.Metrics,
	notifier notification.Notifier,
	log *zap.Logger,
) *Controller {
	return &Controller{
		orchestrator: orchestrator,
		reservations: reservations,
		orgs:         orgs,
		hook:         hook,
		policy:       policy,
		metrics:      m,
		notifier:     notifier,
		log:          log.Named("signup"),
	}
}

// Signup runs the whole saga for one request. Rejections come back as
// the domain sentinel errors; any other error is an infrastructure
// failure.
func (c *Controller) Signup(ctx context.Context, req domain.Request) (*domain.Outcome, error) {
	c.metrics.IncSignupAttempt(ctx, req.OrgMode)

	email, err := c.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	var assignment *domain.AssignmentContext
	switch req.OrgMode {
	case domain.OrgModeJoin:
		assignment, err = c.orchestrator.PrepareJoin(ctx, req.OrgCode, email)
	case domain.OrgModeCreate:
		assignment, err = c.orchestrator.PrepareCreate(ctx, nil, req.OrgName)
	default:
		return nil, c.reject(ctx, "invalid_org_mode")
	}
	if err != nil {
		switch err {
		case domain.ErrInvalidOrgCode:
			c.metrics.IncSignupRejected(ctx, onbdomain.ReasonInvalidOrgCode)
		case domain.ErrSignupBlocked:
			c.metrics.IncSignupRejected(ctx, onbdomain.ReasonApprovalNotFound)
		case domain.ErrSignupRestricted:
			c.metrics.IncSignupRejected(ctx, "restricted")
		}
		return nil, err
	}

	// The context crosses the phase boundary serialized, exactly as it
	// would over a queue; the next phase trusts only what re-validates.
	raw, err := domain.EncodeAssignment(*assignment)
	if err != nil {
		c.abandonAssignment(ctx, assignment)
		return nil, err
	}

	return c.runAccountPhase(ctx, raw, email, req)
}

// PlaceAccount creates an account under an operator-supplied
// assignment, outside the signup gate. No reservation is taken and
// nothing needs settling.
func (c *Controller) PlaceAccount(ctx context.Context, orgID snowflake.ID, role string, req domain.Request) (*domain.Outcome, error) {
	assignment, err := c.orchestrator.ExplicitAssignment(ctx, orgID, role)
	if err != nil {
		return nil, err
	}
	raw, err := domain.EncodeAssignment(*assignment)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, domain.ErrSignupRestricted
	}
	return c.runAccountPhase(ctx, raw, email, req)
}

// validate applies the hot-reloaded signup policy. All refusals here
// collapse to ErrSignupRestricted; the reasons only reach metrics.
func (c *Controller) validate(ctx context.Context, req domain.Request) (string, error) {
	policy := c.policy.Get()
	if !policy.Enabled {
		return "", c.reject(ctx, "disabled")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return "", c.reject(ctx, "missing_email")
	}
	if policy.RequiresInviteCode() && req.InviteCode != policy.InviteCode {
		return "", c.reject(ctx, "invalid_invite_code")
	}
	if !policy.EmailDomainAllowed(email) {
		return "", c.reject(ctx, "allowlist_denied")
	}
	return email, nil
}

func (c *Controller) reject(ctx context.Context, reason string) error {
	c.metrics.IncSignupRejected(ctx, reason)
	return domain.ErrSignupRestricted
}

func (c *Controller) runAccountPhase(ctx context.Context, raw []byte, email string, req domain.Request) (*domain.Outcome, error) {
	assignment, err := domain.DecodeAssignment(raw)
	if err != nil {
		c.log.Error("assignment context failed validation", zap.Error(err))
		return nil, domain.ErrSignupBlocked
	}

	outcome, err := c.hook.CreateAccount(ctx, domain.NewAccount{
		Email:    email,
		Name:     req.Name,
		Password: req.Password,
		OrgID:    assignment.OrganizationID,
		Role:     assignment.Role,
	})
	if err != nil || !outcome.OK {
		if err != nil {
			c.log.Warn("account hook failed", zap.Error(err))
		}
		c.abandonAssignment(ctx, assignment)
		return nil, domain.ErrSignupBlocked
	}

	return c.settle(ctx, assignment, email, outcome)
}

// settle inspects the hook's success payload and commits or
// compensates. The client response is decided here; reconciliation
// reporting never changes it afterwards.
func (c *Controller) settle(ctx context.Context, assignment *domain.AssignmentContext, email string, outcome domain.AccountOutcome) (*domain.Outcome, error) {
	user, err := domain.ParseCreatedUser(outcome.Payload)
	if err != nil {
		switch assignment.Kind {
		case domain.AssignmentJoinReservation:
			// The account may or may not exist; without a user id there
			// is nothing to compensate. Give the slot back.
			c.releaseQuietly(ctx, assignment.ReservationID)
			c.log.Error("unparseable account payload on join", zap.Error(err))
			return nil, domain.ErrSignupBlocked
		case domain.AssignmentCreateProvision:
			// The hook reported success, so the response stands. The
			// organization cannot be auto-claimed without a user id.
			c.reportReconciliation(ctx, notification.ReconciliationEvent{
				Mode:        domain.AssignmentCreateProvision,
				OrgID:       assignment.OrganizationID.String(),
				EmailDomain: domain.EmailDomain(email),
				Detail:      "unparseable account payload, owner not assigned",
			})
			return &domain.Outcome{Payload: outcome.Payload}, nil
		default:
			return &domain.Outcome{Payload: outcome.Payload}, nil
		}
	}

	switch assignment.Kind {
	case domain.AssignmentJoinReservation:
		ok, ferr := c.reservations.Finalize(ctx, assignment.ReservationID, user.ID)
		if ferr != nil {
			c.reportReconciliation(ctx, notification.ReconciliationEvent{
				Mode:          domain.AssignmentJoinReservation,
				ReservationID: assignment.ReservationID.String(),
				UserID:        user.ID.String(),
				OrgID:         assignment.OrganizationID.String(),
				EmailDomain:   domain.EmailDomain(email),
				Detail:        "finalize failed: " + ferr.Error(),
			})
			return nil, ferr
		}
		if !ok {
			// Lost the reservation between account creation and
			// finalize. Compensate by deleting the account.
			if derr := c.hook.DeleteAccount(ctx, user.ID); derr != nil {
				c.log.Error("compensating account delete failed",
					zap.String("user_id", user.ID.String()),
					zap.Error(derr),
				)
			}
			c.reportReconciliation(ctx, notification.ReconciliationEvent{
				Mode:          domain.AssignmentJoinReservation,
				ReservationID: assignment.ReservationID.String(),
				UserID:        user.ID.String(),
				OrgID:         assignment.OrganizationID.String(),
				EmailDomain:   domain.EmailDomain(email),
				Detail:        "reservation lost before finalize, account deleted",
			})
			return nil, domain.ErrSignupBlocked
		}
		return &domain.Outcome{Payload: outcome.Payload}, nil

	case domain.AssignmentCreateProvision:
		claimed, cerr := c.orgs.AssignOwner(ctx, assignment.OrganizationID, user.ID)
		if cerr != nil || !claimed {
			detail := "owner claim found organization missing or already owned"
			if cerr != nil {
				detail = "owner claim failed: " + cerr.Error()
			}
			// The account exists and the hook response stands; the
			// dangling organization is the sweeper's problem.
			c.reportReconciliation(ctx, notification.ReconciliationEvent{
				Mode:        domain.AssignmentCreateProvision,
				UserID:      user.ID.String(),
				OrgID:       assignment.OrganizationID.String(),
				EmailDomain: domain.EmailDomain(email),
				Detail:      detail,
			})
		}
		return &domain.Outcome{Payload: outcome.Payload}, nil

	default:
		return &domain.Outcome{Payload: outcome.Payload}, nil
	}
}

// abandonAssignment undoes whatever a pre-account phase acquired.
// Provisioned organizations are left for the sweeper; reservations are
// released inline.
func (c *Controller) abandonAssignment(ctx context.Context, assignment *domain.AssignmentContext) {
	if assignment.Kind == domain.AssignmentJoinReservation {
		c.releaseQuietly(ctx, assignment.ReservationID)
	}
}

func (c *Controller) releaseQuietly(ctx context.Context, reservationID snowflake.ID) {
	if _, err := c.reservations.Release(ctx, reservationID); err != nil {
		c.log.Error("reservation release failed",
			zap.String("reservation_id", reservationID.String()),
			zap.Error(err),
		)
	}
}

// reportReconciliation emits the operator-facing record. Failures in
// reporting are contained; they never alter the decided response.
func (c *Controller) reportReconciliation(ctx context.Context, event notification.ReconciliationEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("reconciliation reporting panicked", zap.Any("panic", r))
		}
	}()
	c.metrics.IncNeedsReconciliation(ctx, event.Mode)
	c.notifier.ReconciliationNeeded(ctx, event)
}
