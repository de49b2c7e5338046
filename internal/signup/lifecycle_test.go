package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetline/dispatchboard/internal/auth"
	authdomain "github.com/fleetline/dispatchboard/internal/auth/domain"
	authservice "github.com/fleetline/dispatchboard/internal/auth/service"
	"github.com/fleetline/dispatchboard/internal/clock"
	"github.com/fleetline/dispatchboard/internal/config"
	dispatchdomain "github.com/fleetline/dispatchboard/internal/dispatch/domain"
	"github.com/fleetline/dispatchboard/internal/notification"
	"github.com/fleetline/dispatchboard/internal/observability/metrics"
	onbdomain "github.com/fleetline/dispatchboard/internal/onboarding/domain"
	onbrepo "github.com/fleetline/dispatchboard/internal/onboarding/repository"
	onbservice "github.com/fleetline/dispatchboard/internal/onboarding/service"
	orgdomain "github.com/fleetline/dispatchboard/internal/organization/domain"
	orgrepo "github.com/fleetline/dispatchboard/internal/organization/repository"
	orgservice "github.com/fleetline/dispatchboard/internal/organization/service"
	"github.com/fleetline/dispatchboard/internal/signup/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	events []notification.ReconciliationEvent
}

func (n *recordingNotifier) ReconciliationNeeded(_ context.Context, event notification.ReconciliationEvent) {
	n.events = append(n.events, event)
}

// hookTap wraps the real hook so tests can corrupt payloads or inject
// interference between account creation and finalize.
type hookTap struct {
	inner       domain.AccountHook
	failCreate  error
	afterCreate func(outcome domain.AccountOutcome)
	mutate      func(outcome domain.AccountOutcome) domain.AccountOutcome
	deleted     []snowflake.ID
}

func (h *hookTap) CreateAccount(ctx context.Context, account domain.NewAccount) (domain.AccountOutcome, error) {
	if h.failCreate != nil {
		return domain.AccountOutcome{}, h.failCreate
	}
	outcome, err := h.inner.CreateAccount(ctx, account)
	if err != nil {
		return outcome, err
	}
	if h.afterCreate != nil {
		h.afterCreate(outcome)
	}
	if h.mutate != nil {
		outcome = h.mutate(outcome)
	}
	return outcome, nil
}

func (h *hookTap) DeleteAccount(ctx context.Context, userID snowflake.ID) error {
	h.deleted = append(h.deleted, userID)
	return h.inner.DeleteAccount(ctx, userID)
}

type sagaFixture struct {
	db       *gorm.DB
	genID    *snowflake.Node
	clk      *clock.FakeClock
	orgs     orgdomain.Service
	onbRepo  onbdomain.Repository
	accounts authdomain.Service
	hook     *hookTap
	notifier *recordingNotifier
	ctrl     *Controller
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&orgdomain.Organization{},
		&dispatchdomain.DispatchSettings{},
		&onbdomain.OnboardingEntry{},
		&authdomain.User{},
	))
	require.NoError(t, conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_onboarding_entries_pending_slot
		 ON onboarding_entries (organization_id, email, kind, role)
		 WHERE status = 'pending'`,
	).Error)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	nop := metrics.NewNop()

	orgs := orgservice.NewService(conn, orgrepo.NewRepository(conn), node, log)
	onbRepo := onbrepo.NewRepository(conn)
	reservations := onbservice.NewService(onbRepo, orgs, clk, nop, log)
	accounts := authservice.NewService(conn, node)
	hook := &hookTap{inner: auth.NewHookAdapter(accounts, log)}
	notifier := &recordingNotifier{}

	policy := config.NewStaticPolicyHolder(config.SignupPolicy{Enabled: true})
	orchestrator := NewOrchestrator(orgs, reservations, log)
	ctrl := NewController(orchestrator, reservations, orgs, hook, policy, nop, notifier, log)

	return &sagaFixture{
		db:       conn,
		genID:    node,
		clk:      clk,
		orgs:     orgs,
		onbRepo:  onbRepo,
		accounts: accounts,
		hook:     hook,
		notifier: notifier,
		ctrl:     ctrl,
	}
}

func (f *sagaFixture) provisionOrg(t *testing.T, name string) *orgdomain.Provisioned {
	t.Helper()
	org, err := f.orgs.Provision(context.Background(), name)
	require.NoError(t, err)
	return org
}

func (f *sagaFixture) createApproval(t *testing.T, orgID snowflake.ID, email, role string) snowflake.ID {
	t.Helper()
	id := f.genID.Generate()
	now := f.clk.Now()
	err := f.onbRepo.Create(context.Background(), onbdomain.OnboardingEntry{
		ID:        id,
		OrgID:     orgID,
		Email:     onbdomain.NormalizeEmail(email),
		Kind:      onbdomain.KindApproval,
		Role:      role,
		Status:    onbdomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return id
}

func (f *sagaFixture) entryStatus(t *testing.T, id snowflake.ID) string {
	t.Helper()
	entry, err := f.onbRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	return entry.Status
}

func (f *sagaFixture) userCount(t *testing.T, email string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&authdomain.User{}).Where("email = ?", email).Count(&n).Error)
	return n
}

func joinRequest(org *orgdomain.Provisioned, email string) domain.Request {
	return domain.Request{
		Email:    email,
		Name:     "Test Driver",
		Password: "s3cret-pass",
		OrgMode:  domain.OrgModeJoin,
		OrgCode:  org.JoinCode,
	}
}

func TestSignupJoinHappyPath(t *testing.T) {
	f := newSagaFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	outcome, err := f.ctrl.Signup(context.Background(), joinRequest(org, "driver@acme.test"))
	require.NoError(t, err)
	require.NotNil(t, outcome)

	user, err := domain.ParseCreatedUser(outcome.Payload)
	require.NoError(t, err)
	require.Equal(t, "driver@acme.test", user.Email)

	require.Equal(t, onbdomain.StatusApproved, f.entryStatus(t, entryID))
	require.Equal(t, int64(1), f.userCount(t, "driver@acme.test"))
	require.Empty(t, f.notifier.events)
}

func TestSignupJoinWithoutApprovalLeavesNoTrace(t *testing.T) {
	f := newSagaFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")

	_, err := f.ctrl.Signup(context.Background(), joinRequest(org, "stranger@acme.test"))
	require.ErrorIs(t, err, domain.ErrSignupBlocked)
	require.Equal(t, int64(0), f.userCount(t, "stranger@acme.test"))
}

func TestSignupJoinInvalidOrgCode(t *testing.T) {
	f := newSagaFixture(t)
	f.provisionOrg(t, "Acme Logistics")

	req := domain.Request{
		Email:    "driver@acme.test",
		Password: "s3cret-pass",
		OrgMode:  domain.OrgModeJoin,
		OrgCode:  "WRONG",
	}
	_, err := f.ctrl.Signup(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrInvalidOrgCode)
}

func TestSignupJoinAccountFailureReleasesReservation(t *testing.T) {
	f := newSagaFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	// A user with this email already exists, so the hook refuses.
	_, err := f.accounts.CreateUser(context.Background(), authdomain.CreateUserRequest{
		Email:    "driver@acme.test",
		Password: "other-pass",
		OrgID:    org.OrgID,
		Role:     orgdomain.RoleDriver,
	})
	require.NoError(t, err)

	_, err = f.ctrl.Signup(context.Background(), joinRequest(org, "driver@acme.test"))
	require.ErrorIs(t, err, domain.ErrSignupBlocked)

	// Compensated: the slot went back to pending.
	require.Equal(t, onbdomain.StatusPending, f.entryStatus(t, entryID))
}

func TestSignupJoinHookErrorReleasesReservation(t *testing.T) {
	f := newSagaFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	f.hook.failCreate = errors.New("account backend unavailable")

	_, err := f.ctrl.Signup(context.Background(), joinRequest(org, "driver@acme.test"))
	require.ErrorIs(t, err, domain.ErrSignupBlocked)
	require.Equal(t, onbdomain.StatusPending, f.entryStatus(t, entryID))
	require.Equal(t, int64(0), f.userCount(t, "driver@acme.test"))
}

func TestSignupJoinLostReservationCompensates(t *testing.T) {
	f := newSagaFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	// Simulate the sweeper revoking the reservation between account
	// creation and finalize.
	f.hook.afterCreate = func(domain.AccountOutcome) {
		ok, err := f.onbRepo.MarkRevoked(context.Background(), entryID, nil, f.clk.Now())
		require.NoError(t, err)
		require.True(t, ok)
	}

	_, err := f.ctrl.Signup(context.Background(), joinRequest(org, "driver@acme.test"))
	require.ErrorIs(t, err, domain.ErrSignupBlocked)

	// The account was rolled back and the conflict reported.
	require.Equal(t, int64(0), f.userCount(t, "driver@acme.test"))
	require.Len(t, f.hook.deleted, 1)
	require.Len(t, f.notifier.events, 1)
	require.Equal(t, domain.AssignmentJoinReservation, f.notifier.events[0].Mode)
	require.Equal(t, entryID.String(), f.notifier.events[0].ReservationID)
	require.Equal(t, "acme.test", f.notifier.events[0].EmailDomain)
	require.Equal(t, onbdomain.StatusRevoked, f.entryStatus(t, entryID))
}

func TestSignupJoinMalformedPayloadReleases(t *testing.T) {
	f := newSagaFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	f.hook.mutate = func(outcome domain.AccountOutcome) domain.AccountOutcome {
		outcome.Payload = []byte(`{"ok":true}`)
		return outcome
	}

	_, err := f.ctrl.Signup(context.Background(), joinRequest(org, "driver@acme.test"))
	require.ErrorIs(t, err, domain.ErrSignupBlocked)
	require.Equal(t, onbdomain.StatusPending, f.entryStatus(t, entryID))
}

func TestSignupCreateHappyPath(t *testing.T) {
	f := newSagaFixture(t)

	req := domain.Request{
		Email:    "owner@fleet.test",
		Name:     "Fleet Owner",
		Password: "s3cret-pass",
		OrgMode:  domain.OrgModeCreate,
		OrgName:  "Fleet Co",
	}
	outcome, err := f.ctrl.Signup(context.Background(), req)
	require.NoError(t, err)

	user, err := domain.ParseCreatedUser(outcome.Payload)
	require.NoError(t, err)

	var org orgdomain.Organization
	require.NoError(t, f.db.First(&org, "slug = ?", "fleet-co").Error)
	require.NotNil(t, org.OwnerUserID)
	require.Equal(t, user.ID, *org.OwnerUserID)

	var settings dispatchdomain.DispatchSettings
	require.NoError(t, f.db.First(&settings, "organization_id = ?", org.ID).Error)
}

func TestSignupCreateMalformedPayloadKeepsResponse(t *testing.T) {
	f := newSagaFixture(t)

	f.hook.mutate = func(outcome domain.AccountOutcome) domain.AccountOutcome {
		outcome.Payload = []byte(`{"user":{"email":"owner@fleet.test"}}`)
		return outcome
	}

	req := domain.Request{
		Email:    "owner@fleet.test",
		Password: "s3cret-pass",
		OrgMode:  domain.OrgModeCreate,
		OrgName:  "Fleet Co",
	}
	outcome, err := f.ctrl.Signup(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, outcome)

	// The hook's success stands, but the organization is left unowned
	// and the gap is reported.
	var org orgdomain.Organization
	require.NoError(t, f.db.First(&org, "slug = ?", "fleet-co").Error)
	require.Nil(t, org.OwnerUserID)
	require.Len(t, f.notifier.events, 1)
	require.Equal(t, domain.AssignmentCreateProvision, f.notifier.events[0].Mode)
}

func TestSignupPolicyGate(t *testing.T) {
	f := newSagaFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	cases := []struct {
		name   string
		policy config.SignupPolicy
		req    domain.Request
	}{
		{
			name:   "signups disabled",
			policy: config.SignupPolicy{Enabled: false},
			req:    joinRequest(org, "driver@acme.test"),
		},
		{
			name:   "missing email",
			policy: config.SignupPolicy{Enabled: true},
			req: domain.Request{
				Password: "s3cret-pass",
				OrgMode:  domain.OrgModeJoin,
				OrgCode:  org.JoinCode,
			},
		},
		{
			name:   "wrong invite code",
			policy: config.SignupPolicy{Enabled: true, InviteCode: "LETMEIN"},
			req: domain.Request{
				Email:      "driver@acme.test",
				Password:   "s3cret-pass",
				OrgMode:    domain.OrgModeJoin,
				OrgCode:    org.JoinCode,
				InviteCode: "WRONG",
			},
		},
		{
			name: "domain not allowlisted",
			policy: config.SignupPolicy{
				Enabled:             true,
				AllowedEmailDomains: []string{"fleet.test"},
			},
			req: joinRequest(org, "driver@acme.test"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			policy := config.NewStaticPolicyHolder(tc.policy)
			ctrl := NewController(f.ctrl.orchestrator, f.ctrl.reservations, f.orgs,
				f.hook, policy, metrics.NewNop(), f.notifier, zap.NewNop())

			_, err := ctrl.Signup(context.Background(), tc.req)
			require.ErrorIs(t, err, domain.ErrSignupRestricted)
		})
	}
}

func TestExplicitAssignmentRequiresOrganization(t *testing.T) {
	f := newSagaFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")

	assignment, err := f.ctrl.orchestrator.ExplicitAssignment(context.Background(), org.OrgID, orgdomain.RoleDispatcher)
	require.NoError(t, err)
	require.Equal(t, domain.AssignmentExplicit, assignment.Kind)

	_, err = f.ctrl.orchestrator.ExplicitAssignment(context.Background(), f.genID.Generate(), orgdomain.RoleDispatcher)
	require.True(t, errors.Is(err, orgdomain.ErrNotFound))
}

func TestPrepareCreateIsIdempotent(t *testing.T) {
	f := newSagaFixture(t)

	first, err := f.ctrl.orchestrator.PrepareCreate(context.Background(), nil, "Fleet Co")
	require.NoError(t, err)

	second, err := f.ctrl.orchestrator.PrepareCreate(context.Background(), first, "Fleet Co")
	require.NoError(t, err)
	require.Equal(t, first.OrganizationID, second.OrganizationID)

	var n int64
	require.NoError(t, f.db.Model(&orgdomain.Organization{}).Count(&n).Error)
	require.Equal(t, int64(1), n)
}
