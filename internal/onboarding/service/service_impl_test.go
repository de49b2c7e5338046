package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetline/dispatchboard/internal/clock"
	dispatchdomain "github.com/fleetline/dispatchboard/internal/dispatch/domain"
	"github.com/fleetline/dispatchboard/internal/observability/metrics"
	"github.com/fleetline/dispatchboard/internal/onboarding/domain"
	onbrepo "github.com/fleetline/dispatchboard/internal/onboarding/repository"
	orgdomain "github.com/fleetline/dispatchboard/internal/organization/domain"
	orgrepo "github.com/fleetline/dispatchboard/internal/organization/repository"
	orgservice "github.com/fleetline/dispatchboard/internal/organization/service"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, conn.AutoMigrate(
		&orgdomain.Organization{},
		&dispatchdomain.DispatchSettings{},
		&domain.OnboardingEntry{},
	))
	require.NoError(t, conn.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_onboarding_entries_pending_slot
		 ON onboarding_entries (organization_id, email, kind, role)
		 WHERE status = 'pending'`,
	).Error)

	return conn
}

type fixture struct {
	db    *gorm.DB
	repo  domain.Repository
	orgs  orgdomain.Service
	clk   *clock.FakeClock
	svc   domain.Service
	genID *snowflake.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	orgs := orgservice.NewService(conn, orgrepo.NewRepository(conn), node, log)
	repo := onbrepo.NewRepository(conn)
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	return &fixture{
		db:    conn,
		repo:  repo,
		orgs:  orgs,
		clk:   clk,
		svc:   NewService(repo, orgs, clk, metrics.NewNop(), log),
		genID: node,
	}
}

func (f *fixture) provisionOrg(t *testing.T, name string) *orgdomain.Provisioned {
	t.Helper()
	org, err := f.orgs.Provision(context.Background(), name)
	require.NoError(t, err)
	return org
}

func (f *fixture) createApproval(t *testing.T, orgID snowflake.ID, email, role string) snowflake.ID {
	t.Helper()
	id := f.genID.Generate()
	now := f.clk.Now()
	err := f.repo.Create(context.Background(), domain.OnboardingEntry{
		ID:        id,
		OrgID:     orgID,
		Email:     domain.NormalizeEmail(email),
		Kind:      domain.KindApproval,
		Role:      role,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return id
}

func (f *fixture) entryStatus(t *testing.T, id snowflake.ID) string {
	t.Helper()
	entry, err := f.repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, entry)
	return entry.Status
}

func TestReserveGrantsPendingApproval(t *testing.T) {
	f := newFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	decision, err := f.svc.Reserve(context.Background(),
		domain.OrganizationSelector{JoinCode: org.JoinCode}, "driver@acme.test")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, entryID, decision.ReservationID)
	require.Equal(t, org.OrgID, decision.OrgID)
	require.Equal(t, orgdomain.RoleDriver, decision.Role)

	require.Equal(t, domain.StatusReserved, f.entryStatus(t, entryID))
}

func TestReserveNormalizesEmail(t *testing.T) {
	f := newFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	decision, err := f.svc.Reserve(context.Background(),
		domain.OrganizationSelector{JoinCode: org.JoinCode}, "  Driver@ACME.test ")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestReserveRejectsUnknownJoinCode(t *testing.T) {
	f := newFixture(t)
	f.provisionOrg(t, "Acme Logistics")

	decision, err := f.svc.Reserve(context.Background(),
		domain.OrganizationSelector{JoinCode: "NOPE"}, "driver@acme.test")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, domain.ReasonInvalidOrgCode, decision.Reason)
}

func TestReserveRejectsWithoutApproval(t *testing.T) {
	f := newFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")

	decision, err := f.svc.Reserve(context.Background(),
		domain.OrganizationSelector{JoinCode: org.JoinCode}, "stranger@acme.test")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, domain.ReasonApprovalNotFound, decision.Reason)
}

func TestReserveIsExclusive(t *testing.T) {
	f := newFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)
	selector := domain.OrganizationSelector{JoinCode: org.JoinCode}

	first, err := f.svc.Reserve(context.Background(), selector, "driver@acme.test")
	require.NoError(t, err)
	require.True(t, first.Allowed)

	// The slot is held; a second attempt for the same email must not
	// see a pending entry.
	second, err := f.svc.Reserve(context.Background(), selector, "driver@acme.test")
	require.NoError(t, err)
	require.False(t, second.Allowed)
	require.Equal(t, domain.ReasonApprovalNotFound, second.Reason)
}

func TestFinalizeCommitsReservation(t *testing.T) {
	f := newFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	decision, err := f.svc.Reserve(context.Background(),
		domain.OrganizationSelector{JoinCode: org.JoinCode}, "driver@acme.test")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	userID := f.genID.Generate()
	ok, err := f.svc.Finalize(context.Background(), decision.ReservationID, userID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, domain.StatusApproved, f.entryStatus(t, entryID))

	// approved is terminal; a second finalize reports false.
	ok, err = f.svc.Finalize(context.Background(), decision.ReservationID, userID)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, domain.StatusApproved, f.entryStatus(t, entryID))
}

func TestFinalizeRequiresReservedState(t *testing.T) {
	f := newFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	ok, err := f.svc.Finalize(context.Background(), entryID, f.genID.Generate())
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, domain.StatusPending, f.entryStatus(t, entryID))
}

func TestReleaseRestoresPendingSlot(t *testing.T) {
	f := newFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)
	selector := domain.OrganizationSelector{JoinCode: org.JoinCode}

	decision, err := f.svc.Reserve(context.Background(), selector, "driver@acme.test")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	released, err := f.svc.Release(context.Background(), decision.ReservationID)
	require.NoError(t, err)
	require.True(t, released)
	require.Equal(t, domain.StatusPending, f.entryStatus(t, entryID))

	entry, err := f.repo.GetByID(context.Background(), entryID)
	require.NoError(t, err)
	require.Nil(t, entry.ReservedAt)

	// The restored slot is reservable again.
	again, err := f.svc.Reserve(context.Background(), selector, "driver@acme.test")
	require.NoError(t, err)
	require.True(t, again.Allowed)
	require.Equal(t, entryID, again.ReservationID)
}

func TestReleaseRevokesOnSlotConflict(t *testing.T) {
	f := newFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	decision, err := f.svc.Reserve(context.Background(),
		domain.OrganizationSelector{JoinCode: org.JoinCode}, "driver@acme.test")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// A manager re-approves the same slot while the reservation is
	// held; restoring the old entry to pending would collide.
	freshID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	released, err := f.svc.Release(context.Background(), decision.ReservationID)
	require.NoError(t, err)
	require.False(t, released)
	require.Equal(t, domain.StatusRevoked, f.entryStatus(t, entryID))
	require.Equal(t, domain.StatusPending, f.entryStatus(t, freshID))

	entry, err := f.repo.GetByID(context.Background(), entryID)
	require.NoError(t, err)
	require.Nil(t, entry.RevokedByUserID)
	require.NotNil(t, entry.RevokedAt)
}

func TestReleaseToleratesSettledEntry(t *testing.T) {
	f := newFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	entryID := f.createApproval(t, org.OrgID, "driver@acme.test", orgdomain.RoleDriver)

	// Never reserved; release is a no-op.
	released, err := f.svc.Release(context.Background(), entryID)
	require.NoError(t, err)
	require.False(t, released)
	require.Equal(t, domain.StatusPending, f.entryStatus(t, entryID))
}

func TestDistinctRolesHoldDistinctSlots(t *testing.T) {
	f := newFixture(t)
	org := f.provisionOrg(t, "Acme Logistics")
	f.createApproval(t, org.OrgID, "lead@acme.test", orgdomain.RoleDriver)
	f.createApproval(t, org.OrgID, "lead@acme.test", orgdomain.RoleDispatcher)

	decision, err := f.svc.Reserve(context.Background(),
		domain.OrganizationSelector{JoinCode: org.JoinCode}, "lead@acme.test")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}
