package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetline/dispatchboard/internal/clock"
	"github.com/fleetline/dispatchboard/internal/config"
	onbdomain "github.com/fleetline/dispatchboard/internal/onboarding/domain"
	orgdomain "github.com/fleetline/dispatchboard/internal/organization/domain"
	"github.com/fleetline/dispatchboard/internal/reconcile"
	"github.com/fleetline/dispatchboard/internal/signup"
	signupdomain "github.com/fleetline/dispatchboard/internal/signup/domain"
	"github.com/fleetline/dispatchboard/pkg/db"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler is the operator surface: provisioning organizations,
// granting and revoking signup approvals, placing accounts directly,
// and triggering a sweep.
type AdminHandler struct {
	token   string
	orgs    orgdomain.Service
	entries onbdomain.Repository
	ctrl    *signup.Controller
	sweeper *reconcile.Sweeper
	clock   clock.Clock
	genID   *snowflake.Node
	log     *zap.Logger
}

func NewAdminHandler(
	cfg config.Config,
	orgs orgdomain.Service,
	entries onbdomain.Repository,
	ctrl *signup.Controller,
	sweeper *reconcile.Sweeper,
	clk clock.Clock,
	genID *snowflake.Node,
	log *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		token:   cfg.AdminAPIToken,
		orgs:    orgs,
		entries: entries,
		ctrl:    ctrl,
		sweeper: sweeper,
		clock:   clk,
		genID:   genID,
		log:     log.Named("server.admin"),
	}
}

func (h *AdminHandler) Register(r gin.IRouter) {
	admin := r.Group("/admin", h.requireToken)
	admin.POST("/organizations", h.createOrganization)
	admin.POST("/approvals", h.createApproval)
	admin.POST("/approvals/:id/revoke", h.revokeApproval)
	admin.POST("/accounts", h.placeAccount)
	admin.POST("/sweep", h.runSweep)
}

// requireToken gates the whole group. An unset token disables the
// surface entirely rather than leaving it open.
func (h *AdminHandler) requireToken(c *gin.Context) {
	presented := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
	if h.token == "" || presented == "" ||
		subtle.ConstantTimeCompare([]byte(h.token), []byte(presented)) != 1 {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": gin.H{
				"code":    "forbidden",
				"message": "Admin access denied.",
			},
		})
		return
	}
	c.Next()
}

type createOrganizationBody struct {
	Name string `json:"name"`
}

func (h *AdminHandler) createOrganization(c *gin.Context) {
	var body createOrganizationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c)
		return
	}

	provisioned, err := h.orgs.Provision(c.Request.Context(), body.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// The join code appears here once; only its hash is stored.
	c.JSON(http.StatusCreated, gin.H{
		"organization": gin.H{
			"id":        provisioned.OrgID.String(),
			"slug":      provisioned.Slug,
			"join_code": provisioned.JoinCode,
		},
	})
}

type createApprovalBody struct {
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
}

func (h *AdminHandler) createApproval(c *gin.Context) {
	var body createApprovalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c)
		return
	}
	orgID, err := snowflake.ParseString(body.OrganizationID)
	if err != nil {
		badRequest(c)
		return
	}
	email := onbdomain.NormalizeEmail(body.Email)
	role := strings.ToUpper(strings.TrimSpace(body.Role))
	if email == "" || role == "" {
		badRequest(c)
		return
	}
	if _, err := h.orgs.GetByID(c.Request.Context(), orgID); err != nil {
		_ = c.Error(err)
		return
	}

	now := h.clock.Now()
	entry := onbdomain.OnboardingEntry{
		ID:        h.genID.Generate(),
		OrgID:     orgID,
		Email:     email,
		Kind:      onbdomain.KindApproval,
		Role:      role,
		Status:    onbdomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.entries.Create(c.Request.Context(), entry); err != nil {
		if _, isDup := db.AsUniqueViolation(err); isDup {
			c.JSON(http.StatusConflict, gin.H{
				"error": gin.H{
					"code":    "approval_exists",
					"message": "A pending approval already exists for this email and role.",
				},
			})
			return
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"approval": gin.H{
			"id":              entry.ID.String(),
			"organization_id": orgID.String(),
			"email":           email,
			"role":            role,
			"status":          entry.Status,
		},
	})
}

type revokeApprovalBody struct {
	RevokedByUserID string `json:"revoked_by_user_id"`
}

func (h *AdminHandler) revokeApproval(c *gin.Context) {
	entryID, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		badRequest(c)
		return
	}
	var body revokeApprovalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c)
		return
	}
	revokedBy, err := snowflake.ParseString(body.RevokedByUserID)
	if err != nil {
		badRequest(c)
		return
	}

	// Only a pending grant can be withdrawn by a manager; reserved
	// entries belong to an in-flight signup until it settles or the
	// sweeper reclaims them.
	ok, err := h.entries.RevokePending(c.Request.Context(), entryID, revokedBy, h.clock.Now())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if !ok {
		c.JSON(http.StatusConflict, gin.H{
			"error": gin.H{
				"code":    "approval_not_pending",
				"message": "The approval is not pending and cannot be revoked.",
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": true})
}

type placeAccountBody struct {
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	Password       string `json:"password"`
}

func (h *AdminHandler) placeAccount(c *gin.Context) {
	var body placeAccountBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c)
		return
	}
	orgID, err := snowflake.ParseString(body.OrganizationID)
	if err != nil {
		badRequest(c)
		return
	}
	role := strings.ToUpper(strings.TrimSpace(body.Role))
	if role == "" {
		badRequest(c)
		return
	}

	outcome, err := h.ctrl.PlaceAccount(c.Request.Context(), orgID, role, signupdomain.Request{
		Email:    body.Email,
		Name:     body.Name,
		Password: body.Password,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.Data(http.StatusCreated, "application/json", outcome.Payload)
}

type sweepBody struct {
	Apply               bool `json:"apply"`
	ReservationMinutes  int  `json:"reservation_minutes"`
	OrganizationMinutes int  `json:"organization_minutes"`
	Limit               int  `json:"limit"`
}

func (h *AdminHandler) runSweep(c *gin.Context) {
	var body sweepBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c)
		return
	}

	report, err := h.sweeper.Run(c.Request.Context(), reconcile.Options{
		ReservationStale:  time.Duration(body.ReservationMinutes) * time.Minute,
		OrganizationStale: time.Duration(body.OrganizationMinutes) * time.Minute,
		Limit:             body.Limit,
		Apply:             body.Apply,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"apply": body.Apply,
		"report": gin.H{
			"stale_reservations": report.StaleReservations,
			"released":           report.Released,
			"revoked":            report.Revoked,
			"orphan_candidates":  report.OrphanCandidates,
			"orphans_deleted":    report.OrphansDeleted,
			"failures":           report.Failures,
		},
	})
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    "invalid_request",
			"message": "The request is not valid.",
		},
	})
}
