package server

import (
	"net/http"
	"strings"

	"github.com/fleetline/dispatchboard/internal/signup"
	signupdomain "github.com/fleetline/dispatchboard/internal/signup/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Signup organization headers. The body carries only account fields;
// how the account attaches to an organization rides in headers so the
// account payload stays opaque to proxies and the hook.
const (
	HeaderOrgMode    = "x-signup-org-mode"
	HeaderOrgName    = "x-signup-org-name"
	HeaderOrgCode    = "x-signup-org-code"
	HeaderInviteCode = "x-invite-code"
)

type SignupHandler struct {
	ctrl *signup.Controller
	log  *zap.Logger
}

func NewSignupHandler(ctrl *signup.Controller, log *zap.Logger) *SignupHandler {
	return &SignupHandler{
		ctrl: ctrl,
		log:  log.Named("server.signup"),
	}
}

func (h *SignupHandler) Register(r gin.IRouter) {
	r.POST("/auth/signup", h.signup)
}

type signupBody struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *SignupHandler) signup(c *gin.Context) {
	var body signupBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "invalid_request",
				"message": "The request body is not valid JSON.",
			},
		})
		return
	}

	req := signupdomain.Request{
		Email:      body.Email,
		Name:       body.Name,
		Password:   body.Password,
		OrgMode:    strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderOrgMode))),
		OrgName:    c.GetHeader(HeaderOrgName),
		OrgCode:    c.GetHeader(HeaderOrgCode),
		InviteCode: strings.TrimSpace(c.GetHeader(HeaderInviteCode)),
	}

	outcome, err := h.ctrl.Signup(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// The hook payload is relayed as-is; the saga only guarantees it
	// contains the created user.
	c.Data(http.StatusCreated, "application/json", outcome.Payload)
}
