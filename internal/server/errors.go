package server

import (
	"errors"
	"net/http"

	authdomain "github.com/fleetline/dispatchboard/internal/auth/domain"
	orgdomain "github.com/fleetline/dispatchboard/internal/organization/domain"
	signupdomain "github.com/fleetline/dispatchboard/internal/signup/domain"
	"github.com/gin-gonic/gin"
)

type apiError struct {
	status  int
	code    string
	message string
}

// classify maps domain errors to what the client is allowed to see.
// Rejection messages are deliberately vague: a signup probe must not
// learn which approval slots exist.
func classify(err error) apiError {
	switch {
	case errors.Is(err, signupdomain.ErrSignupRestricted):
		return apiError{http.StatusBadRequest, "signup_restricted",
			"Signup is restricted. Contact your administrator for access."}
	case errors.Is(err, signupdomain.ErrInvalidOrgCode):
		return apiError{http.StatusBadRequest, "invalid_org_code",
			"The organization code is not valid."}
	case errors.Is(err, signupdomain.ErrSignupBlocked):
		return apiError{http.StatusBadRequest, "signup_blocked",
			"Signup could not be completed. Contact your administrator."}
	case errors.Is(err, orgdomain.ErrInvalidName):
		return apiError{http.StatusBadRequest, "invalid_organization_name",
			"The organization name is not valid."}
	case errors.Is(err, orgdomain.ErrNotFound):
		return apiError{http.StatusNotFound, "organization_not_found",
			"Organization not found."}
	case errors.Is(err, authdomain.ErrUserExists):
		return apiError{http.StatusConflict, "account_exists",
			"An account with this email already exists."}
	case errors.Is(err, authdomain.ErrInvalidAccount):
		return apiError{http.StatusBadRequest, "invalid_account",
			"The account details are not valid."}
	default:
		return apiError{http.StatusInternalServerError, "internal_error",
			"Something went wrong. Please try again later."}
	}
}

// ClassifyForLogs feeds the request logger's error fields.
func ClassifyForLogs(err error) (string, string) {
	apiErr := classify(err)
	if apiErr.status >= http.StatusInternalServerError {
		return "internal", apiErr.code
	}
	return "domain", apiErr.code
}

// ErrorHandlingMiddleware renders the last collected error once the
// handler chain finishes. Handlers that already wrote a body win.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		lastErr := c.Errors.Last()
		if lastErr == nil || c.Writer.Written() {
			return
		}
		apiErr := classify(lastErr.Err)
		c.JSON(apiErr.status, gin.H{
			"error": gin.H{
				"code":    apiErr.code,
				"message": apiErr.message,
			},
		})
	}
}
