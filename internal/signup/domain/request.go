package domain

import (
	"errors"
	"strings"
)

// Organization modes a signup request can carry.
const (
	OrgModeCreate = "create"
	OrgModeJoin   = "join"
)

// Request is a parsed signup attempt. OrgName applies to create mode,
// OrgCode to join mode.
type Request struct {
	Email      string
	Name       string
	Password   string
	OrgMode    string
	OrgName    string
	OrgCode    string
	InviteCode string
}

// Outcome is what a settled signup returns to the HTTP layer: the
// hook's raw payload, ready to relay.
type Outcome struct {
	Payload []byte
}

// Saga-level rejections. The HTTP layer maps these to user-facing
// messages; everything else is a 500.
var (
	// ErrSignupRestricted covers policy refusals: signups disabled,
	// missing email, bad invite code, disallowed email domain.
	ErrSignupRestricted = errors.New("signup_restricted")
	// ErrInvalidOrgCode means the join code matched no organization.
	ErrInvalidOrgCode = errors.New("invalid_org_code")
	// ErrSignupBlocked is the generic refusal for a slot that cannot
	// be granted (no approval, lost race, failed account creation).
	ErrSignupBlocked = errors.New("signup_blocked")
)

// EmailDomain returns the part after '@' for log and notification
// records, which never carry full addresses.
func EmailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 && i+1 < len(email) {
		return email[i+1:]
	}
	return ""
}
