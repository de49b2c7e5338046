package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Decision reasons surfaced to callers when a reservation is refused.
const (
	ReasonInvalidOrgCode   = "invalid_org_code"
	ReasonApprovalNotFound = "approval_not_found"
)

// OrganizationSelector names the organization a signup wants to join.
// Today a join code is the only selector.
type OrganizationSelector struct {
	JoinCode string
}

// Decision is the outcome of a reservation attempt. Refusals carry a
// Reason; grants carry the reservation and its resolved org and role.
type Decision struct {
	Allowed       bool
	Reason        string
	ReservationID snowflake.ID
	OrgID         snowflake.ID
	Role          string
}

// Service is the reservation half of the signup saga: claim an
// approval slot before the account exists, then settle it afterwards.
type Service interface {
	// Reserve resolves the selector and attempts pending → reserved on
	// the matching approval slot. A refusal is a Decision, not an
	// error; errors are infrastructure failures only.
	Reserve(ctx context.Context, selector OrganizationSelector, email string) (Decision, error)

	// Finalize commits a reservation: reserved → approved. Returns
	// false when the entry is no longer reserved, meaning the account
	// userID was created for cannot be safely credited and the caller
	// must compensate.
	Finalize(ctx context.Context, reservationID, userID snowflake.ID) (bool, error)

	// Release compensates a failed signup: reserved → pending, or
	// reserved → revoked when the slot has been retaken meanwhile.
	// True means the slot was restored to pending.
	Release(ctx context.Context, reservationID snowflake.ID) (bool, error)
}
