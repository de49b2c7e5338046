// Package domain defines the signup saga's request, assignment
// context, and account-hook boundary.
package domain

import (
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// Assignment kinds. The context is a tagged union: which fields are
// meaningful depends on Kind.
const (
	// AssignmentJoinReservation: the signup holds a reservation on an
	// approval slot in an existing organization.
	AssignmentJoinReservation = "join_reservation"
	// AssignmentCreateProvision: the signup provisioned a fresh
	// organization and will claim ownership of it.
	AssignmentCreateProvision = "create_provision"
	// AssignmentExplicit: an operator placed the account directly,
	// outside the signup flow. No reservation, no settlement.
	AssignmentExplicit = "explicit_non_signup"
)

// AssignmentContext is the only state carried between the saga's
// phases. It crosses an untrusted serialization boundary, so it is
// re-validated on every read and never assumed authentic.
type AssignmentContext struct {
	Kind           string       `json:"kind"`
	OrganizationID snowflake.ID `json:"organization_id"`
	Role           string       `json:"role"`
	ReservationID  snowflake.ID `json:"reservation_id,omitempty"`
}

// Validate checks the variant's shape. A context that fails here must
// be treated as absent, not repaired.
func (a AssignmentContext) Validate() error {
	if a.OrganizationID == 0 {
		return fmt.Errorf("assignment context: missing organization id")
	}
	if a.Role == "" {
		return fmt.Errorf("assignment context: missing role")
	}
	switch a.Kind {
	case AssignmentJoinReservation:
		if a.ReservationID == 0 {
			return fmt.Errorf("assignment context: join_reservation without reservation id")
		}
		return nil
	case AssignmentCreateProvision, AssignmentExplicit:
		if a.ReservationID != 0 {
			return fmt.Errorf("assignment context: %s must not carry a reservation id", a.Kind)
		}
		return nil
	default:
		return fmt.Errorf("assignment context: unknown kind %q", a.Kind)
	}
}

// EncodeAssignment serializes a validated context for transport
// between saga phases.
func EncodeAssignment(a AssignmentContext) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(a)
}

// DecodeAssignment parses and re-validates a context read back from
// the request-scoped carrier.
func DecodeAssignment(raw []byte) (*AssignmentContext, error) {
	var a AssignmentContext
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("assignment context: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
