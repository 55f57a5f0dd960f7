package engine

import (
	"fmt"

	"civicdesk/internal/domain"
)

// AuthorizationError indicates the acting role is not permitted for the
// requested operation. No state was mutated.
type AuthorizationError struct {
	Role      domain.Role
	Operation string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("role %s is not authorized for %s", e.Role, e.Operation)
}

// InvalidTransitionError indicates the target status is not reachable from
// the current status, regardless of role.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// PreconditionError indicates a required sub-report is missing or not in the
// state the transition demands.
type PreconditionError struct {
	Reason string
}

func (e PreconditionError) Error() string {
	return e.Reason
}

// ConflictError indicates the expected-status guard failed because another
// transition won the race; the caller should re-fetch and retry.
type ConflictError struct {
	IssueID string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("case %s was modified concurrently; re-fetch and retry", e.IssueID)
}

// ValidationError indicates missing or malformed caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
