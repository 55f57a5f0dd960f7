package engine

import "civicdesk/internal/domain"

// Rule is one row of the authoritative transition table: who may move a case
// from one status to the next. RequireAssignee restricts the transition to
// the task-force member assigned to the case.
type Rule struct {
	From            string
	To              string
	Roles           []domain.Role
	RequireAssignee bool
}

var forwardRules = []Rule{
	{From: domain.StatusSubmitted, To: domain.StatusUnderOfficerReview, Roles: []domain.Role{domain.RoleOfficer}},
	{From: domain.StatusUnderOfficerReview, To: domain.StatusForwardedToAdmin, Roles: []domain.Role{domain.RoleOfficer}},
	{From: domain.StatusForwardedToAdmin, To: domain.StatusAssignedToTaskForce, Roles: []domain.Role{domain.RoleWebAdmin}},
	{From: domain.StatusAssignedToTaskForce, To: domain.StatusAssessmentInProgress, Roles: []domain.Role{domain.RoleTaskForce}, RequireAssignee: true},
	{From: domain.StatusAssessmentInProgress, To: domain.StatusAssessmentSubmitted, Roles: []domain.Role{domain.RoleTaskForce}, RequireAssignee: true},
	{From: domain.StatusAssessmentSubmitted, To: domain.StatusResourcesAllocated, Roles: []domain.Role{domain.RoleWebAdmin}},
	{From: domain.StatusResourcesAllocated, To: domain.StatusResolutionInProgress, Roles: []domain.Role{domain.RoleTaskForce}, RequireAssignee: true},
	{From: domain.StatusResolutionInProgress, To: domain.StatusResolutionSubmitted, Roles: []domain.Role{domain.RoleTaskForce}, RequireAssignee: true},
	{From: domain.StatusResolutionSubmitted, To: domain.StatusResolved, Roles: []domain.Role{domain.RoleWebAdmin}},
	{From: domain.StatusResolved, To: domain.StatusClosed, Roles: []domain.Role{domain.RoleWebAdmin}},
}

// rejectableStatuses are the pre-resolution states from which a case can be
// rejected outright by an officer or admin.
var rejectableStatuses = []string{
	domain.StatusSubmitted,
	domain.StatusUnderOfficerReview,
	domain.StatusForwardedToAdmin,
	domain.StatusAssignedToTaskForce,
	domain.StatusAssessmentInProgress,
	domain.StatusAssessmentSubmitted,
	domain.StatusResourcesAllocated,
	domain.StatusResolutionInProgress,
	domain.StatusResolutionSubmitted,
}

// Rules returns the fully expanded transition table, rejection exits
// included, so callers and tests can enumerate every legal triple.
func Rules() []Rule {
	out := make([]Rule, 0, len(forwardRules)+len(rejectableStatuses))
	out = append(out, forwardRules...)
	for _, from := range rejectableStatuses {
		out = append(out, Rule{
			From:  from,
			To:    domain.StatusRejected,
			Roles: []domain.Role{domain.RoleOfficer, domain.RoleWebAdmin},
		})
	}
	return out
}

func findRule(from, to string) (Rule, bool) {
	for _, r := range Rules() {
		if r.From == from && r.To == to {
			return r, true
		}
	}
	return Rule{}, false
}

func (r Rule) allows(role domain.Role) bool {
	for _, allowed := range r.Roles {
		if allowed == role {
			return true
		}
	}
	return false
}

// checkTransition validates a requested transition for the given case and
// actor. Reachability is checked before authorization so an out-of-order
// request is always an InvalidTransitionError, whatever the role.
func checkTransition(rep domain.IssueReport, to string, p domain.Principal) error {
	rule, ok := findRule(rep.Status, to)
	if !ok {
		return InvalidTransitionError{From: rep.Status, To: to}
	}
	if !rule.allows(p.Role) {
		return AuthorizationError{Role: p.Role, Operation: rep.Status + " -> " + to}
	}
	if rule.RequireAssignee {
		if rep.AssignedTaskForceID == nil || p.ProfileID == "" || *rep.AssignedTaskForceID != p.ProfileID {
			return AuthorizationError{Role: p.Role, Operation: rep.Status + " -> " + to}
		}
	}
	return nil
}
