package domain

import "fmt"

// Role identifies the kind of acting principal. Resident is the
// unauthenticated public; everything else is staff.
type Role string

const (
	RoleResident  Role = "resident"
	RoleAgent     Role = "agent"
	RoleOfficer   Role = "officer"
	RoleTaskForce Role = "task_force"
	RoleWebAdmin  Role = "web_admin"
)

// Principal is a resolved actor: who is acting and in what capacity.
// ProfileID is the role-specific record id (officer id, task force id, ...).
type Principal struct {
	ActorID   string `json:"actor_id"`
	Role      Role   `json:"role"`
	ProfileID string `json:"profile_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

func (p Principal) IsStaff() bool {
	switch p.Role {
	case RoleAgent, RoleOfficer, RoleTaskForce, RoleWebAdmin:
		return true
	}
	return false
}

// Case statuses, in workflow order. Rejected is an absorbing exit from any
// pre-resolved status; resolved and closed terminate the happy path.
const (
	StatusSubmitted            = "submitted"
	StatusUnderOfficerReview   = "under_officer_review"
	StatusForwardedToAdmin     = "forwarded_to_admin"
	StatusAssignedToTaskForce  = "assigned_to_task_force"
	StatusAssessmentInProgress = "assessment_in_progress"
	StatusAssessmentSubmitted  = "assessment_submitted"
	StatusResourcesAllocated   = "resources_allocated"
	StatusResolutionInProgress = "resolution_in_progress"
	StatusResolutionSubmitted  = "resolution_submitted"
	StatusResolved             = "resolved"
	StatusClosed               = "closed"
	StatusRejected             = "rejected"
)

// Sub-report statuses shared by assessment and resolution reports.
const (
	ReportDraft         = "draft"
	ReportSubmitted     = "submitted"
	ReportApproved      = "approved"
	ReportRejected      = "rejected"
	ReportNeedsRevision = "needs_revision"
)

// Severity tiers.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
	SeverityUrgent = "urgent"
)

// IssueReport is the workflow subject: one citizen-reportable problem
// tracked end-to-end. Reports are never deleted.
type IssueReport struct {
	ID       string `json:"id"`
	CaseCode string `json:"case_code"`

	SectorID    string `json:"sector_id"`
	SubSector   string `json:"sub_sector,omitempty"`
	Category    string `json:"category,omitempty"`
	Severity    string `json:"severity" enum:"low,medium,high,urgent"`
	Title       string `json:"title"`
	Description string `json:"description"`

	LocationName string   `json:"location_name"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	PhotoURLs    []string `json:"photo_urls,omitempty"`

	// Origin fields: exactly one of ReporterContact (public self-report),
	// AgentID or SubmittingOfficerID is set at submission.
	ReporterName        string  `json:"reporter_name,omitempty"`
	ReporterContact     string  `json:"reporter_contact,omitempty"`
	AgentID             *string `json:"agent_id,omitempty"`
	SubmittingOfficerID *string `json:"submitting_officer_id,omitempty"`

	Status string `json:"status" enum:"submitted,under_officer_review,forwarded_to_admin,assigned_to_task_force,assessment_in_progress,assessment_submitted,resources_allocated,resolution_in_progress,resolution_submitted,resolved,closed,rejected"`

	OfficerID           *string `json:"officer_id,omitempty"`
	AssignedTaskForceID *string `json:"assigned_task_force_id,omitempty"`

	AllocatedBudget    *float64 `json:"allocated_budget,omitempty"`
	AllocatedResources *string  `json:"allocated_resources,omitempty"`
	ResolutionNotes    string   `json:"resolution_notes,omitempty"`

	AcknowledgedAt       *string `json:"acknowledged_at,omitempty" format:"date-time"`
	AcknowledgedBy       *string `json:"acknowledged_by,omitempty"`
	ForwardedAt          *string `json:"forwarded_at,omitempty" format:"date-time"`
	AssignedAt           *string `json:"assigned_at,omitempty" format:"date-time"`
	ResourcesAllocatedAt *string `json:"resources_allocated_at,omitempty" format:"date-time"`
	ResourcesAllocatedBy *string `json:"resources_allocated_by,omitempty"`
	ResolvedAt           *string `json:"resolved_at,omitempty" format:"date-time"`
	ResolvedBy           *string `json:"resolved_by,omitempty"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Origin returns how the report entered the system, derived from the
// populated submitter reference rather than a stored enum.
func (r IssueReport) Origin() string {
	switch {
	case r.AgentID != nil:
		return "agent"
	case r.SubmittingOfficerID != nil:
		return "officer"
	default:
		return "public"
	}
}

// CheckConsistent verifies that the status and the set of populated stage
// fields agree. The engine runs this before every write; a failure here
// means a bug, not bad input.
func (r IssueReport) CheckConsistent() error {
	reached := func(statuses ...string) bool {
		for _, s := range statuses {
			if r.Status == s {
				return true
			}
		}
		return false
	}
	pastAck := !reached(StatusSubmitted, StatusRejected)
	if pastAck && (r.OfficerID == nil || r.AcknowledgedAt == nil || r.AcknowledgedBy == nil) {
		return fmt.Errorf("case %s: status %s requires officer and acknowledged stamp", r.CaseCode, r.Status)
	}
	pastForward := pastAck && !reached(StatusUnderOfficerReview)
	if pastForward && r.ForwardedAt == nil {
		return fmt.Errorf("case %s: status %s requires forwarded stamp", r.CaseCode, r.Status)
	}
	pastAssign := pastForward && !reached(StatusForwardedToAdmin)
	if pastAssign && (r.AssignedTaskForceID == nil || r.AssignedAt == nil) {
		return fmt.Errorf("case %s: status %s requires task force assignment", r.CaseCode, r.Status)
	}
	pastAllocate := reached(StatusResourcesAllocated, StatusResolutionInProgress, StatusResolutionSubmitted, StatusResolved, StatusClosed)
	if pastAllocate && (r.ResourcesAllocatedAt == nil || r.ResourcesAllocatedBy == nil) {
		return fmt.Errorf("case %s: status %s requires resource allocation stamp", r.CaseCode, r.Status)
	}
	if reached(StatusResolved, StatusClosed) && (r.ResolvedAt == nil || r.ResolvedBy == nil) {
		return fmt.Errorf("case %s: status %s requires resolved stamp", r.CaseCode, r.Status)
	}
	return nil
}

// TaskForceReport is the shared shape of assessment and resolution reports.
// Phase distinguishes the two; each case holds at most one report per phase.
type TaskForceReport struct {
	ID            string   `json:"id"`
	IssueID       string   `json:"issue_id"`
	Phase         string   `json:"phase" enum:"assessment,resolution"`
	AuthorID      string   `json:"author_id"`
	Status        string   `json:"status" enum:"draft,submitted,approved,rejected,needs_revision"`
	Summary       string   `json:"summary"`
	Details       string   `json:"details,omitempty"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
	DocumentURLs  []string `json:"document_urls,omitempty"`
	ReviewedBy    *string  `json:"reviewed_by,omitempty"`
	ReviewedAt    *string  `json:"reviewed_at,omitempty" format:"date-time"`
	ReviewNotes   string   `json:"review_notes,omitempty"`
	SubmittedAt   *string  `json:"submitted_at,omitempty" format:"date-time"`
	CreatedAt     string   `json:"created_at" format:"date-time"`
	UpdatedAt     string   `json:"updated_at" format:"date-time"`
}

const (
	PhaseAssessment = "assessment"
	PhaseResolution = "resolution"
)

// StatusHistoryEntry is one append-only audit row per transition.
type StatusHistoryEntry struct {
	ID        int64  `json:"id"`
	IssueID   string `json:"issue_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	ActorID   string `json:"actor_id"`
	ActorRole Role   `json:"actor_role"`
	Note      string `json:"note,omitempty"`
	TS        string `json:"ts" format:"date-time"`
}

// Comment on a case. Internal comments are visible to staff only.
type Comment struct {
	ID         string `json:"id"`
	IssueID    string `json:"issue_id"`
	AuthorID   string `json:"author_id"`
	AuthorRole Role   `json:"author_role"`
	Body       string `json:"body"`
	Internal   bool   `json:"internal"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// Idea is one community-ideas board entry.
type Idea struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	AuthorName  string `json:"author_name,omitempty"`
	Status      string `json:"status" enum:"open,under_review,accepted,declined"`
	Votes       int    `json:"votes"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Program is a youth program open for registration.
type Program struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Capacity    int    `json:"capacity"`
	Registered  int    `json:"registered"`
	StartsOn    string `json:"starts_on,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Registration is one participant signed up for a program.
type Registration struct {
	ID           string `json:"id"`
	ProgramID    string `json:"program_id"`
	Participant  string `json:"participant"`
	Contact      string `json:"contact"`
	GuardianName string `json:"guardian_name,omitempty"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// APIKey authenticates an integration actor without JWT.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      Role   `json:"role"`
	ProfileID string `json:"profile_id,omitempty"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
