package server

import (
	"civicdesk/internal/domain"
)

type SubmitCaseRequest struct {
	SectorID        string   `json:"sector_id" example:"roads"`
	SubSector       string   `json:"sub_sector,omitempty"`
	Category        string   `json:"category,omitempty"`
	Severity        string   `json:"severity,omitempty" enum:"low,medium,high,urgent"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	LocationName    string   `json:"location_name"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	PhotoURLs       []string `json:"photo_urls,omitempty"`
	ReporterName    string   `json:"reporter_name,omitempty"`
	ReporterContact string   `json:"reporter_contact,omitempty"`
}

type TransitionRequest struct {
	Note string `json:"note,omitempty"`
}

type AssignRequest struct {
	TaskForceID string `json:"task_force_id"`
	Note        string `json:"note,omitempty"`
}

type ReportContentRequest struct {
	Summary       string   `json:"summary"`
	Details       string   `json:"details,omitempty"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
	DocumentURLs  []string `json:"document_urls,omitempty"`
}

type ReviewRequest struct {
	Outcome string `json:"outcome" enum:"approve,reject,revise"`
	Notes   string `json:"notes,omitempty"`
}

type AllocateRequest struct {
	Budget    *float64       `json:"budget,omitempty"`
	Resources map[string]any `json:"resources,omitempty" jsonschema:"type=object,additionalProperties=true"`
	Note      string         `json:"note,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type CommentRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal,omitempty"`
}

type IdeaRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AuthorName  string `json:"author_name,omitempty"`
}

type VoteRequest struct {
	Voter string `json:"voter"`
}

type IdeaStatusRequest struct {
	Status string `json:"status" enum:"open,under_review,accepted,declined"`
}

type ProgramRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Capacity    int    `json:"capacity"`
	StartsOn    string `json:"starts_on,omitempty"`
}

type RegistrationRequest struct {
	Participant  string `json:"participant"`
	Contact      string `json:"contact"`
	GuardianName string `json:"guardian_name,omitempty"`
}

// CaseResponse is the public view of an issue report. Staff-only fields are
// stripped for non-staff callers.
type CaseResponse struct {
	ID                   string   `json:"id"`
	CaseCode             string   `json:"case_code"`
	SectorID             string   `json:"sector_id"`
	SubSector            string   `json:"sub_sector,omitempty"`
	Category             string   `json:"category,omitempty"`
	Severity             string   `json:"severity"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	LocationName         string   `json:"location_name"`
	Latitude             *float64 `json:"latitude,omitempty"`
	Longitude            *float64 `json:"longitude,omitempty"`
	PhotoURLs            []string `json:"photo_urls,omitempty"`
	Origin               string   `json:"origin" enum:"public,agent,officer"`
	ReporterName         string   `json:"reporter_name,omitempty"`
	Status               string   `json:"status"`
	OfficerID            *string  `json:"officer_id,omitempty"`
	AssignedTaskForceID  *string  `json:"assigned_task_force_id,omitempty"`
	AllocatedBudget      *float64 `json:"allocated_budget,omitempty"`
	AllocatedResources   *string  `json:"allocated_resources,omitempty"`
	ResolutionNotes      string   `json:"resolution_notes,omitempty"`
	AcknowledgedAt       *string  `json:"acknowledged_at,omitempty"`
	ForwardedAt          *string  `json:"forwarded_at,omitempty"`
	AssignedAt           *string  `json:"assigned_at,omitempty"`
	ResourcesAllocatedAt *string  `json:"resources_allocated_at,omitempty"`
	ResolvedAt           *string  `json:"resolved_at,omitempty"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
}

func caseResponse(r domain.IssueReport, staff bool) CaseResponse {
	resp := CaseResponse{
		ID:                   r.ID,
		CaseCode:             r.CaseCode,
		SectorID:             r.SectorID,
		SubSector:            r.SubSector,
		Category:             r.Category,
		Severity:             r.Severity,
		Title:                r.Title,
		Description:          r.Description,
		LocationName:         r.LocationName,
		Latitude:             r.Latitude,
		Longitude:            r.Longitude,
		PhotoURLs:            r.PhotoURLs,
		Origin:               r.Origin(),
		Status:               r.Status,
		AcknowledgedAt:       r.AcknowledgedAt,
		ForwardedAt:          r.ForwardedAt,
		AssignedAt:           r.AssignedAt,
		ResourcesAllocatedAt: r.ResourcesAllocatedAt,
		ResolvedAt:           r.ResolvedAt,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if staff {
		resp.ReporterName = r.ReporterName
		resp.OfficerID = r.OfficerID
		resp.AssignedTaskForceID = r.AssignedTaskForceID
		resp.AllocatedBudget = r.AllocatedBudget
		resp.AllocatedResources = r.AllocatedResources
		resp.ResolutionNotes = r.ResolutionNotes
	}
	return resp
}

func mapCases(items []domain.IssueReport, staff bool) []CaseResponse {
	res := make([]CaseResponse, 0, len(items))
	for _, r := range items {
		res = append(res, caseResponse(r, staff))
	}
	return res
}

type paginatedCases struct {
	Items      []CaseResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type ReportResponse struct {
	ID            string   `json:"id"`
	IssueID       string   `json:"issue_id"`
	Phase         string   `json:"phase"`
	AuthorID      string   `json:"author_id"`
	Status        string   `json:"status"`
	Summary       string   `json:"summary"`
	Details       string   `json:"details,omitempty"`
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
	DocumentURLs  []string `json:"document_urls,omitempty"`
	ReviewedBy    *string  `json:"reviewed_by,omitempty"`
	ReviewedAt    *string  `json:"reviewed_at,omitempty"`
	ReviewNotes   string   `json:"review_notes,omitempty"`
	SubmittedAt   *string  `json:"submitted_at,omitempty"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

func reportResponse(t domain.TaskForceReport) ReportResponse {
	return ReportResponse{
		ID:            t.ID,
		IssueID:       t.IssueID,
		Phase:         t.Phase,
		AuthorID:      t.AuthorID,
		Status:        t.Status,
		Summary:       t.Summary,
		Details:       t.Details,
		EstimatedCost: t.EstimatedCost,
		DocumentURLs:  t.DocumentURLs,
		ReviewedBy:    t.ReviewedBy,
		ReviewedAt:    t.ReviewedAt,
		ReviewNotes:   t.ReviewNotes,
		SubmittedAt:   t.SubmittedAt,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

type ReviewResponse struct {
	Case   CaseResponse   `json:"case"`
	Report ReportResponse `json:"report"`
}

type HistoryEntryResponse struct {
	ID        int64  `json:"id"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status"`
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
	Note      string `json:"note,omitempty"`
	TS        string `json:"ts"`
}

func mapHistory(items []domain.StatusHistoryEntry) []HistoryEntryResponse {
	res := make([]HistoryEntryResponse, 0, len(items))
	for _, h := range items {
		res = append(res, HistoryEntryResponse{
			ID:        h.ID,
			OldStatus: h.OldStatus,
			NewStatus: h.NewStatus,
			ActorID:   h.ActorID,
			ActorRole: string(h.ActorRole),
			Note:      h.Note,
			TS:        h.TS,
		})
	}
	return res
}

type VoteResponse struct {
	Idea    domain.Idea `json:"idea"`
	Counted bool        `json:"counted"`
}
