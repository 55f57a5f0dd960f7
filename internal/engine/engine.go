package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"civicdesk/internal/config"
	"civicdesk/internal/domain"
	"civicdesk/internal/history"
	"civicdesk/internal/notify"
	"civicdesk/internal/repo"
)

// Engine is the issue-report workflow engine. Every operation validates
// reachability, then role authorization, then stage preconditions, and only
// then mutates — status update and history append commit as one unit.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	History history.Writer
	Config  *config.Config
	Notify  notify.Sink
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		History: history.Writer{DB: db},
		Config:  cfg,
		Notify:  notify.LogSink{},
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// SubmitOptions are parameters for filing a new issue report.
type SubmitOptions struct {
	SectorID        string
	SubSector       string
	Category        string
	Severity        string
	Title           string
	Description     string
	LocationName    string
	Latitude        *float64
	Longitude       *float64
	PhotoURLs       []string
	ReporterName    string
	ReporterContact string
}

// SubmitIssue creates a case in submitted status. The origin is derived from
// the principal: agents and officers file on a citizen's behalf, everyone
// else is a public self-report.
func (e Engine) SubmitIssue(ctx context.Context, opts SubmitOptions, p domain.Principal) (domain.IssueReport, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.IssueReport{}, ValidationError{Field: "title", Reason: "required"}
	}
	if strings.TrimSpace(opts.Description) == "" {
		return domain.IssueReport{}, ValidationError{Field: "description", Reason: "required"}
	}
	if strings.TrimSpace(opts.LocationName) == "" {
		return domain.IssueReport{}, ValidationError{Field: "location_name", Reason: "required"}
	}
	if e.Config != nil && !e.Config.KnownSector(opts.SectorID, opts.SubSector) {
		return domain.IssueReport{}, ValidationError{Field: "sector_id", Reason: fmt.Sprintf("unknown sector %s/%s", opts.SectorID, opts.SubSector)}
	}
	if opts.Severity == "" {
		opts.Severity = domain.SeverityMedium
	}
	switch opts.Severity {
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityUrgent:
	default:
		return domain.IssueReport{}, ValidationError{Field: "severity", Reason: "must be one of low, medium, high, urgent"}
	}
	now := e.nowRFC3339()
	rep := domain.IssueReport{
		ID:              uuid.New().String(),
		CaseCode:        e.newCaseCode(),
		SectorID:        opts.SectorID,
		SubSector:       opts.SubSector,
		Category:        opts.Category,
		Severity:        opts.Severity,
		Title:           opts.Title,
		Description:     opts.Description,
		LocationName:    opts.LocationName,
		Latitude:        opts.Latitude,
		Longitude:       opts.Longitude,
		PhotoURLs:       opts.PhotoURLs,
		ReporterName:    opts.ReporterName,
		ReporterContact: opts.ReporterContact,
		Status:          domain.StatusSubmitted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	switch p.Role {
	case domain.RoleAgent:
		id := profileOr(p)
		rep.AgentID = &id
	case domain.RoleOfficer:
		id := profileOr(p)
		rep.SubmittingOfficerID = &id
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rep, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertIssue(ctx, tx, rep); err != nil {
		return rep, fmt.Errorf("insert case: %w", err)
	}
	if err := e.History.Append(ctx, tx, rep.ID, "", rep.Status, p, "", now); err != nil {
		return rep, err
	}
	if err := tx.Commit(); err != nil {
		return rep, err
	}
	e.emit(ctx, "case.submitted", rep, "", p, "")
	return rep, nil
}

func (e Engine) newCaseCode() string {
	prefix := "CR"
	if e.Config != nil && e.Config.Cases.CodePrefix != "" {
		prefix = e.Config.Cases.CodePrefix
	}
	frag := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("%s-%d-%s", prefix, e.now().UTC().Year(), frag)
}

// Acknowledge moves a submitted case into officer review. The acknowledging
// officer becomes the case's reviewer.
func (e Engine) Acknowledge(ctx context.Context, issueID string, p domain.Principal, note string) (domain.IssueReport, error) {
	return e.transition(ctx, issueID, domain.StatusUnderOfficerReview, p, note, nil, func(rep *domain.IssueReport, now string) {
		officerID := profileOr(p)
		rep.OfficerID = &officerID
		rep.AcknowledgedAt = &now
		rep.AcknowledgedBy = &p.ActorID
	})
}

// Forward hands the case from front-line triage to the administration.
func (e Engine) Forward(ctx context.Context, issueID string, p domain.Principal, note string) (domain.IssueReport, error) {
	return e.transition(ctx, issueID, domain.StatusForwardedToAdmin, p, note, nil, func(rep *domain.IssueReport, now string) {
		rep.ForwardedAt = &now
	})
}

// AssignTaskForce puts the case in the hands of a task-force member.
func (e Engine) AssignTaskForce(ctx context.Context, issueID, taskForceID string, p domain.Principal, note string) (domain.IssueReport, error) {
	if strings.TrimSpace(taskForceID) == "" {
		return domain.IssueReport{}, ValidationError{Field: "task_force_id", Reason: "required"}
	}
	return e.transition(ctx, issueID, domain.StatusAssignedToTaskForce, p, note, nil, func(rep *domain.IssueReport, now string) {
		rep.AssignedTaskForceID = &taskForceID
		rep.AssignedAt = &now
	})
}

// StartAssessment begins the investigation stage and opens the case's
// assessment report as a draft in the same transaction.
func (e Engine) StartAssessment(ctx context.Context, issueID string, p domain.Principal, note string) (domain.IssueReport, error) {
	return e.transition(ctx, issueID, domain.StatusAssessmentInProgress, p, note,
		e.createDraftReport(domain.PhaseAssessment, p), nil)
}

// StartResolution begins remediation and opens the resolution report draft.
func (e Engine) StartResolution(ctx context.Context, issueID string, p domain.Principal, note string) (domain.IssueReport, error) {
	return e.transition(ctx, issueID, domain.StatusResolutionInProgress, p, note,
		e.createDraftReport(domain.PhaseResolution, p), nil)
}

// createDraftReport returns a precheck that refuses a duplicate report for
// the phase and inserts the draft. The schema alone would tolerate a second
// row; the engine treats it as a logic error.
func (e Engine) createDraftReport(phase string, p domain.Principal) func(context.Context, *sql.Tx, domain.IssueReport) error {
	return func(ctx context.Context, tx *sql.Tx, rep domain.IssueReport) error {
		_, err := e.Repo.GetReportForIssueTx(ctx, tx, rep.ID, phase)
		if err == nil {
			return PreconditionError{Reason: fmt.Sprintf("case %s already has a %s report", rep.CaseCode, phase)}
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		now := e.nowRFC3339()
		return e.Repo.InsertReport(ctx, tx, domain.TaskForceReport{
			ID:        uuid.New().String(),
			IssueID:   rep.ID,
			Phase:     phase,
			AuthorID:  profileOr(p),
			Status:    domain.ReportDraft,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
}

// ReportOptions carries the narrative content of an assessment or
// resolution report.
type ReportOptions struct {
	Summary       string
	Details       string
	EstimatedCost *float64
	DocumentURLs  []string
}

// SaveReportDraft updates the draft content without changing its status.
// Only the authoring task-force member may edit it, and only before review
// approval.
func (e Engine) SaveReportDraft(ctx context.Context, issueID, phase string, opts ReportOptions, p domain.Principal) (domain.TaskForceReport, error) {
	rep, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return domain.TaskForceReport{}, err
	}
	if p.Role != domain.RoleTaskForce || rep.AssignedTaskForceID == nil || p.ProfileID == "" || *rep.AssignedTaskForceID != p.ProfileID {
		return domain.TaskForceReport{}, AuthorizationError{Role: p.Role, Operation: "edit " + phase + " report"}
	}
	report, err := e.Repo.GetReportForIssue(ctx, issueID, phase)
	if err != nil {
		return report, err
	}
	switch report.Status {
	case domain.ReportDraft, domain.ReportNeedsRevision, domain.ReportRejected:
	default:
		return report, PreconditionError{Reason: fmt.Sprintf("%s report is %s and can no longer be edited", phase, report.Status)}
	}
	oldStatus := report.Status
	report.Summary = opts.Summary
	report.Details = opts.Details
	report.EstimatedCost = opts.EstimatedCost
	report.DocumentURLs = opts.DocumentURLs
	report.UpdatedAt = e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return report, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateReportGuarded(ctx, tx, report, oldStatus); err != nil {
		if errors.Is(err, repo.ErrStatusConflict) {
			return report, ConflictError{IssueID: issueID}
		}
		return report, err
	}
	return report, tx.Commit()
}

// SubmitAssessment hands the assessment report to the administration for
// review and advances the case when it was still in progress.
func (e Engine) SubmitAssessment(ctx context.Context, issueID string, opts ReportOptions, p domain.Principal) (domain.IssueReport, error) {
	return e.submitReport(ctx, issueID, domain.PhaseAssessment, domain.StatusAssessmentInProgress, domain.StatusAssessmentSubmitted, opts, p)
}

// SubmitResolution hands the resolution report to the administration.
func (e Engine) SubmitResolution(ctx context.Context, issueID string, opts ReportOptions, p domain.Principal) (domain.IssueReport, error) {
	return e.submitReport(ctx, issueID, domain.PhaseResolution, domain.StatusResolutionInProgress, domain.StatusResolutionSubmitted, opts, p)
}

func (e Engine) submitReport(ctx context.Context, issueID, phase, fromStatus, toStatus string, opts ReportOptions, p domain.Principal) (domain.IssueReport, error) {
	if strings.TrimSpace(opts.Summary) == "" {
		return domain.IssueReport{}, ValidationError{Field: phase + "_summary", Reason: "required"}
	}
	rep, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return domain.IssueReport{}, err
	}
	if p.Role != domain.RoleTaskForce || rep.AssignedTaskForceID == nil || p.ProfileID == "" || *rep.AssignedTaskForceID != p.ProfileID {
		return rep, AuthorizationError{Role: p.Role, Operation: "submit " + phase + " report"}
	}
	report, err := e.Repo.GetReportForIssue(ctx, issueID, phase)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return rep, PreconditionError{Reason: fmt.Sprintf("case %s has no %s report to submit", rep.CaseCode, phase)}
		}
		return rep, err
	}
	switch report.Status {
	case domain.ReportDraft, domain.ReportNeedsRevision, domain.ReportRejected:
	default:
		return rep, PreconditionError{Reason: fmt.Sprintf("%s report is already %s", phase, report.Status)}
	}
	advanceCase := rep.Status == fromStatus
	if advanceCase {
		if err := checkTransition(rep, toStatus, p); err != nil {
			return rep, err
		}
	} else if rep.Status != toStatus {
		// Resubmission after a review outcome is only legal while the case
		// parks in the submitted stage.
		return rep, InvalidTransitionError{From: rep.Status, To: toStatus}
	}
	now := e.nowRFC3339()
	oldReportStatus := report.Status
	report.Summary = opts.Summary
	report.Details = opts.Details
	report.EstimatedCost = opts.EstimatedCost
	report.DocumentURLs = opts.DocumentURLs
	report.Status = domain.ReportSubmitted
	report.SubmittedAt = &now
	report.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rep, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateReportGuarded(ctx, tx, report, oldReportStatus); err != nil {
		if errors.Is(err, repo.ErrStatusConflict) {
			return rep, ConflictError{IssueID: issueID}
		}
		return rep, err
	}
	oldStatus := rep.Status
	if advanceCase {
		rep.Status = toStatus
		rep.UpdatedAt = now
		if err := rep.CheckConsistent(); err != nil {
			return rep, err
		}
		if err := e.Repo.UpdateIssueGuarded(ctx, tx, rep, oldStatus); err != nil {
			if errors.Is(err, repo.ErrStatusConflict) {
				return rep, ConflictError{IssueID: issueID}
			}
			return rep, err
		}
		if err := e.History.Append(ctx, tx, rep.ID, oldStatus, rep.Status, p, "", now); err != nil {
			return rep, err
		}
	}
	if err := tx.Commit(); err != nil {
		return rep, err
	}
	if advanceCase {
		e.emit(ctx, "case.status_changed", rep, oldStatus, p, "")
	}
	e.emit(ctx, phase+".submitted", rep, oldStatus, p, "")
	return rep, nil
}

// Review outcomes.
const (
	OutcomeApprove = "approve"
	OutcomeReject  = "reject"
	OutcomeRevise  = "revise"
)

// ReviewAssessment records the administration's verdict on the assessment
// report. The parent case is not touched; an approved assessment merely
// unlocks resource allocation.
func (e Engine) ReviewAssessment(ctx context.Context, issueID, outcome, notes string, p domain.Principal) (domain.TaskForceReport, error) {
	_, report, err := e.reviewReport(ctx, issueID, domain.PhaseAssessment, outcome, notes, p, false)
	return report, err
}

// ReviewResolution records the verdict on the resolution report. Approval is
// the only path to resolving the case: the report approval and the parent's
// move to resolved commit in one transaction, never separately.
func (e Engine) ReviewResolution(ctx context.Context, issueID, outcome, notes string, p domain.Principal) (domain.IssueReport, domain.TaskForceReport, error) {
	return e.reviewReport(ctx, issueID, domain.PhaseResolution, outcome, notes, p, true)
}

func (e Engine) reviewReport(ctx context.Context, issueID, phase, outcome, notes string, p domain.Principal, resolveOnApprove bool) (domain.IssueReport, domain.TaskForceReport, error) {
	var target string
	switch outcome {
	case OutcomeApprove:
		target = domain.ReportApproved
	case OutcomeReject:
		target = domain.ReportRejected
	case OutcomeRevise:
		target = domain.ReportNeedsRevision
	default:
		return domain.IssueReport{}, domain.TaskForceReport{}, ValidationError{Field: "outcome", Reason: "must be approve, reject or revise"}
	}
	if p.Role != domain.RoleWebAdmin {
		return domain.IssueReport{}, domain.TaskForceReport{}, AuthorizationError{Role: p.Role, Operation: "review " + phase + " report"}
	}
	rep, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return domain.IssueReport{}, domain.TaskForceReport{}, err
	}
	report, err := e.Repo.GetReportForIssue(ctx, issueID, phase)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return rep, report, PreconditionError{Reason: fmt.Sprintf("case %s has no %s report", rep.CaseCode, phase)}
		}
		return rep, report, err
	}
	if report.Status != domain.ReportSubmitted {
		return rep, report, PreconditionError{Reason: fmt.Sprintf("%s report is %s, not submitted", phase, report.Status)}
	}
	now := e.nowRFC3339()
	report.Status = target
	report.ReviewedBy = &p.ActorID
	report.ReviewedAt = &now
	report.ReviewNotes = notes
	report.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rep, report, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateReportGuarded(ctx, tx, report, domain.ReportSubmitted); err != nil {
		if errors.Is(err, repo.ErrStatusConflict) {
			return rep, report, ConflictError{IssueID: issueID}
		}
		return rep, report, err
	}
	oldStatus := rep.Status
	resolved := false
	if resolveOnApprove && outcome == OutcomeApprove {
		if err := checkTransition(rep, domain.StatusResolved, p); err != nil {
			return rep, report, err
		}
		rep.Status = domain.StatusResolved
		rep.ResolvedAt = &now
		rep.ResolvedBy = &p.ActorID
		rep.UpdatedAt = now
		if err := rep.CheckConsistent(); err != nil {
			return rep, report, err
		}
		if err := e.Repo.UpdateIssueGuarded(ctx, tx, rep, oldStatus); err != nil {
			if errors.Is(err, repo.ErrStatusConflict) {
				return rep, report, ConflictError{IssueID: issueID}
			}
			return rep, report, err
		}
		if err := e.History.Append(ctx, tx, rep.ID, oldStatus, rep.Status, p, notes, now); err != nil {
			return rep, report, err
		}
		resolved = true
	}
	if err := tx.Commit(); err != nil {
		return rep, report, err
	}
	if resolved {
		e.emit(ctx, "case.status_changed", rep, oldStatus, p, notes)
	}
	e.emit(ctx, phase+".reviewed", rep, oldStatus, p, outcome)
	return rep, report, nil
}

// AllocateOptions carry the one-time resourcing decision.
type AllocateOptions struct {
	Budget    *float64
	Resources map[string]any
	Note      string
}

// AllocateResources records the administration's budget and resource
// allocation. It requires the assessment report to be approved first.
func (e Engine) AllocateResources(ctx context.Context, issueID string, opts AllocateOptions, p domain.Principal) (domain.IssueReport, error) {
	var resourcesJSON *string
	if len(opts.Resources) > 0 {
		b, err := json.Marshal(opts.Resources)
		if err != nil {
			return domain.IssueReport{}, ValidationError{Field: "resources", Reason: err.Error()}
		}
		s := string(b)
		resourcesJSON = &s
	}
	precheck := func(ctx context.Context, tx *sql.Tx, rep domain.IssueReport) error {
		report, err := e.Repo.GetReportForIssueTx(ctx, tx, rep.ID, domain.PhaseAssessment)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return PreconditionError{Reason: fmt.Sprintf("case %s has no assessment report", rep.CaseCode)}
			}
			return err
		}
		if report.Status != domain.ReportApproved {
			return PreconditionError{Reason: fmt.Sprintf("assessment report must be approved before allocating resources (currently %s)", report.Status)}
		}
		return nil
	}
	return e.transition(ctx, issueID, domain.StatusResourcesAllocated, p, opts.Note, precheck, func(rep *domain.IssueReport, now string) {
		rep.AllocatedBudget = opts.Budget
		rep.AllocatedResources = resourcesJSON
		rep.ResourcesAllocatedAt = &now
		rep.ResourcesAllocatedBy = &p.ActorID
	})
}

// CloseCase finalizes a resolved case.
func (e Engine) CloseCase(ctx context.Context, issueID string, p domain.Principal, note string) (domain.IssueReport, error) {
	return e.transition(ctx, issueID, domain.StatusClosed, p, note, nil, nil)
}

// RejectCase terminates a case before resolution, recording the reason.
func (e Engine) RejectCase(ctx context.Context, issueID, reason string, p domain.Principal) (domain.IssueReport, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.IssueReport{}, ValidationError{Field: "reason", Reason: "required"}
	}
	return e.transition(ctx, issueID, domain.StatusRejected, p, reason, nil, func(rep *domain.IssueReport, now string) {
		rep.ResolutionNotes = reason
	})
}

// transition runs the shared contract: load, check order then role, run the
// stage precondition inside the transaction, apply the guarded update, append
// history, commit, notify.
func (e Engine) transition(ctx context.Context, issueID, target string, p domain.Principal, note string,
	precheck func(context.Context, *sql.Tx, domain.IssueReport) error,
	mutate func(*domain.IssueReport, string)) (domain.IssueReport, error) {

	rep, err := e.Repo.GetIssue(ctx, issueID)
	if err != nil {
		return rep, err
	}
	if err := checkTransition(rep, target, p); err != nil {
		return rep, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rep, err
	}
	defer tx.Rollback()
	if precheck != nil {
		if err := precheck(ctx, tx, rep); err != nil {
			return rep, err
		}
	}
	oldStatus := rep.Status
	now := e.nowRFC3339()
	rep.Status = target
	rep.UpdatedAt = now
	if mutate != nil {
		mutate(&rep, now)
	}
	if err := rep.CheckConsistent(); err != nil {
		return rep, err
	}
	if err := e.Repo.UpdateIssueGuarded(ctx, tx, rep, oldStatus); err != nil {
		if errors.Is(err, repo.ErrStatusConflict) {
			return rep, ConflictError{IssueID: issueID}
		}
		return rep, err
	}
	if err := e.History.Append(ctx, tx, rep.ID, oldStatus, rep.Status, p, note, now); err != nil {
		return rep, err
	}
	if err := tx.Commit(); err != nil {
		return rep, err
	}
	e.emit(ctx, "case.status_changed", rep, oldStatus, p, note)
	return rep, nil
}

// AddComment attaches a staff comment to a case.
func (e Engine) AddComment(ctx context.Context, issueID, body string, internal bool, p domain.Principal) (domain.Comment, error) {
	if !p.IsStaff() {
		return domain.Comment{}, AuthorizationError{Role: p.Role, Operation: "comment"}
	}
	if strings.TrimSpace(body) == "" {
		return domain.Comment{}, ValidationError{Field: "body", Reason: "required"}
	}
	if _, err := e.Repo.GetIssue(ctx, issueID); err != nil {
		return domain.Comment{}, err
	}
	c := domain.Comment{
		ID:         uuid.New().String(),
		IssueID:    issueID,
		AuthorID:   p.ActorID,
		AuthorRole: p.Role,
		Body:       body,
		Internal:   internal,
		CreatedAt:  e.nowRFC3339(),
	}
	if err := e.Repo.InsertComment(ctx, c); err != nil {
		return c, err
	}
	return c, nil
}

// ListComments returns a case's comment thread; non-staff readers never see
// internal comments.
func (e Engine) ListComments(ctx context.Context, issueID string, p domain.Principal) ([]domain.Comment, error) {
	if _, err := e.Repo.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return e.Repo.ListComments(ctx, issueID, p.IsStaff())
}

// ListHistory returns the case's audit trail. Staff only.
func (e Engine) ListHistory(ctx context.Context, issueID string, p domain.Principal) ([]domain.StatusHistoryEntry, error) {
	if !p.IsStaff() {
		return nil, AuthorizationError{Role: p.Role, Operation: "read status history"}
	}
	if _, err := e.Repo.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return e.Repo.ListStatusHistory(ctx, issueID)
}

// emit hands an event to the notification sink. Delivery failures are logged
// and never propagate: the transition already committed.
func (e Engine) emit(ctx context.Context, evtType string, rep domain.IssueReport, oldStatus string, p domain.Principal, note string) {
	if e.Notify == nil {
		return
	}
	evt := notify.Event{
		Type:      evtType,
		IssueID:   rep.ID,
		CaseCode:  rep.CaseCode,
		OldStatus: oldStatus,
		NewStatus: rep.Status,
		ActorID:   p.ActorID,
		Note:      note,
		Recipient: rep.ReporterContact,
		TS:        e.nowRFC3339(),
	}
	if err := e.Notify.Deliver(ctx, evt); err != nil {
		log.Printf("notify: deliver %s for case %s failed: %v", evtType, rep.CaseCode, err)
	}
}

func profileOr(p domain.Principal) string {
	if p.ProfileID != "" {
		return p.ProfileID
	}
	return p.ActorID
}
