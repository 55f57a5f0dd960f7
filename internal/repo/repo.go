package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"civicdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// ErrStatusConflict is returned when a guarded update matched no row because
// the status moved under us; the caller must re-fetch and retry.
var ErrStatusConflict = errors.New("status changed concurrently")

const issueColumns = `id,case_code,sector_id,sub_sector,category,severity,title,description,
location_name,latitude,longitude,photo_urls_json,
reporter_name,reporter_contact,agent_id,submitting_officer_id,
status,officer_id,assigned_task_force_id,
allocated_budget,allocated_resources_json,resolution_notes,
acknowledged_at,acknowledged_by,forwarded_at,assigned_at,
resources_allocated_at,resources_allocated_by,resolved_at,resolved_by,
created_at,updated_at`

type issueScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row issueScanner) (domain.IssueReport, error) {
	var r domain.IssueReport
	var subSector, category, photoURLs, reporterName, reporterContact sql.NullString
	var agentID, submittingOfficerID, officerID, taskForceID sql.NullString
	var allocatedResources, resolutionNotes sql.NullString
	var ackAt, ackBy, fwdAt, asgAt, resAt, resBy, rvdAt, rvdBy sql.NullString
	var lat, lng, budget sql.NullFloat64
	err := row.Scan(&r.ID, &r.CaseCode, &r.SectorID, &subSector, &category, &r.Severity, &r.Title, &r.Description,
		&r.LocationName, &lat, &lng, &photoURLs,
		&reporterName, &reporterContact, &agentID, &submittingOfficerID,
		&r.Status, &officerID, &taskForceID,
		&budget, &allocatedResources, &resolutionNotes,
		&ackAt, &ackBy, &fwdAt, &asgAt,
		&resAt, &resBy, &rvdAt, &rvdBy,
		&r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	r.SubSector = subSector.String
	r.Category = category.String
	r.ReporterName = reporterName.String
	r.ReporterContact = reporterContact.String
	r.ResolutionNotes = resolutionNotes.String
	if lat.Valid {
		r.Latitude = &lat.Float64
	}
	if lng.Valid {
		r.Longitude = &lng.Float64
	}
	if budget.Valid {
		r.AllocatedBudget = &budget.Float64
	}
	if photoURLs.Valid {
		_ = json.Unmarshal([]byte(photoURLs.String), &r.PhotoURLs)
	}
	r.AgentID = stringPtr(agentID)
	r.SubmittingOfficerID = stringPtr(submittingOfficerID)
	r.OfficerID = stringPtr(officerID)
	r.AssignedTaskForceID = stringPtr(taskForceID)
	r.AllocatedResources = stringPtr(allocatedResources)
	r.AcknowledgedAt = stringPtr(ackAt)
	r.AcknowledgedBy = stringPtr(ackBy)
	r.ForwardedAt = stringPtr(fwdAt)
	r.AssignedAt = stringPtr(asgAt)
	r.ResourcesAllocatedAt = stringPtr(resAt)
	r.ResourcesAllocatedBy = stringPtr(resBy)
	r.ResolvedAt = stringPtr(rvdAt)
	r.ResolvedBy = stringPtr(rvdBy)
	return r, nil
}

func (r Repo) InsertIssue(ctx context.Context, tx *sql.Tx, rep domain.IssueReport) error {
	photoJSON, err := marshalStringSlice(rep.PhotoURLs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO issue_reports(`+issueColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.CaseCode, rep.SectorID, nullable(rep.SubSector), nullable(rep.Category), rep.Severity, rep.Title, rep.Description,
		rep.LocationName, nullableFloatPtr(rep.Latitude), nullableFloatPtr(rep.Longitude), nullableStringPtr(photoJSON),
		nullable(rep.ReporterName), nullable(rep.ReporterContact), nullableStringPtr(rep.AgentID), nullableStringPtr(rep.SubmittingOfficerID),
		rep.Status, nullableStringPtr(rep.OfficerID), nullableStringPtr(rep.AssignedTaskForceID),
		nullableFloatPtr(rep.AllocatedBudget), nullableStringPtr(rep.AllocatedResources), nullable(rep.ResolutionNotes),
		nullableStringPtr(rep.AcknowledgedAt), nullableStringPtr(rep.AcknowledgedBy), nullableStringPtr(rep.ForwardedAt), nullableStringPtr(rep.AssignedAt),
		nullableStringPtr(rep.ResourcesAllocatedAt), nullableStringPtr(rep.ResourcesAllocatedBy), nullableStringPtr(rep.ResolvedAt), nullableStringPtr(rep.ResolvedBy),
		rep.CreatedAt, rep.UpdatedAt)
	return err
}

func (r Repo) GetIssue(ctx context.Context, id string) (domain.IssueReport, error) {
	return scanIssue(r.DB.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issue_reports WHERE id=?`, id))
}

func (r Repo) GetIssueByCaseCode(ctx context.Context, code string) (domain.IssueReport, error) {
	return scanIssue(r.DB.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issue_reports WHERE case_code=?`, code))
}

func (r Repo) GetIssueTx(ctx context.Context, tx *sql.Tx, id string) (domain.IssueReport, error) {
	return scanIssue(tx.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issue_reports WHERE id=?`, id))
}

// UpdateIssueGuarded writes every mutable column of rep, but only if the row
// still holds expectStatus. A zero row count means another transition won the
// race and surfaces as ErrStatusConflict; nothing is written in that case.
func (r Repo) UpdateIssueGuarded(ctx context.Context, tx *sql.Tx, rep domain.IssueReport, expectStatus string) error {
	res, err := tx.ExecContext(ctx, `UPDATE issue_reports SET
status=?, officer_id=?, assigned_task_force_id=?,
allocated_budget=?, allocated_resources_json=?, resolution_notes=?,
acknowledged_at=?, acknowledged_by=?, forwarded_at=?, assigned_at=?,
resources_allocated_at=?, resources_allocated_by=?, resolved_at=?, resolved_by=?,
updated_at=?
WHERE id=? AND status=?`,
		rep.Status, nullableStringPtr(rep.OfficerID), nullableStringPtr(rep.AssignedTaskForceID),
		nullableFloatPtr(rep.AllocatedBudget), nullableStringPtr(rep.AllocatedResources), nullable(rep.ResolutionNotes),
		nullableStringPtr(rep.AcknowledgedAt), nullableStringPtr(rep.AcknowledgedBy), nullableStringPtr(rep.ForwardedAt), nullableStringPtr(rep.AssignedAt),
		nullableStringPtr(rep.ResourcesAllocatedAt), nullableStringPtr(rep.ResourcesAllocatedBy), nullableStringPtr(rep.ResolvedAt), nullableStringPtr(rep.ResolvedBy),
		rep.UpdatedAt,
		rep.ID, expectStatus)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

type IssueFilters struct {
	Status          string
	SectorID        string
	Severity        string
	TaskForceID     string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListIssues(ctx context.Context, f IssueFilters) ([]domain.IssueReport, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.SectorID != "" {
		clauses = append(clauses, "sector_id=?")
		args = append(args, f.SectorID)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity=?")
		args = append(args, f.Severity)
	}
	if f.TaskForceID != "" {
		clauses = append(clauses, "assigned_task_force_id=?")
		args = append(args, f.TaskForceID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + issueColumns + ` FROM issue_reports ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.IssueReport
	for rows.Next() {
		rep, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

func (r Repo) CountIssuesByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM issue_reports GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// --- task force reports ---

const reportColumns = `id,issue_id,phase,author_id,status,summary,details,estimated_cost,document_urls_json,
reviewed_by,reviewed_at,review_notes,submitted_at,created_at,updated_at`

func scanReport(row issueScanner) (domain.TaskForceReport, error) {
	var t domain.TaskForceReport
	var details, docURLs, reviewedBy, reviewedAt, reviewNotes, submittedAt sql.NullString
	var cost sql.NullFloat64
	err := row.Scan(&t.ID, &t.IssueID, &t.Phase, &t.AuthorID, &t.Status, &t.Summary, &details, &cost, &docURLs,
		&reviewedBy, &reviewedAt, &reviewNotes, &submittedAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Details = details.String
	t.ReviewNotes = reviewNotes.String
	if cost.Valid {
		t.EstimatedCost = &cost.Float64
	}
	if docURLs.Valid {
		_ = json.Unmarshal([]byte(docURLs.String), &t.DocumentURLs)
	}
	t.ReviewedBy = stringPtr(reviewedBy)
	t.ReviewedAt = stringPtr(reviewedAt)
	t.SubmittedAt = stringPtr(submittedAt)
	return t, nil
}

func (r Repo) InsertReport(ctx context.Context, tx *sql.Tx, t domain.TaskForceReport) error {
	docJSON, err := marshalStringSlice(t.DocumentURLs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO task_force_reports(`+reportColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.IssueID, t.Phase, t.AuthorID, t.Status, t.Summary, nullable(t.Details), nullableFloatPtr(t.EstimatedCost), nullableStringPtr(docJSON),
		nullableStringPtr(t.ReviewedBy), nullableStringPtr(t.ReviewedAt), nullable(t.ReviewNotes), nullableStringPtr(t.SubmittedAt), t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateReportGuarded writes the report's mutable fields only if the row still
// holds expectStatus, mirroring the issue-row guard.
func (r Repo) UpdateReportGuarded(ctx context.Context, tx *sql.Tx, t domain.TaskForceReport, expectStatus string) error {
	docJSON, err := marshalStringSlice(t.DocumentURLs)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE task_force_reports SET
status=?, summary=?, details=?, estimated_cost=?, document_urls_json=?,
reviewed_by=?, reviewed_at=?, review_notes=?, submitted_at=?, updated_at=?
WHERE id=? AND status=?`,
		t.Status, t.Summary, nullable(t.Details), nullableFloatPtr(t.EstimatedCost), nullableStringPtr(docJSON),
		nullableStringPtr(t.ReviewedBy), nullableStringPtr(t.ReviewedAt), nullable(t.ReviewNotes), nullableStringPtr(t.SubmittedAt), t.UpdatedAt,
		t.ID, expectStatus)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.TaskForceReport, error) {
	return scanReport(r.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM task_force_reports WHERE id=?`, id))
}

func (r Repo) GetReportForIssue(ctx context.Context, issueID, phase string) (domain.TaskForceReport, error) {
	return scanReport(r.DB.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM task_force_reports WHERE issue_id=? AND phase=?`, issueID, phase))
}

func (r Repo) GetReportForIssueTx(ctx context.Context, tx *sql.Tx, issueID, phase string) (domain.TaskForceReport, error) {
	return scanReport(tx.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM task_force_reports WHERE issue_id=? AND phase=?`, issueID, phase))
}

// --- status history ---

func (r Repo) ListStatusHistory(ctx context.Context, issueID string) ([]domain.StatusHistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,issue_id,old_status,new_status,actor_id,actor_role,COALESCE(note,''),ts
FROM status_history WHERE issue_id=? ORDER BY id ASC`, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusHistoryEntry
	for rows.Next() {
		var h domain.StatusHistoryEntry
		var role string
		if err := rows.Scan(&h.ID, &h.IssueID, &h.OldStatus, &h.NewStatus, &h.ActorID, &role, &h.Note, &h.TS); err != nil {
			return nil, err
		}
		h.ActorRole = domain.Role(role)
		res = append(res, h)
	}
	return res, rows.Err()
}

// HistoryAfter returns history rows with ids greater than the cursor in
// ascending order; the notification dispatcher tails the log with this.
func (r Repo) HistoryAfter(ctx context.Context, limit int, cursor int64) ([]domain.StatusHistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,issue_id,old_status,new_status,actor_id,actor_role,COALESCE(note,''),ts
FROM status_history WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StatusHistoryEntry
	for rows.Next() {
		var h domain.StatusHistoryEntry
		var role string
		if err := rows.Scan(&h.ID, &h.IssueID, &h.OldStatus, &h.NewStatus, &h.ActorID, &role, &h.Note, &h.TS); err != nil {
			return nil, err
		}
		h.ActorRole = domain.Role(role)
		res = append(res, h)
	}
	return res, rows.Err()
}

func (r Repo) LatestHistoryID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM status_history`).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// --- comments ---

func (r Repo) InsertComment(ctx context.Context, c domain.Comment) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO comments(id,issue_id,author_id,author_role,body,internal,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.IssueID, c.AuthorID, string(c.AuthorRole), c.Body, boolToInt(c.Internal), c.CreatedAt)
	return err
}

// ListComments returns a case's comments; unless includeInternal is set,
// internal ones are filtered out at the query.
func (r Repo) ListComments(ctx context.Context, issueID string, includeInternal bool) ([]domain.Comment, error) {
	query := `SELECT id,issue_id,author_id,author_role,body,internal,created_at FROM comments WHERE issue_id=?`
	if !includeInternal {
		query += ` AND internal=0`
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		var role string
		var internal int
		if err := rows.Scan(&c.ID, &c.IssueID, &c.AuthorID, &role, &c.Body, &internal, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.AuthorRole = domain.Role(role)
		c.Internal = internal != 0
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalStringSlice(in []string) (*string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal url list: %w", err)
	}
	s := string(b)
	return &s, nil
}
