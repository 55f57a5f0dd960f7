package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"civicdesk/internal/config"
	"civicdesk/internal/db"
	"civicdesk/internal/domain"
	"civicdesk/internal/engine"
	"civicdesk/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func officer() domain.Principal {
	return domain.Principal{ActorID: "user-off", Role: domain.RoleOfficer, ProfileID: "off-1"}
}

func admin() domain.Principal {
	return domain.Principal{ActorID: "user-adm", Role: domain.RoleWebAdmin}
}

func taskforce(profile string) domain.Principal {
	return domain.Principal{ActorID: "user-" + profile, Role: domain.RoleTaskForce, ProfileID: profile}
}

func resident() domain.Principal {
	return domain.Principal{ActorID: "public", Role: domain.RoleResident}
}

func submitCase(t *testing.T, env testEnv) domain.IssueReport {
	t.Helper()
	rep, err := env.Engine.SubmitIssue(env.Ctx, engine.SubmitOptions{
		SectorID:        "roads",
		SubSector:       "potholes",
		Severity:        domain.SeverityHigh,
		Title:           "Pothole on Main Street",
		Description:     "Deep pothole near the market entrance",
		LocationName:    "Main Street / Market Rd",
		ReporterName:    "A. Citizen",
		ReporterContact: "+123456",
	}, resident())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return rep
}

// advance drives a case to assigned_to_task_force with tf as the assignee.
func advanceToAssigned(t *testing.T, env testEnv, tf string) domain.IssueReport {
	t.Helper()
	rep := submitCase(t, env)
	var err error
	if rep, err = env.Engine.Acknowledge(env.Ctx, rep.ID, officer(), ""); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if rep, err = env.Engine.Forward(env.Ctx, rep.ID, officer(), ""); err != nil {
		t.Fatalf("forward: %v", err)
	}
	if rep, err = env.Engine.AssignTaskForce(env.Ctx, rep.ID, tf, admin(), ""); err != nil {
		t.Fatalf("assign: %v", err)
	}
	return rep
}

func approvedAssessment(t *testing.T, env testEnv, tf string) domain.IssueReport {
	t.Helper()
	rep := advanceToAssigned(t, env, tf)
	var err error
	if rep, err = env.Engine.StartAssessment(env.Ctx, rep.ID, taskforce(tf), ""); err != nil {
		t.Fatalf("start assessment: %v", err)
	}
	if rep, err = env.Engine.SubmitAssessment(env.Ctx, rep.ID, engine.ReportOptions{Summary: "road base failed"}, taskforce(tf)); err != nil {
		t.Fatalf("submit assessment: %v", err)
	}
	if _, err = env.Engine.ReviewAssessment(env.Ctx, rep.ID, engine.OutcomeApprove, "", admin()); err != nil {
		t.Fatalf("review assessment: %v", err)
	}
	return rep
}

func TestFullWorkflow(t *testing.T) {
	env := newTestEnv(t)
	rep := approvedAssessment(t, env, "tf-1")

	budget := 2500.0
	rep, err := env.Engine.AllocateResources(env.Ctx, rep.ID, engine.AllocateOptions{
		Budget:    &budget,
		Resources: map[string]any{"crew": 4, "asphalt_tons": 1.5},
	}, admin())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if rep.Status != domain.StatusResourcesAllocated || rep.AllocatedBudget == nil || *rep.AllocatedBudget != budget {
		t.Fatalf("allocation not recorded: %+v", rep)
	}

	if rep, err = env.Engine.StartResolution(env.Ctx, rep.ID, taskforce("tf-1"), ""); err != nil {
		t.Fatalf("start resolution: %v", err)
	}
	if rep, err = env.Engine.SubmitResolution(env.Ctx, rep.ID, engine.ReportOptions{Summary: "pothole filled and sealed"}, taskforce("tf-1")); err != nil {
		t.Fatalf("submit resolution: %v", err)
	}
	rep, report, err := env.Engine.ReviewResolution(env.Ctx, rep.ID, engine.OutcomeApprove, "verified on site", admin())
	if err != nil {
		t.Fatalf("review resolution: %v", err)
	}
	if rep.Status != domain.StatusResolved {
		t.Fatalf("expected resolved, got %s", rep.Status)
	}
	if report.Status != domain.ReportApproved {
		t.Fatalf("expected approved report, got %s", report.Status)
	}
	if rep.ResolvedAt == nil || rep.ResolvedBy == nil {
		t.Fatalf("resolved stamp missing")
	}

	if rep, err = env.Engine.CloseCase(env.Ctx, rep.ID, admin(), "thanks"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if rep.Status != domain.StatusClosed {
		t.Fatalf("expected closed, got %s", rep.Status)
	}

	history, err := env.Engine.ListHistory(env.Ctx, rep.ID, admin())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	// creation + 10 transitions
	if len(history) != 11 {
		t.Fatalf("expected 11 history rows, got %d", len(history))
	}
	if history[0].OldStatus != "" || history[0].NewStatus != domain.StatusSubmitted {
		t.Fatalf("first row should record creation, got %+v", history[0])
	}
	last := history[len(history)-1]
	if last.NewStatus != domain.StatusClosed {
		t.Fatalf("last row should record closing, got %+v", last)
	}
	// audit rows share the clock of the transition that produced them
	for _, h := range history {
		if h.TS != "2025-03-01T12:00:00Z" {
			t.Fatalf("history row %d has ts %s, want the engine clock", h.ID, h.TS)
		}
	}
}

func TestConcurrentTransitionSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	for round := 0; round < 20; round++ {
		rep := submitCase(t, env)
		errs := make(chan error, 2)
		for i := 0; i < 2; i++ {
			go func() {
				_, err := env.Engine.Acknowledge(env.Ctx, rep.ID, officer(), "")
				errs <- err
			}()
		}
		winners := 0
		for i := 0; i < 2; i++ {
			err := <-errs
			if err == nil {
				winners++
				continue
			}
			// the loser surfaces as a conflict when it raced past the
			// status read, or as an invalid transition when it read after
			// the winner committed; both refuse the duplicate move
			var confErr engine.ConflictError
			if !errors.As(err, &confErr) && !isInvalidTransition(err) {
				t.Fatalf("round %d: unexpected loser error %v", round, err)
			}
		}
		if winners != 1 {
			t.Fatalf("round %d: expected exactly one winner, got %d", round, winners)
		}
		got, err := env.Engine.Repo.GetIssue(env.Ctx, rep.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != domain.StatusUnderOfficerReview {
			t.Fatalf("round %d: expected under_officer_review, got %s", round, got.Status)
		}
		history, err := env.Engine.ListHistory(env.Ctx, rep.ID, admin())
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 2 {
			t.Fatalf("round %d: expected 2 history rows, got %d", round, len(history))
		}
	}
}

func TestTransitionMatrix(t *testing.T) {
	allStatuses := []string{
		domain.StatusSubmitted, domain.StatusUnderOfficerReview, domain.StatusForwardedToAdmin,
		domain.StatusAssignedToTaskForce, domain.StatusAssessmentInProgress, domain.StatusAssessmentSubmitted,
		domain.StatusResourcesAllocated, domain.StatusResolutionInProgress, domain.StatusResolutionSubmitted,
		domain.StatusResolved, domain.StatusClosed, domain.StatusRejected,
	}
	rules := engine.Rules()
	allowed := map[[2]string][]domain.Role{}
	for _, r := range rules {
		allowed[[2]string{r.From, r.To}] = r.Roles
	}
	// Every forward edge appears exactly once, rejection fans out from all
	// pre-resolved statuses, and terminal statuses have no outgoing edges
	// besides resolved -> closed.
	if got := len(allowed[[2]string{domain.StatusSubmitted, domain.StatusUnderOfficerReview}]); got == 0 {
		t.Fatalf("missing acknowledge rule")
	}
	for _, from := range allStatuses {
		rejectRoles := allowed[[2]string{from, domain.StatusRejected}]
		switch from {
		case domain.StatusResolved, domain.StatusClosed, domain.StatusRejected:
			if rejectRoles != nil {
				t.Fatalf("%s should not be rejectable", from)
			}
		default:
			if rejectRoles == nil {
				t.Fatalf("%s should be rejectable", from)
			}
		}
	}
	for pair := range allowed {
		if pair[0] == domain.StatusClosed || pair[0] == domain.StatusRejected {
			t.Fatalf("terminal status %s has outgoing rule to %s", pair[0], pair[1])
		}
	}
}

func TestRoleGating(t *testing.T) {
	env := newTestEnv(t)
	rep := submitCase(t, env)

	// wrong role
	if _, err := env.Engine.Acknowledge(env.Ctx, rep.ID, admin(), ""); !isAuthorization(err) {
		t.Fatalf("admin acknowledge should be authorization error, got %v", err)
	}
	if _, err := env.Engine.Acknowledge(env.Ctx, rep.ID, resident(), ""); !isAuthorization(err) {
		t.Fatalf("resident acknowledge should be authorization error, got %v", err)
	}
	// unreachable target reported before role
	if _, err := env.Engine.CloseCase(env.Ctx, rep.ID, resident(), ""); !isInvalidTransition(err) {
		t.Fatalf("close from submitted should be invalid transition, got %v", err)
	}
	// skipping a stage
	if _, err := env.Engine.Forward(env.Ctx, rep.ID, officer(), ""); !isInvalidTransition(err) {
		t.Fatalf("forward from submitted should be invalid transition, got %v", err)
	}
}

func TestAssigneeIdentity(t *testing.T) {
	env := newTestEnv(t)
	rep := advanceToAssigned(t, env, "tf-1")

	if _, err := env.Engine.StartAssessment(env.Ctx, rep.ID, taskforce("tf-2"), ""); !isAuthorization(err) {
		t.Fatalf("non-assignee start should be authorization error, got %v", err)
	}
	if _, err := env.Engine.StartAssessment(env.Ctx, rep.ID, taskforce("tf-1"), ""); err != nil {
		t.Fatalf("assignee start: %v", err)
	}
	if _, err := env.Engine.SubmitAssessment(env.Ctx, rep.ID, engine.ReportOptions{Summary: "x"}, taskforce("tf-2")); !isAuthorization(err) {
		t.Fatalf("non-assignee submit should be authorization error, got %v", err)
	}
}

func TestSubmitAssessmentValidation(t *testing.T) {
	env := newTestEnv(t)
	rep := advanceToAssigned(t, env, "tf-1")
	if _, err := env.Engine.StartAssessment(env.Ctx, rep.ID, taskforce("tf-1"), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	var valErr engine.ValidationError
	_, err := env.Engine.SubmitAssessment(env.Ctx, rep.ID, engine.ReportOptions{Summary: "   "}, taskforce("tf-1"))
	if !errors.As(err, &valErr) {
		t.Fatalf("empty summary should be validation error, got %v", err)
	}
}

func TestNeedsRevisionResubmitLoop(t *testing.T) {
	env := newTestEnv(t)
	rep := advanceToAssigned(t, env, "tf-1")
	tf := taskforce("tf-1")
	var err error
	if rep, err = env.Engine.StartAssessment(env.Ctx, rep.ID, tf, ""); err != nil {
		t.Fatal(err)
	}
	if rep, err = env.Engine.SubmitAssessment(env.Ctx, rep.ID, engine.ReportOptions{Summary: "first pass"}, tf); err != nil {
		t.Fatal(err)
	}
	report, err := env.Engine.ReviewAssessment(env.Ctx, rep.ID, engine.OutcomeRevise, "needs cost estimate", admin())
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if report.Status != domain.ReportNeedsRevision {
		t.Fatalf("expected needs_revision, got %s", report.Status)
	}
	// resubmission does not move the parked case again
	cost := 1800.0
	rep2, err := env.Engine.SubmitAssessment(env.Ctx, rep.ID, engine.ReportOptions{Summary: "second pass", EstimatedCost: &cost}, tf)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if rep2.Status != domain.StatusAssessmentSubmitted {
		t.Fatalf("case should stay in assessment_submitted, got %s", rep2.Status)
	}
	history, err := env.Engine.ListHistory(env.Ctx, rep.ID, admin())
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(history); i++ {
		if history[i].OldStatus == domain.StatusAssessmentSubmitted && history[i].NewStatus == domain.StatusAssessmentSubmitted {
			t.Fatalf("resubmission must not add a self-transition row")
		}
	}
	if _, err := env.Engine.ReviewAssessment(env.Ctx, rep.ID, engine.OutcomeApprove, "", admin()); err != nil {
		t.Fatalf("approve after revision: %v", err)
	}
}

func TestAllocateRequiresApprovedAssessment(t *testing.T) {
	env := newTestEnv(t)
	rep := advanceToAssigned(t, env, "tf-1")
	tf := taskforce("tf-1")
	var err error
	if rep, err = env.Engine.StartAssessment(env.Ctx, rep.ID, tf, ""); err != nil {
		t.Fatal(err)
	}
	if rep, err = env.Engine.SubmitAssessment(env.Ctx, rep.ID, engine.ReportOptions{Summary: "s"}, tf); err != nil {
		t.Fatal(err)
	}
	// still pending review
	var preErr engine.PreconditionError
	if _, err := env.Engine.AllocateResources(env.Ctx, rep.ID, engine.AllocateOptions{}, admin()); !errors.As(err, &preErr) {
		t.Fatalf("allocate before approval should be precondition error, got %v", err)
	}
	if _, err := env.Engine.ReviewAssessment(env.Ctx, rep.ID, engine.OutcomeReject, "insufficient detail", admin()); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AllocateResources(env.Ctx, rep.ID, engine.AllocateOptions{}, admin()); !errors.As(err, &preErr) {
		t.Fatalf("allocate on rejected assessment should be precondition error, got %v", err)
	}
}

func TestResolutionRejectKeepsCaseOpen(t *testing.T) {
	env := newTestEnv(t)
	rep := approvedAssessment(t, env, "tf-1")
	tf := taskforce("tf-1")
	var err error
	if rep, err = env.Engine.AllocateResources(env.Ctx, rep.ID, engine.AllocateOptions{}, admin()); err != nil {
		t.Fatal(err)
	}
	if rep, err = env.Engine.StartResolution(env.Ctx, rep.ID, tf, ""); err != nil {
		t.Fatal(err)
	}
	if rep, err = env.Engine.SubmitResolution(env.Ctx, rep.ID, engine.ReportOptions{Summary: "patched"}, tf); err != nil {
		t.Fatal(err)
	}
	rep, report, err := env.Engine.ReviewResolution(env.Ctx, rep.ID, engine.OutcomeReject, "still a hole", admin())
	if err != nil {
		t.Fatalf("reject review: %v", err)
	}
	if rep.Status != domain.StatusResolutionSubmitted {
		t.Fatalf("rejecting the report must not resolve the case, got %s", rep.Status)
	}
	if report.Status != domain.ReportRejected {
		t.Fatalf("expected rejected report, got %s", report.Status)
	}
	if rep.ResolvedAt != nil {
		t.Fatalf("resolved stamp must stay empty")
	}
}

func TestRejectCase(t *testing.T) {
	env := newTestEnv(t)
	rep := submitCase(t, env)

	var valErr engine.ValidationError
	if _, err := env.Engine.RejectCase(env.Ctx, rep.ID, "  ", officer()); !errors.As(err, &valErr) {
		t.Fatalf("empty reason should be validation error, got %v", err)
	}
	rep, err := env.Engine.RejectCase(env.Ctx, rep.ID, "duplicate of CR-2025-AAAAAA", officer())
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rep.Status != domain.StatusRejected || rep.ResolutionNotes == "" {
		t.Fatalf("rejection not recorded: %+v", rep)
	}
	// terminal
	if _, err := env.Engine.Acknowledge(env.Ctx, rep.ID, officer(), ""); !isInvalidTransition(err) {
		t.Fatalf("rejected case must be terminal, got %v", err)
	}

	// mid-flow rejection by admin
	rep2 := advanceToAssigned(t, env, "tf-1")
	if rep2, err = env.Engine.RejectCase(env.Ctx, rep2.ID, "outside municipal boundary", admin()); err != nil {
		t.Fatalf("mid-flow reject: %v", err)
	}
	if rep2.Status != domain.StatusRejected {
		t.Fatalf("expected rejected, got %s", rep2.Status)
	}
}

func TestDuplicateDraftRefused(t *testing.T) {
	env := newTestEnv(t)
	rep := advanceToAssigned(t, env, "tf-1")
	tf := taskforce("tf-1")
	if _, err := env.Engine.StartAssessment(env.Ctx, rep.ID, tf, ""); err != nil {
		t.Fatal(err)
	}
	// second start is unreachable; the draft guard is what protects replays
	// that arrive through a stale client
	if _, err := env.Engine.StartAssessment(env.Ctx, rep.ID, tf, ""); !isInvalidTransition(err) {
		t.Fatalf("expected invalid transition on repeat start, got %v", err)
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		opts engine.SubmitOptions
	}{
		{"missing title", engine.SubmitOptions{SectorID: "roads", Description: "d", LocationName: "l"}},
		{"missing description", engine.SubmitOptions{SectorID: "roads", Title: "t", LocationName: "l"}},
		{"missing location", engine.SubmitOptions{SectorID: "roads", Title: "t", Description: "d"}},
		{"unknown sector", engine.SubmitOptions{SectorID: "space-debris", Title: "t", Description: "d", LocationName: "l"}},
		{"unknown sub-sector", engine.SubmitOptions{SectorID: "roads", SubSector: "volcanoes", Title: "t", Description: "d", LocationName: "l"}},
		{"bad severity", engine.SubmitOptions{SectorID: "roads", Severity: "apocalyptic", Title: "t", Description: "d", LocationName: "l"}},
	}
	var valErr engine.ValidationError
	for _, tc := range cases {
		if _, err := env.Engine.SubmitIssue(env.Ctx, tc.opts, resident()); !errors.As(err, &valErr) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestOriginDerivation(t *testing.T) {
	env := newTestEnv(t)
	base := engine.SubmitOptions{
		SectorID: "roads", Title: "t", Description: "d", LocationName: "l",
	}
	pub, err := env.Engine.SubmitIssue(env.Ctx, base, resident())
	if err != nil {
		t.Fatal(err)
	}
	if pub.Origin() != "public" {
		t.Fatalf("expected public origin, got %s", pub.Origin())
	}
	viaAgent, err := env.Engine.SubmitIssue(env.Ctx, base, domain.Principal{ActorID: "a1", Role: domain.RoleAgent, ProfileID: "agent-7"})
	if err != nil {
		t.Fatal(err)
	}
	if viaAgent.Origin() != "agent" || viaAgent.AgentID == nil || *viaAgent.AgentID != "agent-7" {
		t.Fatalf("agent origin not recorded: %+v", viaAgent)
	}
	viaOfficer, err := env.Engine.SubmitIssue(env.Ctx, base, officer())
	if err != nil {
		t.Fatal(err)
	}
	if viaOfficer.Origin() != "officer" {
		t.Fatalf("expected officer origin, got %s", viaOfficer.Origin())
	}
	if pub.CaseCode == viaAgent.CaseCode {
		t.Fatalf("case codes must be unique")
	}
}

func TestCommentsVisibility(t *testing.T) {
	env := newTestEnv(t)
	rep := submitCase(t, env)

	if _, err := env.Engine.AddComment(env.Ctx, rep.ID, "hi", false, resident()); !isAuthorization(err) {
		t.Fatalf("resident comment should be authorization error, got %v", err)
	}
	if _, err := env.Engine.AddComment(env.Ctx, rep.ID, "crew scheduled for Monday", false, officer()); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddComment(env.Ctx, rep.ID, "reporter is a known serial complainer", true, officer()); err != nil {
		t.Fatal(err)
	}
	staffView, err := env.Engine.ListComments(env.Ctx, rep.ID, officer())
	if err != nil {
		t.Fatal(err)
	}
	publicView, err := env.Engine.ListComments(env.Ctx, rep.ID, resident())
	if err != nil {
		t.Fatal(err)
	}
	if len(staffView) != 2 || len(publicView) != 1 {
		t.Fatalf("visibility filter wrong: staff=%d public=%d", len(staffView), len(publicView))
	}
	if publicView[0].Internal {
		t.Fatalf("internal comment leaked to public view")
	}
	if _, err := env.Engine.ListHistory(env.Ctx, rep.ID, resident()); !isAuthorization(err) {
		t.Fatalf("history must be staff-only, got %v", err)
	}
}

func TestDraftEditing(t *testing.T) {
	env := newTestEnv(t)
	rep := advanceToAssigned(t, env, "tf-1")
	tf := taskforce("tf-1")
	if _, err := env.Engine.StartAssessment(env.Ctx, rep.ID, tf, ""); err != nil {
		t.Fatal(err)
	}
	report, err := env.Engine.SaveReportDraft(env.Ctx, rep.ID, domain.PhaseAssessment, engine.ReportOptions{Summary: "wip"}, tf)
	if err != nil {
		t.Fatalf("draft save: %v", err)
	}
	if report.Status != domain.ReportDraft || report.Summary != "wip" {
		t.Fatalf("draft not saved: %+v", report)
	}
	if _, err := env.Engine.SubmitAssessment(env.Ctx, rep.ID, engine.ReportOptions{Summary: "final"}, tf); err != nil {
		t.Fatal(err)
	}
	var preErr engine.PreconditionError
	if _, err := env.Engine.SaveReportDraft(env.Ctx, rep.ID, domain.PhaseAssessment, engine.ReportOptions{Summary: "late edit"}, tf); !errors.As(err, &preErr) {
		t.Fatalf("editing a submitted report should be precondition error, got %v", err)
	}
}

func isAuthorization(err error) bool {
	var e engine.AuthorizationError
	return errors.As(err, &e)
}

func isInvalidTransition(err error) bool {
	var e engine.InvalidTransitionError
	return errors.As(err, &e)
}
