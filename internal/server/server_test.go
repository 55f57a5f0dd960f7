package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"civicdesk/internal/config"
	"civicdesk/internal/db"
	"civicdesk/internal/domain"
	"civicdesk/internal/engine"
	"civicdesk/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: testSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func mintToken(t *testing.T, subject string, role domain.Role, profileID string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = string(role)
	}
	if profileID != "" {
		claims["profile_id"] = profileID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func asRole(t *testing.T, role domain.Role, profileID string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + mintToken(t, "user-"+string(role), role, profileID)}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func submitPothole(t *testing.T, srv *testServer) CaseResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/cases", map[string]any{
		"sector_id":     "roads",
		"sub_sector":    "potholes",
		"severity":      "high",
		"title":         "Pothole on Main Street",
		"description":   "Deep pothole near the market entrance",
		"location_name": "Main Street / Market Rd",
		"reporter_name": "A. Citizen",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit case status %d: %s", res.StatusCode, string(data))
	}
	var created CaseResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal case: %v", err)
	}
	return created
}

func TestWorkflowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	created := submitPothole(t, srv)
	if created.Status != domain.StatusSubmitted || created.CaseCode == "" {
		t.Fatalf("unexpected created case: %+v", created)
	}

	officer := asRole(t, domain.RoleOfficer, "off-1")
	admin := asRole(t, domain.RoleWebAdmin, "")
	tf := asRole(t, domain.RoleTaskForce, "tf-1")
	base := srv.URL + "/v1/cases/" + created.ID

	steps := []struct {
		path    string
		body    any
		headers map[string]string
		status  string
	}{
		{"/acknowledge", map[string]any{}, officer, domain.StatusUnderOfficerReview},
		{"/forward", map[string]any{}, officer, domain.StatusForwardedToAdmin},
		{"/assign", map[string]any{"task_force_id": "tf-1"}, admin, domain.StatusAssignedToTaskForce},
		{"/assessment/start", map[string]any{}, tf, domain.StatusAssessmentInProgress},
		{"/assessment/submit", map[string]any{"summary": "road base failed"}, tf, domain.StatusAssessmentSubmitted},
		{"/allocate", map[string]any{"budget": 2500.0}, admin, domain.StatusResourcesAllocated},
		{"/resolution/start", map[string]any{}, tf, domain.StatusResolutionInProgress},
		{"/resolution/submit", map[string]any{"summary": "filled and sealed"}, tf, domain.StatusResolutionSubmitted},
	}
	for _, step := range steps {
		if step.path == "/allocate" {
			res, body := doJSON(t, client, http.MethodPost, base+"/assessment/review", map[string]any{"outcome": "approve"}, admin)
			if res.StatusCode != http.StatusOK {
				t.Fatalf("assessment review status %d: %s", res.StatusCode, string(body))
			}
		}
		res, body := doJSON(t, client, http.MethodPost, base+step.path, step.body, step.headers)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s status %d: %s", step.path, res.StatusCode, string(body))
		}
		var rep CaseResponse
		if err := json.Unmarshal(body, &rep); err != nil {
			t.Fatalf("%s unmarshal: %v", step.path, err)
		}
		if rep.Status != step.status {
			t.Fatalf("%s: expected %s, got %s", step.path, step.status, rep.Status)
		}
	}

	res, body := doJSON(t, client, http.MethodPost, base+"/resolution/review", map[string]any{"outcome": "approve", "notes": "verified"}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolution review status %d: %s", res.StatusCode, string(body))
	}
	var review ReviewResponse
	if err := json.Unmarshal(body, &review); err != nil {
		t.Fatalf("unmarshal review: %v", err)
	}
	if review.Case.Status != domain.StatusResolved || review.Report.Status != domain.ReportApproved {
		t.Fatalf("unexpected review result: %+v", review)
	}

	res, body = doJSON(t, client, http.MethodPost, base+"/close", map[string]any{}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", res.StatusCode, string(body))
	}

	// the public can still read the case by its code
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/cases/"+created.CaseCode, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("public get status %d: %s", res.StatusCode, string(body))
	}
	var publicView map[string]any
	if err := json.Unmarshal(body, &publicView); err != nil {
		t.Fatalf("unmarshal public view: %v", err)
	}
	if publicView["status"] != domain.StatusClosed {
		t.Fatalf("expected closed, got %v", publicView["status"])
	}
	for _, hidden := range []string{"reporter_name", "assigned_task_force_id", "allocated_budget"} {
		if _, ok := publicView[hidden]; ok {
			t.Fatalf("%s leaked to the public view", hidden)
		}
	}

	res, body = doJSON(t, client, http.MethodGet, base+"/history", nil, officer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(body))
	}
	var history []HistoryEntryResponse
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history) != 11 {
		t.Fatalf("expected 11 history rows, got %d", len(history))
	}
}

func TestAuthBoundaries(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	created := submitPothole(t, srv)

	// staff listing is closed to the public
	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v1/cases", nil, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous list: expected 403, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/cases/"+created.ID+"/history", nil, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous history: expected 403, got %d %s", res.StatusCode, string(body))
	}

	// garbage credentials are rejected, not downgraded to anonymous
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/cases/"+created.ID, nil, map[string]string{"Authorization": "Bearer not-a-token"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d %s", res.StatusCode, string(body))
	}

	// a valid staff token opens the listing
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/cases", nil, asRole(t, domain.RoleOfficer, "off-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("officer list status %d: %s", res.StatusCode, string(body))
	}
	var page paginatedCases
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 case, got %d", len(page.Items))
	}

	// role gating surfaces as the error envelope
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/cases/"+created.ID+"/acknowledge", map[string]any{}, asRole(t, domain.RoleWebAdmin, ""))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("admin acknowledge: expected 403, got %d %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "forbidden" || envelope.Error.Message == "" {
		t.Fatalf("unexpected envelope: %s", string(body))
	}
}

func TestInvalidTransitionEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := submitPothole(t, srv)

	res, body := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/cases/"+created.ID+"/close", map[string]any{}, asRole(t, domain.RoleWebAdmin, ""))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(body))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", string(body))
	}
	if envelope.Error.Details["from"] != domain.StatusSubmitted || envelope.Error.Details["to"] != domain.StatusClosed {
		t.Fatalf("details missing transition endpoints: %s", string(body))
	}
}

func TestConcurrencyConflictEnvelope(t *testing.T) {
	se := handleError(engine.ConflictError{IssueID: "case-1"})
	if se.GetStatus() != http.StatusConflict {
		t.Fatalf("expected 409, got %d", se.GetStatus())
	}
	apiErr, ok := se.(*apiError)
	if !ok {
		t.Fatalf("expected apiError envelope, got %T", se)
	}
	if apiErr.Body.Code != "concurrency_conflict" {
		t.Fatalf("expected concurrency_conflict, got %s", apiErr.Body.Code)
	}
	if apiErr.Body.Details["issue_id"] != "case-1" {
		t.Fatalf("details missing issue id: %+v", apiErr.Body.Details)
	}
}

func TestIdeasAndPrograms(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := asRole(t, domain.RoleWebAdmin, "")

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v1/ideas", map[string]any{
		"title":       "Shade trees along the esplanade",
		"author_name": "A. Citizen",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit idea status %d: %s", res.StatusCode, string(body))
	}
	var idea domain.Idea
	if err := json.Unmarshal(body, &idea); err != nil {
		t.Fatalf("unmarshal idea: %v", err)
	}

	for i, wantCounted := range []bool{true, false} {
		res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/ideas/"+idea.ID+"/vote", map[string]any{"voter": "voter-1"}, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("vote %d status %d: %s", i, res.StatusCode, string(body))
		}
		var vote VoteResponse
		if err := json.Unmarshal(body, &vote); err != nil {
			t.Fatalf("unmarshal vote: %v", err)
		}
		if vote.Counted != wantCounted || vote.Idea.Votes != 1 {
			t.Fatalf("vote %d: counted=%v votes=%d", i, vote.Counted, vote.Idea.Votes)
		}
	}

	res, body = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/ideas/"+idea.ID+"/status", map[string]any{"status": "accepted"}, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous triage: expected 403, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/ideas/"+idea.ID+"/status", map[string]any{"status": "accepted"}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("triage status %d: %s", res.StatusCode, string(body))
	}

	// staff below web_admin cannot open programs
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/programs", map[string]any{
		"name":     "Summer coding camp",
		"capacity": 1,
	}, asRole(t, domain.RoleOfficer, "off-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("officer create program: expected 403, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/programs", map[string]any{
		"name":     "Summer coding camp",
		"capacity": 1,
	}, admin)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create program status %d: %s", res.StatusCode, string(body))
	}
	var prog domain.Program
	if err := json.Unmarshal(body, &prog); err != nil {
		t.Fatalf("unmarshal program: %v", err)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/programs/"+prog.ID+"/registrations", map[string]any{
		"participant": "Kid One",
		"contact":     "+111",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("first registration status %d: %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v1/programs/"+prog.ID+"/registrations", map[string]any{
		"participant": "Kid Two",
		"contact":     "+222",
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("over-capacity registration: expected 422, got %d %s", res.StatusCode, string(body))
	}

	// the roster is staff-only
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/programs/"+prog.ID+"/registrations", nil, nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous roster: expected 403, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v1/programs/"+prog.ID+"/registrations", nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("roster status %d: %s", res.StatusCode, string(body))
	}
	var roster []domain.Registration
	if err := json.Unmarshal(body, &roster); err != nil {
		t.Fatalf("unmarshal roster: %v", err)
	}
	if len(roster) != 1 {
		t.Fatalf("expected 1 registrant, got %d", len(roster))
	}
}
