package repo_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"civicdesk/internal/db"
	"civicdesk/internal/domain"
	"civicdesk/internal/migrate"
	"civicdesk/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func insertIssue(t *testing.T, r repo.Repo, id, createdAt string) domain.IssueReport {
	t.Helper()
	rep := domain.IssueReport{
		ID:           id,
		CaseCode:     "CR-2025-" + id,
		SectorID:     "roads",
		Severity:     domain.SeverityMedium,
		Title:        "t " + id,
		Description:  "d",
		LocationName: "l",
		Status:       domain.StatusSubmitted,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	if err := r.InsertIssue(context.Background(), tx, rep); err != nil {
		t.Fatalf("insert issue: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return rep
}

func TestUpdateIssueGuarded(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	rep := insertIssue(t, r, "aaa", "2025-01-01T00:00:00Z")

	rep.Status = domain.StatusUnderOfficerReview
	tx, err := r.DB.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := r.UpdateIssueGuarded(ctx, tx, rep, domain.StatusSubmitted); err != nil {
		t.Fatalf("guarded update: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	// a second writer still holding the submitted snapshot loses
	stale := rep
	stale.Status = domain.StatusRejected
	tx, err = r.DB.Begin()
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	err = r.UpdateIssueGuarded(ctx, tx, stale, domain.StatusSubmitted)
	if !errors.Is(err, repo.ErrStatusConflict) {
		t.Fatalf("expected ErrStatusConflict, got %v", err)
	}
}

func TestListIssuesCursor(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		insertIssue(t, r, fmt.Sprintf("i%d", i), fmt.Sprintf("2025-01-0%dT00:00:00Z", i+1))
	}

	first, err := r.ListIssues(ctx, repo.IssueFilters{Limit: 3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(first))
	}
	// newest first
	if first[0].ID != "i4" || first[2].ID != "i2" {
		t.Fatalf("unexpected order: %s .. %s", first[0].ID, first[2].ID)
	}
	rest, err := r.ListIssues(ctx, repo.IssueFilters{
		Limit:           10,
		CursorCreatedAt: first[2].CreatedAt,
		CursorID:        first[2].ID,
	})
	if err != nil {
		t.Fatalf("list after cursor: %v", err)
	}
	if len(rest) != 2 || rest[0].ID != "i1" || rest[1].ID != "i0" {
		t.Fatalf("unexpected second page: %+v", rest)
	}

	filtered, err := r.ListIssues(ctx, repo.IssueFilters{Status: domain.StatusClosed, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 0 {
		t.Fatalf("expected no closed cases, got %d", len(filtered))
	}
}

func TestAPIKeyLookup(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	secret := "ck_live_deadbeef"
	key := domain.APIKey{
		ID:        "k1",
		ActorID:   "integration-bot",
		Role:      domain.RoleOfficer,
		Name:      "dispatch sync",
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: "2025-01-01T00:00:00Z",
	}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ActorID != key.ActorID || got.Role != domain.RoleOfficer {
		t.Fatalf("unexpected key: %+v", got)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("wrong")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.DeleteAPIKey(ctx, key.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
