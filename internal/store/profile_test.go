package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/ecoquest/internal/database"
	"github.com/dukerupert/ecoquest/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createStudent(t *testing.T, ps *ProfileStore, email, school, class string) *model.UserProfile {
	t.Helper()
	p, err := ps.Create(context.Background(), email, model.ProfileInput{
		DisplayName: email,
		School:      school,
		ClassName:   class,
		Role:        model.RoleStudent,
	})
	if err != nil {
		t.Fatalf("create profile %s: %v", email, err)
	}
	return p
}

func TestProfileCreate(t *testing.T) {
	ps := NewProfileStore(setupTestDB(t))

	p, err := ps.Create(context.Background(), "ola@example.com", model.ProfileInput{
		DisplayName: "Ola",
		School:      "SP 1",
		ClassName:   "5a",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if p.Points != 0 {
		t.Errorf("points = %d, want 0", p.Points)
	}
	if len(p.Badges) != 0 {
		t.Errorf("badges = %v, want empty", p.Badges)
	}
	if p.Role != model.RoleStudent {
		t.Errorf("role = %q, want student by default", p.Role)
	}
}

func TestProfileGetNotFound(t *testing.T) {
	ps := NewProfileStore(setupTestDB(t))

	p, err := ps.GetByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p != nil {
		t.Error("expected nil for missing profile")
	}

	p, err = ps.GetByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if p != nil {
		t.Error("expected nil for missing email")
	}
}

func TestProfileEnsureIdempotent(t *testing.T) {
	ps := NewProfileStore(setupTestDB(t))
	ctx := context.Background()

	first, created, err := ps.Ensure(ctx, "kuba@example.com", model.ProfileInput{DisplayName: "Kuba"})
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !created {
		t.Error("expected first ensure to create")
	}

	second, created, err := ps.Ensure(ctx, "kuba@example.com", model.ProfileInput{DisplayName: "Other"})
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if created {
		t.Error("expected second ensure to reuse the profile")
	}
	if second.ID != first.ID {
		t.Errorf("id = %d, want %d", second.ID, first.ID)
	}
	if second.DisplayName != "Kuba" {
		t.Errorf("display name = %q, want existing value kept", second.DisplayName)
	}
}

func TestProfileDeleteCascades(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProfileStore(db)
	as := NewActivityStore(db)
	ctx := context.Background()

	p := createStudent(t, ps, "ala@example.com", "SP 1", "5a")
	if _, err := as.Create(ctx, model.Activity{UserID: p.ID, Category: "water", Points: 8}); err != nil {
		t.Fatalf("create activity: %v", err)
	}

	if err := ps.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := ps.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Error("expected profile to be gone")
	}

	list, err := as.List(ctx, ActivityQuery{UserID: p.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected activities removed with profile, got %d", len(list))
	}
}

func TestListIDsBySchoolClass(t *testing.T) {
	ps := NewProfileStore(setupTestDB(t))
	ctx := context.Background()

	a := createStudent(t, ps, "a@example.com", "SP 1", "5a")
	b := createStudent(t, ps, "b@example.com", "SP 1", "5a")
	createStudent(t, ps, "c@example.com", "SP 1", "5b")
	createStudent(t, ps, "d@example.com", "SP 2", "5a")

	ids, err := ps.ListIDsBySchoolClass(ctx, "SP 1", "5a")
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
		t.Errorf("ids = %v, want [%d %d]", ids, a.ID, b.ID)
	}

	ids, err = ps.ListIDsBySchoolClass(ctx, "SP 1", "")
	if err != nil {
		t.Fatalf("list ids by school: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("school ids = %v, want 3", ids)
	}

	ids, err = ps.ListIDsBySchoolClass(ctx, "SP 9", "1a")
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no ids, got %v", ids)
	}
}

func TestRankingSharesTies(t *testing.T) {
	db := setupTestDB(t)
	ps := NewProfileStore(db)
	ctx := context.Background()

	points := map[string]int{"a@example.com": 50, "b@example.com": 80, "c@example.com": 50, "d@example.com": 10}
	for email, pts := range points {
		p := createStudent(t, ps, email, "SP 1", "5a")
		if _, err := db.Exec(`UPDATE users SET points = ? WHERE id = ?`, pts, p.ID); err != nil {
			t.Fatalf("set points: %v", err)
		}
	}
	if _, err := ps.Create(ctx, "teacher@example.com", model.ProfileInput{Role: model.RoleTeacher, School: "SP 1", ClassName: "5a"}); err != nil {
		t.Fatalf("create teacher: %v", err)
	}

	ranking, err := ps.Ranking(ctx, "SP 1", "", 0)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(ranking) != 4 {
		t.Fatalf("expected 4 students, got %d", len(ranking))
	}

	wantRanks := []int{1, 2, 2, 4}
	wantPoints := []int{80, 50, 50, 10}
	for i, r := range ranking {
		if r.Rank != wantRanks[i] || r.Points != wantPoints[i] {
			t.Errorf("ranking[%d] = rank %d points %d, want rank %d points %d", i, r.Rank, r.Points, wantRanks[i], wantPoints[i])
		}
	}

	top, err := ps.Ranking(ctx, "", "", 1)
	if err != nil {
		t.Fatalf("ranking with limit: %v", err)
	}
	if len(top) != 1 || top[0].Points != 80 {
		t.Errorf("top = %+v, want single entry with 80 points", top)
	}
}
