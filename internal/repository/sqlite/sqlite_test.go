package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/sakif/ballot/internal/model"
)

// newTestDB opens a fresh in-memory database. Each call is isolated.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestIdentity(t *testing.T, db *DB, name string) *model.Identity {
	t.Helper()
	u := &model.Identity{
		Name:  name,
		Email: fmt.Sprintf("%s@example.com", name),
	}
	if err := db.CreateIdentity(context.Background(), u); err != nil {
		t.Fatalf("failed to create test identity: %v", err)
	}
	return u
}

func seedTestCandidates(t *testing.T, db *DB, names ...string) []model.Candidate {
	t.Helper()
	cs := make([]model.Candidate, len(names))
	for i, n := range names {
		cs[i] = model.Candidate{Name: n, Description: n + " platform"}
	}
	if err := db.ReplaceCandidates(context.Background(), cs); err != nil {
		t.Fatalf("failed to seed candidates: %v", err)
	}
	return cs
}

func TestNew_Migrations_Idempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	createTestIdentity(t, db, "ann")

	_, err := db.conn.Exec(
		`INSERT INTO users (id, name, email, created_at, updated_at) VALUES ('x', 'Ann', 'ann@example.com', 0, 0)`)
	if err == nil {
		t.Fatal("expected a constraint error")
	}

	if !isUniqueViolation(err, "") {
		t.Errorf("isUniqueViolation(%v, \"\") = false, want true", err)
	}
	if !isUniqueViolation(err, "users.email") {
		t.Errorf("isUniqueViolation(%v, users.email) = false, want true", err)
	}
	if isUniqueViolation(err, "votes.voter_id") {
		t.Errorf("isUniqueViolation(%v, votes.voter_id) = true, want false", err)
	}
	if isUniqueViolation(nil, "") {
		t.Error("isUniqueViolation(nil) = true")
	}
}
