package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the scene tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE scene_states (
			scene_id    TEXT PRIMARY KEY,
			slug        TEXT NOT NULL,
			name        TEXT NOT NULL,
			active      INTEGER NOT NULL DEFAULT 0,
			phase       TEXT NOT NULL DEFAULT 'idle_off',
			raw_active  INTEGER NOT NULL DEFAULT 0,
			updated_at  TEXT NOT NULL
		);
		CREATE TABLE scene_transitions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			scene_id    TEXT NOT NULL,
			active      INTEGER NOT NULL,
			occurred_at TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func testState(id, name string, active bool) *SceneState {
	return &SceneState{
		SceneID: id,
		Slug:    id,
		Name:    name,
		Active:  active,
		Phase:   "confirmed",
	}
}

func TestUpsertAndGet(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Upsert(ctx, testState("evening", "Evening", true)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.Get(ctx, "evening")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Active || got.Name != "Evening" || got.Phase != "confirmed" {
		t.Errorf("Get() = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}

	// Second upsert replaces the row.
	if err := repo.Upsert(ctx, testState("evening", "Evening", false)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	got, err = repo.Get(ctx, "evening")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Active {
		t.Error("Active = true after deactivating upsert")
	}
}

func TestGetNotFound(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for _, s := range []*SceneState{
		testState("night", "Night", false),
		testState("evening", "Evening", true),
	} {
		if err := repo.Upsert(ctx, s); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	states, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("List() returned %d states, want 2", len(states))
	}
	// Ordered by name.
	if states[0].SceneID != "evening" || states[1].SceneID != "night" {
		t.Errorf("List() order = [%s %s], want [evening night]",
			states[0].SceneID, states[1].SceneID)
	}
}

func TestPrune(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Upsert(ctx, testState(id, id, false)); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	if err := repo.Prune(ctx, []string{"a", "c"}); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	states, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("List() returned %d states after prune, want 2", len(states))
	}
	if _, err := repo.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pruned scene still present: %v", err)
	}
}

func TestPruneAll(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	if err := repo.Upsert(ctx, testState("a", "A", false)); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Prune(ctx, nil); err != nil {
		t.Fatalf("Prune(nil) error = %v", err)
	}

	states, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(states) != 0 {
		t.Errorf("List() returned %d states after full prune, want 0", len(states))
	}
}

func TestTransitions(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	flips := []bool{true, false, true}
	for _, active := range flips {
		if err := repo.RecordTransition(ctx, "evening", active); err != nil {
			t.Fatalf("RecordTransition() error = %v", err)
		}
	}
	if err := repo.RecordTransition(ctx, "night", true); err != nil {
		t.Fatalf("RecordTransition() error = %v", err)
	}

	got, err := repo.RecentTransitions(ctx, "evening", 0)
	if err != nil {
		t.Fatalf("RecentTransitions() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("RecentTransitions() returned %d rows, want 3", len(got))
	}
	// Newest first.
	if !got[0].Active || got[1].Active || !got[2].Active {
		t.Errorf("transition order wrong: %+v", got)
	}

	limited, err := repo.RecentTransitions(ctx, "evening", 2)
	if err != nil {
		t.Fatalf("RecentTransitions() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("RecentTransitions(limit=2) returned %d rows", len(limited))
	}
}
