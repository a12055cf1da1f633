package database

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
)

// withMigrations points the package at an in-memory migration filesystem
// for the duration of one test.
func withMigrations(t *testing.T, files map[string]string) {
	t.Helper()

	fsys := fstest.MapFS{}
	for name, sql := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(sql)}
	}

	prevFS, prevDir := MigrationsFS, MigrationsDir
	MigrationsFS = fsys
	MigrationsDir = "."
	t.Cleanup(func() {
		MigrationsFS = prevFS
		MigrationsDir = prevDir
	})
}

func countRows(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("counting rows in %s: %v", table, err)
	}
	return n
}

func TestMigrateAppliesAllPending(t *testing.T) {
	withMigrations(t, map[string]string{
		"20260101_100000_first.up.sql":  "CREATE TABLE first_table (id INTEGER PRIMARY KEY);",
		"20260102_100000_second.up.sql": "CREATE TABLE second_table (id INTEGER PRIMARY KEY);",
	})

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Both tables exist and both versions are recorded.
	countRows(t, db, "first_table")
	countRows(t, db, "second_table")
	if n := countRows(t, db, "schema_migrations"); n != 2 {
		t.Errorf("schema_migrations rows = %d, want 2", n)
	}

	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if status.Applied != 2 || status.Pending != 0 {
		t.Errorf("status = %+v, want 2 applied, 0 pending", status)
	}
	if status.Version != "20260102_100000" {
		t.Errorf("status.Version = %q, want 20260102_100000", status.Version)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	withMigrations(t, map[string]string{
		"20260101_100000_first.up.sql": "CREATE TABLE first_table (id INTEGER PRIMARY KEY);",
	})

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := db.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() run %d error = %v", i+1, err)
		}
	}

	if n := countRows(t, db, "schema_migrations"); n != 1 {
		t.Errorf("schema_migrations rows = %d, want 1 after repeated Migrate", n)
	}
}

func TestMigrateStopsAtFailure(t *testing.T) {
	firstSQL := "CREATE TABLE first_table (id INTEGER PRIMARY KEY);"
	withMigrations(t, map[string]string{
		"20260101_100000_first.up.sql":  firstSQL,
		"20260102_100000_second.up.sql": "THIS IS NOT SQL;",
	})

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	err := db.Migrate(ctx)
	if err == nil {
		t.Fatal("Migrate() expected error from broken migration")
	}
	if !strings.Contains(err.Error(), "20260102_100000") {
		t.Errorf("error %q does not name the failed version", err)
	}

	// The earlier migration stayed committed; the broken one is pending.
	countRows(t, db, "first_table")
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if status.Applied != 1 || status.Pending != 1 {
		t.Errorf("status = %+v, want 1 applied, 1 pending", status)
	}

	// Fixing the migration and re-running continues from the failure.
	withMigrations(t, map[string]string{
		"20260101_100000_first.up.sql":  firstSQL,
		"20260102_100000_second.up.sql": "CREATE TABLE second_table (id INTEGER PRIMARY KEY);",
	})
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() after fix error = %v", err)
	}
	countRows(t, db, "second_table")
}

func TestMigrateWithoutFilesystem(t *testing.T) {
	prevFS := MigrationsFS
	MigrationsFS = nil
	t.Cleanup(func() { MigrationsFS = prevFS })

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Errorf("Migrate() with no migrations error = %v", err)
	}
}

func TestMigrationStatusBeforeMigrate(t *testing.T) {
	withMigrations(t, map[string]string{
		"20260101_100000_first.up.sql":  "CREATE TABLE first_table (id INTEGER PRIMARY KEY);",
		"20260102_100000_second.up.sql": "CREATE TABLE second_table (id INTEGER PRIMARY KEY);",
	})

	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	status, err := db.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if status.Applied != 0 || status.Pending != 2 || status.Version != "" {
		t.Errorf("status = %+v, want 0 applied, 2 pending, empty version", status)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20260815_090000_scene_state.up.sql", "20260815_090000", "scene_state", true},
		{"20260815_090000_scene_state_extra.up.sql", "20260815_090000", "scene_state_extra", true},
		{"20260815_090000_scene_state.down.sql", "", "", false},
		{"20260815_090000.up.sql", "", "", false},
		{"README.md", "", "", false},
		{"notes.sql", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if version != tt.wantVersion || name != tt.wantName {
				t.Errorf("parsed (%q, %q), want (%q, %q)", version, name, tt.wantVersion, tt.wantName)
			}
		})
	}
}

func TestMigrationsSkipUnrelatedFiles(t *testing.T) {
	withMigrations(t, map[string]string{
		"20260101_100000_first.up.sql":   "CREATE TABLE first_table (id INTEGER PRIMARY KEY);",
		"20260101_100000_first.down.sql": "DROP TABLE first_table;",
		"notes.txt":                      "not a migration",
	})

	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(migrations) != 1 {
		t.Fatalf("loadMigrations() returned %d migrations, want 1", len(migrations))
	}
	if migrations[0].Version != "20260101_100000" || migrations[0].Name != "first" {
		t.Errorf("migration = %+v", migrations[0])
	}
}
