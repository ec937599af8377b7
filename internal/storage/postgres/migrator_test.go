package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_a;"),
		},
		"sql/migrations/0002_more.up.sql": {
			Data: []byte("CREATE TABLE test_b (id INT);"),
		},
		"sql/migrations/0002_more.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_b;"),
		},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "more" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoadMigrationsFromFS_MissingDown(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "both up and down") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsFromFS_InvalidFilename(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/not_a_migration.sql": {
			Data: []byte("SELECT 1;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for invalid migration file name")
	}
}

func TestLoadMigrationsFromFS_EmptyFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("   \n"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for empty migration file body")
	}
}

func TestPlanMigrations(t *testing.T) {
	t.Parallel()

	migrations := []migration{
		{Version: 1, Name: "init"},
		{Version: 2, Name: "trail_outbox"},
		{Version: 3, Name: "more"},
	}

	tests := []struct {
		name      string
		applied   map[int64]bool
		direction migrationDirection
		steps     int
		want      []int64
		wantErr   bool
	}{
		{name: "up all", applied: map[int64]bool{}, direction: migrationUp, want: []int64{1, 2, 3}},
		{name: "up skips applied", applied: map[int64]bool{1: true}, direction: migrationUp, want: []int64{2, 3}},
		{name: "up limited", applied: map[int64]bool{}, direction: migrationUp, steps: 1, want: []int64{1}},
		{name: "down newest first", applied: map[int64]bool{1: true, 2: true, 3: true}, direction: migrationDown, steps: 2, want: []int64{3, 2}},
		{name: "down nothing applied", applied: map[int64]bool{}, direction: migrationDown, steps: 1},
		{name: "down unknown version", applied: map[int64]bool{9: true}, direction: migrationDown, steps: 1, wantErr: true},
		{name: "bad direction", applied: map[int64]bool{}, direction: "sideways", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			plan, err := planMigrations(migrations, tt.applied, tt.direction, tt.steps)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("planMigrations: %v", err)
			}
			got := make([]int64, 0, len(plan))
			for _, m := range plan {
				got = append(got, m.Version)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("plan = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("plan = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestBuildMigrationState(t *testing.T) {
	t.Parallel()

	migrations := []migration{{Version: 1, Name: "init"}, {Version: 2, Name: "trail_outbox"}}
	state := buildMigrationState(migrations, map[int64]bool{1: true})
	if state.Version != 1 || state.Applied != 1 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if len(state.Pending) != 1 || state.Pending[0] != "0002_trail_outbox" {
		t.Fatalf("unexpected pending: %v", state.Pending)
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 embedded migrations, got %d", len(migrations))
	}
}
