package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	files, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	ups := make(map[string]bool)
	downs := make(map[string]bool)
	for _, f := range files {
		name := strings.TrimPrefix(f, "migrations/")
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	if len(ups) == 0 {
		t.Fatal("expected at least one migration")
	}
	for v := range ups {
		if !downs[v] {
			t.Fatalf("migration %s has no down file", v)
		}
	}
}

func TestInitMigrationCreatesTables(t *testing.T) {
	body, err := migrationFS.ReadFile("migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	for _, table := range []string{"people", "claims", "encounters", "encounter_people", "contact_signals", "edges", "overlaps", "sweep_leases", "sweep_runs"} {
		if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("expected table %s in init migration", table)
		}
	}
}
