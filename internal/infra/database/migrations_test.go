package database

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrateRejectsEmptyDSN(t *testing.T) {
	if err := Migrate("", "up"); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	for _, direction := range []string{"", "UP", "sideways"} {
		if err := Migrate("postgres://localhost/tokens", direction); err == nil {
			t.Fatalf("expected error for direction %q", direction)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatalf("expected at least one migration")
	}
	for version := range ups {
		if !downs[version] {
			t.Fatalf("migration %s has no down script", version)
		}
	}
}
