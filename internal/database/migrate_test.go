package database

import (
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keyxmakerx/parlor/db/migrations"
	"github.com/keyxmakerx/parlor/internal/config"
)

// TestMigrations_UpDownPairs ensures every .up.sql has a matching .down.sql
// in both dialects.
func TestMigrations_UpDownPairs(t *testing.T) {
	for _, dialect := range []string{config.DriverMySQL, config.DriverSQLite} {
		ups, err := fs.Glob(migrations.FS, dialect+"/*.up.sql")
		if err != nil {
			t.Fatalf("globbing %s migrations: %v", dialect, err)
		}
		if len(ups) == 0 {
			t.Fatalf("no %s migrations found", dialect)
		}
		for _, up := range ups {
			down := strings.Replace(up, ".up.sql", ".down.sql", 1)
			if _, err := fs.Stat(migrations.FS, down); err != nil {
				t.Errorf("missing down migration for %s", up)
			}
		}
	}
}

// TestMigrations_DialectsInSync ensures both dialects carry the same
// migration versions so a deployment can switch drivers.
func TestMigrations_DialectsInSync(t *testing.T) {
	names := func(dialect string) map[string]bool {
		files, err := fs.Glob(migrations.FS, dialect+"/*.sql")
		if err != nil {
			t.Fatalf("globbing: %v", err)
		}
		set := make(map[string]bool, len(files))
		for _, f := range files {
			set[filepath.Base(f)] = true
		}
		return set
	}

	mysqlSet, sqliteSet := names(config.DriverMySQL), names(config.DriverSQLite)
	for name := range mysqlSet {
		if !sqliteSet[name] {
			t.Errorf("%s exists for mysql but not sqlite", name)
		}
	}
	for name := range sqliteSet {
		if !mysqlSet[name] {
			t.Errorf("%s exists for sqlite but not mysql", name)
		}
	}
}

func TestRunMigrations_SQLite(t *testing.T) {
	db, err := NewSQLite(filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db, config.DriverSQLite); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Re-running is a no-op.
	if err := RunMigrations(db, config.DriverSQLite); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		t.Fatalf("users table missing: %v", err)
	}
}

func TestRunMigrations_UnknownDriver(t *testing.T) {
	if err := RunMigrations(nil, "mongo"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
