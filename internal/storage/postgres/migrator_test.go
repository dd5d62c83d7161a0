package postgres

import (
	"testing"
	"testing/fstest"
)

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys["sql/migrations/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestReadMigrationsPairsAndSorts(t *testing.T) {
	fsys := migrationFS(map[string]string{
		"0002_outbox.up.sql":        "CREATE TABLE outbox ();",
		"0002_outbox.down.sql":      "DROP TABLE outbox;",
		"0001_core_schema.up.sql":   "CREATE TABLE orders ();",
		"0001_core_schema.down.sql": "DROP TABLE orders;",
	})

	migrations, err := readMigrations(fsys)
	if err != nil {
		t.Fatalf("readMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("migrations must be sorted by version, got %d/%d", migrations[0].Version, migrations[1].Version)
	}
	if migrations[0].Name != "core_schema" || migrations[0].UpSQL == "" || migrations[0].DownSQL == "" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
}

func TestReadMigrationsRejectsMissingDown(t *testing.T) {
	fsys := migrationFS(map[string]string{
		"0001_core_schema.up.sql": "CREATE TABLE orders ();",
	})

	if _, err := readMigrations(fsys); err == nil {
		t.Fatal("migration without a down half must be rejected")
	}
}

func TestReadMigrationsRejectsNameMismatch(t *testing.T) {
	fsys := migrationFS(map[string]string{
		"0001_core_schema.up.sql": "CREATE TABLE orders ();",
		"0001_renamed.down.sql":   "DROP TABLE orders;",
	})

	if _, err := readMigrations(fsys); err == nil {
		t.Fatal("mismatched names within one version must be rejected")
	}
}

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	migrations, err := readMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations must load: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
}
