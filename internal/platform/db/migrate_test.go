package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeMigrationFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadDir_ParsesAndSorts(t *testing.T) {
	dir := writeMigrationFiles(t, map[string]string{
		"010_risk_reports.sql": "CREATE TABLE risk_reports (id UUID PRIMARY KEY);",
		"002_soap_notes.sql":   "CREATE TABLE soap_notes (id UUID PRIMARY KEY);",
		"001_ai_call_log.sql":  "CREATE TABLE ai_call_log (id UUID PRIMARY KEY);",
		"005_indexes.sql":      "CREATE INDEX idx_call_log_caller ON ai_call_log (caller_id);",
	})

	migrations, err := NewMigrator(nil, dir).loadDir()
	if err != nil {
		t.Fatalf("loadDir: %v", err)
	}

	if len(migrations) != 4 {
		t.Fatalf("got %d migrations, want 4", len(migrations))
	}
	for i, want := range []int{1, 2, 5, 10} {
		if migrations[i].Version != want {
			t.Errorf("migrations[%d].Version = %d, want %d", i, migrations[i].Version, want)
		}
	}
	if migrations[0].Name != "001_ai_call_log.sql" {
		t.Errorf("Name = %q, want the full filename", migrations[0].Name)
	}
	if !strings.Contains(migrations[0].SQL, "CREATE TABLE ai_call_log") {
		t.Errorf("SQL body not loaded: %q", migrations[0].SQL)
	}
}

func TestLoadDir_SkipsNonMigrationFiles(t *testing.T) {
	dir := writeMigrationFiles(t, map[string]string{
		"001_valid.sql":      "SELECT 1;",
		"002_also_valid.sql": "SELECT 2;",
		"readme.sql":         "-- no version prefix",
		"notes.txt":          "not sql at all",
		"abc_letters.sql":    "-- non-numeric prefix",
		"000_zero.sql":       "-- version zero is reserved",
	})
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	migrations, err := NewMigrator(nil, dir).loadDir()
	if err != nil {
		t.Fatalf("loadDir: %v", err)
	}

	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("versions = [%d, %d], want [1, 2]", migrations[0].Version, migrations[1].Version)
	}
}

func TestLoadDir_RejectsDuplicateVersions(t *testing.T) {
	// Same version under different zero padding still collides.
	dir := writeMigrationFiles(t, map[string]string{
		"001_original.sql": "SELECT 1;",
		"1_rebased.sql":    "SELECT 1;",
	})

	_, err := NewMigrator(nil, dir).loadDir()
	if err == nil {
		t.Fatal("expected duplicate version error")
	}
	if !strings.Contains(err.Error(), "duplicate migration version 1") {
		t.Errorf("error = %v, want duplicate version mention", err)
	}
}

func TestLoadDir_EmptyDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).loadDir()
	if err != nil {
		t.Fatalf("loadDir: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("got %d migrations from empty dir, want 0", len(migrations))
	}
}

func TestLoadDir_MissingDir(t *testing.T) {
	_, err := NewMigrator(nil, filepath.Join(t.TempDir(), "nope")).loadDir()
	if err == nil {
		t.Error("expected error for a missing directory")
	}
}

func TestMergeStatus_JoinsLedgerAgainstDisk(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "001_ai_call_log.sql"},
		{Version: 2, Name: "002_nursing_assessments.sql"},
		{Version: 3, Name: "003_soap_notes.sql"},
	}
	appliedAt := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	ledger := map[int]time.Time{1: appliedAt}

	statuses := mergeStatus(migrations, ledger)

	if len(statuses) != 3 {
		t.Fatalf("got %d statuses, want 3", len(statuses))
	}
	if !statuses[0].Applied {
		t.Error("version 1 should be applied")
	}
	if statuses[0].AppliedAt == nil || !statuses[0].AppliedAt.Equal(appliedAt) {
		t.Errorf("version 1 AppliedAt = %v, want %v", statuses[0].AppliedAt, appliedAt)
	}
	for _, s := range statuses[1:] {
		if s.Applied || s.AppliedAt != nil {
			t.Errorf("version %d should be pending with nil AppliedAt", s.Version)
		}
	}
	if statuses[1].Name != "002_nursing_assessments.sql" {
		t.Errorf("Name = %q, want the full filename", statuses[1].Name)
	}
}

func TestMergeStatus_IgnoresLedgerRowsWithoutFiles(t *testing.T) {
	// Status is disk driven: a ledger entry whose file was removed does not
	// produce a phantom row.
	migrations := []Migration{{Version: 2, Name: "002_soap_notes.sql"}}
	ledger := map[int]time.Time{1: time.Now(), 2: time.Now()}

	statuses := mergeStatus(migrations, ledger)

	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	if statuses[0].Version != 2 || !statuses[0].Applied {
		t.Errorf("unexpected status %+v", statuses[0])
	}
}
