package history

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_OpenInitializesSchemaAndSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	first := Record{
		ProjectKey: "project-a",
		PlanID:     "plan-1",
		Kind:       "rename",
		Target:     "billing.Invoice.total",
		Outcome:    OutcomePlanned,
		FileCount:  3,
		EditCount:  12,
		Timestamp:  base,
	}
	dup := Record{
		ProjectKey: "project-a",
		PlanID:     "plan-1",
		Kind:       "rename",
		Target:     "billing.Invoice.total",
		Outcome:    OutcomeRejected,
		Reason:     "name conflict",
		Timestamp:  base,
	}
	second := Record{
		ProjectKey: "project-a",
		PlanID:     "plan-2",
		Kind:       "extract-method",
		Target:     "billing.Invoice",
		Outcome:    OutcomePlanned,
		FileCount:  1,
		EditCount:  2,
		Timestamp:  base.Add(2 * time.Hour),
	}

	if err := store.SaveRecord(first); err != nil {
		t.Fatalf("save first record: %v", err)
	}
	if err := store.SaveRecord(dup); err != nil {
		t.Fatalf("save duplicate record: %v", err)
	}
	if err := store.SaveRecord(second); err != nil {
		t.Fatalf("save second record: %v", err)
	}

	got, err := store.LoadRecords("project-a", base.Add(1*time.Hour))
	if err != nil {
		t.Fatalf("load records: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record after since filter, got %d", len(got))
	}
	if got[0].Kind != "extract-method" || got[0].EditCount != 2 {
		t.Fatalf("unexpected record after since filter: %+v", got[0])
	}

	// Duplicate plan id should have upserted the outcome.
	all, err := store.LoadRecords("project-a", time.Time{})
	if err != nil {
		t.Fatalf("load all records: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected deduplicated 2 records, got %d", len(all))
	}
	if all[0].Outcome != OutcomeRejected || all[0].Reason != "name conflict" {
		t.Fatalf("expected upserted outcome, got %+v", all[0])
	}
}

func TestStore_SaveRecordValidation(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if err := store.SaveRecord(Record{Kind: "rename", Outcome: OutcomePlanned}); err == nil {
		t.Fatal("expected error for missing plan id")
	}
	if err := store.SaveRecord(Record{PlanID: "p", Kind: "rename", Outcome: "maybe"}); err == nil {
		t.Fatal("expected error for unsupported outcome")
	}
}

func TestStore_OpenRejectsDirectoryPath(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := Open(tmpDir)
	if err == nil {
		t.Fatal("expected open error for directory path")
	}
	if !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStore_OpenCorruptDBPath(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "history.db")
	if err := os.WriteFile(path, []byte("this is not sqlite"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Open(path)
	if err == nil {
		t.Fatal("expected sqlite open error")
	}
	lower := strings.ToLower(err.Error())
	if !strings.Contains(lower, "not a database") && !strings.Contains(lower, "schema") {
		t.Fatalf("expected schema/open error, got: %v", err)
	}
}

func TestEnsureSchema_DetectsNewerVersionDrift(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "history.db")
	store, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	_, err = store.db.Exec(`INSERT OR REPLACE INTO schema_migrations(version) VALUES (?)`, SchemaVersion+1)
	if err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open(driverName, "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	err = EnsureSchema(db)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(err.Error(), "newer than supported") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIsCorruptError(t *testing.T) {
	if !IsCorruptError(errors.New("database disk image is malformed")) {
		t.Fatal("expected malformed sqlite message to be treated as corrupt")
	}
}

func TestStore_LoadRecords_ProjectIsolation(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	if err := store.SaveRecord(Record{ProjectKey: "project-a", PlanID: "a-1", Kind: "rename", Outcome: OutcomePlanned, Timestamp: base}); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRecord(Record{ProjectKey: "project-b", PlanID: "b-1", Kind: "inline-variable", Outcome: OutcomePlanned, Timestamp: base}); err != nil {
		t.Fatal(err)
	}

	aRows, err := store.LoadRecords("project-a", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(aRows) != 1 || aRows[0].Kind != "rename" {
		t.Fatalf("unexpected project-a rows: %+v", aRows)
	}

	bRows, err := store.LoadRecords("project-b", time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bRows) != 1 || bRows[0].Kind != "inline-variable" {
		t.Fatalf("unexpected project-b rows: %+v", bRows)
	}
}
