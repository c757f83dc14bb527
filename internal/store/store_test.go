package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iris-network/coordinator/internal/shared"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "iris.db")); err != nil {
		t.Error("iris.db should exist after Open")
	}
}

func TestReputationSnapshotRoundTrips(t *testing.T) {
	db := newTestDB(t)
	if err := db.UpsertReputationSnapshot("n1", 42, time.Now()); err != nil {
		t.Fatalf("UpsertReputationSnapshot() error: %v", err)
	}
	snaps, err := db.LoadReputationSnapshots()
	if err != nil {
		t.Fatalf("LoadReputationSnapshots() error: %v", err)
	}
	if snaps["n1"] != 42 {
		t.Errorf("snapshot for n1 = %d, want 42", snaps["n1"])
	}
}

func TestReputationSnapshotUpsertOverwrites(t *testing.T) {
	db := newTestDB(t)
	db.UpsertReputationSnapshot("n1", 10, time.Now())
	db.UpsertReputationSnapshot("n1", 20, time.Now())

	snaps, _ := db.LoadReputationSnapshots()
	if snaps["n1"] != 20 {
		t.Errorf("snapshot for n1 = %d, want 20 after overwrite", snaps["n1"])
	}
}

func TestAppendReputationEventSucceeds(t *testing.T) {
	db := newTestDB(t)
	err := db.AppendReputationEvent(shared.ReputationEvent{
		NodeID: "n1", Kind: shared.EventTaskCompleted, Points: 10, Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("AppendReputationEvent() error: %v", err)
	}
}

func TestNodeMetadataRoundTrips(t *testing.T) {
	db := newTestDB(t)
	if err := db.UpsertNodeMetadata("n1", "acct-1", "{}"); err != nil {
		t.Fatalf("UpsertNodeMetadata() error: %v", err)
	}
	ref, ok, err := db.AccountRefFor("n1")
	if err != nil {
		t.Fatalf("AccountRefFor() error: %v", err)
	}
	if !ok || ref != "acct-1" {
		t.Errorf("AccountRefFor() = (%q, %v), want (acct-1, true)", ref, ok)
	}
}

func TestAccountRefForUnknownNode(t *testing.T) {
	db := newTestDB(t)
	_, ok, err := db.AccountRefFor("ghost")
	if err != nil {
		t.Fatalf("AccountRefFor() error: %v", err)
	}
	if ok {
		t.Error("unknown node should report ok=false")
	}
}

func TestRecordTaskHistory(t *testing.T) {
	db := newTestDB(t)
	err := db.RecordTaskHistory("t1", "SUBTASKS", "SIMPLE", time.Now(), "COMPLETED", 5*time.Second, `["n1"]`)
	if err != nil {
		t.Fatalf("RecordTaskHistory() error: %v", err)
	}
}
