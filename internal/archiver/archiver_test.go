package archiver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/orchestrator"
	"github.com/oriys/pairtester/internal/worker"
)

type fakeStore struct {
	updates map[string]string
}

func newFakeStore() *fakeStore { return &fakeStore{updates: map[string]string{}} }

func (f *fakeStore) UpdateRequestFileLoc(ctx context.Context, uuid, newFileLoc string) error {
	f.updates[uuid] = newFileLoc
	return nil
}

func writeArtifact(t *testing.T, dir, stem string, result worker.Result) {
	t.Helper()
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	resultPath, _, _ := pathsFor(dir, stem)
	if err := os.WriteFile(resultPath, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func pathsFor(dir, stem string) (result, lock, dbdone string) {
	base := filepath.Join(dir, stem)
	return base + ".json", base + ".json.lock", base + ".json.dbdone"
}

func TestScanArchivesFinalStateSuccess(t *testing.T) {
	dir := t.TempDir()
	stem := "hostA-hostB-100"
	writeArtifact(t, dir, stem, worker.Result{
		SiUUID: "si-1", FinalState: true, InsertDate: time.Now().UTC(),
	})

	client := orchestrator.NewFake()
	store := newFakeStore()
	a := New(dir, client, store)

	outcomes, err := a.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Disposition != DispositionArchive {
		t.Fatalf("outcomes = %+v, want one DispositionArchive", outcomes)
	}
	if _, err := os.Stat(outcomes[0].NewPath); err != nil {
		t.Fatalf("expected archived file at %s: %v", outcomes[0].NewPath, err)
	}
	if store.updates["si-1"] != outcomes[0].NewPath {
		t.Fatalf("store.updates[si-1] = %q, want %q", store.updates["si-1"], outcomes[0].NewPath)
	}
}

func TestScanArchivesAndDeletesOnPathfindIssue(t *testing.T) {
	dir := t.TempDir()
	stem := "hostA-hostB-100"
	writeArtifact(t, dir, stem, worker.Result{
		SiUUID: "si-2", PathfindIssue: true, InsertDate: time.Now().UTC(),
	})

	client := orchestrator.NewFake()
	client.StatusSequence["si-2"] = []orchestrator.Status{{State: "CREATE - FAILED"}}
	store := newFakeStore()
	a := New(dir, client, store)

	outcomes, err := a.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Disposition != DispositionArchive || !outcomes[0].Deleted {
		t.Fatalf("outcomes = %+v, want one archived+deleted", outcomes)
	}
	if len(client.Deleted) != 1 || client.Deleted[0] != "si-2" {
		t.Fatalf("client.Deleted = %v, want [si-2]", client.Deleted)
	}
}

func TestScanArchivesWithoutDeleteWhenInstanceAlreadyGone(t *testing.T) {
	dir := t.TempDir()
	stem := "hostA-hostB-100"
	writeArtifact(t, dir, stem, worker.Result{
		SiUUID: "si-3", PathfindIssue: true, InsertDate: time.Now().UTC(),
	})

	client := orchestrator.NewFake()
	client.StatusErr = map[string]error{"si-3": orchestrator.Tag(errTest, orchestrator.NotFound)}
	a := New(dir, client, newFakeStore())

	outcomes, err := a.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Disposition != DispositionArchive || outcomes[0].Deleted {
		t.Fatalf("outcomes = %+v, want archived without delete", outcomes)
	}
	if len(client.Deleted) != 0 {
		t.Fatalf("client.Deleted = %v, want none", client.Deleted)
	}
}

func TestScanArchivesNotFoundInstance(t *testing.T) {
	dir := t.TempDir()
	stem := "hostA-hostB-100"
	writeArtifact(t, dir, stem, worker.Result{
		SiUUID: "si-4", InsertDate: time.Now().UTC(),
	})

	client := orchestrator.NewFake()
	client.StatusErr = map[string]error{"si-4": orchestrator.Tag(errTest, orchestrator.NotFound)}
	a := New(dir, client, newFakeStore())

	outcomes, err := a.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Disposition != DispositionArchive {
		t.Fatalf("outcomes = %+v, want archived", outcomes)
	}
}

func TestScanArchivesStaleCancelledAndArchivedUpstream(t *testing.T) {
	dir := t.TempDir()
	stem := "hostA-hostB-100"
	writeArtifact(t, dir, stem, worker.Result{
		SiUUID: "si-5", InsertDate: time.Now().UTC().Add(-4 * 24 * time.Hour),
	})

	client := orchestrator.NewFake()
	client.StatusSequence["si-5"] = []orchestrator.Status{{
		SuperState: "CANCEL", SubState: "READY", ConfigState: "STABLE", Archived: true, Locked: false,
	}}
	a := New(dir, client, newFakeStore())

	outcomes, err := a.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Disposition != DispositionArchive || !outcomes[0].Deleted {
		t.Fatalf("outcomes = %+v, want archived+deleted", outcomes)
	}
}

func TestScanArchivesStaleOKArchiveCancel(t *testing.T) {
	dir := t.TempDir()
	stem := "hostA-hostB-100"
	writeArtifact(t, dir, stem, worker.Result{
		SiUUID:     "si-6",
		InsertDate: time.Now().UTC().Add(-4 * 24 * time.Hour),
		Phases: map[domain.Action]*worker.PhaseResult{
			domain.ActionCancel: {Action: domain.ActionCancel, FinalState: "OKARCHIVE"},
		},
	})

	client := orchestrator.NewFake()
	client.StatusSequence["si-6"] = []orchestrator.Status{{State: "CANCEL - READY", ConfigState: "STABLE"}}
	a := New(dir, client, newFakeStore())

	outcomes, err := a.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Disposition != DispositionArchive {
		t.Fatalf("outcomes = %+v, want archived", outcomes)
	}
}

func TestScanMarksDoneOtherwise(t *testing.T) {
	dir := t.TempDir()
	stem := "hostA-hostB-100"
	writeArtifact(t, dir, stem, worker.Result{
		SiUUID: "si-7", InsertDate: time.Now().UTC(),
	})

	client := orchestrator.NewFake()
	client.StatusSequence["si-7"] = []orchestrator.Status{{State: "CREATE - PENDING", ConfigState: "UNSTABLE"}}
	a := New(dir, client, newFakeStore())

	outcomes, err := a.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Disposition != DispositionDBDone {
		t.Fatalf("outcomes = %+v, want DispositionDBDone", outcomes)
	}
	want, _, _ := pathsFor(dir, stem)
	want = want + ".dbdone"
	if outcomes[0].NewPath != want {
		t.Fatalf("NewPath = %q, want %q", outcomes[0].NewPath, want)
	}
}

func TestScanReconsidersDBDoneAndPromotesToArchive(t *testing.T) {
	dir := t.TempDir()
	stem := "hostA-hostB-100"
	data, err := json.Marshal(worker.Result{
		SiUUID: "si-8", InsertDate: time.Now().UTC().Add(-4 * 24 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _, dbdonePath := pathsFor(dir, stem)
	if err := os.WriteFile(dbdonePath, data, 0644); err != nil {
		t.Fatal(err)
	}

	client := orchestrator.NewFake()
	client.StatusSequence["si-8"] = []orchestrator.Status{{
		SuperState: "CANCEL", SubState: "READY", ConfigState: "STABLE", Archived: true, Locked: false,
	}}
	store := newFakeStore()
	a := New(dir, client, store)

	outcomes, err := a.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Disposition != DispositionArchive || !outcomes[0].Deleted {
		t.Fatalf("outcomes = %+v, want one archived+deleted", outcomes)
	}
	if _, err := os.Stat(outcomes[0].NewPath); err != nil {
		t.Fatalf("expected archived file at %s: %v", outcomes[0].NewPath, err)
	}
	if _, err := os.Stat(dbdonePath); !os.IsNotExist(err) {
		t.Fatalf("expected .json.dbdone to be gone after promotion, stat err = %v", err)
	}
	if store.updates["si-8"] != outcomes[0].NewPath {
		t.Fatalf("store.updates[si-8] = %q, want %q", store.updates["si-8"], outcomes[0].NewPath)
	}
}

func TestScanLeavesDBDoneAloneWhenStillNotArchivable(t *testing.T) {
	dir := t.TempDir()
	stem := "hostA-hostB-100"
	data, err := json.Marshal(worker.Result{
		SiUUID: "si-9", InsertDate: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, _, dbdonePath := pathsFor(dir, stem)
	if err := os.WriteFile(dbdonePath, data, 0644); err != nil {
		t.Fatal(err)
	}

	client := orchestrator.NewFake()
	client.StatusSequence["si-9"] = []orchestrator.Status{{State: "CREATE - PENDING", ConfigState: "UNSTABLE"}}
	a := New(dir, client, newFakeStore())

	outcomes, err := a.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("outcomes = %+v, want none (still not archivable)", outcomes)
	}
	if _, err := os.Stat(dbdonePath); err != nil {
		t.Fatalf("expected .json.dbdone to remain untouched: %v", err)
	}
}

var errTest = errTestError{}

type errTestError struct{}

func (errTestError) Error() string { return "instance not found: NOT_FOUND" }
