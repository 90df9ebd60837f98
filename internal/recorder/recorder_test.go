package recorder

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oriys/pairtester/internal/archiver"
	"github.com/oriys/pairtester/internal/config"
	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/orchestrator"
	"github.com/oriys/pairtester/internal/worker"
)

type fakeStore struct {
	requests       map[string]domain.Request
	actions        []domain.ActionRow
	verifications  []domain.Verification
	requestStates  []domain.RequestState
	pingResults    []domain.PingResult
	runnerInfo     []domain.RunnerInfo
	locked         map[string]domain.Request
	fileLocUpdates map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests:       map[string]domain.Request{},
		locked:         map[string]domain.Request{},
		fileLocUpdates: map[string]string{},
	}
}

func (f *fakeStore) WriteRequest(ctx context.Context, req domain.Request) error {
	f.requests[req.UUID] = req
	return nil
}
func (f *fakeStore) WriteAction(ctx context.Context, row domain.ActionRow) error {
	f.actions = append(f.actions, row)
	return nil
}
func (f *fakeStore) WriteVerification(ctx context.Context, row domain.Verification) error {
	f.verifications = append(f.verifications, row)
	return nil
}
func (f *fakeStore) WriteRequestState(ctx context.Context, row domain.RequestState) error {
	f.requestStates = append(f.requestStates, row)
	return nil
}
func (f *fakeStore) WritePingResult(ctx context.Context, row domain.PingResult) error {
	f.pingResults = append(f.pingResults, row)
	return nil
}
func (f *fakeStore) WriteRunnerInfo(ctx context.Context, info domain.RunnerInfo) error {
	f.runnerInfo = append(f.runnerInfo, info)
	return nil
}
func (f *fakeStore) WriteLockedRequest(ctx context.Context, req domain.Request) error {
	f.locked[req.UUID] = req
	return nil
}
func (f *fakeStore) ListLockedRequests(ctx context.Context) ([]string, error) {
	var out []string
	for uuid := range f.locked {
		out = append(out, uuid)
	}
	return out, nil
}
func (f *fakeStore) DeleteLockedRequest(ctx context.Context, uuid string) error {
	delete(f.locked, uuid)
	return nil
}
func (f *fakeStore) UpdateRequestFileLoc(ctx context.Context, uuid, newFileLoc string) error {
	f.fileLocUpdates[uuid] = newFileLoc
	return nil
}

func writeArtifact(t *testing.T, dir, stem string, result worker.Result) {
	t.Helper()
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, stem+".json"), data, 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestRecorder(dir string, store *fakeStore, client orchestrator.Client, cfg *config.Config) *Recorder {
	if cfg == nil {
		cfg = &config.Config{Mappings: map[string]string{}}
	}
	arch := archiver.New(dir, client, store)
	return New(dir, store, arch, cfg, nil)
}

func TestScanRecordsFreshArtifactAndLeavesItLocked(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	writeArtifact(t, dir, "urn-a-urn-b-100", worker.Result{
		SiUUID: "si-1", URNA: "urn-a", URNB: "urn-b", Vlan: "100",
		Site1: "siteA", Site2: "siteB", InsertDate: now, UpdateDate: now,
		Phases: map[domain.Action]*worker.PhaseResult{
			domain.ActionCreate: {
				Action: domain.ActionCreate,
				Timings: []worker.Timing{
					{State: "CREATE - PENDING", ConfigState: domain.ConfigStatePending, EnterTime: now},
				},
			},
		},
	})

	client := orchestrator.NewFake()
	client.StatusSequence["si-1"] = []orchestrator.Status{{State: "CREATE - PENDING", ConfigState: "PENDING"}}
	store := newFakeStore()
	r := newTestRecorder(dir, store, client, nil)

	if err := r.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, ok := store.requests["si-1"]; !ok {
		t.Fatal("expected request row for si-1")
	}
	if len(store.actions) != 1 {
		t.Fatalf("len(store.actions) = %d, want 1", len(store.actions))
	}
	if _, ok := store.locked["si-1"]; !ok {
		t.Fatal("expected si-1 to be tracked as a locked request")
	}
	if _, err := os.Stat(filepath.Join(dir, "urn-a-urn-b-100.json.dbdone")); err != nil {
		t.Fatalf("expected artifact renamed to .json.dbdone: %v", err)
	}
}

func TestScanFinalStateArchivesAndUnlocks(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	writeArtifact(t, dir, "urn-a-urn-b-100", worker.Result{
		SiUUID: "si-2", URNA: "urn-a", URNB: "urn-b", Vlan: "100",
		Site1: "siteA", Site2: "siteB", FinalState: true, InsertDate: now, UpdateDate: now,
	})

	client := orchestrator.NewFake()
	store := newFakeStore()
	store.locked["si-2"] = domain.Request{UUID: "si-2"} // previously tracked, should be cleared

	r := newTestRecorder(dir, store, client, nil)
	if err := r.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, ok := store.requests["si-2"]; !ok {
		t.Fatal("expected request row for si-2")
	}
	if _, ok := store.locked["si-2"]; ok {
		t.Fatal("si-2 should no longer be locked once archived")
	}
}

func TestScanSkipsInFlightLockedArtifact(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "urn-a-urn-b-100.json.lock"), []byte("worker-1 now\n"), 0644); err != nil {
		t.Fatal(err)
	}

	store := newFakeStore()
	r := newTestRecorder(dir, store, orchestrator.NewFake(), nil)
	if err := r.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.requests) != 0 {
		t.Fatalf("expected no requests recorded while lock file present, got %d", len(store.requests))
	}
}

func TestScanSkipsHeartbeatWhenFileAbsent(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	r := newTestRecorder(dir, store, orchestrator.NewFake(), nil)
	if err := r.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.runnerInfo) != 0 {
		t.Fatalf("expected no runnerinfo writes without a heartbeat file, got %d", len(store.runnerInfo))
	}
}

func TestScanWritesHeartbeatWithLockedCount(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	writeArtifact(t, dir, "urn-a-urn-b-100", worker.Result{
		SiUUID: "si-3", URNA: "urn-a", URNB: "urn-b", Vlan: "100",
		Site1: "siteA", Site2: "siteB", InsertDate: now, UpdateDate: now,
	})
	client := orchestrator.NewFake()
	client.StatusSequence["si-3"] = []orchestrator.Status{{State: "CREATE - PENDING", ConfigState: "PENDING"}}

	hb := []byte(`{"alive":true,"totalworkers":4,"totalqueue":10,"remainingqueue":2,"starttime":1700000000,"nextrun":1700003600}`)
	if err := os.WriteFile(filepath.Join(dir, heartbeatFileName), hb, 0644); err != nil {
		t.Fatal(err)
	}

	store := newFakeStore()
	r := newTestRecorder(dir, store, client, nil)
	if err := r.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.runnerInfo) != 1 {
		t.Fatalf("len(store.runnerInfo) = %d, want 1", len(store.runnerInfo))
	}
	info := store.runnerInfo[0]
	if info.LockedRequests != 1 || info.TotalWorkers != 4 {
		t.Fatalf("info = %+v", info)
	}
}

type fakeRefresher struct {
	calls int
	cfg   *config.Config
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) (*config.Config, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.cfg, nil
}

func TestScanForceRefreshesOnUnknownSite(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	writeArtifact(t, dir, "urn-a-urn-b-100", worker.Result{
		SiUUID: "si-4", URNA: "urn-a", URNB: "urn-b", Vlan: "100",
		Site1: "UNKNOWN", Site2: "siteB", InsertDate: now, UpdateDate: now,
	})
	client := orchestrator.NewFake()
	client.StatusSequence["si-4"] = []orchestrator.Status{{State: "CREATE - PENDING", ConfigState: "PENDING"}}

	store := newFakeStore()
	cfg := &config.Config{Mappings: map[string]string{}}
	refresher := &fakeRefresher{cfg: &config.Config{Mappings: map[string]string{"urn": "site"}}}
	arch := archiver.New(dir, client, store)
	r := New(dir, store, arch, cfg, refresher)

	if err := r.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if refresher.calls != 1 {
		t.Fatalf("refresher.calls = %d, want 1 (first scan always refreshes)", refresher.calls)
	}

	if err := r.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if refresher.calls != 1 {
		t.Fatalf("refresher.calls = %d, want still 1 (neither 24h nor 1h elapsed)", refresher.calls)
	}
}

func TestScanConfigRefreshFailureKeepsPreviousConfig(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	cfg := &config.Config{Mappings: map[string]string{"keep": "me"}}
	refresher := &fakeRefresher{err: context.DeadlineExceeded}
	arch := archiver.New(dir, orchestrator.NewFake(), store)
	r := New(dir, store, arch, cfg, refresher)

	if err := r.Scan(context.Background()); err != nil {
		t.Fatal(err)
	}
	if refresher.calls != 1 {
		t.Fatalf("refresher.calls = %d, want 1", refresher.calls)
	}
	if r.mappings()["keep"] != "me" {
		t.Fatal("expected previous config to survive a failed refresh")
	}
}
