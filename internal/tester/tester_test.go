package tester

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/oriys/pairtester/internal/config"
	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/edgeagent"
	"github.com/oriys/pairtester/internal/orchestrator"
)

type fakeStore struct {
	mu      sync.Mutex
	locked  map[string]domain.Request
	updates map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		locked:  map[string]domain.Request{},
		updates: map[string]string{},
	}
}

func (f *fakeStore) WriteRequest(ctx context.Context, req domain.Request) error { return nil }
func (f *fakeStore) WriteAction(ctx context.Context, row domain.ActionRow) error { return nil }
func (f *fakeStore) WriteVerification(ctx context.Context, row domain.Verification) error {
	return nil
}
func (f *fakeStore) WriteRequestState(ctx context.Context, row domain.RequestState) error {
	return nil
}
func (f *fakeStore) WritePingResult(ctx context.Context, row domain.PingResult) error { return nil }
func (f *fakeStore) WriteRunnerInfo(ctx context.Context, info domain.RunnerInfo) error {
	return nil
}
func (f *fakeStore) WriteLockedRequest(ctx context.Context, req domain.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked[req.UUID] = req
	return nil
}
func (f *fakeStore) ListLockedRequests(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for uuid := range f.locked {
		out = append(out, uuid)
	}
	return out, nil
}
func (f *fakeStore) DeleteLockedRequest(ctx context.Context, uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locked, uuid)
	return nil
}
func (f *fakeStore) UpdateRequestFileLoc(ctx context.Context, uuid, newFileLoc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[uuid] = newFileLoc
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.WorkDir = t.TempDir()
	cfg.Entries = []config.EntryConfig{
		{URN: "urn:ogf:network:a", Site: "siteA"},
		{URN: "urn:ogf:network:b", Site: "siteB"},
	}
	cfg.MaxPairs = 10
	cfg.IgnorePing = true
	cfg.Timeouts.Create = 200 * time.Millisecond
	cfg.Timeouts.Cancel = 200 * time.Millisecond
	cfg.HTTPRetries.Retries = 0
	cfg.HTTPRetries.Timeout = time.Millisecond
	cfg.TotalThreads = 2
	return cfg
}

func TestNewAssemblesTester(t *testing.T) {
	cfg := testConfig(t)
	client := orchestrator.NewFake()
	edgeClient := edgeagent.NewFake()
	st := newFakeStore()

	tst := New(cfg, client, edgeClient, st, nil)
	if tst == nil {
		t.Fatal("expected non-nil Tester")
	}
	if tst.workerCount() != 2 {
		t.Fatalf("expected workerCount 2, got %d", tst.workerCount())
	}
}

func TestResolveRoundFansOutEnumerateAndSites(t *testing.T) {
	cfg := testConfig(t)
	client := orchestrator.NewFake()
	edgeClient := edgeagent.NewFake()
	st := newFakeStore()

	tst := New(cfg, client, edgeClient, st, nil)
	triples, sites, err := tst.resolveRound(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple from 2 entries, got %d", len(triples))
	}
	if sites["urn:ogf:network:a"] != "siteA" || sites["urn:ogf:network:b"] != "siteB" {
		t.Fatalf("sites = %+v", sites)
	}
}

func TestRunRoundDrainsQueueAndWritesHeartbeat(t *testing.T) {
	cfg := testConfig(t)
	client := orchestrator.NewFake()
	client.NextID = "si-round-1"
	client.StatusSequence["si-round-1"] = []orchestrator.Status{
		{State: "CREATE - READY", ConfigState: "STABLE"},
	}
	client.Manifest = []byte(`{"ok":true}`)
	edgeClient := edgeagent.NewFake()
	st := newFakeStore()

	tst := New(cfg, client, edgeClient, st, nil)
	tst.startTime = time.Now().UTC()

	if err := tst.runRound(context.Background(), time.Time{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	heartbeatPath := filepath.Join(cfg.WorkDir, heartbeatFileName)
	data, err := os.ReadFile(heartbeatPath)
	if err != nil {
		t.Fatalf("expected heartbeat file: %v", err)
	}
	var doc heartbeatDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal heartbeat: %v", err)
	}
	if doc.Alive {
		t.Fatal("expected final heartbeat to report alive=false after round completes")
	}
	if doc.TotalWorkers != 2 {
		t.Fatalf("expected totalworkers 2, got %d", doc.TotalWorkers)
	}

	entries, err := os.ReadDir(cfg.WorkDir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a finished artifact in %s, entries = %+v", cfg.WorkDir, entries)
	}
}

func TestRunRoundBlocksWhilePaused(t *testing.T) {
	cfg := testConfig(t)
	client := orchestrator.NewFake()
	edgeClient := edgeagent.NewFake()
	st := newFakeStore()

	tst := New(cfg, client, edgeClient, st, nil)
	tst.startTime = time.Now().UTC()

	sentinel := filepath.Join(cfg.WorkDir, pauseSentinel)
	if err := os.WriteFile(sentinel, nil, 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tst.runRound(ctx, time.Time{})
	if err == nil {
		t.Fatal("expected context deadline error while paused")
	}

	heartbeatPath := filepath.Join(cfg.WorkDir, heartbeatFileName)
	data, err2 := os.ReadFile(heartbeatPath)
	if err2 != nil {
		t.Fatalf("expected heartbeat file written before pause wait: %v", err2)
	}
	var doc heartbeatDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Alive {
		t.Fatal("expected alive=false while paused")
	}
}

func TestRunStopsOnContextCancellation(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunInterval = time.Millisecond
	cfg.SleepBetweenRuns = 5 * time.Millisecond
	client := orchestrator.NewFake()
	client.NextID = "si-run-1"
	client.StatusSequence["si-run-1"] = []orchestrator.Status{
		{State: "CREATE - READY", ConfigState: "STABLE"},
	}
	client.Manifest = []byte(`{"ok":true}`)
	edgeClient := edgeagent.NewFake()
	st := newFakeStore()

	tst := New(cfg, client, edgeClient, st, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	if err := tst.Run(ctx); err == nil {
		t.Fatal("expected Run to return an error when ctx is cancelled")
	}
}
