package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oriys/pairtester/internal/circuitbreaker"
	"github.com/oriys/pairtester/internal/orchestrator"
)

func TestPoolRunPairWritesArtifactAndClearsLock(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.WorkDir = dir

	client := orchestrator.NewFake()
	client.NextID = "si-pool-1"
	client.StatusSequence["si-pool-1"] = []orchestrator.Status{
		{State: "CREATE - READY", ConfigState: "STABLE"}, // create poll terminal
		{State: "CREATE - READY", ConfigState: "STABLE"}, // cancel precheck
		{State: "CANCEL - READY", ConfigState: "STABLE"}, // cancel poll terminal
	}
	client.Manifest = []byte(`{"ok":true}`)

	pool := NewPool(cfg, client, nil, circuitbreaker.NewRegistry())
	item := Item{URNA: "urn:ogf:network:a", URNB: "urn:ogf:network:b", Vlan: "100", Site1: "siteA", Site2: "siteB"}

	if err := pool.Start(context.Background(), []Item{item}); err != nil {
		t.Fatalf("pool.Start returned error: %v", err)
	}

	stem := pairStemFor(item)
	resultPath, lockPath, _ := pathsFor(dir, stem)
	if _, err := os.Stat(resultPath); err != nil {
		t.Fatalf("expected result artifact at %s: %v", resultPath, err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatalf("expected lock file removed, stat err = %v", err)
	}
}

func TestPoolSkipsWhenArtifactAlreadyExists(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.WorkDir = dir

	item := Item{URNA: "urn:ogf:network:a", URNB: "urn:ogf:network:b", Vlan: "200"}
	stem := pairStemFor(item)
	resultPath, _, _ := pathsFor(dir, stem)
	if err := os.WriteFile(resultPath, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	client := orchestrator.NewFake()
	pool := NewPool(cfg, client, nil, circuitbreaker.NewRegistry())
	if err := pool.Start(context.Background(), []Item{item}); err != nil {
		t.Fatalf("pool.Start returned error: %v", err)
	}
	if len(client.Deleted) != 0 {
		t.Fatalf("expected no orchestrator calls for an already-claimed pair, got deletes=%v", client.Deleted)
	}
}

func TestPoolSuccessVlanMemoizationSkipsSubsequentVlan(t *testing.T) {
	p := NewPool(testConfig(), orchestrator.NewFake(), nil, circuitbreaker.NewRegistry())
	p.successVlans[pairKey("urn:a", "urn:b")] = true

	dir := t.TempDir()
	p.cfg.WorkDir = dir
	item := Item{URNA: "urn:a", URNB: "urn:b", Vlan: "42"}

	p.runOne(context.Background(), "w1", item)

	stem := pairStemFor(item)
	resultPath, lockPath, _ := pathsFor(dir, stem)
	if _, err := os.Stat(resultPath); !os.IsNotExist(err) {
		t.Fatal("expected memoized vlan to be skipped, but an artifact was written")
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatal("expected memoized vlan to be skipped, but a lock was created")
	}
}

func pairStemFor(item Item) string {
	a, b := item.URNA, item.URNB
	if a > b {
		a, b = b, a
	}
	return a + "-" + b + "-" + item.Vlan
}

func pathsFor(dir, stem string) (result, lock, dbdone string) {
	base := filepath.Join(dir, stem)
	return base + ".json", base + ".json.lock", base + ".json.dbdone"
}
