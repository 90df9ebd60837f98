// Package tester assembles the pair enumerator, worker pool, archiver and
// recorder into the single Tester process described in spec.md §5: one
// process hosting N parallel worker contexts plus a recorder cadence,
// sharing only the work directory and a thread-safe queue. Unlike the
// teacher's cmd/ daemons, this package exposes no CLI: spec.md §1 names
// CLI entry points as an explicit Non-goal, so Run is the library-level
// entry point a deployment wrapper would call.
package tester

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/pairtester/internal/archiver"
	"github.com/oriys/pairtester/internal/circuitbreaker"
	"github.com/oriys/pairtester/internal/config"
	"github.com/oriys/pairtester/internal/edgeagent"
	"github.com/oriys/pairtester/internal/enumerator"
	"github.com/oriys/pairtester/internal/logging"
	"github.com/oriys/pairtester/internal/metrics"
	"github.com/oriys/pairtester/internal/orchestrator"
	"github.com/oriys/pairtester/internal/pingprobe"
	"github.com/oriys/pairtester/internal/recorder"
	"github.com/oriys/pairtester/internal/scheduler"
	"github.com/oriys/pairtester/internal/worker"
	"golang.org/x/sync/errgroup"
)

const (
	recorderScanCadence = "@every 60s"
	heartbeatInterval   = 30 * time.Second
	pauseCheckInterval  = 30 * time.Second
)

// Store is the persistence seam the Tester hands to the archiver and
// recorder it assembles. A single *store.Store satisfies both halves.
type Store interface {
	archiver.FileLocUpdater
	recorder.Store
}

// Tester drives one end-to-end pair-test process: an enumeration/worker
// round on cfg.RunInterval, and a recorder directory scan on a fixed 60s
// cadence, per spec.md §5.
type Tester struct {
	cfg     *config.Config
	fetcher enumerator.DomainPortFetcher

	pool     *worker.Pool
	archiver *archiver.Archiver
	recorder *recorder.Recorder
	cadence  *scheduler.Cadence

	mu        sync.Mutex
	startTime time.Time
}

// New assembles a Tester. client and edgeClient are the opaque Orchestrator
// and edge-agent collaborators (spec.md §6.1/§6.2); st backs both the
// archiver's file-location updates and the recorder's row writes.
// refresher supplies the recorder's best-effort periodic config reload
// (spec.md §5); pass nil to disable it.
func New(cfg *config.Config, client orchestrator.Client, edgeClient edgeagent.Client, st Store, refresher recorder.ConfigRefresher) *Tester {
	breakers := circuitbreaker.NewRegistry()
	pinger := pingprobe.New(edgeClient, cfg)
	pool := worker.NewPool(cfg, client, pinger, breakers)
	arch := archiver.New(cfg.WorkDir, client, st)
	rec := recorder.New(cfg.WorkDir, st, arch, cfg, refresher)

	var fetcher enumerator.DomainPortFetcher
	if cfg.EntriesDynamic {
		fetcher = enumerator.NewOrchestratorPortFetcher(client)
	}

	return &Tester{
		cfg:      cfg,
		fetcher:  fetcher,
		pool:     pool,
		archiver: arch,
		recorder: rec,
		cadence:  scheduler.New(),
	}
}

// Run starts the recorder cadence and drives the outer round loop until
// ctx is cancelled. A round runs immediately, then every cfg.RunInterval,
// polling every cfg.SleepBetweenRuns in between (original_source's
// "timer passed" check), matching tester.py's top-level `while True`.
func (t *Tester) Run(ctx context.Context) error {
	t.mu.Lock()
	t.startTime = time.Now().UTC()
	t.mu.Unlock()

	if err := t.cadence.AddEvery("recorder-scan", recorderScanCadence, func() {
		if err := t.recorder.Scan(context.Background()); err != nil {
			logging.Op().Error("tester: recorder scan failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("tester: schedule recorder scan: %w", err)
	}
	t.cadence.Start()
	defer t.cadence.Stop()

	var nextRun time.Time
	for {
		now := time.Now().UTC()
		if !nextRun.After(now) {
			if err := t.runRound(ctx, nextRun); err != nil {
				logging.Op().Error("tester: round failed", "error", err)
			}
			nextRun = time.Now().UTC().Add(t.cfg.RunInterval)
		}

		sleep := t.cfg.SleepBetweenRuns
		if sleep <= 0 {
			sleep = time.Minute
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// runRound waits out any pause sentinel, resolves this round's queue, and
// drives it through the worker pool, writing the heartbeat throughout.
func (t *Tester) runRound(ctx context.Context, nextRun time.Time) error {
	if err := t.waitWhilePaused(ctx, nextRun); err != nil {
		return err
	}

	triples, sites, err := t.resolveRound(ctx)
	if err != nil {
		return fmt.Errorf("tester: resolve round: %w", err)
	}

	queue := make([]worker.Item, 0, len(triples))
	for _, tr := range triples {
		queue = append(queue, worker.Item{
			URNA: tr.URNA, URNB: tr.URNB, Vlan: tr.Vlan,
			Site1: siteOf(sites, tr.URNA), Site2: siteOf(sites, tr.URNB),
		})
	}
	metrics.Global().SetQueueDepth(len(queue))
	metrics.Global().SetWorkers(len(queue), t.workerCount())

	logging.Op().Info("tester: starting round", "pairs", len(queue))
	t.writeHeartbeat(true, len(queue), len(queue), nextRun)

	done := make(chan struct{})
	go t.heartbeatLoop(ctx, done, len(queue), nextRun)

	err = t.pool.Start(ctx, queue)
	close(done)

	t.writeHeartbeat(false, 0, 0, nextRun)
	if err != nil {
		return fmt.Errorf("tester: run pool: %w", err)
	}
	logging.Op().Info("tester: round finished", "pairs", len(queue))
	return nil
}

// resolveRound fans out the triple enumeration and the URN->site
// resolution concurrently: both walk the same resolved entry set and,
// for dynamic entries, both may call out to the Orchestrator, so there is
// no reason to serialise them.
func (t *Tester) resolveRound(ctx context.Context) ([]enumerator.Triple, map[string]string, error) {
	g, gctx := errgroup.WithContext(ctx)

	var triples []enumerator.Triple
	var sites map[string]string

	g.Go(func() error {
		var err error
		triples, err = enumerator.Enumerate(gctx, t.cfg, t.fetcher)
		return err
	})
	g.Go(func() error {
		var err error
		sites, err = enumerator.EntrySites(gctx, t.cfg, t.fetcher)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return triples, sites, nil
}

func siteOf(sites map[string]string, urn string) string {
	if site, ok := sites[urn]; ok && site != "" {
		return site
	}
	return "UNKNOWN"
}

func (t *Tester) workerCount() int {
	n := t.cfg.TotalThreads
	if t.cfg.NoThreading || n < 1 {
		n = 1
	}
	return n
}

// waitWhilePaused mirrors tester.py::main's pre-round pause loop: while the
// pause sentinel exists, the round never starts and the heartbeat reports
// alive=false every 30s.
func (t *Tester) waitWhilePaused(ctx context.Context, nextRun time.Time) error {
	for pauseFileExists(t.cfg.WorkDir) {
		t.writeHeartbeat(false, 0, 0, nextRun)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pauseCheckInterval):
		}
	}
	return nil
}

// heartbeatLoop refreshes the heartbeat file every 30s while a round's
// pool is draining, reporting the live remaining-queue count.
func (t *Tester) heartbeatLoop(ctx context.Context, done <-chan struct{}, totalQueue int, nextRun time.Time) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.writeHeartbeat(true, totalQueue, t.pool.Remaining(), nextRun)
		}
	}
}
