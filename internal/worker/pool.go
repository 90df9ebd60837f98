package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oriys/pairtester/internal/circuitbreaker"
	"github.com/oriys/pairtester/internal/config"
	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/filelock"
	"github.com/oriys/pairtester/internal/logging"
	"github.com/oriys/pairtester/internal/orchestrator"
)

// Item is one unit of work dequeued by a pool worker: an endpoint pair and
// VLAN, annotated with the sites attributed to each endpoint.
type Item struct {
	URNA, URNB, Vlan string
	Site1, Site2     string
}

// pauseSentinel is the file whose presence suspends new dequeues, per
// spec.md §6.3.
const pauseSentinel = "pause-endtoend-testing"

// Pool drives a bounded-concurrency worker pool consuming a queue of Items
// against the Orchestrator, per spec.md §4.2.
type Pool struct {
	cfg      *config.Config
	client   orchestrator.Client
	pinger   Pinger
	breakers *circuitbreaker.Registry

	mu           sync.Mutex
	successVlans map[string]bool // pairKey(urnA,urnB) -> at least one vlan succeeded this cycle

	remaining int64
	started   int64
}

// NewPool constructs a worker pool sharing one breaker registry across all
// worker goroutines, per call-type.
func NewPool(cfg *config.Config, client orchestrator.Client, pinger Pinger, breakers *circuitbreaker.Registry) *Pool {
	return &Pool{
		cfg:          cfg,
		client:       client,
		pinger:       pinger,
		breakers:     breakers,
		successVlans: map[string]bool{},
	}
}

// pairKey identifies an unordered endpoint pair, independent of vlan.
func pairKey(urnA, urnB string) string {
	if urnA > urnB {
		urnA, urnB = urnB, urnA
	}
	return urnA + "|" + urnB
}

// Start consumes queue with cfg.TotalThreads concurrent workers (or runs
// single-threaded if cfg.NoThreading), blocking until the queue is drained
// or ctx is cancelled. startTime/nextRun are recorded into the runner
// heartbeat file by the caller; Start itself only drives the lifecycle.
func (p *Pool) Start(ctx context.Context, queue []Item) error {
	p.mu.Lock()
	p.remaining = int64(len(queue))
	p.started = p.remaining
	p.successVlans = map[string]bool{}
	p.mu.Unlock()

	n := p.cfg.TotalThreads
	if p.cfg.NoThreading || n < 1 {
		n = 1
	}

	ch := make(chan Item)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("worker-%d", i)
		go func() {
			defer wg.Done()
			for item := range ch {
				p.waitWhilePaused(ctx)
				p.runOne(ctx, workerID, item)
				p.mu.Lock()
				p.remaining--
				p.mu.Unlock()
			}
		}()
	}

	for _, item := range queue {
		select {
		case ch <- item:
		case <-ctx.Done():
			close(ch)
			wg.Wait()
			return ctx.Err()
		}
	}
	close(ch)
	wg.Wait()
	return nil
}

// Remaining reports the number of queued items not yet completed, for the
// runner heartbeat's remainingqueue field.
func (p *Pool) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.remaining)
}

// waitWhilePaused sleeps in 30s increments while the pause sentinel exists
// in workdir, per spec.md §5.
func (p *Pool) waitWhilePaused(ctx context.Context) {
	sentinel := filepath.Join(p.cfg.WorkDir, pauseSentinel)
	for {
		if _, err := os.Stat(sentinel); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Second):
		}
	}
}

// runOne applies the successvlans memoization, then drives runPair.
func (p *Pool) runOne(ctx context.Context, workerID string, item Item) {
	key := pairKey(item.URNA, item.URNB)
	if item.Vlan != "any" {
		p.mu.Lock()
		skip := p.successVlans[key]
		p.mu.Unlock()
		if skip {
			logging.Default().Log(&logging.PhaseLog{
				Timestamp: time.Now().UTC(),
				Pair:      item.URNA + "-" + item.URNB + "-" + item.Vlan,
				Action:    "skip",
				Success:   true,
				FinalState: "SKIPPED_VLAN_ALREADY_SUCCEEDED",
			})
			return
		}
	}

	result := p.runPair(ctx, workerID, item)
	if result != nil && result.FinalState && item.Vlan != "any" {
		p.mu.Lock()
		p.successVlans[key] = true
		p.mu.Unlock()
	}
}

// runPair is the per-triple procedure of spec.md §4.2: artifact-presence
// check, lock creation, phase sequencing, recovery, and artifact write.
func (p *Pool) runPair(ctx context.Context, workerID string, item Item) *Result {
	pair := domain.Pair{Port1: item.URNA, Port2: item.URNB, Vlan: item.Vlan}
	stem := pair.Stem()

	if filelock.AnyExists(p.cfg.WorkDir, stem) {
		return nil
	}
	if _, err := filelock.Acquire(p.cfg.WorkDir, stem, workerID); err != nil {
		return nil
	}

	r := newResult(item.URNA, item.URNB, item.Vlan, item.Site1, item.Site2)
	driver := NewDriver(p.client, p.pinger, p.breakers, p.cfg, workerID)

	cancelled := p.drivePhases(ctx, driver, r)

	if !cancelled && r.anyPhaseFailed() {
		if p.cfg.ArchiveIfFailure {
			driver.Cancel(ctx, r, domain.ActionCancelArch, r.SiUUID, false, true)
		}
	}

	r.FinalState = r.computeFinalState()
	r.Failure = r.failureText()
	r.UpdateDate = time.Now().UTC()

	data, err := json.Marshal(r)
	if err != nil {
		_ = filelock.Release(p.cfg.WorkDir, stem)
		return r
	}
	if err := filelock.Finish(p.cfg.WorkDir, stem, data); err != nil {
		return r
	}
	return r
}

// drivePhases runs create -> optional modifycreate -> optional
// (cancelrep -> reprovision) -> optional modify -> cancel, per spec.md
// §4.2 step 3. Returns true if the lifecycle already reached a terminal
// cancel (so the recovery branch must not run cancelarch again).
func (p *Pool) drivePhases(ctx context.Context, d *Driver, r *Result) bool {
	create := d.Create(ctx, r.URNA, r.URNB, r.Vlan, r)
	if create.FinalState != "OK" {
		return false
	}

	if p.cfg.ModifyCreate {
		mc := d.Modify(ctx, r, domain.ActionModifyCreate, r.SiUUID, modifyDivision)
		if mc.FinalState != "OK" {
			return false
		}
	}

	if p.cfg.Reprovision {
		cr := d.Cancel(ctx, r, domain.ActionCancelRep, r.SiUUID, false, false)
		if cr.FinalState != "OK" {
			return false
		}
		rep := d.Reprovision(ctx, r, r.SiUUID)
		if rep.FinalState != "OK" {
			return false
		}
	}

	if p.cfg.Modify != "" {
		mod := modifyMultiply
		if p.cfg.Modify == string(modifyDivision) {
			mod = modifyDivision
		}
		m := d.Modify(ctx, r, domain.ActionModify, r.SiUUID, mod)
		if m.FinalState != "OK" {
			return false
		}
	}

	final := d.Cancel(ctx, r, domain.ActionCancel, r.SiUUID, true, false)
	return final.FinalState == "OK"
}

// anyPhaseFailed reports whether any entered phase ended in a non-OK
// terminal state.
func (r *Result) anyPhaseFailed() bool {
	for _, phase := range r.Phases {
		switch phase.FinalState {
		case "OK", "OKARCHIVE":
			continue
		default:
			return true
		}
	}
	return false
}

// computeFinalState implements spec.md §3's invariant: finalstate is true
// only if both create and cancel terminated successfully.
func (r *Result) computeFinalState() bool {
	create, ok := r.Phases[domain.ActionCreate]
	if !ok || create.FinalState != "OK" {
		return false
	}
	cancel, ok := r.Phases[domain.ActionCancel]
	if ok && (cancel.FinalState == "OK" || cancel.FinalState == "OKARCHIVE") {
		return true
	}
	archived, ok := r.Phases[domain.ActionCancelArch]
	return ok && archived.FinalState == "OKARCHIVE"
}
