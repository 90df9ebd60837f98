package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oriys/pairtester/internal/archiver"
	"github.com/oriys/pairtester/internal/config"
	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/filelock"
	"github.com/oriys/pairtester/internal/logging"
	"github.com/oriys/pairtester/internal/metrics"
	"github.com/oriys/pairtester/internal/worker"
)

const (
	configRefreshEvery        = 24 * time.Hour
	configRefreshUnknownEvery = time.Hour
	heartbeatFileName         = "testerinfo.run"
)

// ConfigRefresher reloads configuration from wherever it's sourced from
// (file or remote URL), best-effort: a failed refresh is logged and the
// previously loaded config keeps serving, per spec.md §5.
type ConfigRefresher interface {
	Refresh(ctx context.Context) (*config.Config, error)
}

// Recorder parses finished pair artifacts under a work directory, writes
// their rows, runs the archiver over the same directory, and reconciles
// the locked-request table and process heartbeat. It composes an
// archiver.Archiver rather than inheriting its decision table, per
// spec.md §9's redesign note.
type Recorder struct {
	workDir  string
	store    Store
	archiver *archiver.Archiver
	refresher ConfigRefresher

	mu          sync.Mutex
	cfg         *config.Config
	lastRefresh time.Time
	unknownSeenAt time.Time
}

// New constructs a Recorder. refresher may be nil, in which case config
// refresh is skipped entirely.
func New(workDir string, store Store, arch *archiver.Archiver, cfg *config.Config, refresher ConfigRefresher) *Recorder {
	return &Recorder{workDir: workDir, store: store, archiver: arch, cfg: cfg, refresher: refresher}
}

// Scan performs one full pass: parse and record every fresh artifact,
// dispose of artifacts via the archiver, reconcile the locked-request
// table, and refresh the heartbeat row.
func (r *Recorder) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(r.workDir)
	if err != nil {
		return fmt.Errorf("recorder: read workdir %s: %w", r.workDir, err)
	}

	var candidates []domain.Request
	sawUnknown := false

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stem, suffix, ok := filelock.StemFromFilename(entry.Name())
		if !ok {
			continue
		}
		if suffix == filelock.SuffixLock {
			continue // worker still has this pair in flight
		}

		req, unknown, recordErr := r.recordOne(ctx, stem, suffix)
		if recordErr != nil {
			logging.Op().Error("recorder: record failed", "stem", stem, "error", recordErr)
			continue
		}
		if unknown {
			sawUnknown = true
		}
		candidates = append(candidates, req)
	}

	r.maybeRefreshConfig(ctx, sawUnknown)

	if r.archiver != nil {
		if _, err := r.archiver.Scan(ctx); err != nil {
			logging.Op().Error("recorder: archiver scan failed", "error", err)
		}
	}

	// A request is "locked" (non-terminal, not yet archivable) exactly
	// when its artifact sits at ".json.dbdone" after the archiver has had
	// its turn - whether it was already there, or the archiver just wrote
	// it this round.
	locked := r.filterStillLocked(candidates)

	if err := r.reconcileLockedRequests(ctx, locked); err != nil {
		logging.Op().Error("recorder: reconcile locked requests failed", "error", err)
	}
	r.recordHeartbeat(ctx, len(locked))
	return nil
}

// recordOne parses one artifact and writes its rows (unless it is already
// a ".json.dbdone" sentinel, in which case rows were written on a previous
// scan and only the Request is rebuilt for locked-request tracking).
func (r *Recorder) recordOne(ctx context.Context, stem string, suffix filelock.Suffix) (domain.Request, bool, error) {
	resultPath, _, dbdonePath := filelock.Paths(r.workDir, stem)
	path := resultPath
	if suffix == filelock.SuffixDBDone {
		path = dbdonePath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Request{}, false, fmt.Errorf("read %s: %w", path, err)
	}
	var result worker.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return domain.Request{}, false, fmt.Errorf("parse %s: %w", path, err)
	}

	uuid := result.SiUUID
	req := buildRequest(uuid, filepath.Join(r.workDir, filepath.Base(path)), &result)
	unknown := req.Site1 == "UNKNOWN" || req.Site2 == "UNKNOWN"

	if suffix == filelock.SuffixDBDone {
		return req, unknown, nil
	}

	if err := r.store.WriteRequest(ctx, req); err != nil {
		return req, unknown, fmt.Errorf("write request %s: %w", uuid, err)
	}
	metrics.Global().RecordRecorderRow("requests")

	for _, row := range buildActionRows(uuid, &result) {
		if err := r.store.WriteAction(ctx, row); err != nil {
			logging.Op().Warn("recorder: write action failed", "uuid", uuid, "action", row.Action, "error", err)
			continue
		}
		metrics.Global().RecordRecorderRow("actions")
	}

	mappings := r.mappings()
	for _, row := range buildVerificationRows(uuid, &result, mappings) {
		if err := r.store.WriteVerification(ctx, row); err != nil {
			logging.Op().Warn("recorder: write verification failed", "uuid", uuid, "urn", row.URN, "error", err)
			continue
		}
		metrics.Global().RecordRecorderRow("verification")
	}

	for _, row := range buildRequestStates(uuid, &result) {
		if err := r.store.WriteRequestState(ctx, row); err != nil {
			logging.Op().Warn("recorder: write requeststate failed", "uuid", uuid, "state", row.State, "error", err)
			continue
		}
		metrics.Global().RecordRecorderRow("requeststates")
	}

	for _, row := range result.PingResults {
		if err := r.store.WritePingResult(ctx, row); err != nil {
			logging.Op().Warn("recorder: write pingresult failed", "uuid", uuid, "error", err)
			continue
		}
		metrics.Global().RecordRecorderRow("pingresults")
	}

	return req, unknown, nil
}

// filterStillLocked drops any locked Request whose artifact no longer
// exists as ".json.dbdone" (the archiver may have just reopened and
// archived it during this same scan).
func (r *Recorder) filterStillLocked(locked []domain.Request) []domain.Request {
	var out []domain.Request
	for _, req := range locked {
		stem := stemFor(req)
		_, _, dbdonePath := filelock.Paths(r.workDir, stem)
		if _, err := os.Stat(dbdonePath); err == nil {
			out = append(out, req)
		}
	}
	return out
}

func stemFor(req domain.Request) string {
	return domain.Pair{Port1: req.Port1, Port2: req.Port2, Vlan: req.Vlan}.Stem()
}

// reconcileLockedRequests inserts locks new since the previous scan and
// deletes locks whose artifact has since disappeared, mirroring
// dbrecorder.py::checklockedrequests.
func (r *Recorder) reconcileLockedRequests(ctx context.Context, locked []domain.Request) error {
	known, err := r.store.ListLockedRequests(ctx)
	if err != nil {
		return fmt.Errorf("list locked requests: %w", err)
	}
	remaining := make(map[string]bool, len(known))
	for _, uuid := range known {
		remaining[uuid] = true
	}

	for _, req := range locked {
		if remaining[req.UUID] {
			delete(remaining, req.UUID)
			continue
		}
		if err := r.store.WriteLockedRequest(ctx, req); err != nil {
			logging.Op().Warn("recorder: write locked request failed", "uuid", req.UUID, "error", err)
		}
	}
	for uuid := range remaining {
		logging.Op().Info("recorder: lock file gone, removing from locked table", "uuid", uuid)
		if err := r.store.DeleteLockedRequest(ctx, uuid); err != nil {
			logging.Op().Warn("recorder: delete locked request failed", "uuid", uuid, "error", err)
		}
	}
	return nil
}

// recordHeartbeat reads the Tester's heartbeat file and upserts it,
// stamping the current lock count. A missing/empty file is skipped
// without clearing the previous row, mirroring dbrecorder.py::checkrunnerinfo.
func (r *Recorder) recordHeartbeat(ctx context.Context, lockedCount int) {
	info, ok := readHeartbeat(filepath.Join(r.workDir, heartbeatFileName))
	if !ok {
		logging.Op().Warn("recorder: no heartbeat file, skipping runnerinfo update")
		return
	}
	info.LockedRequests = lockedCount
	if err := r.store.WriteRunnerInfo(ctx, info); err != nil {
		logging.Op().Warn("recorder: write runnerinfo failed", "error", err)
	}
}

func (r *Recorder) mappings() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Mappings
}

// maybeRefreshConfig force-refreshes configuration every configRefreshEvery,
// or every configRefreshUnknownEvery if this scan observed any "UNKNOWN"
// site attribution, per spec.md §5. Best-effort: a failed refresh keeps the
// previously loaded config.
func (r *Recorder) maybeRefreshConfig(ctx context.Context, sawUnknown bool) {
	if r.refresher == nil {
		return
	}

	r.mu.Lock()
	now := time.Now()
	due := now.Sub(r.lastRefresh) >= configRefreshEvery
	if sawUnknown {
		if r.unknownSeenAt.IsZero() {
			r.unknownSeenAt = now
		}
		if now.Sub(r.lastRefresh) >= configRefreshUnknownEvery {
			due = true
		}
	} else {
		r.unknownSeenAt = time.Time{}
	}
	r.mu.Unlock()

	if !due {
		return
	}

	cfg, err := r.refresher.Refresh(ctx)
	if err != nil {
		logging.Op().Warn("recorder: config refresh failed, keeping previous config", "error", err)
		return
	}

	r.mu.Lock()
	r.cfg = cfg
	r.lastRefresh = now
	r.mu.Unlock()
	logging.Op().Info("recorder: config refreshed", "unknown_site_triggered", sawUnknown)
}
