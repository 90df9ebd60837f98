package tester

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oriys/pairtester/internal/logging"
)

// pauseSentinel mirrors internal/worker/pool.go's own pause-sentinel name;
// both the pool (per-dequeue) and the round loop (pre-round) check for it
// independently, per spec.md §5/§6.3.
const pauseSentinel = "pause-endtoend-testing"

// heartbeatFileName is the document the recorder polls for runnerinfo rows.
const heartbeatFileName = "testerinfo.run"

// heartbeatDoc mirrors internal_source's statusout dict (tester.py::main),
// dumped to workdir/testerinfo.run on every status change.
type heartbeatDoc struct {
	Alive          bool  `json:"alive"`
	TotalWorkers   int   `json:"totalworkers"`
	TotalQueue     int   `json:"totalqueue"`
	RemainingQueue int   `json:"remainingqueue"`
	StartTime      int64 `json:"starttime"`
	NextRun        int64 `json:"nextrun"`
}

func pauseFileExists(workDir string) bool {
	_, err := os.Stat(filepath.Join(workDir, pauseSentinel))
	return err == nil
}

// writeHeartbeat dumps the current status to workdir/testerinfo.run,
// mirroring tester.py's dumpFileJson(statusout) calls.
func (t *Tester) writeHeartbeat(alive bool, totalQueue, remainingQueue int, nextRun time.Time) {
	t.mu.Lock()
	start := t.startTime
	t.mu.Unlock()

	doc := heartbeatDoc{
		Alive:          alive,
		TotalWorkers:   t.workerCount(),
		TotalQueue:     totalQueue,
		RemainingQueue: remainingQueue,
		StartTime:      start.Unix(),
	}
	if !nextRun.IsZero() {
		doc.NextRun = nextRun.Unix()
	}

	data, err := json.Marshal(doc)
	if err != nil {
		logging.Op().Warn("tester: marshal heartbeat failed", "error", err)
		return
	}
	path := filepath.Join(t.cfg.WorkDir, heartbeatFileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		logging.Op().Warn("tester: write heartbeat failed", "error", fmt.Errorf("write %s: %w", path, err))
	}
}
