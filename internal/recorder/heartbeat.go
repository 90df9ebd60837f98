package recorder

import (
	"encoding/json"
	"os"
	"time"

	"github.com/oriys/pairtester/internal/domain"
)

// heartbeatFile mirrors the "testerinfo.run" document original_source's
// Tester writes every 30s while a round is in flight: alive/queue depth
// plus the round's start/next-run timestamps (unix seconds).
type heartbeatFile struct {
	Alive          bool  `json:"alive"`
	TotalWorkers   int   `json:"totalworkers"`
	TotalQueue     int   `json:"totalqueue"`
	RemainingQueue int   `json:"remainingqueue"`
	StartTime      int64 `json:"starttime"`
	NextRun        int64 `json:"nextrun"`
}

// readHeartbeat loads path's heartbeat document. A missing or empty file
// yields ok=false so the caller never clears a previously recorded
// heartbeat, mirroring dbrecorder.py::checkrunnerinfo's "did not receive
// status information" guard.
func readHeartbeat(path string) (domain.RunnerInfo, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return domain.RunnerInfo{}, false
	}

	var hb heartbeatFile
	if err := json.Unmarshal(data, &hb); err != nil {
		return domain.RunnerInfo{}, false
	}

	return domain.RunnerInfo{
		Alive:          hb.Alive,
		TotalWorkers:   hb.TotalWorkers,
		TotalQueue:     hb.TotalQueue,
		RemainingQueue: hb.RemainingQueue,
		StartTime:      time.Unix(hb.StartTime, 0).UTC(),
		NextRun:        time.Unix(hb.NextRun, 0).UTC(),
	}, true
}
