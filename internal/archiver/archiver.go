// Package archiver decides and executes the disposition of each finished
// pair artifact under the work directory, per spec.md §4.6. It is
// grounded on original_source/dbrecorder.py's archiving branch of
// identifyTransferStatus/writerequest, expressed here as a free-standing
// component rather than bound onto the parser object via inheritance
// (spec.md §9's "prefer composition" redesign note).
package archiver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/filelock"
	"github.com/oriys/pairtester/internal/logging"
	"github.com/oriys/pairtester/internal/metrics"
	"github.com/oriys/pairtester/internal/orchestrator"
	"github.com/oriys/pairtester/internal/worker"
)

// staleAge is the minimum artifact age before the "cancelled and archived
// upstream" and "OKARCHIVE" dispositions apply, per spec.md §4.6.
const staleAge = 3 * 24 * time.Hour

// Disposition is the archiver's verdict for one artifact.
type Disposition int

const (
	DispositionDBDone Disposition = iota
	DispositionArchive
)

func (d Disposition) String() string {
	if d == DispositionArchive {
		return "archive"
	}
	return "dbdone"
}

// FileLocUpdater is the persistence seam the archiver needs: recording
// where an artifact moved to after DB rows referencing it already exist.
// A narrow interface (rather than *store.Store directly) keeps the
// archiver testable without a Postgres instance, matching the
// orchestrator.Client/edgeagent.Client opaque-collaborator pattern.
type FileLocUpdater interface {
	UpdateRequestFileLoc(ctx context.Context, uuid, newFileLoc string) error
}

// Archiver scans the work directory for finished ".json" artifacts and
// moves each to its terminal location.
type Archiver struct {
	workDir string
	client  orchestrator.Client
	store   FileLocUpdater
}

// New constructs an Archiver rooted at workDir.
func New(workDir string, client orchestrator.Client, store FileLocUpdater) *Archiver {
	return &Archiver{workDir: workDir, client: client, store: store}
}

// Outcome records one artifact's disposition for a caller (e.g. the
// recorder loop, or a test) to inspect.
type Outcome struct {
	Stem        string
	Disposition Disposition
	Deleted     bool
	Reason      string
	NewPath     string
}

// Scan walks the work directory's top-level artifacts and disposes of
// every fresh ".json" result plus every ".json.dbdone" sentinel whose
// underlying request has since reached an archivable condition (a
// previously non-final run that later got cancelled upstream, or aged
// past retention) — filelock.Reopen promotes the latter back to ".json"
// before the normal archive path runs.
func (a *Archiver) Scan(ctx context.Context) ([]Outcome, error) {
	entries, err := os.ReadDir(a.workDir)
	if err != nil {
		return nil, fmt.Errorf("archiver: read workdir %s: %w", a.workDir, err)
	}

	var outcomes []Outcome
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		stem, suffix, ok := filelock.StemFromFilename(entry.Name())
		if !ok {
			continue
		}

		switch suffix {
		case filelock.SuffixResult:
			outcome, err := a.disposeOne(ctx, stem)
			if err != nil {
				logging.Op().Error("archiver: dispose failed", "stem", stem, "error", err)
				continue
			}
			outcomes = append(outcomes, outcome)
		case filelock.SuffixDBDone:
			outcome, reopened, err := a.reconsiderDBDone(ctx, stem)
			if err != nil {
				logging.Op().Error("archiver: reconsider dbdone failed", "stem", stem, "error", err)
				continue
			}
			if reopened {
				outcomes = append(outcomes, outcome)
			}
		}
	}
	return outcomes, nil
}

// reconsiderDBDone re-evaluates a ".json.dbdone" artifact's disposition;
// only a verdict that now promotes to DispositionArchive produces an
// outcome, since nothing else about an already-recorded dbdone file needs
// to change.
func (a *Archiver) reconsiderDBDone(ctx context.Context, stem string) (Outcome, bool, error) {
	_, _, dbdonePath := filelock.Paths(a.workDir, stem)
	result, err := readResult(dbdonePath)
	if err != nil {
		return Outcome{}, false, err
	}

	disposition, _, _ := a.decide(ctx, result)
	if disposition != DispositionArchive {
		return Outcome{}, false, nil
	}

	if _, err := filelock.Reopen(a.workDir, stem); err != nil {
		return Outcome{}, false, err
	}
	outcome, err := a.disposeOne(ctx, stem)
	return outcome, true, err
}

func readResult(path string) (*worker.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var result worker.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &result, nil
}

func (a *Archiver) disposeOne(ctx context.Context, stem string) (Outcome, error) {
	resultPath, _, _ := filelock.Paths(a.workDir, stem)
	result, err := readResult(resultPath)
	if err != nil {
		return Outcome{}, err
	}

	disposition, deleteInstance, reason := a.decide(ctx, result)

	outcome := Outcome{Stem: stem, Disposition: disposition, Reason: reason}
	switch disposition {
	case DispositionArchive:
		newPath, err := a.archive(stem, result.InsertDate)
		if err != nil {
			return Outcome{}, err
		}
		outcome.NewPath = newPath
		if deleteInstance && result.SiUUID != "" {
			if err := a.client.InstanceDelete(ctx, result.SiUUID); err != nil {
				logging.Op().Warn("archiver: instance delete failed", "uuid", result.SiUUID, "error", err)
			} else {
				outcome.Deleted = true
			}
		}
	default:
		newPath, err := filelock.MarkDone(a.workDir, stem)
		if err != nil {
			return Outcome{}, err
		}
		outcome.NewPath = newPath
	}

	if a.store != nil && result.SiUUID != "" {
		if err := a.store.UpdateRequestFileLoc(ctx, result.SiUUID, outcome.NewPath); err != nil {
			logging.Op().Warn("archiver: update fileloc failed", "uuid", result.SiUUID, "error", err)
		}
	}
	metrics.Global().RecordArchiverOutcome(disposition.String())
	return outcome, nil
}

// decide implements spec.md §4.6's decision table, evaluated top to bottom.
func (a *Archiver) decide(ctx context.Context, result *worker.Result) (disposition Disposition, deleteInstance bool, reason string) {
	if result.FinalState {
		return DispositionArchive, false, "finalstate"
	}

	status, statusErr := a.client.InstanceGetStatus(ctx, result.SiUUID, true)
	notFound := orchestrator.KindOf(statusErr) == orchestrator.NotFound
	present := statusErr == nil
	age := time.Since(result.InsertDate.UTC())

	if result.PathfindIssue {
		return DispositionArchive, present, "pathfindissue"
	}
	if notFound {
		return DispositionArchive, false, "instance not found"
	}
	if present && status.SuperState == "CANCEL" && status.SubState == "READY" &&
		status.ConfigState == "STABLE" && status.Archived && !status.Locked && age >= staleAge {
		return DispositionArchive, true, "cancelled and archived upstream, past retention"
	}
	if cancel, ok := result.Phases[domain.ActionCancel]; ok && cancel.FinalState == "OKARCHIVE" && age >= staleAge {
		return DispositionArchive, false, "cancel OKARCHIVE, past retention"
	}
	return DispositionDBDone, false, "rows already written"
}

// archive moves stem's ".json" artifact under workDir/archived/<UTC date
// bucket of insertDate>/<unix epoch>-<stem>.json, per spec.md §4.6/§6.4.
func (a *Archiver) archive(stem string, insertDate time.Time) (string, error) {
	resultPath, _, _ := filelock.Paths(a.workDir, stem)
	bucket := insertDate.UTC().Format("2006-01-02")
	destDir := filepath.Join(a.workDir, "archived", bucket)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("archiver: mkdir %s: %w", destDir, err)
	}

	destPath := filepath.Join(destDir, fmt.Sprintf("%d-%s.json", time.Now().Unix(), stem))
	if err := os.Rename(resultPath, destPath); err != nil {
		return "", fmt.Errorf("archiver: move %s to %s: %w", resultPath, destPath, err)
	}
	return destPath, nil
}
