// Package filelock implements the cross-process artifact state machine
// described in spec.md §4.4: a pair's result file moves through
// ".json.lock" (worker in flight) -> ".json" (awaiting recorder ingestion)
// -> ".json.dbdone" (recorded, non-terminal) without a shared database
// transaction between the Tester and the Recorder.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Suffix names one of the three artifact states named in spec.md §4.4.
type Suffix string

const (
	SuffixResult Suffix = ".json"
	SuffixLock   Suffix = ".json.lock"
	SuffixDBDone Suffix = ".json.dbdone"
)

// ErrInFlight is returned by Acquire when any of the three suffix files
// already exists for a stem; the worker pool must not dequeue such a pair.
var ErrInFlight = errors.New("filelock: pair already has an artifact in flight")

// Paths returns the three suffix paths for stem under dir.
func Paths(dir, stem string) (result, lock, dbdone string) {
	base := filepath.Join(dir, stem)
	return base + string(SuffixResult), base + string(SuffixLock), base + string(SuffixDBDone)
}

// AnyExists reports whether any of the three suffix files exists for stem.
func AnyExists(dir, stem string) bool {
	result, lock, dbdone := Paths(dir, stem)
	for _, p := range []string{result, lock, dbdone} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// Acquire atomically creates the ".json.lock" file for stem, containing
// workerID and the current UTC timestamp. It fails with ErrInFlight if any
// of the three suffix files already exists; the check-then-create is not
// itself atomic across the three suffixes (the lock is advisory, per
// spec.md §5), but the O_EXCL create below prevents two workers from both
// succeeding on the same stem.
func Acquire(dir, stem, workerID string) (string, error) {
	if AnyExists(dir, stem) {
		return "", ErrInFlight
	}

	_, lockPath, _ := Paths(dir, stem)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return "", ErrInFlight
		}
		return "", fmt.Errorf("filelock: create lock %s: %w", lockPath, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s %s\n", workerID, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return "", fmt.Errorf("filelock: write lock %s: %w", lockPath, err)
	}
	return lockPath, nil
}

// Release removes the lock file, leaving the pair free to be re-enqueued
// (used on teardown / recovery, as opposed to Finish which hands the pair
// off to the recorder).
func Release(dir, stem string) error {
	_, lockPath, _ := Paths(dir, stem)
	err := os.Remove(lockPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filelock: release lock %s: %w", lockPath, err)
	}
	return nil
}

// Finish writes the result artifact and removes the lock, handing the pair
// off to the recorder. data is the already-serialized result document.
func Finish(dir, stem string, data []byte) error {
	resultPath, lockPath, _ := Paths(dir, stem)
	if err := os.WriteFile(resultPath, data, 0644); err != nil {
		return fmt.Errorf("filelock: write result %s: %w", resultPath, err)
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("filelock: release lock %s: %w", lockPath, err)
	}
	return nil
}

// MarkDone renames a scanned ".json" artifact to ".json.dbdone": rows have
// been written but the run is non-terminal, so the file is kept as a
// do-not-retry-yet sentinel (spec.md §4.4).
func MarkDone(dir, stem string) (string, error) {
	resultPath, _, dbdonePath := Paths(dir, stem)
	if err := os.Rename(resultPath, dbdonePath); err != nil {
		return "", fmt.Errorf("filelock: mark done %s: %w", resultPath, err)
	}
	return dbdonePath, nil
}

// Reopen moves a ".json.dbdone" sentinel back to ".json" once the pair
// reaches a terminal condition on a later scan, so the archiver's decision
// table (§4.6) can act on it.
func Reopen(dir, stem string) (string, error) {
	_, _, dbdonePath := Paths(dir, stem)
	resultPath, _, _ := Paths(dir, stem)
	if err := os.Rename(dbdonePath, resultPath); err != nil {
		return "", fmt.Errorf("filelock: reopen %s: %w", dbdonePath, err)
	}
	return resultPath, nil
}

// StemFromFilename strips a known suffix from a filename, returning the
// normalized stem, or ok=false if name does not carry any of the three
// suffixes.
func StemFromFilename(name string) (stem string, suffix Suffix, ok bool) {
	switch {
	case hasSuffix(name, string(SuffixDBDone)):
		return name[:len(name)-len(SuffixDBDone)], SuffixDBDone, true
	case hasSuffix(name, string(SuffixLock)):
		return name[:len(name)-len(SuffixLock)], SuffixLock, true
	case hasSuffix(name, string(SuffixResult)):
		return name[:len(name)-len(SuffixResult)], SuffixResult, true
	default:
		return "", "", false
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}
