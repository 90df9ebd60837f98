package filelock

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAcquireAndFinish(t *testing.T) {
	dir := t.TempDir()
	stem := "urn-a-urn-b-100"

	lockPath, err := Acquire(dir, stem, "worker-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(lockPath); err != nil {
		t.Fatalf("expected lock file to exist: %v", err)
	}

	if err := Finish(dir, stem, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Fatal("expected lock file to be removed after Finish")
	}

	resultPath, _, _ := Paths(dir, stem)
	if _, err := os.Stat(resultPath); err != nil {
		t.Fatalf("expected result file to exist: %v", err)
	}
}

func TestAcquireRejectsWhenInFlight(t *testing.T) {
	dir := t.TempDir()
	stem := "urn-a-urn-b-100"

	if _, err := Acquire(dir, stem, "worker-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Acquire(dir, stem, "worker-2"); err != ErrInFlight {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
}

func TestAcquireRejectsWhenResultExists(t *testing.T) {
	dir := t.TempDir()
	stem := "urn-a-urn-b-100"

	resultPath, _, _ := Paths(dir, stem)
	if err := os.WriteFile(resultPath, []byte("{}"), 0644); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	if _, err := Acquire(dir, stem, "worker-1"); err != ErrInFlight {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
}

func TestStemNormalizationSharesArtifact(t *testing.T) {
	dir := t.TempDir()
	forward := pairStem("urn-a", "urn-b", "100")
	reverse := pairStem("urn-b", "urn-a", "100")
	if forward != reverse {
		t.Fatalf("expected normalized stems to match: %q vs %q", forward, reverse)
	}

	if _, err := Acquire(dir, forward, "worker-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !AnyExists(dir, reverse) {
		t.Fatal("expected reverse-ordered stem to see the same artifact")
	}
}

func pairStem(a, b, vlan string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b + "-" + vlan
}

func TestMarkDoneAndReopen(t *testing.T) {
	dir := t.TempDir()
	stem := "urn-a-urn-b-100"

	if err := Finish(dir, stem, []byte("{}")); err != nil {
		t.Fatalf("setup error: %v", err)
	}

	dbdonePath, err := MarkDone(dir, stem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Base(dbdonePath) != stem+".json.dbdone" {
		t.Fatalf("unexpected dbdone path: %s", dbdonePath)
	}

	resultPath, err := Reopen(dir, stem)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(resultPath); err != nil {
		t.Fatalf("expected result file to exist after reopen: %v", err)
	}
}

func TestStemFromFilename(t *testing.T) {
	cases := []struct {
		name       string
		wantStem   string
		wantSuffix Suffix
		wantOK     bool
	}{
		{"a-b-100.json", "a-b-100", SuffixResult, true},
		{"a-b-100.json.lock", "a-b-100", SuffixLock, true},
		{"a-b-100.json.dbdone", "a-b-100", SuffixDBDone, true},
		{"testerinfo.run", "", "", false},
	}

	for _, c := range cases {
		stem, suffix, ok := StemFromFilename(c.name)
		if ok != c.wantOK {
			t.Fatalf("%s: expected ok=%v, got %v", c.name, c.wantOK, ok)
		}
		if !ok {
			continue
		}
		if stem != c.wantStem || suffix != c.wantSuffix {
			t.Fatalf("%s: expected (%s, %s), got (%s, %s)", c.name, c.wantStem, c.wantSuffix, stem, suffix)
		}
	}
}
