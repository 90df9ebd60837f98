package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Fake is a hand-written in-memory Client used by worker/pingprobe/archiver
// tests, following the teacher's convention of stub types embedding the
// interface rather than a mocking library.
type Fake struct {
	mu sync.Mutex

	// Scripted responses, keyed by si_uuid; StatusSequence is popped on
	// every InstanceGetStatus call (last element repeats once exhausted).
	StatusSequence map[string][]Status
	statusIdx      map[string]int

	// StatusErr, keyed by si_uuid, is returned by InstanceGetStatus instead
	// of consulting StatusSequence, letting a test script a path-finding
	// failure surfaced on the first status poll after provision.
	StatusErr map[string]error

	CreateErr   error
	ManifestErr error
	VerifyErr   error
	OperateErr  error

	// CreateErrSequence, when non-empty, is popped one error per
	// InstanceCreate call (nil entries mean success), letting a test script
	// a path-finding failure on the first template and success on the next.
	CreateErrSequence []error

	// NextIDSequence, when non-empty, is popped one id per InstanceCreate
	// call instead of a random uuid, so tests can pre-script a
	// StatusSequence per attempt. NextID is a single-shot convenience for
	// the common one-attempt case.
	NextID         string
	NextIDSequence []string

	Deleted  []string
	Archived []string

	Manifest json.RawMessage
	Verify   VerifyReport
}

// NewFake returns an empty Fake ready for per-test configuration.
func NewFake() *Fake {
	return &Fake{
		StatusSequence: map[string][]Status{},
		statusIdx:      map[string]int{},
	}
}

func (f *Fake) InstanceNew(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (f *Fake) InstanceCreate(ctx context.Context, intent json.RawMessage) (string, error) {
	f.mu.Lock()
	if len(f.CreateErrSequence) > 0 {
		err := f.CreateErrSequence[0]
		f.CreateErrSequence = f.CreateErrSequence[1:]
		f.mu.Unlock()
		if err != nil {
			return "", err
		}
	} else {
		f.mu.Unlock()
		if f.CreateErr != nil {
			return "", f.CreateErr
		}
	}
	f.mu.Lock()
	if len(f.NextIDSequence) > 0 {
		id := f.NextIDSequence[0]
		f.NextIDSequence = f.NextIDSequence[1:]
		f.mu.Unlock()
		return id, nil
	}
	f.mu.Unlock()
	if f.NextID != "" {
		return f.NextID, nil
	}
	return uuid.NewString(), nil
}

func (f *Fake) InstanceOperate(ctx context.Context, op Op, siUUID string, async, sync, force bool) error {
	return f.OperateErr
}

func (f *Fake) InstanceModify(ctx context.Context, intent json.RawMessage, siUUID string) error {
	return f.OperateErr
}

func (f *Fake) InstanceGetStatus(ctx context.Context, siUUID string, verbose bool) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.StatusErr[siUUID]; ok && err != nil {
		return Status{}, err
	}

	seq, ok := f.StatusSequence[siUUID]
	if !ok || len(seq) == 0 {
		return Status{}, fmt.Errorf("fake: no status scripted for %s", siUUID)
	}
	idx := f.statusIdx[siUUID]
	if idx >= len(seq) {
		idx = len(seq) - 1
	} else {
		f.statusIdx[siUUID] = idx + 1
	}
	return seq[idx], nil
}

func (f *Fake) InstanceDelete(ctx context.Context, siUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deleted = append(f.Deleted, siUUID)
	return nil
}

func (f *Fake) InstanceArchive(ctx context.Context, siUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Archived = append(f.Archived, siUUID)
	return nil
}

func (f *Fake) ManifestCreate(ctx context.Context, templateJSON json.RawMessage) (json.RawMessage, error) {
	if f.ManifestErr != nil {
		return nil, f.ManifestErr
	}
	if f.Manifest != nil {
		return f.Manifest, nil
	}
	return json.RawMessage(`{"jsonTemplate":{}}`), nil
}

func (f *Fake) InstanceVerify(ctx context.Context, siUUID string) (VerifyReport, error) {
	if f.VerifyErr != nil {
		return VerifyReport{}, f.VerifyErr
	}
	return f.Verify, nil
}
