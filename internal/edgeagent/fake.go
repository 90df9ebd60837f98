package edgeagent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Fake is a hand-written in-memory Client for pingprobe tests.
type Fake struct {
	mu sync.Mutex

	// Actions is keyed by sitename, then by id.
	Actions map[string]map[string]DebugDetail

	SubmitErr error
	SubmitOK  bool
}

// NewFake returns an empty Fake with SubmitOK defaulted to true.
func NewFake() *Fake {
	return &Fake{
		Actions:  map[string]map[string]DebugDetail{},
		SubmitOK: true,
	}
}

func (f *Fake) GetAllDebugHostname(ctx context.Context, sitename, hostname string, state DebugState) ([]DebugAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []DebugAction
	for id, detail := range f.Actions[sitename] {
		if detail.RequestDict.Hostname != hostname || detail.State != state {
			continue
		}
		out = append(out, DebugAction{ID: id, State: detail.State})
	}
	return out, nil
}

func (f *Fake) GetDebug(ctx context.Context, sitename, id string) (DebugDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	site, ok := f.Actions[sitename]
	if !ok {
		return DebugDetail{}, fmt.Errorf("fake: unknown site %s", sitename)
	}
	detail, ok := site[id]
	if !ok {
		return DebugDetail{}, fmt.Errorf("fake: unknown debug action %s/%s", sitename, id)
	}
	return detail, nil
}

func (f *Fake) SubmitPing(ctx context.Context, req PingRequest) (string, bool, error) {
	if f.SubmitErr != nil {
		return "", false, f.SubmitErr
	}
	if !f.SubmitOK {
		return "", false, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Actions[req.Sitename] == nil {
		f.Actions[req.Sitename] = map[string]DebugDetail{}
	}
	id := uuid.NewString()
	f.Actions[req.Sitename][id] = DebugDetail{State: StateNew, RequestDict: req}
	return id, true, nil
}

// SetState lets a test advance a previously submitted action to active or
// resolved (any state outside {new, active} as the monitor loop expects).
func (f *Fake) SetState(sitename, id string, state DebugState, stdout string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	detail := f.Actions[sitename][id]
	detail.State = state
	detail.Stdout = stdout
	f.Actions[sitename][id] = detail
}
