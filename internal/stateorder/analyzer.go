// Package stateorder implements the canonical (state, action, configstate)
// reference table and the dwell-time analyzer described in spec.md §4.3,
// ground-truthed against original_source's _calculateTotalTime.
package stateorder

import (
	"sort"
	"time"

	"github.com/oriys/pairtester/internal/domain"
)

// Observed is one raw (state, configstate, action, entertime) tuple as
// recorded by a worker while polling Orchestrator status.
type Observed struct {
	State       string
	ConfigState domain.ConfigState
	Action      domain.Action
	EnterTime   time.Time
}

// canonicalOrder is the seeded table sorted once by OrderID so Analyze can
// walk it in canonical sequence without re-sorting on every call.
var canonicalOrder = func() []domain.StateOrderEntry {
	rows := Seed()
	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderID < rows[j].OrderID })
	return rows
}()

// Analyze computes totaltime (dwell in the previous canonical state) and
// sincestart (elapsed from the first observed state) for one run's
// observed transitions, per spec.md §4.3. The analyzer is deterministic
// and idempotent given the same observed slice.
func Analyze(observed []Observed) []domain.RequestState {
	if len(observed) == 0 {
		return nil
	}

	remaining := make([]Observed, len(observed))
	copy(remaining, observed)

	firstTime := observed[0].EnterTime
	for _, o := range observed {
		if o.EnterTime.Before(firstTime) {
			firstTime = o.EnterTime
		}
	}

	var out []domain.RequestState
	lastTime := firstTime

	for _, step := range canonicalOrder {
		idx := -1
		for i, o := range remaining {
			if o.State == step.State && o.Action == step.Action && o.ConfigState == step.ConfigState {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}

		matched := remaining[idx]
		remaining = append(remaining[:idx], remaining[idx+1:]...)

		dwell := int64(matched.EnterTime.Sub(lastTime).Seconds())
		if dwell < 0 {
			dwell = 0
		}
		if len(out) > 0 {
			out[len(out)-1].TotalTime = dwell
		}

		out = append(out, domain.RequestState{
			Action:      matched.Action,
			State:       matched.State,
			ConfigState: matched.ConfigState,
			EnterTime:   matched.EnterTime,
			SinceStart:  int64(matched.EnterTime.Sub(firstTime).Seconds()),
			TotalTime:   0,
		})
		lastTime = matched.EnterTime
	}

	// Unmatched observed tuples: out-of-order or unknown transitions not in
	// the canonical table. Appended with totaltime=0 per spec.md §4.3 step 3.
	for _, o := range remaining {
		out = append(out, domain.RequestState{
			Action:      o.Action,
			State:       o.State,
			ConfigState: o.ConfigState,
			EnterTime:   o.EnterTime,
			SinceStart:  int64(o.EnterTime.Sub(firstTime).Seconds()),
			TotalTime:   0,
		})
	}

	return out
}
