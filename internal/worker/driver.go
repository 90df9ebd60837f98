package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oriys/pairtester/internal/circuitbreaker"
	"github.com/oriys/pairtester/internal/config"
	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/logging"
	"github.com/oriys/pairtester/internal/metrics"
	"github.com/oriys/pairtester/internal/observability"
	"github.com/oriys/pairtester/internal/orchestrator"
)

// Pinger collects ping probe results for a freshly-active instance, per
// spec.md §4.5. internal/pingprobe implements this without internal/worker
// importing it, avoiding an import cycle; the assembly layer wires them.
type Pinger interface {
	RunPings(ctx context.Context, manifest json.RawMessage) ([]domain.PingResult, error)
}

// breakerConfig is shared by every call type's circuit breaker.
var breakerConfig = circuitbreaker.Config{
	ErrorPct:       50,
	WindowDuration: time.Minute,
	OpenDuration:   30 * time.Second,
	HalfOpenProbes: 3,
}

// Driver drives one pair's lifecycle against the Orchestrator. One Driver
// is constructed per (pair, vlan) run; it is not safe for concurrent reuse.
type Driver struct {
	client    orchestrator.Client
	pinger    Pinger
	breakers  *circuitbreaker.Registry
	cfg       *config.Config
	workerID  string
	traceID   string

	// origRequest holds the intent body submitted during create, cloned
	// and mutated by modify/modifycreate (original_source/tester.py keeps
	// this as self.response["info"]["req"]).
	origRequest map[string]any
	origReqType string
}

// NewDriver constructs a Driver for one worker's lifecycle run.
func NewDriver(client orchestrator.Client, pinger Pinger, breakers *circuitbreaker.Registry, cfg *config.Config, workerID string) *Driver {
	return &Driver{client: client, pinger: pinger, breakers: breakers, cfg: cfg, workerID: workerID}
}

// callBreaker returns the shared breaker for one Orchestrator call type
// (create, cancel, reprovision, modify, status), per spec.md §9's "scope
// the circuit breaker per call type, not globally" redesign note.
func (d *Driver) callBreaker(callType string) *circuitbreaker.Breaker {
	return d.breakers.Get(callType, breakerConfig)
}

// guardedCall runs fn through callType's breaker, recording success/failure
// and refusing the call outright when the breaker is open.
func (d *Driver) guardedCall(callType string, fn func() error) error {
	b := d.callBreaker(callType)
	if !b.Allow() {
		return fmt.Errorf("worker: circuit breaker open for %s calls", callType)
	}
	err := fn()
	if err != nil {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}

// logPhase emits one structured phase-log line and one metrics sample.
func (d *Driver) logPhase(pairLabel string, action domain.Action, start time.Time, success bool, finalState, errText string, retries int) {
	logging.Default().Log(&logging.PhaseLog{
		Timestamp:  time.Now().UTC(),
		Pair:       pairLabel,
		Action:     string(action),
		TraceID:    d.traceID,
		DurationMs: time.Since(start).Milliseconds(),
		Success:    success,
		FinalState: finalState,
		Error:      errText,
		Retries:    retries,
	})
	metrics.Global().RecordPhase(string(action), time.Since(start).Milliseconds(), success)
}

// pollResult is the outcome of pollUntil: the last observed status, whether
// the deadline elapsed first, and every transition recorded along the way.
type pollResult struct {
	last     orchestrator.Status
	timedOut bool
	timings  []Timing
}

// pollUntil implements spec.md §4.2's adaptive-backoff poll: sleep
// ⌊iteration/15⌋+1 seconds between InstanceGetStatus calls, up to timeout,
// recording every distinct (state, configstate) transition observed.
// terminal reports (done, success) for the freshly observed status.
func (d *Driver) pollUntil(ctx context.Context, siUUID string, timeout time.Duration, terminal func(orchestrator.Status) (done, success bool)) (pollResult, error) {
	deadline := time.Now().Add(timeout)
	var out pollResult
	var lastState, lastConfigState string
	iteration := 0

	for {
		status, err := d.client.InstanceGetStatus(ctx, siUUID, true)
		if err != nil {
			return out, orchestrator.TagFromMessage(err)
		}
		out.last = status

		if status.State != lastState || status.ConfigState != lastConfigState {
			out.timings = append(out.timings, Timing{
				State:       status.State,
				ConfigState: domain.ConfigState(status.ConfigState),
				EnterTime:   time.Now().UTC(),
			})
			lastState, lastConfigState = status.State, status.ConfigState
		}

		if done, success := terminal(status); done {
			out.timedOut = false
			_ = success
			return out, nil
		}

		if time.Now().After(deadline) {
			out.timedOut = true
			return out, nil
		}

		sleep := time.Duration(iteration/15+1) * time.Second
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(sleep):
		}
		iteration++
	}
}

// hasAnySubstring reports whether s contains any of needles, matching
// original_source/tester.py's status-string membership checks
// ("CREATE" not in status, "READY" not in status, ...).
func hasAnySubstring(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func startSpan(ctx context.Context, name string) (context.Context, func(err error)) {
	ctx, span := observability.StartClientSpan(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			observability.SetSpanError(span, err)
		} else {
			observability.SetSpanOK(span)
		}
		span.End()
	}
}
