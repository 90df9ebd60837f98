package worker

import (
	"encoding/json"
	"time"

	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/orchestrator"
)

// Timing is one observed (state, configstate) transition, timestamped in
// UTC, feeding internal/stateorder's dwell-time analyzer.
type Timing struct {
	State       string
	ConfigState domain.ConfigState
	EnterTime   time.Time
}

// PhaseResult is the per-phase outcome accumulated into Result, mirroring
// the dict original_source/tester.py assembles per phase (finalstate,
// error, response, manifest/validation errors). Manifest and Validation
// are held per phase (not on Result) so a multi-phase lifecycle such as
// create -> cancelrep -> reprovision -> cancel retains every phase's own
// verification report instead of the last one clobbering the rest.
type PhaseResult struct {
	Action          domain.Action
	SiUUID          string
	FinalState      string // OK, NOTOK, OKARCHIVE, NOTOKARCHIVE, NOTOKDELETE, or "" if never reached
	Error           string
	ManifestError   string
	ValidationError string
	Manifest        json.RawMessage
	Validation      orchestrator.VerifyReport
	TimedOut        bool
	Timings         []Timing
}

// Result is the single structured artifact a worker writes per pair under
// workdir, per spec.md §4.2 step 5.
type Result struct {
	URNA, URNB, Vlan string
	Site1, Site2     string
	RequestType      domain.RequestType
	SiUUID           string
	Phases           map[domain.Action]*PhaseResult
	PingResults      []domain.PingResult
	FinalState       bool
	PathfindIssue    bool
	Failure          string
	InsertDate       time.Time
	UpdateDate       time.Time
}

func newResult(urnA, urnB, vlan, site1, site2 string) *Result {
	return &Result{
		URNA: urnA, URNB: urnB, Vlan: vlan,
		Site1: site1, Site2: site2,
		Phases:     map[domain.Action]*PhaseResult{},
		InsertDate: time.Now().UTC(),
		UpdateDate: time.Now().UTC(),
	}
}

// failureText assembles the composite `failure` string recorded against a
// Request row, prefixed per spec.md §4.7 ("ERROR_CREATE:",
// "VALIDATION_CREATE:", "MANIFEST_CREATE:" for the create phase, etc).
func (r *Result) failureText() string {
	var out string
	order := []domain.Action{
		domain.ActionCreate, domain.ActionModifyCreate, domain.ActionCancelRep,
		domain.ActionReprovision, domain.ActionModify, domain.ActionCancel, domain.ActionCancelArch,
	}
	for _, action := range order {
		phase, ok := r.Phases[action]
		if !ok {
			continue
		}
		name := actionName(action)
		if phase.Error != "" {
			out += "ERROR_" + name + ":" + phase.Error + " "
		}
		if phase.ValidationError != "" {
			out += "VALIDATION_" + name + ":" + phase.ValidationError + " "
		}
		if phase.ManifestError != "" {
			out += "MANIFEST_" + name + ":" + phase.ManifestError + " "
		}
	}
	return out
}

// actionName gives the bare phase name used in every failure-text prefix
// ("ERROR_", "VALIDATION_", "MANIFEST_"), per spec.md §4.7.
func actionName(action domain.Action) string {
	switch action {
	case domain.ActionCreate:
		return "CREATE"
	case domain.ActionModifyCreate:
		return "MODIFYCREATE"
	case domain.ActionCancelRep:
		return "CANCELREP"
	case domain.ActionReprovision:
		return "REPROVISION"
	case domain.ActionModify:
		return "MODIFY"
	case domain.ActionCancel:
		return "CANCEL"
	case domain.ActionCancelArch:
		return "CANCELARCH"
	default:
		return string(action)
	}
}
