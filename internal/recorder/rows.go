package recorder

import (
	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/stateorder"
	"github.com/oriys/pairtester/internal/worker"
)

// actionOrder is the fixed phase-boundary sequence walked whenever a
// Result's Phases map needs a deterministic iteration order, mirroring
// worker.Result.failureText's own ordering.
var actionOrder = []domain.Action{
	domain.ActionCreate, domain.ActionModifyCreate, domain.ActionCancelRep,
	domain.ActionReprovision, domain.ActionModify, domain.ActionCancel, domain.ActionCancelArch,
}

// buildRequest assembles the Request row for result. Site attribution and
// the finalstate/pathfindissue/failure verdicts are already computed by the
// worker at write time (worker.Result), so no re-derivation happens here -
// unlike original_source/dbrecorder.py::recordinfo, which recomputes them
// from raw phase dicts because its producer (the Python tester) never
// carried them as typed fields.
func buildRequest(uuid, fileLoc string, result *worker.Result) domain.Request {
	return domain.Request{
		UUID:          uuid,
		Site1:         result.Site1,
		Site2:         result.Site2,
		Port1:         result.URNA,
		Port2:         result.URNB,
		Vlan:          result.Vlan,
		RequestType:   result.RequestType,
		FinalState:    result.FinalState,
		PathfindIssue: result.PathfindIssue,
		Failure:       result.Failure,
		FileLoc:       fileLoc,
		InsertDate:    result.InsertDate,
		UpdateDate:    result.UpdateDate,
	}
}

// buildActionRows emits one ActionRow per phase actually entered, dated by
// the earliest observed transition in that phase (the phase's "starttime",
// per dbrecorder.py::recordactions).
func buildActionRows(uuid string, result *worker.Result) []domain.ActionRow {
	var out []domain.ActionRow
	for _, action := range actionOrder {
		phase, ok := result.Phases[action]
		if !ok || len(phase.Timings) == 0 {
			continue
		}
		start := phase.Timings[0].EnterTime
		for _, t := range phase.Timings[1:] {
			if t.EnterTime.Before(start) {
				start = t.EnterTime
			}
		}
		out = append(out, domain.ActionRow{
			UUID: uuid, Action: action,
			Site1: result.Site1, Site2: result.Site2,
			InsertDate: start, UpdateDate: start,
		})
	}
	return out
}

// buildRequestStates runs the dwell-time analyzer over every phase's
// observed transitions combined into a single timeline, mirroring
// dbrecorder.py::_calculateTotalTime's single pass over all actions, then
// stamps the identifying fields stateorder.Analyze's Observed input never
// carries.
func buildRequestStates(uuid string, result *worker.Result) []domain.RequestState {
	var observed []stateorder.Observed
	for _, action := range actionOrder {
		phase, ok := result.Phases[action]
		if !ok {
			continue
		}
		for _, t := range phase.Timings {
			observed = append(observed, stateorder.Observed{
				State: t.State, ConfigState: t.ConfigState, Action: action, EnterTime: t.EnterTime,
			})
		}
	}
	if len(observed) == 0 {
		return nil
	}

	rows := stateorder.Analyze(observed)
	for i := range rows {
		rows[i].UUID = uuid
		rows[i].Site1, rows[i].Site2 = result.Site1, result.Site2
	}
	return rows
}

// defaultNetStatus mirrors dbrecorder.py's defaultvals table: the network
// status recorded for a verified/unverified URN when the orchestrator's
// own per-URN network-status detail isn't carried (our VerifyReport is a
// flat set of URNs, not the original's nested hasNetworkStatus tree).
func defaultNetStatus(action domain.Action, verified bool) string {
	if verified {
		return "activated"
	}
	switch action {
	case domain.ActionCreate:
		return "create-unverified"
	case domain.ActionCancel, domain.ActionCancelRep, domain.ActionCancelArch:
		return "cancel-unverified"
	case domain.ActionReprovision:
		return "reprovision-unverified"
	default:
		return "modify-unverified"
	}
}

// buildVerificationRows emits one Verification row per URN named in each
// phase's own Validation report, site-attributed via longest-prefix match
// against mappings. Every phase that ran afterCreateSuccess (create,
// reprovision, a successful modify) contributes its own rows - unlike a
// single Result-wide verification field, which would let a later phase's
// report clobber an earlier phase's, per spec.md §4.7.
func buildVerificationRows(uuid string, result *worker.Result, mappings map[string]string) []domain.Verification {
	var out []domain.Verification
	for _, action := range actionOrder {
		phase, ok := result.Phases[action]
		if !ok {
			continue
		}
		out = append(out, verificationRowsForPhase(uuid, result, phase, mappings)...)
	}
	return out
}

func verificationRowsForPhase(uuid string, result *worker.Result, phase *worker.PhaseResult, mappings map[string]string) []domain.Verification {
	var out []domain.Verification
	add := func(urns []string, verified bool) {
		for _, urn := range urns {
			site, ok := longestPrefixSite(urn, mappings)
			if !ok {
				continue
			}
			out = append(out, domain.Verification{
				UUID: uuid, Action: phase.Action,
				Site1: result.Site1, Site2: result.Site2,
				Site: site, URN: urn,
				NetStatus: defaultNetStatus(phase.Action, verified),
				Verified:  verified,
			})
		}
	}
	add(phase.Validation.AdditionVerified, true)
	add(phase.Validation.ReductionVerified, true)
	add(phase.Validation.AdditionUnverified, false)
	add(phase.Validation.ReductionUnverified, false)
	return out
}

// longestPrefixSite finds the mapping key with the longest match as a
// prefix of urn, mirroring dbrecorder.py::_recordIdentifySites's
// key.startswith(mapkey) scan, made deterministic by preferring the
// longest (most specific) key on ties.
func longestPrefixSite(urn string, mappings map[string]string) (string, bool) {
	var bestKey, bestSite string
	for key, site := range mappings {
		if len(key) == 0 || len(urn) < len(key) || urn[:len(key)] != key {
			continue
		}
		if len(key) > len(bestKey) {
			bestKey, bestSite = key, site
		}
	}
	return bestSite, bestKey != ""
}
