package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oriys/pairtester/internal/config"
	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/orchestrator"
)

// Create drives the §4.2 "create" phase driver: attempt each template in
// createTemplateSet in order, falling back from guaranteedCapped to
// bestEffort on a path-finding failure. On terminal success it fetches the
// manifest and validation report and (unless ignoreping) runs pings.
func (d *Driver) Create(ctx context.Context, urnA, urnB, vlan string, r *Result) *PhaseResult {
	start := time.Now()
	phase := &PhaseResult{Action: domain.ActionCreate}
	r.Phases[domain.ActionCreate] = phase

	names, err := createTemplateSet(d.cfg.SubmissionTmpl)
	if err != nil {
		phase.Error = err.Error()
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, domain.ActionCreate, start, false, "NOTOK", phase.Error, 0)
		return phase
	}

	for _, name := range names {
		intent, err := intentTemplate(name)
		if err != nil {
			phase.Error = err.Error()
			break
		}
		if err := fillTerminals(intent, urnA, urnB, vlan, name, d.cfg); err != nil {
			phase.Error = err.Error()
			break
		}
		intent["alias"] = pairAlias(urnA, urnB, vlan, time.Now())

		siUUID, createErr := d.attemptCreate(ctx, intent, phase)
		if createErr == nil {
			r.SiUUID = siUUID
			r.RequestType = domain.RequestType(name)
			d.origRequest = intent
			d.origReqType = name
			phase.FinalState = "OK"
			d.afterCreateSuccess(ctx, r, phase, siUUID)
			d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, domain.ActionCreate, start, true, "OK", "", 0)
			return phase
		}

		if orchestrator.KindOf(createErr) == orchestrator.PathInfeasible && name == "guaranteedCapped" {
			if siUUID != "" {
				_ = d.client.InstanceDelete(ctx, siUUID)
			}
			continue // retry with bestEffort
		}

		phase.Error = createErr.Error()
		// pathfindissue reflects only the last attempted template, per
		// tester.py::create / dbrecorder.py::identifyPathFindIssue: an
		// earlier fallback's pathfind error is not persisted once a later
		// template is attempted.
		r.PathfindIssue = orchestrator.KindOf(createErr) == orchestrator.PathInfeasible
		break
	}

	d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, domain.ActionCreate, start, false, "NOTOK", phase.Error, 0)
	return phase
}

// attemptCreate performs one template's instance_new/instance_create/
// instance_operate("provision")/poll sequence, returning the si_uuid even
// on failure so the caller can clean up a path-failed instance.
func (d *Driver) attemptCreate(ctx context.Context, intent map[string]any, phase *PhaseResult) (string, error) {
	ctx, end := startSpan(ctx, "orchestrator.create")
	defer func() { end(nil) }()

	var siUUID string
	err := d.guardedCall("create", func() error {
		body, err := json.Marshal(intent)
		if err != nil {
			return fmt.Errorf("marshal intent: %w", err)
		}
		uuid, err := d.client.InstanceCreate(ctx, body)
		if err != nil {
			return orchestrator.TagFromMessage(err)
		}
		siUUID = uuid
		return d.client.InstanceOperate(ctx, orchestrator.OpProvision, siUUID, true, false, false)
	})
	if err != nil {
		return siUUID, err
	}

	result, err := d.pollUntil(ctx, siUUID, d.cfg.Timeouts.Create, func(s orchestrator.Status) (bool, bool) {
		if s.State == "CREATE - READY" && s.ConfigState == "STABLE" {
			return true, true
		}
		if s.State == "CREATE - FAILED" {
			return true, false
		}
		return false, false
	})
	phase.Timings = append(phase.Timings, result.timings...)
	if err != nil {
		return siUUID, err
	}
	if result.timedOut {
		phase.TimedOut = true
		return siUUID, fmt.Errorf("Create timeout after %s for %s", d.cfg.Timeouts.Create, siUUID)
	}
	if result.last.State == "CREATE - FAILED" {
		return siUUID, fmt.Errorf("CREATE - FAILED for %s", siUUID)
	}
	return siUUID, nil
}

// afterCreateSuccess fetches the manifest and validation report, then
// (unless ignoreping) collects pings, matching _setFinalStats +
// siterm.testPing. Both are recorded on phase, not r, so a later phase's
// call doesn't clobber an earlier phase's verification report.
func (d *Driver) afterCreateSuccess(ctx context.Context, r *Result, phase *PhaseResult, siUUID string) {
	manifest, err := d.fetchManifestWithRetry(ctx, siUUID)
	if err != nil {
		phase.ManifestError = err.Error()
	} else {
		phase.Manifest = manifest
	}

	report, err := d.client.InstanceVerify(ctx, siUUID)
	if err != nil {
		phase.ValidationError = err.Error()
	} else {
		phase.Validation = report
	}

	if d.cfg.IgnorePing || d.pinger == nil || phase.Manifest == nil {
		return
	}
	pings, err := d.pinger.RunPings(ctx, phase.Manifest)
	if err != nil {
		phase.Error = appendErr(phase.Error, "ping: "+err.Error())
		return
	}
	for i := range pings {
		pings[i].UUID = siUUID
		pings[i].Action = phase.Action
		pings[i].Site1, pings[i].Site2 = r.Site1, r.Site2
		if pings[i].Port1 == "" {
			pings[i].Port1 = shortURN(r.URNA)
		}
		if pings[i].Port2 == "" {
			pings[i].Port2 = shortURN(r.URNB)
		}
	}
	r.PingResults = append(r.PingResults, pings...)
}

// fetchManifestWithRetry retries manifest_create up to httpretries.retries
// times with httpretries.timeout sleep between attempts.
func (d *Driver) fetchManifestWithRetry(ctx context.Context, siUUID string) (json.RawMessage, error) {
	tmpl := orchestrator.ManifestTemplate()
	body, err := json.Marshal(tmpl)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest template: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= d.cfg.HTTPRetries.Retries; attempt++ {
		resp, err := d.client.ManifestCreate(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt < d.cfg.HTTPRetries.Retries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.cfg.HTTPRetries.Timeout):
			}
		}
	}
	return nil, fmt.Errorf("manifest fetch failed after %d retries: %w", d.cfg.HTTPRetries.Retries, lastErr)
}

// Cancel drives the §4.2 "cancel"/"cancelrep"/"cancelarch" phase driver.
// action distinguishes the caller's intent for post-cancel disposition:
// at most one of delete/archive may be true.
func (d *Driver) Cancel(ctx context.Context, r *Result, action domain.Action, siUUID string, delete, archive bool) *PhaseResult {
	start := time.Now()
	phase := &PhaseResult{Action: action, SiUUID: siUUID}
	r.Phases[action] = phase

	if delete && archive {
		phase.Error = "cancel: delete and archive requested simultaneously"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, "NOTOK", phase.Error, 0)
		return phase
	}

	status, err := d.client.InstanceGetStatus(ctx, siUUID, false)
	if err != nil {
		phase.Error = err.Error()
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}
	if !hasAnySubstring(status.State, "CREATE", "REINSTATE", "MODIFY") {
		phase.Error = fmt.Sprintf("cannot cancel an instance in %q status", status.State)
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}

	force := !hasAnySubstring(status.State, "READY")
	err = d.guardedCall("cancel", func() error {
		return d.client.InstanceOperate(ctx, orchestrator.OpCancel, siUUID, false, false, force)
	})
	if err != nil {
		phase.Error = err.Error()
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}

	result, err := d.pollUntil(ctx, siUUID, d.cfg.Timeouts.Cancel, func(s orchestrator.Status) (bool, bool) {
		if s.State == "CANCEL - READY" && s.ConfigState == "STABLE" {
			return true, true
		}
		if s.State == "CANCEL - FAILED" {
			return true, false
		}
		return false, false
	})
	phase.Timings = append(phase.Timings, result.timings...)
	if err != nil {
		phase.Error = err.Error()
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}
	if result.timedOut {
		phase.TimedOut = true
		phase.FinalState = "NOTOK"
		phase.Error = fmt.Sprintf("cancel timeout after %s for %s", d.cfg.Timeouts.Cancel, siUUID)
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}

	terminal := result.last.State == "CANCEL - READY" && result.last.ConfigState == "STABLE"
	switch {
	case !terminal && archive:
		phase.FinalState = "NOTOKARCHIVE"
	case !terminal:
		phase.FinalState = "NOTOKDELETE"
	case delete:
		phase.FinalState = "OK"
		_ = d.client.InstanceDelete(ctx, siUUID)
	case archive:
		phase.FinalState = "OKARCHIVE"
		_ = d.client.InstanceArchive(ctx, siUUID)
	default:
		phase.FinalState = "OK"
	}

	d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, terminal, phase.FinalState, phase.Error, 0)
	return phase
}

// Reprovision drives the §4.2 "reprovision" phase driver.
func (d *Driver) Reprovision(ctx context.Context, r *Result, siUUID string) *PhaseResult {
	start := time.Now()
	phase := &PhaseResult{Action: domain.ActionReprovision, SiUUID: siUUID}
	r.Phases[domain.ActionReprovision] = phase

	status, err := d.client.InstanceGetStatus(ctx, siUUID, false)
	if err != nil {
		phase.Error = err.Error()
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, domain.ActionReprovision, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}
	if !hasAnySubstring(status.State, "CANCEL") {
		phase.Error = fmt.Sprintf("cannot reprovision an instance in %q status", status.State)
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, domain.ActionReprovision, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}

	err = d.guardedCall("reprovision", func() error {
		return d.client.InstanceOperate(ctx, orchestrator.OpReprovision, siUUID, false, true, false)
	})
	if err != nil {
		phase.Error = err.Error()
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, domain.ActionReprovision, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}

	result, err := d.pollUntil(ctx, siUUID, d.cfg.Timeouts.Reprovision, func(s orchestrator.Status) (bool, bool) {
		if s.State == "REINSTATE - READY" && s.ConfigState == "STABLE" {
			return true, true
		}
		if s.State == "REINSTATE - FAILED" {
			return true, false
		}
		return false, false
	})
	phase.Timings = append(phase.Timings, result.timings...)
	if err != nil || result.timedOut || !(result.last.State == "REINSTATE - READY" && result.last.ConfigState == "STABLE") {
		phase.FinalState = "NOTOK"
		if err != nil {
			phase.Error = err.Error()
		} else if result.timedOut {
			phase.TimedOut = true
			phase.Error = fmt.Sprintf("reprovision timeout after %s for %s", d.cfg.Timeouts.Reprovision, siUUID)
		} else {
			phase.Error = "reprovision did not reach REINSTATE - READY/STABLE"
		}
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, domain.ActionReprovision, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}

	phase.FinalState = "OK"
	d.afterCreateSuccess(ctx, r, phase, siUUID)
	d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, domain.ActionReprovision, start, true, "OK", "", 0)
	return phase
}

// modifyAction names the bandwidth-capacity mutation applied by one modify
// call: "division" halves capacity, "multiply" doubles it.
type modifyAction string

const (
	modifyDivision modifyAction = "division"
	modifyMultiply modifyAction = "multiply"
)

// Modify drives the §4.2 "modify"/"modifycreate" phase driver. Only
// guaranteedCapped intents are eligible for bandwidth modification; an
// ineligible intent short-circuits as a soft "OK, nothing to modify"
// (spec.md Open Question, resolved in DESIGN.md).
func (d *Driver) Modify(ctx context.Context, r *Result, action domain.Action, siUUID string, mod modifyAction) *PhaseResult {
	start := time.Now()
	phase := &PhaseResult{Action: action, SiUUID: siUUID}
	r.Phases[action] = phase

	status, err := d.client.InstanceGetStatus(ctx, siUUID, false)
	if err != nil {
		phase.Error = err.Error()
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}
	if !hasAnySubstring(status.State, "CREATE", "REINSTATE", "MODIFY") {
		phase.Error = fmt.Sprintf("cannot modify an instance in %q status", status.State)
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}

	capacity, qos, err := bandwidthCapacity(d.origRequest)
	if err != nil || qos != "guaranteedCapped" {
		phase.FinalState = "OK"
		phase.Error = ""
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, true, "OK", "", 0)
		return phase
	}

	cloned, err := cloneIntent(d.origRequest)
	if err != nil {
		phase.Error = err.Error()
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}
	switch mod {
	case modifyDivision:
		setBandwidthCapacity(cloned, capacity/2)
	case modifyMultiply:
		setBandwidthCapacity(cloned, capacity*2)
	}

	err = d.guardedCall("modify", func() error {
		body, err := json.Marshal(cloned)
		if err != nil {
			return err
		}
		return d.client.InstanceModify(ctx, body, siUUID)
	})
	if err != nil {
		phase.Error = err.Error()
		phase.FinalState = "NOTOK"
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}

	result, err := d.pollUntil(ctx, siUUID, d.cfg.Timeouts.Modify, func(s orchestrator.Status) (bool, bool) {
		if s.State == "MODIFY - READY" && s.ConfigState == "STABLE" {
			return true, true
		}
		if s.State == "MODIFY - FAILED" {
			return true, false
		}
		return false, false
	})
	phase.Timings = append(phase.Timings, result.timings...)

	terminal := err == nil && !result.timedOut && result.last.State == "MODIFY - READY" && result.last.ConfigState == "STABLE"
	if !terminal {
		phase.FinalState = "NOTOK"
		switch {
		case err != nil:
			phase.Error = err.Error()
		case result.timedOut:
			phase.TimedOut = true
			phase.Error = fmt.Sprintf("modify timeout after %s for %s", d.cfg.Timeouts.Modify, siUUID)
		default:
			phase.Error = "modify did not reach MODIFY - READY/STABLE"
		}
		d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, false, phase.FinalState, phase.Error, 0)
		return phase
	}

	d.origRequest = cloned
	phase.FinalState = "OK"
	d.afterCreateSuccess(ctx, r, phase, siUUID)
	d.logPhase(r.URNA+"-"+r.URNB+"-"+r.Vlan, action, start, true, "OK", "", 0)
	return phase
}

func cloneIntent(intent map[string]any) (map[string]any, error) {
	data, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("clone intent: %w", err)
	}
	var clone map[string]any
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("clone intent: %w", err)
	}
	return clone, nil
}

func appendErr(existing, add string) string {
	if existing == "" {
		return add
	}
	return existing + "; " + add
}

// fillTerminals substitutes the per-pair URIs, VLAN tag, and (for
// l3_request) IPv6 prefixes into intent's two connection-0 terminals.
func fillTerminals(intent map[string]any, urnA, urnB, vlan, templateName string, cfg *config.Config) error {
	term, err := terminals(intent)
	if err != nil {
		return err
	}

	t0, _ := term[0].(map[string]any)
	t1, _ := term[1].(map[string]any)
	if templateName != "l3_request" {
		t0["vlan_tag"], t1["vlan_tag"] = vlan, vlan
	}
	t0["uri"], t1["uri"] = urnA, urnB

	if templateName == "l3_request" {
		prefixA, err := ipv6Prefix(cfg, urnA)
		if err != nil {
			return err
		}
		prefixB, err := ipv6Prefix(cfg, urnB)
		if err != nil {
			return err
		}
		t0["ipv6_prefix_list"] = prefixA
		t1["ipv6_prefix_list"] = prefixB
	}
	return nil
}

// ipv6Prefix resolves the configured IPv6 prefix for an L3 entry, mirroring
// original_source/tester.py::_getIPRange.
func ipv6Prefix(cfg *config.Config, urn string) (string, error) {
	for _, e := range cfg.Entries {
		if e.URN == urn {
			if e.IPv6Prefix == "" {
				return "", fmt.Errorf("no ipv6 prefix configured for %s", urn)
			}
			return e.IPv6Prefix, nil
		}
	}
	return "", fmt.Errorf("no entry found for %s to resolve ipv6 prefix", urn)
}
