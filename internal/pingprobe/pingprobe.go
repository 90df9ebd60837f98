// Package pingprobe submits and monitors rapid-ping debug actions against
// the edge agent for every reachable host pair found in a freshly-created
// instance's manifest, satisfying the internal/worker.Pinger seam. It is
// grounded on original_source/siterm.py's SiteRMApi.
package pingprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oriys/pairtester/internal/config"
	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/edgeagent"
	"github.com/oriys/pairtester/internal/logging"
	"github.com/oriys/pairtester/internal/metrics"
)

const (
	defaultPacketSize = 56
	defaultInterval   = 5
	defaultDuration   = 60

	submitRetries    = 3
	submitRetryDelay = 10 * time.Second
	monitorPoll      = time.Second
)

// Prober is the Pinger implementation wired into internal/worker.
type Prober struct {
	client       edgeagent.Client
	timeout      time.Duration
	pollInterval time.Duration
	retryDelay   time.Duration
}

// New constructs a Prober. timeout bounds monitorping's wait for every
// submitted action to leave the new/active state; cfg.Timeouts.Ping.
func New(client edgeagent.Client, cfg *config.Config) *Prober {
	timeout := cfg.Timeouts.Ping
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Prober{client: client, timeout: timeout, pollInterval: monitorPoll, retryDelay: submitRetryDelay}
}

// pendingPing is one submitted-and-not-yet-resolved rapid-ping action.
type pendingPing struct {
	sitename string
	id       string
	req      edgeagent.PingRequest
	ipFrom   string
	ipTo     string
	port1    string
}

// RunPings submits a rapid-ping action between every pair of addressed
// endpoints in manifest and blocks until each resolves or the monitor
// timeout elapses, returning one domain.PingResult per resolved action.
func (p *Prober) RunPings(ctx context.Context, manifest json.RawMessage) ([]domain.PingResult, error) {
	hosts, allIPs, err := extractHosts(manifest)
	if err != nil {
		return nil, err
	}

	ipInterface := map[string]string{} // ip -> interface/vlan label

	// Ping targets per family: every host address plus every port address.
	targets := map[string][]string{}
	for family, ips := range allIPs {
		targets[family] = append(targets[family], ips...)
	}
	for _, host := range hosts {
		targets[host.Family] = append(targets[host.Family], host.IP)
	}

	var pending []pendingPing
	for _, host := range hosts {
		ipInterface[host.IP] = host.Interface

		for _, target := range targets[host.Family] {
			if target == host.IP {
				continue // never ping ourself
			}
			req := edgeagent.PingRequest{
				Hostname:   host.Hostname,
				Sitename:   host.Sitename,
				Type:       edgeagent.RapidPing,
				IP:         target,
				PacketSize: defaultPacketSize,
				Interval:   defaultInterval,
				Interface:  host.Interface,
				Time:       defaultDuration,
				OneTime:    true,
			}
			id, err := p.submitOrReuse(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("pingprobe: submit %s:%s -> %s: %w", host.Sitename, host.Hostname, target, err)
			}
			pending = append(pending, pendingPing{
				sitename: host.Sitename, id: id, req: req,
				ipFrom: host.IP, ipTo: target, port1: host.Hostname,
			})
		}
	}

	return p.monitor(ctx, pending, ipInterface)
}

// submitOrReuse finds a pre-existing new/active debug action whose request
// fields exactly match req (original_source/siterm.py::_sr_all_keys_match)
// before submitting a fresh one, retrying submission up to submitRetries
// times with submitRetryDelay between attempts.
func (p *Prober) submitOrReuse(ctx context.Context, req edgeagent.PingRequest) (string, error) {
	for _, state := range []edgeagent.DebugState{edgeagent.StateNew, edgeagent.StateActive} {
		actions, err := p.client.GetAllDebugHostname(ctx, req.Sitename, req.Hostname, state)
		if err != nil {
			logging.Op().Warn("pingprobe: get debug actions failed", "site", req.Sitename, "host", req.Hostname, "error", err)
			continue
		}
		for _, a := range actions {
			detail, err := p.client.GetDebug(ctx, req.Sitename, a.ID)
			if err != nil {
				continue
			}
			if detail.RequestDict == req {
				logging.Op().Info("pingprobe: reusing existing debug action", "site", req.Sitename, "id", a.ID)
				return a.ID, nil
			}
		}
	}

	var lastErr error
	for attempt := 0; attempt < submitRetries; attempt++ {
		id, ok, err := p.client.SubmitPing(ctx, req)
		if err == nil && ok {
			return id, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("edge agent rejected submission")
		}
		logging.Op().Warn("pingprobe: submit failed, retrying", "site", req.Sitename, "host", req.Hostname, "attempt", attempt+1, "error", lastErr)
		if attempt < submitRetries-1 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", submitRetries, lastErr)
}

// monitor polls every pending action once a second until it leaves the
// new/active state or the global timeout elapses, matching
// original_source/siterm.py::monitorping.
func (p *Prober) monitor(ctx context.Context, pending []pendingPing, ipInterface map[string]string) ([]domain.PingResult, error) {
	deadline := time.Now().Add(p.timeout)
	var results []domain.PingResult

	for len(pending) > 0 {
		var remaining []pendingPing
		timedOut := time.Now().After(deadline)

		for _, item := range pending {
			detail, err := p.client.GetDebug(ctx, item.sitename, item.id)
			if err != nil {
				logging.Op().Warn("pingprobe: get debug failed", "site", item.sitename, "id", item.id, "error", err)
				if timedOut {
					results = append(results, domain.PingResult{
						Port1: item.port1, IPFrom: item.ipFrom, IPTo: item.ipTo, Failed: true,
					})
					continue
				}
				remaining = append(remaining, item)
				continue
			}

			if detail.State != edgeagent.StateNew && detail.State != edgeagent.StateActive {
				results = append(results, p.resolve(item, detail, ipInterface))
				continue
			}
			if timedOut {
				logging.Op().Error("pingprobe: timeout waiting for ping to finish", "site", item.sitename, "id", item.id)
				results = append(results, domain.PingResult{
					Port1: item.port1, IPFrom: item.ipFrom, IPTo: item.ipTo, Failed: true,
				})
				continue
			}
			remaining = append(remaining, item)
		}
		pending = remaining
		if len(pending) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return results, ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
	return results, nil
}

func (p *Prober) resolve(item pendingPing, detail edgeagent.DebugDetail, ipInterface map[string]string) domain.PingResult {
	stats := parsePingStdout(detail.Stdout)
	vlanFrom, vlanTo := "any", "any"
	if v, ok := ipInterface[item.ipFrom]; ok {
		vlanFrom = v
	}
	if v, ok := ipInterface[item.ipTo]; ok {
		vlanTo = v
	}

	result := domain.PingResult{
		Port1:       item.port1,
		IPFrom:      item.ipFrom,
		IPTo:        item.ipTo,
		VlanFrom:    vlanFrom,
		VlanTo:      vlanTo,
		Failed:      stats.failed(),
		Transmitted: stats.Transmitted,
		Received:    stats.Received,
		PacketLoss:  stats.PacketLoss,
		RTTMin:      stats.RTTMin,
		RTTAvg:      stats.RTTAvg,
		RTTMax:      stats.RTTMax,
		RTTMdev:     stats.RTTMdev,
	}
	verdict := "ok"
	if result.Failed {
		verdict = "failed"
	}
	metrics.Global().RecordPing(verdict)
	return result
}
