// Package worker is the core pair-test orchestration engine: a parallel
// worker pool that drives one endpoint pair through a full Orchestrator
// lifecycle (create, optional modify/reprovision, cancel) per spec.md §4.2.
package worker

import (
	"encoding/json"
	"fmt"
)

// intentTemplate returns a deep, independently-mutable copy of the named
// request body (guaranteedCapped, bestEffort, nettest, l3_request), matching
// the shape of original_source/tester.py's module-level `requests`/
// `net_request`/`l3_request` dicts. JSON round-tripping gives us the
// "copy.deepcopy" semantics the Python worker relies on before mutating
// per-pair fields.
func intentTemplate(name string) (map[string]any, error) {
	var raw map[string]any
	switch name {
	case "guaranteedCapped":
		raw = guaranteedCappedTemplate
	case "bestEffort":
		raw = bestEffortTemplate
	case "nettest":
		raw = nettestTemplate
	case "l3_request":
		raw = l3RequestTemplate
	default:
		return nil, fmt.Errorf("worker: unknown intent template %q", name)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("worker: marshal template %q: %w", name, err)
	}
	var clone map[string]any
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("worker: clone template %q: %w", name, err)
	}
	return clone, nil
}

// createTemplateSet returns the ordered template names (each also the
// recorded reqtype) attempted by the create phase driver, per spec.md §4.2: guaranteedCapped
// then bestEffort by default, or the single nettest/l3_request template
// when configured.
func createTemplateSet(submissionTmpl string) ([]string, error) {
	switch submissionTmpl {
	case "nettest":
		return []string{"nettest"}, nil
	case "l3_request":
		return []string{"l3_request"}, nil
	case "", "guaranteedCapped":
		return []string{"guaranteedCapped", "bestEffort"}, nil
	default:
		return nil, fmt.Errorf("worker: unknown submissiontemplate %q", submissionTmpl)
	}
}

var guaranteedCappedTemplate = map[string]any{
	"service": "dnc",
	"alias":   "REPLACEME",
	"data": map[string]any{
		"type": "Multi-Path P2P VLAN",
		"connections": []any{
			map[string]any{
				"bandwidth": map[string]any{"qos_class": "guaranteedCapped", "capacity": "2000"},
				"name":      "Connection 1",
				"ip_address_pool": map[string]any{
					"netmask": "/64",
					"name":    "AutoGOLE-Test-IPv6-Pool",
				},
				"terminals": []any{
					map[string]any{"vlan_tag": "REPLACEME", "assign_ip": true, "uri": "REPLACEME"},
					map[string]any{"vlan_tag": "REPLACEME", "assign_ip": true, "uri": "REPLACEME"},
				},
				"assign_debug_ip": true,
			},
		},
	},
}

var bestEffortTemplate = map[string]any{
	"service": "dnc",
	"alias":   "REPLACEME",
	"data": map[string]any{
		"type": "Multi-Path P2P VLAN",
		"connections": []any{
			map[string]any{
				"bandwidth": map[string]any{"qos_class": "bestEffort"},
				"name":      "Connection 1",
				"ip_address_pool": map[string]any{
					"netmask": "/64",
					"name":    "AutoGOLE-Test-IPv6-Pool",
				},
				"terminals": []any{
					map[string]any{"vlan_tag": "REPLACEME", "assign_ip": true, "uri": "REPLACEME"},
					map[string]any{"vlan_tag": "REPLACEME", "assign_ip": true, "uri": "REPLACEME"},
				},
				"assign_debug_ip": true,
			},
		},
	},
}

var nettestTemplate = map[string]any{
	"service": "dnc",
	"alias":   "REPLACEME",
	"data": map[string]any{
		"type": "Multi-Path P2P VLAN",
		"connections": []any{
			map[string]any{
				"bandwidth": map[string]any{"qos_class": "guaranteedCapped", "capacity": "2000"},
				"name":      "Connection 1",
				"terminals": []any{
					map[string]any{"vlan_tag": "REPLACEME", "assign_ip": false, "uri": "REPLACEME"},
					map[string]any{"vlan_tag": "REPLACEME", "assign_ip": false, "uri": "REPLACEME"},
				},
				"assign_debug_ip": false,
			},
		},
	},
}

var l3RequestTemplate = map[string]any{
	"service": "dnc",
	"alias":   "REPLACEME",
	"data": map[string]any{
		"type": "Site-L3 over P2P VLAN",
		"connections": []any{
			map[string]any{
				"bandwidth": map[string]any{"qos_class": "guaranteedCapped", "capacity": "2000"},
				"name":      "Connection 1",
				"ip_address_pool": map[string]any{
					"netmask": "/64",
					"name":    "RUCIO-BGP-P2P-Slash64-Pool",
				},
				"terminals": []any{
					map[string]any{"vlan_tag": "any", "assign_ip": true, "ipv6_prefix_list": "REPLACEME", "uri": "REPLACEME"},
					map[string]any{"vlan_tag": "any", "assign_ip": true, "ipv6_prefix_list": "REPLACEME", "uri": "REPLACEME"},
				},
			},
		},
	},
}

// terminals returns the first and second connection-0 terminal maps inside
// an intent body, the two slots every template mutates per-pair.
func terminals(intent map[string]any) ([]any, error) {
	data, ok := intent["data"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("worker: intent missing data object")
	}
	conns, ok := data["connections"].([]any)
	if !ok || len(conns) == 0 {
		return nil, fmt.Errorf("worker: intent missing connections")
	}
	conn0, ok := conns[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("worker: intent connection 0 malformed")
	}
	term, ok := conn0["terminals"].([]any)
	if !ok || len(term) != 2 {
		return nil, fmt.Errorf("worker: intent expected 2 terminals")
	}
	return term, nil
}

// bandwidthCapacity reads connections[0].bandwidth.capacity as an int.
func bandwidthCapacity(intent map[string]any) (int, string, error) {
	data, _ := intent["data"].(map[string]any)
	conns, _ := data["connections"].([]any)
	if len(conns) == 0 {
		return 0, "", fmt.Errorf("worker: intent missing connections")
	}
	conn0, _ := conns[0].(map[string]any)
	bw, _ := conn0["bandwidth"].(map[string]any)
	qos, _ := bw["qos_class"].(string)
	capStr, _ := bw["capacity"].(string)
	if capStr == "" {
		return 0, qos, fmt.Errorf("worker: intent missing bandwidth.capacity")
	}
	var n int
	if _, err := fmt.Sscanf(capStr, "%d", &n); err != nil {
		return 0, qos, fmt.Errorf("worker: parse bandwidth.capacity %q: %w", capStr, err)
	}
	return n, qos, nil
}

func setBandwidthCapacity(intent map[string]any, n int) {
	data, _ := intent["data"].(map[string]any)
	conns, _ := data["connections"].([]any)
	conn0, _ := conns[0].(map[string]any)
	bw, _ := conn0["bandwidth"].(map[string]any)
	bw["capacity"] = fmt.Sprintf("%d", n)
}
