package pingprobe

import (
	"encoding/json"
	"fmt"
	"strings"
)

// manifestDoc is the "Ports" document returned by
// internal/orchestrator.Client.ManifestCreate, per
// original_source/tester.py's _getManifest template.
type manifestDoc struct {
	Ports []manifestPort `json:"Ports"`
}

type manifestPort struct {
	Vlan string         `json:"Vlan"`
	IPv4 string         `json:"IPv4"`
	IPv6 string         `json:"IPv6"`
	Host []manifestHost `json:"Host"`
}

type manifestHost struct {
	Name      string `json:"Name"`
	Interface string `json:"Interface"`
	IPv4      string `json:"IPv4"`
	IPv6      string `json:"IPv6"`
}

// endpointHost is one testable endpoint extracted from a manifest: a host
// reachable at ip, identified by the sitename:hostname pair its manifest
// Name carries, labeled with the interface or VLAN it rides.
type endpointHost struct {
	Sitename  string
	Hostname  string
	Family    string // "IPv4" or "IPv6"
	IP        string
	Interface string
}

var placeholders = map[string]bool{
	"":            true,
	"?ipv4?":      true,
	"?port_ipv4?": true,
	"?ipv6?":      true,
	"?port_ipv6?": true,
}

func isSet(v string) bool {
	return !placeholders[v]
}

// extractHosts walks a manifest's Ports/Host tree, matching
// original_source/siterm.py::_sr_get_all_hosts: it collects every addressed
// host endpoint and, separately, every address seen on the circuit's ports
// themselves; RunPings uses both sets as ping targets.
func extractHosts(manifest []byte) ([]endpointHost, map[string][]string, error) {
	var doc manifestDoc
	if err := json.Unmarshal(manifest, &doc); err != nil {
		return nil, nil, fmt.Errorf("pingprobe: parse manifest: %w", err)
	}

	allIPs := map[string][]string{}
	var hosts []endpointHost

	for _, port := range doc.Ports {
		for _, family := range []struct {
			key string
			val string
		}{{"IPv4", port.IPv4}, {"IPv6", port.IPv6}} {
			if isSet(family.val) {
				ip := strings.SplitN(family.val, "/", 2)[0]
				allIPs[family.key] = append(allIPs[family.key], ip)
			}
		}

		for _, h := range port.Host {
			iface := h.Interface
			if port.Vlan != "" {
				iface = "vlan." + port.Vlan
			}
			parts := strings.SplitN(h.Name, ":", 2)
			if len(parts) != 2 {
				continue
			}
			for _, family := range []struct {
				key string
				val string
			}{{"IPv4", h.IPv4}, {"IPv6", h.IPv6}} {
				if !isSet(family.val) {
					continue
				}
				hosts = append(hosts, endpointHost{
					Sitename:  parts[0],
					Hostname:  parts[1],
					Family:    family.key,
					IP:        strings.SplitN(family.val, "/", 2)[0],
					Interface: iface,
				})
			}
		}
	}
	return hosts, allIPs, nil
}
