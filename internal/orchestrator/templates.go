package orchestrator

import "strings"

// These SPARQL fragments are interpreted by the Orchestrator's manifest
// service; they are kept as opaque byte constants at this boundary per
// spec.md §9 and must never be reformatted.
const (
	// manifestPortSPARQL discovers the VLAN subnet port and label for one
	// instance's manifest_create query.
	manifestPortSPARQL = `SELECT DISTINCT  ?vlan_port  ?vlan  WHERE { ?subnet a mrs:SwitchingSubnet. ?subnet nml:hasBidirectionalPort ?vlan_port. ?vlan_port nml:hasLabel ?vlan_l. ?vlan_l nml:value ?vlan. }`

	// manifestHostSPARQL discovers host/port identity and network
	// addresses (ipv4/ipv6/mac) for one instance's manifest_create query.
	manifestHostSPARQL = `SELECT DISTINCT ?host_port ?ipv4 ?ipv6 ?mac WHERE { ?host_vlan_port nml:isAlias ?vlan_port. ?host_port nml:hasBidirectionalPort ?host_vlan_port. OPTIONAL {?host_vlan_port mrs:hasNetworkAddress  ?ipv4na. ?ipv4na mrs:type "ipv4-address". ?ipv4na mrs:value ?ipv4.} OPTIONAL {?host_vlan_port mrs:hasNetworkAddress  ?ipv6na. ?ipv6na mrs:type "ipv6-address". ?ipv6na mrs:value ?ipv6.} OPTIONAL {?host_vlan_port mrs:hasNetworkAddress  ?macana. ?macana mrs:type "mac-address". ?macana mrs:value ?mac.} FILTER NOT EXISTS {?sw_svc mrs:providesSubnet ?vlan_subnt. ?vlan_subnt nml:hasBidirectionalPort ?host_vlan_port.} }`

	// manifestHostExtSPARQL is the "-ext" variant used when the primary
	// host query yields no rtmon-named port.
	manifestHostExtSPARQL = `SELECT DISTINCT ?host_name ?host_port_name  WHERE {?host a nml:Node. ?host nml:hasBidirectionalPort ?host_port. OPTIONAL {?host nml:name ?host_name.} OPTIONAL {?host_port mrs:hasNetworkAddress ?na_pn. ?na_pn mrs:type "sense-rtmon:name". ?na_pn mrs:value ?host_port_name.} }`

	// manifestTerminalExtSPARQL discovers per-terminal site/peer/address
	// detail, unioned across Node- and Topology-rooted graphs.
	manifestTerminalExtSPARQL = `SELECT DISTINCT ?terminal ?port_name ?node_name ?peer ?site ?port_mac ?port_ipv4 ?port_ipv6 WHERE { { ?node a nml:Node. ?node nml:name ?node_name. ?node nml:hasBidirectionalPort ?terminal. ?terminal nml:hasBidirectionalPort ?vlan_port. OPTIONAL { ?terminal mrs:hasNetworkAddress ?na_pn. ?na_pn mrs:type "sense-rtmon:name". ?na_pn mrs:value ?port_name. } OPTIONAL { ?terminal nml:isAlias ?peer. } OPTIONAL { ?site nml:hasNode ?node. } OPTIONAL { ?site nml:hasTopology ?sub_site. ?sub_site nml:hasNode ?node. } OPTIONAL { ?terminal mrs:hasNetworkAddress ?naportmac. ?naportmac mrs:type "mac-address". ?naportmac mrs:value ?port_mac. } OPTIONAL { ?vlan_port mrs:hasNetworkAddress ?ipv4na. ?ipv4na mrs:type "ipv4-address". ?ipv4na mrs:value ?port_ipv4. } OPTIONAL { ?vlan_port mrs:hasNetworkAddress ?ipv6na. ?ipv6na mrs:type "ipv6-address". ?ipv6na mrs:value ?port_ipv6. } } UNION { ?site a nml:Topology. ?site nml:name ?node_name. ?site nml:hasBidirectionalPort ?terminal. ?terminal nml:hasBidirectionalPort ?vlan_port. OPTIONAL { ?terminal mrs:hasNetworkAddress ?na_pn. ?na_pn mrs:type "sense-rtmon:name". ?na_pn mrs:value ?port_name. } OPTIONAL { ?terminal nml:isAlias ?peer. } OPTIONAL { ?terminal mrs:hasNetworkAddress ?naportmac. ?naportmac mrs:type "mac-address". ?naportmac mrs:value ?port_mac. } OPTIONAL { ?vlan_port mrs:hasNetworkAddress ?ipv4na. ?ipv4na mrs:type "ipv4-address". ?ipv4na mrs:value ?port_ipv4. } OPTIONAL { ?vlan_port mrs:hasNetworkAddress ?ipv6na. ?ipv6na mrs:type "ipv6-address". ?ipv6na mrs:value ?port_ipv6. } } }`

	// domainPortsSPARQL enumerates every bidirectional port URI under one
	// domain URI (REPLACEME), used by the dynamic-entries enumerator
	// (internal/enumerator).
	domainPortsSPARQL = `SELECT ?port   WHERE { <REPLACEME> nml:hasBidirectionalPort ?port.  }`
)

// ManifestTemplate builds the manifest_create request body for one
// instance's vlan-port/host discovery query.
func ManifestTemplate() map[string]any {
	return map[string]any{
		"All Endpoint Ports": []any{
			map[string]any{
				"URI":      "?vlan_port?",
				"sparql":   manifestPortSPARQL,
				"required": "true",
				"siblings": []any{
					map[string]any{
						"URI":        "?host_port?",
						"sparql":     manifestHostSPARQL,
						"sparql-ext": manifestHostExtSPARQL,
						"required":   "false",
					},
				},
				"sparql-ext": manifestTerminalExtSPARQL,
			},
		},
	}
}

// DomainPortsTemplate builds the manifest_create request body that lists
// every port URI beneath domainURI, used by dynamic endpoint enumeration.
func DomainPortsTemplate(domainURI string) map[string]any {
	sparql := strings.Replace(domainPortsSPARQL, "REPLACEME", domainURI, 1)
	return map[string]any{
		"All Endpoint Ports": []any{
			map[string]any{
				"URI":        "?port?",
				"sparql-ext": sparql,
				"required":   "true",
			},
		},
	}
}
