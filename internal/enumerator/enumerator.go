// Package enumerator produces the work queue for one scheduling round: the
// cross product of candidate endpoint pairs and VLAN labels described in
// spec.md §4.1.
package enumerator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/oriys/pairtester/internal/config"
	"github.com/oriys/pairtester/internal/domain"
	"github.com/oriys/pairtester/internal/orchestrator"
)

// ErrBothSourcesSet is returned when a configuration sets both a static
// entries table and entriesdynamic.
var ErrBothSourcesSet = errors.New("enumerator: entries and entriesdynamic are mutually exclusive")

// ErrVlansWithoutAnchor is returned when vlans is set without both entries
// and vlansto.
var ErrVlansWithoutAnchor = errors.New("enumerator: vlans requires entries and vlansto")

// Triple is one (urn_a, urn_b, vlan) unit of work.
type Triple struct {
	URNA string
	URNB string
	Vlan string
}

// Pair derives the dedup-stem Pair for this triple.
func (t Triple) Pair() domain.Pair {
	return domain.Pair{Port1: t.URNA, Port2: t.URNB, Vlan: t.Vlan}
}

// DomainPortFetcher resolves the set of endpoint URNs under a domain URI,
// implemented against orchestrator.Client's ManifestCreate in production.
type DomainPortFetcher interface {
	FetchDomainPorts(ctx context.Context, domainURI string) ([]string, error)
}

// orchestratorPortFetcher adapts an orchestrator.Client to DomainPortFetcher
// using the domain-ports-by-URI SPARQL template.
type orchestratorPortFetcher struct {
	client orchestrator.Client
}

// NewOrchestratorPortFetcher wraps client for dynamic entry enumeration.
func NewOrchestratorPortFetcher(client orchestrator.Client) DomainPortFetcher {
	return &orchestratorPortFetcher{client: client}
}

func (f *orchestratorPortFetcher) FetchDomainPorts(ctx context.Context, domainURI string) ([]string, error) {
	tmpl := orchestrator.DomainPortsTemplate(domainURI)
	body, err := json.Marshal(tmpl)
	if err != nil {
		return nil, fmt.Errorf("enumerator: marshal domain ports template: %w", err)
	}

	resp, err := f.client.ManifestCreate(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("enumerator: fetch domain ports: %w", err)
	}

	var parsed struct {
		Port []string `json:"port"`
	}
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return nil, fmt.Errorf("enumerator: parse domain ports response: %w", err)
	}
	return parsed.Port, nil
}

// Enumerate implements the §4.1 algorithm: resolve entries (static or
// dynamic), filter, cross with vlansto or take 2-combinations, shuffle and
// truncate to maxpairs, then expand each surviving pair across the parsed
// vlan ranges.
func Enumerate(ctx context.Context, cfg *config.Config, fetcher DomainPortFetcher) ([]Triple, error) {
	if len(cfg.Entries) > 0 && cfg.EntriesDynamic {
		return nil, ErrBothSourcesSet
	}
	if len(cfg.Vlans) > 0 && (len(cfg.Entries) == 0 || len(cfg.VlansTo) == 0) {
		return nil, ErrVlansWithoutAnchor
	}

	entries, err := resolveEntries(ctx, cfg, fetcher)
	if err != nil {
		return nil, err
	}
	entries = applyFilter(entries, cfg.Filter)

	if cfg.SubmissionTmpl == "l3_request" {
		for _, e := range entries {
			if e.IPv6Prefix == "" {
				return nil, fmt.Errorf("enumerator: l3_request entry %q missing ipv6_prefix", e.URN)
			}
		}
	}

	var pairs [][2]string
	if len(cfg.VlansTo) > 0 {
		for _, anchor := range cfg.VlansTo {
			for _, e := range entries {
				if anchor == e.URN {
					continue
				}
				pairs = append(pairs, [2]string{anchor, e.URN})
			}
		}
	} else {
		for i := 0; i < len(entries); i++ {
			for j := i + 1; j < len(entries); j++ {
				pairs = append(pairs, [2]string{entries[i].URN, entries[j].URN})
			}
		}
	}

	rand.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })

	maxPairs := cfg.MaxPairs
	if maxPairs <= 0 {
		maxPairs = 100
	}
	if len(pairs) > maxPairs {
		pairs = pairs[:maxPairs]
	}

	vlans, err := parseVlanRanges(cfg.Vlans)
	if err != nil {
		return nil, err
	}

	var out []Triple
	for _, p := range pairs {
		for _, v := range vlans {
			out = append(out, Triple{URNA: p[0], URNB: p[1], Vlan: v})
		}
	}
	return out, nil
}

// EntrySites resolves the same entry set Enumerate works from (static or
// dynamic) into a URN->site map, for attributing Site1/Site2 to each
// triple before it reaches the worker queue. Dynamic entries all carry
// cfg.EntriesSitename per resolveEntries, so a single domain lookup still
// yields a usable map.
func EntrySites(ctx context.Context, cfg *config.Config, fetcher DomainPortFetcher) (map[string]string, error) {
	entries, err := resolveEntries(ctx, cfg, fetcher)
	if err != nil {
		return nil, err
	}
	sites := make(map[string]string, len(entries))
	for _, e := range entries {
		sites[e.URN] = e.Site
	}
	return sites, nil
}

func resolveEntries(ctx context.Context, cfg *config.Config, fetcher DomainPortFetcher) ([]config.EntryConfig, error) {
	var static []config.EntryConfig
	for _, e := range cfg.Entries {
		if e.Disabled {
			continue
		}
		static = append(static, e)
	}
	if len(static) > 0 {
		return static, nil
	}
	if !cfg.EntriesDynamic {
		return static, nil
	}

	if fetcher == nil {
		return nil, errors.New("enumerator: entriesdynamic set but no DomainPortFetcher configured")
	}
	urns, err := fetcher.FetchDomainPorts(ctx, cfg.EntriesSitename)
	if err != nil {
		return nil, err
	}

	dynamic := make([]config.EntryConfig, 0, len(urns))
	for _, urn := range urns {
		dynamic = append(dynamic, config.EntryConfig{URN: urn, Site: cfg.EntriesSitename})
	}
	return dynamic, nil
}

func applyFilter(entries []config.EntryConfig, filter config.FilterConfig) []config.EntryConfig {
	if len(filter.Include) == 0 && len(filter.Exclude) == 0 {
		return entries
	}

	out := make([]config.EntryConfig, 0, len(entries))
	for _, e := range entries {
		if len(filter.Include) > 0 && !containsAny(e.URN, filter.Include) {
			continue
		}
		if containsAny(e.URN, filter.Exclude) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func containsAny(urn string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(urn, n) {
			return true
		}
	}
	return false
}

// parseVlanRanges parses the vlans configuration list: each entry is either
// a bare number ("100") or an inclusive range ("100-110"). An empty list
// yields the single literal "any".
func parseVlanRanges(ranges []string) ([]string, error) {
	if len(ranges) == 0 {
		return []string{"any"}, nil
	}

	var out []string
	seen := map[string]bool{}
	for _, r := range ranges {
		r = strings.TrimSpace(r)
		if r == "any" {
			if !seen[r] {
				out = append(out, r)
				seen[r] = true
			}
			continue
		}

		parts := strings.SplitN(r, "-", 2)
		if len(parts) == 1 {
			n, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, fmt.Errorf("enumerator: malformed vlan entry %q: %w", r, err)
			}
			v := strconv.Itoa(n)
			if !seen[v] {
				out = append(out, v)
				seen[v] = true
			}
			continue
		}

		lo, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("enumerator: malformed vlan range %q: %w", r, err)
		}
		hi, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("enumerator: malformed vlan range %q: %w", r, err)
		}
		if hi < lo {
			return nil, fmt.Errorf("enumerator: malformed vlan range %q: high < low", r)
		}
		for n := lo; n <= hi; n++ {
			v := strconv.Itoa(n)
			if !seen[v] {
				out = append(out, v)
				seen[v] = true
			}
		}
	}
	return out, nil
}
