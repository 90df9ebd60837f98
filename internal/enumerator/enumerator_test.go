package enumerator

import (
	"context"
	"testing"

	"github.com/oriys/pairtester/internal/config"
)

func TestParseVlanRangesDefault(t *testing.T) {
	vlans, err := parseVlanRanges(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vlans) != 1 || vlans[0] != "any" {
		t.Fatalf("expected [any], got %v", vlans)
	}
}

func TestParseVlanRangesMixed(t *testing.T) {
	vlans, err := parseVlanRanges([]string{"100-102", "200"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"100", "101", "102", "200"}
	if len(vlans) != len(want) {
		t.Fatalf("expected %v, got %v", want, vlans)
	}
	for i, v := range want {
		if vlans[i] != v {
			t.Fatalf("expected %v, got %v", want, vlans)
		}
	}
}

func TestParseVlanRangesMalformed(t *testing.T) {
	if _, err := parseVlanRanges([]string{"abc"}); err == nil {
		t.Fatal("expected error for malformed vlan entry")
	}
	if _, err := parseVlanRanges([]string{"10-5"}); err == nil {
		t.Fatal("expected error for inverted range")
	}
}

func TestEnumerateRejectsBothSources(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Entries = []config.EntryConfig{{URN: "urn:a"}}
	cfg.EntriesDynamic = true

	_, err := Enumerate(context.Background(), cfg, nil)
	if err != ErrBothSourcesSet {
		t.Fatalf("expected ErrBothSourcesSet, got %v", err)
	}
}

func TestEnumerateRejectsVlansWithoutAnchor(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Entries = []config.EntryConfig{{URN: "urn:a"}, {URN: "urn:b"}}
	cfg.Vlans = []string{"100"}

	_, err := Enumerate(context.Background(), cfg, nil)
	if err != ErrVlansWithoutAnchor {
		t.Fatalf("expected ErrVlansWithoutAnchor, got %v", err)
	}
}

func TestEnumerateStaticCombinations(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Entries = []config.EntryConfig{{URN: "urn:a"}, {URN: "urn:b"}, {URN: "urn:c"}}
	cfg.MaxPairs = 10

	triples, err := Enumerate(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 3 {
		t.Fatalf("expected 3 triples (3-choose-2), got %d", len(triples))
	}
	for _, tr := range triples {
		if tr.Vlan != "any" {
			t.Fatalf("expected vlan any, got %q", tr.Vlan)
		}
	}
}

func TestEntrySitesStatic(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Entries = []config.EntryConfig{{URN: "urn:a", Site: "siteA"}, {URN: "urn:b", Site: "siteB"}}

	sites, err := EntrySites(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sites["urn:a"] != "siteA" || sites["urn:b"] != "siteB" {
		t.Fatalf("sites = %+v", sites)
	}
}

func TestEnumerateVlansToCrossProduct(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Entries = []config.EntryConfig{{URN: "urn:a"}, {URN: "urn:b"}}
	cfg.VlansTo = []string{"urn:anchor"}
	cfg.Vlans = []string{"100", "101"}
	cfg.MaxPairs = 10

	triples, err := Enumerate(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 4 {
		t.Fatalf("expected 2 pairs * 2 vlans = 4 triples, got %d", len(triples))
	}
}

func TestEnumerateL3RequiresIPv6Prefix(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SubmissionTmpl = "l3_request"
	cfg.Entries = []config.EntryConfig{{URN: "urn:a"}, {URN: "urn:b"}}

	_, err := Enumerate(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("expected error for missing ipv6_prefix")
	}
}

func TestEnumerateMaxPairsTruncates(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Entries = []config.EntryConfig{{URN: "urn:a"}, {URN: "urn:b"}, {URN: "urn:c"}, {URN: "urn:d"}}
	cfg.MaxPairs = 1

	triples, err := Enumerate(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple after truncation, got %d", len(triples))
	}
}

type fakeFetcher struct {
	urns []string
	err  error
}

func (f *fakeFetcher) FetchDomainPorts(ctx context.Context, domainURI string) ([]string, error) {
	return f.urns, f.err
}

func TestEnumerateDynamicEntries(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.EntriesDynamic = true
	cfg.EntriesSitename = "urn:domain:example"
	cfg.MaxPairs = 10

	fetcher := &fakeFetcher{urns: []string{"urn:a", "urn:b"}}
	triples, err := Enumerate(context.Background(), cfg, fetcher)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple from 2 dynamic entries, got %d", len(triples))
	}
}
