package worker

import (
	"strings"
	"time"
)

// pairAlias builds the human-readable alias submitted in each intent's
// "alias" field: "<UTC date> <shortA>-<shortB>-<vlan>", mirroring
// original_source/tester.py::_getAlias / __getpart.
func pairAlias(urnA, urnB, vlan string, now time.Time) string {
	return now.UTC().Format("2006-01-02 15:04:05") + " " + shortURN(urnA) + "-" + shortURN(urnB) + "-" + vlan
}

// shortURN returns the last colon-delimited segment of a URN, or (when that
// segment is the bare "+" continuation marker SENSE URNs sometimes use) the
// last two segments instead. Falls back to the full URN if parsing fails.
func shortURN(urn string) string {
	parts := strings.Split(urn, ":")
	if len(parts) == 0 {
		return urn
	}
	last := parts[len(parts)-1]
	if last != "+" {
		return last
	}
	if len(parts) >= 3 {
		return strings.Join(parts[len(parts)-3:len(parts)-1], ":")
	}
	return urn
}
