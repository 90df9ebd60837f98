package worker

import (
	"strings"
	"testing"

	"github.com/oriys/pairtester/internal/domain"
)

func TestFailureTextAssemblesPrefixedPhaseErrors(t *testing.T) {
	r := newResult("urn:a", "urn:b", "100", "siteA", "siteB")
	r.Phases[domain.ActionCreate] = &PhaseResult{
		Action:          domain.ActionCreate,
		Error:           "timeout after 10m",
		ValidationError: "reduction unverified",
		ManifestError:   "fetch failed",
	}
	r.Phases[domain.ActionCancel] = &PhaseResult{
		Action: domain.ActionCancel,
		Error:  "cannot cancel",
	}

	got := r.failureText()
	for _, want := range []string{
		"ERROR_CREATE:timeout after 10m",
		"VALIDATION_CREATE:reduction unverified",
		"MANIFEST_CREATE:fetch failed",
		"ERROR_CANCEL:cannot cancel",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("failureText() = %q, expected to contain %q", got, want)
		}
	}
}

func TestFailureTextEmptyWhenNoPhaseErrors(t *testing.T) {
	r := newResult("urn:a", "urn:b", "100", "siteA", "siteB")
	r.Phases[domain.ActionCreate] = &PhaseResult{Action: domain.ActionCreate, FinalState: "OK"}
	if got := r.failureText(); got != "" {
		t.Fatalf("failureText() = %q, want empty", got)
	}
}
