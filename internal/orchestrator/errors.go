package orchestrator

import (
	"errors"
	"strings"
)

// Kind classifies an Orchestrator error into the small tagged set named in
// spec.md's REDESIGN FLAGS, replacing "error string contains ..." sniffing
// everywhere except inside the client adapter that produces it.
type Kind int

const (
	Other Kind = iota
	NotFound
	PathInfeasible
	TerminalFailure
	Transient
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case PathInfeasible:
		return "path_infeasible"
	case TerminalFailure:
		return "terminal_failure"
	case Transient:
		return "transient"
	default:
		return "other"
	}
}

// Error wraps an underlying error with a Kind.
type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Unwrap() error { return e.err }
func (e *Error) Kind() Kind    { return e.kind }

// Tag wraps err with kind. Tagging a nil error returns nil.
func Tag(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, err: err}
}

// KindOf extracts the Kind of err, defaulting to Other when err was never
// tagged (e.g. a plain context.DeadlineExceeded from a local timeout).
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.kind
	}
	return Other
}

// classify is the single point where literal substrings from the
// Orchestrator's wire responses are matched, per spec.md §6.1/§9's
// "SPARQL template as opaque bytes" / "loose error typing" design notes.
// Every other package switches on Kind, never on strings.Contains.
func classify(raw string) Kind {
	switch {
	case strings.Contains(raw, "cannot find feasible path for connection"):
		return PathInfeasible
	case strings.Contains(raw, "NOT_FOUND"):
		return NotFound
	case strings.Contains(raw, "CREATE - FAILED"),
		strings.Contains(raw, "CANCEL - FAILED"),
		strings.Contains(raw, "REINSTATE - FAILED"),
		strings.Contains(raw, "MODIFY - FAILED"):
		return TerminalFailure
	default:
		return Transient
	}
}

// TagFromMessage tags err using the literal substrings named in spec.md
// §4.2/§6.1/§7, for use by Client implementations that only have a raw
// error message to classify.
func TagFromMessage(err error) error {
	if err == nil {
		return nil
	}
	return Tag(err, classify(err.Error()))
}
