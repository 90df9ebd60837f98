// Package edgeagent defines the client boundary to the per-site debug/ping
// agent. Like internal/orchestrator, it is an opaque external collaborator
// per spec.md §6.2 — only its operation surface is specified here.
package edgeagent

import "context"

// DebugState is the lifecycle state of a submitted debug action.
type DebugState string

const (
	StateNew    DebugState = "new"
	StateActive DebugState = "active"
)

// PingType names the edge-agent debug action type. rapid-ping is the only
// type the ping orchestrator (internal/pingprobe) ever submits.
type PingType string

const RapidPing PingType = "rapid-ping"

// DebugAction is one entry returned by GetAllDebugHostname.
type DebugAction struct {
	ID    string
	State DebugState
}

// DebugDetail is the full record returned by GetDebug, including the
// original request fields so pingprobe can compare requests for dedup.
type DebugDetail struct {
	State       DebugState
	RequestDict PingRequest
	Stdout      string
}

// PingRequest mirrors the submit_ping argument set in spec.md §6.2. Two
// requests are considered identical (for dedup purposes) when every field
// here is equal.
type PingRequest struct {
	Hostname   string
	Sitename   string
	Type       PingType
	IP         string
	PacketSize int
	Interval   int
	Interface  string
	Time       int
	OneTime    bool
}

// Client is the operation-level contract consumed by internal/pingprobe.
type Client interface {
	GetAllDebugHostname(ctx context.Context, sitename, hostname string, state DebugState) ([]DebugAction, error)
	GetDebug(ctx context.Context, sitename, id string) (DebugDetail, error)
	// SubmitPing submits a rapid-ping debug action. ok reports whether the
	// agent accepted the request; per spec.md §6.2 the core treats a
	// 3-tuple with second element true as success, so a nil error with
	// ok == false is a valid rejection outcome distinct from err != nil.
	SubmitPing(ctx context.Context, req PingRequest) (id string, ok bool, err error)
}
