// Package domain defines the entities the tester, recorder and archiver
// operate on, following spec.md §3. Entities are plain value types; all
// persistence lives in internal/store.
package domain

import "time"

// Pair is an ordered tuple of two endpoint URNs to be tested together
// with a VLAN label. It is ephemeral: created per scheduling round, never
// persisted on its own. Its identity is the artifact filename stem
// "port1-port2-vlan".
type Pair struct {
	Port1 string
	Port2 string
	Vlan  string // numeric string, or the literal "any"
}

// Stem returns the canonical filename stem for this pair. (a,b,v) and
// (b,a,v) must normalize to the same stem so the worker pool never drives
// the same unordered pair twice under different orderings.
func (p Pair) Stem() string {
	a, b := p.Port1, p.Port2
	if a > b {
		a, b = b, a
	}
	return a + "-" + b + "-" + p.Vlan
}

// RequestType enumerates the intent template families named in spec.md §3.
type RequestType string

const (
	RequestGuaranteedCapped RequestType = "guaranteedCapped"
	RequestBestEffort       RequestType = "bestEffort"
	RequestNettest          RequestType = "nettest"
	RequestL3               RequestType = "l3_request"
)

// Request is one full lifecycle run against the Orchestrator.
type Request struct {
	UUID          string
	Site1         string
	Site2         string
	Port1         string
	Port2         string
	Vlan          string
	RequestType   RequestType
	FinalState    bool
	PathfindIssue bool
	Failure       string
	FileLoc       string
	InsertDate    time.Time
	UpdateDate    time.Time
}

// Action is one phase boundary within a Request.
type Action string

const (
	ActionCreate      Action = "create"
	ActionModifyCreate Action = "modifycreate"
	ActionCancelRep   Action = "cancelrep"
	ActionReprovision Action = "reprovision"
	ActionModify      Action = "modify"
	ActionCancel      Action = "cancel"
	ActionCancelArch  Action = "cancelarch"
)

// ActionRow is the persisted record of one phase entered for a Request.
type ActionRow struct {
	UUID       string
	Action     Action
	Site1      string
	Site2      string
	InsertDate time.Time
	UpdateDate time.Time
}

// ConfigState enumerates the Orchestrator's coarse config-state values.
type ConfigState string

const (
	ConfigStateCreate    ConfigState = "create"
	ConfigStateUnknown   ConfigState = "UNKNOWN"
	ConfigStatePending   ConfigState = "PENDING"
	ConfigStateScheduled ConfigState = "SCHEDULED"
	ConfigStateUnstable  ConfigState = "UNSTABLE"
	ConfigStateStable    ConfigState = "STABLE"
)

// RequestState is one (state, config-state) dwell record produced by the
// state-transition analyzer (internal/stateorder).
type RequestState struct {
	UUID        string
	Action      Action
	Site1       string
	Site2       string
	State       string // e.g. "CREATE - PENDING"
	ConfigState ConfigState
	EnterTime   time.Time
	TotalTime   int64 // seconds dwelt in the previous state
	SinceStart  int64 // seconds since the first observed state of the run
}

// Verification is one per-site per-URN verified/unverified outcome for one
// phase.
type Verification struct {
	UUID      string
	Action    Action
	Site1     string
	Site2     string
	Site      string
	URN       string
	NetStatus string
	Verified  bool
}

// PingResult is one ping probe outcome.
type PingResult struct {
	UUID        string
	Action      Action
	Site1       string
	Site2       string
	Port1       string
	Port2       string
	IPFrom      string
	IPTo        string
	VlanFrom    string
	VlanTo      string
	Failed      bool
	Transmitted int
	Received    int
	PacketLoss  float64
	RTTMin      float64
	RTTAvg      float64
	RTTMax      float64
	RTTMdev     float64
}

// RunnerInfo is the singleton process heartbeat row.
type RunnerInfo struct {
	Alive          bool
	TotalWorkers   int
	TotalQueue     int
	RemainingQueue int
	LockedRequests int
	StartTime      time.Time
	NextRun        time.Time
}

// LockedRequest snapshots a Request whose pair is stuck: non-terminal and
// not yet archivable.
type LockedRequest struct {
	Request Request
}

// StateOrderEntry is one row of the canonical transition reference table:
// composite key (state, action, configstate) mapping to a monotonic
// orderid within one (action, configstate) pair.
type StateOrderEntry struct {
	State       string
	Action      Action
	ConfigState ConfigState
	OrderID     int
}
