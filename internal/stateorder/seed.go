package stateorder

import "github.com/oriys/pairtester/internal/domain"

// configStates is the ordered list of coarse config-state values crossed
// with every (state, action) pair to build the seed table.
var configStates = []domain.ConfigState{
	domain.ConfigStateCreate,
	domain.ConfigStateUnknown,
	domain.ConfigStatePending,
	domain.ConfigStateScheduled,
	domain.ConfigStateUnstable,
	domain.ConfigStateStable,
}

// stateAction pairs the state label with the phase action it belongs to.
type stateAction struct {
	state  string
	action domain.Action
}

// createStates is the canonical (state, action) sequence, one block per
// phase, state-machine order within each block.
var createStates = []stateAction{
	{"CREATE", domain.ActionCreate},
	{"CREATE - PENDING", domain.ActionCreate},
	{"CREATE - COMPILED", domain.ActionCreate},
	{"CREATE - PROPAGATED", domain.ActionCreate},
	{"CREATE - COMMITTING", domain.ActionCreate},
	{"CREATE - COMMITTED", domain.ActionCreate},
	{"CREATE - READY", domain.ActionCreate},
	{"CREATE - FAILED", domain.ActionCreate},

	{"CREATE", domain.ActionModifyCreate},
	{"MODIFY - PENDING", domain.ActionModifyCreate},
	{"MODIFY - COMPILED", domain.ActionModifyCreate},
	{"MODIFY - PROPAGATED", domain.ActionModifyCreate},
	{"MODIFY - COMMITTING", domain.ActionModifyCreate},
	{"MODIFY - COMMITTED", domain.ActionModifyCreate},
	{"MODIFY - READY", domain.ActionModifyCreate},
	{"MODIFY - FAILED", domain.ActionModifyCreate},
	{"CREATE - PENDING", domain.ActionModifyCreate},
	{"CREATE - COMPILED", domain.ActionModifyCreate},
	{"CREATE - PROPAGATED", domain.ActionModifyCreate},
	{"CREATE - COMMITTING", domain.ActionModifyCreate},
	{"CREATE - COMMITTED", domain.ActionModifyCreate},
	{"CREATE - READY", domain.ActionModifyCreate},
	{"CREATE - FAILED", domain.ActionModifyCreate},

	{"CREATE", domain.ActionCancelRep},
	{"CANCEL - PENDING", domain.ActionCancelRep},
	{"CANCEL - COMPILED", domain.ActionCancelRep},
	{"CANCEL - PROPAGATED", domain.ActionCancelRep},
	{"CANCEL - COMMITTING", domain.ActionCancelRep},
	{"CANCEL - COMMITTED", domain.ActionCancelRep},
	{"CANCEL - READY", domain.ActionCancelRep},
	{"CANCEL - FAILED", domain.ActionCancelRep},

	{"CREATE", domain.ActionReprovision},
	{"REINSTATE - PENDING", domain.ActionReprovision},
	{"REINSTATE - COMPILED", domain.ActionReprovision},
	{"REINSTATE - PROPAGATED", domain.ActionReprovision},
	{"REINSTATE - COMMITTING", domain.ActionReprovision},
	{"REINSTATE - COMMITTED", domain.ActionReprovision},
	{"REINSTATE - READY", domain.ActionReprovision},
	{"REINSTATE - FAILED", domain.ActionReprovision},

	{"CREATE", domain.ActionModify},
	{"MODIFY - PENDING", domain.ActionModify},
	{"MODIFY - COMPILED", domain.ActionModify},
	{"MODIFY - PROPAGATED", domain.ActionModify},
	{"MODIFY - COMMITTING", domain.ActionModify},
	{"MODIFY - COMMITTED", domain.ActionModify},
	{"MODIFY - READY", domain.ActionModify},
	{"MODIFY - FAILED", domain.ActionModify},
	{"REINSTATE - READY", domain.ActionModify},
	{"REINSTATE - FAILED", domain.ActionModify},

	{"CREATE", domain.ActionCancel},
	{"CANCEL - PENDING", domain.ActionCancel},
	{"CANCEL - COMPILED", domain.ActionCancel},
	{"CANCEL - PROPAGATED", domain.ActionCancel},
	{"CANCEL - COMMITTING", domain.ActionCancel},
	{"CANCEL - COMMITTED", domain.ActionCancel},
	{"CANCEL - READY", domain.ActionCancel},
	{"CANCEL - FAILED", domain.ActionCancel},

	{"CREATE", domain.ActionCancelArch},
	{"CANCEL - PENDING", domain.ActionCancelArch},
	{"CANCEL - COMPILED", domain.ActionCancelArch},
	{"CANCEL - PROPAGATED", domain.ActionCancelArch},
	{"CANCEL - COMMITTING", domain.ActionCancelArch},
	{"CANCEL - COMMITTED", domain.ActionCancelArch},
	{"CANCEL - READY", domain.ActionCancelArch},
	{"CANCEL - FAILED", domain.ActionCancelArch},
}

// Seed returns the canonical state-order reference table: one row per
// (state, action) crossed with every config-state, ordered sequentially.
// This is the one piece of the out-of-scope database bootstrapper (spec.md
// §2) that the core still needs, since the analyzer consults it directly.
func Seed() []domain.StateOrderEntry {
	rows := make([]domain.StateOrderEntry, 0, len(createStates)*len(configStates))
	orderID := 1
	for _, sa := range createStates {
		for _, cs := range configStates {
			rows = append(rows, domain.StateOrderEntry{
				State:       sa.state,
				Action:      sa.action,
				ConfigState: cs,
				OrderID:     orderID,
			})
			orderID++
		}
	}
	return rows
}
