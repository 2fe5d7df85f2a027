package orders

import "github.com/nimbus-erp/nimbus-erp/internal/shared"

// chainFor returns the forward status chain for a group. Hardware and LPO
// skip in_transit; workshop and custom use the full chain.
func chainFor(group Group) []Status {
	switch group {
	case GroupWorkshop, GroupCustom:
		return []Status{StatusPending, StatusApproved, StatusInTransit, StatusOutForDelivery, StatusDelivered}
	default:
		return []Status{StatusPending, StatusApproved, StatusOutForDelivery, StatusDelivered}
	}
}

func chainIndex(chain []Status, s Status) int {
	for i, status := range chain {
		if status == s {
			return i
		}
	}
	return -1
}

// ValidateTransition enforces the allowed moves for one product group.
// Forward moves along the group's chain are allowed, including multi-step
// jumps; any backward move is not. Once a group leaves pending it can never
// return. Rejection is reachable from any non-terminal state. Repeating the
// current status is a no-op, permitted so retries stay idempotent.
func ValidateTransition(group Group, from, to Status) error {
	if from == to {
		return nil
	}
	invalid := &shared.InvalidTransitionError{Group: string(group), From: string(from), To: string(to)}
	if from.IsTerminal() {
		return invalid
	}
	if to == StatusRejected {
		return nil
	}
	if from == StatusRejected {
		return invalid
	}
	chain := chainFor(group)
	fromIdx := chainIndex(chain, from)
	toIdx := chainIndex(chain, to)
	if fromIdx < 0 || toIdx < 0 {
		return invalid
	}
	if toIdx <= fromIdx {
		return invalid
	}
	return nil
}

// requiresDriverDetails reports whether entering the status needs a driver
// and vehicle on record for the corresponding phase.
func requiresDriverDetails(to Status) (TransitPhase, bool) {
	switch to {
	case StatusInTransit:
		return PhaseInTransit, true
	case StatusOutForDelivery:
		return PhaseOutForDelivery, true
	default:
		return "", false
	}
}

// deductionStatus is the chain position at which a group's stock is deducted.
// Hardware and LPO deduct at approval; workshop and custom deduct when the
// goods leave the warehouse.
func deductionStatus(group Group) Status {
	switch group {
	case GroupHardware, GroupLPO:
		return StatusApproved
	default:
		return StatusOutForDelivery
	}
}

// crossesDeduction reports whether moving from -> to passes the group's
// deduction point. Multi-step jumps (e.g. pending directly to
// outfordelivery) still deduct exactly once.
func crossesDeduction(group Group, from, to Status) bool {
	chain := chainFor(group)
	fromIdx := chainIndex(chain, from)
	toIdx := chainIndex(chain, to)
	deductIdx := chainIndex(chain, deductionStatus(group))
	if fromIdx < 0 || toIdx < 0 || deductIdx < 0 {
		return false
	}
	return fromIdx < deductIdx && toIdx >= deductIdx
}
