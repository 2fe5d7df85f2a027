package orders

// DeriveOrderStatus combines the present group statuses into one order-level
// status. Absent groups are passed as nil. The function is pure: same inputs
// always yield the same result.
func DeriveOrderStatus(hardware, workshop, lpoCombined *Status) OrderStatus {
	var present []Status
	for _, s := range []*Status{hardware, workshop, lpoCombined} {
		if s != nil {
			present = append(present, *s)
		}
	}
	if len(present) == 0 {
		return OrderPending
	}
	if len(present) == 1 {
		return orderStatusOf(present[0])
	}

	anyRejected := false
	for _, s := range present {
		if s == StatusRejected {
			anyRejected = true
			break
		}
	}
	if anyRejected {
		// Hardware is the authoritative path: its approval overrides a
		// rejection that is confined to the workshop group.
		if hardware != nil && *hardware == StatusApproved &&
			workshop != nil && *workshop == StatusRejected &&
			(lpoCombined == nil || *lpoCombined != StatusRejected) {
			return OrderApproved
		}
		return OrderRejected
	}

	if allEqual(present, StatusApproved) {
		return OrderApproved
	}
	if allEqual(present, StatusPending) {
		return OrderPending
	}
	if uniform, s := allSame(present); uniform {
		return orderStatusOf(s)
	}
	if allBeyondWarehouse(present) {
		return OrderOutForDelivery
	}
	// Mixed pending/approved: hardware approval alone advances the order.
	if hardware != nil && *hardware == StatusApproved && restPending(workshop, lpoCombined) {
		return OrderApproved
	}
	return OrderPending
}

func allEqual(statuses []Status, want Status) bool {
	for _, s := range statuses {
		if s != want {
			return false
		}
	}
	return true
}

func allSame(statuses []Status) (bool, Status) {
	first := statuses[0]
	for _, s := range statuses[1:] {
		if s != first {
			return false, first
		}
	}
	return true, first
}

// allBeyondWarehouse reports whether every group has left the warehouse
// (out for delivery or delivered). A mixed set reads as outfordelivery until
// the last group lands.
func allBeyondWarehouse(statuses []Status) bool {
	for _, s := range statuses {
		if s != StatusOutForDelivery && s != StatusDelivered {
			return false
		}
	}
	return true
}

func restPending(others ...*Status) bool {
	for _, s := range others {
		if s != nil && *s != StatusPending {
			return false
		}
	}
	return true
}

// GroupTargets is the inverse-mapping result: the status every present group
// is force-set to when an operator overrides the order-level status.
type GroupTargets struct {
	Hardware Status
	Workshop Status
	LPO      Status
	Custom   Status
}

// GroupTargetsFor maps an order-level override onto per-group targets.
// Setting "approved" while a transport assignment exists forces the order
// into in_transit instead, since an assigned carrier implies the cargo is
// already moving. The returned OrderStatus is the effective order status
// after that business override.
func GroupTargetsFor(target OrderStatus, hasTransport bool) (OrderStatus, GroupTargets) {
	if target == OrderApproved && hasTransport {
		target = OrderInTransit
	}
	switch target {
	case OrderPending:
		return target, GroupTargets{StatusPending, StatusPending, StatusPending, StatusPending}
	case OrderApproved:
		return target, GroupTargets{StatusApproved, StatusApproved, StatusApproved, StatusApproved}
	case OrderInTransit:
		// Hardware and LPO have no in_transit phase; approval is their
		// closest equivalent.
		return target, GroupTargets{StatusApproved, StatusInTransit, StatusApproved, StatusInTransit}
	case OrderOutForDelivery:
		return target, GroupTargets{StatusOutForDelivery, StatusOutForDelivery, StatusOutForDelivery, StatusOutForDelivery}
	case OrderDelivery:
		return target, GroupTargets{StatusDelivered, StatusDelivered, StatusDelivered, StatusDelivered}
	case OrderRejected:
		return target, GroupTargets{StatusRejected, StatusRejected, StatusRejected, StatusRejected}
	default:
		return target, GroupTargets{StatusPending, StatusPending, StatusPending, StatusPending}
	}
}
