package orders

// lpoPrecedence orders supplier statuses highest-wins: any outstanding
// rejection or pending supplier blocks the group from reading as more
// advanced than it actually is.
var lpoPrecedence = []Status{
	StatusRejected,
	StatusPending,
	StatusApproved,
	StatusOutForDelivery,
	StatusDelivered,
}

// CombineSupplierStatuses reduces per-supplier LPO statuses to one combined
// status. All suppliers delivered is the only way the result is delivered.
func CombineSupplierStatuses(statuses map[int64]Status) Status {
	if len(statuses) == 0 {
		return StatusPending
	}
	for _, candidate := range lpoPrecedence {
		for _, status := range statuses {
			if status == candidate {
				return candidate
			}
		}
	}
	return StatusPending
}
