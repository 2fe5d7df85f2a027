package orders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCombineSupplierStatuses(t *testing.T) {
	cases := []struct {
		name     string
		statuses map[int64]Status
		want     Status
	}{
		{"no suppliers", nil, StatusPending},
		{"single supplier", map[int64]Status{1: StatusApproved}, StatusApproved},
		{"rejection wins over everything", map[int64]Status{1: StatusDelivered, 2: StatusRejected, 3: StatusApproved}, StatusRejected},
		{"pending blocks approval", map[int64]Status{1: StatusApproved, 2: StatusPending}, StatusPending},
		{"approved blocks outfordelivery", map[int64]Status{1: StatusOutForDelivery, 2: StatusApproved}, StatusApproved},
		{"outfordelivery blocks delivered", map[int64]Status{1: StatusDelivered, 2: StatusOutForDelivery}, StatusOutForDelivery},
		{"all delivered", map[int64]Status{1: StatusDelivered, 2: StatusDelivered}, StatusDelivered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, CombineSupplierStatuses(tc.statuses))
		})
	}
}
