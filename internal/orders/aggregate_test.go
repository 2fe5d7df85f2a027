package orders

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func st(s Status) *Status { return &s }

func TestDeriveOrderStatus(t *testing.T) {
	cases := []struct {
		name     string
		hardware *Status
		workshop *Status
		lpo      *Status
		want     OrderStatus
	}{
		{"no groups", nil, nil, nil, OrderPending},
		{"single group mirrors", st(StatusOutForDelivery), nil, nil, OrderOutForDelivery},
		{"single delivered maps to delivery", nil, st(StatusDelivered), nil, OrderDelivery},
		{"all pending", st(StatusPending), st(StatusPending), st(StatusPending), OrderPending},
		{"all approved", st(StatusApproved), st(StatusApproved), st(StatusApproved), OrderApproved},
		{"single rejection dominates", st(StatusPending), nil, st(StatusRejected), OrderRejected},
		{"hardware approval overrides workshop rejection", st(StatusApproved), st(StatusRejected), nil, OrderApproved},
		{"override does not survive lpo rejection", st(StatusApproved), st(StatusRejected), st(StatusRejected), OrderRejected},
		{"rejected hardware is not the override", st(StatusRejected), st(StatusApproved), nil, OrderRejected},
		{"all delivered", st(StatusDelivered), st(StatusDelivered), nil, OrderDelivery},
		{"outfordelivery until last group lands", st(StatusDelivered), st(StatusOutForDelivery), nil, OrderOutForDelivery},
		{"hardware approved rest pending", st(StatusApproved), st(StatusPending), st(StatusPending), OrderApproved},
		{"mixed mid-chain stays pending", st(StatusPending), st(StatusOutForDelivery), nil, OrderPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveOrderStatus(tc.hardware, tc.workshop, tc.lpo))
		})
	}
}

func TestDeriveOrderStatusIsDeterministic(t *testing.T) {
	hardware, workshop, lpo := st(StatusApproved), st(StatusRejected), st(StatusPending)
	first := DeriveOrderStatus(hardware, workshop, lpo)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, DeriveOrderStatus(hardware, workshop, lpo))
	}
}

func TestGroupTargetsFor(t *testing.T) {
	effective, targets := GroupTargetsFor(OrderApproved, false)
	require.Equal(t, OrderApproved, effective)
	require.Equal(t, GroupTargets{StatusApproved, StatusApproved, StatusApproved, StatusApproved}, targets)

	// A transport assignment upgrades approval to in_transit.
	effective, targets = GroupTargetsFor(OrderApproved, true)
	require.Equal(t, OrderInTransit, effective)
	require.Equal(t, GroupTargets{StatusApproved, StatusInTransit, StatusApproved, StatusInTransit}, targets)

	effective, targets = GroupTargetsFor(OrderInTransit, false)
	require.Equal(t, OrderInTransit, effective)
	require.Equal(t, StatusApproved, targets.Hardware)
	require.Equal(t, StatusApproved, targets.LPO)
	require.Equal(t, StatusInTransit, targets.Workshop)

	effective, targets = GroupTargetsFor(OrderDelivery, false)
	require.Equal(t, OrderDelivery, effective)
	require.Equal(t, GroupTargets{StatusDelivered, StatusDelivered, StatusDelivered, StatusDelivered}, targets)

	effective, targets = GroupTargetsFor(OrderRejected, true)
	require.Equal(t, OrderRejected, effective)
	require.Equal(t, GroupTargets{StatusRejected, StatusRejected, StatusRejected, StatusRejected}, targets)
}
