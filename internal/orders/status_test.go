package orders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimbus-erp/nimbus-erp/internal/shared"
)

func TestValidateTransitionForward(t *testing.T) {
	require.NoError(t, ValidateTransition(GroupHardware, StatusPending, StatusApproved))
	require.NoError(t, ValidateTransition(GroupHardware, StatusApproved, StatusOutForDelivery))
	require.NoError(t, ValidateTransition(GroupHardware, StatusOutForDelivery, StatusDelivered))
	require.NoError(t, ValidateTransition(GroupWorkshop, StatusApproved, StatusInTransit))
	require.NoError(t, ValidateTransition(GroupWorkshop, StatusInTransit, StatusOutForDelivery))

	// Multi-step jumps along the chain are allowed.
	require.NoError(t, ValidateTransition(GroupWorkshop, StatusPending, StatusOutForDelivery))
	require.NoError(t, ValidateTransition(GroupHardware, StatusPending, StatusDelivered))
}

func TestValidateTransitionNoRegression(t *testing.T) {
	backward := [][2]Status{
		{StatusApproved, StatusPending},
		{StatusOutForDelivery, StatusApproved},
		{StatusDelivered, StatusOutForDelivery},
		{StatusInTransit, StatusPending},
	}
	for _, pair := range backward {
		err := ValidateTransition(GroupWorkshop, pair[0], pair[1])
		var invalid *shared.InvalidTransitionError
		require.ErrorAs(t, err, &invalid, "%s -> %s must be rejected", pair[0], pair[1])
	}
}

func TestValidateTransitionHardwareSkipsInTransit(t *testing.T) {
	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, ValidateTransition(GroupHardware, StatusApproved, StatusInTransit), &invalid)
	require.ErrorAs(t, ValidateTransition(GroupLPO, StatusApproved, StatusInTransit), &invalid)
}

func TestValidateTransitionRejection(t *testing.T) {
	// Rejection is reachable from any non-terminal state.
	require.NoError(t, ValidateTransition(GroupHardware, StatusPending, StatusRejected))
	require.NoError(t, ValidateTransition(GroupWorkshop, StatusOutForDelivery, StatusRejected))

	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, ValidateTransition(GroupHardware, StatusDelivered, StatusRejected), &invalid)
	require.ErrorAs(t, ValidateTransition(GroupHardware, StatusRejected, StatusApproved), &invalid)

	// Repeating the current status stays a no-op even for rejected.
	require.NoError(t, ValidateTransition(GroupHardware, StatusRejected, StatusRejected))
}

func TestCrossesDeduction(t *testing.T) {
	require.True(t, crossesDeduction(GroupHardware, StatusPending, StatusApproved))
	require.False(t, crossesDeduction(GroupHardware, StatusApproved, StatusOutForDelivery))
	require.True(t, crossesDeduction(GroupLPO, StatusPending, StatusDelivered))

	require.False(t, crossesDeduction(GroupWorkshop, StatusPending, StatusApproved))
	require.True(t, crossesDeduction(GroupWorkshop, StatusApproved, StatusOutForDelivery))
	require.True(t, crossesDeduction(GroupWorkshop, StatusPending, StatusOutForDelivery))
	require.False(t, crossesDeduction(GroupWorkshop, StatusOutForDelivery, StatusDelivered))
	require.True(t, crossesDeduction(GroupCustom, StatusInTransit, StatusOutForDelivery))
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	_, err := ParseStatus("shipped")
	require.ErrorIs(t, err, shared.ErrUnknownStatus)

	_, err = ParseOrderStatus("done")
	require.ErrorIs(t, err, shared.ErrUnknownStatus)

	_, err = ParseGroup("custom")
	require.Error(t, err)
}
