package bom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	resolver := NewResolver([]Entry{
		{ProductID: 1, MaterialID: 100, PerUnit: 2},
		{ProductID: 1, MaterialID: 101, PerUnit: 0.25},
	})

	reqs := resolver.Expand(1, 4)
	require.InDelta(t, 8.0, reqs[100], 0.0001)
	require.InDelta(t, 1.0, reqs[101], 0.0001)

	require.Empty(t, resolver.Expand(99, 10))
}

func TestExpandAllAccumulatesBeforeRounding(t *testing.T) {
	resolver := NewResolver([]Entry{
		{ProductID: 1, MaterialID: 100, PerUnit: 0.3},
		{ProductID: 2, MaterialID: 100, PerUnit: 0.4},
	})

	// 3*0.3 + 1*0.4 = 1.3 accumulates as a float; only the total is
	// rounded up, not each product's share.
	reqs := resolver.ExpandAll(map[int64]int64{1: 3, 2: 1})
	require.InDelta(t, 1.3, reqs[100], 0.0001)

	rounded := reqs.Rounded()
	require.EqualValues(t, 2, rounded[100])
}

func TestRoundedCeilsPartialUnits(t *testing.T) {
	reqs := Requirements{100: 4.5, 101: 3.0, 102: 0.1}
	rounded := reqs.Rounded()
	require.EqualValues(t, 5, rounded[100])
	require.EqualValues(t, 3, rounded[101])
	require.EqualValues(t, 1, rounded[102])
}
