package poker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSegment(t *testing.T) {
	require.Equal(t, uint64(0), segment(5, 10, 20))
	require.Equal(t, uint64(0), segment(10, 10, 20))
	require.Equal(t, uint64(5), segment(15, 10, 20))
	require.Equal(t, uint64(10), segment(20, 10, 20))
	require.Equal(t, uint64(10), segment(99, 10, 20), "caps at the level")
}

func TestComputePotsSingleLevel(t *testing.T) {
	pots := computePots(1, map[int]uint64{0: 50, 1: 50, 2: 50}, []int{0, 1, 2})
	require.Len(t, pots, 1)
	require.Equal(t, uint64(150), pots[0].Amount)
	require.Equal(t, []int{0, 1, 2}, pots[0].EligibleSeats)
}

func TestComputePotsTwoLevels(t *testing.T) {
	pots := computePots(1, map[int]uint64{0: 10, 1: 30, 2: 30}, []int{0, 1, 2})
	require.Len(t, pots, 2)
	require.Equal(t, uint64(30), pots[0].Amount)
	require.Equal(t, []int{0, 1, 2}, pots[0].EligibleSeats)
	require.Equal(t, uint64(40), pots[1].Amount)
	require.Equal(t, []int{1, 2}, pots[1].EligibleSeats)
}

func TestComputePotsFoldedContributionsCount(t *testing.T) {
	// Seat 2 folded after putting in 20; their chips stay in the pots.
	pots := computePots(1, map[int]uint64{0: 10, 1: 30, 2: 20}, []int{0, 1})
	require.Len(t, pots, 2)
	require.Equal(t, uint64(30), pots[0].Amount)
	require.Equal(t, []int{0, 1}, pots[0].EligibleSeats)
	require.Equal(t, uint64(30), pots[1].Amount)
	require.Equal(t, []int{1}, pots[1].EligibleSeats)
}

func TestComputePotsFoldedOverbetJoinsTopPot(t *testing.T) {
	// A folded over-bet above the highest live level cannot seed its own pot.
	pots := computePots(1, map[int]uint64{0: 60, 1: 50, 2: 50}, []int{1, 2})
	require.Len(t, pots, 1)
	require.Equal(t, uint64(160), pots[0].Amount)
	require.Equal(t, []int{1, 2}, pots[0].EligibleSeats)

	var sum uint64
	for _, p := range pots {
		sum += p.Amount
	}
	require.Equal(t, uint64(160), sum, "nothing leaks")
}

func TestComputePotsIgnoresZeroTotals(t *testing.T) {
	pots := computePots(1, map[int]uint64{0: 0, 1: 40, 2: 40}, []int{0, 1, 2})
	require.Len(t, pots, 1)
	require.Equal(t, uint64(80), pots[0].Amount)
	require.Equal(t, []int{1, 2}, pots[0].EligibleSeats, "seat with nothing in is not eligible")
}

func TestShouldCreateSidePots(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)
	require.False(t, s.shouldCreateSidePots(), "blinds alone never split the pot")

	mustApply(t, s, 0, ActionCall, 0)
	require.False(t, s.shouldCreateSidePots(), "equal totals stay a single pot")
}
