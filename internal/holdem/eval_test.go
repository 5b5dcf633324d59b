package holdem

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/clout-cards-sub002/internal/cards"
)

func mustCards(t *testing.T, names ...string) []cards.Card {
	t.Helper()
	out := make([]cards.Card, 0, len(names))
	for _, n := range names {
		c, err := cards.Parse(n)
		require.NoError(t, err, "card %q", n)
		out = append(out, c)
	}
	return out
}

func TestEvaluate5Categories(t *testing.T) {
	cases := []struct {
		name  string
		hand  []string
		want  HandCategory
		highs []uint8 // leading tiebreakers to check, optional
	}{
		{"royal flush", []string{"As", "Ks", "Qs", "Js", "Ts"}, RoyalFlush, []uint8{14}},
		{"straight flush", []string{"9h", "8h", "7h", "6h", "5h"}, StraightFlush, []uint8{9}},
		{"steel wheel", []string{"Ad", "2d", "3d", "4d", "5d"}, StraightFlush, []uint8{5}},
		{"quads", []string{"7c", "7d", "7h", "7s", "Kd"}, Quads, []uint8{7, 13}},
		{"full house", []string{"Tc", "Td", "Th", "4s", "4d"}, FullHouse, []uint8{10, 4}},
		{"flush", []string{"Ac", "Jc", "8c", "6c", "2c"}, Flush, []uint8{14, 11, 8, 6, 2}},
		{"straight", []string{"8c", "7d", "6h", "5s", "4d"}, Straight, []uint8{8}},
		{"wheel", []string{"Ac", "2d", "3h", "4s", "5d"}, Straight, []uint8{5}},
		{"trips", []string{"Qc", "Qd", "Qh", "9s", "3d"}, Trips, []uint8{12, 9, 3}},
		{"two pair", []string{"Jc", "Jd", "4h", "4s", "Ad"}, TwoPair, []uint8{11, 4, 14}},
		{"pair", []string{"8c", "8d", "Kh", "7s", "2d"}, OnePair, []uint8{8, 13, 7, 2}},
		{"high card", []string{"Ac", "Jd", "9h", "6s", "3d"}, HighCard, []uint8{14, 11, 9, 6, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := evaluate5(mustCards(t, tc.hand...))
			require.NoError(t, err)
			require.Equal(t, tc.want, r.Category)
			if tc.highs != nil {
				require.Equal(t, tc.highs, r.Tiebreakers[:len(tc.highs)])
			}
		})
	}
}

func TestEvaluate5RejectsDuplicates(t *testing.T) {
	_, err := evaluate5(mustCards(t, "As", "As", "Kd", "Qh", "Jc"))
	require.Error(t, err)
}

func TestCompareOrdersByCategoryThenKickers(t *testing.T) {
	flush, err := evaluate5(mustCards(t, "Ac", "Jc", "8c", "6c", "2c"))
	require.NoError(t, err)
	straight, err := evaluate5(mustCards(t, "8c", "7d", "6h", "5s", "4d"))
	require.NoError(t, err)
	require.Equal(t, 1, Compare(flush, straight))
	require.Equal(t, -1, Compare(straight, flush))

	pairAceKicker, err := evaluate5(mustCards(t, "8c", "8d", "Ah", "7s", "2d"))
	require.NoError(t, err)
	pairKingKicker, err := evaluate5(mustCards(t, "8h", "8s", "Kh", "7c", "2h"))
	require.NoError(t, err)
	require.Equal(t, 1, Compare(pairAceKicker, pairKingKicker))
	require.Equal(t, 0, Compare(pairAceKicker, pairAceKicker))
}

func TestEvaluate7PicksBestFive(t *testing.T) {
	// Board pair plus hole pair makes a full house out of seven cards.
	r, err := Evaluate7(mustCards(t, "Ah", "Ad", "Ks", "Kd", "2c", "As", "7h"))
	require.NoError(t, err)
	require.Equal(t, FullHouse, r.Category)
	require.Equal(t, []uint8{14, 13}, r.Tiebreakers)
}

func TestWinnersSingleWinner(t *testing.T) {
	board := mustCards(t, "Ah", "Kd", "8s", "3c", "2h")
	holes := map[int][2]cards.Card{
		0: {mustCard(t, "As"), mustCard(t, "Ad")}, // trips aces
		3: {mustCard(t, "Kh"), mustCard(t, "Qc")}, // pair of kings
	}
	winners, ranks, err := Winners(board, holes)
	require.NoError(t, err)
	require.Equal(t, []int{0}, winners)
	require.Equal(t, Trips, ranks[0].Category)
	require.Equal(t, OnePair, ranks[3].Category)
}

func TestWinnersSplitOnBoardPlay(t *testing.T) {
	// Board is a broadway straight; both hole pairs are irrelevant.
	board := mustCards(t, "Ah", "Kd", "Qs", "Jc", "Th")
	holes := map[int][2]cards.Card{
		1: {mustCard(t, "2s"), mustCard(t, "3d")},
		5: {mustCard(t, "4s"), mustCard(t, "5d")},
	}
	winners, ranks, err := Winners(board, holes)
	require.NoError(t, err)
	require.Equal(t, []int{1, 5}, winners)
	require.Equal(t, 0, Compare(ranks[1], ranks[5]))
	require.Equal(t, Straight, ranks[1].Category)
}

func mustCard(t *testing.T, name string) cards.Card {
	t.Helper()
	c, err := cards.Parse(name)
	require.NoError(t, err)
	return c
}

func TestCategoryNames(t *testing.T) {
	require.Equal(t, "HIGH_CARD", HighCard.String())
	require.Equal(t, "FULL_HOUSE", FullHouse.String())
	require.Equal(t, "ROYAL_FLUSH", RoyalFlush.String())
}
