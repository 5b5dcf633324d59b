package cards

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStringParseRoundTrip(t *testing.T) {
	for id := 0; id < 52; id++ {
		c := Card(id)
		parsed, err := Parse(c.String())
		require.NoError(t, err, "card %s", c)
		require.Equal(t, c, parsed)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "A", "Asx", "1c", "Ax", "ac"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) accepted", s)
		}
	}
}

func TestRankSuit(t *testing.T) {
	c, err := Parse("As")
	require.NoError(t, err)
	require.Equal(t, uint8(14), c.Rank())
	require.Equal(t, uint8(3), c.Suit())

	c, err = Parse("2c")
	require.NoError(t, err)
	require.Equal(t, uint8(2), c.Rank())
	require.Equal(t, uint8(0), c.Suit())
}

func TestShuffledDeckDeterministic(t *testing.T) {
	a := ShuffledDeck("seed-1")
	b := ShuffledDeck("seed-1")
	require.Equal(t, a, b, "same seed must give the same order")

	c := ShuffledDeck("seed-2")
	require.NotEqual(t, a, c, "different seeds must diverge")
}

func TestShuffledDeckIsPermutation(t *testing.T) {
	deck := ShuffledDeck("any-seed")
	require.Len(t, deck, 52)
	seen := map[Card]bool{}
	for _, c := range deck {
		require.False(t, seen[c], "duplicate card %s", c)
		require.Less(t, uint8(c), uint8(52))
		seen[c] = true
	}
}

func TestJoinSplitRoundTrip(t *testing.T) {
	deck := ShuffledDeck("round-trip")
	back, err := Split(Join(deck))
	require.NoError(t, err)
	require.Equal(t, deck, back)

	empty, err := Split("")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestCommitmentBindsDeckAndNonce(t *testing.T) {
	deck := Join(ShuffledDeck("commit"))
	h1 := Commitment(deck, "nonce-a")
	require.Equal(t, h1, Commitment(deck, "nonce-a"))
	require.NotEqual(t, h1, Commitment(deck, "nonce-b"))
	require.NotEqual(t, h1, Commitment(Join(ShuffledDeck("other")), "nonce-a"))
	require.Len(t, h1, 64)
}
