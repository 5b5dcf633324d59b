package poker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandMembershipBlocks(t *testing.T) {
	players := []*HandPlayer{
		{WalletAddress: "0xaaa", Status: PlayerFolded},
		{WalletAddress: "0xbbb", Status: PlayerActive},
		{WalletAddress: "0xccc", Status: PlayerAllIn},
	}

	require.True(t, handMembershipBlocks(players, "0xbbb", false))
	require.True(t, handMembershipBlocks(players, "0xbbb", true))
	require.True(t, handMembershipBlocks(players, "0xccc", false))

	require.False(t, handMembershipBlocks(players, "0xaaa", false),
		"a folded player may stand up mid-hand")
	require.True(t, handMembershipBlocks(players, "0xaaa", true),
		"a folded player waits for the hand before rebuying")

	require.False(t, handMembershipBlocks(players, "0xddd", true), "not dealt in at all")
}
