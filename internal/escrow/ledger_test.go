package escrow

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/clout-cards-sub002/internal/faults"
)

func TestPendingWithdrawal(t *testing.T) {
	now := time.Now()
	b := &Balance{WalletAddress: "0xabc", BalanceGwei: uint256.NewInt(100)}
	require.False(t, b.PendingWithdrawal(now), "no reservation")

	future := now.Add(time.Hour)
	b.WithdrawalSignatureExpiry = &future
	require.True(t, b.PendingWithdrawal(now))

	past := now.Add(-time.Second)
	b.WithdrawalSignatureExpiry = &past
	require.False(t, b.PendingWithdrawal(now), "expired reservation is not pending")
}

// A signed-but-unexecuted withdrawal must block every table buy-in (join
// and rebuy both debit through this guard) until it executes or expires.
func TestDebitGuardBlocksPendingWithdrawal(t *testing.T) {
	now := time.Now()
	expiry := now.Add(time.Hour)
	b := &Balance{
		WalletAddress:             "0xabc",
		BalanceGwei:               uint256.NewInt(100_000_000),
		WithdrawalSignatureExpiry: &expiry,
	}

	err := debitGuard(b, uint256.NewInt(10_000_000), now)
	require.True(t, faults.IsConflict(err))

	// Same debit clears once the reservation lapses.
	require.NoError(t, debitGuard(b, uint256.NewInt(10_000_000), expiry.Add(time.Second)))
}

func TestDebitGuardInsufficientBalance(t *testing.T) {
	b := &Balance{WalletAddress: "0xabc", BalanceGwei: uint256.NewInt(5)}

	err := debitGuard(b, uint256.NewInt(10), time.Now())
	require.True(t, faults.IsValidation(err))

	require.NoError(t, debitGuard(b, uint256.NewInt(5), time.Now()), "exact balance is spendable")
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "0xabcdef", Normalize("0xABCdef"))
}
