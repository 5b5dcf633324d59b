package signer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

// The standard hardhat developer mnemonic; account 0 is well known.
const testMnemonic = "test test test test test test test test test test test junk"

const testChainID = int64(31337)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	s, err := FromMnemonic(testMnemonic, testChainID)
	require.NoError(t, err)
	return s
}

func TestFromMnemonicDerivesKnownAddress(t *testing.T) {
	s := testSigner(t)
	require.Equal(t,
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		s.Address())
	require.Equal(t, testChainID, s.ChainID())
}

func TestFromMnemonicRejectsGarbage(t *testing.T) {
	_, err := FromMnemonic("definitely not a valid mnemonic phrase", testChainID)
	require.Error(t, err)
}

func TestEventDigestDeterministic(t *testing.T) {
	payload := `{"kind":"join_table","player":"0xabc"}`
	d1, err := EventDigest(testChainID, "join_table", payload, nil)
	require.NoError(t, err)
	d2, err := EventDigest(testChainID, "join_table", payload, nil)
	require.NoError(t, err)
	require.Equal(t, d1, d2)

	d3, err := EventDigest(testChainID, "leave_table", payload, nil)
	require.NoError(t, err)
	require.NotEqual(t, d1, d3, "kind must be digest-relevant")

	d4, err := EventDigest(testChainID, "join_table", payload, big.NewInt(7))
	require.NoError(t, err)
	require.NotEqual(t, d1, d4, "nonce must be digest-relevant")

	d5, err := EventDigest(1, "join_table", payload, nil)
	require.NoError(t, err)
	require.NotEqual(t, d1, d5, "chain id must be digest-relevant")
}

func TestNilNonceEqualsZeroNonce(t *testing.T) {
	payload := `{"x":1}`
	dNil, err := EventDigest(testChainID, "deposit", payload, nil)
	require.NoError(t, err)
	dZero, err := EventDigest(testChainID, "deposit", payload, big.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, dNil, dZero)
}

func TestSignEventRoundTrip(t *testing.T) {
	s := testSigner(t)
	payload := `{"walletAddress":"0xabc","amountGwei":"1000000000"}`

	digest, sig, err := s.SignEvent("deposit", payload, nil)
	require.NoError(t, err)
	require.Contains(t, []uint8{27, 28}, sig.V)

	recovered, err := Recover(digest, sig)
	require.NoError(t, err)
	require.Equal(t, s.Address(), recovered)

	require.NoError(t, Verify(testChainID, "deposit", payload, nil, digest, sig, s.Address()))
}

func TestVerifyDetectsTampering(t *testing.T) {
	s := testSigner(t)
	payload := `{"walletAddress":"0xabc","amountGwei":"1000000000"}`
	digest, sig, err := s.SignEvent("deposit", payload, nil)
	require.NoError(t, err)

	tampered := `{"walletAddress":"0xabc","amountGwei":"9000000000"}`
	require.Error(t, Verify(testChainID, "deposit", tampered, nil, digest, sig, s.Address()))

	require.Error(t, Verify(testChainID, "withdrawal_executed", payload, nil, digest, sig, s.Address()))

	other := common.HexToAddress("0x0000000000000000000000000000000000000001")
	require.Error(t, Verify(testChainID, "deposit", payload, nil, digest, sig, other))

	badSig := sig
	badSig.S[0] ^= 0xff
	require.Error(t, Verify(testChainID, "deposit", payload, nil, digest, badSig, s.Address()))
}

func TestSignDigestMatchesSignEvent(t *testing.T) {
	s := testSigner(t)
	payload := `{"a":1}`
	digest, sig1, err := s.SignEvent("bet", payload, nil)
	require.NoError(t, err)
	sig2, err := s.SignDigest(digest)
	require.NoError(t, err)
	require.Equal(t, sig1, sig2)
}
