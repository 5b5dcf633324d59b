package evtlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestampFormat(t *testing.T) {
	at := time.Date(2024, 5, 17, 9, 30, 12, 345_000_000, time.FixedZone("CEST", 2*3600))
	require.Equal(t, "2024-05-17T07:30:12.345Z", Timestamp(at))
}

func TestKnownKind(t *testing.T) {
	require.True(t, KnownKind(KindDeposit))
	require.True(t, KnownKind(KindHandEnd))
	require.False(t, KnownKind("made_up"))
	require.False(t, KnownKind(""))
}

// The key order inside payloadJson is sign-critical: it must equal the
// struct declaration order, stable across releases.
func TestMarshalPayloadKeyOrder(t *testing.T) {
	amount := "2000000"
	payload, err := MarshalPayload(BetPayload{
		Kind:  KindBet,
		Table: TableRef{ID: 7, Name: "Main"},
		Hand:  BetHand{ID: 42, Round: "PRE_FLOP", Status: "PRE_FLOP"},
		Action: BetAction{
			Type:          "CALL",
			SeatNumber:    3,
			WalletAddress: "0xabc",
			Amount:        &amount,
			Timestamp:     "2024-05-17T07:30:12.345Z",
		},
	})
	require.NoError(t, err)
	require.Equal(t,
		`{"kind":"bet","table":{"id":7,"name":"Main"},`+
			`"hand":{"id":42,"round":"PRE_FLOP","status":"PRE_FLOP"},`+
			`"action":{"type":"CALL","seatNumber":3,"walletAddress":"0xabc",`+
			`"amount":"2000000","timestamp":"2024-05-17T07:30:12.345Z"}}`,
		payload)
}

func TestMarshalPayloadNullAmount(t *testing.T) {
	payload, err := MarshalPayload(BetAction{
		Type:          "FOLD",
		SeatNumber:    1,
		WalletAddress: "0xabc",
		Amount:        nil,
		Timestamp:     "2024-05-17T07:30:12.345Z",
	})
	require.NoError(t, err)
	require.Contains(t, payload, `"amount":null`)
}

func TestExtractTableID(t *testing.T) {
	withTable, err := MarshalPayload(JoinTablePayload{
		Kind:            KindJoinTable,
		Player:          "0xabc",
		Table:           TableRef{ID: 12, Name: "High Stakes"},
		SeatNumber:      2,
		BuyInAmountGwei: "50000000",
	})
	require.NoError(t, err)
	id := ExtractTableID(withTable)
	require.NotNil(t, id)
	require.Equal(t, int64(12), *id)

	withoutTable, err := MarshalPayload(DepositPayload{
		WalletAddress: "0xabc",
		AmountGwei:    "1",
		TxHash:        "0xdead",
	})
	require.NoError(t, err)
	require.Nil(t, ExtractTableID(withoutTable))

	require.Nil(t, ExtractTableID("not json"))
	require.Nil(t, ExtractTableID(`{"table":{"id":"also-not-a-number"}}`))
}
