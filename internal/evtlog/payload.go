package evtlog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds are a closed enumeration; unknown kinds are rejected at append.
const (
	KindDeposit            = "deposit"
	KindWithdrawalRequest  = "withdrawal_request"
	KindWithdrawalExecuted = "withdrawal_executed"
	KindCreateTable        = "create_table"
	KindTableActivated     = "table_activated"
	KindTableDeactivated   = "table_deactivated"
	KindJoinTable          = "join_table"
	KindLeaveTable         = "leave_table"
	KindHandStart          = "hand_start"
	KindCommunityCards     = "community_cards"
	KindBet                = "bet"
	KindHandEnd            = "hand_end"
	KindLeaderboardReset   = "leaderboard_reset"
)

var knownKinds = map[string]bool{
	KindDeposit:            true,
	KindWithdrawalRequest:  true,
	KindWithdrawalExecuted: true,
	KindCreateTable:        true,
	KindTableActivated:     true,
	KindTableDeactivated:   true,
	KindJoinTable:          true,
	KindLeaveTable:         true,
	KindHandStart:          true,
	KindCommunityCards:     true,
	KindBet:                true,
	KindHandEnd:            true,
	KindLeaderboardReset:   true,
}

func KnownKind(kind string) bool {
	return knownKinds[kind]
}

// Timestamp renders the canonical ISO-8601 UTC form with millisecond
// precision used inside payloads. payloadJson is sign-critical, so the
// format must never drift.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Canonical payload shapes, one struct per kind. Field order equals the
// recognized key order; amounts are decimal strings; no floating point.

type TableRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type TableInfo struct {
	ID                    int64  `json:"id"`
	Name                  string `json:"name"`
	MinimumBuyIn          string `json:"minimumBuyIn"`
	MaximumBuyIn          string `json:"maximumBuyIn"`
	SmallBlind            string `json:"smallBlind"`
	BigBlind              string `json:"bigBlind"`
	PerHandRake           int    `json:"perHandRake"`
	MaxSeatCount          int    `json:"maxSeatCount"`
	IsActive              bool   `json:"isActive"`
	ActionTimeoutSeconds  int    `json:"actionTimeoutSeconds"`
	HandStartDelaySeconds int    `json:"handStartDelaySeconds"`
}

type DepositPayload struct {
	WalletAddress  string `json:"walletAddress"`
	AmountGwei     string `json:"amountGwei"`
	TxHash         string `json:"txHash"`
	BlockNumber    uint64 `json:"blockNumber"`
	BlockTimestamp string `json:"blockTimestamp"`
}

type WithdrawalRequestPayload struct {
	WalletAddress string `json:"walletAddress"`
	ToAddress     string `json:"toAddress"`
	AmountGwei    string `json:"amountGwei"`
	AmountWei     string `json:"amountWei"`
	Nonce         string `json:"nonce"`
	Expiry        string `json:"expiry"`
	Digest        string `json:"digest"`
}

type WithdrawalExecutedPayload struct {
	WalletAddress  string `json:"walletAddress"`
	AmountGwei     string `json:"amountGwei"`
	Nonce          string `json:"nonce"`
	TxHash         string `json:"txHash"`
	BlockNumber    uint64 `json:"blockNumber"`
	BlockTimestamp string `json:"blockTimestamp"`
}

type TableAdminPayload struct {
	Kind      string    `json:"kind"`
	Admin     string    `json:"admin"`
	Table     TableInfo `json:"table"`
	Timestamp string    `json:"timestamp,omitempty"`
}

type JoinTablePayload struct {
	Kind             string   `json:"kind"`
	Player           string   `json:"player"`
	Table            TableRef `json:"table"`
	SeatNumber       int      `json:"seatNumber"`
	BuyInAmountGwei  string   `json:"buyInAmountGwei"`
	TwitterHandle    string   `json:"twitterHandle,omitempty"`
	TwitterAvatarURL string   `json:"twitterAvatarUrl,omitempty"`
	IsRebuy          bool     `json:"isRebuy,omitempty"`
}

type LeaveTablePayload struct {
	Kind             string   `json:"kind"`
	Player           string   `json:"player"`
	Table            TableRef `json:"table"`
	SeatNumber       int      `json:"seatNumber"`
	FinalBalanceGwei string   `json:"finalBalanceGwei"`
	TwitterHandle    string   `json:"twitterHandle,omitempty"`
	TwitterAvatarURL string   `json:"twitterAvatarUrl,omitempty"`
}

type HandStartHand struct {
	ID              int64  `json:"id"`
	DealerPosition  int    `json:"dealerPosition"`
	SmallBlindSeat  int    `json:"smallBlindSeat"`
	BigBlindSeat    int    `json:"bigBlindSeat"`
	ShuffleSeedHash string `json:"shuffleSeedHash"`
}

type HandStartPlayer struct {
	SeatNumber    int    `json:"seatNumber"`
	WalletAddress string `json:"walletAddress"`
}

type HandStartPayload struct {
	Kind    string            `json:"kind"`
	Table   TableRef          `json:"table"`
	Hand    HandStartHand     `json:"hand"`
	Players []HandStartPlayer `json:"players"`
}

type CommunityCardsHand struct {
	ID    int64  `json:"id"`
	Round string `json:"round"`
}

type CommunityCardsPayload struct {
	Kind              string             `json:"kind"`
	Table             TableRef           `json:"table"`
	Hand              CommunityCardsHand `json:"hand"`
	CommunityCards    []string           `json:"communityCards"`
	AllCommunityCards []string           `json:"allCommunityCards"`
}

type BetHand struct {
	ID     int64  `json:"id"`
	Round  string `json:"round"`
	Status string `json:"status"`
}

type BetAction struct {
	Type          string  `json:"type"`
	SeatNumber    int     `json:"seatNumber"`
	WalletAddress string  `json:"walletAddress"`
	Amount        *string `json:"amount"`
	IsAllIn       bool    `json:"isAllIn,omitempty"`
	Timestamp     string  `json:"timestamp"`
}

type BetPayload struct {
	Kind   string    `json:"kind"`
	Table  TableRef  `json:"table"`
	Hand   BetHand   `json:"hand"`
	Action BetAction `json:"action"`
}

type HandEndHand struct {
	ID                int64    `json:"id"`
	WinnerSeatNumbers []int    `json:"winnerSeatNumbers"`
	TotalPotAmount    string   `json:"totalPotAmount"`
	ShuffleSeed       string   `json:"shuffleSeed"`
	Deck              []string `json:"deck"`
	CompletedAt       string   `json:"completedAt"`
}

type HandEndPlayer struct {
	SeatNumber    int    `json:"seatNumber"`
	WalletAddress string `json:"walletAddress"`
	Status        string `json:"status"`
	HoleCards     string `json:"holeCards,omitempty"`
	HandRank      string `json:"handRank,omitempty"`
}

type HandEndWinner struct {
	SeatNumber    int    `json:"seatNumber"`
	WalletAddress string `json:"walletAddress"`
	AmountWon     string `json:"amountWon"`
}

type HandEndPot struct {
	PotNumber         int             `json:"potNumber"`
	Amount            string          `json:"amount"`
	RakeAmount        string          `json:"rakeAmount"`
	WinnerSeatNumbers []int           `json:"winnerSeatNumbers"`
	Winners           []HandEndWinner `json:"winners"`
}

type HandEndAction struct {
	SeatNumber int     `json:"seatNumber"`
	Round      string  `json:"round"`
	Action     string  `json:"action"`
	Amount     *string `json:"amount"`
	Timestamp  string  `json:"timestamp"`
}

type HandEndPayload struct {
	Kind           string          `json:"kind"`
	Table          TableRef        `json:"table"`
	Hand           HandEndHand     `json:"hand"`
	RakeBps        int             `json:"rakeBps"`
	CommunityCards []string        `json:"communityCards"`
	Players        []HandEndPlayer `json:"players"`
	Pots           []HandEndPot    `json:"pots"`
	Actions        []HandEndAction `json:"actions"`
}

type LeaderboardResetPayload struct {
	Kind      string `json:"kind"`
	Admin     string `json:"admin"`
	Timestamp string `json:"timestamp"`
}

// MarshalPayload produces the canonical byte-stable payloadJson string.
// encoding/json over fixed structs emits fields in declaration order, which
// is exactly the recognized key order per kind.
func MarshalPayload(p any) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return string(b), nil
}

// ExtractTableID pulls the fan-out routing key out of a payload by parsing
// for table.id. Payloads without a table reference route with a nil key.
func ExtractTableID(payloadJSON string) *int64 {
	var probe struct {
		Table struct {
			ID json.Number `json:"id"`
		} `json:"table"`
	}
	if err := json.Unmarshal([]byte(payloadJSON), &probe); err != nil {
		return nil
	}
	if probe.Table.ID == "" {
		return nil
	}
	id, err := probe.Table.ID.Int64()
	if err != nil {
		return nil
	}
	return &id
}
