// Package poker implements tables, seating and the Texas Hold'em hand
// state machine against the signed event log.
package poker

import (
	"time"

	"github.com/Layr-Labs/clout-cards-sub002/internal/cards"
)

// Table is one poker-table record. Chip amounts are gwei and bounded by
// int64 at creation, so engine arithmetic stays in uint64.
type Table struct {
	ID                    int64
	Name                  string
	MinimumBuyIn          uint64
	MaximumBuyIn          uint64
	SmallBlind            uint64
	BigBlind              uint64
	PerHandRake           int // basis points, 0..10000
	MaxSeatCount          int
	IsActive              bool
	ActionTimeoutSeconds  int
	HandStartDelaySeconds int
	CreatedAt             time.Time
}

// SeatSession is one wallet's occupancy of a seat, alive until stand-up.
type SeatSession struct {
	ID               int64
	TableID          int64
	WalletAddress    string
	SeatNumber       int
	TableBalanceGwei uint64
	TwitterHandle    string
	TwitterAvatarURL string
	JoinedAt         time.Time
	LeftAt           *time.Time
	IsActive         bool
}

type HandStatus string

const (
	StatusShuffling HandStatus = "SHUFFLING"
	StatusPreFlop   HandStatus = "PRE_FLOP"
	StatusFlop      HandStatus = "FLOP"
	StatusTurn      HandStatus = "TURN"
	StatusRiver     HandStatus = "RIVER"
	StatusCompleted HandStatus = "COMPLETED"
)

type Round string

const (
	RoundPreFlop Round = "PRE_FLOP"
	RoundFlop    Round = "FLOP"
	RoundTurn    Round = "TURN"
	RoundRiver   Round = "RIVER"
)

func statusForRound(r Round) HandStatus {
	switch r {
	case RoundPreFlop:
		return StatusPreFlop
	case RoundFlop:
		return StatusFlop
	case RoundTurn:
		return StatusTurn
	case RoundRiver:
		return StatusRiver
	}
	return StatusShuffling
}

type PlayerStatus string

const (
	PlayerActive PlayerStatus = "ACTIVE"
	PlayerFolded PlayerStatus = "FOLDED"
	PlayerAllIn  PlayerStatus = "ALL_IN"
)

type ActionType string

const (
	ActionPostBlind ActionType = "POST_BLIND"
	ActionFold      ActionType = "FOLD"
	ActionCheck     ActionType = "CHECK"
	ActionCall      ActionType = "CALL"
	ActionBet       ActionType = "BET"
	ActionRaise     ActionType = "RAISE"
	ActionAllIn     ActionType = "ALL_IN"
)

// Hand is one dealt hand. Deck order is committed via ShuffleSeedHash at
// start; ShuffleSeed and DeckNonce are stored from the start but only
// exposed through the API once the hand is COMPLETED.
type Hand struct {
	ID                int64
	TableID           int64
	Status            HandStatus
	Round             *Round // nil once COMPLETED
	DealerPosition    int
	SmallBlindSeat    int
	BigBlindSeat      int
	CurrentActionSeat *int // nil when all remaining players are all-in
	CurrentBet        uint64
	LastRaiseAmount   uint64
	Deck              []cards.Card
	DeckPosition      int
	CommunityCards    []cards.Card
	ShuffleSeedHash   string
	ShuffleSeed       string
	DeckNonce         string
	ActionTimeoutAt   *time.Time
	StartedAt         time.Time
	CompletedAt       *time.Time
}

// HandPlayer is one seat's participation in a hand. ChipsCommitted is the
// current betting round only; whole-hand totals are derived from actions.
type HandPlayer struct {
	HandID         int64
	SeatNumber     int
	WalletAddress  string
	Status         PlayerStatus
	ChipsCommitted uint64
	HoleCards      [2]cards.Card
}

// HandAction is one append-only action record. Amount is the incremental
// gwei this action moved; nil for FOLD and CHECK.
type HandAction struct {
	ID         int64
	HandID     int64
	SeatNumber int
	Round      Round
	Action     ActionType
	Amount     *uint64
	CreatedAt  time.Time
}

// Pot is a main (0) or side pot. Amount is pre-rake until settlement
// rewrites it.
type Pot struct {
	HandID            int64
	PotNumber         int
	Amount            uint64
	EligibleSeats     []int
	WinnerSeatNumbers []int
}

func amountPtr(v uint64) *uint64 {
	return &v
}
