package server

import (
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Layr-Labs/clout-cards-sub002/internal/cards"
	"github.com/Layr-Labs/clout-cards-sub002/internal/evtlog"
	"github.com/Layr-Labs/clout-cards-sub002/internal/poker"
)

// Output conventions: 256-bit amounts as decimal strings, timestamps
// ISO-8601 ms, hex lower-case 0x-prefixed, wallets EIP-55 on the way out.

func checksum(wallet string) string {
	return common.HexToAddress(wallet).Hex()
}

func gwei(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func ts(t time.Time) string {
	return evtlog.Timestamp(t)
}

func tsPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := evtlog.Timestamp(*t)
	return &s
}

func cardStrings(cs []cards.Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

type tableView struct {
	ID                    int64   `json:"id"`
	Name                  string  `json:"name"`
	MinimumBuyIn          string  `json:"minimumBuyIn"`
	MaximumBuyIn          string  `json:"maximumBuyIn"`
	SmallBlind            string  `json:"smallBlind"`
	BigBlind              string  `json:"bigBlind"`
	PerHandRake           int     `json:"perHandRake"`
	MaxSeatCount          int     `json:"maxSeatCount"`
	IsActive              bool    `json:"isActive"`
	ActionTimeoutSeconds  int     `json:"actionTimeoutSeconds"`
	HandStartDelaySeconds int     `json:"handStartDelaySeconds"`
	CreatedAt             string  `json:"createdAt"`
	SeatedPlayers         int     `json:"seatedPlayers"`
	LiveHandID            *int64  `json:"liveHandId"`
	NextHandEarliestAt    *string `json:"nextHandEarliestAt"`
}

func newTableView(t *poker.Table, seated int, liveHandID *int64, lastCompleted *time.Time) tableView {
	v := tableView{
		ID:                    t.ID,
		Name:                  t.Name,
		MinimumBuyIn:          gwei(t.MinimumBuyIn),
		MaximumBuyIn:          gwei(t.MaximumBuyIn),
		SmallBlind:            gwei(t.SmallBlind),
		BigBlind:              gwei(t.BigBlind),
		PerHandRake:           t.PerHandRake,
		MaxSeatCount:          t.MaxSeatCount,
		IsActive:              t.IsActive,
		ActionTimeoutSeconds:  t.ActionTimeoutSeconds,
		HandStartDelaySeconds: t.HandStartDelaySeconds,
		CreatedAt:             ts(t.CreatedAt),
		SeatedPlayers:         seated,
		LiveHandID:            liveHandID,
	}
	if liveHandID == nil && lastCompleted != nil {
		next := lastCompleted.Add(time.Duration(t.HandStartDelaySeconds) * time.Second)
		s := ts(next)
		v.NextHandEarliestAt = &s
	}
	return v
}

type sessionView struct {
	SeatNumber       int    `json:"seatNumber"`
	WalletAddress    string `json:"walletAddress"`
	TableBalanceGwei string `json:"tableBalanceGwei"`
	TwitterHandle    string `json:"twitterHandle,omitempty"`
	TwitterAvatarURL string `json:"twitterAvatarUrl,omitempty"`
	JoinedAt         string `json:"joinedAt"`
}

func newSessionView(s *poker.SeatSession) sessionView {
	return sessionView{
		SeatNumber:       s.SeatNumber,
		WalletAddress:    checksum(s.WalletAddress),
		TableBalanceGwei: gwei(s.TableBalanceGwei),
		TwitterHandle:    s.TwitterHandle,
		TwitterAvatarURL: s.TwitterAvatarURL,
		JoinedAt:         ts(s.JoinedAt),
	}
}

type handPlayerView struct {
	SeatNumber     int      `json:"seatNumber"`
	WalletAddress  string   `json:"walletAddress"`
	Status         string   `json:"status"`
	ChipsCommitted string   `json:"chipsCommitted"`
	HoleCards      []string `json:"holeCards,omitempty"`
}

type potView struct {
	PotNumber         int    `json:"potNumber"`
	Amount            string `json:"amount"`
	EligibleSeats     []int  `json:"eligibleSeatNumbers"`
	WinnerSeatNumbers []int  `json:"winnerSeatNumbers,omitempty"`
}

type actionView struct {
	SeatNumber int     `json:"seatNumber"`
	Round      string  `json:"round"`
	Action     string  `json:"action"`
	Amount     *string `json:"amount"`
	Timestamp  string  `json:"timestamp"`
}

type handView struct {
	ID                int64            `json:"id"`
	TableID           int64            `json:"tableId"`
	Status            string           `json:"status"`
	Round             *string          `json:"round"`
	DealerPosition    int              `json:"dealerPosition"`
	SmallBlindSeat    int              `json:"smallBlindSeat"`
	BigBlindSeat      int              `json:"bigBlindSeat"`
	CurrentActionSeat *int             `json:"currentActionSeat"`
	CurrentBet        string           `json:"currentBet"`
	LastRaiseAmount   string           `json:"lastRaiseAmount"`
	CommunityCards    []string         `json:"communityCards"`
	ShuffleSeedHash   string           `json:"shuffleSeedHash"`
	ShuffleSeed       string           `json:"shuffleSeed,omitempty"`
	DeckNonce         string           `json:"deckNonce,omitempty"`
	Deck              []string         `json:"deck,omitempty"`
	ActionTimeoutAt   *string          `json:"actionTimeoutAt"`
	StartedAt         string           `json:"startedAt"`
	CompletedAt       *string          `json:"completedAt"`
	Players           []handPlayerView `json:"players"`
	Pots              []potView        `json:"pots"`
	Actions           []actionView     `json:"actions"`
}

// newHandView renders a hand. Hole cards appear only for the viewer's own
// seat while the hand is live; everything (hole cards, deck, seed, nonce)
// is open once COMPLETED.
func newHandView(h *poker.Hand, players []*poker.HandPlayer, pots []poker.Pot, actions []poker.HandAction, viewer string) handView {
	completed := h.Status == poker.StatusCompleted
	v := handView{
		ID:                h.ID,
		TableID:           h.TableID,
		Status:            string(h.Status),
		DealerPosition:    h.DealerPosition,
		SmallBlindSeat:    h.SmallBlindSeat,
		BigBlindSeat:      h.BigBlindSeat,
		CurrentActionSeat: h.CurrentActionSeat,
		CurrentBet:        gwei(h.CurrentBet),
		LastRaiseAmount:   gwei(h.LastRaiseAmount),
		CommunityCards:    cardStrings(h.CommunityCards),
		ShuffleSeedHash:   h.ShuffleSeedHash,
		ActionTimeoutAt:   tsPtr(h.ActionTimeoutAt),
		StartedAt:         ts(h.StartedAt),
		CompletedAt:       tsPtr(h.CompletedAt),
		Players:           []handPlayerView{},
		Pots:              []potView{},
		Actions:           []actionView{},
	}
	if h.Round != nil {
		r := string(*h.Round)
		v.Round = &r
	}
	if completed {
		v.ShuffleSeed = h.ShuffleSeed
		v.DeckNonce = h.DeckNonce
		v.Deck = cardStrings(h.Deck)
	}

	for _, p := range players {
		pv := handPlayerView{
			SeatNumber:     p.SeatNumber,
			WalletAddress:  checksum(p.WalletAddress),
			Status:         string(p.Status),
			ChipsCommitted: gwei(p.ChipsCommitted),
		}
		if completed || (viewer != "" && p.WalletAddress == viewer) {
			pv.HoleCards = cardStrings([]cards.Card{p.HoleCards[0], p.HoleCards[1]})
		}
		v.Players = append(v.Players, pv)
	}

	for _, p := range pots {
		v.Pots = append(v.Pots, potView{
			PotNumber:         p.PotNumber,
			Amount:            gwei(p.Amount),
			EligibleSeats:     p.EligibleSeats,
			WinnerSeatNumbers: p.WinnerSeatNumbers,
		})
	}

	for _, a := range actions {
		var amount *string
		if a.Amount != nil {
			s := gwei(*a.Amount)
			amount = &s
		}
		v.Actions = append(v.Actions, actionView{
			SeatNumber: a.SeatNumber,
			Round:      string(a.Round),
			Action:     string(a.Action),
			Amount:     amount,
			Timestamp:  ts(a.CreatedAt),
		})
	}
	return v
}

type signatureView struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint8  `json:"v"`
}

type eventView struct {
	EventID        int64         `json:"eventId"`
	BlockTs        string        `json:"blockTimestamp"`
	Kind           string        `json:"kind"`
	PayloadJSON    string        `json:"payloadJson"`
	Digest         string        `json:"digest"`
	Signature      signatureView `json:"signature"`
	Nonce          *string       `json:"nonce"`
	Player         *string       `json:"player"`
	TableID        *int64        `json:"tableId"`
	TEEVersion     int           `json:"teeVersion"`
	TEEPubkey      string        `json:"teePubkey"`
	IngestedAt     string        `json:"ingestedAt"`
	SignatureValid bool          `json:"signatureValid"`
}

func newEventView(ev *evtlog.Event, sigValid bool) eventView {
	v := eventView{
		EventID:     ev.ID,
		BlockTs:     ts(ev.BlockTs),
		Kind:        ev.Kind,
		PayloadJSON: ev.PayloadJSON,
		Digest:      hexutil.Encode(ev.Digest[:]),
		Signature: signatureView{
			R: hexutil.Encode(ev.Sig.R[:]),
			S: hexutil.Encode(ev.Sig.S[:]),
			V: ev.Sig.V,
		},
		TableID:        ev.TableID,
		TEEVersion:     ev.TEEVersion,
		TEEPubkey:      checksum(ev.TEEPubkey),
		IngestedAt:     ts(ev.IngestedAt),
		SignatureValid: sigValid,
	}
	if ev.Nonce != nil {
		n := ev.Nonce.String()
		v.Nonce = &n
	}
	if ev.Player != nil {
		p := checksum(*ev.Player)
		v.Player = &p
	}
	return v
}
