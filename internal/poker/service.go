package poker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/Layr-Labs/clout-cards-sub002/internal/cards"
	"github.com/Layr-Labs/clout-cards-sub002/internal/db"
	"github.com/Layr-Labs/clout-cards-sub002/internal/escrow"
	"github.com/Layr-Labs/clout-cards-sub002/internal/evtlog"
	"github.com/Layr-Labs/clout-cards-sub002/internal/faults"
)

// Service runs table lifecycle, seating and hands. Every mutation is one
// transaction: state change plus its signed events commit together.
type Service struct {
	pool        *pgxpool.Pool
	store       *Store
	ledger      *escrow.Ledger
	log         *evtlog.Log
	lg          *logrus.Logger
	houseWallet string
}

func NewService(pool *pgxpool.Pool, store *Store, ledger *escrow.Ledger, log *evtlog.Log, lg *logrus.Logger, houseWallet string) *Service {
	return &Service{pool: pool, store: store, ledger: ledger, log: log, lg: lg, houseWallet: escrow.Normalize(houseWallet)}
}

func (s *Service) Pool() *pgxpool.Pool { return s.pool }
func (s *Service) Store() *Store       { return s.store }

func gweiString(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func cardStrings(cs []cards.Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("entropy: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ---- table administration ----

type CreateTableParams struct {
	Name                  string
	MinimumBuyIn          uint64
	MaximumBuyIn          uint64
	SmallBlind            uint64
	BigBlind              uint64
	PerHandRake           int
	MaxSeatCount          int
	ActionTimeoutSeconds  int
	HandStartDelaySeconds int
}

func (p CreateTableParams) validate() error {
	if p.Name == "" {
		return faults.Validationf("table name is required")
	}
	if p.SmallBlind == 0 || p.BigBlind == 0 {
		return faults.Validationf("blinds must be positive")
	}
	if p.BigBlind < p.SmallBlind {
		return faults.Validationf("big blind must be at least the small blind")
	}
	if p.MinimumBuyIn == 0 || p.MaximumBuyIn < p.MinimumBuyIn {
		return faults.Validationf("buy-in range is invalid")
	}
	if p.MinimumBuyIn < p.BigBlind {
		return faults.Validationf("minimum buy-in must cover the big blind")
	}
	if p.PerHandRake < 0 || p.PerHandRake > 10000 {
		return faults.Validationf("rake must be 0..10000 basis points")
	}
	if p.MaxSeatCount < 2 || p.MaxSeatCount > 8 {
		return faults.Validationf("seat count must be 2..8")
	}
	if p.ActionTimeoutSeconds <= 0 || p.HandStartDelaySeconds < 0 {
		return faults.Validationf("timers are invalid")
	}
	return nil
}

func tableInfo(t *Table) evtlog.TableInfo {
	return evtlog.TableInfo{
		ID:                    t.ID,
		Name:                  t.Name,
		MinimumBuyIn:          gweiString(t.MinimumBuyIn),
		MaximumBuyIn:          gweiString(t.MaximumBuyIn),
		SmallBlind:            gweiString(t.SmallBlind),
		BigBlind:              gweiString(t.BigBlind),
		PerHandRake:           t.PerHandRake,
		MaxSeatCount:          t.MaxSeatCount,
		IsActive:              t.IsActive,
		ActionTimeoutSeconds:  t.ActionTimeoutSeconds,
		HandStartDelaySeconds: t.HandStartDelaySeconds,
	}
}

func (s *Service) CreateTable(ctx context.Context, admin string, p CreateTableParams) (*Table, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	t := &Table{
		Name:                  p.Name,
		MinimumBuyIn:          p.MinimumBuyIn,
		MaximumBuyIn:          p.MaximumBuyIn,
		SmallBlind:            p.SmallBlind,
		BigBlind:              p.BigBlind,
		PerHandRake:           p.PerHandRake,
		MaxSeatCount:          p.MaxSeatCount,
		IsActive:              true,
		ActionTimeoutSeconds:  p.ActionTimeoutSeconds,
		HandStartDelaySeconds: p.HandStartDelaySeconds,
	}
	adminAddr := escrow.Normalize(admin)
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.store.InsertTable(ctx, tx, t); err != nil {
			return err
		}
		payload, err := evtlog.MarshalPayload(evtlog.TableAdminPayload{
			Kind:      evtlog.KindCreateTable,
			Admin:     adminAddr,
			Table:     tableInfo(t),
			Timestamp: evtlog.Timestamp(time.Now()),
		})
		if err != nil {
			return err
		}
		_, err = s.log.Append(ctx, tx, evtlog.KindCreateTable, payload, &adminAddr, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) SetTableActive(ctx context.Context, admin string, tableID int64, active bool) (*Table, error) {
	adminAddr := escrow.Normalize(admin)
	var t *Table
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.store.SetTableActive(ctx, tx, tableID, active); err != nil {
			return err
		}
		var err error
		t, err = s.store.GetTable(ctx, tx, tableID)
		if err != nil {
			return err
		}
		kind := evtlog.KindTableDeactivated
		if active {
			kind = evtlog.KindTableActivated
		}
		payload, err := evtlog.MarshalPayload(evtlog.TableAdminPayload{
			Kind:      kind,
			Admin:     adminAddr,
			Table:     tableInfo(t),
			Timestamp: evtlog.Timestamp(time.Now()),
		})
		if err != nil {
			return err
		}
		_, err = s.log.Append(ctx, tx, kind, payload, &adminAddr, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ResetLeaderboard(ctx context.Context, admin string) error {
	adminAddr := escrow.Normalize(admin)
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		payload, err := evtlog.MarshalPayload(evtlog.LeaderboardResetPayload{
			Kind:      evtlog.KindLeaderboardReset,
			Admin:     adminAddr,
			Timestamp: evtlog.Timestamp(time.Now()),
		})
		if err != nil {
			return err
		}
		_, err = s.log.Append(ctx, tx, evtlog.KindLeaderboardReset, payload, &adminAddr, nil)
		return err
	})
}

// ---- seating ----

type JoinParams struct {
	TableID          int64
	SeatNumber       int
	BuyInGwei        uint64
	TwitterHandle    string
	TwitterAvatarURL string
}

// JoinTable moves escrow funds to a fresh seat session. The partial unique
// indexes make double-seating a conflict, not a race.
func (s *Service) JoinTable(ctx context.Context, wallet string, p JoinParams) (*SeatSession, error) {
	w := escrow.Normalize(wallet)
	var sess *SeatSession
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := s.store.GetTable(ctx, tx, p.TableID)
		if err != nil {
			return err
		}
		if !t.IsActive {
			return faults.Conflictf("table %d is inactive", t.ID)
		}
		if p.SeatNumber < 0 || p.SeatNumber >= t.MaxSeatCount {
			return faults.Validationf("seat %d out of range for table with %d seats", p.SeatNumber, t.MaxSeatCount)
		}
		if p.BuyInGwei < t.MinimumBuyIn || p.BuyInGwei > t.MaximumBuyIn {
			return faults.Validationf("buy-in %d outside table range %d..%d", p.BuyInGwei, t.MinimumBuyIn, t.MaximumBuyIn)
		}
		if err := s.ledger.DebitInTx(ctx, tx, w, uint256.NewInt(p.BuyInGwei)); err != nil {
			return err
		}
		sess = &SeatSession{
			TableID:          t.ID,
			WalletAddress:    w,
			SeatNumber:       p.SeatNumber,
			TableBalanceGwei: p.BuyInGwei,
			TwitterHandle:    p.TwitterHandle,
			TwitterAvatarURL: p.TwitterAvatarURL,
			IsActive:         true,
		}
		if err := s.store.InsertSession(ctx, tx, sess); err != nil {
			return err
		}
		payload, err := evtlog.MarshalPayload(evtlog.JoinTablePayload{
			Kind:             evtlog.KindJoinTable,
			Player:           w,
			Table:            evtlog.TableRef{ID: t.ID, Name: t.Name},
			SeatNumber:       p.SeatNumber,
			BuyInAmountGwei:  gweiString(p.BuyInGwei),
			TwitterHandle:    p.TwitterHandle,
			TwitterAvatarURL: p.TwitterAvatarURL,
		})
		if err != nil {
			return err
		}
		_, err = s.log.Append(ctx, tx, evtlog.KindJoinTable, payload, &w, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	// A second player joining can make the table playable right away; the
	// scheduler tick remains the retry path.
	if _, startErr := s.StartHandIfReady(ctx, p.TableID); startErr != nil {
		s.lg.WithError(startErr).WithField("tableId", p.TableID).Warn("hand start after join failed")
	}
	return sess, nil
}

// inLiveHand reports whether the wallet is dealt into the table's live
// hand. countFolded treats folded seats as still in the hand: rebuys wait
// for the hand to finish, stand-ups are free once the player has folded.
func (s *Service) inLiveHand(ctx context.Context, tx pgx.Tx, tableID int64, wallet string, countFolded bool) (bool, error) {
	h, err := s.store.LiveHand(ctx, tx, tableID)
	if err != nil || h == nil {
		return false, err
	}
	players, err := s.store.HandPlayers(ctx, tx, h.ID)
	if err != nil {
		return false, err
	}
	return handMembershipBlocks(players, wallet, countFolded), nil
}

func handMembershipBlocks(players []*HandPlayer, wallet string, countFolded bool) bool {
	for _, p := range players {
		if p.WalletAddress != wallet {
			continue
		}
		if countFolded || p.Status != PlayerFolded {
			return true
		}
	}
	return false
}

// Rebuy tops up a seated player's table balance between hands.
func (s *Service) Rebuy(ctx context.Context, wallet string, tableID int64, amountGwei uint64) (*SeatSession, error) {
	w := escrow.Normalize(wallet)
	if amountGwei == 0 {
		return nil, faults.Validationf("rebuy amount must be positive")
	}
	var sess *SeatSession
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := s.store.GetTable(ctx, tx, tableID)
		if err != nil {
			return err
		}
		sessions, err := s.store.LockActiveSessions(ctx, tx, tableID)
		if err != nil {
			return err
		}
		for _, cand := range sessions {
			if cand.WalletAddress == w {
				sess = cand
				break
			}
		}
		if sess == nil {
			return faults.NotFoundf("wallet %s is not seated at table %d", w, tableID)
		}
		live, err := s.inLiveHand(ctx, tx, tableID, w, true)
		if err != nil {
			return err
		}
		if live {
			return faults.Conflictf("cannot rebuy during a live hand")
		}
		newBalance := sess.TableBalanceGwei + amountGwei
		if newBalance > t.MaximumBuyIn {
			return faults.Validationf("rebuy would exceed maximum buy-in %d", t.MaximumBuyIn)
		}
		if err := s.ledger.DebitInTx(ctx, tx, w, uint256.NewInt(amountGwei)); err != nil {
			return err
		}
		sess.TableBalanceGwei = newBalance
		if err := s.store.UpdateSessionBalance(ctx, tx, sess.ID, newBalance); err != nil {
			return err
		}
		payload, err := evtlog.MarshalPayload(evtlog.JoinTablePayload{
			Kind:             evtlog.KindJoinTable,
			Player:           w,
			Table:            evtlog.TableRef{ID: t.ID, Name: t.Name},
			SeatNumber:       sess.SeatNumber,
			BuyInAmountGwei:  gweiString(amountGwei),
			TwitterHandle:    sess.TwitterHandle,
			TwitterAvatarURL: sess.TwitterAvatarURL,
			IsRebuy:          true,
		})
		if err != nil {
			return err
		}
		_, err = s.log.Append(ctx, tx, evtlog.KindJoinTable, payload, &w, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// StandUp closes the session and returns the table balance to escrow.
// Standing up mid-hand is rejected; fold first.
func (s *Service) StandUp(ctx context.Context, wallet string, tableID int64) error {
	w := escrow.Normalize(wallet)
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := s.store.GetTable(ctx, tx, tableID)
		if err != nil {
			return err
		}
		sessions, err := s.store.LockActiveSessions(ctx, tx, tableID)
		if err != nil {
			return err
		}
		var sess *SeatSession
		for _, cand := range sessions {
			if cand.WalletAddress == w {
				sess = cand
				break
			}
		}
		if sess == nil {
			return faults.NotFoundf("wallet %s is not seated at table %d", w, tableID)
		}
		live, err := s.inLiveHand(ctx, tx, tableID, w, false)
		if err != nil {
			return err
		}
		if live {
			return faults.Conflictf("cannot stand up during a live hand")
		}
		now := time.Now()
		if err := s.store.CloseSession(ctx, tx, sess.ID, now); err != nil {
			return err
		}
		if sess.TableBalanceGwei > 0 {
			if err := s.ledger.CreditInTx(ctx, tx, w, uint256.NewInt(sess.TableBalanceGwei)); err != nil {
				return err
			}
		}
		payload, err := evtlog.MarshalPayload(evtlog.LeaveTablePayload{
			Kind:             evtlog.KindLeaveTable,
			Player:           w,
			Table:            evtlog.TableRef{ID: t.ID, Name: t.Name},
			SeatNumber:       sess.SeatNumber,
			FinalBalanceGwei: gweiString(sess.TableBalanceGwei),
			TwitterHandle:    sess.TwitterHandle,
			TwitterAvatarURL: sess.TwitterAvatarURL,
		})
		if err != nil {
			return err
		}
		_, err = s.log.Append(ctx, tx, evtlog.KindLeaveTable, payload, &w, nil)
		return err
	})
}

// ---- hands ----

// StartHandIfReady deals a hand when the table is active, idle past its
// start delay and has two eligible players. Returns false when conditions
// are not met; conflicts from concurrent starts surface as errors.
func (s *Service) StartHandIfReady(ctx context.Context, tableID int64) (bool, error) {
	started := false
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := s.store.GetTable(ctx, tx, tableID)
		if err != nil {
			return err
		}
		if !t.IsActive {
			return nil
		}
		sessions, err := s.store.LockActiveSessions(ctx, tx, tableID)
		if err != nil {
			return err
		}
		live, err := s.store.LiveHand(ctx, tx, tableID)
		if err != nil {
			return err
		}
		if live != nil {
			return nil
		}
		now := time.Now()
		lastCompleted, err := s.store.LastHandCompletedAt(ctx, tx, tableID)
		if err != nil {
			return err
		}
		if lastCompleted != nil && now.Sub(*lastCompleted) < time.Duration(t.HandStartDelaySeconds)*time.Second {
			return nil
		}
		eligible := EligibleSessions(sessions, t.BigBlind)
		if len(eligible) < 2 {
			return nil
		}
		prevDealer, err := s.store.LastDealerPosition(ctx, tx, tableID)
		if err != nil {
			return err
		}

		seed, err := randomHex(32)
		if err != nil {
			return err
		}
		nonce, err := randomHex(16)
		if err != nil {
			return err
		}
		state, res, err := NewHandState(t, eligible, prevDealer, seed, nonce, now)
		if err != nil {
			return err
		}
		if err := s.store.InsertHandState(ctx, tx, state, res); err != nil {
			return err
		}

		players := make([]evtlog.HandStartPlayer, 0, len(state.Players))
		for _, seat := range state.seatList() {
			players = append(players, evtlog.HandStartPlayer{
				SeatNumber:    seat,
				WalletAddress: state.Players[seat].WalletAddress,
			})
		}
		payload, err := evtlog.MarshalPayload(evtlog.HandStartPayload{
			Kind:  evtlog.KindHandStart,
			Table: evtlog.TableRef{ID: t.ID, Name: t.Name},
			Hand: evtlog.HandStartHand{
				ID:              state.Hand.ID,
				DealerPosition:  state.Hand.DealerPosition,
				SmallBlindSeat:  state.Hand.SmallBlindSeat,
				BigBlindSeat:    state.Hand.BigBlindSeat,
				ShuffleSeedHash: state.Hand.ShuffleSeedHash,
			},
			Players: players,
		})
		if err != nil {
			return err
		}
		if _, err := s.log.Append(ctx, tx, evtlog.KindHandStart, payload, nil, nil); err != nil {
			return err
		}
		if err := s.emitStep(ctx, tx, t, state, res); err != nil {
			return err
		}
		started = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if started {
		s.lg.WithField("tableId", tableID).Info("hand started")
	}
	return started, nil
}

// Act applies one player action to the table's live hand.
func (s *Service) Act(ctx context.Context, wallet string, tableID int64, action ActionType, amountGwei uint64) error {
	w := escrow.Normalize(wallet)
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := s.store.GetTable(ctx, tx, tableID)
		if err != nil {
			return err
		}
		state, err := s.store.LoadHandState(ctx, tx, t)
		if err != nil {
			return err
		}
		seat := -1
		for sn, p := range state.Players {
			if p.WalletAddress == w {
				seat = sn
				break
			}
		}
		if seat < 0 {
			return faults.NotFoundf("wallet %s is not in the live hand", w)
		}

		// An opening raise is a bet and vice versa; normalize before the
		// engine sees it.
		switch action {
		case ActionRaise:
			if state.Hand.CurrentBet == 0 {
				action = ActionBet
			}
		case ActionBet:
			if state.Hand.CurrentBet != 0 {
				action = ActionRaise
			}
		}

		res, err := state.Apply(seat, action, amountGwei, time.Now())
		if err != nil {
			return err
		}
		if err := s.store.SaveStep(ctx, tx, state, res); err != nil {
			return err
		}
		return s.emitStep(ctx, tx, t, state, res)
	})
}

// FoldOnTimeout force-folds the seat whose action deadline passed. Races
// with a just-arrived action are resolved by the row lock.
func (s *Service) FoldOnTimeout(ctx context.Context, tableID int64, seat int) (bool, error) {
	folded := false
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := s.store.GetTable(ctx, tx, tableID)
		if err != nil {
			return err
		}
		state, err := s.store.LoadHandState(ctx, tx, t)
		if err != nil {
			if faults.IsNotFound(err) {
				return nil
			}
			return err
		}
		res, applied, err := state.FoldOnTimeout(seat, time.Now())
		if err != nil {
			return err
		}
		if !applied {
			// Persist the cleared deadline so the scheduler stops retrying.
			return s.store.SaveStep(ctx, tx, state, &StepResult{})
		}
		if err := s.store.SaveStep(ctx, tx, state, res); err != nil {
			return err
		}
		if err := s.emitStep(ctx, tx, t, state, res); err != nil {
			return err
		}
		folded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if folded {
		s.lg.WithFields(logrus.Fields{"tableId": tableID, "seat": seat}).Info("action timeout; player folded")
	}
	return folded, nil
}

// ---- event emission ----

// emitStep appends the bet, community_cards and hand_end events a step
// produced, in the order the engine produced them.
func (s *Service) emitStep(ctx context.Context, tx pgx.Tx, t *Table, state *HandState, res *StepResult) error {
	ref := evtlog.TableRef{ID: t.ID, Name: t.Name}

	for _, a := range res.NewActions {
		var amount *string
		if a.Amount != nil {
			v := gweiString(*a.Amount)
			amount = &v
		}
		payload, err := evtlog.MarshalPayload(evtlog.BetPayload{
			Kind:  evtlog.KindBet,
			Table: ref,
			Hand:  evtlog.BetHand{ID: state.Hand.ID, Round: string(a.Round), Status: string(a.HandStatusAt)},
			Action: evtlog.BetAction{
				Type:          string(a.EventType),
				SeatNumber:    a.SeatNumber,
				WalletAddress: a.WalletAddr,
				Amount:        amount,
				IsAllIn:       a.IsAllIn,
				Timestamp:     evtlog.Timestamp(a.CreatedAt),
			},
		})
		if err != nil {
			return err
		}
		player := a.WalletAddr
		if _, err := s.log.Append(ctx, tx, evtlog.KindBet, payload, &player, nil); err != nil {
			return err
		}
	}

	for _, d := range res.Dealt {
		payload, err := evtlog.MarshalPayload(evtlog.CommunityCardsPayload{
			Kind:              evtlog.KindCommunityCards,
			Table:             ref,
			Hand:              evtlog.CommunityCardsHand{ID: state.Hand.ID, Round: string(d.Round)},
			CommunityCards:    cardStrings(d.NewCards),
			AllCommunityCards: cardStrings(d.All),
		})
		if err != nil {
			return err
		}
		if _, err := s.log.Append(ctx, tx, evtlog.KindCommunityCards, payload, nil, nil); err != nil {
			return err
		}
	}

	if res.Settlement != nil {
		if err := s.emitHandEnd(ctx, tx, t, state, res.Settlement); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) emitHandEnd(ctx context.Context, tx pgx.Tx, t *Table, state *HandState, settle *Settlement) error {
	h := state.Hand

	if settle.TotalRake > 0 && s.houseWallet != "" {
		if err := s.ledger.CreditInTx(ctx, tx, s.houseWallet, uint256.NewInt(settle.TotalRake)); err != nil {
			return err
		}
	}

	players := []evtlog.HandEndPlayer{}
	for _, seat := range state.seatList() {
		p := state.Players[seat]
		ep := evtlog.HandEndPlayer{
			SeatNumber:    seat,
			WalletAddress: p.WalletAddress,
			Status:        string(p.Status),
		}
		if p.Status != PlayerFolded {
			ep.HoleCards = cards.Join([]cards.Card{p.HoleCards[0], p.HoleCards[1]})
			ep.HandRank = settle.Ranks[seat]
		}
		players = append(players, ep)
	}

	pots := []evtlog.HandEndPot{}
	for _, pr := range settle.Pots {
		winners := []evtlog.HandEndWinner{}
		for _, seat := range pr.Winners {
			winners = append(winners, evtlog.HandEndWinner{
				SeatNumber:    seat,
				WalletAddress: state.Players[seat].WalletAddress,
				AmountWon:     gweiString(pr.Payouts[seat]),
			})
		}
		pots = append(pots, evtlog.HandEndPot{
			PotNumber:         pr.PotNumber,
			Amount:            gweiString(pr.Amount),
			RakeAmount:        gweiString(pr.RakeAmount),
			WinnerSeatNumbers: pr.Winners,
			Winners:           winners,
		})
	}

	actions := []evtlog.HandEndAction{}
	for _, a := range state.Actions {
		var amount *string
		if a.Amount != nil {
			v := gweiString(*a.Amount)
			amount = &v
		}
		actions = append(actions, evtlog.HandEndAction{
			SeatNumber: a.SeatNumber,
			Round:      string(a.Round),
			Action:     string(a.Action),
			Amount:     amount,
			Timestamp:  evtlog.Timestamp(a.CreatedAt),
		})
	}

	payload, err := evtlog.MarshalPayload(evtlog.HandEndPayload{
		Kind:  evtlog.KindHandEnd,
		Table: evtlog.TableRef{ID: t.ID, Name: t.Name},
		Hand: evtlog.HandEndHand{
			ID:                h.ID,
			WinnerSeatNumbers: settle.WinnerSeats,
			TotalPotAmount:    gweiString(settle.TotalPot),
			ShuffleSeed:       h.ShuffleSeed,
			Deck:              cardStrings(h.Deck),
			CompletedAt:       evtlog.Timestamp(*h.CompletedAt),
		},
		RakeBps:        t.PerHandRake,
		CommunityCards: cardStrings(h.CommunityCards),
		Players:        players,
		Pots:           pots,
		Actions:        actions,
	})
	if err != nil {
		return err
	}
	_, err = s.log.Append(ctx, tx, evtlog.KindHandEnd, payload, nil, nil)
	return err
}

// ---- reads ----

// TotalTableBalances sums chips sitting at tables plus chips in live pots,
// for the solvency view.
func (s *Service) TotalTableBalances(ctx context.Context, q Querier) (*uint256.Int, error) {
	var sessions, pots int64
	err := q.QueryRow(ctx, `SELECT COALESCE(sum(table_balance_gwei), 0)
		FROM table_seat_sessions WHERE is_active`).Scan(&sessions)
	if err != nil {
		return nil, fmt.Errorf("sum table balances: %w", err)
	}
	err = q.QueryRow(ctx, `SELECT COALESCE(sum(p.amount), 0)
		FROM pots p JOIN hands h ON h.id = p.hand_id WHERE h.status <> 'COMPLETED'`).Scan(&pots)
	if err != nil {
		return nil, fmt.Errorf("sum live pots: %w", err)
	}
	total := new(uint256.Int).Add(uint256.NewInt(uint64(sessions)), uint256.NewInt(uint64(pots)))
	return total, nil
}
