package poker

import (
	"fmt"
	"sort"
	"time"

	"github.com/Layr-Labs/clout-cards-sub002/internal/cards"
	"github.com/Layr-Labs/clout-cards-sub002/internal/faults"
)

// HandState is the in-memory aggregate the rules operate on. The store
// layer loads it under row locks and persists it after a step; the rules
// themselves never touch the database.
type HandState struct {
	Table    *Table
	Hand     *Hand
	Players  map[int]*HandPlayer  // by seat
	Sessions map[int]*SeatSession // by seat, for the seats in this hand
	Actions  []HandAction
	Pots     []Pot
}

// ActionRecord is one action appended during a step, annotated with the
// context its bet event needs.
type ActionRecord struct {
	HandAction
	EventType    ActionType // BET is recorded as RAISE in the DB but announced as BET
	WalletAddr   string
	IsAllIn      bool
	HandStatusAt HandStatus
}

// DealtStreet captures a community-card reveal for the community_cards event.
type DealtStreet struct {
	Round    Round
	NewCards []cards.Card
	All      []cards.Card
}

// PotResult is one settled pot: post-rake amount, winners, payouts.
type PotResult struct {
	PotNumber  int
	Amount     uint64 // after rake
	RakeAmount uint64
	Winners    []int
	Payouts    map[int]uint64
}

type Settlement struct {
	Pots        []PotResult
	TotalPot    uint64 // pre-rake
	TotalRake   uint64
	WinnerSeats []int
	Ranks       map[int]string // non-folded seats only
}

// StepResult is everything a single engine step produced, in order.
type StepResult struct {
	NewActions []ActionRecord
	Dealt      []DealtStreet
	Settlement *Settlement
}

// ---- position helpers ----

func (s *HandState) seatList() []int {
	seats := make([]int, 0, len(s.Players))
	for seat := range s.Players {
		seats = append(seats, seat)
	}
	sort.Ints(seats)
	return seats
}

// nextSeatAfter walks clockwise (ascending seat index, wrapping) over the
// hand's seats starting strictly after from.
func (s *HandState) nextSeatAfter(from int, pred func(*HandPlayer) bool) *int {
	seats := s.seatList()
	n := len(seats)
	if n == 0 {
		return nil
	}
	start := 0
	for i, seat := range seats {
		if seat > from {
			start = i
			break
		}
		start = i + 1
	}
	for step := 0; step < n; step++ {
		seat := seats[(start+step)%n]
		if pred(s.Players[seat]) {
			return &seat
		}
	}
	return nil
}

func (s *HandState) nextActive(from int) *int {
	return s.nextSeatAfter(from, func(p *HandPlayer) bool { return p.Status == PlayerActive })
}

func (s *HandState) countStatus(st PlayerStatus) int {
	n := 0
	for _, p := range s.Players {
		if p.Status == st {
			n++
		}
	}
	return n
}

func (s *HandState) nonFoldedSeats() []int {
	out := []int{}
	for seat, p := range s.Players {
		if p.Status != PlayerFolded {
			out = append(out, seat)
		}
	}
	sort.Ints(out)
	return out
}

// totalsCommitted sums every non-nil action amount per seat across the
// whole hand, including blinds and folded players' contributions.
func (s *HandState) totalsCommitted() map[int]uint64 {
	totals := map[int]uint64{}
	for _, a := range s.Actions {
		if a.Amount != nil {
			totals[a.SeatNumber] += *a.Amount
		}
	}
	return totals
}

func (s *HandState) hasActedThisRound(seat int) bool {
	if s.Hand.Round == nil {
		return false
	}
	for _, a := range s.Actions {
		if a.SeatNumber == seat && a.Round == *s.Hand.Round && a.Action != ActionPostBlind {
			return true
		}
	}
	return false
}

// roundComplete: every non-folded player is either all-in, or has taken a
// non-POST_BLIND action this round and matched the current bet. The big
// blind therefore always keeps its pre-flop option.
func (s *HandState) roundComplete() bool {
	activeSeen := false
	for seat, p := range s.Players {
		switch p.Status {
		case PlayerFolded, PlayerAllIn:
			continue
		}
		activeSeen = true
		if !s.hasActedThisRound(seat) {
			return false
		}
		if p.ChipsCommitted < s.Hand.CurrentBet {
			return false
		}
	}
	if !activeSeen {
		// No active players left; complete as long as someone is all-in.
		return s.countStatus(PlayerAllIn) >= 1
	}
	return true
}

// noFurtherBetting: a runout is forced when at most one player can still
// act and that player is not facing an unmatched bet.
func (s *HandState) noFurtherBetting() bool {
	active := s.countStatus(PlayerActive)
	allIn := s.countStatus(PlayerAllIn)
	nonFolded := len(s.nonFoldedSeats())
	if active == 0 {
		return allIn >= 1 && nonFolded >= 1
	}
	if active == 1 && allIn >= 1 {
		for _, p := range s.Players {
			if p.Status == PlayerActive {
				return p.ChipsCommitted >= s.Hand.CurrentBet
			}
		}
	}
	return false
}

func (s *HandState) recordAction(res *StepResult, seat int, dbAction, eventAction ActionType, amount *uint64, now time.Time) {
	round := RoundPreFlop
	if s.Hand.Round != nil {
		round = *s.Hand.Round
	}
	a := HandAction{
		HandID:     s.Hand.ID,
		SeatNumber: seat,
		Round:      round,
		Action:     dbAction,
		Amount:     amount,
		CreatedAt:  now,
	}
	s.Actions = append(s.Actions, a)
	p := s.Players[seat]
	res.NewActions = append(res.NewActions, ActionRecord{
		HandAction:   a,
		EventType:    eventAction,
		WalletAddr:   p.WalletAddress,
		IsAllIn:      p.Status == PlayerAllIn,
		HandStatusAt: s.Hand.Status,
	})
}

func (s *HandState) setActionSeat(seat *int, now time.Time) {
	s.Hand.CurrentActionSeat = seat
	if seat == nil {
		s.Hand.ActionTimeoutAt = nil
		return
	}
	deadline := now.Add(time.Duration(s.Table.ActionTimeoutSeconds) * time.Second)
	s.Hand.ActionTimeoutAt = &deadline
}

// ---- hand construction ----

// EligibleSessions filters the active sessions that can be dealt in:
// balance at least one big blind.
func EligibleSessions(sessions []*SeatSession, bigBlind uint64) []*SeatSession {
	out := []*SeatSession{}
	for _, sess := range sessions {
		if sess.IsActive && sess.TableBalanceGwei >= bigBlind {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out
}

// NextDealer rotates the button: the next eligible seat clockwise from the
// previous dealer, or the smallest eligible seat when there is no usable
// predecessor.
func NextDealer(eligibleSeats []int, prevDealer *int) int {
	if len(eligibleSeats) == 0 {
		return 0
	}
	sorted := append([]int(nil), eligibleSeats...)
	sort.Ints(sorted)
	if prevDealer == nil {
		return sorted[0]
	}
	prevEligible := false
	for _, seat := range sorted {
		if seat == *prevDealer {
			prevEligible = true
			break
		}
	}
	if !prevEligible {
		return sorted[0]
	}
	for _, seat := range sorted {
		if seat > *prevDealer {
			return seat
		}
	}
	return sorted[0]
}

// NewHandState deals a fresh hand: committed shuffle, hole cards, blinds,
// main pot, first action. The seed is derived from the wall clock by the
// caller and stays hidden until settlement.
func NewHandState(table *Table, eligible []*SeatSession, prevDealer *int, seed, nonce string, now time.Time) (*HandState, *StepResult, error) {
	if len(eligible) < 2 {
		return nil, nil, faults.Validationf("need at least 2 eligible players, have %d", len(eligible))
	}

	seats := make([]int, 0, len(eligible))
	sessions := map[int]*SeatSession{}
	for _, sess := range eligible {
		seats = append(seats, sess.SeatNumber)
		sessions[sess.SeatNumber] = sess
	}
	sort.Ints(seats)

	dealer := NextDealer(seats, prevDealer)

	deck := cards.ShuffledDeck(seed)
	deckString := cards.Join(deck)

	round := RoundPreFlop
	hand := &Hand{
		TableID:         table.ID,
		Status:          StatusPreFlop,
		Round:           &round,
		DealerPosition:  dealer,
		Deck:            deck,
		ShuffleSeedHash: cards.Commitment(deckString, nonce),
		ShuffleSeed:     seed,
		DeckNonce:       nonce,
		StartedAt:       now,
	}

	s := &HandState{
		Table:    table,
		Hand:     hand,
		Players:  map[int]*HandPlayer{},
		Sessions: sessions,
	}
	for _, seat := range seats {
		s.Players[seat] = &HandPlayer{
			SeatNumber:    seat,
			WalletAddress: sessions[seat].WalletAddress,
			Status:        PlayerActive,
		}
	}

	// Blind positions: heads-up the dealer posts the small blind and acts
	// first pre-flop; otherwise blinds are the next two seats clockwise.
	if len(seats) == 2 {
		hand.SmallBlindSeat = dealer
		other := s.nextActive(dealer)
		hand.BigBlindSeat = *other
	} else {
		sb := s.nextActive(dealer)
		hand.SmallBlindSeat = *sb
		bb := s.nextActive(*sb)
		hand.BigBlindSeat = *bb
	}

	// Two hole cards per eligible player in seat order.
	for _, seat := range seats {
		p := s.Players[seat]
		p.HoleCards = [2]cards.Card{deck[hand.DeckPosition], deck[hand.DeckPosition+1]}
		hand.DeckPosition += 2
	}

	res := &StepResult{}
	if err := s.postBlind(res, hand.SmallBlindSeat, table.SmallBlind, now); err != nil {
		return nil, nil, err
	}
	if err := s.postBlind(res, hand.BigBlindSeat, table.BigBlind, now); err != nil {
		return nil, nil, err
	}

	hand.CurrentBet = table.BigBlind
	hand.LastRaiseAmount = table.BigBlind - table.SmallBlind

	// Main pot starts with the blinds, eligible to everyone dealt in.
	s.Pots = []Pot{{PotNumber: 0, Amount: table.SmallBlind + table.BigBlind, EligibleSeats: append([]int(nil), seats...)}}

	var first *int
	if len(seats) == 2 {
		if s.Players[dealer].Status == PlayerActive {
			first = &dealer
		} else {
			first = s.nextActive(dealer)
		}
	} else {
		first = s.nextActive(hand.BigBlindSeat)
	}
	s.setActionSeat(first, now)

	// Equal blinds can leave every player all-in from the posts alone; the
	// hand then runs out with no one to act.
	if first == nil {
		if err := s.progress(res, hand.BigBlindSeat, now); err != nil {
			return nil, nil, err
		}
	}

	return s, res, nil
}

func (s *HandState) postBlind(res *StepResult, seat int, amount uint64, now time.Time) error {
	sess := s.Sessions[seat]
	p := s.Players[seat]
	if sess == nil || p == nil {
		return faults.Invariantf("blind seat %d has no session", seat)
	}
	if sess.TableBalanceGwei < amount {
		return faults.Invariantf("blind seat %d cannot cover blind %d", seat, amount)
	}
	sess.TableBalanceGwei -= amount
	p.ChipsCommitted += amount
	if sess.TableBalanceGwei == 0 {
		p.Status = PlayerAllIn
	}
	s.recordAction(res, seat, ActionPostBlind, ActionPostBlind, amountPtr(amount), now)
	return nil
}

// ---- player actions ----

// roundToBlindIncrement floors an amount to a big-blind multiple. All-in
// amounts are exempt.
func roundToBlindIncrement(amount, bigBlind uint64) uint64 {
	if bigBlind == 0 {
		return amount
	}
	return amount - amount%bigBlind
}

// Apply executes one player action and then advances the hand as far as it
// can go without further input (auto-advance, runout, settlement).
// amount is the incremental gwei the player puts in now; it is ignored for
// FOLD and CHECK and derived for CALL and ALL_IN.
func (s *HandState) Apply(seat int, action ActionType, amount uint64, now time.Time) (*StepResult, error) {
	h := s.Hand
	if h.Status == StatusCompleted {
		return nil, faults.Conflictf("hand is completed")
	}
	p := s.Players[seat]
	if p == nil {
		return nil, faults.NotFoundf("seat %d is not in this hand", seat)
	}
	if p.Status != PlayerActive {
		return nil, faults.Conflictf("player at seat %d cannot act (%s)", seat, p.Status)
	}
	if h.CurrentActionSeat == nil || *h.CurrentActionSeat != seat {
		return nil, faults.Conflictf("not player's turn")
	}
	sess := s.Sessions[seat]
	if sess == nil {
		return nil, faults.Invariantf("seat %d has no session", seat)
	}

	res := &StepResult{}
	potsStale := false

	switch action {
	case ActionFold:
		p.Status = PlayerFolded
		s.recordAction(res, seat, ActionFold, ActionFold, nil, now)

	case ActionCheck:
		if h.CurrentBet != 0 && p.ChipsCommitted != h.CurrentBet {
			return nil, faults.Validationf("check is not legal facing a bet")
		}
		s.recordAction(res, seat, ActionCheck, ActionCheck, nil, now)

	case ActionCall:
		if h.CurrentBet == 0 || p.ChipsCommitted >= h.CurrentBet {
			return nil, faults.Validationf("nothing to call")
		}
		callAmount := h.CurrentBet - p.ChipsCommitted
		if sess.TableBalanceGwei < callAmount {
			return nil, faults.Validationf("insufficient balance to call; go all-in")
		}
		sess.TableBalanceGwei -= callAmount
		p.ChipsCommitted = h.CurrentBet
		if sess.TableBalanceGwei == 0 {
			p.Status = PlayerAllIn
			potsStale = true
		}
		s.recordAction(res, seat, ActionCall, ActionCall, amountPtr(callAmount), now)

	case ActionBet:
		if h.CurrentBet != 0 {
			return nil, faults.Validationf("cannot bet into an open bet; raise instead")
		}
		if err := s.applyOpenBet(res, seat, amount, false, now); err != nil {
			return nil, err
		}
		potsStale = p.Status == PlayerAllIn

	case ActionRaise:
		if h.CurrentBet == 0 {
			return nil, faults.Validationf("cannot raise with no open bet; bet instead")
		}
		if err := s.applyRaise(res, seat, amount, false, now); err != nil {
			return nil, err
		}
		potsStale = p.Status == PlayerAllIn

	case ActionAllIn:
		if sess.TableBalanceGwei == 0 {
			return nil, faults.Validationf("no chips to go all-in with")
		}
		all := sess.TableBalanceGwei
		if h.CurrentBet == 0 {
			if err := s.applyOpenBet(res, seat, all, true, now); err != nil {
				return nil, err
			}
		} else {
			if err := s.applyRaise(res, seat, all, true, now); err != nil {
				return nil, err
			}
		}
		potsStale = true

	default:
		return nil, faults.Validationf("unknown action %q", action)
	}

	if potsStale {
		s.rebuildPots()
	}
	if err := s.progress(res, seat, now); err != nil {
		return nil, err
	}
	return res, nil
}

// applyOpenBet handles BET and the all-in variant of it. The incremental
// amount becomes the new current bet.
func (s *HandState) applyOpenBet(res *StepResult, seat int, amount uint64, allIn bool, now time.Time) error {
	h := s.Hand
	p := s.Players[seat]
	sess := s.Sessions[seat]

	isAllIn := allIn || amount == sess.TableBalanceGwei
	if !isAllIn {
		amount = roundToBlindIncrement(amount, s.Table.BigBlind)
		if amount < s.Table.BigBlind {
			return faults.Validationf("bet below big blind")
		}
	}
	if amount == 0 {
		return faults.Validationf("bet amount must be positive")
	}
	if amount > sess.TableBalanceGwei {
		return faults.Validationf("bet exceeds table balance")
	}

	sess.TableBalanceGwei -= amount
	p.ChipsCommitted += amount
	h.CurrentBet = p.ChipsCommitted
	h.LastRaiseAmount = p.ChipsCommitted
	if sess.TableBalanceGwei == 0 {
		p.Status = PlayerAllIn
	}

	dbAction, eventAction := ActionRaise, ActionBet
	if allIn {
		dbAction, eventAction = ActionAllIn, ActionAllIn
	}
	s.recordAction(res, seat, dbAction, eventAction, amountPtr(amount), now)
	return nil
}

// applyRaise handles RAISE and the all-in variant. amount is incremental;
// the minimum full raise requires the new total to reach
// currentBet + lastRaiseAmount.
func (s *HandState) applyRaise(res *StepResult, seat int, amount uint64, allIn bool, now time.Time) error {
	h := s.Hand
	p := s.Players[seat]
	sess := s.Sessions[seat]

	isAllIn := allIn || amount == sess.TableBalanceGwei
	if !isAllIn {
		amount = roundToBlindIncrement(amount, s.Table.BigBlind)
	}
	if amount == 0 {
		return faults.Validationf("raise amount must be positive")
	}
	if amount > sess.TableBalanceGwei {
		return faults.Validationf("raise exceeds table balance")
	}

	newCommit := p.ChipsCommitted + amount
	if !isAllIn && newCommit < h.CurrentBet+h.LastRaiseAmount {
		return faults.Validationf("raise below minimum: total must reach %d", h.CurrentBet+h.LastRaiseAmount)
	}

	sess.TableBalanceGwei -= amount
	p.ChipsCommitted = newCommit
	if newCommit > h.CurrentBet {
		h.LastRaiseAmount = newCommit - h.CurrentBet
		h.CurrentBet = newCommit
	}
	if sess.TableBalanceGwei == 0 {
		p.Status = PlayerAllIn
	}

	dbAction, eventAction := ActionRaise, ActionRaise
	if allIn {
		dbAction, eventAction = ActionAllIn, ActionAllIn
	}
	s.recordAction(res, seat, dbAction, eventAction, amountPtr(amount), now)
	return nil
}

// ---- progression ----

// progress advances the hand after an action: fold-outs, round completion,
// forced runouts, settlement. It never needs further player input.
func (s *HandState) progress(res *StepResult, lastActor int, now time.Time) error {
	for {
		nonFolded := s.nonFoldedSeats()
		if len(nonFolded) == 0 {
			return faults.Invariantf("hand %d has no remaining players", s.Hand.ID)
		}
		if len(nonFolded) == 1 {
			return s.settle(res, now)
		}

		if s.roundComplete() {
			s.rebuildPots()
			if s.Hand.Round != nil && *s.Hand.Round == RoundRiver {
				return s.settle(res, now)
			}
			s.advanceRound(res, now)
			continue
		}

		if s.noFurtherBetting() {
			// Betting is over but the round predicate still wants actions:
			// synthesize checks for everyone who has not acted this round.
			synthesized := false
			for _, seat := range s.seatListSorted(lastActor) {
				p := s.Players[seat]
				if p.Status == PlayerFolded || s.hasActedThisRound(seat) {
					continue
				}
				s.recordAction(res, seat, ActionCheck, ActionCheck, nil, now)
				synthesized = true
			}
			if !synthesized {
				return faults.Invariantf("hand %d stuck: no betting possible and nothing to synthesize", s.Hand.ID)
			}
			continue
		}

		next := s.nextActive(lastActor)
		if next == nil {
			return faults.Invariantf("hand %d has no active player to act", s.Hand.ID)
		}
		s.setActionSeat(next, now)
		return nil
	}
}

// seatListSorted orders seats clockwise starting after from, so synthesized
// checks appear in natural acting order.
func (s *HandState) seatListSorted(from int) []int {
	seats := s.seatList()
	n := len(seats)
	start := 0
	for i, seat := range seats {
		if seat > from {
			start = i
			break
		}
		start = i + 1
	}
	out := make([]int, 0, n)
	for step := 0; step < n; step++ {
		out = append(out, seats[(start+step)%n])
	}
	return out
}

func (s *HandState) advanceRound(res *StepResult, now time.Time) {
	h := s.Hand
	var next Round
	var deal int
	switch *h.Round {
	case RoundPreFlop:
		next, deal = RoundFlop, 3
	case RoundFlop:
		next, deal = RoundTurn, 1
	case RoundTurn:
		next, deal = RoundRiver, 1
	default:
		return
	}

	newCards := make([]cards.Card, 0, deal)
	for i := 0; i < deal; i++ {
		newCards = append(newCards, h.Deck[h.DeckPosition])
		h.DeckPosition++
	}
	h.CommunityCards = append(h.CommunityCards, newCards...)
	h.Round = &next
	h.Status = statusForRound(next)
	h.CurrentBet = 0
	h.LastRaiseAmount = 0
	for _, p := range s.Players {
		if p.Status != PlayerFolded {
			p.ChipsCommitted = 0
		}
	}

	res.Dealt = append(res.Dealt, DealtStreet{
		Round:    next,
		NewCards: newCards,
		All:      append([]cards.Card(nil), h.CommunityCards...),
	})

	s.setActionSeat(s.nextActive(h.DealerPosition), now)
}

// FoldOnTimeout folds the seat whose action deadline passed. Races where
// the turn already moved on are no-ops that clear the stale deadline.
func (s *HandState) FoldOnTimeout(seat int, now time.Time) (*StepResult, bool, error) {
	h := s.Hand
	if h.Status == StatusCompleted || h.CurrentActionSeat == nil || *h.CurrentActionSeat != seat {
		h.ActionTimeoutAt = nil
		return nil, false, nil
	}
	p := s.Players[seat]
	if p == nil || p.Status != PlayerActive {
		h.ActionTimeoutAt = nil
		return nil, false, nil
	}
	res, err := s.Apply(seat, ActionFold, 0, now)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

// ---- sanity ----

// checkChipConservation enforces property 4 mid-hand: pot sum equals the
// sum of all committed chips.
func (s *HandState) checkChipConservation() error {
	var potSum, committed uint64
	for _, p := range s.Pots {
		potSum += p.Amount
	}
	for _, total := range s.totalsCommitted() {
		committed += total
	}
	if potSum != committed {
		return faults.Invariantf("pot sum %d != committed chips %d for hand %d", potSum, committed, s.Hand.ID)
	}
	return nil
}

func (s *HandState) String() string {
	return fmt.Sprintf("hand %d table %d status %s", s.Hand.ID, s.Table.ID, s.Hand.Status)
}
