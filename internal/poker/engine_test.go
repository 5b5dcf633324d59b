package poker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/clout-cards-sub002/internal/cards"
	"github.com/Layr-Labs/clout-cards-sub002/internal/faults"
)

const (
	testSB = uint64(1_000_000)
	testBB = uint64(2_000_000)
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testTable(rakeBps int) *Table {
	return &Table{
		ID:                    1,
		Name:                  "Test Table",
		MinimumBuyIn:          10 * testBB,
		MaximumBuyIn:          1000 * testBB,
		SmallBlind:            testSB,
		BigBlind:              testBB,
		PerHandRake:           rakeBps,
		MaxSeatCount:          6,
		IsActive:              true,
		ActionTimeoutSeconds:  30,
		HandStartDelaySeconds: 5,
	}
}

func testSessions(balances map[int]uint64) []*SeatSession {
	out := []*SeatSession{}
	for seat, bal := range balances {
		out = append(out, &SeatSession{
			ID:               int64(seat + 1),
			TableID:          1,
			WalletAddress:    fmt.Sprintf("0xwallet%d", seat),
			SeatNumber:       seat,
			TableBalanceGwei: bal,
			IsActive:         true,
		})
	}
	return out
}

func deal(t *testing.T, table *Table, balances map[int]uint64, prevDealer *int) (*HandState, *StepResult) {
	t.Helper()
	eligible := EligibleSessions(testSessions(balances), table.BigBlind)
	s, res, err := NewHandState(table, eligible, prevDealer, "test-seed", "test-nonce", testNow)
	require.NoError(t, err)
	s.Hand.ID = 99
	return s, res
}

func mustApply(t *testing.T, s *HandState, seat int, action ActionType, amount uint64) *StepResult {
	t.Helper()
	res, err := s.Apply(seat, action, amount, testNow)
	require.NoError(t, err)
	return res
}

func sessionTotal(s *HandState) uint64 {
	var sum uint64
	for _, sess := range s.Sessions {
		sum += sess.TableBalanceGwei
	}
	return sum
}

func TestNewHandHeadsUpPositions(t *testing.T) {
	s, res := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)

	require.Equal(t, 0, s.Hand.DealerPosition)
	require.Equal(t, 0, s.Hand.SmallBlindSeat, "heads-up dealer posts the small blind")
	require.Equal(t, 3, s.Hand.BigBlindSeat)
	require.NotNil(t, s.Hand.CurrentActionSeat)
	require.Equal(t, 0, *s.Hand.CurrentActionSeat, "heads-up dealer acts first pre-flop")

	require.Equal(t, testBB, s.Hand.CurrentBet)
	require.Equal(t, testBB-testSB, s.Hand.LastRaiseAmount)
	require.Equal(t, StatusPreFlop, s.Hand.Status)

	require.Len(t, res.NewActions, 2)
	require.Equal(t, ActionPostBlind, res.NewActions[0].Action)
	require.Equal(t, ActionPostBlind, res.NewActions[1].Action)

	require.Len(t, s.Pots, 1)
	require.Equal(t, testSB+testBB, s.Pots[0].Amount)
	require.Equal(t, []int{0, 3}, s.Pots[0].EligibleSeats)

	require.Equal(t, cards.Commitment(cards.Join(s.Hand.Deck), "test-nonce"), s.Hand.ShuffleSeedHash)
	require.Equal(t, 4, s.Hand.DeckPosition, "two hole cards per player")
	require.NotEqual(t, s.Players[0].HoleCards, s.Players[3].HoleCards)
}

func TestNewHandThreeHandedPositions(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 1: 100 * testBB, 2: 100 * testBB}, nil)

	require.Equal(t, 0, s.Hand.DealerPosition)
	require.Equal(t, 1, s.Hand.SmallBlindSeat)
	require.Equal(t, 2, s.Hand.BigBlindSeat)
	require.Equal(t, 0, *s.Hand.CurrentActionSeat, "first to act is after the big blind")
}

func TestNewHandRequiresTwoPlayers(t *testing.T) {
	eligible := EligibleSessions(testSessions(map[int]uint64{2: 100 * testBB}), testBB)
	_, _, err := NewHandState(testTable(0), eligible, nil, "s", "n", testNow)
	require.True(t, faults.IsValidation(err))
}

func TestNextDealerRotation(t *testing.T) {
	seats := []int{0, 2, 5}
	intp := func(v int) *int { return &v }

	require.Equal(t, 0, NextDealer(seats, nil))
	require.Equal(t, 2, NextDealer(seats, intp(0)))
	require.Equal(t, 5, NextDealer(seats, intp(2)))
	require.Equal(t, 0, NextDealer(seats, intp(5)), "rotation wraps")
	require.Equal(t, 0, NextDealer(seats, intp(3)), "ineligible previous dealer restarts at the lowest seat")
}

func TestEligibleSessionsFilter(t *testing.T) {
	sessions := testSessions(map[int]uint64{0: 100 * testBB, 1: testBB - 1, 2: testBB})
	sessions = append(sessions, &SeatSession{SeatNumber: 4, TableBalanceGwei: 100 * testBB, IsActive: false})

	eligible := EligibleSessions(sessions, testBB)
	require.Len(t, eligible, 2)
	require.Equal(t, 0, eligible[0].SeatNumber)
	require.Equal(t, 2, eligible[1].SeatNumber, "exactly one big blind is enough")
}

func TestBigBlindKeepsOption(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 1: 100 * testBB, 2: 100 * testBB}, nil)

	mustApply(t, s, 0, ActionCall, 0)
	mustApply(t, s, 1, ActionCall, 0)

	// Everyone matched, but the big blind has not acted yet.
	require.Equal(t, StatusPreFlop, s.Hand.Status)
	require.Equal(t, 2, *s.Hand.CurrentActionSeat)

	res := mustApply(t, s, 2, ActionCheck, 0)
	require.Len(t, res.Dealt, 1)
	require.Equal(t, RoundFlop, res.Dealt[0].Round)
	require.Len(t, res.Dealt[0].NewCards, 3)
	require.Equal(t, 1, *s.Hand.CurrentActionSeat, "post-flop action starts left of the dealer")
	require.Zero(t, s.Hand.CurrentBet)
}

func TestFoldOutWinsWithoutShowdown(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)

	res := mustApply(t, s, 0, ActionFold, 0)
	require.NotNil(t, res.Settlement)
	require.Equal(t, []int{3}, res.Settlement.WinnerSeats)
	require.Empty(t, res.Settlement.Ranks, "no showdown, no ranks")
	require.Equal(t, testSB+testBB, res.Settlement.TotalPot)
	require.Zero(t, res.Settlement.TotalRake)

	require.Equal(t, StatusCompleted, s.Hand.Status)
	require.Nil(t, s.Hand.Round)
	require.Nil(t, s.Hand.CurrentActionSeat)
	require.NotNil(t, s.Hand.CompletedAt)

	require.Equal(t, 100*testBB-testSB, s.Sessions[0].TableBalanceGwei)
	require.Equal(t, 100*testBB+testSB, s.Sessions[3].TableBalanceGwei)
}

func TestActingOutOfTurnConflicts(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)

	_, err := s.Apply(3, ActionCheck, 0, testNow)
	require.True(t, faults.IsConflict(err))
}

func TestCheckFacingBetRejected(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)

	_, err := s.Apply(0, ActionCheck, 0, testNow)
	require.True(t, faults.IsValidation(err))
}

func TestCallRequiresFullAmount(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 5_000_000}, nil)

	mustApply(t, s, 0, ActionRaise, 50_000_000)
	require.Equal(t, uint64(51_000_000), s.Hand.CurrentBet)

	_, err := s.Apply(3, ActionCall, 0, testNow)
	require.True(t, faults.IsValidation(err), "short call must be an explicit all-in")

	res := mustApply(t, s, 3, ActionAllIn, 0)
	require.Equal(t, PlayerAllIn, s.Players[3].Status)
	require.NotNil(t, res.Settlement, "runout settles immediately")
}

func TestBetRoundsDownToBigBlindIncrement(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)

	mustApply(t, s, 0, ActionCall, 0)
	mustApply(t, s, 3, ActionCheck, 0)
	require.Equal(t, StatusFlop, s.Hand.Status)

	// 5M floors to the 2M increment.
	res := mustApply(t, s, 3, ActionBet, 5_000_000)
	require.Equal(t, uint64(4_000_000), s.Hand.CurrentBet)
	last := res.NewActions[len(res.NewActions)-1]
	require.Equal(t, ActionRaise, last.Action, "a bet is recorded as RAISE")
	require.Equal(t, ActionBet, last.EventType, "but announced as BET")
	require.Equal(t, uint64(4_000_000), *last.Amount)
}

func TestBetBelowBigBlindRejected(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)

	mustApply(t, s, 0, ActionCall, 0)
	mustApply(t, s, 3, ActionCheck, 0)

	_, err := s.Apply(3, ActionBet, testBB-1, testNow)
	require.True(t, faults.IsValidation(err))
}

func TestRaiseBelowMinimumRejected(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)

	mustApply(t, s, 0, ActionCall, 0)
	mustApply(t, s, 3, ActionCheck, 0)
	mustApply(t, s, 3, ActionBet, 4_000_000)

	// Min raise total is 8M; an incremental 4M only matches the bet.
	_, err := s.Apply(0, ActionRaise, 4_000_000, testNow)
	require.True(t, faults.IsValidation(err))

	mustApply(t, s, 0, ActionRaise, 8_000_000)
	require.Equal(t, uint64(8_000_000), s.Hand.CurrentBet)
	require.Equal(t, uint64(4_000_000), s.Hand.LastRaiseAmount)
}

func TestAllInRunoutDealsBoardAndSettles(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 10_000_000, 3: 50_000_000}, nil)
	startTotal := uint64(60_000_000)

	mustApply(t, s, 0, ActionAllIn, 0)
	require.Equal(t, PlayerAllIn, s.Players[0].Status)
	require.Equal(t, uint64(10_000_000), s.Hand.CurrentBet)

	res := mustApply(t, s, 3, ActionCall, 0)
	require.Len(t, res.Dealt, 3, "flop, turn and river deal without further input")
	require.Len(t, s.Hand.CommunityCards, 5)
	require.NotNil(t, res.Settlement)
	require.Equal(t, uint64(20_000_000), res.Settlement.TotalPot)
	require.Len(t, res.Settlement.Ranks, 2, "showdown ranks both live seats")

	// 2 blinds + all-in + call + two synthesized checks per street.
	require.Len(t, s.Actions, 10)

	require.Equal(t, StatusCompleted, s.Hand.Status)
	require.Equal(t, startTotal, sessionTotal(s), "chips only move between sessions and pots")
	require.NoError(t, s.checkChipConservation())
}

func TestSidePotsByContributionLevel(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 10_000_000, 1: 30_000_000, 2: 100_000_000}, nil)

	mustApply(t, s, 0, ActionAllIn, 0)
	mustApply(t, s, 1, ActionAllIn, 0)
	res := mustApply(t, s, 2, ActionCall, 0)

	require.NotNil(t, res.Settlement)
	require.Len(t, res.Settlement.Pots, 2)

	main := res.Settlement.Pots[0]
	side := res.Settlement.Pots[1]
	require.Equal(t, uint64(30_000_000), main.Amount, "everyone covers the 10M level")
	require.Equal(t, uint64(40_000_000), side.Amount, "the 30M level excludes the short stack")
	require.Equal(t, []int{0, 1, 2}, s.Pots[0].EligibleSeats)
	require.Equal(t, []int{1, 2}, s.Pots[1].EligibleSeats)

	require.Equal(t, uint64(140_000_000), sessionTotal(s))
}

func TestRakeIsFlooredPerPot(t *testing.T) {
	s, _ := deal(t, testTable(250), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)

	res := mustApply(t, s, 0, ActionFold, 0)
	require.NotNil(t, res.Settlement)

	// 3M pot at 250 bps rakes 75000.
	require.Equal(t, uint64(75_000), res.Settlement.TotalRake)
	require.Equal(t, uint64(2_925_000), res.Settlement.Pots[0].Amount)
	require.Equal(t, 100*testBB-testBB+2_925_000, s.Sessions[3].TableBalanceGwei)
}

func TestRakeFor(t *testing.T) {
	require.Equal(t, uint64(0), rakeFor(100, 0))
	require.Equal(t, uint64(2), rakeFor(101, 250), "floor, never round up")
	require.Equal(t, uint64(100), rakeFor(100, 10000))
	require.Equal(t, uint64(25), rakeFor(1000, 250))
}

func TestBlindAllInStartsRunout(t *testing.T) {
	// Big blind's whole stack is the blind.
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: testBB}, nil)
	require.Equal(t, PlayerAllIn, s.Players[3].Status)

	res := mustApply(t, s, 0, ActionCall, 0)
	require.NotNil(t, res.Settlement)
	require.Equal(t, StatusCompleted, s.Hand.Status)
	require.Len(t, s.Hand.CommunityCards, 5)
}

func TestBothBlindsAllInAtDealRunsOut(t *testing.T) {
	// Equal blinds and exact-blind stacks: both players are all-in from the
	// posts and the hand must settle with no one left to act.
	table := testTable(0)
	table.SmallBlind = testBB
	eligible := EligibleSessions(testSessions(map[int]uint64{0: testBB, 3: testBB}), table.BigBlind)
	s, res, err := NewHandState(table, eligible, nil, "seed", "nonce", testNow)
	require.NoError(t, err)

	require.Equal(t, PlayerAllIn, s.Players[0].Status)
	require.Equal(t, PlayerAllIn, s.Players[3].Status)
	require.NotNil(t, res.Settlement)
	require.Equal(t, StatusCompleted, s.Hand.Status)
	require.Len(t, s.Hand.CommunityCards, 5)
	require.Nil(t, s.Hand.CurrentActionSeat)
	require.Nil(t, s.Hand.ActionTimeoutAt)
	require.NotNil(t, s.Hand.CompletedAt)
	require.Equal(t, 2*testBB, sessionTotal(s), "both stacks come back out of the pot")
}

func TestCompletedHandRejectsActions(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)
	mustApply(t, s, 0, ActionFold, 0)

	_, err := s.Apply(3, ActionCheck, 0, testNow)
	require.True(t, faults.IsConflict(err))
}

func TestFoldOnTimeout(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)

	// Wrong seat: stale deadline cleared, nothing else happens.
	_, applied, err := s.FoldOnTimeout(3, testNow)
	require.NoError(t, err)
	require.False(t, applied)
	require.Nil(t, s.Hand.ActionTimeoutAt)

	res, applied, err := s.FoldOnTimeout(0, testNow)
	require.NoError(t, err)
	require.True(t, applied)
	require.NotNil(t, res.Settlement)
	require.Equal(t, StatusCompleted, s.Hand.Status)
}

func TestActionDeadlineFollowsTurn(t *testing.T) {
	s, _ := deal(t, testTable(0), map[int]uint64{0: 100 * testBB, 3: 100 * testBB}, nil)
	require.NotNil(t, s.Hand.ActionTimeoutAt)
	first := *s.Hand.ActionTimeoutAt
	require.Equal(t, testNow.Add(30*time.Second), first)

	later := testNow.Add(10 * time.Second)
	_, err := s.Apply(0, ActionCall, 0, later)
	require.NoError(t, err)
	require.Equal(t, 3, *s.Hand.CurrentActionSeat)
	require.Equal(t, later.Add(30*time.Second), *s.Hand.ActionTimeoutAt)
}
