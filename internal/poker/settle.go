package poker

import (
	"sort"
	"time"

	"github.com/Layr-Labs/clout-cards-sub002/internal/cards"
	"github.com/Layr-Labs/clout-cards-sub002/internal/faults"
	"github.com/Layr-Labs/clout-cards-sub002/internal/holdem"
)

// rakeFor floors amount * basisPoints / 10000 without overflowing uint64.
func rakeFor(amount uint64, basisPoints int) uint64 {
	bps := uint64(basisPoints)
	return (amount/10000)*bps + (amount%10000)*bps/10000
}

// settle finishes the hand: final pots, showdown (or uncontested win),
// rake, payouts credited back to seat sessions.
func (s *HandState) settle(res *StepResult, now time.Time) error {
	h := s.Hand
	s.rebuildPots()
	if err := s.checkChipConservation(); err != nil {
		return err
	}

	nonFolded := s.nonFoldedSeats()
	if len(nonFolded) == 0 {
		return faults.Invariantf("hand %d settled with no remaining players", h.ID)
	}

	showdown := len(nonFolded) > 1
	var ranks map[int]holdem.HandRank
	if showdown {
		if len(h.CommunityCards) != 5 {
			return faults.Invariantf("hand %d reached showdown with %d community cards", h.ID, len(h.CommunityCards))
		}
		holes := map[int][2]cards.Card{}
		for _, seat := range nonFolded {
			holes[seat] = s.Players[seat].HoleCards
		}
		var err error
		_, ranks, err = holdem.Winners(h.CommunityCards, holes)
		if err != nil {
			return faults.Invariantf("hand %d showdown evaluation: %v", h.ID, err)
		}
	}

	settlement := &Settlement{Ranks: map[int]string{}}
	winnerSet := map[int]bool{}
	for i := range s.Pots {
		pot := &s.Pots[i]
		settlement.TotalPot += pot.Amount

		var winners []int
		if showdown {
			winners = bestEligible(pot.EligibleSeats, ranks)
		} else {
			winners = append([]int(nil), nonFolded...)
		}
		if len(winners) == 0 {
			return faults.Invariantf("hand %d pot %d has no winners", h.ID, pot.PotNumber)
		}

		rake := rakeFor(pot.Amount, s.Table.PerHandRake)
		after := pot.Amount - rake

		share := after / uint64(len(winners))
		remainder := after % uint64(len(winners))
		payouts := map[int]uint64{}
		for _, seat := range winners {
			amount := share
			if remainder > 0 {
				amount++
				remainder--
			}
			payouts[seat] = amount
			s.Sessions[seat].TableBalanceGwei += amount
			winnerSet[seat] = true
		}

		pot.Amount = after
		pot.WinnerSeatNumbers = append([]int(nil), winners...)
		settlement.TotalRake += rake
		settlement.Pots = append(settlement.Pots, PotResult{
			PotNumber:  pot.PotNumber,
			Amount:     after,
			RakeAmount: rake,
			Winners:    winners,
			Payouts:    payouts,
		})
	}

	for seat := range winnerSet {
		settlement.WinnerSeats = append(settlement.WinnerSeats, seat)
	}
	sort.Ints(settlement.WinnerSeats)
	if showdown {
		for seat, r := range ranks {
			settlement.Ranks[seat] = r.Category.String()
		}
	}

	h.Status = StatusCompleted
	h.Round = nil
	h.CurrentActionSeat = nil
	h.ActionTimeoutAt = nil
	h.CurrentBet = 0
	h.LastRaiseAmount = 0
	completed := now
	h.CompletedAt = &completed

	res.Settlement = settlement
	return nil
}

// bestEligible picks the strongest-ranked seats among the pot's eligible
// set, lowest seats first on ties.
func bestEligible(eligible []int, ranks map[int]holdem.HandRank) []int {
	var best *holdem.HandRank
	winners := []int{}
	sorted := append([]int(nil), eligible...)
	sort.Ints(sorted)
	for _, seat := range sorted {
		r, ok := ranks[seat]
		if !ok {
			continue
		}
		if best == nil {
			tmp := r
			best = &tmp
			winners = []int{seat}
			continue
		}
		switch holdem.Compare(r, *best) {
		case 1:
			tmp := r
			best = &tmp
			winners = []int{seat}
		case 0:
			winners = append(winners, seat)
		}
	}
	return winners
}
