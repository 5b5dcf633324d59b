package poker

import "sort"

// shouldCreateSidePots reports whether the totals committed this hand force
// a side-pot split: at least two players have acted beyond the blinds and
// the non-folded players' totals are not all equal.
func (s *HandState) shouldCreateSidePots() bool {
	acted := map[int]bool{}
	for _, a := range s.Actions {
		if a.Action != ActionPostBlind {
			acted[a.SeatNumber] = true
		}
	}
	if len(acted) < 2 {
		return false
	}
	totals := s.totalsCommitted()
	distinct := map[uint64]bool{}
	for _, seat := range s.nonFoldedSeats() {
		distinct[totals[seat]] = true
	}
	return len(distinct) > 1
}

// rebuildPots recomputes the pot set from the committed totals. It runs
// whenever a player goes all-in and at the end of every round, so the pots
// always sum to the chips committed.
func (s *HandState) rebuildPots() {
	totals := s.totalsCommitted()
	nonFolded := s.nonFoldedSeats()
	if len(nonFolded) == 0 {
		return
	}

	if !s.shouldCreateSidePots() {
		var sum uint64
		for _, t := range totals {
			sum += t
		}
		s.Pots = []Pot{{
			HandID:        s.Hand.ID,
			PotNumber:     0,
			Amount:        sum,
			EligibleSeats: append([]int(nil), nonFolded...),
		}}
		return
	}

	s.Pots = computePots(s.Hand.ID, totals, nonFolded)
}

// computePots builds main and side pots by contribution levels. Each
// distinct non-folded total is a level; every player (folded included) pays
// the slice of their total that falls inside the level, and the non-folded
// players whose total reaches the level are eligible. Folded chips above
// the top level spill into the last pot.
func computePots(handID int64, totals map[int]uint64, nonFolded []int) []Pot {
	levelSet := map[uint64]bool{}
	for _, seat := range nonFolded {
		if totals[seat] > 0 {
			levelSet[totals[seat]] = true
		}
	}
	levels := make([]uint64, 0, len(levelSet))
	for l := range levelSet {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	if len(levels) == 0 {
		return nil
	}

	pots := make([]Pot, 0, len(levels))
	var prev uint64
	for i, level := range levels {
		var amount uint64
		for _, total := range totals {
			amount += segment(total, prev, level)
		}
		eligible := []int{}
		for _, seat := range nonFolded {
			if totals[seat] >= level {
				eligible = append(eligible, seat)
			}
		}
		sort.Ints(eligible)
		pots = append(pots, Pot{
			HandID:        handID,
			PotNumber:     i,
			Amount:        amount,
			EligibleSeats: eligible,
		})
		prev = level
	}

	// Contributions above the highest live level (over-bets by players who
	// later folded) cannot seed a new pot; they join the top one.
	top := levels[len(levels)-1]
	var residual uint64
	for _, total := range totals {
		if total > top {
			residual += total - top
		}
	}
	pots[len(pots)-1].Amount += residual

	return pots
}

// segment is the part of total that falls in (lo, hi].
func segment(total, lo, hi uint64) uint64 {
	if total <= lo {
		return 0
	}
	if total > hi {
		total = hi
	}
	return total - lo
}
