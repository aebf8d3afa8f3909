package engine

import (
	"sort"

	"github.com/thoas/go-funk"

	"cardroom/poker"
)

// SidePot is a sub-pot funded up to one contribution level.
type SidePot struct {
	Amount    int64 `json:"amount"`
	Eligibles []int `json:"eligibles"`
}

// Reveal is one contender's cards at showdown.
type Reveal struct {
	SeatNo int            `json:"seatNo"`
	UserID string         `json:"userId"`
	Cards  []poker.Card   `json:"cards"`
	Value  poker.HandValue `json:"value"`
}

// Winner is one seat's total payout across all pots.
type Winner struct {
	SeatNo int            `json:"seatNo"`
	UserID string         `json:"userId"`
	Payout int64          `json:"payout"`
	Value  poker.HandValue `json:"value"`
}

// ShowdownResult is the full resolution of a hand that reached showdown.
type ShowdownResult struct {
	Reveals []Reveal  `json:"reveals"`
	Winners []Winner  `json:"winners"`
	Pots    []SidePot `json:"pots"`
}

// buildPots splits the hand's committed chips into main and side pots by
// contribution level. Folded seats still fund the pots they contributed
// to; they are just never eligible.
func buildPots(rt *TableRuntime) []SidePot {
	var levels []int64
	for _, p := range rt.Players {
		if p.Committed > 0 && !funk.ContainsInt64(levels, p.Committed) {
			levels = append(levels, p.Committed)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })

	var pots []SidePot
	var prev int64
	for _, lvl := range levels {
		pot := SidePot{}
		for _, p := range rt.Players {
			if p.Committed >= lvl {
				pot.Amount += lvl - prev
				if !p.HasFolded {
					pot.Eligibles = append(pot.Eligibles, p.SeatNo)
				}
			}
		}
		sort.Ints(pot.Eligibles)
		if pot.Amount > 0 && len(pot.Eligibles) > 0 {
			pots = append(pots, pot)
		}
		prev = lvl
	}
	return pots
}

// resolveShowdown ranks each pot's eligibles and distributes chips with
// the odd-chip rule: remainders go one chip at a time to the tied
// winners closest to the dealer's left, wrapping on the table size.
func resolveShowdown(rt *TableRuntime, holes map[int][]poker.Card) *ShowdownResult {
	result := &ShowdownResult{Pots: buildPots(rt)}

	values := make(map[int]poker.HandValue, len(rt.Players))
	for _, p := range rt.Players {
		if p.HasFolded {
			continue
		}
		cards := append(append([]poker.Card{}, holes[p.SeatNo]...), rt.Board...)
		v := poker.Evaluate7(cards)
		values[p.SeatNo] = v
		result.Reveals = append(result.Reveals, Reveal{
			SeatNo: p.SeatNo,
			UserID: p.UserID,
			Cards:  holes[p.SeatNo],
			Value:  v,
		})
	}
	sort.Slice(result.Reveals, func(i, j int) bool {
		return result.Reveals[i].SeatNo < result.Reveals[j].SeatNo
	})

	payouts := make(map[int]int64)
	for _, pot := range result.Pots {
		var best poker.HandValue
		var winners []int
		for _, seatNo := range pot.Eligibles {
			switch poker.Compare(values[seatNo], best) {
			case 1:
				best = values[seatNo]
				winners = []int{seatNo}
			case 0:
				winners = append(winners, seatNo)
			}
		}
		if len(winners) == 0 {
			continue
		}

		// Order tied winners by clockwise distance from the dealer; the
		// seat closest to the dealer's left takes the first odd chip.
		sort.Slice(winners, func(i, j int) bool {
			return rt.clockwiseDistance(rt.DealerSeat, winners[i]) <
				rt.clockwiseDistance(rt.DealerSeat, winners[j])
		})

		base := pot.Amount / int64(len(winners))
		rem := pot.Amount - base*int64(len(winners))
		for i, seatNo := range winners {
			share := base
			if int64(i) < rem {
				share++
			}
			payouts[seatNo] += share
		}
	}

	for seatNo, payout := range payouts {
		p := rt.Players[seatNo]
		result.Winners = append(result.Winners, Winner{
			SeatNo: seatNo,
			UserID: p.UserID,
			Payout: payout,
			Value:  values[seatNo],
		})
	}
	sort.Slice(result.Winners, func(i, j int) bool {
		return result.Winners[i].SeatNo < result.Winners[j].SeatNo
	})
	return result
}
