package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardroom/poker"
)

func mustCards(codes ...string) []poker.Card {
	out := make([]poker.Card, 0, len(codes))
	for _, code := range codes {
		c, err := poker.ParseCard(code)
		if err != nil {
			panic(err)
		}
		out = append(out, c)
	}
	return out
}

// potRuntime builds a showdown-stage runtime from committed amounts.
func potRuntime(dealer int, maxSeats int, committed map[int]int64, folded map[int]bool) *TableRuntime {
	rt := &TableRuntime{
		TableID:    testTableID,
		HandID:     "h1",
		Round:      RoundShowdown,
		DealerSeat: dealer,
		MaxSeats:   maxSeats,
		Players:    make(map[int]*SeatRuntime),
	}
	for seatNo, amount := range committed {
		rt.Players[seatNo] = &SeatRuntime{
			SeatNo:    seatNo,
			UserID:    "u" + string(rune('0'+seatNo)),
			Committed: amount,
			HasFolded: folded[seatNo],
		}
		rt.Pot.Total += amount
	}
	return rt
}

func TestBuildPotsLevels(t *testing.T) {
	rt := potRuntime(1, 6, map[int]int64{1: 100, 2: 200, 3: 200}, nil)

	pots := buildPots(rt)
	require.Len(t, pots, 2)

	// Main pot: 100 from each of the three contributors.
	assert.Equal(t, int64(300), pots[0].Amount)
	assert.Equal(t, []int{1, 2, 3}, pots[0].Eligibles)

	// Side pot: the next 100 from seats 2 and 3.
	assert.Equal(t, int64(200), pots[1].Amount)
	assert.Equal(t, []int{2, 3}, pots[1].Eligibles)
}

func TestBuildPotsFoldedContributionsStillFund(t *testing.T) {
	rt := potRuntime(1, 6, map[int]int64{1: 100, 2: 200, 3: 200}, map[int]bool{1: true})

	pots := buildPots(rt)
	require.Len(t, pots, 2)

	// Seat 1's 100 stays in the main pot; only 2 and 3 can win it.
	assert.Equal(t, int64(300), pots[0].Amount)
	assert.Equal(t, []int{2, 3}, pots[0].Eligibles)
	assert.Equal(t, int64(200), pots[1].Amount)
	assert.Equal(t, []int{2, 3}, pots[1].Eligibles)
}

func TestResolveShowdownSidePotsWithTie(t *testing.T) {
	rt := potRuntime(1, 6, map[int]int64{1: 100, 2: 200, 3: 200}, nil)
	rt.Board = mustCards("2H", "7D", "9C", "QS", "KD")

	// Seats 2 and 3 tie with aces; seat 1 has king high.
	holes := map[int][]poker.Card{
		1: mustCards("3S", "4S"),
		2: mustCards("AS", "AH"),
		3: mustCards("AD", "AC"),
	}

	result := resolveShowdown(rt, holes)
	require.Len(t, result.Reveals, 3)
	require.Len(t, result.Winners, 2)

	payouts := map[int]int64{}
	for _, w := range result.Winners {
		payouts[w.SeatNo] = w.Payout
	}
	// Main 300 split 150/150, side 200 split 100/100.
	assert.Equal(t, int64(250), payouts[2])
	assert.Equal(t, int64(250), payouts[3])

	var total int64
	for _, w := range result.Winners {
		total += w.Payout
	}
	assert.Equal(t, rt.CommittedTotal(), total, "payouts must equal committed")
}

func TestOddChipGoesLeftOfDealer(t *testing.T) {
	// A folded chip makes the main pot odd: 3 chips between two tied
	// winners pay 2/1, extra chip to the winner closest to the dealer's
	// left (seat 2, dealer being seat 1).
	rt := potRuntime(1, 6, map[int]int64{1: 1, 2: 3, 3: 3}, map[int]bool{1: true})
	rt.Board = mustCards("AS", "KS", "QS", "JS", "TS") // board plays for both
	holes := map[int][]poker.Card{
		2: mustCards("2H", "3D"),
		3: mustCards("4H", "5D"),
	}

	result := resolveShowdown(rt, holes)
	payouts := map[int]int64{}
	for _, w := range result.Winners {
		payouts[w.SeatNo] = w.Payout
	}
	// Main pot 3 splits 2/1 toward seat 2; side pot 4 splits 2/2.
	assert.Equal(t, int64(4), payouts[2])
	assert.Equal(t, int64(3), payouts[3])

	var total int64
	for _, w := range result.Winners {
		total += w.Payout
	}
	assert.Equal(t, rt.CommittedTotal(), total)
}

func TestOddChipOrderingWrapsTableSize(t *testing.T) {
	// Dealer in seat 5 of six; tied winners in seats 2 and 6. Seat 6 is
	// one step clockwise from the dealer, seat 2 is three: seat 6 takes
	// the odd chip.
	rt := potRuntime(5, 6, map[int]int64{2: 150, 6: 150, 4: 1}, map[int]bool{4: true})
	rt.Board = mustCards("AS", "KS", "QS", "JS", "TS")
	holes := map[int][]poker.Card{
		2: mustCards("2H", "3D"),
		6: mustCards("4H", "5D"),
	}

	result := resolveShowdown(rt, holes)
	payouts := map[int]int64{}
	for _, w := range result.Winners {
		payouts[w.SeatNo] = w.Payout
	}
	// 301 chips between two tied winners: 151 to seat 6, 150 to seat 2.
	assert.Equal(t, int64(151), payouts[6])
	assert.Equal(t, int64(150), payouts[2])
}

func TestResolveShowdownBestHandTakesAll(t *testing.T) {
	rt := potRuntime(1, 6, map[int]int64{1: 50, 2: 50}, nil)
	rt.Board = mustCards("2H", "7D", "9C", "QS", "KD")
	holes := map[int][]poker.Card{
		1: mustCards("KS", "KH"), // trip kings
		2: mustCards("AS", "AH"), // pair of aces
	}

	result := resolveShowdown(rt, holes)
	require.Len(t, result.Winners, 1)
	assert.Equal(t, 1, result.Winners[0].SeatNo)
	assert.Equal(t, int64(100), result.Winners[0].Payout)
	assert.Equal(t, poker.ThreeOfAKind, result.Winners[0].Value.Category())
}
