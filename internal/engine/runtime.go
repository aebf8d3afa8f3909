package engine

import (
	"cardroom/poker"
)

// Round is a betting street.
type Round string

const (
	RoundPreflop  Round = "PREFLOP"
	RoundFlop     Round = "FLOP"
	RoundTurn     Round = "TURN"
	RoundRiver    Round = "RIVER"
	RoundShowdown Round = "SHOWDOWN"
)

// next returns the following street.
func (r Round) next() Round {
	switch r {
	case RoundPreflop:
		return RoundFlop
	case RoundFlop:
		return RoundTurn
	case RoundTurn:
		return RoundRiver
	default:
		return RoundShowdown
	}
}

// boardCards returns how many cards the street reveals.
func (r Round) boardCards() int {
	switch r {
	case RoundFlop:
		return 3
	case RoundTurn, RoundRiver:
		return 1
	default:
		return 0
	}
}

// SeatRuntime is the per-seat state of one hand.
type SeatRuntime struct {
	SeatNo        int    `json:"seatNo"`
	UserID        string `json:"userId"`
	Username      string `json:"username"`
	Stack         int64  `json:"stack"`
	Bet           int64  `json:"bet"`
	Committed     int64  `json:"committed"`
	HasFolded     bool   `json:"hasFolded"`
	IsAllIn       bool   `json:"isAllIn"`
	IsSittingOut  bool   `json:"isSittingOut"`
	TimeoutsInRow int    `json:"timeoutsInRow"`
}

// PotState is the running pot.
type PotState struct {
	Total int64 `json:"total"`
}

// TableRuntime is the canonical per-table state of one hand. It lives in
// the shared KV and is the single source of truth across restarts.
type TableRuntime struct {
	TableID           string               `json:"tableId"`
	HandID            string               `json:"handId"`
	Round             Round                `json:"round"`
	DealerSeat        int                  `json:"dealerSeat"`
	CurrentTurnSeat   int                  `json:"currentTurnSeat"` // 0 = none
	TurnEndsAt        int64                `json:"turnEndsAt"`      // ms since epoch, 0 = none
	Deck              []poker.Card         `json:"deck"`
	Board             []poker.Card         `json:"board"`
	PendingBoard      []poker.Card         `json:"pendingBoard"`
	IsDealingBoard    bool                 `json:"isDealingBoard"`
	AutoRunout        bool                 `json:"autoRunout"`
	Pot               PotState             `json:"pot"`
	CurrentBet        int64                `json:"currentBet"`
	MinRaise          int64                `json:"minRaise"`
	LastAggressorSeat int                  `json:"lastAggressorSeat"` // 0 = none
	ActedThisRound    map[int]bool         `json:"actedThisRound"`
	Players           map[int]*SeatRuntime `json:"players"`
	SmallBlind        int64                `json:"smallBlind"`
	BigBlind          int64                `json:"bigBlind"`
	MaxSeats          int                  `json:"maxSeats"`
}

// Seat returns the seat owned by the user this hand.
func (rt *TableRuntime) Seat(userID string) *SeatRuntime {
	for _, p := range rt.Players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// isContender reports whether the seat is still in the hand.
func (p *SeatRuntime) isContender() bool {
	return !p.HasFolded
}

// isActionable reports whether the seat still owes decisions: in the
// hand, chips behind, not all-in, not sitting out.
func (p *SeatRuntime) isActionable() bool {
	return !p.HasFolded && !p.IsAllIn && p.Stack > 0 && !p.IsSittingOut
}

// canStillAct is isActionable without the sit-out exclusion; sitting-out
// seats still owe (forced) decisions for round accounting.
func (p *SeatRuntime) canStillAct() bool {
	return !p.HasFolded && !p.IsAllIn && p.Stack > 0
}

// Contenders returns the non-folded seats.
func (rt *TableRuntime) Contenders() []*SeatRuntime {
	out := make([]*SeatRuntime, 0, len(rt.Players))
	for _, p := range rt.Players {
		if p.isContender() {
			out = append(out, p)
		}
	}
	return out
}

// ContenderCount counts non-folded seats.
func (rt *TableRuntime) ContenderCount() int {
	n := 0
	for _, p := range rt.Players {
		if p.isContender() {
			n++
		}
	}
	return n
}

// CommittedTotal is the sum of all committed chips this hand, folded
// seats included.
func (rt *TableRuntime) CommittedTotal() int64 {
	var total int64
	for _, p := range rt.Players {
		total += p.Committed
	}
	return total
}

// nextSeatAfter returns the next seat strictly clockwise of the given
// seat for which keep returns true, wrapping on the table size. Returns 0
// when none qualifies.
func (rt *TableRuntime) nextSeatAfter(seat int, keep func(*SeatRuntime) bool) int {
	for i := 1; i <= rt.MaxSeats; i++ {
		n := (seat-1+i)%rt.MaxSeats + 1
		if p, ok := rt.Players[n]; ok && keep(p) {
			return n
		}
	}
	return 0
}

// NextOccupiedAfter is the next dealt-in seat clockwise.
func (rt *TableRuntime) NextOccupiedAfter(seat int) int {
	return rt.nextSeatAfter(seat, func(*SeatRuntime) bool { return true })
}

// nextToActAfter is the next seat clockwise that can still act. Sitting-out
// seats are included: they hold the turn, carry no deadline, and are acted
// for at once by runForcedActions.
func (rt *TableRuntime) nextToActAfter(seat int) int {
	return rt.nextSeatAfter(seat, (*SeatRuntime).canStillAct)
}

// clockwiseDistance is the number of clockwise steps from one seat to
// another, wrapping on the table size. The seat directly left of `from`
// has distance 1.
func (rt *TableRuntime) clockwiseDistance(from, to int) int {
	d := (to - from) % rt.MaxSeats
	if d <= 0 {
		d += rt.MaxSeats
	}
	return d
}
