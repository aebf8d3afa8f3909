package engine

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"cardroom/poker"
)

// StartHand starts a new hand on the table if none is running and at
// least two seats hold chips. Lock contention and thin tables return
// started=false without error.
func (e *Engine) StartHand(ctx context.Context, tableID string) (bool, error) {
	var started bool
	err := e.withTable(tableID, func() error {
		var err error
		started, err = e.startHandLocked(ctx, tableID)
		return err
	})
	return started, err
}

func (e *Engine) startHandLocked(ctx context.Context, tableID string) (bool, error) {
	meta, err := e.seats.TableMeta(ctx, tableID)
	if err != nil {
		return false, err
	}

	if _, err := e.store.LoadRuntime(ctx, tableID); err == nil {
		return false, nil // hand already running
	} else if err != ErrNoRuntime {
		return false, err
	}

	ok, err := e.store.AcquireHandStartLock(ctx, tableID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if err := e.store.ReleaseHandStartLock(ctx, tableID); err != nil {
			e.logger.Warn("Failed to release hand start lock", "table", tableID, "error", err)
		}
	}()

	seats, err := e.seats.OccupiedSeats(ctx, tableID)
	if err != nil {
		return false, err
	}
	eligible := make([]SeatInfo, 0, len(seats))
	for _, s := range seats {
		if s.Stack > 0 {
			eligible = append(eligible, s)
		}
	}
	if len(eligible) < 2 {
		return false, nil
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].SeatNo < eligible[j].SeatNo })

	rt := &TableRuntime{
		TableID:        tableID,
		HandID:         uuid.NewString(),
		Round:          RoundPreflop,
		Pot:            PotState{},
		ActedThisRound: make(map[int]bool),
		Players:        make(map[int]*SeatRuntime, len(eligible)),
		SmallBlind:     meta.SmallBlind,
		BigBlind:       meta.BigBlind,
		MaxSeats:       meta.MaxSeats,
	}
	seatNos := make([]int, 0, len(eligible))
	for _, s := range eligible {
		rt.Players[s.SeatNo] = &SeatRuntime{
			SeatNo:       s.SeatNo,
			UserID:       s.UserID,
			Username:     s.Username,
			Stack:        s.Stack,
			IsSittingOut: s.SittingOut,
		}
		seatNos = append(seatNos, s.SeatNo)
	}

	rt.DealerSeat = e.rotateDealer(ctx, rt)

	// Blind and first-actor positions. Heads-up deviates: the dealer is
	// the small blind and acts first preflop.
	var sbSeat, bbSeat, firstSeat int
	if len(eligible) == 2 {
		sbSeat = rt.DealerSeat
		bbSeat = rt.NextOccupiedAfter(sbSeat)
		firstSeat = sbSeat
	} else {
		sbSeat = rt.NextOccupiedAfter(rt.DealerSeat)
		bbSeat = rt.NextOccupiedAfter(sbSeat)
		firstSeat = rt.NextOccupiedAfter(bbSeat)
	}

	deck := e.shuffledDeck()
	for _, seatNo := range seatNos {
		p := rt.Players[seatNo]
		var hole []poker.Card
		hole, deck = poker.Draw(deck, 2)
		if err := e.store.SaveHoleCards(ctx, tableID, rt.HandID, p.UserID, hole); err != nil {
			return false, err
		}
	}
	rt.Deck = deck

	e.postBlind(rt, sbSeat, rt.SmallBlind)
	e.postBlind(rt, bbSeat, rt.BigBlind)
	rt.CurrentBet = rt.BigBlind
	rt.MinRaise = rt.BigBlind
	rt.LastAggressorSeat = bbSeat

	rt.CurrentTurnSeat = firstSeat
	e.setTurnDeadline(rt)

	if err := e.seats.BeginHand(ctx, tableID, seatNos); err != nil {
		return false, err
	}
	if err := e.persistStacks(ctx, rt); err != nil {
		return false, err
	}
	if err := e.saveRuntime(ctx, rt); err != nil {
		return false, err
	}
	if err := e.store.SetDealerSeat(ctx, tableID, rt.DealerSeat); err != nil {
		e.logger.Warn("Failed to persist dealer pointer", "table", tableID, "error", err)
	}

	e.logger.Info("Hand started",
		"table", tableID,
		"hand", rt.HandID,
		"dealer", rt.DealerSeat,
		"players", len(eligible))

	e.cast.ToTable(tableID, EventHandStarted, map[string]any{
		"tableId": tableID,
		"handId":  rt.HandID,
	})
	e.sendPrivateCards(ctx, rt)
	e.broadcastSnapshot(rt)
	e.scheduleTurn(rt)

	// A sitting-out first actor is acted for immediately.
	return true, e.runForcedActions(ctx, rt)
}

// rotateDealer picks the next dealer: the next occupied seat clockwise
// from the persisted pointer, falling back to the lowest occupied seat on
// a fresh table.
func (e *Engine) rotateDealer(ctx context.Context, rt *TableRuntime) int {
	prev, err := e.store.DealerSeat(ctx, rt.TableID)
	if err != nil {
		e.logger.Warn("Failed to read dealer pointer", "table", rt.TableID, "error", err)
		prev = 0
	}
	if prev == 0 {
		lowest := 0
		for seatNo := range rt.Players {
			if lowest == 0 || seatNo < lowest {
				lowest = seatNo
			}
		}
		return lowest
	}
	return rt.NextOccupiedAfter(prev)
}

// postBlind moves a clamped blind from stack to bet, committed and pot.
func (e *Engine) postBlind(rt *TableRuntime, seatNo int, blind int64) {
	p := rt.Players[seatNo]
	pay := blind
	if pay > p.Stack {
		pay = p.Stack
	}
	p.Stack -= pay
	p.Bet += pay
	p.Committed += pay
	rt.Pot.Total += pay
	if p.Stack == 0 {
		p.IsAllIn = true
	}
}

// setTurnDeadline stamps turnEndsAt for the current turn seat. Seats that
// are not actionable (sitting out, all-in) carry no deadline; their
// actions are forced elsewhere.
func (e *Engine) setTurnDeadline(rt *TableRuntime) {
	rt.TurnEndsAt = 0
	if rt.CurrentTurnSeat == 0 {
		return
	}
	p := rt.Players[rt.CurrentTurnSeat]
	if p != nil && p.isActionable() {
		rt.TurnEndsAt = e.now() + e.timing.TurnTime.Milliseconds()
	}
}

// sendPrivateCards emits each player's hole cards to their private room,
// never to the table room.
func (e *Engine) sendPrivateCards(ctx context.Context, rt *TableRuntime) {
	for _, p := range rt.Players {
		cards, err := e.store.LoadHoleCards(ctx, rt.TableID, rt.HandID, p.UserID)
		if err != nil {
			e.logger.Error("Failed to load hole cards for delivery",
				"table", rt.TableID, "user", p.UserID, "error", err)
			continue
		}
		e.cast.ToUser(p.UserID, EventPrivateCards, map[string]any{
			"tableId": rt.TableID,
			"handId":  rt.HandID,
			"cards":   cards,
		})
	}
}
