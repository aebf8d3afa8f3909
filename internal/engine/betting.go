package engine

import (
	"context"

	"cardroom/poker"
)

// Action is a player betting action.
type Action string

const (
	ActionFold  Action = "FOLD"
	ActionCheck Action = "CHECK"
	ActionCall  Action = "CALL"
	ActionRaise Action = "RAISE"
)

// ParseAction validates a client-supplied action name.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionFold, ActionCheck, ActionCall, ActionRaise:
		return Action(s), nil
	default:
		return "", Errf(CodeInvalidAction, "unknown action %q", s)
	}
}

// Apply validates and applies a player action on the table. Validation
// failures leave all state untouched.
func (e *Engine) Apply(ctx context.Context, tableID, userID string, action Action, amount int64) error {
	return e.withTable(tableID, func() error {
		rt, err := e.store.LoadRuntime(ctx, tableID)
		if err == ErrNoRuntime {
			return Errf(CodeNoHandRunning, "no hand running on table %s", tableID)
		}
		if err != nil {
			return err
		}
		if err := e.applyAction(rt, userID, action, amount, false); err != nil {
			return err
		}
		e.away.ResetStrikes(tableID, userID)
		return e.postApply(ctx, rt)
	})
}

// OnTurnExpiry is the turn-clock fire path. The (handId, seat, endsAt)
// tuple is the idempotency token: a superseded timer is a silent no-op.
func (e *Engine) OnTurnExpiry(tableID, handID string, seat int, endsAt int64) {
	ctx := context.Background()
	err := e.withTable(tableID, func() error {
		rt, err := e.store.LoadRuntime(ctx, tableID)
		if err == ErrNoRuntime {
			return nil
		}
		if err != nil {
			return err
		}
		if rt.HandID != handID || rt.CurrentTurnSeat != seat || rt.TurnEndsAt != endsAt {
			return nil // superseded
		}
		p := rt.Players[seat]
		if p == nil {
			return nil
		}

		action := ActionFold
		if rt.CurrentBet <= p.Bet {
			action = ActionCheck
		}

		// A voluntary sit-out is acted for silently; everyone else takes
		// a strike.
		timeout := !p.IsSittingOut
		if timeout {
			e.away.RecordTimeout(tableID, p.UserID)
		}

		e.logger.Info("Turn expired, forcing default action",
			"table", tableID, "hand", handID, "seat", seat, "action", action)

		if err := e.applyAction(rt, p.UserID, action, 0, timeout); err != nil {
			e.logger.Error("Forced action failed", "table", tableID, "seat", seat, "error", err)
			return nil
		}
		return e.postApply(ctx, rt)
	})
	if err != nil {
		e.logger.Error("Turn expiry handling failed", "table", tableID, "error", err)
	}
}

// applyAction mutates the runtime for one action. It performs all
// validation first so failures leave the runtime untouched.
func (e *Engine) applyAction(rt *TableRuntime, userID string, action Action, amount int64, timeout bool) error {
	p := rt.Seat(userID)
	if p == nil {
		return Errf(CodeNotSeated, "user %s is not in this hand", userID)
	}
	if rt.IsDealingBoard {
		return Errf(CodeDealingBoard, "board is being dealt")
	}
	if p.HasFolded {
		return Errf(CodeAlreadyFolded, "seat %d already folded", p.SeatNo)
	}
	if rt.CurrentTurnSeat != p.SeatNo {
		return Errf(CodeNotYourTurn, "seat %d is not the acting seat", p.SeatNo)
	}

	toCall := rt.CurrentBet - p.Bet
	if toCall < 0 {
		toCall = 0
	}

	switch action {
	case ActionFold:
		p.HasFolded = true
		rt.ActedThisRound[p.SeatNo] = true

	case ActionCheck:
		if toCall != 0 {
			return Errf(CodeCannotCheck, "must call %d", toCall)
		}
		rt.ActedThisRound[p.SeatNo] = true

	case ActionCall:
		pay := toCall
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
		rt.ActedThisRound[p.SeatNo] = true

	case ActionRaise:
		if err := e.applyRaise(rt, p, amount); err != nil {
			return err
		}

	default:
		return Errf(CodeInvalidAction, "unknown action %q", action)
	}

	if timeout {
		p.TimeoutsInRow++
	} else {
		p.TimeoutsInRow = 0
	}
	return nil
}

// applyRaise applies a raise to raiseTo chips total for the street.
// Short all-ins are allowed below the minimum full raise but do not
// re-open action for seats that already acted.
func (e *Engine) applyRaise(rt *TableRuntime, p *SeatRuntime, raiseTo int64) error {
	if raiseTo <= 0 {
		return Errf(CodeInvalidAmount, "raise amount must be positive")
	}

	need := raiseTo - p.Bet
	if need <= 0 || raiseTo <= rt.CurrentBet {
		return Errf(CodeInvalidRaise, "raise to %d does not exceed current bet %d", raiseTo, rt.CurrentBet)
	}

	// Clamp to all-in when the seat cannot afford the target.
	if need > p.Stack {
		raiseTo = p.Bet + p.Stack
		need = p.Stack
		if raiseTo <= rt.CurrentBet {
			return Errf(CodeInsufficientStack, "stack covers only %d of current bet %d", raiseTo, rt.CurrentBet)
		}
	}

	minTo := rt.CurrentBet + rt.MinRaise
	if rt.CurrentBet == 0 {
		minTo = rt.MinRaise
	}
	allIn := need == p.Stack
	if raiseTo < minTo && !allIn {
		return Errf(CodeRaiseTooSmall, "minimum raise is to %d", minTo)
	}

	p.Stack -= need
	p.Bet = raiseTo
	p.Committed += need
	rt.Pot.Total += need
	if p.Stack == 0 {
		p.IsAllIn = true
	}

	// Only a full raise re-opens action; a short all-in does not clear
	// acted flags for seats that already acted.
	if raiseTo >= minTo {
		rt.MinRaise = raiseTo - rt.CurrentBet
		rt.ActedThisRound = make(map[int]bool)
	}
	rt.CurrentBet = raiseTo
	rt.LastAggressorSeat = p.SeatNo
	rt.ActedThisRound[p.SeatNo] = true
	return nil
}

// isRoundSettled reports whether the current street owes no further
// decisions.
func isRoundSettled(rt *TableRuntime) bool {
	contenders := rt.Contenders()
	if len(contenders) <= 1 {
		return true
	}

	canAct := 0
	for _, p := range contenders {
		if p.canStillAct() {
			canAct++
		}
	}
	if canAct == 0 {
		return true
	}

	allActed := true
	for _, p := range contenders {
		if p.IsAllIn || p.Stack == 0 {
			continue
		}
		if !rt.ActedThisRound[p.SeatNo] {
			allActed = false
			break
		}
	}
	if !allActed {
		return false
	}
	if rt.CurrentBet == 0 {
		return true
	}
	for _, p := range contenders {
		if p.IsAllIn || p.Stack == 0 {
			continue
		}
		if p.Bet != rt.CurrentBet {
			return false
		}
	}
	return true
}

// shouldAutoRunout reports whether the remaining board deals itself: the
// street is settled, at least two contenders remain, at least one is
// all-in, and at most one contender could still act. Auto-runout never
// begins while a non-all-in contender still owes a decision.
func shouldAutoRunout(rt *TableRuntime) bool {
	contenders := rt.Contenders()
	if len(contenders) < 2 {
		return false
	}
	if !isRoundSettled(rt) {
		return false
	}
	allIn := 0
	canAct := 0
	for _, p := range contenders {
		if p.IsAllIn {
			allIn++
		}
		if p.canStillAct() {
			canAct++
		}
	}
	return allIn >= 1 && canAct <= 1
}

// postApply runs the transition after a successfully applied action:
// winner-by-fold, street advance / showdown, or turn rotation.
func (e *Engine) postApply(ctx context.Context, rt *TableRuntime) error {
	if rt.ContenderCount() == 1 {
		return e.finishByFold(ctx, rt)
	}

	if isRoundSettled(rt) {
		ended, err := e.advanceStreet(ctx, rt)
		if err != nil || ended {
			return err
		}
		if !rt.IsDealingBoard {
			// Only the showdown transition leaves nothing to deal, and it
			// ends the hand above; dealing streets hand off to the pacer.
			return nil
		}
		e.pacer.BeginReveal(rt.TableID)
		return nil
	}

	rt.CurrentTurnSeat = rt.nextToActAfter(rt.CurrentTurnSeat)
	e.setTurnDeadline(rt)
	if err := e.persistStacks(ctx, rt); err != nil {
		return err
	}
	if err := e.saveRuntime(ctx, rt); err != nil {
		return err
	}
	e.broadcastSnapshot(rt)
	e.scheduleTurn(rt)
	return e.runForcedActions(ctx, rt)
}

// advanceStreet moves a settled table to the next street, or resolves
// the showdown. Returns ended=true when the hand is over. Pending away
// kicks flush here: the street boundary is a safe point.
func (e *Engine) advanceStreet(ctx context.Context, rt *TableRuntime) (bool, error) {
	e.flushKicks(ctx, rt.TableID, rt)
	if rt.ContenderCount() == 1 {
		return true, e.finishByFold(ctx, rt)
	}

	if !rt.AutoRunout && shouldAutoRunout(rt) {
		rt.AutoRunout = true
	}

	rt.Round = rt.Round.next()
	for _, p := range rt.Players {
		p.Bet = 0
	}
	rt.CurrentBet = 0
	rt.MinRaise = rt.BigBlind
	rt.LastAggressorSeat = 0
	rt.ActedThisRound = make(map[int]bool)
	rt.CurrentTurnSeat = 0
	rt.TurnEndsAt = 0
	e.sched.Cancel(rt.TableID)

	if rt.Round == RoundShowdown {
		return true, e.finishShowdown(ctx, rt)
	}

	drawn, rest := poker.Draw(rt.Deck, rt.Round.boardCards())
	rt.PendingBoard = drawn
	rt.Deck = rest
	rt.IsDealingBoard = true

	if !rt.AutoRunout {
		rt.CurrentTurnSeat = e.firstToActPostflop(rt)
	}

	if err := e.persistStacks(ctx, rt); err != nil {
		return false, err
	}
	if err := e.saveRuntime(ctx, rt); err != nil {
		return false, err
	}
	e.broadcastSnapshot(rt)
	return false, nil
}

// firstToActPostflop picks the first acting seat for a new street.
// Heads-up the small blind is the dealer and acts first; ring games act
// from the dealer's left.
func (e *Engine) firstToActPostflop(rt *TableRuntime) int {
	if len(rt.Players) == 2 {
		if p, ok := rt.Players[rt.DealerSeat]; ok && p.canStillAct() {
			return rt.DealerSeat
		}
	}
	return rt.nextToActAfter(rt.DealerSeat)
}

// runForcedActions acts immediately for a sitting-out seat holding the
// turn, looping until the turn reaches a live seat or the street moves.
func (e *Engine) runForcedActions(ctx context.Context, rt *TableRuntime) error {
	for i := 0; i < len(rt.Players); i++ {
		if rt.IsDealingBoard || rt.AutoRunout || rt.CurrentTurnSeat == 0 {
			return nil
		}
		p := rt.Players[rt.CurrentTurnSeat]
		if p == nil || !p.IsSittingOut {
			return nil
		}
		action := ActionFold
		if rt.CurrentBet <= p.Bet {
			action = ActionCheck
		}
		if err := e.applyAction(rt, p.UserID, action, 0, false); err != nil {
			e.logger.Error("Forced sit-out action failed",
				"table", rt.TableID, "seat", p.SeatNo, "error", err)
			return nil
		}
		if err := e.postApply(ctx, rt); err != nil {
			return err
		}
		// postApply already recursed through any further forced actions.
		return nil
	}
	return nil
}
