package engine

import (
	"context"

	"cardroom/poker"
)

// finishByFold pays the pot to the last contender and tears the hand
// down.
func (e *Engine) finishByFold(ctx context.Context, rt *TableRuntime) error {
	var winner *SeatRuntime
	for _, p := range rt.Players {
		if !p.HasFolded {
			winner = p
			break
		}
	}
	if winner == nil {
		e.logger.Error("Hand ended with no contenders", "table", rt.TableID, "hand", rt.HandID)
		return e.teardownHand(ctx, rt)
	}

	payout := rt.Pot.Total
	winner.Stack += payout

	e.logger.Info("Hand won by fold",
		"table", rt.TableID, "hand", rt.HandID, "seat", winner.SeatNo, "payout", payout)

	if err := e.persistStacks(ctx, rt); err != nil {
		return err
	}
	if err := e.teardownHand(ctx, rt); err != nil {
		return err
	}

	e.appendHandLog(ctx, rt, map[string]any{
		"handId":     rt.HandID,
		"board":      rt.Board,
		"winnerSeat": winner.SeatNo,
		"payout":     payout,
		"byFold":     true,
	})
	e.cast.ToTable(rt.TableID, EventHandEnded, map[string]any{
		"tableId":    rt.TableID,
		"handId":     rt.HandID,
		"byFold":     true,
		"winnerSeat": winner.SeatNo,
		"winners": []Winner{{
			SeatNo: winner.SeatNo,
			UserID: winner.UserID,
			Payout: payout,
		}},
	})
	e.flushKicks(ctx, rt.TableID, nil)
	e.pacer.AfterHandEnd(rt.TableID, true)
	return nil
}

// finishShowdown resolves side pots, applies payouts and tears the hand
// down. Pot total is recomputed from committed contributions first.
func (e *Engine) finishShowdown(ctx context.Context, rt *TableRuntime) error {
	rt.Pot.Total = rt.CommittedTotal()

	holes := make(map[int][]poker.Card)
	for _, p := range rt.Players {
		if p.HasFolded {
			continue
		}
		cards, err := e.store.LoadHoleCards(ctx, rt.TableID, rt.HandID, p.UserID)
		if err != nil {
			e.logger.Error("Failed to load hole cards at showdown",
				"table", rt.TableID, "user", p.UserID, "error", err)
			return err
		}
		holes[p.SeatNo] = cards
	}

	result := resolveShowdown(rt, holes)
	for _, w := range result.Winners {
		rt.Players[w.SeatNo].Stack += w.Payout
	}

	e.logger.Info("Showdown resolved",
		"table", rt.TableID, "hand", rt.HandID, "pots", len(result.Pots), "winners", len(result.Winners))

	if err := e.persistStacks(ctx, rt); err != nil {
		return err
	}
	if err := e.teardownHand(ctx, rt); err != nil {
		return err
	}

	e.appendHandLog(ctx, rt, map[string]any{
		"handId":  rt.HandID,
		"board":   rt.Board,
		"winners": result.Winners,
		"byFold":  false,
	})
	e.cast.ToTable(rt.TableID, EventShowdownReveal, map[string]any{
		"tableId": rt.TableID,
		"handId":  rt.HandID,
		"board":   rt.Board,
		"reveals": result.Reveals,
	})
	e.cast.ToTable(rt.TableID, EventHandEnded, map[string]any{
		"tableId": rt.TableID,
		"handId":  rt.HandID,
		"byFold":  false,
		"winners": result.Winners,
	})
	e.flushKicks(ctx, rt.TableID, nil)
	e.pacer.AfterHandEnd(rt.TableID, false)
	return nil
}

// teardownHand cancels the timer, releases seats and deletes the
// runtime; the table is then between hands.
func (e *Engine) teardownHand(ctx context.Context, rt *TableRuntime) error {
	e.sched.Cancel(rt.TableID)
	if err := e.seats.FinishHand(ctx, rt.TableID); err != nil {
		e.logger.Warn("Failed to release seats after hand", "table", rt.TableID, "error", err)
		if err := e.seats.FinishHand(ctx, rt.TableID); err != nil {
			return err
		}
	}
	if err := e.store.DeleteRuntime(ctx, rt.TableID); err != nil {
		e.logger.Warn("Runtime delete failed, retrying", "table", rt.TableID, "error", err)
		return e.store.DeleteRuntime(ctx, rt.TableID)
	}
	return nil
}

// appendHandLog records the hand summary for the audit trail; failures
// never roll back a completed hand.
func (e *Engine) appendHandLog(ctx context.Context, rt *TableRuntime, entry map[string]any) {
	if err := e.store.AppendHandLog(ctx, rt.TableID, entry); err != nil {
		e.logger.Warn("Hand log append failed", "table", rt.TableID, "hand", rt.HandID, "error", err)
	}
}

// flushKicks cashes out queued away-kicks and deferred leaves. Called
// only at safe points: the street boundary or hand end. A kicked
// contender mid-hand is folded in place; their committed chips keep
// funding the pots.
func (e *Engine) flushKicks(ctx context.Context, tableID string, rt *TableRuntime) {
	users := e.away.TakePending(tableID)
	if len(users) == 0 {
		return
	}

	for _, userID := range users {
		if rt != nil {
			if p := rt.Seat(userID); p != nil {
				p.HasFolded = true
				p.IsSittingOut = true
			}
		}
		amount, err := e.seats.CashOutSeat(ctx, tableID, userID)
		if err != nil {
			e.logger.Error("Failed to cash out kicked player",
				"table", tableID, "user", userID, "error", err)
			continue
		}
		e.away.ResetStrikes(tableID, userID)
		e.logger.Info("Player removed from table", "table", tableID, "user", userID, "cashOut", amount)
		e.cast.ToTable(tableID, EventPlayerKicked, map[string]any{
			"tableId": tableID,
			"userId":  userID,
			"cashOut": amount,
		})
		e.cast.ToUser(userID, EventPlayerKicked, map[string]any{
			"tableId": tableID,
			"cashOut": amount,
		})
	}
}
