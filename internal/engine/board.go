package engine

import "context"

// PopBoardCard reveals the next pending board card and reports how many
// remain. The pacing orchestrator calls this once per reveal step.
func (e *Engine) PopBoardCard(ctx context.Context, tableID string) (int, error) {
	var remaining int
	err := e.withTable(tableID, func() error {
		rt, err := e.store.LoadRuntime(ctx, tableID)
		if err == ErrNoRuntime {
			return nil
		}
		if err != nil {
			return err
		}
		if !rt.IsDealingBoard || len(rt.PendingBoard) == 0 {
			return nil
		}

		rt.Board = append(rt.Board, rt.PendingBoard[0])
		rt.PendingBoard = rt.PendingBoard[1:]
		remaining = len(rt.PendingBoard)

		if err := e.saveRuntime(ctx, rt); err != nil {
			return err
		}
		e.broadcastSnapshot(rt)
		return nil
	})
	return remaining, err
}

// CompleteReveal finishes a reveal sequence: clears the dealing flag and,
// outside auto-runout, starts the next turn's clock. Reports whether the
// table is in auto-runout.
func (e *Engine) CompleteReveal(ctx context.Context, tableID string) (bool, error) {
	var runout bool
	err := e.withTable(tableID, func() error {
		rt, err := e.store.LoadRuntime(ctx, tableID)
		if err == ErrNoRuntime {
			return nil
		}
		if err != nil {
			return err
		}
		runout = rt.AutoRunout
		if !rt.IsDealingBoard {
			return nil
		}

		rt.IsDealingBoard = false
		rt.PendingBoard = nil
		if !rt.AutoRunout {
			e.setTurnDeadline(rt)
		}
		if err := e.saveRuntime(ctx, rt); err != nil {
			return err
		}
		e.broadcastSnapshot(rt)
		e.scheduleTurn(rt)
		return e.runForcedActions(ctx, rt)
	})
	return runout, err
}

// AdvanceRunoutStreet deals the next street of an auto-runout with no
// player action. Reports done=true once the hand has been resolved.
func (e *Engine) AdvanceRunoutStreet(ctx context.Context, tableID string) (bool, error) {
	var done bool
	err := e.withTable(tableID, func() error {
		rt, err := e.store.LoadRuntime(ctx, tableID)
		if err == ErrNoRuntime {
			done = true
			return nil
		}
		if err != nil {
			return err
		}
		if !rt.AutoRunout {
			done = true
			return nil
		}
		ended, err := e.advanceStreet(ctx, rt)
		done = ended
		return err
	})
	return done, err
}
