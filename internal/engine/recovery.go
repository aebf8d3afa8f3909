package engine

import "context"

// Recover rebuilds in-memory timers from the KV after a process restart.
// The runtime blobs are the entire state a fresh process needs: past-due
// deadlines fire almost immediately and the hand converges.
func (e *Engine) Recover(ctx context.Context) error {
	tableIDs, err := e.store.ListRuntimeTables(ctx)
	if err != nil {
		return err
	}

	for _, tableID := range tableIDs {
		err := e.withTable(tableID, func() error {
			rt, err := e.store.LoadRuntime(ctx, tableID)
			if err == ErrNoRuntime {
				return nil
			}
			if err != nil {
				return err
			}

			e.logger.Info("Recovered in-flight hand",
				"table", tableID,
				"hand", rt.HandID,
				"round", rt.Round,
				"turnSeat", rt.CurrentTurnSeat)

			e.broadcastSnapshot(rt)

			switch {
			case rt.IsDealingBoard || rt.AutoRunout:
				// A reveal or runout was interrupted; the pacer resumes it.
				e.pacer.BeginReveal(rt.TableID)
			default:
				e.scheduleTurn(rt)
				return e.runForcedActions(ctx, rt)
			}
			return nil
		})
		if err != nil {
			e.logger.Error("Failed to recover table", "table", tableID, "error", err)
		}
	}
	return nil
}
