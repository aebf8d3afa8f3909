package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverReschedulesFromStoredDeadline(t *testing.T) {
	tt := newTestTable(t, stdMeta())
	tt.seats.seat(1, "u1", 1000, false)
	tt.seats.seat(2, "u2", 1000, false)
	rt := startHand(t, tt)

	// Simulate a crash: a fresh engine over the same KV, with empty
	// in-memory timers.
	crashed := newTestTable(t, stdMeta())
	crashed.store = tt.store
	fresh := New(crashed.eng.logger, crashed.clock, crashed.timing, tt.store, tt.seats, crashed.cast, crashed.away, nil)
	fresh.SetScheduler(crashed.sched)
	fresh.SetPacer(crashed.pacer)

	require.NoError(t, fresh.Recover(context.Background()))

	last := crashed.sched.last()
	require.NotNil(t, last, "recovery must rebuild the turn timer")
	assert.Equal(t, rt.HandID, last.HandID)
	assert.Equal(t, rt.CurrentTurnSeat, last.Seat)
	assert.Equal(t, rt.TurnEndsAt, last.EndsAt)

	assert.Contains(t, crashed.cast.typesFor("table"), EventStateSnapshot)
}

func TestRecoverPastDueDeadlineStillConverges(t *testing.T) {
	tt := newTestTable(t, stdMeta())
	tt.seats.seat(1, "u1", 1000, false)
	tt.seats.seat(2, "u2", 1000, false)
	rt := startHand(t, tt)

	// Age the stored deadline past due.
	rt.TurnEndsAt = tt.eng.now() - 500
	require.NoError(t, tt.store.SaveRuntime(context.Background(), rt))

	sched := &fakeSched{}
	tt.eng.SetScheduler(sched)
	require.NoError(t, tt.eng.Recover(context.Background()))

	last := sched.last()
	require.NotNil(t, last)
	assert.Equal(t, rt.TurnEndsAt, last.EndsAt, "past-due deadline passes through; the clock clamps the delay")

	// The fire applies the default action exactly as a live timeout:
	// the small blind folds to the big blind and the hand resolves.
	tt.eng.OnTurnExpiry(testTableID, last.HandID, last.Seat, last.EndsAt)
	assert.True(t, tt.runtimeGone())
	assert.Equal(t, int64(995), tt.seats.stack(1))
	assert.Equal(t, int64(1005), tt.seats.stack(2))
}

func TestRecoverResumesInterruptedReveal(t *testing.T) {
	tt := newTestTable(t, stdMeta())
	tt.seats.seat(1, "u1", 1000, false)
	tt.seats.seat(2, "u2", 1000, false)
	tt.seats.seat(3, "u3", 1000, false)
	startHand(t, tt)

	ctx := context.Background()
	require.NoError(t, tt.eng.Apply(ctx, testTableID, "u1", ActionCall, 0))
	require.NoError(t, tt.eng.Apply(ctx, testTableID, "u2", ActionCall, 0))
	require.NoError(t, tt.eng.Apply(ctx, testTableID, "u3", ActionCheck, 0))

	// Crash mid-reveal: the runtime still has pending board cards.
	rt := tt.runtime(t)
	require.True(t, rt.IsDealingBoard)

	pacer := &fakePacer{}
	tt.eng.SetPacer(pacer)
	require.NoError(t, tt.eng.Recover(ctx))
	assert.Equal(t, []string{testTableID}, pacer.reveals, "recovery hands the reveal back to the pacer")
}
