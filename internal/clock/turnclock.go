package clock

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// FireFunc is invoked when a turn deadline elapses. The tuple identifies
// the turn; the receiver re-validates it against the stored runtime.
type FireFunc func(tableID, handID string, seat int, endsAt int64)

// key identifies one scheduled turn. Scheduling the same key twice is a
// no-op; a different key replaces the previous timer.
type key struct {
	handID string
	seat   int
	endsAt int64
}

type entry struct {
	key   key
	timer *quartz.Timer
}

// TurnClock owns exactly one logical turn timer per table. Timers live
// in process memory and are rebuilt from the KV on boot.
type TurnClock struct {
	logger *log.Logger
	clock  quartz.Clock
	fire   FireFunc

	mu     sync.Mutex
	timers map[string]*entry
}

// NewTurnClock creates a turn clock. The fire callback is wired after
// construction via SetFire to break the composition cycle with the
// engine.
func NewTurnClock(logger *log.Logger, clock quartz.Clock) *TurnClock {
	return &TurnClock{
		logger: logger.WithPrefix("turnclock"),
		clock:  clock,
		timers: make(map[string]*entry),
	}
}

// SetFire wires the expiry callback.
func (tc *TurnClock) SetFire(fire FireFunc) {
	tc.fire = fire
}

// Schedule arms the table's timer for the given turn. An identical
// (handId, seat, endsAt) tuple is an idempotent reschedule; a different
// tuple cancels and replaces the previous timer. The delay is clamped at
// zero so past-due deadlines fire immediately.
func (tc *TurnClock) Schedule(tableID, handID string, seat int, endsAt int64) {
	if endsAt <= 0 {
		return
	}
	k := key{handID: handID, seat: seat, endsAt: endsAt}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	if existing, ok := tc.timers[tableID]; ok {
		if existing.key == k {
			return
		}
		existing.timer.Stop()
		delete(tc.timers, tableID)
	}

	delay := time.Duration(endsAt-tc.clock.Now().UnixMilli()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	timer := tc.clock.AfterFunc(delay, func() {
		tc.expire(tableID, k)
	})
	tc.timers[tableID] = &entry{key: k, timer: timer}

	tc.logger.Debug("Turn timer armed",
		"table", tableID, "hand", handID, "seat", seat, "delay", delay)
}

// Cancel drops the table's timer, if any.
func (tc *TurnClock) Cancel(tableID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if existing, ok := tc.timers[tableID]; ok {
		existing.timer.Stop()
		delete(tc.timers, tableID)
	}
}

// expire removes the fired timer and invokes the callback. A timer whose
// key no longer matches the table entry was superseded and stays silent.
func (tc *TurnClock) expire(tableID string, k key) {
	tc.mu.Lock()
	existing, ok := tc.timers[tableID]
	if !ok || existing.key != k {
		tc.mu.Unlock()
		return
	}
	delete(tc.timers, tableID)
	fire := tc.fire
	tc.mu.Unlock()

	if fire != nil {
		fire(tableID, k.handID, k.seat, k.endsAt)
	}
}
