package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"cardroom/poker"
)

// RuntimeStore is the shared-KV port for canonical hand state. Only the
// engine writes through it.
type RuntimeStore interface {
	LoadRuntime(ctx context.Context, tableID string) (*TableRuntime, error) // ErrNoRuntime when absent
	SaveRuntime(ctx context.Context, rt *TableRuntime) error
	DeleteRuntime(ctx context.Context, tableID string) error
	ListRuntimeTables(ctx context.Context) ([]string, error)

	SaveHoleCards(ctx context.Context, tableID, handID, userID string, cards []poker.Card) error
	LoadHoleCards(ctx context.Context, tableID, handID, userID string) ([]poker.Card, error)

	DealerSeat(ctx context.Context, tableID string) (int, error) // 0 when unset
	SetDealerSeat(ctx context.Context, tableID string, seat int) error

	AcquireHandStartLock(ctx context.Context, tableID string) (bool, error)
	ReleaseHandStartLock(ctx context.Context, tableID string) error

	AppendHandLog(ctx context.Context, tableID string, entry any) error
}

// SeatInfo describes an occupied seat from the durable store.
type SeatInfo struct {
	SeatNo     int
	UserID     string
	Username   string
	Stack      int64
	SittingOut bool
}

// TableMeta is the durable table description the engine needs to run a
// hand.
type TableMeta struct {
	MaxSeats   int
	SmallBlind int64
	BigBlind   int64
}

// SeatStore is the relational-store port for seats, stacks and wallet
// movements tied to hand boundaries.
type SeatStore interface {
	TableMeta(ctx context.Context, tableID string) (*TableMeta, error)
	OccupiedSeats(ctx context.Context, tableID string) ([]SeatInfo, error)
	BeginHand(ctx context.Context, tableID string, seatNos []int) error
	FinishHand(ctx context.Context, tableID string) error
	PersistStacks(ctx context.Context, tableID string, stacks map[int]int64) error
	CashOutSeat(ctx context.Context, tableID, userID string) (int64, error)
}

// Broadcaster is the narrow fan-out port. The engine never imports the
// transport; one method emits to a table room, one to a user room.
type Broadcaster interface {
	ToTable(tableID, eventType string, payload any)
	ToUser(userID, eventType string, payload any)
}

// TurnScheduler owns the single logical turn timer per table, keyed by
// (handId, seat, endsAt). Scheduling an identical key is a no-op.
type TurnScheduler interface {
	Schedule(tableID, handID string, seat int, endsAt int64)
	Cancel(tableID string)
}

// Pacer drives timed board reveals, auto-runouts and post-hand holds.
type Pacer interface {
	BeginReveal(tableID string)
	AfterHandEnd(tableID string, byFold bool)
}

// AwayPolicy tracks consecutive forced timeouts per (table, user) and
// queues kicks once the strike threshold is reached.
type AwayPolicy interface {
	RecordTimeout(tableID, userID string)
	ResetStrikes(tableID, userID string)
	TakePending(tableID string) []string
}

// Server -> client event types emitted through the Broadcaster.
const (
	EventStateSnapshot  = "STATE_SNAPSHOT"
	EventHandStarted    = "HAND_STARTED"
	EventShowdownReveal = "SHOWDOWN_REVEAL"
	EventHandEnded      = "HAND_ENDED"
	EventPlayerKicked   = "PLAYER_KICKED"
	EventLeavePending   = "LEAVE_PENDING"
	EventError          = "ERROR"
	EventPrivateCards   = "PRIVATE_CARDS"
)

// Timing holds the engine's clock-driven configuration.
type Timing struct {
	TurnTime          time.Duration
	AwayTimeoutsInRow int
	StreetPreDelay    time.Duration
	BoardCardInterval time.Duration
	StreetPostDelay   time.Duration
	WinByFoldHold     time.Duration
	ShowdownHold      time.Duration
}

// DefaultTiming returns the stock timing profile.
func DefaultTiming() Timing {
	return Timing{
		TurnTime:          15 * time.Second,
		AwayTimeoutsInRow: 2,
		StreetPreDelay:    250 * time.Millisecond,
		BoardCardInterval: 220 * time.Millisecond,
		StreetPostDelay:   350 * time.Millisecond,
		WinByFoldHold:     1500 * time.Millisecond,
		ShowdownHold:      2500 * time.Millisecond,
	}
}

// Engine is the authoritative per-table hand engine. All mutations of a
// table's runtime go through its per-table serializer, so concurrent
// socket frames and timer fires never interleave for the same table.
type Engine struct {
	logger *log.Logger
	clock  quartz.Clock
	timing Timing

	store RuntimeStore
	seats SeatStore
	cast  Broadcaster
	sched TurnScheduler
	pacer Pacer
	away  AwayPolicy

	rngMu sync.Mutex
	rng   *rand.Rand

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// New creates an engine. The pacer and scheduler are wired after
// construction to break the composition cycle.
func New(logger *log.Logger, clock quartz.Clock, timing Timing, store RuntimeStore, seats SeatStore, cast Broadcaster, away AwayPolicy, rng *rand.Rand) *Engine {
	return &Engine{
		logger: logger.WithPrefix("engine"),
		clock:  clock,
		timing: timing,
		store:  store,
		seats:  seats,
		cast:   cast,
		away:   away,
		rng:    rng,
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetScheduler wires the turn clock.
func (e *Engine) SetScheduler(s TurnScheduler) { e.sched = s }

// SetPacer wires the pacing orchestrator.
func (e *Engine) SetPacer(p Pacer) { e.pacer = p }

// Timing exposes the timing profile to collaborators.
func (e *Engine) Timing() Timing { return e.timing }

// tableLock returns the serializer mutex for a table.
func (e *Engine) tableLock(tableID string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	mu, ok := e.locks[tableID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[tableID] = mu
	}
	return mu
}

// withTable runs fn under the table's serializer.
func (e *Engine) withTable(tableID string, fn func() error) error {
	mu := e.tableLock(tableID)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// now returns wall-clock milliseconds from the injected clock.
func (e *Engine) now() int64 {
	return e.clock.Now().UnixMilli()
}

// shuffledDeck builds and shuffles a fresh deck.
func (e *Engine) shuffledDeck() []poker.Card {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return poker.Shuffle(poker.NewDeck(), e.rng)
}

// saveRuntime persists the runtime blob; KV errors are retried once at
// this boundary.
func (e *Engine) saveRuntime(ctx context.Context, rt *TableRuntime) error {
	if err := e.store.SaveRuntime(ctx, rt); err != nil {
		e.logger.Warn("Runtime save failed, retrying", "table", rt.TableID, "error", err)
		return e.store.SaveRuntime(ctx, rt)
	}
	return nil
}

// persistStacks writes per-seat stacks to the durable store in one
// transaction, retrying once.
func (e *Engine) persistStacks(ctx context.Context, rt *TableRuntime) error {
	stacks := make(map[int]int64, len(rt.Players))
	for seatNo, p := range rt.Players {
		stacks[seatNo] = p.Stack
	}
	if err := e.seats.PersistStacks(ctx, rt.TableID, stacks); err != nil {
		e.logger.Warn("Stack persist failed, retrying", "table", rt.TableID, "error", err)
		return e.seats.PersistStacks(ctx, rt.TableID, stacks)
	}
	return nil
}

// broadcastSnapshot fans the public snapshot out to the table room.
func (e *Engine) broadcastSnapshot(rt *TableRuntime) {
	e.cast.ToTable(rt.TableID, EventStateSnapshot, Snapshot(rt))
}

// scheduleTurn arms the table's turn timer from the runtime; no timer
// while dealing, during auto-runout or without a deadline.
func (e *Engine) scheduleTurn(rt *TableRuntime) {
	if rt.IsDealingBoard || rt.AutoRunout || rt.TurnEndsAt <= 0 || rt.CurrentTurnSeat == 0 {
		return
	}
	e.sched.Schedule(rt.TableID, rt.HandID, rt.CurrentTurnSeat, rt.TurnEndsAt)
}
