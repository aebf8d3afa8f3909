package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	awaypkg "cardroom/internal/clock"
	"cardroom/poker"
)

// fakeRuntimeStore keeps blobs as JSON so every load/save exercises the
// real serialization path.
type fakeRuntimeStore struct {
	mu       sync.Mutex
	runtimes map[string][]byte
	holes    map[string][]byte
	dealers  map[string]int
	locks    map[string]bool
	logs     map[string][][]byte
}

func newFakeRuntimeStore() *fakeRuntimeStore {
	return &fakeRuntimeStore{
		runtimes: make(map[string][]byte),
		holes:    make(map[string][]byte),
		dealers:  make(map[string]int),
		locks:    make(map[string]bool),
		logs:     make(map[string][][]byte),
	}
}

func (f *fakeRuntimeStore) LoadRuntime(_ context.Context, tableID string) (*TableRuntime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.runtimes[tableID]
	if !ok {
		return nil, ErrNoRuntime
	}
	var rt TableRuntime
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, err
	}
	return &rt, nil
}

func (f *fakeRuntimeStore) SaveRuntime(_ context.Context, rt *TableRuntime) error {
	raw, err := json.Marshal(rt)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runtimes[rt.TableID] = raw
	return nil
}

func (f *fakeRuntimeStore) DeleteRuntime(_ context.Context, tableID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.runtimes, tableID)
	return nil
}

func (f *fakeRuntimeStore) ListRuntimeTables(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for tableID := range f.runtimes {
		out = append(out, tableID)
	}
	return out, nil
}

func holeMapKey(tableID, handID, userID string) string {
	return fmt.Sprintf("%s/%s/%s", tableID, handID, userID)
}

func (f *fakeRuntimeStore) SaveHoleCards(_ context.Context, tableID, handID, userID string, cards []poker.Card) error {
	raw, err := json.Marshal(cards)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holes[holeMapKey(tableID, handID, userID)] = raw
	return nil
}

func (f *fakeRuntimeStore) LoadHoleCards(_ context.Context, tableID, handID, userID string) ([]poker.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.holes[holeMapKey(tableID, handID, userID)]
	if !ok {
		return nil, fmt.Errorf("no hole cards for %s", userID)
	}
	var cards []poker.Card
	if err := json.Unmarshal(raw, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (f *fakeRuntimeStore) DealerSeat(_ context.Context, tableID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dealers[tableID], nil
}

func (f *fakeRuntimeStore) SetDealerSeat(_ context.Context, tableID string, seat int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dealers[tableID] = seat
	return nil
}

func (f *fakeRuntimeStore) AcquireHandStartLock(_ context.Context, tableID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[tableID] {
		return false, nil
	}
	f.locks[tableID] = true
	return true, nil
}

func (f *fakeRuntimeStore) ReleaseHandStartLock(_ context.Context, tableID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, tableID)
	return nil
}

func (f *fakeRuntimeStore) AppendHandLog(_ context.Context, tableID string, entry any) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[tableID] = append(f.logs[tableID], raw)
	return nil
}

// fakeSeatStore is a single-table in-memory seat and wallet store.
type fakeSeatStore struct {
	mu        sync.Mutex
	meta      TableMeta
	seats     map[int]SeatInfo
	status    string
	cashedOut map[string]int64
}

func newFakeSeatStore(meta TableMeta) *fakeSeatStore {
	return &fakeSeatStore{
		meta:      meta,
		seats:     make(map[int]SeatInfo),
		cashedOut: make(map[string]int64),
	}
}

func (f *fakeSeatStore) seat(seatNo int, userID string, stack int64, sittingOut bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seats[seatNo] = SeatInfo{
		SeatNo:     seatNo,
		UserID:     userID,
		Username:   userID,
		Stack:      stack,
		SittingOut: sittingOut,
	}
}

func (f *fakeSeatStore) stack(seatNo int) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seats[seatNo].Stack
}

func (f *fakeSeatStore) TableMeta(_ context.Context, _ string) (*TableMeta, error) {
	meta := f.meta
	return &meta, nil
}

func (f *fakeSeatStore) OccupiedSeats(_ context.Context, _ string) ([]SeatInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SeatInfo
	for _, s := range f.seats {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSeatStore) BeginHand(_ context.Context, _ string, _ []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = "RUNNING"
	return nil
}

func (f *fakeSeatStore) FinishHand(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = "WAITING"
	return nil
}

func (f *fakeSeatStore) PersistStacks(_ context.Context, _ string, stacks map[int]int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for seatNo, stack := range stacks {
		if s, ok := f.seats[seatNo]; ok {
			s.Stack = stack
			f.seats[seatNo] = s
		}
	}
	return nil
}

func (f *fakeSeatStore) CashOutSeat(_ context.Context, _ string, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for seatNo, s := range f.seats {
		if s.UserID == userID {
			delete(f.seats, seatNo)
			f.cashedOut[userID] = s.Stack
			return s.Stack, nil
		}
	}
	return 0, Errf(CodeNotSeated, "user %s not seated", userID)
}

// castEvent is one recorded broadcast.
type castEvent struct {
	Room    string // "table" or "user"
	ID      string
	Type    string
	Payload any
}

type fakeCast struct {
	mu     sync.Mutex
	events []castEvent
}

func (f *fakeCast) ToTable(tableID, eventType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, castEvent{Room: "table", ID: tableID, Type: eventType, Payload: payload})
}

func (f *fakeCast) ToUser(userID, eventType string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, castEvent{Room: "user", ID: userID, Type: eventType, Payload: payload})
}

func (f *fakeCast) typesFor(room string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, ev := range f.events {
		if ev.Room == room {
			out = append(out, ev.Type)
		}
	}
	return out
}

type scheduledTurn struct {
	TableID string
	HandID  string
	Seat    int
	EndsAt  int64
}

type fakeSched struct {
	mu        sync.Mutex
	scheduled []scheduledTurn
	cancels   int
}

func (f *fakeSched) Schedule(tableID, handID string, seat int, endsAt int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduledTurn{TableID: tableID, HandID: handID, Seat: seat, EndsAt: endsAt})
}

func (f *fakeSched) Cancel(_ string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
}

func (f *fakeSched) last() *scheduledTurn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.scheduled) == 0 {
		return nil
	}
	s := f.scheduled[len(f.scheduled)-1]
	return &s
}

type fakePacer struct {
	mu       sync.Mutex
	reveals  []string
	handEnds []string
}

func (f *fakePacer) BeginReveal(tableID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reveals = append(f.reveals, tableID)
}

func (f *fakePacer) AfterHandEnd(tableID string, _ bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handEnds = append(f.handEnds, tableID)
}

// testTable is the assembled engine harness.
type testTable struct {
	eng    *Engine
	store  *fakeRuntimeStore
	seats  *fakeSeatStore
	cast   *fakeCast
	sched  *fakeSched
	pacer  *fakePacer
	away   *awaypkg.AwayTracker
	clock  *quartz.Mock
	timing Timing
}

const testTableID = "t1"

func newTestTable(t *testing.T, meta TableMeta) *testTable {
	logger := log.New(os.Stderr)
	logger.SetLevel(log.ErrorLevel)

	mockClock := quartz.NewMock(t)
	timing := DefaultTiming()
	fstore := newFakeRuntimeStore()
	fseats := newFakeSeatStore(meta)
	cast := &fakeCast{}
	sched := &fakeSched{}
	pacer := &fakePacer{}
	away := awaypkg.NewAwayTracker(logger, timing.AwayTimeoutsInRow)

	eng := New(logger, mockClock, timing, fstore, fseats, cast, away, rand.New(rand.NewSource(7)))
	eng.SetScheduler(sched)
	eng.SetPacer(pacer)

	return &testTable{
		eng:    eng,
		store:  fstore,
		seats:  fseats,
		cast:   cast,
		sched:  sched,
		pacer:  pacer,
		away:   away,
		clock:  mockClock,
		timing: timing,
	}
}

func (tt *testTable) runtime(t *testing.T) *TableRuntime {
	rt, err := tt.store.LoadRuntime(context.Background(), testTableID)
	if err != nil {
		t.Fatalf("load runtime: %v", err)
	}
	return rt
}

func (tt *testTable) runtimeGone() bool {
	_, err := tt.store.LoadRuntime(context.Background(), testTableID)
	return err == ErrNoRuntime
}

// drainPacing plays the role of the orchestrator synchronously: pop all
// pending cards, complete the reveal, and keep advancing while the
// runout is active.
func (tt *testTable) drainPacing(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		for {
			remaining, err := tt.eng.PopBoardCard(ctx, testTableID)
			if err != nil {
				t.Fatalf("pop board card: %v", err)
			}
			if remaining == 0 {
				break
			}
		}
		runout, err := tt.eng.CompleteReveal(ctx, testTableID)
		if err != nil {
			t.Fatalf("complete reveal: %v", err)
		}
		if !runout {
			return
		}
		done, err := tt.eng.AdvanceRunoutStreet(ctx, testTableID)
		if err != nil {
			t.Fatalf("advance runout: %v", err)
		}
		if done {
			return
		}
	}
	t.Fatal("pacing did not converge")
}
