package gateway

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	awaypkg "cardroom/internal/clock"
	"cardroom/internal/engine"
	"cardroom/internal/store"
)

// Buy-in bounds in big blinds. Fixed for all tables.
const (
	buyInMinBB = 20
	buyInMaxBB = 100
)

// Service translates client events into engine calls. It owns no game
// rules: the engine is authoritative, the service validates money
// boundaries and room membership.
type Service struct {
	logger  *log.Logger
	clock   quartz.Clock
	engine  *engine.Engine
	sql     *store.SQLStore
	runtime *store.RuntimeStore
	hub     *Hub
	cast    *Caster
	away    *awaypkg.AwayTracker
}

// NewService wires the gateway service.
func NewService(logger *log.Logger, clk quartz.Clock, eng *engine.Engine, sql *store.SQLStore, runtime *store.RuntimeStore, hub *Hub, cast *Caster, away *awaypkg.AwayTracker) *Service {
	return &Service{
		logger:  logger.WithPrefix("gateway"),
		clock:   clk,
		engine:  eng,
		sql:     sql,
		runtime: runtime,
		hub:     hub,
		cast:    cast,
		away:    away,
	}
}

// Authenticate resolves a bearer token to an account.
func (s *Service) Authenticate(ctx context.Context, token string) (*store.User, error) {
	return s.sql.UserByToken(ctx, token)
}

// Tables returns the lobby listing.
func (s *Service) Tables(ctx context.Context) ([]store.TableSummary, error) {
	return s.sql.ListTables(ctx)
}

// Join subscribes the connection to the table room and sends the current
// snapshot, plus private cards if the user is dealt in.
func (s *Service) Join(ctx context.Context, c *Connection, tableID string) error {
	if _, err := s.sql.TableMeta(ctx, tableID); err != nil {
		return err
	}
	s.hub.Join(tableRoom(tableID), c)

	snap, rt, err := s.snapshotFor(ctx, tableID)
	if err != nil {
		return err
	}
	msg, err := NewMessage(MsgTableState, snap)
	if err != nil {
		return err
	}
	if err := c.Send(msg); err != nil {
		return err
	}

	if rt != nil {
		if seat := rt.Seat(c.UserID()); seat != nil {
			cards, err := s.runtime.LoadHoleCards(ctx, tableID, rt.HandID, c.UserID())
			if err == nil {
				private, err := NewMessage(MsgPrivateCards, map[string]any{
					"tableId": tableID,
					"handId":  rt.HandID,
					"cards":   cards,
				})
				if err == nil {
					_ = c.Send(private)
				}
			}
		}
	}
	return nil
}

// snapshotFor builds the public snapshot: the live runtime when a hand
// runs, the short-TTL cache when fresh, the durable seats otherwise.
func (s *Service) snapshotFor(ctx context.Context, tableID string) (*engine.TableSnapshot, *engine.TableRuntime, error) {
	rt, err := s.runtime.LoadRuntime(ctx, tableID)
	if err == nil {
		return engine.Snapshot(rt), rt, nil
	}
	if err != engine.ErrNoRuntime {
		return nil, nil, err
	}

	if cached, err := s.runtime.CachedPublicState(ctx, tableID); err == nil && cached != nil {
		return cached, nil, nil
	}
	snap, err := s.seatsSnapshot(ctx, tableID)
	return snap, nil, err
}

// seatsSnapshot builds a between-hands snapshot from the durable seats.
func (s *Service) seatsSnapshot(ctx context.Context, tableID string) (*engine.TableSnapshot, error) {
	seats, err := s.sql.OccupiedSeats(ctx, tableID)
	if err != nil {
		return nil, err
	}
	snap := &engine.TableSnapshot{TableID: tableID}
	for _, seat := range seats {
		snap.Seats = append(snap.Seats, engine.SeatView{
			SeatNo:       seat.SeatNo,
			UserID:       seat.UserID,
			Username:     seat.Username,
			Stack:        seat.Stack,
			IsSittingOut: seat.SittingOut,
		})
	}
	return snap, nil
}

// Sit buys the user in and seats them atomically, enforcing the
// one-active-table rule and the buy-in bounds, then tries to start a
// hand.
func (s *Service) Sit(ctx context.Context, userID, username string, data SitData) error {
	meta, err := s.sql.TableMeta(ctx, data.TableID)
	if err != nil {
		return err
	}
	if data.BuyInAmount < buyInMinBB*meta.BigBlind {
		return engine.Errf(engine.CodeBuyInTooSmall, "minimum buy-in is %d", buyInMinBB*meta.BigBlind)
	}
	if data.BuyInAmount > buyInMaxBB*meta.BigBlind {
		return engine.Errf(engine.CodeBuyInTooLarge, "maximum buy-in is %d", buyInMaxBB*meta.BigBlind)
	}

	if err := s.leaveOtherTables(ctx, userID, data.TableID); err != nil {
		return err
	}

	if err := s.sql.BuyIn(ctx, data.TableID, data.SeatNo, userID, username, data.BuyInAmount); err != nil {
		return err
	}
	s.logger.Info("Player sat down",
		"table", data.TableID, "seat", data.SeatNo, "user", userID, "buyIn", data.BuyInAmount)

	s.broadcastSeats(ctx, data.TableID)

	if _, err := s.engine.StartHand(ctx, data.TableID); err != nil {
		s.logger.Error("Failed to start hand after sit", "table", data.TableID, "error", err)
	}
	return nil
}

// leaveOtherTables removes the user from every other table: immediately
// when the table is between hands, at the next safe point when the user
// is in a running hand.
func (s *Service) leaveOtherTables(ctx context.Context, userID, exceptTableID string) error {
	rows, err := s.sql.SeatsOfUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.TableID == exceptTableID {
			continue
		}
		if s.deferCashOut(ctx, row.TableID, userID) {
			continue
		}
		if _, err := s.sql.CashOutSeat(ctx, row.TableID, userID); err != nil {
			s.logger.Error("Failed to cash out of other table",
				"table", row.TableID, "user", userID, "error", err)
			continue
		}
		s.broadcastSeats(ctx, row.TableID)
	}
	return nil
}

// deferCashOut queues a safe-point kick when the user is a contender in
// a running hand. Returns false when an immediate cash-out is safe.
func (s *Service) deferCashOut(ctx context.Context, tableID, userID string) bool {
	rt, err := s.runtime.LoadRuntime(ctx, tableID)
	if err != nil {
		return false
	}
	seat := rt.Seat(userID)
	if seat == nil || seat.HasFolded {
		return false
	}
	s.away.QueueKick(tableID, userID)
	s.cast.ToUser(userID, engine.EventLeavePending, map[string]any{"tableId": tableID})
	return true
}

// Leave cashes the user out, deferring to the next safe point when a
// hand is in flight. The turn clock is never cancelled by a leave; only
// the runtime state is authoritative.
func (s *Service) Leave(ctx context.Context, userID, tableID string) error {
	if s.deferCashOut(ctx, tableID, userID) {
		return nil
	}
	amount, err := s.sql.CashOutSeat(ctx, tableID, userID)
	if err != nil {
		return err
	}
	s.logger.Info("Player left table", "table", tableID, "user", userID, "cashOut", amount)
	s.broadcastSeats(ctx, tableID)
	return nil
}

// Rebuy tops up a stack, only between hands or once the user has folded.
func (s *Service) Rebuy(ctx context.Context, userID, tableID string, amount int64) error {
	meta, err := s.sql.TableMeta(ctx, tableID)
	if err != nil {
		return err
	}
	if amount <= 0 {
		return engine.Errf(engine.CodeInvalidAmount, "rebuy amount must be positive")
	}

	rt, err := s.runtime.LoadRuntime(ctx, tableID)
	if err == nil {
		if seat := rt.Seat(userID); seat != nil && !seat.HasFolded {
			return engine.Errf(engine.CodeHandInProgress, "cannot rebuy during a hand")
		}
	} else if err != engine.ErrNoRuntime {
		return err
	}

	if err := s.sql.Rebuy(ctx, tableID, userID, amount, buyInMaxBB*meta.BigBlind); err != nil {
		return err
	}
	s.broadcastSeats(ctx, tableID)
	return nil
}

// SetSittingOut toggles voluntary sit-out. The current hand keeps the
// seat's dealt-in obligations; the flag applies from the next deal.
func (s *Service) SetSittingOut(ctx context.Context, userID, tableID string, sittingOut bool) error {
	if err := s.sql.SetSittingOut(ctx, tableID, userID, sittingOut); err != nil {
		return err
	}
	s.broadcastSeats(ctx, tableID)
	if !sittingOut {
		if _, err := s.engine.StartHand(ctx, tableID); err != nil {
			s.logger.Error("Failed to start hand after sit-in", "table", tableID, "error", err)
		}
	}
	return nil
}

// Action forwards a betting action to the engine.
func (s *Service) Action(ctx context.Context, userID, tableID, action string, amount int64) error {
	parsed, err := engine.ParseAction(action)
	if err != nil {
		return err
	}
	return s.engine.Apply(ctx, tableID, userID, parsed, amount)
}

// ChatSend fans a chat line out to the table room and appends it to the
// capped history. Persistence failures log and swallow; chat must never
// interfere with a hand.
func (s *Service) ChatSend(ctx context.Context, userID, username, tableID, text string) {
	if text == "" {
		return
	}
	line := store.ChatMessage{
		UserID:   userID,
		Username: username,
		Text:     text,
		SentAt:   s.clock.Now().UnixMilli(),
	}
	if err := s.runtime.AppendChat(ctx, tableID, line); err != nil {
		s.logger.Warn("Failed to persist chat line", "table", tableID, "error", err)
	}
	msg, err := NewMessage(MsgChatLine, map[string]any{"tableId": tableID, "message": line})
	if err != nil {
		return
	}
	s.hub.Broadcast(tableRoom(tableID), msg)
}

// ChatHistory replies with the table's recent chat lines.
func (s *Service) ChatHistory(ctx context.Context, c *Connection, tableID string) error {
	lines, err := s.runtime.ChatHistory(ctx, tableID)
	if err != nil {
		return err
	}
	msg, err := NewMessage(MsgChatLog, map[string]any{"tableId": tableID, "messages": lines})
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// broadcastSeats pushes a between-hands seat snapshot to the table room.
// With a hand running the engine's own snapshots are authoritative.
func (s *Service) broadcastSeats(ctx context.Context, tableID string) {
	if _, err := s.runtime.LoadRuntime(ctx, tableID); err == nil {
		return
	}
	snap, err := s.seatsSnapshot(ctx, tableID)
	if err != nil {
		s.logger.Error("Failed to build seat snapshot", "table", tableID, "error", err)
		return
	}
	s.cast.ToTable(tableID, engine.EventStateSnapshot, snap)
}

// Disconnect tears down room membership. Seats are kept: a reconnecting
// player finds their stack where they left it, and the turn clock's
// default actions cover their absence.
func (s *Service) Disconnect(c *Connection) {
	s.hub.LeaveAll(c)
}
