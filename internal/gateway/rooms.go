package gateway

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"cardroom/internal/engine"
	"cardroom/internal/store"
)

func tableRoom(tableID string) string { return "table:" + tableID }
func userRoom(userID string) string   { return "user:" + userID }

// Hub is the room-addressed fan-out registry. Every connection joins its
// per-user room on auth and per-table rooms on table:join.
type Hub struct {
	logger *log.Logger
	mu     sync.RWMutex
	rooms  map[string]map[*Connection]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger: logger.WithPrefix("hub"),
		rooms:  make(map[string]map[*Connection]struct{}),
	}
}

// Join adds the connection to a room.
func (h *Hub) Join(room string, c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Connection]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Leave removes the connection from a room.
func (h *Hub) Leave(room string, c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// LeaveAll removes the connection from every room, on disconnect.
func (h *Hub) LeaveAll(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Broadcast sends the message to every connection in the room.
func (h *Hub) Broadcast(room string, msg *Message) {
	h.mu.RLock()
	members := make([]*Connection, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if err := c.Send(msg); err != nil {
			h.logger.Debug("Dropped message to room member", "room", room, "error", err)
		}
	}
}

// Caster adapts the hub to the engine's broadcast port. Private-card
// events map to the dedicated table:private_cards message and are only
// ever addressed to user rooms.
type Caster struct {
	hub     *Hub
	runtime *store.RuntimeStore
	logger  *log.Logger
}

// NewCaster creates the broadcast adapter.
func NewCaster(hub *Hub, runtime *store.RuntimeStore, logger *log.Logger) *Caster {
	return &Caster{hub: hub, runtime: runtime, logger: logger.WithPrefix("caster")}
}

// ToTable emits a table:event to the table room and refreshes the
// short-TTL public snapshot cache.
func (b *Caster) ToTable(tableID, eventType string, payload any) {
	msg, err := NewMessage(MsgTableEvent, TableEventData{TableID: tableID, Type: eventType, Payload: payload})
	if err != nil {
		b.logger.Error("Failed to encode table event", "table", tableID, "type", eventType, "error", err)
		return
	}
	b.hub.Broadcast(tableRoom(tableID), msg)

	if eventType == engine.EventStateSnapshot {
		if snap, ok := payload.(*engine.TableSnapshot); ok {
			if err := b.runtime.CachePublicState(context.Background(), tableID, snap); err != nil {
				b.logger.Debug("Failed to cache public state", "table", tableID, "error", err)
			}
		}
	}
}

// ToUser emits to the user's private room.
func (b *Caster) ToUser(userID, eventType string, payload any) {
	var msg *Message
	var err error
	if eventType == engine.EventPrivateCards {
		msg, err = NewMessage(MsgPrivateCards, payload)
	} else {
		msg, err = NewMessage(MsgTableEvent, TableEventData{Type: eventType, Payload: payload})
	}
	if err != nil {
		b.logger.Error("Failed to encode user event", "user", userID, "type", eventType, "error", err)
		return
	}
	b.hub.Broadcast(userRoom(userID), msg)
}
