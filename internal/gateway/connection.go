package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"cardroom/internal/engine"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

// ErrConnectionClosed is returned when sending on a closed connection.
var ErrConnectionClosed = websocket.ErrCloseSent

// Connection wraps one client socket. It is authenticated exactly once;
// afterwards it sits in its per-user room and whatever table rooms it
// joined.
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	logger    *log.Logger
	service   *Service
	hub       *Hub
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu       sync.RWMutex
	userID   string
	username string
}

// NewConnection wraps an upgraded socket.
func NewConnection(conn *websocket.Conn, logger *log.Logger, service *Service, hub *Hub) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:    conn,
		send:    make(chan *Message, 256),
		logger:  logger.WithPrefix("conn"),
		service: service,
		hub:     hub,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins the read and write pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close shuts the connection down once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// Done exposes the connection lifetime.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Send queues a message for the client. A full buffer closes the
// connection rather than blocking the broadcaster.
func (c *Connection) Send(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("Attempted to send on closed connection", "error", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// UserID returns the authenticated user, or empty.
func (c *Connection) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Username returns the authenticated display name, or empty.
func (c *Connection) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Connection) setIdentity(userID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
	c.username = username
}

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage dispatches one client frame. Engine failures become
// ERROR events on this socket only; they are never broadcast.
func (c *Connection) handleMessage(msg *Message) {
	ctx := c.ctx

	if msg.Type == MsgAuth {
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse auth data")
			return
		}
		c.handleAuth(ctx, data)
		return
	}

	userID := c.UserID()
	if userID == "" {
		c.sendError("not_authenticated", "Must authenticate first")
		return
	}

	switch msg.Type {
	case MsgLobbyList:
		tables, err := c.service.Tables(ctx)
		if err != nil {
			c.sendEngineError(err)
			return
		}
		reply, err := NewMessage(MsgLobbyTables, map[string]any{"tables": tables})
		if err == nil {
			_ = c.Send(reply)
		}

	case MsgTableJoin:
		var data JoinData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse join data")
			return
		}
		if err := c.service.Join(ctx, c, data.TableID); err != nil {
			c.sendEngineError(err)
		}

	case MsgTableSit:
		var data SitData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse sit data")
			return
		}
		if err := c.service.Sit(ctx, userID, c.Username(), data); err != nil {
			c.sendEngineError(err)
		}

	case MsgTableLeave:
		var data LeaveData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse leave data")
			return
		}
		if err := c.service.Leave(ctx, userID, data.TableID); err != nil {
			c.sendEngineError(err)
		}

	case MsgTableRebuy:
		var data RebuyData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse rebuy data")
			return
		}
		if err := c.service.Rebuy(ctx, userID, data.TableID, data.Amount); err != nil {
			c.sendEngineError(err)
		}

	case MsgTableSitOut, MsgTableSitIn:
		var data SitToggleData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse sit toggle data")
			return
		}
		if err := c.service.SetSittingOut(ctx, userID, data.TableID, msg.Type == MsgTableSitOut); err != nil {
			c.sendEngineError(err)
		}

	case MsgTableAction:
		var data ActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse action data")
			return
		}
		if err := c.service.Action(ctx, userID, data.TableID, data.Action, data.Amount); err != nil {
			c.sendEngineError(err)
		}

	case MsgChatSend:
		var data ChatSendData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse chat data")
			return
		}
		c.service.ChatSend(ctx, userID, c.Username(), data.TableID, data.Text)

	case MsgChatHistory:
		var data ChatHistoryData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "Failed to parse chat history request")
			return
		}
		if err := c.service.ChatHistory(ctx, c, data.TableID); err != nil {
			c.sendEngineError(err)
		}

	default:
		c.sendError("unknown_message_type", "Unknown message type: "+string(msg.Type))
	}
}

// handleAuth resolves the bearer token and joins the per-user room.
func (c *Connection) handleAuth(ctx context.Context, data AuthData) {
	if c.UserID() != "" {
		c.sendError("already_authenticated", "Connection is already authenticated")
		return
	}
	if data.Token == "" {
		c.sendError("invalid_auth", "Token required")
		return
	}
	user, err := c.service.Authenticate(ctx, data.Token)
	if err != nil {
		c.sendError("invalid_auth", "Authentication failed")
		return
	}

	c.setIdentity(user.ID, user.Username)
	c.hub.Join(userRoom(user.ID), c)
	c.logger.Info("Client authenticated", "user", user.ID, "username", user.Username)

	response, err := NewMessage(MsgAuthResponse, AuthResponseData{
		Success:  true,
		UserID:   user.ID,
		Username: user.Username,
	})
	if err == nil {
		_ = c.Send(response)
	}
}

// sendEngineError maps engine failures onto the socket's ERROR channel.
func (c *Connection) sendEngineError(err error) {
	code := engine.CodeOf(err)
	if code == "" {
		c.logger.Error("Request failed", "error", err)
		c.sendError("internal_error", "Request failed")
		return
	}
	c.sendError(string(code), err.Error())
}

func (c *Connection) sendError(code, message string) {
	msg, err := NewMessage(MsgError, ErrorData{Code: code, Message: message})
	if err != nil {
		c.logger.Error("Failed to create error message", "error", err)
		return
	}
	_ = c.Send(msg)
}
