package gateway

import (
	"encoding/json"
	"time"
)

// MessageType identifies a WebSocket message.
type MessageType string

const (
	// Client -> Server
	MsgAuth        MessageType = "auth"
	MsgLobbyList   MessageType = "lobby:list"
	MsgTableJoin   MessageType = "table:join"
	MsgTableSit    MessageType = "table:sit"
	MsgTableLeave  MessageType = "table:leave"
	MsgTableRebuy  MessageType = "table:rebuy"
	MsgTableSitOut MessageType = "table:sit_out"
	MsgTableSitIn  MessageType = "table:sit_in"
	MsgTableAction MessageType = "table:action"
	MsgChatSend    MessageType = "table:chat:message"
	MsgChatHistory MessageType = "table:chat:history"

	// Server -> Client
	MsgAuthResponse MessageType = "auth:response"
	MsgLobbyTables  MessageType = "lobby:tables"
	MsgTableState   MessageType = "table:state"
	MsgTableEvent   MessageType = "table:event"
	MsgPrivateCards MessageType = "table:private_cards"
	MsgChatLine     MessageType = "table:chat:line"
	MsgChatLog      MessageType = "table:chat:log"
	MsgError        MessageType = "error"
)

// Message is the wire envelope for both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage wraps a payload in the envelope.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{Type: messageType, Data: raw, Timestamp: time.Now()}, nil
}

// Client -> Server payloads.

type AuthData struct {
	Token string `json:"token"`
}

type JoinData struct {
	TableID string `json:"tableId"`
}

type SitData struct {
	TableID     string `json:"tableId"`
	SeatNo      int    `json:"seatNo"`
	BuyInAmount int64  `json:"buyInAmount"`
}

type LeaveData struct {
	TableID string `json:"tableId"`
}

type RebuyData struct {
	TableID string `json:"tableId"`
	Amount  int64  `json:"amount"`
}

type SitToggleData struct {
	TableID string `json:"tableId"`
}

type ActionData struct {
	TableID string `json:"tableId"`
	Action  string `json:"action"`
	Amount  int64  `json:"amount,omitempty"`
}

type ChatSendData struct {
	TableID string `json:"tableId"`
	Text    string `json:"text"`
}

type ChatHistoryData struct {
	TableID string `json:"tableId"`
}

// Server -> Client payloads.

type AuthResponseData struct {
	Success  bool   `json:"success"`
	UserID   string `json:"userId,omitempty"`
	Username string `json:"username,omitempty"`
}

// TableEventData is the discriminated union carried by table:event.
type TableEventData struct {
	TableID string `json:"tableId"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
