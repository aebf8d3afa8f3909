package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cardroom/internal/engine"
	"cardroom/poker"
)

const (
	runtimeTTL = time.Hour
	lockTTL    = 5 * time.Second
	cacheTTL   = 10 * time.Second

	handLogCap = 50
	chatCap    = 50
)

func runtimeKey(tableID string) string { return "runtime:" + tableID }
func dealerKey(tableID string) string  { return "dealer:" + tableID }
func lockKey(tableID string) string    { return "hand_start_lock:" + tableID }
func handLogKey(tableID string) string { return "handlog:" + tableID }
func chatKey(tableID string) string    { return "chat:" + tableID }
func publicKey(tableID string) string  { return "public_state:" + tableID }

func holeKey(tableID, handID, userID string) string {
	return fmt.Sprintf("hand:%s:%s:%s", tableID, handID, userID)
}

// RuntimeStore keeps the canonical hand state in the shared KV. Stored
// blobs carry a one-hour TTL refreshed on every write, so an abandoned
// table eventually evaporates.
type RuntimeStore struct {
	kv KV
}

// NewRuntimeStore creates a runtime store over the KV port.
func NewRuntimeStore(kv KV) *RuntimeStore {
	return &RuntimeStore{kv: kv}
}

func (s *RuntimeStore) LoadRuntime(ctx context.Context, tableID string) (*engine.TableRuntime, error) {
	raw, err := s.kv.Get(ctx, runtimeKey(tableID))
	if err == ErrKeyNotFound {
		return nil, engine.ErrNoRuntime
	}
	if err != nil {
		return nil, err
	}
	var rt engine.TableRuntime
	if err := json.Unmarshal(raw, &rt); err != nil {
		return nil, fmt.Errorf("decode runtime for table %s: %w", tableID, err)
	}
	return &rt, nil
}

func (s *RuntimeStore) SaveRuntime(ctx context.Context, rt *engine.TableRuntime) error {
	raw, err := json.Marshal(rt)
	if err != nil {
		return fmt.Errorf("encode runtime for table %s: %w", rt.TableID, err)
	}
	return s.kv.Set(ctx, runtimeKey(rt.TableID), raw, runtimeTTL)
}

func (s *RuntimeStore) DeleteRuntime(ctx context.Context, tableID string) error {
	return s.kv.Del(ctx, runtimeKey(tableID))
}

func (s *RuntimeStore) ListRuntimeTables(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx, "runtime:*")
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(keys))
	for _, k := range keys {
		tables = append(tables, k[len("runtime:"):])
	}
	return tables, nil
}

func (s *RuntimeStore) SaveHoleCards(ctx context.Context, tableID, handID, userID string, cards []poker.Card) error {
	raw, err := json.Marshal(cards)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, holeKey(tableID, handID, userID), raw, runtimeTTL)
}

func (s *RuntimeStore) LoadHoleCards(ctx context.Context, tableID, handID, userID string) ([]poker.Card, error) {
	raw, err := s.kv.Get(ctx, holeKey(tableID, handID, userID))
	if err == ErrKeyNotFound {
		return nil, fmt.Errorf("no hole cards for user %s in hand %s", userID, handID)
	}
	if err != nil {
		return nil, err
	}
	var cards []poker.Card
	if err := json.Unmarshal(raw, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

func (s *RuntimeStore) DealerSeat(ctx context.Context, tableID string) (int, error) {
	raw, err := s.kv.Get(ctx, dealerKey(tableID))
	if err == ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	seat, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, nil
	}
	return seat, nil
}

func (s *RuntimeStore) SetDealerSeat(ctx context.Context, tableID string, seat int) error {
	return s.kv.Set(ctx, dealerKey(tableID), []byte(strconv.Itoa(seat)), 0)
}

// AcquireHandStartLock takes the short-lived set-if-absent lock guarding
// hand construction. The expiry means a crashed starter cannot deadlock
// the table.
func (s *RuntimeStore) AcquireHandStartLock(ctx context.Context, tableID string) (bool, error) {
	return s.kv.SetNX(ctx, lockKey(tableID), []byte("1"), lockTTL)
}

func (s *RuntimeStore) ReleaseHandStartLock(ctx context.Context, tableID string) error {
	return s.kv.Del(ctx, lockKey(tableID))
}

// AppendHandLog pushes a hand summary onto the table's capped audit
// list.
func (s *RuntimeStore) AppendHandLog(ctx context.Context, tableID string, entry any) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.kv.LPush(ctx, handLogKey(tableID), raw); err != nil {
		return err
	}
	return s.kv.LTrim(ctx, handLogKey(tableID), 0, handLogCap-1)
}

// ChatMessage is one table chat line.
type ChatMessage struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Text     string `json:"text"`
	SentAt   int64  `json:"sentAt"`
}

// AppendChat pushes a chat line onto the table's capped history.
func (s *RuntimeStore) AppendChat(ctx context.Context, tableID string, msg ChatMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.kv.LPush(ctx, chatKey(tableID), raw); err != nil {
		return err
	}
	return s.kv.LTrim(ctx, chatKey(tableID), 0, chatCap-1)
}

// ChatHistory returns the most recent chat lines, newest first.
func (s *RuntimeStore) ChatHistory(ctx context.Context, tableID string) ([]ChatMessage, error) {
	raws, err := s.kv.LRange(ctx, chatKey(tableID), 0, chatCap-1)
	if err != nil {
		return nil, err
	}
	out := make([]ChatMessage, 0, len(raws))
	for _, raw := range raws {
		var msg ChatMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// CachePublicState stores the short-TTL public snapshot for cheap
// join-time reads.
func (s *RuntimeStore) CachePublicState(ctx context.Context, tableID string, snap *engine.TableSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, publicKey(tableID), raw, cacheTTL)
}

// CachedPublicState reads the cached snapshot, if fresh.
func (s *RuntimeStore) CachedPublicState(ctx context.Context, tableID string) (*engine.TableSnapshot, error) {
	raw, err := s.kv.Get(ctx, publicKey(tableID))
	if err == ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap engine.TableSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
