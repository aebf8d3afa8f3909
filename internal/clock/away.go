package clock

import (
	"sync"

	"github.com/charmbracelet/log"
)

// AwayTracker counts consecutive forced timeouts per (table, user) and
// queues users for removal once they hit the strike threshold. Queued
// kicks are taken by the engine only at safe points: a street boundary
// or hand end, never mid-street.
type AwayTracker struct {
	logger    *log.Logger
	threshold int

	mu      sync.Mutex
	strikes map[string]int
	pending map[string][]string
}

// NewAwayTracker creates a tracker that queues a kick after threshold
// consecutive timeouts.
func NewAwayTracker(logger *log.Logger, threshold int) *AwayTracker {
	return &AwayTracker{
		logger:    logger.WithPrefix("away"),
		threshold: threshold,
		strikes:   make(map[string]int),
		pending:   make(map[string][]string),
	}
}

func strikeKey(tableID, userID string) string {
	return tableID + ":" + userID
}

// RecordTimeout registers one forced timeout; at the threshold the user
// is queued for a kick.
func (a *AwayTracker) RecordTimeout(tableID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := strikeKey(tableID, userID)
	a.strikes[k]++
	if a.strikes[k] < a.threshold {
		return
	}

	for _, queued := range a.pending[tableID] {
		if queued == userID {
			return
		}
	}
	a.pending[tableID] = append(a.pending[tableID], userID)
	a.logger.Info("Player queued for away kick",
		"table", tableID, "user", userID, "strikes", a.strikes[k])
}

// ResetStrikes clears the strike count after any manual action.
func (a *AwayTracker) ResetStrikes(tableID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.strikes, strikeKey(tableID, userID))
}

// QueueKick queues a user for removal at the next safe point regardless
// of strikes; used for deferred mid-hand leaves.
func (a *AwayTracker) QueueKick(tableID, userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, queued := range a.pending[tableID] {
		if queued == userID {
			return
		}
	}
	a.pending[tableID] = append(a.pending[tableID], userID)
}

// TakePending drains the table's kick queue.
func (a *AwayTracker) TakePending(tableID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	users := a.pending[tableID]
	delete(a.pending, tableID)
	return users
}
