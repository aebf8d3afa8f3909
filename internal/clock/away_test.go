package clock

import (
	"os"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func newTestAway(threshold int) *AwayTracker {
	logger := log.New(os.Stderr)
	logger.SetLevel(log.ErrorLevel)
	return NewAwayTracker(logger, threshold)
}

func TestKickQueuedAtThreshold(t *testing.T) {
	a := newTestAway(2)

	a.RecordTimeout("t1", "alice")
	assert.Empty(t, a.TakePending("t1"))

	a.RecordTimeout("t1", "alice")
	assert.Equal(t, []string{"alice"}, a.TakePending("t1"))

	// Taking drains the queue.
	assert.Empty(t, a.TakePending("t1"))
}

func TestManualActionResetsStrikes(t *testing.T) {
	a := newTestAway(2)

	a.RecordTimeout("t1", "alice")
	a.ResetStrikes("t1", "alice")
	a.RecordTimeout("t1", "alice")
	assert.Empty(t, a.TakePending("t1"), "reset strike must not count toward the kick")

	a.RecordTimeout("t1", "alice")
	assert.Equal(t, []string{"alice"}, a.TakePending("t1"))
}

func TestStrikesAreScopedPerTableAndUser(t *testing.T) {
	a := newTestAway(2)

	a.RecordTimeout("t1", "alice")
	a.RecordTimeout("t2", "alice")
	a.RecordTimeout("t1", "bob")
	assert.Empty(t, a.TakePending("t1"))
	assert.Empty(t, a.TakePending("t2"))
}

func TestQueueKickIsIdempotent(t *testing.T) {
	a := newTestAway(2)

	a.QueueKick("t1", "alice")
	a.QueueKick("t1", "alice")
	a.QueueKick("t1", "bob")
	assert.Equal(t, []string{"alice", "bob"}, a.TakePending("t1"))
}

func TestThresholdDoesNotRequeueBeyondPending(t *testing.T) {
	a := newTestAway(2)

	a.RecordTimeout("t1", "alice")
	a.RecordTimeout("t1", "alice")
	a.RecordTimeout("t1", "alice")
	assert.Equal(t, []string{"alice"}, a.TakePending("t1"))
}
