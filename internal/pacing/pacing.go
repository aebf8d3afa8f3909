package pacing

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"cardroom/internal/engine"
)

// maxRunoutStreets bounds the auto-runout loop against pathological
// state.
const maxRunoutStreets = 10

// Driver is the slice of the engine the orchestrator drives.
type Driver interface {
	PopBoardCard(ctx context.Context, tableID string) (int, error)
	CompleteReveal(ctx context.Context, tableID string) (bool, error)
	AdvanceRunoutStreet(ctx context.Context, tableID string) (bool, error)
	StartHand(ctx context.Context, tableID string) (bool, error)
}

// Orchestrator paces board reveals, drives auto-runouts and holds
// between hands. Its delays are cooperative sleeps on the injected
// clock; they never block a worker thread beyond their own goroutine.
type Orchestrator struct {
	logger *log.Logger
	clock  quartz.Clock
	timing engine.Timing
	driver Driver

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	revealing map[string]bool
}

// New creates an orchestrator.
func New(logger *log.Logger, clock quartz.Clock, timing engine.Timing, driver Driver) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		logger:    logger.WithPrefix("pacing"),
		clock:     clock,
		timing:    timing,
		driver:    driver,
		ctx:       ctx,
		cancel:    cancel,
		revealing: make(map[string]bool),
	}
}

// Stop cancels all in-flight pacing sequences.
func (o *Orchestrator) Stop() {
	o.cancel()
}

// BeginReveal starts the reveal sequence for the table's pending board.
// Attempts to reveal while a sequence is already running are dropped.
func (o *Orchestrator) BeginReveal(tableID string) {
	o.mu.Lock()
	if o.revealing[tableID] {
		o.mu.Unlock()
		return
	}
	o.revealing[tableID] = true
	o.mu.Unlock()

	go func() {
		defer func() {
			o.mu.Lock()
			delete(o.revealing, tableID)
			o.mu.Unlock()
		}()

		runout, err := o.runReveal(tableID)
		if err != nil {
			o.logger.Error("Reveal sequence failed", "table", tableID, "error", err)
			return
		}
		if runout {
			o.runRunout(tableID)
		}
	}()
}

// runReveal plays out one street's pending cards and reports whether the
// table is auto-running out.
func (o *Orchestrator) runReveal(tableID string) (bool, error) {
	o.sleep(o.timing.StreetPreDelay)

	for {
		remaining, err := o.driver.PopBoardCard(o.ctx, tableID)
		if err != nil {
			return false, err
		}
		o.sleep(o.timing.BoardCardInterval)
		if remaining == 0 {
			break
		}
	}

	runout, err := o.driver.CompleteReveal(o.ctx, tableID)
	if err != nil {
		return false, err
	}
	o.sleep(o.timing.StreetPostDelay)
	return runout, nil
}

// runRunout deals the remaining streets without player action until the
// hand resolves.
func (o *Orchestrator) runRunout(tableID string) {
	for i := 0; i < maxRunoutStreets; i++ {
		if o.ctx.Err() != nil {
			return
		}
		done, err := o.driver.AdvanceRunoutStreet(o.ctx, tableID)
		if err != nil {
			o.logger.Error("Auto-runout street failed", "table", tableID, "error", err)
			return
		}
		if done {
			return
		}
		if _, err := o.runReveal(tableID); err != nil {
			o.logger.Error("Auto-runout reveal failed", "table", tableID, "error", err)
			return
		}
	}
	o.logger.Error("Auto-runout exceeded street bound", "table", tableID)
}

// AfterHandEnd holds for the configured pause and then tries to start
// the next hand.
func (o *Orchestrator) AfterHandEnd(tableID string, byFold bool) {
	hold := o.timing.ShowdownHold
	if byFold {
		hold = o.timing.WinByFoldHold
	}

	go func() {
		o.sleep(hold)
		if o.ctx.Err() != nil {
			return
		}
		started, err := o.driver.StartHand(o.ctx, tableID)
		if err != nil {
			o.logger.Error("Failed to start next hand", "table", tableID, "error", err)
			return
		}
		if !started {
			o.logger.Debug("Next hand not started", "table", tableID)
		}
	}()
}

// sleep waits on the injected clock; it returns early on shutdown.
func (o *Orchestrator) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	fired := make(chan struct{})
	timer := o.clock.AfterFunc(d, func() { close(fired) })
	defer timer.Stop()

	select {
	case <-fired:
	case <-o.ctx.Done():
	}
}
