package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pearlgull/pearlgull/internal/bus"
	"github.com/pearlgull/pearlgull/internal/memory"
	"github.com/pearlgull/pearlgull/internal/schema"
)

// Per-thread promotion states used by Schedule.
const (
	promoteRunning uint8 = 1 // goroutine is actively promoting
	promoteQueued  uint8 = 2 // goroutine is running AND another run is pending
)

const promoteTimeout = 2 * time.Minute

// Promoter runs memory promotion sweeps off the turn path. At most one
// sweep runs per thread, with one pending slot, so back-to-back turns
// coalesce instead of piling up summarizer calls.
type Promoter struct {
	memory *memory.Manager
	events *bus.Bus
	logger *slog.Logger

	// Per-thread state (idle=absent, running=1, queued=2).
	states map[string]uint8
	mu     sync.Mutex
}

func NewPromoter(mem *memory.Manager, events *bus.Bus, logger *slog.Logger) *Promoter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Promoter{
		memory: mem,
		events: events,
		logger: logger,
		states: make(map[string]uint8),
	}
}

// Schedule requests a promotion sweep for a thread. caps are the
// segment caps from the triggering turn: tiers over them promote until
// they fit, and the follow-up snapshot reports fill against them.
//
// State machine per thread:
//
//	absent         → promoteRunning  launch goroutine
//	promoteRunning → promoteQueued   mark pending, goroutine will re-run
//	promoteQueued  → promoteQueued   already queued, nothing to do
func (p *Promoter) Schedule(threadID string, caps schema.Caps) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.states[threadID] {
	case promoteRunning:
		p.states[threadID] = promoteQueued
		return
	case promoteQueued:
		return
	}

	p.states[threadID] = promoteRunning
	go func() {
		for {
			p.sweep(threadID, caps)

			p.mu.Lock()
			if p.states[threadID] == promoteQueued {
				p.states[threadID] = promoteRunning
				p.mu.Unlock()
				continue
			}
			delete(p.states, threadID)
			p.mu.Unlock()
			return
		}
	}()
}

func (p *Promoter) sweep(threadID string, caps schema.Caps) {
	ctx, cancel := context.WithTimeout(context.Background(), promoteTimeout)
	defer cancel()

	notes, err := p.memory.Promote(ctx, threadID, caps)
	if err != nil {
		p.logger.Error("promotion sweep failed", "thread", threadID, "error", err)
		return
	}
	if len(notes) == 0 {
		return
	}

	snap, err := p.memory.Snapshot(ctx, threadID, caps, notes)
	if err != nil {
		p.logger.Error("post-promotion snapshot failed", "thread", threadID, "error", err)
		return
	}
	if p.events != nil {
		p.events.Publish(threadID, schema.TurnEvent{Type: schema.EventMemory, Memory: &snap})
	}
}
