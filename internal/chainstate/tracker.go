// Package chainstate maintains the node's view of the multi-chain cut
// frontier. The Tracker is the in-memory authority consulted by the
// coordinator; it is fed either by the chain-state engine over ZMQ and RPC
// or, on simulated networks, directly by the local engine.
package chainstate

import (
	"context"
	"sync"

	"github.com/braidnet/braidd/internal/chain"
	"github.com/braidnet/braidd/pkg/log"
)

// Tracker holds the latest observed cut and wakes waiters whenever any chain
// advances. Per-chain heights only ever move forward; a stale update for a
// chain is ignored rather than rolled back.
type Tracker struct {
	logger *log.Logger

	mu      sync.Mutex
	current chain.Cut
	advance chan struct{}
}

// NewTracker creates a tracker seeded with an initial cut.
func NewTracker(initial chain.Cut, logger *log.Logger) *Tracker {
	return &Tracker{
		logger:  logger.WithComponent("chainstate"),
		current: initial.Clone(),
		advance: make(chan struct{}),
	}
}

// CurrentCut returns a snapshot of the latest observed cut.
func (t *Tracker) CurrentCut(ctx context.Context) (chain.Cut, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current.Clone(), nil
}

// AwaitNextAdvance blocks until the tracked cut strictly advances on at
// least one chain relative to the baseline, and returns the advanced cut.
func (t *Tracker) AwaitNextAdvance(ctx context.Context, baseline chain.Cut) (chain.Cut, error) {
	for {
		t.mu.Lock()
		if len(t.current.AdvancedOver(baseline)) > 0 {
			cut := t.current.Clone()
			t.mu.Unlock()
			return cut, nil
		}
		wait := t.advance
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// Apply merges an observed cut into the tracked frontier, keeping the higher
// tip per chain, and wakes waiters if anything advanced. It returns the
// chains that moved.
func (t *Tracker) Apply(next chain.Cut) []chain.ChainID {
	t.mu.Lock()
	defer t.mu.Unlock()

	advanced := next.AdvancedOver(t.current)
	if len(advanced) == 0 {
		return nil
	}

	merged := t.current.Clone()
	for _, id := range advanced {
		merged[id] = next[id]
	}
	t.current = merged

	close(t.advance)
	t.advance = make(chan struct{})
	return advanced
}

// ApplyHeader merges a single new tip into the tracked frontier. It returns
// false when the header does not advance its chain.
func (t *Tracker) ApplyHeader(header chain.BlockHeader) bool {
	return len(t.Apply(chain.Cut{header.Chain: header})) > 0
}
