package miner

import (
	"context"
	"errors"
	"time"

	"github.com/braidnet/braidd/internal/coordinator"
)

// retryDelay is the pause after a recoverable issuance failure such as an
// unprimed payload cache or a full ledger.
const retryDelay = 250 * time.Millisecond

// runSimulated produces blocks without hashing: it sleeps a randomized
// interval, requests work for a random miner and chain, stamps a random
// nonce, and settles the solution. Recoverable coordination errors pause
// briefly and restart the cycle.
func (r *Runtime) runSimulated(ctx context.Context) error {
	timer := time.NewTimer(r.jitteredInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if err := r.mineSimulatedBlock(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		timer.Reset(r.jitteredInterval())
	}
}

// mineSimulatedBlock performs a single simulated attempt.
func (r *Runtime) mineSimulatedBlock(ctx context.Context) error {
	miner, id := r.pickPair()

	entry, err := r.cfg.Source.IssueWork(ctx, miner, id)
	if err != nil {
		if errors.Is(err, coordinator.ErrNoPayload) || errors.Is(err, coordinator.ErrCapacity) {
			r.logger.Debug("work unavailable, backing off",
				"miner_account", miner.Account, "chain_id", uint32(id), "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			return nil
		}
		return err
	}

	solved := entry.Header
	solved.Nonce = r.randNonce()

	return r.settle(ctx, entry.WorkHash, solved)
}
