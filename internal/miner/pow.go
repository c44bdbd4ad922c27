package miner

import (
	"context"
	"errors"
	"time"

	"github.com/braidnet/braidd/internal/chain"
	"github.com/braidnet/braidd/internal/coordinator"
)

// staleCheckInterval is the number of nonces hashed between checks for
// cancellation and cut advances. Hashing is soft-cancelled: the loop only
// notices a newer cut at these boundaries.
const staleCheckInterval = 1 << 16

// runPoW produces blocks by brute-force search over the header nonce. Work
// whose chain advances while hashing is abandoned at the next check
// boundary and a fresh unit is requested.
func (r *Runtime) runPoW(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		miner, id := r.pickPair()
		entry, err := r.cfg.Source.IssueWork(ctx, miner, id)
		if err != nil {
			if errors.Is(err, coordinator.ErrNoPayload) || errors.Is(err, coordinator.ErrCapacity) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(retryDelay):
				}
				continue
			}
			return err
		}

		solved, found, err := r.solve(ctx, entry.Header)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		if err := r.settle(ctx, entry.WorkHash, solved); err != nil {
			return err
		}
	}
}

// solve searches the nonce space for a header meeting its target. It returns
// found=false when the search is abandoned: the chain advanced past the
// header's parent, or the nonce space is exhausted.
func (r *Runtime) solve(ctx context.Context, header chain.BlockHeader) (chain.BlockHeader, bool, error) {
	start := header
	start.Nonce = r.randNonce()

	candidate := start
	for hashed := uint64(0); ; {
		for i := 0; i < staleCheckInterval; i++ {
			if candidate.MeetsTarget() {
				r.logger.Debug("found solution",
					"chain_id", uint32(candidate.Chain),
					"block_height", candidate.Height,
					"nonce", candidate.Nonce)
				return candidate, true, nil
			}
			candidate.Nonce++
			hashed++
			if hashed == ^uint64(0) {
				return chain.BlockHeader{}, false, nil
			}
		}

		if err := ctx.Err(); err != nil {
			return chain.BlockHeader{}, false, err
		}
		stale, err := r.stale(ctx, header)
		if err != nil {
			return chain.BlockHeader{}, false, err
		}
		if stale {
			r.logger.Debug("abandoning stale work",
				"chain_id", uint32(header.Chain), "block_height", header.Height)
			return chain.BlockHeader{}, false, nil
		}
	}
}

// stale reports whether the chain already reached or passed the height the
// header is trying to claim.
func (r *Runtime) stale(ctx context.Context, header chain.BlockHeader) (bool, error) {
	cut, err := r.cfg.Cuts.CurrentCut(ctx)
	if err != nil {
		return false, err
	}
	return cut.Height(header.Chain) >= header.Height, nil
}
