package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/braidnet/braidd/internal/chain"
	pkgerrors "github.com/braidnet/braidd/pkg/errors"
)

// runRefresher keeps the payload cache aligned with the cut frontier. It
// primes the cache for every chain at startup, then blocks on cut advances
// and recomputes payloads only for the chains whose tip actually moved,
// merging the fresh entries over the surviving ones in a single visible
// update. Payload build failures for individual pairs are logged and
// skipped; the stale entry keeps serving until the next advance.
func (c *Coordinator) runRefresher(ctx context.Context) error {
	logger := c.logger.WithComponent("refresher")

	baseline, err := c.cfg.Cuts.CurrentCut(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeChainState,
			"refresher", "failed to read initial cut")
	}

	start := time.Now()
	primed := c.rebuild(ctx, baseline, baseline.Chains())
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.cache.mergeFresh(primed)
	logger.Info("primed payload cache",
		"chains", len(baseline.Chains()),
		"entries", countEntries(primed),
		"elapsed", time.Since(start))

	for {
		next, err := c.cfg.Cuts.AwaitNextAdvance(ctx, baseline)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			return pkgerrors.Wrap(err, pkgerrors.ErrorTypeChainState,
				"refresher", "failed awaiting cut advance")
		}

		advanced := next.AdvancedOver(baseline)
		if len(advanced) == 0 {
			baseline = next
			continue
		}

		start := time.Now()
		fresh := c.rebuild(ctx, next, advanced)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.cache.mergeFresh(fresh)
		baseline = next

		elapsed := time.Since(start)
		logger.LogCutAdvance(chainIDsToUint32(advanced), countEntries(fresh), elapsed)
		c.recordCut(ctx, next)
		if c.cfg.Store != nil {
			c.cfg.Store.RecordRefresh(len(advanced), countEntries(fresh), elapsed)
		}
	}
}

// rebuild computes fresh cache entries for every registered miner on each of
// the given chains against the tips of cut. Pairs whose payload build fails
// are omitted from the result.
func (c *Coordinator) rebuild(ctx context.Context, cut chain.Cut, chains []chain.ChainID) map[chain.Miner]map[chain.ChainID]CachedEntry {
	logger := c.logger.WithComponent("refresher")
	now := time.Now().UTC()

	fresh := make(map[chain.Miner]map[chain.ChainID]CachedEntry, len(c.cfg.Miners))
	for _, miner := range c.cfg.Miners {
		for _, id := range chains {
			if ctx.Err() != nil {
				return fresh
			}
			parent, ok := cut.Tip(id)
			if !ok {
				continue
			}

			payload, err := c.cfg.Builder.BuildPayload(ctx, miner, parent, now)
			if err != nil {
				logger.WithError(err).Warn("skipping payload rebuild",
					"miner_account", miner.Account, "chain_id", uint32(id))
				continue
			}

			if fresh[miner] == nil {
				fresh[miner] = make(map[chain.ChainID]CachedEntry, len(chains))
			}
			fresh[miner][id] = CachedEntry{Payload: payload, Parent: parent}
		}
	}
	return fresh
}

// recordCut mirrors the latest cut snapshot to Redis, best effort.
func (c *Coordinator) recordCut(ctx context.Context, cut chain.Cut) {
	if c.cfg.Store == nil {
		return
	}
	if err := c.cfg.Store.RecordCutSnapshot(ctx, cut); err != nil {
		c.logger.WithError(err).Warn("failed to record cut snapshot")
	}
}

func countEntries(m map[chain.Miner]map[chain.ChainID]CachedEntry) int {
	n := 0
	for _, perChain := range m {
		n += len(perChain)
	}
	return n
}

func chainIDsToUint32(ids []chain.ChainID) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}
