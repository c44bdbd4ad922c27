package coordinator

import (
	"context"
	"time"

	"github.com/braidnet/braidd/internal/events"
)

// runPruner evicts stale outstanding work on a fixed tick and reports
// coordinator statistics. The tick period equals the staleness window, so an
// unsolved entry survives at most two windows. Pruning and reading-and-
// resetting the rejection counter happen in one critical section on the
// ledger, so each rejection is reported exactly once.
func (c *Coordinator) runPruner(ctx context.Context) error {
	logger := c.logger.WithComponent("pruner")

	ticker := time.NewTicker(c.staleness)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			cutoff := now.Add(-c.staleness)
			pruned, active, rejected := c.ledger.rollStats(cutoff)
			totalTx, miners := c.cache.txStats()
			avgTx := averageTxCount(totalTx, miners)

			logger.LogCoordinatorStats(active, pruned, rejected, avgTx)
			c.emitStats(ctx, active, pruned, rejected, avgTx)
		}
	}
}

// emitStats reports the tick's statistics to InfluxDB, Redis, and Kafka,
// best effort. Emission failures never interrupt pruning.
func (c *Coordinator) emitStats(ctx context.Context, active, pruned int, rejected uint64, avgTx float64) {
	if c.cfg.Store != nil {
		if err := c.cfg.Store.RecordStats(ctx, active, pruned, rejected, avgTx); err != nil {
			c.logger.WithError(err).Warn("failed to record coordinator stats")
		}
	}

	if c.cfg.Events != nil {
		msg := &events.CoordinatorStatsMessage{
			ActiveWork:     active,
			PrunedWork:     pruned,
			RejectedWork:   rejected,
			AverageTxCount: avgTx,
			ObservedAt:     time.Now().UTC(),
		}
		if err := c.cfg.Events.PublishStats(ctx, msg); err != nil {
			c.logger.WithError(err).Warn("failed to publish coordinator stats")
		}
	}
}
