// Package coordinator implements the mining-coordination core of the node:
// it issues proof-of-work work to miners, tracks which work is outstanding,
// reconciles completed work against the advancing cut frontier, and keeps a
// warm cache of precomputed candidate payloads so work requests are served
// without synchronously invoking transaction execution.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/sync/errgroup"

	"github.com/braidnet/braidd/internal/chain"
	"github.com/braidnet/braidd/internal/events"
	"github.com/braidnet/braidd/internal/store"
	"github.com/braidnet/braidd/internal/store/postgres"
	"github.com/braidnet/braidd/pkg/log"
)

const (
	// defaultWorkCap is the default outstanding-work capacity limit.
	defaultWorkCap = 2500

	// defaultStalenessWindow is the default age after which unsolved
	// outstanding work is evicted, and the pruner tick period.
	defaultStalenessWindow = 5 * time.Minute
)

// Config holds the collaborators and settings of a coordination facade.
type Config struct {
	// Logger is the structured logger. Required.
	Logger *log.Logger

	// Cuts provides the chain-state engine's cut frontier. Required.
	Cuts CutSource

	// Builder computes candidate payloads. Required.
	Builder PayloadBuilder

	// Miners is the fixed set of identities registered for payload
	// precomputation. Required to be non-empty.
	Miners []chain.Miner

	// WorkCap limits the number of outstanding ledger entries. Defaults to
	// 2500 when zero.
	WorkCap int

	// StalenessWindow is the age after which unsolved work is pruned and
	// the pruner tick period. Defaults to 5 minutes when zero.
	StalenessWindow time.Duration

	// Events optionally publishes work lifecycle messages to Kafka.
	// Publishing is best effort and never fails a request path.
	Events *events.Client

	// Store optionally records solves and statistics across the node's
	// databases, best effort.
	Store *store.Manager
}

// Task is a long-lived unit of work supervised by the coordinator's run
// group alongside the cache refresher and ledger pruner.
type Task func(ctx context.Context) error

// Coordinator is the coordination facade: the work ledger and payload cache
// behind issue/submit operations, plus the background tasks that keep them
// fresh and bounded.
type Coordinator struct {
	cfg       Config
	logger    *log.Logger
	ledger    *workLedger
	cache     *payloadCache
	staleness time.Duration
}

// New creates a coordination facade. Background tasks do not start until Run.
func New(cfg *Config) (*Coordinator, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("coordinator requires a logger")
	}
	if cfg.Cuts == nil {
		return nil, fmt.Errorf("coordinator requires a cut source")
	}
	if cfg.Builder == nil {
		return nil, fmt.Errorf("coordinator requires a payload builder")
	}
	if len(cfg.Miners) == 0 {
		return nil, fmt.Errorf("coordinator requires at least one registered miner")
	}

	workCap := cfg.WorkCap
	if workCap <= 0 {
		workCap = defaultWorkCap
	}
	staleness := cfg.StalenessWindow
	if staleness <= 0 {
		staleness = defaultStalenessWindow
	}

	return &Coordinator{
		cfg:       *cfg,
		logger:    cfg.Logger.WithComponent("coordinator"),
		ledger:    newWorkLedger(workCap),
		cache:     newPayloadCache(),
		staleness: staleness,
	}, nil
}

// Run starts the cache refresher and ledger pruner together with any extra
// tasks (the in-process miner runtime or a request-serving loop) under a
// single supervising group. It blocks until the context is cancelled or a
// task fails; the first failure cancels the rest and is returned.
func (c *Coordinator) Run(ctx context.Context, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.runRefresher(gctx) })
	g.Go(func() error { return c.runPruner(gctx) })
	for _, task := range tasks {
		task := task
		g.Go(func() error { return task(gctx) })
	}

	return g.Wait()
}

// IssueWork hands out a unit of work for the given miner and chain built
// from the cached candidate payload. It fails with ErrNoPayload when no
// payload has been cached yet for the pair and with ErrCapacity when the
// ledger is full; the capacity check and ledger insert are one atomic step.
func (c *Coordinator) IssueWork(ctx context.Context, miner chain.Miner, id chain.ChainID) (*WorkEntry, error) {
	cached, ok := c.cache.lookup(miner, id)
	if !ok {
		return nil, coordError(ErrNoPayload,
			fmt.Sprintf("no cached payload for miner %q on chain %d", miner.Account, id))
	}

	now := time.Now().UTC()
	header := chain.NewWorkHeader(cached.Parent, cached.Payload.PayloadHash, now)

	entry, err := c.ledger.insert(WorkEntry{
		WorkHash:       header.WorkHash(),
		Miner:          miner,
		Header:         header,
		Payload:        cached.Payload,
		ParentCreation: cached.Parent.CreationTime,
		IssuedAt:       now,
	})
	if err != nil {
		if errors.Is(err, ErrCapacity) {
			c.logger.Debug("work request rejected at capacity",
				"miner_account", miner.Account, "chain_id", uint32(id))
		}
		return nil, err
	}

	c.logger.LogWorkIssued(entry.WorkHash.String(), miner.Account, uint32(id), header.Height)
	c.publishWorkIssued(ctx, &entry)
	return &entry, nil
}

// SubmitSolution atomically removes and returns the outstanding work entry
// for the given hash. ErrWorkNotFound means the hash is stale, already
// submitted, or forged; the caller must not apply the corresponding block.
func (c *Coordinator) SubmitSolution(ctx context.Context, workHash chainhash.Hash) (*WorkEntry, error) {
	entry, ok := c.ledger.takeSolved(workHash)
	if !ok {
		c.logger.Debug("rejected submission for unknown work", "work_hash", workHash.String())
		return nil, coordError(ErrWorkNotFound,
			fmt.Sprintf("no outstanding work for hash %s", workHash))
	}

	c.logger.LogSolve(entry.WorkHash.String(), entry.Miner.Account,
		uint32(entry.Header.Chain), entry.Header.Height, time.Since(entry.IssuedAt))
	c.recordSolve(ctx, &entry)
	return &entry, nil
}

// Stats is the aggregate statistics record exposed to the request-serving
// layer and emitted by the pruner.
type Stats struct {
	// ActiveWork is the number of outstanding ledger entries.
	ActiveWork int

	// RejectedSinceLastTick counts capacity rejections since the last
	// pruner tick.
	RejectedSinceLastTick uint64

	// AverageTxCount is the total transaction count across cached payloads
	// divided by the number of distinct miners with cached entries.
	AverageTxCount float64
}

// SnapshotStats reads the current statistics without resetting the
// rejection counter.
func (c *Coordinator) SnapshotStats() Stats {
	active, rejected := c.ledger.stats()
	totalTx, miners := c.cache.txStats()
	return Stats{
		ActiveWork:            active,
		RejectedSinceLastTick: rejected,
		AverageTxCount:        averageTxCount(totalTx, miners),
	}
}

// Capacity returns the outstanding-work limit and the current outstanding
// count, for building "service unavailable" responses upstream.
func (c *Coordinator) Capacity() (limit, outstanding int) {
	return c.ledger.capacity()
}

// averageTxCount divides with a minimum divisor of one so an empty miner set
// reports zero instead of dividing by zero.
func averageTxCount(totalTx, miners int) float64 {
	if miners < 1 {
		miners = 1
	}
	return float64(totalTx) / float64(miners)
}

// publishWorkIssued emits a work-issued event, best effort.
func (c *Coordinator) publishWorkIssued(ctx context.Context, entry *WorkEntry) {
	if c.cfg.Events == nil {
		return
	}

	msg := &events.WorkIssuedMessage{
		WorkHash:     entry.WorkHash.String(),
		MinerAccount: entry.Miner.Account,
		ChainID:      uint32(entry.Header.Chain),
		Height:       entry.Header.Height,
		TxCount:      entry.Payload.TxCount(),
		IssuedAt:     entry.IssuedAt,
	}
	if err := c.cfg.Events.PublishWorkIssued(ctx, msg); err != nil {
		c.logger.WithError(err).Warn("failed to publish work-issued event")
	}
}

// recordSolve journals an accepted solution and emits a solve event, both
// best effort.
func (c *Coordinator) recordSolve(ctx context.Context, entry *WorkEntry) {
	solvedAt := time.Now().UTC()

	if c.cfg.Store != nil {
		solve := &postgres.Solve{
			WorkHash:      entry.WorkHash.String(),
			ChainID:       int64(entry.Header.Chain),
			Height:        int64(entry.Header.Height),
			MinerAccount:  entry.Miner.Account,
			PayoutAddress: entry.Miner.PayoutAddress,
			TxCount:       entry.Payload.TxCount(),
			IssuedAt:      entry.IssuedAt,
			SolvedAt:      solvedAt,
		}
		if err := c.cfg.Store.RecordSolve(ctx, solve); err != nil {
			c.logger.WithError(err).Warn("failed to journal solve")
		}
	}

	if c.cfg.Events != nil {
		msg := &events.SolveMessage{
			WorkHash:     entry.WorkHash.String(),
			MinerAccount: entry.Miner.Account,
			ChainID:      uint32(entry.Header.Chain),
			Height:       entry.Header.Height,
			IssuedAt:     entry.IssuedAt,
			SolvedAt:     solvedAt,
		}
		if err := c.cfg.Events.PublishSolve(ctx, msg); err != nil {
			c.logger.WithError(err).Warn("failed to publish solve event")
		}
	}
}
