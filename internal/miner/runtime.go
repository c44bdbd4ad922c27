// Package miner implements the in-process miner runtime used on networks
// where the node itself produces blocks: simulated block production on
// networks without a difficulty window, and a CPU proof-of-work loop
// everywhere else.
package miner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/braidnet/braidd/internal/chain"
	"github.com/braidnet/braidd/internal/coordinator"
	"github.com/braidnet/braidd/pkg/log"
)

// WorkSource issues and settles units of work. Implemented by the
// coordination facade.
type WorkSource interface {
	IssueWork(ctx context.Context, miner chain.Miner, id chain.ChainID) (*coordinator.WorkEntry, error)
	SubmitSolution(ctx context.Context, workHash chainhash.Hash) (*coordinator.WorkEntry, error)
}

// ChainExtender appends solved blocks to their chain. Implemented by the
// chain-state engine client, or the local engine on simulated networks.
type ChainExtender interface {
	ExtendChain(ctx context.Context, header chain.BlockHeader, payload *chain.CandidatePayload) error
}

// Config holds the collaborators and settings of the miner runtime.
type Config struct {
	// Logger is the structured logger. Required.
	Logger *log.Logger

	// Params selects the runtime mode: simulated when the network has no
	// difficulty-adjustment window, proof of work otherwise. Required.
	Params *chain.Params

	// Miners is the set of identities to mine for. Required to be non-empty.
	Miners []chain.Miner

	// Source issues and settles work. Required.
	Source WorkSource

	// Extender appends solved blocks. Required.
	Extender ChainExtender

	// Cuts is consulted by the proof-of-work loop to abandon work whose
	// chain has already advanced. Required in proof-of-work mode.
	Cuts coordinator.CutSource
}

// Runtime drives one block-production loop. The mode is fixed at
// construction and never changes while running.
type Runtime struct {
	cfg    Config
	logger *log.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a miner runtime.
func New(cfg *Config) (*Runtime, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("miner runtime requires a logger")
	}
	if cfg.Params == nil {
		return nil, fmt.Errorf("miner runtime requires chain params")
	}
	if len(cfg.Miners) == 0 {
		return nil, fmt.Errorf("miner runtime requires at least one miner identity")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("miner runtime requires a work source")
	}
	if cfg.Extender == nil {
		return nil, fmt.Errorf("miner runtime requires a chain extender")
	}
	if !cfg.Params.Simulated() && cfg.Cuts == nil {
		return nil, fmt.Errorf("miner runtime requires a cut source in proof-of-work mode")
	}

	return &Runtime{
		cfg:    *cfg,
		logger: cfg.Logger.WithComponent("miner"),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run drives block production until the context is cancelled. It satisfies
// the coordinator task signature, so the runtime joins the coordination
// group's lifecycle.
func (r *Runtime) Run(ctx context.Context) error {
	if r.cfg.Params.Simulated() {
		r.logger.Info("starting simulated miner",
			"chains", r.cfg.Params.ChainCount,
			"miners", len(r.cfg.Miners),
			"block_interval", r.cfg.Params.BlockInterval)
		return r.runSimulated(ctx)
	}

	r.logger.Info("starting proof-of-work miner",
		"chains", r.cfg.Params.ChainCount,
		"miners", len(r.cfg.Miners))
	return r.runPoW(ctx)
}

// pickPair selects a random miner identity and chain for the next attempt.
func (r *Runtime) pickPair() (chain.Miner, chain.ChainID) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	miner := r.cfg.Miners[r.rng.Intn(len(r.cfg.Miners))]
	id := chain.ChainID(r.rng.Intn(int(r.cfg.Params.ChainCount)))
	return miner, id
}

// randNonce returns a random nonce starting point.
func (r *Runtime) randNonce() uint64 {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return r.rng.Uint64()
}

// jitteredInterval randomizes the block interval between half and one and a
// half times the target.
func (r *Runtime) jitteredInterval() time.Duration {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	base := r.cfg.Params.BlockInterval
	return base/2 + time.Duration(r.rng.Int63n(int64(base)))
}

// settle submits the solved work and extends the chain. Extension conflicts
// and unknown work are expected contention and only logged.
func (r *Runtime) settle(ctx context.Context, workHash chainhash.Hash, solved chain.BlockHeader) error {
	entry, err := r.cfg.Source.SubmitSolution(ctx, workHash)
	if err != nil {
		if errors.Is(err, coordinator.ErrWorkNotFound) {
			r.logger.Debug("solved work no longer outstanding", "work_hash", workHash.String())
			return nil
		}
		return err
	}

	if err := r.cfg.Extender.ExtendChain(ctx, solved, entry.Payload); err != nil {
		if errors.Is(err, coordinator.ErrExtensionConflict) {
			r.logger.Debug("chain advanced past solved work",
				"chain_id", uint32(solved.Chain), "block_height", solved.Height)
			return nil
		}
		return err
	}

	r.logger.LogExtension(uint32(solved.Chain), solved.Height,
		solved.BlockHash().String(), "accepted")
	return nil
}
