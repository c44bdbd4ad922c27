package execution

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/braidnet/braidd/internal/chain"
)

// SimulatedBuilder fabricates candidate payloads locally for networks that
// run without an execution service. Payloads are derived deterministically
// from the parent tip and miner identity.
type SimulatedBuilder struct {
	txPerPayload int
}

// NewSimulatedBuilder creates a local payload builder producing the given
// number of synthetic transactions per payload.
func NewSimulatedBuilder(txPerPayload int) *SimulatedBuilder {
	if txPerPayload < 0 {
		txPerPayload = 0
	}
	return &SimulatedBuilder{txPerPayload: txPerPayload}
}

// BuildPayload fabricates a payload extending the given parent.
func (b *SimulatedBuilder) BuildPayload(ctx context.Context, miner chain.Miner, parent chain.BlockHeader, creationTime time.Time) (*chain.CandidatePayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seed := make([]byte, 0, 64)
	parentHash := parent.BlockHash()
	seed = append(seed, parentHash[:]...)
	seed = append(seed, miner.Account...)

	txs := make([]chain.Transaction, b.txPerPayload)
	for i := range txs {
		var idx [8]byte
		binary.LittleEndian.PutUint64(idx[:], uint64(i))
		txs[i].Hash = chainhash.DoubleHashH(append(seed, idx[:]...))
		txs[i].ResultHash = chainhash.DoubleHashH(txs[i].Hash[:])
	}

	payloadSeed := append(seed, 0xff)
	return &chain.CandidatePayload{
		Chain:        parent.Chain,
		Miner:        miner,
		PayloadHash:  chainhash.DoubleHashH(payloadSeed),
		Transactions: txs,
		ComputedAt:   creationTime,
	}, nil
}
