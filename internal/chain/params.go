package chain

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Params describes a network version: the fixed chain set and the
// proof-of-work configuration.
type Params struct {
	// Name identifies the network.
	Name string

	// ChainCount is the number of parallel chains. The chain set is fixed
	// per network version as ChainIDs 0..ChainCount-1.
	ChainCount uint32

	// DifficultyWindow is the number of blocks per difficulty-adjustment
	// window. Zero means the network has no real proof-of-work requirement
	// and blocks are produced by the simulated miner.
	DifficultyWindow uint64

	// GenesisBits is the compact difficulty target of genesis blocks.
	GenesisBits uint32

	// BlockInterval is the target time between blocks on a single chain.
	// The simulated miner randomizes its delays around this value.
	BlockInterval time.Duration
}

// MainnetParams is the production network: twenty chains with real
// proof of work.
var MainnetParams = Params{
	Name:             "mainnet",
	ChainCount:       20,
	DifficultyWindow: 120,
	GenesisBits:      0x1d00ffff,
	BlockInterval:    30 * time.Second,
}

// TestnetParams mirrors mainnet with a smaller chain set and an easier
// genesis target.
var TestnetParams = Params{
	Name:             "testnet",
	ChainCount:       10,
	DifficultyWindow: 120,
	GenesisBits:      0x1e00ffff,
	BlockInterval:    30 * time.Second,
}

// SimnetParams is a deterministic test network: no difficulty-adjustment
// window, so the in-process miner runtime runs in simulated mode.
var SimnetParams = Params{
	Name:          "simnet",
	ChainCount:    4,
	GenesisBits:   0x207fffff,
	BlockInterval: 500 * time.Millisecond,
}

// ParamsForNetwork resolves a network name to its parameters.
func ParamsForNetwork(name string) (*Params, error) {
	switch name {
	case "mainnet":
		p := MainnetParams
		return &p, nil
	case "testnet":
		p := TestnetParams
		return &p, nil
	case "simnet":
		p := SimnetParams
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown network %q", name)
	}
}

// ChainIDs returns the network's fixed chain set.
func (p *Params) ChainIDs() []ChainID {
	ids := make([]ChainID, p.ChainCount)
	for i := range ids {
		ids[i] = ChainID(i)
	}
	return ids
}

// Simulated reports whether the network has no difficulty-adjustment window
// and therefore no real proof-of-work requirement.
func (p *Params) Simulated() bool {
	return p.DifficultyWindow == 0
}

// genesisTime is the creation time stamped on every genesis block.
var genesisTime = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

// GenesisCut builds the height-zero cut of the network. Genesis headers are
// derived purely from the network parameters, so every node computes the
// identical frontier.
func (p *Params) GenesisCut() Cut {
	cut := make(Cut, p.ChainCount)
	for _, id := range p.ChainIDs() {
		var payloadHash chainhash.Hash
		copy(payloadHash[:], p.Name)
		payloadHash[len(payloadHash)-4] = byte(id >> 24)
		payloadHash[len(payloadHash)-3] = byte(id >> 16)
		payloadHash[len(payloadHash)-2] = byte(id >> 8)
		payloadHash[len(payloadHash)-1] = byte(id)

		cut[id] = BlockHeader{
			Chain:        id,
			Height:       0,
			PayloadHash:  payloadHash,
			Bits:         p.GenesisBits,
			CreationTime: genesisTime,
		}
	}
	return cut
}
