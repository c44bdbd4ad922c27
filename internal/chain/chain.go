// Package chain defines the domain types for the braided multi-chain
// network: chain identifiers, block headers, cuts, miner identities, and
// candidate payloads produced by the transaction-execution service.
package chain

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ChainID identifies one of the fixed set of parallel chains in the current
// network configuration.
type ChainID uint32

// Miner identifies a party eligible to receive mining work along with its
// payout configuration. It is comparable and used as a map key.
type Miner struct {
	Account       string
	PayoutAddress string
}

// Transaction is a single executed transaction inside a candidate payload.
type Transaction struct {
	Hash       chainhash.Hash
	ResultHash chainhash.Hash
}

// CandidatePayload is the output of applying a transaction-execution pass to
// a chain's current tip on behalf of one miner. It is immutable once created.
type CandidatePayload struct {
	Chain        ChainID
	Miner        Miner
	PayloadHash  chainhash.Hash
	Transactions []Transaction
	ComputedAt   time.Time
}

// TxCount returns the number of executed transactions in the payload.
func (p *CandidatePayload) TxCount() int {
	if p == nil {
		return 0
	}
	return len(p.Transactions)
}
