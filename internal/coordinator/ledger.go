package coordinator

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/braidnet/braidd/internal/chain"
)

// WorkEntry is one unit of issued-but-unsolved work.
type WorkEntry struct {
	// WorkHash is the content hash of the work header, excluding the nonce.
	WorkHash chainhash.Hash

	// Miner identifies the party the work was issued to.
	Miner chain.Miner

	// Header is the block-candidate header handed to the miner for solving.
	Header chain.BlockHeader

	// Payload is the candidate payload the header commits to.
	Payload *chain.CandidatePayload

	// ParentCreation is the creation time of the parent block at issuance.
	ParentCreation time.Time

	// IssuedAt stamps the entry for staleness pruning.
	IssuedAt time.Time
}

// workLedger tracks outstanding issued work keyed by work hash. The
// outstanding-work capacity check and insert happen as one indivisible step,
// and the rejection counter shares the ledger mutex so that a rejection
// occurring concurrently with a counter reset lands in exactly one reporting
// window.
type workLedger struct {
	mu       sync.Mutex
	limit    int
	entries  map[chainhash.Hash]WorkEntry
	rejected uint64
}

func newWorkLedger(limit int) *workLedger {
	return &workLedger{
		limit:   limit,
		entries: make(map[chainhash.Hash]WorkEntry),
	}
}

// insert adds an entry unless the ledger is at capacity, returning the
// canonical ledgered entry. Re-issuing byte-identical work is idempotent and
// returns the existing entry; a hash held by a distinct header is a fatal
// integrity violation.
func (l *workLedger) insert(entry WorkEntry) (WorkEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.entries[entry.WorkHash]; ok {
		if bytes.Equal(prev.Header.Encode(), entry.Header.Encode()) {
			return prev, nil
		}
		return WorkEntry{}, coordError(ErrLedgerIntegrity,
			fmt.Sprintf("work hash %s already ledgered for a distinct header", entry.WorkHash))
	}

	if len(l.entries) >= l.limit {
		l.rejected++
		return WorkEntry{}, coordError(ErrCapacity,
			fmt.Sprintf("mining ledger at capacity with %d outstanding entries", l.limit))
	}

	l.entries[entry.WorkHash] = entry
	return entry, nil
}

// takeSolved atomically removes and returns the entry for the given hash.
func (l *workLedger) takeSolved(hash chainhash.Hash) (WorkEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[hash]
	if ok {
		delete(l.entries, hash)
	}
	return entry, ok
}

// rollStats prunes every entry issued at or before the cutoff and reads and
// resets the rejection counter, all in one critical section so the reported
// window is consistent with concurrent issuances.
func (l *workLedger) rollStats(cutoff time.Time) (pruned, active int, rejected uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for hash, entry := range l.entries {
		if !entry.IssuedAt.After(cutoff) {
			delete(l.entries, hash)
			pruned++
		}
	}

	rejected = l.rejected
	l.rejected = 0
	return pruned, len(l.entries), rejected
}

// stats reads the active entry count and the rejections accumulated since
// the last rollStats, without resetting.
func (l *workLedger) stats() (active int, rejected uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries), l.rejected
}

// capacity returns the configured limit and the current outstanding count.
func (l *workLedger) capacity() (limit, outstanding int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit, len(l.entries)
}
