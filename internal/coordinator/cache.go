package coordinator

import (
	"sync"
	"time"

	"github.com/braidnet/braidd/internal/chain"
)

// CachedEntry pairs a precomputed candidate payload with the tip it was
// computed against. Entries are value types and immutable once read.
type CachedEntry struct {
	// Payload is the ready-to-issue candidate payload.
	Payload *chain.CandidatePayload

	// Parent is the tip header the payload was computed against.
	Parent chain.BlockHeader
}

// ParentCreation returns the creation time of the parent block.
func (e CachedEntry) ParentCreation() time.Time {
	return e.Parent.CreationTime
}

// payloadCache maps each registered miner and chain to its most recently
// computed candidate payload. It is mutated exclusively by the cache
// refresher via mergeFresh, which replaces the contents in a single visible
// update, and read by the coordination facade when assembling new work.
type payloadCache struct {
	mu      sync.RWMutex
	entries map[chain.Miner]map[chain.ChainID]CachedEntry
}

func newPayloadCache() *payloadCache {
	return &payloadCache{
		entries: make(map[chain.Miner]map[chain.ChainID]CachedEntry),
	}
}

// lookup returns the cached entry for a miner and chain.
func (c *payloadCache) lookup(miner chain.Miner, id chain.ChainID) (CachedEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[miner][id]
	return entry, ok
}

// mergeFresh unions freshly computed entries with the existing contents,
// freshly computed entries winning on key collision, and swaps the merged
// result in as one atomic update. Readers never observe a partially merged
// cache.
func (c *payloadCache) mergeFresh(fresh map[chain.Miner]map[chain.ChainID]CachedEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	merged := make(map[chain.Miner]map[chain.ChainID]CachedEntry, len(c.entries))
	for miner, byChain := range c.entries {
		copied := make(map[chain.ChainID]CachedEntry, len(byChain))
		for id, entry := range byChain {
			copied[id] = entry
		}
		merged[miner] = copied
	}
	for miner, byChain := range fresh {
		if merged[miner] == nil {
			merged[miner] = make(map[chain.ChainID]CachedEntry, len(byChain))
		}
		for id, entry := range byChain {
			merged[miner][id] = entry
		}
	}

	c.entries = merged
}

// snapshot returns a copy of the cache contents.
func (c *payloadCache) snapshot() map[chain.Miner]map[chain.ChainID]CachedEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[chain.Miner]map[chain.ChainID]CachedEntry, len(c.entries))
	for miner, byChain := range c.entries {
		copied := make(map[chain.ChainID]CachedEntry, len(byChain))
		for id, entry := range byChain {
			copied[id] = entry
		}
		out[miner] = copied
	}
	return out
}

// txStats returns the total transaction count across all cached payloads and
// the number of distinct miners with at least one cached entry.
func (c *payloadCache) txStats() (totalTx, miners int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, byChain := range c.entries {
		if len(byChain) == 0 {
			continue
		}
		miners++
		for _, entry := range byChain {
			totalTx += entry.Payload.TxCount()
		}
	}
	return totalTx, miners
}
