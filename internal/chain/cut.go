package chain

import "sort"

// Cut maps each chain to its current tip block header. It is the node's view
// of global chain-frontier progress, owned by the chain-state engine; the
// coordination core only reads snapshots and observes transitions.
type Cut map[ChainID]BlockHeader

// Clone returns an independent copy of the cut.
func (c Cut) Clone() Cut {
	out := make(Cut, len(c))
	for id, tip := range c {
		out[id] = tip
	}
	return out
}

// Tip returns the tip header for a chain.
func (c Cut) Tip(id ChainID) (BlockHeader, bool) {
	tip, ok := c[id]
	return tip, ok
}

// Height returns the tip height for a chain, or zero when the chain is not
// part of the cut.
func (c Cut) Height(id ChainID) uint64 {
	return c[id].Height
}

// AdvancedOver returns the chains whose tip height in c is strictly greater
// than in the baseline, in ascending chain order. Chains absent from the
// baseline count as advanced.
func (c Cut) AdvancedOver(base Cut) []ChainID {
	var advanced []ChainID
	for id, tip := range c {
		baseTip, ok := base[id]
		if !ok || tip.Height > baseTip.Height {
			advanced = append(advanced, id)
		}
	}
	sort.Slice(advanced, func(i, j int) bool { return advanced[i] < advanced[j] })
	return advanced
}

// Chains returns the chain identifiers present in the cut in ascending order.
func (c Cut) Chains() []ChainID {
	ids := make([]ChainID, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
