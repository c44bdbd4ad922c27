package coordinator

import (
	"context"
	"time"

	"github.com/braidnet/braidd/internal/chain"
)

// CutSource provides read access to the chain-state engine's view of the
// multi-chain frontier.
type CutSource interface {
	// CurrentCut returns a snapshot of the current cut.
	CurrentCut(ctx context.Context) (chain.Cut, error)

	// AwaitNextAdvance blocks until a cut strictly advancing on at least one
	// chain relative to the baseline is observed and returns it.
	AwaitNextAdvance(ctx context.Context, baseline chain.Cut) (chain.Cut, error)
}

// PayloadBuilder turns a chain tip into an executable candidate payload on
// behalf of one miner. Implemented by the external transaction-execution
// service.
type PayloadBuilder interface {
	BuildPayload(ctx context.Context, miner chain.Miner, parent chain.BlockHeader, creationTime time.Time) (*chain.CandidatePayload, error)
}
