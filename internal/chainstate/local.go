package chainstate

import (
	"context"
	"fmt"

	"github.com/braidnet/braidd/internal/chain"
	"github.com/braidnet/braidd/internal/coordinator"
	"github.com/braidnet/braidd/pkg/log"
)

// LocalEngine is the chain-state authority on simulated networks, where no
// external engine runs. Extensions validate against the tracker's frontier
// and apply directly to it.
type LocalEngine struct {
	tracker *Tracker
	logger  *log.Logger
}

// NewLocalEngine creates a local engine over the given tracker.
func NewLocalEngine(tracker *Tracker, logger *log.Logger) *LocalEngine {
	return &LocalEngine{
		tracker: tracker,
		logger:  logger.WithComponent("localengine"),
	}
}

// GetCut returns the tracker's current frontier.
func (e *LocalEngine) GetCut(ctx context.Context) (chain.Cut, error) {
	return e.tracker.CurrentCut(ctx)
}

// ExtendChain appends a solved header to its chain. The header must build on
// the current tip; a header whose parent was already extended past fails
// with ErrExtensionConflict.
func (e *LocalEngine) ExtendChain(ctx context.Context, header chain.BlockHeader, payload *chain.CandidatePayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cut, err := e.tracker.CurrentCut(ctx)
	if err != nil {
		return err
	}

	tip, ok := cut.Tip(header.Chain)
	if !ok {
		return fmt.Errorf("unknown chain %d", header.Chain)
	}
	if header.Height != tip.Height+1 || header.ParentHash != tip.BlockHash() {
		return coordinator.Error{
			Err: coordinator.ErrExtensionConflict,
			Description: fmt.Sprintf("chain %d already advanced past height %d",
				header.Chain, header.Height),
		}
	}

	if !e.tracker.ApplyHeader(header) {
		return coordinator.Error{
			Err: coordinator.ErrExtensionConflict,
			Description: fmt.Sprintf("chain %d advanced concurrently at height %d",
				header.Chain, header.Height),
		}
	}

	e.logger.LogExtension(uint32(header.Chain), header.Height,
		header.BlockHash().String(), "accepted")
	return nil
}
