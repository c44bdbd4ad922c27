package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/braidnet/braidd/internal/chain"
	"github.com/braidnet/braidd/pkg/log"
)

// fakeCutSource serves a mutable cut frontier and delivers advances pushed
// through the advance method.
type fakeCutSource struct {
	mu      sync.Mutex
	current chain.Cut
	ch      chan chain.Cut
}

func newFakeCutSource(initial chain.Cut) *fakeCutSource {
	return &fakeCutSource{current: initial.Clone(), ch: make(chan chain.Cut, 8)}
}

func (f *fakeCutSource) CurrentCut(ctx context.Context) (chain.Cut, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Clone(), nil
}

func (f *fakeCutSource) AwaitNextAdvance(ctx context.Context, baseline chain.Cut) (chain.Cut, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case next := <-f.ch:
		f.mu.Lock()
		f.current = next.Clone()
		f.mu.Unlock()
		return next, nil
	}
}

func (f *fakeCutSource) advance(next chain.Cut) {
	f.ch <- next.Clone()
}

// fakeBuilder fabricates deterministic payloads and counts builds per miner
// and chain.
type fakeBuilder struct {
	mu      sync.Mutex
	builds  map[string]int
	failFor map[chain.ChainID]error
	txCount int
}

func newFakeBuilder(txCount int) *fakeBuilder {
	return &fakeBuilder{
		builds:  make(map[string]int),
		failFor: make(map[chain.ChainID]error),
		txCount: txCount,
	}
}

func buildKey(account string, id chain.ChainID) string {
	return fmt.Sprintf("%s/%d", account, id)
}

func (f *fakeBuilder) BuildPayload(ctx context.Context, miner chain.Miner, parent chain.BlockHeader, creationTime time.Time) (*chain.CandidatePayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failFor[parent.Chain]; err != nil {
		return nil, err
	}
	f.builds[buildKey(miner.Account, parent.Chain)]++

	var payloadHash chainhash.Hash
	payloadHash[0] = byte(parent.Chain)
	payloadHash[1] = byte(parent.Height)
	copy(payloadHash[8:], miner.Account)

	return &chain.CandidatePayload{
		Chain:        parent.Chain,
		Miner:        miner,
		PayloadHash:  payloadHash,
		Transactions: make([]chain.Transaction, f.txCount),
		ComputedAt:   creationTime,
	}, nil
}

func (f *fakeBuilder) buildCount(account string, id chain.ChainID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds[buildKey(account, id)]
}

func testCut(chains int) chain.Cut {
	cut := make(chain.Cut, chains)
	for i := 0; i < chains; i++ {
		var parentHash, payloadHash chainhash.Hash
		parentHash[0] = byte(i)
		payloadHash[0] = byte(i)
		payloadHash[1] = 0xee

		cut[chain.ChainID(i)] = chain.BlockHeader{
			Chain:        chain.ChainID(i),
			Height:       1,
			ParentHash:   parentHash,
			PayloadHash:  payloadHash,
			Bits:         0x207fffff,
			CreationTime: time.Unix(1700000000, 0).UTC(),
		}
	}
	return cut
}

func extendCut(base chain.Cut, id chain.ChainID) chain.Cut {
	next := base.Clone()
	tip := next[id]
	var payloadHash chainhash.Hash
	payloadHash[0] = byte(id)
	payloadHash[1] = byte(tip.Height + 1)

	next[id] = chain.BlockHeader{
		Chain:        id,
		Height:       tip.Height + 1,
		ParentHash:   tip.BlockHash(),
		PayloadHash:  payloadHash,
		Bits:         tip.Bits,
		CreationTime: tip.CreationTime.Add(time.Second),
	}
	return next
}

func testLogger() *log.Logger {
	return log.New("braidd-test", "dev", "error", "text")
}

// startCoordinator creates a coordinator with the given collaborators, runs
// its background tasks, and blocks until the payload cache is primed for
// every miner and chain.
func startCoordinator(t *testing.T, src *fakeCutSource, builder *fakeBuilder, miners []chain.Miner, workCap int) (*Coordinator, context.CancelFunc) {
	t.Helper()

	coord, err := New(&Config{
		Logger:  testLogger(),
		Cuts:    src,
		Builder: builder,
		Miners:  miners,
		WorkCap: workCap,
	})
	if err != nil {
		t.Fatalf("New: unexpected error %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("Run: unexpected error %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Run did not stop after cancellation")
		}
	})

	cut, _ := src.CurrentCut(ctx)
	for _, miner := range miners {
		for _, id := range cut.Chains() {
			if builder.failFor[id] != nil {
				continue
			}
			waitPrimed(t, coord, miner, id)
		}
	}
	return coord, cancel
}

func waitPrimed(t *testing.T, coord *Coordinator, miner chain.Miner, id chain.ChainID) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := coord.cache.lookup(miner, id); ok {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("cache never primed for miner %q chain %d", miner.Account, id)
}

func TestIssueWorkBeforePrimeFailsWithNoPayload(t *testing.T) {
	miner := chain.Miner{Account: "alice", PayoutAddress: "alice-addr"}
	coord, err := New(&Config{
		Logger:  testLogger(),
		Cuts:    newFakeCutSource(testCut(2)),
		Builder: newFakeBuilder(1),
		Miners:  []chain.Miner{miner},
	})
	if err != nil {
		t.Fatalf("New: unexpected error %v", err)
	}

	// Background tasks never started, so the cache is empty.
	_, err = coord.IssueWork(context.Background(), miner, 0)
	if !errors.Is(err, ErrNoPayload) {
		t.Fatalf("IssueWork: got %v, want ErrNoPayload", err)
	}
}

func TestIssueAndSubmitRoundTrip(t *testing.T) {
	miner := chain.Miner{Account: "alice", PayoutAddress: "alice-addr"}
	src := newFakeCutSource(testCut(2))
	builder := newFakeBuilder(3)

	coord, _ := startCoordinator(t, src, builder, []chain.Miner{miner}, 10)

	entry, err := coord.IssueWork(context.Background(), miner, 1)
	if err != nil {
		t.Fatalf("IssueWork: unexpected error %v", err)
	}
	if entry.Header.Chain != 1 {
		t.Fatalf("issued chain = %d, want 1", entry.Header.Chain)
	}
	if entry.Header.Height != 2 {
		t.Fatalf("issued height = %d, want 2", entry.Header.Height)
	}
	if entry.Header.Nonce != 0 {
		t.Fatalf("issued nonce = %d, want 0", entry.Header.Nonce)
	}
	if got := entry.Header.WorkHash(); got != entry.WorkHash {
		t.Fatalf("work hash mismatch: entry %v, header %v", entry.WorkHash, got)
	}

	solved, err := coord.SubmitSolution(context.Background(), entry.WorkHash)
	if err != nil {
		t.Fatalf("SubmitSolution: unexpected error %v", err)
	}
	if solved.Miner != miner {
		t.Fatalf("solved miner = %+v, want %+v", solved.Miner, miner)
	}
	if solved.Payload.PayloadHash != entry.Payload.PayloadHash {
		t.Fatal("solved payload does not match issued payload")
	}

	// A second submission for the same hash must fail.
	if _, err := coord.SubmitSolution(context.Background(), entry.WorkHash); !errors.Is(err, ErrWorkNotFound) {
		t.Fatalf("resubmission: got %v, want ErrWorkNotFound", err)
	}
}

func TestSubmitUnknownHash(t *testing.T) {
	miner := chain.Miner{Account: "alice"}
	src := newFakeCutSource(testCut(1))
	coord, _ := startCoordinator(t, src, newFakeBuilder(1), []chain.Miner{miner}, 10)

	var forged chainhash.Hash
	forged[31] = 0x7f
	if _, err := coord.SubmitSolution(context.Background(), forged); !errors.Is(err, ErrWorkNotFound) {
		t.Fatalf("SubmitSolution: got %v, want ErrWorkNotFound", err)
	}
}

func TestCapacityLimitAndRecovery(t *testing.T) {
	alice := chain.Miner{Account: "alice", PayoutAddress: "a-addr"}
	bob := chain.Miner{Account: "bob", PayoutAddress: "b-addr"}
	carol := chain.Miner{Account: "carol", PayoutAddress: "c-addr"}
	miners := []chain.Miner{alice, bob, carol}

	src := newFakeCutSource(testCut(1))
	coord, _ := startCoordinator(t, src, newFakeBuilder(2), miners, 2)

	first, err := coord.IssueWork(context.Background(), alice, 0)
	if err != nil {
		t.Fatalf("IssueWork alice: unexpected error %v", err)
	}
	if _, err := coord.IssueWork(context.Background(), bob, 0); err != nil {
		t.Fatalf("IssueWork bob: unexpected error %v", err)
	}

	// The third request exceeds the capacity of two.
	if _, err := coord.IssueWork(context.Background(), carol, 0); !errors.Is(err, ErrCapacity) {
		t.Fatalf("IssueWork carol: got %v, want ErrCapacity", err)
	}

	stats := coord.SnapshotStats()
	if stats.ActiveWork != 2 {
		t.Fatalf("ActiveWork = %d, want 2", stats.ActiveWork)
	}
	if stats.RejectedSinceLastTick != 1 {
		t.Fatalf("RejectedSinceLastTick = %d, want 1", stats.RejectedSinceLastTick)
	}

	limit, outstanding := coord.Capacity()
	if limit != 2 || outstanding != 2 {
		t.Fatalf("Capacity = (%d, %d), want (2, 2)", limit, outstanding)
	}

	// Solving frees a slot and the rejected request now succeeds.
	if _, err := coord.SubmitSolution(context.Background(), first.WorkHash); err != nil {
		t.Fatalf("SubmitSolution: unexpected error %v", err)
	}
	if _, err := coord.IssueWork(context.Background(), carol, 0); err != nil {
		t.Fatalf("IssueWork carol after solve: unexpected error %v", err)
	}
}

func TestIssueWorkIdempotentWithinTimestamp(t *testing.T) {
	miner := chain.Miner{Account: "alice"}
	src := newFakeCutSource(testCut(1))
	coord, _ := startCoordinator(t, src, newFakeBuilder(1), []chain.Miner{miner}, 10)

	// Force byte-identical work by inserting the same header twice. The
	// ledger must hand back the canonical entry instead of faulting.
	first, err := coord.IssueWork(context.Background(), miner, 0)
	if err != nil {
		t.Fatalf("IssueWork: unexpected error %v", err)
	}
	again, err := coord.ledger.insert(*first)
	if err != nil {
		t.Fatalf("reinsert: unexpected error %v", err)
	}
	if again.WorkHash != first.WorkHash {
		t.Fatal("reinsert returned a different entry")
	}

	_, outstanding := coord.Capacity()
	if outstanding != 1 {
		t.Fatalf("outstanding = %d, want 1", outstanding)
	}
}

func TestRefresherOnlyRebuildsAdvancedChains(t *testing.T) {
	alice := chain.Miner{Account: "alice"}
	bob := chain.Miner{Account: "bob"}
	miners := []chain.Miner{alice, bob}

	base := testCut(3)
	src := newFakeCutSource(base)
	builder := newFakeBuilder(1)
	coord, _ := startCoordinator(t, src, builder, miners, 10)

	before := coord.cache.snapshot()

	// Advance only chain 1.
	src.advance(extendCut(base, 1))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if entry, ok := coord.cache.lookup(alice, 1); ok && entry.Parent.Height == 2 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	for _, miner := range miners {
		refreshed, ok := coord.cache.lookup(miner, 1)
		if !ok || refreshed.Parent.Height != 2 {
			t.Fatalf("chain 1 entry for %q not refreshed", miner.Account)
		}
		for _, id := range []chain.ChainID{0, 2} {
			entry, ok := coord.cache.lookup(miner, id)
			if !ok {
				t.Fatalf("chain %d entry for %q missing", id, miner.Account)
			}
			if entry.Payload.PayloadHash != before[miner][id].Payload.PayloadHash {
				t.Fatalf("chain %d entry for %q was rebuilt without an advance", id, miner.Account)
			}
			if got := builder.buildCount(miner.Account, id); got != 1 {
				t.Fatalf("chain %d build count for %q = %d, want 1", id, miner.Account, got)
			}
		}
		if got := builder.buildCount(miner.Account, 1); got != 2 {
			t.Fatalf("chain 1 build count for %q = %d, want 2", miner.Account, got)
		}
	}
}

func TestRefresherSkipsFailedBuilds(t *testing.T) {
	miner := chain.Miner{Account: "alice"}
	src := newFakeCutSource(testCut(3))
	builder := newFakeBuilder(1)
	builder.failFor[2] = errors.New("execution unavailable")

	coord, _ := startCoordinator(t, src, builder, []chain.Miner{miner}, 10)

	// Chains 0 and 1 serve work; chain 2 stays unprimed.
	if _, err := coord.IssueWork(context.Background(), miner, 0); err != nil {
		t.Fatalf("IssueWork chain 0: unexpected error %v", err)
	}
	if _, err := coord.IssueWork(context.Background(), miner, 2); !errors.Is(err, ErrNoPayload) {
		t.Fatalf("IssueWork chain 2: got %v, want ErrNoPayload", err)
	}
}

func TestPrunerEvictsStaleWork(t *testing.T) {
	miner := chain.Miner{Account: "alice"}
	src := newFakeCutSource(testCut(1))

	coord, err := New(&Config{
		Logger:          testLogger(),
		Cuts:            src,
		Builder:         newFakeBuilder(1),
		Miners:          []chain.Miner{miner},
		WorkCap:         10,
		StalenessWindow: 25 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: unexpected error %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	waitPrimed(t, coord, miner, 0)
	if _, err := coord.IssueWork(ctx, miner, 0); err != nil {
		t.Fatalf("IssueWork: unexpected error %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if coord.SnapshotStats().ActiveWork == 0 {
			cancel()
			<-done
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("stale work was never pruned")
}

func TestNewValidatesConfig(t *testing.T) {
	miner := chain.Miner{Account: "alice"}
	src := newFakeCutSource(testCut(1))
	builder := newFakeBuilder(1)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing logger", Config{Cuts: src, Builder: builder, Miners: []chain.Miner{miner}}},
		{"missing cut source", Config{Logger: testLogger(), Builder: builder, Miners: []chain.Miner{miner}}},
		{"missing builder", Config{Logger: testLogger(), Cuts: src, Miners: []chain.Miner{miner}}},
		{"no miners", Config{Logger: testLogger(), Cuts: src, Builder: builder}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(&test.cfg); err == nil {
				t.Fatal("New accepted an invalid config")
			}
		})
	}
}

func TestDefaultsApplied(t *testing.T) {
	miner := chain.Miner{Account: "alice"}
	coord, err := New(&Config{
		Logger:  testLogger(),
		Cuts:    newFakeCutSource(testCut(1)),
		Builder: newFakeBuilder(1),
		Miners:  []chain.Miner{miner},
	})
	if err != nil {
		t.Fatalf("New: unexpected error %v", err)
	}

	limit, _ := coord.Capacity()
	if limit != defaultWorkCap {
		t.Fatalf("default capacity = %d, want %d", limit, defaultWorkCap)
	}
	if coord.staleness != defaultStalenessWindow {
		t.Fatalf("default staleness = %v, want %v", coord.staleness, defaultStalenessWindow)
	}
}
