package chainstate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/braidnet/braidd/internal/chain"
	"github.com/braidnet/braidd/internal/coordinator"
	"github.com/braidnet/braidd/pkg/log"
)

func testLogger() *log.Logger {
	return log.New("braidd-test", "dev", "error", "text")
}

func testCut(chains int) chain.Cut {
	cut := make(chain.Cut, chains)
	for i := 0; i < chains; i++ {
		var payloadHash chainhash.Hash
		payloadHash[0] = byte(i)

		cut[chain.ChainID(i)] = chain.BlockHeader{
			Chain:        chain.ChainID(i),
			Height:       1,
			PayloadHash:  payloadHash,
			Bits:         0x207fffff,
			CreationTime: time.Unix(1700000000, 0).UTC(),
		}
	}
	return cut
}

func extendTip(tip chain.BlockHeader) chain.BlockHeader {
	var payloadHash chainhash.Hash
	payloadHash[0] = byte(tip.Chain)
	payloadHash[1] = byte(tip.Height + 1)

	return chain.BlockHeader{
		Chain:        tip.Chain,
		Height:       tip.Height + 1,
		ParentHash:   tip.BlockHash(),
		PayloadHash:  payloadHash,
		Bits:         tip.Bits,
		CreationTime: tip.CreationTime.Add(time.Second),
	}
}

func TestTrackerCurrentCutIsSnapshot(t *testing.T) {
	initial := testCut(2)
	tracker := NewTracker(initial, testLogger())

	cut, err := tracker.CurrentCut(context.Background())
	if err != nil {
		t.Fatalf("CurrentCut: unexpected error %v", err)
	}

	// Mutating the returned cut must not affect the tracker.
	delete(cut, 0)

	again, err := tracker.CurrentCut(context.Background())
	if err != nil {
		t.Fatalf("CurrentCut: unexpected error %v", err)
	}
	if _, ok := again.Tip(0); !ok {
		t.Fatal("mutating a returned cut affected the tracker")
	}
}

func TestTrackerApplyAdvancesAndWakesWaiter(t *testing.T) {
	initial := testCut(2)
	tracker := NewTracker(initial, testLogger())

	type result struct {
		cut chain.Cut
		err error
	}
	done := make(chan result, 1)
	go func() {
		cut, err := tracker.AwaitNextAdvance(context.Background(), initial)
		done <- result{cut, err}
	}()

	// A stale apply must not wake the waiter.
	if advanced := tracker.Apply(initial); len(advanced) != 0 {
		t.Fatalf("stale apply advanced %v chains", advanced)
	}
	select {
	case <-done:
		t.Fatal("waiter woke without an advance")
	case <-time.After(20 * time.Millisecond):
	}

	next := initial.Clone()
	next[1] = extendTip(initial[1])
	if advanced := tracker.Apply(next); len(advanced) != 1 || advanced[0] != 1 {
		t.Fatalf("Apply advanced %v, want [1]", advanced)
	}

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("AwaitNextAdvance: unexpected error %v", res.err)
		}
		if res.cut.Height(1) != 2 {
			t.Fatalf("awaited cut height = %d, want 2", res.cut.Height(1))
		}
		if res.cut.Height(0) != 1 {
			t.Fatalf("chain 0 height = %d, want 1", res.cut.Height(0))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never woke after an advance")
	}
}

func TestTrackerAwaitReturnsImmediatelyOnOldBaseline(t *testing.T) {
	initial := testCut(1)
	tracker := NewTracker(initial, testLogger())

	next := initial.Clone()
	next[0] = extendTip(initial[0])
	tracker.Apply(next)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	cut, err := tracker.AwaitNextAdvance(ctx, initial)
	if err != nil {
		t.Fatalf("AwaitNextAdvance: unexpected error %v", err)
	}
	if cut.Height(0) != 2 {
		t.Fatalf("cut height = %d, want 2", cut.Height(0))
	}
}

func TestTrackerAwaitHonorsCancellation(t *testing.T) {
	initial := testCut(1)
	tracker := NewTracker(initial, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := tracker.AwaitNextAdvance(ctx, initial)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("AwaitNextAdvance: got %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AwaitNextAdvance did not observe cancellation")
	}
}

func TestTrackerApplyKeepsHigherTipPerChain(t *testing.T) {
	initial := testCut(2)
	tracker := NewTracker(initial, testLogger())

	// Advance chain 0 twice locally.
	second := extendTip(initial[0])
	third := extendTip(second)
	if !tracker.ApplyHeader(second) || !tracker.ApplyHeader(third) {
		t.Fatal("ApplyHeader rejected a valid advance")
	}

	// An engine cut carrying an older chain-0 tip but a newer chain-1 tip
	// must only move chain 1.
	engineCut := initial.Clone()
	engineCut[0] = second
	engineCut[1] = extendTip(initial[1])

	advanced := tracker.Apply(engineCut)
	if len(advanced) != 1 || advanced[0] != 1 {
		t.Fatalf("Apply advanced %v, want [1]", advanced)
	}

	cut, _ := tracker.CurrentCut(context.Background())
	if cut.Height(0) != 3 {
		t.Fatalf("chain 0 height = %d, want 3 (must not roll back)", cut.Height(0))
	}
	if cut.Height(1) != 2 {
		t.Fatalf("chain 1 height = %d, want 2", cut.Height(1))
	}
}

func TestLocalEngineExtendChain(t *testing.T) {
	initial := testCut(2)
	tracker := NewTracker(initial, testLogger())
	engine := NewLocalEngine(tracker, testLogger())

	next := extendTip(initial[0])
	if err := engine.ExtendChain(context.Background(), next, &chain.CandidatePayload{}); err != nil {
		t.Fatalf("ExtendChain: unexpected error %v", err)
	}

	cut, _ := engine.GetCut(context.Background())
	if cut.Height(0) != 2 {
		t.Fatalf("chain 0 height = %d, want 2", cut.Height(0))
	}

	// Extending from the stale parent again must conflict.
	stale := extendTip(initial[0])
	stale.PayloadHash[5] = 0xaa
	err := engine.ExtendChain(context.Background(), stale, &chain.CandidatePayload{})
	if !errors.Is(err, coordinator.ErrExtensionConflict) {
		t.Fatalf("stale ExtendChain: got %v, want ErrExtensionConflict", err)
	}
}

func TestCutCodecRoundTrip(t *testing.T) {
	cut := testCut(3)
	data, err := encodeCut(cut)
	if err != nil {
		t.Fatalf("encodeCut: unexpected error %v", err)
	}

	decoded, err := decodeCut(data)
	if err != nil {
		t.Fatalf("decodeCut: unexpected error %v", err)
	}
	if len(decoded) != len(cut) {
		t.Fatalf("decoded %d chains, want %d", len(decoded), len(cut))
	}
	for id, tip := range cut {
		got, ok := decoded.Tip(id)
		if !ok {
			t.Fatalf("chain %d missing after round trip", id)
		}
		if got.BlockHash() != tip.BlockHash() {
			t.Fatalf("chain %d tip mismatch after round trip", id)
		}
	}
}

func TestDecodeCutRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "nope"},
		{"bad hex", `{"tips":["zz"]}`},
		{"short header", `{"tips":["deadbeef"]}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := decodeCut([]byte(test.data)); err == nil {
				t.Fatal("decodeCut accepted a malformed payload")
			}
		})
	}
}

func TestDecodeCutRejectsDuplicateChains(t *testing.T) {
	cut := testCut(1)
	single, err := encodeCut(cut)
	if err != nil {
		t.Fatalf("encodeCut: unexpected error %v", err)
	}

	var payload cutPayload
	if err := json.Unmarshal(single, &payload); err != nil {
		t.Fatalf("unmarshal: unexpected error %v", err)
	}
	payload.Tips = append(payload.Tips, payload.Tips[0])

	doubled, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: unexpected error %v", err)
	}
	if _, err := decodeCut(doubled); err == nil {
		t.Fatal("decodeCut accepted duplicate chains")
	}
}
