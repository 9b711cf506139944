package proposaltable

import (
	"testing"

	"github.com/nervosnetwork/ckb-sub009/consensus"
	"github.com/nervosnetwork/ckb-sub009/types"
)

func TestFinalize(t *testing.T) {
	var id types.ProposalShortId
	window := consensus.ProposalWindow{Closest: 2, Farthest: 10}
	table := New(window)

	table.Insert(1, []types.ProposalShortId{id})
	if table.Contains(id) {
		t.Fatalf("id should not be eligible before the window opens")
	}

	for i := types.Number(2); i < 10; i++ {
		removed := table.Finalize(i)
		if len(removed) != 0 {
			t.Fatalf("finalize(%d): expected nothing removed, got %v", i, removed)
		}
		if !table.Contains(id) {
			t.Fatalf("finalize(%d): expected id still eligible", i)
		}
	}

	removed := table.Finalize(11)
	if _, ok := removed[id]; !ok || len(removed) != 1 {
		t.Fatalf("finalize(11): expected id to fall out, got %v", removed)
	}
	if table.Contains(id) {
		t.Fatalf("finalize(11): id should no longer be eligible")
	}

	removed = table.Finalize(12)
	if len(removed) != 0 {
		t.Fatalf("finalize(12): expected nothing further removed, got %v", removed)
	}
	if table.Contains(id) {
		t.Fatalf("finalize(12): id should remain ineligible")
	}
}

func TestInsertRemoveRoundTrip(t *testing.T) {
	table := New(consensus.ProposalWindow{Closest: 2, Farthest: 10})
	var id types.ProposalShortId
	id[0] = 7

	if !table.Insert(5, []types.ProposalShortId{id}) {
		t.Fatalf("expected first insert to succeed")
	}
	if table.Insert(5, []types.ProposalShortId{id}) {
		t.Fatalf("expected duplicate insert at the same number to fail")
	}
	if !table.Remove(5) {
		t.Fatalf("expected remove to report an existing entry")
	}
	if table.Remove(5) {
		t.Fatalf("expected second remove to report nothing removed")
	}
}
