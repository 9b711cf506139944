package cellindex

import (
	"testing"

	"github.com/nervosnetwork/ckb-sub009/store/memstore"
	"github.com/nervosnetwork/ckb-sub009/types"
)

func TestAttachMarkConsumedDetach(t *testing.T) {
	db := memstore.New()
	var txHash types.Hash32
	txHash[0] = 1

	if err := AttachTransaction(db, txHash, 10, 0, false, 2); err != nil {
		t.Fatalf("attach: %v", err)
	}

	live, err := IsLive(db, types.OutPoint{TxHash: txHash, Index: 0})
	if err != nil || !live {
		t.Fatalf("expected output 0 live, err=%v", err)
	}

	if err := MarkConsumed(db, types.OutPoint{TxHash: txHash, Index: 0}); err != nil {
		t.Fatalf("mark consumed: %v", err)
	}
	live, err = IsLive(db, types.OutPoint{TxHash: txHash, Index: 0})
	if err != nil || live {
		t.Fatalf("expected output 0 dead, err=%v", err)
	}

	// Meta should still exist: output 1 is still live.
	meta, err := GetMeta(db, txHash)
	if err != nil || meta == nil {
		t.Fatalf("expected meta to survive partial spend, err=%v", err)
	}

	if err := MarkConsumed(db, types.OutPoint{TxHash: txHash, Index: 1}); err != nil {
		t.Fatalf("mark consumed 2: %v", err)
	}
	meta, err = GetMeta(db, txHash)
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected meta pruned once fully dead")
	}

	// Double-spend must fail.
	if err := MarkConsumed(db, types.OutPoint{TxHash: txHash, Index: 0}); err != ErrUnknownTransaction {
		t.Fatalf("expected ErrUnknownTransaction for pruned tx, got %v", err)
	}

	// Detach: rebuild the meta (as the chain engine would, from history)
	// and unmark the second output consumed.
	rebuild := func() (*types.TransactionMeta, error) {
		m := types.NewTransactionMeta(10, 0, false, 2)
		m.MarkDead(0)
		m.MarkDead(1)
		return m, nil
	}
	if err := UnmarkConsumed(db, types.OutPoint{TxHash: txHash, Index: 1}, rebuild); err != nil {
		t.Fatalf("unmark consumed: %v", err)
	}
	live, err = IsLive(db, types.OutPoint{TxHash: txHash, Index: 1})
	if err != nil || !live {
		t.Fatalf("expected output 1 live again after detach, err=%v", err)
	}
	live, err = IsLive(db, types.OutPoint{TxHash: txHash, Index: 0})
	if err != nil || live {
		t.Fatalf("expected output 0 still dead after detach, err=%v", err)
	}
}

func TestDetachTransactionRemovesMeta(t *testing.T) {
	db := memstore.New()
	var txHash types.Hash32
	txHash[0] = 2

	if err := AttachTransaction(db, txHash, 5, 0, false, 1); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := DetachTransaction(db, txHash); err != nil {
		t.Fatalf("detach: %v", err)
	}
	meta, err := GetMeta(db, txHash)
	if err != nil {
		t.Fatalf("get meta: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected meta removed")
	}
}
