package netsync

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nervosnetwork/ckb-sub009/netglue"
	"github.com/nervosnetwork/ckb-sub009/p2pwire"
	"github.com/nervosnetwork/ckb-sub009/types"
)

type sha256Hasher struct{}

func (sha256Hasher) Hash(data []byte) types.Hash32 { return sha256.Sum256(data) }

func childHeader(hasher types.Hasher, parent types.Header, number types.Number) types.Header {
	return types.Header{
		Number:      number,
		ParentHash:  parent.Hash(hasher),
		TimestampMs: parent.TimestampMs + 10_000,
	}
}

func chainOfHeaders(hasher types.Hasher, n int) []types.Header {
	headers := make([]types.Header, 0, n)
	parent := types.Header{}
	for i := 1; i <= n; i++ {
		h := childHeader(hasher, parent, types.Number(i))
		headers = append(headers, h)
		parent = h
	}
	return headers
}

func TestValidateHeaderChainAcceptsLinkedChain(t *testing.T) {
	hasher := sha256Hasher{}
	headers := chainOfHeaders(hasher, 5)
	if err := ValidateHeaderChain(headers, hasher, types.Hash32{}); err != nil {
		t.Fatalf("ValidateHeaderChain: %v", err)
	}
}

func TestValidateHeaderChainRejectsBrokenLink(t *testing.T) {
	hasher := sha256Hasher{}
	headers := chainOfHeaders(hasher, 3)
	headers[1].ParentHash = types.Hash32{0xff}
	if err := ValidateHeaderChain(headers, hasher, types.Hash32{}); err == nil {
		t.Fatal("expected ValidateHeaderChain to reject a broken link")
	}
}

func TestValidateHeaderChainRejectsTooMany(t *testing.T) {
	hasher := sha256Hasher{}
	headers := chainOfHeaders(hasher, MaxHeadersLen+1)
	if err := ValidateHeaderChain(headers, hasher, types.Hash32{}); err != ErrTooManyHeaders {
		t.Fatalf("expected ErrTooManyHeaders, got %v", err)
	}
}

func TestValidateHeaderChainRequiresPriorTipMatch(t *testing.T) {
	hasher := sha256Hasher{}
	headers := chainOfHeaders(hasher, 2)
	if err := ValidateHeaderChain(headers, hasher, types.Hash32{0x01}); err == nil {
		t.Fatal("expected mismatch against a non-zero prior tip to fail")
	}
}

func TestBestHeaderReturnsLast(t *testing.T) {
	hasher := sha256Hasher{}
	headers := chainOfHeaders(hasher, 4)
	best, ok := BestHeader(headers)
	if !ok || best.Number != 4 {
		t.Fatalf("expected header 4, got %+v ok=%v", best, ok)
	}
	if _, ok := BestHeader(nil); ok {
		t.Fatal("expected BestHeader(nil) to report false")
	}
}

func TestNextBlockBatchRespectsWindowAndOrdering(t *testing.T) {
	state := newPeerState(netglue.NewPeerID())
	pending := []BlockRequest{{Number: 1}, {Number: 3}, {Number: 2}}
	batch := NextBlockBatch(state, pending)
	if len(batch) != 3 {
		t.Fatalf("expected all 3 pending requests, got %d", len(batch))
	}
	for i := 0; i < len(batch)-1; i++ {
		if batch[i].Number < batch[i+1].Number {
			t.Fatalf("expected descending order, got %v", batch)
		}
	}
}

func TestNextBlockBatchCapsAtWindow(t *testing.T) {
	state := newPeerState(netglue.NewPeerID())
	for i := 0; i < InitBlocksInTransitPerPeer; i++ {
		state.InFlightBlocks[types.Hash32{byte(i)}] = time.Now()
	}
	pending := []BlockRequest{{Number: 1}}
	if batch := NextBlockBatch(state, pending); batch != nil {
		t.Fatalf("expected nil batch once window is full, got %v", batch)
	}
}

func TestValidateGetBlocksRejectsGenesis(t *testing.T) {
	genesis := types.Hash32{0x01}
	status := ValidateGetBlocks([]types.Hash32{genesis}, genesis)
	if status != p2pwire.StatusRequestedGenesis {
		t.Fatalf("expected StatusRequestedGenesis, got %v", status)
	}
}

func TestValidateGetBlocksRejectsDuplicates(t *testing.T) {
	genesis := types.Hash32{}
	hash := types.Hash32{0x02}
	status := ValidateGetBlocks([]types.Hash32{hash, hash}, genesis)
	if status != p2pwire.StatusDuplicateRequest {
		t.Fatalf("expected StatusDuplicateRequest, got %v", status)
	}
}

func TestValidateGetBlocksRejectsTooMany(t *testing.T) {
	genesis := types.Hash32{}
	hashes := make([]types.Hash32, MaxHeadersLen+1)
	for i := range hashes {
		hashes[i][0] = byte(i)
	}
	if status := ValidateGetBlocks(hashes, genesis); status != p2pwire.StatusTooManyHashes {
		t.Fatalf("expected StatusTooManyHashes, got %v", status)
	}
}

func TestValidateGetBlocksAcceptsWellFormed(t *testing.T) {
	genesis := types.Hash32{}
	hashes := []types.Hash32{{0x01}, {0x02}}
	if status := ValidateGetBlocks(hashes, genesis); status != p2pwire.StatusOK {
		t.Fatalf("expected StatusOK, got %v", status)
	}
}

func TestRegistryRecordAndConsumePendingHeaders(t *testing.T) {
	reg := NewRegistry()
	id := netglue.NewPeerID()
	reg.Add(id)

	hasher := sha256Hasher{}
	headers := chainOfHeaders(hasher, 3)
	reg.RecordHeaders(id, headers, hasher)

	pending := reg.PendingBlocks(id, 1)
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending blocks, got %d", len(pending))
	}
	if pending[0].Number != 1 || pending[2].Number != 3 {
		t.Fatalf("expected ascending order, got %v", pending)
	}

	reg.ConsumePendingHeader(id, 2)
	pending = reg.PendingBlocks(id, 1)
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending blocks after consuming one, got %d", len(pending))
	}
	for _, p := range pending {
		if p.Number == 2 {
			t.Fatal("expected header 2 to have been consumed")
		}
	}
}

func TestRegistryPendingBlocksUnknownPeer(t *testing.T) {
	reg := NewRegistry()
	if pending := reg.PendingBlocks(netglue.NewPeerID(), 0); pending != nil {
		t.Fatalf("expected nil for unknown peer, got %v", pending)
	}
}

func TestRegistryProtectedPeersAreOldest(t *testing.T) {
	reg := NewRegistry()
	var ids []netglue.PeerID
	for i := 0; i < ProtectedPeerCount+2; i++ {
		id := netglue.NewPeerID()
		ids = append(ids, id)
		reg.Add(id)
		state, _ := reg.Get(id)
		state.SyncStartedAt = time.Now().Add(time.Duration(-i) * time.Minute)
	}
	reg.mu.Lock()
	reg.recomputeProtectedLocked()
	reg.mu.Unlock()

	protected := 0
	for _, p := range reg.All() {
		if p.Protected {
			protected++
		}
	}
	if protected != ProtectedPeerCount {
		t.Fatalf("expected exactly %d protected peers, got %d", ProtectedPeerCount, protected)
	}
}

func TestRegistryTimedOutRequestsAndReap(t *testing.T) {
	reg := NewRegistry()
	id := netglue.NewPeerID()
	reg.Add(id)

	hash := types.Hash32{0x09}
	old := time.Now().Add(-BlockRequestTimeout - time.Second)
	reg.MarkRequested(id, hash, old)

	timedOut := ReapTimedOutRequests(reg, time.Now())
	if len(timedOut) != 1 || timedOut[0] != hash {
		t.Fatalf("expected %v to have timed out, got %v", hash, timedOut)
	}
	state, _ := reg.Get(id)
	if _, stillInFlight := state.InFlightBlocks[hash]; stillInFlight {
		t.Fatal("expected timed-out request to be cleared")
	}
	if state.MisbehaviorScore != ScoreBlockTimeout {
		t.Fatalf("expected misbehavior score %d, got %d", ScoreBlockTimeout, state.MisbehaviorScore)
	}
}

func TestSelectRelayPeersSkipsKnown(t *testing.T) {
	reg := NewRegistry()
	known := netglue.NewPeerID()
	unknown := netglue.NewPeerID()
	reg.Add(known)
	reg.Add(unknown)

	hash := types.Hash32{0x0a}
	reg.MarkTxKnown(known, hash)

	selected := SelectRelayPeers(reg, hash, MaxRelayPeers)
	for _, id := range selected {
		if id == known {
			t.Fatal("expected a peer already known to have the tx to be skipped")
		}
	}
	found := false
	for _, id := range selected {
		if id == unknown {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the peer not known to have the tx to be selected")
	}
}

func TestValidateDeclaredCycles(t *testing.T) {
	if !ValidateDeclaredCycles(100, 100) {
		t.Fatal("expected matching cycle counts to validate")
	}
	if ValidateDeclaredCycles(100, 200) {
		t.Fatal("expected mismatched cycle counts to fail")
	}
}

type fakeShortIDResolver struct {
	byShortID map[types.ProposalShortId]*types.Transaction
}

func (f *fakeShortIDResolver) GetByShortID(id types.ProposalShortId) (*types.Transaction, bool) {
	tx, ok := f.byShortID[id]
	return tx, ok
}

func TestReconstructBlockFillsFromPoolAndReportsMissing(t *testing.T) {
	cellbase := &types.Transaction{OutputsData: [][]byte{nil}}
	poolTx := &types.Transaction{OutputsData: [][]byte{{0x01}}}
	poolTxID := types.NewProposalShortId(types.Hash32{0x02})
	missingID := types.NewProposalShortId(types.Hash32{0x03})

	cb := &p2pwire.MsgCompactBlock{
		PrefilledTransactions: []p2pwire.PrefilledTransaction{{Index: 0, Tx: cellbase}},
		ShortIDs:              []types.ProposalShortId{poolTxID, missingID},
	}
	resolver := &fakeShortIDResolver{byShortID: map[types.ProposalShortId]*types.Transaction{poolTxID: poolTx}}

	txs, missing := ReconstructBlock(cb, resolver)
	if len(txs) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(txs))
	}
	if txs[0] != cellbase {
		t.Fatal("expected prefilled cellbase at index 0")
	}
	if txs[1] != poolTx {
		t.Fatal("expected pool lookup to fill index 1")
	}
	if len(missing) != 1 || missing[0] != 2 {
		t.Fatalf("expected index 2 missing, got %v", missing)
	}
}

func TestBuildGetBlockTransactionsBatches(t *testing.T) {
	missing := make([]uint32, MaxRelayTxsNumPerBatch+5)
	for i := range missing {
		missing[i] = uint32(i)
	}
	msgs := BuildGetBlockTransactions(types.Hash32{}, missing, nil)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(msgs))
	}
	if len(msgs[0].Indexes) != MaxRelayTxsNumPerBatch || len(msgs[1].Indexes) != 5 {
		t.Fatalf("unexpected batch sizes: %d, %d", len(msgs[0].Indexes), len(msgs[1].Indexes))
	}
}

func TestFillBlockTransactionsResolvesMissing(t *testing.T) {
	txs := make([]*types.Transaction, 3)
	tx := &types.Transaction{OutputsData: [][]byte{nil}}
	reply := &p2pwire.MsgBlockTransactions{Transactions: []*types.Transaction{tx}}

	stillMissing := FillBlockTransactions(txs, []uint32{2}, reply)
	if len(stillMissing) != 0 {
		t.Fatalf("expected no remaining missing indexes, got %v", stillMissing)
	}
	if txs[2] != tx {
		t.Fatal("expected index 2 to be filled")
	}
}

func TestFillBlockTransactionsReportsStillMissing(t *testing.T) {
	txs := make([]*types.Transaction, 2)
	reply := &p2pwire.MsgBlockTransactions{}
	stillMissing := FillBlockTransactions(txs, []uint32{0, 1}, reply)
	if len(stillMissing) != 2 {
		t.Fatalf("expected both indexes still missing, got %v", stillMissing)
	}
}

func TestPeerIDRoundTripsThroughUUID(t *testing.T) {
	id := netglue.NewPeerID()
	if uuid.UUID(id) == uuid.Nil {
		t.Fatal("expected NewPeerID to produce a non-nil uuid")
	}
}
