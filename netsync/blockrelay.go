package netsync

import (
	"time"

	"github.com/nervosnetwork/ckb-sub009/netglue"
	"github.com/nervosnetwork/ckb-sub009/p2pwire"
	"github.com/nervosnetwork/ckb-sub009/types"
)

const blockReplyTimeout = 60 * time.Second

// runBlockRelay serves a peer's GetBlocks/CompactBlock traffic and
// consumes the Block/CompactBlock replies this node's own header sync
// triggered, grounded on flow_context.go's per-flow message loop and
// spec.md §4.9's block-download and compact-block-relay sections.
func (m *Manager) runBlockRelay(peerID PeerID, router *netglue.Router, stop <-chan struct{}) {
	getBlocksRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdGetBlocks})
	blockRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdBlock})
	compactRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdCompactBlock})
	getTxnsRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdGetBlockTransactions})
	txnsRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdBlockTransactions})

	pending := make(map[types.Hash32]pendingCompactBlock)

	for {
		select {
		case <-stop:
			return
		case msg, ok := <-getBlocksRoute.Chan():
			if !ok {
				return
			}
			m.serveGetBlocks(peerID, router, msg.(*p2pwire.MsgGetBlocks))
		case msg, ok := <-blockRoute.Chan():
			if !ok {
				return
			}
			m.acceptRelayedBlock(peerID, msg.(*p2pwire.MsgBlock).Block)
		case msg, ok := <-compactRoute.Chan():
			if !ok {
				return
			}
			m.handleCompactBlock(peerID, router, msg.(*p2pwire.MsgCompactBlock), pending)
		case msg, ok := <-getTxnsRoute.Chan():
			if !ok {
				return
			}
			m.serveGetBlockTransactions(peerID, router, msg.(*p2pwire.MsgGetBlockTransactions))
		case msg, ok := <-txnsRoute.Chan():
			if !ok {
				return
			}
			m.handleBlockTransactions(peerID, msg.(*p2pwire.MsgBlockTransactions), pending)
		}
	}
}

func (m *Manager) serveGetBlocks(peerID PeerID, router *netglue.Router, req *p2pwire.MsgGetBlocks) {
	status := ValidateGetBlocks(req.BlockHashes, m.chainEngine.GenesisHash())
	if status != p2pwire.StatusOK {
		m.penalizeAndMaybeBan(peerID, netglue.ScoreForStatus(status))
		_ = timeoutEnqueue(router, &p2pwire.MsgReject{Code: status, Reason: "malformed GetBlocks"}, blockReplyTimeout)
		return
	}
	for _, hash := range req.BlockHashes {
		block, err := m.chainEngine.GetBlock(hash)
		if err != nil {
			continue
		}
		if err := timeoutEnqueue(router, &p2pwire.MsgBlock{Block: block}, blockReplyTimeout); err != nil {
			log.Debugf("netsync: Block to %s: %s", peerID, err)
			return
		}
	}
}

// acceptRelayedBlock feeds a fetched block into the chain engine and
// tidies up this peer's in-flight/pending-header bookkeeping.
func (m *Manager) acceptRelayedBlock(peerID PeerID, block *types.Block) {
	if block == nil {
		return
	}
	hash := block.Header.Hash(m.hasher)
	m.registry.MarkDelivered(peerID, hash)
	m.registry.ConsumePendingHeader(peerID, block.Header.Number)

	isOrphan, err := m.chainEngine.ProcessBlock(block)
	if err != nil {
		log.Warnf("netsync: reject block %s from %s: %s", hash, peerID, err)
		m.penalizeAndMaybeBan(peerID, ScoreInvalidBlock)
		return
	}
	if isOrphan {
		log.Debugf("netsync: orphan block %s from %s", hash, peerID)
		return
	}
	m.relayNewBlock(peerID, block)
}

// ScoreInvalidBlock is the misbehavior penalty for a block this node's
// verifier rejects outright, distinct from ScoreBlockTimeout since one
// indicates an actively bad peer rather than a slow one. A malformed
// GetBlocks request instead scores via netglue.ScoreForStatus, since the
// penalty varies by which status category ValidateGetBlocks returned.
const ScoreInvalidBlock = 100

// pendingCompactBlock tracks a partially reconstructed compact block
// while this node waits on a GetBlockTransactions round trip.
type pendingCompactBlock struct {
	header  types.Header
	txs     []*types.Transaction
	missing []uint32
}

func (m *Manager) handleCompactBlock(peerID PeerID, router *netglue.Router, cb *p2pwire.MsgCompactBlock, pending map[types.Hash32]pendingCompactBlock) {
	hash := cb.Header.Hash(m.hasher)
	if m.chainEngine.HasBlock(hash) {
		return
	}
	txs, missing := ReconstructBlock(cb, m.pool)
	if len(missing) == 0 {
		m.acceptRelayedBlock(peerID, &types.Block{Header: cb.Header, Transactions: txs})
		return
	}
	pending[hash] = pendingCompactBlock{header: cb.Header, txs: txs, missing: missing}
	for _, req := range BuildGetBlockTransactions(hash, missing, nil) {
		if err := timeoutEnqueue(router, req, blockReplyTimeout); err != nil {
			log.Debugf("netsync: GetBlockTransactions to %s: %s", peerID, err)
			return
		}
	}
}

func (m *Manager) serveGetBlockTransactions(peerID PeerID, router *netglue.Router, req *p2pwire.MsgGetBlockTransactions) {
	block, err := m.chainEngine.GetBlock(req.BlockHash)
	if err != nil {
		return
	}
	reply := &p2pwire.MsgBlockTransactions{BlockHash: req.BlockHash}
	for _, idx := range req.Indexes {
		if int(idx) < len(block.Transactions) {
			reply.Transactions = append(reply.Transactions, block.Transactions[idx])
		}
	}
	if err := timeoutEnqueue(router, reply, blockReplyTimeout); err != nil {
		log.Debugf("netsync: BlockTransactions to %s: %s", peerID, err)
	}
}

func (m *Manager) handleBlockTransactions(peerID PeerID, reply *p2pwire.MsgBlockTransactions, pending map[types.Hash32]pendingCompactBlock) {
	pc, ok := pending[reply.BlockHash]
	if !ok {
		return
	}
	stillMissing := FillBlockTransactions(pc.txs, pc.missing, reply)
	if len(stillMissing) > 0 {
		pc.missing = stillMissing
		pending[reply.BlockHash] = pc
		return
	}
	delete(pending, reply.BlockHash)
	m.acceptRelayedBlock(peerID, &types.Block{Header: pc.header, Transactions: pc.txs})
}

// relayNewBlock announces a newly accepted block to connected peers as a
// compact block, per spec.md §4.9's relay fan-out; the cellbase is sent
// prefilled so a receiver with an empty pool can still reconstruct it.
func (m *Manager) relayNewBlock(origin PeerID, block *types.Block) {
	cb := &p2pwire.MsgCompactBlock{Header: block.Header}
	for i, tx := range block.Transactions {
		if i == 0 {
			cb.PrefilledTransactions = append(cb.PrefilledTransactions, p2pwire.PrefilledTransaction{Index: i, Tx: tx})
			continue
		}
		cb.ShortIDs = append(cb.ShortIDs, types.NewProposalShortId(tx.Hash(m.hasher)))
	}
	for _, id := range m.registry.peerIDsExcept(origin) {
		if err := m.hub.Send(id, cb); err != nil {
			log.Debugf("netsync: relay block to %s: %s", id, err)
		}
	}
}
