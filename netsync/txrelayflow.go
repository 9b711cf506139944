package netsync

import (
	"time"

	"github.com/nervosnetwork/ckb-sub009/netglue"
	"github.com/nervosnetwork/ckb-sub009/p2pwire"
	"github.com/nervosnetwork/ckb-sub009/types"
)

const txReplyTimeout = 30 * time.Second

// runTxRelay drives one peer's transaction-relay traffic: announce
// hashes this node has accepted, answer GetRelayTransactions, and admit
// transactions the peer sends unsolicited, per spec.md §4.9/§4.6.
func (m *Manager) runTxRelay(peerID PeerID, router *netglue.Router, stop <-chan struct{}) {
	hashesRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdRelayTransactionHashes})
	getTxsRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdGetRelayTransactions})
	txsRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdRelayTransactions})

	for {
		select {
		case <-stop:
			return
		case msg, ok := <-hashesRoute.Chan():
			if !ok {
				return
			}
			m.handleRelayHashes(peerID, router, msg.(*p2pwire.MsgRelayTransactionHashes))
		case msg, ok := <-getTxsRoute.Chan():
			if !ok {
				return
			}
			m.serveGetRelayTransactions(peerID, router, msg.(*p2pwire.MsgGetRelayTransactions))
		case msg, ok := <-txsRoute.Chan():
			if !ok {
				return
			}
			m.handleRelayedTransactions(peerID, msg.(*p2pwire.MsgRelayTransactions))
		}
	}
}

// handleRelayHashes marks every announced hash as known to the sender
// and requests the ones this node doesn't have pooled yet.
func (m *Manager) handleRelayHashes(peerID PeerID, router *netglue.Router, msg *p2pwire.MsgRelayTransactionHashes) {
	var want []types.Hash32
	for _, hash := range msg.Hashes {
		m.registry.MarkTxKnown(peerID, hash)
		if _, ok := m.pool.Get(hash); ok {
			continue
		}
		want = append(want, hash)
	}
	if len(want) == 0 {
		return
	}
	req := &p2pwire.MsgGetRelayTransactions{Hashes: want}
	if err := timeoutEnqueue(router, req, txReplyTimeout); err != nil {
		log.Debugf("netsync: GetRelayTransactions to %s: %s", peerID, err)
	}
}

func (m *Manager) serveGetRelayTransactions(peerID PeerID, router *netglue.Router, msg *p2pwire.MsgGetRelayTransactions) {
	reply := &p2pwire.MsgRelayTransactions{}
	for _, hash := range msg.Hashes {
		entry, ok := m.pool.Get(hash)
		if !ok {
			continue
		}
		reply.Transactions = append(reply.Transactions, p2pwire.RelayedTransaction{Tx: entry.Tx, Cycles: entry.Cycles})
	}
	if len(reply.Transactions) == 0 {
		return
	}
	if err := timeoutEnqueue(router, reply, txReplyTimeout); err != nil {
		log.Debugf("netsync: RelayTransactions to %s: %s", peerID, err)
	}
}

// handleRelayedTransactions submits every transaction a peer pushed to
// the pool, then compares its declared cycle count with the cycles this
// node's verifier measured during admission. A match re-announces it to
// the rest of the mesh; a mismatch penalizes the sender and skips the
// re-announcement, but the admitted transaction stays in the pool.
func (m *Manager) handleRelayedTransactions(peerID PeerID, msg *p2pwire.MsgRelayTransactions) {
	for _, rt := range msg.Transactions {
		hash := rt.Tx.Hash(m.hasher)
		m.registry.MarkTxKnown(peerID, hash)

		entry, err := m.pool.Accept(rt.Tx, 0)
		if err != nil {
			continue
		}
		if !ValidateDeclaredCycles(rt.Cycles, entry.Cycles) {
			log.Warnf("netsync: %s declared wrong cycles for %s", peerID, hash)
			m.penalizeAndMaybeBan(peerID, ScoreDeclaredWrongCycles)
			continue
		}
		m.announceTx(peerID, hash)
	}
}

// announceTx fans a newly pooled transaction's hash out to the
// MaxRelayPeers peers most likely to not have it yet, per spec.md §4.9.
func (m *Manager) announceTx(origin PeerID, hash types.Hash32) {
	for _, id := range SelectRelayPeers(m.registry, hash, MaxRelayPeers) {
		if id == origin {
			continue
		}
		m.registry.MarkTxKnown(id, hash)
		if err := m.hub.Send(id, &p2pwire.MsgRelayTransactionHashes{Hashes: []types.Hash32{hash}}); err != nil {
			log.Debugf("netsync: announce tx to %s: %s", id, err)
		}
	}
}
