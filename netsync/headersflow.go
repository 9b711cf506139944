package netsync

import (
	"time"

	"github.com/nervosnetwork/ckb-sub009/netglue"
	"github.com/nervosnetwork/ckb-sub009/p2pwire"
)

const headersRequestTimeout = 30 * time.Second

// runHeaderSync drives the headers-first loop against one peer: send
// GetHeaders from this node's locator, validate the reply, update the
// peer's known-header tip, and repeat, per spec.md §4.9. After an empty
// reply (the peer has nothing new) it waits 10 seconds and polls again;
// it returns only when stop closes or a request or validation fails.
// Newly learned headers feed the
// block-download flow through the peer's KnownHeadersNumber advancing
// past this node's tip.
func (m *Manager) runHeaderSync(peerID PeerID, router *netglue.Router, stop <-chan struct{}) {
	route := router.AddRoute([]p2pwire.Command{p2pwire.CmdSendHeaders})

	for {
		select {
		case <-stop:
			return
		default:
		}

		locator := m.chainEngine.Locator()
		req := &p2pwire.MsgGetHeaders{Locator: locator}
		if err := timeoutEnqueue(router, req, headersRequestTimeout); err != nil {
			log.Debugf("netsync: GetHeaders to %s: %s", peerID, err)
			return
		}

		msg, err := route.DequeueWithTimeout(headersRequestTimeout)
		if err != nil {
			log.Debugf("netsync: headers reply from %s: %s", peerID, err)
			return
		}
		reply, ok := msg.(*p2pwire.MsgSendHeaders)
		if !ok {
			return
		}
		if len(reply.Headers) == 0 {
			// Peer has nothing new; back off before polling again.
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Second):
				continue
			}
		}

		state, ok := m.registry.Get(peerID)
		if !ok {
			return
		}
		if err := ValidateHeaderChain(reply.Headers, m.hasher, state.KnownHeadersTip); err != nil {
			log.Warnf("netsync: bad header chain from %s: %s", peerID, err)
			m.penalizeAndMaybeBan(peerID, ScoreInvalidHeaderChain)
			return
		}

		best, ok := BestHeader(reply.Headers)
		if !ok {
			continue
		}
		m.registry.RecordHeaders(peerID, reply.Headers, m.hasher)
		m.registry.AdvanceKnownHeaders(peerID, best.Hash(m.hasher), best.Number)
		m.requestNewBlocks(peerID, router)
	}
}

// ScoreInvalidHeaderChain penalizes a peer whose header reply doesn't
// chain to its own predecessor, a static protocol violation.
const ScoreInvalidHeaderChain = 20

func (m *Manager) penalizeAndMaybeBan(peerID PeerID, amount int) {
	m.registry.Penalize(peerID, amount)
	if addr, ok := m.hub.RemoteAddr(peerID); ok {
		if m.hub.Bans().AddScore(addr, amount) {
			m.hub.Disconnect(peerID)
		}
	}
}

// requestNewBlocks asks peerID for main-chain blocks it announced beyond
// our current tip, windowed per NextBlockBatch and skipping blocks this
// node already has (e.g. learned from another peer in the meantime).
func (m *Manager) requestNewBlocks(peerID PeerID, router *netglue.Router) {
	state, ok := m.registry.Get(peerID)
	if !ok {
		return
	}
	tipNumber := m.chainEngine.TipHeader().Number

	pending := m.registry.PendingBlocks(peerID, tipNumber+1)
	filtered := pending[:0]
	for _, b := range pending {
		if m.chainEngine.HasBlock(b.Hash) {
			m.registry.ConsumePendingHeader(peerID, b.Number)
			continue
		}
		filtered = append(filtered, b)
	}
	if len(filtered) == 0 {
		return
	}

	batch := NextBlockBatch(state, filtered)
	if len(batch) == 0 {
		return
	}
	req := &p2pwire.MsgGetBlocks{}
	now := time.Now()
	for _, b := range batch {
		req.BlockHashes = append(req.BlockHashes, b.Hash)
		m.registry.MarkRequested(peerID, b.Hash, now)
	}
	if err := timeoutEnqueue(router, req, headersRequestTimeout); err != nil {
		log.Debugf("netsync: GetBlocks to %s: %s", peerID, err)
	}
}
