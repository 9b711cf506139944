package netsync

import (
	"time"

	"github.com/nervosnetwork/ckb-sub009/netglue"
	"github.com/nervosnetwork/ckb-sub009/p2pwire"
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 10 * time.Second
)

// ScorePingTimeout is the misbehavior penalty for failing to answer a
// ping within pongTimeout, a liveness check separate from sync-specific
// scoring.
const ScorePingTimeout = 1

// runPing sends a periodic keepalive and disconnects a peer that stops
// answering, per netadapter's flow-per-connection idle detection.
func (m *Manager) runPing(peerID PeerID, router *netglue.Router, stop <-chan struct{}) {
	pingRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdPing})
	pongRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdPong})

	var nonce uint64
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case msg, ok := <-pingRoute.Chan():
			if !ok {
				return
			}
			ping := msg.(*p2pwire.MsgPing)
			if err := timeoutEnqueue(router, &p2pwire.MsgPong{Nonce: ping.Nonce}, pongTimeout); err != nil {
				log.Debugf("netsync: pong to %s: %s", peerID, err)
				return
			}
		case <-ticker.C:
			nonce++
			if err := timeoutEnqueue(router, &p2pwire.MsgPing{Nonce: nonce}, pongTimeout); err != nil {
				log.Debugf("netsync: ping to %s: %s", peerID, err)
				return
			}
			if _, err := pongRoute.DequeueWithTimeout(pongTimeout); err != nil {
				log.Warnf("netsync: %s missed pong, disconnecting", peerID)
				m.registry.Penalize(peerID, ScorePingTimeout)
				m.hub.Disconnect(peerID)
				return
			}
		}
	}
}
