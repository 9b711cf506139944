package netsync

import (
	"time"

	"github.com/nervosnetwork/ckb-sub009/chain"
	"github.com/nervosnetwork/ckb-sub009/netglue"
	"github.com/nervosnetwork/ckb-sub009/p2pwire"
	"github.com/nervosnetwork/ckb-sub009/txpool"
	"github.com/nervosnetwork/ckb-sub009/types"
)

// UserAgent identifies this node in the Identify protocol's version
// exchange, mirroring sendversion.go's userAgentName/userAgentVersion.
const UserAgent = "ckb-core-node:0.1.0"

// ProtocolVersion is the Identify handshake's negotiated version number.
const ProtocolVersion = 1

// Manager wires one Hub's connections to the chain engine and pool,
// starting the per-peer flow goroutines (handshake, headers, block
// relay, tx relay, ping) that actually drive spec.md §4.9, grounded on
// protocol/manager.go's Manager (netAdapter/txPool/dag wiring) and
// protocol/protocol.go's startFlows/addFlow goroutine-per-flow pattern.
type Manager struct {
	hub         *netglue.Hub
	chainEngine *chain.Chain
	pool        *txpool.Pool
	hasher      types.Hasher
	network     string

	registry *Registry
}

// NewManager builds a Manager over hub. It does not register itself with
// the hub: the caller passes m.RouterInitializer and m.OnDisconnected to
// the hub's callbacks. Start listening/dialing on hub only after
// constructing the Manager, so every accepted connection already has
// somewhere to route its messages.
func NewManager(hub *netglue.Hub, chainEngine *chain.Chain, pool *txpool.Pool, hasher types.Hasher, network string) *Manager {
	m := &Manager{
		hub:         hub,
		chainEngine: chainEngine,
		pool:        pool,
		hasher:      hasher,
		network:     network,
		registry:    NewRegistry(),
	}
	return m
}

// RouterInitializer satisfies netglue.RouterInitializer: build a Router
// for the connection, register the peer, and spawn its flow goroutines.
func (m *Manager) RouterInitializer(peerID PeerID, conn netglue.Connection) *netglue.Router {
	router := netglue.NewRouter()
	m.registry.Add(peerID)
	go m.runPeer(peerID, conn, router)
	return router
}

// OnDisconnected satisfies netglue.OnDisconnected.
func (m *Manager) OnDisconnected(peerID PeerID) {
	m.registry.Remove(peerID)
}

// Registry exposes the peer registry for introspection (RPC, tests).
func (m *Manager) Registry() *Registry { return m.registry }

func (m *Manager) runPeer(peerID PeerID, conn netglue.Connection, router *netglue.Router) {
	versionRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdVersion})
	verAckRoute := router.AddRoute([]p2pwire.Command{p2pwire.CmdVerAck})

	if err := m.handshake(peerID, router, versionRoute, verAckRoute); err != nil {
		log.Warnf("netsync: handshake with %s failed: %s", peerID, err)
		m.hub.Disconnect(peerID)
		return
	}
	log.Infof("netsync: peer %s ready", peerID)

	stop := make(chan struct{})
	go m.runHeaderSync(peerID, router, stop)
	go m.runBlockRelay(peerID, router, stop)
	go m.runTxRelay(peerID, router, stop)
	go m.runPing(peerID, router, stop)
}

// timeoutEnqueue is the shared helper every flow uses to write to a
// peer's outgoing channel without blocking forever on a dead connection.
func timeoutEnqueue(router *netglue.Router, msg p2pwire.Message, timeout time.Duration) error {
	select {
	case router.Outgoing() <- msg:
		return nil
	case <-time.After(timeout):
		return netglue.ErrTimeout
	}
}
