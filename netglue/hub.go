package netglue

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/internal/logger"
	"github.com/nervosnetwork/ckb-sub009/p2pwire"
)

var log, _ = logger.Get(logger.SubsystemTags.NetGlue)

// RouterInitializer builds a fresh Router for a newly accepted or dialed
// connection; the caller (netsync) supplies this so Hub stays ignorant of
// what flows actually run over a connection, mirroring
// netadapter.RouterInitializer's separation of transport from protocol.
type RouterInitializer func(peerID PeerID, conn Connection) *Router

// OnDisconnected is invoked once a peer's connection loops have both
// exited, letting the caller clean up any per-peer state it owns.
type OnDisconnected func(peerID PeerID)

// Hub owns every live connection and its Router, plus the ban list every
// accepted/dialed address is checked against. Grounded on
// netadapter.NetAdapter's connection/router registry, generalized from a
// single grpc server to a plain TCP listener since this pack has no CKB
// protobuf schema to generate a grpc service from.
type Hub struct {
	mu          sync.RWMutex
	connections map[PeerID]Connection
	routers     map[PeerID]*Router

	bans *BanList

	routerInitializer RouterInitializer
	onDisconnected    OnDisconnected

	listener net.Listener
	stopped  uint32
}

func NewHub(routerInitializer RouterInitializer, onDisconnected OnDisconnected) *Hub {
	return &Hub{
		connections:       make(map[PeerID]Connection),
		routers:           make(map[PeerID]*Router),
		bans:              NewBanList(),
		routerInitializer: routerInitializer,
		onDisconnected:    onDisconnected,
	}
}

// Bans exposes the hub's ban list so sync flows can score misbehavior.
func (h *Hub) Bans() *BanList { return h.bans }

// Listen starts accepting inbound connections on addr.
func (h *Hub) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "netglue: listen on %s", addr)
	}
	h.listener = ln
	go h.acceptLoop(ln)
	return nil
}

func (h *Hub) acceptLoop(ln net.Listener) {
	for atomic.LoadUint32(&h.stopped) == 0 {
		conn, err := ln.Accept()
		if err != nil {
			if atomic.LoadUint32(&h.stopped) != 0 {
				return
			}
			log.Warnf("netglue: accept failed: %s", err)
			continue
		}
		if h.bans.IsBanned(hostOf(conn.RemoteAddr().String())) {
			log.Infof("netglue: rejecting banned address %s", conn.RemoteAddr())
			conn.Close()
			continue
		}
		h.register(newTCPConnection(conn))
	}
}

// Dial opens an outbound connection to addr and registers it exactly like
// an accepted one.
func (h *Hub) Dial(addr string) (PeerID, error) {
	if h.bans.IsBanned(hostOf(addr)) {
		return PeerID{}, errors.Errorf("netglue: %s is banned", addr)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return PeerID{}, errors.Wrapf(err, "netglue: dial %s", addr)
	}
	return h.register(newTCPConnection(conn)), nil
}

func (h *Hub) register(conn Connection) PeerID {
	peerID := NewPeerID()
	router := h.routerInitializer(peerID, conn)

	h.mu.Lock()
	h.connections[peerID] = conn
	h.routers[peerID] = router
	h.mu.Unlock()

	go h.receiveLoop(peerID, conn, router)
	go h.sendLoop(peerID, conn, router)
	return peerID
}

func (h *Hub) receiveLoop(peerID PeerID, conn Connection, router *Router) {
	for {
		msg, err := conn.Receive()
		if err != nil {
			log.Debugf("netglue: receive from %s ended: %s", peerID, err)
			break
		}
		if err := router.RouteMessage(msg); err != nil {
			log.Warnf("netglue: route message from %s: %s", peerID, err)
			break
		}
	}
	h.unregister(peerID, conn, router)
}

func (h *Hub) sendLoop(peerID PeerID, conn Connection, router *Router) {
	for {
		msg, ok := router.TakeOutgoing()
		if !ok {
			return
		}
		if err := conn.Send(msg); err != nil {
			log.Debugf("netglue: send to %s ended: %s", peerID, err)
			return
		}
	}
}

func (h *Hub) unregister(peerID PeerID, conn Connection, router *Router) {
	h.mu.Lock()
	_, stillPresent := h.connections[peerID]
	delete(h.connections, peerID)
	delete(h.routers, peerID)
	h.mu.Unlock()

	if !stillPresent {
		return
	}
	conn.Disconnect()
	router.Close()
	if h.onDisconnected != nil {
		h.onDisconnected(peerID)
	}
}

// Disconnect forcibly tears down a peer, used when its misbehavior score
// crosses the ban threshold.
func (h *Hub) Disconnect(peerID PeerID) {
	h.mu.RLock()
	conn, ok := h.connections[peerID]
	router := h.routers[peerID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.unregister(peerID, conn, router)
}

// Send queues msg for delivery to peerID.
func (h *Hub) Send(peerID PeerID, msg p2pwire.Message) error {
	h.mu.RLock()
	router, ok := h.routers[peerID]
	h.mu.RUnlock()
	if !ok {
		return errors.Errorf("netglue: %s is not connected", peerID)
	}
	router.Outgoing() <- msg
	return nil
}

// Broadcast sends msg to every connected peer in ids.
func (h *Hub) Broadcast(ids []PeerID, msg p2pwire.Message) {
	for _, id := range ids {
		if err := h.Send(id, msg); err != nil {
			log.Debugf("netglue: broadcast to %s: %s", id, err)
		}
	}
}

// PeerIDs returns every currently connected peer.
func (h *Hub) PeerIDs() []PeerID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]PeerID, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	return ids
}

// RemoteAddr returns peerID's remote address, for ban bookkeeping.
func (h *Hub) RemoteAddr(peerID PeerID) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.connections[peerID]
	if !ok {
		return "", false
	}
	return conn.RemoteAddr(), true
}

// Stop closes the listener and every live connection.
func (h *Hub) Stop() error {
	if atomic.AddUint32(&h.stopped, 1) != 1 {
		return errors.New("netglue: hub stopped more than once")
	}
	if h.listener != nil {
		h.listener.Close()
	}
	for _, id := range h.PeerIDs() {
		h.Disconnect(id)
	}
	return nil
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
