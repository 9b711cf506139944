package netsync

import (
	"time"

	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/netglue"
	"github.com/nervosnetwork/ckb-sub009/p2pwire"
)

const handshakeTimeout = 30 * time.Second

// handshake runs the Identify protocol's version exchange, grounded on
// handshake.go's two-goroutine send/receive design and sendversion.go's
// version message construction, simplified to a single blocking sequence
// since this implementation's Route already buffers both directions.
func (m *Manager) handshake(peerID PeerID, router *netglue.Router, versionRoute, verAckRoute *netglue.Route) error {
	tip := m.chainEngine.TipHeader()
	myVersion := &p2pwire.MsgVersion{
		ProtocolVersion: ProtocolVersion,
		UserAgent:       UserAgent,
		Network:         m.network,
		TipHash:         m.chainEngine.TipHash(),
		TipNumber:       tip.Number,
	}
	if err := timeoutEnqueue(router, myVersion, handshakeTimeout); err != nil {
		return errors.Wrap(err, "netsync: send version")
	}

	msg, err := versionRoute.DequeueWithTimeout(handshakeTimeout)
	if err != nil {
		return errors.Wrap(err, "netsync: receive version")
	}
	peerVersion, ok := msg.(*p2pwire.MsgVersion)
	if !ok {
		return errors.New("netsync: expected MsgVersion")
	}
	if peerVersion.Network != m.network {
		return errors.Errorf("netsync: network mismatch: got %q, want %q", peerVersion.Network, m.network)
	}

	if err := timeoutEnqueue(router, &p2pwire.MsgVerAck{}, handshakeTimeout); err != nil {
		return errors.Wrap(err, "netsync: send verack")
	}
	if _, err := verAckRoute.DequeueWithTimeout(handshakeTimeout); err != nil {
		return errors.Wrap(err, "netsync: receive verack")
	}

	m.registry.AdvanceKnownHeaders(peerID, peerVersion.TipHash, peerVersion.TipNumber)
	return nil
}
