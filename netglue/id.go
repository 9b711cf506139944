// Package netglue is the network glue layer: peer registry, connection
// life cycle, ban-list and message dispatch, sitting between raw TCP
// connections and the sync flows that actually speak the CKB protocol.
//
// Grounded on netadapter/netadapter.go's connection/router registry
// (connectionIDs/idsToConnections/idsToRouters bookkeeping) and
// netadapter/router/route.go's channel-backed Route, generalized from the
// teacher's grpc-backed transport (netadapter/server/grpcserver) to a
// plain net.Conn transport framed by p2pwire, since this pack carries no
// .proto definitions to generate a CKB-shaped grpc service from and
// fabricating generated protobuf stubs by hand is out of bounds.
package netglue

import (
	"github.com/google/uuid"
)

// PeerID identifies a connection for its lifetime. The teacher's own
// netadapter/id package isn't present in this pack; uuid.UUID (already an
// ecosystem dependency of this module) fills the same role of a compact,
// comparable, printable identity.
type PeerID uuid.UUID

func NewPeerID() PeerID {
	return PeerID(uuid.New())
}

func (id PeerID) String() string {
	return uuid.UUID(id).String()
}
