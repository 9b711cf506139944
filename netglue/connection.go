package netglue

import (
	"net"

	"github.com/nervosnetwork/ckb-sub009/p2pwire"
)

// Connection abstracts one peer link: something that can frame p2pwire
// messages in each direction and be torn down. A plain net.Conn is the
// only implementation this module ships, but the interface keeps the
// send/receive loops (and tests) independent of net.Conn specifically.
type Connection interface {
	Send(msg p2pwire.Message) error
	Receive() (p2pwire.Message, error)
	Disconnect() error
	RemoteAddr() string
}

// tcpConnection frames p2pwire messages directly over a net.Conn.
type tcpConnection struct {
	conn net.Conn
}

func newTCPConnection(conn net.Conn) *tcpConnection {
	return &tcpConnection{conn: conn}
}

func (c *tcpConnection) Send(msg p2pwire.Message) error {
	return p2pwire.WriteMessage(c.conn, msg)
}

func (c *tcpConnection) Receive() (p2pwire.Message, error) {
	return p2pwire.ReadMessage(c.conn)
}

func (c *tcpConnection) Disconnect() error {
	return c.conn.Close()
}

func (c *tcpConnection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
