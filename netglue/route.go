package netglue

import (
	"time"

	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/p2pwire"
)

const defaultRouteCapacity = 100

var (
	ErrRouteClosed = errors.New("netglue: route is closed")
	ErrTimeout     = errors.New("netglue: timeout expired")
)

// Route is a single-command (or command-group) inbound mailbox, ported
// from netadapter/router/route.go's channel-backed design: flows read
// from their own Route instead of racing each other over one shared
// stream.
type Route struct {
	ch     chan p2pwire.Message
	closed bool
}

func newRoute() *Route {
	return &Route{ch: make(chan p2pwire.Message, defaultRouteCapacity)}
}

func (r *Route) enqueue(msg p2pwire.Message) error {
	if r.closed {
		return errors.WithStack(ErrRouteClosed)
	}
	select {
	case r.ch <- msg:
		return nil
	default:
		return errors.Errorf("netglue: route full for %s", msg.Command())
	}
}

// Dequeue blocks for the next message on this route.
func (r *Route) Dequeue() (p2pwire.Message, error) {
	msg, ok := <-r.ch
	if !ok {
		return nil, errors.WithStack(ErrRouteClosed)
	}
	return msg, nil
}

// DequeueWithTimeout is Dequeue bounded by timeout, used by flows waiting
// on a specific reply (e.g. the handshake's version exchange).
func (r *Route) DequeueWithTimeout(timeout time.Duration) (p2pwire.Message, error) {
	select {
	case msg, ok := <-r.ch:
		if !ok {
			return nil, errors.WithStack(ErrRouteClosed)
		}
		return msg, nil
	case <-time.After(timeout):
		return nil, errors.Wrapf(ErrTimeout, "after %s", timeout)
	}
}

// Chan exposes the route's underlying channel for callers that need to
// select over several routes at once (e.g. a flow serving several
// commands concurrently) instead of blocking on a single Dequeue.
func (r *Route) Chan() <-chan p2pwire.Message {
	return r.ch
}

func (r *Route) close() {
	if r.closed {
		return
	}
	r.closed = true
	close(r.ch)
}

// Router multiplexes one connection's inbound messages to per-command
// Routes and funnels every flow's outbound messages onto one outgoing
// channel for the send loop to drain, mirroring netadapter.Router's role
// without this pack's Router type (only the grpc net adapter ships it;
// this is written fresh in its shape).
type Router struct {
	routes      map[p2pwire.Command]*Route
	outgoing    chan p2pwire.Message
}

func NewRouter() *Router {
	return &Router{
		routes:   make(map[p2pwire.Command]*Route),
		outgoing: make(chan p2pwire.Message, defaultRouteCapacity),
	}
}

// AddRoute registers a fresh Route for the given commands; a flow reads
// from the returned Route for every command it names.
func (r *Router) AddRoute(commands []p2pwire.Command) *Route {
	route := newRoute()
	for _, cmd := range commands {
		r.routes[cmd] = route
	}
	return route
}

// RouteMessage delivers an inbound message to whichever Route was
// registered for its command, dropping it if no flow claimed that
// command (silent-drop for unroutable
// messages rather than treating it as an error.
func (r *Router) RouteMessage(msg p2pwire.Message) error {
	route, ok := r.routes[msg.Command()]
	if !ok {
		return nil
	}
	return route.enqueue(msg)
}

// Outgoing returns the channel flows write replies to; the send loop
// drains it onto the wire.
func (r *Router) Outgoing() chan<- p2pwire.Message {
	return r.outgoing
}

// TakeOutgoing blocks for the next message a flow queued for sending.
func (r *Router) TakeOutgoing() (p2pwire.Message, bool) {
	msg, ok := <-r.outgoing
	return msg, ok
}

// Close closes every registered route and the outgoing channel.
func (r *Router) Close() {
	closed := make(map[*Route]bool)
	for _, route := range r.routes {
		if !closed[route] {
			route.close()
			closed[route] = true
		}
	}
	close(r.outgoing)
}
