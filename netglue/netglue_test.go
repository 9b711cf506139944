package netglue

import (
	"testing"
	"time"

	"github.com/nervosnetwork/ckb-sub009/p2pwire"
)

func TestBanListBansAfterThreshold(t *testing.T) {
	b := NewBanList()
	if b.IsBanned("1.2.3.4") {
		t.Fatalf("fresh address must not be banned")
	}
	banned := b.AddScore("1.2.3.4", ScoreInvalidBlock)
	if !banned {
		t.Fatalf("expected a single ScoreInvalidBlock penalty to cross the ban threshold")
	}
	if !b.IsBanned("1.2.3.4") {
		t.Fatalf("expected address to be banned")
	}
}

func TestBanListExpires(t *testing.T) {
	b := NewBanList()
	b.AddScore("5.6.7.8", ScoreInvalidBlock)
	nowFunc = func() time.Time { return time.Now().Add(BanDuration + time.Minute) }
	defer func() { nowFunc = time.Now }()
	if b.IsBanned("5.6.7.8") {
		t.Fatalf("expected ban to have expired")
	}
}

func TestAddrBookSample(t *testing.T) {
	book := NewAddrBook()
	book.Add(p2pwire.NetAddress{Host: "10.0.0.1", Port: 8333}, p2pwire.NetAddress{Host: "10.0.0.2", Port: 8333})
	if book.Count() != 2 {
		t.Fatalf("expected 2 addresses, got %d", book.Count())
	}
	sample := book.Sample(1)
	if len(sample) != 1 {
		t.Fatalf("expected sample of 1, got %d", len(sample))
	}
}

func TestRouterRoutesByCommand(t *testing.T) {
	router := NewRouter()
	route := router.AddRoute([]p2pwire.Command{p2pwire.CmdPing})

	if err := router.RouteMessage(&p2pwire.MsgPing{Nonce: 7}); err != nil {
		t.Fatalf("RouteMessage: %v", err)
	}
	msg, err := route.DequeueWithTimeout(time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if msg.(*p2pwire.MsgPing).Nonce != 7 {
		t.Fatalf("expected nonce 7")
	}

	// An unrouted command is silently dropped, not an error.
	if err := router.RouteMessage(&p2pwire.MsgPong{Nonce: 1}); err != nil {
		t.Fatalf("RouteMessage for unrouted command should not error: %v", err)
	}
}
