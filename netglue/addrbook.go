package netglue

import (
	"fmt"
	"sync"

	"github.com/nervosnetwork/ckb-sub009/p2pwire"
)

// AddrBook is a small in-memory set of known peer addresses, fed by the
// Discovery protocol's GetAddresses/Addresses exchange. The teacher's
// production addrmgr.AddrManager isn't in this pack (only its log.go
// survives), so this is a minimal stand-in covering what spec.md §6's
// Discovery row actually names: learn addresses, list them back out.
type AddrBook struct {
	mu        sync.Mutex
	addresses map[string]p2pwire.NetAddress
}

func NewAddrBook() *AddrBook {
	return &AddrBook{addresses: make(map[string]p2pwire.NetAddress)}
}

func key(a p2pwire.NetAddress) string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

func (b *AddrBook) Add(addrs ...p2pwire.NetAddress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range addrs {
		b.addresses[key(a)] = a
	}
}

// Sample returns up to n known addresses to answer a GetAddresses
// request with.
func (b *AddrBook) Sample(n int) []p2pwire.NetAddress {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]p2pwire.NetAddress, 0, n)
	for _, a := range b.addresses {
		if len(out) >= n {
			break
		}
		out = append(out, a)
	}
	return out
}

func (b *AddrBook) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.addresses)
}
