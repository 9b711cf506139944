package txpool

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/store"
)

// PersistedKey is the store.ColumnMeta key ("tx_pool/persisted.vN") under
// which Save writes every pooled entry and from which Load reads them
// back. The node binary calls neither, so pool contents do not survive a
// restart.
var PersistedKey = []byte("tx_pool/persisted.v1")

var errTruncatedSnapshot = errors.New("txpool: truncated persisted snapshot")

// Save serializes every entry's raw transaction bytes (caller-supplied
// serializer, since package types has no canonical wire encoder in scope
// here) into the store under PersistedKey.
func (p *Pool) Save(w store.Writer, serialize func(e *Entry) []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := make([]byte, 0, 1024)
	buf = appendUint32(buf, uint32(len(p.entries)))
	for _, entry := range p.entries {
		encoded := serialize(entry)
		buf = appendUint32(buf, uint32(len(encoded)))
		buf = append(buf, encoded...)
	}
	return w.Put(store.ColumnMeta, PersistedKey, buf)
}

// Load returns the raw per-entry byte blobs from a snapshot written by
// Save, in no particular order. The caller deserializes each with the
// same codec Save's serialize function used and re-admits it through
// Accept, since a persisted snapshot makes no guarantee the chain tip
// hasn't moved since it was written and every entry must pass admission
// again regardless.
func Load(r store.Reader) ([][]byte, error) {
	raw, err := r.Get(store.ColumnMeta, PersistedKey)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) < 4 {
		return nil, errTruncatedSnapshot
	}
	count := binary.LittleEndian.Uint32(raw[:4])
	raw = raw[4:]
	out := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(raw) < 4 {
			return nil, errTruncatedSnapshot
		}
		n := binary.LittleEndian.Uint32(raw[:4])
		raw = raw[4:]
		if uint32(len(raw)) < n {
			return nil, errTruncatedSnapshot
		}
		out = append(out, raw[:n])
		raw = raw[n:]
	}
	return out, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}
