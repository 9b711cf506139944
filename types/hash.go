// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

import (
	"encoding/hex"
	"fmt"
)

// HashSize is the number of bytes in a Hash32.
const HashSize = 32

// Hash32 is a 32-byte opaque identifier used for block hashes, transaction
// hashes, script hashes and Merkle/MMR roots.
type Hash32 [HashSize]byte

// ZeroHash is the Hash32 with all bytes zeroed, used as the null
// previous-output reference in a cellbase input.
var ZeroHash Hash32

// String returns the 0x-prefixed hex encoding of the hash, most-significant
// byte first as stored (no byte-order reversal, unlike Bitcoin's txid
// display convention).
func (h Hash32) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is the all-zero null hash.
func (h Hash32) IsZero() bool {
	return h == ZeroHash
}

// CloneBytes returns a newly allocated copy of the hash bytes.
func (h Hash32) CloneBytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// HashFromBytes builds a Hash32 from a byte slice, which must be exactly
// HashSize bytes long.
func HashFromBytes(b []byte) (Hash32, error) {
	var h Hash32
	if len(b) != HashSize {
		return h, fmt.Errorf("types: invalid hash length %d, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex decodes a 0x-prefixed or bare hex string into a Hash32.
func HashFromHex(s string) (Hash32, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash32{}, err
	}
	return HashFromBytes(b)
}
