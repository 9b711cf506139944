// Package mmr implements an append-only Merkle Mountain Range over block
// headers, indexed by leaf (block) number, per spec.md §4.2. It backs the
// light-client proof surface: any historical header can be linked to the
// current tip with an O(log n) proof.
//
// Internally an MMR of n leaves is the "peak decomposition" of n into
// descending powers of two (n = 2^a + 2^b + ...); each group of leaves
// forms one perfect binary Merkle tree ("mountain"), and the root bags
// every mountain's peak together. This implementation stores only leaf
// digests and recomputes each mountain's internal nodes on demand, trading
// a little CPU for a much simpler, easier-to-verify-by-inspection
// indexing scheme than the classical single-flat-array MMR position
// algebra.
package mmr

import (
	"github.com/pkg/errors"

	"github.com/nervosnetwork/ckb-sub009/types"
)

// ErrPositionOutOfRange is returned when a requested MMR leaf or size
// doesn't exist yet.
var ErrPositionOutOfRange = errors.New("mmr: position out of range")

// Digest is the 32-byte commitment stored at each MMR node.
type Digest = types.Hash32

// Store persists MMR leaf digests and the current leaf count.
type Store interface {
	GetLeaf(index uint64) (Digest, bool, error)
	PutLeaf(index uint64, digest Digest) error
	LeafCount() (uint64, error)
	SetLeafCount(n uint64) error
}

// Proof is an inclusion proof linking a single leaf to a bagged MMR root.
type Proof struct {
	LeafIndex  uint64
	LeafDigest Digest
	// Siblings are the digests needed to recompute the leaf's mountain
	// peak, from the leaf upward. PathIsRight[i] reports whether the
	// leaf-side node is the right child at that level (so the verifier
	// hashes sibling/digest in the right order).
	Siblings    []Digest
	PathIsRight []bool
	// PeaksBefore and PeaksAfter are every other mountain's peak digest,
	// in left-to-right leaf order, split around the leaf's own mountain.
	PeaksBefore []Digest
	PeaksAfter  []Digest
}

// MMR wraps a Store with append/root/proof operations.
type MMR struct {
	store  Store
	hasher types.Hasher
}

// New returns an MMR backed by s, using hasher to combine nodes.
func New(s Store, hasher types.Hasher) *MMR {
	return &MMR{store: s, hasher: hasher}
}

// leafDigest commits to a header hash, its total difficulty, and the root
// of the MMR immediately before this header was appended, so each leaf
// binds the entire prefix (the "parent root" spec.md §4.2 names).
func (m *MMR) leafDigest(headerHash types.Hash32, totalDifficulty types.Difficulty, priorRoot Digest) Digest {
	buf := make([]byte, 0, 32+16+32)
	buf = append(buf, headerHash[:]...)
	buf = appendUint64(buf, totalDifficulty.Hi)
	buf = appendUint64(buf, totalDifficulty.Lo)
	buf = append(buf, priorRoot[:]...)
	return m.hasher.Hash(buf)
}

func (m *MMR) parentDigest(left, right Digest) Digest {
	buf := make([]byte, 0, 64)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)
	return m.hasher.Hash(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

// mountainSizes decomposes n leaves into descending powers of two, one per
// mountain, left to right matching leaf order (e.g. 5 -> [4, 1]).
func mountainSizes(n uint64) []uint64 {
	var sizes []uint64
	for n > 0 {
		p := uint64(1)
		for p*2 <= n {
			p *= 2
		}
		sizes = append(sizes, p)
		n -= p
	}
	return sizes
}

// Append adds a new leaf for headerHash/totalDifficulty and returns the
// leaf index it was stored at.
func (m *MMR) Append(headerHash types.Hash32, totalDifficulty types.Difficulty) (index uint64, err error) {
	n, err := m.store.LeafCount()
	if err != nil {
		return 0, err
	}
	priorRoot, err := m.rootOfFirst(n)
	if err != nil {
		return 0, err
	}
	digest := m.leafDigest(headerHash, totalDifficulty, priorRoot)
	if err := m.store.PutLeaf(n, digest); err != nil {
		return 0, err
	}
	if err := m.store.SetLeafCount(n + 1); err != nil {
		return 0, err
	}
	return n, nil
}

// GetRootAt returns the bagged MMR root after n leaves have been appended.
// GetRootAt(0) is the zero hash.
func (m *MMR) GetRootAt(n uint64) (Digest, error) {
	return m.rootOfFirst(n)
}

func (m *MMR) rootOfFirst(n uint64) (Digest, error) {
	if n == 0 {
		return Digest{}, nil
	}
	peaks, err := m.mountainPeaks(n)
	if err != nil {
		return Digest{}, err
	}
	return m.bagPeaks(peaks), nil
}

// mountainPeaks returns, for the first n leaves, the peak digest of each
// mountain in left-to-right order.
func (m *MMR) mountainPeaks(n uint64) ([]Digest, error) {
	sizes := mountainSizes(n)
	peaks := make([]Digest, len(sizes))
	start := uint64(0)
	for i, size := range sizes {
		leaves, err := m.fetchLeaves(start, size)
		if err != nil {
			return nil, err
		}
		peaks[i] = perfectRoot(leaves, m.parentDigest)
		start += size
	}
	return peaks, nil
}

func (m *MMR) fetchLeaves(start, count uint64) ([]Digest, error) {
	leaves := make([]Digest, count)
	for i := uint64(0); i < count; i++ {
		d, ok, err := m.store.GetLeaf(start + i)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrPositionOutOfRange
		}
		leaves[i] = d
	}
	return leaves, nil
}

func perfectRoot(leaves []Digest, combine func(a, b Digest) Digest) Digest {
	level := leaves
	for len(level) > 1 {
		next := make([]Digest, len(level)/2)
		for i := range next {
			next[i] = combine(level[2*i], level[2*i+1])
		}
		level = next
	}
	if len(level) == 0 {
		return Digest{}
	}
	return level[0]
}

// bagPeaks folds mountain peaks right-to-left into a single root digest:
// the rightmost peak seeds the accumulator, and each peak to its left is
// folded in as the left sibling.
func (m *MMR) bagPeaks(peaks []Digest) Digest {
	if len(peaks) == 0 {
		return Digest{}
	}
	root := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		root = m.parentDigest(peaks[i], root)
	}
	return root
}

// GenProof builds an inclusion proof for leafIndex against the root formed
// by the first n leaves (n must be >= leafIndex+1 and <= the MMR's current
// leaf count).
func (m *MMR) GenProof(leafIndex uint64, n uint64) (*Proof, error) {
	if n == 0 || leafIndex >= n {
		return nil, ErrPositionOutOfRange
	}
	sizes := mountainSizes(n)
	start := uint64(0)
	for _, size := range sizes {
		if leafIndex < start+size {
			return m.proofWithinMountain(leafIndex, start, size, sizes, start)
		}
		start += size
	}
	return nil, ErrPositionOutOfRange
}

func (m *MMR) proofWithinMountain(leafIndex, mountainStart, mountainSize uint64, allSizes []uint64, _ uint64) (*Proof, error) {
	leaves, err := m.fetchLeaves(mountainStart, mountainSize)
	if err != nil {
		return nil, err
	}
	localIndex := leafIndex - mountainStart

	level := leaves
	idx := localIndex
	var siblings []Digest
	var pathIsRight []bool
	for len(level) > 1 {
		siblingIdx := idx ^ 1
		siblings = append(siblings, level[siblingIdx])
		pathIsRight = append(pathIsRight, idx%2 == 1)
		next := make([]Digest, len(level)/2)
		for i := range next {
			next[i] = m.parentDigest(level[2*i], level[2*i+1])
		}
		level = next
		idx /= 2
	}

	// Peaks of every other mountain, split around this one.
	var peaksBefore, peaksAfter []Digest
	start := uint64(0)
	for _, size := range allSizes {
		if start == mountainStart {
			start += size
			continue
		}
		grpLeaves, err := m.fetchLeaves(start, size)
		if err != nil {
			return nil, err
		}
		peak := perfectRoot(grpLeaves, m.parentDigest)
		if start < mountainStart {
			peaksBefore = append(peaksBefore, peak)
		} else {
			peaksAfter = append(peaksAfter, peak)
		}
		start += size
	}

	return &Proof{
		LeafIndex:   leafIndex,
		LeafDigest:  leaves[localIndex],
		Siblings:    siblings,
		PathIsRight: pathIsRight,
		PeaksBefore: peaksBefore,
		PeaksAfter:  peaksAfter,
	}, nil
}

// Verify checks that proof links its leaf to root.
func (m *MMR) Verify(root Digest, proof *Proof) bool {
	digest := proof.LeafDigest
	for i, sib := range proof.Siblings {
		if proof.PathIsRight[i] {
			digest = m.parentDigest(sib, digest)
		} else {
			digest = m.parentDigest(digest, sib)
		}
	}
	peaks := make([]Digest, 0, len(proof.PeaksBefore)+1+len(proof.PeaksAfter))
	peaks = append(peaks, proof.PeaksBefore...)
	peaks = append(peaks, digest)
	peaks = append(peaks, proof.PeaksAfter...)
	return m.bagPeaks(peaks) == root
}
