package mmr

import (
	"crypto/sha256"
	"testing"

	"github.com/nervosnetwork/ckb-sub009/types"
)

type sha256Hasher struct{}

func (sha256Hasher) Hash(data []byte) types.Hash32 {
	return sha256.Sum256(data)
}

type memMMRStore struct {
	leaves map[uint64]Digest
	n      uint64
}

func newMemMMRStore() *memMMRStore {
	return &memMMRStore{leaves: make(map[uint64]Digest)}
}

func (s *memMMRStore) GetLeaf(index uint64) (Digest, bool, error) {
	d, ok := s.leaves[index]
	return d, ok, nil
}

func (s *memMMRStore) PutLeaf(index uint64, digest Digest) error {
	s.leaves[index] = digest
	return nil
}

func (s *memMMRStore) LeafCount() (uint64, error) { return s.n, nil }

func (s *memMMRStore) SetLeafCount(n uint64) error {
	s.n = n
	return nil
}

func fakeHeaderHash(n byte) types.Hash32 {
	var h types.Hash32
	h[0] = n
	return h
}

func TestMMRAppendAndRoot(t *testing.T) {
	st := newMemMMRStore()
	m := New(st, sha256Hasher{})

	root0, err := m.GetRootAt(0)
	if err != nil {
		t.Fatalf("root at 0: %v", err)
	}
	if root0 != (Digest{}) {
		t.Fatalf("expected zero root for empty MMR")
	}

	var lastRoot Digest
	for i := byte(0); i < 7; i++ {
		if _, err := m.Append(fakeHeaderHash(i), types.Difficulty{Lo: uint64(i) + 1}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		root, err := m.GetRootAt(uint64(i) + 1)
		if err != nil {
			t.Fatalf("root after append %d: %v", i, err)
		}
		if root == lastRoot {
			t.Fatalf("root did not change after appending leaf %d", i)
		}
		lastRoot = root
	}
}

func TestMMRProofAcrossMultipleMountains(t *testing.T) {
	st := newMemMMRStore()
	m := New(st, sha256Hasher{})

	// 5 leaves decompose into mountains of size 4 and 1, exercising the
	// multi-peak bagging path.
	const leafCount = 5
	for i := byte(0); i < leafCount; i++ {
		if _, err := m.Append(fakeHeaderHash(i), types.Difficulty{Lo: uint64(i) + 1}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	root, err := m.GetRootAt(leafCount)
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	for leaf := uint64(0); leaf < leafCount; leaf++ {
		proof, err := m.GenProof(leaf, leafCount)
		if err != nil {
			t.Fatalf("gen proof %d: %v", leaf, err)
		}
		if !m.Verify(root, proof) {
			t.Fatalf("proof for leaf %d failed to verify", leaf)
		}
	}

	// A proof whose leaf digest has been tampered with must fail.
	badProof, err := m.GenProof(0, leafCount)
	if err != nil {
		t.Fatalf("gen proof: %v", err)
	}
	badProof.LeafDigest[0] ^= 0xff
	if m.Verify(root, badProof) {
		t.Fatalf("tampered proof unexpectedly verified")
	}
}
