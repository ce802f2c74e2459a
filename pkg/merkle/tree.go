// Package merkle implements a one-shot Merkle tree over commit hashes.
// Unlike a classic binary tree that duplicates a trailing odd node, a lone
// node at any level folds into the next level via a keccak-256 rehash of
// itself (an "only-child" fold) rather than pairing with a copy of itself.
package merkle

import (
	"sync"

	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/errs"
)

// EdgeKind discriminates a ProofEdge's shape.
type EdgeKind int

const (
	// LeftChild means the sibling supplied is the left child; the current
	// value is the right child, so the parent is Aggregate(sibling, current).
	LeftChild EdgeKind = iota
	// RightChild means the sibling supplied is the right child; the parent
	// is Aggregate(current, sibling).
	RightChild
	// OnlyChild means the node had no sibling at this level; the parent is
	// current.Hash().
	OnlyChild
)

// ProofEdge is one step of a Merkle inclusion proof, leaf-to-root order.
type ProofEdge struct {
	Kind    EdgeKind
	Sibling crypto.Hash256 // unused when Kind == OnlyChild
}

// Proof is the full leaf-to-root path for one leaf.
type Proof struct {
	LeafIndex int
	Edges     []ProofEdge
}

// Tree is a one-shot Merkle tree: built once from a fixed leaf set, never
// mutated afterward. Safe for concurrent reads once built.
type Tree struct {
	mu     sync.RWMutex
	leaves []crypto.Hash256
	levels [][]crypto.Hash256 // levels[0] == leaves, levels[len-1] == {root}
	root   crypto.Hash256
}

// Build constructs a Tree from leaf hashes, in order. An empty leaf list
// yields the zero hash as root, per the empty-list root rule.
func Build(leaves []crypto.Hash256) *Tree {
	t := &Tree{}
	t.leaves = append(t.leaves, leaves...)

	if len(t.leaves) == 0 {
		t.levels = [][]crypto.Hash256{{}}
		t.root = crypto.ZeroHash256
		return t
	}

	level := make([]crypto.Hash256, len(t.leaves))
	copy(level, t.leaves)
	t.levels = append(t.levels, level)

	// The first level always folds, so a single leaf's root is leaf.Hash().
	for len(t.levels) == 1 || len(level) > 1 {
		next := make([]crypto.Hash256, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, crypto.Aggregate(level[i], level[i+1]))
			} else {
				next = append(next, level[i].Hash())
			}
		}
		t.levels = append(t.levels, next)
		level = next
	}

	t.root = level[0]
	return t
}

// BuildFromBytes hashes each leaf's raw bytes with crypto.HashBytes before
// building the tree.
func BuildFromBytes(leafData [][]byte) *Tree {
	leaves := make([]crypto.Hash256, len(leafData))
	for i, d := range leafData {
		leaves[i] = crypto.HashBytes(d)
	}
	return Build(leaves)
}

// Root returns the tree's root hash.
func (t *Tree) Root() crypto.Hash256 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.leaves)
}

// Prove returns the inclusion proof for the leaf at index i.
func (t *Tree) Prove(i int) (Proof, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if i < 0 || i >= len(t.leaves) {
		return Proof{}, errs.Newf(errs.KindInvalidArgument, "leaf index %d out of range [0,%d)", i, len(t.leaves))
	}

	var edges []ProofEdge
	idx := i
	for level := 0; level < len(t.levels)-1; level++ {
		cur := t.levels[level]
		if idx%2 == 0 {
			if idx+1 < len(cur) {
				edges = append(edges, ProofEdge{Kind: RightChild, Sibling: cur[idx+1]})
			} else {
				edges = append(edges, ProofEdge{Kind: OnlyChild})
			}
		} else {
			edges = append(edges, ProofEdge{Kind: LeftChild, Sibling: cur[idx-1]})
		}
		idx /= 2
	}
	return Proof{LeafIndex: i, Edges: edges}, nil
}

// ProveHash finds a leaf equal to leaf and returns its proof. If multiple
// leaves are equal, the first occurrence is used.
func (t *Tree) ProveHash(leaf crypto.Hash256) (Proof, error) {
	t.mu.RLock()
	idx := -1
	for i, l := range t.leaves {
		if l == leaf {
			idx = i
			break
		}
	}
	t.mu.RUnlock()
	if idx < 0 {
		return Proof{}, errs.New(errs.KindNotFound, "leaf not present in tree")
	}
	return t.Prove(idx)
}

// Verify recomputes the root from leaf and proof and compares it to root.
func Verify(leaf crypto.Hash256, proof Proof, root crypto.Hash256) error {
	cur := leaf
	for _, e := range proof.Edges {
		switch e.Kind {
		case LeftChild:
			cur = crypto.Aggregate(e.Sibling, cur)
		case RightChild:
			cur = crypto.Aggregate(cur, e.Sibling)
		case OnlyChild:
			cur = cur.Hash()
		default:
			return errs.Newf(errs.KindInvalidArgument, "malformed proof edge kind %d", e.Kind)
		}
	}
	if cur != root {
		return errs.New(errs.KindInvalidProof, "recomputed root does not match given root")
	}
	return nil
}
