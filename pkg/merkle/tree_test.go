package merkle

import (
	"testing"

	"github.com/fedchain/node/pkg/crypto"
)

func leafSet(words ...string) []crypto.Hash256 {
	hashes := make([]crypto.Hash256, len(words))
	for i, w := range words {
		hashes[i] = crypto.HashBytes([]byte(w))
	}
	return hashes
}

func TestBuildEmptyTreeRootIsZero(t *testing.T) {
	tree := Build(nil)
	if tree.Root() != crypto.ZeroHash256 {
		t.Errorf("empty tree root = %x, want zero hash", tree.Root())
	}
	if tree.LeafCount() != 0 {
		t.Errorf("leaf count = %d, want 0", tree.LeafCount())
	}
}

func TestBuildSingleLeafFoldsOnlyChild(t *testing.T) {
	leaf := crypto.HashBytes([]byte("solo"))
	tree := Build([]crypto.Hash256{leaf})

	want := leaf.Hash()
	if tree.Root() != want {
		t.Errorf("single-leaf root = %x, want %x (only-child fold)", tree.Root(), want)
	}
}

func TestBuildTwoLeavesAggregates(t *testing.T) {
	leaves := leafSet("a", "b")
	tree := Build(leaves)

	want := crypto.Aggregate(leaves[0], leaves[1])
	if tree.Root() != want {
		t.Errorf("two-leaf root = %x, want %x", tree.Root(), want)
	}
}

func TestBuildOddLeavesFoldsTrailingNode(t *testing.T) {
	leaves := leafSet("a", "b", "c")
	tree := Build(leaves)

	level1 := []crypto.Hash256{
		crypto.Aggregate(leaves[0], leaves[1]),
		leaves[2].Hash(),
	}
	want := crypto.Aggregate(level1[0], level1[1])
	if tree.Root() != want {
		t.Errorf("odd-leaf root = %x, want %x", tree.Root(), want)
	}
}

func TestProveAndVerifyRoundTrip(t *testing.T) {
	leaves := leafSet("a", "b", "c", "d", "e")
	tree := Build(leaves)
	root := tree.Root()

	for i, leaf := range leaves {
		proof, err := tree.Prove(i)
		if err != nil {
			t.Fatalf("Prove(%d): %v", i, err)
		}
		if err := Verify(leaf, proof, root); err != nil {
			t.Errorf("Verify(leaf=%d): %v", i, err)
		}
	}
}

func TestProveByHash(t *testing.T) {
	leaves := leafSet("x", "y", "z", "w")
	tree := Build(leaves)

	proof, err := tree.ProveHash(leaves[2])
	if err != nil {
		t.Fatalf("ProveHash: %v", err)
	}
	if err := Verify(leaves[2], proof, tree.Root()); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestProveHashNotFound(t *testing.T) {
	tree := Build(leafSet("a", "b"))
	if _, err := tree.ProveHash(crypto.HashBytes([]byte("absent"))); err == nil {
		t.Errorf("expected error for absent leaf")
	}
}

func TestVerifyRejectsWrongLeaf(t *testing.T) {
	leaves := leafSet("a", "b", "c", "d")
	tree := Build(leaves)

	proof, err := tree.Prove(1)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if err := Verify(leaves[0], proof, tree.Root()); err == nil {
		t.Errorf("expected verification failure using the wrong leaf for this proof")
	}
}

func TestVerifyRejectsWrongRoot(t *testing.T) {
	leaves := leafSet("a", "b", "c")
	tree := Build(leaves)

	proof, err := tree.Prove(0)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	otherRoot := crypto.HashBytes([]byte("not the root"))
	if err := Verify(leaves[0], proof, otherRoot); err == nil {
		t.Errorf("expected verification failure against an unrelated root")
	}
}

func TestLargeTreeAllLeavesVerify(t *testing.T) {
	words := make([]string, 0, 37)
	for i := 0; i < 37; i++ {
		words = append(words, string(rune('a'+i%26))+string(rune('0'+i%10)))
	}
	leaves := leafSet(words...)
	tree := Build(leaves)
	root := tree.Root()

	for i, leaf := range leaves {
		proof, err := tree.Prove(i)
		if err != nil {
			t.Fatalf("Prove(%d): %v", i, err)
		}
		if err := Verify(leaf, proof, root); err != nil {
			t.Errorf("Verify(leaf=%d): %v", i, err)
		}
	}
}
