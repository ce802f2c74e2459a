package commit

import (
	"testing"

	"github.com/fedchain/node/pkg/crypto"
)

func TestCanonicalHashDeterministic(t *testing.T) {
	tx := Transaction{Author: "alice", Timestamp: 10, Body: "hello", Diff: Diff{Kind: DiffNone}}
	h1 := tx.CanonicalHash()
	h2 := tx.CanonicalHash()
	if h1 != h2 {
		t.Fatalf("canonical hash not deterministic")
	}
}

func TestCanonicalHashFieldOrderIndependence(t *testing.T) {
	// Two transactions differing only in struct literal field order must
	// hash identically, since canonical JSON sorts keys.
	a := Transaction{Author: "bob", Timestamp: 5, Body: "x"}
	b := Transaction{Body: "x", Timestamp: 5, Author: "bob"}
	if a.CanonicalHash() != b.CanonicalHash() {
		t.Fatalf("expected identical hashes regardless of struct literal order")
	}
}

func TestCommitCanonicalHashDispatchesOnKind(t *testing.T) {
	agenda := Agenda{Height: 1, Author: "a", Timestamp: 1}
	c := Commit{Kind: KindAgenda, Agenda: &agenda}
	if c.CanonicalHash() != agenda.CanonicalHash() {
		t.Fatalf("Commit.CanonicalHash should delegate to the populated variant")
	}
}

func TestCalculateCommitMerkleRootEmpty(t *testing.T) {
	root := CalculateCommitMerkleRoot(nil)
	if root != crypto.ZeroHash256 {
		t.Fatalf("expected zero root for empty commit list, got %x", root)
	}
}

func TestCalculateCommitMerkleRootMatchesTreeBuild(t *testing.T) {
	tx1 := Commit{Kind: KindTransaction, Transaction: &Transaction{Author: "a", Timestamp: 1}}
	tx2 := Commit{Kind: KindTransaction, Transaction: &Transaction{Author: "b", Timestamp: 2}}
	root := CalculateCommitMerkleRoot([]Commit{tx1, tx2})
	want := crypto.Aggregate(tx1.CanonicalHash(), tx2.CanonicalHash())
	if root != want {
		t.Fatalf("merkle root = %x, want %x", root, want)
	}
}

func TestExtraAgendaTransactionTimestamp(t *testing.T) {
	x := ExtraAgendaTransaction{Kind: ExtraAgendaDelegate}
	if x.Timestamp() != 0 {
		t.Fatalf("expected 0 timestamp for nil delegate payload")
	}
}
