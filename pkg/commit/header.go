package commit

import (
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/merkle"
)

// CalculateCommitMerkleRoot builds a one-shot Merkle tree from the hashes
// of commits accumulated since the previous block (the block commit
// itself is excluded) and returns its root.
func CalculateCommitMerkleRoot(commits []Commit) crypto.Hash256 {
	leaves := make([]crypto.Hash256, len(commits))
	for i, c := range commits {
		leaves[i] = c.CanonicalHash()
	}
	return merkle.Build(leaves).Root()
}
