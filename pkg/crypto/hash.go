// Package crypto implements the hash and signature primitives the rest of
// the consensus core builds on: 32-byte keccak-256 hashes and secp256k1
// recoverable ECDSA signatures, matching the wire formats required for a
// federation whose finalized history must hash identically across nodes.
package crypto

import (
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/fedchain/node/pkg/errs"
)

// Hash256Size is the length in bytes of a Hash256.
const Hash256Size = 32

// Hash256 is a keccak-256 digest.
type Hash256 [Hash256Size]byte

// ZeroHash256 is the canonical root of an empty Merkle tree.
var ZeroHash256 = Hash256{}

// HashBytes returns the keccak-256 digest of data.
func HashBytes(data []byte) Hash256 {
	var h Hash256
	copy(h[:], ethcrypto.Keccak256(data))
	return h
}

// Hash folds an existing Hash256 through keccak-256 again. Used by the
// Merkle tree's "only-child" proof edge, where a lone trailing node folds
// via hash(node) rather than pairing with itself.
func (h Hash256) Hash() Hash256 {
	return HashBytes(h[:])
}

// Aggregate computes hash(a.Bytes() || b.Bytes()), used for Merkle
// sibling pairing.
func Aggregate(a, b Hash256) Hash256 {
	buf := make([]byte, 0, 2*Hash256Size)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return HashBytes(buf)
}

// Bytes returns the digest as a byte slice.
func (h Hash256) Bytes() []byte { return h[:] }

// IsZero reports whether h is the zero hash (the empty-Merkle-tree root).
func (h Hash256) IsZero() bool { return h == ZeroHash256 }

// Hex returns the lowercase, unprefixed hex encoding of h (64 chars).
func (h Hash256) Hex() string { return hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash256) String() string { return h.Hex() }

// HashFromHex parses a 64-char hex string into a Hash256.
func HashFromHex(s string) (Hash256, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash256{}, errs.Wrap(errs.KindInvalidArgument, err, "decode hash hex")
	}
	if len(b) != Hash256Size {
		return Hash256{}, errs.Newf(errs.KindInvalidArgument, "hash256 must be %d bytes, got %d", Hash256Size, len(b))
	}
	var h Hash256
	copy(h[:], b)
	return h, nil
}
