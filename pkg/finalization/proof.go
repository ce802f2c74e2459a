// Package finalization implements the finalization-proof verifier (C5):
// the more-than-2/3 voting-power check (3V > 2T) over a (block_hash,
// round) sign target, and
// the header-to-header chaining rule that uses it.
package finalization

import (
	"github.com/fedchain/node/pkg/canon"
	"github.com/fedchain/node/pkg/commit"
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/errs"
	"github.com/fedchain/node/pkg/reserved"
)

// SignTarget is the value precommit (finalization) signatures cover.
type SignTarget struct {
	BlockHash crypto.Hash256 `json:"block_hash"`
	Round     uint64         `json:"round"`
}

// CanonicalHash implements crypto.Hasher.
func (t SignTarget) CanonicalHash() crypto.Hash256 {
	return crypto.HashBytes(canon.JSON(t))
}

// Proof is a set of +2/3-voting-power signatures over a SignTarget.
type Proof struct {
	Round      uint64
	Signatures []crypto.TypedSignature[SignTarget]
}

// ToRef converts a Proof into the header-embeddable reference form.
func (p Proof) ToRef() *commit.FinalizationProofRef {
	refs := make([]commit.SignatureRef, len(p.Signatures))
	for i, s := range p.Signatures {
		refs[i] = commit.SignatureRef{Signer: s.Signer, Signature: s.Signature}
	}
	return &commit.FinalizationProofRef{Round: p.Round, Signatures: refs}
}

// FromRef reconstructs a Proof from a header's embedded reference form.
func FromRef(ref *commit.FinalizationProofRef) Proof {
	if ref == nil {
		return Proof{}
	}
	sigs := make([]crypto.TypedSignature[SignTarget], len(ref.Signatures))
	for i, s := range ref.Signatures {
		sigs[i] = crypto.TypedSignature[SignTarget]{Signature: s.Signature, Signer: s.Signer}
	}
	return Proof{Round: ref.Round, Signatures: sigs}
}

// VerifyFinalizationProof checks that fp carries signatures covering more
// than 2/3 of header's validator-set voting power over
// SignTarget{header.CanonicalHash(), fp.Round}. Duplicate signers count
// once.
func VerifyFinalizationProof(header commit.BlockHeader, fp Proof) error {
	total := uint64(0)
	for _, v := range header.ValidatorSet {
		total += v.VotingPower
	}

	target := SignTarget{BlockHash: header.CanonicalHash(), Round: fp.Round}

	votingPowerByKey := make(map[crypto.PublicKey]uint64, len(header.ValidatorSet))
	for _, v := range header.ValidatorSet {
		votingPowerByKey[v.PublicKey] = v.VotingPower
	}

	counted := make(map[crypto.PublicKey]bool, len(fp.Signatures))
	voted := uint64(0)
	for _, sig := range fp.Signatures {
		if err := sig.Verify(target); err != nil {
			return errs.Wrap(errs.KindInvalidProof, err, "finalization signature failed to verify")
		}
		if counted[sig.Signer] {
			continue
		}
		counted[sig.Signer] = true
		if power, ok := votingPowerByKey[sig.Signer]; ok {
			voted += power
		}
	}

	if 3*voted <= 2*total {
		return errs.Newf(errs.KindInvalidProof, "insufficient voting power: voted=%d total=%d", voted, total).
			WithFields(map[string]any{"voted": voted, "total": total})
	}
	return nil
}

// VerifyHeaderToHeader checks that h2 is a legal successor of h1: height
// increments by one, previous_hash chains, the author is a member of h1's
// validator set, timestamps and protocol version do not regress, and h2's
// embedded finalization proof verifies against h1.
func VerifyHeaderToHeader(h1, h2 commit.BlockHeader) error {
	if h2.Height != h1.Height+1 {
		return errs.Newf(errs.KindInvalidArgument, "expected height %d, got %d", h1.Height+1, h2.Height)
	}
	if h2.PreviousHash != h1.CanonicalHash() {
		return errs.New(errs.KindInvalidArgument, "previous_hash does not match hash of parent header")
	}
	if !authorInValidatorSet(h2.Author, h1.ValidatorSet) {
		return errs.Newf(errs.KindInvalidArgument, "author %s not in parent validator set", h2.Author.Hex())
	}
	if h2.Timestamp < h1.Timestamp {
		return errs.New(errs.KindInvalidArgument, "timestamp regression between headers")
	}
	if h2.Version.Less(h1.Version) {
		return errs.New(errs.KindInvalidArgument, "protocol version regression between headers")
	}
	return VerifyFinalizationProof(h1, FromRef(h2.PrevBlockFinalizationProof))
}

func authorInValidatorSet(author crypto.PublicKey, set []reserved.VotingPowerEntry) bool {
	for _, v := range set {
		if v.PublicKey == author {
			return true
		}
	}
	return false
}
