// Package bridge implements the integration bridge (C8): it binds
// cryptographically verified block hashes and signatures to the abstract
// integer identifiers pkg/vetomint's consensus engine operates on, and
// reconstructs a finalization.Proof once that engine finalizes a block.
package bridge

import (
	"github.com/fedchain/node/pkg/commit"
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/finalization"
	"github.com/fedchain/node/pkg/vetomint"
)

// MessageKind discriminates a ConsensusMessage.
type MessageKind int

const (
	MessageProposal MessageKind = iota
	MessageNonNilPrevoted
	MessageNonNilPrecommitted
	MessageNilPrevoted
	MessageNilPrecommitted
)

// ConsensusMessage is the wire-level gossip message corresponding to one
// of Vetomint's broadcast responses. Non-precommit messages are signed
// generically at the gossip layer (pkg/bridge trusts its caller there);
// precommit messages carry their own finalization.SignTarget signature,
// since that signature is reused verbatim inside the reconstructed
// FinalizationProof — the dual signing-target rule.
type ConsensusMessage struct {
	Kind       MessageKind
	Round      uint64
	ValidRound *uint64
	BlockHash  crypto.Hash256
}

// SignedMessage pairs an inbound ConsensusMessage with its signer and,
// for precommit messages, the finalization signature over
// finalization.SignTarget{BlockHash, Round}.
type SignedMessage struct {
	Message      ConsensusMessage
	Signer       crypto.PublicKey
	PrecommitSig *crypto.TypedSignature[finalization.SignTarget]
}

// ResultKind discriminates a ProgressResult.
type ResultKind int

const (
	ResultProposed ResultKind = iota
	ResultNonNilPrevoted
	ResultNilPrevoted
	ResultNonNilPrecommitted
	ResultNilPrecommitted
	ResultFinalized
	ResultViolationReported
)

// Finalization is the reconstructed proof of a finalized block.
type Finalization struct {
	BlockHash crypto.Hash256
	Timestamp int64
	Proof     finalization.Proof
}

// ProgressResult is one outcome of draining Bridge.Progress.
type ProgressResult struct {
	Kind ResultKind

	Round     uint64
	BlockHash crypto.Hash256
	Timestamp int64

	Finalization Finalization

	Violator    crypto.PublicKey
	Misbehavior string
}

type scheduledEvent struct {
	event     vetomint.ConsensusEvent
	timestamp int64
}

type precommitKey struct {
	blockHash crypto.Hash256
	round     uint64
}

// Bridge owns one height's Vetomint engine together with the block-hash
// <-> BlockIdentifier mapping and the precommit signatures needed to
// reconstruct a FinalizationProof on finalization.
type Bridge struct {
	engine *vetomint.Engine
	header commit.BlockHeader

	blockIdentifierCount vetomint.BlockIdentifier
	hashToIndex          map[crypto.Hash256]vetomint.BlockIdentifier
	indexToHash          map[vetomint.BlockIdentifier]crypto.Hash256

	vetoedBlockHashes map[crypto.Hash256]bool

	toBeProcessed       []scheduledEvent
	messagesToBroadcast []ConsensusMessage

	precommits map[precommitKey][]crypto.TypedSignature[finalization.SignTarget]

	finalized *Finalization
}
