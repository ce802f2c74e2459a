// Package commit implements the tagged-union commit model (C4): the
// typed commit stream the Commit-Sequence Verifier validates, and the
// canonical hashing every commit variant shares.
package commit

import (
	"github.com/fedchain/node/pkg/canon"
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/reserved"
)

// Kind discriminates a Commit's variant. Discriminants must stay stable:
// they select which payload Commit.CanonicalHash hashes.
type Kind int

const (
	KindBlock Kind = iota
	KindTransaction
	KindAgenda
	KindAgendaProof
	KindExtraAgendaTransaction
	KindChatLog
)

// BlockHeader is the canonical block identity.
type BlockHeader struct {
	Author                   crypto.PublicKey          `json:"author"`
	PrevBlockFinalizationProof *FinalizationProofRef    `json:"prev_block_finalization_proof,omitempty"`
	PreviousHash             crypto.Hash256            `json:"previous_hash"`
	Height                   uint64                    `json:"height"`
	Timestamp                int64                     `json:"timestamp"`
	CommitMerkleRoot         crypto.Hash256            `json:"commit_merkle_root"`
	RepositoryMerkleRoot     crypto.Hash256            `json:"repository_merkle_root"`
	ValidatorSet             []reserved.VotingPowerEntry `json:"validator_set"`
	Version                  reserved.Version          `json:"version"`
}

// FinalizationProofRef avoids an import cycle between commit and
// finalization: it carries just the fields needed to canonically hash a
// header, and pkg/finalization.Proof converts to/from it.
type FinalizationProofRef struct {
	Round      uint64            `json:"round"`
	Signatures []SignatureRef    `json:"signatures"`
}

// SignatureRef is the canonical form of a TypedSignature for hashing
// purposes (signer + signature bytes, no generic type parameter).
type SignatureRef struct {
	Signer    crypto.PublicKey `json:"signer"`
	Signature crypto.Signature `json:"signature"`
}

// CanonicalHash is the block identity: hash256 of the header's canonical
// serialization.
func (h BlockHeader) CanonicalHash() crypto.Hash256 {
	return crypto.HashBytes(canon.JSON(h))
}

// DiffKind discriminates a Transaction's Diff payload.
type DiffKind int

const (
	DiffNone DiffKind = iota
	DiffReserved
	DiffNonReserved
	DiffGeneral
)

// Diff is the tagged union of what a transaction may mutate.
type Diff struct {
	Kind         DiffKind        `json:"kind"`
	Reserved     *reserved.State `json:"reserved,omitempty"`
	ContentHash  *crypto.Hash256 `json:"content_hash,omitempty"`
}

// Transaction is a generic commit carrying an optional reserved-state or
// content-hash mutation.
type Transaction struct {
	Author    string         `json:"author"`
	Timestamp int64          `json:"timestamp"`
	Head      crypto.Hash256 `json:"head"`
	Body      string         `json:"body"`
	Diff      Diff           `json:"diff"`
}

// CanonicalHash implements crypto.Hasher.
func (t Transaction) CanonicalHash() crypto.Hash256 {
	return crypto.HashBytes(canon.JSON(t))
}

// Agenda proposes a set of transactions for governance ratification.
type Agenda struct {
	Height             uint64         `json:"height"`
	Author             string         `json:"author"`
	Timestamp          int64          `json:"timestamp"`
	TransactionsHash   crypto.Hash256 `json:"transactions_hash"`
	PreviousBlockHash  crypto.Hash256 `json:"previous_block_hash"`
}

// CanonicalHash implements crypto.Hasher.
func (a Agenda) CanonicalHash() crypto.Hash256 {
	return crypto.HashBytes(canon.JSON(a))
}

// AgendaProof is a set of typed signatures from governance members
// ratifying an agenda.
type AgendaProof struct {
	Height     uint64                                  `json:"height"`
	AgendaHash crypto.Hash256                           `json:"agenda_hash"`
	Proof      []crypto.TypedSignature[Agenda]    `json:"proof"`
	Timestamp  int64                                   `json:"timestamp"`
}

// ExtraAgendaKind discriminates the extra-agenda transaction variants.
type ExtraAgendaKind int

const (
	ExtraAgendaDelegate ExtraAgendaKind = iota
	ExtraAgendaUndelegate
	ExtraAgendaReport
)

// ExtraAgendaTransaction carries a post-agenda delegation change (or an
// unimplemented Report, kept only so the tagged union has a stable
// discriminant for serialization; see pkg/csv for its rejection).
type ExtraAgendaTransaction struct {
	Kind        ExtraAgendaKind              `json:"kind"`
	Delegate    *reserved.DelegateTransaction   `json:"delegate,omitempty"`
	Undelegate  *reserved.UndelegateTransaction `json:"undelegate,omitempty"`
}

// CanonicalHash implements crypto.Hasher.
func (x ExtraAgendaTransaction) CanonicalHash() crypto.Hash256 {
	return crypto.HashBytes(canon.JSON(x))
}

// Timestamp returns the embedded delegation timestamp, used by CSV's
// ExtraAgendaTransaction chronology check.
func (x ExtraAgendaTransaction) Timestamp() int64 {
	switch x.Kind {
	case ExtraAgendaDelegate:
		if x.Delegate != nil {
			return x.Delegate.Data.Timestamp
		}
	case ExtraAgendaUndelegate:
		if x.Undelegate != nil {
			return x.Undelegate.Data.Timestamp
		}
	}
	return 0
}

// ChatLog is referenced by the phase machine but never produced; its
// validation is intentionally left unimplemented.
type ChatLog struct {
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// CanonicalHash implements crypto.Hasher.
func (c ChatLog) CanonicalHash() crypto.Hash256 {
	return crypto.HashBytes(canon.JSON(c))
}

// Commit is the tagged union every CSV-accepted item belongs to.
type Commit struct {
	Kind                   Kind
	Block                  *BlockHeader
	Transaction            *Transaction
	Agenda                 *Agenda
	AgendaProof            *AgendaProof
	ExtraAgendaTransaction *ExtraAgendaTransaction
	ChatLog                *ChatLog
}

// CanonicalHash hashes whichever variant is populated. Commit.Kind only
// selects which payload is hashed; the result is that payload's own
// canonical hash, and the discriminant itself is not hashed.
func (c Commit) CanonicalHash() crypto.Hash256 {
	switch c.Kind {
	case KindBlock:
		return c.Block.CanonicalHash()
	case KindTransaction:
		return c.Transaction.CanonicalHash()
	case KindAgenda:
		return c.Agenda.CanonicalHash()
	case KindAgendaProof:
		return crypto.HashBytes(canon.JSON(c.AgendaProof))
	case KindExtraAgendaTransaction:
		return c.ExtraAgendaTransaction.CanonicalHash()
	case KindChatLog:
		return c.ChatLog.CanonicalHash()
	default:
		return crypto.ZeroHash256
	}
}
