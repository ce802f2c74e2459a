// Package csv implements the Commit-Sequence Verifier (C6): the
// phase-indexed state machine that validates a stream of typed commits
// against the current finalized tip and reserved state.
package csv

import (
	"github.com/fedchain/node/pkg/canon"
	"github.com/fedchain/node/pkg/commit"
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/errs"
	"github.com/fedchain/node/pkg/finalization"
	"github.com/fedchain/node/pkg/reserved"
)

// BlockHeaderEntry pairs an accepted block header with its index in the
// verifier's total commit history.
type BlockHeaderEntry struct {
	Header commit.BlockHeader
	Index  int
}

// Verifier is a single-owner, synchronous state machine. It never blocks,
// suspends, or performs I/O; every method is total given its inputs and
// internal state.
type Verifier struct {
	header        commit.BlockHeader
	reservedState reserved.State

	phase Phase

	totalCommits        []commit.Commit
	commitsForNextBlock []commit.Commit
}

// New constructs a Verifier against a finalized header and its reserved
// state. The verifier starts in the Block phase, as if just after that
// header's own Block commit.
func New(header commit.BlockHeader, rs reserved.State) *Verifier {
	return &Verifier{
		header:        header,
		reservedState: rs,
		phase:         Phase{Kind: PhaseBlock},
	}
}

// GetHeader returns the last accepted/finalized header.
func (v *Verifier) GetHeader() commit.BlockHeader { return v.header }

// GetReservedState returns the current reserved state.
func (v *Verifier) GetReservedState() reserved.State { return v.reservedState }

// GetTotalCommits returns every commit accepted so far, in order.
func (v *Verifier) GetTotalCommits() []commit.Commit {
	out := make([]commit.Commit, len(v.totalCommits))
	copy(out, v.totalCommits)
	return out
}

// GetBlockHeaders returns every block header accepted so far, paired with
// its index into GetTotalCommits().
func (v *Verifier) GetBlockHeaders() []BlockHeaderEntry {
	var out []BlockHeaderEntry
	for i, c := range v.totalCommits {
		if c.Kind == commit.KindBlock {
			out = append(out, BlockHeaderEntry{Header: *c.Block, Index: i})
		}
	}
	return out
}

// GetPhase returns the verifier's current phase.
func (v *Verifier) GetPhase() Phase { return v.phase }

// Snapshot is the JSON-serializable form of a Verifier's full internal
// state, suitable for checkpointing to storage.BlobStore and restoring
// with FromSnapshot. It is a plain data copy, not a live view.
type Snapshot struct {
	Header              commit.BlockHeader `json:"header"`
	ReservedState       reserved.State     `json:"reserved_state"`
	Phase               Phase              `json:"phase"`
	TotalCommits        []commit.Commit    `json:"total_commits"`
	CommitsForNextBlock []commit.Commit    `json:"commits_for_next_block"`
}

// TakeSnapshot captures v's entire state.
func (v *Verifier) TakeSnapshot() Snapshot {
	return Snapshot{
		Header:              v.header,
		ReservedState:       v.reservedState,
		Phase:               v.phase,
		TotalCommits:        v.GetTotalCommits(),
		CommitsForNextBlock: append([]commit.Commit(nil), v.commitsForNextBlock...),
	}
}

// FromSnapshot reconstructs a Verifier exactly as it was when snapshotted.
func FromSnapshot(s Snapshot) *Verifier {
	return &Verifier{
		header:              s.Header,
		reservedState:       s.ReservedState,
		phase:               s.Phase,
		totalCommits:        append([]commit.Commit(nil), s.TotalCommits...),
		commitsForNextBlock: append([]commit.Commit(nil), s.CommitsForNextBlock...),
	}
}

// VerifyLastHeaderFinalization verifies fp against the current header,
// delegating to pkg/finalization.
func (v *Verifier) VerifyLastHeaderFinalization(fp finalization.Proof) error {
	return finalization.VerifyFinalizationProof(v.header, fp)
}

// Apply validates and, on success, accepts c, advancing the verifier's
// phase. On failure the verifier is left exactly as it was before the
// call (a CSV error leaves the verifier in its pre-call state).
func (v *Verifier) Apply(c commit.Commit) error {
	switch c.Kind {
	case commit.KindTransaction:
		return v.applyTransaction(c)
	case commit.KindAgenda:
		return v.applyAgenda(c)
	case commit.KindAgendaProof:
		return v.applyAgendaProof(c)
	case commit.KindExtraAgendaTransaction:
		return v.applyExtraAgendaTransaction(c)
	case commit.KindBlock:
		return v.applyBlock(c)
	case commit.KindChatLog:
		// ChatLog commits are referenced in the phase machine but never
		// produced; validation is intentionally unimplemented.
		return errs.New(errs.KindInvalidArgument, "ChatLog commit validation is unimplemented")
	default:
		return errs.Newf(errs.KindPhaseMismatch, "unknown commit kind %d in phase %s", c.Kind, v.phase.Kind)
	}
}

func (v *Verifier) applyTransaction(c commit.Commit) error {
	tx := *c.Transaction

	switch v.phase.Kind {
	case PhaseBlock:
		// first transaction since the block; no chronology predecessor.
	case PhaseTransaction:
		if tx.Timestamp < v.phase.LastTransaction.Timestamp {
			return errs.Newf(errs.KindInvalidArgument, "transaction timestamp %d precedes previous %d", tx.Timestamp, v.phase.LastTransaction.Timestamp)
		}
	default:
		return errs.Newf(errs.KindPhaseMismatch, "Transaction not legal in phase %s", v.phase.Kind)
	}

	var nextReserved *reserved.State
	switch tx.Diff.Kind {
	case commit.DiffReserved, commit.DiffGeneral:
		if tx.Diff.Reserved == nil {
			return errs.New(errs.KindInvalidArgument, "diff claims a reserved-state payload but carries none")
		}
		rs := *tx.Diff.Reserved
		if err := rs.Validate(&v.reservedState, false); err != nil {
			return err
		}
		nextReserved = &rs
	}

	var preceding []commit.Transaction
	if v.phase.Kind == PhaseTransaction {
		preceding = append(append([]commit.Transaction{}, v.phase.PrecedingTransactions...), v.phase.LastTransaction)
	}

	v.totalCommits = append(v.totalCommits, c)
	v.commitsForNextBlock = append(v.commitsForNextBlock, c)
	if nextReserved != nil {
		v.reservedState = *nextReserved
	}
	v.phase = Phase{Kind: PhaseTransaction, LastTransaction: tx, PrecedingTransactions: preceding}
	return nil
}

func (v *Verifier) applyAgenda(c commit.Commit) error {
	agenda := *c.Agenda

	var transactions []commit.Transaction
	switch v.phase.Kind {
	case PhaseBlock:
		transactions = nil
	case PhaseTransaction:
		transactions = append(append([]commit.Transaction{}, v.phase.PrecedingTransactions...), v.phase.LastTransaction)
		if agenda.Timestamp < v.phase.LastTransaction.Timestamp {
			return errs.Newf(errs.KindInvalidArgument, "agenda timestamp %d precedes last transaction %d", agenda.Timestamp, v.phase.LastTransaction.Timestamp)
		}
	default:
		return errs.Newf(errs.KindPhaseMismatch, "Agenda not legal in phase %s", v.phase.Kind)
	}

	if agenda.Height != v.header.Height+1 {
		return errs.Newf(errs.KindInvalidArgument, "agenda height %d != header height+1 (%d)", agenda.Height, v.header.Height+1)
	}
	if agenda.PreviousBlockHash != v.header.CanonicalHash() {
		return errs.New(errs.KindInvalidArgument, "agenda previous_block_hash does not match current header hash")
	}
	if want := hashTransactionList(transactions); agenda.TransactionsHash != want {
		return errs.Newf(errs.KindInvalidArgument, "agenda transactions_hash %s != expected %s", agenda.TransactionsHash, want)
	}

	v.totalCommits = append(v.totalCommits, c)
	v.commitsForNextBlock = append(v.commitsForNextBlock, c)
	v.phase = Phase{Kind: PhaseAgenda, Agenda: agenda}
	return nil
}

func (v *Verifier) applyAgendaProof(c commit.Commit) error {
	if v.phase.Kind != PhaseAgenda {
		return errs.Newf(errs.KindPhaseMismatch, "AgendaProof not legal in phase %s", v.phase.Kind)
	}
	ap := *c.AgendaProof
	agenda := v.phase.Agenda

	if ap.Height != agenda.Height {
		return errs.Newf(errs.KindInvalidArgument, "agenda proof height %d != agenda height %d", ap.Height, agenda.Height)
	}
	if ap.AgendaHash != agenda.CanonicalHash() {
		return errs.New(errs.KindInvalidArgument, "agenda proof agenda_hash does not match agenda")
	}

	governance := v.reservedState.GetGovernanceSet()
	powerByKey := make(map[crypto.PublicKey]uint64, len(governance))
	for _, g := range governance {
		powerByKey[g.PublicKey] = g.VotingPower
	}
	var total uint64
	for _, g := range governance {
		total += g.VotingPower
	}

	counted := make(map[crypto.PublicKey]bool, len(ap.Proof))
	var voted uint64
	for _, sig := range ap.Proof {
		if err := sig.Verify(agenda); err != nil {
			return errs.Wrap(errs.KindInvalidProof, err, "agenda proof signature failed to verify")
		}
		power, ok := powerByKey[sig.Signer]
		if !ok {
			return errs.Newf(errs.KindInvalidProof, "agenda proof signer %s is not in the governance set", sig.Signer.Hex())
		}
		if counted[sig.Signer] {
			continue
		}
		counted[sig.Signer] = true
		voted += power
	}
	if 2*voted <= total {
		return errs.Newf(errs.KindInvalidProof, "agenda proof voting power insufficient: voted=%d total=%d", voted, total).
			WithFields(map[string]any{"voted": voted, "total": total})
	}

	v.totalCommits = append(v.totalCommits, c)
	v.commitsForNextBlock = append(v.commitsForNextBlock, c)
	v.phase = Phase{Kind: PhaseAgendaProof, AgendaProof: ap}
	return nil
}

func (v *Verifier) applyExtraAgendaTransaction(c commit.Commit) error {
	x := *c.ExtraAgendaTransaction

	switch v.phase.Kind {
	case PhaseAgendaProof:
		// no chronology predecessor yet.
	case PhaseExtraAgendaTransaction:
		if x.Timestamp() < v.phase.LastExtraTimestamp {
			return errs.Newf(errs.KindInvalidArgument, "extra-agenda tx timestamp %d precedes previous %d", x.Timestamp(), v.phase.LastExtraTimestamp)
		}
	default:
		return errs.Newf(errs.KindPhaseMismatch, "ExtraAgendaTransaction not legal in phase %s", v.phase.Kind)
	}

	var next reserved.State
	var err error
	switch x.Kind {
	case commit.ExtraAgendaDelegate:
		if x.Delegate == nil {
			return errs.New(errs.KindInvalidArgument, "delegate extra-agenda tx missing payload")
		}
		next, err = v.reservedState.ApplyDelegate(*x.Delegate)
	case commit.ExtraAgendaUndelegate:
		if x.Undelegate == nil {
			return errs.New(errs.KindInvalidArgument, "undelegate extra-agenda tx missing payload")
		}
		next, err = v.reservedState.ApplyUndelegate(*x.Undelegate)
	case commit.ExtraAgendaReport:
		// Report validation rules are not yet defined; treat it as
		// illegal until they are.
		return errs.New(errs.KindInvalidArgument, "ExtraAgendaTransaction::Report is unimplemented")
	default:
		return errs.Newf(errs.KindInvalidArgument, "unknown extra-agenda transaction kind %d", x.Kind)
	}
	if err != nil {
		return err
	}

	v.reservedState = next
	v.totalCommits = append(v.totalCommits, c)
	v.commitsForNextBlock = append(v.commitsForNextBlock, c)
	v.phase = Phase{Kind: PhaseExtraAgendaTransaction, LastExtraTimestamp: x.Timestamp()}
	return nil
}

func (v *Verifier) applyBlock(c commit.Commit) error {
	block := *c.Block

	switch v.phase.Kind {
	case PhaseAgendaProof:
		// no extra-phase chronology predecessor.
	case PhaseExtraAgendaTransaction:
		if block.Timestamp < v.phase.LastExtraTimestamp {
			return errs.Newf(errs.KindInvalidArgument, "block timestamp %d precedes last extra-agenda tx %d", block.Timestamp, v.phase.LastExtraTimestamp)
		}
	default:
		return errs.Newf(errs.KindPhaseMismatch, "Block not legal in phase %s", v.phase.Kind)
	}

	if err := finalization.VerifyHeaderToHeader(v.header, block); err != nil {
		return err
	}

	if want := commit.CalculateCommitMerkleRoot(v.commitsForNextBlock); block.CommitMerkleRoot != want {
		return errs.Newf(errs.KindInvalidArgument, "block commit_merkle_root %s != expected %s", block.CommitMerkleRoot, want)
	}

	v.totalCommits = append(v.totalCommits, c)
	v.commitsForNextBlock = nil
	v.header = block
	v.phase = Phase{Kind: PhaseBlock}
	return nil
}

func hashTransactionList(txs []commit.Transaction) crypto.Hash256 {
	return crypto.HashBytes(canon.JSON(txs))
}
