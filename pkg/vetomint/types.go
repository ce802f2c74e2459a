// Package vetomint implements the per-height BFT consensus engine (C7): a
// Tendermint-family state machine with a favor/no-favor veto extension,
// driven by abstract integer indices rather than cryptographic identities
// (that binding is pkg/bridge's job).
package vetomint

// ValidatorIndex indexes HeightInfo.Validators; the mapping from index to
// public key is scoped to a single height and owned by the caller.
type ValidatorIndex = int

// BlockIdentifier indexes a block candidate within a single height; the
// mapping from identifier to actual block content is owned by the caller.
type BlockIdentifier = int

// Round is a consensus round number within a height.
type Round = int

// VotingPower is a validator's weight.
type VotingPower = uint64

// Timestamp is a UNIX timestamp in milliseconds.
type Timestamp = int64

// ConsensusParams are the timing/fairness knobs for a height's consensus.
type ConsensusParams struct {
	TimeoutMS                 uint64
	RepeatRoundForFirstLeader int
}

// Step is the three-phase round step.
type Step int

const (
	StepPropose Step = iota
	StepPrevote
	StepPrecommit
)

func (s Step) String() string {
	switch s {
	case StepPropose:
		return "Propose"
	case StepPrevote:
		return "Prevote"
	case StepPrecommit:
		return "Precommit"
	default:
		return "Unknown"
	}
}

// EventKind discriminates a ConsensusEvent.
type EventKind int

const (
	EventStart EventKind = iota
	EventBlockProposalReceived
	EventSkipRound
	EventBlockCandidateUpdated
	EventPrevote
	EventPrecommit
	EventTimer
)

// ConsensusEvent is an input that may trigger a state transition. It
// carries no cryptographic information; the caller has already verified
// and refined raw signed messages into these abstracted events.
type ConsensusEvent struct {
	Kind EventKind

	// BlockProposalReceived
	Proposal   BlockIdentifier
	Valid      bool
	ValidRound *Round
	Proposer   ValidatorIndex
	Round      Round
	Favor      bool

	// SkipRound reuses Round.

	// BlockCandidateUpdated reuses Proposal.

	// Prevote / Precommit
	VoteProposal *BlockIdentifier
	Signer       ValidatorIndex
}

// MisbehaviorKind discriminates a Misbehavior report.
type MisbehaviorKind int

const (
	MisbehaviorDoubleProposal MisbehaviorKind = iota
	MisbehaviorDoublePrevote
	MisbehaviorDoublePrecommit
	MisbehaviorInvalidProposal
	MisbehaviorInvalidPrevote
	MisbehaviorInvalidPrecommit
)

// Misbehavior is the report and trace of a detected Byzantine action.
// This engine does not itself detect misbehavior (see DESIGN.md); the
// type exists so ConsensusResponse's ViolationReport variant is complete.
type Misbehavior struct {
	Kind           MisbehaviorKind
	ByzantineNode  ValidatorIndex
	Round          Round
	Proposals      [2]BlockIdentifier
	VoteProposals  [2]*BlockIdentifier
	Proposal       BlockIdentifier
}

// ResponseKind discriminates a ConsensusResponse.
type ResponseKind int

const (
	ResponseBroadcastProposal ResponseKind = iota
	ResponseBroadcastPrevote
	ResponseBroadcastPrecommit
	ResponseFinalizeBlock
	ResponseViolationReport
)

// ConsensusResponse is an output the caller must broadcast, apply, or
// report, depending on its Kind.
type ConsensusResponse struct {
	Kind ResponseKind

	// BroadcastProposal
	Proposal   BlockIdentifier
	ValidRound *Round
	Round      Round

	// BroadcastPrevote / BroadcastPrecommit
	VoteProposal *BlockIdentifier

	// FinalizeBlock
	Proof []ValidatorIndex

	// ViolationReport
	Violator    ValidatorIndex
	Misbehavior Misbehavior
}

// HeightInfo is the immutable parameter set for a single height's
// consensus run.
type HeightInfo struct {
	// Validators lists voting powers in leader order; ValidatorIndex
	// indexes this slice.
	Validators []VotingPower

	// ThisNodeIndex is nil for a non-validating observer client.
	ThisNodeIndex *ValidatorIndex

	// Timestamp is the wall-clock time round 0 began.
	Timestamp Timestamp

	ConsensusParams ConsensusParams

	// InitialBlockCandidate is the block this node initially wants to
	// propose, before BlockCandidateUpdated events change it.
	InitialBlockCandidate BlockIdentifier
}

// DecideProposer returns the proposer index for round, rotating through
// validators after the configured number of repeats for the first leader.
func DecideProposer(round Round, hi HeightInfo) ValidatorIndex {
	if round < hi.ConsensusParams.RepeatRoundForFirstLeader {
		return 0
	}
	return (round - hi.ConsensusParams.RepeatRoundForFirstLeader + 1) % len(hi.Validators)
}

// DecideTimeout returns the propose-step timeout duration for round.
func DecideTimeout(params ConsensusParams, _ Round) Timestamp {
	return int64(params.TimeoutMS)
}
