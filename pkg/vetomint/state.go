package vetomint

type proposal struct {
	proposal   BlockIdentifier
	valid      bool
	validRound *Round
	proposer   ValidatorIndex
	round      Round
	favor      bool
}

type voteKey struct {
	round  Round
	signer ValidatorIndex
}

type vote struct {
	proposal *BlockIdentifier
	signer   ValidatorIndex
	round    Round
}

type finalizedBlock struct {
	proposal BlockIdentifier
	round    Round
	proof    []ValidatorIndex
}

// state is the mutable heart of a single height's consensus run. A round's
// votes are keyed by (round, signer): a later vote from the same signer in
// the same round replaces an earlier one rather than double-counting its
// voting power.
type state struct {
	heightInfo HeightInfo

	round Round
	step  Step

	proposals  map[BlockIdentifier]proposal
	prevotes   map[voteKey]vote
	precommits map[voteKey]vote

	validValue  *BlockIdentifier
	validRound  *Round
	lockedValue *BlockIdentifier
	lockedRound *Round

	blockCandidate BlockIdentifier

	proposeTimeoutSchedules   map[Round]Timestamp
	precommitTimeoutSchedules map[Round]Timestamp
	forTheFirstTime2          map[Round]bool

	finalized *finalizedBlock
}

func newState(hi HeightInfo) *state {
	return &state{
		heightInfo:                hi,
		step:                      StepPropose,
		proposals:                 make(map[BlockIdentifier]proposal),
		prevotes:                  make(map[voteKey]vote),
		precommits:                make(map[voteKey]vote),
		blockCandidate:            hi.InitialBlockCandidate,
		proposeTimeoutSchedules:   make(map[Round]Timestamp),
		precommitTimeoutSchedules: make(map[Round]Timestamp),
		forTheFirstTime2:          make(map[Round]bool),
	}
}

func (s *state) clone() *state {
	c := &state{
		heightInfo:     s.heightInfo,
		round:          s.round,
		step:           s.step,
		proposals:      make(map[BlockIdentifier]proposal, len(s.proposals)),
		prevotes:       make(map[voteKey]vote, len(s.prevotes)),
		precommits:     make(map[voteKey]vote, len(s.precommits)),
		validValue:     s.validValue,
		validRound:     s.validRound,
		lockedValue:    s.lockedValue,
		lockedRound:    s.lockedRound,
		blockCandidate: s.blockCandidate,
		proposeTimeoutSchedules:   make(map[Round]Timestamp, len(s.proposeTimeoutSchedules)),
		precommitTimeoutSchedules: make(map[Round]Timestamp, len(s.precommitTimeoutSchedules)),
		forTheFirstTime2:          make(map[Round]bool, len(s.forTheFirstTime2)),
	}
	for k, v := range s.proposals {
		c.proposals[k] = v
	}
	for k, v := range s.prevotes {
		c.prevotes[k] = v
	}
	for k, v := range s.precommits {
		c.precommits[k] = v
	}
	for k, v := range s.proposeTimeoutSchedules {
		c.proposeTimeoutSchedules[k] = v
	}
	for k, v := range s.precommitTimeoutSchedules {
		c.precommitTimeoutSchedules[k] = v
	}
	for k, v := range s.forTheFirstTime2 {
		c.forTheFirstTime2[k] = v
	}
	if s.finalized != nil {
		f := *s.finalized
		c.finalized = &f
	}
	return c
}

func (s *state) totalVotingPower() VotingPower {
	var total VotingPower
	for _, p := range s.heightInfo.Validators {
		total += p
	}
	return total
}

func (s *state) powerOf(idx ValidatorIndex) VotingPower {
	if idx < 0 || idx >= len(s.heightInfo.Validators) {
		return 0
	}
	return s.heightInfo.Validators[idx]
}

func (s *state) totalPrevotesOnProposal(round Round, p BlockIdentifier) VotingPower {
	var total VotingPower
	for k, v := range s.prevotes {
		if k.round == round && v.proposal != nil && *v.proposal == p {
			total += s.powerOf(k.signer)
		}
	}
	return total
}

func (s *state) totalPrevotesOnNil(round Round) VotingPower {
	var total VotingPower
	for k, v := range s.prevotes {
		if k.round == round && v.proposal == nil {
			total += s.powerOf(k.signer)
		}
	}
	return total
}

func (s *state) totalPrevotes(round Round) VotingPower {
	var total VotingPower
	for k := range s.prevotes {
		if k.round == round {
			total += s.powerOf(k.signer)
		}
	}
	return total
}

func (s *state) totalPrecommitsOnProposal(round Round, p BlockIdentifier) VotingPower {
	var total VotingPower
	for k, v := range s.precommits {
		if k.round == round && v.proposal != nil && *v.proposal == p {
			total += s.powerOf(k.signer)
		}
	}
	return total
}

func (s *state) totalPrecommitsOnNil(round Round) VotingPower {
	var total VotingPower
	for k, v := range s.precommits {
		if k.round == round && v.proposal == nil {
			total += s.powerOf(k.signer)
		}
	}
	return total
}

func (s *state) totalPrecommits(round Round) VotingPower {
	var total VotingPower
	for k := range s.precommits {
		if k.round == round {
			total += s.powerOf(k.signer)
		}
	}
	return total
}
