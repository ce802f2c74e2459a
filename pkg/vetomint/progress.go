package vetomint

func progressEvent(s *state, event ConsensusEvent, timestamp Timestamp) []ConsensusResponse {
	if s.finalized != nil {
		return []ConsensusResponse{{
			Kind:     ResponseFinalizeBlock,
			Proposal: s.finalized.proposal,
			Round:    s.finalized.round,
			Proof:    s.finalized.proof,
		}}
	}

	switch event.Kind {
	case EventStart:
		return startRound(s, 0, timestamp)

	case EventBlockProposalReceived:
		s.proposals[event.Proposal] = proposal{
			proposal:   event.Proposal,
			valid:      event.Valid,
			validRound: event.ValidRound,
			proposer:   event.Proposer,
			round:      event.Round,
			favor:      event.Favor,
		}
		var resp []ConsensusResponse
		if event.ValidRound != nil {
			resp = append(resp, onFourFNonNilPrevoteInProposeStep(s, event.Round, event.Proposal)...)
		} else {
			resp = append(resp, onProposal(s, event.Round, event.Proposal)...)
		}
		resp = append(resp, onFourFNonNilPrevoteInPrevoteStep(s, event.Round, event.Proposal)...)
		resp = append(resp, onFourFNonNilPrecommit(s, event.Round, event.Proposal)...)
		return resp

	case EventSkipRound:
		return progressEvent(s, ConsensusEvent{
			Kind:       EventBlockProposalReceived,
			Proposal:   0,
			Valid:      false,
			ValidRound: nil,
			Proposer:   0,
			Round:      event.Round,
			Favor:      false,
		}, timestamp)

	case EventBlockCandidateUpdated:
		s.blockCandidate = event.Proposal
		return nil

	case EventPrevote:
		s.prevotes[voteKey{round: event.Round, signer: event.Signer}] = vote{
			proposal: event.VoteProposal,
			signer:   event.Signer,
			round:    event.Round,
		}
		var resp []ConsensusResponse
		if event.VoteProposal != nil {
			resp = append(resp, onFourFNonNilPrevoteInProposeStep(s, event.Round, *event.VoteProposal)...)
			resp = append(resp, onFourFNonNilPrevoteInPrevoteStep(s, event.Round, *event.VoteProposal)...)
		} else {
			resp = append(resp, onFourFNilPrevote(s, event.Round)...)
		}
		resp = append(resp, onFiveFPrevote(s, event.Round, event.VoteProposal)...)
		return resp

	case EventPrecommit:
		s.precommits[voteKey{round: event.Round, signer: event.Signer}] = vote{
			proposal: event.VoteProposal,
			signer:   event.Signer,
			round:    event.Round,
		}
		var resp []ConsensusResponse
		resp = append(resp, onFiveFPrecommit(s, event.Round, timestamp)...)
		resp = append(resp, onFourFNilPrecommit(s, event.Round, timestamp)...)
		if event.VoteProposal != nil {
			resp = append(resp, onFourFNonNilPrecommit(s, event.Round, *event.VoteProposal)...)
		}
		return resp

	case EventTimer:
		var resp []ConsensusResponse
		if timeout, ok := s.proposeTimeoutSchedules[s.round]; ok && timestamp >= timeout && s.step == StepPropose {
			resp = append(resp, ConsensusResponse{Kind: ResponseBroadcastPrevote, VoteProposal: nil, Round: s.round})
			s.step = StepPrevote
		}
		if timeout, ok := s.precommitTimeoutSchedules[s.round]; ok && timestamp >= timeout {
			resp = append(resp, startRound(s, s.round+1, timestamp)...)
		}
		return resp

	default:
		return nil
	}
}

func startRound(s *state, round Round, timestamp Timestamp) []ConsensusResponse {
	s.round = round
	s.step = StepPropose
	proposer := DecideProposer(round, s.heightInfo)
	if s.heightInfo.ThisNodeIndex != nil && proposer == *s.heightInfo.ThisNodeIndex {
		p := s.blockCandidate
		if s.validValue != nil {
			p = *s.validValue
		}
		return []ConsensusResponse{{
			Kind:       ResponseBroadcastProposal,
			Proposal:   p,
			ValidRound: s.validRound,
			Round:      round,
		}}
	}
	s.proposeTimeoutSchedules[round] = timestamp + DecideTimeout(s.heightInfo.ConsensusParams, round)
	return nil
}

func onProposal(s *state, targetRound Round, targetProposal BlockIdentifier) []ConsensusResponse {
	if targetRound != s.round {
		return nil
	}
	lockedValue, lockedRound := int64(-1), int64(-1)
	if s.lockedValue != nil {
		lockedValue = int64(*s.lockedValue)
	}
	if s.lockedRound != nil {
		lockedRound = int64(*s.lockedRound)
	}

	validProposer := DecideProposer(targetRound, s.heightInfo)
	p, ok := s.proposals[targetProposal]
	if !ok {
		return nil
	}
	if p.validRound != nil {
		return nil
	}

	if p.proposer == validProposer && s.step == StepPropose {
		s.step = StepPrevote
		if p.valid && (lockedValue == int64(targetProposal) || (p.favor && lockedRound == -1)) {
			tp := targetProposal
			return []ConsensusResponse{{Kind: ResponseBroadcastPrevote, VoteProposal: &tp, Round: targetRound}}
		}
		return []ConsensusResponse{{Kind: ResponseBroadcastPrevote, VoteProposal: nil, Round: targetRound}}
	}
	return nil
}

func onFourFNonNilPrevoteInProposeStep(s *state, targetRound Round, targetProposal BlockIdentifier) []ConsensusResponse {
	if targetRound != s.round {
		return nil
	}
	lockedValue, lockedRound := int64(-1), int64(-1)
	if s.lockedValue != nil {
		lockedValue = int64(*s.lockedValue)
	}
	if s.lockedRound != nil {
		lockedRound = int64(*s.lockedRound)
	}
	validProposer := DecideProposer(targetRound, s.heightInfo)
	p, ok := s.proposals[targetProposal]
	if !ok {
		return nil
	}
	if p.validRound == nil {
		return nil
	}
	vr := *p.validRound

	if p.proposer == validProposer &&
		3*s.totalPrevotesOnProposal(vr, targetProposal) > 2*s.totalVotingPower() &&
		s.step == StepPropose &&
		vr < targetRound {
		s.step = StepPrevote
		if p.valid && ((p.favor && lockedRound < int64(vr)) || lockedValue == int64(p.proposal)) {
			tp := targetProposal
			return []ConsensusResponse{{Kind: ResponseBroadcastPrevote, VoteProposal: &tp, Round: targetRound}}
		}
		return []ConsensusResponse{{Kind: ResponseBroadcastPrevote, VoteProposal: nil, Round: targetRound}}
	}
	return nil
}

func onFourFNonNilPrevoteInPrevoteStep(s *state, targetRound Round, targetProposal BlockIdentifier) []ConsensusResponse {
	if targetRound != s.round {
		return nil
	}
	validProposer := DecideProposer(targetRound, s.heightInfo)
	p, ok := s.proposals[targetProposal]
	if !ok {
		return nil
	}
	if p.proposer == validProposer &&
		3*s.totalPrevotesOnProposal(targetRound, targetProposal) > 2*s.totalVotingPower() &&
		p.valid &&
		(s.step == StepPrevote || s.step == StepPrecommit) {
		tp := targetProposal
		s.validValue = &tp
		s.validRound = &targetRound
		if s.step == StepPrevote {
			s.lockedValue = &tp
			s.lockedRound = &targetRound
			s.step = StepPrecommit
			return []ConsensusResponse{{Kind: ResponseBroadcastPrecommit, VoteProposal: &tp, Round: targetRound}}
		}
		return nil
	}
	return nil
}

func onFourFNilPrevote(s *state, targetRound Round) []ConsensusResponse {
	if targetRound != s.round {
		return nil
	}
	if s.step == StepPrevote && 3*s.totalPrevotesOnNil(targetRound) > 2*s.totalVotingPower() {
		s.step = StepPrecommit
		return []ConsensusResponse{{Kind: ResponseBroadcastPrecommit, VoteProposal: nil, Round: s.round}}
	}
	return nil
}

func onFiveFPrevote(s *state, targetRound Round, targetProposal *BlockIdentifier) []ConsensusResponse {
	if targetRound != s.round {
		return nil
	}
	if s.step == StepPrevote && 6*s.totalPrevotes(targetRound) > 5*s.totalVotingPower() {
		s.step = StepPrecommit
		if targetProposal != nil {
			if 3*s.totalPrevotesOnProposal(targetRound, *targetProposal) > 2*s.totalVotingPower() {
				return []ConsensusResponse{{Kind: ResponseBroadcastPrecommit, VoteProposal: targetProposal, Round: s.round}}
			}
			return []ConsensusResponse{{Kind: ResponseBroadcastPrecommit, VoteProposal: nil, Round: targetRound}}
		}
		return []ConsensusResponse{{Kind: ResponseBroadcastPrecommit, VoteProposal: nil, Round: targetRound}}
	}
	return nil
}

// precommitTimeoutMS is the grace period after +5/6 precommits before a
// round gives up waiting for the rest and advances. The deadline is the
// triggering event's timestamp plus this offset.
const precommitTimeoutMS = 1000

func onFiveFPrecommit(s *state, targetRound Round, timestamp Timestamp) []ConsensusResponse {
	if targetRound != s.round {
		return nil
	}
	if !s.forTheFirstTime2[targetRound] && 6*s.totalPrecommits(targetRound) > 5*s.totalVotingPower() {
		s.forTheFirstTime2[targetRound] = true
		s.precommitTimeoutSchedules[targetRound] = timestamp + precommitTimeoutMS
	}
	return nil
}

func onFourFNilPrecommit(s *state, targetRound Round, timestamp Timestamp) []ConsensusResponse {
	if targetRound != s.round {
		return nil
	}
	if 2*s.totalPrecommitsOnNil(targetRound) > 3*s.totalVotingPower() {
		return startRound(s, targetRound+1, timestamp)
	}
	return nil
}

func onFourFNonNilPrecommit(s *state, targetRound Round, targetProposal BlockIdentifier) []ConsensusResponse {
	validProposer := DecideProposer(targetRound, s.heightInfo)
	p, ok := s.proposals[targetProposal]
	if !ok {
		return nil
	}
	if p.proposer == validProposer &&
		p.valid &&
		3*s.totalPrecommitsOnProposal(targetRound, targetProposal) > 2*s.totalVotingPower() {
		var proof []ValidatorIndex
		for k, v := range s.precommits {
			if k.round == targetRound && v.proposal != nil && *v.proposal == targetProposal {
				proof = append(proof, v.signer)
			}
		}
		s.finalized = &finalizedBlock{proposal: targetProposal, round: targetRound, proof: proof}
		return []ConsensusResponse{{Kind: ResponseFinalizeBlock, Proposal: targetProposal, Round: targetRound, Proof: proof}}
	}
	return nil
}
