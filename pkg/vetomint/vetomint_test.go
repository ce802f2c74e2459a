package vetomint

import "testing"

func fourValidatorHeightInfo(thisNode ValidatorIndex) HeightInfo {
	idx := thisNode
	return HeightInfo{
		Validators:            []VotingPower{1, 1, 1, 1},
		ThisNodeIndex:         &idx,
		Timestamp:             0,
		ConsensusParams:       ConsensusParams{TimeoutMS: 1000, RepeatRoundForFirstLeader: 1},
		InitialBlockCandidate: 42,
	}
}

func ptr(i int) *int { return &i }

func TestDecideProposerRotatesAfterRepeat(t *testing.T) {
	hi := fourValidatorHeightInfo(0)
	if p := DecideProposer(0, hi); p != 0 {
		t.Fatalf("round 0 proposer = %d, want 0", p)
	}
	if p := DecideProposer(1, hi); p != 1 {
		t.Fatalf("round 1 proposer = %d, want 1", p)
	}
	if p := DecideProposer(2, hi); p != 2 {
		t.Fatalf("round 2 proposer = %d, want 2", p)
	}
	if p := DecideProposer(5, hi); p != 1 {
		t.Fatalf("round 5 proposer = %d, want 1 (wraps mod validator count)", p)
	}
}

func TestEngineStartAsProposerBroadcastsAndSelfPrevotes(t *testing.T) {
	e := New(fourValidatorHeightInfo(0))
	resp := e.Progress(ConsensusEvent{Kind: EventStart}, 0)

	var sawProposal, sawPrevote bool
	for _, r := range resp {
		if r.Kind == ResponseBroadcastProposal && r.Proposal == 42 {
			sawProposal = true
		}
		if r.Kind == ResponseBroadcastPrevote && r.VoteProposal != nil && *r.VoteProposal == 42 {
			sawPrevote = true
		}
	}
	if !sawProposal {
		t.Fatalf("expected proposer to broadcast its own proposal, got %+v", resp)
	}
	if !sawPrevote {
		t.Fatalf("expected self-feedback to produce a prevote for the own proposal, got %+v", resp)
	}
	if e.state.step != StepPrevote {
		t.Fatalf("expected step Prevote after self-proposal/self-prevote feedback, got %s", e.state.step)
	}
}

func TestEngineFinalizesAfterQuorumPrecommit(t *testing.T) {
	e := New(fourValidatorHeightInfo(0))
	e.Progress(ConsensusEvent{Kind: EventStart}, 0)

	// Validators 1 and 2 also prevote for the same candidate; combined
	// with node 0's self-prevote that is 3 of 4 (3*3=9 > 2*4=8), which
	// should flip this node straight to Precommit and broadcast its own
	// precommit via the self-feedback loop.
	for _, signer := range []ValidatorIndex{1, 2} {
		e.Progress(ConsensusEvent{Kind: EventPrevote, VoteProposal: ptr(42), Signer: signer, Round: 0}, 0)
	}
	if e.state.step != StepPrecommit {
		t.Fatalf("expected step Precommit after 3/4 prevotes, got %s", e.state.step)
	}

	// Validator 1's precommit brings the count to 2 of 4 — not yet quorum.
	resp := e.Progress(ConsensusEvent{Kind: EventPrecommit, VoteProposal: ptr(42), Signer: 1, Round: 0}, 0)
	for _, r := range resp {
		if r.Kind == ResponseFinalizeBlock {
			t.Fatalf("finalized too early with only 2/4 precommits")
		}
	}

	// Validator 2's precommit brings it to 3 of 4 (3*3=9 > 2*4=8): finalize.
	resp = e.Progress(ConsensusEvent{Kind: EventPrecommit, VoteProposal: ptr(42), Signer: 2, Round: 0}, 0)
	var finalized bool
	for _, r := range resp {
		if r.Kind == ResponseFinalizeBlock && r.Proposal == 42 {
			finalized = true
			if len(r.Proof) < 3 {
				t.Fatalf("expected finalization proof with >=3 signers, got %v", r.Proof)
			}
		}
	}
	if !finalized {
		t.Fatalf("expected finalization after 3/4 precommits, got %+v", resp)
	}

	// Once finalized, every further event just re-reports the same result.
	resp = e.Progress(ConsensusEvent{Kind: EventTimer}, 999999)
	if len(resp) != 1 || resp[0].Kind != ResponseFinalizeBlock {
		t.Fatalf("expected a finalized engine to keep reporting FinalizeBlock, got %+v", resp)
	}
}

func TestEngineSevenValidatorHappyPath(t *testing.T) {
	idx := ValidatorIndex(6)
	e := New(HeightInfo{
		Validators:            []VotingPower{1, 1, 1, 1, 1, 1, 1},
		ThisNodeIndex:         &idx,
		ConsensusParams:       ConsensusParams{TimeoutMS: 1000, RepeatRoundForFirstLeader: 1},
		InitialBlockCandidate: 0,
	})

	if resp := e.Progress(ConsensusEvent{Kind: EventStart}, 0); len(resp) != 0 {
		t.Fatalf("non-proposer must stay silent on Start, got %+v", resp)
	}

	resp := e.Progress(ConsensusEvent{
		Kind:     EventBlockProposalReceived,
		Proposal: 0,
		Valid:    true,
		Proposer: 0,
		Round:    0,
		Favor:    true,
	}, 0)
	var sawOwnPrevote bool
	for _, r := range resp {
		if r.Kind == ResponseBroadcastPrevote && r.VoteProposal != nil && *r.VoteProposal == 0 {
			sawOwnPrevote = true
		}
	}
	if !sawOwnPrevote {
		t.Fatalf("expected a prevote for a valid, favored proposal, got %+v", resp)
	}

	// External prevotes accumulate until 3v > 2T (T=7, so v >= 5 counting
	// this node's own prevote); the threshold crossing must produce a
	// precommit broadcast for the proposal.
	var sawPrecommit bool
	for _, signer := range []ValidatorIndex{0, 1, 2, 3, 4} {
		for _, r := range e.Progress(ConsensusEvent{Kind: EventPrevote, VoteProposal: ptr(0), Signer: signer, Round: 0}, 0) {
			if r.Kind == ResponseBroadcastPrecommit && r.VoteProposal != nil && *r.VoteProposal == 0 {
				sawPrecommit = true
			}
		}
	}
	if !sawPrecommit {
		t.Fatalf("expected a precommit broadcast once prevote power crossed 2/3")
	}

	var finalized *ConsensusResponse
	for _, signer := range []ValidatorIndex{0, 1, 2, 3, 4} {
		for _, r := range e.Progress(ConsensusEvent{Kind: EventPrecommit, VoteProposal: ptr(0), Signer: signer, Round: 0}, 0) {
			if r.Kind == ResponseFinalizeBlock {
				r := r
				finalized = &r
			}
		}
	}
	if finalized == nil {
		t.Fatalf("expected finalization once precommit power crossed 2/3")
	}
	if finalized.Proposal != 0 {
		t.Fatalf("finalized proposal = %d, want 0", finalized.Proposal)
	}
	if len(finalized.Proof) < 5 {
		t.Fatalf("finalization proof lists %d signers, want >= 5", len(finalized.Proof))
	}
}

func TestEngineNonProposerSchedulesTimeoutThenPrevotesNil(t *testing.T) {
	e := New(fourValidatorHeightInfo(1))
	resp := e.Progress(ConsensusEvent{Kind: EventStart}, 0)
	if len(resp) != 0 {
		t.Fatalf("non-proposer should not broadcast anything on Start, got %+v", resp)
	}
	if _, scheduled := e.state.proposeTimeoutSchedules[0]; !scheduled {
		t.Fatalf("expected a propose-step timeout to be scheduled for round 0")
	}

	resp = e.Progress(ConsensusEvent{Kind: EventTimer}, 5000)
	var sawNilPrevote bool
	for _, r := range resp {
		if r.Kind == ResponseBroadcastPrevote && r.VoteProposal == nil {
			sawNilPrevote = true
		}
	}
	if !sawNilPrevote {
		t.Fatalf("expected a nil prevote once the propose timeout elapsed, got %+v", resp)
	}
}

func TestEngineSkipRoundActsAsInvalidUnfavoredProposal(t *testing.T) {
	// Use a non-proposer for round 0 so it is still in the Propose step
	// (the proposer would have already self-prevoted via Start's feedback
	// loop, past the point where onProposal's step==Propose guard fires).
	e := New(fourValidatorHeightInfo(1))
	e.Progress(ConsensusEvent{Kind: EventStart}, 0)
	resp := e.Progress(ConsensusEvent{Kind: EventSkipRound, Round: 0}, 0)

	var sawNilPrevote bool
	for _, r := range resp {
		if r.Kind == ResponseBroadcastPrevote && r.VoteProposal == nil {
			sawNilPrevote = true
		}
	}
	if !sawNilPrevote {
		t.Fatalf("expected SkipRound to behave like an invalid/unfavored proposal, got %+v", resp)
	}
}
