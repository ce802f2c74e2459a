package vetomint

// Engine runs one height's consensus state machine, including the
// self-feedback loop that turns this node's own broadcast responses back
// into events so its local state stays consistent with what it just sent.
type Engine struct {
	state *state
}

// New constructs an Engine for a single height.
func New(hi HeightInfo) *Engine {
	return &Engine{state: newState(hi)}
}

// HeightInfo returns the height parameters this engine was built with.
func (e *Engine) HeightInfo() HeightInfo {
	return e.state.heightInfo
}

// Progress feeds event into the state machine at timestamp, returning
// every response generated — including those produced by feeding this
// node's own broadcasts back into itself until no further event fires.
func (e *Engine) Progress(event ConsensusEvent, timestamp Timestamp) []ConsensusResponse {
	responses := progressEvent(e.state, event, timestamp)
	finalResponses := append([]ConsensusResponse{}, responses...)

	for {
		var next []ConsensusResponse
		selfIndex := e.state.heightInfo.ThisNodeIndex
		for _, r := range responses {
			if selfIndex == nil {
				continue
			}
			switch r.Kind {
			case ResponseBroadcastProposal:
				next = append(next, progressEvent(e.state, ConsensusEvent{
					Kind:       EventBlockProposalReceived,
					Proposal:   r.Proposal,
					Valid:      true,
					ValidRound: r.ValidRound,
					Proposer:   *selfIndex,
					Round:      r.Round,
					Favor:      true,
				}, timestamp)...)
			case ResponseBroadcastPrevote:
				next = append(next, progressEvent(e.state, ConsensusEvent{
					Kind:         EventPrevote,
					VoteProposal: r.VoteProposal,
					Signer:       *selfIndex,
					Round:        r.Round,
				}, timestamp)...)
			case ResponseBroadcastPrecommit:
				next = append(next, progressEvent(e.state, ConsensusEvent{
					Kind:         EventPrecommit,
					VoteProposal: r.VoteProposal,
					Signer:       *selfIndex,
					Round:        r.Round,
				}, timestamp)...)
			}
		}
		if len(next) == 0 {
			break
		}
		finalResponses = append(finalResponses, next...)
		responses = next
	}
	return finalResponses
}
