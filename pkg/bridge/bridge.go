package bridge

import (
	"fmt"

	"github.com/fedchain/node/pkg/commit"
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/errs"
	"github.com/fedchain/node/pkg/finalization"
	"github.com/fedchain/node/pkg/vetomint"
)

// New builds a Bridge (and its underlying Vetomint engine) for the height
// that follows header. thisNodeKey is nil for a non-validating observer.
func New(header commit.BlockHeader, params vetomint.ConsensusParams, roundZeroTimestamp int64, thisNodeKey *crypto.PublicKey) *Bridge {
	validators := make([]vetomint.VotingPower, len(header.ValidatorSet))
	var thisNodeIndex *vetomint.ValidatorIndex
	for i, v := range header.ValidatorSet {
		validators[i] = v.VotingPower
		if thisNodeKey != nil && v.PublicKey == *thisNodeKey {
			idx := i
			thisNodeIndex = &idx
		}
	}
	hi := vetomint.HeightInfo{
		Validators:            validators,
		ThisNodeIndex:         thisNodeIndex,
		Timestamp:             roundZeroTimestamp,
		ConsensusParams:       params,
		InitialBlockCandidate: 0,
	}

	return &Bridge{
		engine:            vetomint.New(hi),
		header:            header,
		hashToIndex:       make(map[crypto.Hash256]vetomint.BlockIdentifier),
		indexToHash:       make(map[vetomint.BlockIdentifier]crypto.Hash256),
		vetoedBlockHashes: make(map[crypto.Hash256]bool),
		toBeProcessed:     []scheduledEvent{{event: vetomint.ConsensusEvent{Kind: vetomint.EventStart}, timestamp: roundZeroTimestamp}},
		precommits:        make(map[precommitKey][]crypto.TypedSignature[finalization.SignTarget]),
	}
}

// BlockHeader returns the block header this bridge's height follows.
func (b *Bridge) BlockHeader() commit.BlockHeader { return b.header }

// CheckFinalized reports the finalized block, if this height has reached
// one.
func (b *Bridge) CheckFinalized() *Finalization { return b.finalized }

// RegisterVerifiedBlockHash assigns h a BlockIdentifier, if it does not
// already have one. Only registered hashes may be proposed or voted on.
func (b *Bridge) RegisterVerifiedBlockHash(h crypto.Hash256) error {
	if err := b.assertNotFinalized(); err != nil {
		return err
	}
	if _, ok := b.hashToIndex[h]; ok {
		return nil
	}
	idx := b.blockIdentifierCount
	b.hashToIndex[h] = idx
	b.indexToHash[idx] = h
	b.blockIdentifierCount++
	return nil
}

// SetProposalCandidate updates the local block candidate this node wants
// to propose, once it becomes the round's leader.
func (b *Bridge) SetProposalCandidate(h crypto.Hash256, timestamp int64) error {
	if err := b.assertNotFinalized(); err != nil {
		return err
	}
	idx, err := b.getBlockIndex(h)
	if err != nil {
		return err
	}
	b.schedule(vetomint.ConsensusEvent{Kind: vetomint.EventBlockCandidateUpdated, Proposal: idx}, timestamp)
	return nil
}

// VetoBlock marks h as valid-but-unwanted: future proposals of h are
// received as unfavored, so this node prevotes nil on them (unless it is
// already locked on h) even though they are not rejected outright. Its
// precommits still follow the prevote thresholds.
func (b *Bridge) VetoBlock(h crypto.Hash256) error {
	if err := b.assertNotFinalized(); err != nil {
		return err
	}
	b.vetoedBlockHashes[h] = true
	return nil
}

// VetoRound forces round progression regardless of any proposal.
func (b *Bridge) VetoRound(round uint64, timestamp int64) error {
	if err := b.assertNotFinalized(); err != nil {
		return err
	}
	b.schedule(vetomint.ConsensusEvent{Kind: vetomint.EventSkipRound, Round: int(round)}, timestamp)
	return nil
}

// AddConsensusMessages admits inbound gossip messages, converting each
// into a Vetomint event and, for precommit messages, verifying and
// accumulating their finalization signature.
func (b *Bridge) AddConsensusMessages(msgs []SignedMessage, timestamp int64) error {
	if err := b.assertNotFinalized(); err != nil {
		return err
	}
	for _, m := range msgs {
		if !b.isMessageAcceptable(m.Message) {
			continue
		}
		signerIdx, err := b.getValidatorIndex(m.Signer)
		if err != nil {
			return err
		}
		event, err := b.convertMessageToEvent(m.Message, signerIdx)
		if err != nil {
			return err
		}
		b.schedule(event, timestamp)

		if m.Message.Kind == MessageNonNilPrecommitted {
			if m.PrecommitSig == nil {
				return errs.New(errs.KindInvalidArgument, "NonNilPrecommitted message missing its finalization signature")
			}
			if m.PrecommitSig.Signer != m.Signer {
				return errs.New(errs.KindInvalidArgument, "precommit signature signer does not match message signer")
			}
			target := finalization.SignTarget{BlockHash: m.Message.BlockHash, Round: m.Message.Round}
			if err := m.PrecommitSig.Verify(target); err != nil {
				return errs.Wrap(errs.KindCryptoError, err, "precommit signature failed to verify")
			}
			key := precommitKey{blockHash: m.Message.BlockHash, round: m.Message.Round}
			b.precommits[key] = append(b.precommits[key], *m.PrecommitSig)
		}
	}
	return nil
}

// Progress drains every pending event (appending a fresh Timer tick at
// timestamp) through the Vetomint engine, translating each response into
// a ProgressResult and, where applicable, a message queued for broadcast.
func (b *Bridge) Progress(timestamp int64) ([]ProgressResult, error) {
	if err := b.assertNotFinalized(); err != nil {
		return nil, err
	}
	b.schedule(vetomint.ConsensusEvent{Kind: vetomint.EventTimer}, timestamp)

	var results []ProgressResult
	for len(b.toBeProcessed) > 0 {
		next := b.toBeProcessed[0]
		b.toBeProcessed = b.toBeProcessed[1:]

		responses := b.engine.Progress(next.event, next.timestamp)
		for _, r := range responses {
			result, msg, err := b.processResponse(r, next.timestamp)
			if err != nil {
				return results, err
			}
			results = append(results, result)
			if msg != nil {
				b.messagesToBroadcast = append(b.messagesToBroadcast, *msg)
			}
		}
	}
	return results, nil
}

// DrainMessagesToBroadcast returns and clears every message queued for
// gossip since the last call.
func (b *Bridge) DrainMessagesToBroadcast() []ConsensusMessage {
	out := b.messagesToBroadcast
	b.messagesToBroadcast = nil
	return out
}

func (b *Bridge) schedule(event vetomint.ConsensusEvent, timestamp int64) {
	b.toBeProcessed = append(b.toBeProcessed, scheduledEvent{event: event, timestamp: timestamp})
}

func (b *Bridge) assertNotFinalized() error {
	if b.finalized != nil {
		return errs.New(errs.KindInvalidArgument, "bridge operation attempted after this height already finalized")
	}
	return nil
}

func (b *Bridge) getBlockIndex(h crypto.Hash256) (vetomint.BlockIdentifier, error) {
	idx, ok := b.hashToIndex[h]
	if !ok {
		return 0, errs.New(errs.KindNotFound, "block hash not verified yet")
	}
	return idx, nil
}

func (b *Bridge) getValidatorIndex(pk crypto.PublicKey) (vetomint.ValidatorIndex, error) {
	for i, v := range b.header.ValidatorSet {
		if v.PublicKey == pk {
			return i, nil
		}
	}
	return 0, errs.New(errs.KindNotFound, "signer is not a member of this height's validator set")
}

func (b *Bridge) isMessageAcceptable(msg ConsensusMessage) bool {
	switch msg.Kind {
	case MessageProposal, MessageNonNilPrevoted, MessageNonNilPrecommitted:
		_, ok := b.hashToIndex[msg.BlockHash]
		return ok
	default:
		return true
	}
}

func (b *Bridge) convertMessageToEvent(msg ConsensusMessage, signer vetomint.ValidatorIndex) (vetomint.ConsensusEvent, error) {
	switch msg.Kind {
	case MessageProposal:
		idx, err := b.getBlockIndex(msg.BlockHash)
		if err != nil {
			return vetomint.ConsensusEvent{}, err
		}
		var vr *vetomint.Round
		if msg.ValidRound != nil {
			r := int(*msg.ValidRound)
			vr = &r
		}
		return vetomint.ConsensusEvent{
			Kind:       vetomint.EventBlockProposalReceived,
			Proposal:   idx,
			Valid:      true,
			ValidRound: vr,
			Proposer:   signer,
			Round:      int(msg.Round),
			Favor:      !b.vetoedBlockHashes[msg.BlockHash],
		}, nil
	case MessageNonNilPrevoted:
		idx, err := b.getBlockIndex(msg.BlockHash)
		if err != nil {
			return vetomint.ConsensusEvent{}, err
		}
		return vetomint.ConsensusEvent{Kind: vetomint.EventPrevote, VoteProposal: &idx, Signer: signer, Round: int(msg.Round)}, nil
	case MessageNonNilPrecommitted:
		idx, err := b.getBlockIndex(msg.BlockHash)
		if err != nil {
			return vetomint.ConsensusEvent{}, err
		}
		return vetomint.ConsensusEvent{Kind: vetomint.EventPrecommit, VoteProposal: &idx, Signer: signer, Round: int(msg.Round)}, nil
	case MessageNilPrevoted:
		return vetomint.ConsensusEvent{Kind: vetomint.EventPrevote, VoteProposal: nil, Signer: signer, Round: int(msg.Round)}, nil
	case MessageNilPrecommitted:
		return vetomint.ConsensusEvent{Kind: vetomint.EventPrecommit, VoteProposal: nil, Signer: signer, Round: int(msg.Round)}, nil
	default:
		return vetomint.ConsensusEvent{}, errs.Newf(errs.KindInvalidArgument, "unknown consensus message kind %d", msg.Kind)
	}
}

func (b *Bridge) processResponse(r vetomint.ConsensusResponse, timestamp int64) (ProgressResult, *ConsensusMessage, error) {
	switch r.Kind {
	case vetomint.ResponseBroadcastProposal:
		bh, ok := b.indexToHash[r.Proposal]
		if !ok {
			return ProgressResult{}, nil, errs.New(errs.KindIntegrityError, "proposed block identifier has no registered hash")
		}
		var vr *uint64
		if r.ValidRound != nil {
			v := uint64(*r.ValidRound)
			vr = &v
		}
		msg := ConsensusMessage{Kind: MessageProposal, Round: uint64(r.Round), ValidRound: vr, BlockHash: bh}
		return ProgressResult{Kind: ResultProposed, Round: uint64(r.Round), BlockHash: bh, Timestamp: timestamp}, &msg, nil

	case vetomint.ResponseBroadcastPrevote:
		if r.VoteProposal != nil {
			bh, ok := b.indexToHash[*r.VoteProposal]
			if !ok {
				return ProgressResult{}, nil, errs.New(errs.KindIntegrityError, "prevoted block identifier has no registered hash")
			}
			msg := ConsensusMessage{Kind: MessageNonNilPrevoted, Round: uint64(r.Round), BlockHash: bh}
			return ProgressResult{Kind: ResultNonNilPrevoted, Round: uint64(r.Round), BlockHash: bh, Timestamp: timestamp}, &msg, nil
		}
		msg := ConsensusMessage{Kind: MessageNilPrevoted, Round: uint64(r.Round)}
		return ProgressResult{Kind: ResultNilPrevoted, Round: uint64(r.Round), Timestamp: timestamp}, &msg, nil

	case vetomint.ResponseBroadcastPrecommit:
		if r.VoteProposal != nil {
			bh, ok := b.indexToHash[*r.VoteProposal]
			if !ok {
				return ProgressResult{}, nil, errs.New(errs.KindIntegrityError, "precommitted block identifier has no registered hash")
			}
			msg := ConsensusMessage{Kind: MessageNonNilPrecommitted, Round: uint64(r.Round), BlockHash: bh}
			return ProgressResult{Kind: ResultNonNilPrecommitted, Round: uint64(r.Round), BlockHash: bh, Timestamp: timestamp}, &msg, nil
		}
		msg := ConsensusMessage{Kind: MessageNilPrecommitted, Round: uint64(r.Round)}
		return ProgressResult{Kind: ResultNilPrecommitted, Round: uint64(r.Round), Timestamp: timestamp}, &msg, nil

	case vetomint.ResponseFinalizeBlock:
		bh, ok := b.indexToHash[r.Proposal]
		if !ok {
			return ProgressResult{}, nil, errs.New(errs.KindIntegrityError, "finalized block identifier has no registered hash")
		}
		round := uint64(r.Round)
		sigs := b.precommits[precommitKey{blockHash: bh, round: round}]
		fin := Finalization{
			BlockHash: bh,
			Timestamp: timestamp,
			Proof:     finalization.Proof{Round: round, Signatures: sigs},
		}
		b.finalized = &fin
		return ProgressResult{Kind: ResultFinalized, Finalization: fin, Timestamp: timestamp}, nil, nil

	case vetomint.ResponseViolationReport:
		if r.Violator < 0 || r.Violator >= len(b.header.ValidatorSet) {
			return ProgressResult{}, nil, errs.New(errs.KindIntegrityError, "violator index out of range for this height's validator set")
		}
		return ProgressResult{
			Kind:        ResultViolationReported,
			Violator:    b.header.ValidatorSet[r.Violator].PublicKey,
			Misbehavior: describeMisbehavior(r.Misbehavior),
			Timestamp:   timestamp,
		}, nil, nil

	default:
		return ProgressResult{}, nil, errs.Newf(errs.KindInvalidArgument, "unknown consensus response kind %d", r.Kind)
	}
}

func describeMisbehavior(m vetomint.Misbehavior) string {
	switch m.Kind {
	case vetomint.MisbehaviorDoubleProposal:
		return fmt.Sprintf("double proposal by validator %d in round %d: %v", m.ByzantineNode, m.Round, m.Proposals)
	case vetomint.MisbehaviorDoublePrevote:
		return fmt.Sprintf("double prevote by validator %d in round %d", m.ByzantineNode, m.Round)
	case vetomint.MisbehaviorDoublePrecommit:
		return fmt.Sprintf("double precommit by validator %d in round %d", m.ByzantineNode, m.Round)
	case vetomint.MisbehaviorInvalidProposal:
		return fmt.Sprintf("invalid proposal %d by validator %d in round %d", m.Proposal, m.ByzantineNode, m.Round)
	case vetomint.MisbehaviorInvalidPrevote:
		return fmt.Sprintf("invalid prevote %d by validator %d in round %d", m.Proposal, m.ByzantineNode, m.Round)
	case vetomint.MisbehaviorInvalidPrecommit:
		return fmt.Sprintf("invalid precommit %d by validator %d in round %d", m.Proposal, m.ByzantineNode, m.Round)
	default:
		return "unknown misbehavior"
	}
}
