package main

import (
	"fmt"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"

	"github.com/fedchain/node/pkg/bridge"
	"github.com/fedchain/node/pkg/canon"
	"github.com/fedchain/node/pkg/commit"
	"github.com/fedchain/node/pkg/config"
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/csv"
	"github.com/fedchain/node/pkg/finalization"
	"github.com/fedchain/node/pkg/reserved"
	"github.com/fedchain/node/pkg/storage"
)

func nowMilli() int64 { return time.Now().UnixMilli() }

// demoMemberCount is the smallest federation the reserved-state
// invariants allow.
const demoMemberCount = 4

// newDemoNode generates an in-process federation and holds every member's
// key, standing in for network-delivered votes so a single process can
// finalize blocks end-to-end. Storage is the in-memory blob store.
func newDemoNode(cfg *config.Config, logger cmtlog.Logger, checkpointer *storage.Checkpointer) (*node, error) {
	now := nowMilli()
	federation := make(map[crypto.PublicKey]crypto.PrivateKey, demoMemberCount)
	members := make([]reserved.Member, demoMemberCount)
	leaderOrder := make([]string, demoMemberCount)
	for i := 0; i < demoMemberCount; i++ {
		sk, pk, err := crypto.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		federation[pk] = sk
		name := fmt.Sprintf("member-%d", i)
		members[i] = reserved.Member{
			PublicKey:             pk,
			Name:                  name,
			GovernanceVotingPower: 1,
			ConsensusVotingPower:  1,
		}
		leaderOrder[i] = name
	}

	rs := reserved.State{
		GenesisInfo:          reserved.GenesisInfo{Name: "fedchain-demo", Timestamp: now},
		Members:              members,
		ConsensusLeaderOrder: leaderOrder,
		Version:              reserved.Version{Major: 1},
	}
	if err := rs.Validate(nil, true); err != nil {
		return nil, err
	}

	header := genesisHeader(rs)
	n := &node{
		cfg:          cfg,
		logger:       logger,
		checkpointer: checkpointer,
		verifier:     csv.New(header, rs),
		federation:   federation,
	}

	proposer := header.ValidatorSet[0].PublicKey
	proposerKey := federation[proposer]
	n.thisNodeKey = &proposer
	n.privateKey = &proposerKey

	// Genesis finalization ceremony: every member signs the genesis
	// header so the first real block can chain onto it.
	gp, err := n.signFinalization(header.CanonicalHash(), 0)
	if err != nil {
		return nil, err
	}
	n.lastProof = gp.ToRef()

	n.rebuildBridge(now)
	logger.Info("demo federation generated", "members", demoMemberCount, "proposer", proposer.Hex()[:16])
	return n, nil
}

// signFinalization has every federation member in the current validator
// set sign the finalization target — demo mode only.
func (n *node) signFinalization(blockHash crypto.Hash256, round uint64) (finalization.Proof, error) {
	target := finalization.SignTarget{BlockHash: blockHash, Round: round}
	var sigs []crypto.TypedSignature[finalization.SignTarget]
	for _, v := range n.verifier.GetHeader().ValidatorSet {
		sk, ok := n.federation[v.PublicKey]
		if !ok {
			continue
		}
		ts, err := crypto.SignTyped[finalization.SignTarget](target, sk)
		if err != nil {
			return finalization.Proof{}, err
		}
		sigs = append(sigs, ts)
	}
	return finalization.Proof{Round: round, Signatures: sigs}, nil
}

// runDemo finalizes the requested number of heights, each through the
// full agenda → agenda-proof → block → consensus → finalization cycle.
func (n *node) runDemo(heights int, health *healthStatus) error {
	interval := time.Duration(n.cfg.DriveIntervalMS) * time.Millisecond
	for i := 0; i < heights; i++ {
		corrID := uuid.NewString()[:8]
		started := time.Now()
		if err := n.runDemoHeight(corrID); err != nil {
			health.SetStatus("error")
			return fmt.Errorf("height %d (corr=%s): %w", n.verifier.GetHeader().Height+1, corrID, err)
		}
		h := n.verifier.GetHeader().Height
		finalizations.Inc()
		finalizationSeconds.Observe(time.Since(started).Seconds())
		currentHeight.Set(float64(h))
		health.SetHeight(h)
		health.SetStatus("ok")
		n.logger.Info("height finalized", "corr", corrID, "height", h,
			"block", n.verifier.GetHeader().CanonicalHash().Hex()[:16],
			"elapsed", time.Since(started).String())
		time.Sleep(interval)
	}
	return nil
}

// runDemoHeight drives one complete height: an empty agenda, a
// governance proof signed by every member, a block proposal through the
// bridge, and the prevote/precommit rounds that finalize it.
func (n *node) runDemoHeight(corrID string) error {
	now := nowMilli()
	parent := n.verifier.GetHeader()
	rs := n.verifier.GetReservedState()

	proposerName, _ := rs.QueryName(*n.thisNodeKey)

	// 1. Agenda over the (empty) transaction list.
	var txs []commit.Transaction
	agenda := commit.Agenda{
		Height:            parent.Height + 1,
		Author:            proposerName,
		Timestamp:         now,
		TransactionsHash:  crypto.HashBytes(canon.JSON(txs)),
		PreviousBlockHash: parent.CanonicalHash(),
	}
	agendaCommit := commit.Commit{Kind: commit.KindAgenda, Agenda: &agenda}
	if err := n.applyAndCheckpoint(agendaCommit); err != nil {
		return fmt.Errorf("agenda rejected: %w", err)
	}

	// 2. Agenda proof ratified by the whole governance set.
	var proofSigs []crypto.TypedSignature[commit.Agenda]
	for _, m := range rs.Members {
		sk, ok := n.federation[m.PublicKey]
		if !ok {
			continue
		}
		ts, err := crypto.SignTyped[commit.Agenda](agenda, sk)
		if err != nil {
			return err
		}
		proofSigs = append(proofSigs, ts)
	}
	agendaProof := commit.AgendaProof{
		Height:     agenda.Height,
		AgendaHash: agenda.CanonicalHash(),
		Proof:      proofSigs,
		Timestamp:  now,
	}
	proofCommit := commit.Commit{Kind: commit.KindAgendaProof, AgendaProof: &agendaProof}
	if err := n.applyAndCheckpoint(proofCommit); err != nil {
		return fmt.Errorf("agenda proof rejected: %w", err)
	}

	// 3. Candidate block over the commits accumulated this height.
	header := commit.BlockHeader{
		Author:                     *n.thisNodeKey,
		PrevBlockFinalizationProof: n.lastProof,
		PreviousHash:               parent.CanonicalHash(),
		Height:                     parent.Height + 1,
		Timestamp:                  now,
		CommitMerkleRoot:           commit.CalculateCommitMerkleRoot([]commit.Commit{agendaCommit, proofCommit}),
		ValidatorSet:               rs.GetValidatorSet(),
		Version:                    rs.Version,
	}
	blockHash := header.CanonicalHash()

	// 4. Consensus: register the CSV-accepted candidate, propose it, and
	// stand in for every other validator's votes.
	if err := n.bridge.RegisterVerifiedBlockHash(blockHash); err != nil {
		return err
	}
	if err := n.bridge.SetProposalCandidate(blockHash, now); err != nil {
		return err
	}
	if err := n.progressAndLog(corrID, now); err != nil {
		return err
	}

	var prevotes []bridge.SignedMessage
	for _, v := range parent.ValidatorSet {
		if v.PublicKey == *n.thisNodeKey {
			continue
		}
		prevotes = append(prevotes, bridge.SignedMessage{
			Message: bridge.ConsensusMessage{Kind: bridge.MessageNonNilPrevoted, Round: 0, BlockHash: blockHash},
			Signer:  v.PublicKey,
		})
	}
	if err := n.bridge.AddConsensusMessages(prevotes, now); err != nil {
		return err
	}
	if err := n.progressAndLog(corrID, now); err != nil {
		return err
	}

	target := finalization.SignTarget{BlockHash: blockHash, Round: 0}
	var precommits []bridge.SignedMessage
	for _, v := range parent.ValidatorSet {
		if v.PublicKey == *n.thisNodeKey {
			continue
		}
		sig, err := crypto.SignTyped[finalization.SignTarget](target, n.federation[v.PublicKey])
		if err != nil {
			return err
		}
		precommits = append(precommits, bridge.SignedMessage{
			Message:      bridge.ConsensusMessage{Kind: bridge.MessageNonNilPrecommitted, Round: 0, BlockHash: blockHash},
			Signer:       v.PublicKey,
			PrecommitSig: &sig,
		})
	}
	if err := n.bridge.AddConsensusMessages(precommits, now); err != nil {
		return err
	}
	if err := n.progressAndLog(corrID, now); err != nil {
		return err
	}

	fin := n.bridge.CheckFinalized()
	if fin == nil {
		return fmt.Errorf("consensus did not finalize candidate %s", blockHash.Hex()[:16])
	}
	if fin.BlockHash != blockHash {
		return fmt.Errorf("consensus finalized %s, expected %s", fin.BlockHash.Hex()[:16], blockHash.Hex()[:16])
	}

	// 5. The finalized block extends the chain; rebuild consensus for the
	// next height.
	blockCommit := commit.Commit{Kind: commit.KindBlock, Block: &header}
	if err := n.applyAndCheckpoint(blockCommit); err != nil {
		return fmt.Errorf("finalized block rejected by CSV: %w", err)
	}
	n.lastProof = fin.Proof.ToRef()
	n.rebuildBridge(nowMilli())
	return nil
}

// progressAndLog drains the bridge once and logs every result and
// would-be gossip message; in this single-process setting the messages
// have no peers to go to.
func (n *node) progressAndLog(corrID string, now int64) error {
	results, err := n.bridge.Progress(now)
	if err != nil {
		return err
	}
	for _, r := range results {
		currentRound.Set(float64(r.Round))
		n.logger.Debug("consensus progress", "corr", corrID, "result", resultLabel(r.Kind), "round", r.Round)
	}
	for _, m := range n.bridge.DrainMessagesToBroadcast() {
		n.logger.Debug("would broadcast", "corr", corrID, "kind", int(m.Kind), "round", m.Round)
	}
	return nil
}

func resultLabel(k bridge.ResultKind) string {
	switch k {
	case bridge.ResultProposed:
		return "proposed"
	case bridge.ResultNonNilPrevoted:
		return "prevoted"
	case bridge.ResultNilPrevoted:
		return "prevoted-nil"
	case bridge.ResultNonNilPrecommitted:
		return "precommitted"
	case bridge.ResultNilPrecommitted:
		return "precommitted-nil"
	case bridge.ResultFinalized:
		return "finalized"
	case bridge.ResultViolationReported:
		return "violation"
	default:
		return "unknown"
	}
}

// runIdle is the non-demo driver: with peer networking out of scope, the
// node keeps its consensus timer ticking (level-triggered, so missed
// ticks are harmless) until the operator signals shutdown, which main
// handles. It reports problems through the health endpoint rather than
// failing.
func (n *node) runIdle(health *healthStatus) error {
	interval := time.Duration(n.cfg.DriveIntervalMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	corrID := uuid.NewString()[:8]
	health.SetStatus("ok")
	for range ticker.C {
		if err := n.progressAndLog(corrID, nowMilli()); err != nil {
			health.SetStatus("degraded")
			n.logger.Error("consensus timer tick failed", "corr", corrID, "err", err)
			continue
		}
		if fin := n.bridge.CheckFinalized(); fin != nil {
			n.logger.Info("height finalized by peers", "corr", corrID, "block", fin.BlockHash.Hex()[:16])
		}
	}
	return nil
}
