package reserved

import (
	"reflect"
	"sort"

	"github.com/fedchain/node/pkg/canon"
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/errs"
)

// State is the authoritative on-chain registry of members, delegations,
// leader order, and protocol version.
type State struct {
	GenesisInfo         GenesisInfo `json:"genesis_info"`
	Members             []Member    `json:"members"`
	ConsensusLeaderOrder []string   `json:"consensus_leader_order"`
	Version             Version     `json:"version"`
}

// CanonicalHash implements crypto.Hasher.
func (s State) CanonicalHash() crypto.Hash256 {
	return crypto.HashBytes(canon.JSON(s))
}

// indexByName returns the index of the member named name, or -1.
func (s *State) indexByName(name string) int {
	for i := range s.Members {
		if s.Members[i].Name == name {
			return i
		}
	}
	return -1
}

// QueryName returns the member name owning pk, if any.
func (s *State) QueryName(pk crypto.PublicKey) (string, bool) {
	for _, m := range s.Members {
		if m.PublicKey == pk {
			return m.Name, true
		}
	}
	return "", false
}

// QueryPublicKey returns the public key of the member named name, if any.
func (s *State) QueryPublicKey(name string) (crypto.PublicKey, bool) {
	for _, m := range s.Members {
		if m.Name == name {
			return m.PublicKey, true
		}
	}
	return crypto.PublicKey{}, false
}

// resolveDelegatee walks the named delegation graph transitively, bounded
// by the member count to guarantee termination on a cycle. consensus
// selects whether the consensus or governance delegatee field is walked.
func (s *State) resolveDelegatee(name string, consensus bool) string {
	seen := make(map[string]bool, len(s.Members))
	cur := name
	for i := 0; i < len(s.Members); i++ {
		if seen[cur] {
			// Cycle detected; resolve to the name that repeats, where
			// the cycle closes, rather than propagating further.
			return cur
		}
		seen[cur] = true

		idx := s.indexByName(cur)
		if idx < 0 {
			return cur
		}
		m := s.Members[idx]
		var next *string
		if consensus {
			next = m.ConsensusDelegatee
		} else {
			next = m.GovernanceDelegatee
		}
		if next == nil {
			return cur
		}
		cur = *next
	}
	return cur
}

// votingSet walks every member, resolves its delegatee (transitively,
// name-bounded), and accumulates voting power onto the ultimate key,
// returning a deterministic, stably sorted slice.
func (s *State) votingSet(consensus bool) []VotingPowerEntry {
	totals := make(map[crypto.PublicKey]uint64)
	var order []crypto.PublicKey

	for _, m := range s.Members {
		if m.Expelled {
			continue
		}
		power := m.ConsensusVotingPower
		if !consensus {
			power = m.GovernanceVotingPower
		}
		if power == 0 {
			continue
		}
		ultimate := s.resolveDelegatee(m.Name, consensus)
		pk, ok := s.QueryPublicKey(ultimate)
		if !ok {
			// Delegatee name vanished from the roster; fall back to the
			// member's own key rather than dropping their power.
			pk = m.PublicKey
		}
		if _, exists := totals[pk]; !exists {
			order = append(order, pk)
		}
		totals[pk] += power
	}

	sort.Slice(order, func(i, j int) bool {
		return order[i].Hex() < order[j].Hex()
	})

	entries := make([]VotingPowerEntry, len(order))
	for i, pk := range order {
		entries[i] = VotingPowerEntry{PublicKey: pk, VotingPower: totals[pk]}
	}
	return entries
}

// GetValidatorSet returns the derived consensus validator set.
func (s *State) GetValidatorSet() []VotingPowerEntry {
	return s.votingSet(true)
}

// GetGovernanceSet returns the derived governance set.
func (s *State) GetGovernanceSet() []VotingPowerEntry {
	return s.votingSet(false)
}

// ApplyDelegate applies a delegate transaction, returning the resulting
// state (the receiver is not mutated in place; callers replace their
// reserved state with the result).
func (s State) ApplyDelegate(tx DelegateTransaction) (State, error) {
	if tx.Data.Delegatee == nil {
		return State{}, errs.New(errs.KindInvalidArgument, "delegate transaction missing delegatee")
	}
	if tx.Data.Delegator == *tx.Data.Delegatee {
		return State{}, errs.New(errs.KindInvalidArgument, "delegator cannot delegate to itself")
	}
	if err := tx.Proof.Verify(tx.Data); err != nil {
		return State{}, errs.Wrap(errs.KindCryptoError, err, "delegate proof verification failed")
	}

	next := s.clone()
	idx := next.indexByName(tx.Data.Delegator)
	if idx < 0 {
		return State{}, errs.Newf(errs.KindInvalidArgument, "unknown delegator %q", tx.Data.Delegator)
	}
	delegatee := *tx.Data.Delegatee
	next.Members[idx].ConsensusDelegatee = &delegatee
	if tx.Data.Governance {
		next.Members[idx].GovernanceDelegatee = &delegatee
	}
	return next, nil
}

// ApplyUndelegate applies an undelegate transaction.
func (s State) ApplyUndelegate(tx UndelegateTransaction) (State, error) {
	if err := tx.Proof.Verify(tx.Data); err != nil {
		return State{}, errs.Wrap(errs.KindCryptoError, err, "undelegate proof verification failed")
	}

	next := s.clone()
	idx := next.indexByName(tx.Data.Delegator)
	if idx < 0 {
		return State{}, errs.Newf(errs.KindInvalidArgument, "unknown delegator %q", tx.Data.Delegator)
	}
	if next.Members[idx].ConsensusDelegatee == nil {
		return State{}, errs.Newf(errs.KindInvalidArgument, "%q has no active delegation to undelegate", tx.Data.Delegator)
	}
	next.Members[idx].ConsensusDelegatee = nil
	next.Members[idx].GovernanceDelegatee = nil
	return next, nil
}

func (s State) clone() State {
	members := make([]Member, len(s.Members))
	copy(members, s.Members)
	leaderOrder := make([]string, len(s.ConsensusLeaderOrder))
	copy(leaderOrder, s.ConsensusLeaderOrder)
	return State{
		GenesisInfo:          s.GenesisInfo,
		Members:              members,
		ConsensusLeaderOrder: leaderOrder,
		Version:              s.Version,
	}
}

// Validate enforces the reserved-state invariants against prev, the
// currently installed reserved state (prev may be nil only at genesis,
// signalled by genesisOK).
func (s *State) Validate(prev *State, genesisOK bool) error {
	if len(s.Members) < 4 {
		return errs.Newf(errs.KindInvalidArgument, "reserved state must have at least 4 members, got %d", len(s.Members))
	}

	seenNames := make(map[string]bool, len(s.Members))
	seenKeys := make(map[crypto.PublicKey]bool, len(s.Members))
	for _, m := range s.Members {
		if seenNames[m.Name] {
			return errs.Newf(errs.KindInvalidArgument, "duplicate member name %q", m.Name)
		}
		seenNames[m.Name] = true
		if seenKeys[m.PublicKey] {
			return errs.Newf(errs.KindInvalidArgument, "duplicate member public key for %q", m.Name)
		}
		seenKeys[m.PublicKey] = true
	}

	if len(s.ConsensusLeaderOrder) < 2 {
		return errs.New(errs.KindInvalidArgument, "consensus leader order must have at least 2 distinct entries")
	}
	distinct := make(map[string]bool, len(s.ConsensusLeaderOrder))
	for _, name := range s.ConsensusLeaderOrder {
		idx := s.indexByName(name)
		if idx < 0 {
			return errs.Newf(errs.KindInvalidArgument, "leader order references unknown member %q", name)
		}
		if s.Members[idx].Expelled {
			return errs.Newf(errs.KindInvalidArgument, "leader order references expelled member %q", name)
		}
		distinct[name] = true
	}
	if len(distinct) < 2 {
		return errs.New(errs.KindInvalidArgument, "consensus leader order must have at least 2 distinct entries")
	}

	if prev == nil {
		if !genesisOK {
			return errs.New(errs.KindInvalidArgument, "no prior reserved state and genesis not permitted here")
		}
		return nil
	}

	if !reflect.DeepEqual(s.GenesisInfo, prev.GenesisInfo) {
		return errs.New(errs.KindInvalidArgument, "genesis_info must not change after genesis")
	}
	for _, m := range prev.Members {
		if s.indexByName(m.Name) < 0 {
			return errs.Newf(errs.KindInvalidArgument, "member set must grow monotonically; %q is missing", m.Name)
		}
	}
	if !prev.Version.Less(s.Version) {
		return errs.New(errs.KindInvalidArgument, "version must monotonically increase")
	}
	return nil
}
