package reserved

import (
	"testing"

	"github.com/fedchain/node/pkg/crypto"
)

type testMember struct {
	name string
	sk   crypto.PrivateKey
	pk   crypto.PublicKey
}

func makeMembers(t *testing.T, names ...string) []testMember {
	t.Helper()
	members := make([]testMember, len(names))
	for i, n := range names {
		sk, pk, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair: %v", err)
		}
		members[i] = testMember{name: n, sk: sk, pk: pk}
	}
	return members
}

func baseState(t *testing.T) ([]testMember, State) {
	t.Helper()
	tms := makeMembers(t, "alice", "bob", "carol", "dave")
	members := make([]Member, len(tms))
	for i, tm := range tms {
		members[i] = Member{
			PublicKey:             tm.pk,
			Name:                  tm.name,
			GovernanceVotingPower: 1,
			ConsensusVotingPower:  1,
		}
	}
	st := State{
		GenesisInfo:          GenesisInfo{Name: "fed-test", Timestamp: 1},
		Members:              members,
		ConsensusLeaderOrder: []string{"alice", "bob"},
		Version:              Version{Major: 1},
	}
	return tms, st
}

func TestValidateGenesisOK(t *testing.T) {
	_, st := baseState(t)
	if err := st.Validate(nil, true); err != nil {
		t.Fatalf("Validate genesis: %v", err)
	}
}

func TestValidateRejectsTooFewMembers(t *testing.T) {
	tms := makeMembers(t, "a", "b", "c")
	members := make([]Member, len(tms))
	for i, tm := range tms {
		members[i] = Member{PublicKey: tm.pk, Name: tm.name, ConsensusVotingPower: 1}
	}
	st := State{Members: members, ConsensusLeaderOrder: []string{"a", "b"}}
	if err := st.Validate(nil, true); err == nil {
		t.Fatalf("expected error for <4 members")
	}
}

func TestValidateRejectsMemberShrink(t *testing.T) {
	_, st := baseState(t)
	next := st.clone()
	next.Members = next.Members[:3]
	next.Version = Version{Major: 2}
	if err := next.Validate(&st, false); err == nil {
		t.Fatalf("expected error for member-set shrink")
	}
}

func TestValidateRequiresVersionIncrease(t *testing.T) {
	_, st := baseState(t)
	next := st.clone()
	if err := next.Validate(&st, false); err == nil {
		t.Fatalf("expected error for non-increasing version")
	}
}

func TestGetValidatorSetEqualPower(t *testing.T) {
	_, st := baseState(t)
	set := st.GetValidatorSet()
	if len(set) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(set))
	}
	for _, e := range set {
		if e.VotingPower != 1 {
			t.Errorf("expected voting power 1, got %d", e.VotingPower)
		}
	}
}

func TestApplyDelegateMovesVotingPower(t *testing.T) {
	tms, st := baseState(t)
	delegatee := "dave"
	data := DelegationData{Delegator: "alice", Delegatee: &delegatee, Governance: false, BlockHeight: 1, Timestamp: 1, ChainName: "fed-test"}
	sig, err := crypto.SignTyped[DelegationData](data, tms[0].sk)
	if err != nil {
		t.Fatalf("SignTyped: %v", err)
	}
	next, err := st.ApplyDelegate(DelegateTransaction{Data: data, Proof: sig})
	if err != nil {
		t.Fatalf("ApplyDelegate: %v", err)
	}

	set := next.GetValidatorSet()
	if len(set) != 3 {
		t.Fatalf("expected 3 entries after delegation, got %d", len(set))
	}
	var found bool
	for _, e := range set {
		if e.PublicKey == tms[3].pk {
			found = true
			if e.VotingPower != 2 {
				t.Errorf("expected dave's voting power = 2, got %d", e.VotingPower)
			}
		}
	}
	if !found {
		t.Fatalf("dave's key missing from validator set")
	}
}

func TestApplyDelegateRejectsSelfDelegation(t *testing.T) {
	tms, st := baseState(t)
	self := "alice"
	data := DelegationData{Delegator: "alice", Delegatee: &self}
	sig, _ := crypto.SignTyped[DelegationData](data, tms[0].sk)
	if _, err := st.ApplyDelegate(DelegateTransaction{Data: data, Proof: sig}); err == nil {
		t.Fatalf("expected error for self-delegation")
	}
}

func TestApplyDelegateThenUndelegateRestoresState(t *testing.T) {
	tms, st := baseState(t)
	delegatee := "dave"
	data := DelegationData{Delegator: "alice", Delegatee: &delegatee}
	sig, _ := crypto.SignTyped[DelegationData](data, tms[0].sk)
	delegated, err := st.ApplyDelegate(DelegateTransaction{Data: data, Proof: sig})
	if err != nil {
		t.Fatalf("ApplyDelegate: %v", err)
	}

	undoData := DelegationData{Delegator: "alice"}
	undoSig, _ := crypto.SignTyped[DelegationData](undoData, tms[0].sk)
	restored, err := delegated.ApplyUndelegate(UndelegateTransaction{Data: undoData, Proof: undoSig})
	if err != nil {
		t.Fatalf("ApplyUndelegate: %v", err)
	}

	idx := restored.indexByName("alice")
	if restored.Members[idx].ConsensusDelegatee != nil || restored.Members[idx].GovernanceDelegatee != nil {
		t.Fatalf("expected both delegatee fields cleared after undelegate")
	}
}

func TestApplyUndelegateRejectsNoActiveDelegation(t *testing.T) {
	tms, st := baseState(t)
	data := DelegationData{Delegator: "alice"}
	sig, _ := crypto.SignTyped[DelegationData](data, tms[0].sk)
	if _, err := st.ApplyUndelegate(UndelegateTransaction{Data: data, Proof: sig}); err == nil {
		t.Fatalf("expected error undelegating a member with no delegation")
	}
}

func TestResolveDelegateeTransitiveChain(t *testing.T) {
	tms := makeMembers(t, "a", "b", "c", "d")
	bName, cName := "b", "c"
	members := []Member{
		{PublicKey: tms[0].pk, Name: "a", ConsensusVotingPower: 1, ConsensusDelegatee: &bName},
		{PublicKey: tms[1].pk, Name: "b", ConsensusVotingPower: 1, ConsensusDelegatee: &cName},
		{PublicKey: tms[2].pk, Name: "c", ConsensusVotingPower: 1},
		{PublicKey: tms[3].pk, Name: "d", ConsensusVotingPower: 1},
	}
	st := State{Members: members, ConsensusLeaderOrder: []string{"c", "d"}}

	set := st.GetValidatorSet()
	totalForC := uint64(0)
	for _, e := range set {
		if e.PublicKey == tms[2].pk {
			totalForC = e.VotingPower
		}
	}
	if totalForC != 3 {
		t.Errorf("expected c to accumulate 3 voting power transitively, got %d", totalForC)
	}
}

func TestResolveDelegateeCycleTerminates(t *testing.T) {
	tms := makeMembers(t, "a", "b")
	bName, aName := "b", "a"
	members := []Member{
		{PublicKey: tms[0].pk, Name: "a", ConsensusVotingPower: 1, ConsensusDelegatee: &bName},
		{PublicKey: tms[1].pk, Name: "b", ConsensusVotingPower: 1, ConsensusDelegatee: &aName},
	}
	st := State{Members: members, ConsensusLeaderOrder: []string{"a", "b"}}

	// Must terminate (no infinite loop) even though a->b->a is cyclic.
	_ = st.GetValidatorSet()
}
