// Package reserved implements the reserved-state model (C2): the
// authoritative member/validator/governance registry, its delegation
// semantics, and the invariants the Commit-Sequence Verifier enforces on
// every candidate reserved-state mutation.
package reserved

import (
	"github.com/fedchain/node/pkg/canon"
	"github.com/fedchain/node/pkg/crypto"
)

// GenesisInfo is immutable after genesis per the reserved-state invariant.
type GenesisInfo struct {
	Name            string         `json:"name"`
	GenesisHeader   crypto.Hash256 `json:"genesis_header"`
	GenesisProofSig []byte         `json:"genesis_proof,omitempty"`
	Timestamp       int64          `json:"timestamp"`
}

// Member is a federation participant. Delegatees are member names,
// resolved by the reserved state, never stored as pointers. Once added a
// member is never removed; it can only be expelled.
type Member struct {
	PublicKey             crypto.PublicKey `json:"public_key"`
	Name                  string           `json:"name"`
	GovernanceVotingPower uint64           `json:"governance_voting_power"`
	ConsensusVotingPower  uint64           `json:"consensus_voting_power"`
	GovernanceDelegatee   *string          `json:"governance_delegatee,omitempty"`
	ConsensusDelegatee    *string          `json:"consensus_delegatee,omitempty"`
	Expelled              bool             `json:"expelled"`
}

// Version is a simple monotonically increasing semantic version triple.
type Version struct {
	Major uint64 `json:"major"`
	Minor uint64 `json:"minor"`
	Patch uint64 `json:"patch"`
}

// Less reports whether v is strictly less than o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

// VotingPowerEntry is one row of a derived validator or governance set.
type VotingPowerEntry struct {
	PublicKey   crypto.PublicKey
	VotingPower uint64
}

// DelegationData is the payload a delegator signs to delegate or
// undelegate their voting power.
type DelegationData struct {
	Delegator   string  `json:"delegator"`
	Delegatee   *string `json:"delegatee,omitempty"`
	Governance  bool    `json:"governance"`
	BlockHeight uint64  `json:"block_height"`
	Timestamp   int64   `json:"timestamp"`
	ChainName   string  `json:"chain_name"`
}

// CanonicalHash implements crypto.Hasher so DelegationData can be signed
// via crypto.SignTyped.
func (d DelegationData) CanonicalHash() crypto.Hash256 {
	return crypto.HashBytes(canon.JSON(d))
}

// DelegateTransaction carries a signed request to set (or extend) a
// delegation.
type DelegateTransaction struct {
	Data  DelegationData                             `json:"data"`
	Proof crypto.TypedSignature[DelegationData] `json:"proof"`
}

// UndelegateTransaction carries a signed request to clear a delegation.
type UndelegateTransaction struct {
	Data  DelegationData                             `json:"data"`
	Proof crypto.TypedSignature[DelegationData] `json:"proof"`
}
