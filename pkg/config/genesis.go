// Genesis configuration loader.
//
// A genesis file declares the initial reserved state (members, voting
// powers, leader order, genesis info, version) consumed at first boot.
// Values may reference environment variables as ${VAR} or ${VAR:-default}.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/reserved"
)

// GenesisConfig mirrors the genesis YAML file.
type GenesisConfig struct {
	ChainName string `yaml:"chain_name"`
	Timestamp int64  `yaml:"timestamp"`

	Version VersionSettings  `yaml:"version"`
	Members []MemberSettings `yaml:"members"`

	ConsensusLeaderOrder []string `yaml:"consensus_leader_order"`
}

// VersionSettings is the protocol version triple.
type VersionSettings struct {
	Major uint64 `yaml:"major"`
	Minor uint64 `yaml:"minor"`
	Patch uint64 `yaml:"patch"`
}

// MemberSettings declares one federation member.
type MemberSettings struct {
	Name                  string `yaml:"name"`
	PublicKey             string `yaml:"public_key"`
	GovernanceVotingPower uint64 `yaml:"governance_voting_power"`
	ConsensusVotingPower  uint64 `yaml:"consensus_voting_power"`
}

// LoadGenesis reads and parses the genesis YAML file at path, expanding
// ${VAR} and ${VAR:-default} references from the environment first.
func LoadGenesis(path string) (*GenesisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg GenesisConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural genesis requirements before any key
// decoding happens; reserved.State.Validate enforces the full invariant
// set once the state is built.
func (g *GenesisConfig) Validate() error {
	var errors []string

	if g.ChainName == "" {
		errors = append(errors, "chain_name is required")
	}
	if len(g.Members) < 4 {
		errors = append(errors, fmt.Sprintf("at least 4 members are required, got %d", len(g.Members)))
	}
	if len(g.ConsensusLeaderOrder) < 2 {
		errors = append(errors, fmt.Sprintf("consensus_leader_order needs at least 2 entries, got %d", len(g.ConsensusLeaderOrder)))
	}
	for i, m := range g.Members {
		if m.Name == "" {
			errors = append(errors, fmt.Sprintf("members[%d]: name is required", i))
		}
		if m.PublicKey == "" {
			errors = append(errors, fmt.Sprintf("members[%d] (%s): public_key is required", i, m.Name))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("genesis validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return nil
}

// ReservedState builds the initial reserved state declared by the
// genesis file, running the full reserved-state invariant check on the
// result.
func (g *GenesisConfig) ReservedState() (reserved.State, error) {
	members := make([]reserved.Member, len(g.Members))
	for i, m := range g.Members {
		pk, err := crypto.PublicKeyFromHex(m.PublicKey)
		if err != nil {
			return reserved.State{}, fmt.Errorf("genesis member %s: %w", m.Name, err)
		}
		members[i] = reserved.Member{
			PublicKey:             pk,
			Name:                  m.Name,
			GovernanceVotingPower: m.GovernanceVotingPower,
			ConsensusVotingPower:  m.ConsensusVotingPower,
		}
	}

	state := reserved.State{
		GenesisInfo: reserved.GenesisInfo{
			Name:      g.ChainName,
			Timestamp: g.Timestamp,
		},
		Members:              members,
		ConsensusLeaderOrder: append([]string(nil), g.ConsensusLeaderOrder...),
		Version: reserved.Version{
			Major: g.Version.Major,
			Minor: g.Version.Minor,
			Patch: g.Version.Patch,
		},
	}

	if err := state.Validate(nil, true); err != nil {
		return reserved.State{}, fmt.Errorf("genesis reserved state invalid: %w", err)
	}
	return state, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR} references with environment values,
// falling back to the :-default form's default (or empty) when unset.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		return groups[3]
	})
}
