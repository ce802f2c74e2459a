package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fedchain/node/pkg/crypto"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StorageBackend != "cometbft" {
		t.Errorf("default StorageBackend = %q, want cometbft", cfg.StorageBackend)
	}
	if cfg.ConsensusTimeoutMS == 0 {
		t.Error("default ConsensusTimeoutMS must be positive")
	}
	if cfg.StorageDataDir != cfg.DataDir {
		t.Errorf("StorageDataDir should fall back to DataDir, got %q vs %q", cfg.StorageDataDir, cfg.DataDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero timeout", func(c *Config) { c.ConsensusTimeoutMS = 0 }},
		{"zero repeat round", func(c *Config) { c.RepeatRoundForFirstLeader = 0 }},
		{"unknown backend", func(c *Config) { c.StorageBackend = "postgres" }},
		{"missing genesis path", func(c *Config) { c.GenesisPath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}

func TestLoadGenesisBuildsReservedState(t *testing.T) {
	var membersYAML string
	for i := 0; i < 4; i++ {
		_, pk, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair: %v", err)
		}
		membersYAML += fmt.Sprintf(
			"  - name: member-%d\n    public_key: %s\n    governance_voting_power: 1\n    consensus_voting_power: 1\n", i, pk.Hex())
	}
	content := "chain_name: testchain\ntimestamp: 1000\nversion:\n  major: 1\n  minor: 0\n  patch: 0\nmembers:\n" + membersYAML +
		"consensus_leader_order:\n  - member-0\n  - member-1\n  - member-2\n  - member-3\n"

	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}

	g, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	state, err := g.ReservedState()
	if err != nil {
		t.Fatalf("ReservedState: %v", err)
	}
	if len(state.Members) != 4 {
		t.Errorf("members = %d, want 4", len(state.Members))
	}
	if got := len(state.GetValidatorSet()); got != 4 {
		t.Errorf("validator set = %d entries, want 4", got)
	}
	if state.GenesisInfo.Name != "testchain" {
		t.Errorf("chain name = %q", state.GenesisInfo.Name)
	}
}

func TestLoadGenesisRejectsTooFewMembers(t *testing.T) {
	_, pk, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	content := fmt.Sprintf(
		"chain_name: testchain\ntimestamp: 1\nversion:\n  major: 1\nmembers:\n  - name: only\n    public_key: %s\n    governance_voting_power: 1\n    consensus_voting_power: 1\nconsensus_leader_order:\n  - only\n", pk.Hex())
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	if _, err := LoadGenesis(path); err == nil {
		t.Error("LoadGenesis accepted a 1-member genesis")
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("FEDCHAIN_TEST_CHAIN", "mainchain")
	got := substituteEnvVars("chain_name: ${FEDCHAIN_TEST_CHAIN}\nother: ${FEDCHAIN_TEST_UNSET:-fallback}\n")
	want := "chain_name: mainchain\nother: fallback\n"
	if got != want {
		t.Errorf("substituteEnvVars = %q, want %q", got, want)
	}
}
