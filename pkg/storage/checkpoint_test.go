package storage

import (
	"errors"
	"testing"

	"github.com/fedchain/node/pkg/commit"
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/csv"
	"github.com/fedchain/node/pkg/errs"
	"github.com/fedchain/node/pkg/reserved"
)

func testReservedState(t *testing.T) reserved.State {
	t.Helper()
	_, pk, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return reserved.State{
		GenesisInfo: reserved.GenesisInfo{Name: "fedchain-test"},
		Members: []reserved.Member{{
			PublicKey:             pk,
			Name:                  "alice",
			GovernanceVotingPower: 1,
			ConsensusVotingPower:  1,
		}},
		ConsensusLeaderOrder: []string{"alice"},
		Version:              reserved.Version{Major: 1},
	}
}

func TestCheckpointerSaveAndLoadRoundTrips(t *testing.T) {
	rs := testReservedState(t)
	header := commit.BlockHeader{Height: 7, ValidatorSet: rs.GetValidatorSet(), Version: rs.Version}
	v := csv.New(header, rs)

	cp := NewCheckpointer(NewMemoryBlobStore())
	if err := cp.Save(7, v); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := cp.Load(7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.GetHeader().Height != 7 {
		t.Fatalf("loaded header height = %d, want 7", loaded.GetHeader().Height)
	}
	if loaded.GetPhase().Kind != v.GetPhase().Kind {
		t.Fatalf("loaded phase = %s, want %s", loaded.GetPhase().Kind, v.GetPhase().Kind)
	}
	if len(loaded.GetReservedState().Members) != 1 {
		t.Fatalf("loaded reserved state lost its members")
	}
}

func TestCheckpointerLoadMissingHeightIsNotFound(t *testing.T) {
	cp := NewCheckpointer(NewMemoryBlobStore())
	if _, err := cp.Load(1); !errors.Is(err, errs.New(errs.KindNotFound, "")) {
		t.Fatalf("expected NotFound loading a never-saved height, got %v", err)
	}
}

func TestCheckpointerLoadLatestTracksHighestHeight(t *testing.T) {
	rs := testReservedState(t)
	store := NewMemoryBlobStore()
	cp := NewCheckpointer(store)

	if _, ok, err := cp.LoadLatest(); err != nil || ok {
		t.Fatalf("expected no checkpoint on a fresh store, ok=%v err=%v", ok, err)
	}

	for _, h := range []uint64{1, 2, 10, 3} {
		header := commit.BlockHeader{Height: h, ValidatorSet: rs.GetValidatorSet(), Version: rs.Version}
		v := csv.New(header, rs)
		if err := cp.Save(h, v); err != nil {
			t.Fatalf("Save(%d): %v", h, err)
		}
	}

	latest, ok, err := cp.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if !ok {
		t.Fatalf("expected a checkpoint to be found")
	}
	if latest.GetHeader().Height != 10 {
		t.Fatalf("LoadLatest height = %d, want 10 (the highest saved)", latest.GetHeader().Height)
	}
}
