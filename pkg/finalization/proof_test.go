package finalization

import (
	"testing"

	"github.com/fedchain/node/pkg/commit"
	"github.com/fedchain/node/pkg/crypto"
	"github.com/fedchain/node/pkg/reserved"
)

type validator struct {
	sk crypto.PrivateKey
	pk crypto.PublicKey
}

func fourEqualValidators(t *testing.T) ([]validator, []reserved.VotingPowerEntry) {
	t.Helper()
	vs := make([]validator, 4)
	set := make([]reserved.VotingPowerEntry, 4)
	for i := range vs {
		sk, pk, err := crypto.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair: %v", err)
		}
		vs[i] = validator{sk: sk, pk: pk}
		set[i] = reserved.VotingPowerEntry{PublicKey: pk, VotingPower: 1}
	}
	return vs, set
}

func signProof(t *testing.T, header commit.BlockHeader, round uint64, signers []validator) Proof {
	t.Helper()
	target := SignTarget{BlockHash: header.CanonicalHash(), Round: round}
	sigs := make([]crypto.TypedSignature[SignTarget], len(signers))
	for i, v := range signers {
		ts, err := crypto.SignTyped[SignTarget](target, v.sk)
		if err != nil {
			t.Fatalf("SignTyped: %v", err)
		}
		sigs[i] = ts
	}
	return Proof{Round: round, Signatures: sigs}
}

func TestVerifyFinalizationProofAllFourSigned(t *testing.T) {
	vs, set := fourEqualValidators(t)
	header := commit.BlockHeader{Height: 1, ValidatorSet: set}
	fp := signProof(t, header, 0, vs)

	if err := VerifyFinalizationProof(header, fp); err != nil {
		t.Fatalf("VerifyFinalizationProof: %v", err)
	}
}

func TestVerifyFinalizationProofUnderThreshold(t *testing.T) {
	vs, set := fourEqualValidators(t)
	header := commit.BlockHeader{Height: 1, ValidatorSet: set}
	fp := signProof(t, header, 0, vs[:2]) // 2 of 4, 3*2=6 <= 2*4=8

	err := VerifyFinalizationProof(header, fp)
	if err == nil {
		t.Fatalf("expected InvalidProof for under-threshold signatures")
	}
}

func TestVerifyFinalizationProofDedupesSigners(t *testing.T) {
	vs, set := fourEqualValidators(t)
	header := commit.BlockHeader{Height: 1, ValidatorSet: set}
	fp := signProof(t, header, 0, []validator{vs[0], vs[0], vs[1], vs[2]})

	// Only 3 distinct signers despite 4 signatures: 3*3=9 > 2*4=8, passes.
	if err := VerifyFinalizationProof(header, fp); err != nil {
		t.Fatalf("VerifyFinalizationProof: %v", err)
	}
}

func TestVerifyHeaderToHeader(t *testing.T) {
	vs, set := fourEqualValidators(t)
	h1 := commit.BlockHeader{Height: 1, ValidatorSet: set, Timestamp: 100}
	fp := signProof(t, h1, 0, vs)

	h2 := commit.BlockHeader{
		Author:                     vs[0].pk,
		Height:                     2,
		PreviousHash:               h1.CanonicalHash(),
		Timestamp:                  200,
		PrevBlockFinalizationProof: fp.ToRef(),
	}

	if err := VerifyHeaderToHeader(h1, h2); err != nil {
		t.Fatalf("VerifyHeaderToHeader: %v", err)
	}
}

func TestVerifyHeaderToHeaderRejectsHeightSkip(t *testing.T) {
	vs, set := fourEqualValidators(t)
	h1 := commit.BlockHeader{Height: 1, ValidatorSet: set}
	fp := signProof(t, h1, 0, vs)
	h2 := commit.BlockHeader{Height: 3, PreviousHash: h1.CanonicalHash(), PrevBlockFinalizationProof: fp.ToRef()}

	if err := VerifyHeaderToHeader(h1, h2); err == nil {
		t.Fatalf("expected error for height skip")
	}
}

func TestVerifyHeaderToHeaderRejectsVersionRegression(t *testing.T) {
	vs, set := fourEqualValidators(t)
	h1 := commit.BlockHeader{Height: 1, ValidatorSet: set, Timestamp: 100, Version: reserved.Version{Major: 2}}
	fp := signProof(t, h1, 0, vs)
	h2 := commit.BlockHeader{
		Author:                     vs[0].pk,
		Height:                     2,
		PreviousHash:               h1.CanonicalHash(),
		Timestamp:                  200,
		Version:                    reserved.Version{Major: 1},
		PrevBlockFinalizationProof: fp.ToRef(),
	}

	if err := VerifyHeaderToHeader(h1, h2); err == nil {
		t.Fatalf("expected error for protocol version regression")
	}
}

func TestVerifyHeaderToHeaderRejectsTimestampRegression(t *testing.T) {
	vs, set := fourEqualValidators(t)
	h1 := commit.BlockHeader{Height: 1, ValidatorSet: set, Timestamp: 500}
	fp := signProof(t, h1, 0, vs)
	h2 := commit.BlockHeader{
		Author:                     vs[0].pk,
		Height:                     2,
		PreviousHash:               h1.CanonicalHash(),
		Timestamp:                  100,
		PrevBlockFinalizationProof: fp.ToRef(),
	}

	if err := VerifyHeaderToHeader(h1, h2); err == nil {
		t.Fatalf("expected error for timestamp regression")
	}
}
