package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/fedchain/node/pkg/errs"
)

// recoveryOffset is the fixed offset baked into the trailing recovery byte
// of a Signature's wire/in-memory representation, matching a common
// external convention for recoverable signatures. go-ethereum's recovery
// functions expect a raw V in {0,1}; we add/subtract this offset at the
// boundary so the 65-byte Signature value itself always carries the
// offset form.
const recoveryOffset = 27

// PublicKeySize is the length of the uncompressed secp256k1 point.
const PublicKeySize = 65

// PrivateKeySize is the length of a secp256k1 scalar.
const PrivateKeySize = 32

// SignatureSize is 64 bytes of (r,s) plus 1 recovery byte.
const SignatureSize = 65

// PublicKey is a 65-byte uncompressed secp256k1 point.
type PublicKey [PublicKeySize]byte

// PrivateKey is a 32-byte secp256k1 scalar.
type PrivateKey [PrivateKeySize]byte

// Signature is 64 bytes of (r,s) followed by a 1-byte recovery id with the
// +27 offset already applied.
type Signature [SignatureSize]byte

// Hex returns the 130-hex-char wire form of the signature.
func (s Signature) Hex() string { return hex.EncodeToString(s[:]) }

// Hex returns the hex form of the public key.
func (p PublicKey) Hex() string { return hex.EncodeToString(p[:]) }

// PublicKeyFromHex parses a 130-char hex string into a PublicKey, for
// loading member keys out of genesis configuration files.
func PublicKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, errs.Wrap(errs.KindInvalidArgument, err, "decode public key hex")
	}
	if len(b) != PublicKeySize {
		return PublicKey{}, errs.Newf(errs.KindInvalidArgument, "public key must be %d bytes, got %d", PublicKeySize, len(b))
	}
	var pk PublicKey
	copy(pk[:], b)
	return pk, nil
}

// PrivateKeyFromHex parses a 64-char hex string into a PrivateKey, for
// loading a node's own signing key out of its key file.
func PrivateKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PrivateKey{}, errs.Wrap(errs.KindInvalidArgument, err, "decode private key hex")
	}
	if len(b) != PrivateKeySize {
		return PrivateKey{}, errs.Newf(errs.KindInvalidArgument, "private key must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	var sk PrivateKey
	copy(sk[:], b)
	return sk, nil
}

// GenerateKeyPair produces a fresh secp256k1 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return PrivateKey{}, PublicKey{}, errs.Wrap(errs.KindCryptoError, err, "generate key pair")
	}
	var sk PrivateKey
	copy(sk[:], ethcrypto.FromECDSA(key))
	var pk PublicKey
	copy(pk[:], ethcrypto.FromECDSAPub(&key.PublicKey))
	return sk, pk, nil
}

// PublicKeyFromPrivate derives the uncompressed public key for sk.
func PublicKeyFromPrivate(sk PrivateKey) (PublicKey, error) {
	ecdsaKey, err := ethcrypto.ToECDSA(sk[:])
	if err != nil {
		return PublicKey{}, errs.Wrap(errs.KindCryptoError, err, "derive public key")
	}
	var pk PublicKey
	copy(pk[:], ethcrypto.FromECDSAPub(&ecdsaKey.PublicKey))
	return pk, nil
}

// Sign signs the 32-byte digest m with sk, returning a 65-byte recoverable
// signature with the +27 offset applied to the trailing recovery byte.
func Sign(m Hash256, sk PrivateKey) (Signature, error) {
	raw, err := ethcrypto.Sign(m[:], mustECDSA(sk))
	if err != nil {
		return Signature{}, errs.Wrap(errs.KindCryptoError, err, "sign hash")
	}
	var sig Signature
	copy(sig[:], raw)
	sig[64] += recoveryOffset
	return sig, nil
}

// Verify checks that sig is a valid signature over m by pk.
func Verify(m Hash256, sig Signature, pk PublicKey) error {
	if sig[64] < recoveryOffset {
		return errs.New(errs.KindCryptoError, "signature recovery byte below +27 offset")
	}
	// go-ethereum's VerifySignature expects the 64-byte (r,s) form without
	// the recovery byte.
	if !ethcrypto.VerifySignature(pk[:], m[:], sig[:64]) {
		return errs.New(errs.KindCryptoError, "signature verification failed")
	}
	return nil
}

// Recover recovers the signer's public key from a signature over m. It
// fails with CryptoError if the recovery id (after removing the +27
// offset) is not 0 or 1.
func Recover(m Hash256, sig Signature) (PublicKey, error) {
	v := sig[64]
	if v < recoveryOffset || v-recoveryOffset > 1 {
		return PublicKey{}, errs.New(errs.KindCryptoError, "invalid recovery id")
	}
	raw := make([]byte, SignatureSize)
	copy(raw, sig[:])
	raw[64] -= recoveryOffset
	rawPub, err := ethcrypto.Ecrecover(m[:], raw)
	if err != nil {
		return PublicKey{}, errs.Wrap(errs.KindCryptoError, err, "recover public key")
	}
	var pk PublicKey
	copy(pk[:], rawPub)
	return pk, nil
}

func mustECDSA(sk PrivateKey) *ecdsa.PrivateKey {
	k, err := ethcrypto.ToECDSA(sk[:])
	if err != nil {
		// sk values in this module are always produced by GenerateKeyPair
		// or decoded via ToECDSA itself elsewhere; a malformed scalar here
		// indicates a caller bug, not a recoverable runtime condition.
		panic(err)
	}
	return k
}

// Hasher is implemented by any value with a canonical hash, the binding
// point for TypedSignature.
type Hasher interface {
	CanonicalHash() Hash256
}

// TypedSignature binds a signature to the type of value it covers, so a
// signature over a FinalizationSignTarget can never be confused for one
// over a different message shape at compile time.
type TypedSignature[T Hasher] struct {
	Signature Signature
	Signer    PublicKey
}

// SignTyped hashes v canonically and signs the resulting digest with sk.
func SignTyped[T Hasher](v T, sk PrivateKey) (TypedSignature[T], error) {
	pk, err := PublicKeyFromPrivate(sk)
	if err != nil {
		return TypedSignature[T]{}, err
	}
	sig, err := Sign(v.CanonicalHash(), sk)
	if err != nil {
		return TypedSignature[T]{}, err
	}
	return TypedSignature[T]{Signature: sig, Signer: pk}, nil
}

// Verify checks ts against v's canonical hash.
func (ts TypedSignature[T]) Verify(v T) error {
	return Verify(v.CanonicalHash(), ts.Signature, ts.Signer)
}
