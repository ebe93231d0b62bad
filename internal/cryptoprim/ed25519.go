// Package cryptoprim implements the cryptographic primitives consensus depends
// on: SHA-256 hashing, Merkle roots, Ed25519 signatures, and a VRF realized
// over Ed25519 (spec.md §4.1, C1).
//
// Grounded on ParichayaHQ-credence's internal/crypto/ed25519.go (stdlib
// crypto/ed25519 wrapper) and internal/consensus/vrf.go (sign-then-hash VRF
// construction): output = SHA-256(sign(sk, input)), proof = sign(sk, input).
package cryptoprim

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
)

// PubKey is an Ed25519 public key.
type PubKey [ed25519.PublicKeySize]byte

// MarshalText renders a PubKey as lowercase hex, used for JSON wire
// transfer and as a map key (encoding/json requires TextMarshaler for any
// non-string, non-integer map key).
func (pk PubKey) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(pk[:])), nil
}

// UnmarshalText parses a PubKey from lowercase hex.
func (pk *PubKey) UnmarshalText(text []byte) error {
	return decodeFixed(pk[:], text)
}

// Signature is an Ed25519 signature, also used as the VRF proof (§4.1).
type Signature [ed25519.SignatureSize]byte

// MarshalText renders a Signature as lowercase hex.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(s[:])), nil
}

// UnmarshalText parses a Signature from lowercase hex.
func (s *Signature) UnmarshalText(text []byte) error {
	return decodeFixed(s[:], text)
}

// GenerateKey produces a fresh Ed25519 keypair.
func GenerateKey() (PubKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PubKey{}, nil, ErrInvalidKey
	}
	var pk PubKey
	copy(pk[:], pub)
	return pk, priv, nil
}

// Sign produces an Ed25519 signature over data.
func Sign(sk ed25519.PrivateKey, data []byte) (Signature, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return Signature{}, ErrInvalidKey
	}
	var sig Signature
	copy(sig[:], ed25519.Sign(sk, data))
	return sig, nil
}

// Verify checks an Ed25519 signature against a public key and message.
func Verify(pk PubKey, data []byte, sig Signature) bool {
	return ed25519.Verify(pk[:], data, sig[:])
}

// VRFEvaluate realizes the VRF as a deterministic Ed25519 signature over the
// input, hashed down to a 32-byte output (spec.md §4.1):
//
//	output = SHA-256(sign(sk, input))
//	proof  = sign(sk, input)
func VRFEvaluate(sk ed25519.PrivateKey, input Hash) (output Hash, proof Signature, err error) {
	if len(sk) != ed25519.PrivateKeySize {
		return Hash{}, Signature{}, ErrInvalidKey
	}
	proof, err = Sign(sk, input[:])
	if err != nil {
		return Hash{}, Signature{}, err
	}
	output = SHA256(proof[:])
	return output, proof, nil
}

// VRFVerify recomputes a VRF output from its proof and checks both the
// Ed25519 signature and the output derivation (spec.md §4.1).
func VRFVerify(pk PubKey, input Hash, output Hash, proof Signature) bool {
	if !Verify(pk, input[:], proof) {
		return false
	}
	expected := SHA256(proof[:])
	return expected == output
}
