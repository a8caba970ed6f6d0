// SPDX-License-Identifier: Apache-2.0
package core

// Post-quantum bridging: ML-KEM-768 (Kyber768) key encapsulation and
// ML-DSA-65 (Dilithium mode3) signatures, wrapping cloudflare/circl the way
// the teacher's security.go wraps its own Dilithium signer.

import (
	"crypto/rand"
	"fmt"
	"hash"
	"io"

	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
)

func newBlake2bHash() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	return h
}

// Sizes asserted by spec.md's external interfaces for the quantum-private
// transaction wire format.
const (
	PQCiphertextSize = 1088
	PQSignatureSize  = mode3.SignatureSize
	PQTargetKeySize  = 32
	PQFeePerByte     = 10_000
)

// PQAccount bundles a receiver's KEM keypair (for bridged stealth outputs)
// and signing keypair (for quantum-private transaction authorization).
type PQAccount struct {
	KEMPublic  kyber768.PublicKey
	KEMPrivate kyber768.PrivateKey
	SigPublic  *mode3.PublicKey
	SigPrivate *mode3.PrivateKey
}

// NewPQAccount generates a fresh ML-KEM-768 + ML-DSA-65 keypair pair.
func NewPQAccount() (*PQAccount, error) {
	kemPub, kemPriv, err := kyber768.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("pq account: kem keygen: %w", err)
	}
	sigPub, sigPriv, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("pq account: sig keygen: %w", err)
	}
	return &PQAccount{
		KEMPublic:  *kemPub,
		KEMPrivate: *kemPriv,
		SigPublic:  sigPub,
		SigPrivate: sigPriv,
	}, nil
}

// PQEncapsulation is the sender-side output of bridging a classical stealth
// output into a PQ-protected target: a KEM ciphertext plus a derived
// 32-byte target key, both bound by the "bridge-v1" domain tag.
type PQEncapsulation struct {
	Ciphertext []byte
	TargetKey  [PQTargetKeySize]byte
}

// EncapsulateBridge seals a fresh shared secret to the receiver's KEM public
// key and derives the PQ target key from it. The bridge domain tag ensures
// this derivation can never collide with any other HKDF use in the system.
func EncapsulateBridge(receiverKEMPub *kyber768.PublicKey) (*PQEncapsulation, error) {
	ct, ss, err := kyber768.Scheme().Encapsulate(receiverKEMPub)
	if err != nil {
		return nil, fmt.Errorf("encapsulate bridge: %w", err)
	}
	target, err := deriveBridgeTargetKey(ss)
	if err != nil {
		return nil, err
	}
	return &PQEncapsulation{Ciphertext: ct, TargetKey: target}, nil
}

// DecapsulateBridge recovers the shared secret and rederives the target key
// so the receiver can recognize a bridged output during wallet scanning.
func DecapsulateBridge(receiverKEMPriv *kyber768.PrivateKey, ciphertext []byte) ([PQTargetKeySize]byte, error) {
	ss, err := kyber768.Scheme().Decapsulate(receiverKEMPriv, ciphertext)
	if err != nil {
		return [PQTargetKeySize]byte{}, fmt.Errorf("decapsulate bridge: %w", err)
	}
	return deriveBridgeTargetKey(ss)
}

func deriveBridgeTargetKey(sharedSecret []byte) ([PQTargetKeySize]byte, error) {
	var out [PQTargetKeySize]byte
	kdf := hkdf.New(newBlake2bHash, sharedSecret, nil, []byte(domainPQBridge))
	if _, err := io.ReadFull(kdf, out[:]); err != nil {
		return out, fmt.Errorf("derive bridge target key: %w", err)
	}
	return out, nil
}

// SignPQ authorizes a quantum-private transaction body with ML-DSA-65.
func SignPQ(priv *mode3.PrivateKey, msg []byte) []byte {
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(priv, msg, sig)
	return sig
}

// VerifyPQ checks an ML-DSA-65 signature produced by SignPQ.
func VerifyPQ(pub *mode3.PublicKey, msg, sig []byte) bool {
	return mode3.Verify(pub, msg, sig)
}
