// SPDX-License-Identifier: Apache-2.0
package core

// Keypair, hash-to-curve, and stealth-address derivation.
//
// The group is realized over filippo.io/edwards25519 points rather than a
// literal Ristretto255 encoding (no example repo in the retrieval pack ships
// one; edwards25519 is the audited, ecosystem-standard Go curve library for
// this class of system). Scalars and points from this package are always
// taken from the prime-order subgroup: hash-to-curve output is cofactor-
// cleared before use as an independent generator.

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"
)

// Domain separation tags. Literal strings per spec.md where it states them
// explicitly; otherwise follow original_source's naming convention adapted
// to this project.
const (
	domainClsagRound = "botho_clsag_round"
	domainClsagAggP  = "botho_clsag_agg_p"
	domainClsagAggC  = "botho_clsag_agg_c"
	domainTxSigning  = "botho-tx-v1"
	domainPQBridge   = "bridge-v1"
	domainClusterGen = "botho_cluster_gen"
	domainSchnorr    = "botho_schnorr_challenge"
)

// Scalar is a wrapper kept for call-site clarity; it is an alias of the
// underlying edwards25519 scalar type.
type Scalar = edwards25519.Scalar

// Point is a wrapper kept for call-site clarity.
type Point = edwards25519.Point

var basePoint = edwards25519.NewGeneratorPoint()

// PrivateKey is a scalar; PublicKey is its image under scalar-base-mult.
type PrivateKey struct {
	Scalar *Scalar
}

type PublicKey struct {
	Point *Point
}

// Keypair groups a classical scalar keypair. This package provides no helper
// that zeroizes the private half.
type Keypair struct {
	Private PrivateKey
	Public  PublicKey
}

// GenerateKeypair samples a uniform random scalar and derives its public point.
func GenerateKeypair() (*Keypair, error) {
	var seed [64]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	s, err := new(Scalar).SetUniformBytes(seed[:])
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	pub := new(Point).ScalarBaseMult(s)
	return &Keypair{
		Private: PrivateKey{Scalar: s},
		Public:  PublicKey{Point: pub},
	}, nil
}

// ScalarFromBytes decodes a canonical 32-byte little-endian scalar.
func ScalarFromBytes(b []byte) (*Scalar, error) {
	s, err := new(Scalar).SetCanonicalBytes(b)
	if err != nil {
		return nil, fmt.Errorf("scalar from bytes: %w", err)
	}
	return s, nil
}

// PointFromBytes decodes a compressed 32-byte curve point, rejecting any
// encoding that does not re-encode to the same bytes.
func PointFromBytes(b []byte) (*Point, error) {
	p, err := new(Point).SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("point from bytes: %w", err)
	}
	if !bytes.Equal(p.Bytes(), b) {
		return nil, errors.New("point from bytes: non-canonical encoding")
	}
	return p, nil
}

// ScalarFromWideBytes reduces a 64-byte hash output to a uniform scalar.
// This is the standard Fiat-Shamir challenge/hash-to-scalar primitive used
// throughout CLSAG and the Schnorr conservation proofs.
func ScalarFromWideBytes(b []byte) (*Scalar, error) {
	if len(b) != 64 {
		return nil, errors.New("scalar from wide bytes: need 64 bytes")
	}
	return new(Scalar).SetUniformBytes(b)
}

// HashToScalar hashes domain-tagged parts with Blake2b-512 and reduces the
// digest to a scalar. Mirrors original_source's Blake2b512-based Fiat-Shamir
// transcript construction.
func HashToScalar(domain string, parts ...[]byte) (*Scalar, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, err
	}
	h.Write([]byte(domain))
	for _, p := range parts {
		h.Write(p)
	}
	return ScalarFromWideBytes(h.Sum(nil))
}

// HashToPoint derives an independent generator from domain-tagged input via
// try-and-increment: hash, attempt to decode as a compressed point, retry
// with an incremented counter on failure, then clear the cofactor so the
// result lies in the prime-order subgroup.
func HashToPoint(domain string, parts ...[]byte) (*Point, error) {
	for counter := uint32(0); counter < 256; counter++ {
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, err
		}
		h.Write([]byte(domain))
		for _, p := range parts {
			h.Write(p)
		}
		h.Write([]byte{byte(counter), byte(counter >> 8), byte(counter >> 16), byte(counter >> 24)})
		candidate := h.Sum(nil)
		p, err := new(Point).SetBytes(candidate)
		if err != nil {
			continue
		}
		eight, err := new(Scalar).SetCanonicalBytes(scalarLE(8))
		if err != nil {
			return nil, err
		}
		cleared := new(Point).ScalarMult(eight, p)
		if cleared.Equal(edwards25519.NewIdentityPoint()) == 1 {
			continue
		}
		return cleared, nil
	}
	return nil, errors.New("hash to point: exhausted retries")
}

func scalarLE(v uint64) []byte {
	b := make([]byte, 32)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

// HPoint is a per-public-key independent generator H_p(P) used for key
// images and CLSAG commitment-key-image pairing.
func HPoint(pub *Point) (*Point, error) {
	return HashToPoint("botho_hash_to_point", pub.Bytes())
}

// KeyImage computes x·H_p(P) for the one-time private key x and its public P.
func KeyImage(priv *Scalar, pub *Point) (*Point, error) {
	hp, err := HPoint(pub)
	if err != nil {
		return nil, err
	}
	return new(Point).ScalarMult(priv, hp), nil
}

// Subaddress indices used throughout the wallet engine.
const (
	SubaddressDefault = 0
	SubaddressChange  = 1
)

// StealthKeys groups the view/spend keypair plus PQ material for a quantum-
// safe account (§3 Data Model: "Derived classical + PQ ... live together").
type StealthKeys struct {
	ViewPrivate  *Scalar
	ViewPublic   *Point
	SpendPrivate *Scalar
	SpendPublic  *Point
	PQ           *PQAccount
}

// NewStealthKeys derives a fresh classical+PQ account.
func NewStealthKeys() (*StealthKeys, error) {
	view, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}
	spend, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}
	pq, err := NewPQAccount()
	if err != nil {
		return nil, err
	}
	return &StealthKeys{
		ViewPrivate:  view.Private.Scalar,
		ViewPublic:   view.Public.Point,
		SpendPrivate: spend.Private.Scalar,
		SpendPublic:  spend.Public.Point,
		PQ:           pq,
	}, nil
}

// DeriveOneTimePublicKey computes the sender-side stealth address:
// target_key = H_s(r·view_pub || index)·G + spend_pub, with ephemeral r.
func DeriveOneTimePublicKey(viewPub, spendPub *Point, subaddressIndex uint32) (targetKey, ephemeralPub *Point, ephemeralPriv *Scalar, err error) {
	eph, err := GenerateKeypair()
	if err != nil {
		return nil, nil, nil, err
	}
	shared := new(Point).ScalarMult(eph.Private.Scalar, viewPub)
	hs, err := HashToScalar("botho_stealth_derive", shared.Bytes(), encodeU32(subaddressIndex))
	if err != nil {
		return nil, nil, nil, err
	}
	hsG := new(Point).ScalarBaseMult(hs)
	target := new(Point).Add(hsG, spendPub)
	return target, eph.Public.Point, eph.Private.Scalar, nil
}

// DeriveBlindingFactor derives an output's Pedersen-commitment blinding
// factor from the same Diffie-Hellman shared secret used for its stealth
// address, the same way the amount-commitment mask is derived in
// RingCT-style systems: deterministically, so the receiver can recompute it
// later to spend the output, rather than requiring the sender to transmit
// it out of band.
func DeriveBlindingFactor(sharedSecret *Point) (*Scalar, error) {
	return HashToScalar("botho_commitment_blinding", sharedSecret.Bytes())
}

// SharedSecretSender computes the DH shared secret from the sender's side
// (ephemeral private key and recipient's view public key).
func SharedSecretSender(ephemeralPriv *Scalar, viewPub *Point) *Point {
	return new(Point).ScalarMult(ephemeralPriv, viewPub)
}

// SharedSecretReceiver computes the same DH shared secret from the
// recipient's side (view private key and the output's ephemeral public
// key), letting an owner re-derive an output's blinding factor on demand.
func SharedSecretReceiver(viewPriv *Scalar, ephemeralPub *Point) *Point {
	return new(Point).ScalarMult(viewPriv, ephemeralPub)
}

// RecoverPublicSubaddressSpendKey recomputes the stealth derivation scalar
// from the receiver's view key and the output's ephemeral public key, then
// checks whether target_key - H_s(...)·G equals a known subaddress spend key.
// Returns true plus the derivation scalar on a match.
func RecoverPublicSubaddressSpendKey(viewPriv *Scalar, targetKey, ephemeralPub *Point, subaddressIndex uint32, knownSpendPub *Point) (bool, *Scalar, error) {
	shared := new(Point).ScalarMult(viewPriv, ephemeralPub)
	hs, err := HashToScalar("botho_stealth_derive", shared.Bytes(), encodeU32(subaddressIndex))
	if err != nil {
		return false, nil, err
	}
	hsG := new(Point).ScalarBaseMult(hs)
	candidateSpendPub := new(Point).Subtract(targetKey, hsG)
	if candidateSpendPub.Equal(knownSpendPub) == 1 {
		return true, hs, nil
	}
	return false, nil, nil
}

// RecoverOneTimePrivateKey computes x = spend_priv + H_s(r·view_pub || index),
// the one-time private key for a recognized stealth output.
func RecoverOneTimePrivateKey(spendPriv *Scalar, derivationScalar *Scalar) *Scalar {
	return new(Scalar).Add(spendPriv, derivationScalar)
}

func encodeU32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
