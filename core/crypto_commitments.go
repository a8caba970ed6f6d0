// SPDX-License-Identifier: Apache-2.0
package core

// Pedersen commitments over the same edwards25519 group used for keys and
// CLSAG. Grounded on original_source's cluster-tax crypto layer, which
// commits both transferred value and per-cluster tag mass under one blinding
// scheme so that conservation proofs can be built as simple Schnorr proofs
// over the commitment difference.

import (
	"errors"
)

// pedersenH is the commitment generator independent of the base point G.
// Any discrete-log relation between H and G would let a prover forge a
// commitment opening, so H must come from a nothing-up-my-sleeve hash, never
// from scalar multiplication of G by a known value.
var pedersenH = mustHashToPoint("botho_pedersen_h")

func mustHashToPoint(domain string) *Point {
	p, err := HashToPoint(domain)
	if err != nil {
		panic(err)
	}
	return p
}

// Commitment is C = v·H + r·G for value v and blinding factor r.
type Commitment struct {
	Point *Point
}

// CommitValue builds a Pedersen commitment to value under blinding r.
func CommitValue(value uint64, blinding *Scalar) *Commitment {
	v := scalarFromUint64(value)
	vH := new(Point).ScalarMult(v, pedersenH)
	rG := new(Point).ScalarBaseMult(blinding)
	return &Commitment{Point: new(Point).Add(vH, rG)}
}

// CommitScalar commits to an arbitrary scalar rather than a raw uint64, used
// for cluster mass values already reduced modulo the group order.
func CommitScalar(value *Scalar, blinding *Scalar) *Commitment {
	vH := new(Point).ScalarMult(value, pedersenH)
	rG := new(Point).ScalarBaseMult(blinding)
	return &Commitment{Point: new(Point).Add(vH, rG)}
}

// Add is the homomorphic sum of two commitments: commits to the sum of the
// values under the sum of the blinding factors.
func (c *Commitment) Add(other *Commitment) *Commitment {
	return &Commitment{Point: new(Point).Add(c.Point, other.Point)}
}

// Sub is the homomorphic difference of two commitments.
func (c *Commitment) Sub(other *Commitment) *Commitment {
	return &Commitment{Point: new(Point).Subtract(c.Point, other.Point)}
}

// Bytes returns the compressed 32-byte encoding.
func (c *Commitment) Bytes() []byte {
	return c.Point.Bytes()
}

func scalarFromUint64(v uint64) *Scalar {
	var wide [64]byte
	for i := 0; i < 8; i++ {
		wide[i] = byte(v >> (8 * i))
	}
	s, err := new(Scalar).SetUniformBytes(wide[:])
	if err != nil {
		panic(err)
	}
	return s
}

// SchnorrProof is a proof of knowledge of the discrete log of a commitment
// to zero: used by the conservation-with-decay proof to show that an output
// mass commitment minus the decayed input mass commitment opens to zero,
// without revealing the blinding factors.
type SchnorrProof struct {
	Nonce     *Point
	Challenge *Scalar
	Response  *Scalar
}

// ProveZeroOpening proves knowledge of r such that target = r·G, i.e. that
// target is a commitment to value 0 under blinding r. context distinguishes
// independent proof instances (e.g. per-cluster conservation legs) sharing
// the same domain tag.
func ProveZeroOpening(domain string, context []byte, target *Point, r *Scalar) (*SchnorrProof, error) {
	k, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}
	nonce := k.Public.Point
	challenge, err := HashToScalar(domain, context, nonce.Bytes(), target.Bytes())
	if err != nil {
		return nil, err
	}
	resp := new(Scalar).Add(k.Private.Scalar, new(Scalar).Multiply(challenge, r))
	return &SchnorrProof{Nonce: nonce, Challenge: challenge, Response: resp}, nil
}

// VerifyZeroOpening checks resp·G == nonce + challenge·target.
func VerifyZeroOpening(domain string, context []byte, target *Point, proof *SchnorrProof) (bool, error) {
	expected, err := HashToScalar(domain, context, proof.Nonce.Bytes(), target.Bytes())
	if err != nil {
		return false, err
	}
	if expected.Equal(proof.Challenge) != 1 {
		return false, errors.New("verify zero opening: challenge mismatch")
	}
	lhs := new(Point).ScalarBaseMult(proof.Response)
	rhs := new(Point).Add(proof.Nonce, new(Point).ScalarMult(proof.Challenge, target))
	return lhs.Equal(rhs) == 1, nil
}
