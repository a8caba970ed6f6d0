// SPDX-License-Identifier: Apache-2.0
package core

// CLSAG (Concise Linkable Spontaneous Anonymous Group) ring signatures,
// aggregating a spend-key ring and a commitment-to-zero ring into a single
// linkable ring signature. Algorithm grounded on
// _examples/original_source/crypto/ring-signature/src/ring_signature/clsag.rs,
// reimplemented over filippo.io/edwards25519 rather than transliterated.

import (
	"errors"
)

// Sentinel errors per §4.1/§7 of the crypto error taxonomy.
var (
	ErrIndexOutOfBounds  = errors.New("clsag: index out of bounds")
	ErrValueNotConserved = errors.New("clsag: value not conserved")
	ErrLengthMismatch    = errors.New("clsag: length mismatch")
	ErrInvalidKeyImage   = errors.New("clsag: invalid key image")
	ErrInvalidSignature  = errors.New("clsag: invalid signature")
)

// ClsagSignature is a linkable ring signature over an aggregated
// spend-key/commitment ring. KeyImage (I) is the linking tag for the real
// signer's one-time spend key; it must be unique per UTXO and is checked
// against the ledger's spent-key-image set to prevent double spends.
// CommitmentKeyImage (D) is the auxiliary image for the commitment
// component, needed to verify the commitment balance without revealing it.
type ClsagSignature struct {
	C0                 *Scalar
	Responses          []*Scalar
	KeyImage           *Point
	CommitmentKeyImage *Point
}

// clsagAggregationCoefficients derives mu_P, mu_C by hashing the full ring
// transcript plus I and D, so that forging one ring member's W_i requires
// breaking the hash rather than just picking convenient scalars. I and D
// must be fixed before the ring is walked (they do not depend on the
// signer's secret nonce), matching original_source's ordering.
func clsagAggregationCoefficients(keys, zeroCommits []*Point, keyImage, commitmentKeyImage *Point) (muP, muC *Scalar, err error) {
	var transcript []byte
	for i := range keys {
		transcript = append(transcript, keys[i].Bytes()...)
		transcript = append(transcript, zeroCommits[i].Bytes()...)
	}
	transcript = append(transcript, keyImage.Bytes()...)
	transcript = append(transcript, commitmentKeyImage.Bytes()...)

	muP, err = HashToScalar(domainClsagAggP, transcript)
	if err != nil {
		return nil, nil, err
	}
	muC, err = HashToScalar(domainClsagAggC, transcript)
	if err != nil {
		return nil, nil, err
	}
	return muP, muC, nil
}

// clsagAggregateMember computes W_i = mu_P*P_i + mu_C*Z_i for one ring member.
func clsagAggregateMember(key, zeroCommit *Point, muP, muC *Scalar) *Point {
	pTerm := new(Point).ScalarMult(muP, key)
	cTerm := new(Point).ScalarMult(muC, zeroCommit)
	return new(Point).Add(pTerm, cTerm)
}

// SignCLSAG produces a linkable ring signature binding msg to the ring.
// realIndex is the signer's position; onePriv is the discrete log of
// keys[realIndex] (the one-time spend key). inputBlinding/outputBlinding
// are the Pedersen blindings of the real input's commitment and the
// transaction's pseudo-output commitment respectively; zeroCommits[i] must
// equal outputCommitment - inputCommitment[i] for every ring member.
func SignCLSAG(msg []byte, keys, zeroCommits []*Point, realIndex int, onePriv *Scalar, inputBlinding, outputBlinding *Scalar) (*ClsagSignature, error) {
	n := len(keys)
	if n == 0 || len(zeroCommits) != n {
		return nil, ErrIndexOutOfBounds
	}
	if realIndex < 0 || realIndex >= n {
		return nil, ErrIndexOutOfBounds
	}

	realKey := keys[realIndex]

	z := new(Scalar).Subtract(outputBlinding, inputBlinding)
	zG := new(Point).ScalarBaseMult(z)
	if zG.Equal(zeroCommits[realIndex]) != 1 {
		return nil, ErrValueNotConserved
	}

	hpReal, err := HPoint(realKey)
	if err != nil {
		return nil, err
	}

	keyImage := new(Point).ScalarMult(onePriv, hpReal)
	commitmentKeyImage := new(Point).ScalarMult(z, hpReal)

	muP, muC, err := clsagAggregationCoefficients(keys, zeroCommits, keyImage, commitmentKeyImage)
	if err != nil {
		return nil, err
	}

	alphaKp, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}
	alpha := alphaKp.Private.Scalar

	c := make([]*Scalar, n)
	s := make([]*Scalar, n)

	lInit := new(Point).ScalarBaseMult(alpha)
	rInit := new(Point).ScalarMult(alpha, hpReal)
	next := (realIndex + 1) % n
	cNext, err := clsagRoundChallenge(msg, keyImage, commitmentKeyImage, lInit, rInit)
	if err != nil {
		return nil, err
	}
	c[next] = cNext

	muPI := new(Point).ScalarMult(muP, keyImage)
	muCD := new(Point).ScalarMult(muC, commitmentKeyImage)
	rRingTerm := new(Point).Add(muPI, muCD)

	for steps := 1; steps < n; steps++ {
		i := (realIndex + steps) % n
		si, err := randomScalar()
		if err != nil {
			return nil, err
		}
		s[i] = si

		wi := clsagAggregateMember(keys[i], zeroCommits[i], muP, muC)
		li := new(Point).Add(new(Point).ScalarBaseMult(si), new(Point).ScalarMult(c[i], wi))

		hpi, err := HPoint(keys[i])
		if err != nil {
			return nil, err
		}
		ri := new(Point).Add(new(Point).ScalarMult(si, hpi), new(Point).ScalarMult(c[i], rRingTerm))

		nextIdx := (i + 1) % n
		cn, err := clsagRoundChallenge(msg, keyImage, commitmentKeyImage, li, ri)
		if err != nil {
			return nil, err
		}
		c[nextIdx] = cn
	}

	w := new(Scalar).Add(new(Scalar).Multiply(muP, onePriv), new(Scalar).Multiply(muC, z))
	s[realIndex] = new(Scalar).Subtract(alpha, new(Scalar).Multiply(c[realIndex], w))

	return &ClsagSignature{
		C0:                 c[0],
		Responses:          s,
		KeyImage:           keyImage,
		CommitmentKeyImage: commitmentKeyImage,
	}, nil
}

// VerifyCLSAG checks a CLSAG signature against the ring, message, and the
// transaction's output commitment (via the caller-supplied zeroCommits,
// which must equal outputCommitment - inputCommitment[i]).
func VerifyCLSAG(msg []byte, keys, zeroCommits []*Point, sig *ClsagSignature) error {
	n := len(keys)
	if n == 0 || len(zeroCommits) != n || len(sig.Responses) != n {
		return ErrLengthMismatch
	}
	if sig.KeyImage == nil || sig.CommitmentKeyImage == nil {
		return ErrInvalidKeyImage
	}

	muP, muC, err := clsagAggregationCoefficients(keys, zeroCommits, sig.KeyImage, sig.CommitmentKeyImage)
	if err != nil {
		return err
	}

	muPI := new(Point).ScalarMult(muP, sig.KeyImage)
	muCD := new(Point).ScalarMult(muC, sig.CommitmentKeyImage)
	rRingTerm := new(Point).Add(muPI, muCD)

	c := sig.C0
	for i := 0; i < n; i++ {
		wi := clsagAggregateMember(keys[i], zeroCommits[i], muP, muC)
		li := new(Point).Add(new(Point).ScalarBaseMult(sig.Responses[i]), new(Point).ScalarMult(c, wi))

		hpi, err := HPoint(keys[i])
		if err != nil {
			return err
		}
		ri := new(Point).Add(new(Point).ScalarMult(sig.Responses[i], hpi), new(Point).ScalarMult(c, rRingTerm))

		c, err = clsagRoundChallenge(msg, sig.KeyImage, sig.CommitmentKeyImage, li, ri)
		if err != nil {
			return err
		}
	}
	if c.Equal(sig.C0) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func clsagRoundChallenge(msg []byte, keyImage, commitmentKeyImage, l, r *Point) (*Scalar, error) {
	return HashToScalar(domainClsagRound, msg, keyImage.Bytes(), commitmentKeyImage.Bytes(), l.Bytes(), r.Bytes())
}

func randomScalar() (*Scalar, error) {
	kp, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}
	return kp.Private.Scalar, nil
}
