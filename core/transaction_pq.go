// SPDX-License-Identifier: Apache-2.0
package core

// Quantum-private transaction variant: a classical stealth output bridged
// to ML-KEM-768, spent by inputs that each carry a 64-byte classical
// signature and an ML-DSA-65 signature. Grounded on
// _examples/original_source/botho/src/transaction_pq.rs. Inputs name the
// spent output directly by (TxHash, OutputIndex); there is no CLSAG ring on
// this path.

import (
	"golang.org/x/crypto/blake2b"
)

const (
	pqTargetDomain = "botho-pq-target-v1"
)

// QuantumPrivateTxOutput pairs a classical stealth output with an ML-KEM-768
// encapsulation so a quantum-safe account can recognize and later spend it.
type QuantumPrivateTxOutput struct {
	Classical    TxOut
	PQCiphertext []byte
	PQTargetKey  [32]byte
}

// NewQuantumPrivateTxOutput builds a bridged output: a classical stealth
// output plus a PQ encapsulation whose target key is a deterministic hash
// of the shared secret (not a derived keypair — ML-KEM encapsulation is
// non-deterministic, so hashing the shared secret is the only way to get a
// scannable target without storing per-output randomness).
func NewQuantumPrivateTxOutput(classical TxOut, encap *PQEncapsulation) *QuantumPrivateTxOutput {
	return &QuantumPrivateTxOutput{
		Classical:    classical,
		PQCiphertext: encap.Ciphertext,
		PQTargetKey:  encap.TargetKey,
	}
}

// hashSharedSecret hashes a decapsulated shared secret and an output index
// under pqTargetDomain with Blake2b-256. It is not the derivation
// EncapsulateBridge uses (deriveBridgeTargetKey), and nothing in this
// package calls it.
func hashSharedSecret(sharedSecret []byte, outputIndex uint32) [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	h.Write([]byte(pqTargetDomain))
	h.Write(sharedSecret)
	h.Write(encodeU32(outputIndex))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Id is a unique identifier folding in both the classical and PQ halves.
func (o *QuantumPrivateTxOutput) Id() [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	h.Write(o.Classical.Bytes())
	h.Write(o.PQCiphertext)
	h.Write(o.PQTargetKey[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EstimatedSize approximates wire size for PQ fee estimation: classical
// 72 bytes (amount + target_key + public_key) plus the PQ ciphertext and
// target key.
func (o *QuantumPrivateTxOutput) EstimatedSize() int {
	return 72 + PQCiphertextSize + PQTargetKeySize
}

// QuantumPrivateTxInput names a spent output by (TxHash, OutputIndex) and
// carries a 64-byte classical signature and an ML-DSA-65 signature.
// ValidateQuantumPrivateTx checks only their lengths; it verifies neither.
type QuantumPrivateTxInput struct {
	TxHash             [32]byte
	OutputIndex        uint32
	ClassicalSignature []byte // 64-byte Schnorr, per spec.md's exact-size check
	PQSignature        []byte // mode3.SignatureSize bytes
}

// EstimatedSize approximates wire size: tx_hash(32) + output_index(4) +
// classical_signature(64) + pq_signature.
func (in *QuantumPrivateTxInput) EstimatedSize() int {
	return 32 + 4 + 64 + PQSignatureSize
}

// QuantumPrivateTransaction is a fully post-quantum-bridged transfer: every
// input carries both a classical and a PQ signature, every output carries
// both a classical stealth component and a PQ encapsulation.
type QuantumPrivateTransaction struct {
	Inputs          []QuantumPrivateTxInput
	Outputs         []QuantumPrivateTxOutput
	Fee             uint64
	CreatedAtHeight uint64
}

// SigningHash is the message both the classical and PQ signatures cover.
func (tx *QuantumPrivateTransaction) SigningHash() [32]byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	h.Write([]byte(domainTxSigning))
	h.Write([]byte("pq-v1"))
	for _, in := range tx.Inputs {
		h.Write(in.TxHash[:])
		h.Write(encodeU32(in.OutputIndex))
	}
	for _, out := range tx.Outputs {
		h.Write(out.Classical.Bytes())
		h.Write(out.PQCiphertext)
		h.Write(out.PQTargetKey[:])
	}
	h.Write(encodeU64(tx.Fee))
	h.Write(encodeU64(tx.CreatedAtHeight))
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// Hash is the transaction's identity, extending SigningHash with every
// input's completed signatures.
func (tx *QuantumPrivateTransaction) Hash() [32]byte {
	signing := tx.SigningHash()
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}
	h.Write(signing[:])
	for _, in := range tx.Inputs {
		h.Write(in.ClassicalSignature)
		h.Write(in.PQSignature)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// TotalOutput sums declared output values.
func (tx *QuantumPrivateTransaction) TotalOutput() uint64 {
	var total uint64
	for _, o := range tx.Outputs {
		total += o.Classical.Amount
	}
	return total
}

// MinimumFee estimates the PQ-specific per-byte fee for this transaction's
// size, per spec.md's PQFeePerByte constant.
func (tx *QuantumPrivateTransaction) MinimumFee() uint64 {
	size := uint64(24) // fee/height length-prefix overhead
	for _, in := range tx.Inputs {
		size += uint64(in.EstimatedSize())
	}
	for _, out := range tx.Outputs {
		size += uint64(out.EstimatedSize())
	}
	fee := size * PQFeePerByte / 1000
	if fee < MinTxFee {
		return MinTxFee
	}
	return fee
}

// HasSufficientFee reports whether the declared fee meets MinimumFee.
func (tx *QuantumPrivateTransaction) HasSufficientFee() bool {
	return tx.Fee >= tx.MinimumFee()
}
