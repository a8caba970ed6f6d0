// SPDX-License-Identifier: Apache-2.0
package core

// Structural and chain-state transaction validation, separate from mempool
// UTXO/signature validation (§4.4). Grounded on
// _examples/original_source/botho/src/consensus/validation.rs's
// TransactionValidator: cheapest checks first, PoW verification last since
// it is the most expensive.

import (
	"errors"
	"fmt"
	"time"
)

// Validation error taxonomy (§7). Each is a distinct sentinel so callers
// (consensus validity callback, mempool, RPC) can branch on kind without
// string matching.
var (
	ErrWrongPrevBlockHash      = errors.New("validation: wrong prev block hash")
	ErrWrongBlockHeight        = errors.New("validation: wrong block height")
	ErrWrongDifficulty         = errors.New("validation: wrong difficulty")
	ErrWrongReward             = errors.New("validation: wrong reward")
	ErrTimestampTooFarInFuture = errors.New("validation: timestamp too far in future")
	ErrTimestampBeforeParent   = errors.New("validation: timestamp before parent")
	ErrInvalidPoW              = errors.New("validation: invalid proof of work")
	ErrNoInputs                = errors.New("validation: no inputs")
	ErrNoOutputs               = errors.New("validation: no outputs")
	ErrZeroAmountOutput        = errors.New("validation: zero amount output")
	ErrStaleTransaction        = errors.New("validation: stale transaction")
	ErrInvalidPQCiphertext     = errors.New("validation: invalid pq ciphertext size")
	ErrInvalidPQSignature      = errors.New("validation: invalid pq signature size")
	ErrPQInputTooLarge         = errors.New("validation: too many pq inputs")
	ErrPQOutputTooLarge        = errors.New("validation: too many pq outputs")
)

// MaxFutureTimestampSecs bounds how far into the future a minting
// transaction's timestamp may claim to be (2 hours, per spec.md §4.4).
const MaxFutureTimestampSecs = 2 * 60 * 60

// MaxTxAge is the maximum number of blocks a transfer/PQ transaction may lag
// behind the chain tip before being considered stale.
const MaxTxAge = 100

// EmissionScheduleFunc computes the block reward for a given height and
// total-mined-so-far, pluggable so the validator doesn't hardcode a curve
// the ledger package owns.
type EmissionScheduleFunc func(height, totalMined uint64) uint64

// Validator holds a snapshot accessor and the emission schedule; it is
// stateless beyond that, matching TransactionValidator's read-only access
// to shared chain state.
type Validator struct {
	Ledger           *Ledger
	EmissionSchedule EmissionScheduleFunc
	Now              func() time.Time
}

// NewValidator builds a validator bound to a ledger and emission curve.
func NewValidator(ledger *Ledger, emission EmissionScheduleFunc) *Validator {
	return &Validator{Ledger: ledger, EmissionSchedule: emission, Now: time.Now}
}

// ValidateMintingTx checks a minting transaction against chain state,
// cheapest checks first, PoW last.
func (v *Validator) ValidateMintingTx(tx *MintingTx) error {
	state := v.Ledger.Snapshot()

	if tx.PrevBlockHash != state.TipHash {
		return ErrWrongPrevBlockHash
	}
	if tx.BlockHeight != state.Height+1 {
		return ErrWrongBlockHeight
	}
	if tx.Difficulty != state.Difficulty {
		return ErrWrongDifficulty
	}
	expectedReward := v.EmissionSchedule(tx.BlockHeight, state.TotalMined)
	if tx.Reward != expectedReward {
		return fmt.Errorf("%w: expected %d, got %d", ErrWrongReward, expectedReward, tx.Reward)
	}

	now := uint64(v.Now().Unix())
	if tx.Timestamp > now+MaxFutureTimestampSecs {
		return ErrTimestampTooFarInFuture
	}
	if tx.Timestamp < state.TipTimestamp {
		return ErrTimestampBeforeParent
	}

	if !tx.VerifyPoW() {
		return ErrInvalidPoW
	}
	return nil
}

// ValidateTransferTx checks structural invariants and staleness for a
// classical transfer transaction. Full UTXO existence and signature
// verification is the mempool's job (§4.4), since it needs the UTXO set.
func (v *Validator) ValidateTransferTx(tx *Transaction) error {
	state := v.Ledger.Snapshot()

	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}
	for _, o := range tx.Outputs {
		if o.Amount == 0 {
			return ErrZeroAmountOutput
		}
	}
	if tx.CreatedAtHeight+MaxTxAge < state.Height {
		return ErrStaleTransaction
	}
	return nil
}

// ValidateQuantumPrivateTx checks structure, staleness, and the exact PQ/
// classical signature and ciphertext sizes spec.md's external interfaces
// mandate.
func (v *Validator) ValidateQuantumPrivateTx(tx *QuantumPrivateTransaction) error {
	state := v.Ledger.Snapshot()

	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}
	if tx.CreatedAtHeight+MaxTxAge < state.Height {
		return ErrStaleTransaction
	}

	for _, o := range tx.Outputs {
		if o.Classical.Amount == 0 {
			return ErrZeroAmountOutput
		}
		if len(o.PQCiphertext) != PQCiphertextSize {
			return ErrInvalidPQCiphertext
		}
	}
	for _, in := range tx.Inputs {
		if len(in.PQSignature) != PQSignatureSize {
			return ErrInvalidPQSignature
		}
		if len(in.ClassicalSignature) != ClassicalSigSize {
			return errors.New("validation: invalid classical signature size")
		}
	}

	if len(tx.Inputs) > MaxInputs {
		return ErrPQInputTooLarge
	}
	if len(tx.Outputs) > MaxOutputs {
		return ErrPQOutputTooLarge
	}
	return nil
}

// BatchValidationResult separates a batch's hashes into valid and invalid,
// the latter tagged with the failing error.
type BatchValidationResult struct {
	Valid   [][32]byte
	Invalid []InvalidTx
}

// InvalidTx pairs a rejected transaction's hash with its validation error.
type InvalidTx struct {
	Hash [32]byte
	Err  error
}

// CandidateTx is one batch-validation input: its identity, whether it is a
// minting tx, and a thunk to run the right validator.
type CandidateTx struct {
	Hash       [32]byte
	IsMintingTx bool
	Validate   func() error
}

// ValidateBatch validates many candidates independently, continuing past
// individual failures (a rejected value is dropped from its slot's
// candidate set, not fatal to the batch — §4.3's failure semantics).
func (v *Validator) ValidateBatch(candidates []CandidateTx) BatchValidationResult {
	var result BatchValidationResult
	for _, c := range candidates {
		if err := c.Validate(); err != nil {
			result.Invalid = append(result.Invalid, InvalidTx{Hash: c.Hash, Err: err})
			continue
		}
		result.Valid = append(result.Valid, c.Hash)
	}
	return result
}
