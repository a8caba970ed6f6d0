// SPDX-License-Identifier: Apache-2.0
package core

// Transaction builder: largest-first UTXO selection, dust-to-fee absorption,
// and per-input CLSAG signing over a decoy ring. Only classical transfers
// are built; there is no quantum-private (PQ) transfer path here. Grounded
// on _examples/original_source/botho-wallet/src/transaction.rs's
// TransactionBuilder (select_utxos, build_transfer).

import (
	"errors"
	"sort"
)

var (
	ErrAmountBelowDust    = errors.New("wallet: amount below dust threshold")
	ErrNoUTXOsAvailable   = errors.New("wallet: no utxos available")
	ErrInsufficientBalance = errors.New("wallet: insufficient funds")
	ErrBridgedRingMember  = errors.New("wallet: cannot use bridged utxo as pq-to-pq ring member")
)

// DecoySource supplies decoy candidates for ring construction, decoupling
// the builder from any particular chain-index implementation.
type DecoySource interface {
	Candidates(excludeKeys []*Point) ([]OutputCandidate, error)
}

// Builder constructs and signs transactions from an account's owned UTXOs.
type Builder struct {
	Account *Account
	UTXOs   []OwnedUTXO
	Decoys  *GammaDecoySelector
	Source  DecoySource
}

// NewBuilder binds a builder to an account, its current UTXO set, and a
// decoy source for ring construction.
func NewBuilder(account *Account, utxos []OwnedUTXO, decoys *GammaDecoySelector, source DecoySource) *Builder {
	return &Builder{Account: account, UTXOs: utxos, Decoys: decoys, Source: source}
}

// Balance sums every owned UTXO.
func (b *Builder) Balance() uint64 {
	var total uint64
	for _, u := range b.UTXOs {
		total += u.Out.Amount
	}
	return total
}

// selectUTXOs picks UTXOs largest-first until their sum reaches target,
// matching select_utxos's greedy strategy.
func (b *Builder) selectUTXOs(target uint64) ([]OwnedUTXO, uint64, error) {
	if len(b.UTXOs) == 0 {
		return nil, 0, ErrNoUTXOsAvailable
	}
	sorted := make([]OwnedUTXO, len(b.UTXOs))
	copy(sorted, b.UTXOs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Out.Amount > sorted[j].Out.Amount })

	var selected []OwnedUTXO
	var total uint64
	for _, u := range sorted {
		if total >= target {
			break
		}
		selected = append(selected, u)
		total += u.Out.Amount
	}
	if total < target {
		return nil, 0, ErrInsufficientBalance
	}
	return selected, total, nil
}

// BuildTransfer constructs a classical transfer: recipient output, optional
// change output (or dust absorbed into fee), and a CLSAG ring signature per
// input over RingSize-1 gamma-weighted decoys.
func (b *Builder) BuildTransfer(recipientView, recipientSpend *Point, amount, fee uint64) (*Transaction, uint64, error) {
	if amount == 0 {
		return nil, 0, errors.New("wallet: amount must be greater than zero")
	}
	if amount < DustThreshold {
		return nil, 0, ErrAmountBelowDust
	}
	totalNeeded := amount + fee
	selected, totalSelected, err := b.selectUTXOs(totalNeeded)
	if err != nil {
		return nil, 0, err
	}
	change := totalSelected - totalNeeded

	recipientOut, recipientBlinding, _, err := NewTxOut(amount, recipientView, recipientSpend, SubaddressDefault, nil)
	if err != nil {
		return nil, 0, err
	}
	outputs := []TxOut{*recipientOut}
	outputBlindings := []*Scalar{recipientBlinding}

	actualFee := fee
	if change >= DustThreshold {
		changeOut, changeBlinding, _, err := NewTxOut(change, b.Account.Keys.ViewPublic, b.Account.Keys.SpendPublic, SubaddressChange, nil)
		if err != nil {
			return nil, 0, err
		}
		outputs = append(outputs, *changeOut)
		outputBlindings = append(outputBlindings, changeBlinding)
	} else {
		actualFee = fee + change
	}

	inputs, err := b.buildSignedInputs(selected, outputs, outputBlindings, actualFee)
	if err != nil {
		return nil, 0, err
	}

	tx := NewTransaction(inputs, outputs, actualFee, b.Account.SyncHeight(), b.Account.SyncHeight()+MaxTombstoneBlocks)
	return tx, actualFee, nil
}

// ringPlan is one input's ring, assembled before any signature exists: the
// signing hash must cover every input's ring (it is consensus-critical
// structure, same as the teacher's transaction prefix hashing), so every
// ring has to be picked in a first pass before SigningHash can be computed
// once over the whole transaction.
type ringPlan struct {
	utxo      OwnedUTXO
	ring      []RingMember
	realIndex int
}

// buildSignedInputs builds every input's ring in a first pass, then signs
// each one over a single consistent signing hash of the fully-assembled
// (but not yet signed) transaction — matching how VerifyCLSAG later
// recomputes the identical hash from the finished transaction, since
// SigningHash covers each input's ring but never its signature.
func (b *Builder) buildSignedInputs(selected []OwnedUTXO, outputs []TxOut, outputBlindings []*Scalar, fee uint64) ([]TxIn, error) {
	outputBlindingSum := sumScalars(outputBlindings)
	outAgg := aggregateOutputCommitment(outputs)

	plans := make([]ringPlan, 0, len(selected))
	prelimInputs := make([]TxIn, 0, len(selected))
	for _, u := range selected {
		excludeKeys := []*Point{u.Out.TargetKey}
		candidates, err := b.Source.Candidates(excludeKeys)
		if err != nil {
			return nil, err
		}
		decoys, err := b.Decoys.SelectDecoysForInput(candidates, RingSize-1, excludeKeys)
		if err != nil {
			return nil, err
		}

		ring := make([]RingMember, 0, RingSize)
		ring = append(ring, RingMember{TargetKey: u.Out.TargetKey, Commitment: u.Out.Commitment})
		for _, d := range decoys {
			ring = append(ring, RingMember{TargetKey: d.TargetKey, Commitment: d.Commitment})
		}
		sort.Slice(ring, func(i, j int) bool {
			return string(ring[i].TargetKey.Bytes()) < string(ring[j].TargetKey.Bytes())
		})
		realIndex := 0
		for i, m := range ring {
			if string(m.TargetKey.Bytes()) == string(u.Out.TargetKey.Bytes()) {
				realIndex = i
				break
			}
		}

		plans = append(plans, ringPlan{utxo: u, ring: ring, realIndex: realIndex})
		prelimInputs = append(prelimInputs, TxIn{Ring: ring})
	}

	prelim := NewTransaction(prelimInputs, outputs, fee, b.Account.SyncHeight(), b.Account.SyncHeight()+MaxTombstoneBlocks)
	msg := prelim.SigningHash()

	inputs := make([]TxIn, 0, len(plans))
	for _, p := range plans {
		keys := make([]*Point, len(p.ring))
		zeroCommits := make([]*Point, len(p.ring))
		for i, m := range p.ring {
			keys[i] = m.TargetKey
			zeroCommits[i] = new(Point).Subtract(outAgg, m.Commitment)
		}

		onetimePriv := p.utxo.RecoverSpendKey(b.Account)
		// The spend's own blinding factor was never transmitted out of
		// band; it is re-derived the same way the recipient would derive
		// it on receipt, from the shared secret between this account's
		// view key and the output's ephemeral public key (see
		// DeriveBlindingFactor).
		inputShared := SharedSecretReceiver(b.Account.Keys.ViewPrivate, p.utxo.Out.PublicKey)
		inputBlinding, err := DeriveBlindingFactor(inputShared)
		if err != nil {
			return nil, err
		}

		sig, err := SignCLSAG(msg[:], keys, zeroCommits, p.realIndex, onetimePriv, inputBlinding, outputBlindingSum)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, TxIn{Ring: p.ring, Signature: sig})
	}
	return inputs, nil
}

// sumScalars adds a set of blinding factors, used to collapse every
// output's individual commitment blinding into the single aggregate
// SignCLSAG needs for its conservation check.
func sumScalars(scalars []*Scalar) *Scalar {
	sum := new(Scalar)
	for _, s := range scalars {
		sum = new(Scalar).Add(sum, s)
	}
	return sum
}
