// SPDX-License-Identifier: Apache-2.0
package core

// Progressive cluster-tax fee computation. The wealth-dependent rate curve
// (ClusterRateBps/EffectiveRateBps/FeeOwed) implements spec.md's rate
// formula directly; no original_source file carries bth_cluster_tax's
// FeeConfig definition (fee_estimation.rs only imports it), so this curve is
// an independent design decision recorded in DESIGN.md rather than a
// transliteration. The wallet-side blended factor and output penalty below
// are grounded on
// _examples/original_source/botho-wallet/src/fee_estimation.rs.

import (
	"errors"
	"math/bits"
)

var ErrFeeTooLow = errors.New("cluster fee: declared fee below required amount")

// FeeConfig parameterizes the per-cluster progressive rate curve and the
// output-count penalty.
type FeeConfig struct {
	// BackgroundRateBps is the rate (basis points) charged on unattributed
	// (background) value and on clusters with zero measured wealth.
	BackgroundRateBps uint64
	// MaxRateBps is the asymptotic rate as cluster wealth grows unbounded.
	MaxRateBps uint64
	// SteepnessPicocredits sets how much wealth it takes to approach
	// MaxRateBps: rate reaches the curve's midpoint when wealth equals this
	// value.
	SteepnessPicocredits uint64
	// OutputPenaltyBaselineOutputs is the output count charged at a 1x
	// multiplier; the quadratic penalty grows relative to it.
	OutputPenaltyBaselineOutputs uint64
}

// DefaultFeeConfig matches fee_estimation.rs's documented defaults: fees
// stay near the floor for ordinary transfers and grow toward a 50x ceiling
// only for very large cluster-attributed wealth.
func DefaultFeeConfig() *FeeConfig {
	return &FeeConfig{
		BackgroundRateBps:            10,
		MaxRateBps:                   500,
		SteepnessPicocredits:         1_000_000_000_000,
		OutputPenaltyBaselineOutputs: 2,
	}
}

// mulDivU64 computes a*b/divisor without intermediate overflow, using the
// full 128-bit product. Saturates to MaxUint64 rather than panicking if the
// quotient itself would not fit (divisor smaller than the true remainder
// after the 128-bit divide, which cannot happen for divisor > 0 here since
// the quotient of a 128-bit value by a 64-bit divisor that doesn't overflow
// the high word always fits in 64 bits).
func mulDivU64(a, b, divisor uint64) uint64 {
	if divisor == 0 {
		return ^uint64(0)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= divisor {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, divisor)
	return q
}

// ClusterWealthProvider resolves a cluster's measured wealth (in
// picocredits) for progressive rate calculation. Implementations typically
// read from the ledger's cluster-wealth index maintained by the consensus
// service.
type ClusterWealthProvider interface {
	ClusterWealth(cluster ClusterId) (uint64, error)
}

// ClusterRateBps computes rate_k = bg_rate + (max_rate-bg_rate)*x/(1+x) for
// x = wealth/steepness. Rewritten over a common denominator to stay in
// integer arithmetic: x/(1+x) = wealth/(wealth+steepness).
func ClusterRateBps(cfg *FeeConfig, wealth uint64) uint64 {
	if cfg.MaxRateBps <= cfg.BackgroundRateBps {
		return cfg.BackgroundRateBps
	}
	spread := cfg.MaxRateBps - cfg.BackgroundRateBps
	denom := wealth + cfg.SteepnessPicocredits
	if denom == 0 {
		return cfg.BackgroundRateBps
	}
	return cfg.BackgroundRateBps + mulDivU64(spread, wealth, denom)
}

// EffectiveRateBps blends each attributed cluster's rate and the background
// rate, weighted by tag mass, into a single effective rate for a transfer.
func EffectiveRateBps(cfg *FeeConfig, provider ClusterWealthProvider, tags *TagVector) (uint64, error) {
	entries := tags.Entries()
	if len(entries) == 0 {
		return cfg.BackgroundRateBps, nil
	}

	var weightedRate uint64
	var totalWeight uint64
	for _, e := range entries {
		wealth, err := provider.ClusterWealth(e.Cluster)
		if err != nil {
			return 0, err
		}
		rate := ClusterRateBps(cfg, wealth)
		weightedRate += uint64(e.Weight) * rate
		totalWeight += uint64(e.Weight)
	}

	background := tags.Background()
	weightedRate += uint64(background) * cfg.BackgroundRateBps
	totalWeight += uint64(background)

	if totalWeight == 0 {
		return cfg.BackgroundRateBps, nil
	}
	return weightedRate / totalWeight, nil
}

// FeeOwed computes transfer_amount * effective_rate / 10_000 (bps).
func FeeOwed(cfg *FeeConfig, provider ClusterWealthProvider, transferAmount uint64, tags *TagVector) (uint64, error) {
	rateBps, err := EffectiveRateBps(cfg, provider, tags)
	if err != nil {
		return 0, err
	}
	return mulDivU64(transferAmount, rateBps, 10_000), nil
}

// ValidateFee rejects a transaction whose declared fee is less than the
// cluster-tax-required amount.
func ValidateFee(declaredFee, requiredFee uint64) error {
	if declaredFee < requiredFee {
		return ErrFeeTooLow
	}
	return nil
}

// OutputPenalty returns the fee multiplier (parts per 1000; 1000 == 1x) for
// a transaction with numOutputs outputs, quadratic in the ratio of
// numOutputs to the configured baseline: 2 outputs -> 1000, 3 -> 2250,
// 4 -> 4000, discouraging UTXO farming via many small change outputs.
func (cfg *FeeConfig) OutputPenalty(numOutputs int) uint64 {
	if numOutputs < 1 {
		numOutputs = 1
	}
	baseline := cfg.OutputPenaltyBaselineOutputs
	if baseline == 0 {
		baseline = 2
	}
	penalty := mulDivU64(1000*uint64(numOutputs), uint64(numOutputs), baseline*baseline)
	if penalty < 1000 {
		penalty = 1000
	}
	return penalty
}

// Wallet-side size/fee estimation, grounded on fee_estimation.rs's
// FeeEstimator. Unlike FeeOwed (which the validator enforces against actual
// on-chain cluster wealth), this lets a wallet estimate its own fee before
// broadcasting, blending only the tag vectors it already knows about its own
// inputs.
const (
	Estimated2In2OutTxSize  = 6000
	SizePerAdditionalInput  = 416
	SizePerAdditionalOutput = 2500
	minimumTxSize           = 1000
)

// WeightedTagInput pairs a candidate input's value with its cluster tags,
// for blended-factor estimation.
type WeightedTagInput struct {
	Amount uint64
	Tags   *TagVector
}

// WalletFeeEstimate is the result of a wallet-side fee estimate.
type WalletFeeEstimate struct {
	TxSize        uint64
	ClusterFactor uint64
	BaseFee       uint64
	OutputPenalty uint64
	TotalFee      uint64
	Explanation   string
}

// WalletFeeEstimator estimates fees from a wallet's perspective using only
// locally-known tag vectors and a cached network base rate.
type WalletFeeEstimator struct {
	Config   *FeeConfig
	BaseRate uint64
}

// NewWalletFeeEstimator starts at the network minimum base rate.
func NewWalletFeeEstimator() *WalletFeeEstimator {
	return &WalletFeeEstimator{Config: DefaultFeeConfig(), BaseRate: 1}
}

// SetBaseRate updates the cached network base rate (nanocredits per byte).
func (e *WalletFeeEstimator) SetBaseRate(rate uint64) {
	if rate < 1 {
		rate = 1
	}
	e.BaseRate = rate
}

// EstimateTxSize scales from the 2-in/2-out baseline by per-input and
// per-output overhead.
func (e *WalletFeeEstimator) EstimateTxSize(numInputs, numOutputs int) uint64 {
	size := int64(Estimated2In2OutTxSize)
	if numInputs > 2 {
		size += int64(numInputs-2) * SizePerAdditionalInput
	} else if numInputs < 2 {
		size -= int64(2-numInputs) * SizePerAdditionalInput
	}
	if numOutputs > 2 {
		size += int64(numOutputs-2) * SizePerAdditionalOutput
	} else if numOutputs < 2 {
		size -= int64(2-numOutputs) * SizePerAdditionalOutput
	}
	if size < minimumTxSize {
		size = minimumTxSize
	}
	return uint64(size)
}

// BlendedClusterFactor value-weight-mixes every input's tag vector into one
// blended vector, then maps its total attribution linearly onto [1000,
// 6000]: fully anonymous inputs pay 1x, fully cluster-attributed inputs 6x.
func (e *WalletFeeEstimator) BlendedClusterFactor(inputs []WeightedTagInput) uint64 {
	if len(inputs) == 0 {
		return 1000
	}
	blended := NewTagVector()
	var accumulated uint64
	for _, in := range inputs {
		if in.Amount == 0 {
			continue
		}
		blended.Mix(accumulated, in.Tags, in.Amount)
		accumulated += in.Amount
	}
	if accumulated == 0 {
		return 1000
	}
	totalAttributed := uint64(blended.TotalAttributed())
	factor := 1000 + totalAttributed*5000/uint64(TagWeightScale)
	if factor > 6000 {
		factor = 6000
	}
	return factor
}

// outputPenaltyFee converts the config's output-count multiplier into an
// absolute fee amount beyond the 1x baseline.
func (e *WalletFeeEstimator) outputPenaltyFee(numOutputs int, txSize uint64) uint64 {
	multiplier := e.Config.OutputPenalty(numOutputs)
	if multiplier <= 1000 {
		return 0
	}
	baseSizeFee := txSize * e.BaseRate
	return baseSizeFee * (multiplier - 1000) / 1000
}

// EstimateFee combines size, blended cluster factor, and output penalty
// into a full wallet-side fee estimate.
func (e *WalletFeeEstimator) EstimateFee(inputs []WeightedTagInput, numOutputs int) *WalletFeeEstimate {
	numInputs := len(inputs)
	txSize := e.EstimateTxSize(numInputs, numOutputs)
	clusterFactor := e.BlendedClusterFactor(inputs)

	baseFee := txSize * e.BaseRate * clusterFactor / 1000
	outputPenalty := e.outputPenaltyFee(numOutputs, txSize)
	totalFee := baseFee + outputPenalty

	explanation := "No cluster tax (fully anonymous inputs)"
	if clusterFactor > 1000 {
		explanation = "Fee includes cluster tax from input wealth attribution"
	}

	return &WalletFeeEstimate{
		TxSize:        txSize,
		ClusterFactor: clusterFactor,
		BaseFee:       baseFee,
		OutputPenalty: outputPenalty,
		TotalFee:      totalFee,
		Explanation:   explanation,
	}
}
