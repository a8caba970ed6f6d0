package core

import "testing"

type fixedWealthProvider map[ClusterId]uint64

func (f fixedWealthProvider) ClusterWealth(cluster ClusterId) (uint64, error) {
	return f[cluster], nil
}

func TestClusterRateBpsBounds(t *testing.T) {
	cfg := DefaultFeeConfig()
	if r := ClusterRateBps(cfg, 0); r != cfg.BackgroundRateBps {
		t.Fatalf("zero wealth rate=%d want %d", r, cfg.BackgroundRateBps)
	}
	if r := ClusterRateBps(cfg, cfg.SteepnessPicocredits); r <= cfg.BackgroundRateBps {
		t.Fatalf("midpoint wealth rate=%d should exceed background", r)
	}
	huge := ClusterRateBps(cfg, cfg.SteepnessPicocredits*1_000_000)
	if huge >= cfg.MaxRateBps {
		t.Fatalf("rate=%d should stay strictly below MaxRateBps asymptote", huge)
	}
}

func TestEffectiveRateBpsAllBackground(t *testing.T) {
	cfg := DefaultFeeConfig()
	rate, err := EffectiveRateBps(cfg, fixedWealthProvider{}, NewTagVector())
	if err != nil {
		t.Fatalf("EffectiveRateBps: %v", err)
	}
	if rate != cfg.BackgroundRateBps {
		t.Fatalf("fully-background rate=%d want %d", rate, cfg.BackgroundRateBps)
	}
}

func TestEffectiveRateBpsWealthyCluster(t *testing.T) {
	cfg := DefaultFeeConfig()
	provider := fixedWealthProvider{1: cfg.SteepnessPicocredits * 100}
	tags := SingleCluster(1)
	rate, err := EffectiveRateBps(cfg, provider, tags)
	if err != nil {
		t.Fatalf("EffectiveRateBps: %v", err)
	}
	if rate <= cfg.BackgroundRateBps {
		t.Fatalf("wealthy fully-attributed rate=%d should exceed background", rate)
	}
}

func TestFeeOwedAndValidateFee(t *testing.T) {
	cfg := DefaultFeeConfig()
	provider := fixedWealthProvider{}
	fee, err := FeeOwed(cfg, provider, 1_000_000, NewTagVector())
	if err != nil {
		t.Fatalf("FeeOwed: %v", err)
	}
	if err := ValidateFee(fee, fee); err != nil {
		t.Fatalf("ValidateFee exact match should pass: %v", err)
	}
	if err := ValidateFee(fee-1, fee); err != ErrFeeTooLow {
		t.Fatalf("ValidateFee under required should fail with ErrFeeTooLow, got %v", err)
	}
}

func TestOutputPenaltyQuadratic(t *testing.T) {
	cfg := DefaultFeeConfig()
	if p := cfg.OutputPenalty(2); p != 1000 {
		t.Fatalf("2 outputs penalty=%d want 1000", p)
	}
	if p := cfg.OutputPenalty(3); p != 2250 {
		t.Fatalf("3 outputs penalty=%d want 2250", p)
	}
	if p := cfg.OutputPenalty(4); p != 4000 {
		t.Fatalf("4 outputs penalty=%d want 4000", p)
	}
}

func TestWalletFeeEstimatorBlendedFactor(t *testing.T) {
	est := NewWalletFeeEstimator()
	anon := []WeightedTagInput{{Amount: 100, Tags: NewTagVector()}}
	if f := est.BlendedClusterFactor(anon); f != 1000 {
		t.Fatalf("anonymous input factor=%d want 1000", f)
	}
	attributed := []WeightedTagInput{{Amount: 100, Tags: SingleCluster(1)}}
	if f := est.BlendedClusterFactor(attributed); f != 6000 {
		t.Fatalf("fully-attributed input factor=%d want 6000", f)
	}
}

func TestWalletFeeEstimatorEstimateFee(t *testing.T) {
	est := NewWalletFeeEstimator()
	est.SetBaseRate(2)
	inputs := []WeightedTagInput{{Amount: 100, Tags: NewTagVector()}}
	estimate := est.EstimateFee(inputs, 2)
	if estimate.TotalFee == 0 {
		t.Fatal("expected nonzero fee estimate")
	}
	if estimate.OutputPenalty != 0 {
		t.Fatalf("2-output baseline should carry no penalty, got %d", estimate.OutputPenalty)
	}
	withPenalty := est.EstimateFee(inputs, 5)
	if withPenalty.OutputPenalty == 0 {
		t.Fatal("5-output transaction should carry an output penalty")
	}
}
