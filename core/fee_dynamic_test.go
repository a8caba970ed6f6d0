package core

import "testing"

func TestDynamicFeeBaseStaysAtMinimumBelowTarget(t *testing.T) {
	f := DefaultDynamicFeeBase()
	for i := 0; i < 5; i++ {
		f.Update(10, 100, true) // 10% fullness, well under the 75% target
	}
	if base := f.ComputeBase(true); base != f.BaseMin {
		t.Fatalf("base=%d want BaseMin=%d below target fullness", base, f.BaseMin)
	}
}

func TestDynamicFeeBaseStaysAtMinimumWhenNotPinned(t *testing.T) {
	f := DefaultDynamicFeeBase()
	for i := 0; i < 10; i++ {
		f.Update(95, 100, false) // full blocks, but not at the network minimum block time
	}
	if base := f.ComputeBase(false); base != f.BaseMin {
		t.Fatalf("base=%d want BaseMin=%d when block time is not pinned at minimum", base, f.BaseMin)
	}
}

func TestDynamicFeeBaseRisesAboveTargetAtMinBlockTime(t *testing.T) {
	f := DefaultDynamicFeeBase()
	var base uint64
	for i := 0; i < 20; i++ {
		base = f.Update(100, 100, true) // fully packed blocks, pinned at minimum block time
	}
	if base <= f.BaseMin {
		t.Fatalf("base=%d should exceed BaseMin once EMA exceeds target fullness", base)
	}
	if base > f.BaseMax {
		t.Fatalf("base=%d should never exceed BaseMax=%d", base, f.BaseMax)
	}
}

func TestDisabledDynamicFeeBaseAlwaysReturnsBaseMin(t *testing.T) {
	f := DisabledDynamicFeeBase()
	if !f.IsDisabled() {
		t.Fatal("DisabledDynamicFeeBase should report IsDisabled")
	}
	for i := 0; i < 10; i++ {
		f.Update(100, 100, true)
	}
	if base := f.ComputeBase(true); base != f.BaseMin {
		t.Fatalf("disabled base=%d want BaseMin=%d", base, f.BaseMin)
	}
}

func TestBlocksToRecoveryZeroAtOrBelowTarget(t *testing.T) {
	f := DefaultDynamicFeeBase()
	if n := f.BlocksToRecovery(); n != 0 {
		t.Fatalf("BlocksToRecovery()=%d want 0 when EMA starts at zero", n)
	}
}

func TestBlocksToRecoveryPositiveAboveTarget(t *testing.T) {
	f := DefaultDynamicFeeBase()
	for i := 0; i < 20; i++ {
		f.Update(100, 100, true)
	}
	if n := f.BlocksToRecovery(); n <= 0 {
		t.Fatalf("BlocksToRecovery()=%d want >0 once EMA exceeds target", n)
	}
}

func TestInitializeFromHistoryMatchesSequentialUpdate(t *testing.T) {
	samples := [][2]int{{10, 100}, {50, 100}, {90, 100}, {90, 100}}

	replayed := DefaultDynamicFeeBase()
	replayed.InitializeFromHistory(samples)

	sequential := DefaultDynamicFeeBase()
	for _, s := range samples {
		sequential.Update(s[0], s[1], true)
	}

	if replayed.CurrentFullness() != sequential.CurrentFullness() {
		t.Fatalf("InitializeFromHistory EMA=%v want sequential Update EMA=%v", replayed.CurrentFullness(), sequential.CurrentFullness())
	}
}

func TestSuggestFeesHighLoadFlag(t *testing.T) {
	f := DefaultDynamicFeeBase()
	for i := 0; i < 20; i++ {
		f.Update(100, 100, true)
	}
	suggestion := f.SuggestFees(1000, FactorScale, true)
	if !suggestion.HighLoad {
		t.Fatal("expected HighLoad=true once EMA fullness exceeds target at min block time")
	}
	if suggestion.Priority <= suggestion.Standard || suggestion.Standard <= suggestion.Minimum {
		t.Fatalf("fee tiers not strictly ordered: min=%d standard=%d priority=%d", suggestion.Minimum, suggestion.Standard, suggestion.Priority)
	}
}

func TestSuggestFeesIdleNoCongestion(t *testing.T) {
	f := DefaultDynamicFeeBase()
	suggestion := f.SuggestFees(1000, FactorScale, true)
	if suggestion.Congestion != 0 {
		t.Fatalf("Congestion=%v want 0 with an idle EMA", suggestion.Congestion)
	}
	if suggestion.HighLoad {
		t.Fatal("HighLoad should be false with an idle EMA")
	}
}
