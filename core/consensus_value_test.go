package core

import "testing"

func TestConsensusValueLessMintingFirst(t *testing.T) {
	mining := ConsensusValueFromMintingTx([32]byte{9}, 1)
	transfer := ConsensusValueFromTransaction([32]byte{1}, 1000)
	if !mining.Less(transfer) {
		t.Fatal("a minting value must sort before any transfer value regardless of priority")
	}
	if transfer.Less(mining) {
		t.Fatal("a transfer value must never sort before a minting value")
	}
}

func TestConsensusValueLessPriorityDescending(t *testing.T) {
	high := ConsensusValueFromTransaction([32]byte{1}, 100)
	low := ConsensusValueFromTransaction([32]byte{2}, 10)
	if !high.Less(low) {
		t.Fatal("higher priority should sort before lower priority")
	}
	if low.Less(high) {
		t.Fatal("lower priority should not sort before higher priority")
	}
}

func TestConsensusValueLessHashTieBreak(t *testing.T) {
	a := ConsensusValueFromTransaction([32]byte{1}, 100)
	b := ConsensusValueFromTransaction([32]byte{2}, 100)
	if !a.Less(b) {
		t.Fatal("equal priority should fall back to ascending hash order")
	}
	if b.Less(a) {
		t.Fatal("the higher hash should not sort before the lower hash at equal priority")
	}
}

func TestSortConsensusValuesOrdering(t *testing.T) {
	values := []ConsensusValue{
		ConsensusValueFromTransaction([32]byte{3}, 10),
		ConsensusValueFromMintingTx([32]byte{1}, 1),
		ConsensusValueFromTransaction([32]byte{2}, 50),
	}
	sorted := sortConsensusValues(values)
	if !sorted[0].IsMintingTx {
		t.Fatalf("expected the minting value first, got %+v", sorted[0])
	}
	if sorted[1].Priority != 50 || sorted[2].Priority != 10 {
		t.Fatalf("transfers not sorted by priority descending: %+v", sorted)
	}
	// sortConsensusValues must not mutate its input.
	if values[0].Priority != 10 || !values[1].IsMintingTx {
		t.Fatal("sortConsensusValues mutated its input slice")
	}
}

func TestCombineValuesCapsToOneMintingTx(t *testing.T) {
	values := []ConsensusValue{
		ConsensusValueFromMintingTx([32]byte{1}, 5),
		ConsensusValueFromMintingTx([32]byte{2}, 9),
		ConsensusValueFromTransaction([32]byte{3}, 1),
	}
	combined := combineValues(values)
	minting := 0
	for _, v := range combined {
		if v.IsMintingTx {
			minting++
		}
	}
	if minting != 1 {
		t.Fatalf("combineValues kept %d minting values, want exactly 1", minting)
	}
	if !combined[0].IsMintingTx || combined[0].Priority != 9 {
		t.Fatalf("combineValues should keep the highest-priority minting value first, got %+v", combined[0])
	}
}

func TestCombineValuesEmptyInput(t *testing.T) {
	if combined := combineValues(nil); len(combined) != 0 {
		t.Fatalf("combineValues(nil)=%+v want empty", combined)
	}
}
