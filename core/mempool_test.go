package core

import (
	"math/rand"
	"testing"
)

// fakeDecoySource hands out a fixed pool of unspent-looking candidates,
// aged well past MinDecoyAgeBlocks, for ring construction in tests.
type fakeDecoySource struct {
	pool []OutputCandidate
}

func newFakeDecoySource(t *testing.T, n int) *fakeDecoySource {
	t.Helper()
	pool := make([]OutputCandidate, 0, n)
	for i := 0; i < n; i++ {
		out := testOutputAndCommitment(t, 1_000_000)
		pool = append(pool, OutputCandidate{Output: out, AgeBlocks: uint64(1000 + i)})
	}
	return &fakeDecoySource{pool: pool}
}

func (f *fakeDecoySource) Candidates(excludeKeys []*Point) ([]OutputCandidate, error) {
	out := make([]OutputCandidate, 0, len(f.pool))
	for _, c := range f.pool {
		if !containsKey(excludeKeys, c.Output.TargetKey) {
			out = append(out, c)
		}
	}
	return out, nil
}

// buildTestTransfer wires a funded account, a ledger holding its single
// UTXO, and a builder with a decoy pool, then returns a signed transfer
// transaction spending that UTXO.
func buildTestTransfer(t *testing.T, amount uint64) (*Transaction, *Ledger, *Account) {
	t.Helper()
	keys, err := NewStealthKeys()
	if err != nil {
		t.Fatalf("NewStealthKeys: %v", err)
	}
	account := NewAccount(keys)

	fundValue := amount + MinTxFee + 1_000_000
	out, _, ephPriv, err := NewTxOut(fundValue, keys.ViewPublic, keys.SpendPublic, SubaddressDefault, nil)
	if err != nil {
		t.Fatalf("NewTxOut: %v", err)
	}
	_ = ephPriv

	txHash := [32]byte{42}
	ledger := NewLedger(1)
	ledger.ApplyBlock([]*UTXO{{Out: *out, CreationHeight: 1, OutputIndex: 0, TxHash: txHash}}, nil, ChainState{Height: 1, Difficulty: 1})

	scanner := NewScanner(account)
	owned := scanner.ScanOutputs([]BlockOutputRef{{Height: 1, TxHash: txHash, OutputIndex: 0, Out: *out}})
	if len(owned) != 1 {
		t.Fatalf("expected scanner to recognize funding output, got %d matches", len(owned))
	}

	decoySource := newFakeDecoySource(t, RingSize*2)
	rng := rand.New(rand.NewSource(1))
	selector := NewGammaDecoySelector(rng)
	builder := NewBuilder(account, owned, selector, decoySource)

	cfg := DefaultFeeConfig()
	clusterFee, err := FeeOwed(cfg, fixedWealthProvider{}, amount, NewTagVector())
	if err != nil {
		t.Fatalf("FeeOwed: %v", err)
	}
	fee := MinTxFee + clusterFee + 1

	recipient, err := NewStealthKeys()
	if err != nil {
		t.Fatalf("NewStealthKeys recipient: %v", err)
	}
	tx, _, err := builder.BuildTransfer(recipient.ViewPublic, recipient.SpendPublic, amount, fee)
	if err != nil {
		t.Fatalf("BuildTransfer: %v", err)
	}
	return tx, ledger, account
}

func TestBuildTransferAcceptedByMempool(t *testing.T) {
	tx, ledger, _ := buildTestTransfer(t, 10_000_000)

	validator := NewValidator(ledger, fixedEmission(0))
	pool := NewMempool(ledger, validator, DefaultFeeConfig(), fixedWealthProvider{})

	entry, err := pool.AddTx(tx)
	if err != nil {
		t.Fatalf("AddTx: %v", err)
	}
	if entry.Hash != tx.Hash() {
		t.Fatal("mempool entry hash should match transaction hash")
	}
	if !pool.Contains(tx.Hash()) {
		t.Fatal("pool should contain the accepted transaction")
	}
}

func TestMempoolRejectsDoubleSpend(t *testing.T) {
	tx, ledger, _ := buildTestTransfer(t, 10_000_000)
	validator := NewValidator(ledger, fixedEmission(0))
	pool := NewMempool(ledger, validator, DefaultFeeConfig(), fixedWealthProvider{})

	if _, err := pool.AddTx(tx); err != nil {
		t.Fatalf("first AddTx: %v", err)
	}

	spent := make([]SpentInput, 0, len(tx.Inputs))
	for _, in := range tx.Inputs {
		spent = append(spent, SpentInput{KeyImage: in.Signature.KeyImage})
	}
	ledger.ApplyBlock(nil, spent, ledger.Snapshot())

	pool2 := NewMempool(ledger, validator, DefaultFeeConfig(), fixedWealthProvider{})
	if _, err := pool2.AddTx(tx); err != ErrInputAlreadySpent {
		t.Fatalf("expected ErrInputAlreadySpent, got %v", err)
	}
}

func TestMempoolRejectsAlreadyPooled(t *testing.T) {
	tx, ledger, _ := buildTestTransfer(t, 10_000_000)
	validator := NewValidator(ledger, fixedEmission(0))
	pool := NewMempool(ledger, validator, DefaultFeeConfig(), fixedWealthProvider{})

	if _, err := pool.AddTx(tx); err != nil {
		t.Fatalf("first AddTx: %v", err)
	}
	if _, err := pool.AddTx(tx); err != ErrTxAlreadyInPool {
		t.Fatalf("expected ErrTxAlreadyInPool, got %v", err)
	}
}

func TestMempoolSelectForBlockOrdersByFeePerByte(t *testing.T) {
	tx, ledger, _ := buildTestTransfer(t, 10_000_000)
	validator := NewValidator(ledger, fixedEmission(0))
	pool := NewMempool(ledger, validator, DefaultFeeConfig(), fixedWealthProvider{})
	if _, err := pool.AddTx(tx); err != nil {
		t.Fatalf("AddTx: %v", err)
	}
	selected := pool.SelectForBlock(10)
	if len(selected) != 1 {
		t.Fatalf("expected 1 selected entry, got %d", len(selected))
	}
}
