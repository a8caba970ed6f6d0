package core

import "testing"

func newTestQuantumOutput(t *testing.T, value uint64) QuantumPrivateTxOutput {
	t.Helper()
	classical := testOutputAndCommitment(t, value)
	account, err := NewPQAccount()
	if err != nil {
		t.Fatalf("NewPQAccount: %v", err)
	}
	encap, err := EncapsulateBridge(&account.KEMPublic)
	if err != nil {
		t.Fatalf("EncapsulateBridge: %v", err)
	}
	return *NewQuantumPrivateTxOutput(classical, encap)
}

func TestQuantumPrivateTransactionHashChangesWithSignatures(t *testing.T) {
	out := newTestQuantumOutput(t, 2_000_000)
	tx := &QuantumPrivateTransaction{
		Outputs: []QuantumPrivateTxOutput{out},
		Fee:     MinTxFee,
	}
	signing := tx.SigningHash()

	tx.Inputs = []QuantumPrivateTxInput{{
		TxHash:             [32]byte{7},
		ClassicalSignature: make([]byte, ClassicalSigSize),
		PQSignature:        make([]byte, PQSignatureSize),
	}}
	if tx.SigningHash() == signing {
		t.Fatal("adding an input should change the signing hash (inputs are covered)")
	}

	unsigned := tx.Hash()
	tx.Inputs[0].ClassicalSignature[0] = 0xFF
	if tx.Hash() == unsigned {
		t.Fatal("changing a signature should change the transaction hash")
	}
}

func TestQuantumPrivateTransactionTotalOutputAndFee(t *testing.T) {
	out1 := newTestQuantumOutput(t, 1_000_000)
	out2 := newTestQuantumOutput(t, 2_000_000)
	tx := &QuantumPrivateTransaction{Outputs: []QuantumPrivateTxOutput{out1, out2}}
	if got := tx.TotalOutput(); got != 3_000_000 {
		t.Fatalf("TotalOutput=%d want 3000000", got)
	}

	tx.Fee = tx.MinimumFee()
	if !tx.HasSufficientFee() {
		t.Fatal("fee set to MinimumFee should be sufficient")
	}
	if tx.Fee < MinTxFee {
		t.Fatalf("MinimumFee=%d should never fall below MinTxFee=%d", tx.Fee, MinTxFee)
	}
}

func TestValidateQuantumPrivateTxSizeChecks(t *testing.T) {
	v, _ := newTestValidator(t, ChainState{Height: 10}, 0)
	out := newTestQuantumOutput(t, 1_000_000)
	in := QuantumPrivateTxInput{
		TxHash:             [32]byte{1},
		ClassicalSignature: make([]byte, ClassicalSigSize),
		PQSignature:        make([]byte, PQSignatureSize),
	}
	tx := &QuantumPrivateTransaction{
		Inputs:          []QuantumPrivateTxInput{in},
		Outputs:         []QuantumPrivateTxOutput{out},
		CreatedAtHeight: 10,
	}
	if err := v.ValidateQuantumPrivateTx(tx); err != nil {
		t.Fatalf("expected valid pq tx, got %v", err)
	}

	badSig := in
	badSig.PQSignature = make([]byte, PQSignatureSize-1)
	tx.Inputs = []QuantumPrivateTxInput{badSig}
	if err := v.ValidateQuantumPrivateTx(tx); err != ErrInvalidPQSignature {
		t.Fatalf("expected ErrInvalidPQSignature, got %v", err)
	}
}
