package core

import "testing"

func TestPQBridgeEncapsulateDecapsulateRoundTrip(t *testing.T) {
	account, err := NewPQAccount()
	if err != nil {
		t.Fatalf("NewPQAccount: %v", err)
	}

	enc, err := EncapsulateBridge(&account.KEMPublic)
	if err != nil {
		t.Fatalf("EncapsulateBridge: %v", err)
	}
	if len(enc.Ciphertext) != PQCiphertextSize {
		t.Fatalf("ciphertext size=%d want %d", len(enc.Ciphertext), PQCiphertextSize)
	}

	target, err := DecapsulateBridge(&account.KEMPrivate, enc.Ciphertext)
	if err != nil {
		t.Fatalf("DecapsulateBridge: %v", err)
	}
	if target != enc.TargetKey {
		t.Fatal("receiver-derived target key does not match the sender-derived target key")
	}
}

func TestPQBridgeWrongReceiverDerivesDifferentTarget(t *testing.T) {
	receiver, err := NewPQAccount()
	if err != nil {
		t.Fatalf("NewPQAccount: %v", err)
	}
	other, err := NewPQAccount()
	if err != nil {
		t.Fatalf("NewPQAccount: %v", err)
	}

	enc, err := EncapsulateBridge(&receiver.KEMPublic)
	if err != nil {
		t.Fatalf("EncapsulateBridge: %v", err)
	}

	target, err := DecapsulateBridge(&other.KEMPrivate, enc.Ciphertext)
	// Decapsulating with the wrong private key either errors (the scheme is
	// only IND-CCA-secure, not failure-transparent on every implementation)
	// or silently yields an unrelated shared secret; either way it must not
	// reproduce the sender's target key.
	if err == nil && target == enc.TargetKey {
		t.Fatal("decapsulating with the wrong receiver key must not reproduce the original target key")
	}
}

func TestSignPQAndVerifyPQ(t *testing.T) {
	account, err := NewPQAccount()
	if err != nil {
		t.Fatalf("NewPQAccount: %v", err)
	}
	msg := []byte("quantum-private transaction body")

	sig := SignPQ(account.SigPrivate, msg)
	if len(sig) != PQSignatureSize {
		t.Fatalf("signature size=%d want %d", len(sig), PQSignatureSize)
	}
	if !VerifyPQ(account.SigPublic, msg, sig) {
		t.Fatal("expected a correctly-signed ML-DSA-65 signature to verify")
	}
}

func TestVerifyPQRejectsTamperedMessage(t *testing.T) {
	account, err := NewPQAccount()
	if err != nil {
		t.Fatalf("NewPQAccount: %v", err)
	}
	sig := SignPQ(account.SigPrivate, []byte("original body"))
	if VerifyPQ(account.SigPublic, []byte("tampered body"), sig) {
		t.Fatal("VerifyPQ should reject a signature over a different message")
	}
}

func TestVerifyPQRejectsWrongKey(t *testing.T) {
	account, err := NewPQAccount()
	if err != nil {
		t.Fatalf("NewPQAccount: %v", err)
	}
	other, err := NewPQAccount()
	if err != nil {
		t.Fatalf("NewPQAccount: %v", err)
	}
	msg := []byte("quantum-private transaction body")
	sig := SignPQ(account.SigPrivate, msg)
	if VerifyPQ(other.SigPublic, msg, sig) {
		t.Fatal("VerifyPQ should reject a signature checked against an unrelated public key")
	}
}
