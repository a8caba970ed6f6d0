package core

import "testing"

func TestHandleMessageUnknownCircuitDroppedSilently(t *testing.T) {
	handler := NewRelayHandler(nil, nil)
	before := handler.Metrics()

	outcome := handler.HandleMessage("peer-a", [16]byte{1, 2, 3}, []byte("whatever"))
	if outcome.Action != RelayActionDropped {
		t.Fatalf("outcome.Action = %v, want RelayActionDropped", outcome.Action)
	}
	if outcome.NextHop != "" || outcome.Forward != nil || outcome.Inner != nil {
		t.Fatal("an unknown-circuit outcome must carry no forwardable state")
	}

	after := handler.Metrics()
	if after.UnknownCircuit != before.UnknownCircuit+1 {
		t.Fatalf("UnknownCircuit = %d, want %d", after.UnknownCircuit, before.UnknownCircuit+1)
	}
	if after.Received != before.Received+1 {
		t.Fatalf("Received = %d, want %d", after.Received, before.Received+1)
	}
	// No other counter should move: the only observable side effect of an
	// unknown circuit is the metric increment.
	after.Received, before.Received = 0, 0
	after.UnknownCircuit, before.UnknownCircuit = 0, 0
	if after != before {
		t.Fatalf("unexpected metric movement: before=%+v after=%+v", before, after)
	}
}

func TestHandleMessageDecryptionFailureDroppedSilently(t *testing.T) {
	handler := NewRelayHandler(nil, nil)
	circuitID := [16]byte{9, 9, 9}
	handler.RegisterCircuit(circuitID, &CircuitEntry{Key: [32]byte{1}, NextHop: "peer-b"})
	before := handler.Metrics()

	// A ciphertext that was never sealed under this circuit's key must fail
	// AEAD authentication rather than decrypt to anything meaningful.
	outcome := handler.HandleMessage("peer-a", circuitID, []byte("not a real onion frame"))
	if outcome.Action != RelayActionDropped {
		t.Fatalf("outcome.Action = %v, want RelayActionDropped", outcome.Action)
	}

	after := handler.Metrics()
	if after.DecryptionFailure != before.DecryptionFailure+1 {
		t.Fatalf("DecryptionFailure = %d, want %d", after.DecryptionFailure, before.DecryptionFailure+1)
	}
	if after.Forwarded != before.Forwarded || after.Exited != before.Exited {
		t.Fatal("a decryption failure must not forward or exit")
	}
}

func TestHandleMessageForwardsCorrectlyDecryptedLayer(t *testing.T) {
	handler := NewRelayHandler(nil, nil)
	circuitID := [16]byte{1}
	key := [32]byte{7, 7, 7}
	handler.RegisterCircuit(circuitID, &CircuitEntry{Key: key, NextHop: "peer-next"})

	frame, err := WrapForwardLayer(key, "peer-next", []byte("inner-ciphertext"))
	if err != nil {
		t.Fatalf("WrapForwardLayer: %v", err)
	}

	outcome := handler.HandleMessage("peer-a", circuitID, frame)
	if outcome.Action != RelayActionForward {
		t.Fatalf("outcome.Action = %v, want RelayActionForward", outcome.Action)
	}
	if outcome.NextHop != "peer-next" {
		t.Fatalf("outcome.NextHop = %q, want %q", outcome.NextHop, "peer-next")
	}
	if string(outcome.Forward) != "inner-ciphertext" {
		t.Fatalf("outcome.Forward = %q, want %q", outcome.Forward, "inner-ciphertext")
	}
	if handler.Metrics().Forwarded != 1 {
		t.Fatalf("Forwarded = %d, want 1", handler.Metrics().Forwarded)
	}
}

func TestHandleMessageExitDispatchesTransaction(t *testing.T) {
	handler := NewRelayHandler(nil, nil)
	circuitID := [16]byte{2}
	key := [32]byte{3, 3, 3}
	handler.RegisterCircuit(circuitID, &CircuitEntry{Key: key, IsExit: true})

	inner := InnerMessage{Kind: InnerMessageTransaction, TxHash: [32]byte{5}, TxData: []byte("tx-bytes")}
	frame, err := WrapExitLayer(key, EncodeInnerMessage(inner))
	if err != nil {
		t.Fatalf("WrapExitLayer: %v", err)
	}

	outcome := handler.HandleMessage("peer-a", circuitID, frame)
	if outcome.Action != RelayActionExit {
		t.Fatalf("outcome.Action = %v, want RelayActionExit", outcome.Action)
	}
	if outcome.Inner == nil || outcome.Inner.Kind != InnerMessageTransaction || string(outcome.Inner.TxData) != "tx-bytes" {
		t.Fatalf("outcome.Inner = %+v, want a decoded transaction payload", outcome.Inner)
	}
	if handler.Metrics().Exited != 1 {
		t.Fatalf("Exited = %d, want 1", handler.Metrics().Exited)
	}
}

func TestHandleMessageExitDropsCoverTraffic(t *testing.T) {
	handler := NewRelayHandler(nil, nil)
	circuitID := [16]byte{4}
	key := [32]byte{8, 8, 8}
	handler.RegisterCircuit(circuitID, &CircuitEntry{Key: key, IsExit: true})

	frame, err := WrapExitLayer(key, EncodeInnerMessage(InnerMessage{Kind: InnerMessageCover}))
	if err != nil {
		t.Fatalf("WrapExitLayer: %v", err)
	}

	outcome := handler.HandleMessage("peer-a", circuitID, frame)
	if outcome.Action != RelayActionDropped {
		t.Fatalf("outcome.Action = %v, want RelayActionDropped for cover traffic", outcome.Action)
	}
	if handler.Metrics().CoverTraffic != 1 {
		t.Fatalf("CoverTraffic = %d, want 1", handler.Metrics().CoverTraffic)
	}
}
