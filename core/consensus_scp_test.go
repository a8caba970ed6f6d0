package core

import "testing"

func alwaysValid(ConsensusValue) error { return nil }

func TestQuorumSetIsSolo(t *testing.T) {
	self := NodeID("self")
	solo := QuorumSet{Threshold: 1, Members: []NodeID{self}}
	if !solo.IsSolo(self) {
		t.Fatal("a 1-of-1-self quorum set should report solo")
	}
	multi := QuorumSet{Threshold: 2, Members: []NodeID{self, "peer"}}
	if multi.IsSolo(self) {
		t.Fatal("a 2-member quorum set should not report solo")
	}
}

func TestScpNodeExternalizesOnceQuorumAgrees(t *testing.T) {
	self := NodeID("a")
	peer := NodeID("b")
	quorum := QuorumSet{Threshold: 2, Members: []NodeID{self, peer}}
	node := NewScpNode(self, quorum, 1, alwaysValid, combineValues)

	candidate := ConsensusValueFromTransaction([32]byte{1}, 10)
	msg, err := node.ProposeValues([]ConsensusValue{candidate})
	if err != nil {
		t.Fatalf("ProposeValues: %v", err)
	}
	if msg == nil {
		t.Fatal("ProposeValues should return a message to broadcast")
	}
	if _, ok := node.GetExternalizedValues(1); ok {
		t.Fatal("should not externalize before the peer echoes back")
	}

	peerMsg := &ScpMsg{Sender: peer, SlotIndex: 1, Topic: ScpTopicVote, Values: msg.Values}
	if _, err := node.HandleMessage(peerMsg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	values, ok := node.GetExternalizedValues(1)
	if !ok {
		t.Fatal("expected externalization once threshold members agree")
	}
	if len(values) != 1 || values[0].TxHash != candidate.TxHash {
		t.Fatalf("externalized values=%+v want [%+v]", values, candidate)
	}
}

func TestScpNodeRejectsUnknownSender(t *testing.T) {
	self := NodeID("a")
	peer := NodeID("b")
	quorum := QuorumSet{Threshold: 2, Members: []NodeID{self, peer}}
	node := NewScpNode(self, quorum, 1, alwaysValid, combineValues)

	msg := &ScpMsg{Sender: "stranger", SlotIndex: 1, Topic: ScpTopicVote, Values: nil}
	if _, err := node.HandleMessage(msg); err != ErrUnknownSender {
		t.Fatalf("HandleMessage from unknown sender = %v, want ErrUnknownSender", err)
	}
}

func TestScpNodeIgnoresStaleSlotMessage(t *testing.T) {
	self := NodeID("a")
	peer := NodeID("b")
	quorum := QuorumSet{Threshold: 2, Members: []NodeID{self, peer}}
	node := NewScpNode(self, quorum, 5, alwaysValid, combineValues)

	msg := &ScpMsg{Sender: peer, SlotIndex: 4, Topic: ScpTopicVote, Values: nil}
	resp, err := node.HandleMessage(msg)
	if err != nil {
		t.Fatalf("HandleMessage for a stale slot should not error: %v", err)
	}
	if resp != nil {
		t.Fatalf("HandleMessage for a stale slot should not produce a rebroadcast, got %+v", resp)
	}
}

func TestScpNodeProposeValuesFiltersInvalid(t *testing.T) {
	self := NodeID("a")
	quorum := QuorumSet{Threshold: 1, Members: []NodeID{self}}
	rejectAll := func(ConsensusValue) error { return ErrNoInputs }
	node := NewScpNode(self, quorum, 1, rejectAll, combineValues)

	msg, err := node.ProposeValues([]ConsensusValue{ConsensusValueFromTransaction([32]byte{1}, 1)})
	if err != nil {
		t.Fatalf("ProposeValues: %v", err)
	}
	if msg != nil {
		t.Fatalf("ProposeValues should return nil once every candidate is rejected, got %+v", msg)
	}
}

func TestScpNodeResetSlotIndexClearsState(t *testing.T) {
	self := NodeID("a")
	quorum := QuorumSet{Threshold: 1, Members: []NodeID{self}}
	node := NewScpNode(self, quorum, 1, alwaysValid, combineValues)

	if _, err := node.ProposeValues([]ConsensusValue{ConsensusValueFromTransaction([32]byte{1}, 1)}); err != nil {
		t.Fatalf("ProposeValues: %v", err)
	}
	if _, ok := node.GetExternalizedValues(1); !ok {
		t.Fatal("a 1-of-1 solo quorum should externalize on its own vote")
	}

	node.ResetSlotIndex(2)
	if node.CurrentSlotIndex() != 2 {
		t.Fatalf("CurrentSlotIndex()=%d want 2 after ResetSlotIndex", node.CurrentSlotIndex())
	}
	if _, ok := node.GetExternalizedValues(2); ok {
		t.Fatal("ResetSlotIndex should clear externalization state for the new slot")
	}
}
