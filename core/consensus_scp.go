// SPDX-License-Identifier: Apache-2.0
package core

// A minimal federated-voting SCP node. No Go package in the retrieval pack
// implements the Stellar Consensus Protocol (bth_consensus_scp is a Rust
// crate with no pack equivalent), so this is an independent, from-scratch
// implementation of the subset of SCP semantics this spec actually
// exercises: nominate a candidate value set, gossip it to the quorum slice,
// externalize once enough of the quorum echoes the identical set back.
// Full SCP's ballot/prepare/commit phases are not reproduced; the solo-mode
// bypass documented in service.rs (and required by spec.md §4.3) is the
// path every single-node deployment actually takes, and is implemented
// exactly. This is recorded as an Open Question resolution in DESIGN.md.

import (
	"errors"
)

// NodeID identifies a consensus participant by its long-lived responder
// identity (typically the node's public gossip peer id).
type NodeID string

// QuorumSet names the peers (including, optionally, self) whose agreement
// is required to externalize a slot, and how many of them must agree.
type QuorumSet struct {
	Threshold int
	Members   []NodeID
}

// IsSolo reports the 1-of-1-self quorum that triggers the bypass path.
func (q QuorumSet) IsSolo(self NodeID) bool {
	return q.Threshold == 1 && len(q.Members) == 1 && q.Members[0] == self
}

// ScpMsgTopic distinguishes message phases for telemetry; this
// implementation only ever emits Vote.
type ScpMsgTopic int

const (
	ScpTopicVote ScpMsgTopic = iota
)

// ScpMsg is the wire payload exchanged between consensus services,
// carrying one node's nominated value set for a slot.
type ScpMsg struct {
	Sender    NodeID
	SlotIndex uint64
	Topic     ScpMsgTopic
	Values    []ConsensusValue
}

var ErrUnknownSender = errors.New("scp: message from unknown quorum member")

func valuesEqual(a, b []ConsensusValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ScpNode drives federated voting for a single slot at a time.
type ScpNode struct {
	self      NodeID
	quorum    QuorumSet
	slot      uint64
	combine   func([]ConsensusValue) []ConsensusValue
	validity  func(ConsensusValue) error
	votes     map[NodeID][]ConsensusValue // slot-scoped: cleared on advance
	ownVote   []ConsensusValue
	extern    []ConsensusValue
	hasExtern bool
}

// NewScpNode builds a node starting at the given slot index (the next
// block height), with pure validity and combine callbacks.
func NewScpNode(self NodeID, quorum QuorumSet, slot uint64, validity func(ConsensusValue) error, combine func([]ConsensusValue) []ConsensusValue) *ScpNode {
	return &ScpNode{
		self:     self,
		quorum:   quorum,
		slot:     slot,
		combine:  combine,
		validity: validity,
		votes:    make(map[NodeID][]ConsensusValue),
	}
}

// CurrentSlotIndex returns the slot this node is currently trying to close.
func (n *ScpNode) CurrentSlotIndex() uint64 { return n.slot }

// ResetSlotIndex force-advances the slot (used by the solo-mode bypass,
// which externalizes without ever going through ProposeValues).
func (n *ScpNode) ResetSlotIndex(slot uint64) {
	n.slot = slot
	n.votes = make(map[NodeID][]ConsensusValue)
	n.extern = nil
	n.hasExtern = false
}

// ProposeValues nominates a candidate set for the current slot: filters out
// invalid values, combines the rest deterministically, records our own
// vote, and returns the message to broadcast (nil if nothing survived
// validation).
func (n *ScpNode) ProposeValues(candidates []ConsensusValue) (*ScpMsg, error) {
	valid := make([]ConsensusValue, 0, len(candidates))
	for _, c := range candidates {
		if n.validity == nil || n.validity(c) == nil {
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}
	combined := n.combine(valid)
	n.votes[n.self] = combined
	n.ownVote = combined
	n.checkQuorum()
	return &ScpMsg{Sender: n.self, SlotIndex: n.slot, Topic: ScpTopicVote, Values: combined}, nil
}

// HandleMessage records a peer's vote for this slot and returns our own
// latest vote to (re)broadcast, if we have one, so the network converges.
func (n *ScpNode) HandleMessage(msg *ScpMsg) (*ScpMsg, error) {
	if msg.SlotIndex != n.slot {
		return nil, nil // stale or future slot message, ignore
	}
	known := false
	for _, m := range n.quorum.Members {
		if m == msg.Sender {
			known = true
			break
		}
	}
	if !known {
		return nil, ErrUnknownSender
	}
	n.votes[msg.Sender] = msg.Values
	n.checkQuorum()
	if n.ownVote == nil {
		return nil, nil
	}
	return &ScpMsg{Sender: n.self, SlotIndex: n.slot, Topic: ScpTopicVote, Values: n.ownVote}, nil
}

// checkQuorum externalizes the value set once at least Threshold members
// (any subset, matching spec.md's abstraction of quorum slices as a single
// global quorum set) have echoed back the identical combined value set.
func (n *ScpNode) checkQuorum() {
	if n.hasExtern || n.ownVote == nil {
		return
	}
	agree := 0
	for _, m := range n.quorum.Members {
		if v, ok := n.votes[m]; ok && valuesEqual(v, n.ownVote) {
			agree++
		}
	}
	if agree >= n.quorum.Threshold {
		n.extern = n.ownVote
		n.hasExtern = true
	}
}

// GetExternalizedValues returns the externalized set for slot, if any.
func (n *ScpNode) GetExternalizedValues(slot uint64) ([]ConsensusValue, bool) {
	if slot != n.slot || !n.hasExtern {
		return nil, false
	}
	return n.extern, true
}

// ProcessTimeouts is a no-op in this simplified model: there is no
// ballot-phase timer to drive. Kept as a method so ConsensusService's tick
// loop matches service.rs's shape without a special case.
func (n *ScpNode) ProcessTimeouts() []*ScpMsg { return nil }
