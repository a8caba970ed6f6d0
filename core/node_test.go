package core

import (
	"strings"
	"testing"
)

func TestCheckQuorumExplicitModeMessage(t *testing.T) {
	cfg := NodeConfig{
		QuorumMode:      QuorumExplicit,
		QuorumThreshold: 2,
		QuorumMembers:   []NodeID{"a", "b"},
	}
	peers := StaticPeerSet{Members: []NodeID{"a"}}

	status := CheckQuorum(cfg, peers)
	if status.CanMine {
		t.Fatal("expected CanMine=false with only 1 of 2 required quorum members connected")
	}
	if !strings.Contains(status.Reason, "Quorum not satisfied (explicit mode): have 1, need 2 nodes") {
		t.Fatalf("Reason=%q does not match spec.md's explicit-mode error text", status.Reason)
	}
}

func TestCheckQuorumExplicitModeSatisfied(t *testing.T) {
	cfg := NodeConfig{
		QuorumMode:      QuorumExplicit,
		QuorumThreshold: 2,
		QuorumMembers:   []NodeID{"a", "b"},
	}
	peers := StaticPeerSet{Members: []NodeID{"a", "b"}}

	status := CheckQuorum(cfg, peers)
	if !status.CanMine {
		t.Fatalf("expected CanMine=true with both quorum members connected, got reason=%q", status.Reason)
	}
}

func TestCheckQuorumRecommendedModeMessage(t *testing.T) {
	cfg := NodeConfig{QuorumMode: QuorumRecommended, MinPeers: 3}
	peers := StaticPeerSet{Members: []NodeID{"a"}}

	status := CheckQuorum(cfg, peers)
	if status.CanMine {
		t.Fatal("expected CanMine=false with fewer connected peers than MinPeers")
	}
	if !strings.Contains(status.Reason, "Quorum not satisfied (recommended mode): have 1, need 3 peers") {
		t.Fatalf("Reason=%q does not match spec.md's recommended-mode error text", status.Reason)
	}
}

func TestCheckQuorumRecommendedModeSatisfied(t *testing.T) {
	cfg := NodeConfig{QuorumMode: QuorumRecommended, MinPeers: 1}
	peers := StaticPeerSet{Members: []NodeID{"a", "b"}}

	status := CheckQuorum(cfg, peers)
	if !status.CanMine {
		t.Fatalf("expected CanMine=true with peers >= MinPeers, got reason=%q", status.Reason)
	}
}

func TestStaticPeerSetConnectedMembers(t *testing.T) {
	set := StaticPeerSet{Members: []NodeID{"a", "b", "c"}}
	if got := set.ConnectedCount(); got != 3 {
		t.Fatalf("ConnectedCount()=%d want 3", got)
	}
	if got := set.ConnectedMembers([]NodeID{"b", "z"}); got != 1 {
		t.Fatalf("ConnectedMembers([b,z])=%d want 1", got)
	}
	if got := set.Candidates(); got != nil {
		t.Fatalf("Candidates()=%v want nil for a static peer set", got)
	}
}

func TestNullClusterWealthProviderAlwaysZero(t *testing.T) {
	var provider NullClusterWealthProvider
	wealth, err := provider.ClusterWealth(ClusterId(7))
	if err != nil {
		t.Fatalf("ClusterWealth: %v", err)
	}
	if wealth != 0 {
		t.Fatalf("ClusterWealth()=%d want 0", wealth)
	}
}

func TestNodeCanMineReflectsQuorumTransitions(t *testing.T) {
	ledger := NewLedger(1000)
	feeConfig := DefaultFeeConfig()
	wealth := NullClusterWealthProvider{}
	emission := func(height, totalMined uint64) uint64 { return 0 }
	validator := NewValidator(ledger, emission)
	mempool := NewMempool(ledger, validator, feeConfig, wealth)

	self := NodeID("self")
	quorum := QuorumSet{Threshold: 1, Members: []NodeID{self}}
	consensus := NewConsensusService(self, quorum, FixedTimingConfig(1), ledger, emission, nil)

	cfg := DefaultNodeConfig()
	cfg.QuorumMode = QuorumExplicit
	cfg.QuorumThreshold = 1
	cfg.QuorumMembers = []NodeID{self}

	n := NewNode(cfg, ledger, mempool, consensus, nil, StaticPeerSet{Members: []NodeID{self}}, nil, nil, nil, nil)

	if canMine, reason := n.CanMine(); canMine || reason != "" {
		t.Fatalf("CanMine() before any refresh = (%v, %q), want (false, \"\")", canMine, reason)
	}

	n.refreshQuorum()
	if canMine, reason := n.CanMine(); !canMine {
		t.Fatalf("CanMine() after refreshQuorum with a satisfied quorum = (%v, %q), want true", canMine, reason)
	}
}

func TestNodeSubmitTransactionRejectsEmptyTransaction(t *testing.T) {
	ledger := NewLedger(1000)
	feeConfig := DefaultFeeConfig()
	wealth := NullClusterWealthProvider{}
	emission := func(height, totalMined uint64) uint64 { return 0 }
	validator := NewValidator(ledger, emission)
	mempool := NewMempool(ledger, validator, feeConfig, wealth)

	self := NodeID("self")
	quorum := QuorumSet{Threshold: 1, Members: []NodeID{self}}
	consensus := NewConsensusService(self, quorum, FixedTimingConfig(1), ledger, emission, nil)

	cfg := DefaultNodeConfig()
	n := NewNode(cfg, ledger, mempool, consensus, nil, StaticPeerSet{Members: []NodeID{self}}, nil, nil, nil, nil)

	_, err := n.SubmitTransaction(&Transaction{})
	if err == nil {
		t.Fatal("expected an empty transaction with no inputs to be rejected by the mempool")
	}
}
