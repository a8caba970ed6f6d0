package core

import (
	"errors"
	"testing"
)

func diversePeer(id string, subnetA, subnetB byte) RelayPeerInfo {
	return RelayPeerInfo{
		PeerID:  id,
		IPv4:    [4]byte{subnetA, subnetB, 1, 1},
		HasIPv4: true,
		Capacity: RelayCapacity{
			BandwidthBytesPerSec: 10 * 1024 * 1024,
			UptimeFraction:       0.99,
			NAT:                  NATOpen,
			LoadFraction:         0.1,
		},
	}
}

// TestSelectDiverseHopsFourDistinctSubnetsSucceeds reproduces spec.md §8
// scenario 6's first half: four peers in four distinct /16 subnets, three
// hops requested, all three chosen hops in distinct subnets.
func TestSelectDiverseHopsFourDistinctSubnetsSucceeds(t *testing.T) {
	peers := []RelayPeerInfo{
		diversePeer("peer-0", 10, 0),
		diversePeer("peer-1", 10, 1),
		diversePeer("peer-2", 10, 2),
		diversePeer("peer-3", 10, 3),
	}
	selector := NewCircuitSelector(DefaultSelectionConfig())

	hops, err := selector.SelectDiverseHops(peers, 3)
	if err != nil {
		t.Fatalf("SelectDiverseHops: %v", err)
	}
	if len(hops) != 3 {
		t.Fatalf("len(hops) = %d, want 3", len(hops))
	}
	subnets := make(map[[2]byte]bool, len(hops))
	for _, h := range hops {
		s := subnet16(h.IPv4)
		if subnets[s] {
			t.Fatalf("two chosen hops share subnet %v", s)
		}
		subnets[s] = true
	}
}

// TestSelectDiverseHopsOneSubnetFailsWithInsufficientDiversity reproduces
// spec.md §8 scenario 6's second half: three peers all in 10.0/16 under
// strict diversity, requesting 3 hops fails with
// InsufficientDiversity{needed:3, found:1}.
func TestSelectDiverseHopsOneSubnetFailsWithInsufficientDiversity(t *testing.T) {
	peers := []RelayPeerInfo{
		diversePeer("peer-0", 10, 0),
		diversePeer("peer-1", 10, 0),
		diversePeer("peer-2", 10, 0),
	}
	cfg := DefaultSelectionConfig()
	cfg.StrictDiversity = true
	selector := NewCircuitSelector(cfg)

	_, err := selector.SelectDiverseHops(peers, 3)
	if !errors.Is(err, ErrInsufficientDiversity) {
		t.Fatalf("SelectDiverseHops error = %v, want wrapping ErrInsufficientDiversity", err)
	}
	if want := "gossip: insufficient subnet diversity: needed 3, found 1"; err.Error() != want {
		t.Fatalf("SelectDiverseHops error text = %q, want %q", err.Error(), want)
	}
}

func TestSelectDiverseHopsExcludesLowScoringPeers(t *testing.T) {
	low := diversePeer("peer-low", 10, 0)
	low.Capacity = RelayCapacity{BandwidthBytesPerSec: 0, UptimeFraction: 0, NAT: NATSymmetric, LoadFraction: 1}
	peers := []RelayPeerInfo{low}
	selector := NewCircuitSelector(DefaultSelectionConfig())

	// relayScore floors at 0.1, below the default MinRelayScore of 0.2, so
	// this peer never enters the qualified pool at all.
	if _, err := selector.SelectDiverseHops(peers, 1); err != ErrNoQualifiedPeers {
		t.Fatalf("SelectDiverseHops with only a below-floor-scored peer = %v, want ErrNoQualifiedPeers", err)
	}
}

func TestSelectDiverseHopsNoQualifiedPeers(t *testing.T) {
	selector := NewCircuitSelector(DefaultSelectionConfig())
	if _, err := selector.SelectDiverseHops(nil, 1); err != ErrNoQualifiedPeers {
		t.Fatalf("SelectDiverseHops with no candidates = %v, want ErrNoQualifiedPeers", err)
	}
}
