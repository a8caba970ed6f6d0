// SPDX-License-Identifier: Apache-2.0
package core

// Onion-circuit hop selection: relay scoring and subnet-diverse weighted
// sampling. Grounded on
// _examples/original_source/botho/src/network/privacy/selection.rs
// (CircuitSelector.select_diverse_hops, same_subnet/are_diverse,
// weighted_random_select, extract_subnet_from_endpoint). The relay_score
// formula itself is not stated as a closed form in selection.rs; it is
// reverse-engineered here from that file's test assertions (bandwidth
// capped at 0.4 around 10MB/s, uptime weighted 0.3, a NAT-type bonus table,
// and a load penalty), so it is a derived formula rather than a literal
// transliteration.

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNoQualifiedPeers     = errors.New("gossip: no qualified peers")
	ErrInsufficientDiversity = errors.New("gossip: insufficient subnet diversity")
)

// NATType bonuses the relay score in descending order of how reachable the
// relay is from the open internet.
type NATType int

const (
	NATOpen NATType = iota
	NATFullCone
	NATRestricted
	NATSymmetric
)

func (n NATType) bonus() float64 {
	switch n {
	case NATOpen:
		return 0.3
	case NATFullCone:
		return 0.2
	case NATRestricted:
		return 0.1
	default:
		return 0.0
	}
}

// RelayCapacity summarizes one relay's advertised operating characteristics.
type RelayCapacity struct {
	BandwidthBytesPerSec uint64
	UptimeFraction       float64 // [0,1]
	NAT                  NATType
	LoadFraction         float64 // [0,1], 1 == fully loaded
}

// relayScore blends normalized bandwidth (capped at 0.4 around 10MB/s),
// uptime (x0.3), a NAT-type bonus, and a load penalty (x0.3 subtracted),
// floored at 0.1 so no eligible relay is ever given zero selection weight.
func (c RelayCapacity) relayScore() float64 {
	const refBandwidth = 10 * 1024 * 1024
	bw := float64(c.BandwidthBytesPerSec) / refBandwidth
	if bw > 1 {
		bw = 1
	}
	score := bw*0.4 + c.UptimeFraction*0.3 + c.NAT.bonus() - c.LoadFraction*0.3
	if score < 0.1 {
		score = 0.1
	}
	return score
}

// RelayPeerInfo is one candidate hop: identity, optional IPv4 endpoint (for
// subnet-diversity bookkeeping), and its advertised capacity.
type RelayPeerInfo struct {
	PeerID   string
	IPv4     [4]byte
	HasIPv4  bool
	Capacity RelayCapacity
}

// SelectionConfig parameterizes hop selection, mirroring selection.rs's
// SelectionConfig defaults.
type SelectionConfig struct {
	MinRelayScore   float64
	MaxAttempts      int
	AllowUnknownIP  bool
	StrictDiversity bool
}

// DefaultSelectionConfig matches selection.rs's documented defaults.
func DefaultSelectionConfig() SelectionConfig {
	return SelectionConfig{
		MinRelayScore:   0.2,
		MaxAttempts:      100,
		AllowUnknownIP:  true,
		StrictDiversity: true,
	}
}

// CircuitSelector chooses subnet-diverse relay hops weighted by relay score.
type CircuitSelector struct {
	Config SelectionConfig
}

// NewCircuitSelector builds a selector with the given configuration.
func NewCircuitSelector(cfg SelectionConfig) *CircuitSelector {
	return &CircuitSelector{Config: cfg}
}

func subnet16(ip [4]byte) [2]byte {
	return [2]byte{ip[0], ip[1]}
}

func sameSubnet(a, b RelayPeerInfo) bool {
	if !a.HasIPv4 || !b.HasIPv4 {
		return false
	}
	return subnet16(a.IPv4) == subnet16(b.IPv4)
}

// areDiverse reports whether candidate shares no /16 subnet with any peer
// already chosen. A candidate with no known IPv4 is considered diverse only
// when the configuration allows unknown-IP relays.
func areDiverse(chosen []RelayPeerInfo, candidate RelayPeerInfo, allowUnknown bool) bool {
	if !candidate.HasIPv4 {
		return allowUnknown
	}
	for _, c := range chosen {
		if sameSubnet(c, candidate) {
			return false
		}
	}
	return true
}

// weightedRandomSelect picks one candidate index with probability
// proportional to its relay score, using crypto/rand for the draw (no
// adversary should be able to bias hop selection by predicting it).
func weightedRandomSelect(candidates []RelayPeerInfo) (int, error) {
	if len(candidates) == 0 {
		return -1, ErrNoQualifiedPeers
	}
	var total float64
	weights := make([]float64, len(candidates))
	for i, c := range candidates {
		w := c.Capacity.relayScore()
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return 0, nil
	}
	const scale = 1 << 24
	target, err := rand.Int(rand.Reader, big.NewInt(int64(total*scale)))
	if err != nil {
		return -1, fmt.Errorf("weighted select: %w", err)
	}
	threshold := float64(target.Int64()) / scale
	var cursor float64
	for i, w := range weights {
		cursor += w
		if threshold < cursor {
			return i, nil
		}
	}
	return len(candidates) - 1, nil
}

// SelectDiverseHops picks count relays from candidates, none sharing a /16
// subnet with another chosen hop, weighted by relay score at each step.
// Candidates below MinRelayScore are excluded up front.
func (s *CircuitSelector) SelectDiverseHops(candidates []RelayPeerInfo, count int) ([]RelayPeerInfo, error) {
	pool := make([]RelayPeerInfo, 0, len(candidates))
	for _, c := range candidates {
		if c.Capacity.relayScore() >= s.Config.MinRelayScore {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return nil, ErrNoQualifiedPeers
	}

	chosen := make([]RelayPeerInfo, 0, count)
	attempts := 0
	for len(chosen) < count && attempts < s.Config.MaxAttempts {
		attempts++
		var eligible []RelayPeerInfo
		for _, c := range pool {
			if containsPeer(chosen, c.PeerID) {
				continue
			}
			if !s.Config.StrictDiversity || areDiverse(chosen, c, s.Config.AllowUnknownIP) {
				eligible = append(eligible, c)
			}
		}
		if len(eligible) == 0 {
			break
		}
		idx, err := weightedRandomSelect(eligible)
		if err != nil {
			return nil, err
		}
		chosen = append(chosen, eligible[idx])
	}

	if len(chosen) < count {
		return nil, fmt.Errorf("%w: needed %d, found %d", ErrInsufficientDiversity, count, len(chosen))
	}
	return chosen, nil
}

func containsPeer(chosen []RelayPeerInfo, peerID string) bool {
	for _, c := range chosen {
		if c.PeerID == peerID {
			return true
		}
	}
	return false
}
