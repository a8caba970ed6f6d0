// SPDX-License-Identifier: Apache-2.0
package core

// Per-peer gossip rate limiting. Grounded on
// _examples/original_source/gossip/src/rate_limit.rs (GossipMessageType,
// PeerRateState/PeerRateLimiter, per-type-per-minute limits, violation
// counting, disconnect threshold, metrics). The sliding-window Vec<Instant>
// bookkeeping there is replaced with golang.org/x/time/rate token buckets
// per (peer, message type) plus a global per-peer bucket, the idiomatic Go
// equivalent of the same policy (see DESIGN.md).

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// GossipMessageType mirrors rate_limit.rs's GossipMessageType.
type GossipMessageType int

const (
	GossipMsgTransaction GossipMessageType = iota
	GossipMsgBlock
	GossipMsgConsensus
	GossipMsgAnnouncement
	GossipMsgPeerExchange
	GossipMsgOther
)

// MessageTypeLimits holds the per-minute ceiling for each named category.
type MessageTypeLimits struct {
	TransactionsPerMinute  int
	BlocksPerMinute        int
	ConsensusPerMinute     int
	AnnouncementsPerMinute int
}

// PeerRateLimitConfig mirrors rate_limit.rs's PeerRateLimitConfig.
type PeerRateLimitConfig struct {
	MaxMessagesPerSecond int
	BurstLimit           int
	DisconnectThreshold  uint32
	Enabled              bool
	MessageLimits        MessageTypeLimits
}

// DefaultPeerRateLimitConfig matches spec.md §4.6's rate-limit table:
// 100/min transactions, 10/min blocks, 50/min consensus, 20/min
// announcements.
func DefaultPeerRateLimitConfig() PeerRateLimitConfig {
	return PeerRateLimitConfig{
		MaxMessagesPerSecond: 5,
		BurstLimit:           20,
		DisconnectThreshold:  5,
		Enabled:              true,
		MessageLimits: MessageTypeLimits{
			TransactionsPerMinute:  100,
			BlocksPerMinute:        10,
			ConsensusPerMinute:     50,
			AnnouncementsPerMinute: 20,
		},
	}
}

func (c PeerRateLimitConfig) limitFor(msgType GossipMessageType) int {
	switch msgType {
	case GossipMsgTransaction:
		return c.MessageLimits.TransactionsPerMinute
	case GossipMsgBlock:
		return c.MessageLimits.BlocksPerMinute
	case GossipMsgConsensus:
		return c.MessageLimits.ConsensusPerMinute
	case GossipMsgAnnouncement, GossipMsgPeerExchange:
		return c.MessageLimits.AnnouncementsPerMinute
	default:
		return c.MaxMessagesPerSecond * 60
	}
}

// RateLimitResult mirrors rate_limit.rs's RateLimitResult enum.
type RateLimitResult int

const (
	RateLimitAllowed RateLimitResult = iota
	RateLimitLimited
	RateLimitDisconnect
)

// peerRateState is one peer's token buckets, rebuilt lazily per message
// type on first use (most peers never send every category).
type peerRateState struct {
	global     *rate.Limiter
	byType     map[GossipMessageType]*rate.Limiter
	violations uint32
}

func newPeerRateState(cfg PeerRateLimitConfig) *peerRateState {
	return &peerRateState{
		global: rate.NewLimiter(rate.Limit(cfg.MaxMessagesPerSecond), cfg.BurstLimit),
		byType: make(map[GossipMessageType]*rate.Limiter),
	}
}

func (s *peerRateState) limiterFor(cfg PeerRateLimitConfig, msgType GossipMessageType) *rate.Limiter {
	if l, ok := s.byType[msgType]; ok {
		return l
	}
	perMinute := cfg.limitFor(msgType)
	l := rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	s.byType[msgType] = l
	return l
}

// PeerRateLimiter tracks and enforces per-peer gossip rate limits.
type PeerRateLimiter struct {
	mu            sync.Mutex
	config        PeerRateLimitConfig
	peers         map[string]*peerRateState
	flaggedPeers  []string
	metrics       RateLimitMetrics
}

// NewPeerRateLimiter builds a limiter from config.
func NewPeerRateLimiter(cfg PeerRateLimitConfig) *PeerRateLimiter {
	return &PeerRateLimiter{
		config: cfg,
		peers:  make(map[string]*peerRateState),
	}
}

// RateLimitMetrics mirrors rate_limit.rs's RateLimitMetrics, minus the
// per-type breakdown (kept in one small struct since this project has no
// Prometheus dependency to export distinct series to).
type RateLimitMetrics struct {
	MessagesTotal    uint64
	RateLimitHits    uint64
	PeersBanned      uint64
}

// RecordMessage checks and records an untyped (Other category) message.
func (l *PeerRateLimiter) RecordMessage(peerID string) RateLimitResult {
	return l.RecordMessageTyped(peerID, GossipMsgOther)
}

// RecordMessageTyped checks and records a typed message from peerID,
// returning whether it is allowed, rate-limited, or triggers disconnect.
func (l *PeerRateLimiter) RecordMessageTyped(peerID string, msgType GossipMessageType) RateLimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.metrics.MessagesTotal++

	if !l.config.Enabled {
		return RateLimitAllowed
	}

	state, ok := l.peers[peerID]
	if !ok {
		state = newPeerRateState(l.config)
		l.peers[peerID] = state
	}

	now := time.Now()
	if !state.global.AllowN(now, 1) {
		return l.recordViolation(peerID, state)
	}
	typeLimiter := state.limiterFor(l.config, msgType)
	if !typeLimiter.AllowN(now, 1) {
		return l.recordViolation(peerID, state)
	}
	return RateLimitAllowed
}

func (l *PeerRateLimiter) recordViolation(peerID string, state *peerRateState) RateLimitResult {
	state.violations++
	l.metrics.RateLimitHits++
	if state.violations >= l.config.DisconnectThreshold {
		l.flaggedPeers = append(l.flaggedPeers, peerID)
		l.metrics.PeersBanned++
		return RateLimitDisconnect
	}
	return RateLimitLimited
}

// TakeFlaggedPeers returns and clears the set of peers flagged for
// disconnection since the last call.
func (l *PeerRateLimiter) TakeFlaggedPeers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	flagged := l.flaggedPeers
	l.flaggedPeers = nil
	return flagged
}

// RemovePeer drops a peer's tracked state, e.g. on disconnect.
func (l *PeerRateLimiter) RemovePeer(peerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.peers, peerID)
}

// Metrics returns a snapshot of aggregate rate-limit metrics.
func (l *PeerRateLimiter) Metrics() RateLimitMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metrics
}

// TrackedPeerCount returns the number of peers currently tracked.
func (l *PeerRateLimiter) TrackedPeerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.peers)
}
