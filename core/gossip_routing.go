// SPDX-License-Identifier: Apache-2.0
package core

// Dual-path message routing: fast (direct gossip) vs private (onion
// circuit). Grounded on
// _examples/original_source/botho/src/network/privacy/routing.rs
// (MessageType::default_path, PrivacyRoutingConfig, PrivacyRouter.decide,
// RoutingMetrics).

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// MessagePath is the transport path a message takes.
type MessagePath int

const (
	PathFast MessagePath = iota
	PathPrivate
)

// MessageType is the kind of network message being routed, per spec.md
// §4.6's dual-path table.
type MessageType int

const (
	MsgScpNominate MessageType = iota
	MsgScpStatement
	MsgBlockHeader
	MsgBlockBody
	MsgPeerAnnouncement
	MsgPexMessage
	MsgTransaction
	MsgSyncRequest
	MsgWalletQuery
)

// DefaultPath returns the routing path spec.md §4.6 assigns to msgType:
// consensus/block/peer-announcement traffic goes fast, anything revealing
// sender activity goes private.
func (t MessageType) DefaultPath() MessagePath {
	switch t {
	case MsgScpNominate, MsgScpStatement, MsgBlockHeader, MsgBlockBody, MsgPeerAnnouncement, MsgPexMessage:
		return PathFast
	default:
		return PathPrivate
	}
}

// PrivacyRoutingConfig mirrors routing.rs's PrivacyRoutingConfig.
type PrivacyRoutingConfig struct {
	ForcePrivate  bool
	AllowFallback bool
	LogFallback   bool
}

// DefaultPrivacyRoutingConfig favors privacy over availability, matching
// routing.rs's Default impl.
func DefaultPrivacyRoutingConfig() PrivacyRoutingConfig {
	return PrivacyRoutingConfig{ForcePrivate: false, AllowFallback: false, LogFallback: true}
}

// MaxPrivacyRoutingConfig routes everything private with no fallback.
func MaxPrivacyRoutingConfig() PrivacyRoutingConfig {
	return PrivacyRoutingConfig{ForcePrivate: true, AllowFallback: false, LogFallback: true}
}

// RoutingDecision is the outcome of PrivacyRouter.Decide.
type RoutingDecision int

const (
	RouteUseFast RoutingDecision = iota
	RouteUsePrivate
	RouteFallbackToFast
	RouteQueueForCircuit
	RouteDrop
)

// IsImmediate reports whether the decision results in an immediate send.
func (d RoutingDecision) IsImmediate() bool {
	return d == RouteUseFast || d == RouteUsePrivate || d == RouteFallbackToFast
}

// RoutingMetrics tracks routing-decision counts for the status tick.
type RoutingMetrics struct {
	FastPathCount    uint64
	PrivatePathCount uint64
	FallbackCount    uint64
	QueuedCount      uint64
	DroppedCount     uint64
}

// PrivacyRouter decides, per message type and current circuit
// availability, which path a message should take.
type PrivacyRouter struct {
	config  PrivacyRoutingConfig
	metrics struct {
		fastPath, privatePath, fallback, queued, dropped atomic.Uint64
	}
	log *logrus.Entry
}

// NewPrivacyRouter builds a router with the given configuration.
func NewPrivacyRouter(cfg PrivacyRoutingConfig, log *logrus.Entry) *PrivacyRouter {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &PrivacyRouter{config: cfg, log: log}
}

// SelectPath returns the intended path, ignoring circuit availability.
func (r *PrivacyRouter) SelectPath(msgType MessageType) MessagePath {
	if r.config.ForcePrivate {
		return PathPrivate
	}
	return msgType.DefaultPath()
}

// ShouldUsePrivate is a convenience check equivalent to
// SelectPath(msgType) == PathPrivate.
func (r *PrivacyRouter) ShouldUsePrivate(msgType MessageType) bool {
	return r.SelectPath(msgType) == PathPrivate
}

// Decide makes the full routing decision considering circuit availability
// and the fallback policy.
func (r *PrivacyRouter) Decide(msgType MessageType, circuitAvailable bool) RoutingDecision {
	switch r.SelectPath(msgType) {
	case PathFast:
		r.metrics.fastPath.Add(1)
		return RouteUseFast
	default: // PathPrivate
		if circuitAvailable {
			r.metrics.privatePath.Add(1)
			return RouteUsePrivate
		}
		if r.config.AllowFallback {
			r.metrics.fallback.Add(1)
			if r.config.LogFallback {
				r.log.Warn("no circuit available, falling back to fast path")
			}
			return RouteFallbackToFast
		}
		r.metrics.queued.Add(1)
		return RouteQueueForCircuit
	}
}

// Metrics returns a snapshot of routing metrics.
func (r *PrivacyRouter) Metrics() RoutingMetrics {
	return RoutingMetrics{
		FastPathCount:    r.metrics.fastPath.Load(),
		PrivatePathCount: r.metrics.privatePath.Load(),
		FallbackCount:    r.metrics.fallback.Load(),
		QueuedCount:      r.metrics.queued.Load(),
		DroppedCount:     r.metrics.dropped.Load(),
	}
}

// PrivatePathRatio is the fraction of private-intended messages that
// actually used the private path (private / (private+fallback)).
func (m RoutingMetrics) PrivatePathRatio() float64 {
	totalIntended := m.PrivatePathCount + m.FallbackCount
	if totalIntended == 0 {
		return 1.0
	}
	return float64(m.PrivatePathCount) / float64(totalIntended)
}
