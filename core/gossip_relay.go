// SPDX-License-Identifier: Apache-2.0
package core

// Relay handler: the per-circuit hop logic onion messages pass through.
// Grounded on
// _examples/original_source/botho/src/network/privacy/relay_handler.rs
// (RelayAction, RelayMetrics, handle_message's rate-limit -> lookup ->
// decrypt -> dispatch flow, and its "silently dropped, no error response"
// security property for unknown circuits and decryption failures).

import (
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// RelayAction is the outcome of handling one incoming onion message.
type RelayAction int

const (
	RelayActionDropped RelayAction = iota
	RelayActionForward
	RelayActionExit
)

// CircuitEntry is one relay's local state for a circuit it participates in:
// the symmetric key for its layer and the next hop to forward to (empty at
// the exit).
type CircuitEntry struct {
	Key     [32]byte
	NextHop string
	IsExit  bool
}

// RelayMetrics counts relay-handler outcomes, mirroring relay_handler.rs's
// atomic counters (here guarded by the handler's own mutex rather than
// individually atomic, since every mutation already holds that lock).
type RelayMetrics struct {
	Received           uint64
	Forwarded          uint64
	Exited             uint64
	RateLimited        uint64
	UnknownCircuit     uint64
	DecryptionFailure  uint64
	CoverTraffic       uint64
	FlaggedDisconnect  uint64
}

// RelayOutcome describes what happened to one incoming message, for the
// caller (node orchestrator) to act on.
type RelayOutcome struct {
	Action   RelayAction
	NextHop  string
	Forward  []byte // re-wrapped OnionRelayMessage payload (Action == Forward)
	Inner    *InnerMessage // deserialized inner message (Action == Exit)
}

// RelayHandler owns the circuit table and rate limiter for one node's
// relay role. Mutations are serialized through its single mutex, matching
// spec.md §5's "relay_state: single owner in the onion handler."
type RelayHandler struct {
	mu       sync.Mutex
	circuits map[[16]byte]*CircuitEntry
	limiter  *PeerRateLimiter
	metrics  RelayMetrics
	log      *logrus.Entry
}

// NewRelayHandler builds a relay handler bound to a rate limiter.
func NewRelayHandler(limiter *PeerRateLimiter, log *logrus.Entry) *RelayHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RelayHandler{
		circuits: make(map[[16]byte]*CircuitEntry),
		limiter:  limiter,
		log:      log,
	}
}

// RegisterCircuit installs (or replaces) the local state for circuitID.
func (h *RelayHandler) RegisterCircuit(circuitID [16]byte, entry *CircuitEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.circuits[circuitID] = entry
}

// ExpireCircuit removes a circuit's local state, e.g. after inactivity.
func (h *RelayHandler) ExpireCircuit(circuitID [16]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.circuits, circuitID)
}

// HandleMessage runs the full relay pipeline for one incoming onion
// message from sourcePeer: rate-limit, circuit lookup, single-layer
// decrypt, then forward/exit dispatch. Unknown circuits and decryption
// failures are silently dropped — logged without payload, with no response
// sent to the source, so a probing peer cannot distinguish "bad circuit"
// from "bad key" from network noise.
func (h *RelayHandler) HandleMessage(sourcePeer string, circuitID [16]byte, ciphertext []byte) RelayOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.metrics.Received++

	if h.limiter != nil {
		switch h.limiter.RecordMessageTyped(sourcePeer, GossipMsgTransaction) {
		case RateLimitDisconnect:
			h.metrics.RateLimited++
			h.metrics.FlaggedDisconnect++
			return RelayOutcome{Action: RelayActionDropped}
		case RateLimitLimited:
			h.metrics.RateLimited++
			return RelayOutcome{Action: RelayActionDropped}
		}
	}

	entry, ok := h.circuits[circuitID]
	if !ok {
		h.metrics.UnknownCircuit++
		h.log.Debug("relay: dropping message for unknown circuit")
		return RelayOutcome{Action: RelayActionDropped}
	}

	peeled, err := PeelLayer(entry.Key, ciphertext)
	if err != nil {
		h.metrics.DecryptionFailure++
		h.log.Debug("relay: dropping message that failed layer decryption")
		return RelayOutcome{Action: RelayActionDropped}
	}

	switch peeled.Type {
	case OnionLayerForward:
		h.metrics.Forwarded++
		return RelayOutcome{
			Action:  RelayActionForward,
			NextHop: peeled.NextHop,
			Forward: peeled.InnerBytes,
		}
	case OnionLayerExit:
		inner, err := DecodeInnerMessage(peeled.InnerBytes)
		if err != nil {
			h.metrics.DecryptionFailure++
			return RelayOutcome{Action: RelayActionDropped}
		}
		if inner.Kind == InnerMessageCover {
			h.metrics.CoverTraffic++
			return RelayOutcome{Action: RelayActionDropped}
		}
		h.metrics.Exited++
		return RelayOutcome{Action: RelayActionExit, Inner: inner}
	default:
		h.metrics.DecryptionFailure++
		return RelayOutcome{Action: RelayActionDropped}
	}
}

// Metrics returns a snapshot of the handler's counters.
func (h *RelayHandler) Metrics() RelayMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metrics
}

// ShouldBroadcastTransaction checks that an exited transaction's declared
// hash matches its data before the node hands it to the broadcast plane,
// mirroring relay_handler.rs's should_broadcast_transaction sanity check.
func ShouldBroadcastTransaction(inner *InnerMessage) bool {
	if inner == nil || inner.Kind != InnerMessageTransaction {
		return false
	}
	if len(inner.TxData) == 0 {
		return false
	}
	computed := blake2b.Sum256(inner.TxData)
	return computed == inner.TxHash
}
