// SPDX-License-Identifier: Apache-2.0
package core

// Constant-rate transmitter: a bounded FIFO queue fronted by a fixed send
// rate, generating cover traffic when idle. Grounded on
// _examples/original_source/botho/src/network/privacy/transmitter.rs
// (ConstantRateConfig, OutgoingMessage, TransmitterMetrics, tick's
// dequeue-or-cover-or-empty decision, oldest-drop overflow policy).

import "time"

// DefaultMessagesPerSecond and DefaultMaxQueueDepth mirror transmitter.rs's
// defaults (one message every 500ms, 100-deep queue).
const (
	DefaultMessagesPerSecond = 2.0
	DefaultMaxQueueDepth     = 100
)

// ConstantRateConfig parameterizes the transmitter.
type ConstantRateConfig struct {
	MessagesPerSecond float64
	CoverTraffic      bool
	MaxQueueDepth     int
}

// DefaultConstantRateConfig matches transmitter.rs's Default impl.
func DefaultConstantRateConfig() ConstantRateConfig {
	return ConstantRateConfig{
		MessagesPerSecond: DefaultMessagesPerSecond,
		CoverTraffic:      true,
		MaxQueueDepth:     DefaultMaxQueueDepth,
	}
}

// TickInterval is the spacing between sends at the configured rate.
func (c ConstantRateConfig) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.MessagesPerSecond)
}

// TransmitterMessageType distinguishes real traffic from cover traffic.
type TransmitterMessageType int

const (
	TransmitMessageTransaction TransmitterMessageType = iota
	TransmitMessageCover
)

// OutgoingMessage is one queued payload awaiting its rate-limited send slot.
type OutgoingMessage struct {
	Type    TransmitterMessageType
	Payload []byte
}

// IsCover reports whether this is cover traffic.
func (m OutgoingMessage) IsCover() bool { return m.Type == TransmitMessageCover }

type queuedMessage struct {
	message  OutgoingMessage
	queuedAt time.Time
}

// TransmitterMetrics counts transmitter activity.
type TransmitterMetrics struct {
	MessagesSent     uint64
	RealMessagesSent uint64
	CoverMessagesSent uint64
	MessagesDropped  uint64
	EmptyTicks       uint64
}

// ConstantRateTransmitter queues outgoing messages and releases them at a
// fixed rate, optionally filling idle ticks with cover traffic.
type ConstantRateTransmitter struct {
	Config  ConstantRateConfig
	queue   []queuedMessage
	lastSend time.Time
	metrics TransmitterMetrics
}

// NewConstantRateTransmitter builds a transmitter from config.
func NewConstantRateTransmitter(cfg ConstantRateConfig) *ConstantRateTransmitter {
	return &ConstantRateTransmitter{Config: cfg}
}

// Enqueue appends a message to the FIFO queue, dropping the oldest entry if
// the queue is already at MaxQueueDepth.
func (t *ConstantRateTransmitter) Enqueue(msg OutgoingMessage) {
	if len(t.queue) >= t.Config.MaxQueueDepth {
		t.queue = t.queue[1:]
		t.metrics.MessagesDropped++
	}
	t.queue = append(t.queue, queuedMessage{message: msg, queuedAt: time.Now()})
}

// QueueDepth returns the current queue length.
func (t *ConstantRateTransmitter) QueueDepth() int { return len(t.queue) }

// IsQueueEmpty reports whether the queue is empty.
func (t *ConstantRateTransmitter) IsQueueEmpty() bool { return len(t.queue) == 0 }

// Tick attempts one send slot: if the configured interval has elapsed since
// the last send, it dequeues the oldest real message, or generates cover
// traffic if the queue is empty and cover traffic is enabled, or records an
// empty tick. Returns nil when nothing was sent (interval not yet elapsed,
// or an empty tick).
func (t *ConstantRateTransmitter) Tick(now time.Time) (*OutgoingMessage, error) {
	if !t.lastSend.IsZero() && now.Sub(t.lastSend) < t.Config.TickInterval() {
		return nil, nil
	}

	if len(t.queue) > 0 {
		next := t.queue[0]
		t.queue = t.queue[1:]
		t.lastSend = now
		t.metrics.MessagesSent++
		t.metrics.RealMessagesSent++
		return &next.message, nil
	}

	if t.Config.CoverTraffic {
		payload, err := GenerateCoverPayload()
		if err != nil {
			return nil, err
		}
		t.lastSend = now
		t.metrics.MessagesSent++
		t.metrics.CoverMessagesSent++
		return &OutgoingMessage{Type: TransmitMessageCover, Payload: payload}, nil
	}

	t.lastSend = now
	t.metrics.EmptyTicks++
	return nil, nil
}

// Metrics returns a snapshot of transmitter counters.
func (t *ConstantRateTransmitter) Metrics() TransmitterMetrics {
	return t.metrics
}
