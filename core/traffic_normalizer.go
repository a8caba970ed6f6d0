// SPDX-License-Identifier: Apache-2.0
package core

// Traffic normalization: padding, jitter, and cover traffic. Grounded on
// _examples/original_source/botho/src/network/privacy/normalizer.rs
// (PADDING_BUCKETS ladder, NormalizerConfig/PrivacyLevel presets,
// pad_to_bucket/unpad_message, generate_jitter, cover-traffic sizing).

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math/big"
	"sort"
	"time"
)

// PaddingBuckets is the fixed bucket ladder spec.md §4.7 specifies.
var PaddingBuckets = []int{512, 2048, 8192, 32768, 131072}

var (
	ErrPayloadTooLarge = errors.New("traffic: payload exceeds largest padding bucket")
	ErrFrameTooShort   = errors.New("traffic: padded frame too short")
	ErrFrameCorrupt    = errors.New("traffic: padded frame length prefix invalid")
)

// SelectBucket returns the smallest bucket able to hold a 2-byte length
// prefix plus payloadLen bytes.
func SelectBucket(payloadLen int) (int, error) {
	needed := payloadLen + 2
	for _, b := range PaddingBuckets {
		if needed <= b {
			return b, nil
		}
	}
	return 0, ErrPayloadTooLarge
}

// PadToBucket writes a 16-bit little-endian length prefix, the payload,
// then random bytes out to the bucket size.
func PadToBucket(payload []byte) ([]byte, error) {
	bucket, err := SelectBucket(len(payload))
	if err != nil {
		return nil, err
	}
	out := make([]byte, bucket)
	binary.LittleEndian.PutUint16(out[:2], uint16(len(payload)))
	copy(out[2:], payload)
	if _, err := rand.Read(out[2+len(payload):]); err != nil {
		return nil, err
	}
	return out, nil
}

// UnpadFrame reverses PadToBucket: reads the prefix, validates it fits
// within the frame, and returns the original payload.
func UnpadFrame(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, ErrFrameTooShort
	}
	prefixLen := int(binary.LittleEndian.Uint16(frame[:2]))
	if prefixLen+2 > len(frame) {
		return nil, ErrFrameCorrupt
	}
	return frame[2 : 2+prefixLen], nil
}

// PrivacyLevel selects a bundle of normalizer settings, per spec.md §4.7's
// Standard/Enhanced/Maximum table.
type PrivacyLevel int

const (
	PrivacyStandard PrivacyLevel = iota
	PrivacyEnhanced
	PrivacyMaximum
)

// NormalizerConfig controls which Phase-2 traffic-shaping features are
// active and their parameters.
type NormalizerConfig struct {
	PaddingEnabled     bool
	JitterEnabled      bool
	JitterMinMs        uint64
	JitterMaxMs        uint64
	CoverTrafficEnabled bool
	CoverRatePerMin    uint32
}

// NormalizerConfigForLevel returns the preset configuration for level, per
// spec.md §4.7's table.
func NormalizerConfigForLevel(level PrivacyLevel) NormalizerConfig {
	switch level {
	case PrivacyEnhanced:
		return NormalizerConfig{PaddingEnabled: true, JitterEnabled: true, JitterMinMs: 50, JitterMaxMs: 200}
	case PrivacyMaximum:
		return NormalizerConfig{
			PaddingEnabled: true, JitterEnabled: true, JitterMinMs: 100, JitterMaxMs: 300,
			CoverTrafficEnabled: true, CoverRatePerMin: 4,
		}
	default:
		return NormalizerConfig{}
	}
}

// HasNormalization reports whether any shaping feature is active.
func (c NormalizerConfig) HasNormalization() bool {
	return c.PaddingEnabled || c.JitterEnabled || c.CoverTrafficEnabled
}

// PreparedMessage is the result of TrafficNormalizer.PrepareMessage.
type PreparedMessage struct {
	Payload      []byte
	OriginalSize int
	WasPadded    bool
	BucketSize   int
}

// PaddingOverhead is the number of padding bytes added.
func (p PreparedMessage) PaddingOverhead() int {
	return len(p.Payload) - p.OriginalSize
}

// NormalizerMetrics counts normalization activity, for the status tick.
type NormalizerMetrics struct {
	MessagesProcessed      uint64
	MessagesPadded         uint64
	PaddingBytesAdded      uint64
	JitterApplied          uint64
	TotalJitterMs          uint64
	CoverMessagesGenerated uint64
}

// TrafficNormalizer applies padding, jitter, and cover traffic according to
// its configured privacy level.
type TrafficNormalizer struct {
	Config  NormalizerConfig
	metrics NormalizerMetrics
}

// NewTrafficNormalizer builds a normalizer for the given configuration.
func NewTrafficNormalizer(cfg NormalizerConfig) *TrafficNormalizer {
	return &TrafficNormalizer{Config: cfg}
}

// PrepareMessage pads payload if padding is enabled, recording metrics.
func (n *TrafficNormalizer) PrepareMessage(payload []byte) (*PreparedMessage, error) {
	n.metrics.MessagesProcessed++
	if !n.Config.PaddingEnabled {
		return &PreparedMessage{Payload: append([]byte(nil), payload...), OriginalSize: len(payload)}, nil
	}
	padded, err := PadToBucket(payload)
	if err != nil {
		return nil, err
	}
	overhead := len(padded) - len(payload)
	n.metrics.MessagesPadded++
	n.metrics.PaddingBytesAdded += uint64(overhead)
	bucket, _ := SelectBucket(len(payload))
	return &PreparedMessage{Payload: padded, OriginalSize: len(payload), WasPadded: true, BucketSize: bucket}, nil
}

// GenerateJitter returns a uniform random delay in [JitterMinMs,
// JitterMaxMs], or zero if jitter is disabled or JitterMaxMs is zero.
func (n *TrafficNormalizer) GenerateJitter() (time.Duration, error) {
	if !n.Config.JitterEnabled || n.Config.JitterMaxMs == 0 {
		return 0, nil
	}
	lo, hi := n.Config.JitterMinMs, n.Config.JitterMaxMs
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo + 1
	r, err := rand.Int(rand.Reader, big.NewInt(int64(span)))
	if err != nil {
		return 0, err
	}
	ms := lo + r.Uint64()
	n.metrics.JitterApplied++
	n.metrics.TotalJitterMs += ms
	return time.Duration(ms) * time.Millisecond, nil
}

// ShouldGenerateCover reports whether cover traffic is active.
func (n *TrafficNormalizer) ShouldGenerateCover() bool {
	return n.Config.CoverTrafficEnabled && n.Config.CoverRatePerMin > 0
}

// CoverInterval is the spacing between generated cover messages, or zero
// with ok=false if cover traffic is disabled.
func (n *TrafficNormalizer) CoverInterval() (time.Duration, bool) {
	if !n.ShouldGenerateCover() {
		return 0, false
	}
	secs := 60.0 / float64(n.Config.CoverRatePerMin)
	return time.Duration(secs * float64(time.Second)), true
}

// GenerateCoverPayload returns random bytes sized from the observed
// real-transaction size distribution: 200-300 bytes (30%), 300-450 (50%),
// 450-600 (20%), per spec.md §4.7.
func GenerateCoverPayload() ([]byte, error) {
	roll, err := rand.Int(rand.Reader, big.NewInt(100))
	if err != nil {
		return nil, err
	}
	var lo, hi int64
	switch {
	case roll.Int64() < 30:
		lo, hi = 200, 300
	case roll.Int64() < 80:
		lo, hi = 300, 450
	default:
		lo, hi = 450, 600
	}
	span, err := rand.Int(rand.Reader, big.NewInt(hi-lo))
	if err != nil {
		return nil, err
	}
	size := lo + span.Int64()
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// RecordCoverGenerated marks a cover message as sent.
func (n *TrafficNormalizer) RecordCoverGenerated() {
	n.metrics.CoverMessagesGenerated++
}

// Metrics returns a snapshot of normalizer counters.
func (n *TrafficNormalizer) Metrics() NormalizerMetrics {
	return n.metrics
}

// KSStatisticUniform computes the one-sample Kolmogorov-Smirnov statistic
// of samples against the continuous uniform distribution on [lo, hi],
// letting tests check jitter/padding indistinguishability against a known
// reference distribution (spec.md §8's K-S testable properties).
func KSStatisticUniform(samples []float64, lo, hi float64) float64 {
	if len(samples) == 0 || hi <= lo {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	n := float64(len(sorted))
	var maxDiff float64
	for i, x := range sorted {
		empirical := float64(i+1) / n
		theoretical := (x - lo) / (hi - lo)
		if theoretical < 0 {
			theoretical = 0
		}
		if theoretical > 1 {
			theoretical = 1
		}
		if d := empirical - theoretical; d > maxDiff {
			maxDiff = d
		}
		if d := theoretical - float64(i)/n; d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff
}
