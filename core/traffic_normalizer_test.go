package core

import (
	"math"
	"math/rand"
	"testing"
)

func TestPadToBucketUnpadFrameRoundTrip(t *testing.T) {
	lengths := []int{0, 1, 100, 510, 511, 2046, 8190, 32766, 131070}
	for _, n := range lengths {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i)
		}
		padded, err := PadToBucket(payload)
		if err != nil {
			t.Fatalf("PadToBucket(len=%d): %v", n, err)
		}
		found := false
		for _, b := range PaddingBuckets {
			if len(padded) == b {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("PadToBucket(len=%d) produced size %d, not one of %v", n, len(padded), PaddingBuckets)
		}

		recovered, err := UnpadFrame(padded)
		if err != nil {
			t.Fatalf("UnpadFrame(len=%d): %v", n, err)
		}
		if string(recovered) != string(payload) {
			t.Fatalf("UnpadFrame(PadToBucket(p)) did not round-trip for len=%d", n)
		}
	}
}

func TestPadToBucketRejectsPayloadLargerThanLargestBucket(t *testing.T) {
	payload := make([]byte, PaddingBuckets[len(PaddingBuckets)-1]+1)
	if _, err := PadToBucket(payload); err != ErrPayloadTooLarge {
		t.Fatalf("PadToBucket with an oversized payload = %v, want ErrPayloadTooLarge", err)
	}
}

func TestUnpadFrameRejectsShortFrame(t *testing.T) {
	if _, err := UnpadFrame([]byte{0x01}); err != ErrFrameTooShort {
		t.Fatalf("UnpadFrame(1 byte) = %v, want ErrFrameTooShort", err)
	}
}

func TestUnpadFrameRejectsCorruptLengthPrefix(t *testing.T) {
	frame := make([]byte, 16)
	frame[0], frame[1] = 0xff, 0xff // declares a length far larger than the frame
	if _, err := UnpadFrame(frame); err != ErrFrameCorrupt {
		t.Fatalf("UnpadFrame with a corrupt length prefix = %v, want ErrFrameCorrupt", err)
	}
}

// ksAsymptoticPValue converts a one-sample Kolmogorov-Smirnov statistic into
// its asymptotic p-value via the Kolmogorov distribution's series expansion,
// the standard closed-form used when no tabulated critical-value lookup is
// available.
func ksAsymptoticPValue(d float64, n int) float64 {
	t := d * math.Sqrt(float64(n))
	var sum float64
	sign := 1.0
	for k := 1; k <= 100; k++ {
		sum += sign * math.Exp(-2*float64(k)*float64(k)*t*t)
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// TestGenerateJitterBoundsAndUniformity exercises spec.md §8's jitter
// invariant: delays lie in [min_ms, max_ms], and 1000 samples are
// indistinguishable from the continuous uniform distribution on that range
// (K-S p > 0.05), checked with the exported KSStatisticUniform helper.
func TestGenerateJitterBoundsAndUniformity(t *testing.T) {
	normalizer := NewTrafficNormalizer(NormalizerConfig{JitterEnabled: true, JitterMinMs: 50, JitterMaxMs: 200})

	const sampleCount = 1000
	samples := make([]float64, sampleCount)
	for i := 0; i < sampleCount; i++ {
		d, err := normalizer.GenerateJitter()
		if err != nil {
			t.Fatalf("GenerateJitter: %v", err)
		}
		ms := d.Milliseconds()
		if ms < 50 || ms > 200 {
			t.Fatalf("jitter sample %dms outside [50,200]", ms)
		}
		samples[i] = float64(ms)
	}

	// GenerateJitter samples the discrete range [50,200]; the matching
	// continuous reference is [50,201) so every integer millisecond gets an
	// equal-width slice.
	stat := KSStatisticUniform(samples, 50, 201)
	p := ksAsymptoticPValue(stat, sampleCount)
	if p <= 0.05 {
		t.Fatalf("jitter K-S p-value = %v (D=%v), want > 0.05", p, stat)
	}
}

func TestGenerateJitterDisabledReturnsZero(t *testing.T) {
	normalizer := NewTrafficNormalizer(NormalizerConfig{JitterEnabled: false})
	d, err := normalizer.GenerateJitter()
	if err != nil {
		t.Fatalf("GenerateJitter: %v", err)
	}
	if d != 0 {
		t.Fatalf("GenerateJitter with jitter disabled = %v, want 0", d)
	}
}

// randomLengthIn returns a random int in [lo, hi) from a fixed-seed source,
// so test payload lengths are reproducible across runs.
var sizeClassRand = rand.New(rand.NewSource(42))

func randomLengthIn(lo, hi int) int {
	return lo + sizeClassRand.Intn(hi-lo)
}

// TestPaddingIndistinguishableAcrossPayloadSizeClasses reproduces spec.md
// §8 scenario 5: 500 small (100-300B) and 500 medium (300-500B) payloads,
// both padded. Every payload in both classes needs at most 502 bytes
// including its length prefix, well under the 512-byte bucket, so both
// classes' padded sizes collapse onto exactly the same constant — the two
// empirical bucket-size distributions are identical, making the two-sample
// K-S distance between them exactly zero and trivially indistinguishable
// (p=1 under any reference, comfortably above the scenario's p > 0.01
// threshold).
func TestPaddingIndistinguishableAcrossPayloadSizeClasses(t *testing.T) {
	const n = 500
	smallBuckets := make([]float64, n)
	mediumBuckets := make([]float64, n)

	for i := 0; i < n; i++ {
		small := make([]byte, randomLengthIn(100, 300))
		medium := make([]byte, randomLengthIn(300, 500))

		paddedSmall, err := PadToBucket(small)
		if err != nil {
			t.Fatalf("PadToBucket(small): %v", err)
		}
		paddedMedium, err := PadToBucket(medium)
		if err != nil {
			t.Fatalf("PadToBucket(medium): %v", err)
		}
		smallBuckets[i] = float64(len(paddedSmall))
		mediumBuckets[i] = float64(len(paddedMedium))
	}

	maxDiff := twoSampleKSStatistic(smallBuckets, mediumBuckets)
	if maxDiff != 0 {
		t.Fatalf("small/medium padded bucket-size distributions differ (D=%v), want indistinguishable", maxDiff)
	}
}

// twoSampleKSStatistic computes the two-sample Kolmogorov-Smirnov distance
// between two empirical distributions, for the indistinguishability check
// KSStatisticUniform (a one-sample test against a fixed reference) cannot
// express on its own.
func twoSampleKSStatistic(a, b []float64) float64 {
	all := append(append([]float64(nil), a...), b...)
	var maxDiff float64
	for _, x := range all {
		fa := empiricalCDF(a, x)
		fb := empiricalCDF(b, x)
		if d := math.Abs(fa - fb); d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff
}

func empiricalCDF(samples []float64, x float64) float64 {
	var count int
	for _, s := range samples {
		if s <= x {
			count++
		}
	}
	return float64(count) / float64(len(samples))
}
