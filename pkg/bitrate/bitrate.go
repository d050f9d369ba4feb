package bitrate

import "math"

// Clamp bounds for the computed audio bitrate in kbps.
// MinKbps matches the lowest rate libmp3lame produces with acceptable
// artifacts for speech; MaxKbps is the MP3 ceiling.
const (
	MinKbps = 32
	MaxKbps = 320
)

// DefaultFraction is the default target output size as a fraction of the input size.
const DefaultFraction = 0.8

// DefaultCapBytes is the absolute target size used by the fixed-cap policy (180MB).
const DefaultCapBytes = 180 * 1024 * 1024

// SizePolicy expresses the target-size heuristic as configuration rather than
// as separate code paths: either a fraction of the input size, or an absolute
// byte cap. When Fraction > 0 it wins; otherwise CapBytes applies.
type SizePolicy struct {
	// Fraction of the input size to target (e.g. 0.8 for 80% of the original).
	Fraction float64
	// CapBytes is the absolute output size to target when Fraction is unset.
	CapBytes int64
}

// FractionPolicy returns a policy targeting the given fraction of the input size.
func FractionPolicy(fraction float64) SizePolicy {
	return SizePolicy{Fraction: fraction}
}

// CapPolicy returns a policy targeting a fixed output size in bytes.
func CapPolicy(bytes int64) SizePolicy {
	return SizePolicy{CapBytes: bytes}
}

// DefaultPolicy targets 80% of the input size.
func DefaultPolicy() SizePolicy {
	return FractionPolicy(DefaultFraction)
}

// TargetBytes computes the byte budget for the output given the input size.
// An empty policy falls back to the default fraction.
func (p SizePolicy) TargetBytes(inputSize int64) int64 {
	if p.Fraction > 0 {
		return int64(float64(inputSize) * p.Fraction)
	}
	if p.CapBytes > 0 {
		return p.CapBytes
	}
	return int64(float64(inputSize) * DefaultFraction)
}

// Estimate computes the audio bitrate in kbps needed to fit targetBytes of
// output into durationSec seconds:
//
//	kbps = floor(targetBytes * 8 / durationSec / 1000)
//
// The result is clamped to [minKbps, maxKbps]. A non-positive or unknown
// duration yields the clamped maximum rather than propagating a division
// error into callers.
func Estimate(targetBytes int64, durationSec float64, minKbps, maxKbps int) int {
	if minKbps <= 0 {
		minKbps = MinKbps
	}
	if maxKbps <= 0 {
		maxKbps = MaxKbps
	}

	if durationSec <= 0 {
		return maxKbps
	}

	kbps := int(math.Floor(float64(targetBytes) * 8 / durationSec / 1000))

	if kbps < minKbps {
		return minKbps
	}
	if kbps > maxKbps {
		return maxKbps
	}
	return kbps
}

// EstimateForInput is a convenience that applies a SizePolicy to the input
// size and clamps with the package defaults.
func EstimateForInput(inputSize int64, durationSec float64, policy SizePolicy) int {
	return Estimate(policy.TargetBytes(inputSize), durationSec, MinKbps, MaxKbps)
}
