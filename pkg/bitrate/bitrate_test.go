package bitrate

import "testing"

func TestEstimate(t *testing.T) {
	tests := []struct {
		name        string
		targetBytes int64
		duration    float64
		min, max    int
		want        int
	}{
		{
			// floor(100MB * 0.8 * 8 / 100 / 1000) = 6710 kbps, clamped to 320
			name:        "100MB at 0.8 over 100s clamps to max",
			targetBytes: int64(float64(100*1024*1024) * 0.8),
			duration:    100,
			want:        320,
		},
		{
			// floor(50MB * 0.8 * 8 / 300 / 1000) = 1118 kbps, clamped to 320
			name:        "50MB at 0.8 over 300s clamps to max",
			targetBytes: int64(float64(50*1024*1024) * 0.8),
			duration:    300,
			want:        320,
		},
		{
			name:        "zero duration yields clamped max",
			targetBytes: 100 * 1024 * 1024,
			duration:    0,
			want:        320,
		},
		{
			name:        "negative duration yields clamped max",
			targetBytes: 100 * 1024 * 1024,
			duration:    -5,
			want:        320,
		},
		{
			name:        "tiny target over long duration clamps to min",
			targetBytes: 1024,
			duration:    3600,
			want:        32,
		},
		{
			// floor(4MB * 8 / 300 / 1000) = floor(111.8) = 111
			name:        "mid-range value passes through",
			targetBytes: 4 * 1024 * 1024,
			duration:    300,
			want:        111,
		},
		{
			name:        "custom 64 kbps floor",
			targetBytes: 1024,
			duration:    3600,
			min:         64,
			max:         320,
			want:        64,
		},
		{
			name:        "zero target clamps to min",
			targetBytes: 0,
			duration:    60,
			want:        32,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate(tt.targetBytes, tt.duration, tt.min, tt.max)
			if got != tt.want {
				t.Errorf("Estimate(%d, %f) = %d, want %d", tt.targetBytes, tt.duration, got, tt.want)
			}
		})
	}
}

func TestEstimateRawValueBeforeClamp(t *testing.T) {
	// Sanity-check the raw formula against a hand computation:
	// floor(100*1024*1024*0.8*8 / 100 / 1000) = 6710. With a raised ceiling
	// the unclamped value must come through exactly.
	target := int64(float64(100*1024*1024) * 0.8)
	got := Estimate(target, 100, 32, 10000)
	if got != 6710 {
		t.Errorf("Estimate() = %d, want 6710", got)
	}
}

func TestSizePolicyTargetBytes(t *testing.T) {
	tests := []struct {
		name      string
		policy    SizePolicy
		inputSize int64
		want      int64
	}{
		{"fraction policy", FractionPolicy(0.8), 1000, 800},
		{"cap policy", CapPolicy(DefaultCapBytes), 500 * 1024 * 1024, DefaultCapBytes},
		{"cap policy on small input still caps", CapPolicy(DefaultCapBytes), 10, DefaultCapBytes},
		{"empty policy uses default fraction", SizePolicy{}, 1000, 800},
		{"fraction wins over cap", SizePolicy{Fraction: 0.5, CapBytes: 100}, 1000, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.TargetBytes(tt.inputSize); got != tt.want {
				t.Errorf("TargetBytes(%d) = %d, want %d", tt.inputSize, got, tt.want)
			}
		})
	}
}

func TestEstimateForInput(t *testing.T) {
	// 50MB video, 300s, default 0.8 policy: raw 1118 kbps, clamped to 320.
	got := EstimateForInput(50*1024*1024, 300, DefaultPolicy())
	if got != 320 {
		t.Errorf("EstimateForInput() = %d, want 320", got)
	}
}
