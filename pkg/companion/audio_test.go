package companion

import (
	"math"
	"testing"
)

func TestResampleLength(t *testing.T) {
	tests := []struct {
		name       string
		inputLen   int
		sourceRate int
		targetRate int
		wantLen    int
	}{
		{
			name:       "48k to 16k thirds",
			inputLen:   4800,
			sourceRate: 48000,
			targetRate: 16000,
			wantLen:    1600,
		},
		{
			name:       "44.1k to 16k",
			inputLen:   4410,
			sourceRate: 44100,
			targetRate: 16000,
			wantLen:    1600,
		},
		{
			name:       "non-integral ratio",
			inputLen:   1000,
			sourceRate: 44100,
			targetRate: 16000,
			wantLen:    int(math.Round(1000 / (44100.0 / 16000.0))),
		},
		{
			name:       "single sample",
			inputLen:   1,
			sourceRate: 48000,
			targetRate: 16000,
			wantLen:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]float32, tt.inputLen)
			out := Resample(in, tt.sourceRate, tt.targetRate)
			if len(out) != tt.wantLen {
				t.Errorf("expected %d output samples, got %d", tt.wantLen, len(out))
			}
		})
	}
}

func TestResampleBlockMeans(t *testing.T) {
	// At an exact 3:1 ratio every output sample is the mean of three
	// consecutive inputs.
	in := []float32{0.3, 0.3, 0.3, 0.9, 0.9, 0.9, -0.6, -0.6, -0.6}
	out := Resample(in, 48000, 16000)
	want := []float32{0.3, 0.9, -0.6}
	if len(out) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(out))
	}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: expected %.4f, got %.4f", i, want[i], out[i])
		}
	}
}

func TestResamplePassthrough(t *testing.T) {
	in := []float32{0.1, 0.2, 0.3}

	out := Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("equal rates: expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("equal rates: sample %d changed", i)
		}
	}

	out = Resample(in, 8000, 16000)
	if len(out) != len(in) {
		t.Fatalf("upsampling: expected input returned unchanged, got %d samples", len(out))
	}
}

func TestResampleEmpty(t *testing.T) {
	out := Resample(nil, 48000, 16000)
	if len(out) != 0 {
		t.Errorf("expected empty output, got %d samples", len(out))
	}
}

func TestRMSEnergy(t *testing.T) {
	tests := []struct {
		name     string
		samples  []float32
		stride   int
		expected float64
	}{
		{
			name:     "silence",
			samples:  make([]float32, 64),
			stride:   16,
			expected: 0.0,
		},
		{
			name:     "constant half",
			samples:  repeat(0.5, 64),
			stride:   16,
			expected: 0.5,
		},
		{
			name:     "alternating sign",
			samples:  []float32{0.5, -0.5, 0.5, -0.5},
			stride:   1,
			expected: 0.5,
		},
		{
			name:     "empty",
			samples:  nil,
			stride:   16,
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMSEnergy(tt.samples, tt.stride)
			if math.Abs(got-tt.expected) > 0.01 {
				t.Errorf("expected RMS %.3f, got %.3f", tt.expected, got)
			}
		})
	}
}

func TestRMSEnergyStrideSubsamples(t *testing.T) {
	// Only every stride-th sample contributes. Loud samples placed off
	// the stride grid must not register.
	samples := make([]float32, 32)
	for i := 1; i < len(samples); i += 2 {
		samples[i] = 1.0
	}
	if got := RMSEnergy(samples, 16); got != 0 {
		t.Errorf("expected off-grid samples to be ignored, got RMS %.3f", got)
	}
}

func repeat(v float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}
