package companion

import (
	"encoding/base64"
	"math"
	"testing"
)

func TestFloatToPCMQuantization(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{name: "zero", sample: 0, want: 0},
		{name: "full positive", sample: 1.0, want: 32767},
		{name: "full negative", sample: -1.0, want: -32768},
		{name: "clamped high", sample: 1.5, want: 32767},
		{name: "clamped low", sample: -1.5, want: -32768},
		{name: "half positive", sample: 0.5, want: 16383},
		{name: "half negative", sample: -0.5, want: -16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := FloatToPCM([]float32{tt.sample})
			got := int16(uint16(raw[0]) | uint16(raw[1])<<8)
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestPCMRoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.99, -0.99, 1.0, -1.0, 0.0001}
	pkt := EncodePCM(in)
	if pkt.MimeType != AudioMimeType {
		t.Errorf("expected MIME type %q, got %q", AudioMimeType, pkt.MimeType)
	}
	out, err := DecodePCM(pkt.Data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 1.0/32767.0 {
			t.Errorf("sample %d: expected %.6f, got %.6f", i, in[i], out[i])
		}
	}
}

func TestPCMToFloatOddTrailingByte(t *testing.T) {
	raw := []byte{0x00, 0x40, 0x7F} // one full sample plus a stray byte
	out := PCMToFloat(raw)
	if len(out) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(out))
	}
	if math.Abs(float64(out[0])-0.5) > 0.001 {
		t.Errorf("expected 0.5, got %.4f", out[0])
	}
}

func TestPCMEmpty(t *testing.T) {
	pkt := EncodePCM(nil)
	if pkt.Data != "" {
		t.Errorf("expected empty payload, got %q", pkt.Data)
	}
	out, err := DecodePCM("")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no samples, got %d", len(out))
	}
}

func TestDecodePCMRejectsBadBase64(t *testing.T) {
	if _, err := DecodePCM("not!!base64"); err == nil {
		t.Error("expected an error for malformed base64")
	}
}

func TestEncodePCMPayloadIsBase64PCM(t *testing.T) {
	pkt := EncodePCM([]float32{0.5})
	raw, err := base64.StdEncoding.DecodeString(pkt.Data)
	if err != nil {
		t.Fatalf("payload is not base64: %v", err)
	}
	if len(raw) != 2 {
		t.Errorf("expected 2 bytes of PCM, got %d", len(raw))
	}
}
