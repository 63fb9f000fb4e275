package companion

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// MIME types for outbound media chunks.
const (
	AudioMimeType = "audio/pcm;rate=16000"
	ImageMimeType = "image/jpeg"
)

// EncodedAudioPacket is one transport-ready chunk of microphone audio:
// base64 s16le PCM plus the MIME type the endpoint expects.
type EncodedAudioPacket struct {
	Data     string
	MimeType string
}

// FloatToPCM quantizes float samples to little-endian signed 16-bit PCM.
// Samples are clamped to [-1, 1]; negative values scale by 32768 and
// non-negative by 32767 so both ends of the int16 range are reachable.
func FloatToPCM(samples []float32) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// PCMToFloat reinterprets little-endian signed 16-bit PCM as float
// samples divided by 32768. An odd trailing byte is dropped.
func PCMToFloat(raw []byte) []float32 {
	n := len(raw) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// EncodePCM wraps float samples into the base64 envelope sent over the
// realtime input channel.
func EncodePCM(samples []float32) EncodedAudioPacket {
	return EncodedAudioPacket{
		Data:     base64.StdEncoding.EncodeToString(FloatToPCM(samples)),
		MimeType: AudioMimeType,
	}
}

// DecodePCM unwraps a base64 envelope of s16le PCM into float samples.
func DecodePCM(data string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	return PCMToFloat(raw), nil
}
