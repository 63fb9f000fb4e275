package companion

import (
	"math"
	"time"
)

// Standard sample rates for the live session. The endpoint accepts
// microphone audio at 16 kHz and synthesizes replies at 24 kHz.
const (
	InputSampleRate  = 16000
	OutputSampleRate = 24000
)

// AudioFrame is one block of mono float samples from the microphone,
// in the range [-1, 1], at the capture hardware's native rate.
type AudioFrame struct {
	Samples  []float32
	Rate     int
	Captured time.Time
}

// Resample downsamples mono audio from sourceRate to targetRate by
// averaging blocks of input samples. Block boundaries are computed with
// rounding so the output length is round(len(samples) / ratio).
//
// Upsampling is not supported: when sourceRate <= targetRate the input
// is returned unchanged.
func Resample(samples []float32, sourceRate, targetRate int) []float32 {
	if len(samples) == 0 {
		return samples
	}
	if sourceRate <= 0 || targetRate <= 0 || sourceRate <= targetRate {
		return samples
	}
	ratio := float64(sourceRate) / float64(targetRate)
	out := make([]float32, int(math.Round(float64(len(samples))/ratio)))
	offset := 0
	for i := range out {
		next := int(math.Round(float64(i+1) * ratio))
		var sum float64
		count := 0
		for j := offset; j < next && j < len(samples); j++ {
			sum += float64(samples[j])
			count++
		}
		if count > 0 {
			out[i] = float32(sum / float64(count))
		}
		offset = next
	}
	return out
}

// RMSEnergy computes root-mean-square energy over every stride-th
// sample of the frame. Subsampling keeps the cost low enough to run on
// every capture callback.
func RMSEnergy(samples []float32, stride int) float64 {
	if stride <= 0 {
		stride = 1
	}
	var sum float64
	count := 0
	for i := 0; i < len(samples); i += stride {
		s := float64(samples[i])
		sum += s * s
		count++
	}
	if count == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(count))
}
