package dsp

import "math"

// RMS returns the root-mean-square amplitude of the samples, a proxy for
// frame loudness. Returns 0 for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// SNR computes the signal-to-noise ratio in decibels for a frame RMS against
// the estimated noise floor: 20·log10(rms/floor), clamped to be non-negative.
// Returns 0 when either input is non-positive.
func SNR(rms, noiseFloor float64) float64 {
	if rms <= 0 || noiseFloor <= 0 {
		return 0
	}
	snr := 20 * math.Log10(rms/noiseFloor)
	if snr < 0 {
		return 0
	}
	return snr
}
