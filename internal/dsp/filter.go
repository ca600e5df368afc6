// Package dsp implements the per-frame signal processing stages of the
// Voxwire capture pipeline: high-pass filtering, energy measurement, and
// autocorrelation pitch estimation.
//
// All functions in this package are synchronous and allocation-light; they
// run inside the capture callback hot path and must complete within one
// frame period.
package dsp

import (
	"math"

	"github.com/voxwire/voxwire/pkg/audio"
)

// DefaultHighPassCutoff is the default high-pass cutoff frequency in Hz.
// 80 Hz removes DC offset and low-frequency rumble (fans, desk bumps)
// without touching the fundamental of typical speech.
const DefaultHighPassCutoff = 80.0

// HighPassFilter is a single-pole IIR high-pass filter:
//
//	y[n] = α·(y[n-1] + x[n] − x[n-1])
//
// where α = rc/(rc+dt), rc = 1/(2π·cutoff), dt = 1/sampleRate.
//
// Filter state carries across frames within one session — the previous
// input and output persist between Process calls so the filter behaves as
// one continuous filter over the whole stream, not a per-frame restart.
// One HighPassFilter per session; not safe for concurrent use.
type HighPassFilter struct {
	alpha float32

	prevIn  float32
	prevOut float32
}

// NewHighPassFilter creates a high-pass filter for the given cutoff
// frequency and sample rate. cutoff and sampleRate must be positive.
func NewHighPassFilter(cutoff float64, sampleRate int) *HighPassFilter {
	rc := 1.0 / (2 * math.Pi * cutoff)
	dt := 1.0 / float64(sampleRate)
	return &HighPassFilter{alpha: float32(rc / (rc + dt))}
}

// Process filters a frame in place and returns it. The output frame always
// has the same length as the input.
func (f *HighPassFilter) Process(frame audio.Frame) audio.Frame {
	for i, x := range frame.Samples {
		y := f.alpha * (f.prevOut + x - f.prevIn)
		f.prevIn = x
		f.prevOut = y
		frame.Samples[i] = y
	}
	return frame
}

// Reset clears the filter state. Use when a session restarts so the first
// frame of the new stream does not inherit the previous stream's tail.
func (f *HighPassFilter) Reset() {
	f.prevIn = 0
	f.prevOut = 0
}
