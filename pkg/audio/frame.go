// Package audio defines the audio frame type and PCM codec helpers used
// across the Voxwire pipeline.
//
// Frames are the atomic unit of audio flowing through the system: captured
// from an input source, run through the filter and VAD stages, and — when
// accepted — encoded to 16-bit PCM for transport. Synthesized speech coming
// back from the service is decoded through the same helpers before playback.
//
// This package lives under pkg/ because capture sources and playback sinks
// outside this repository are expected to produce and consume [Frame] values.
package audio

import "time"

// DefaultSampleRate is the capture-domain sample rate in Hz. The streaming
// service expects mono 16 kHz PCM, matching common ASR input formats.
const DefaultSampleRate = 16000

// Frame is a single fixed-length block of mono audio samples as delivered by
// one capture callback. Samples are normalised single-precision floats in
// [-1, 1]. A Frame is ephemeral: produced once per capture period, consumed
// by the filter chain, then either dropped or encoded for transport.
type Frame struct {
	// Samples holds the normalised float samples for this frame.
	Samples []float32

	// SampleRate in Hz (e.g., 16000 for the capture domain).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Clone returns a deep copy of the frame. Capture sources reuse their sample
// buffers between callbacks, so any stage that retains a frame beyond the
// current callback must clone it first.
func (f Frame) Clone() Frame {
	out := f
	out.Samples = make([]float32, len(f.Samples))
	copy(out.Samples, f.Samples)
	return out
}
