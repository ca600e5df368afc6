// Package vad implements adaptive energy-based voice activity detection for
// a single capture session: a running noise-floor estimate, an adaptive
// speech threshold that tracks it, a frame classifier with a short speech
// hangover, and a one-shot speaker lock.
//
// All state in this package is session-scoped. A [Detector] is created per
// session and must not be shared across sessions; Reset returns it to its
// session-start defaults. Detection is synchronous — [Detector.Process] is
// called once per captured frame inside the capture hot path and must not
// block.
package vad

// Config holds the tuning parameters for a detection session. The defaults
// were tuned empirically against typical laptop and headset microphones;
// treat them as starting points, not fixed law.
type Config struct {
	// SampleRate is the audio sample rate in Hz of the frames fed to the
	// detector. Must match the capture stream.
	SampleRate int

	// MinThreshold and MaxThreshold clamp the adaptive speech threshold.
	// The threshold never leaves [MinThreshold, MaxThreshold] regardless of
	// the input sequence.
	MinThreshold float64
	MaxThreshold float64

	// TargetFactor scales the noise floor to produce the threshold
	// adaptation target (threshold chases noiseFloor × TargetFactor).
	TargetFactor float64

	// LearningRate is the per-frame exponential smoothing rate at which the
	// threshold moves toward its target.
	LearningRate float64

	// NoiseFloorSamples is the capacity of the recent-silent-frame RMS
	// window used for the noise floor median.
	NoiseFloorSamples int

	// StrongFactor and ContinuousFactor scale the threshold to derive the
	// strong-speech and continuous-speech classification levels.
	StrongFactor     float64
	ContinuousFactor float64

	// HangoverFrames is the number of consecutive non-speech frames after
	// which an active speech run is considered over. Bridges brief pauses
	// within one utterance without flapping.
	HangoverFrames int

	// VolumeTolerance is the relative RMS deviation accepted by the speaker
	// lock (|rms − lockVolume| ≤ lockVolume × VolumeTolerance).
	VolumeTolerance float64

	// PitchTolerance is the absolute pitch deviation in Hz accepted by the
	// speaker lock.
	PitchTolerance float64

	// HighPassCutoff is the pre-filter cutoff frequency in Hz.
	HighPassCutoff float64
}

// DefaultConfig returns the tuned default detection parameters for 16 kHz
// capture.
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		MinThreshold:      0.01,
		MaxThreshold:      0.5,
		TargetFactor:      2.5,
		LearningRate:      0.1,
		NoiseFloorSamples: 50,
		StrongFactor:      1.6,
		ContinuousFactor:  0.8,
		HangoverFrames:    5,
		VolumeTolerance:   0.6,
		PitchTolerance:    50,
		HighPassCutoff:    80,
	}
}

// withDefaults fills zero-valued fields from [DefaultConfig].
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.MinThreshold == 0 {
		c.MinThreshold = d.MinThreshold
	}
	if c.MaxThreshold == 0 {
		c.MaxThreshold = d.MaxThreshold
	}
	if c.TargetFactor == 0 {
		c.TargetFactor = d.TargetFactor
	}
	if c.LearningRate == 0 {
		c.LearningRate = d.LearningRate
	}
	if c.NoiseFloorSamples == 0 {
		c.NoiseFloorSamples = d.NoiseFloorSamples
	}
	if c.StrongFactor == 0 {
		c.StrongFactor = d.StrongFactor
	}
	if c.ContinuousFactor == 0 {
		c.ContinuousFactor = d.ContinuousFactor
	}
	if c.HangoverFrames == 0 {
		c.HangoverFrames = d.HangoverFrames
	}
	if c.VolumeTolerance == 0 {
		c.VolumeTolerance = d.VolumeTolerance
	}
	if c.PitchTolerance == 0 {
		c.PitchTolerance = d.PitchTolerance
	}
	if c.HighPassCutoff == 0 {
		c.HighPassCutoff = d.HighPassCutoff
	}
	return c
}
