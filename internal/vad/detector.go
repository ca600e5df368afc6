package vad

import (
	"github.com/voxwire/voxwire/internal/dsp"
	"github.com/voxwire/voxwire/pkg/audio"
)

// Decision is the detector's verdict on a single frame. It carries
// everything the transport's send policy needs.
type Decision struct {
	// RMS is the frame's post-filter energy.
	RMS float64

	// Pitch is the detected fundamental frequency in Hz; valid only when
	// HasPitch is true.
	Pitch    float64
	HasPitch bool

	// Class is the energy classification against the adaptive threshold.
	Class Classification

	// SNR is the signal-to-noise ratio in dB against the current noise floor.
	SNR float64

	// SpeechActive is the session-level sticky speech flag.
	SpeechActive bool

	// SpeakerLocked reports whether a speaker fingerprint exists, and
	// SpeakerMatch whether this frame falls within its tolerance bands.
	SpeakerLocked bool
	SpeakerMatch  bool

	// Threshold is the adaptive threshold used to classify this frame.
	Threshold float64
}

// Snapshot is a read-only view of the detector's adaptive state, used by
// the session quality report.
type Snapshot struct {
	Threshold  float64
	NoiseFloor float64
}

// Detector runs the full per-frame detection chain: high-pass filter →
// RMS → noise/threshold adaptation → classification → speaker lock. It owns
// every piece of session-scoped adaptive state, so resetting the detector
// restores a session to its start-of-stream defaults.
//
// One Detector per session; not safe for concurrent use.
type Detector struct {
	cfg        Config
	filter     *dsp.HighPassFilter
	noise      *NoiseEstimator
	threshold  *Threshold
	classifier *Classifier
	speaker    *SpeakerLock
}

// New creates a detector. Zero-valued config fields take their defaults.
func New(cfg Config) *Detector {
	cfg = cfg.withDefaults()
	return &Detector{
		cfg:        cfg,
		filter:     dsp.NewHighPassFilter(cfg.HighPassCutoff, cfg.SampleRate),
		noise:      NewNoiseEstimator(cfg.NoiseFloorSamples),
		threshold:  NewThreshold(cfg),
		classifier: NewClassifier(cfg),
		speaker:    NewSpeakerLock(cfg),
	}
}

// Process filters the frame in place, adapts the noise floor and threshold,
// classifies the frame, and advances the speaker lock. Called once per
// captured frame in capture order.
func (d *Detector) Process(frame audio.Frame) Decision {
	filtered := d.filter.Process(frame)
	rms := dsp.RMS(filtered.Samples)

	// Silence/speech for adaptation purposes is judged against the
	// pre-update threshold; the frame's classification then reads the
	// updated one.
	isSpeech := rms > d.threshold.Value()
	if !isSpeech {
		d.noise.Observe(rms)
	}
	d.threshold.Observe(rms, isSpeech, d.noise.Floor())

	cls := d.classifier.Classify(rms, d.threshold.Value())

	dec := Decision{
		RMS:          rms,
		Class:        cls,
		SNR:          dsp.SNR(rms, d.noise.Floor()),
		SpeechActive: d.classifier.SpeechActive(),
		Threshold:    d.threshold.Value(),
	}

	// Pitch is only needed for locking and matching, both of which require
	// speech; skip the autocorrelation for silent frames.
	if cls.IsSpeech {
		dec.Pitch, dec.HasPitch = dsp.DetectPitch(filtered.Samples, filtered.SampleRate)
	}

	if cls.IsStrongSpeech && dec.HasPitch {
		d.speaker.TryLock(rms, dec.Pitch)
	}
	dec.SpeakerLocked = d.speaker.Locked()
	if dec.HasPitch {
		dec.SpeakerMatch = d.speaker.Matches(rms, dec.Pitch)
	}

	return dec
}

// Snapshot returns the current adaptive state for observability. It never
// gates control decisions.
func (d *Detector) Snapshot() Snapshot {
	return Snapshot{
		Threshold:  d.threshold.Value(),
		NoiseFloor: d.noise.Floor(),
	}
}

// Reset restores every adaptive component to session-start defaults:
// filter state, noise floor, threshold, speech flag, and speaker lock.
func (d *Detector) Reset() {
	d.filter.Reset()
	d.noise.Reset()
	d.threshold.Reset()
	d.classifier.Reset()
	d.speaker.Reset()
}
