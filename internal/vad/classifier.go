package vad

// Classification is the per-frame energy classification against the
// adaptive threshold.
type Classification struct {
	// IsSpeech means the frame's RMS exceeds the threshold.
	IsSpeech bool

	// IsStrongSpeech means the RMS exceeds threshold × StrongFactor —
	// confident speech, used for speaker locking and unconditional sends.
	IsStrongSpeech bool

	// IsContinuousSpeech means the RMS exceeds threshold × ContinuousFactor,
	// a laxer level used to keep an in-progress utterance flowing through
	// soft trailing syllables.
	IsContinuousSpeech bool
}

// Classifier classifies frames and tracks a session-level sticky
// speech-active flag. Once speech begins, the flag stays set until
// HangoverFrames consecutive non-speech frames are observed, bridging the
// short pauses inside one utterance.
//
// The classifier never decides end-of-utterance on its own: endpointing is
// transcript-driven (the transport's silence-to-final timer), because
// network and ASR latency make energy-only endpointing unreliable. The
// energy classification only gates what is sent at all.
//
// One Classifier per session; not safe for concurrent use.
type Classifier struct {
	strongFactor     float64
	continuousFactor float64
	hangover         int

	silentStreak int
	active       bool
}

// NewClassifier creates a classifier with the config's factors and hangover.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{
		strongFactor:     cfg.StrongFactor,
		continuousFactor: cfg.ContinuousFactor,
		hangover:         cfg.HangoverFrames,
	}
}

// Classify evaluates one frame against the threshold and updates the
// speech-active flag.
func (c *Classifier) Classify(rms, threshold float64) Classification {
	cls := Classification{
		IsSpeech:           rms > threshold,
		IsStrongSpeech:     rms > threshold*c.strongFactor,
		IsContinuousSpeech: rms > threshold*c.continuousFactor,
	}

	if cls.IsSpeech {
		c.silentStreak = 0
		c.active = true
	} else {
		c.silentStreak++
		if c.silentStreak >= c.hangover {
			c.active = false
		}
	}
	return cls
}

// SpeechActive reports whether a speech run is in progress (sticky across
// up to HangoverFrames-1 silent frames).
func (c *Classifier) SpeechActive() bool { return c.active }

// Reset clears the streak counter and the speech-active flag.
func (c *Classifier) Reset() {
	c.silentStreak = 0
	c.active = false
}
