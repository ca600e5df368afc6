package vad

// Threshold is the adaptive speech-detection energy level. Each frame it is
// exponentially smoothed toward noiseFloor × TargetFactor and clamped to
// [MinThreshold, MaxThreshold], so fixed-threshold failure modes (missed
// speech in loud rooms, false triggers in quiet ones) self-correct as the
// ambient level drifts.
//
// One Threshold per session; not safe for concurrent use.
type Threshold struct {
	min    float64
	max    float64
	factor float64
	rate   float64

	value float64
}

// NewThreshold creates an adaptive threshold starting at min.
func NewThreshold(cfg Config) *Threshold {
	return &Threshold{
		min:    cfg.MinThreshold,
		max:    cfg.MaxThreshold,
		factor: cfg.TargetFactor,
		rate:   cfg.LearningRate,
		value:  cfg.MinThreshold,
	}
}

// Observe adapts the threshold for one frame. noiseFloor is the current
// floor estimate; rms and isSpeech describe the frame's classification
// against the pre-update threshold.
//
// Beyond the primary smoothing toward noiseFloor × factor, two secondary
// corrections nudge the value: speech far above threshold means a loud
// environment (raise 5% to cut false positives); silence below threshold
// means a quiet one (lower 2% to gain sensitivity).
func (t *Threshold) Observe(rms float64, isSpeech bool, noiseFloor float64) {
	target := noiseFloor * t.factor
	t.value += t.rate * (target - t.value)

	if isSpeech && rms > t.value*2 {
		t.value *= 1.05
	} else if !isSpeech && rms < t.value {
		t.value *= 0.98
	}

	t.value = t.clamp(t.value)
}

// Value returns the current threshold.
func (t *Threshold) Value() float64 { return t.value }

// Reset restores the session-start threshold.
func (t *Threshold) Reset() { t.value = t.min }

func (t *Threshold) clamp(v float64) float64 {
	if v < t.min {
		return t.min
	}
	if v > t.max {
		return t.max
	}
	return v
}
