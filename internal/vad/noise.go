package vad

import "slices"

// minFloorSamples is the number of silent-frame observations required before
// the median replaces the initial floor estimate.
const minFloorSamples = 10

// defaultInitialFloor is the floor assumed before enough silent frames have
// been observed. Deliberately conservative so early frames are not
// misclassified as speech in a quiet room.
const defaultInitialFloor = 0.01

// NoiseEstimator maintains a running noise-floor estimate from frames
// classified as silent. The floor is the median of a bounded FIFO of recent
// silent-frame RMS values — median rather than mean so a few "silent" frames
// that actually contain faint speech do not drag the floor upward.
//
// One NoiseEstimator per session; not safe for concurrent use.
type NoiseEstimator struct {
	capacity int
	samples  []float64
	floor    float64
}

// NewNoiseEstimator creates an estimator holding up to capacity recent
// silent-frame RMS values.
func NewNoiseEstimator(capacity int) *NoiseEstimator {
	return &NoiseEstimator{
		capacity: capacity,
		samples:  make([]float64, 0, capacity),
		floor:    defaultInitialFloor,
	}
}

// Observe records the RMS of a frame classified as silent and refreshes the
// floor. Speech frames must not be fed here — the estimator is only mutated
// on silence.
func (n *NoiseEstimator) Observe(rms float64) {
	if len(n.samples) == n.capacity {
		copy(n.samples, n.samples[1:])
		n.samples = n.samples[:n.capacity-1]
	}
	n.samples = append(n.samples, rms)

	if len(n.samples) < minFloorSamples {
		return
	}
	sorted := slices.Clone(n.samples)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		n.floor = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		n.floor = sorted[mid]
	}
}

// Floor returns the current noise-floor estimate.
func (n *NoiseEstimator) Floor() float64 { return n.floor }

// Reset clears all observations and restores the initial floor.
func (n *NoiseEstimator) Reset() {
	n.samples = n.samples[:0]
	n.floor = defaultInitialFloor
}
