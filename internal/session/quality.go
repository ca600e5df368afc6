package session

import (
	"sync"

	"github.com/voxwire/voxwire/internal/vad"
)

// qualityAlpha is the smoothing factor for the running quality averages.
const qualityAlpha = 0.05

// QualityReport is a point-in-time snapshot of session voice quality.
type QualityReport struct {
	// SNR is the smoothed signal-to-noise ratio in dB.
	SNR float64

	// Clarity is the smoothed ratio of speech energy to the strong-speech
	// bar, clamped to [0, 1]; near 1 means speech sits comfortably above
	// the threshold.
	Clarity float64

	// Threshold and NoiseFloor expose the adaptive state.
	Threshold  float64
	NoiseFloor float64

	// SentCount and ProcessedCount count frames shipped upstream and
	// frames run through the detector.
	SentCount      int64
	ProcessedCount int64
}

// quality accumulates smoothed voice-quality figures. The event loop
// writes it; QualityReport may be read from any goroutine.
type quality struct {
	mu         sync.Mutex
	snr        float64
	clarity    float64
	threshold  float64
	noiseFloor float64
	sent       int64
	processed  int64
	seeded     bool
}

// observe folds one frame decision into the running averages.
func (q *quality) observe(dec vad.Decision, snap vad.Snapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.processed++
	q.threshold = snap.Threshold
	q.noiseFloor = snap.NoiseFloor

	if !q.seeded {
		q.snr = dec.SNR
		q.seeded = true
	} else {
		q.snr += qualityAlpha * (dec.SNR - q.snr)
	}

	if dec.Class.IsSpeech {
		bar := snap.Threshold * 1.6
		c := 1.0
		if bar > 0 && dec.RMS < bar {
			c = dec.RMS / bar
		}
		q.clarity += qualityAlpha * (c - q.clarity)
	}
}

func (q *quality) addSent() {
	q.mu.Lock()
	q.sent++
	q.mu.Unlock()
}

func (q *quality) report() QualityReport {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QualityReport{
		SNR:            q.snr,
		Clarity:        q.clarity,
		Threshold:      q.threshold,
		NoiseFloor:     q.noiseFloor,
		SentCount:      q.sent,
		ProcessedCount: q.processed,
	}
}
